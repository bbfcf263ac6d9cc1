package csat

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// Load reads the file at path fully into memory.
// The returned name is the final path component.
func Load(path string) (string, []byte, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", nil, errors.Wrap(err, "load file")
	}
	return filepath.Base(path), content, nil
}

// LoadEnvelope reads the file at path and packs it into an envelope payload.
func LoadEnvelope(path string) (string, []byte, error) {
	name, content, err := Load(path)
	if err != nil {
		return "", nil, err
	}
	payload, err := Pack(name, content)
	if err != nil {
		return "", nil, err
	}
	return name, payload, nil
}

// ValidateName rejects names that are not a single plain path component.
func ValidateName(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return errors.Wrapf(ErrUnsafeName, "%q", name)
	case strings.ContainsAny(name, `/\`+"\x00"):
		return errors.Wrapf(ErrUnsafeName, "%q contains a path separator", name)
	case filepath.IsAbs(name), filepath.VolumeName(name) != "":
		return errors.Wrapf(ErrUnsafeName, "%q is absolute", name)
	}
	return nil
}

// Store writes content to dir/name, creating dir and its parents if absent
// and replacing any existing file of that name. The content is written to a
// temporary file in dir and renamed into place, so the target is never seen
// partially written. It returns the path of the stored file.
func Store(name string, content []byte, dir string) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrap(err, "create receive directory")
	}

	// The temp name must not grow with name, which may already be at the
	// file system's length limit.
	tmp, err := os.CreateTemp(dir, ".csat-*.part")
	if err != nil {
		return "", errors.Wrap(err, "create temp file")
	}
	tmpName := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	if _, err := tmp.Write(content); err != nil {
		cleanup()
		return "", errors.Wrap(err, "write temp file")
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return "", errors.Wrap(err, "sync temp file")
	}
	if err := tmp.Chmod(0o644); err != nil {
		cleanup()
		return "", errors.Wrap(err, "chmod temp file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", errors.Wrap(err, "close temp file")
	}

	target := filepath.Join(dir, name)
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return "", errors.Wrap(err, "rename into place")
	}
	return target, nil
}
