package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ivnisc/csat"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

// boundViper returns a viper instance with every flag of the root command bound.
func boundViper(t *testing.T, args ...string) *viper.Viper {
	t.Helper()
	v := viper.New()
	cmd := newRootCmd(v)
	require.NoError(t, cmd.PersistentFlags().Parse(args))
	return v
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := loadConfig(boundViper(t))
	require.NoError(t, err)

	require.Equal(t, Config{
		Host:        "localhost",
		TCPPort:     54321,
		UDPPort:     5555,
		Mode:        modeMessage,
		RecvDir:     "received",
		MaxFrame:    csat.DefaultMaxFrameLength,
		MaxDatagram: csat.DefaultMaxDatagramSize,
		Timeout:     5 * time.Second,
		MinMessages: csat.DefaultMinMessages,
		LogLevel:    "info",
		LogFormat:   "console",
	}, cfg)
	require.Equal(t, "localhost:54321", cfg.tcpAddr())
	require.Equal(t, "localhost:5555", cfg.udpAddr())
}

func TestLoadConfig_Flags(t *testing.T) {
	v := boundViper(t, "--tcp-port", "6000", "--mode", "file", "--timeout", "250ms")

	cfg, err := loadConfig(v)
	require.NoError(t, err)
	require.Equal(t, 6000, cfg.TCPPort)
	require.Equal(t, modeFile, cfg.Mode)
	require.Equal(t, 250*time.Millisecond, cfg.Timeout)
}

func TestLoadConfig_Env(t *testing.T) {
	t.Setenv("CSAT_UDP_PORT", "7000")
	t.Setenv("CSAT_MIN_MESSAGES", "2")

	cfg, err := loadConfig(boundViper(t))
	require.NoError(t, err)
	require.Equal(t, 7000, cfg.UDPPort)
	require.Equal(t, 2, cfg.MinMessages)
}

func TestReadConfig_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "csat.yaml")
	require.NoError(t, os.WriteFile(path, []byte("host: 0.0.0.0\nrecv_dir: /tmp/inbox\nlog_format: json\n"), 0o644))

	v := boundViper(t)
	require.NoError(t, readConfig(v, path))

	cfg, err := loadConfig(v)
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0", cfg.Host)
	require.Equal(t, "/tmp/inbox", cfg.RecvDir)
	require.Equal(t, "json", cfg.LogFormat)
}

func TestReadConfig_MissingFileIsFine(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	require.NoError(t, readConfig(boundViper(t), ""))
}

func TestReadConfig_BrokenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "csat.yaml")
	require.NoError(t, os.WriteFile(path, []byte("host: [unclosed\n"), 0o644))

	require.Error(t, readConfig(boundViper(t), path))
}

func TestConfig_Validate(t *testing.T) {
	valid := func() Config {
		cfg, err := loadConfig(boundViper(t))
		require.NoError(t, err)
		return cfg
	}

	cases := map[string]func(*Config){
		"mode":         func(c *Config) { c.Mode = "stream" },
		"tcp port":     func(c *Config) { c.TCPPort = 70000 },
		"udp port":     func(c *Config) { c.UDPPort = -1 },
		"max frame":    func(c *Config) { c.MaxFrame = 0 },
		"max datagram": func(c *Config) { c.MaxDatagram = csat.MaxUDPPayload + 1 },
		"no recv dir":  func(c *Config) { c.Mode = modeFile; c.RecvDir = "" },
	}

	for name, mutate := range cases {
		cfg := valid()
		mutate(&cfg)
		require.Error(t, cfg.validate(), name)
	}
}

func TestConfig_Dispatcher(t *testing.T) {
	cfg := Config{Mode: modeMessage}
	require.IsType(t, &csat.AckDispatcher{}, cfg.dispatcher(csat.NopLogger()))

	cfg = Config{Mode: modeFile, RecvDir: "inbox"}
	d, ok := cfg.dispatcher(csat.NopLogger()).(*csat.FileDispatcher)
	require.True(t, ok)
	require.Equal(t, "inbox", d.Dir())
}
