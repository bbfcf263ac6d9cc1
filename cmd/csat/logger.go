package main

import (
	"io"

	"github.com/ivnisc/csat"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// zapLogger adapts a sugared zap logger to csat.Logger.
type zapLogger struct {
	s *zap.SugaredLogger
}

var _ csat.Logger = zapLogger{}

func (l zapLogger) Debug(msg string, args ...any) { l.s.Debugw(msg, args...) }
func (l zapLogger) Info(msg string, args ...any)  { l.s.Infow(msg, args...) }
func (l zapLogger) Warn(msg string, args ...any)  { l.s.Warnw(msg, args...) }
func (l zapLogger) Error(msg string, args ...any) { l.s.Errorw(msg, args...) }

// newLogger builds a zap logger writing to w. format is "console" or "json".
func newLogger(w io.Writer, level, format string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, errors.Wrapf(err, "log level %q", level)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	switch format {
	case "console", "":
		enc = zapcore.NewConsoleEncoder(encCfg)
	case "json":
		enc = zapcore.NewJSONEncoder(encCfg)
	default:
		return nil, errors.Errorf("unknown log format %q", format)
	}

	core := zapcore.NewCore(enc, zapcore.AddSync(w), lvl)
	return zap.New(core), nil
}
