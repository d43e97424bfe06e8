// Copyright (c) 2022 Netskope, Inc. All rights reserved.

package log

import (
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options controls where and how verbosely the logger writes.
type Options struct {
	Dir    string
	Name   string
	Debug  bool
	Stdout bool

	// Writer overrides Dir/Name/Stdout when set.
	Writer io.Writer
}

// NewLogger returns a logger using the Zap structured logger.
// If Stdout is false, a file-based logger is used. Otherwise a console logger is used.
// The returned close func releases the log file, if any.
func NewLogger(opts Options) (*zap.Logger, func() error, error) {
	cfg := encoderConfig(opts.Debug)

	level := zap.InfoLevel
	if opts.Debug {
		level = zap.DebugLevel
	}

	closer := func() error { return nil }

	var sink zapcore.WriteSyncer
	switch {
	case opts.Writer != nil:
		sink = zapcore.AddSync(opts.Writer)
	case opts.Stdout:
		sink = zapcore.AddSync(os.Stdout)
	default:
		file, err := os.OpenFile(LogFile(opts.Dir, opts.Name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, nil, err
		}
		sink = zapcore.AddSync(file)
		closer = file.Close
	}

	core := zapcore.NewCore(zapcore.NewJSONEncoder(cfg), sink, level)

	var logger *zap.Logger
	if opts.Debug {
		logger = zap.New(core, zap.AddCaller())
	} else {
		logger = zap.New(core)
	}

	return logger, closer, nil
}

// LogFile returns the path of the log file for dir and name, applying defaults.
func LogFile(dir, name string) string {
	if dir == "" {
		dir = "/tmp"
	}
	if name == "" {
		name = filepath.Base(os.Args[0])
	}
	return filepath.Join(dir, name+".log")
}

func encoderConfig(debug bool) zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.EpochTimeEncoder
	cfg.LevelKey = "lv"
	cfg.EncodeLevel = func(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(l.CapitalString()[:2])
	}
	if debug {
		cfg.EncodeCaller = zapcore.ShortCallerEncoder
		cfg.CallerKey = "call"
	}
	return cfg
}
