// Package logger configures the zap logger shared by the eseq_tool commands:
// console output on stderr, plus an optional rotating log file for long batch
// runs.
package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls verbosity and the optional log file.
type Config struct {
	// One of "debug", "info", "warn", "error". Anything else means info.
	Level string
	// Path of the rotating log file; empty disables file output.
	FilePath string
	// Rotation settings for the log file. Zero values pick the defaults
	// below.
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

const (
	defaultMaxSizeMB  = 50
	defaultMaxBackups = 3
	defaultMaxAgeDays = 28
)

func parseLevel(s string) zapcore.Level {
	switch s {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	}
	return zapcore.InfoLevel
}

// New builds a logger from the given config. It never fails; a bad level
// falls back to info and file problems surface through lumberjack at write
// time.
func New(cfg Config) *zap.Logger {
	level := parseLevel(cfg.Level)
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig),
			zapcore.Lock(os.Stderr), level),
	}
	if cfg.FilePath != "" {
		if cfg.MaxSizeMB <= 0 {
			cfg.MaxSizeMB = defaultMaxSizeMB
		}
		if cfg.MaxBackups <= 0 {
			cfg.MaxBackups = defaultMaxBackups
		}
		if cfg.MaxAgeDays <= 0 {
			cfg.MaxAgeDays = defaultMaxAgeDays
		}
		fileSink := zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		})
		cores = append(cores,
			zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), fileSink,
				level))
	}
	return zap.New(zapcore.NewTee(cores...))
}
