// Package logging builds the process logger from config.LoggingConfig.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/voidecho/voidecho-server-go/internal/config"
)

// ErrorLogFilename receives a copy of every error-level entry when file
// output is enabled.
const ErrorLogFilename = "error.log"

// Logger bundles the zap logger with its adjustable level and the rotating
// files it writes to.
type Logger struct {
	*zap.Logger
	Level zap.AtomicLevel

	closers []io.Closer
}

// New builds a logger. Console output goes to stdout; file output rotates
// through lumberjack.
func New(cfg config.LoggingConfig) (*Logger, error) {
	return newLogger(cfg, os.Stdout)
}

func newLogger(cfg config.LoggingConfig, stdout zapcore.WriteSyncer) (*Logger, error) {
	level := zap.NewAtomicLevelAt(ParseLevel(cfg.Level))

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	// Files are always JSON so they can be shipped as-is.
	fileEncoder := zapcore.NewJSONEncoder(encoderConfig)
	encoder := fileEncoder
	if cfg.Format == "console" {
		consoleConfig := encoderConfig
		consoleConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(consoleConfig)
	}

	l := &Logger{Level: level}
	var cores []zapcore.Core
	if cfg.Output == "" || cfg.Output == "stdout" || cfg.Output == "both" {
		cores = append(cores, zapcore.NewCore(encoder, stdout, level))
	}
	if cfg.Output == "file" || cfg.Output == "both" {
		if err := os.MkdirAll(cfg.File.Path, 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
		out := rotating(cfg.File, cfg.File.Filename)
		errs := rotating(cfg.File, ErrorLogFilename)
		l.closers = append(l.closers, out, errs)

		cores = append(cores,
			zapcore.NewCore(fileEncoder, zapcore.AddSync(out), level),
			zapcore.NewCore(fileEncoder, zapcore.AddSync(errs), zapcore.ErrorLevel),
		)
	}

	l.Logger = zap.New(zapcore.NewTee(cores...),
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
	return l, nil
}

func rotating(cfg config.LogFileConfig, name string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   filepath.Join(cfg.Path, name),
		MaxSize:    cfg.MaxSize,
		MaxAge:     cfg.MaxAge,
		MaxBackups: cfg.MaxBackups,
		Compress:   cfg.Compress,
	}
}

// SetLevel changes the level at runtime. Unknown names fall back to info.
func (l *Logger) SetLevel(name string) {
	next := ParseLevel(name)
	if l.Level.Level() == next {
		return
	}
	l.Info("log level changed", zap.Stringer("from", l.Level.Level()), zap.Stringer("to", next))
	l.Level.SetLevel(next)
}

// Close flushes buffered entries and closes the log files.
func (l *Logger) Close() error {
	_ = l.Sync()
	var first error
	for _, c := range l.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// ParseLevel maps a config level name to a zap level.
func ParseLevel(name string) zapcore.Level {
	switch name {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
