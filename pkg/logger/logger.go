package logger

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	base  *zap.Logger
	sugar *zap.SugaredLogger
)

// InitLogger builds the global zap logger. Output always goes to stdout and,
// when filename is set, is also appended to that file.
func InitLogger(level, filename string) error {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "json"
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.OutputPaths = []string{"stdout"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	if filename != "" {
		cfg.OutputPaths = append(cfg.OutputPaths, filename)
	}

	if level == "" {
		level = "info"
	}
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}

	l, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	set(l)
	return nil
}

// Init installs a development logger on stderr. Used when InitLogger was
// never called (tests, library use).
func Init() {
	l, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		l = zap.NewNop()
	}
	set(l)
}

func set(l *zap.Logger) {
	base = l
	sugar = l.Sugar()
	zap.ReplaceGlobals(l)
}

// L returns the structured global logger.
func L() *zap.Logger {
	if base == nil {
		Init()
	}
	return base
}

// Close flushes buffered entries.
func Close() {
	if base != nil {
		_ = base.Sync()
	}
}

func Infof(format string, v ...interface{}) {
	L()
	sugar.Infof(format, v...)
}

func Warnf(format string, v ...interface{}) {
	L()
	sugar.Warnf(format, v...)
}

func Errorf(format string, v ...interface{}) {
	L()
	sugar.Errorf(format, v...)
}

func Debugf(format string, v ...interface{}) {
	L()
	sugar.Debugf(format, v...)
}
