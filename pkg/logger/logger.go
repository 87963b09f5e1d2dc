package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Validate checks a log format and level before Init is called.
func Validate(format, level string) error {
	switch format {
	case "console", "json":
	default:
		return fmt.Errorf("invalid log-format %q: must be console or json", format)
	}
	if _, err := zapcore.ParseLevel(level); err != nil {
		return fmt.Errorf("invalid log-level %q", level)
	}
	return nil
}

// Init builds the process logger. An unknown level falls back to info.
func Init(format string, logLevel string) (*zap.Logger, error) {
	lvl := zapcore.InfoLevel
	if level, err := zapcore.ParseLevel(logLevel); err == nil {
		lvl = level
	}

	loggerCfg := &zap.Config{
		Level:    zap.NewAtomicLevelAt(lvl),
		Encoding: format,
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "time",
			LevelKey:       "severity",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "message",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeTime:     zapcore.RFC3339TimeEncoder,
			EncodeLevel:    zapcore.LowercaseLevelEncoder,
			EncodeDuration: zapcore.MillisDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}

	return loggerCfg.Build(zap.AddStacktrace(zap.DPanicLevel))
}
