package logcollection

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/core-tools/hsu-desk/pkg/logging"
)

// LoggerConfig defines configuration for creating a structured logger
type LoggerConfig struct {
	Level      LogLevel
	Format     string // "json", "console"
	Output     string // "stdout", "stderr", file path
	Caller     bool
	Stacktrace bool
}

// NewStructuredLogger creates a zap-backed structured logger
func NewStructuredLogger(cfg LoggerConfig) (*ZapAdapter, error) {
	adapter, err := NewZapAdapter(ZapConfig{
		Level:      cfg.Level.String(),
		Format:     cfg.Format,
		Output:     cfg.Output,
		Caller:     cfg.Caller,
		Stacktrace: cfg.Stacktrace,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create structured logger: %w", err)
	}
	return adapter, nil
}

// DevelopmentLogger creates a console logger at debug level
func DevelopmentLogger() (*ZapAdapter, error) {
	return NewStructuredLogger(LoggerConfig{
		Level:      DebugLevel,
		Format:     "console",
		Output:     "stdout",
		Caller:     true,
		Stacktrace: true,
	})
}

// NopLogger returns a structured logger that discards everything
func NopLogger() *ZapAdapter {
	return NewZapAdapterFromLogger(zap.NewNop())
}

// ParseLogLevel maps a level name to a LogLevel, defaulting to info
func ParseLogLevel(name string) LogLevel {
	return LogLevel(logging.ParseLevel(name))
}

// NewFacadeLogger builds a prefixed logging.Logger on top of a structured logger
func NewFacadeLogger(prefix string, structured StructuredLogger) logging.Logger {
	return logging.NewLogger(prefix, logging.LogFuncs{
		Debugf: structured.Debugf,
		Infof:  structured.Infof,
		Warnf:  structured.Warnf,
		Errorf: structured.Errorf,
	})
}
