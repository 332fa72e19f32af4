package logcollection

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type ctxKey string

// RequestIDKey is the context key LogWithContext reads a request id from
const RequestIDKey ctxKey = "request_id"

// ZapAdapter provides a Zap backend implementation that hides zap types from users
type ZapAdapter struct {
	logger *zap.Logger
	sugar  *zap.SugaredLogger
	level  zap.AtomicLevel
	close  func()
}

// NewZapAdapter creates a new Zap backend adapter
func NewZapAdapter(config ZapConfig) (*ZapAdapter, error) {
	level, err := getLevelFromString(config.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}
	atomicLevel := zap.NewAtomicLevelAt(level)

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.RFC3339TimeEncoder
	encoderConfig.LevelKey = "level"
	encoderConfig.EncodeLevel = zapcore.LowercaseLevelEncoder

	var encoder zapcore.Encoder
	switch config.Format {
	case "console":
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	default:
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	output := config.Output
	if output == "" {
		output = "stdout"
	}
	// zap.Open understands "stdout", "stderr" and file paths
	writeSyncer, closeOutput, err := zap.Open(output)
	if err != nil {
		return nil, fmt.Errorf("failed to open log output %q: %w", output, err)
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(writeSyncer), atomicLevel)

	opts := []zap.Option{}
	if config.Caller {
		opts = append(opts, zap.AddCaller(), zap.AddCallerSkip(1))
	}
	if config.Stacktrace {
		opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel))
	}

	adapter := NewZapAdapterFromLogger(zap.New(core, opts...))
	adapter.level = atomicLevel
	adapter.close = closeOutput
	return adapter, nil
}

// NewZapAdapterFromLogger wraps an existing zap logger, e.g. one built with zaptest.
func NewZapAdapterFromLogger(logger *zap.Logger) *ZapAdapter {
	return &ZapAdapter{
		logger: logger,
		sugar:  logger.Sugar(),
		level:  zap.NewAtomicLevelAt(zapcore.DebugLevel),
	}
}

func (z *ZapAdapter) Debugf(format string, args ...interface{}) {
	z.sugar.Debugf(format, args...)
}

func (z *ZapAdapter) Infof(format string, args ...interface{}) {
	z.sugar.Infof(format, args...)
}

func (z *ZapAdapter) Warnf(format string, args ...interface{}) {
	z.sugar.Warnf(format, args...)
}

func (z *ZapAdapter) Errorf(format string, args ...interface{}) {
	z.sugar.Errorf(format, args...)
}

// LogWithContext implements structured logging with context
func (z *ZapAdapter) LogWithContext(ctx context.Context, level LogLevel, msg string, fields ...LogField) {
	zapFields := z.convertFields(fields)
	if ctx != nil {
		if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
			zapFields = append(zapFields, zap.String(string(RequestIDKey), requestID))
		}
	}
	z.logAtLevel(level, msg, zapFields...)
}

func (z *ZapAdapter) LogWithFields(level LogLevel, msg string, fields ...LogField) {
	z.logAtLevel(level, msg, z.convertFields(fields)...)
}

// WithFields creates a new logger with additional fields
func (z *ZapAdapter) WithFields(fields ...LogField) StructuredLogger {
	newLogger := z.logger.With(z.convertFields(fields)...)
	return &ZapAdapter{
		logger: newLogger,
		sugar:  newLogger.Sugar(),
		level:  z.level,
	}
}

func (z *ZapAdapter) WithError(err error) StructuredLogger {
	return z.WithFields(Error(err))
}

func (z *ZapAdapter) WithUnit(unitName string) StructuredLogger {
	return z.WithFields(Unit(unitName))
}

// SetLevel changes the minimum level of this logger and every logger derived from it
func (z *ZapAdapter) SetLevel(level LogLevel) {
	zapLevel, err := getLevelFromString(level.String())
	if err != nil {
		return
	}
	z.level.SetLevel(zapLevel)
}

// Sync flushes any buffered log entries
func (z *ZapAdapter) Sync() error {
	return z.logger.Sync()
}

// Close flushes and releases the output opened by NewZapAdapter
func (z *ZapAdapter) Close() {
	z.logger.Sync()
	if z.close != nil {
		z.close()
	}
}

func (z *ZapAdapter) convertFields(fields []LogField) []zap.Field {
	zapFields := make([]zap.Field, len(fields))
	for i, field := range fields {
		zapFields[i] = convertSingleField(field)
	}
	return zapFields
}

func convertSingleField(field LogField) zap.Field {
	switch field.Type {
	case StringField:
		if v, ok := field.Value.(string); ok {
			return zap.String(field.Key, v)
		}
	case IntField:
		if v, ok := field.Value.(int); ok {
			return zap.Int(field.Key, v)
		}
	case Int64Field:
		if v, ok := field.Value.(int64); ok {
			return zap.Int64(field.Key, v)
		}
	case BoolField:
		if v, ok := field.Value.(bool); ok {
			return zap.Bool(field.Key, v)
		}
	case DurationField:
		if v, ok := field.Value.(time.Duration); ok {
			return zap.Duration(field.Key, v)
		}
	case TimeField:
		if v, ok := field.Value.(time.Time); ok {
			return zap.Time(field.Key, v)
		}
	case ErrorField:
		if err, ok := field.Value.(error); ok {
			return zap.NamedError(field.Key, err)
		}
		return zap.String(field.Key, "invalid error field")
	}
	return zap.Any(field.Key, field.Value)
}

func (z *ZapAdapter) logAtLevel(level LogLevel, msg string, fields ...zap.Field) {
	switch level {
	case DebugLevel:
		z.logger.Debug(msg, fields...)
	case WarnLevel:
		z.logger.Warn(msg, fields...)
	case ErrorLevel:
		z.logger.Error(msg, fields...)
	default:
		z.logger.Info(msg, fields...)
	}
}

// ZapConfig defines Zap-specific configuration
type ZapConfig struct {
	Level      string `yaml:"level"`      // "debug", "info", "warn", "error"
	Format     string `yaml:"format"`     // "json", "console"
	Output     string `yaml:"output"`     // "stdout", "stderr", file path
	Caller     bool   `yaml:"caller"`     // Include caller information
	Stacktrace bool   `yaml:"stacktrace"` // Include stacktrace on errors
}

// zapcore.ParseLevel only exists in newer zap releases
func getLevelFromString(levelStr string) (zapcore.Level, error) {
	switch levelStr {
	case "debug":
		return zap.DebugLevel, nil
	case "info":
		return zap.InfoLevel, nil
	case "warn":
		return zap.WarnLevel, nil
	case "error":
		return zap.ErrorLevel, nil
	default:
		return -1, fmt.Errorf("invalid log level: %s", levelStr)
	}
}

// DefaultZapConfig returns the daemon's default Zap configuration
func DefaultZapConfig() ZapConfig {
	return ZapConfig{
		Level:      "info",
		Format:     "console",
		Output:     "stdout",
		Caller:     false,
		Stacktrace: true,
	}
}
