// pkg/logger/logger.go
package logger

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// -----------------------------------------------------------------------------
// context keys (неэкспортируемые)
// -----------------------------------------------------------------------------

type contextKey string

const (
	traceIDKey   contextKey = "trace_id"
	requestIDKey contextKey = "request_id"
	sessionIDKey contextKey = "session_id"
)

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

const (
	EncodingJSON    = "json"
	EncodingConsole = "console"
)

// Config описывает, как инициализировать zap-логгер.
// Level    — "debug" | "info" | "warn" | "error" (по умолчанию "info")
// DevMode  — development-режим zap: стектрейсы на warn, DPanic паникует.
// Encoding — "json" | "console"; по умолчанию console в DevMode, иначе json.
// Sampling — Initial == 0 отключает семплинг.
type Config struct {
	Level    string         `mapstructure:"level"`
	DevMode  bool           `mapstructure:"dev_mode"`
	Encoding string         `mapstructure:"encoding"`
	Sampling SamplingConfig `mapstructure:"sampling"`
}

// SamplingConfig — в каждую секунду пишутся первые Initial одинаковых
// записей, затем каждая Thereafter-я.
type SamplingConfig struct {
	Initial    int `mapstructure:"initial"`
	Thereafter int `mapstructure:"thereafter"`
}

func (c *Config) applyDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Encoding == "" {
		c.Encoding = EncodingJSON
		if c.DevMode {
			c.Encoding = EncodingConsole
		}
	}
	if c.Sampling.Initial > 0 && c.Sampling.Thereafter <= 0 {
		c.Sampling.Thereafter = c.Sampling.Initial
	}
}

func (c Config) validate() error {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(c.Level)); err != nil {
		return fmt.Errorf("logger: invalid level %q: %w", c.Level, err)
	}
	switch c.Encoding {
	case EncodingJSON, EncodingConsole:
	default:
		return fmt.Errorf("logger: invalid encoding %q", c.Encoding)
	}
	if c.Sampling.Initial < 0 {
		return fmt.Errorf("logger: sampling.initial must be >= 0")
	}
	return nil
}

// -----------------------------------------------------------------------------
// Logger wrapper
// -----------------------------------------------------------------------------

// Logger — тонкая обёртка над *zap.Logger.
type Logger struct {
	raw *zap.Logger
}

// New создаёт Logger по заданному Config.
func New(cfg Config) (*Logger, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	zapCfg, err := buildZapConfig(cfg)
	if err != nil {
		return nil, err
	}

	zl, err := zapCfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, fmt.Errorf("logger: build zap: %w", err)
	}
	return &Logger{raw: zl}, nil
}

// NewNop возвращает логгер, который ничего не пишет. Удобно в тестах.
func NewNop() *Logger {
	return &Logger{raw: zap.NewNop()}
}

// FromZap оборачивает готовый *zap.Logger (например, zaptest/observer в тестах).
func FromZap(zl *zap.Logger) *Logger {
	return &Logger{raw: zl}
}

// -----------------------------------------------------------------------------
// Public methods
// -----------------------------------------------------------------------------

// Sync сбрасывает все буферы (ошибки игнорируются).
func (l *Logger) Sync() { _ = l.raw.Sync() }

// Named создаёт sub-logger с префиксом.
func (l *Logger) Named(name string) *Logger {
	return &Logger{raw: l.raw.Named(name)}
}

// With добавляет постоянные поля.
func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{raw: l.raw.With(fields...)}
}

// WithContext добавляет поля trace_id, request_id и session_id из контекста.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	fields := make([]zap.Field, 0, 3)
	for _, key := range []contextKey{traceIDKey, requestIDKey, sessionIDKey} {
		if v, ok := ctx.Value(key).(string); ok {
			fields = append(fields, zap.String(string(key), v))
		}
	}
	if len(fields) == 0 {
		return l
	}
	return &Logger{raw: l.raw.With(fields...)}
}

// Sugar возвращает SugaredLogger для printf-стиля.
func (l *Logger) Sugar() *zap.SugaredLogger {
	return l.raw.Sugar()
}

// Уровни
func (l *Logger) Debug(msg string, fields ...zap.Field) { l.raw.Debug(msg, fields...) }
func (l *Logger) Info(msg string, fields ...zap.Field)  { l.raw.Info(msg, fields...) }
func (l *Logger) Warn(msg string, fields ...zap.Field)  { l.raw.Warn(msg, fields...) }
func (l *Logger) Error(msg string, fields ...zap.Field) { l.raw.Error(msg, fields...) }

// -----------------------------------------------------------------------------
// Context helpers
// -----------------------------------------------------------------------------

// ContextWithTraceID возвращает новый контекст с trace-ID.
func ContextWithTraceID(ctx context.Context, tid string) context.Context {
	return context.WithValue(ctx, traceIDKey, tid)
}

// ContextWithRequestID возвращает новый контекст с request-ID.
func ContextWithRequestID(ctx context.Context, rid string) context.Context {
	return context.WithValue(ctx, requestIDKey, rid)
}

// ContextWithSessionID возвращает новый контекст с ID websocket-сессии.
func ContextWithSessionID(ctx context.Context, sid string) context.Context {
	return context.WithValue(ctx, sessionIDKey, sid)
}
