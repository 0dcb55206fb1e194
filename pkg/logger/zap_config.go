// pkg/logger/zap_config.go
package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// buildZapConfig собирает zap.Config из Config, к которому уже применены
// значения по умолчанию. Ключи полей одинаковы для json и console, чтобы
// логи сессии можно было грепать в обоих режимах.
func buildZapConfig(cfg Config) (zap.Config, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(cfg.Level)); err != nil {
		return zap.Config{}, fmt.Errorf("logger: invalid level %q: %w", cfg.Level, err)
	}

	ec := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder, // задержки pacer'а читаются как "200ms"
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	if cfg.Encoding == EncodingConsole && cfg.DevMode {
		ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	zc := zap.Config{
		Level:             zap.NewAtomicLevelAt(lvl),
		Development:       cfg.DevMode,
		DisableStacktrace: !cfg.DevMode,
		Encoding:          cfg.Encoding,
		EncoderConfig:     ec,
		OutputPaths:       []string{"stderr"},
		ErrorOutputPaths:  []string{"stderr"},
	}
	// Ценовой поток пишет debug на каждый тик; семплинг ограничивает его в prod.
	if cfg.Sampling.Initial > 0 {
		zc.Sampling = &zap.SamplingConfig{
			Initial:    cfg.Sampling.Initial,
			Thereafter: cfg.Sampling.Thereafter,
		}
	}
	return zc, nil
}
