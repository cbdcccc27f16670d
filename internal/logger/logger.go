package logger

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/skybase-int/tarmac-sub003/internal/config"
)

const serviceName = "stakeflow"

func New(cfg config.LogConfig) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if err := level.Set(strings.ToLower(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	zc := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       cfg.Development,
		Encoding:          cfg.Encoding,
		DisableCaller:     cfg.DisableCaller,
		DisableStacktrace: cfg.DisableStacktrace,
		Sampling:          nil,
		EncoderConfig:     zap.NewProductionEncoderConfig(),
		OutputPaths:       []string{"stdout"},
		ErrorOutputPaths:  []string{"stderr"},
		InitialFields:     map[string]any{"service": serviceName},
	}

	switch cfg.Encoding {
	case "console":
		zc.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	case "json":
		zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	default:
		zc.Encoding = "json"
		zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	if cfg.Sampling {
		zc.Sampling = &zap.SamplingConfig{
			Initial:    100,
			Thereafter: 100,
		}
	}

	return zc.Build()
}

// ForOwner scopes a logger to one wallet's session.
func ForOwner(l *zap.Logger, owner string) *zap.Logger {
	if l == nil {
		return nil
	}
	return l.With(zap.String("owner", owner))
}
