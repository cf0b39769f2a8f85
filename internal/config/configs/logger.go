package configs

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger configures the zap logger. Level is one of debug, info, warn or
// error; Format is "json" (production encoder) or "console".
type Logger struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"json"`
}

// ZapLevel converts the textual level. Unknown levels default to info.
func (c Logger) ZapLevel() zapcore.Level {
	switch strings.ToLower(c.Level) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error", "err":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Build returns a logger for the configured level and format.
func (c Logger) Build() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if strings.EqualFold(c.Format, "console") {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(c.ZapLevel())
	return cfg.Build()
}
