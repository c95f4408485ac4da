package utils

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevelEnv overrides the level chosen by NewLogger, e.g. MEDSAGE_LOG_LEVEL=warn.
const LogLevelEnv = "MEDSAGE_LOG_LEVEL"

// NewLogger builds the process logger, named "medsage". Debug mode uses zap's development
// config with console output; otherwise JSON at info level.
func NewLogger(debug bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if debug {
		cfg = zap.NewDevelopmentConfig()
	}
	if lvl := os.Getenv(LogLevelEnv); lvl != "" {
		parsed, err := zapcore.ParseLevel(lvl)
		if err != nil {
			return nil, err
		}
		cfg.Level = zap.NewAtomicLevelAt(parsed)
	}
	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.Named("medsage"), nil
}
