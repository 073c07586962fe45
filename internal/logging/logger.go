// Package logging builds the process logger.
package logging

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a zap logger at the given level. DEBUG selects the development
// encoder; anything else gets production JSON output.
func New(level string) (*zap.Logger, error) {
	if strings.EqualFold(level, "DEBUG") {
		return zap.NewDevelopment()
	}

	cfg := zap.NewProductionConfig()
	switch strings.ToUpper(level) {
	case "WARN":
		cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	case "ERROR":
		cfg.Level = zap.NewAtomicLevelAt(zapcore.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}
	return cfg.Build()
}
