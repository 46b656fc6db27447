// Package logging builds the zap logger shared by the commands.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a human-readable development logger for dev and test
// environments and a JSON production logger otherwise.
func New(env string) (*zap.Logger, error) {
	switch env {
	case "dev", "development", "test", "":
		cfg := zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return cfg.Build()
	default:
		return zap.NewProduction()
	}
}
