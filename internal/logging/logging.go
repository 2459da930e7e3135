// Package logging builds the zap logger from the configured verbosity.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level maps the 0-5 verbosity scale to a zap level:
//
//	0 - errors only
//	1 - warnings
//	2, 3 - bookings, cancellations and tickets
//	4, 5 - everything, including rejected requests and slot checks
func Level(verbosity int) zapcore.Level {
	switch {
	case verbosity <= 0:
		return zap.ErrorLevel
	case verbosity == 1:
		return zap.WarnLevel
	case verbosity <= 3:
		return zap.InfoLevel
	default:
		return zap.DebugLevel
	}
}

func New(verbosity int, production bool) (*zap.Logger, error) {
	var cfg zap.Config
	if production {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg.Level = zap.NewAtomicLevelAt(Level(verbosity))
	return cfg.Build()
}
