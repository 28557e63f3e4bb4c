package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a JSON SugaredLogger. Production logs at info and every
// other environment at debug. debug forces debug level everywhere.
func New(appEnv string, debug bool) (*zap.SugaredLogger, error) {
	var config zap.Config

	if appEnv == "production" {
		config = zap.NewProductionConfig()
	} else {
		config = zap.NewDevelopmentConfig()
	}
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.Encoding = "json"

	if debug {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}

	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return logger.Sugar(), nil
}

// Must is New that falls back to a production logger instead of failing.
func Must(appEnv string, debug bool) *zap.SugaredLogger {
	log, err := New(appEnv, debug)
	if err != nil {
		fallback, _ := zap.NewProduction()
		return fallback.Sugar()
	}
	return log
}

// WithRequest returns a child logger carrying request fields.
func WithRequest(log *zap.SugaredLogger, requestID, userID, endpoint string) *zap.SugaredLogger {
	return log.With(
		"request_id", requestID,
		"user_id", userID,
		"endpoint", endpoint,
	)
}
