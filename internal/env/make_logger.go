package env

import (
	zap "go.uber.org/zap"
)

// MakeLogger builds the process-wide logger the courier commands hand down
// to the messenger client and the status router.
func MakeLogger() (*zap.Logger, error) {
	logConfig := zap.NewProductionConfig()
	logConfig.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	logConfig.Encoding = "json"

	return logConfig.Build()
}
