package testutil

import "github.com/customeros/domainstack/internal/logger"

func NewTestLogger() logger.Logger {
	appLogger := logger.NewAppLogger(&logger.Config{
		DevMode:  true,
		LogLevel: "debug",
	})
	appLogger.InitLogger()
	return appLogger
}
