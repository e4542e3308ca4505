package utils

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log file names, written next to the working directory
const (
	LogFile      = "arbbot.log"
	ErrorLogFile = "arbbot-error.log"
)

var (
	log  *zap.Logger
	once sync.Once
)

// NewLoggerConfig returns the production config the bot logs with
func NewLoggerConfig(debug bool, outputs, errorOutputs []string) zap.Config {
	config := zap.NewProductionConfig()
	if debug {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}

	config.OutputPaths = outputs
	config.ErrorOutputPaths = errorOutputs

	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.StacktraceKey = "stacktrace"
	return config
}

// InitLogger initializes the global logger instance
func InitLogger(debug bool) *zap.Logger {
	once.Do(func() {
		config := NewLoggerConfig(debug,
			[]string{"stdout", LogFile},
			[]string{"stderr", ErrorLogFile},
		)

		logger, err := config.Build(
			zap.AddCaller(),
			zap.AddStacktrace(zapcore.ErrorLevel),
		)
		if err != nil {
			panic(err)
		}

		log = logger.With(zap.String("service", "arbbot"))
	})

	return log
}

// GetLogger returns the global logger instance
func GetLogger() *zap.Logger {
	if log == nil {
		return InitLogger(false)
	}
	return log
}

// CleanupLogger flushes any buffered log entries
func CleanupLogger() {
	if log != nil {
		_ = log.Sync()
	}
}
