package utils

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	log  *zap.Logger
	once sync.Once
)

// LogFile is where the process logger writes besides stdout.
var LogFile = "flasharb.log"

// NewLogger builds a production logger writing to stdout and the given files.
func NewLogger(debug bool, files ...string) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	if debug {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}

	config.OutputPaths = append([]string{"stdout"}, files...)
	config.ErrorOutputPaths = []string{"stderr"}

	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.StacktraceKey = "stacktrace"

	return config.Build(
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
}

// InitLogger initializes the process-wide logger once.
func InitLogger(debug bool) *zap.Logger {
	once.Do(func() {
		logger, err := NewLogger(debug, LogFile)
		if err != nil {
			panic(err)
		}
		log = logger
	})

	return log
}

// GetLogger returns the process-wide logger
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
