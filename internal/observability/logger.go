package observability

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// InitLoggerWithService builds the service logger at the level chosen by
// LOG_LEVEL and ENV. See InitLoggerWithLevel.
func InitLoggerWithService(serviceName string) (*zap.Logger, error) {
	return InitLoggerWithLevel(LogLevel(), serviceName)
}

// InitLoggerWithLevel builds a JSON production logger writing to stderr,
// named and tagged with serviceName, and installs it as the global logger.
// Stdout stays free for command output and the MCP stdio transport.
func InitLoggerWithLevel(level zapcore.Level, serviceName string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.LevelKey = "level"
	cfg.EncoderConfig.NameKey = "logger"
	cfg.EncoderConfig.CallerKey = "caller"
	cfg.EncoderConfig.MessageKey = "msg"
	cfg.EncoderConfig.StacktraceKey = "stacktrace"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}

	logger = logger.Named(serviceName).With(zap.String("service", serviceName))
	zap.ReplaceGlobals(logger)
	return logger, nil
}

// LogLevel reads LOG_LEVEL (debug, info, warn, error). When it is unset or
// unknown, development environments log at debug and everything else at info.
func LogLevel() zapcore.Level {
	if v := strings.TrimSpace(os.Getenv("LOG_LEVEL")); v != "" {
		if lvl, err := zapcore.ParseLevel(v); err == nil {
			return lvl
		}
	}
	switch strings.ToLower(os.Getenv("ENV")) {
	case "development", "dev":
		return zapcore.DebugLevel
	default:
		return zapcore.InfoLevel
	}
}
