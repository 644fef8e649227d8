package logging

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type ctxKey struct{}

type Logger struct {
	*zap.Logger
}

// NewLogger builds a JSON production logger at the given level
func NewLogger(level string) (*Logger, error) {
	config := zap.NewProductionConfig()

	// Parse log level
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}
	config.Level = zap.NewAtomicLevelAt(zapLevel)

	logger, err := config.Build()
	if err != nil {
		return nil, err
	}

	return &Logger{logger}, nil
}

// NewConsole builds a human readable logger for command line use. Only
// warnings and errors are shown unless verbose is set.
func NewConsole(verbose bool) (*Logger, error) {
	config := zap.NewDevelopmentConfig()
	if !verbose {
		config.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	}
	config.DisableStacktrace = !verbose

	logger, err := config.Build()
	if err != nil {
		return nil, err
	}
	return &Logger{logger}, nil
}

// Nop returns a logger that discards everything
func Nop() *Logger {
	return &Logger{zap.NewNop()}
}

// ContextWithRequestID stores a request id for WithRequestID
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// RequestID returns the request id stored in ctx, if any
func RequestID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxKey{}).(string)
	return id, ok
}

func (l *Logger) WithRequestID(ctx context.Context) *zap.Logger {
	if reqID, ok := RequestID(ctx); ok {
		return l.With(zap.String("request_id", reqID))
	}
	return l.Logger
}
