package observability

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/digiurban/lifecycle/internal/config"
	"github.com/digiurban/lifecycle/model"
)

type loggerKey struct{}

// NewLogger creates a JSON zap.Logger writing to stdout.
//
// Level conventions:
//   - error: store failures, unhandled panics, 5xx responses
//   - warn:  4xx responses, event bus or idempotency store unavailable
//   - info:  lifecycle transitions, sweeps, definition loads
//   - debug: condition evaluation, idempotency cache decisions
func NewLogger(cfg config.ObservabilityConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zapcore.InfoLevel
	}

	zapCfg := zap.Config{
		Level:       zap.NewAtomicLevelAt(level),
		Development: false,
		Encoding:    "json",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "timestamp",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.LowercaseLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.MillisDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}
	return zapCfg.Build()
}

// WithLogger stores a logger in the context.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// LoggerFrom returns the context logger, or fallback.
func LoggerFrom(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok && l != nil {
		return l
	}
	return fallback
}

// RequestLogger returns the context logger enriched with the caller's
// subject, correlation and trace ids.
func RequestLogger(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	logger := LoggerFrom(ctx, fallback)

	rctx := model.RequestContextFrom(ctx)
	if rctx == nil {
		return logger
	}

	fields := []zap.Field{
		zap.String("subject_id", rctx.SubjectID),
		zap.String("correlation_id", rctx.CorrelationID),
	}
	if rctx.TraceID != "" {
		fields = append(fields, zap.String("trace_id", rctx.TraceID))
	}
	return logger.With(fields...)
}

// defaultSensitiveFields are always redacted. Citizen identity numbers are
// included alongside the usual credential names.
var defaultSensitiveFields = map[string]bool{
	"password":      true,
	"secret":        true,
	"token":         true,
	"access_token":  true,
	"refresh_token": true,
	"api_key":       true,
	"authorization": true,
	"cpf":           true,
	"rg":            true,
	"nomeMae":       true,
	"rendaFamiliar": true,
}

// RedactBody returns a copy of body with sensitive fields replaced by
// "[REDACTED]". Nested objects and arrays of objects are walked.
func RedactBody(body map[string]any, sensitiveFields []string) map[string]any {
	if body == nil {
		return nil
	}
	redact := make(map[string]bool, len(defaultSensitiveFields)+len(sensitiveFields))
	for k := range defaultSensitiveFields {
		redact[k] = true
	}
	for _, f := range sensitiveFields {
		redact[f] = true
	}
	return redactMap(body, redact)
}

func redactMap(body map[string]any, redact map[string]bool) map[string]any {
	out := make(map[string]any, len(body))
	for k, v := range body {
		if redact[k] {
			out[k] = "[REDACTED]"
			continue
		}
		out[k] = redactValue(v, redact)
	}
	return out
}

func redactValue(v any, redact map[string]bool) any {
	switch t := v.(type) {
	case map[string]any:
		return redactMap(t, redact)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = redactValue(e, redact)
		}
		return out
	}
	return v
}
