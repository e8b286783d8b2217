// Package logging provides structured logging for the carbon data plane
// using the standard library's slog package: structured JSON for
// production, human-readable text for development, and context-carried
// correlation IDs (request, client/tenant, trace) threaded through every
// package that accepts an optional *slog.Logger.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"time"
)

// Format specifies the log output format.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

type contextKey string

const (
	loggerKey    contextKey = "carbonplane_logger"
	requestIDKey contextKey = "carbonplane_request_id"
	clientIDKey  contextKey = "carbonplane_client_id"
	traceIDKey   contextKey = "carbonplane_trace_id"
)

// Config holds logger configuration.
type Config struct {
	Level       slog.Level
	Format      Format
	Output      io.Writer
	AddSource   bool
	TimeFormat  string
	AppName     string
	Environment string
}

func (c *Config) applyDefaults() {
	if c.Format == "" {
		c.Format = FormatJSON
	}
	if c.Output == nil {
		c.Output = os.Stdout
	}
	if c.TimeFormat == "" {
		c.TimeFormat = time.RFC3339
	}
	if c.AppName == "" {
		c.AppName = "carbonplane"
	}
}

// New creates a new structured logger with the given configuration.
func New(cfg Config) *slog.Logger {
	cfg.applyDefaults()

	opts := &slog.HandlerOptions{
		Level:     cfg.Level,
		AddSource: cfg.AddSource,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if isSensitiveKey(a.Key) {
				return slog.String(a.Key, "[REDACTED]")
			}
			if a.Key == slog.TimeKey && cfg.Format == FormatText {
				if t, ok := a.Value.Any().(time.Time); ok {
					return slog.String(a.Key, t.Format(cfg.TimeFormat))
				}
			}
			return a
		},
	}

	var handler slog.Handler
	switch cfg.Format {
	case FormatText:
		handler = slog.NewTextHandler(cfg.Output, opts)
	default:
		handler = slog.NewJSONHandler(cfg.Output, opts)
	}

	if cfg.AppName != "" || cfg.Environment != "" {
		attrs := make([]slog.Attr, 0, 2)
		if cfg.AppName != "" {
			attrs = append(attrs, slog.String("app", cfg.AppName))
		}
		if cfg.Environment != "" {
			attrs = append(attrs, slog.String("env", cfg.Environment))
		}
		handler = handler.WithAttrs(attrs)
	}

	return slog.New(handler)
}

// NewFromEnv creates a logger configured from environment variables:
// CARBONPLANE_LOG_LEVEL, CARBONPLANE_LOG_FORMAT, CARBONPLANE_LOG_SOURCE.
func NewFromEnv() *slog.Logger {
	return New(Config{
		Level:       parseLogLevel(os.Getenv("CARBONPLANE_LOG_LEVEL")),
		Format:      parseLogFormat(os.Getenv("CARBONPLANE_LOG_FORMAT")),
		AddSource:   parseBool(os.Getenv("CARBONPLANE_LOG_SOURCE")),
		Environment: os.Getenv("CARBONPLANE_APP_ENV"),
	})
}

// Default returns a production-ready JSON logger.
func Default() *slog.Logger {
	return New(Config{Level: slog.LevelInfo, Format: FormatJSON})
}

// Development returns a development-friendly logger with text output.
func Development() *slog.Logger {
	return New(Config{Level: slog.LevelDebug, Format: FormatText, AddSource: true})
}

// NewContext returns a new context with the logger attached.
func NewContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext retrieves the logger from context, falling back to the
// package default.
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey).(*slog.Logger); ok && logger != nil {
		return logger
	}
	return slog.Default()
}

// WithRequestID attaches a request correlation ID.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	ctx = context.WithValue(ctx, requestIDKey, requestID)
	return NewContext(ctx, FromContext(ctx).With(slog.String("request_id", requestID)))
}

// WithClientID attaches the tenant (clientId) every core operation is
// scoped to, so every log line emitted downstream carries it without the
// caller having to repeat it.
func WithClientID(ctx context.Context, clientID string) context.Context {
	ctx = context.WithValue(ctx, clientIDKey, clientID)
	return NewContext(ctx, FromContext(ctx).With(slog.String("client_id", clientID)))
}

// WithTraceID attaches a distributed trace ID.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	ctx = context.WithValue(ctx, traceIDKey, traceID)
	return NewContext(ctx, FromContext(ctx).With(slog.String("trace_id", traceID)))
}

func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

func ClientIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(clientIDKey).(string); ok {
		return id
	}
	return ""
}

// Error logs an error with the caller's file/line attached.
func Error(logger *slog.Logger, msg string, err error, attrs ...slog.Attr) {
	if logger == nil {
		logger = slog.Default()
	}

	_, file, line, ok := runtime.Caller(1)
	if ok {
		attrs = append(attrs,
			slog.String("error", err.Error()),
			slog.String("error_file", file),
			slog.Int("error_line", line),
		)
	} else {
		attrs = append(attrs, slog.String("error", err.Error()))
	}

	args := make([]any, 0, len(attrs))
	for _, attr := range attrs {
		args = append(args, attr)
	}
	logger.Error(msg, args...)
}

// ErrorContext logs an error using the logger carried in ctx.
func ErrorContext(ctx context.Context, msg string, err error, attrs ...slog.Attr) {
	Error(FromContext(ctx), msg, err, attrs...)
}

var sensitiveKeys = map[string]bool{
	"password":      true,
	"passwd":        true,
	"secret":        true,
	"token":         true,
	"api_key":       true,
	"apikey":        true,
	"authorization": true,
	"auth":          true,
	"credential":    true,
	"private_key":   true,
	"access_token":  true,
	"refresh_token": true,
	"jwt":           true,
	"session":       true,
	"cookie":        true,
}

func isSensitiveKey(key string) bool {
	return sensitiveKeys[strings.ToLower(key)]
}

// AddSensitiveKey registers an additional field name to redact.
func AddSensitiveKey(key string) {
	sensitiveKeys[strings.ToLower(key)] = true
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func parseLogFormat(format string) Format {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "text", "console":
		return FormatText
	default:
		return FormatJSON
	}
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "on":
		return true
	default:
		return false
	}
}
