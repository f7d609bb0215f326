// Package logging builds the service's slog loggers and carries
// per-request fields through context so every log line about a query can
// be tied back to the HTTP request, RPC tool and account it served.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

type ctxKey int

const (
	fieldsKey ctxKey = iota
	loggerKey
)

// fields are the request-scoped values L attaches to each record.
type fields struct {
	requestID string
	operation string
	account   string
}

func (f fields) attrs() []any {
	var out []any
	if f.requestID != "" {
		out = append(out, "request_id", f.requestID)
	}
	if f.operation != "" {
		out = append(out, "operation", f.operation)
	}
	if f.account != "" {
		out = append(out, "account", f.account)
	}
	return out
}

func fieldsFrom(ctx context.Context) fields {
	f, _ := ctx.Value(fieldsKey).(fields)
	return f
}

// ParseLevel maps LOG_LEVEL to a slog level. slog's own syntax is accepted
// ("debug", "WARN", "info+2"); anything unparseable means info.
func ParseLevel(level string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// New creates a logger on stdout.
func New(level, format string) *slog.Logger {
	return NewTo(os.Stdout, level, format)
}

// NewTo creates a logger on w. format "json" selects the JSON handler and
// anything else the text handler. The stdio RPC transport owns stdout, so
// it logs to stderr through this.
func NewTo(w io.Writer, level, format string) *slog.Logger {
	lvl := ParseLevel(level)
	opts := &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl <= slog.LevelDebug,
	}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// WithRequestID records the HTTP request ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	f := fieldsFrom(ctx)
	f.requestID = id
	return context.WithValue(ctx, fieldsKey, f)
}

// WithOperation records the RPC tool or REST route being served.
func WithOperation(ctx context.Context, op string) context.Context {
	f := fieldsFrom(ctx)
	f.operation = op
	return context.WithValue(ctx, fieldsKey, f)
}

// WithAccount records the account a query is about.
func WithAccount(ctx context.Context, account string) context.Context {
	f := fieldsFrom(ctx)
	f.account = account
	return context.WithValue(ctx, fieldsKey, f)
}

func RequestID(ctx context.Context) string { return fieldsFrom(ctx).requestID }

func Operation(ctx context.Context) string { return fieldsFrom(ctx).operation }

func Account(ctx context.Context) string { return fieldsFrom(ctx).account }

// WithLogger stores logger in ctx.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext returns the stored logger, or slog.Default.
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

// L returns the context's logger with its request fields attached.
func L(ctx context.Context) *slog.Logger {
	logger := FromContext(ctx)
	if attrs := fieldsFrom(ctx).attrs(); len(attrs) > 0 {
		return logger.With(attrs...)
	}
	return logger
}
