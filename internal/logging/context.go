package logging

import (
	"context"
	"log/slog"
)

type loggerKey struct{}

type fieldsKey struct{}

// Fields are the correlation ids carried through a request or background job.
type Fields struct {
	RequestID string
	TraceID   string
	SpanID    string
	UserID    string
}

// WithLogger stores logger on ctx. A nil logger leaves ctx untouched.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	if logger == nil {
		return ctx
	}
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext returns the scoped logger, or slog.Default() outside a request.
func FromContext(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
			return logger
		}
	}
	return slog.Default()
}

// FieldsFromContext returns the correlation ids recorded so far.
func FieldsFromContext(ctx context.Context) Fields {
	if ctx == nil {
		return Fields{}
	}
	f, _ := ctx.Value(fieldsKey{}).(Fields)
	return f
}

func withFields(ctx context.Context, update func(*Fields)) context.Context {
	f := FieldsFromContext(ctx)
	update(&f)
	return context.WithValue(ctx, fieldsKey{}, f)
}

// WithRequestID records the inbound request id.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return withFields(ctx, func(f *Fields) { f.RequestID = id })
}

func RequestIDFromContext(ctx context.Context) string { return FieldsFromContext(ctx).RequestID }

func TraceIDFromContext(ctx context.Context) string { return FieldsFromContext(ctx).TraceID }

func SpanIDFromContext(ctx context.Context) string { return FieldsFromContext(ctx).SpanID }

func UserIDFromContext(ctx context.Context) string { return FieldsFromContext(ctx).UserID }

// WithUser records the authenticated user and tags the scoped logger with it.
func WithUser(ctx context.Context, userID string) context.Context {
	if userID == "" {
		return ctx
	}
	ctx = withFields(ctx, func(f *Fields) { f.UserID = userID })
	return WithLogger(ctx, FromContext(ctx).With(slog.String("user_id", userID)))
}
