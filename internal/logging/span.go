package logging

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Span times one unit of work and logs how it ended.
type Span struct {
	logger *slog.Logger
	start  time.Time
	err    error
}

// StartSpan opens a span under whatever span ctx already carries, minting a trace id for
// the first one. The returned context logs with the span's ids attached.
func StartSpan(ctx context.Context, name string) (context.Context, *Span) {
	if ctx == nil {
		ctx = context.Background()
	}

	parent := FieldsFromContext(ctx)
	attrs := []any{slog.String("span_name", name)}
	spanID := uuid.NewString()

	ctx = withFields(ctx, func(f *Fields) {
		if f.TraceID == "" {
			f.TraceID = uuid.NewString()
			attrs = append(attrs, slog.String("trace_id", f.TraceID))
		}
		f.SpanID = spanID
	})
	attrs = append(attrs, slog.String("span_id", spanID))
	if parent.SpanID != "" {
		attrs = append(attrs, slog.String("parent_span_id", parent.SpanID))
	}

	logger := FromContext(ctx).With(attrs...)
	return WithLogger(ctx, logger), &Span{logger: logger, start: time.Now()}
}

// Fail marks the span as failed with err.
func (s *Span) Fail(err error) {
	if s != nil {
		s.err = err
	}
}

// End logs the span's outcome and duration.
func (s *Span) End() {
	if s == nil {
		return
	}
	elapsed := slog.Duration("duration", time.Since(s.start))
	if s.err != nil {
		s.logger.Error("span failed", elapsed, slog.Any("error", s.err))
		return
	}
	s.logger.Info("span completed", elapsed)
}
