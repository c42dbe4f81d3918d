package logs

import (
	"context"
	"errors"
	"fmt"
)

// SpanError is an error raised inside a span.
type SpanError struct {
	Span Span
	Err  error
}

func (s *SpanError) Error() string {
	return fmt.Sprintf("%v (span %s)", s.Err, s.Span)
}

func (s *SpanError) Unwrap() error {
	return s.Err
}

// WrapSpan attaches the span of ctx to err. The innermost span is kept when err already has one.
func WrapSpan(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	v := ctx.Value(SpanKey)
	if v == nil {
		return err
	}
	if _, ok := SpanOf(err); ok {
		return err
	}
	return &SpanError{
		Span: v.(Span),
		Err:  err,
	}
}

// SpanOf returns the span err was raised in.
func SpanOf(err error) (Span, bool) {
	var s *SpanError
	if errors.As(err, &s) {
		return s.Span, true
	}
	return "", false
}
