package logs

// Span identifies a unit of work in log records.
type Span string

type spanKey struct{}

var SpanKey spanKey
