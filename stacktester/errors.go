package stacktester

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrEmptyStack          = errors.New("empty stack")
	ErrUnknownOp           = errors.New("unknown op")
	ErrMalformed           = errors.New("malformed instruction")
	ErrNoTransaction       = errors.New("no transaction")
	ErrTransactionDisposed = errors.New("transaction disposed")
	ErrSwapIndex           = errors.New("swap index out of range")
	ErrTypeMismatch        = errors.New("type mismatch")
	ErrUnsupported         = errors.New("unsupported op")
	ErrUnitTests           = errors.New("unit tests failed")
)

// ProtocolError is a misuse of the machine. It aborts the run instead of becoming stack data.
type ProtocolError struct {
	Index int
	Op    string
	Err   error
}

func (p *ProtocolError) Error() string {
	return fmt.Sprintf("instruction %d (%s): %v", p.Index, p.Op, p.Err)
}

func (p *ProtocolError) Unwrap() error {
	return p.Err
}

// protocolError tags errors raised before the failing instruction is known
func protocolError(err error, format string, args ...any) error {
	return &ProtocolError{
		Index: -1,
		Err:   fmt.Errorf("%w: %s", err, fmt.Sprintf(format, args...)),
	}
}

// IsFatal reports whether err must stop the run.
func IsFatal(err error) bool {
	var p *ProtocolError
	return errors.As(err, &p) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
