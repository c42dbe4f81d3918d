package stacktester

import (
	"context"
	"errors"
	"strconv"
	"sync"

	"github.com/reusee/stacktester/kv"
	"github.com/reusee/stacktester/tuples"
)

var (
	resultNotPresent = []byte("RESULT_NOT_PRESENT")
	errorTag         = []byte("ERROR")
	internalErrorTag = []byte("Internal Error")
)

// Pending is a computation whose value a stack item will hold.
type Pending interface {
	Wait(ctx context.Context) (any, error)
	Ready() bool
}

// Result is a resolved stack entry.
type Result struct {
	Value any
	Index int
	// Err is the failure that Value encodes, if any
	Err error
}

// Item is one stack slot, either resolved or pending.
type Item struct {
	index int

	mu       sync.Mutex
	resolved bool
	result   Result
	pending  Pending
}

func NewItem(index int, value any) *Item {
	return &Item{
		index:    index,
		resolved: true,
		result:   resolvedResult(index, value, nil),
	}
}

func NewPendingItem(index int, pending Pending) *Item {
	return &Item{
		index:   index,
		pending: pending,
	}
}

func NewErrorItem(index int, err error) *Item {
	return &Item{
		index:    index,
		resolved: true,
		result:   resolvedResult(index, nil, err),
	}
}

func (i *Item) Index() int {
	return i.index
}

// Resolve waits for the item's value. Only cancellation of ctx is returned as an error;
// every other failure becomes the item's value.
func (i *Item) Resolve(ctx context.Context) (Result, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.resolved {
		return i.result, nil
	}
	value, err := i.pending.Wait(ctx)
	if err != nil && ctx.Err() != nil && isContextError(err) {
		return Result{}, err
	}
	i.settle(value, err)
	return i.result, nil
}

// TryResolve resolves the item only if that does not block.
func (i *Item) TryResolve() (Result, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.resolved {
		return i.result, true
	}
	if !i.pending.Ready() {
		return Result{}, false
	}
	value, err := i.pending.Wait(context.Background())
	i.settle(value, err)
	return i.result, true
}

// a pending computation that produced nothing resolves to RESULT_NOT_PRESENT
func (i *Item) settle(value any, err error) {
	if value == nil {
		value = resultNotPresent
	}
	i.result = resolvedResult(i.index, value, err)
	i.resolved = true
	i.pending = nil
}

func resolvedResult(index int, value any, err error) Result {
	if err != nil {
		return Result{
			Value: ErrorValue(err),
			Index: index,
			Err:   err,
		}
	}
	return Result{
		Value: value,
		Index: index,
	}
}

// ErrorValue encodes a failure as the packed tuple scripts observe.
func ErrorValue(err error) []byte {
	if e, ok := kv.AsError(err); ok {
		return tuples.Tuple{
			errorTag,
			[]byte(strconv.Itoa(e.Code)),
		}.Pack()
	}
	return tuples.Tuple{
		errorTag,
		internalErrorTag,
		[]byte(err.Error()),
	}.Pack()
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

type futurePending[T any] struct {
	future  kv.Future[T]
	convert func(T) (any, error)
}

func pendingFuture[T any](future kv.Future[T], convert func(T) (any, error)) Pending {
	return futurePending[T]{
		future:  future,
		convert: convert,
	}
}

func (f futurePending[T]) Wait(ctx context.Context) (any, error) {
	v, err := f.future.Get(ctx)
	if err != nil {
		return nil, err
	}
	if f.convert == nil {
		return v, nil
	}
	return f.convert(v)
}

func (f futurePending[T]) Ready() bool {
	return f.future.IsReady()
}
