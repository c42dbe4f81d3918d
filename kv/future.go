package kv

import (
	"context"
	"sync"
)

// Future is the deferred result of a store operation.
type Future[T any] interface {
	// Get blocks until the result is available or ctx is done.
	Get(ctx context.Context) (T, error)
	// IsReady reports whether Get would return without blocking.
	IsReady() bool
}

type future[T any] struct {
	done  chan struct{}
	value T
	err   error
}

// Ready returns an already completed future.
func Ready[T any](value T, err error) Future[T] {
	f := &future[T]{
		done:  make(chan struct{}),
		value: value,
		err:   err,
	}
	close(f.done)
	return f
}

// Go runs fn in a new goroutine and returns a future of its result.
func Go[T any](fn func() (T, error)) Future[T] {
	f := &future[T]{
		done: make(chan struct{}),
	}
	go func() {
		defer close(f.done)
		f.value, f.err = fn()
	}()
	return f
}

// Promise is a future completed explicitly by its producer.
type Promise[T any] struct {
	*future[T]
	once sync.Once
}

func NewPromise[T any]() *Promise[T] {
	return &Promise[T]{
		future: &future[T]{
			done: make(chan struct{}),
		},
	}
}

// Set completes the promise. Only the first call has an effect.
func (p *Promise[T]) Set(value T, err error) {
	p.once.Do(func() {
		p.value = value
		p.err = err
		close(p.done)
	})
}

func (f *future[T]) Get(ctx context.Context) (ret T, err error) {
	select {
	case <-f.done:
		return f.value, f.err
	default:
	}
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		return ret, ctx.Err()
	}
}

func (f *future[T]) IsReady() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}
