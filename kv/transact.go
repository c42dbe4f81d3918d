package kv

import (
	"context"
	"fmt"
	"time"
)

const (
	initialBackoff = time.Millisecond
	maxBackoff     = 100 * time.Millisecond
)

type TransactOption func(*transactOptions)

type transactOptions struct {
	maxRetries int
}

// MaxRetries bounds the number of retries; zero means unbounded.
func MaxRetries(n int) TransactOption {
	return func(o *transactOptions) {
		o.maxRetries = n
	}
}

// Transact runs fn in a transaction and commits it, retrying on retryable errors
// the way the store's client libraries do.
func Transact[T any](
	ctx context.Context,
	transactor Transactor,
	fn func(tr Transaction) (T, error),
	options ...TransactOption,
) (ret T, err error) {
	var opts transactOptions
	for _, option := range options {
		option(&opts)
	}

	tr, err := transactor.CreateTransaction()
	if err != nil {
		return ret, err
	}
	defer tr.Close()

	backoff := initialBackoff
	for retries := 0; ; retries++ {
		if err := ctx.Err(); err != nil {
			return ret, err
		}

		ret, err = fn(tr)
		if err == nil {
			_, err = tr.Commit().Get(ctx)
			if err == nil {
				return ret, nil
			}
		}
		if ctx.Err() != nil {
			return ret, ctx.Err()
		}

		if opts.maxRetries > 0 && retries >= opts.maxRetries {
			return ret, fmt.Errorf("transaction retry limit %d reached: %w", opts.maxRetries, err)
		}
		if _, onErr := tr.OnError(err).Get(ctx); onErr != nil {
			return ret, onErr
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ret, ctx.Err()
		case <-timer.C:
		}
		backoff = min(backoff*2, maxBackoff)
	}
}
