package stacktester

import (
	"context"
	"fmt"

	"github.com/reusee/stacktester/kv"
	"github.com/reusee/stacktester/tuples"
)

var waitedForEmpty = []byte("WAITED_FOR_EMPTY")

// opStartThread runs the instructions stored under the popped prefix in a new machine.
func (m *Machine) opStartThread(ctx context.Context) error {
	prefix, err := m.popBytes(ctx)
	if err != nil {
		return err
	}
	if m.threads == nil {
		return fmt.Errorf("%w: START_THREAD outside a run", ErrMalformed)
	}
	child := m.fork(prefix)
	m.threads.Go(func() error {
		return child.RunStored(ctx)
	})
	return nil
}

// opWaitEmpty blocks until no key starts with the popped prefix.
func (m *Machine) opWaitEmpty(ctx context.Context, index int) error {
	prefix, err := m.popBytes(ctx)
	if err != nil {
		return err
	}
	end, err := tuples.Strinc(prefix)
	if err != nil {
		return err
	}
	if _, err := kv.Transact(ctx, m.db, func(tr kv.Transaction) (struct{}, error) {
		kvs, err := tr.GetRange(
			kv.FirstGreaterOrEqual(prefix),
			kv.FirstGreaterOrEqual(end),
			kv.RangeOptions{Limit: 1},
		).Get(ctx)
		if err != nil {
			return struct{}{}, err
		}
		if len(kvs) > 0 {
			return struct{}{}, kv.Error{Code: kv.CodeNotCommitted}
		}
		return struct{}{}, nil
	}); err != nil {
		return err
	}
	m.stack.Push(NewItem(index, waitedForEmpty))
	return nil
}
