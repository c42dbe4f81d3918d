package stacktester

import (
	"bytes"
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/reusee/stacktester/kv"
	"github.com/reusee/stacktester/tuples"
)

type countingPending struct {
	calls *atomic.Int64
	ready chan struct{}
	value any
	err   error
}

func (c countingPending) Wait(ctx context.Context) (any, error) {
	select {
	case <-c.ready:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	c.calls.Add(1)
	return c.value, c.err
}

func (c countingPending) Ready() bool {
	select {
	case <-c.ready:
		return true
	default:
		return false
	}
}

func TestResolveMemoization(t *testing.T) {
	calls := new(atomic.Int64)
	ready := make(chan struct{})
	item := NewPendingItem(3, countingPending{
		calls: calls,
		ready: ready,
		value: []byte("foo"),
	})

	if _, ok := item.TryResolve(); ok {
		t.Fatal("should not be ready")
	}
	close(ready)

	ctx := context.Background()
	first, err := item.Resolve(ctx)
	if err != nil {
		t.Fatal(err)
	}
	second, err := item.Resolve(ctx)
	if err != nil {
		t.Fatal(err)
	}
	third, ok := item.TryResolve()
	if !ok {
		t.Fatal()
	}
	if calls.Load() != 1 {
		t.Fatalf("got %d calls", calls.Load())
	}
	for _, res := range []Result{second, third} {
		if !bytes.Equal(res.Value.([]byte), first.Value.([]byte)) || res.Index != 3 {
			t.Fatalf("got %+v", res)
		}
	}
}

func TestResolveCancel(t *testing.T) {
	item := NewPendingItem(0, countingPending{
		calls: new(atomic.Int64),
		ready: make(chan struct{}),
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := item.Resolve(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v", err)
	}
	// still pending
	if _, ok := item.TryResolve(); ok {
		t.Fatal()
	}
}

func TestErrorMapping(t *testing.T) {
	for _, err := range []error{
		kv.Error{Code: kv.CodeNotCommitted},
		errors.New("boom"),
		context.Canceled,
	} {
		closed := make(chan struct{})
		close(closed)
		item := NewPendingItem(0, countingPending{
			calls: new(atomic.Int64),
			ready: closed,
			err:   err,
		})
		res, ok := item.TryResolve()
		if !ok {
			t.Fatal()
		}
		if res.Err == nil {
			t.Fatal("expecting error")
		}
		tuple, unpackErr := tuples.Unpack(res.Value.([]byte))
		if unpackErr != nil {
			t.Fatal(unpackErr)
		}
		if len(tuple) < 2 || len(tuple) > 3 {
			t.Fatalf("got %v", tuple)
		}
		if !bytes.Equal(tuple[0].([]byte), []byte("ERROR")) {
			t.Fatalf("got %v", tuple)
		}
	}

	value := ErrorValue(kv.Error{Code: kv.CodeNotCommitted})
	if !bytes.Equal(value, tuples.Tuple{[]byte("ERROR"), []byte("1020")}.Pack()) {
		t.Fatalf("got %q", value)
	}
	value = ErrorValue(errors.New("boom"))
	if !bytes.Equal(value, tuples.Tuple{[]byte("ERROR"), []byte("Internal Error"), []byte("boom")}.Pack()) {
		t.Fatalf("got %q", value)
	}
}

func TestNotPresent(t *testing.T) {
	closed := make(chan struct{})
	close(closed)
	item := NewPendingItem(0, countingPending{
		calls: new(atomic.Int64),
		ready: closed,
	})
	res, _ := item.TryResolve()
	if !bytes.Equal(res.Value.([]byte), []byte("RESULT_NOT_PRESENT")) {
		t.Fatalf("got %v", res.Value)
	}

	// pushed nil stays nil
	res, _ = NewItem(0, nil).TryResolve()
	if res.Value != nil {
		t.Fatalf("got %v", res.Value)
	}
}
