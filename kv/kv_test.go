package kv

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"
)

func TestApplyMutation(t *testing.T) {
	cases := []struct {
		name     string
		op       MutationType
		existing []byte
		present  bool
		param    []byte
		want     []byte
		wantOK   bool
	}{
		{"add missing", MutationAdd, nil, false, []byte{1}, []byte{1}, true},
		{"add carry", MutationAdd, []byte{0xff, 0x00}, true, []byte{0x01, 0x00}, []byte{0x00, 0x01}, true},
		{"add truncates", MutationAdd, []byte{1, 2, 3}, true, []byte{1}, []byte{2}, true},
		{"and extends with zero", MutationBitAnd, []byte{0xff}, true, []byte{0x0f, 0xff}, []byte{0x0f, 0x00}, true},
		{"or", MutationBitOr, []byte{0x01}, true, []byte{0x02, 0x04}, []byte{0x03, 0x04}, true},
		{"xor", MutationBitXor, []byte{0x03}, true, []byte{0x01}, []byte{0x02}, true},
		{"append", MutationAppendIfFits, []byte("ab"), true, []byte("c"), []byte("abc"), true},
		{"max", MutationMax, []byte{0x00, 0x01}, true, []byte{0xff, 0x00}, []byte{0x00, 0x01}, true},
		{"min", MutationMin, []byte{0x00, 0x01}, true, []byte{0xff, 0x00}, []byte{0xff, 0x00}, true},
		{"byte min", MutationByteMin, []byte("b"), true, []byte("a"), []byte("a"), true},
		{"byte max", MutationByteMax, []byte("b"), true, []byte("a"), []byte("b"), true},
		{"compare and clear equal", MutationCompareAndClear, []byte("x"), true, []byte("x"), nil, false},
		{"compare and clear differ", MutationCompareAndClear, []byte("x"), true, []byte("y"), []byte("x"), true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, ok, err := ApplyMutation(c.op, c.existing, c.present, c.param)
			if err != nil {
				t.Fatal(err)
			}
			if ok != c.wantOK || !bytes.Equal(got, c.want) {
				t.Fatalf("got %x %v", got, ok)
			}
		})
	}
}

func TestParseMutationType(t *testing.T) {
	op, ok := ParseMutationType("bit_and")
	if !ok || op != MutationBitAnd {
		t.Fatalf("got %v", op)
	}
	op, ok = ParseMutationType("AND")
	if !ok || op.String() != "BIT_AND" {
		t.Fatalf("got %v", op)
	}
	if _, ok := ParseMutationType("NOPE"); ok {
		t.Fatal()
	}
}

func TestError(t *testing.T) {
	err := error(Error{Code: CodeNotCommitted})
	e, ok := AsError(errors.Join(errors.New("foo"), err))
	if !ok || e.Code != CodeNotCommitted {
		t.Fatalf("got %v", e)
	}
	if !e.Retryable() {
		t.Fatal()
	}
	if (Error{Code: CodeTransactionCancelled}).Retryable() {
		t.Fatal()
	}
}

func TestFuture(t *testing.T) {
	f := Go(func() (int, error) {
		time.Sleep(time.Millisecond * 10)
		return 42, nil
	})
	v, err := f.Get(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if v != 42 || !f.IsReady() {
		t.Fatalf("got %v", v)
	}

	p := NewPromise[int]()
	if p.IsReady() {
		t.Fatal()
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Get(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v", err)
	}
	p.Set(1, nil)
	p.Set(2, nil)
	if v, _ := p.Get(context.Background()); v != 1 {
		t.Fatalf("got %v", v)
	}
}
