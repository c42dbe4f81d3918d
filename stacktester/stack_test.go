package stacktester

import (
	"errors"
	"testing"
)

func pushInts(s *Stack, values ...int64) {
	for i, v := range values {
		s.Push(NewItem(i, v))
	}
}

func topValue(t *testing.T, s *Stack) any {
	t.Helper()
	item, err := s.Peek()
	if err != nil {
		t.Fatal(err)
	}
	res, ok := item.TryResolve()
	if !ok {
		t.Fatal("not resolved")
	}
	return res.Value
}

func TestStackLIFO(t *testing.T) {
	var s Stack
	// past the initial capacity
	var values []int64
	for i := range int64(20) {
		values = append(values, i)
	}
	pushInts(&s, values...)
	if s.Len() != 20 {
		t.Fatalf("got %d", s.Len())
	}
	for i := int64(19); i >= 0; i-- {
		item, err := s.Pop()
		if err != nil {
			t.Fatal(err)
		}
		res, _ := item.TryResolve()
		if res.Value != i {
			t.Fatalf("got %v, want %v", res.Value, i)
		}
	}
	if _, err := s.Pop(); !errors.Is(err, ErrEmptyStack) {
		t.Fatalf("got %v", err)
	}
	if _, ok := s.TryPop(); ok {
		t.Fatal()
	}
	if _, err := s.Peek(); !errors.Is(err, ErrEmptyStack) {
		t.Fatalf("got %v", err)
	}
}

func TestStackDup(t *testing.T) {
	var s Stack
	pushInts(&s, 1, 2)
	if err := s.Dup(); err != nil {
		t.Fatal(err)
	}
	if s.Len() != 3 {
		t.Fatalf("got %d", s.Len())
	}
	top, _ := s.At(0)
	below, _ := s.At(1)
	if top != below {
		t.Fatal("dup should share the item")
	}
	if topValue(t, &s) != int64(2) {
		t.Fatal()
	}
	if top.Index() != 1 {
		t.Fatalf("got %d", top.Index())
	}

	var empty Stack
	if err := empty.Dup(); !errors.Is(err, ErrEmptyStack) {
		t.Fatalf("got %v", err)
	}
}

func TestStackSwap(t *testing.T) {
	var s Stack
	pushInts(&s, 1, 2, 3, 4)
	before := s.Items()

	if err := s.Swap(0, 3); err != nil {
		t.Fatal(err)
	}
	if topValue(t, &s) != int64(1) {
		t.Fatal()
	}
	if err := s.Swap(0, 3); err != nil {
		t.Fatal(err)
	}
	after := s.Items()
	for i := range before {
		if before[i] != after[i] {
			t.Fatalf("position %d changed", i)
		}
	}

	if err := s.Swap(0, 4); !errors.Is(err, ErrSwapIndex) {
		t.Fatalf("got %v", err)
	}
	if err := s.Swap(-1, 0); !errors.Is(err, ErrSwapIndex) {
		t.Fatalf("got %v", err)
	}
	if err := s.Swap(2, 2); err != nil {
		t.Fatal(err)
	}
}

func TestStackItemsAndClear(t *testing.T) {
	var s Stack
	pushInts(&s, 10, 20, 30)
	items := s.Items()
	for i, expected := range []int64{10, 20, 30} {
		res, _ := items[i].TryResolve()
		if res.Value != expected {
			t.Fatalf("got %v", res.Value)
		}
	}
	if _, ok := s.At(3); ok {
		t.Fatal()
	}
	s.Clear()
	if s.Len() != 0 {
		t.Fatal()
	}
	// the snapshot is unaffected
	if len(items) != 3 {
		t.Fatal()
	}
}
