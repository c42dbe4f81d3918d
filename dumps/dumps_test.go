package dumps

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/reusee/stacktester/kv"
	"github.com/reusee/stacktester/memkv"
	"github.com/reusee/stacktester/tuples"
)

const sample = `Generating api test (seed 42)...
Thread at prefix b'test_spec':
  0. 'NEW_TRANSACTION'
  1. 'PUSH' b'foo\x00\xffbar'
  2. 'PUSH' -351
  3. 'PUSH' 'text\té'
  4. 'PUSH' 123456789012345678901234567890
  5. 'LOG_STACK'

Thread at prefix b'thread\x01':
  0. 'PUSH' b'it\'s'
`

func TestParse(t *testing.T) {
	dump, err := Parse(strings.NewReader(sample), []byte("default"))
	if err != nil {
		t.Fatal(err)
	}
	if dump.Name != "api test (seed 42)" {
		t.Fatalf("got %q", dump.Name)
	}
	if len(dump.Threads) != 2 {
		t.Fatalf("got %d threads", len(dump.Threads))
	}

	first := dump.Threads[0]
	if !bytes.Equal(first.Prefix, []byte("test_spec")) {
		t.Fatalf("got %q", first.Prefix)
	}
	if len(first.Instructions) != 6 {
		t.Fatalf("got %d", len(first.Instructions))
	}
	large, _ := new(big.Int).SetString("123456789012345678901234567890", 10)
	for i, expected := range []tuples.Tuple{
		{"NEW_TRANSACTION"},
		{"PUSH", []byte("foo\x00\xffbar")},
		{"PUSH", int64(-351)},
		{"PUSH", "text\té"},
		{"PUSH", large},
		{"LOG_STACK"},
	} {
		if !bytes.Equal(first.Instructions[i].Pack(), expected.Pack()) {
			t.Fatalf("instruction %d: got %v, want %v", i, first.Instructions[i], expected)
		}
	}

	second, ok := dump.Thread([]byte("thread\x01"))
	if !ok {
		t.Fatal()
	}
	if !bytes.Equal(second.Instructions[0].Pack(), tuples.Tuple{"PUSH", []byte("it's")}.Pack()) {
		t.Fatalf("got %v", second.Instructions[0])
	}
}

func TestParseDefaultPrefix(t *testing.T) {
	dump, err := Parse(strings.NewReader("  0. 'PUSH' 1\n  1. 'POP'\n"), []byte("default"))
	if err != nil {
		t.Fatal(err)
	}
	if len(dump.Threads) != 1 || string(dump.Threads[0].Prefix) != "default" {
		t.Fatalf("got %+v", dump.Threads)
	}
	if len(dump.Threads[0].Instructions) != 2 {
		t.Fatal()
	}
}

func TestParseErrors(t *testing.T) {
	for _, line := range []string{
		"  'PUSH' 1",
		"  0. PUSH",
		"  0. 'PUSH' b'unterminated",
		"  0. 'PUSH' 'bad \\q escape'",
		"  0. 'PUSH' 1 2",
		"  0. 'PUSH' b'\\x4'",
	} {
		_, err := Parse(strings.NewReader(line), nil)
		if !errors.Is(err, ErrSyntax) {
			t.Fatalf("%q: got %v", line, err)
		}
	}
}

func TestStore(t *testing.T) {
	dump, err := Parse(strings.NewReader(sample), nil)
	if err != nil {
		t.Fatal(err)
	}
	store := memkv.New()
	ctx := context.Background()
	if err := dump.Store(ctx, store); err != nil {
		t.Fatal(err)
	}

	begin, end := tuples.Tuple{[]byte("test_spec")}.Range()
	kvs, err := kv.Transact(ctx, store, func(tr kv.Transaction) ([]kv.KeyValue, error) {
		return tr.GetRange(kv.FirstGreaterOrEqual(begin), kv.FirstGreaterOrEqual(end), kv.RangeOptions{}).Get(ctx)
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(kvs) != 6 {
		t.Fatalf("got %d", len(kvs))
	}
	for i, pair := range kvs {
		if !bytes.Equal(pair.Key, tuples.Tuple{[]byte("test_spec"), int64(i)}.Pack()) {
			t.Fatalf("key %d: got %q", i, pair.Key)
		}
		if !bytes.Equal(pair.Value, dump.Threads[0].Instructions[i].Pack()) {
			t.Fatalf("value %d: got %q", i, pair.Value)
		}
	}
}
