package stacktester

import (
	"bytes"
	"context"
	"fmt"
	"iter"
	"testing"

	"github.com/reusee/stacktester/dumps"
	"github.com/reusee/stacktester/kv"
	"github.com/reusee/stacktester/tuples"
)

var testPrefix = []byte("test")

// script parses dump-format lines, numbering them in order, and decodes them lazily.
func script(t *testing.T, lines ...string) iter.Seq2[Instruction, error] {
	t.Helper()
	var parsed []tuples.Tuple
	for i, line := range lines {
		tuple, err := dumps.ParseInstruction(fmt.Sprintf("%d. %s", i, line))
		if err != nil {
			t.Fatalf("line %d: %v", i, err)
		}
		parsed = append(parsed, tuple)
	}
	return func(yield func(Instruction, error) bool) {
		for _, tuple := range parsed {
			if !yield(Decode(tuple)) {
				return
			}
		}
	}
}

func runScript(t *testing.T, db kv.Database, lines ...string) error {
	return NewMachine(db, testPrefix).Run(context.Background(), script(t, lines...))
}

type loggedRecord struct {
	position int64
	index    int64
	value    any
}

// logged reads the records LOG_STACK wrote under prefix.
func logged(t *testing.T, db kv.Transactor, prefix []byte) (ret []loggedRecord) {
	t.Helper()
	end, err := tuples.Strinc(prefix)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	kvs, err := kv.Transact(ctx, db, func(tr kv.Transaction) ([]kv.KeyValue, error) {
		return tr.GetRange(
			kv.FirstGreaterOrEqual(prefix),
			kv.FirstGreaterOrEqual(end),
			kv.RangeOptions{},
		).Get(ctx)
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, pair := range kvs {
		key, err := tuples.Unpack(bytes.TrimPrefix(pair.Key, prefix))
		if err != nil {
			t.Fatal(err)
		}
		value, err := tuples.Unpack(pair.Value)
		if err != nil {
			t.Fatal(err)
		}
		ret = append(ret, loggedRecord{
			position: key[0].(int64),
			index:    key[1].(int64),
			value:    value[0],
		})
	}
	return
}

func loggedValues(t *testing.T, db kv.Transactor, prefix []byte) []any {
	t.Helper()
	var ret []any
	for _, record := range logged(t, db, prefix) {
		ret = append(ret, record.value)
	}
	return ret
}

func formatValues(values []any) []string {
	ret := make([]string, 0, len(values))
	for _, v := range values {
		ret = append(ret, tuples.Format(v))
	}
	return ret
}
