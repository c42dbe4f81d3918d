package dumps

import (
	"context"

	"github.com/reusee/e5"
	"github.com/reusee/stacktester/kv"
	"github.com/reusee/stacktester/tuples"
	"github.com/samber/lo"
)

var wrap = e5.Wrap.With(e5.WrapStacktrace)

const storeBatchSize = 1000

// Dump is a generated test printed as text.
type Dump struct {
	Name    string
	Threads []Thread
}

// Thread is the instruction sequence stored under one prefix.
type Thread struct {
	Prefix       []byte
	Instructions []tuples.Tuple
}

// Store writes every thread's instructions under (prefix, n) keys.
func (d *Dump) Store(ctx context.Context, db kv.Transactor) error {
	for _, thread := range d.Threads {
		type entry struct {
			n    int
			inst tuples.Tuple
		}
		entries := lo.Map(thread.Instructions, func(inst tuples.Tuple, n int) entry {
			return entry{n: n, inst: inst}
		})
		for _, batch := range lo.Chunk(entries, storeBatchSize) {
			if _, err := kv.Transact(ctx, db, func(tr kv.Transaction) (struct{}, error) {
				for _, e := range batch {
					value, err := e.inst.TryPack()
					if err != nil {
						return struct{}{}, err
					}
					key := tuples.Tuple{thread.Prefix, int64(e.n)}.Pack()
					if err := tr.Set(key, value); err != nil {
						return struct{}{}, err
					}
				}
				return struct{}{}, nil
			}); err != nil {
				return wrap(err)
			}
		}
	}
	return nil
}

// Thread returns the thread stored under prefix.
func (d *Dump) Thread(prefix []byte) (Thread, bool) {
	return lo.Find(d.Threads, func(t Thread) bool {
		return string(t.Prefix) == string(prefix)
	})
}
