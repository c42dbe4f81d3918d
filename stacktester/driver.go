package stacktester

import (
	"context"
	"errors"
	"iter"

	"github.com/reusee/stacktester/kv"
	"github.com/reusee/stacktester/logs"
	"github.com/reusee/stacktester/tuples"
	"golang.org/x/sync/errgroup"
)

const storedPageSize = 1000

// Run executes instructions in order, positions counting from zero, then waits for
// every thread the run started. Only fatal errors are returned; other failures are
// pushed as error items.
func (m *Machine) Run(ctx context.Context, instructions iter.Seq2[Instruction, error]) (err error) {
	if m.newSpan != nil {
		ctx, _ = m.newSpan(ctx, "", "prefix", m.prefix)
	}
	defer func() {
		if err != nil {
			err = logs.WrapSpan(ctx, err)
		}
	}()

	m.reset()
	if err := m.registry.UseTransaction(string(m.prefix)); err != nil {
		return err
	}
	m.logger.InfoContext(ctx, "run start",
		"prefix", m.prefix,
	)

	group, groupCtx := errgroup.WithContext(ctx)
	m.threads = group
	var count int
	group.Go(func() error {
		defer m.registry.Close()
		var err error
		count, err = m.run(groupCtx, instructions)
		return err
	})
	err = group.Wait()
	m.threads = nil

	m.logger.InfoContext(ctx, "run end",
		"prefix", m.prefix,
		"instructions", count,
		"error", err,
	)
	return err
}

func (m *Machine) RunInstructions(ctx context.Context, instructions []Instruction) error {
	return m.Run(ctx, func(yield func(Instruction, error) bool) {
		for _, inst := range instructions {
			if !yield(inst, nil) {
				return
			}
		}
	})
}

// RunStored runs the instructions stored under the machine's prefix.
func (m *Machine) RunStored(ctx context.Context) error {
	return m.Run(ctx, StoredInstructions(ctx, m.db, m.prefix))
}

func (m *Machine) reset() {
	m.stack.Clear()
	m.registry.Close()
	m.lastVersion = 0
}

func (m *Machine) run(ctx context.Context, instructions iter.Seq2[Instruction, error]) (int, error) {
	index := 0
	for inst, err := range instructions {
		if err != nil {
			var p *ProtocolError
			if errors.As(err, &p) && p.Index < 0 {
				p.Index = index
			}
			return index, err
		}
		if err := m.step(ctx, inst, index); err != nil {
			return index, err
		}
		index++
	}
	return index, nil
}

// step executes one instruction, turning non-fatal failures into error items.
func (m *Machine) step(ctx context.Context, inst Instruction, index int) error {
	err := m.Execute(ctx, inst, index)
	if err == nil {
		return nil
	}
	if IsFatal(err) {
		return err
	}
	m.logger.DebugContext(ctx, "error item",
		"index", index,
		"op", inst.Name,
		"error", err,
	)
	m.stack.Push(NewErrorItem(index, err))
	return nil
}

// StoredInstructions reads and decodes the instructions under prefix in key order, a page at a time.
func StoredInstructions(ctx context.Context, db kv.Transactor, prefix []byte) iter.Seq2[Instruction, error] {
	return func(yield func(Instruction, error) bool) {
		begin, end := tuples.Tuple{prefix}.Range()
		for {
			kvs, err := kv.Transact(ctx, db, func(tr kv.Transaction) ([]kv.KeyValue, error) {
				return tr.Snapshot().GetRange(
					kv.FirstGreaterOrEqual(begin),
					kv.FirstGreaterOrEqual(end),
					kv.RangeOptions{
						Limit: storedPageSize,
						Mode:  kv.StreamingModeWantAll,
					},
				).Get(ctx)
			})
			if err != nil {
				yield(Instruction{}, err)
				return
			}

			for _, pair := range kvs {
				t, err := tuples.Unpack(pair.Value)
				if err != nil {
					yield(Instruction{}, protocolError(ErrMalformed, "instruction at %q: %v", pair.Key, err))
					return
				}
				inst, err := Decode(t)
				if !yield(inst, err) || err != nil {
					return
				}
			}

			if len(kvs) < storedPageSize {
				return
			}
			begin = append(append([]byte{}, kvs[len(kvs)-1].Key...), 0x00)
		}
	}
}
