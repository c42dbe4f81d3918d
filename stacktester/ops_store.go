package stacktester

import (
	"bytes"
	"context"
	"fmt"

	"github.com/reusee/stacktester/kv"
	"github.com/reusee/stacktester/tuples"
)

var (
	gotReadVersion        = []byte("GOT_READ_VERSION")
	gotCommittedVersion   = []byte("GOT_COMMITTED_VERSION")
	gotApproximateSize    = []byte("GOT_APPROXIMATE_SIZE")
	gotEstimatedRangeSize = []byte("GOT_ESTIMATED_RANGE_SIZE")
	gotRangeSplitPoints   = []byte("GOT_RANGE_SPLIT_POINTS")
	setConflictRange      = []byte("SET_CONFLICT_RANGE")
	setConflictKey        = []byte("SET_CONFLICT_KEY")
)

type readyPending struct {
	value any
	err   error
}

func (r readyPending) Wait(context.Context) (any, error) {
	return r.value, r.err
}

func (r readyPending) Ready() bool {
	return true
}

func voidValue(struct{}) (any, error) {
	return nil, nil
}

func bytesValue(v []byte) (any, error) {
	if v == nil {
		return nil, nil
	}
	return v, nil
}

func (m *Machine) transactOptions() []kv.TransactOption {
	return []kv.TransactOption{
		kv.MaxRetries(m.maxRetries),
	}
}

// transactor returns the target of _DATABASE and _TENANT forms. direct is false
// for instructions that use the current named transaction.
func (m *Machine) transactor(inst Instruction) (_ kv.Transactor, direct bool, _ error) {
	switch {
	case inst.Flags.Has(FlagDatabase):
		return m.db, true, nil
	case inst.Flags.Has(FlagTenant):
		tenant := m.registry.Tenant()
		if tenant == nil {
			return nil, true, fmt.Errorf("%w: no active tenant", ErrNoTransaction)
		}
		return tenant, true, nil
	}
	return nil, false, nil
}

func reader(tr kv.Transaction, inst Instruction) kv.ReadTransaction {
	if inst.Flags.Has(FlagSnapshot) {
		return tr.Snapshot()
	}
	return tr
}

// read pushes the result of fn as a pending item. Direct forms run fn in their
// own retried transaction before pushing.
func (m *Machine) read(ctx context.Context, inst Instruction, index int, fn func(kv.ReadTransaction) Pending) error {
	transactor, direct, err := m.transactor(inst)
	if err != nil {
		return err
	}
	if direct {
		value, err := kv.Transact(ctx, transactor, func(tr kv.Transaction) (any, error) {
			return fn(reader(tr, inst)).Wait(ctx)
		}, m.transactOptions()...)
		if err != nil && ctx.Err() != nil {
			return ctx.Err()
		}
		m.stack.Push(NewPendingItem(index, readyPending{value: value, err: err}))
		return nil
	}
	tr, err := m.registry.Current()
	if err != nil {
		return err
	}
	m.stack.Push(NewPendingItem(index, fn(reader(tr, inst))))
	return nil
}

// readNow runs fn to completion against the instruction's target.
func (m *Machine) readNow(ctx context.Context, inst Instruction, fn func(kv.ReadTransaction) error) error {
	transactor, direct, err := m.transactor(inst)
	if err != nil {
		return err
	}
	if direct {
		_, err := kv.Transact(ctx, transactor, func(tr kv.Transaction) (struct{}, error) {
			return struct{}{}, fn(reader(tr, inst))
		}, m.transactOptions()...)
		return err
	}
	tr, err := m.registry.Current()
	if err != nil {
		return err
	}
	return fn(reader(tr, inst))
}

// write applies fn to the current transaction, or commits it directly and pushes
// RESULT_NOT_PRESENT for direct forms.
func (m *Machine) write(ctx context.Context, inst Instruction, index int, fn func(kv.Transaction) error) error {
	transactor, direct, err := m.transactor(inst)
	if err != nil {
		return err
	}
	if direct {
		_, err := kv.Transact(ctx, transactor, func(tr kv.Transaction) (struct{}, error) {
			return struct{}{}, fn(tr)
		}, m.transactOptions()...)
		if err != nil && ctx.Err() != nil {
			return ctx.Err()
		}
		m.stack.Push(NewPendingItem(index, readyPending{err: err}))
		return nil
	}
	tr, err := m.registry.Current()
	if err != nil {
		return err
	}
	return fn(tr)
}

func (m *Machine) opUseTransaction(ctx context.Context) error {
	name, err := m.popString(ctx)
	if err != nil {
		return err
	}
	return m.registry.UseTransaction(name)
}

func (m *Machine) opOnError(ctx context.Context, index int) error {
	code, err := m.popInt(ctx)
	if err != nil {
		return err
	}
	tr, err := m.registry.Current()
	if err != nil {
		return err
	}
	m.stack.Push(NewPendingItem(index, pendingFuture(tr.OnError(kv.Error{Code: code}), voidValue)))
	return nil
}

func (m *Machine) opGet(ctx context.Context, inst Instruction, index int) error {
	key, err := m.popBytes(ctx)
	if err != nil {
		return err
	}
	return m.read(ctx, inst, index, func(r kv.ReadTransaction) Pending {
		return pendingFuture(r.Get(key), bytesValue)
	})
}

// clampToPrefix keeps a resolved key within the keys having prefix.
func clampToPrefix(key, prefix []byte) []byte {
	if bytes.HasPrefix(key, prefix) {
		return key
	}
	if bytes.Compare(key, prefix) < 0 {
		return prefix
	}
	end, err := tuples.Strinc(prefix)
	if err != nil {
		return key
	}
	return end
}

func (m *Machine) opGetKey(ctx context.Context, inst Instruction, index int) error {
	sel, err := m.popSelector(ctx)
	if err != nil {
		return err
	}
	prefix, err := m.popBytes(ctx)
	if err != nil {
		return err
	}
	return m.read(ctx, inst, index, func(r kv.ReadTransaction) Pending {
		return pendingFuture(r.GetKey(sel), func(key []byte) (any, error) {
			return clampToPrefix(key, prefix), nil
		})
	})
}

func packRange(kvs []kv.KeyValue, prefix []byte) (any, error) {
	t := make(tuples.Tuple, 0, len(kvs)*2)
	for _, pair := range kvs {
		if prefix != nil && !bytes.HasPrefix(pair.Key, prefix) {
			continue
		}
		t = append(t, pair.Key, pair.Value)
	}
	return t.Pack(), nil
}

func (m *Machine) opGetRange(ctx context.Context, inst Instruction, index int) error {
	var begin, end kv.KeySelector
	var filter []byte

	switch {

	case inst.Flags.Has(FlagStartsWith):
		prefix, err := m.popBytes(ctx)
		if err != nil {
			return err
		}
		endKey, err := tuples.Strinc(prefix)
		if err != nil {
			return err
		}
		begin = kv.FirstGreaterOrEqual(prefix)
		end = kv.FirstGreaterOrEqual(endKey)

	case inst.Flags.Has(FlagSelector):
		var err error
		if begin, err = m.popSelector(ctx); err != nil {
			return err
		}
		if end, err = m.popSelector(ctx); err != nil {
			return err
		}

	default:
		beginKey, err := m.popBytes(ctx)
		if err != nil {
			return err
		}
		endKey, err := m.popBytes(ctx)
		if err != nil {
			return err
		}
		begin = kv.FirstGreaterOrEqual(beginKey)
		end = kv.FirstGreaterOrEqual(endKey)
	}

	opts, err := m.popRangeOptions(ctx)
	if err != nil {
		return err
	}
	if inst.Flags.Has(FlagSelector) {
		if filter, err = m.popBytes(ctx); err != nil {
			return err
		}
	}

	return m.read(ctx, inst, index, func(r kv.ReadTransaction) Pending {
		return pendingFuture(r.GetRange(begin, end, opts), func(kvs []kv.KeyValue) (any, error) {
			return packRange(kvs, filter)
		})
	})
}

func (m *Machine) opGetReadVersion(ctx context.Context, inst Instruction, index int) error {
	tr, err := m.registry.Current()
	if err != nil {
		return err
	}
	version, err := reader(tr, inst).GetReadVersion().Get(ctx)
	if err != nil {
		return err
	}
	m.lastVersion = version
	m.stack.Push(NewItem(index, gotReadVersion))
	return nil
}

func (m *Machine) opSetReadVersion() error {
	tr, err := m.registry.Current()
	if err != nil {
		return err
	}
	return tr.SetReadVersion(m.lastVersion)
}

func (m *Machine) opGetCommittedVersion(index int) error {
	tr, err := m.registry.Current()
	if err != nil {
		return err
	}
	version, err := tr.GetCommittedVersion()
	if err != nil {
		return err
	}
	m.lastVersion = version
	m.stack.Push(NewItem(index, gotCommittedVersion))
	return nil
}

func (m *Machine) opGetApproximateSize(ctx context.Context, index int) error {
	tr, err := m.registry.Current()
	if err != nil {
		return err
	}
	if _, err := tr.GetApproximateSize().Get(ctx); err != nil {
		return err
	}
	m.stack.Push(NewItem(index, gotApproximateSize))
	return nil
}

func (m *Machine) opGetVersionstamp(index int) error {
	tr, err := m.registry.Current()
	if err != nil {
		return err
	}
	m.stack.Push(NewPendingItem(index, pendingFuture(tr.GetVersionstamp(), bytesValue)))
	return nil
}

func (m *Machine) popKeyRange(ctx context.Context) (begin, end []byte, err error) {
	if begin, err = m.popBytes(ctx); err != nil {
		return
	}
	end, err = m.popBytes(ctx)
	return
}

func (m *Machine) opGetEstimatedRangeSize(ctx context.Context, inst Instruction, index int) error {
	begin, end, err := m.popKeyRange(ctx)
	if err != nil {
		return err
	}
	if err := m.readNow(ctx, inst, func(r kv.ReadTransaction) error {
		_, err := r.GetEstimatedRangeSize(begin, end).Get(ctx)
		return err
	}); err != nil {
		return err
	}
	m.stack.Push(NewItem(index, gotEstimatedRangeSize))
	return nil
}

func (m *Machine) opGetRangeSplitPoints(ctx context.Context, inst Instruction, index int) error {
	begin, end, err := m.popKeyRange(ctx)
	if err != nil {
		return err
	}
	chunkSize, err := m.popInt(ctx)
	if err != nil {
		return err
	}
	if err := m.readNow(ctx, inst, func(r kv.ReadTransaction) error {
		_, err := r.GetRangeSplitPoints(begin, end, int64(chunkSize)).Get(ctx)
		return err
	}); err != nil {
		return err
	}
	m.stack.Push(NewItem(index, gotRangeSplitPoints))
	return nil
}

func (m *Machine) opSet(ctx context.Context, inst Instruction, index int) error {
	key, err := m.popBytes(ctx)
	if err != nil {
		return err
	}
	value, err := m.popBytes(ctx)
	if err != nil {
		return err
	}
	return m.write(ctx, inst, index, func(tr kv.Transaction) error {
		return tr.Set(key, value)
	})
}

func (m *Machine) opClear(ctx context.Context, inst Instruction, index int) error {
	key, err := m.popBytes(ctx)
	if err != nil {
		return err
	}
	return m.write(ctx, inst, index, func(tr kv.Transaction) error {
		return tr.Clear(key)
	})
}

func (m *Machine) opClearRange(ctx context.Context, inst Instruction, index int) error {
	var begin, end []byte
	if inst.Flags.Has(FlagStartsWith) {
		prefix, err := m.popBytes(ctx)
		if err != nil {
			return err
		}
		begin = prefix
		if end, err = tuples.Strinc(prefix); err != nil {
			return err
		}
	} else {
		var err error
		if begin, end, err = m.popKeyRange(ctx); err != nil {
			return err
		}
	}
	return m.write(ctx, inst, index, func(tr kv.Transaction) error {
		return tr.ClearRange(begin, end)
	})
}

func (m *Machine) opAtomic(ctx context.Context, inst Instruction, index int) error {
	name, err := m.popString(ctx)
	if err != nil {
		return err
	}
	op, ok := kv.ParseMutationType(name)
	if !ok {
		return fmt.Errorf("%w: unknown mutation type %q", ErrMalformed, name)
	}
	key, err := m.popBytes(ctx)
	if err != nil {
		return err
	}
	param, err := m.popBytes(ctx)
	if err != nil {
		return err
	}
	return m.write(ctx, inst, index, func(tr kv.Transaction) error {
		return tr.Atomic(op, key, param)
	})
}

func (m *Machine) addConflictRange(op Op, begin, end []byte) error {
	tr, err := m.registry.Current()
	if err != nil {
		return err
	}
	switch op {
	case OpReadConflictRange, OpReadConflictKey:
		return tr.AddReadConflictRange(begin, end)
	default:
		return tr.AddWriteConflictRange(begin, end)
	}
}

func (m *Machine) opConflictRange(ctx context.Context, inst Instruction, index int) error {
	begin, end, err := m.popKeyRange(ctx)
	if err != nil {
		return err
	}
	if err := m.addConflictRange(inst.Op, begin, end); err != nil {
		return err
	}
	m.stack.Push(NewItem(index, setConflictRange))
	return nil
}

func (m *Machine) opConflictKey(ctx context.Context, inst Instruction, index int) error {
	key, err := m.popBytes(ctx)
	if err != nil {
		return err
	}
	end := append(append([]byte{}, key...), 0x00)
	if err := m.addConflictRange(inst.Op, key, end); err != nil {
		return err
	}
	m.stack.Push(NewItem(index, setConflictKey))
	return nil
}

func (m *Machine) opDisableWriteConflict() error {
	tr, err := m.registry.Current()
	if err != nil {
		return err
	}
	tr.DisableNextWriteConflict()
	return nil
}

func (m *Machine) opCommit(index int) error {
	tr, err := m.registry.Current()
	if err != nil {
		return err
	}
	m.stack.Push(NewPendingItem(index, pendingFuture(tr.Commit(), voidValue)))
	return nil
}

func (m *Machine) opReset() error {
	tr, err := m.registry.Current()
	if err != nil {
		return err
	}
	tr.Reset()
	return nil
}

func (m *Machine) opCancel() error {
	tr, err := m.registry.Current()
	if err != nil {
		return err
	}
	tr.Cancel()
	return nil
}
