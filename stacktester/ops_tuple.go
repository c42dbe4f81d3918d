package stacktester

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/reusee/stacktester/tuples"
	"github.com/samber/lo"
)

var (
	packedOK      = []byte("OK")
	errorNone     = []byte("ERROR: NONE")
	errorMultiple = []byte("ERROR: MULTIPLE")
)

// popTuple pops a count followed by that many elements.
func (m *Machine) popTuple(ctx context.Context) (tuples.Tuple, error) {
	n, err := m.popInt(ctx)
	if err != nil {
		return nil, err
	}
	values, err := m.popValues(ctx, n)
	if err != nil {
		return nil, err
	}
	return tuples.Tuple(values), nil
}

func (m *Machine) opTuplePack(ctx context.Context, index int) error {
	t, err := m.popTuple(ctx)
	if err != nil {
		return err
	}
	packed, err := t.TryPack()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTypeMismatch, err)
	}
	m.stack.Push(NewItem(index, packed))
	return nil
}

func (m *Machine) opTuplePackWithVersionstamp(ctx context.Context, index int) error {
	prefix, err := m.popBytes(ctx)
	if err != nil {
		return err
	}
	t, err := m.popTuple(ctx)
	if err != nil {
		return err
	}
	packed, err := t.PackWithVersionstamp(prefix)
	switch {
	case errors.Is(err, tuples.ErrNoVersionstamp):
		m.stack.Push(NewItem(index, errorNone))
		return nil
	case errors.Is(err, tuples.ErrManyVersionstamp):
		m.stack.Push(NewItem(index, errorMultiple))
		return nil
	case err != nil:
		return fmt.Errorf("%w: %v", ErrTypeMismatch, err)
	}
	m.stack.Push(NewItem(index, packedOK))
	m.stack.Push(NewItem(index, packed))
	return nil
}

func (m *Machine) opTupleUnpack(ctx context.Context, index int) error {
	packed, err := m.popBytes(ctx)
	if err != nil {
		return err
	}
	t, err := tuples.Unpack(packed)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	for _, elem := range t {
		m.stack.Push(NewItem(index, tuples.Tuple{elem}.Pack()))
	}
	return nil
}

func (m *Machine) opTupleRange(ctx context.Context, index int) error {
	t, err := m.popTuple(ctx)
	if err != nil {
		return err
	}
	if _, err := t.TryPack(); err != nil {
		return fmt.Errorf("%w: %v", ErrTypeMismatch, err)
	}
	begin, end := t.Range()
	m.stack.Push(NewItem(index, begin))
	m.stack.Push(NewItem(index, end))
	return nil
}

// opTupleSort sorts packed tuples by their element order and pushes them back packed.
func (m *Machine) opTupleSort(ctx context.Context, index int) error {
	values, err := m.popTuple(ctx)
	if err != nil {
		return err
	}
	unpacked := make([]tuples.Tuple, 0, len(values))
	for _, value := range values {
		packed, ok := value.([]byte)
		if !ok {
			return fmt.Errorf("%w: want packed tuple, got %T", ErrTypeMismatch, value)
		}
		t, err := tuples.Unpack(packed)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		unpacked = append(unpacked, t)
	}
	slices.SortStableFunc(unpacked, tuples.Compare)
	for _, packed := range lo.Map(unpacked, func(t tuples.Tuple, _ int) []byte {
		return t.Pack()
	}) {
		m.stack.Push(NewItem(index, packed))
	}
	return nil
}

// opEncodeFloat reads a big-endian IEEE 754 value of size bytes.
func (m *Machine) opEncodeFloat(ctx context.Context, index int, size int) error {
	bs, err := m.popBytes(ctx)
	if err != nil {
		return err
	}
	if len(bs) != size {
		return fmt.Errorf("%w: want %d bytes, got %d", ErrMalformed, size, len(bs))
	}
	if size == 4 {
		m.stack.Push(NewItem(index, math.Float32frombits(binary.BigEndian.Uint32(bs))))
	} else {
		m.stack.Push(NewItem(index, math.Float64frombits(binary.BigEndian.Uint64(bs))))
	}
	return nil
}

func (m *Machine) opDecodeFloat(ctx context.Context, index int, size int) error {
	v, err := m.popValue(ctx)
	if err != nil {
		return err
	}
	switch v := v.(type) {
	case float32:
		if size == 4 {
			m.stack.Push(NewItem(index, binary.BigEndian.AppendUint32(nil, math.Float32bits(v))))
			return nil
		}
	case float64:
		if size == 8 {
			m.stack.Push(NewItem(index, binary.BigEndian.AppendUint64(nil, math.Float64bits(v))))
			return nil
		}
	}
	return fmt.Errorf("%w: cannot decode %T as %d-byte float", ErrTypeMismatch, v, size)
}
