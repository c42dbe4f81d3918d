package stacktester

import (
	"context"
	"fmt"
	"math"
	"math/big"

	"github.com/reusee/stacktester/kv"
)

// pop removes the top item and waits for its value.
func (m *Machine) pop(ctx context.Context) (Result, error) {
	item, err := m.stack.Pop()
	if err != nil {
		return Result{}, err
	}
	return item.Resolve(ctx)
}

func (m *Machine) popValue(ctx context.Context) (any, error) {
	res, err := m.pop(ctx)
	if err != nil {
		return nil, err
	}
	return res.Value, nil
}

func (m *Machine) popValues(ctx context.Context, n int) ([]any, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: negative count %d", ErrMalformed, n)
	}
	ret := make([]any, 0, n)
	for range n {
		v, err := m.popValue(ctx)
		if err != nil {
			return nil, err
		}
		ret = append(ret, v)
	}
	return ret, nil
}

func (m *Machine) popBytes(ctx context.Context) ([]byte, error) {
	v, err := m.popValue(ctx)
	if err != nil {
		return nil, err
	}
	switch v := v.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	}
	return nil, fmt.Errorf("%w: want bytes, got %T", ErrTypeMismatch, v)
}

func (m *Machine) popString(ctx context.Context) (string, error) {
	bs, err := m.popBytes(ctx)
	if err != nil {
		return "", err
	}
	return string(bs), nil
}

func (m *Machine) popBigInt(ctx context.Context) (*big.Int, error) {
	v, err := m.popValue(ctx)
	if err != nil {
		return nil, err
	}
	switch v := v.(type) {
	case int64:
		return big.NewInt(v), nil
	case *big.Int:
		return v, nil
	case bool:
		if v {
			return big.NewInt(1), nil
		}
		return big.NewInt(0), nil
	}
	return nil, fmt.Errorf("%w: want integer, got %T", ErrTypeMismatch, v)
}

func (m *Machine) popInt(ctx context.Context) (int, error) {
	n, err := m.popBigInt(ctx)
	if err != nil {
		return 0, err
	}
	if !n.IsInt64() || n.Int64() > math.MaxInt || n.Int64() < math.MinInt {
		return 0, fmt.Errorf("%w: integer %s out of range", ErrTypeMismatch, n)
	}
	return int(n.Int64()), nil
}

func (m *Machine) popBool(ctx context.Context) (bool, error) {
	n, err := m.popBigInt(ctx)
	if err != nil {
		return false, err
	}
	return n.Sign() != 0, nil
}

// popSelector pops key, or_equal and offset in that order.
func (m *Machine) popSelector(ctx context.Context) (sel kv.KeySelector, err error) {
	if sel.Key, err = m.popBytes(ctx); err != nil {
		return
	}
	if sel.OrEqual, err = m.popBool(ctx); err != nil {
		return
	}
	if sel.Offset, err = m.popInt(ctx); err != nil {
		return
	}
	return
}

// popRangeOptions pops limit, reverse and streaming mode in that order.
func (m *Machine) popRangeOptions(ctx context.Context) (opts kv.RangeOptions, err error) {
	if opts.Limit, err = m.popInt(ctx); err != nil {
		return
	}
	if opts.Reverse, err = m.popBool(ctx); err != nil {
		return
	}
	mode, err := m.popInt(ctx)
	if err != nil {
		return
	}
	opts.Mode = kv.StreamingMode(mode)
	return
}
