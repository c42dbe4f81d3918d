package stacktester

import (
	"context"
	"fmt"
	"math/big"

	"github.com/reusee/stacktester/tuples"
)

func (m *Machine) opPush(inst Instruction, index int) error {
	if !inst.HasArg {
		return fmt.Errorf("%w: PUSH without argument", ErrMalformed)
	}
	m.stack.Push(NewItem(index, inst.Arg))
	return nil
}

func (m *Machine) opSwap(ctx context.Context) error {
	depth, err := m.popInt(ctx)
	if err != nil {
		return err
	}
	return m.stack.Swap(0, depth)
}

func (m *Machine) opWaitFuture(ctx context.Context) error {
	item, err := m.stack.Peek()
	if err != nil {
		return err
	}
	_, err = item.Resolve(ctx)
	return err
}

func (m *Machine) opSub(ctx context.Context, index int) error {
	a, err := m.popBigInt(ctx)
	if err != nil {
		return err
	}
	b, err := m.popBigInt(ctx)
	if err != nil {
		return err
	}
	m.stack.Push(NewItem(index, tuples.NormalizeInt(new(big.Int).Sub(a, b))))
	return nil
}

// opConcat joins the first popped operand with the second, both of one kind.
func (m *Machine) opConcat(ctx context.Context, index int) error {
	a, err := m.popValue(ctx)
	if err != nil {
		return err
	}
	b, err := m.popValue(ctx)
	if err != nil {
		return err
	}

	switch a := a.(type) {
	case string:
		if b, ok := b.(string); ok {
			m.stack.Push(NewItem(index, a+b))
			return nil
		}
	case []byte:
		if b, ok := b.([]byte); ok {
			m.stack.Push(NewItem(index, append(append([]byte{}, a...), b...)))
			return nil
		}
	}
	return fmt.Errorf("%w: cannot concatenate %T and %T", ErrTypeMismatch, a, b)
}
