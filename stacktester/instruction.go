package stacktester

import (
	"strings"

	"github.com/reusee/stacktester/tuples"
)

type Instruction struct {
	Op    Op
	Name  string
	Flags Flags
	// Arg is the single argument element of PUSH-like instructions
	Arg    any
	HasArg bool
}

func (i Instruction) String() string {
	if i.HasArg {
		return i.Name + " " + tuples.Format(i.Arg)
	}
	return i.Name
}

// Decode turns a stored instruction tuple into an Instruction.
func Decode(t tuples.Tuple) (ret Instruction, err error) {
	if len(t) == 0 {
		return ret, protocolError(ErrMalformed, "empty instruction tuple")
	}
	name, ok := t[0].(string)
	if !ok {
		if bs, isBytes := t[0].([]byte); isBytes {
			name = string(bs)
		} else {
			return ret, protocolError(ErrMalformed, "op name is %T", t[0])
		}
	}
	ret.Name = name

	canonical := name
	for _, s := range flagSuffixes {
		if trimmed, ok := strings.CutSuffix(canonical, s.suffix); ok {
			canonical = trimmed
			ret.Flags |= s.flag
		}
	}
	// selector and starts-with forms only exist for GET_RANGE and CLEAR_RANGE
	if ret.Flags.Has(FlagStartsWith) || ret.Flags.Has(FlagSelector) {
		switch canonical {
		case "GET_RANGE", "CLEAR_RANGE":
		default:
			return ret, protocolError(ErrUnknownOp, "%s", name)
		}
	}

	op, ok := opsByName[canonical]
	if !ok {
		return ret, protocolError(ErrUnknownOp, "%s", name)
	}
	ret.Op = op

	switch len(t) {
	case 1:
	case 2:
		ret.Arg = t[1]
		ret.HasArg = true
	default:
		ret.Arg = t[1:]
		ret.HasArg = true
	}

	if op == OpPush && !ret.HasArg {
		return ret, protocolError(ErrMalformed, "PUSH without argument")
	}
	return ret, nil
}

// MustDecode decodes a tuple literal and panics on failure.
func MustDecode(elems ...any) Instruction {
	inst, err := Decode(tuples.Tuple(elems))
	if err != nil {
		panic(err)
	}
	return inst
}
