package kv

import "bytes"

// MaxValueSize bounds values written by any mutation.
const MaxValueSize = 100000

// ApplyMutation computes the value left by an atomic operation on an existing value.
// Versionstamped mutations are resolved by the store at commit time and are rejected here.
func ApplyMutation(op MutationType, existing []byte, present bool, param []byte) (value []byte, ok bool, err error) {
	if op == MutationCompareAndClear {
		if present && bytes.Equal(existing, param) {
			return nil, false, nil
		}
		return existing, present, nil
	}
	if !present {
		switch op {
		case MutationAdd, MutationBitAnd, MutationBitOr, MutationBitXor,
			MutationAppendIfFits, MutationMax, MutationMin,
			MutationByteMin, MutationByteMax:
			return clone(param), true, nil
		}
		return nil, false, Error{Code: CodeInvalidMutationType}
	}

	switch op {

	case MutationAdd:
		ret := make([]byte, len(param))
		carry := 0
		for i := range param {
			sum := int(param[i]) + carry
			if i < len(existing) {
				sum += int(existing[i])
			}
			ret[i] = byte(sum)
			carry = sum >> 8
		}
		return ret, true, nil

	case MutationBitAnd:
		ret := make([]byte, len(param))
		for i := range param {
			if i < len(existing) {
				ret[i] = existing[i] & param[i]
			}
		}
		return ret, true, nil

	case MutationBitOr:
		ret := make([]byte, len(param))
		for i := range param {
			ret[i] = param[i]
			if i < len(existing) {
				ret[i] |= existing[i]
			}
		}
		return ret, true, nil

	case MutationBitXor:
		ret := make([]byte, len(param))
		for i := range param {
			ret[i] = param[i]
			if i < len(existing) {
				ret[i] ^= existing[i]
			}
		}
		return ret, true, nil

	case MutationAppendIfFits:
		if len(existing)+len(param) > MaxValueSize {
			return existing, true, nil
		}
		return append(clone(existing), param...), true, nil

	case MutationMax, MutationMin:
		if len(param) == 0 {
			return []byte{}, true, nil
		}
		normalized := make([]byte, len(param))
		copy(normalized, existing)
		cmp := compareLittleEndian(normalized, param)
		if (op == MutationMax && cmp >= 0) || (op == MutationMin && cmp <= 0) {
			return normalized, true, nil
		}
		return clone(param), true, nil

	case MutationByteMin:
		if bytes.Compare(existing, param) <= 0 {
			return existing, true, nil
		}
		return clone(param), true, nil

	case MutationByteMax:
		if bytes.Compare(existing, param) >= 0 {
			return existing, true, nil
		}
		return clone(param), true, nil

	}

	return nil, false, Error{Code: CodeInvalidMutationType}
}

func compareLittleEndian(a, b []byte) int {
	for i := len(a) - 1; i >= 0; i-- {
		switch {
		case a[i] < b[i]:
			return -1
		case a[i] > b[i]:
			return 1
		}
	}
	return 0
}

func clone(bs []byte) []byte {
	return append([]byte{}, bs...)
}
