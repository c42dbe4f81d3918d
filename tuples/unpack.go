package tuples

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"math/big"

	"github.com/google/uuid"
)

var (
	ErrTruncated   = errors.New("truncated tuple")
	ErrUnknownCode = errors.New("unknown tuple type code")
)

func Unpack(bs []byte) (Tuple, error) {
	t, _, err := decodeTuple(bs, false)
	return t, err
}

func decodeTuple(bs []byte, nested bool) (ret Tuple, pos int, err error) {
	ret = Tuple{}
	for pos < len(bs) {
		if nested && bs[pos] == 0x00 {
			if pos+1 < len(bs) && bs[pos+1] == 0xff {
				ret = append(ret, nil)
				pos += 2
				continue
			}
			return ret, pos + 1, nil
		}
		elem, n, err := decode(bs[pos:])
		if err != nil {
			return nil, 0, fmt.Errorf("offset %d: %w", pos, err)
		}
		ret = append(ret, elem)
		pos += n
	}
	if nested {
		return nil, 0, ErrTruncated
	}
	return ret, pos, nil
}

func decode(bs []byte) (any, int, error) {
	code := bs[0]
	switch {

	case code == nilCode:
		return nil, 1, nil

	case code == bytesCode:
		v, n, err := decodeBytes(bs[1:])
		return v, n + 1, err

	case code == stringCode:
		v, n, err := decodeBytes(bs[1:])
		return string(v), n + 1, err

	case code == nestedCode:
		t, n, err := decodeTuple(bs[1:], true)
		return t, n + 1, err

	case code == negIntStart:
		if len(bs) < 2 {
			return nil, 0, ErrTruncated
		}
		n := int(bs[1] ^ 0xff)
		if len(bs) < 2+n {
			return nil, 0, ErrTruncated
		}
		mag := make([]byte, n)
		for i, c := range bs[2 : 2+n] {
			mag[i] = c ^ 0xff
		}
		b := new(big.Int).SetBytes(mag)
		return NormalizeInt(b.Neg(b)), 2 + n, nil

	case code == posIntEnd:
		if len(bs) < 2 {
			return nil, 0, ErrTruncated
		}
		n := int(bs[1])
		if len(bs) < 2+n {
			return nil, 0, ErrTruncated
		}
		return NormalizeInt(new(big.Int).SetBytes(bs[2 : 2+n])), 2 + n, nil

	case code > negIntStart && code < posIntEnd:
		return decodeInt(bs)

	case code == floatCode:
		if len(bs) < 5 {
			return nil, 0, ErrTruncated
		}
		raw := append([]byte{}, bs[1:5]...)
		adjustFloatBytes(raw, false)
		return math.Float32frombits(binary.BigEndian.Uint32(raw)), 5, nil

	case code == doubleCode:
		if len(bs) < 9 {
			return nil, 0, ErrTruncated
		}
		raw := append([]byte{}, bs[1:9]...)
		adjustFloatBytes(raw, false)
		return math.Float64frombits(binary.BigEndian.Uint64(raw)), 9, nil

	case code == falseCode:
		return false, 1, nil

	case code == trueCode:
		return true, 1, nil

	case code == uuidCode:
		if len(bs) < 17 {
			return nil, 0, ErrTruncated
		}
		id, err := uuid.FromBytes(bs[1:17])
		if err != nil {
			return nil, 0, err
		}
		return id, 17, nil

	case code == versionstampCode:
		if len(bs) < 13 {
			return nil, 0, ErrTruncated
		}
		var v Versionstamp
		copy(v.TransactionVersion[:], bs[1:11])
		v.UserVersion = binary.BigEndian.Uint16(bs[11:13])
		return v, 13, nil

	}
	return nil, 0, fmt.Errorf("%w: 0x%02x", ErrUnknownCode, code)
}

func decodeBytes(bs []byte) ([]byte, int, error) {
	ret := []byte{}
	for i := 0; i < len(bs); i++ {
		if bs[i] != 0x00 {
			ret = append(ret, bs[i])
			continue
		}
		if i+1 < len(bs) && bs[i+1] == 0xff {
			ret = append(ret, 0x00)
			i++
			continue
		}
		return ret, i + 1, nil
	}
	return nil, 0, ErrTruncated
}

func decodeInt(bs []byte) (any, int, error) {
	code := int(bs[0])
	if code == intZeroCode {
		return int64(0), 1, nil
	}
	n := code - intZeroCode
	neg := n < 0
	if neg {
		n = -n
	}
	if len(bs) < 1+n {
		return nil, 0, ErrTruncated
	}
	var u uint64
	for _, c := range bs[1 : 1+n] {
		u = u<<8 | uint64(c)
	}
	if !neg {
		if u <= math.MaxInt64 {
			return int64(u), 1 + n, nil
		}
		return new(big.Int).SetUint64(u), 1 + n, nil
	}
	mag := onesComplement(u, n)
	if mag <= 1<<63 {
		return -int64(mag-1) - 1, 1 + n, nil
	}
	b := new(big.Int).SetUint64(mag)
	return b.Neg(b), 1 + n, nil
}
