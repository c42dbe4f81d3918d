package tuples

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"math/big"

	"github.com/google/uuid"
)

const (
	nilCode          = 0x00
	bytesCode        = 0x01
	stringCode       = 0x02
	nestedCode       = 0x05
	negIntStart      = 0x0b
	intZeroCode      = 0x14
	posIntEnd        = 0x1d
	floatCode        = 0x20
	doubleCode       = 0x21
	falseCode        = 0x26
	trueCode         = 0x27
	uuidCode         = 0x30
	versionstampCode = 0x33
)

var (
	ErrUnsupportedType  = errors.New("unsupported tuple element type")
	ErrNoVersionstamp   = errors.New("no incomplete versionstamp")
	ErrManyVersionstamp = errors.New("multiple incomplete versionstamps")
)

var maxUint64 = new(big.Int).SetUint64(math.MaxUint64)

type encoder struct {
	buf             []byte
	versionstampPos int
	versionstamps   int
}

// Pack encodes the tuple. It panics on unsupported element types.
func (t Tuple) Pack() []byte {
	ret, err := t.TryPack()
	if err != nil {
		panic(err)
	}
	return ret
}

func (t Tuple) TryPack() ([]byte, error) {
	e := new(encoder)
	if err := e.encodeTuple(t, false); err != nil {
		return nil, err
	}
	return e.buf, nil
}

// PackWithVersionstamp encodes the tuple after prefix and appends the little-endian offset of the
// single incomplete versionstamp, the layout expected by versionstamped-key mutations.
func (t Tuple) PackWithVersionstamp(prefix []byte) ([]byte, error) {
	e := &encoder{
		buf:             append([]byte{}, prefix...),
		versionstampPos: -1,
	}
	if err := e.encodeTuple(t, false); err != nil {
		return nil, err
	}
	switch {
	case e.versionstamps == 0:
		return nil, ErrNoVersionstamp
	case e.versionstamps > 1:
		return nil, ErrManyVersionstamp
	}
	return binary.LittleEndian.AppendUint32(e.buf, uint32(e.versionstampPos)), nil
}

// CountIncompleteVersionstamps counts placeholders in t and its nested tuples.
func (t Tuple) CountIncompleteVersionstamps() int {
	n := 0
	for _, elem := range t {
		switch v := elem.(type) {
		case Versionstamp:
			if !v.IsComplete() {
				n++
			}
		case Tuple:
			n += v.CountIncompleteVersionstamps()
		}
	}
	return n
}

func (e *encoder) encodeTuple(t Tuple, nested bool) error {
	if nested {
		e.buf = append(e.buf, nestedCode)
	}
	for i, elem := range t {
		if err := e.encode(elem, nested); err != nil {
			return fmt.Errorf("element %d: %w", i, err)
		}
	}
	if nested {
		e.buf = append(e.buf, 0x00)
	}
	return nil
}

func (e *encoder) encode(elem any, nested bool) error {
	switch v := elem.(type) {

	case nil:
		if nested {
			e.buf = append(e.buf, nilCode, 0xff)
		} else {
			e.buf = append(e.buf, nilCode)
		}

	case []byte:
		e.encodeBytes(bytesCode, v)

	case string:
		e.encodeBytes(stringCode, []byte(v))

	case Tuple:
		return e.encodeTuple(v, true)

	case bool:
		if v {
			e.buf = append(e.buf, trueCode)
		} else {
			e.buf = append(e.buf, falseCode)
		}

	case float32:
		e.buf = append(e.buf, floatCode)
		e.buf = binary.BigEndian.AppendUint32(e.buf, math.Float32bits(v))
		adjustFloatBytes(e.buf[len(e.buf)-4:], true)

	case float64:
		e.buf = append(e.buf, doubleCode)
		e.buf = binary.BigEndian.AppendUint64(e.buf, math.Float64bits(v))
		adjustFloatBytes(e.buf[len(e.buf)-8:], true)

	case uuid.UUID:
		e.buf = append(e.buf, uuidCode)
		e.buf = append(e.buf, v[:]...)

	case Versionstamp:
		e.buf = append(e.buf, versionstampCode)
		if !v.IsComplete() {
			e.versionstamps++
			e.versionstampPos = len(e.buf)
		}
		e.buf = append(e.buf, v.Bytes()...)

	case *big.Int:
		e.encodeBigInt(v)

	default:
		if i, ok := toInt64(elem); ok {
			e.encodeInt(i)
			return nil
		}
		if b, ok := ToBigInt(elem); ok {
			e.encodeBigInt(b)
			return nil
		}
		return fmt.Errorf("%w: %T", ErrUnsupportedType, elem)
	}

	return nil
}

func (e *encoder) encodeBytes(code byte, bs []byte) {
	e.buf = append(e.buf, code)
	for _, b := range bs {
		e.buf = append(e.buf, b)
		if b == 0x00 {
			e.buf = append(e.buf, 0xff)
		}
	}
	e.buf = append(e.buf, 0x00)
}

func byteLen(u uint64) int {
	n := 0
	for u > 0 {
		n++
		u >>= 8
	}
	return n
}

func (e *encoder) encodeUint(code byte, u uint64, n int) {
	e.buf = append(e.buf, code)
	for i := n - 1; i >= 0; i-- {
		e.buf = append(e.buf, byte(u>>(8*i)))
	}
}

func (e *encoder) encodeInt(i int64) {
	switch {
	case i == 0:
		e.buf = append(e.buf, intZeroCode)
	case i > 0:
		u := uint64(i)
		n := byteLen(u)
		e.encodeUint(byte(intZeroCode+n), u, n)
	default:
		u := uint64(-(i + 1)) + 1
		n := byteLen(u)
		e.encodeUint(byte(intZeroCode-n), onesComplement(u, n), n)
	}
}

func onesComplement(u uint64, n int) uint64 {
	if n == 8 {
		return ^u
	}
	mask := uint64(1)<<(8*n) - 1
	return mask - u
}

func (e *encoder) encodeBigInt(b *big.Int) {
	if b.IsInt64() {
		e.encodeInt(b.Int64())
		return
	}
	abs := new(big.Int).Abs(b)
	if abs.Cmp(maxUint64) <= 0 {
		u := abs.Uint64()
		if b.Sign() > 0 {
			e.encodeUint(intZeroCode+8, u, 8)
		} else {
			e.encodeUint(intZeroCode-8, ^u, 8)
		}
		return
	}
	bs := abs.Bytes()
	if b.Sign() > 0 {
		e.buf = append(e.buf, posIntEnd, byte(len(bs)))
		e.buf = append(e.buf, bs...)
		return
	}
	e.buf = append(e.buf, negIntStart, byte(len(bs))^0xff)
	for _, c := range bs {
		e.buf = append(e.buf, c^0xff)
	}
}

// adjustFloatBytes makes IEEE 754 bit patterns sort like the numbers they represent.
func adjustFloatBytes(bs []byte, encode bool) {
	if (encode && bs[0]&0x80 != 0) || (!encode && bs[0]&0x80 == 0) {
		for i := range bs {
			bs[i] ^= 0xff
		}
		return
	}
	bs[0] ^= 0x80
}
