package tuples

import (
	"bytes"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Tuple is an ordered heterogeneous sequence of elements.
// Supported element types: nil, []byte, string, int64 (and other Go integer types on input),
// *big.Int, float32, float64, bool, uuid.UUID, Tuple and Versionstamp.
type Tuple []any

func (t Tuple) String() string {
	buf := new(strings.Builder)
	buf.WriteByte('(')
	for i, elem := range t {
		if i > 0 {
			buf.WriteString(", ")
		}
		buf.WriteString(Format(elem))
	}
	if len(t) == 1 {
		buf.WriteByte(',')
	}
	buf.WriteByte(')')
	return buf.String()
}

// Format renders one element the way test logs print values.
func Format(elem any) string {
	switch v := elem.(type) {
	case nil:
		return "None"
	case []byte:
		return "b" + quoteBytes(v)
	case string:
		return quoteBytes([]byte(v))
	case bool:
		if v {
			return "True"
		}
		return "False"
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case *big.Int:
		return v.String()
	case uuid.UUID:
		return "UUID('" + v.String() + "')"
	case Tuple:
		return v.String()
	case Versionstamp:
		return v.String()
	}
	if i, ok := toInt64(elem); ok {
		return strconv.FormatInt(i, 10)
	}
	return fmt.Sprintf("%v", elem)
}

func quoteBytes(bs []byte) string {
	buf := new(strings.Builder)
	buf.WriteByte('\'')
	for _, b := range bs {
		switch {
		case b == '\'':
			buf.WriteString(`\'`)
		case b == '\\':
			buf.WriteString(`\\`)
		case b == '\n':
			buf.WriteString(`\n`)
		case b == '\r':
			buf.WriteString(`\r`)
		case b == '\t':
			buf.WriteString(`\t`)
		case b >= 0x20 && b < 0x7f:
			buf.WriteByte(b)
		default:
			fmt.Fprintf(buf, `\x%02x`, b)
		}
	}
	buf.WriteByte('\'')
	return buf.String()
}

// Equal reports whether two elements have the same encoded form.
func Equal(a, b any) bool {
	pa, err := Tuple{a}.TryPack()
	if err != nil {
		return false
	}
	pb, err := Tuple{b}.TryPack()
	if err != nil {
		return false
	}
	return bytes.Equal(pa, pb)
}

// Compare orders tuples by their packed representation.
func Compare(a, b Tuple) int {
	return bytes.Compare(a.Pack(), b.Pack())
}

// Range returns the key range strictly containing all tuples prefixed by t.
func (t Tuple) Range() (begin, end []byte) {
	packed := t.Pack()
	begin = append(append([]byte{}, packed...), 0x00)
	end = append(append([]byte{}, packed...), 0xff)
	return
}

// Strinc returns the first key that does not have prefix as a prefix.
func Strinc(prefix []byte) ([]byte, error) {
	n := len(prefix)
	for n > 0 && prefix[n-1] == 0xff {
		n--
	}
	if n == 0 {
		return nil, fmt.Errorf("key must contain at least one byte not equal to 0xff")
	}
	ret := append([]byte{}, prefix[:n]...)
	ret[n-1]++
	return ret, nil
}

func toInt64(v any) (int64, bool) {
	switch v := v.(type) {
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	}
	return 0, false
}

// ToBigInt converts any supported integer element to a big.Int.
func ToBigInt(v any) (*big.Int, bool) {
	if i, ok := toInt64(v); ok {
		return big.NewInt(i), true
	}
	switch v := v.(type) {
	case uint:
		return new(big.Int).SetUint64(uint64(v)), true
	case uint64:
		return new(big.Int).SetUint64(v), true
	case *big.Int:
		return new(big.Int).Set(v), true
	}
	return nil, false
}

// NormalizeInt returns an int64 when the value fits, the big.Int otherwise.
func NormalizeInt(b *big.Int) any {
	if b.IsInt64() {
		return b.Int64()
	}
	return b
}
