package tuples

import (
	"bytes"
	"errors"
	"math"
	"math/big"
	"sort"
	"testing"

	"github.com/google/uuid"
)

func TestPackKnownEncodings(t *testing.T) {
	cases := []struct {
		name  string
		tuple Tuple
		want  []byte
	}{
		{"nil", Tuple{nil}, []byte{0x00}},
		{"bytes", Tuple{[]byte("foo\x00bar")}, []byte("\x01foo\x00\xffbar\x00")},
		{"string", Tuple{"hello"}, []byte("\x02hello\x00")},
		{"zero", Tuple{0}, []byte{0x14}},
		{"one", Tuple{1}, []byte{0x15, 0x01}},
		{"minus one", Tuple{-1}, []byte{0x13, 0xfe}},
		{"256", Tuple{256}, []byte{0x16, 0x01, 0x00}},
		{"minus 256", Tuple{-256}, []byte{0x12, 0xfe, 0xff}},
		{"true", Tuple{true}, []byte{0x27}},
		{"nested with nil", Tuple{Tuple{nil, 1}}, []byte{0x05, 0x00, 0xff, 0x15, 0x01, 0x00}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := c.tuple.Pack()
			if !bytes.Equal(got, c.want) {
				t.Fatalf("got %x, want %x", got, c.want)
			}
		})
	}
}

func TestRoundTrip(t *testing.T) {
	huge, _ := new(big.Int).SetString("123456789012345678901234567890", 10)
	negHuge := new(big.Int).Neg(huge)
	id := uuid.MustParse("00112233-4455-6677-8899-aabbccddeeff")
	tuple := Tuple{
		nil,
		[]byte{0, 1, 2},
		"str",
		int64(math.MaxInt64),
		int64(math.MinInt64),
		new(big.Int).SetUint64(math.MaxUint64),
		huge,
		negHuge,
		float32(-1.5),
		3.25,
		false,
		id,
		Tuple{"a", nil, Tuple{}},
		Versionstamp{TransactionVersion: [10]byte{1, 2, 3}, UserVersion: 7},
	}
	got, err := Unpack(tuple.Pack())
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(tuple) {
		t.Fatalf("got %v", got)
	}
	for i := range tuple {
		if !Equal(got[i], tuple[i]) {
			t.Fatalf("element %d: got %s, want %s", i, Format(got[i]), Format(tuple[i]))
		}
	}
	if v, ok := got[3].(int64); !ok || v != math.MaxInt64 {
		t.Fatalf("got %#v", got[3])
	}
	if v, ok := got[5].(*big.Int); !ok || v.Cmp(new(big.Int).SetUint64(math.MaxUint64)) != 0 {
		t.Fatalf("got %#v", got[5])
	}
}

func TestOrderPreserving(t *testing.T) {
	values := []any{
		int64(-100000), int64(-1), int64(0), int64(1), int64(255), int64(256), int64(1 << 40),
	}
	var packed [][]byte
	for _, v := range values {
		packed = append(packed, Tuple{v}.Pack())
	}
	if !sort.SliceIsSorted(packed, func(i, j int) bool {
		return bytes.Compare(packed[i], packed[j]) < 0
	}) {
		t.Fatal("integers not ordered")
	}

	floats := []float64{math.Inf(-1), -2.5, -0.0, 0, 1e-9, 7, math.Inf(1)}
	packed = packed[:0]
	for _, f := range floats {
		packed = append(packed, Tuple{f}.Pack())
	}
	for i := 1; i < len(packed); i++ {
		if bytes.Compare(packed[i-1], packed[i]) > 0 {
			t.Fatalf("floats not ordered at %d", i)
		}
	}

	if Compare(Tuple{"a", 1}, Tuple{"a", 2}) >= 0 {
		t.Fatal()
	}
	if Compare(Tuple{[]byte("a")}, Tuple{"a"}) >= 0 {
		t.Fatal("bytes should sort before strings")
	}
}

func TestPackWithVersionstamp(t *testing.T) {
	prefix := []byte("pre")
	tuple := Tuple{"k", IncompleteVersionstamp(3)}
	if n := tuple.CountIncompleteVersionstamps(); n != 1 {
		t.Fatalf("got %d", n)
	}
	packed, err := tuple.PackWithVersionstamp(prefix)
	if err != nil {
		t.Fatal(err)
	}
	body := packed[:len(packed)-4]
	offset := int(packed[len(packed)-4]) | int(packed[len(packed)-3])<<8
	if !bytes.Equal(body[offset:offset+10], incompleteTransactionVersion[:]) {
		t.Fatalf("bad offset %d in %x", offset, packed)
	}
	if !bytes.HasPrefix(packed, prefix) {
		t.Fatalf("got %x", packed)
	}

	_, err = Tuple{"k"}.PackWithVersionstamp(nil)
	if !errors.Is(err, ErrNoVersionstamp) {
		t.Fatalf("got %v", err)
	}
	_, err = Tuple{IncompleteVersionstamp(0), Tuple{IncompleteVersionstamp(1)}}.PackWithVersionstamp(nil)
	if !errors.Is(err, ErrManyVersionstamp) {
		t.Fatalf("got %v", err)
	}
}

func TestUnpackErrors(t *testing.T) {
	if _, err := Unpack([]byte{0x01, 'a'}); !errors.Is(err, ErrTruncated) {
		t.Fatalf("got %v", err)
	}
	if _, err := Unpack([]byte{0x99}); !errors.Is(err, ErrUnknownCode) {
		t.Fatalf("got %v", err)
	}
	if _, err := (Tuple{struct{}{}}).TryPack(); !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("got %v", err)
	}
}

func TestRangeAndStrinc(t *testing.T) {
	begin, end := Tuple{"p"}.Range()
	inside := Tuple{"p", 1}.Pack()
	if bytes.Compare(begin, inside) >= 0 || bytes.Compare(inside, end) >= 0 {
		t.Fatalf("%x not in [%x, %x)", inside, begin, end)
	}

	got, err := Strinc([]byte{'a', 0xff, 0xff})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, []byte{'b'}) {
		t.Fatalf("got %x", got)
	}
	if _, err := Strinc([]byte{0xff}); err == nil {
		t.Fatal("should error")
	}
}

func TestString(t *testing.T) {
	got := Tuple{[]byte("a'b"), "c", 1, nil, true, Tuple{2}}.String()
	want := `(b'a\'b', 'c', 1, None, True, (2,))`
	if got != want {
		t.Fatalf("got %s", got)
	}
}
