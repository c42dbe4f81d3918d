package kv

import "strings"

type MutationType int

const (
	MutationAdd MutationType = iota + 1
	MutationBitAnd
	MutationBitOr
	MutationBitXor
	MutationAppendIfFits
	MutationMax
	MutationMin
	MutationSetVersionstampedKey
	MutationSetVersionstampedValue
	MutationByteMin
	MutationByteMax
	MutationCompareAndClear
)

var mutationNames = map[string]MutationType{
	"ADD":                      MutationAdd,
	"BIT_AND":                  MutationBitAnd,
	"AND":                      MutationBitAnd,
	"BIT_OR":                   MutationBitOr,
	"OR":                       MutationBitOr,
	"BIT_XOR":                  MutationBitXor,
	"XOR":                      MutationBitXor,
	"APPEND_IF_FITS":           MutationAppendIfFits,
	"MAX":                      MutationMax,
	"MIN":                      MutationMin,
	"SET_VERSIONSTAMPED_KEY":   MutationSetVersionstampedKey,
	"SET_VERSIONSTAMPED_VALUE": MutationSetVersionstampedValue,
	"BYTE_MIN":                 MutationByteMin,
	"BYTE_MAX":                 MutationByteMax,
	"COMPARE_AND_CLEAR":        MutationCompareAndClear,
}

// ParseMutationType maps the instruction-stream name of an atomic operation.
func ParseMutationType(name string) (MutationType, bool) {
	t, ok := mutationNames[strings.ToUpper(name)]
	return t, ok
}

var canonicalMutationNames = []string{
	MutationAdd:                    "ADD",
	MutationBitAnd:                 "BIT_AND",
	MutationBitOr:                  "BIT_OR",
	MutationBitXor:                 "BIT_XOR",
	MutationAppendIfFits:           "APPEND_IF_FITS",
	MutationMax:                    "MAX",
	MutationMin:                    "MIN",
	MutationSetVersionstampedKey:   "SET_VERSIONSTAMPED_KEY",
	MutationSetVersionstampedValue: "SET_VERSIONSTAMPED_VALUE",
	MutationByteMin:                "BYTE_MIN",
	MutationByteMax:                "BYTE_MAX",
	MutationCompareAndClear:        "COMPARE_AND_CLEAR",
}

func (m MutationType) String() string {
	if m > 0 && int(m) < len(canonicalMutationNames) {
		return canonicalMutationNames[m]
	}
	return "UNKNOWN"
}
