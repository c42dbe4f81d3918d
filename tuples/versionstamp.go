package tuples

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

type Versionstamp struct {
	TransactionVersion [10]byte
	UserVersion        uint16
}

var incompleteTransactionVersion = [10]byte{
	0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
}

// IncompleteVersionstamp returns a placeholder filled in by the store at commit time.
func IncompleteVersionstamp(userVersion uint16) Versionstamp {
	return Versionstamp{
		TransactionVersion: incompleteTransactionVersion,
		UserVersion:        userVersion,
	}
}

func (v Versionstamp) IsComplete() bool {
	return v.TransactionVersion != incompleteTransactionVersion
}

func (v Versionstamp) Bytes() []byte {
	ret := make([]byte, 12)
	copy(ret, v.TransactionVersion[:])
	binary.BigEndian.PutUint16(ret[10:], v.UserVersion)
	return ret
}

func (v Versionstamp) String() string {
	return fmt.Sprintf("Versionstamp(%s, %d)", hex.EncodeToString(v.TransactionVersion[:]), v.UserVersion)
}
