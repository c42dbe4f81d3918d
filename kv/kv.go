package kv

import (
	"context"
	"fmt"
)

type KeyValue struct {
	Key   []byte
	Value []byte
}

// KeySelector addresses the key Offset positions after the last key less than
// (or, with OrEqual, less than or equal to) Key.
type KeySelector struct {
	Key     []byte
	OrEqual bool
	Offset  int
}

func FirstGreaterOrEqual(key []byte) KeySelector {
	return KeySelector{Key: key, OrEqual: false, Offset: 1}
}

func FirstGreaterThan(key []byte) KeySelector {
	return KeySelector{Key: key, OrEqual: true, Offset: 1}
}

func LastLessThan(key []byte) KeySelector {
	return KeySelector{Key: key, OrEqual: false, Offset: 0}
}

func LastLessOrEqual(key []byte) KeySelector {
	return KeySelector{Key: key, OrEqual: true, Offset: 0}
}

func (s KeySelector) String() string {
	return fmt.Sprintf("KeySelector(%q, %v, %d)", s.Key, s.OrEqual, s.Offset)
}

type StreamingMode int

const (
	StreamingModeWantAll  StreamingMode = -2
	StreamingModeIterator StreamingMode = -1
	StreamingModeExact    StreamingMode = 0
	StreamingModeSmall    StreamingMode = 1
	StreamingModeMedium   StreamingMode = 2
	StreamingModeLarge    StreamingMode = 3
	StreamingModeSerial   StreamingMode = 4
)

func (m StreamingMode) Valid() bool {
	return m >= StreamingModeWantAll && m <= StreamingModeSerial
}

type RangeOptions struct {
	// Limit caps the number of returned pairs; 0 means no limit.
	Limit   int
	Reverse bool
	Mode    StreamingMode
}

type ReadTransaction interface {
	// Get resolves to nil when the key is absent.
	Get(key []byte) Future[[]byte]
	GetKey(sel KeySelector) Future[[]byte]
	GetRange(begin, end KeySelector, opts RangeOptions) Future[[]KeyValue]
	GetReadVersion() Future[int64]
	GetEstimatedRangeSize(begin, end []byte) Future[int64]
	GetRangeSplitPoints(begin, end []byte, chunkSize int64) Future[[][]byte]
}

type Transaction interface {
	ReadTransaction

	// Snapshot returns a view whose reads add no read conflict ranges.
	Snapshot() ReadTransaction

	Set(key, value []byte) error
	Clear(key []byte) error
	ClearRange(begin, end []byte) error
	Atomic(op MutationType, key, param []byte) error

	AddReadConflictRange(begin, end []byte) error
	AddWriteConflictRange(begin, end []byte) error
	// DisableNextWriteConflict excludes the next write from write conflict ranges.
	DisableNextWriteConflict()

	SetReadVersion(version int64) error
	GetCommittedVersion() (int64, error)
	GetVersionstamp() Future[[]byte]
	GetApproximateSize() Future[int64]

	Commit() Future[struct{}]
	// OnError resolves successfully, after resetting the transaction, when err is retryable.
	OnError(err error) Future[struct{}]
	Reset()
	Cancel()
	// Close releases the transaction; every later call fails with ErrTransactionClosed.
	Close()
}

type Transactor interface {
	CreateTransaction() (Transaction, error)
}

type Tenant interface {
	Transactor
	Name() []byte
}

type Database interface {
	Transactor
	OpenTenant(name []byte) (Tenant, error)
	CreateTenant(ctx context.Context, name []byte) error
	DeleteTenant(ctx context.Context, name []byte) error
}
