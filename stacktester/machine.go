package stacktester

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/reusee/stacktester/kv"
	"github.com/reusee/stacktester/logs"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultLogValueLimit = 40000
	DefaultLogBatchSize  = 100
)

// Machine interprets one instruction stream. It is not safe for concurrent use;
// threads started by START_THREAD get their own Machine.
type Machine struct {
	db     kv.Database
	prefix []byte

	stack       Stack
	registry    *Registry
	lastVersion int64
	threads     *errgroup.Group

	sink       RecordSink
	logger     logs.Logger
	newSpan    logs.NewSpan
	valueLimit int
	maxRetries int
}

type MachineOption func(*Machine)

func WithSink(sink RecordSink) MachineOption {
	return func(m *Machine) {
		m.sink = sink
	}
}

func WithLogger(logger logs.Logger) MachineOption {
	return func(m *Machine) {
		m.logger = logger
	}
}

func WithNewSpan(newSpan logs.NewSpan) MachineOption {
	return func(m *Machine) {
		m.newSpan = newSpan
	}
}

// WithLogValueLimit caps the packed size of logged stack values.
func WithLogValueLimit(n int) MachineOption {
	return func(m *Machine) {
		m.valueLimit = n
	}
}

// WithMaxRetries bounds retries of operations run directly against the database.
func WithMaxRetries(n int) MachineOption {
	return func(m *Machine) {
		m.maxRetries = n
	}
}

func NewMachine(db kv.Database, prefix []byte, options ...MachineOption) *Machine {
	m := &Machine{
		db:         db,
		prefix:     prefix,
		registry:   NewRegistry(db),
		logger:     slog.New(slog.DiscardHandler),
		valueLimit: DefaultLogValueLimit,
	}
	for _, option := range options {
		option(m)
	}
	if m.sink == nil {
		m.sink = &StoreSink{
			DB:         db,
			BatchSize:  DefaultLogBatchSize,
			MaxRetries: m.maxRetries,
		}
	}
	return m
}

// fork returns a machine sharing the database and configuration under another prefix
func (m *Machine) fork(prefix []byte) *Machine {
	return &Machine{
		db:         m.db,
		prefix:     prefix,
		registry:   NewRegistry(m.db),
		sink:       m.sink,
		logger:     m.logger,
		newSpan:    m.newSpan,
		valueLimit: m.valueLimit,
		maxRetries: m.maxRetries,
	}
}

func (m *Machine) Prefix() []byte {
	return m.prefix
}

func (m *Machine) Stack() *Stack {
	return &m.stack
}

func (m *Machine) Registry() *Registry {
	return m.registry
}

var protocolErrors = []error{
	ErrEmptyStack,
	ErrUnknownOp,
	ErrMalformed,
	ErrNoTransaction,
	ErrTransactionDisposed,
	ErrSwapIndex,
	ErrTypeMismatch,
	ErrUnsupported,
	ErrUnitTests,
}

func isProtocolError(err error) bool {
	for _, target := range protocolErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// Execute runs one instruction. A returned error is either fatal (see IsFatal) or
// a store or runtime failure that the driver turns into an error item.
func (m *Machine) Execute(ctx context.Context, inst Instruction, index int) (err error) {
	defer func() {
		if err == nil {
			return
		}
		var p *ProtocolError
		if errors.As(err, &p) {
			if p.Index < 0 {
				p.Index = index
				p.Op = inst.Name
			}
			return
		}
		if isProtocolError(err) {
			err = &ProtocolError{
				Index: index,
				Op:    inst.Name,
				Err:   err,
			}
		}
	}()

	if err := ctx.Err(); err != nil {
		return err
	}
	m.logger.DebugContext(ctx, "execute",
		"index", index,
		"instruction", inst,
	)

	switch inst.Op {

	case OpPush:
		return m.opPush(inst, index)
	case OpDup:
		return m.stack.Dup()
	case OpEmptyStack:
		m.stack.Clear()
		return nil
	case OpSwap:
		return m.opSwap(ctx)
	case OpPop:
		_, err := m.pop(ctx)
		return err
	case OpSub:
		return m.opSub(ctx, index)
	case OpConcat:
		return m.opConcat(ctx, index)
	case OpLogStack:
		return m.opLogStack(ctx)
	case OpWaitFuture:
		return m.opWaitFuture(ctx)

	case OpNewTransaction:
		return m.registry.NewTransaction()
	case OpUseTransaction:
		return m.opUseTransaction(ctx)
	case OpOnError:
		return m.opOnError(ctx, index)
	case OpGet:
		return m.opGet(ctx, inst, index)
	case OpGetKey:
		return m.opGetKey(ctx, inst, index)
	case OpGetRange:
		return m.opGetRange(ctx, inst, index)
	case OpGetReadVersion:
		return m.opGetReadVersion(ctx, inst, index)
	case OpSetReadVersion:
		return m.opSetReadVersion()
	case OpGetCommittedVersion:
		return m.opGetCommittedVersion(index)
	case OpGetApproximateSize:
		return m.opGetApproximateSize(ctx, index)
	case OpGetVersionstamp:
		return m.opGetVersionstamp(index)
	case OpGetEstimatedRangeSize:
		return m.opGetEstimatedRangeSize(ctx, inst, index)
	case OpGetRangeSplitPoints:
		return m.opGetRangeSplitPoints(ctx, inst, index)
	case OpSet:
		return m.opSet(ctx, inst, index)
	case OpClear:
		return m.opClear(ctx, inst, index)
	case OpClearRange:
		return m.opClearRange(ctx, inst, index)
	case OpAtomicOp:
		return m.opAtomic(ctx, inst, index)
	case OpReadConflictRange, OpWriteConflictRange:
		return m.opConflictRange(ctx, inst, index)
	case OpReadConflictKey, OpWriteConflictKey:
		return m.opConflictKey(ctx, inst, index)
	case OpDisableWriteConflict:
		return m.opDisableWriteConflict()
	case OpCommit:
		return m.opCommit(index)
	case OpReset:
		return m.opReset()
	case OpCancel:
		return m.opCancel()

	case OpTuplePack:
		return m.opTuplePack(ctx, index)
	case OpTuplePackWithVersionstamp:
		return m.opTuplePackWithVersionstamp(ctx, index)
	case OpTupleUnpack:
		return m.opTupleUnpack(ctx, index)
	case OpTupleRange:
		return m.opTupleRange(ctx, index)
	case OpTupleSort:
		return m.opTupleSort(ctx, index)
	case OpEncodeFloat:
		return m.opEncodeFloat(ctx, index, 4)
	case OpEncodeDouble:
		return m.opEncodeFloat(ctx, index, 8)
	case OpDecodeFloat:
		return m.opDecodeFloat(ctx, index, 4)
	case OpDecodeDouble:
		return m.opDecodeFloat(ctx, index, 8)

	case OpStartThread:
		return m.opStartThread(ctx)
	case OpWaitEmpty:
		return m.opWaitEmpty(ctx, index)
	case OpUnitTests:
		return m.opUnitTests(ctx)

	case OpTenantCreate:
		return m.opTenantCreate(ctx, index)
	case OpTenantDelete:
		return m.opTenantDelete(ctx, index)
	case OpTenantSetActive:
		return m.opTenantSetActive(ctx)
	case OpTenantClearActive:
		m.registry.SetTenant(nil)
		return nil

	case OpTenantList, OpTenantGetID,
		OpDirectoryCreateSubspace, OpDirectoryCreateLayer, OpDirectoryCreateOrOpen,
		OpDirectoryCreate, OpDirectoryOpen, OpDirectoryChange, OpDirectorySetErrorIndex,
		OpDirectoryMove, OpDirectoryMoveTo, OpDirectoryRemove, OpDirectoryRemoveIfExists,
		OpDirectoryList, OpDirectoryExists, OpDirectoryPackKey, OpDirectoryUnpackKey,
		OpDirectoryRange, OpDirectoryContains, OpDirectoryOpenSubspace,
		OpDirectoryLogSubspace, OpDirectoryLogDirectory, OpDirectoryStripPrefix:
		return fmt.Errorf("%w: %s", ErrUnsupported, inst.Op)

	}

	return fmt.Errorf("%w: %s", ErrUnknownOp, inst.Name)
}
