package stacktester

type Op uint8

const (
	OpPush Op = iota + 1
	OpDup
	OpEmptyStack
	OpSwap
	OpPop
	OpSub
	OpConcat
	OpLogStack

	OpNewTransaction
	OpUseTransaction
	OpOnError
	OpGet
	OpGetKey
	OpGetRange
	OpGetReadVersion
	OpSetReadVersion
	OpGetCommittedVersion
	OpGetApproximateSize
	OpGetVersionstamp
	OpGetEstimatedRangeSize
	OpGetRangeSplitPoints
	OpSet
	OpClear
	OpClearRange
	OpAtomicOp
	OpReadConflictRange
	OpWriteConflictRange
	OpReadConflictKey
	OpWriteConflictKey
	OpDisableWriteConflict
	OpCommit
	OpReset
	OpCancel
	OpWaitFuture

	OpTuplePack
	OpTuplePackWithVersionstamp
	OpTupleUnpack
	OpTupleRange
	OpTupleSort
	OpEncodeFloat
	OpEncodeDouble
	OpDecodeFloat
	OpDecodeDouble

	OpStartThread
	OpWaitEmpty
	OpUnitTests

	OpTenantCreate
	OpTenantDelete
	OpTenantSetActive
	OpTenantClearActive
	OpTenantList
	OpTenantGetID

	OpDirectoryCreateSubspace
	OpDirectoryCreateLayer
	OpDirectoryCreateOrOpen
	OpDirectoryCreate
	OpDirectoryOpen
	OpDirectoryChange
	OpDirectorySetErrorIndex
	OpDirectoryMove
	OpDirectoryMoveTo
	OpDirectoryRemove
	OpDirectoryRemoveIfExists
	OpDirectoryList
	OpDirectoryExists
	OpDirectoryPackKey
	OpDirectoryUnpackKey
	OpDirectoryRange
	OpDirectoryContains
	OpDirectoryOpenSubspace
	OpDirectoryLogSubspace
	OpDirectoryLogDirectory
	OpDirectoryStripPrefix

	numOps
)

var opNames = [numOps]string{
	OpPush:       "PUSH",
	OpDup:        "DUP",
	OpEmptyStack: "EMPTY_STACK",
	OpSwap:       "SWAP",
	OpPop:        "POP",
	OpSub:        "SUB",
	OpConcat:     "CONCAT",
	OpLogStack:   "LOG_STACK",

	OpNewTransaction:        "NEW_TRANSACTION",
	OpUseTransaction:        "USE_TRANSACTION",
	OpOnError:               "ON_ERROR",
	OpGet:                   "GET",
	OpGetKey:                "GET_KEY",
	OpGetRange:              "GET_RANGE",
	OpGetReadVersion:        "GET_READ_VERSION",
	OpSetReadVersion:        "SET_READ_VERSION",
	OpGetCommittedVersion:   "GET_COMMITTED_VERSION",
	OpGetApproximateSize:    "GET_APPROXIMATE_SIZE",
	OpGetVersionstamp:       "GET_VERSIONSTAMP",
	OpGetEstimatedRangeSize: "GET_ESTIMATED_RANGE_SIZE",
	OpGetRangeSplitPoints:   "GET_RANGE_SPLIT_POINTS",
	OpSet:                   "SET",
	OpClear:                 "CLEAR",
	OpClearRange:            "CLEAR_RANGE",
	OpAtomicOp:              "ATOMIC_OP",
	OpReadConflictRange:     "READ_CONFLICT_RANGE",
	OpWriteConflictRange:    "WRITE_CONFLICT_RANGE",
	OpReadConflictKey:       "READ_CONFLICT_KEY",
	OpWriteConflictKey:      "WRITE_CONFLICT_KEY",
	OpDisableWriteConflict:  "DISABLE_WRITE_CONFLICT",
	OpCommit:                "COMMIT",
	OpReset:                 "RESET",
	OpCancel:                "CANCEL",
	OpWaitFuture:            "WAIT_FUTURE",

	OpTuplePack:                 "TUPLE_PACK",
	OpTuplePackWithVersionstamp: "TUPLE_PACK_WITH_VERSIONSTAMP",
	OpTupleUnpack:               "TUPLE_UNPACK",
	OpTupleRange:                "TUPLE_RANGE",
	OpTupleSort:                 "TUPLE_SORT",
	OpEncodeFloat:               "ENCODE_FLOAT",
	OpEncodeDouble:              "ENCODE_DOUBLE",
	OpDecodeFloat:               "DECODE_FLOAT",
	OpDecodeDouble:              "DECODE_DOUBLE",

	OpStartThread: "START_THREAD",
	OpWaitEmpty:   "WAIT_EMPTY",
	OpUnitTests:   "UNIT_TESTS",

	OpTenantCreate:      "TENANT_CREATE",
	OpTenantDelete:      "TENANT_DELETE",
	OpTenantSetActive:   "TENANT_SET_ACTIVE",
	OpTenantClearActive: "TENANT_CLEAR_ACTIVE",
	OpTenantList:        "TENANT_LIST",
	OpTenantGetID:       "TENANT_GET_ID",

	OpDirectoryCreateSubspace: "DIRECTORY_CREATE_SUBSPACE",
	OpDirectoryCreateLayer:    "DIRECTORY_CREATE_LAYER",
	OpDirectoryCreateOrOpen:   "DIRECTORY_CREATE_OR_OPEN",
	OpDirectoryCreate:         "DIRECTORY_CREATE",
	OpDirectoryOpen:           "DIRECTORY_OPEN",
	OpDirectoryChange:         "DIRECTORY_CHANGE",
	OpDirectorySetErrorIndex:  "DIRECTORY_SET_ERROR_INDEX",
	OpDirectoryMove:           "DIRECTORY_MOVE",
	OpDirectoryMoveTo:         "DIRECTORY_MOVE_TO",
	OpDirectoryRemove:         "DIRECTORY_REMOVE",
	OpDirectoryRemoveIfExists: "DIRECTORY_REMOVE_IF_EXISTS",
	OpDirectoryList:           "DIRECTORY_LIST",
	OpDirectoryExists:         "DIRECTORY_EXISTS",
	OpDirectoryPackKey:        "DIRECTORY_PACK_KEY",
	OpDirectoryUnpackKey:      "DIRECTORY_UNPACK_KEY",
	OpDirectoryRange:          "DIRECTORY_RANGE",
	OpDirectoryContains:       "DIRECTORY_CONTAINS",
	OpDirectoryOpenSubspace:   "DIRECTORY_OPEN_SUBSPACE",
	OpDirectoryLogSubspace:    "DIRECTORY_LOG_SUBSPACE",
	OpDirectoryLogDirectory:   "DIRECTORY_LOG_DIRECTORY",
	OpDirectoryStripPrefix:    "DIRECTORY_STRIP_PREFIX",
}

var opsByName = func() map[string]Op {
	ret := make(map[string]Op, len(opNames))
	for op, name := range opNames {
		if name != "" {
			ret[name] = Op(op)
		}
	}
	return ret
}()

func (o Op) String() string {
	if int(o) < len(opNames) && opNames[o] != "" {
		return opNames[o]
	}
	return "UNKNOWN"
}

type Flags uint8

const (
	FlagDatabase Flags = 1 << iota
	FlagTenant
	FlagSnapshot
	FlagStartsWith
	FlagSelector
)

// suffixes in the order they are stripped
var flagSuffixes = []struct {
	suffix string
	flag   Flags
}{
	{"_DATABASE", FlagDatabase},
	{"_TENANT", FlagTenant},
	{"_SNAPSHOT", FlagSnapshot},
	{"_STARTS_WITH", FlagStartsWith},
	{"_SELECTOR", FlagSelector},
}

func (f Flags) Has(flag Flags) bool {
	return f&flag != 0
}

func (f Flags) String() string {
	var ret string
	for _, s := range flagSuffixes {
		if f.Has(s.flag) {
			ret += s.suffix
		}
	}
	return ret
}
