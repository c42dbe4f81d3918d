package memkv

import (
	"bytes"
	"encoding/binary"
	"iter"
	"slices"
	"strings"
	"sync"

	"github.com/emirpasic/gods/trees/redblacktree"
	"github.com/emirpasic/gods/utils"
	"github.com/reusee/stacktester/kv"
)

type writeKind uint8

const (
	writeSet writeKind = iota + 1
	writeClear
	writeAtomic
	writeUnreadable
)

type write struct {
	seq   int
	kind  writeKind
	value []byte
	op    kv.MutationType
}

type clearRange struct {
	seq int
	keyRange
}

type mutationKind uint8

const (
	mutationSet mutationKind = iota + 1
	mutationClear
	mutationClearRange
	mutationAtomic
)

type mutation struct {
	kind  mutationKind
	key   string
	end   string
	value []byte
	op    kv.MutationType
	// position of the versionstamp in key or value
	stampOffset int
	conflict    bool
}

type txState struct {
	prefix         []byte
	prefixResolved bool

	readVersion    int64
	hasReadVersion bool

	overlay   *redblacktree.Tree // string -> []write
	clears    []clearRange
	mutations []mutation
	seq       int

	reads                 []keyRange
	writes                []keyRange
	skipNextWriteConflict bool

	size             int64
	cancelled        bool
	committed        bool
	committedVersion int64
	versionstamp     *kv.Promise[[]byte]
}

// Transaction reads its own writes and commits optimistically.
// Every future it returns is ready except the versionstamp, which completes at commit.
type Transaction struct {
	store  *Store
	tenant []byte

	mu     sync.Mutex
	closed bool
	txState
}

var _ kv.Transaction = new(Transaction)

func newTransaction(store *Store, tenant []byte) *Transaction {
	t := &Transaction{
		store:  store,
		tenant: tenant,
	}
	t.txState = freshState()
	return t
}

func freshState() txState {
	return txState{
		overlay:          redblacktree.NewWith(utils.StringComparator),
		committedVersion: -1,
		versionstamp:     kv.NewPromise[[]byte](),
	}
}

func (t *Transaction) usable() error {
	if t.closed {
		return kv.ErrTransactionClosed
	}
	if t.cancelled {
		return kv.Error{Code: kv.CodeTransactionCancelled}
	}
	if t.committed {
		return kv.Error{Code: kv.CodeUsedDuringCommit}
	}
	return nil
}

// must hold t.mu and not s.mu
func (t *Transaction) resolvePrefix() ([]byte, error) {
	if t.tenant == nil || t.prefixResolved {
		return t.prefix, nil
	}
	t.store.mu.RLock()
	prefix, err := t.store.tenantPrefix(t.tenant)
	t.store.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	t.prefix = prefix
	t.prefixResolved = true
	return prefix, nil
}

// bounds returns the absolute key space visible to the transaction
func (t *Transaction) bounds() (string, string) {
	if t.tenant == nil {
		return "", legalEnd
	}
	return string(t.prefix), string(strinc(t.prefix))
}

func (t *Transaction) absKey(key []byte) (string, error) {
	if _, err := t.resolvePrefix(); err != nil {
		return "", err
	}
	if len(key) > MaxKeySize {
		return "", kv.Error{Code: kv.CodeKeyTooLarge}
	}
	if t.tenant == nil && string(key) >= legalEnd {
		return "", kv.Error{Code: kv.CodeKeyOutsideLegalRange}
	}
	return string(t.prefix) + string(key), nil
}

func (t *Transaction) absRange(begin, end []byte) (keyRange, error) {
	if _, err := t.resolvePrefix(); err != nil {
		return keyRange{}, err
	}
	if bytes.Compare(begin, end) > 0 {
		return keyRange{}, kv.Error{Code: kv.CodeInvertedRange}
	}
	if t.tenant == nil && (string(begin) > legalEnd || string(end) > legalEnd) {
		return keyRange{}, kv.Error{Code: kv.CodeKeyOutsideLegalRange}
	}
	return t.clamp(keyRange{
		begin: string(t.prefix) + string(begin),
		end:   string(t.prefix) + string(end),
	}), nil
}

func (t *Transaction) clamp(r keyRange) keyRange {
	lo, hi := t.bounds()
	r.begin = min(max(r.begin, lo), hi)
	r.end = min(max(r.end, lo), hi)
	return r
}

// userKey strips the tenant prefix; keys outside the tenant map to its edges
func (t *Transaction) userKey(abs string) []byte {
	lo, hi := t.bounds()
	switch {
	case abs <= lo:
		return []byte{}
	case abs >= hi:
		return []byte(legalEnd)
	}
	return []byte(strings.TrimPrefix(abs, string(t.prefix)))
}

// must hold s.mu
func (t *Transaction) acquireReadVersion() (int64, error) {
	s := t.store
	if !t.hasReadVersion {
		t.readVersion = s.version
		t.hasReadVersion = true
	}
	if t.readVersion > s.version {
		return 0, kv.Error{Code: kv.CodeFutureVersion}
	}
	if t.readVersion < s.oldestReadable() {
		return 0, kv.Error{Code: kv.CodeTransactionTooOld}
	}
	return t.readVersion, nil
}

// value returns key as seen by the transaction at read version rv. must hold s.mu
func (t *Transaction) value(key string, rv int64) ([]byte, bool, error) {
	clearSeq := 0
	for _, c := range t.clears {
		if c.seq > clearSeq && c.begin <= key && key < c.end {
			clearSeq = c.seq
		}
	}

	var value []byte
	var present bool
	if clearSeq == 0 {
		value, present = t.store.valueAt(key, rv)
	}

	v, ok := t.overlay.Get(key)
	if !ok {
		return value, present, nil
	}
	unreadable := false
	for _, w := range v.([]write) {
		if w.seq < clearSeq {
			continue
		}
		switch w.kind {
		case writeSet:
			value, present, unreadable = w.value, true, false
		case writeClear:
			value, present, unreadable = nil, false, false
		case writeUnreadable:
			unreadable = true
		case writeAtomic:
			var err error
			value, present, err = kv.ApplyMutation(w.op, value, present, w.value)
			if err != nil {
				return nil, false, err
			}
		}
	}
	if unreadable {
		return nil, false, kv.Error{Code: kv.CodeAccessedUnreadable}
	}
	return value, present, nil
}

// scan visits present keys in [begin, end) merging committed state with the overlay. must hold s.mu
func (t *Transaction) scan(r keyRange, reverse bool, rv int64, fn func(key string, value []byte) bool) error {
	committed := keysIn(t.store.data, r.begin, r.end, reverse)
	written := keysIn(t.overlay, r.begin, r.end, reverse)
	for key := range mergeKeys(committed, written, reverse) {
		value, ok, err := t.value(key, rv)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if !fn(key, value) {
			break
		}
	}
	return nil
}

func (t *Transaction) addRead(snapshot bool, r keyRange) {
	if snapshot || r.begin >= r.end {
		return
	}
	t.reads = append(t.reads, r)
}

func (t *Transaction) addWrite(r keyRange) {
	if t.skipNextWriteConflict {
		t.skipNextWriteConflict = false
		return
	}
	t.writes = append(t.writes, r)
}

func (t *Transaction) putWrite(key string, w write) {
	t.seq++
	w.seq = t.seq
	var ws []write
	if v, ok := t.overlay.Get(key); ok {
		ws = v.([]write)
	}
	t.overlay.Put(key, append(ws, w))
}

func (t *Transaction) Get(key []byte) kv.Future[[]byte] {
	return t.get(key, false)
}

func (t *Transaction) get(key []byte, snapshot bool) kv.Future[[]byte] {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.usable(); err != nil {
		return kv.Ready[[]byte](nil, err)
	}
	abs, err := t.absKey(key)
	if err != nil {
		return kv.Ready[[]byte](nil, err)
	}

	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	rv, err := t.acquireReadVersion()
	if err != nil {
		return kv.Ready[[]byte](nil, err)
	}
	value, ok, err := t.value(abs, rv)
	if err != nil {
		return kv.Ready[[]byte](nil, err)
	}
	t.addRead(snapshot, keyRange{begin: abs, end: abs + "\x00"})
	if !ok {
		return kv.Ready[[]byte](nil, nil)
	}
	return kv.Ready(append([]byte{}, value...), nil)
}

func (t *Transaction) GetKey(sel kv.KeySelector) kv.Future[[]byte] {
	return t.getKey(sel, false)
}

func (t *Transaction) getKey(sel kv.KeySelector, snapshot bool) kv.Future[[]byte] {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.usable(); err != nil {
		return kv.Ready[[]byte](nil, err)
	}
	if _, err := t.resolvePrefix(); err != nil {
		return kv.Ready[[]byte](nil, err)
	}

	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	rv, err := t.acquireReadVersion()
	if err != nil {
		return kv.Ready[[]byte](nil, err)
	}
	key, err := t.resolveSelector(sel, rv)
	if err != nil {
		return kv.Ready[[]byte](nil, err)
	}
	anchor := string(t.prefix) + string(sel.Key)
	t.addRead(snapshot, t.clamp(keyRange{
		begin: min(anchor, key),
		end:   max(anchor, key) + "\x00",
	}))
	return kv.Ready(t.userKey(key), nil)
}

// resolveSelector returns the absolute key the selector points to. must hold s.mu
func (t *Transaction) resolveSelector(sel kv.KeySelector, rv int64) (string, error) {
	lo, hi := t.bounds()
	anchor := min(max(string(t.prefix)+string(sel.Key), lo), hi)

	if sel.Offset >= 1 {
		begin := anchor
		if sel.OrEqual {
			begin += "\x00"
		}
		ret := hi
		n := sel.Offset
		err := t.scan(keyRange{begin: begin, end: hi}, false, rv, func(key string, _ []byte) bool {
			n--
			if n == 0 {
				ret = key
				return false
			}
			return true
		})
		return ret, err
	}

	end := anchor
	if sel.OrEqual {
		end += "\x00"
	}
	ret := lo
	n := 1 - sel.Offset
	err := t.scan(keyRange{begin: lo, end: min(end, hi)}, true, rv, func(key string, _ []byte) bool {
		n--
		if n == 0 {
			ret = key
			return false
		}
		return true
	})
	return ret, err
}

func (t *Transaction) GetRange(begin, end kv.KeySelector, opts kv.RangeOptions) kv.Future[[]kv.KeyValue] {
	return t.getRange(begin, end, opts, false)
}

func (t *Transaction) getRange(begin, end kv.KeySelector, opts kv.RangeOptions, snapshot bool) kv.Future[[]kv.KeyValue] {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.usable(); err != nil {
		return kv.Ready[[]kv.KeyValue](nil, err)
	}
	if opts.Limit < 0 {
		return kv.Ready[[]kv.KeyValue](nil, kv.Error{Code: kv.CodeRangeLimitsInvalid})
	}
	if !opts.Mode.Valid() {
		return kv.Ready[[]kv.KeyValue](nil, kv.Error{Code: kv.CodeInvalidOptionValue})
	}
	if _, err := t.resolvePrefix(); err != nil {
		return kv.Ready[[]kv.KeyValue](nil, err)
	}

	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	rv, err := t.acquireReadVersion()
	if err != nil {
		return kv.Ready[[]kv.KeyValue](nil, err)
	}
	b, err := t.resolveSelector(begin, rv)
	if err != nil {
		return kv.Ready[[]kv.KeyValue](nil, err)
	}
	e, err := t.resolveSelector(end, rv)
	if err != nil {
		return kv.Ready[[]kv.KeyValue](nil, err)
	}
	ret := []kv.KeyValue{}
	if b >= e {
		return kv.Ready(ret, nil)
	}

	r := keyRange{begin: b, end: e}
	var last string
	limited := false
	err = t.scan(r, opts.Reverse, rv, func(key string, value []byte) bool {
		ret = append(ret, kv.KeyValue{
			Key:   t.userKey(key),
			Value: append([]byte{}, value...),
		})
		last = key
		if opts.Limit > 0 && len(ret) >= opts.Limit {
			limited = true
			return false
		}
		return true
	})
	if err != nil {
		return kv.Ready[[]kv.KeyValue](nil, err)
	}

	if limited {
		if opts.Reverse {
			r.begin = last
		} else {
			r.end = last + "\x00"
		}
	}
	t.addRead(snapshot, r)
	return kv.Ready(ret, nil)
}

func (t *Transaction) GetReadVersion() kv.Future[int64] {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.usable(); err != nil {
		return kv.Ready[int64](0, err)
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	return kv.Ready(t.acquireReadVersion())
}

func (t *Transaction) GetEstimatedRangeSize(begin, end []byte) kv.Future[int64] {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.usable(); err != nil {
		return kv.Ready[int64](0, err)
	}
	r, err := t.absRange(begin, end)
	if err != nil {
		return kv.Ready[int64](0, err)
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	rv, err := t.acquireReadVersion()
	if err != nil {
		return kv.Ready[int64](0, err)
	}
	var size int64
	err = t.scan(r, false, rv, func(key string, value []byte) bool {
		size += int64(len(key) + len(value))
		return true
	})
	return kv.Ready(size, err)
}

func (t *Transaction) GetRangeSplitPoints(begin, end []byte, chunkSize int64) kv.Future[[][]byte] {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.usable(); err != nil {
		return kv.Ready[[][]byte](nil, err)
	}
	if chunkSize <= 0 {
		return kv.Ready[[][]byte](nil, kv.Error{Code: kv.CodeInvalidOptionValue})
	}
	r, err := t.absRange(begin, end)
	if err != nil {
		return kv.Ready[[][]byte](nil, err)
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	rv, err := t.acquireReadVersion()
	if err != nil {
		return kv.Ready[[][]byte](nil, err)
	}

	points := [][]byte{append([]byte{}, begin...)}
	var acc int64
	err = t.scan(r, false, rv, func(key string, value []byte) bool {
		if acc >= chunkSize {
			points = append(points, t.userKey(key))
			acc = 0
		}
		acc += int64(len(key) + len(value))
		return true
	})
	if err != nil {
		return kv.Ready[[][]byte](nil, err)
	}
	points = append(points, append([]byte{}, end...))
	return kv.Ready(points, nil)
}

func (t *Transaction) Snapshot() kv.ReadTransaction {
	return snapshot{t}
}

func (t *Transaction) Set(key, value []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.usable(); err != nil {
		return err
	}
	if len(value) > kv.MaxValueSize {
		return kv.Error{Code: kv.CodeValueTooLarge}
	}
	abs, err := t.absKey(key)
	if err != nil {
		return err
	}
	value = bytes.Clone(value)
	if value == nil {
		value = []byte{}
	}
	t.putWrite(abs, write{kind: writeSet, value: value})
	t.mutations = append(t.mutations, mutation{
		kind:  mutationSet,
		key:   abs,
		value: value,
	})
	t.addWrite(keyRange{begin: abs, end: abs + "\x00"})
	t.size += int64(len(abs) + len(value))
	return nil
}

func (t *Transaction) Clear(key []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.usable(); err != nil {
		return err
	}
	abs, err := t.absKey(key)
	if err != nil {
		return err
	}
	t.putWrite(abs, write{kind: writeClear})
	t.mutations = append(t.mutations, mutation{
		kind: mutationClear,
		key:  abs,
	})
	t.addWrite(keyRange{begin: abs, end: abs + "\x00"})
	t.size += int64(len(abs))
	return nil
}

func (t *Transaction) ClearRange(begin, end []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.usable(); err != nil {
		return err
	}
	r, err := t.absRange(begin, end)
	if err != nil {
		return err
	}
	t.seq++
	t.clears = append(t.clears, clearRange{
		seq:      t.seq,
		keyRange: r,
	})
	t.mutations = append(t.mutations, mutation{
		kind: mutationClearRange,
		key:  r.begin,
		end:  r.end,
	})
	t.addWrite(r)
	t.size += int64(len(r.begin) + len(r.end))
	return nil
}

// splitStamped separates a trailing little-endian versionstamp offset
func splitStamped(bs []byte) ([]byte, int, error) {
	if len(bs) < 4 {
		return nil, 0, kv.Error{Code: kv.CodeClientInvalidOperation}
	}
	body := bs[:len(bs)-4]
	offset := int(binary.LittleEndian.Uint32(bs[len(bs)-4:]))
	if offset+10 > len(body) {
		return nil, 0, kv.Error{Code: kv.CodeClientInvalidOperation}
	}
	return bytes.Clone(body), offset, nil
}

func (t *Transaction) Atomic(op kv.MutationType, key, param []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.usable(); err != nil {
		return err
	}
	if len(param) > kv.MaxValueSize {
		return kv.Error{Code: kv.CodeValueTooLarge}
	}

	switch op {

	case kv.MutationSetVersionstampedKey:
		if len(key) > MaxKeySize+4 {
			return kv.Error{Code: kv.CodeKeyTooLarge}
		}
		body, offset, err := splitStamped(key)
		if err != nil {
			return err
		}
		if _, err := t.resolvePrefix(); err != nil {
			return err
		}
		conflict := !t.skipNextWriteConflict
		t.skipNextWriteConflict = false
		t.mutations = append(t.mutations, mutation{
			kind:        mutationAtomic,
			op:          op,
			key:         string(t.prefix) + string(body),
			value:       bytes.Clone(param),
			stampOffset: offset + len(t.prefix),
			conflict:    conflict,
		})
		t.size += int64(len(key) + len(param))
		return nil

	case kv.MutationSetVersionstampedValue:
		abs, err := t.absKey(key)
		if err != nil {
			return err
		}
		body, offset, err := splitStamped(param)
		if err != nil {
			return err
		}
		t.putWrite(abs, write{kind: writeUnreadable})
		t.mutations = append(t.mutations, mutation{
			kind:        mutationAtomic,
			op:          op,
			key:         abs,
			value:       body,
			stampOffset: offset,
		})
		t.addWrite(keyRange{begin: abs, end: abs + "\x00"})
		t.size += int64(len(abs) + len(param))
		return nil

	}

	if op < kv.MutationAdd || op > kv.MutationCompareAndClear {
		return kv.Error{Code: kv.CodeInvalidMutationType}
	}
	abs, err := t.absKey(key)
	if err != nil {
		return err
	}
	param = bytes.Clone(param)
	t.putWrite(abs, write{kind: writeAtomic, op: op, value: param})
	t.mutations = append(t.mutations, mutation{
		kind:  mutationAtomic,
		op:    op,
		key:   abs,
		value: param,
	})
	t.addWrite(keyRange{begin: abs, end: abs + "\x00"})
	t.size += int64(len(abs) + len(param))
	return nil
}

func (t *Transaction) AddReadConflictRange(begin, end []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.usable(); err != nil {
		return err
	}
	r, err := t.absRange(begin, end)
	if err != nil {
		return err
	}
	t.addRead(false, r)
	t.size += int64(len(r.begin) + len(r.end))
	return nil
}

func (t *Transaction) AddWriteConflictRange(begin, end []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.usable(); err != nil {
		return err
	}
	r, err := t.absRange(begin, end)
	if err != nil {
		return err
	}
	if r.begin < r.end {
		t.writes = append(t.writes, r)
	}
	t.size += int64(len(r.begin) + len(r.end))
	return nil
}

func (t *Transaction) DisableNextWriteConflict() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.skipNextWriteConflict = true
}

func (t *Transaction) SetReadVersion(version int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.usable(); err != nil {
		return err
	}
	if t.hasReadVersion {
		return kv.Error{Code: kv.CodeReadVersionAlreadySet}
	}
	t.readVersion = version
	t.hasReadVersion = true
	return nil
}

// GetCommittedVersion returns -1 until a commit with writes succeeds.
func (t *Transaction) GetCommittedVersion() (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0, kv.ErrTransactionClosed
	}
	return t.committedVersion, nil
}

func (t *Transaction) GetVersionstamp() kv.Future[[]byte] {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return kv.Ready[[]byte](nil, kv.ErrTransactionClosed)
	}
	return t.versionstamp
}

func (t *Transaction) GetApproximateSize() kv.Future[int64] {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.usable(); err != nil {
		return kv.Ready[int64](0, err)
	}
	return kv.Ready(t.size, nil)
}

func (t *Transaction) Commit() kv.Future[struct{}] {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.usable(); err != nil {
		return kv.Ready(struct{}{}, err)
	}
	err := t.commit()
	if err != nil {
		t.versionstamp.Set(nil, err)
		return kv.Ready(struct{}{}, err)
	}
	t.committed = true
	return kv.Ready(struct{}{}, nil)
}

func (t *Transaction) commit() error {
	if t.size > MaxTransactionSize {
		return kv.Error{Code: kv.CodeTransactionTooLarge}
	}
	if len(t.mutations) == 0 && len(t.writes) == 0 {
		t.versionstamp.Set(nil, kv.Error{Code: kv.CodeNoCommitVersion})
		return nil
	}

	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.hasReadVersion {
		if t.readVersion < s.oldestReadable() {
			return kv.Error{Code: kv.CodeTransactionTooOld}
		}
		if t.readVersion > s.version {
			return kv.Error{Code: kv.CodeFutureVersion}
		}
		if s.conflicts(t.readVersion, t.reads) {
			return kv.Error{Code: kv.CodeNotCommitted}
		}
	}

	version := s.version + 1
	changes, writes, err := t.apply(versionstampOf(version))
	if err != nil {
		return err
	}
	if _, err := s.install(changes, writes); err != nil {
		return err
	}
	t.committedVersion = version
	t.versionstamp.Set(versionstampOf(version), nil)
	return nil
}

// apply replays the mutation log against the latest committed state. must hold s.mu
func (t *Transaction) apply(stamp []byte) ([]Change, []keyRange, error) {
	s := t.store
	working := make(map[string]Change)
	get := func(key string) ([]byte, bool) {
		if c, ok := working[key]; ok {
			return c.Value, !c.Deleted
		}
		return s.latest(key)
	}
	put := func(key string, value []byte, present bool) {
		if !present {
			working[key] = Change{Key: []byte(key), Deleted: true}
			return
		}
		working[key] = Change{Key: []byte(key), Value: value}
	}
	writes := slices.Clone(t.writes)

	for _, m := range t.mutations {
		switch m.kind {

		case mutationSet:
			put(m.key, m.value, true)

		case mutationClear:
			put(m.key, nil, false)

		case mutationClearRange:
			for key := range keysIn(s.data, m.key, m.end, false) {
				if _, ok := s.latest(key); ok {
					put(key, nil, false)
				}
			}
			for key := range working {
				if m.key <= key && key < m.end {
					put(key, nil, false)
				}
			}

		case mutationAtomic:
			switch m.op {
			case kv.MutationSetVersionstampedKey:
				key := string(stamped([]byte(m.key), m.stampOffset, stamp))
				put(key, m.value, true)
				if m.conflict {
					writes = append(writes, keyRange{begin: key, end: key + "\x00"})
				}
			case kv.MutationSetVersionstampedValue:
				put(m.key, stamped(m.value, m.stampOffset, stamp), true)
			default:
				existing, ok := get(m.key)
				value, present, err := kv.ApplyMutation(m.op, existing, ok, m.value)
				if err != nil {
					return nil, nil, err
				}
				put(m.key, value, present)
			}

		}
	}

	changes := make([]Change, 0, len(working))
	for _, c := range working {
		changes = append(changes, c)
	}
	slices.SortFunc(changes, func(a, b Change) int {
		return bytes.Compare(a.Key, b.Key)
	})
	return changes, writes, nil
}

func stamped(bs []byte, offset int, stamp []byte) []byte {
	ret := bytes.Clone(bs)
	copy(ret[offset:], stamp)
	return ret
}

func (t *Transaction) OnError(err error) kv.Future[struct{}] {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return kv.Ready(struct{}{}, kv.ErrTransactionClosed)
	}
	if e, ok := kv.AsError(err); ok && e.Retryable() {
		t.reset()
		return kv.Ready(struct{}{}, nil)
	}
	return kv.Ready(struct{}{}, err)
}

func (t *Transaction) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.reset()
}

func (t *Transaction) reset() {
	t.versionstamp.Set(nil, kv.Error{Code: kv.CodeTransactionCancelled})
	t.txState = freshState()
}

func (t *Transaction) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelled = true
	t.versionstamp.Set(nil, kv.Error{Code: kv.CodeTransactionCancelled})
}

func (t *Transaction) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	t.versionstamp.Set(nil, kv.Error{Code: kv.CodeTransactionCancelled})
}

type snapshot struct {
	t *Transaction
}

var _ kv.ReadTransaction = snapshot{}

func (s snapshot) Get(key []byte) kv.Future[[]byte] {
	return s.t.get(key, true)
}

func (s snapshot) GetKey(sel kv.KeySelector) kv.Future[[]byte] {
	return s.t.getKey(sel, true)
}

func (s snapshot) GetRange(begin, end kv.KeySelector, opts kv.RangeOptions) kv.Future[[]kv.KeyValue] {
	return s.t.getRange(begin, end, opts, true)
}

func (s snapshot) GetReadVersion() kv.Future[int64] {
	return s.t.GetReadVersion()
}

func (s snapshot) GetEstimatedRangeSize(begin, end []byte) kv.Future[int64] {
	return s.t.GetEstimatedRangeSize(begin, end)
}

func (s snapshot) GetRangeSplitPoints(begin, end []byte, chunkSize int64) kv.Future[[][]byte] {
	return s.t.GetRangeSplitPoints(begin, end, chunkSize)
}

// mergeKeys yields the ordered union of two ordered key sequences
func mergeKeys(a, b iter.Seq[string], reverse bool) iter.Seq[string] {
	return func(yield func(string) bool) {
		nextA, stopA := iter.Pull(a)
		defer stopA()
		nextB, stopB := iter.Pull(b)
		defer stopB()
		before := func(x, y string) bool {
			if reverse {
				return x > y
			}
			return x < y
		}

		x, okX := nextA()
		y, okY := nextB()
		for okX || okY {
			var key string
			switch {
			case okX && okY && x == y:
				key = x
				x, okX = nextA()
				y, okY = nextB()
			case okX && (!okY || before(x, y)):
				key = x
				x, okX = nextA()
			default:
				key = y
				y, okY = nextB()
			}
			if !yield(key) {
				return
			}
		}
	}
}
