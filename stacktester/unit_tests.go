package stacktester

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/reusee/stacktester/kv"
	"github.com/reusee/stacktester/tuples"
)

type unitTest struct {
	name string
	fn   func(ctx context.Context, db kv.Database, space tuples.Tuple) error
}

var unitTests = []unitTest{
	{"read version reuse", testReadVersionReuse},
	{"versionstamp", testVersionstamp},
	{"cancel", testCancel},
	{"snapshot isolation", testSnapshotIsolation},
}

// opUnitTests runs self checks of the store in a scratch key space, clearing it afterwards.
func (m *Machine) opUnitTests(ctx context.Context) error {
	space := tuples.Tuple{[]byte("unit_tests"), m.prefix}
	defer func() {
		if err := clearSpace(context.WithoutCancel(ctx), m.db, space); err != nil {
			m.logger.WarnContext(ctx, "clear unit test keys", "error", err)
		}
	}()

	for _, test := range unitTests {
		if err := clearSpace(ctx, m.db, space); err != nil {
			return err
		}
		if err := test.fn(ctx, m.db, space); err != nil {
			if isContextError(err) && ctx.Err() != nil {
				return err
			}
			return fmt.Errorf("%w: %s: %v", ErrUnitTests, test.name, err)
		}
		m.logger.DebugContext(ctx, "unit test passed", "name", test.name)
	}
	return nil
}

func clearSpace(ctx context.Context, db kv.Database, space tuples.Tuple) error {
	begin, end := space.Range()
	_, err := kv.Transact(ctx, db, func(tr kv.Transaction) (struct{}, error) {
		return struct{}{}, tr.ClearRange(begin, end)
	})
	return err
}

func setKey(ctx context.Context, db kv.Database, key, value []byte) error {
	_, err := kv.Transact(ctx, db, func(tr kv.Transaction) (struct{}, error) {
		return struct{}{}, tr.Set(key, value)
	})
	return err
}

func expectValue(ctx context.Context, r kv.ReadTransaction, key, expected []byte) error {
	value, err := r.Get(key).Get(ctx)
	if err != nil {
		return err
	}
	if !bytes.Equal(value, expected) {
		return fmt.Errorf("got %q, want %q", value, expected)
	}
	return nil
}

func testReadVersionReuse(ctx context.Context, db kv.Database, space tuples.Tuple) error {
	key := append(space, "key").Pack()
	if err := setKey(ctx, db, key, []byte("old")); err != nil {
		return err
	}

	first, err := db.CreateTransaction()
	if err != nil {
		return err
	}
	defer first.Close()
	version, err := first.GetReadVersion().Get(ctx)
	if err != nil {
		return err
	}

	if err := setKey(ctx, db, key, []byte("new")); err != nil {
		return err
	}

	second, err := db.CreateTransaction()
	if err != nil {
		return err
	}
	defer second.Close()
	if err := second.SetReadVersion(version); err != nil {
		return err
	}
	return expectValue(ctx, second, key, []byte("old"))
}

func testVersionstamp(ctx context.Context, db kv.Database, space tuples.Tuple) error {
	key, err := append(space, tuples.IncompleteVersionstamp(0)).PackWithVersionstamp(nil)
	if err != nil {
		return err
	}

	tr, err := db.CreateTransaction()
	if err != nil {
		return err
	}
	defer tr.Close()
	if err := tr.Atomic(kv.MutationSetVersionstampedKey, key, []byte("stamped")); err != nil {
		return err
	}
	stampFuture := tr.GetVersionstamp()
	if _, err := tr.Commit().Get(ctx); err != nil {
		return err
	}
	stamp, err := stampFuture.Get(ctx)
	if err != nil {
		return err
	}
	if len(stamp) != 10 {
		return fmt.Errorf("versionstamp length %d", len(stamp))
	}

	var complete tuples.Versionstamp
	copy(complete.TransactionVersion[:], stamp)
	reader, err := db.CreateTransaction()
	if err != nil {
		return err
	}
	defer reader.Close()
	return expectValue(ctx, reader, append(space, complete).Pack(), []byte("stamped"))
}

func testCancel(ctx context.Context, db kv.Database, space tuples.Tuple) error {
	key := append(space, "cancel").Pack()
	tr, err := db.CreateTransaction()
	if err != nil {
		return err
	}
	defer tr.Close()

	tr.Cancel()
	err = tr.Set(key, []byte("x"))
	var storeErr kv.Error
	if !errors.As(err, &storeErr) || storeErr.Code != kv.CodeTransactionCancelled {
		return fmt.Errorf("set after cancel: got %v", err)
	}

	tr.Reset()
	if err := tr.Set(key, []byte("x")); err != nil {
		return err
	}
	if _, err := tr.Commit().Get(ctx); err != nil {
		return err
	}
	reader, err := db.CreateTransaction()
	if err != nil {
		return err
	}
	defer reader.Close()
	return expectValue(ctx, reader, key, []byte("x"))
}

func testSnapshotIsolation(ctx context.Context, db kv.Database, space tuples.Tuple) error {
	watched := append(space, "watched").Pack()
	other := append(space, "other").Pack()

	tr, err := db.CreateTransaction()
	if err != nil {
		return err
	}
	defer tr.Close()
	if _, err := tr.Snapshot().Get(watched).Get(ctx); err != nil {
		return err
	}

	if err := setKey(ctx, db, watched, []byte("changed")); err != nil {
		return err
	}

	// a snapshot read must not conflict with the concurrent write
	if err := tr.Set(other, []byte("x")); err != nil {
		return err
	}
	if _, err := tr.Commit().Get(ctx); err != nil {
		return fmt.Errorf("commit after snapshot read: %w", err)
	}

	// a serializable read must
	tr2, err := db.CreateTransaction()
	if err != nil {
		return err
	}
	defer tr2.Close()
	if _, err := tr2.Get(watched).Get(ctx); err != nil {
		return err
	}
	if err := setKey(ctx, db, watched, []byte("changed again")); err != nil {
		return err
	}
	if err := tr2.Set(other, []byte("y")); err != nil {
		return err
	}
	_, err = tr2.Commit().Get(ctx)
	var storeErr kv.Error
	if !errors.As(err, &storeErr) || storeErr.Code != kv.CodeNotCommitted {
		return fmt.Errorf("commit after conflicting read: got %v", err)
	}
	return nil
}
