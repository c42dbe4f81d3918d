package storages

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/reusee/stacktester/kv"
	"github.com/reusee/stacktester/memkv"
)

func TestSQLitePersistAndRestore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "store.db")

	db, err := OpenSQLite(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	store := memkv.New(memkv.WithPersister(db.Persister(ctx)))
	for _, fn := range []func(tr kv.Transaction) error{
		func(tr kv.Transaction) error {
			if err := tr.Set([]byte("a"), []byte("1")); err != nil {
				return err
			}
			return tr.Set([]byte("b"), []byte{})
		},
		func(tr kv.Transaction) error {
			return tr.Clear([]byte("a"))
		},
		func(tr kv.Transaction) error {
			return tr.Set([]byte("c"), []byte("3"))
		},
	} {
		if _, err := kv.Transact(ctx, store, func(tr kv.Transaction) (any, error) {
			return nil, fn(tr)
		}); err != nil {
			t.Fatal(err)
		}
	}
	if err := db.Close(); err != nil {
		t.Fatal(err)
	}

	db, err = OpenSQLite(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	version, err := db.Version(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if version != 3 {
		t.Fatalf("got %d", version)
	}

	restored := memkv.New()
	if err := db.Restore(ctx, restored); err != nil {
		t.Fatal(err)
	}
	if restored.Version() != 3 {
		t.Fatalf("got %d", restored.Version())
	}
	tr, _ := restored.CreateTransaction()
	kvs, err := tr.GetRange(
		kv.FirstGreaterOrEqual([]byte("")),
		kv.FirstGreaterOrEqual([]byte("\xff")),
		kv.RangeOptions{},
	).Get(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(kvs) != 2 {
		t.Fatalf("got %v", kvs)
	}
	if string(kvs[0].Key) != "b" || len(kvs[0].Value) != 0 {
		t.Fatalf("got %v", kvs[0])
	}
	if string(kvs[1].Key) != "c" || string(kvs[1].Value) != "3" {
		t.Fatalf("got %v", kvs[1])
	}
}

func TestSQLiteTx(t *testing.T) {
	ctx := context.Background()
	db, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "tx.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	tx, err := db.Begin(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tx.Exec(ctx, `insert into kv (key, value) values (?, ?)`, []byte("k"), []byte("v")); err != nil {
		t.Fatal(err)
	}
	row, err := tx.QueryRow(ctx, `select value from kv where key = ?`, []byte("k"))
	if err != nil {
		t.Fatal(err)
	}
	var value []byte
	if err := row.Scan(&value); err != nil {
		t.Fatal(err)
	}
	if string(value) != "v" {
		t.Fatalf("got %q", value)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatal(err)
	}

	version, err := db.Version(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if version != 0 {
		t.Fatalf("got %d", version)
	}
}
