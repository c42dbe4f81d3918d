package storages

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/reusee/stacktester/memkv"
	_ "modernc.org/sqlite"
)

const schema = `
create table if not exists kv (
	key blob primary key,
	value blob
) without rowid;

create table if not exists meta (
	name text primary key,
	value integer not null
);
`

const versionName = "version"

// SQLite persists committed store state.
type SQLite struct {
	db *sql.DB
}

func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, wrap(fmt.Errorf("open %s: %w", path, err))
	}
	// one connection serializes commits and keeps :memory: databases shared
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, "pragma busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, wrap(err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, wrap(fmt.Errorf("create schema: %w", err))
	}
	return &SQLite{
		db: db,
	}, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, wrap(err)
	}
	return sqlTx{tx: tx}, nil
}

func (s *SQLite) Version(ctx context.Context) (version int64, err error) {
	row := s.db.QueryRowContext(ctx, `select value from meta where name = ?`, versionName)
	if err := row.Scan(&version); errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	} else if err != nil {
		return 0, wrap(err)
	}
	return version, nil
}

// Restore loads every stored pair into store at the stored version.
func (s *SQLite) Restore(ctx context.Context, store *memkv.Store) (err error) {
	version, err := s.Version(ctx)
	if err != nil {
		return err
	}

	rows, err := s.db.QueryContext(ctx, `select key, value from kv order by key`)
	if err != nil {
		return wrap(err)
	}
	defer rows.Close()

	store.Load(version, func(yield func([]byte, []byte) bool) {
		for rows.Next() {
			var key, value []byte
			if err = rows.Scan(&key, &value); err != nil {
				return
			}
			if !yield(key, value) {
				return
			}
		}
	})
	if err != nil {
		return wrap(err)
	}
	if err := rows.Err(); err != nil {
		return wrap(err)
	}
	return nil
}

// Persist writes one commit in a single sql transaction.
func (s *SQLite) Persist(ctx context.Context, version int64, changes []memkv.Change) (err error) {
	tx, err := s.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			err = errors.Join(err, tx.Rollback())
		}
	}()

	for _, change := range changes {
		if change.Deleted {
			if _, err := tx.Exec(ctx, `delete from kv where key = ?`, change.Key); err != nil {
				return wrap(err)
			}
			continue
		}
		value := change.Value
		if value == nil {
			value = []byte{}
		}
		if _, err := tx.Exec(ctx,
			`insert into kv (key, value) values (?, ?) on conflict (key) do update set value = excluded.value`,
			change.Key, value,
		); err != nil {
			return wrap(err)
		}
	}

	if _, err := tx.Exec(ctx,
		`insert into meta (name, value) values (?, ?) on conflict (name) do update set value = excluded.value`,
		versionName, version,
	); err != nil {
		return wrap(err)
	}

	if err := tx.Commit(); err != nil {
		return wrap(err)
	}
	return nil
}

// Persister binds Persist to ctx for use as a store commit hook.
func (s *SQLite) Persister(ctx context.Context) memkv.Persister {
	return func(version int64, changes []memkv.Change) error {
		return s.Persist(ctx, version, changes)
	}
}
