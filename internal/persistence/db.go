package persistence

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // register sqlite driver
)

// busyTimeoutMs bounds how long a statement waits on the writer lock held by a prune run.
const busyTimeoutMs = 5000

type pragma struct {
	name string
	stmt string
}

// Open opens the snapshot database and applies the schema. ":memory:" is supported for tests
// and for runs that only need the API; it is pinned to a single connection so every query
// sees the same database.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	memory := isMemoryPath(path)
	if memory {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	pragmas := []pragma{
		{name: "foreign keys", stmt: `PRAGMA foreign_keys = ON;`},
		{name: "busy timeout", stmt: fmt.Sprintf(`PRAGMA busy_timeout = %d;`, busyTimeoutMs)},
		{name: "synchronous", stmt: `PRAGMA synchronous = NORMAL;`},
	}
	if !memory {
		pragmas = append(pragmas, pragma{name: "wal mode", stmt: `PRAGMA journal_mode = WAL;`})
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p.stmt); err != nil {
			_ = db.Close()

			return nil, fmt.Errorf("set %s: %w", p.name, err)
		}
	}
	if err := migrate(ctx, db); err != nil {
		_ = db.Close()

		return nil, err
	}

	return db, nil
}
