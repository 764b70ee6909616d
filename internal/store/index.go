package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

const schema = `
CREATE TABLE IF NOT EXISTS roots (
    path          TEXT PRIMARY KEY,
    registered_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS snapshots (
    space_id   TEXT NOT NULL,
    commit_sha TEXT NOT NULL,
    integrity  TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (space_id, commit_sha)
);

CREATE TABLE IF NOT EXISTS leases (
    kind       TEXT NOT NULL,
    lease_key  TEXT NOT NULL,
    holder     TEXT NOT NULL,
    expires_at INTEGER NOT NULL,
    PRIMARY KEY (kind, lease_key, holder)
);
`

// index is the sqlite side of the store.
type index struct {
	db *sql.DB
}

func openIndex(ctx context.Context, path string) (*index, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open index: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: enable WAL mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: set busy timeout: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create schema: %w", err)
	}
	return &index{db: db}, nil
}

func (x *index) close() error {
	return x.db.Close()
}

func (x *index) addRoot(ctx context.Context, path string) error {
	const q = `INSERT INTO roots (path) VALUES (?) ON CONFLICT(path) DO NOTHING`
	if _, err := x.db.ExecContext(ctx, q, path); err != nil {
		return fmt.Errorf("store: register root %s: %w", path, err)
	}
	return nil
}

func (x *index) removeRoot(ctx context.Context, path string) error {
	if _, err := x.db.ExecContext(ctx, "DELETE FROM roots WHERE path = ?", path); err != nil {
		return fmt.Errorf("store: remove root %s: %w", path, err)
	}
	return nil
}

func (x *index) roots(ctx context.Context) ([]string, error) {
	rows, err := x.db.QueryContext(ctx, "SELECT path FROM roots ORDER BY path")
	if err != nil {
		return nil, fmt.Errorf("store: list roots: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("store: scan root: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (x *index) recordSnapshot(ctx context.Context, id, commit, integ string) error {
	const q = `
		INSERT INTO snapshots (space_id, commit_sha, integrity)
		VALUES (?, ?, ?)
		ON CONFLICT(space_id, commit_sha) DO UPDATE SET integrity = excluded.integrity`
	if _, err := x.db.ExecContext(ctx, q, id, commit, integ); err != nil {
		return fmt.Errorf("store: record snapshot %s@%s: %w", id, commit, err)
	}
	return nil
}

// knownIntegrity returns the integrity recorded for id@commit, or "".
func (x *index) knownIntegrity(ctx context.Context, id, commit string) (string, error) {
	var integ string
	err := x.db.QueryRowContext(ctx,
		"SELECT integrity FROM snapshots WHERE space_id = ? AND commit_sha = ?", id, commit).Scan(&integ)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("store: lookup snapshot %s@%s: %w", id, commit, err)
	}
	return integ, nil
}

func (x *index) forgetSnapshot(ctx context.Context, integ string) error {
	if _, err := x.db.ExecContext(ctx, "DELETE FROM snapshots WHERE integrity = ?", integ); err != nil {
		return fmt.Errorf("store: forget snapshot %s: %w", integ, err)
	}
	return nil
}

func (x *index) putLease(ctx context.Context, kind, key, holder string, expires time.Time) error {
	const q = `
		INSERT INTO leases (kind, lease_key, holder, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(kind, lease_key, holder) DO UPDATE SET expires_at = excluded.expires_at`
	if _, err := x.db.ExecContext(ctx, q, kind, key, holder, expires.Unix()); err != nil {
		return fmt.Errorf("store: lease %s %s: %w", kind, key, err)
	}
	return nil
}

func (x *index) dropLease(ctx context.Context, kind, key, holder string) error {
	const q = `DELETE FROM leases WHERE kind = ? AND lease_key = ? AND holder = ?`
	if _, err := x.db.ExecContext(ctx, q, kind, key, holder); err != nil {
		return fmt.Errorf("store: release %s %s: %w", kind, key, err)
	}
	return nil
}

// leaseHeld reports whether any holder has an unexpired lease on kind/key.
func (x *index) leaseHeld(ctx context.Context, kind, key string, now time.Time) (bool, error) {
	const q = `SELECT COUNT(*) FROM leases WHERE kind = ? AND lease_key = ? AND expires_at > ?`
	var n int
	if err := x.db.QueryRowContext(ctx, q, kind, key, now.Unix()).Scan(&n); err != nil {
		return false, fmt.Errorf("store: check lease %s %s: %w", kind, key, err)
	}
	return n > 0, nil
}

// activeLeases returns kind → key → true for leases that have not expired,
// and deletes the expired rows.
func (x *index) activeLeases(ctx context.Context, now time.Time) (map[string]map[string]bool, error) {
	if _, err := x.db.ExecContext(ctx, "DELETE FROM leases WHERE expires_at <= ?", now.Unix()); err != nil {
		return nil, fmt.Errorf("store: expire leases: %w", err)
	}
	rows, err := x.db.QueryContext(ctx, "SELECT kind, lease_key FROM leases")
	if err != nil {
		return nil, fmt.Errorf("store: list leases: %w", err)
	}
	defer rows.Close()

	out := make(map[string]map[string]bool)
	for rows.Next() {
		var kind, key string
		if err := rows.Scan(&kind, &key); err != nil {
			return nil, fmt.Errorf("store: scan lease: %w", err)
		}
		if out[kind] == nil {
			out[kind] = make(map[string]bool)
		}
		out[kind][key] = true
	}
	return out, rows.Err()
}
