package db

import (
	"context"
	"database/sql"
	"fmt"
	"hash/fnv"
)

// AdvisoryLocker hands out session-level PostgreSQL advisory locks keyed by name.
// A lock lives on a dedicated connection that is returned to the pool on release.
type AdvisoryLocker struct {
	db *sql.DB
}

func NewAdvisoryLocker(db *sql.DB) *AdvisoryLocker {
	return &AdvisoryLocker{db: db}
}

// TryLock attempts to take the named lock without waiting. ok is false when
// another session already holds it.
func (l *AdvisoryLocker) TryLock(ctx context.Context, name string) (release func(), ok bool, err error) {
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire connection for lock %q: %w", name, err)
	}

	key := lockKey(name)
	if err := conn.QueryRowContext(ctx, `SELECT pg_try_advisory_lock($1)`, key).Scan(&ok); err != nil {
		conn.Close()
		return nil, false, fmt.Errorf("failed to try advisory lock %q: %w", name, err)
	}
	if !ok {
		conn.Close()
		return nil, false, nil
	}

	release = func() {
		// Unlock on a fresh context: the caller's one may already be cancelled.
		_, _ = conn.ExecContext(context.Background(), `SELECT pg_advisory_unlock($1)`, key)
		conn.Close()
	}
	return release, true, nil
}

func lockKey(name string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return int64(h.Sum64())
}
