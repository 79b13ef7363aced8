package distlock

import (
	"context"
	"database/sql"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DistLock is the interface for distributed locking.
// Implementations must be safe for use from a single goroutine;
// concurrent use across goroutines requires separate lock instances.
type DistLock interface {
	// Acquire tries to acquire the lock. Returns true if successful.
	Acquire(ctx context.Context) (bool, error)
	// Release releases the lock if we still own it.
	Release(ctx context.Context) error
}

// Factory builds a fresh lock instance for a key. The dispatch orchestrator
// asks for one per idempotency key per invocation.
type Factory func(key string) DistLock

// NewFactory returns a lock factory using the best available backend.
// If redisClient is non-nil, uses Redis (preferred for cross-host locking).
// Otherwise falls back to PostgreSQL advisory locks. With neither, locks are
// process-local.
func NewFactory(redisClient *redis.Client, db *sql.DB, ttl time.Duration) Factory {
	switch {
	case redisClient != nil:
		return func(key string) DistLock { return NewRedisLock(redisClient, key, ttl) }
	case db != nil:
		return func(key string) DistLock { return NewPGAdvisoryLock(db, key) }
	}
	local := NewLocalLocker()
	return local.Lock
}

// =============================================================================
// PostgreSQL Advisory Lock (fallback when Redis is unavailable)
// =============================================================================
// pg_try_advisory_lock is session-scoped, so the lock pins one pooled
// connection from Acquire until Release. The lock is released automatically
// if that connection drops.

// PGAdvisoryLock implements DistLock using PostgreSQL advisory locks.
type PGAdvisoryLock struct {
	db     *sql.DB
	conn   *sql.Conn
	lockID int64
}

// NewPGAdvisoryLock creates a PG advisory lock with a deterministic lock ID
// derived from the given key string.
func NewPGAdvisoryLock(db *sql.DB, key string) *PGAdvisoryLock {
	h := fnv.New64a()
	h.Write([]byte(key))
	return &PGAdvisoryLock{
		db:     db,
		lockID: int64(h.Sum64()),
	}
}

// Acquire tries to acquire the advisory lock without blocking.
func (l *PGAdvisoryLock) Acquire(ctx context.Context) (bool, error) {
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return false, fmt.Errorf("advisory lock conn: %w", err)
	}
	var acquired bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", l.lockID).Scan(&acquired); err != nil {
		conn.Close()
		return false, fmt.Errorf("advisory lock: %w", err)
	}
	if !acquired {
		conn.Close()
		return false, nil
	}
	l.conn = conn
	return true, nil
}

// Release releases the advisory lock and returns the pinned connection.
func (l *PGAdvisoryLock) Release(ctx context.Context) error {
	if l.conn == nil {
		return nil
	}
	defer func() {
		l.conn.Close()
		l.conn = nil
	}()
	_, err := l.conn.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", l.lockID)
	return err
}

// =============================================================================
// Process-local locks (tests, single-node dev)
// =============================================================================

// LocalLocker hands out locks that exclude each other within one process.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

// NewLocalLocker creates an empty process-local lock table.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]bool)}
}

// Lock returns a lock handle for key.
func (l *LocalLocker) Lock(key string) DistLock {
	return &localLock{owner: l, key: key}
}

type localLock struct {
	owner *LocalLocker
	key   string
	mine  bool
}

func (l *localLock) Acquire(_ context.Context) (bool, error) {
	l.owner.mu.Lock()
	defer l.owner.mu.Unlock()
	if l.owner.held[l.key] {
		return false, nil
	}
	l.owner.held[l.key] = true
	l.mine = true
	return true, nil
}

func (l *localLock) Release(_ context.Context) error {
	l.owner.mu.Lock()
	defer l.owner.mu.Unlock()
	if l.mine {
		delete(l.owner.held, l.key)
		l.mine = false
	}
	return nil
}
