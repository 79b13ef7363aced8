package distlock

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return client, mr
}

func TestRedisLock_ExcludesSecondOwner(t *testing.T) {
	client, _ := setupTestRedis(t)
	ctx := context.Background()

	first := NewRedisLock(client, "lead-1:sms:1", time.Minute)
	second := NewRedisLock(client, "lead-1:sms:1", time.Minute)

	ok, err := first.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "second owner must not acquire a held key")

	// Releasing a lock we don't own is a no-op.
	require.NoError(t, second.Release(ctx))
	ok, _ = second.Acquire(ctx)
	assert.False(t, ok)

	require.NoError(t, first.Release(ctx))
	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLock_ExpiresAfterTTL(t *testing.T) {
	client, mr := setupTestRedis(t)
	ctx := context.Background()

	lock := NewRedisLock(client, "k", 5*time.Second)
	ok, err := lock.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(6 * time.Second)

	other := NewRedisLock(client, "k", 5*time.Second)
	ok, err = other.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLock_Extend(t *testing.T) {
	client, mr := setupTestRedis(t)
	ctx := context.Background()

	lock := NewRedisLock(client, "k", 5*time.Second)
	ok, _ := lock.Acquire(ctx)
	require.True(t, ok)

	extended, err := lock.Extend(ctx, time.Minute)
	require.NoError(t, err)
	assert.True(t, extended)
	mr.FastForward(10 * time.Second)
	assert.True(t, mr.Exists("lock:k"))

	mr.FastForward(time.Minute)
	extended, err = lock.Extend(ctx, time.Minute)
	require.NoError(t, err)
	assert.False(t, extended, "an expired lock cannot be extended")
}

func TestKeepAlive_RenewsUntilStopped(t *testing.T) {
	client, mr := setupTestRedis(t)
	ctx := context.Background()

	lock := NewRedisLock(client, "k", 5*time.Second)
	ok, _ := lock.Acquire(ctx)
	require.True(t, ok)

	ka := KeepAlive(ctx, lock, 5*time.Millisecond)
	for i := 0; i < 4; i++ {
		mr.FastForward(3 * time.Second)
		time.Sleep(30 * time.Millisecond)
	}
	held, err := ka.Held(ctx)
	require.NoError(t, err)
	assert.True(t, held, "12s of lock time passed under a 5s ttl")

	ka.Stop()
	mr.FastForward(6 * time.Second)
	assert.False(t, mr.Exists("lock:k"))
}

func TestKeepAlive_ReportsLostLock(t *testing.T) {
	client, mr := setupTestRedis(t)
	ctx := context.Background()

	lock := NewRedisLock(client, "k", 5*time.Second)
	ok, _ := lock.Acquire(ctx)
	require.True(t, ok)

	ka := KeepAlive(ctx, lock, time.Hour)
	defer ka.Stop()

	mr.FastForward(6 * time.Second)
	thief := NewRedisLock(client, "k", 5*time.Second)
	ok, _ = thief.Acquire(ctx)
	require.True(t, ok)

	held, err := ka.Held(ctx)
	require.NoError(t, err)
	assert.False(t, held)
	held, _ = ka.Held(ctx)
	assert.False(t, held, "a lost lock stays lost")
}

func TestKeepAlive_NonExpiringLock(t *testing.T) {
	ctx := context.Background()
	lock := NewLocalLocker().Lock("k")
	ok, _ := lock.Acquire(ctx)
	require.True(t, ok)

	ka := KeepAlive(ctx, lock, 0)
	held, err := ka.Held(ctx)
	require.NoError(t, err)
	assert.True(t, held)
	ka.Stop()
	ka.Stop()
}

func TestLocalLocker(t *testing.T) {
	ctx := context.Background()
	locker := NewLocalLocker()

	a := locker.Lock("key")
	b := locker.Lock("key")
	c := locker.Lock("other")

	ok, _ := a.Acquire(ctx)
	assert.True(t, ok)
	ok, _ = b.Acquire(ctx)
	assert.False(t, ok)
	ok, _ = c.Acquire(ctx)
	assert.True(t, ok)

	// Release by a non-owner must not free the key.
	require.NoError(t, b.Release(ctx))
	ok, _ = b.Acquire(ctx)
	assert.False(t, ok)

	require.NoError(t, a.Release(ctx))
	ok, _ = b.Acquire(ctx)
	assert.True(t, ok)
}

func TestPGAdvisoryLock(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	lock := NewPGAdvisoryLock(db, "lead-1:email:1")

	mock.ExpectQuery("SELECT pg_try_advisory_lock").
		WithArgs(lock.lockID).
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(true))
	mock.ExpectExec("SELECT pg_advisory_unlock").
		WithArgs(lock.lockID).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := lock.Acquire(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, lock.Release(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewFactory_FallsBackToLocal(t *testing.T) {
	factory := NewFactory(nil, nil, time.Minute)
	ctx := context.Background()

	ok, _ := factory("k").Acquire(ctx)
	assert.True(t, ok)
	ok, _ = factory("k").Acquire(ctx)
	assert.False(t, ok, "locks from the same factory share one table")
}
