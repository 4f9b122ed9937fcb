// Package distlock serializes stage execution per schedule across the
// worker pool, the API server, and the operator CLI.
package distlock

import (
	"context"
	"database/sql"
	"hash/fnv"
	"time"

	"github.com/redis/go-redis/v9"
)

// DistLock is a single-owner lock around one schedule's stage mutations.
// An instance belongs to one goroutine; concurrent holders need their own
// instances.
type DistLock interface {
	// Acquire tries to take the lock without blocking. Returns true on
	// success.
	Acquire(ctx context.Context) (bool, error)
	// Release gives the lock back if this instance still owns it.
	Release(ctx context.Context) error
}

// NewLock picks the backend: Redis when a client is configured (shared with
// the job queue), otherwise a Postgres advisory lock on the database that
// already holds the schedules.
func NewLock(redisClient *redis.Client, db *sql.DB, key string, ttl time.Duration) DistLock {
	if redisClient != nil {
		return NewRedisLock(redisClient, key, ttl)
	}
	return NewAdvisoryLock(db, key)
}

// AdvisoryLock backs DistLock with pg_try_advisory_lock. The lock is
// session-scoped, so a crashed holder's connection drop releases it, which
// substitutes for the Redis TTL.
type AdvisoryLock struct {
	db     *sql.DB
	lockID int64
}

// NewAdvisoryLock derives a stable 64-bit advisory id from the lock key.
func NewAdvisoryLock(db *sql.DB, key string) *AdvisoryLock {
	h := fnv.New64a()
	h.Write([]byte(key))
	return &AdvisoryLock{db: db, lockID: int64(h.Sum64())}
}

// Acquire is non-blocking; a lock held elsewhere returns false immediately.
func (l *AdvisoryLock) Acquire(ctx context.Context) (bool, error) {
	var ok bool
	err := l.db.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", l.lockID).Scan(&ok)
	return ok, err
}

// Release unlocks the advisory id.
func (l *AdvisoryLock) Release(ctx context.Context) error {
	_, err := l.db.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", l.lockID)
	return err
}
