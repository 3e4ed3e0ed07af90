// Package distlock provides a cross-process lock for the campaign
// scheduler: Redis when available, Postgres advisory locks otherwise.
package distlock

import (
	"context"
	"database/sql"
	"hash/fnv"
	"time"

	"github.com/redis/go-redis/v9"
)

// DistLock guards a critical section across processes. A lock instance
// belongs to one goroutine; share the key, not the instance.
type DistLock interface {
	// Acquire is non-blocking and reports whether the lock was taken.
	Acquire(ctx context.Context) (bool, error)
	// Release frees the lock, provided this instance still holds it.
	Release(ctx context.Context) error
}

// NewLock picks the backend: Redis when a client is configured (works
// across hosts), otherwise a Postgres advisory lock on the shared
// database.
func NewLock(redisClient *redis.Client, db *sql.DB, key string, ttl time.Duration) DistLock {
	if redisClient != nil {
		return NewRedisLock(redisClient, key, ttl)
	}
	return NewAdvisoryLock(db, key)
}

// AdvisoryLock maps a string key onto a pg_try_advisory_lock ID. The
// database releases it when the session dies, which stands in for the
// TTL the Redis variant has.
type AdvisoryLock struct {
	db *sql.DB
	id int64
}

func NewAdvisoryLock(db *sql.DB, key string) *AdvisoryLock {
	h := fnv.New64a()
	h.Write([]byte(key))
	return &AdvisoryLock{db: db, id: int64(h.Sum64())}
}

func (l *AdvisoryLock) Acquire(ctx context.Context) (bool, error) {
	var got bool
	err := l.db.QueryRowContext(ctx, `SELECT pg_try_advisory_lock($1)`, l.id).Scan(&got)
	return got, err
}

func (l *AdvisoryLock) Release(ctx context.Context) error {
	_, err := l.db.ExecContext(ctx, `SELECT pg_advisory_unlock($1)`, l.id)
	return err
}
