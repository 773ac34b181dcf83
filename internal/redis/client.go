package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	connectTimeout = 5 * time.Second
	// Lock acquire/release round-trips must be fast; a slot lock held while
	// Redis stalls would serialize every booking on that slot.
	lockOpTimeout = 2 * time.Second
)

// NewClient connects the client backing the per-slot booking locks. Bookings
// cannot proceed without the lock service, so connectivity problems surface
// at startup instead of on the first booking request.
func NewClient(addr, username, password string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Username:     username,
		Password:     password,
		DialTimeout:  connectTimeout,
		ReadTimeout:  lockOpTimeout,
		WriteTimeout: lockOpTimeout,
		PoolSize:     10,
		MinIdleConns: 1,
	})

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return rdb, nil
}
