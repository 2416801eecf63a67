package router

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisAdapter wraps go-redis v9 to implement RedisClient, the same
// concrete-adapter-behind-a-minimal-interface shape the teacher uses for
// its own Redis-backed hub store.
type RedisAdapter struct {
	rdb *redis.Client
}

// NewRedisAdapter connects to addr and pings it before returning,
// matching the teacher's "verify connectivity up front, let the caller
// decide whether to fall back" pattern.
func NewRedisAdapter(addr, password string, db int) (*RedisAdapter, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     20,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("router: redis ping %s: %w", addr, err)
	}

	slog.Info("router: redis connected", "addr", addr, "db", db)
	return &RedisAdapter{rdb: rdb}, nil
}

// Close shuts down the underlying client.
func (a *RedisAdapter) Close() error { return a.rdb.Close() }

func (a *RedisAdapter) SAdd(ctx context.Context, key string, members ...string) error {
	anyMembers := make([]any, len(members))
	for i, m := range members {
		anyMembers[i] = m
	}
	return a.rdb.SAdd(ctx, key, anyMembers...).Err()
}

func (a *RedisAdapter) SRem(ctx context.Context, key string, members ...string) error {
	anyMembers := make([]any, len(members))
	for i, m := range members {
		anyMembers[i] = m
	}
	return a.rdb.SRem(ctx, key, anyMembers...).Err()
}

func (a *RedisAdapter) SMembers(ctx context.Context, key string) ([]string, error) {
	return a.rdb.SMembers(ctx, key).Result()
}

var _ RedisClient = (*RedisAdapter)(nil)
