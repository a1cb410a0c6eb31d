package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"smartchimera/internal/logging"
)

// Redis shares centrality scores between processes.
type Redis struct {
	rdb  *redis.Client
	opts Options
}

// NewRedis parses opts.RedisURL and creates a client. No connection is made
// until the first command.
func NewRedis(opts Options) (*Redis, error) {
	opts = opts.withDefaults()
	o, err := redis.ParseURL(opts.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	logging.Cache("redis centrality cache at %s db=%d prefix=%s ttl=%v", o.Addr, o.DB, opts.Prefix, opts.TTL)
	return &Redis{rdb: redis.NewClient(o), opts: opts}, nil
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(rdb *redis.Client, opts Options) *Redis {
	return &Redis{rdb: rdb, opts: opts.withDefaults()}
}

func (r *Redis) Name() string { return "redis" }

// Ping checks connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

// Get returns (nil, false, nil) on a miss.
func (r *Redis) Get(ctx context.Context, fingerprint string) (map[string]float64, bool, error) {
	timer := logging.StartTimer(logging.CategoryCache, "redis.Get")
	defer timer.Stop()

	raw, err := r.rdb.Get(ctx, key(r.opts.Prefix, fingerprint)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", fingerprint, err)
	}
	var scores map[string]float64
	if err := json.Unmarshal(raw, &scores); err != nil {
		logging.CacheWarn("discarding undecodable entry %s: %v", fingerprint, err)
		return nil, false, nil
	}
	return scores, true, nil
}

// Set writes scores with the configured TTL.
func (r *Redis) Set(ctx context.Context, fingerprint string, scores map[string]float64) error {
	timer := logging.StartTimer(logging.CategoryCache, "redis.Set")
	defer timer.Stop()

	raw, err := json.Marshal(scores)
	if err != nil {
		return fmt.Errorf("encode centrality scores: %w", err)
	}
	if err := r.rdb.Set(ctx, key(r.opts.Prefix, fingerprint), raw, r.opts.TTL).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", fingerprint, err)
	}
	return nil
}

func (r *Redis) Close() error {
	return r.rdb.Close()
}
