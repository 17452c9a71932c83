package cacheprovider

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a CacheProvider backed by a redis.Client, grounded on the
// teacher's internal/queue/redisclient.Client (same dial/read/write
// timeouts), extended here with the
// Read/Write/Delete/DeleteMatching/Clear shape CacheProvider needs.
//
// Values are JSON-encoded; Read reports ok=false on both a cache miss
// and a decode failure, degrading to "treat as miss" per spec §7's
// CacheIO non-fatal-on-read policy. DeleteMatching scans keys under
// KeyPrefix with SCAN (not KEYS) to stay safe against a large keyspace.
type Redis struct {
	client     *redis.Client
	opTimeout  time.Duration
	keyPrefix  string
	defaultTTL time.Duration
}

// RedisConfig mirrors redisclient.Config from the teacher.
type RedisConfig struct {
	Addr       string
	Password   string
	DB         int
	KeyPrefix  string
	DefaultTTL time.Duration
	OpTimeout  time.Duration
}

func NewRedis(cfg RedisConfig) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	opTimeout := cfg.OpTimeout
	if opTimeout <= 0 {
		opTimeout = 2 * time.Second
	}

	return &Redis{
		client:     client,
		opTimeout:  opTimeout,
		keyPrefix:  cfg.KeyPrefix,
		defaultTTL: cfg.DefaultTTL,
	}
}

// Ping checks connectivity, mirroring redisclient.Client.Ping.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close releases the underlying connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) fullKey(key string) string {
	if r.keyPrefix == "" {
		return key
	}
	return r.keyPrefix + key
}

func (r *Redis) Read(key string) (any, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), r.opTimeout)
	defer cancel()

	raw, err := r.client.Get(ctx, r.fullKey(key)).Bytes()
	if err != nil {
		return nil, false
	}

	var val any
	if err := json.Unmarshal(raw, &val); err != nil {
		return nil, false
	}
	return val, true
}

func (r *Redis) Write(key string, val any, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = r.defaultTTL
	}

	raw, err := json.Marshal(val)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.opTimeout)
	defer cancel()

	return r.client.Set(ctx, r.fullKey(key), raw, ttl).Err()
}

func (r *Redis) Delete(key string) error {
	ctx, cancel := context.WithTimeout(context.Background(), r.opTimeout)
	defer cancel()
	return r.client.Del(ctx, r.fullKey(key)).Err()
}

func (r *Redis) DeleteMatching(predicate func(key string) bool) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*r.opTimeout)
	defer cancel()

	pattern := r.keyPrefix + "*"
	iter := r.client.Scan(ctx, 0, pattern, 100).Iterator()

	var toDelete []string
	for iter.Next(ctx) {
		full := iter.Val()
		bare := full
		if r.keyPrefix != "" {
			bare = full[len(r.keyPrefix):]
		}
		if predicate(bare) {
			toDelete = append(toDelete, full)
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(toDelete) == 0 {
		return nil
	}
	return r.client.Del(ctx, toDelete...).Err()
}

func (r *Redis) Clear() error {
	return r.DeleteMatching(func(string) bool { return true })
}
