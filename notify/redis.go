package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gr-butler/wxcore/alarm"
	"github.com/gr-butler/wxcore/env"
	"github.com/gr-butler/wxcore/station"
	"github.com/redis/go-redis/v9"
)

const snapshotTTL = 10 * time.Minute

type redisClient interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	HDel(ctx context.Context, key string, fields ...string) *redis.IntCmd
	Close() error
}

// RedisCache keeps <prefix>:snapshot as JSON with a TTL, so a stale key means the station has
// stopped, and the active alarms in the <prefix>:alarms hash keyed by kind.
type RedisCache struct {
	client    redisClient
	prefix    string
	snapshots *queue[station.Snapshot]
}

func NewRedisCache(cfg env.RedisConfig) *RedisCache {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return newRedisCache(client, cfg.Prefix)
}

func newRedisCache(client redisClient, prefix string) *RedisCache {
	return &RedisCache{client: client, prefix: prefix, snapshots: newQueue[station.Snapshot]("redis")}
}

func (c *RedisCache) PublishSnapshot(s station.Snapshot) {
	c.snapshots.offer(s)
}

func (c *RedisCache) Run(ctx context.Context) {
	c.snapshots.run(ctx, c.setSnapshot)
}

func (c *RedisCache) setSnapshot(ctx context.Context, s station.Snapshot) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	if err := c.client.Set(ctx, c.prefix+":snapshot", data, snapshotTTL).Err(); err != nil {
		return fmt.Errorf("failed to set snapshot in Redis: %w", err)
	}
	return nil
}

func (c *RedisCache) Notify(ctx context.Context, ev alarm.Event) error {
	key := c.prefix + ":alarms"
	if ev.Cleared {
		return c.client.HDel(ctx, key, string(ev.Alarm.Kind)).Err()
	}
	data, err := json.Marshal(ev.Alarm)
	if err != nil {
		return fmt.Errorf("failed to marshal alarm: %w", err)
	}
	if err := c.client.HSet(ctx, key, string(ev.Alarm.Kind), data).Err(); err != nil {
		return fmt.Errorf("failed to set alarm in Redis: %w", err)
	}
	return nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
