package feed

import (
	"context"
	"log/slog"
	"time"

	"github.com/rushteam/feedrank/core"
	"github.com/rushteam/feedrank/pkg/metrics"
	"github.com/rushteam/feedrank/profile"
)

const (
	resultKeyPrefix = "feed:"
	resultIndexKey  = "feedidx:"
	tierResult      = "result"
)

// resultCache 缓存个性化排序结果（短 TTL），并按用户维护 key 索引，
// 年级变化或兴趣漂移时可以一次失效该用户的所有分页。
type resultCache struct {
	kv  core.KeyValueStore
	ttl time.Duration

	logger  *slog.Logger
	metrics *metrics.Metrics
}

func (c *resultCache) get(ctx context.Context, key string) (*Result, bool) {
	if c == nil || c.kv == nil {
		return nil, false
	}
	data, err := c.kv.Get(ctx, resultKeyPrefix+key)
	if err != nil {
		if core.IsStoreNotFound(err) {
			c.metrics.RecordCacheLookup(tierResult, "miss")
		} else {
			c.metrics.RecordCacheLookup(tierResult, "error")
			c.logger.Warn("feed cache read failed", "cache_key", key, "error", err)
		}
		return nil, false
	}
	entry, err := profile.DecodeEntry[*Result](data)
	if err != nil || entry.Value == nil {
		c.metrics.RecordCacheLookup(tierResult, "error")
		c.logger.Warn("feed cache entry corrupt", "cache_key", key, "error", err)
		return nil, false
	}
	c.metrics.RecordCacheLookup(tierResult, "fresh")
	return entry.Value, true
}

func (c *resultCache) put(ctx context.Context, userID, key string, res *Result, now time.Time) {
	if c == nil || c.kv == nil {
		return
	}
	data, err := profile.EncodeEntry(profile.CacheEntry[*Result]{
		Value:      res,
		ComputedAt: now,
		TTL:        c.ttl,
		Tier:       tierResult,
	})
	if err != nil {
		c.logger.Error("feed cache encode failed", "cache_key", key, "error", err)
		return
	}
	if err := c.kv.Set(ctx, resultKeyPrefix+key, data, c.ttl); err != nil {
		c.logger.Warn("feed cache write failed", "cache_key", key, "error", err)
		return
	}
	if err := c.kv.HSet(ctx, resultIndexKey+userID, key, []byte("1")); err != nil {
		c.logger.Warn("feed cache index write failed", "user_id", userID, "error", err)
	}
}

// invalidateUser 删除用户所有已缓存的分页，返回删除的条目数。
func (c *resultCache) invalidateUser(ctx context.Context, userID string) int {
	if c == nil || c.kv == nil {
		return 0
	}
	index, err := c.kv.HGetAll(ctx, resultIndexKey+userID)
	if err != nil {
		if !core.IsStoreNotFound(err) {
			c.logger.Warn("feed cache index read failed", "user_id", userID, "error", err)
		}
		return 0
	}
	fields := make([]string, 0, len(index))
	for key := range index {
		if err := c.kv.Delete(ctx, resultKeyPrefix+key); err != nil {
			c.logger.Warn("feed cache delete failed", "cache_key", key, "error", err)
			continue
		}
		fields = append(fields, key)
	}
	if len(fields) > 0 {
		if err := c.kv.HDel(ctx, resultIndexKey+userID, fields...); err != nil {
			c.logger.Warn("feed cache index delete failed", "user_id", userID, "error", err)
		}
	}
	return len(fields)
}
