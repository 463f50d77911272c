package config

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/pkg/errors"

	"github.com/rushteam/feedrank/core"
	"github.com/rushteam/feedrank/store"
)

// Stores 是按配置打开的存储集合。
type Stores struct {
	// Fast 进程内快层，未启用时为 nil
	Fast core.Store

	// Durable 兴趣向量持久层（按配置包装熔断器），后端为 none 时为 nil
	Durable core.Store

	// KV 交互日志与结果缓存使用的 KV 后端；持久层为 none 时退化为进程内存储
	KV core.KeyValueStore

	closers []io.Closer
}

// OpenStores 按 Storage 配置打开存储。任一后端打开失败会关闭已打开的后端并返回错误。
func (c *Config) OpenStores(ctx context.Context, logger *slog.Logger) (*Stores, error) {
	s := &Stores{}
	sc := c.Storage

	if sc.FastEnabled {
		fast := store.NewMemoryStore(sc.FastMaxEntries)
		s.Fast = fast
		s.closers = append(s.closers, fast)
	}

	var kv core.KeyValueStore
	switch sc.Durable {
	case BackendRedis:
		rs, err := store.NewRedisStore(ctx, store.RedisConfig{
			Addr:         sc.Redis.Addr,
			Password:     sc.Redis.Password,
			DB:           sc.Redis.DB,
			KeyPrefix:    sc.Redis.KeyPrefix,
			PoolSize:     sc.Redis.PoolSize,
			DialTimeout:  sc.Redis.DialTimeout,
			ReadTimeout:  sc.Redis.ReadTimeout,
			WriteTimeout: sc.Redis.WriteTimeout,
		})
		if err != nil {
			_ = s.Close()
			return nil, errors.Wrapf(err, "open redis %s", sc.Redis.Addr)
		}
		kv = rs
	case BackendBadger:
		bs, err := store.NewBadgerStore(store.BadgerConfig{Path: sc.Badger.Path, InMemory: sc.Badger.InMemory})
		if err != nil {
			_ = s.Close()
			return nil, errors.Wrapf(err, "open badger %s", sc.Badger.Path)
		}
		kv = bs
	case BackendMemory:
		kv = store.NewMemoryStore(0)
	}

	if kv == nil {
		mem := store.NewMemoryStore(0)
		s.KV = mem
		s.closers = append(s.closers, mem)
		return s, nil
	}

	s.KV = kv
	s.closers = append(s.closers, kv)
	s.Durable = kv
	if sc.Breaker.Enabled {
		// 熔断器只包装向量持久层读写；Close 仍由 KV 负责
		s.Durable = store.NewBreakerStore(kv, store.BreakerConfig{
			FailureThreshold: sc.Breaker.FailureThreshold,
			Timeout:          sc.Breaker.Timeout,
			Interval:         sc.Breaker.Interval,
			MaxRequests:      sc.Breaker.MaxRequests,
		}, logger)
	}
	return s, nil
}

// Close 关闭全部已打开的后端，返回第一个错误。
func (s *Stores) Close() error {
	var first error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	s.closers = nil
	return first
}

// NewLogger 按 Log 配置创建 slog.Logger。
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
