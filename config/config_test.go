package config

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/feedrank/core"
	"github.com/rushteam/feedrank/store"
)

func TestDefault_Valid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	fc := cfg.FeedEngineConfig()
	assert.Equal(t, 20, fc.PageSize)
	assert.Equal(t, 0.7, fc.LocalRatio)
	assert.Equal(t, 2*time.Minute, fc.CacheTTL)
	assert.Equal(t, 50, fc.Peers.TopK)
	assert.Equal(t, 4096, fc.InteractionQueue)

	vc := cfg.VectorCacheConfig()
	assert.Equal(t, 4*time.Hour, vc.FreshnessWindow)
	assert.Equal(t, "vec:", vc.KeyPrefix)

	bc := cfg.BuilderConfig()
	assert.Equal(t, 50, bc.TopK)
	assert.True(t, bc.Renormalize)
}

func TestParse_OverridesAndKeepsDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
log:
  level: debug
  format: json
feed:
  page_size: 10
  local_ratio: 0.6
  source_timeout: 500ms
vector:
  renormalize: false
quality:
  min_likes: 3
  rules:
    - 'item.title.contains("giveaway")'
`))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 10, cfg.Feed.PageSize)
	assert.Equal(t, 100, cfg.Feed.MaxPageSize)
	assert.Equal(t, 0.6, cfg.Feed.LocalRatio)
	assert.Equal(t, 500*time.Millisecond, cfg.Feed.SourceTimeout)
	assert.False(t, cfg.BuilderConfig().Renormalize)

	gate, err := cfg.QualityGate()
	require.NoError(t, err)
	assert.Equal(t, 3, gate.Config.MinLikes)
	assert.Len(t, gate.Rules, 1)
	// 未配置的阈值保持默认
	assert.Equal(t, 5, gate.Config.MaxReports)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown field", "feed:\n  pages: 3\n"},
		{"ratio out of range", "feed:\n  local_ratio: 1.5\n"},
		{"page size above max", "feed:\n  page_size: 200\n  max_page_size: 100\n"},
		{"bad log level", "log:\n  level: loud\n"},
		{"unknown backend", "storage:\n  durable: etcd\n"},
		{"historical window not after interest window", "vector:\n  interest_window: 720h\n  historical_window: 24h\n"},
		{"bad cel rule", "quality:\n  rules: ['item.like_count >']\n"},
		{"redis without addr", "storage:\n  durable: redis\n  redis:\n    addr: ''\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidConfig), "got %v", err)
			de := core.GetDomainError(err)
			require.NotNil(t, de)
			assert.Equal(t, core.ModuleConfig, de.Module)
		})
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feedrank.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage:\n  durable: memory\n"), 0o600))

	t.Setenv(EnvRedisAddr, "redis.internal:6380")
	t.Setenv(EnvRedisDB, "3")
	t.Setenv(EnvLogLevel, "warn")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, BackendRedis, cfg.Storage.Durable)
	assert.Equal(t, "redis.internal:6380", cfg.Storage.Redis.Addr)
	assert.Equal(t, 3, cfg.Storage.Redis.DB)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoad_EnvBadgerPath(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvBadgerPath, dir)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, BackendBadger, cfg.Storage.Durable)
	assert.Equal(t, dir, cfg.Storage.Badger.Path)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	t.Setenv(EnvRedisDB, "three")
	_, err = Load("")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidConfig))
}

func TestOpenStores(t *testing.T) {
	ctx := context.Background()

	t.Run("memory with breaker", func(t *testing.T) {
		cfg := Default()
		s, err := cfg.OpenStores(ctx, nil)
		require.NoError(t, err)
		defer s.Close()

		require.NotNil(t, s.Fast)
		require.NotNil(t, s.KV)
		_, isBreaker := s.Durable.(*store.BreakerStore)
		assert.True(t, isBreaker)

		require.NoError(t, s.Durable.Set(ctx, "k", []byte("v"), 0))
		v, err := s.KV.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, []byte("v"), v)
	})

	t.Run("no durable backend", func(t *testing.T) {
		cfg := Default()
		cfg.Storage.Durable = BackendNone
		cfg.Storage.FastEnabled = false
		s, err := cfg.OpenStores(ctx, nil)
		require.NoError(t, err)
		defer s.Close()

		assert.Nil(t, s.Fast)
		assert.Nil(t, s.Durable)
		assert.NotNil(t, s.KV)
	})

	t.Run("badger in memory", func(t *testing.T) {
		cfg := Default()
		cfg.Storage.Durable = BackendBadger
		cfg.Storage.Badger.InMemory = true
		cfg.Storage.Breaker.Enabled = false
		require.NoError(t, cfg.Validate())

		s, err := cfg.OpenStores(ctx, nil)
		require.NoError(t, err)
		defer s.Close()

		_, isBadger := s.Durable.(*store.BadgerStore)
		assert.True(t, isBadger)
	})
}

func TestNewLogger(t *testing.T) {
	cfg := Default()
	cfg.Log.Format = "json"
	cfg.Log.Level = "warn"

	var buf bytes.Buffer
	logger := cfg.NewLogger(&buf)
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
}
