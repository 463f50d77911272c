package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/rushteam/feedrank/config"
	"github.com/rushteam/feedrank/feed"
	"github.com/rushteam/feedrank/pkg/metrics"
	"github.com/rushteam/feedrank/pkg/worker"
	"github.com/rushteam/feedrank/profile"
	"github.com/rushteam/feedrank/store"
)

// interactionKeyPrefix 是交互日志在 KV 后端中的 key 前缀。
const interactionKeyPrefix = "ix:"

// app 持有一次命令执行所需的全部组件。
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	stores  *config.Stores
	feeds   *store.MemoryFeedStore
	vectors *profile.StableCache
	refresh *worker.Pool
	engine  *feed.Engine
}

func newApp(cmd *cobra.Command) (*app, error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cfgPath, _ := cmd.Flags().GetString("config")
	fixturePath, _ := cmd.Flags().GetString("fixture")

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	logger := cfg.NewLogger(cmd.ErrOrStderr())

	fx, err := loadFixture(fixturePath)
	if err != nil {
		return nil, err
	}

	stores, err := cfg.OpenStores(ctx, logger)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger, stores: stores, feeds: store.NewMemoryFeedStore()}

	interactions := store.NewStoreInteractionAdapter(stores.KV, interactionKeyPrefix)
	if err := fx.apply(ctx, a.feeds, interactions); err != nil {
		a.close()
		return nil, err
	}

	now := time.Now
	if !fx.Now.IsZero() {
		fixed := fx.Now
		now = func() time.Time { return fixed }
	}

	m := metrics.New(prometheus.NewRegistry())
	a.refresh = worker.NewPool(cfg.RefreshPoolConfig(), logger, m)
	a.vectors = profile.NewStableCache(cfg.VectorCacheConfig(), stores.Fast, stores.Durable, interactions,
		profile.NewBuilder(cfg.BuilderConfig()),
		profile.WithClock(now),
		profile.WithLogger(logger),
		profile.WithMetrics(m),
		profile.WithRefreshPool(a.refresh),
	)

	gate, err := cfg.QualityGate()
	if err != nil {
		a.close()
		return nil, err
	}
	a.engine, err = feed.NewEngine(cfg.FeedEngineConfig(), feed.Deps{
		Candidates:   a.feeds,
		Users:        a.feeds,
		Peers:        a.feeds,
		Interactions: interactions,
		Vectors:      a.vectors,
		ResultCache:  stores.KV,
	},
		feed.WithLogger(logger),
		feed.WithMetrics(m),
		feed.WithClock(now),
		feed.WithQualityGate(gate),
	)
	if err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

// close 等待后台任务完成后关闭存储。
func (a *app) close() {
	if a.engine != nil {
		a.engine.Flush()
		_ = a.engine.Close()
	}
	if a.refresh != nil {
		a.refresh.Wait()
		a.refresh.Close()
	}
	if err := a.stores.Close(); err != nil {
		a.logger.Warn("close stores failed", "error", err)
	}
}

func writeJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode output")
	}
	data = append(data, '\n')
	_, err = cmd.OutOrStdout().Write(data)
	return err
}
