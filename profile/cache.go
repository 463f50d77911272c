package profile

import (
	"context"
	"hash/fnv"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/rushteam/feedrank/core"
	"github.com/rushteam/feedrank/pkg/coalesce"
	"github.com/rushteam/feedrank/pkg/metrics"
	"github.com/rushteam/feedrank/pkg/worker"
)

// Source 表示一次读取的向量来源。
type Source string

const (
	SourceFresh    Source = "fresh"    // 缓存命中且在新鲜度窗口内
	SourceStale    Source = "stale"    // 缓存命中但已过期，已提交后台刷新
	SourceComputed Source = "computed" // 缓存缺失，同步计算
	SourceDefault  Source = "default"  // 交互不足或数据不可用，年级默认先验
)

// CacheConfig 是两级向量缓存参数。
type CacheConfig struct {
	// FreshnessWindow 新鲜度窗口，超过即为过期（仍可返回）
	FreshnessWindow time.Duration

	// InterestWindow 近期兴趣窗口；HistoricalWindow 历史窗口上界（用于漂移比较）
	InterestWindow   time.Duration
	HistoricalWindow time.Duration

	// MinInteractions 近期交互少于该值时使用年级默认向量
	MinInteractions int

	// DriftThreshold 近期/历史余弦相似度低于该值视为漂移
	DriftThreshold float64

	// FastTTL / DurableTTL 两层的条目 TTL，<= 0 表示不过期
	FastTTL    time.Duration
	DurableTTL time.Duration

	// KeyPrefix 缓存 key 前缀
	KeyPrefix string
}

// DefaultCacheConfig 返回默认参数。
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		FreshnessWindow:  core.DefaultFreshnessWindow,
		InterestWindow:   core.DefaultInterestWindow,
		HistoricalWindow: core.DefaultHistoricalWindow,
		MinInteractions:  core.DefaultMinInteractions,
		DriftThreshold:   core.DefaultDriftThreshold,
		FastTTL:          24 * time.Hour,
		DurableTTL:       30 * 24 * time.Hour,
		KeyPrefix:        "vec:",
	}
}

// StableCache 是兴趣向量的两级缓存：快层（进程内，可缺失）-> 持久层 -> 计算。
//
// 读取规则：
//   - 新鲜（now - LastUpdated < FreshnessWindow）：直接返回
//   - 过期：立即返回旧值，同时向后台执行池提交刷新（按用户去重）
//   - 缺失：同步计算（同一用户的并发计算被合并）；交互不足时返回年级默认向量且不缓存
//
// 年级变化会被记住：之后任何重算（包括变化前已提交的后台刷新）写回前都会重新应用新的年级权重。
// 任意一层读写失败只记录日志并降级到下一层，不向调用方返回错误。
type StableCache struct {
	cfg CacheConfig

	fast    core.Store // 可为 nil
	durable core.Store // 可为 nil

	interactions core.InteractionStore
	builder      *Builder
	pool         *worker.Pool // 可为 nil，nil 时不做后台刷新
	group        *coalesce.Group[*core.InterestVector]

	// transitions 记录每个用户最近一次年级变化
	transitions sync.Map // userID -> gradeShift
	// writeLocks 按用户分片，串行化“应用年级变化 + 写回”
	writeLocks [32]sync.Mutex

	now     func() time.Time
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// CacheOption 是 StableCache 的可选配置。
type CacheOption func(*StableCache)

// WithClock 注入时钟（测试用）。
func WithClock(now func() time.Time) CacheOption {
	return func(c *StableCache) { c.now = now }
}

// WithLogger 设置日志。
func WithLogger(l *slog.Logger) CacheOption {
	return func(c *StableCache) { c.logger = l }
}

// WithMetrics 设置指标。
func WithMetrics(m *metrics.Metrics) CacheOption {
	return func(c *StableCache) { c.metrics = m }
}

// WithRefreshPool 设置后台刷新执行池。
func WithRefreshPool(p *worker.Pool) CacheOption {
	return func(c *StableCache) { c.pool = p }
}

// NewStableCache 创建两级缓存。fast / durable 可为 nil（对应层视为缺失）。
func NewStableCache(cfg CacheConfig, fast, durable core.Store, interactions core.InteractionStore, builder *Builder, opts ...CacheOption) *StableCache {
	def := DefaultCacheConfig()
	if cfg.FreshnessWindow <= 0 {
		cfg.FreshnessWindow = def.FreshnessWindow
	}
	if cfg.InterestWindow <= 0 {
		cfg.InterestWindow = def.InterestWindow
	}
	if cfg.HistoricalWindow <= cfg.InterestWindow {
		cfg.HistoricalWindow = cfg.InterestWindow * 3
	}
	if cfg.MinInteractions <= 0 {
		cfg.MinInteractions = def.MinInteractions
	}
	if cfg.DriftThreshold <= 0 {
		cfg.DriftThreshold = def.DriftThreshold
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = def.KeyPrefix
	}
	if builder == nil {
		builder = NewBuilder(DefaultBuilderConfig())
	}

	c := &StableCache{
		cfg:          cfg,
		fast:         fast,
		durable:      durable,
		interactions: interactions,
		builder:      builder,
		now:          time.Now,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "vector_cache")
	c.group = coalesce.New[*core.InterestVector](0, c.logger, c.metrics)
	return c
}

type gradeShift struct {
	from, to string
}

func (c *StableCache) key(userID string) string { return c.cfg.KeyPrefix + userID }

// Get 返回用户兴趣向量及其来源。grade 用于交互不足时的默认向量。
// 只有 ctx 结束时返回错误。
func (c *StableCache) Get(ctx context.Context, userID, grade string) (*core.InterestVector, Source, error) {
	now := c.now()

	if vec, ok := c.read(ctx, c.fast, TierFast, userID); ok {
		return c.serve(vec, userID, grade, now)
	}
	if vec, ok := c.read(ctx, c.durable, TierDurable, userID); ok {
		c.write(ctx, c.fast, TierFast, vec, c.cfg.FastTTL)
		return c.serve(vec, userID, grade, now)
	}
	return c.compute(ctx, userID, grade, now)
}

// compute 在两层都缺失时同步计算，同一用户的并发计算被合并。
func (c *StableCache) compute(ctx context.Context, userID, grade string, now time.Time) (*core.InterestVector, Source, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}

	vec, _, err := c.group.Do(ctx, userID, func(ctx context.Context) (*core.InterestVector, error) {
		return c.recompute(ctx, userID, grade)
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, "", ctxErr
		}
		c.logger.Warn("vector compute failed, using grade default", "user_id", userID, "error", err)
		return DefaultVector(userID, grade, now), SourceDefault, nil
	}
	if vec.Metadata.Default {
		return vec, SourceDefault, nil
	}
	return vec, SourceComputed, nil
}

func (c *StableCache) serve(vec *core.InterestVector, userID, grade string, now time.Time) (*core.InterestVector, Source, error) {
	if vec.IsFresh(now, c.cfg.FreshnessWindow) {
		return vec, SourceFresh, nil
	}
	c.scheduleRefresh(userID, grade)
	return vec, SourceStale, nil
}

// scheduleRefresh 提交后台刷新；同一用户的刷新执行期间不会重复提交。
func (c *StableCache) scheduleRefresh(userID, grade string) {
	if c.pool == nil {
		return
	}
	c.pool.Submit("refresh:"+userID, func(ctx context.Context) error {
		_, err := c.recompute(ctx, userID, grade)
		return err
	})
}

// Refresh 同步重算并写回（忽略缓存）。
func (c *StableCache) Refresh(ctx context.Context, userID, grade string) (*core.InterestVector, error) {
	return c.recompute(ctx, userID, grade)
}

// recompute 计算近期与历史向量，记录漂移分并写回两层。
// 近期交互不足时返回年级默认向量且不写缓存。
func (c *StableCache) recompute(ctx context.Context, userID, grade string) (*core.InterestVector, error) {
	now := c.now()
	recent, historical, err := c.buildWindows(ctx, userID, now)
	if err != nil {
		return nil, err
	}
	if recent.Metadata.InteractionCount < c.cfg.MinInteractions {
		return DefaultVector(userID, grade, now), nil
	}

	drift := DetectDrift(recent, historical, c.cfg.DriftThreshold)
	recent.Metadata.DriftScore = drift.Severity
	if drift.Drifted {
		c.metrics.RecordDrift()
		c.logger.Info("interest drift detected", "user_id", userID, "similarity", drift.Similarity)
	}
	return c.store(ctx, userID, recent, now), nil
}

func (c *StableCache) writeLock(userID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return &c.writeLocks[h.Sum32()%uint32(len(c.writeLocks))]
}

// store 应用年级变化后写回两层，返回实际写入的向量。
func (c *StableCache) store(ctx context.Context, userID string, vec *core.InterestVector, now time.Time) *core.InterestVector {
	mu := c.writeLock(userID)
	mu.Lock()
	defer mu.Unlock()
	vec = c.applyShift(userID, vec, now)
	c.Put(ctx, vec)
	return vec
}

// applyShift 对重算结果重新应用该用户记录的年级变化。
func (c *StableCache) applyShift(userID string, vec *core.InterestVector, now time.Time) *core.InterestVector {
	v, ok := c.transitions.Load(userID)
	if !ok {
		return vec
	}
	shift := v.(gradeShift)
	out := ApplyGradeTransition(vec, shift.from, shift.to, now)
	out.Metadata.DriftScore = vec.Metadata.DriftScore
	return out
}

func (c *StableCache) buildWindows(ctx context.Context, userID string, now time.Time) (recent, historical *core.InterestVector, err error) {
	split := now.Add(-c.cfg.InterestWindow)
	recentEvents, err := c.interactions.ListInteractions(ctx, userID, split, time.Time{})
	if err != nil {
		return nil, nil, errors.Wrap(err, "list recent interactions")
	}
	histEvents, err := c.interactions.ListInteractions(ctx, userID, now.Add(-c.cfg.HistoricalWindow), split)
	if err != nil {
		return nil, nil, errors.Wrap(err, "list historical interactions")
	}
	return c.builder.Build(userID, recentEvents, now), c.builder.Build(userID, histEvents, now), nil
}

// CheckDrift 比较近期与历史兴趣，检测到漂移时强制重算并写回。
func (c *StableCache) CheckDrift(ctx context.Context, userID string) (DriftResult, error) {
	now := c.now()
	recent, historical, err := c.buildWindows(ctx, userID, now)
	if err != nil {
		return DriftResult{}, err
	}
	res := DetectDrift(recent, historical, c.cfg.DriftThreshold)
	if res.Drifted && recent.Metadata.InteractionCount >= c.cfg.MinInteractions {
		recent.Metadata.DriftScore = res.Severity
		c.metrics.RecordDrift()
		c.store(ctx, userID, recent, now)
	}
	return res, nil
}

// TransitionGrade 处理年级升级：在当前向量上重置年级权重并写回两层。
// 读取当前向量时不提交后台刷新；已在排队或执行中的刷新写回前也会应用这次变化。
func (c *StableCache) TransitionGrade(ctx context.Context, userID, oldGrade, newGrade string) (*core.InterestVector, error) {
	c.transitions.Store(userID, gradeShift{from: oldGrade, to: newGrade})

	now := c.now()
	cur, ok := c.read(ctx, c.fast, TierFast, userID)
	if !ok {
		cur, ok = c.read(ctx, c.durable, TierDurable, userID)
	}
	if !ok {
		var err error
		if cur, _, err = c.compute(ctx, userID, oldGrade, now); err != nil {
			return nil, err
		}
	}
	next := ApplyGradeTransition(cur, oldGrade, newGrade, now)
	next.OwnerID = userID
	if cur.Metadata.Default {
		// 默认向量不缓存，下次读取会按新年级重新生成
		next.Metadata.Default = true
		return next, nil
	}
	return c.store(ctx, userID, next, now), nil
}

// Put 写入两层（先持久层后快层），失败只记录日志。
func (c *StableCache) Put(ctx context.Context, vec *core.InterestVector) {
	if vec == nil || vec.OwnerID == "" {
		return
	}
	c.write(ctx, c.durable, TierDurable, vec, c.cfg.DurableTTL)
	c.write(ctx, c.fast, TierFast, vec, c.cfg.FastTTL)
}

// Invalidate 从两层删除用户向量。
func (c *StableCache) Invalidate(ctx context.Context, userID string) {
	for _, t := range []struct {
		s    core.Store
		name string
	}{{c.fast, TierFast}, {c.durable, TierDurable}} {
		if t.s == nil {
			continue
		}
		if err := t.s.Delete(ctx, c.key(userID)); err != nil {
			c.logger.Warn("vector cache delete failed", "tier", t.name, "user_id", userID, "error", err)
		}
	}
}

func (c *StableCache) read(ctx context.Context, s core.Store, tier, userID string) (*core.InterestVector, bool) {
	if s == nil {
		return nil, false
	}
	data, err := s.Get(ctx, c.key(userID))
	if err != nil {
		if core.IsStoreNotFound(err) {
			c.metrics.RecordCacheLookup(tier, "miss")
		} else {
			c.metrics.RecordCacheLookup(tier, "error")
			c.logger.Warn("vector cache read failed", "tier", tier, "user_id", userID, "error", err)
		}
		return nil, false
	}
	entry, err := DecodeEntry[*core.InterestVector](data)
	if err != nil || entry.Value == nil {
		c.metrics.RecordCacheLookup(tier, "error")
		c.logger.Warn("vector cache entry corrupt", "tier", tier, "user_id", userID, "error", err)
		return nil, false
	}
	if entry.Value.IsFresh(c.now(), c.cfg.FreshnessWindow) {
		c.metrics.RecordCacheLookup(tier, "fresh")
	} else {
		c.metrics.RecordCacheLookup(tier, "stale")
	}
	return entry.Value, true
}

func (c *StableCache) write(ctx context.Context, s core.Store, tier string, vec *core.InterestVector, ttl time.Duration) {
	if s == nil {
		return
	}
	data, err := EncodeEntry(CacheEntry[*core.InterestVector]{
		Value:      vec,
		ComputedAt: vec.Metadata.LastUpdated,
		TTL:        ttl,
		Tier:       tier,
	})
	if err != nil {
		c.logger.Error("vector cache encode failed", "user_id", vec.OwnerID, "error", err)
		return
	}
	if err := s.Set(ctx, c.key(vec.OwnerID), data, ttl); err != nil {
		c.logger.Warn("vector cache write failed", "tier", tier, "user_id", vec.OwnerID, "error", err)
	}
}

// PeerVectors 批量返回同伴兴趣向量，供协同过滤使用。
// 两层各做一次批量读取，持久层命中回填快层；都缺失的同伴并发计算。
// 默认先验不代表真实兴趣，不出现在结果中；同伴的过期向量照常使用，不为其提交刷新。
func (c *StableCache) PeerVectors(ctx context.Context, userIDs []string) (map[string]*core.InterestVector, error) {
	out := make(map[string]*core.InterestVector, len(userIDs))
	missing := c.readMany(ctx, c.fast, TierFast, userIDs, out)
	if len(missing) > 0 {
		found := make(map[string]*core.InterestVector, len(missing))
		missing = c.readMany(ctx, c.durable, TierDurable, missing, found)
		c.writeMany(ctx, c.fast, TierFast, found, c.cfg.FastTTL)
		maps.Copy(out, found)
	}
	if len(missing) == 0 {
		return out, nil
	}

	now := c.now()
	var (
		mu sync.Mutex
		eg errgroup.Group
	)
	eg.SetLimit(peerComputeConcurrency)
	for _, id := range missing {
		eg.Go(func() error {
			vec, src, err := c.compute(ctx, id, "", now)
			if err != nil {
				return err
			}
			if src == SourceDefault {
				return nil
			}
			mu.Lock()
			out[id] = vec
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

const peerComputeConcurrency = 16

// readMany 批量读取一层，命中写入 into，返回未命中的用户。
func (c *StableCache) readMany(ctx context.Context, s core.Store, tier string, userIDs []string, into map[string]*core.InterestVector) []string {
	if s == nil || len(userIDs) == 0 {
		return userIDs
	}
	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = c.key(id)
	}
	data, err := s.BatchGet(ctx, keys)
	if err != nil {
		c.metrics.RecordCacheLookup(tier, "error")
		c.logger.Warn("vector cache batch read failed", "tier", tier, "count", len(keys), "error", err)
		return userIDs
	}

	now := c.now()
	var missing []string
	for i, id := range userIDs {
		raw, ok := data[keys[i]]
		if !ok {
			c.metrics.RecordCacheLookup(tier, "miss")
			missing = append(missing, id)
			continue
		}
		entry, err := DecodeEntry[*core.InterestVector](raw)
		if err != nil || entry.Value == nil {
			c.metrics.RecordCacheLookup(tier, "error")
			c.logger.Warn("vector cache entry corrupt", "tier", tier, "user_id", id, "error", err)
			missing = append(missing, id)
			continue
		}
		if entry.Value.IsFresh(now, c.cfg.FreshnessWindow) {
			c.metrics.RecordCacheLookup(tier, "fresh")
		} else {
			c.metrics.RecordCacheLookup(tier, "stale")
		}
		into[id] = entry.Value
	}
	return missing
}

func (c *StableCache) writeMany(ctx context.Context, s core.Store, tier string, vecs map[string]*core.InterestVector, ttl time.Duration) {
	if s == nil || len(vecs) == 0 {
		return
	}
	kvs := make(map[string][]byte, len(vecs))
	for id, vec := range vecs {
		data, err := EncodeEntry(CacheEntry[*core.InterestVector]{
			Value:      vec,
			ComputedAt: vec.Metadata.LastUpdated,
			TTL:        ttl,
			Tier:       tier,
		})
		if err != nil {
			c.logger.Error("vector cache encode failed", "user_id", id, "error", err)
			continue
		}
		kvs[c.key(id)] = data
	}
	if err := s.BatchSet(ctx, kvs, ttl); err != nil {
		c.logger.Warn("vector cache batch write failed", "tier", tier, "count", len(kvs), "error", err)
	}
}
