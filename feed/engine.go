// Package feed 是 Feed 排序的编排层：把画像、召回、协同过滤、质量门、打分、重排串成一次请求，
// 并负责结果缓存、请求合并、时间序兜底与交互事件的后台写入。
package feed

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/rushteam/feedrank/core"
	"github.com/rushteam/feedrank/feature"
	"github.com/rushteam/feedrank/filter"
	"github.com/rushteam/feedrank/pipeline"
	"github.com/rushteam/feedrank/pkg/coalesce"
	"github.com/rushteam/feedrank/pkg/metrics"
	"github.com/rushteam/feedrank/pkg/utils"
	"github.com/rushteam/feedrank/pkg/worker"
	"github.com/rushteam/feedrank/profile"
	"github.com/rushteam/feedrank/rank"
	"github.com/rushteam/feedrank/recall"
	"github.com/rushteam/feedrank/rerank"
)

// ErrInvalidConfig 表示 Engine 缺少必需的依赖。
var ErrInvalidConfig = core.NewDomainError(core.ModuleFeed, core.ErrorCodeInvalidInput, "feed: invalid engine configuration")

// PeerConfig 是协同过滤参数，零值字段使用默认值。
type PeerConfig struct {
	MinAccountAge       time.Duration
	MinInteractions     int
	MaxPeers            int
	TopK                int
	SimilarityThreshold float64
	Concurrency         int
}

// Config 是编排参数，零值字段使用默认值。
type Config struct {
	PageSize    int
	MaxPageSize int

	OverFetch   int
	MaxPoolSize int

	// SourceTimeout 单个候选池的读取超时，0 表示不设超时
	SourceTimeout time.Duration

	LocalRatio   float64
	LocaleWeight float64

	// CacheTTL 结果缓存 TTL，<= 0 时为 2 分钟
	CacheTTL time.Duration

	StampedeThreshold int

	// InteractionQueue 交互写入满载时的排队上限，<= 0 时为 4096
	InteractionQueue int

	Peers PeerConfig
}

// DefaultConfig 返回默认编排参数。
func DefaultConfig() Config {
	return Config{
		PageSize:          core.DefaultPageSize,
		MaxPageSize:       100,
		OverFetch:         core.DefaultOverFetchFactor,
		MaxPoolSize:       core.DefaultMaxPoolSize,
		SourceTimeout:     2 * time.Second,
		LocalRatio:        core.DefaultLocalRatio,
		LocaleWeight:      core.DefaultCountryWeight,
		CacheTTL:          core.DefaultFeedCacheTTL,
		StampedeThreshold: core.DefaultStampedeThreshold,
		InteractionQueue:  4096,
		Peers: PeerConfig{
			MinAccountAge:       core.DefaultPeerMinAccountAge,
			MinInteractions:     core.DefaultPeerMinInteractions,
			MaxPeers:            core.DefaultMaxPeerPopulation,
			TopK:                core.DefaultTopKSimilarUsers,
			SimilarityThreshold: core.DefaultSimilarityThreshold,
			Concurrency:         16,
		},
	}
}

// Deps 是 Engine 依赖的外部协作方。Candidates / Users / Interactions / Vectors 必填。
type Deps struct {
	Candidates   core.CandidateStore
	Users        core.UserStore
	Peers        core.PeerStore // 可为 nil，nil 时不做协同过滤
	Interactions core.InteractionStore
	Vectors      *profile.StableCache

	// ResultCache 结果缓存，可为 nil（不缓存）
	ResultCache core.KeyValueStore
}

// Option 是 Engine 的可选配置。
type Option func(*Engine)

// WithLogger 设置日志。
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMetrics 设置指标。
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithClock 注入时钟（测试用）。
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithQualityGate 替换默认质量门（例如附带 CEL 规则）。
func WithQualityGate(g *filter.QualityGate) Option {
	return func(e *Engine) { e.gate = g }
}

// WithInteractionPool 设置交互事件写入使用的后台执行池。
func WithInteractionPool(p *worker.Pool) Option {
	return func(e *Engine) { e.pool = p }
}

// Engine 是 Feed 排序入口，可并发使用。
//
// 一次 RankFeed 的流程：
//
//	结果缓存 -> 请求合并（key = 用户 + 页大小 + 过滤） -> 用户画像 -> 兴趣向量 -> 冷启动策略
//	-> Pipeline（本地/全局候选池 -> 协同过滤 -> 质量门 -> 融合打分 -> 国家比例 -> 多样性）
//	-> 从整份排序中截取当前页
//
// Pipeline 失败或用户不存在时走时间序兜底，RankFeed 只在 ctx 结束时返回错误。
type Engine struct {
	cfg  Config
	deps Deps

	gate  *filter.QualityGate
	cf    *recall.PeerCF
	group *coalesce.Group[*Result]
	cache *resultCache
	pool  *worker.Pool

	ownsPool bool

	now     func() time.Time
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewEngine 创建 Engine。
func NewEngine(cfg Config, deps Deps, opts ...Option) (*Engine, error) {
	if deps.Candidates == nil || deps.Users == nil || deps.Interactions == nil || deps.Vectors == nil {
		return nil, errors.Wrap(ErrInvalidConfig, "candidates, users, interactions and vectors are required")
	}
	cfg = withDefaults(cfg)

	e := &Engine{
		cfg:    cfg,
		deps:   deps,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "feed")

	if e.gate == nil {
		e.gate = filter.NewQualityGate(filter.DefaultQualityConfig())
	}
	if deps.Peers != nil {
		cf := recall.NewPeerCF(deps.Peers, deps.Vectors, deps.Interactions)
		cf.MinAccountAge = cfg.Peers.MinAccountAge
		cf.MinInteractions = cfg.Peers.MinInteractions
		cf.MaxPeers = cfg.Peers.MaxPeers
		cf.TopKSimilarUsers = cfg.Peers.TopK
		cf.SimilarityThreshold = cfg.Peers.SimilarityThreshold
		cf.Concurrency = cfg.Peers.Concurrency
		cf.Logger = e.logger
		e.cf = cf
	}
	if e.pool == nil {
		e.pool = worker.NewPool(worker.Config{
			Name:        "interaction_append",
			Concurrency: 32,
			QueueSize:   cfg.InteractionQueue,
		}, e.logger, e.metrics)
		e.ownsPool = true
	}
	e.group = coalesce.New[*Result](cfg.StampedeThreshold, e.logger, e.metrics)
	if deps.ResultCache != nil {
		e.cache = &resultCache{kv: deps.ResultCache, ttl: cfg.CacheTTL, logger: e.logger, metrics: e.metrics}
	}
	return e, nil
}

func withDefaults(cfg Config) Config {
	def := DefaultConfig()
	if cfg.PageSize <= 0 {
		cfg.PageSize = def.PageSize
	}
	if cfg.MaxPageSize <= 0 {
		cfg.MaxPageSize = def.MaxPageSize
	}
	if cfg.OverFetch <= 0 {
		cfg.OverFetch = def.OverFetch
	}
	if cfg.MaxPoolSize <= 0 {
		cfg.MaxPoolSize = def.MaxPoolSize
	}
	if cfg.LocalRatio <= 0 {
		cfg.LocalRatio = def.LocalRatio
	}
	if cfg.LocaleWeight <= 0 {
		cfg.LocaleWeight = def.LocaleWeight
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = def.CacheTTL
	}
	if cfg.StampedeThreshold <= 0 {
		cfg.StampedeThreshold = def.StampedeThreshold
	}
	if cfg.InteractionQueue <= 0 {
		cfg.InteractionQueue = def.InteractionQueue
	}
	if cfg.Peers.MinAccountAge <= 0 {
		cfg.Peers.MinAccountAge = def.Peers.MinAccountAge
	}
	if cfg.Peers.MinInteractions <= 0 {
		cfg.Peers.MinInteractions = def.Peers.MinInteractions
	}
	if cfg.Peers.MaxPeers <= 0 {
		cfg.Peers.MaxPeers = def.Peers.MaxPeers
	}
	if cfg.Peers.TopK <= 0 {
		cfg.Peers.TopK = def.Peers.TopK
	}
	if cfg.Peers.SimilarityThreshold <= 0 {
		cfg.Peers.SimilarityThreshold = def.Peers.SimilarityThreshold
	}
	if cfg.Peers.Concurrency <= 0 {
		cfg.Peers.Concurrency = def.Peers.Concurrency
	}
	return cfg
}

// RankFeed 返回用户当前页的有序内容 ID 列表。
// 结果可能为空或降级（Degraded），但不会因为“没有推荐”而报错；只有 ctx 结束时返回错误。
func (e *Engine) RankFeed(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	defer func() { e.metrics.ObserveRank(time.Since(start)) }()

	req = req.normalize(e.cfg.PageSize, e.cfg.MaxPageSize)
	key := CacheKey(req)

	if res, ok := e.cache.get(ctx, key); ok {
		return page(res, req), nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res, shared, err := e.group.Do(ctx, key, func(ctx context.Context) (*Result, error) {
		return e.compute(ctx, req), nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		e.logger.Error("feed computation failed", "user_id", req.UserID, "cache_key", key, "error", err)
		return page(e.fallback(ctx, req, nil, "compute_error"), req), nil
	}
	if shared {
		e.logger.Debug("feed result shared", "cache_key", key)
	}
	return page(res, req), nil
}

// page 从整份排序中截取请求的页，返回副本。
func page(res *Result, req Request) *Result {
	out := res.clone()
	out.IDs = rerank.Paginate(out.IDs, req.Page, req.PageSize)
	return out
}

// compute 产出请求所属的整份排序（与页码无关）；任何失败都转为时间序兜底。
func (e *Engine) compute(ctx context.Context, req Request) *Result {
	user, err := e.deps.Users.GetUser(ctx, req.UserID)
	if err != nil {
		if core.IsStoreNotFound(err) {
			e.logger.Info("unknown user, serving chronological feed", "user_id", req.UserID)
			return e.fallback(ctx, req, nil, "unknown_user")
		}
		e.logger.Warn("user lookup failed", "user_id", req.UserID, "error", err)
		return e.fallback(ctx, req, nil, "user_store")
	}

	now := e.now()
	vec, src, err := e.deps.Vectors.Get(ctx, req.UserID, user.Grade)
	if err != nil {
		e.logger.Warn("interest vector unavailable", "user_id", req.UserID, "error", err)
		return e.fallback(ctx, req, user, "vector")
	}

	policy := rank.SelectPolicy(user, now)
	rctx := &core.RecommendContext{
		UserID:   req.UserID,
		User:     user,
		Vector:   vec,
		Filters:  req.Filters,
		PageSize: req.PageSize,
		Now:      now,
		Params:   map[string]any{rank.ParamPolicy: policy},
	}
	rctx.PutLabel(utils.LabelPolicy, utils.Label{Value: string(policy.Band), Source: "feed"})

	p := &pipeline.Pipeline{Nodes: e.nodes(policy), Logger: e.logger}
	items, err := p.Run(ctx, rctx, nil)
	if err != nil {
		e.logger.Warn("ranking pipeline failed, serving chronological feed", "user_id", req.UserID, "error", err)
		return e.fallback(ctx, req, user, "pipeline")
	}

	res := &Result{
		IDs:          core.ItemIDs(items),
		VectorSource: src,
		Policy:       policy.Band,
	}
	e.cache.put(ctx, req.UserID, CacheKey(req), res, now)
	return res
}

func (e *Engine) nodes(policy rank.Policy) []pipeline.Node {
	local := recall.NewCandidatePool(e.deps.Candidates, recall.ScopeLocal)
	global := recall.NewCandidatePool(e.deps.Candidates, recall.ScopeGlobal)
	for _, p := range []*recall.CandidatePool{local, global} {
		p.OverFetch = e.cfg.OverFetch
		p.MaxPoolSize = e.cfg.MaxPoolSize
	}

	nodes := []pipeline.Node{
		&recall.Fanout{
			Sources:       []recall.Source{local, global},
			Dedup:   true,
			Timeout: e.cfg.SourceTimeout,
			Logger:  e.logger,
		},
	}
	if e.cf != nil && policy.Weights.Collaborative > 0 {
		nodes = append(nodes, e.cf)
	}
	nodes = append(nodes,
		&filter.FilterNode{Filters: []filter.Filter{e.gate}, Logger: e.logger, Metrics: e.metrics},
		&rank.BlendNode{Extractor: feature.NewExtractor(), LocaleWeight: e.cfg.LocaleWeight, Logger: e.logger, Metrics: e.metrics},
		&rerank.CountryBalancer{LocalRatio: e.cfg.LocalRatio},
		&rerank.DiversityInjector{},
	)
	return nodes
}

// RecordInteraction 记录一次用户交互：生成事件 ID 后提交到后台执行池写入交互存储。
// 不阻塞调用方；写入满载时事件排队，队列也满时才丢弃。未知交互类型与写入失败只记录日志。
func (e *Engine) RecordInteraction(_ context.Context, userID, contentID, contentType string, t core.InteractionType, subject, grade string) {
	if !t.Valid() {
		e.logger.Warn("unknown interaction type ignored", "user_id", userID, "content_id", contentID, "type", string(t))
		return
	}
	if userID == "" || contentID == "" {
		e.logger.Warn("interaction without user or content ignored", "user_id", userID, "content_id", contentID)
		return
	}
	it := core.NewInteraction(uuid.NewString(), userID, contentID, contentType, t, subject, grade, e.now())
	accepted := e.pool.Submit(it.ID, func(ctx context.Context) error {
		return errors.Wrapf(e.deps.Interactions.AppendInteraction(ctx, it), "append interaction %s", it.ID)
	})
	if !accepted {
		e.logger.Warn("interaction dropped", "user_id", userID, "content_id", contentID, "interaction_id", it.ID)
	}
}

// OnGradeTransition 处理用户年级变化：重置兴趣向量的年级权重并失效该用户的所有缓存分页。
func (e *Engine) OnGradeTransition(ctx context.Context, userID, oldGrade, newGrade string) error {
	if _, err := e.deps.Vectors.TransitionGrade(ctx, userID, oldGrade, newGrade); err != nil {
		return err
	}
	n := e.cache.invalidateUser(ctx, userID)
	e.logger.Info("grade transition applied", "user_id", userID, "old_grade", oldGrade, "new_grade", newGrade, "invalidated_pages", n)
	return nil
}

// CheckDrift 检测用户兴趣漂移；发生漂移时向量已被重算，同时失效该用户的缓存分页。
func (e *Engine) CheckDrift(ctx context.Context, userID string) (profile.DriftResult, error) {
	res, err := e.deps.Vectors.CheckDrift(ctx, userID)
	if err != nil {
		return res, err
	}
	if res.Drifted {
		e.cache.invalidateUser(ctx, userID)
	}
	return res, nil
}

// Flush 等待已提交的交互事件写入完成。
func (e *Engine) Flush() {
	e.pool.Wait()
}

// Close 停止后台写入（只关闭 Engine 自己创建的执行池），存储由调用方关闭。
func (e *Engine) Close() error {
	if e.ownsPool {
		e.pool.Close()
	}
	return nil
}
