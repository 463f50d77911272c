// Package config 加载 feedrank 的运行配置：YAML 文件 + 环境变量覆盖 + 结构体校验。
//
// 加载顺序：
//  1. Default() 给出全部默认值
//  2. YAML 文件覆盖（未出现的字段保持默认值，未知字段报错）
//  3. 环境变量覆盖：FEEDRANK_REDIS_ADDR / FEEDRANK_REDIS_DB / FEEDRANK_BADGER_PATH / FEEDRANK_LOG_LEVEL
//  4. validator 校验
package config

import (
	"bytes"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/rushteam/feedrank/core"
	"github.com/rushteam/feedrank/feed"
	"github.com/rushteam/feedrank/filter"
	"github.com/rushteam/feedrank/pkg/dsl"
	"github.com/rushteam/feedrank/pkg/worker"
	"github.com/rushteam/feedrank/profile"
	"github.com/rushteam/feedrank/store"
)

// 环境变量名。
const (
	EnvRedisAddr  = "FEEDRANK_REDIS_ADDR"
	EnvRedisDB    = "FEEDRANK_REDIS_DB"
	EnvBadgerPath = "FEEDRANK_BADGER_PATH"
	EnvLogLevel   = "FEEDRANK_LOG_LEVEL"
)

// 持久层后端。
const (
	BackendNone   = "none"
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendBadger = "badger"
)

// ErrInvalidConfig 表示配置文件或环境变量无效。
var ErrInvalidConfig = core.NewDomainError(core.ModuleConfig, core.ErrorCodeInvalidInput, "config: invalid configuration")

// Config 是完整运行配置。
type Config struct {
	Log     LogConfig     `yaml:"log"`
	Feed    FeedConfig    `yaml:"feed"`
	Vector  VectorConfig  `yaml:"vector"`
	Peers   PeerConfig    `yaml:"peers"`
	Quality QualityConfig `yaml:"quality"`
	Storage StorageConfig `yaml:"storage"`
	Refresh WorkerConfig  `yaml:"refresh"`
}

// LogConfig 日志配置。
type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

// FeedConfig 编排配置。
type FeedConfig struct {
	PageSize          int           `yaml:"page_size" validate:"min=1,ltefield=MaxPageSize"`
	MaxPageSize       int           `yaml:"max_page_size" validate:"min=1,max=500"`
	OverFetch         int           `yaml:"over_fetch" validate:"min=1,max=50"`
	MaxPoolSize       int           `yaml:"max_pool_size" validate:"min=1"`
	SourceTimeout     time.Duration `yaml:"source_timeout" validate:"gte=0"`
	LocalRatio        float64       `yaml:"local_ratio" validate:"gte=0,lte=1"`
	LocaleWeight      float64       `yaml:"locale_weight" validate:"gte=0,lt=1"`
	CacheTTL          time.Duration `yaml:"cache_ttl" validate:"gt=0"`
	StampedeThreshold int           `yaml:"stampede_threshold" validate:"min=1"`
	InteractionQueue  int           `yaml:"interaction_queue" validate:"min=1"`
}

// VectorConfig 兴趣向量构建与缓存配置。
type VectorConfig struct {
	FreshnessWindow  time.Duration `yaml:"freshness_window" validate:"gt=0"`
	InterestWindow   time.Duration `yaml:"interest_window" validate:"gt=0"`
	HistoricalWindow time.Duration `yaml:"historical_window" validate:"gtfield=InterestWindow"`
	MinInteractions  int           `yaml:"min_interactions" validate:"min=1"`
	DriftThreshold   float64       `yaml:"drift_threshold" validate:"gt=0,lte=1"`
	TopK             int           `yaml:"top_k" validate:"min=1"`
	Renormalize      bool          `yaml:"renormalize"`
	FastTTL          time.Duration `yaml:"fast_ttl" validate:"gte=0"`
	DurableTTL       time.Duration `yaml:"durable_ttl" validate:"gte=0"`
}

// PeerConfig 协同过滤配置。
type PeerConfig struct {
	MinAccountAge       time.Duration `yaml:"min_account_age" validate:"gte=0"`
	MinInteractions     int           `yaml:"min_interactions" validate:"min=0"`
	MaxPeers            int           `yaml:"max_peers" validate:"min=1"`
	TopK                int           `yaml:"top_k" validate:"min=1"`
	SimilarityThreshold float64       `yaml:"similarity_threshold" validate:"gt=0,lte=1"`
	Concurrency         int           `yaml:"concurrency" validate:"min=1"`
}

// QualityConfig 质量门配置；Rules 为附加的 CEL 拒绝规则（结果为 true 即拒绝）。
type QualityConfig struct {
	MinLikes         int           `yaml:"min_likes" validate:"min=0"`
	MinLikesAfter    time.Duration `yaml:"min_likes_after" validate:"gte=0"`
	MinContentLength int           `yaml:"min_content_length" validate:"min=0"`
	MinAuthorAge     time.Duration `yaml:"min_author_age" validate:"gte=0"`
	MaxReports       int           `yaml:"max_reports" validate:"min=0"`
	Rules            []string      `yaml:"rules" validate:"dive,required"`
}

// StorageConfig 存储配置：快层为进程内 LRU，持久层可选 memory / redis / badger。
type StorageConfig struct {
	FastEnabled    bool `yaml:"fast_enabled"`
	FastMaxEntries int  `yaml:"fast_max_entries" validate:"min=0"`

	Durable string        `yaml:"durable" validate:"oneof=none memory redis badger"`
	Redis   RedisConfig   `yaml:"redis"`
	Badger  BadgerConfig  `yaml:"badger"`
	Breaker BreakerConfig `yaml:"breaker"`
}

// RedisConfig Redis 连接配置。
type RedisConfig struct {
	Addr         string        `yaml:"addr" validate:"required_if=Enabled true"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db" validate:"min=0,max=15"`
	KeyPrefix    string        `yaml:"key_prefix"`
	PoolSize     int           `yaml:"pool_size" validate:"min=0"`
	DialTimeout  time.Duration `yaml:"dial_timeout" validate:"gte=0"`
	ReadTimeout  time.Duration `yaml:"read_timeout" validate:"gte=0"`
	WriteTimeout time.Duration `yaml:"write_timeout" validate:"gte=0"`

	// Enabled 由 Storage.Durable 推导，不从 YAML 读取
	Enabled bool `yaml:"-"`
}

// BadgerConfig Badger 配置。
type BadgerConfig struct {
	Path     string `yaml:"path" validate:"required_if=Enabled true"`
	InMemory bool   `yaml:"in_memory"`

	Enabled bool `yaml:"-"`
}

// BreakerConfig 持久层熔断配置。
type BreakerConfig struct {
	Enabled          bool          `yaml:"enabled"`
	FailureThreshold uint32        `yaml:"failure_threshold" validate:"min=1"`
	Timeout          time.Duration `yaml:"timeout" validate:"gt=0"`
	Interval         time.Duration `yaml:"interval" validate:"gte=0"`
	MaxRequests      uint32        `yaml:"max_requests" validate:"min=1"`
}

// WorkerConfig 后台执行池配置。
type WorkerConfig struct {
	Concurrency   int64   `yaml:"concurrency" validate:"min=1"`
	RatePerSecond float64 `yaml:"rate_per_second" validate:"gte=0"`
	Burst         int     `yaml:"burst" validate:"min=0"`
}

// Default 返回默认配置。
func Default() *Config {
	fc := feed.DefaultConfig()
	vc := profile.DefaultCacheConfig()
	bc := profile.DefaultBuilderConfig()
	qc := filter.DefaultQualityConfig()
	br := store.DefaultBreakerConfig()

	return &Config{
		Log: LogConfig{Level: "info", Format: "text"},
		Feed: FeedConfig{
			PageSize:          fc.PageSize,
			MaxPageSize:       fc.MaxPageSize,
			OverFetch:         fc.OverFetch,
			MaxPoolSize:       fc.MaxPoolSize,
			SourceTimeout:     fc.SourceTimeout,
			LocalRatio:        fc.LocalRatio,
			LocaleWeight:      fc.LocaleWeight,
			CacheTTL:          fc.CacheTTL,
			StampedeThreshold: fc.StampedeThreshold,
			InteractionQueue:  fc.InteractionQueue,
		},
		Vector: VectorConfig{
			FreshnessWindow:  vc.FreshnessWindow,
			InterestWindow:   vc.InterestWindow,
			HistoricalWindow: vc.HistoricalWindow,
			MinInteractions:  vc.MinInteractions,
			DriftThreshold:   vc.DriftThreshold,
			TopK:             bc.TopK,
			Renormalize:      bc.Renormalize,
			FastTTL:          vc.FastTTL,
			DurableTTL:       vc.DurableTTL,
		},
		Peers: PeerConfig{
			MinAccountAge:       fc.Peers.MinAccountAge,
			MinInteractions:     fc.Peers.MinInteractions,
			MaxPeers:            fc.Peers.MaxPeers,
			TopK:                fc.Peers.TopK,
			SimilarityThreshold: fc.Peers.SimilarityThreshold,
			Concurrency:         fc.Peers.Concurrency,
		},
		Quality: QualityConfig{
			MinLikes:         qc.MinLikes,
			MinLikesAfter:    qc.MinLikesAfter,
			MinContentLength: qc.MinContentLength,
			MinAuthorAge:     qc.MinAuthorAge,
			MaxReports:       qc.MaxReports,
		},
		Storage: StorageConfig{
			FastEnabled:    true,
			FastMaxEntries: 100000,
			Durable:        BackendMemory,
			Redis:          RedisConfig{Addr: "localhost:6379", KeyPrefix: "feedrank:"},
			Badger:         BadgerConfig{Path: "./data/feedrank"},
			Breaker: BreakerConfig{
				Enabled:          true,
				FailureThreshold: br.FailureThreshold,
				Timeout:          br.Timeout,
				Interval:         br.Interval,
				MaxRequests:      br.MaxRequests,
			},
		},
		Refresh: WorkerConfig{Concurrency: 8, RatePerSecond: 50, Burst: 10},
	}
}

// Load 读取配置文件（path 为空时只使用默认值），应用环境变量覆盖并校验。
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "read config %s", path)
		}
		if err := cfg.decode(data); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse 解析 YAML 内容（不读取环境变量），用于测试与内嵌配置。
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := cfg.decode(data); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decode(data []byte) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		return errors.Wrap(ErrInvalidConfig, err.Error())
	}
	return nil
}

// ApplyEnv 应用环境变量覆盖。设置 Redis 地址或 Badger 路径会同时切换持久层后端。
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvRedisAddr); ok && v != "" {
		c.Storage.Redis.Addr = v
		c.Storage.Durable = BackendRedis
	}
	if v, ok := lookup(EnvRedisDB); ok && v != "" {
		db, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrapf(ErrInvalidConfig, "%s=%q is not an integer", EnvRedisDB, v)
		}
		c.Storage.Redis.DB = db
	}
	if v, ok := lookup(EnvBadgerPath); ok && v != "" {
		c.Storage.Badger.Path = v
		c.Storage.Durable = BackendBadger
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.Log.Level = v
	}
	return nil
}

// Validate 校验配置。
func (c *Config) Validate() error {
	c.Storage.Redis.Enabled = c.Storage.Durable == BackendRedis
	c.Storage.Badger.Enabled = c.Storage.Durable == BackendBadger && !c.Storage.Badger.InMemory

	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		return errors.Wrap(ErrInvalidConfig, err.Error())
	}
	for _, expr := range c.Quality.Rules {
		if _, err := dsl.Compile(expr); err != nil {
			return errors.Wrapf(ErrInvalidConfig, "quality rule %q: %v", expr, err)
		}
	}
	return nil
}

// FeedEngineConfig 转换为编排参数。
func (c *Config) FeedEngineConfig() feed.Config {
	return feed.Config{
		PageSize:          c.Feed.PageSize,
		MaxPageSize:       c.Feed.MaxPageSize,
		OverFetch:         c.Feed.OverFetch,
		MaxPoolSize:       c.Feed.MaxPoolSize,
		SourceTimeout:     c.Feed.SourceTimeout,
		LocalRatio:        c.Feed.LocalRatio,
		LocaleWeight:      c.Feed.LocaleWeight,
		CacheTTL:          c.Feed.CacheTTL,
		StampedeThreshold: c.Feed.StampedeThreshold,
		InteractionQueue:  c.Feed.InteractionQueue,
		Peers: feed.PeerConfig{
			MinAccountAge:       c.Peers.MinAccountAge,
			MinInteractions:     c.Peers.MinInteractions,
			MaxPeers:            c.Peers.MaxPeers,
			TopK:                c.Peers.TopK,
			SimilarityThreshold: c.Peers.SimilarityThreshold,
			Concurrency:         c.Peers.Concurrency,
		},
	}
}

// VectorCacheConfig 转换为向量缓存参数。
func (c *Config) VectorCacheConfig() profile.CacheConfig {
	return profile.CacheConfig{
		FreshnessWindow:  c.Vector.FreshnessWindow,
		InterestWindow:   c.Vector.InterestWindow,
		HistoricalWindow: c.Vector.HistoricalWindow,
		MinInteractions:  c.Vector.MinInteractions,
		DriftThreshold:   c.Vector.DriftThreshold,
		FastTTL:          c.Vector.FastTTL,
		DurableTTL:       c.Vector.DurableTTL,
		KeyPrefix:        profile.DefaultCacheConfig().KeyPrefix,
	}
}

// BuilderConfig 转换为向量构建参数。
func (c *Config) BuilderConfig() profile.BuilderConfig {
	return profile.BuilderConfig{TopK: c.Vector.TopK, Renormalize: c.Vector.Renormalize}
}

// QualityGate 按配置创建质量门（含编译后的 CEL 规则）。
func (c *Config) QualityGate() (*filter.QualityGate, error) {
	qc := filter.DefaultQualityConfig()
	qc.MinLikes = c.Quality.MinLikes
	qc.MinLikesAfter = c.Quality.MinLikesAfter
	qc.MinContentLength = c.Quality.MinContentLength
	qc.MinAuthorAge = c.Quality.MinAuthorAge
	qc.MaxReports = c.Quality.MaxReports

	rules := make([]*dsl.Rule, 0, len(c.Quality.Rules))
	for _, expr := range c.Quality.Rules {
		r, err := dsl.Compile(expr)
		if err != nil {
			return nil, errors.Wrapf(ErrInvalidConfig, "quality rule %q: %v", expr, err)
		}
		rules = append(rules, r)
	}
	return filter.NewQualityGate(qc, rules...), nil
}

// RefreshPoolConfig 转换为向量后台刷新执行池参数。
func (c *Config) RefreshPoolConfig() worker.Config {
	return worker.Config{
		Name:          "vector_refresh",
		Concurrency:   c.Refresh.Concurrency,
		RatePerSecond: c.Refresh.RatePerSecond,
		Burst:         c.Refresh.Burst,
	}
}
