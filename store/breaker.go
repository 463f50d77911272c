package store

import (
	"context"
	"errors"
	"log/slog"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sony/gobreaker/v2"

	"github.com/rushteam/feedrank/core"
)

// BreakerConfig 是熔断器参数。
type BreakerConfig struct {
	// FailureThreshold 连续失败多少次后熔断
	FailureThreshold uint32
	// Timeout 熔断打开后多久进入半开
	Timeout time.Duration
	// Interval 闭合状态下计数清零周期，0 表示不清零
	Interval time.Duration
	// MaxRequests 半开状态允许的探测请求数
	MaxRequests uint32
}

// DefaultBreakerConfig 返回默认熔断参数。
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		Timeout:          30 * time.Second,
		Interval:         time.Minute,
		MaxRequests:      1,
	}
}

// BreakerStore 用熔断器包装一个 Store（通常是持久层）。
// 熔断打开时所有操作立即返回 core.ErrStoreUnavailable，调用方可退化为直接计算；
// key 不存在不计为失败。
type BreakerStore struct {
	inner core.Store
	cb    *gobreaker.CircuitBreaker[[]byte]
}

// NewBreakerStore 创建带熔断的 Store。
func NewBreakerStore(inner core.Store, cfg BreakerConfig, logger *slog.Logger) *BreakerStore {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = DefaultBreakerConfig().FailureThreshold
	}
	settings := gobreaker.Settings{
		Name:        "store." + inner.Name(),
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || core.IsStoreNotFound(err) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("store circuit breaker state changed",
				"breaker", name, "from", from.String(), "to", to.String())
		},
	}
	return &BreakerStore{
		inner: inner,
		cb:    gobreaker.NewCircuitBreaker[[]byte](settings),
	}
}

func (b *BreakerStore) Name() string { return b.inner.Name() }

// State 返回熔断器当前状态（closed / half-open / open）。
func (b *BreakerStore) State() string { return b.cb.State().String() }

func (b *BreakerStore) execute(fn func() ([]byte, error)) ([]byte, error) {
	v, err := b.cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, pkgerrors.Wrap(core.ErrStoreUnavailable, b.cb.Name())
	}
	return v, err
}

func (b *BreakerStore) Get(ctx context.Context, key string) ([]byte, error) {
	return b.execute(func() ([]byte, error) {
		return b.inner.Get(ctx, key)
	})
}

func (b *BreakerStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, err := b.execute(func() ([]byte, error) {
		return nil, b.inner.Set(ctx, key, value, ttl)
	})
	return err
}

func (b *BreakerStore) Delete(ctx context.Context, key string) error {
	_, err := b.execute(func() ([]byte, error) {
		return nil, b.inner.Delete(ctx, key)
	})
	return err
}

func (b *BreakerStore) BatchGet(ctx context.Context, keys []string) (map[string][]byte, error) {
	var out map[string][]byte
	_, err := b.execute(func() ([]byte, error) {
		var err error
		out, err = b.inner.BatchGet(ctx, keys)
		return nil, err
	})
	return out, err
}

func (b *BreakerStore) BatchSet(ctx context.Context, kvs map[string][]byte, ttl time.Duration) error {
	_, err := b.execute(func() ([]byte, error) {
		return nil, b.inner.BatchSet(ctx, kvs, ttl)
	})
	return err
}

func (b *BreakerStore) Close() error {
	return b.inner.Close()
}

var _ core.Store = (*BreakerStore)(nil)
