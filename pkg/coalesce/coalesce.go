// Package coalesce 提供按 key 去重的并发计算合并（防缓存击穿/惊群）。
//
// 同一进程内，同一 key 同时只有一次计算在执行；其余调用方等待并共享同一结果。
// 计算完成（成功、失败或 panic）后立即移除 in-flight 记录，下一次 miss 会重新计算。
// 它只负责进程内协调，不替代持久层缓存。
package coalesce

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/rushteam/feedrank/core"
	"github.com/rushteam/feedrank/pkg/metrics"
)

// Group 是按 key 合并计算的原语，零值不可用，使用 New 创建。
type Group[T any] struct {
	sf singleflight.Group

	mu      sync.Mutex
	waiters map[string]int

	// StampedeThreshold 等待者超过该值时记为一次惊群事件
	StampedeThreshold int

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// New 创建 Group；threshold <= 0 时使用默认阈值 10。
func New[T any](threshold int, logger *slog.Logger, m *metrics.Metrics) *Group[T] {
	if threshold <= 0 {
		threshold = core.DefaultStampedeThreshold
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Group[T]{
		waiters:           make(map[string]int),
		StampedeThreshold: threshold,
		Logger:            logger,
		Metrics:           m,
	}
}

// Do 执行 fn，同一 key 的并发调用只执行一次并共享结果。
//
// fn 运行在脱离调用方取消信号的 context 上：某个调用方放弃等待（ctx 取消）
// 只会让它自己返回 ctx.Err()，不会取消仍被其他等待者依赖的计算。
// shared 表示结果是否被多个调用方共享。
func (g *Group[T]) Do(ctx context.Context, key string, fn func(ctx context.Context) (T, error)) (v T, shared bool, err error) {
	n := g.join(key)
	if n > g.StampedeThreshold {
		g.Logger.Warn("coalesce: stampede detected", "key", key, "waiters", n)
	}

	detached := context.WithoutCancel(ctx)
	ch := g.sf.DoChan(key, func() (any, error) {
		return g.run(detached, key, fn)
	})

	select {
	case res := <-ch:
		g.leave(key)
		if res.Err != nil {
			return v, res.Shared, res.Err
		}
		if res.Val == nil {
			return v, res.Shared, nil
		}
		return res.Val.(T), res.Shared, nil
	case <-ctx.Done():
		g.leave(key)
		return v, false, ctx.Err()
	}
}

// run 执行实际计算；计算结束时记录等待者数量，并把 panic 转为错误，
// 保证 in-flight 记录一定被 singleflight 清除。
func (g *Group[T]) run(ctx context.Context, key string, fn func(ctx context.Context) (T, error)) (val any, err error) {
	defer func() {
		if r := recover(); r != nil {
			g.Logger.Error("coalesce: computation panicked", "key", key, "panic", r)
			err = core.NewDomainError(core.ModuleCoalesce, core.ErrorCodeInternalError,
				fmt.Sprintf("coalesce: computation for %q panicked: %v", key, r))
		}
		n := g.Waiters(key)
		g.Metrics.RecordCoalesce(n, n > g.StampedeThreshold)
	}()
	return fn(ctx)
}

func (g *Group[T]) join(key string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.waiters[key]++
	return g.waiters[key]
}

func (g *Group[T]) leave(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.waiters[key]--
	if g.waiters[key] <= 0 {
		delete(g.waiters, key)
	}
}

// Waiters 返回当前等待某个 key 的调用方数量（含发起计算的调用方）。
func (g *Group[T]) Waiters(key string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.waiters[key]
}
