// Package worker 提供有界的后台任务执行池，用于 fire-and-forget 的向量刷新与交互写入。
//
// 特点：
//   - 并发上限（semaphore），满载时直接丢弃任务而不是阻塞调用方；
//     配置 QueueSize 后满载任务先进入有界等待队列，队列也满时才丢弃
//   - 可选速率限制（rate.Limiter），保护下游存储
//   - 可选按 key 去重：同一 key 的任务在执行期间不会被重复提交
//   - 任务错误与 panic 被记录，不向提交方传播，也不自动重试
package worker

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/rushteam/feedrank/pkg/metrics"
)

// Task 是后台任务。
type Task func(ctx context.Context) error

// Config 是执行池配置。
type Config struct {
	// Name 用于日志与指标（如 "vector_refresh"）
	Name string

	// Concurrency 最大并发任务数，<= 0 时为 4
	Concurrency int64

	// RatePerSecond 每秒允许启动的任务数，<= 0 表示不限速
	RatePerSecond float64

	// Burst 令牌桶容量，<= 0 时为 1
	Burst int

	// QueueSize 满载时最多排队等待的任务数，<= 0 表示不排队（满载即丢弃）
	QueueSize int
}

// Pool 是有界后台执行池。
type Pool struct {
	name    string
	sem     *semaphore.Weighted
	limiter *rate.Limiter

	queueSize int

	mu       sync.Mutex
	inflight map[string]struct{}
	queued   int
	wg       sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc

	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewPool 创建执行池。
func NewPool(cfg Config, logger *slog.Logger, m *metrics.Metrics) *Pool {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.Name == "" {
		cfg.Name = "background"
	}
	if logger == nil {
		logger = slog.Default()
	}
	var limiter *rate.Limiter
	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		name:     cfg.Name,
		sem:      semaphore.NewWeighted(cfg.Concurrency),
		limiter:   limiter,
		queueSize: cfg.QueueSize,
		inflight:  make(map[string]struct{}),
		ctx:      ctx,
		cancel:   cancel,
		logger:   logger.With("pool", cfg.Name),
		metrics:  m,
	}
}

// Submit 提交任务。key 非空时同 key 任务执行期间的重复提交会被跳过。
// 返回 false 表示任务未被接收（重复、池已满、被限速或池已关闭）。
func (p *Pool) Submit(key string, task Task) bool {
	if p.ctx.Err() != nil {
		p.skip(key, "closed")
		return false
	}
	if p.limiter != nil && !p.limiter.Allow() {
		p.skip(key, "rate_limited")
		return false
	}
	if key != "" {
		p.mu.Lock()
		if _, ok := p.inflight[key]; ok {
			p.mu.Unlock()
			p.skip(key, "duplicate")
			return false
		}
		p.inflight[key] = struct{}{}
		p.mu.Unlock()
	}
	if p.sem.TryAcquire(1) {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			defer p.sem.Release(1)
			defer p.release(key)
			p.run(key, task)
		}()
		return true
	}
	if !p.enqueue() {
		p.release(key)
		p.skip(key, "saturated")
		return false
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.release(key)
		err := p.sem.Acquire(p.ctx, 1)
		p.dequeue()
		if err != nil {
			p.skip(key, "closed")
			return
		}
		defer p.sem.Release(1)
		p.run(key, task)
	}()
	return true
}

func (p *Pool) enqueue() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.queued >= p.queueSize {
		return false
	}
	p.queued++
	return true
}

func (p *Pool) dequeue() {
	p.mu.Lock()
	p.queued--
	p.mu.Unlock()
}

// Queued 返回正在排队等待执行的任务数。
func (p *Pool) Queued() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queued
}

func (p *Pool) run(key string, task Task) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("background task panicked", "key", key, "panic", r)
			p.metrics.RecordBackgroundTask(p.name, "panic")
		}
	}()
	if err := task(p.ctx); err != nil {
		p.logger.Error("background task failed", "key", key, "error", err)
		p.metrics.RecordBackgroundTask(p.name, "error")
		return
	}
	p.metrics.RecordBackgroundTask(p.name, "ok")
}

func (p *Pool) skip(key, reason string) {
	p.logger.Debug("background task skipped", "key", key, "reason", reason)
	p.metrics.RecordBackgroundTask(p.name, "skipped")
}

func (p *Pool) release(key string) {
	if key == "" {
		return
	}
	p.mu.Lock()
	delete(p.inflight, key)
	p.mu.Unlock()
}

// Pending 判断某个 key 的任务是否正在执行。
func (p *Pool) Pending(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.inflight[key]
	return ok
}

// Wait 等待所有已提交任务完成。
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Close 停止接收新任务，取消运行中任务的 context 并等待其退出；仍在排队的任务被丢弃。
func (p *Pool) Close() {
	p.cancel()
	p.wg.Wait()
}
