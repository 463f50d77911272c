// Package metrics 提供排序引擎的 Prometheus 指标。
//
// 指标分类：
//   - 兴趣向量缓存：按层（fast / durable）与结果（fresh / stale / miss / error）计数
//   - 后台刷新：成功 / 失败 / 跳过
//   - 请求合并：等待者数量、惊群事件
//   - 排序：耗时、丢弃的候选、降级 fallback、漂移检测
//
// 所有方法对 nil *Metrics 安全（no-op），组件可以不注入指标。
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics 聚合引擎的所有指标，由调用方注册到指定的 Registerer，避免全局状态。
type Metrics struct {
	CacheLookups      *prometheus.CounterVec
	BackgroundTasks   *prometheus.CounterVec
	CoalescedWaiters  prometheus.Histogram
	StampedeEvents    prometheus.Counter
	DroppedCandidates *prometheus.CounterVec
	FallbackFeeds     *prometheus.CounterVec
	DriftDetected     prometheus.Counter
	RankDuration      prometheus.Histogram
}

// New 创建并注册指标；reg 为 nil 时只创建不注册（测试场景）。
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "feedrank_vector_cache_lookups_total",
				Help: "Interest vector cache lookups by tier and result",
			},
			[]string{"tier", "result"},
		),
		BackgroundTasks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "feedrank_background_tasks_total",
				Help: "Background tasks by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		CoalescedWaiters: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "feedrank_coalesced_waiters",
				Help:    "Number of callers sharing one coalesced computation",
				Buckets: []float64{1, 2, 5, 10, 20, 50, 100},
			},
		),
		StampedeEvents: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "feedrank_stampede_events_total",
				Help: "Coalesced computations whose waiter count exceeded the stampede threshold",
			},
		),
		DroppedCandidates: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "feedrank_dropped_candidates_total",
				Help: "Candidates removed from a ranking by reason",
			},
			[]string{"reason"},
		),
		FallbackFeeds: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "feedrank_fallback_feeds_total",
				Help: "Feeds served from the chronological fallback path by reason",
			},
			[]string{"reason"},
		),
		DriftDetected: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "feedrank_drift_detected_total",
				Help: "Interest drift detections",
			},
		),
		RankDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "feedrank_rank_duration_seconds",
				Help:    "Duration of uncached feed ranking computations",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
		),
	}
	if reg != nil {
		reg.MustRegister(
			m.CacheLookups,
			m.BackgroundTasks,
			m.CoalescedWaiters,
			m.StampedeEvents,
			m.DroppedCandidates,
			m.FallbackFeeds,
			m.DriftDetected,
			m.RankDuration,
		)
	}
	return m
}

// RecordCacheLookup 记录一次缓存查找。
func (m *Metrics) RecordCacheLookup(tier, result string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(tier, result).Inc()
}

// RecordBackgroundTask 记录后台任务结果（ok / error / skipped）。
func (m *Metrics) RecordBackgroundTask(kind, outcome string) {
	if m == nil {
		return
	}
	m.BackgroundTasks.WithLabelValues(kind, outcome).Inc()
}

// RecordCoalesce 记录一次合并计算的等待者数量。
func (m *Metrics) RecordCoalesce(waiters int, stampede bool) {
	if m == nil {
		return
	}
	m.CoalescedWaiters.Observe(float64(waiters))
	if stampede {
		m.StampedeEvents.Inc()
	}
}

// RecordDropped 记录被丢弃的候选。
func (m *Metrics) RecordDropped(reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.DroppedCandidates.WithLabelValues(reason).Add(float64(n))
}

// RecordFallback 记录一次降级 Feed。
func (m *Metrics) RecordFallback(reason string) {
	if m == nil {
		return
	}
	m.FallbackFeeds.WithLabelValues(reason).Inc()
}

// RecordDrift 记录一次漂移检测命中。
func (m *Metrics) RecordDrift() {
	if m == nil {
		return
	}
	m.DriftDetected.Inc()
}

// ObserveRank 记录排序耗时。
func (m *Metrics) ObserveRank(d time.Duration) {
	if m == nil {
		return
	}
	m.RankDuration.Observe(d.Seconds())
}
