package rank

import (
	"context"
	"log/slog"
	"sort"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/rushteam/feedrank/core"
	"github.com/rushteam/feedrank/feature"
	"github.com/rushteam/feedrank/pipeline"
	"github.com/rushteam/feedrank/pkg/metrics"
	"github.com/rushteam/feedrank/pkg/utils"
)

// ParamPolicy 是 RecommendContext.Params 中携带本次请求策略的 key。
const ParamPolicy = "policy"

// DefaultLocaleWeight 本地化偏好开启时国家/语言匹配分在最终分中的占比。
const DefaultLocaleWeight = 0.2

// PolicyFromContext 取出请求携带的策略，缺失时按用户画像现场选择。
func PolicyFromContext(rctx *core.RecommendContext) Policy {
	if rctx.Params != nil {
		if p, ok := rctx.Params[ParamPolicy].(Policy); ok {
			return p
		}
	}
	return SelectPolicy(rctx.User, rctx.Now)
}

// BlendNode 是融合排序节点：为每个候选抽取信号并按冷启动策略加权。
//
// 打分公式：
//
//	base  = Σ weight_i · signal_i   （time_decay / quality / interest / collaborative / community）
//	local = 0.8·base + 0.2·locale    （仅在用户开启本地偏好且有国家信息时）
//	score = local × grade_match
//
// 单个候选抽取失败（缺少必填字段、计算 panic）只会丢弃该候选并记录告警，不影响整批。
// 写入 labels：policy。
type BlendNode struct {
	Extractor *feature.Extractor

	// LocaleWeight 本地化匹配分占比，<= 0 时为 0.2
	LocaleWeight float64

	// Concurrency 并发抽取的上限，<= 0 时不限制
	Concurrency int

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

func (n *BlendNode) Name() string        { return "rank.blend" }
func (n *BlendNode) Kind() pipeline.Kind { return pipeline.KindRank }

func (n *BlendNode) Process(
	ctx context.Context,
	rctx *core.RecommendContext,
	items []*core.Item,
) ([]*core.Item, error) {
	if len(items) == 0 {
		return items, nil
	}
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ext := n.Extractor
	if ext == nil {
		ext = feature.NewExtractor()
	}

	policy := PolicyFromContext(rctx)
	errs := make([]error, len(items))

	var eg errgroup.Group
	if n.Concurrency > 0 {
		eg.SetLimit(n.Concurrency)
	}
	for i, it := range items {
		eg.Go(func() error {
			errs[i] = extractSafely(ext, rctx, it)
			return nil
		})
	}
	_ = eg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	localPref := rctx.GetUserProfile().LocalPreferenceEnabled()
	out := make([]*core.Item, 0, len(items))
	for i, it := range items {
		if errs[i] != nil {
			id := ""
			if it != nil {
				id = it.ID
			}
			logger.Warn("candidate dropped during scoring", "user_id", rctx.UserID, "content_id", id, "error", errs[i])
			n.Metrics.RecordDropped("scoring", 1)
			continue
		}
		it.Score = n.score(policy.Weights, it, localPref)
		it.PutLabel(utils.LabelPolicy, utils.Label{Value: string(policy.Band), Source: "rank"})
		out = append(out, it)
	}

	SortByScore(out)
	return out, nil
}

func extractSafely(ext *feature.Extractor, rctx *core.RecommendContext, it *core.Item) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("scoring panic: %v", r)
		}
	}()
	return ext.Extract(rctx, it)
}

func (n *BlendNode) score(w Weights, it *core.Item, localPref bool) float64 {
	base := w.TimeDecay*it.Feature(feature.SignalTimeDecay) +
		w.Quality*it.Feature(feature.SignalQuality) +
		w.Interest*it.Feature(feature.SignalInterest) +
		w.Collaborative*it.Feature(feature.SignalCollaborative) +
		w.Community*it.Feature(feature.SignalCommunity)

	if localPref {
		lw := n.LocaleWeight
		if lw <= 0 {
			lw = DefaultLocaleWeight
		}
		base = (1-lw)*base + lw*it.Feature(feature.SignalLocale)
	}
	return base * it.Feature(feature.SignalGradeMatch)
}

// SortByScore 按分数降序排序；分数相同时较新的内容在前，再按 ID 保证确定性。
func SortByScore(items []*core.Item) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Candidate != nil && b.Candidate != nil && !a.Candidate.CreatedAt.Equal(b.Candidate.CreatedAt) {
			return a.Candidate.CreatedAt.After(b.Candidate.CreatedAt)
		}
		return a.ID < b.ID
	})
}
