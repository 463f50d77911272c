package recall

import (
	"context"

	"github.com/rushteam/feedrank/core"
	"github.com/rushteam/feedrank/pipeline"
	"github.com/rushteam/feedrank/pkg/utils"
)

// Recent 是时间序兜底召回：按创建时间倒序读取候选，不做个性化。
// 用于排序链路失败或未知用户时的降级 Feed。
// Recent 同时实现了 Source 和 Node 接口，可以直接在 Pipeline 中使用。
type Recent struct {
	Store core.CandidateStore

	// Limit 读取上限，<= 0 时为 rctx.Horizon()
	Limit int
}

func (r *Recent) Name() string        { return "fallback.recent" }
func (r *Recent) Kind() pipeline.Kind { return pipeline.KindRecall }

// Process 实现 Node 接口，直接调用 Recall
func (r *Recent) Process(
	ctx context.Context,
	rctx *core.RecommendContext,
	_ []*core.Item,
) ([]*core.Item, error) {
	return r.Recall(ctx, rctx)
}

// Recall 返回最多 Limit 条候选（按时间倒序），分页由调用方完成。
func (r *Recent) Recall(ctx context.Context, rctx *core.RecommendContext) ([]*core.Item, error) {
	limit := r.Limit
	if limit <= 0 {
		limit = rctx.Horizon()
	}
	cands, err := r.Store.ListCandidates(ctx, core.CandidateQuery{
		Grade:   rctx.Filters.Grade,
		Subject: rctx.Filters.Subject,
		Limit:   limit,
	})
	if err != nil {
		return nil, err
	}
	out := make([]*core.Item, 0, len(cands))
	for _, c := range cands {
		if c == nil {
			continue
		}
		it := core.NewItem(c)
		it.PutLabel(utils.LabelRecallSource, utils.Label{Value: r.Name(), Source: "fallback"})
		out = append(out, it)
	}
	return out, nil
}
