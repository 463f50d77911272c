package feed

import (
	"context"

	"github.com/rushteam/feedrank/core"
	"github.com/rushteam/feedrank/recall"
)

// fallback 生成时间序兜底排序：按创建时间倒序，不做个性化，分页由 RankFeed 完成。
// 兜底本身读取失败时返回空列表（仍是合法的降级结果）。
func (e *Engine) fallback(ctx context.Context, req Request, user *core.UserProfile, reason string) *Result {
	e.metrics.RecordFallback(reason)

	rctx := &core.RecommendContext{
		UserID:   req.UserID,
		User:     user,
		Filters:  req.Filters,
		PageSize: req.PageSize,
		Now:      e.now(),
	}
	src := &recall.Recent{Store: e.deps.Candidates}
	items, err := src.Recall(ctx, rctx)
	if err != nil {
		e.logger.Error("chronological fallback failed", "user_id", req.UserID, "reason", reason, "error", err)
		return &Result{IDs: []string{}, Degraded: true}
	}
	return &Result{IDs: core.ItemIDs(items), Degraded: true}
}
