package filter

import (
	"context"
	"log/slog"

	"github.com/rushteam/feedrank/core"
	"github.com/rushteam/feedrank/pipeline"
	"github.com/rushteam/feedrank/pkg/metrics"
	"github.com/rushteam/feedrank/pkg/utils"
)

// FilterNode 是过滤 Node，可以组合多个过滤器进行过滤。
// 如果任何一个过滤器返回 true，该物品就会被过滤掉；过滤器出错时同样丢弃该物品并记录告警。
type FilterNode struct {
	Filters []Filter

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

func (n *FilterNode) Name() string {
	return "filter.node"
}

func (n *FilterNode) Kind() pipeline.Kind {
	return pipeline.KindFilter
}

func (n *FilterNode) Process(
	ctx context.Context,
	rctx *core.RecommendContext,
	items []*core.Item,
) ([]*core.Item, error) {
	if len(n.Filters) == 0 || len(items) == 0 {
		return items, nil
	}
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}

	out := make([]*core.Item, 0, len(items))
	dropped := make(map[string]int)

	for _, item := range items {
		if item == nil {
			continue
		}

		reason := ""
		for _, f := range n.Filters {
			r, err := evaluate(ctx, f, rctx, item)
			if err != nil {
				logger.Warn("filter failed, dropping candidate",
					"filter", f.Name(), "content_id", item.ID, "user_id", rctx.UserID, "error", err)
				reason = f.Name() + ":error"
				break
			}
			if r != "" {
				reason = r
				break
			}
		}

		if reason != "" {
			dropped[reason]++
			// 记录过滤原因（用于调试/观测）
			item.PutLabel(utils.LabelFiltered, utils.Label{Value: reason, Source: "filter"})
			continue
		}
		out = append(out, item)
	}

	for reason, cnt := range dropped {
		n.Metrics.RecordDropped(reason, cnt)
	}
	if len(dropped) > 0 {
		logger.Debug("candidates filtered", "user_id", rctx.UserID, "in", len(items), "out", len(out))
	}
	return out, nil
}

func evaluate(ctx context.Context, f Filter, rctx *core.RecommendContext, item *core.Item) (string, error) {
	if r, ok := f.(Reasoner); ok {
		reason, err := r.Check(rctx, item)
		if err != nil || reason == "" {
			return "", err
		}
		return f.Name() + ":" + reason, nil
	}
	hit, err := f.ShouldFilter(ctx, rctx, item)
	if err != nil || !hit {
		return "", err
	}
	return f.Name(), nil
}
