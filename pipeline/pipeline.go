package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"

	"github.com/rushteam/feedrank/core"
)

// Pipeline 把一次 Feed 排序拆成可组合的 Node 链：召回 -> 协同过滤 -> 质量门 -> 打分 -> 重排 -> 分页。
// 任一 Node 返回错误时整条链失败，由调用方决定降级方式。
type Pipeline struct {
	Nodes []Node

	// Logger 可选，Debug 级别记录每个 Node 的输入输出数量与耗时
	Logger *slog.Logger
}

func (p *Pipeline) Run(
	ctx context.Context,
	rctx *core.RecommendContext,
	items []*core.Item,
) ([]*core.Item, error) {
	cur := items
	for _, node := range p.Nodes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		start := time.Now()
		next, err := node.Process(ctx, rctx, cur)
		if err != nil {
			return nil, errors.Wrapf(err, "pipeline node %s", node.Name())
		}
		if p.Logger != nil {
			p.Logger.Debug("pipeline node done",
				"node", node.Name(),
				"kind", string(node.Kind()),
				"in", len(cur),
				"out", len(next),
				"elapsed", time.Since(start),
			)
		}
		cur = next
	}
	return cur, nil
}
