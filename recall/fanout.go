package recall

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/rushteam/feedrank/core"
	"github.com/rushteam/feedrank/pipeline"
	"github.com/rushteam/feedrank/pkg/utils"
)

const labelRecallPriority = "recall_priority"

// ErrAllSourcesFailed 表示所有召回源都失败，调用方应走降级路径。
var ErrAllSourcesFailed = errors.New("recall: all sources failed")

// Fanout 是一个 Recall Node：并发执行多个召回源（如本地池 + 全局池），并合并结果。
// 支持超时、并发上限；Dedup 时按优先级（Sources 顺序）合并重复内容。
// 单个召回源失败只记录告警；全部失败时返回错误。
type Fanout struct {
	Sources       []Source
	Dedup         bool
	Timeout       time.Duration // 每个召回源的超时时间
	MaxConcurrent int           // 最大并发数（0 表示无限制）

	Logger *slog.Logger
}

func (n *Fanout) Name() string        { return "recall.fanout" }
func (n *Fanout) Kind() pipeline.Kind { return pipeline.KindRecall }

func (n *Fanout) Process(
	ctx context.Context,
	rctx *core.RecommendContext,
	_ []*core.Item,
) ([]*core.Item, error) {
	if len(n.Sources) == 0 {
		return nil, nil
	}
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var (
		mu       sync.Mutex
		perSrc   = make([][]*core.Item, len(n.Sources))
		failures int
		eg       errgroup.Group
	)
	if n.MaxConcurrent > 0 {
		eg.SetLimit(n.MaxConcurrent)
	}

	for i, src := range n.Sources {
		eg.Go(func() error {
			// 超时控制
			recallCtx := ctx
			if n.Timeout > 0 {
				var cancel context.CancelFunc
				recallCtx, cancel = context.WithTimeout(ctx, n.Timeout)
				defer cancel()
			}

			items, err := src.Recall(recallCtx, rctx)
			if err != nil {
				// 超时或错误时返回空结果，不中断其他召回源
				logger.Warn("recall source failed", "source", src.Name(), "user_id", rctx.UserID, "error", err)
				mu.Lock()
				failures++
				mu.Unlock()
				return nil
			}

			// 记录召回来源 label，方便 explain / 观测
			for _, it := range items {
				it.PutLabel(utils.LabelRecallSource, utils.Label{Value: src.Name(), Source: "recall"})
				it.SetLabel(labelRecallPriority, utils.Label{Value: strconv.Itoa(i), Source: "recall"})
			}
			perSrc[i] = items
			return nil
		})
	}
	_ = eg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if failures == len(n.Sources) {
		return nil, ErrAllSourcesFailed
	}

	// 按 Sources 顺序拼接，保证结果与调度顺序无关
	var all []*core.Item
	for _, items := range perSrc {
		all = append(all, items...)
	}

	return n.mergeByPriority(all), nil
}

// mergeByPriority 按优先级合并：相同 ID 时保留优先级更高的（索引更小），保持首次出现的位置。
func (n *Fanout) mergeByPriority(all []*core.Item) []*core.Item {
	if !n.Dedup {
		return all
	}
	pos := make(map[string]int, len(all))
	out := make([]*core.Item, 0, len(all))
	for _, it := range all {
		if it == nil {
			continue
		}
		i, exists := pos[it.ID]
		if !exists {
			pos[it.ID] = len(out)
			out = append(out, it)
			continue
		}
		if priority(it) < priority(out[i]) {
			out[i] = it
		}
	}
	return out
}

func priority(it *core.Item) int {
	if lbl, ok := it.Labels[labelRecallPriority]; ok {
		if p, err := strconv.Atoi(lbl.Value); err == nil {
			return p
		}
	}
	return 999
}
