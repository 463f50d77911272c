package rerank

import (
	"context"
	"math"
	"strings"

	"github.com/rushteam/feedrank/core"
	"github.com/rushteam/feedrank/pipeline"
	"github.com/rushteam/feedrank/pkg/utils"
	"github.com/rushteam/feedrank/rank"
)

// CountryBalancer 按目标本地比例逐块重组排序结果。
//
// 算法：
//  1. 本地（内容国家 == 用户国家）与非本地候选各自保持分数顺序排队
//  2. 每块 B = min(块大小, 剩余数)：本地取队首 round(LocalRatio·B) 个，非本地取 B - 该值 个
//  3. 任一侧不足时由另一侧补齐，保证每块被填满
//  4. 块内按分数重新排序后依次拼接
//
// 块大小等于页大小，因此每一页都满足比例，且结果与请求的页码无关。
// 既不会完全压制优质的非本地内容，也不会让非本地内容无视质量占满结果。
// 用户关闭本地偏好或没有国家信息时原样返回。
// 写入 labels：locality（local / global）。
type CountryBalancer struct {
	// LocalRatio 本地内容目标占比，<= 0 时为 0.7
	LocalRatio float64
}

func (n *CountryBalancer) Name() string        { return "rerank.country" }
func (n *CountryBalancer) Kind() pipeline.Kind { return pipeline.KindReRank }

func (n *CountryBalancer) Process(
	_ context.Context,
	rctx *core.RecommendContext,
	items []*core.Item,
) ([]*core.Item, error) {
	user := rctx.GetUserProfile()
	if len(items) == 0 || !user.LocalPreferenceEnabled() {
		return items, nil
	}
	block := rctx.PageSize
	if block <= 0 {
		block = core.DefaultPageSize
	}
	return n.Balance(items, user.Country, block), nil
}

// Balance 对按分数排好序的 items 逐块做国家比例重组，block <= 0 表示整个列表为一块。
func (n *CountryBalancer) Balance(items []*core.Item, country string, block int) []*core.Item {
	ratio := n.LocalRatio
	if ratio <= 0 {
		ratio = core.DefaultLocalRatio
	}
	if ratio > 1 {
		ratio = 1
	}
	if block <= 0 || block > len(items) {
		block = len(items)
	}

	var local, global []*core.Item
	for _, it := range items {
		if isLocal(it, country) {
			it.SetLabel(utils.LabelLocality, utils.Label{Value: "local", Source: "rerank"})
			local = append(local, it)
		} else {
			it.SetLabel(utils.LabelLocality, utils.Label{Value: "global", Source: "rerank"})
			global = append(global, it)
		}
	}

	out := make([]*core.Item, 0, len(items))
	for len(local)+len(global) > 0 {
		size := min(block, len(local)+len(global))
		localN := int(math.Round(ratio * float64(size)))
		globalN := size - localN
		if len(local) < localN {
			globalN += localN - len(local)
			localN = len(local)
		}
		if len(global) < globalN {
			localN = min(len(local), localN+globalN-len(global))
			globalN = len(global)
		}

		chunk := make([]*core.Item, 0, size)
		chunk = append(chunk, local[:localN]...)
		chunk = append(chunk, global[:globalN]...)
		rank.SortByScore(chunk)
		out = append(out, chunk...)

		local = local[localN:]
		global = global[globalN:]
	}
	return out
}
func isLocal(it *core.Item, country string) bool {
	return it.Candidate != nil && it.Candidate.Country != "" && strings.EqualFold(it.Candidate.Country, country)
}
