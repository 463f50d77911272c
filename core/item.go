package core

import "github.com/rushteam/feedrank/pkg/utils"

// Item 是推荐链路中的统一承载结构（即一次请求内的 ScoredCandidate）：
// 候选内容、各信号分（Features）、最终分（Score）、元信息、标签。
// Labels 用于解释与策略驱动；Score 用于排序决策。
type Item struct {
	ID        string
	Candidate *ContentCandidate
	Score     float64
	Features  map[string]float64
	Meta      map[string]any
	Labels    map[string]utils.Label
}

func NewItem(c *ContentCandidate) *Item {
	it := &Item{
		Candidate: c,
		Features:  make(map[string]float64),
		Meta:      make(map[string]any),
		Labels:    make(map[string]utils.Label),
	}
	if c != nil {
		it.ID = c.ID
	}
	return it
}

// PutLabel 写入 Label；若已存在同名 key，则按默认 Merge 规则累积。
func (it *Item) PutLabel(key string, lbl utils.Label) {
	if it.Labels == nil {
		it.Labels = make(map[string]utils.Label)
	}
	if old, ok := it.Labels[key]; ok {
		it.Labels[key] = utils.MergeLabel(old, lbl)
		return
	}
	it.Labels[key] = lbl
}

// SetLabel 覆盖写入 Label（用于 bucket 等互斥标签）。
func (it *Item) SetLabel(key string, lbl utils.Label) {
	if it.Labels == nil {
		it.Labels = make(map[string]utils.Label)
	}
	it.Labels[key] = lbl
}

// Feature 读取信号分，缺失返回 0。
func (it *Item) Feature(name string) float64 {
	if it == nil || it.Features == nil {
		return 0
	}
	return it.Features[name]
}

// SetFeature 写入信号分。
func (it *Item) SetFeature(name string, v float64) {
	if it.Features == nil {
		it.Features = make(map[string]float64)
	}
	it.Features[name] = v
}

// ItemIDs 按顺序取出 ID 列表。
func ItemIDs(items []*Item) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		if it == nil {
			continue
		}
		out = append(out, it.ID)
	}
	return out
}
