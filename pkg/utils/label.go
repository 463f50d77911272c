package utils

// Label 是推荐链路中的一等公民：可解释、可追踪、可透传。
// Value 与 Source 的语义由业务自定义；这里只提供标准化的合并规则。
type Label struct {
	Value  string `json:"value"`
	Source string `json:"source"` // recall / filter / rank / rerank / fallback ...
}

// 链路中约定的 Label key。
const (
	LabelRecallSource = "recall_source" // 召回来源：pool.local / pool.global / fallback.recent
	LabelBucket       = "bucket"        // 多样性分桶：exploit / explore / serendipity / tail
	LabelPolicy       = "policy"        // 冷启动阶段：new / developing / mature
	LabelFiltered     = "filtered"      // 被过滤的原因
	LabelLocality     = "locality"      // local / global
)

// MergeLabel 用于合并同名 Label，遵循“保留历史、可追踪”的默认策略。
// - Value: 以 '|' 累积
// - Source: 以 ',' 累积
func MergeLabel(existing Label, incoming Label) Label {
	if existing.Value == "" {
		return incoming
	}
	if incoming.Value == "" {
		return existing
	}

	merged := existing
	merged.Value = existing.Value + "|" + incoming.Value
	switch {
	case existing.Source == "":
		merged.Source = incoming.Source
	case incoming.Source == "":
		merged.Source = existing.Source
	default:
		merged.Source = existing.Source + "," + incoming.Source
	}
	return merged
}
