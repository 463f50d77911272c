package core

import (
	"time"

	"github.com/rushteam/feedrank/pkg/utils"
)

// Filters 是调用方已校验过的请求过滤条件，空字符串表示不过滤。
type Filters struct {
	Grade   string `json:"grade,omitempty"`
	Subject string `json:"subject,omitempty"`
}

// RecommendContext 承载用户/兴趣向量/请求参数，贯穿整个 Pipeline 透传。
// 只在一次排序请求内有效。
type RecommendContext struct {
	UserID string

	// User 是强类型用户画像，未知用户时为 nil
	User *UserProfile

	// Vector 是用户兴趣向量（可能来自年级默认先验）
	Vector *InterestVector

	// Filters 请求过滤条件
	Filters Filters

	// PageSize 页大小，决定排序覆盖范围与国家比例的分块；排序本身与页码无关
	PageSize int

	// Now 请求时刻，所有时间相关信号以此为准
	Now time.Time

	// Labels 是用户级标签，可驱动整个 Pipeline 行为
	// 例如：冷启动阶段、漂移状态等
	Labels map[string]utils.Label

	// Params 请求级扩展参数
	Params map[string]any
}

// GetUserProfile 获取用户画像；未知用户返回仅含 UserID 的空画像。
func (rctx *RecommendContext) GetUserProfile() *UserProfile {
	if rctx.User != nil {
		return rctx.User
	}
	return NewUserProfile(rctx.UserID)
}

// PutLabel 写入用户级 Label。
func (rctx *RecommendContext) PutLabel(key string, lbl utils.Label) {
	if rctx.Labels == nil {
		rctx.Labels = make(map[string]utils.Label)
	}
	if old, ok := rctx.Labels[key]; ok {
		rctx.Labels[key] = utils.MergeLabel(old, lbl)
		return
	}
	rctx.Labels[key] = lbl
}

// GetLabel 获取用户级 Label。
func (rctx *RecommendContext) GetLabel(key string) (utils.Label, bool) {
	if rctx.Labels == nil {
		return utils.Label{}, false
	}
	lbl, ok := rctx.Labels[key]
	return lbl, ok
}

// Horizon 返回一次排序覆盖的条数（pageSize × DefaultHorizonPages）。
// 与页码无关：同一用户同一过滤条件的所有页都从同一份排序中截取。
func (rctx *RecommendContext) Horizon() int {
	size := rctx.PageSize
	if size <= 0 {
		size = DefaultPageSize
	}
	return size * DefaultHorizonPages
}
