package core

import "time"

// UserProfile 是排序所需的用户画像投影，由外部用户存储提供。
//
// 设计要点：
//
//	维度          作用
//	静态属性      年级 / 国家 / 语言：冷启动默认向量、年级匹配、本地化匹配
//	账号成熟度    注册时长 + 交互数：冷启动策略、协同过滤成熟用户筛选
//	偏好开关      PreferLocal：是否启用本地内容偏好
//	社区          Communities：社区影响力信号
type UserProfile struct {
	UserID string `json:"user_id"`

	Grade    string `json:"grade,omitempty"`
	Country  string `json:"country,omitempty"`
	Language string `json:"language,omitempty"`

	CreatedAt        time.Time `json:"created_at"`
	InteractionCount int       `json:"interaction_count"`

	// PreferLocal 为 false 表示用户关闭了本地内容偏好
	PreferLocal bool `json:"prefer_local"`

	// Communities 用户加入的社区 ID 集合
	Communities map[string]struct{} `json:"-"`
}

// NewUserProfile 创建一个新的用户画像。
func NewUserProfile(userID string) *UserProfile {
	return &UserProfile{
		UserID:      userID,
		PreferLocal: true,
		Communities: make(map[string]struct{}),
	}
}

// AccountAge 返回账号在 now 时刻的注册时长；未知注册时间按 0 处理。
func (p *UserProfile) AccountAge(now time.Time) time.Duration {
	if p == nil || p.CreatedAt.IsZero() {
		return 0
	}
	d := now.Sub(p.CreatedAt)
	if d < 0 {
		return 0
	}
	return d
}

// InCommunity 判断用户是否属于某个社区。
func (p *UserProfile) InCommunity(communityID string) bool {
	if p == nil || p.Communities == nil || communityID == "" {
		return false
	}
	_, ok := p.Communities[communityID]
	return ok
}

// JoinCommunity 加入社区。
func (p *UserProfile) JoinCommunity(communityID string) {
	if p.Communities == nil {
		p.Communities = make(map[string]struct{})
	}
	p.Communities[communityID] = struct{}{}
}

// LocalPreferenceEnabled 是否启用本地化偏好：用户开启且有国家信息。
func (p *UserProfile) LocalPreferenceEnabled() bool {
	return p != nil && p.PreferLocal && p.Country != ""
}

// IsMature 判断是否为“成熟用户”（用于协同过滤，避免冷启动用户互相污染）。
func (p *UserProfile) IsMature(now time.Time, minAge time.Duration, minInteractions int) bool {
	return p.AccountAge(now) >= minAge && p.InteractionCount >= minInteractions
}
