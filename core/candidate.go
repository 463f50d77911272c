package core

import "time"

// ContentCandidate 是外部内容存储提供的只读候选内容投影。
//
// 必填字段：ID、AuthorID、CreatedAt。
// 可选字段以零值表示缺失（Subject、Grade、Country、Language、CommunityID、Title、Body、
// AuthorCreatedAt、UniqueVoters），引擎对这些字段缺失做了容错。
type ContentCandidate struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"author_id"`
	CreatedAt time.Time `json:"created_at"`

	Subject     string `json:"subject,omitempty"`
	Grade       string `json:"grade,omitempty"`
	Country     string `json:"country,omitempty"`
	Language    string `json:"language,omitempty"`
	CommunityID string `json:"community_id,omitempty"`
	Title       string `json:"title,omitempty"`
	Body        string `json:"body,omitempty"`

	LikeCount    int `json:"like_count"`
	DislikeCount int `json:"dislike_count"`
	CommentCount int `json:"comment_count"`
	ShareCount   int `json:"share_count"`
	ReportCount  int `json:"report_count"`

	// UniqueVoters 点赞的去重用户数，0 表示未知（按全部唯一处理）
	UniqueVoters int `json:"unique_voters,omitempty"`

	// AuthorCreatedAt 作者账号创建时间，零值表示未知
	AuthorCreatedAt time.Time `json:"author_created_at,omitempty"`

	// AuthorTrusted 可信作者（教师、认证账号等）
	AuthorTrusted bool `json:"author_trusted,omitempty"`
}

// Age 返回内容在 now 时刻的存活时长，未来时间按 0 处理。
func (c *ContentCandidate) Age(now time.Time) time.Duration {
	if c == nil || c.CreatedAt.IsZero() {
		return 0
	}
	d := now.Sub(c.CreatedAt)
	if d < 0 {
		return 0
	}
	return d
}

// UniqueVoterRatio 返回去重点赞占比，未知时返回 1。
func (c *ContentCandidate) UniqueVoterRatio() float64 {
	if c == nil || c.UniqueVoters <= 0 || c.LikeCount <= 0 {
		return 1
	}
	r := float64(c.UniqueVoters) / float64(c.LikeCount)
	if r > 1 {
		return 1
	}
	return r
}

// HasCountry 内容是否带国家信息（无国家视为全球内容）。
func (c *ContentCandidate) HasCountry() bool {
	return c != nil && c.Country != ""
}
