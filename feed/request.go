package feed

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/rushteam/feedrank/core"
	"github.com/rushteam/feedrank/profile"
	"github.com/rushteam/feedrank/rank"
)

// Request 是一次 Feed 排序请求。Page 从 1 开始；Filters 已由调用方校验。
type Request struct {
	UserID   string       `json:"user_id"`
	Page     int          `json:"page"`
	PageSize int          `json:"page_size"`
	Filters  core.Filters `json:"filters"`
}

// Result 是排序结果：内容 ID 列表（可能为空）及其生成方式。
// RankFeed 返回的是当前页；缓存与请求合并共享的是整份排序。
type Result struct {
	IDs []string `json:"ids"`

	// Degraded 为 true 表示结果来自时间序兜底，而非个性化排序链路
	Degraded bool `json:"degraded"`

	VectorSource profile.Source    `json:"vector_source,omitempty"`
	Policy       rank.MaturityBand `json:"policy,omitempty"`
}

func (r *Result) clone() *Result {
	if r == nil {
		return nil
	}
	cp := *r
	cp.IDs = append(make([]string, 0, len(r.IDs)), r.IDs...)
	return &cp
}

// normalize 补齐分页参数：page < 1 按第 1 页，pageSize 缺省为 def，超过 max 截断。
func (r Request) normalize(def, max int) Request {
	if r.Page < 1 {
		r.Page = 1
	}
	if r.PageSize <= 0 {
		r.PageSize = def
	}
	if max > 0 && r.PageSize > max {
		r.PageSize = max
	}
	return r
}

// CacheKey 返回请求所属排序的确定性 key（用户 + 页大小 + 过滤条件），用于结果缓存与请求合并。
// 不含页码：同一用户同一过滤条件的各页共享一份排序。
func CacheKey(r Request) string {
	var b strings.Builder
	b.WriteString("u=")
	b.WriteString(url.QueryEscape(r.UserID))
	b.WriteString(":s=")
	b.WriteString(strconv.Itoa(r.PageSize))
	b.WriteString(":g=")
	b.WriteString(url.QueryEscape(r.Filters.Grade))
	b.WriteString(":sub=")
	b.WriteString(url.QueryEscape(r.Filters.Subject))
	return b.String()
}
