package rerank

import "github.com/rushteam/feedrank/core"

// Paginate 截取第 page 页（从 1 开始）；pageSize <= 0 时使用默认页大小。越界时返回空列表。
//
// 排序 Pipeline 产出的是一整份排序，各页都从同一份结果中截取。
func Paginate[T any](items []T, page, pageSize int) []T {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = core.DefaultPageSize
	}
	start := (page - 1) * pageSize
	if start >= len(items) {
		return []T{}
	}
	end := min(start+pageSize, len(items))
	return items[start:end]
}
