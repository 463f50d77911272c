package recall

import (
	"context"

	"github.com/rushteam/feedrank/core"
	"github.com/rushteam/feedrank/pipeline"
)

// PoolScope 决定候选池的国家范围。
type PoolScope string

const (
	ScopeLocal  PoolScope = "local"  // 仅用户所在国家
	ScopeGlobal PoolScope = "global" // 排除用户所在国家（含无国家的全球内容）
	ScopeAll    PoolScope = "all"    // 不按国家过滤
)

// CandidatePool 是从 core.CandidateStore 读取有限候选的召回源。
// 读取量 = min(排序范围 × OverFetch, MaxPoolSize)，为后续过滤与重排留出余量；
// 排序范围只取决于页大小，与页码无关，保证各页来自同一份排序。
// 请求中的年级/学科过滤作为存储侧预过滤条件下推。
type CandidatePool struct {
	Store core.CandidateStore
	Scope PoolScope

	// OverFetch 相对排序范围（Horizon）的超额读取倍数，<= 0 时为 5
	OverFetch int

	// MaxPoolSize 单个池的读取上限，<= 0 时为 1000
	MaxPoolSize int
}

// NewCandidatePool 创建候选池。
func NewCandidatePool(s core.CandidateStore, scope PoolScope) *CandidatePool {
	return &CandidatePool{
		Store:       s,
		Scope:       scope,
		OverFetch:   core.DefaultOverFetchFactor,
		MaxPoolSize: core.DefaultMaxPoolSize,
	}
}

func (p *CandidatePool) Name() string        { return "pool." + string(p.Scope) }
func (p *CandidatePool) Kind() pipeline.Kind { return pipeline.KindRecall }

// Process 实现 Node 接口，直接调用 Recall
func (p *CandidatePool) Process(
	ctx context.Context,
	rctx *core.RecommendContext,
	_ []*core.Item,
) ([]*core.Item, error) {
	return p.Recall(ctx, rctx)
}

// Limit 返回本次请求的读取量。
func (p *CandidatePool) Limit(rctx *core.RecommendContext) int {
	over := p.OverFetch
	if over <= 0 {
		over = core.DefaultOverFetchFactor
	}
	max := p.MaxPoolSize
	if max <= 0 {
		max = core.DefaultMaxPoolSize
	}
	return min(rctx.Horizon()*over, max)
}

func (p *CandidatePool) Recall(ctx context.Context, rctx *core.RecommendContext) ([]*core.Item, error) {
	q := core.CandidateQuery{
		Grade:   rctx.Filters.Grade,
		Subject: rctx.Filters.Subject,
		Limit:   p.Limit(rctx),
	}
	country := rctx.GetUserProfile().Country
	switch p.Scope {
	case ScopeLocal:
		if country == "" {
			return nil, nil
		}
		q.Country = country
	case ScopeGlobal:
		q.ExcludeCountry = country
	}

	cands, err := p.Store.ListCandidates(ctx, q)
	if err != nil {
		return nil, err
	}
	out := make([]*core.Item, 0, len(cands))
	for _, c := range cands {
		if c == nil {
			continue
		}
		out = append(out, core.NewItem(c))
	}
	return out, nil
}
