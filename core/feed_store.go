package core

import (
	"context"
	"time"
)

// 以下接口由外部协作方实现，引擎只通过这些窄接口读取候选内容、用户与交互数据。
//
// 设计原则：
//   - 定义在领域层（core），由基础设施层（store）或外部服务实现
//   - 引擎不拥有帖子/用户/交互的持久化，只读取候选并追加交互事件

// CandidateQuery 是候选召回的过滤条件。
type CandidateQuery struct {
	// Grade / Subject 非空时只返回匹配的内容
	Grade   string
	Subject string

	// Country 非空时只返回该国家的内容
	Country string

	// ExcludeCountry 非空时排除该国家的内容（无国家的全球内容保留）
	ExcludeCountry string

	// Since 非零时只返回该时间之后创建的内容
	Since time.Time

	// Limit 最大返回条数（必须 > 0）
	Limit int
}

// CandidateStore 是内容候选读取接口：按过滤条件返回按创建时间倒序的有限候选列表。
type CandidateStore interface {
	ListCandidates(ctx context.Context, q CandidateQuery) ([]*ContentCandidate, error)
}

// UserStore 读取用户画像；用户不存在时返回 ErrStoreNotFound。
type UserStore interface {
	GetUser(ctx context.Context, userID string) (*UserProfile, error)
}

// Peer 是协同过滤候选同伴，只包含 ID / 注册时间 / 交互数，向量按需懒加载。
type Peer struct {
	UserID           string
	CreatedAt        time.Time
	InteractionCount int
}

// PeerStore 返回给定用户的候选同伴集合（最多 limit 个）。
type PeerStore interface {
	ListPeers(ctx context.Context, userID string, limit int) ([]Peer, error)
}

// InteractionStore 是交互事件存储：只追加写入，按时间窗口读取。
type InteractionStore interface {
	// AppendInteraction 追加一条交互事件
	AppendInteraction(ctx context.Context, it *Interaction) error

	// ListInteractions 返回 [since, until) 时间窗口内的交互，until 为零值表示不设上界
	ListInteractions(ctx context.Context, userID string, since, until time.Time) ([]*Interaction, error)

	// ContentWeights 返回用户对给定内容的最大交互权重，未交互的内容不出现在结果中
	ContentWeights(ctx context.Context, userID string, contentIDs []string) (map[string]float64, error)
}
