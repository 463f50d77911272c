package core

import "time"

// InteractionType 是用户对内容的行为类型。
type InteractionType string

const (
	InteractionView    InteractionType = "VIEW"
	InteractionLike    InteractionType = "LIKE"
	InteractionComment InteractionType = "COMMENT"
	InteractionShare   InteractionType = "SHARE"
	InteractionEcho    InteractionType = "ECHO"
)

// MaxInteractionWeight 是单次交互的最大权重（ECHO），用于把权重归一到 [0,1]。
const MaxInteractionWeight = 8.0

var interactionWeights = map[InteractionType]float64{
	InteractionView:    1,
	InteractionLike:    2,
	InteractionComment: 4,
	InteractionShare:   6,
	InteractionEcho:    8,
}

// InteractionWeight 返回行为类型对应的权重，严格单调：ECHO > SHARE > COMMENT > LIKE > VIEW。
// 未知类型返回 0。
func InteractionWeight(t InteractionType) float64 {
	return interactionWeights[t]
}

// Valid 判断是否为已知行为类型。
func (t InteractionType) Valid() bool {
	_, ok := interactionWeights[t]
	return ok
}

// Interaction 是一条只追加、不可修改的交互事件。
// Subject / Grade 可选，空字符串表示缺失。
type Interaction struct {
	ID          string          `json:"id"`
	UserID      string          `json:"user_id"`
	ContentID   string          `json:"content_id"`
	ContentType string          `json:"content_type"`
	Type        InteractionType `json:"type"`
	Subject     string          `json:"subject,omitempty"`
	Grade       string          `json:"grade,omitempty"`
	Weight      float64         `json:"weight"`
	CreatedAt   time.Time       `json:"created_at"`
}

// NewInteraction 创建交互事件，Weight 由 Type 决定。
func NewInteraction(id, userID, contentID, contentType string, t InteractionType, subject, grade string, at time.Time) *Interaction {
	return &Interaction{
		ID:          id,
		UserID:      userID,
		ContentID:   contentID,
		ContentType: contentType,
		Type:        t,
		Subject:     subject,
		Grade:       grade,
		Weight:      InteractionWeight(t),
		CreatedAt:   at,
	}
}
