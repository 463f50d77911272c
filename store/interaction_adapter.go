package store

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"

	"github.com/rushteam/feedrank/core"
)

// StoreInteractionAdapter 是基于 core.KeyValueStore 的交互日志存储，实现 core.InteractionStore。
//
// 存储布局：
//   - 交互事件：{KeyPrefix}:user:{userID}，有序集合，score 为事件时间（UnixNano），member 为 JSON
//   - 内容行为：{KeyPrefix}:seen:{userID}，Hash，field 为 "{contentID}|{type}"
//
// 行为索引只追加不覆盖，读取时取最大权重，并发写入不会相互覆盖。
type StoreInteractionAdapter struct {
	store core.KeyValueStore

	KeyPrefix string
}

// NewStoreInteractionAdapter 创建交互日志适配器。
func NewStoreInteractionAdapter(s core.KeyValueStore, keyPrefix string) *StoreInteractionAdapter {
	if keyPrefix == "" {
		keyPrefix = "interactions"
	}
	return &StoreInteractionAdapter{store: s, KeyPrefix: keyPrefix}
}

func (a *StoreInteractionAdapter) Name() string { return "store_interaction_adapter" }

func (a *StoreInteractionAdapter) eventsKey(userID string) string {
	return a.KeyPrefix + ":user:" + userID
}

func (a *StoreInteractionAdapter) seenKey(userID string) string {
	return a.KeyPrefix + ":seen:" + userID
}

func (a *StoreInteractionAdapter) AppendInteraction(ctx context.Context, it *core.Interaction) error {
	if it == nil || it.UserID == "" || it.ContentID == "" {
		return core.NewDomainError(core.ModuleStore, core.ErrorCodeInvalidInput, "interaction: user id and content id are required")
	}
	data, err := json.Marshal(it)
	if err != nil {
		return errors.Wrap(err, "encode interaction")
	}
	if err := a.store.ZAdd(ctx, a.eventsKey(it.UserID), float64(it.CreatedAt.UnixNano()), string(data)); err != nil {
		return errors.Wrapf(err, "append interaction %s", it.ID)
	}
	field := it.ContentID + "|" + string(it.Type)
	if err := a.store.HSet(ctx, a.seenKey(it.UserID), field, []byte{1}); err != nil {
		return errors.Wrapf(err, "index interaction %s", it.ID)
	}
	return nil
}

func (a *StoreInteractionAdapter) ListInteractions(ctx context.Context, userID string, since, until time.Time) ([]*core.Interaction, error) {
	min := math.Inf(-1)
	if !since.IsZero() {
		min = float64(since.UnixNano())
	}
	max := math.Inf(1)
	if !until.IsZero() {
		// 半开区间 [since, until)
		max = float64(until.UnixNano() - 1)
	}

	members, err := a.store.ZRangeByScore(ctx, a.eventsKey(userID), min, max)
	if err != nil {
		if core.IsStoreNotFound(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "list interactions for %s", userID)
	}

	out := make([]*core.Interaction, 0, len(members))
	for _, m := range members {
		var it core.Interaction
		if err := json.Unmarshal([]byte(m), &it); err != nil {
			return nil, errors.Wrap(err, "decode interaction")
		}
		if !until.IsZero() && !it.CreatedAt.Before(until) {
			continue
		}
		out = append(out, &it)
	}
	return out, nil
}

func (a *StoreInteractionAdapter) ContentWeights(ctx context.Context, userID string, contentIDs []string) (map[string]float64, error) {
	result := make(map[string]float64)
	if len(contentIDs) == 0 {
		return result, nil
	}
	seen, err := a.store.HGetAll(ctx, a.seenKey(userID))
	if err != nil {
		if core.IsStoreNotFound(err) {
			return result, nil
		}
		return nil, errors.Wrapf(err, "content weights for %s", userID)
	}

	wanted := make(map[string]struct{}, len(contentIDs))
	for _, id := range contentIDs {
		wanted[id] = struct{}{}
	}
	for field := range seen {
		idx := strings.LastIndexByte(field, '|')
		if idx < 0 {
			continue
		}
		contentID, typ := field[:idx], core.InteractionType(field[idx+1:])
		if _, ok := wanted[contentID]; !ok {
			continue
		}
		if w := core.InteractionWeight(typ); w > result[contentID] {
			result[contentID] = w
		}
	}
	return result, nil
}

var _ core.InteractionStore = (*StoreInteractionAdapter)(nil)
