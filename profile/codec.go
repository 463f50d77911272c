package profile

import (
	"time"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
)

// 缓存层名称。
const (
	TierFast    = "fast"
	TierDurable = "durable"
)

// CacheEntry 是缓存层中保存的条目，两层各自持有独立副本。
type CacheEntry[T any] struct {
	Value      T             `json:"value"`
	ComputedAt time.Time     `json:"computed_at"`
	TTL        time.Duration `json:"ttl"`
	Tier       string        `json:"tier"`
}

// EncodeEntry 序列化缓存条目。
func EncodeEntry[T any](e CacheEntry[T]) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, errors.Wrap(err, "encode cache entry")
	}
	return data, nil
}

// DecodeEntry 反序列化缓存条目。
func DecodeEntry[T any](data []byte) (CacheEntry[T], error) {
	var e CacheEntry[T]
	if err := json.Unmarshal(data, &e); err != nil {
		return e, errors.Wrap(err, "decode cache entry")
	}
	return e, nil
}
