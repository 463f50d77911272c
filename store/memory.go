package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rushteam/feedrank/core"
)

// MemoryStore 是内存实现的 KeyValueStore，用作兴趣向量/排序结果的快层缓存，也用于测试与 CLI。
// 支持 TTL 与容量上限（超过上限时淘汰最久未访问的条目），进程重启后数据丢失。
type MemoryStore struct {
	mu      sync.RWMutex
	data    map[string]*entry
	zsets   map[string]map[string]float64 // zset key -> member -> score
	hashes  map[string]map[string][]byte  // hash key -> field -> value
	maxSize int

	clean *time.Ticker
	stop  chan struct{}
	once  sync.Once
}

type entry struct {
	value      []byte
	expireAt   time.Time // 零值表示不过期
	accessedAt time.Time
}

func (e *entry) expired(now time.Time) bool {
	return !e.expireAt.IsZero() && now.After(e.expireAt)
}

// NewMemoryStore 创建内存存储；maxSize <= 0 表示不限容量。
func NewMemoryStore(maxSize int) *MemoryStore {
	ms := &MemoryStore{
		data:    make(map[string]*entry),
		zsets:   make(map[string]map[string]float64),
		hashes:  make(map[string]map[string][]byte),
		maxSize: maxSize,
		clean:   time.NewTicker(10 * time.Second),
		stop:    make(chan struct{}),
	}
	go ms.cleanup()
	return ms
}

func (m *MemoryStore) Name() string { return "memory" }

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.data[key]
	if !ok {
		return nil, core.ErrStoreNotFound
	}
	now := time.Now()
	if e.expired(now) {
		delete(m.data, key)
		return nil, core.ErrStoreNotFound
	}
	e.accessedAt = now
	return e.value, nil
}

func (m *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.setLocked(key, value, ttl, time.Now())
	return nil
}

func (m *MemoryStore) setLocked(key string, value []byte, ttl time.Duration, now time.Time) {
	if _, exists := m.data[key]; !exists && m.maxSize > 0 && len(m.data) >= m.maxSize {
		m.evictLocked(now)
	}
	e := &entry{value: value, accessedAt: now}
	if ttl > 0 {
		e.expireAt = now.Add(ttl)
	}
	m.data[key] = e
}

// evictLocked 先清理过期条目，仍满时淘汰最久未访问的条目。
func (m *MemoryStore) evictLocked(now time.Time) {
	for k, e := range m.data {
		if e.expired(now) {
			delete(m.data, k)
		}
	}
	if len(m.data) < m.maxSize {
		return
	}
	var oldestKey string
	var oldest time.Time
	first := true
	for k, e := range m.data {
		if first || e.accessedAt.Before(oldest) {
			oldestKey, oldest, first = k, e.accessedAt, false
		}
	}
	if !first {
		delete(m.data, oldestKey)
	}
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.data, key)
	delete(m.zsets, key)
	delete(m.hashes, key)
	return nil
}

func (m *MemoryStore) BatchGet(_ context.Context, keys []string) (map[string][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string][]byte, len(keys))
	now := time.Now()
	for _, k := range keys {
		e, ok := m.data[k]
		if !ok || e.expired(now) {
			continue
		}
		result[k] = e.value
	}
	return result, nil
}

func (m *MemoryStore) BatchSet(_ context.Context, kvs map[string][]byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for k, v := range kvs {
		m.setLocked(k, v, ttl, now)
	}
	return nil
}

// Len 返回当前未过期的条目数。
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := time.Now()
	n := 0
	for _, e := range m.data {
		if !e.expired(now) {
			n++
		}
	}
	return n
}

func (m *MemoryStore) Close() error {
	m.once.Do(func() {
		close(m.stop)
	})
	return nil
}

func (m *MemoryStore) cleanup() {
	for {
		select {
		case <-m.clean.C:
			m.mu.Lock()
			now := time.Now()
			for k, e := range m.data {
				if e.expired(now) {
					delete(m.data, k)
				}
			}
			m.mu.Unlock()
		case <-m.stop:
			m.clean.Stop()
			return
		}
	}
}

// KeyValueStore 扩展方法

var _ core.KeyValueStore = (*MemoryStore)(nil)

func (m *MemoryStore) ZAdd(_ context.Context, key string, score float64, member string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.zsets[key] == nil {
		m.zsets[key] = make(map[string]float64)
	}
	m.zsets[key][member] = score
	return nil
}

func (m *MemoryStore) ZRangeByScore(_ context.Context, key string, min, max float64) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	zset, ok := m.zsets[key]
	if !ok || len(zset) == 0 {
		return nil, nil
	}

	type pair struct {
		member string
		score  float64
	}
	pairs := make([]pair, 0, len(zset))
	for member, s := range zset {
		if s < min || s > max {
			continue
		}
		pairs = append(pairs, pair{member: member, score: s})
	}
	// 与 Redis 一致：分数升序，分数相同按成员字典序
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].score != pairs[j].score {
			return pairs[i].score < pairs[j].score
		}
		return strings.Compare(pairs[i].member, pairs[j].member) < 0
	})

	result := make([]string, 0, len(pairs))
	for _, p := range pairs {
		result = append(result, p.member)
	}
	return result, nil
}

func (m *MemoryStore) HSet(_ context.Context, key, field string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.hashes[key] == nil {
		m.hashes[key] = make(map[string][]byte)
	}
	m.hashes[key][field] = value
	return nil
}

func (m *MemoryStore) HGetAll(_ context.Context, key string) (map[string][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string][]byte, len(m.hashes[key]))
	for field, v := range m.hashes[key] {
		result[field] = v
	}
	return result, nil
}

func (m *MemoryStore) HDel(_ context.Context, key string, fields ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.hashes[key]
	if !ok {
		return nil
	}
	for _, f := range fields {
		delete(h, f)
	}
	if len(h) == 0 {
		delete(m.hashes, key)
	}
	return nil
}
