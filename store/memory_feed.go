package store

import (
	"context"
	"sort"
	"sync"

	"github.com/rushteam/feedrank/core"
)

// MemoryFeedStore 是内存实现的候选内容 / 用户 / 同伴存储，用于测试、CLI 与原型。
// 实现 core.CandidateStore、core.UserStore、core.PeerStore。
type MemoryFeedStore struct {
	mu         sync.RWMutex
	candidates map[string]*core.ContentCandidate
	users      map[string]*core.UserProfile
}

// NewMemoryFeedStore 创建空的内存存储。
func NewMemoryFeedStore() *MemoryFeedStore {
	return &MemoryFeedStore{
		candidates: make(map[string]*core.ContentCandidate),
		users:      make(map[string]*core.UserProfile),
	}
}

func (m *MemoryFeedStore) Name() string { return "memory_feed" }

// PutCandidate 写入（覆盖）候选内容。
func (m *MemoryFeedStore) PutCandidate(c *core.ContentCandidate) {
	if c == nil || c.ID == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.candidates[c.ID] = c
}

// PutUser 写入（覆盖）用户画像。
func (m *MemoryFeedStore) PutUser(u *core.UserProfile) {
	if u == nil || u.UserID == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.UserID] = u
}

// SetUserGrade 修改用户年级（年级升级场景）。
func (m *MemoryFeedStore) SetUserGrade(userID, grade string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return false
	}
	u.Grade = grade
	return true
}

func (m *MemoryFeedStore) ListCandidates(_ context.Context, q core.CandidateQuery) ([]*core.ContentCandidate, error) {
	if q.Limit <= 0 {
		return nil, core.NewDomainError(core.ModuleStore, core.ErrorCodeInvalidInput, "candidate query: limit must be positive")
	}

	m.mu.RLock()
	out := make([]*core.ContentCandidate, 0, len(m.candidates))
	for _, c := range m.candidates {
		if !matchCandidate(c, q) {
			continue
		}
		out = append(out, c)
	}
	m.mu.RUnlock()

	// 按创建时间倒序，时间相同按 ID 保证稳定
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func matchCandidate(c *core.ContentCandidate, q core.CandidateQuery) bool {
	if q.Grade != "" && c.Grade != q.Grade {
		return false
	}
	if q.Subject != "" && c.Subject != q.Subject {
		return false
	}
	if q.Country != "" && c.Country != q.Country {
		return false
	}
	if q.ExcludeCountry != "" && c.Country == q.ExcludeCountry {
		return false
	}
	if !q.Since.IsZero() && c.CreatedAt.Before(q.Since) {
		return false
	}
	return true
}

func (m *MemoryFeedStore) GetUser(_ context.Context, userID string) (*core.UserProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[userID]
	if !ok {
		return nil, core.ErrStoreNotFound
	}
	cp := *u
	cp.Communities = make(map[string]struct{}, len(u.Communities))
	for k := range u.Communities {
		cp.Communities[k] = struct{}{}
	}
	return &cp, nil
}

func (m *MemoryFeedStore) ListPeers(_ context.Context, userID string, limit int) ([]core.Peer, error) {
	m.mu.RLock()
	peers := make([]core.Peer, 0, len(m.users))
	for id, u := range m.users {
		if id == userID {
			continue
		}
		peers = append(peers, core.Peer{
			UserID:           id,
			CreatedAt:        u.CreatedAt,
			InteractionCount: u.InteractionCount,
		})
	}
	m.mu.RUnlock()

	sort.Slice(peers, func(i, j int) bool { return peers[i].UserID < peers[j].UserID })
	if limit > 0 && len(peers) > limit {
		peers = peers[:limit]
	}
	return peers, nil
}

var (
	_ core.CandidateStore = (*MemoryFeedStore)(nil)
	_ core.UserStore      = (*MemoryFeedStore)(nil)
	_ core.PeerStore      = (*MemoryFeedStore)(nil)
)
