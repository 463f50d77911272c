package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"

	"github.com/rushteam/feedrank/core"
	"github.com/rushteam/feedrank/store"
)

// fixture 是命令行使用的离线数据集。
type fixture struct {
	// Now 固定的当前时间，零值使用系统时间
	Now time.Time `json:"now"`

	Candidates   []*core.ContentCandidate `json:"candidates"`
	Users        []fixtureUser            `json:"users"`
	Interactions []*core.Interaction      `json:"interactions"`
}

type fixtureUser struct {
	UserID           string    `json:"user_id"`
	Grade            string    `json:"grade"`
	Country          string    `json:"country"`
	Language         string    `json:"language"`
	CreatedAt        time.Time `json:"created_at"`
	InteractionCount int       `json:"interaction_count"`
	PreferLocal      *bool     `json:"prefer_local"`
	Communities      []string  `json:"communities"`
}

func (u fixtureUser) profile() *core.UserProfile {
	p := core.NewUserProfile(u.UserID)
	p.Grade = u.Grade
	p.Country = u.Country
	p.Language = u.Language
	p.CreatedAt = u.CreatedAt
	p.InteractionCount = u.InteractionCount
	if u.PreferLocal != nil {
		p.PreferLocal = *u.PreferLocal
	}
	for _, c := range u.Communities {
		p.Communities[c] = struct{}{}
	}
	return p
}

func loadFixture(path string) (*fixture, error) {
	if path == "" {
		return &fixture{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read fixture %s", path)
	}
	var fx fixture
	if err := json.Unmarshal(data, &fx); err != nil {
		return nil, errors.Wrapf(err, "decode fixture %s", path)
	}
	return &fx, nil
}

// apply 把 fixture 写入内容/用户存储与交互日志。
// 缺少 ID 的交互按序号补齐；权重始终由行为类型决定。
func (fx *fixture) apply(ctx context.Context, feeds *store.MemoryFeedStore, interactions core.InteractionStore) error {
	for _, c := range fx.Candidates {
		if c == nil || c.ID == "" {
			return errors.New("fixture: candidate without id")
		}
		feeds.PutCandidate(c)
	}
	for _, u := range fx.Users {
		if u.UserID == "" {
			return errors.New("fixture: user without user_id")
		}
		feeds.PutUser(u.profile())
	}
	for i, it := range fx.Interactions {
		if it == nil {
			continue
		}
		if !it.Type.Valid() {
			return errors.Errorf("fixture: interaction %d has unknown type %q", i, it.Type)
		}
		if it.ID == "" {
			it.ID = fmt.Sprintf("fx-%d", i)
		}
		it.Weight = core.InteractionWeight(it.Type)
		if err := interactions.AppendInteraction(ctx, it); err != nil {
			return errors.Wrapf(err, "fixture: append interaction %s", it.ID)
		}
	}
	return nil
}
