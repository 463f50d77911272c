package rank

import (
	"time"

	"github.com/rushteam/feedrank/core"
)

// MaturityBand 是用户的冷启动阶段。
type MaturityBand string

const (
	BandNew        MaturityBand = "new"
	BandDeveloping MaturityBand = "developing"
	BandMature     MaturityBand = "mature"
)

// 阶段边界：注册时长或交互数任一不满足即停留在较早阶段。
const (
	NewMaxAge                 = 7 * 24 * time.Hour
	NewMaxInteractions        = 10
	DevelopingMaxAge          = 30 * 24 * time.Hour
	DevelopingMaxInteractions = 50
)

// Weights 是各信号在基础分中的权重，五项之和为 1。
type Weights struct {
	TimeDecay     float64 `json:"time_decay"`
	Quality       float64 `json:"quality"`
	Interest      float64 `json:"interest"`
	Collaborative float64 `json:"collaborative"`
	Community     float64 `json:"community"`
}

// Sum 返回权重和。
func (w Weights) Sum() float64 {
	return w.TimeDecay + w.Quality + w.Interest + w.Collaborative + w.Community
}

// Policy 是一次请求使用的排序策略。
type Policy struct {
	Band    MaturityBand
	Weights Weights
}

var bandWeights = map[MaturityBand]Weights{
	// 新用户没有可信的兴趣数据，只看新鲜度与质量
	BandNew:        {TimeDecay: 0.45, Quality: 0.45, Interest: 0, Collaborative: 0, Community: 0.10},
	BandDeveloping: {TimeDecay: 0.25, Quality: 0.25, Interest: 0.30, Collaborative: 0.10, Community: 0.10},
	BandMature:     {TimeDecay: 0.15, Quality: 0.15, Interest: 0.35, Collaborative: 0.25, Community: 0.10},
}

// ClassifyUser 按注册时长与交互数判断冷启动阶段；未知用户视为新用户。
func ClassifyUser(user *core.UserProfile, now time.Time) MaturityBand {
	if user == nil {
		return BandNew
	}
	age := user.AccountAge(now)
	switch {
	case age < NewMaxAge || user.InteractionCount < NewMaxInteractions:
		return BandNew
	case age < DevelopingMaxAge || user.InteractionCount < DevelopingMaxInteractions:
		return BandDeveloping
	default:
		return BandMature
	}
}

// WeightsFor 返回阶段对应的权重，未知阶段按成熟用户处理。
func WeightsFor(band MaturityBand) Weights {
	if w, ok := bandWeights[band]; ok {
		return w
	}
	return bandWeights[BandMature]
}

// SelectPolicy 为用户选择排序策略。
func SelectPolicy(user *core.UserProfile, now time.Time) Policy {
	band := ClassifyUser(user, now)
	return Policy{Band: band, Weights: WeightsFor(band)}
}
