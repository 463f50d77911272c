package feature

import (
	"math"
	"time"

	"github.com/rushteam/feedrank/core"
)

// 重力系数：考试月份衰减更慢，假期月份衰减更快。
const (
	GravityExam          = 1.5
	GravityLowEngagement = 2.2
	GravityDefault       = 1.8
)

// Gravity 返回 now 所在月份的时间衰减重力系数。
func Gravity(now time.Time) float64 {
	switch now.Month() {
	case time.May, time.June, time.December:
		return GravityExam
	case time.July, time.August:
		return GravityLowEngagement
	default:
		return GravityDefault
	}
}

// EngagementPoints 互动点数 P = likes + 2·comments + 3·shares。
func EngagementPoints(likes, comments, shares int) float64 {
	return float64(likes) + 2*float64(comments) + 3*float64(shares)
}

// TimeDecayScore 计算热度衰减分 (P-1)/(T+2)^gravity，T 为内容存活小时数。
// 结果未归一，可能为负（零互动的内容），通常配合 NormalizeDecay 使用。
func TimeDecayScore(points float64, age time.Duration, gravity float64) float64 {
	hours := age.Hours()
	if hours < 0 {
		hours = 0
	}
	return (points - 1) / math.Pow(hours+2, gravity)
}

// NormalizeDecay 把衰减分裁剪到 [0,100] 并映射到 [0,1]。
func NormalizeDecay(raw float64) float64 {
	if math.IsNaN(raw) || raw <= 0 {
		return 0
	}
	if raw >= 100 {
		return 1
	}
	return raw / 100
}

// CandidateDecay 计算候选内容在 now 时刻的归一化时间衰减分。
func CandidateDecay(c *core.ContentCandidate, now time.Time) float64 {
	if c == nil {
		return 0
	}
	p := EngagementPoints(c.LikeCount, c.CommentCount, c.ShareCount)
	return NormalizeDecay(TimeDecayScore(p, c.Age(now), Gravity(now)))
}
