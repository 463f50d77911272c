package feature

import (
	"math"
	"time"
)

// WilsonZ 是 95% 置信度对应的 z 值。
const WilsonZ = 1.96

// WilsonScore 计算好评率的 Wilson 置信区间下界，结果在 [0,1]；无投票时为 0。
func WilsonScore(upvotes, downvotes int) float64 {
	if upvotes < 0 {
		upvotes = 0
	}
	if downvotes < 0 {
		downvotes = 0
	}
	n := float64(upvotes + downvotes)
	if n == 0 {
		return 0
	}
	p := float64(upvotes) / n
	z2 := WilsonZ * WilsonZ
	lower := (p + z2/(2*n) - WilsonZ*math.Sqrt((p*(1-p)+z2/(4*n))/n)) / (1 + z2/n)
	return clamp01(lower)
}

// AdjustWilsonForAge 按内容存活时长修正 Wilson 分，抑制新内容的刷票与虚高：
//
//	age < 1h     upvotes > 20 且去重投票比例 < 0.7 时 ×0.3；否则分数 > 0.8 时 ×0.5
//	1h ≤ age < 24h   ×(0.5 + 0.5·age/24h)
//	age ≥ 24h    不修正
func AdjustWilsonForAge(base float64, upvotes int, uniqueRatio float64, age time.Duration) float64 {
	switch {
	case age < time.Hour:
		if upvotes > 20 && uniqueRatio < 0.7 {
			return clamp01(base * 0.3)
		}
		if base > 0.8 {
			return clamp01(base * 0.5)
		}
		return clamp01(base)
	case age < 24*time.Hour:
		trust := 0.5 + 0.5*(float64(age)/float64(24*time.Hour))
		return clamp01(base * trust)
	default:
		return clamp01(base)
	}
}

// TimeAwareWilsonScore = AdjustWilsonForAge(WilsonScore(up, down), ...)。
func TimeAwareWilsonScore(upvotes, downvotes int, uniqueRatio float64, age time.Duration) float64 {
	return AdjustWilsonForAge(WilsonScore(upvotes, downvotes), upvotes, uniqueRatio, age)
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
