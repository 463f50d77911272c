package feature

import (
	"strings"

	"github.com/rushteam/feedrank/core"
)

// LocaleMatchScore 计算本地化匹配分：
//
//	同国家 1.0；不同国家同语言 0.6；任一侧缺国家 0.5；其余 0.3；
//	用户关闭本地偏好时恒为 0.5。
func LocaleMatchScore(user *core.UserProfile, c *core.ContentCandidate) float64 {
	if user == nil || c == nil || !user.PreferLocal {
		return 0.5
	}
	if user.Country == "" || c.Country == "" {
		return 0.5
	}
	if strings.EqualFold(user.Country, c.Country) {
		return 1.0
	}
	if user.Language != "" && strings.EqualFold(user.Language, c.Language) {
		return 0.6
	}
	return 0.3
}

// CommunityScore 社区影响力：用户属于内容所在社区 1.0；内容无社区 0.5；其余 0.3。
func CommunityScore(user *core.UserProfile, c *core.ContentCandidate) float64 {
	if c == nil || c.CommunityID == "" {
		return 0.5
	}
	if user.InCommunity(c.CommunityID) {
		return 1.0
	}
	return 0.3
}
