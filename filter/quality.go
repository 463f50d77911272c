package filter

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/rushteam/feedrank/core"
	"github.com/rushteam/feedrank/pkg/dsl"
)

// QualityConfig 是质量门阈值。
type QualityConfig struct {
	// MinLikes 最少点赞数，只对存活超过 MinLikesAfter 的内容生效
	MinLikes      int
	MinLikesAfter time.Duration

	// MinContentLength 标题 + 正文最少字符数
	MinContentLength int

	// MinAuthorAge 作者账号最短注册时长（作者注册时间未知时不检查）
	MinAuthorAge time.Duration

	// MaxReports 举报数上限（超过即拒绝）
	MaxReports int

	Spam SpamHeuristics
}

// DefaultQualityConfig 返回默认阈值。
func DefaultQualityConfig() QualityConfig {
	return QualityConfig{
		MinLikes:         1,
		MinLikesAfter:    72 * time.Hour,
		MinContentLength: 10,
		MinAuthorAge:     24 * time.Hour,
		MaxReports:       5,
		Spam:             DefaultSpamHeuristics(),
	}
}

// QualityGate 是硬性质量/垃圾内容门，等价于排序中的 0/1 乘性门。
//
// 检查顺序：举报数 -> 垃圾文本 -> 自定义规则 -> 内容长度 -> 作者账号年龄 -> 最少点赞。
// 可信作者跳过作者账号年龄与最少点赞检查，但不跳过举报、垃圾与规则检查。
type QualityGate struct {
	Config QualityConfig

	// Rules 可选 CEL 规则，任一返回 true 即拒绝
	Rules []*dsl.Rule
}

// NewQualityGate 创建质量门。
func NewQualityGate(cfg QualityConfig, rules ...*dsl.Rule) *QualityGate {
	return &QualityGate{Config: cfg, Rules: rules}
}

func (g *QualityGate) Name() string {
	return "filter.quality"
}

func (g *QualityGate) ShouldFilter(
	_ context.Context,
	rctx *core.RecommendContext,
	item *core.Item,
) (bool, error) {
	reason, err := g.Check(rctx, item)
	return reason != "", err
}

// Check 返回拒绝原因；通过时返回空字符串。
func (g *QualityGate) Check(rctx *core.RecommendContext, item *core.Item) (string, error) {
	if item == nil || item.Candidate == nil {
		return "missing_candidate", nil
	}
	c := item.Candidate
	cfg := g.Config

	if cfg.MaxReports >= 0 && c.ReportCount > cfg.MaxReports {
		return "reports", nil
	}
	if r := cfg.Spam.Match(c.Title); r != "" {
		return "spam_" + r, nil
	}
	if r := cfg.Spam.Match(c.Body); r != "" {
		return "spam_" + r, nil
	}
	for _, rule := range g.Rules {
		hit, err := rule.Evaluate(item, rctx)
		if err != nil {
			return "", err
		}
		if hit {
			return "rule", nil
		}
	}
	if cfg.MinContentLength > 0 &&
		utf8.RuneCountInString(c.Title)+utf8.RuneCountInString(c.Body) < cfg.MinContentLength {
		return "too_short", nil
	}
	if c.AuthorTrusted {
		return "", nil
	}

	now := rctx.Now
	if cfg.MinAuthorAge > 0 && !c.AuthorCreatedAt.IsZero() && now.Sub(c.AuthorCreatedAt) < cfg.MinAuthorAge {
		return "author_too_new", nil
	}
	if cfg.MinLikes > 0 && c.Age(now) >= cfg.MinLikesAfter && c.LikeCount < cfg.MinLikes {
		return "low_engagement", nil
	}
	return "", nil
}
