package filter

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// SpamHeuristics 是基于文本模式的垃圾内容检测。
// 零值不可用，使用 DefaultSpamHeuristics。
type SpamHeuristics struct {
	// MaxRepeatedRun 同一字符连续出现达到该长度视为垃圾（如 "!!!!!!!!!!"）
	MaxRepeatedRun int

	// MaxEmojiRun 连续 emoji 达到该数量视为垃圾
	MaxEmojiRun int

	// MaxURLLength URL 超过该长度视为垃圾
	MaxURLLength int

	// PromoPhrases 推广用语（小写匹配）
	PromoPhrases []string
}

var urlPattern = regexp.MustCompile(`(?i)\bhttps?://\S+|\bwww\.\S+`)

// DefaultSpamHeuristics 返回默认检测规则。
func DefaultSpamHeuristics() SpamHeuristics {
	return SpamHeuristics{
		MaxRepeatedRun: 10,
		MaxEmojiRun:    6,
		MaxURLLength:   200,
		PromoPhrases: []string{
			"buy now",
			"click here",
			"free money",
			"limited offer",
			"earn cash",
			"dm for price",
			"follow for follow",
			"subscribe to my channel",
			"100% free",
			"act now",
		},
	}
}

// Match 返回命中的规则名；未命中返回空字符串。
func (s SpamHeuristics) Match(text string) string {
	if text == "" {
		return ""
	}
	if s.MaxRepeatedRun > 0 && longestRepeatedRun(text) >= s.MaxRepeatedRun {
		return "repeated_chars"
	}
	if len(s.PromoPhrases) > 0 {
		lower := strings.ToLower(text)
		for _, p := range s.PromoPhrases {
			if p != "" && strings.Contains(lower, p) {
				return "promo_phrase"
			}
		}
	}
	if s.MaxEmojiRun > 0 && longestEmojiRun(text) >= s.MaxEmojiRun {
		return "emoji_run"
	}
	if s.MaxURLLength > 0 {
		for _, u := range urlPattern.FindAllString(text, -1) {
			if utf8.RuneCountInString(u) > s.MaxURLLength {
				return "long_url"
			}
		}
	}
	return ""
}

// longestRepeatedRun 返回同一非空白字符的最长连续长度（regexp 不支持反向引用，手工扫描）。
func longestRepeatedRun(text string) int {
	best, run := 0, 0
	var prev rune = -1
	for _, r := range text {
		if r == prev && !unicode.IsSpace(r) {
			run++
		} else {
			run = 1
			prev = r
		}
		if run > best {
			best = run
		}
	}
	return best
}

func longestEmojiRun(text string) int {
	best, run := 0, 0
	for _, r := range text {
		switch {
		case isEmoji(r):
			run++
			if run > best {
				best = run
			}
		case r == 0xFE0F || r == 0x200D || unicode.IsSpace(r):
			// 变体选择符 / ZWJ / 空白不打断连续 emoji
		default:
			run = 0
		}
	}
	return best
}

func isEmoji(r rune) bool {
	switch {
	case r >= 0x1F300 && r <= 0x1FAFF: // 符号、表情、交通、补充符号
		return true
	case r >= 0x2600 && r <= 0x27BF: // 杂项符号、装饰符号
		return true
	case r >= 0x1F1E6 && r <= 0x1F1FF: // 区域旗帜
		return true
	}
	return false
}
