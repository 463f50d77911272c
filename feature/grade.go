package feature

import (
	"strconv"
	"strings"
	"unicode"
)

// 不区分年级的通用标记。
const (
	GradeGeneral = "General"
	GradeTeacher = "Teacher"
)

// GradeUnknownScore 是任一侧年级缺失或无法解析时的匹配分。
const GradeUnknownScore = 0.7

var (
	// 内容年级低于用户 1/2/≥3 级
	lowerGradeScores = [...]float64{0.8, 0.6, 0.4}
	// 内容年级高于用户 1/2/≥3 级
	higherGradeScores = [...]float64{0.7, 0.4, 0.2}
)

// ParseGradeLevel 把年级标记解析为数字等级："10"、"10th Grade"、"Grade 7" -> 10/10/7，
// "College" -> 13，"Kindergarten"/"K" -> 0。无法识别返回 false。
func ParseGradeLevel(grade string) (int, bool) {
	g := strings.TrimSpace(grade)
	if g == "" {
		return 0, false
	}
	switch strings.ToLower(g) {
	case "college", "university":
		return 13, true
	case "k", "kindergarten":
		return 0, true
	}

	start := strings.IndexFunc(g, unicode.IsDigit)
	if start < 0 {
		return 0, false
	}
	end := start
	for end < len(g) && g[end] >= '0' && g[end] <= '9' {
		end++
	}
	n, err := strconv.Atoi(g[start:end])
	if err != nil {
		return 0, false
	}
	return n, true
}

func isUniversalGrade(g string) bool {
	return strings.EqualFold(g, GradeGeneral) || strings.EqualFold(g, GradeTeacher)
}

// GradeMatchScore 计算用户年级与内容年级的匹配分（排序时作为乘性衰减系数）。
func GradeMatchScore(userGrade, contentGrade string) float64 {
	if isUniversalGrade(userGrade) || isUniversalGrade(contentGrade) {
		return 1.0
	}
	u, ok1 := ParseGradeLevel(userGrade)
	c, ok2 := ParseGradeLevel(contentGrade)
	if !ok1 || !ok2 {
		return GradeUnknownScore
	}

	diff := c - u
	switch {
	case diff == 0:
		return 1.0
	case diff < 0:
		return lowerGradeScores[min(-diff, 3)-1]
	default:
		return higherGradeScores[min(diff, 3)-1]
	}
}
