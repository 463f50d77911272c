package profile

import (
	"time"

	"github.com/rushteam/feedrank/core"
)

// Recommendation 是漂移检测给出的处理建议。
type Recommendation string

const (
	KeepCached Recommendation = "keep_cached"
	Recompute  Recommendation = "recompute"
)

// 年级升级时旧年级保留的过渡权重。
const transitionOldGradeWeight = 0.3

// DriftResult 是一次漂移检测的结果。
type DriftResult struct {
	Drifted        bool
	Similarity     float64
	Severity       float64 // 1 - Similarity，未漂移时为 0
	Recommendation Recommendation
}

// DetectDrift 比较近期与历史学科向量的余弦相似度，低于 threshold 视为漂移。
// 历史向量为空（没有可比较的历史）时不视为漂移。
func DetectDrift(recent, historical *core.InterestVector, threshold float64) DriftResult {
	if historical == nil || len(historical.Subjects) == 0 || recent == nil || len(recent.Subjects) == 0 {
		return DriftResult{Similarity: 1, Recommendation: KeepCached}
	}
	sim := recent.Subjects.Cosine(historical.Subjects)
	if sim < threshold {
		return DriftResult{
			Drifted:        true,
			Similarity:     sim,
			Severity:       1 - sim,
			Recommendation: Recompute,
		}
	}
	return DriftResult{Similarity: sim, Recommendation: KeepCached}
}

// ApplyGradeTransition 返回年级升级后的新向量：学科权重不变，年级权重重置为 {new: 1.0, old: 0.3}。
// 不修改入参。
func ApplyGradeTransition(vec *core.InterestVector, oldGrade, newGrade string, now time.Time) *core.InterestVector {
	out := vec.Clone()
	if out == nil {
		out = &core.InterestVector{Subjects: make(core.SparseVector)}
	}
	grades := make(core.SparseVector, 2)
	if oldGrade != "" && oldGrade != newGrade {
		grades[oldGrade] = transitionOldGradeWeight
	}
	if newGrade != "" {
		grades[newGrade] = 1.0
	}
	out.Grades = grades
	out.Metadata.LastUpdated = now
	out.Metadata.Default = false
	return out
}
