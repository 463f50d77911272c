package profile

import (
	"time"

	"github.com/rushteam/feedrank/core"
	"github.com/rushteam/feedrank/feature"
)

// 年级段对应的课程学科先验，用于交互不足的新用户。
var (
	primaryPriors = core.SparseVector{
		"reading": 0.25, "math": 0.25, "science": 0.15,
		"art": 0.15, "social_studies": 0.10, "music": 0.10,
	}
	middlePriors = core.SparseVector{
		"math": 0.25, "science": 0.20, "english": 0.20,
		"history": 0.15, "geography": 0.10, "art": 0.10,
	}
	highPriors = core.SparseVector{
		"math": 0.22, "physics": 0.15, "chemistry": 0.15, "biology": 0.15,
		"english": 0.13, "history": 0.10, "computer_science": 0.10,
	}
	collegePriors = core.SparseVector{
		"computer_science": 0.20, "math": 0.20, "economics": 0.15,
		"physics": 0.15, "biology": 0.15, "literature": 0.15,
	}
	generalPriors = core.SparseVector{
		"math": 0.20, "science": 0.20, "english": 0.20,
		"history": 0.15, "art": 0.15, "computer_science": 0.10,
	}
)

// CurriculumPriors 返回年级对应的学科先验（副本）。
func CurriculumPriors(grade string) core.SparseVector {
	level, ok := feature.ParseGradeLevel(grade)
	switch {
	case !ok:
		return generalPriors.Clone()
	case level <= 5:
		return primaryPriors.Clone()
	case level <= 8:
		return middlePriors.Clone()
	case level <= 12:
		return highPriors.Clone()
	default:
		return collegePriors.Clone()
	}
}

// DefaultVector 返回基于年级课程先验的默认兴趣向量（Metadata.Default = true）。
// 年级为空时使用通用先验、年级维度为空。
func DefaultVector(userID, grade string, now time.Time) *core.InterestVector {
	subjects := CurriculumPriors(grade).Normalize()
	grades := make(core.SparseVector)
	if grade != "" {
		grades[grade] = 1.0
	}
	return &core.InterestVector{
		OwnerID:  userID,
		Subjects: subjects,
		Grades:   grades,
		Metadata: core.VectorMetadata{
			LastUpdated:    now,
			DiversityScore: subjects.Entropy(),
			Default:        true,
		},
	}
}
