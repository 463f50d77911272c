package feature

import (
	"github.com/rushteam/feedrank/core"
)

// 信号名（Item.Features 的 key）。
const (
	SignalTimeDecay     = "time_decay"
	SignalQuality       = "quality"
	SignalInterest      = "interest"
	SignalCollaborative = "collaborative"
	SignalCommunity     = "community"
	SignalLocale        = "locale"
	SignalGradeMatch    = "grade_match"
)

// 兴趣分的学科/年级权重。
const (
	InterestSubjectWeight = 0.7
	InterestGradeWeight   = 0.3
)

// ErrInvalidCandidate 表示候选缺少必填字段（ID、AuthorID、CreatedAt），该候选应被丢弃。
var ErrInvalidCandidate = core.NewDomainError(core.ModuleFeed, core.ErrorCodeInvalidInput, "feature: candidate missing required fields")

// Extractor 为单个候选计算全部信号分，写入 Item.Features。
// 协同过滤分由 recall.PeerCF 预先写入，这里只在缺失时补 0。
//
// 所有信号都是纯函数，Extractor 无状态，可并发使用。
type Extractor struct{}

// NewExtractor 创建信号抽取器。
func NewExtractor() *Extractor { return &Extractor{} }

func (e *Extractor) Name() string { return "feature.signals" }

// Extract 计算 item 的信号分；候选无效时返回 ErrInvalidCandidate，不修改 item。
func (e *Extractor) Extract(rctx *core.RecommendContext, item *core.Item) error {
	if item == nil || item.Candidate == nil {
		return ErrInvalidCandidate
	}
	c := item.Candidate
	if c.ID == "" || c.AuthorID == "" || c.CreatedAt.IsZero() {
		return ErrInvalidCandidate
	}

	now := rctx.Now
	user := rctx.GetUserProfile()
	age := c.Age(now)

	item.SetFeature(SignalTimeDecay, CandidateDecay(c, now))
	item.SetFeature(SignalQuality, TimeAwareWilsonScore(c.LikeCount, c.DislikeCount, c.UniqueVoterRatio(), age))
	item.SetFeature(SignalInterest, InterestScore(rctx.Vector, c))
	if _, ok := item.Features[SignalCollaborative]; !ok {
		item.SetFeature(SignalCollaborative, 0)
	}
	item.SetFeature(SignalCommunity, CommunityScore(user, c))
	item.SetFeature(SignalLocale, LocaleMatchScore(user, c))
	item.SetFeature(SignalGradeMatch, GradeMatchScore(user.Grade, c.Grade))
	return nil
}

// InterestScore = 0.7·学科权重/最大学科权重 + 0.3·年级权重/最大年级权重，向量缺失时为 0。
func InterestScore(vec *core.InterestVector, c *core.ContentCandidate) float64 {
	if vec == nil || c == nil {
		return 0
	}
	var subj, grade float64
	if m := vec.Subjects.Max(); m > 0 && c.Subject != "" {
		subj = vec.SubjectWeight(c.Subject) / m
	}
	if m := vec.Grades.Max(); m > 0 && c.Grade != "" {
		grade = vec.GradeWeight(c.Grade) / m
	}
	return clamp01(InterestSubjectWeight*subj + InterestGradeWeight*grade)
}
