package feature

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/feedrank/core"
)

func TestGravity(t *testing.T) {
	tests := []struct {
		month time.Month
		want  float64
	}{
		{time.May, GravityExam},
		{time.June, GravityExam},
		{time.December, GravityExam},
		{time.July, GravityLowEngagement},
		{time.August, GravityLowEngagement},
		{time.March, GravityDefault},
		{time.October, GravityDefault},
	}
	for _, tt := range tests {
		t.Run(tt.month.String(), func(t *testing.T) {
			now := time.Date(2026, tt.month, 10, 0, 0, 0, 0, time.UTC)
			assert.Equal(t, tt.want, Gravity(now))
		})
	}
}

func TestTimeDecayScore(t *testing.T) {
	// P = 10 + 2*5 + 3*2 = 26
	p := EngagementPoints(10, 5, 2)
	assert.Equal(t, 26.0, p)

	fresh := TimeDecayScore(p, 0, GravityDefault)
	old := TimeDecayScore(p, 48*time.Hour, GravityDefault)
	assert.Greater(t, fresh, old)
	assert.InDelta(t, 25/3.4822022531844965, fresh, 1e-9) // 2^1.8

	// 考试月衰减更慢
	assert.Greater(t,
		TimeDecayScore(p, 10*time.Hour, GravityExam),
		TimeDecayScore(p, 10*time.Hour, GravityLowEngagement))

	assert.Less(t, TimeDecayScore(0, time.Hour, GravityDefault), 0.0)
}

func TestNormalizeDecay(t *testing.T) {
	assert.Equal(t, 0.0, NormalizeDecay(-3))
	assert.Equal(t, 0.25, NormalizeDecay(25))
	assert.Equal(t, 1.0, NormalizeDecay(250))
}

func TestWilsonScore(t *testing.T) {
	assert.Equal(t, 0.0, WilsonScore(0, 0))
	assert.InDelta(t, 0.8256, WilsonScore(90, 10), 1e-3)

	for _, c := range [][2]int{{1, 0}, {0, 1}, {5, 5}, {1000, 0}, {3, 700}} {
		s := WilsonScore(c[0], c[1])
		assert.GreaterOrEqual(t, s, 0.0)
		assert.LessOrEqual(t, s, 1.0)
	}
	// 同样比例，样本越多下界越高
	assert.Greater(t, WilsonScore(100, 20), WilsonScore(10, 2))
}

func TestAdjustWilsonForAge(t *testing.T) {
	tests := []struct {
		name        string
		base        float64
		upvotes     int
		uniqueRatio float64
		age         time.Duration
		want        float64
	}{
		{"brand new high score is halved", 0.9, 25, 1.0, 0, 0.45},
		{"brand new brigaded post is suppressed", 0.9, 25, 0.5, 30 * time.Minute, 0.27},
		{"brand new modest score unchanged", 0.5, 3, 1.0, 10 * time.Minute, 0.5},
		{"twelve hours old gets three quarters trust", 0.8, 10, 1.0, 12 * time.Hour, 0.6},
		{"one day old is trusted", 0.9, 25, 0.5, 24 * time.Hour, 0.9},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AdjustWilsonForAge(tt.base, tt.upvotes, tt.uniqueRatio, tt.age)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestTimeAwareWilsonScore_Bounded(t *testing.T) {
	for _, age := range []time.Duration{0, time.Hour, 5 * time.Hour, 48 * time.Hour} {
		s := TimeAwareWilsonScore(50, 1, 1, age)
		assert.GreaterOrEqual(t, s, 0.0)
		assert.LessOrEqual(t, s, 1.0)
	}
}

func TestGradeMatchScore(t *testing.T) {
	tests := []struct {
		user, content string
		want          float64
	}{
		{"10", "10", 1.0},
		{"10th Grade", "Grade 10", 1.0},
		{"10", "9", 0.8},
		{"10", "8", 0.6},
		{"10", "5", 0.4},
		{"10", "11", 0.7},
		{"10", "12", 0.4},
		{"10", "College", 0.2},
		{"10", "General", 1.0},
		{"Teacher", "3", 1.0},
		{"10", "", GradeUnknownScore},
		{"", "10", GradeUnknownScore},
		{"10", "Advanced", GradeUnknownScore},
	}
	for _, tt := range tests {
		t.Run(tt.user+"->"+tt.content, func(t *testing.T) {
			assert.Equal(t, tt.want, GradeMatchScore(tt.user, tt.content))
		})
	}
}

func TestLocaleMatchScore(t *testing.T) {
	user := &core.UserProfile{UserID: "u", Country: "KE", Language: "en", PreferLocal: true}

	assert.Equal(t, 1.0, LocaleMatchScore(user, &core.ContentCandidate{Country: "KE"}))
	assert.Equal(t, 0.6, LocaleMatchScore(user, &core.ContentCandidate{Country: "NG", Language: "en"}))
	assert.Equal(t, 0.3, LocaleMatchScore(user, &core.ContentCandidate{Country: "FR", Language: "fr"}))
	assert.Equal(t, 0.5, LocaleMatchScore(user, &core.ContentCandidate{}))

	optedOut := *user
	optedOut.PreferLocal = false
	assert.Equal(t, 0.5, LocaleMatchScore(&optedOut, &core.ContentCandidate{Country: "KE"}))
}

func TestCommunityScore(t *testing.T) {
	user := core.NewUserProfile("u")
	user.JoinCommunity("chess")

	assert.Equal(t, 1.0, CommunityScore(user, &core.ContentCandidate{CommunityID: "chess"}))
	assert.Equal(t, 0.3, CommunityScore(user, &core.ContentCandidate{CommunityID: "robotics"}))
	assert.Equal(t, 0.5, CommunityScore(user, &core.ContentCandidate{}))
}

func TestExtractor(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	rctx := &core.RecommendContext{
		UserID: "u",
		User:   &core.UserProfile{UserID: "u", Grade: "10", Country: "KE", PreferLocal: true},
		Vector: &core.InterestVector{
			Subjects: core.SparseVector{"math": 0.6, "physics": 0.3},
			Grades:   core.SparseVector{"10": 1},
		},
		Now: now,
	}

	item := core.NewItem(&core.ContentCandidate{
		ID: "p1", AuthorID: "a", CreatedAt: now.Add(-48 * time.Hour),
		Subject: "physics", Grade: "10", Country: "KE",
		LikeCount: 40, DislikeCount: 2, CommentCount: 3,
	})
	item.SetFeature(SignalCollaborative, 0.4)

	e := NewExtractor()
	require.NoError(t, e.Extract(rctx, item))

	assert.InDelta(t, 0.7*0.5+0.3*1, item.Feature(SignalInterest), 1e-9)
	assert.Equal(t, 0.4, item.Feature(SignalCollaborative))
	assert.Equal(t, 1.0, item.Feature(SignalLocale))
	assert.Equal(t, 1.0, item.Feature(SignalGradeMatch))
	assert.Equal(t, 0.5, item.Feature(SignalCommunity))
	assert.Greater(t, item.Feature(SignalQuality), 0.0)
	assert.Greater(t, item.Feature(SignalTimeDecay), 0.0)

	bad := core.NewItem(&core.ContentCandidate{ID: "p2"})
	assert.ErrorIs(t, e.Extract(rctx, bad), ErrInvalidCandidate)
	assert.Empty(t, bad.Features)
}
