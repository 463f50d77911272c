package filter

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/feedrank/core"
	"github.com/rushteam/feedrank/pkg/dsl"
	"github.com/rushteam/feedrank/pkg/metrics"
	"github.com/rushteam/feedrank/pkg/utils"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func goodCandidate(id string) *core.ContentCandidate {
	return &core.ContentCandidate{
		ID:              id,
		AuthorID:        "author",
		CreatedAt:       testNow.Add(-2 * time.Hour),
		AuthorCreatedAt: testNow.Add(-90 * 24 * time.Hour),
		Title:           "Solving quadratic equations",
		Body:            "Step by step with the discriminant.",
		LikeCount:       4,
	}
}

func TestSpamHeuristics_Match(t *testing.T) {
	s := DefaultSpamHeuristics()
	tests := []struct {
		name string
		text string
		want string
	}{
		{"clean", "Photosynthesis notes for chapter 4", ""},
		{"repeated chars", "wowwwwwwwwwwww amazing", "repeated_chars"},
		{"nine repeats allowed", "hmmmmmmmmm", ""},
		{"spaces are not a run", "a" + strings.Repeat(" ", 20) + "b", ""},
		{"promo phrase", "CLICK HERE for answers", "promo_phrase"},
		{"emoji run", "great 😀😀😀😀😀😀", "emoji_run"},
		{"short emoji run", "great 😀😀😀", ""},
		{"long url", "see https://example.com/" + strings.Repeat("a", 210), "long_url"},
		{"normal url", "see https://example.com/notes", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.Match(tt.text))
		})
	}
}

func TestQualityGate_Check(t *testing.T) {
	rctx := &core.RecommendContext{UserID: "u", Now: testNow}
	gate := NewQualityGate(DefaultQualityConfig())

	tests := []struct {
		name   string
		mutate func(c *core.ContentCandidate)
		want   string
	}{
		{"passes", func(c *core.ContentCandidate) {}, ""},
		{"too many reports", func(c *core.ContentCandidate) { c.ReportCount = 6 }, "reports"},
		{"spam in body", func(c *core.ContentCandidate) { c.Body = "buy now!!!" }, "spam_promo_phrase"},
		{"too short", func(c *core.ContentCandidate) { c.Title, c.Body = "hi", "" }, "too_short"},
		{"new author", func(c *core.ContentCandidate) { c.AuthorCreatedAt = testNow.Add(-time.Hour) }, "author_too_new"},
		{"unknown author age passes", func(c *core.ContentCandidate) { c.AuthorCreatedAt = time.Time{} }, ""},
		{"old post without likes", func(c *core.ContentCandidate) {
			c.CreatedAt = testNow.Add(-96 * time.Hour)
			c.LikeCount = 0
		}, "low_engagement"},
		{"fresh post without likes passes", func(c *core.ContentCandidate) { c.LikeCount = 0 }, ""},
		{"trusted new author skips age and engagement", func(c *core.ContentCandidate) {
			c.AuthorTrusted = true
			c.AuthorCreatedAt = testNow.Add(-time.Hour)
			c.CreatedAt = testNow.Add(-96 * time.Hour)
			c.LikeCount = 0
		}, ""},
		{"trusted author still checked for reports", func(c *core.ContentCandidate) {
			c.AuthorTrusted = true
			c.ReportCount = 10
		}, "reports"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := goodCandidate("p")
			tt.mutate(c)
			got, err := gate.Check(rctx, core.NewItem(c))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestQualityGate_Rules(t *testing.T) {
	rctx := &core.RecommendContext{UserID: "u", Now: testNow}
	gate := NewQualityGate(DefaultQualityConfig(), dsl.MustCompile(`item.subject == "betting"`))

	c := goodCandidate("p")
	c.Subject = "betting"
	reason, err := gate.Check(rctx, core.NewItem(c))
	require.NoError(t, err)
	assert.Equal(t, "rule", reason)
	reason, err = gate.Check(rctx, core.NewItem(goodCandidate("q")))
	require.NoError(t, err)
	assert.Empty(t, reason)
}

func TestFilterNode_Process(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	node := &FilterNode{Filters: []Filter{NewQualityGate(DefaultQualityConfig())}, Metrics: m}
	rctx := &core.RecommendContext{UserID: "u", Now: testNow}

	reported := goodCandidate("bad")
	reported.ReportCount = 9
	items := []*core.Item{
		core.NewItem(goodCandidate("a")),
		core.NewItem(reported),
		nil,
		core.NewItem(goodCandidate("b")),
	}

	out, err := node.Process(context.Background(), rctx, items)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, core.ItemIDs(out))
	assert.Equal(t, utils.Label{Value: "filter.quality:reports", Source: "filter"}, items[1].Labels[utils.LabelFiltered])
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DroppedCandidates.WithLabelValues("filter.quality:reports")))
}

func TestFilterNode_RuleErrorDropsCandidate(t *testing.T) {
	// features.missing 不存在，求值报错
	gate := NewQualityGate(DefaultQualityConfig(), dsl.MustCompile(`item.features.missing > 1.0`))
	node := &FilterNode{Filters: []Filter{gate}}
	rctx := &core.RecommendContext{UserID: "u", Now: testNow}

	out, err := node.Process(context.Background(), rctx, []*core.Item{core.NewItem(goodCandidate("a"))})
	require.NoError(t, err)
	assert.Empty(t, out)
}
