package dsl

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/feedrank/core"
	"github.com/rushteam/feedrank/pkg/utils"
)

func TestRule_Evaluate(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	item := core.NewItem(&core.ContentCandidate{
		ID: "p1", AuthorID: "a", CreatedAt: now.Add(-3 * time.Hour),
		Subject: "math", Grade: "10", Country: "KE",
		Title: "Free giveaway inside", ReportCount: 2, LikeCount: 150,
	})
	item.PutLabel(utils.LabelRecallSource, utils.Label{Value: "pool.local", Source: "recall"})
	rctx := &core.RecommendContext{
		UserID: "u1",
		User:   &core.UserProfile{UserID: "u1", Grade: "10", Country: "NG"},
		Now:    now,
	}

	tests := []struct {
		expr string
		want bool
	}{
		{`item.report_count >= 2 && !item.author_trusted`, true},
		{`item.subject == "physics"`, false},
		{`item.age_hours < 1.0 && item.like_count > 100`, false},
		{`item.age_hours > 2.0`, true},
		{`user.grade == item.grade && user.country != item.country`, true},
		{`item.title.contains("giveaway")`, true},
		{`label.recall_source == "pool.local"`, true},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			r, err := Compile(tt.expr)
			require.NoError(t, err)
			got, err := r.Evaluate(item, rctx)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCompile_Errors(t *testing.T) {
	_, err := Compile(`item.like_count >`)
	assert.Error(t, err)

	_, err = Compile(`1 + 2`)
	assert.Error(t, err)

	assert.Panics(t, func() { MustCompile(`(`) })
}
