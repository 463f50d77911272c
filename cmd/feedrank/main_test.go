package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/feedrank/feed"
	"github.com/rushteam/feedrank/profile"
	"github.com/rushteam/feedrank/rank"
)

const testFixture = `{
  "now": "2026-03-10T12:00:00Z",
  "candidates": [
    {"id": "p1", "author_id": "a1", "created_at": "2026-03-08T12:00:00Z", "subject": "math", "grade": "10", "country": "KE",
     "title": "Quadratic equations explained", "like_count": 12, "comment_count": 3},
    {"id": "p2", "author_id": "a2", "created_at": "2026-03-09T12:00:00Z", "subject": "biology", "grade": "10", "country": "NG",
     "title": "How cells divide, step by step", "like_count": 4},
    {"id": "p3", "author_id": "a3", "created_at": "2026-03-10T06:00:00Z", "subject": "history", "grade": "11", "country": "KE",
     "title": "The scramble for Africa in maps", "like_count": 1}
  ],
  "users": [
    {"user_id": "u1", "grade": "10", "country": "KE", "created_at": "2026-03-08T00:00:00Z", "communities": ["c1"]}
  ],
  "interactions": [
    {"user_id": "u1", "content_id": "p1", "type": "LIKE", "subject": "math", "grade": "10", "created_at": "2026-03-09T10:00:00Z"}
  ]
}`

func writeFixture(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixture.json")
	require.NoError(t, os.WriteFile(path, []byte(testFixture), 0o600))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRank_NewUser(t *testing.T) {
	out, err := run(t, "rank", "--fixture", writeFixture(t), "--user", "u1")
	require.NoError(t, err)

	var res feed.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.False(t, res.Degraded)
	assert.Equal(t, rank.BandNew, res.Policy)
	// 一条交互不足以构建向量
	assert.Equal(t, profile.SourceDefault, res.VectorSource)
	assert.ElementsMatch(t, []string{"p1", "p2", "p3"}, res.IDs)
}

func TestRank_UnknownUserFallsBackToRecent(t *testing.T) {
	out, err := run(t, "rank", "--fixture", writeFixture(t), "--user", "ghost", "--page-size", "2")
	require.NoError(t, err)

	var res feed.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.True(t, res.Degraded)
	assert.Equal(t, []string{"p3", "p2"}, res.IDs)
}

func TestRank_SubjectFilter(t *testing.T) {
	out, err := run(t, "rank", "--fixture", writeFixture(t), "--user", "u1", "--subject", "math")
	require.NoError(t, err)

	var res feed.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, []string{"p1"}, res.IDs)
}

func TestRecord(t *testing.T) {
	out, err := run(t, "record", "--user", "u1", "--content", "p2", "--type", "SHARE")
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, 6.0, got["weight"])

	_, err = run(t, "record", "--user", "u1", "--content", "p2", "--type", "BOOKMARK")
	assert.Error(t, err)
}

func TestGradeTransition(t *testing.T) {
	out, err := run(t, "grade", "--fixture", writeFixture(t), "--user", "u1", "--to", "11")
	require.NoError(t, err)
	assert.Contains(t, out, `"old_grade": "10"`)

	_, err = run(t, "grade", "--fixture", writeFixture(t), "--user", "ghost", "--to", "11")
	assert.Error(t, err)
}

func TestBadFixture(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"interactions":[{"user_id":"u","content_id":"c","type":"POKE"}]}`), 0o600))

	_, err := run(t, "rank", "--fixture", path, "--user", "u")
	assert.Error(t, err)
}
