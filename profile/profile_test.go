package profile

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/feedrank/core"
	"github.com/rushteam/feedrank/pkg/worker"
	"github.com/rushteam/feedrank/store"
)

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func events(userID string, n int, subject, grade string, t core.InteractionType, at time.Time) []*core.Interaction {
	out := make([]*core.Interaction, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, core.NewInteraction(
			fmt.Sprintf("%s-%s-%d-%d", userID, subject, at.Unix(), i),
			userID, fmt.Sprintf("c-%s-%d", subject, i), "post", t, subject, grade,
			at.Add(time.Duration(i)*time.Minute),
		))
	}
	return out
}

func TestBuilder_Build(t *testing.T) {
	var in []*core.Interaction
	in = append(in, events("u", 3, "math", "10", core.InteractionLike, now)...)    // 6
	in = append(in, events("u", 1, "physics", "11", core.InteractionEcho, now)...) // 8
	in = append(in, events("u", 2, "art", "", core.InteractionView, now)...)       // 2
	in = append(in, &core.Interaction{Type: "BOGUS", Subject: "spam"})

	v := NewBuilder(DefaultBuilderConfig()).Build("u", in, now)

	assert.Equal(t, "u", v.OwnerID)
	assert.Equal(t, 6, v.Metadata.InteractionCount)
	assert.Equal(t, now, v.Metadata.LastUpdated)
	assert.InDelta(t, 1.0, v.Subjects.Sum(), 1e-9)
	assert.InDelta(t, 8.0/16, v.Subjects["physics"], 1e-9)
	assert.InDelta(t, 6.0/16, v.Subjects["math"], 1e-9)
	assert.NotContains(t, v.Subjects, "spam")
	assert.InDelta(t, 8.0/14, v.Grades["11"], 1e-9)
	assert.Greater(t, v.Metadata.DiversityScore, 0.0)
	assert.LessOrEqual(t, v.Metadata.DiversityScore, 1.0)
}

func TestBuilder_PruneRenormalization(t *testing.T) {
	var in []*core.Interaction
	in = append(in, events("u", 4, "math", "10", core.InteractionView, now)...)
	in = append(in, events("u", 3, "physics", "10", core.InteractionView, now)...)
	in = append(in, events("u", 2, "chemistry", "10", core.InteractionView, now)...)
	in = append(in, events("u", 1, "art", "10", core.InteractionView, now)...)

	t.Run("renormalized", func(t *testing.T) {
		v := NewBuilder(BuilderConfig{TopK: 2, Renormalize: true}).Build("u", in, now)
		require.Len(t, v.Subjects, 2)
		assert.InDelta(t, 1.0, v.Subjects.Sum(), 1e-9)
		assert.InDelta(t, 4.0/7, v.Subjects["math"], 1e-9)
	})

	t.Run("raw pruned weights", func(t *testing.T) {
		v := NewBuilder(BuilderConfig{TopK: 2, Renormalize: false}).Build("u", in, now)
		require.Len(t, v.Subjects, 2)
		assert.InDelta(t, 0.7, v.Subjects.Sum(), 1e-9)
		assert.InDelta(t, 0.4, v.Subjects["math"], 1e-9)
	})

	t.Run("ranking order is the same in both modes", func(t *testing.T) {
		a := NewBuilder(BuilderConfig{TopK: 3, Renormalize: true}).Build("u", in, now)
		b := NewBuilder(BuilderConfig{TopK: 3, Renormalize: false}).Build("u", in, now)
		assert.Equal(t, a.Subjects.Keys(), b.Subjects.Keys())
		assert.InDelta(t, a.Metadata.DiversityScore, b.Metadata.DiversityScore, 1e-9)
	})
}

func TestBuilder_SingleTopicHasZeroDiversity(t *testing.T) {
	v := NewBuilder(DefaultBuilderConfig()).Build("u", events("u", 5, "math", "10", core.InteractionLike, now), now)
	assert.Equal(t, 0.0, v.Metadata.DiversityScore)
}

func TestDetectDrift(t *testing.T) {
	recent := &core.InterestVector{Subjects: core.SparseVector{"math": 1}}
	same := &core.InterestVector{Subjects: core.SparseVector{"math": 0.9, "physics": 0.1}}
	other := &core.InterestVector{Subjects: core.SparseVector{"art": 1}}

	r := DetectDrift(recent, same, 0.6)
	assert.False(t, r.Drifted)
	assert.Equal(t, KeepCached, r.Recommendation)

	r = DetectDrift(recent, other, 0.6)
	assert.True(t, r.Drifted)
	assert.Equal(t, Recompute, r.Recommendation)
	assert.InDelta(t, 1.0, r.Severity, 1e-9)

	r = DetectDrift(recent, &core.InterestVector{}, 0.6)
	assert.False(t, r.Drifted)
}

func TestApplyGradeTransition(t *testing.T) {
	v := &core.InterestVector{
		OwnerID:  "u",
		Subjects: core.SparseVector{"math": 0.7, "physics": 0.3},
		Grades:   core.SparseVector{"10": 0.9, "9": 0.1},
	}
	out := ApplyGradeTransition(v, "10", "11", now)

	assert.Equal(t, v.Subjects, out.Subjects)
	assert.Equal(t, core.SparseVector{"11": 1.0, "10": 0.3}, out.Grades)
	assert.Equal(t, core.SparseVector{"10": 0.9, "9": 0.1}, v.Grades, "input must not be mutated")
	assert.Equal(t, now, out.Metadata.LastUpdated)
}

func TestDefaultVector(t *testing.T) {
	v := DefaultVector("u", "10th Grade", now)
	assert.True(t, v.Metadata.Default)
	assert.InDelta(t, 1.0, v.Subjects.Sum(), 1e-9)
	assert.Contains(t, v.Subjects, "physics")
	assert.Equal(t, core.SparseVector{"10th Grade": 1.0}, v.Grades)

	assert.Contains(t, DefaultVector("u", "3", now).Subjects, "reading")
	assert.Empty(t, DefaultVector("u", "", now).Grades)
}

type cacheFixture struct {
	cache        *StableCache
	fast         *store.MemoryStore
	durable      *store.BadgerStore
	interactions *store.StoreInteractionAdapter
	pool         *worker.Pool
}

func newCacheFixture(t *testing.T) *cacheFixture {
	t.Helper()
	fast := store.NewMemoryStore(0)
	durable, err := store.NewBadgerStore(store.BadgerConfig{InMemory: true})
	require.NoError(t, err)
	log := store.NewMemoryStore(0)
	pool := worker.NewPool(worker.Config{Name: "vector_refresh", Concurrency: 2}, nil, nil)
	t.Cleanup(func() {
		pool.Close()
		_ = fast.Close()
		_ = durable.Close()
		_ = log.Close()
	})

	interactions := store.NewStoreInteractionAdapter(log, "")
	cache := NewStableCache(DefaultCacheConfig(), fast, durable, interactions, nil,
		WithClock(func() time.Time { return now }),
		WithRefreshPool(pool),
	)
	return &cacheFixture{cache: cache, fast: fast, durable: durable, interactions: interactions, pool: pool}
}

func (f *cacheFixture) record(t *testing.T, in []*core.Interaction) {
	t.Helper()
	for _, it := range in {
		require.NoError(t, f.interactions.AppendInteraction(context.Background(), it))
	}
}

func TestStableCache_ColdUserGetsUncachedDefault(t *testing.T) {
	ctx := context.Background()
	f := newCacheFixture(t)
	f.record(t, events("u", 3, "math", "10", core.InteractionLike, now.Add(-time.Hour)))

	v, src, err := f.cache.Get(ctx, "u", "10")
	require.NoError(t, err)
	assert.Equal(t, SourceDefault, src)
	assert.True(t, v.Metadata.Default)

	_, err = f.fast.Get(ctx, "vec:u")
	assert.True(t, core.IsStoreNotFound(err))
	_, err = f.durable.Get(ctx, "vec:u")
	assert.True(t, core.IsStoreNotFound(err))
}

func TestStableCache_ComputesAndWritesThrough(t *testing.T) {
	ctx := context.Background()
	f := newCacheFixture(t)
	f.record(t, events("u", 6, "math", "10", core.InteractionLike, now.Add(-2*time.Hour)))

	v, src, err := f.cache.Get(ctx, "u", "10")
	require.NoError(t, err)
	assert.Equal(t, SourceComputed, src)
	assert.InDelta(t, 1.0, v.Subjects["math"], 1e-9)

	_, err = f.durable.Get(ctx, "vec:u")
	require.NoError(t, err)

	v2, src, err := f.cache.Get(ctx, "u", "10")
	require.NoError(t, err)
	assert.Equal(t, SourceFresh, src)
	assert.Equal(t, v.Subjects, v2.Subjects)
}

func TestStableCache_DurableHitIsMirroredToFast(t *testing.T) {
	ctx := context.Background()
	f := newCacheFixture(t)

	cached := &core.InterestVector{
		OwnerID:  "u",
		Subjects: core.SparseVector{"history": 1},
		Metadata: core.VectorMetadata{LastUpdated: now.Add(-time.Hour)},
	}
	data, err := EncodeEntry(CacheEntry[*core.InterestVector]{Value: cached, ComputedAt: cached.Metadata.LastUpdated, Tier: TierDurable})
	require.NoError(t, err)
	require.NoError(t, f.durable.Set(ctx, "vec:u", data, 0))

	v, src, err := f.cache.Get(ctx, "u", "10")
	require.NoError(t, err)
	assert.Equal(t, SourceFresh, src)
	assert.Equal(t, 1.0, v.Subjects["history"])

	raw, err := f.fast.Get(ctx, "vec:u")
	require.NoError(t, err)
	entry, err := DecodeEntry[*core.InterestVector](raw)
	require.NoError(t, err)
	assert.Equal(t, TierFast, entry.Tier)
}

func TestStableCache_StaleServedAndRefreshedInBackground(t *testing.T) {
	ctx := context.Background()
	f := newCacheFixture(t)

	// 5 小时前缓存的向量（新鲜度窗口 4 小时）
	f.cache.Put(ctx, &core.InterestVector{
		OwnerID:  "u",
		Subjects: core.SparseVector{"history": 1},
		Grades:   core.SparseVector{"10": 1},
		Metadata: core.VectorMetadata{LastUpdated: now.Add(-5 * time.Hour)},
	})
	// 之后产生的新交互
	f.record(t, events("u", 8, "math", "10", core.InteractionShare, now.Add(-3*time.Hour)))

	v, src, err := f.cache.Get(ctx, "u", "10")
	require.NoError(t, err)
	assert.Equal(t, SourceStale, src)
	assert.Equal(t, 1.0, v.Subjects["history"], "stale value is returned immediately")

	f.pool.Wait()

	v, src, err = f.cache.Get(ctx, "u", "10")
	require.NoError(t, err)
	assert.Equal(t, SourceFresh, src)
	assert.InDelta(t, 1.0, v.Subjects["math"], 1e-9)
	assert.Equal(t, now, v.Metadata.LastUpdated)
}

type brokenStore struct{ *store.MemoryStore }

func (brokenStore) Get(context.Context, string) ([]byte, error) { return nil, errors.New("io timeout") }
func (brokenStore) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("io timeout")
}

func TestStableCache_TierFailuresDegrade(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore(0)
	defer mem.Close()
	log := store.NewMemoryStore(0)
	defer log.Close()
	interactions := store.NewStoreInteractionAdapter(log, "")
	for _, it := range events("u", 5, "math", "10", core.InteractionLike, now.Add(-time.Hour)) {
		require.NoError(t, interactions.AppendInteraction(ctx, it))
	}

	cache := NewStableCache(DefaultCacheConfig(), nil, brokenStore{mem}, interactions, nil,
		WithClock(func() time.Time { return now }))

	v, src, err := cache.Get(ctx, "u", "10")
	require.NoError(t, err)
	assert.Equal(t, SourceComputed, src)
	assert.InDelta(t, 1.0, v.Subjects["math"], 1e-9)
}

func TestStableCache_TransitionGrade(t *testing.T) {
	ctx := context.Background()
	f := newCacheFixture(t)
	f.record(t, events("u", 6, "math", "10", core.InteractionLike, now.Add(-time.Hour)))

	v, err := f.cache.TransitionGrade(ctx, "u", "10", "11")
	require.NoError(t, err)
	assert.Equal(t, core.SparseVector{"11": 1.0, "10": 0.3}, v.Grades)

	got, src, err := f.cache.Get(ctx, "u", "11")
	require.NoError(t, err)
	assert.Equal(t, SourceFresh, src)
	assert.Equal(t, v.Grades, got.Grades)
}

func TestStableCache_CheckDriftForcesRecompute(t *testing.T) {
	ctx := context.Background()
	f := newCacheFixture(t)
	f.record(t, events("u", 10, "art", "10", core.InteractionLike, now.Add(-60*24*time.Hour)))
	f.record(t, events("u", 10, "math", "10", core.InteractionLike, now.Add(-24*time.Hour)))

	f.cache.Put(ctx, &core.InterestVector{
		OwnerID:  "u",
		Subjects: core.SparseVector{"art": 1},
		Metadata: core.VectorMetadata{LastUpdated: now},
	})

	res, err := f.cache.CheckDrift(ctx, "u")
	require.NoError(t, err)
	assert.True(t, res.Drifted)

	v, _, err := f.cache.Get(ctx, "u", "10")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, v.Subjects["math"], 1e-9)
	assert.InDelta(t, 1.0, v.Metadata.DriftScore, 1e-9)
}

func TestStableCache_TransitionGradeOnStaleVector(t *testing.T) {
	tests := []struct {
		name string
		// readFirst 先读一次过期向量，让后台刷新在年级变化前排队
		readFirst bool
	}{
		{name: "transition without prior read"},
		{name: "refresh queued before transition", readFirst: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			f := newCacheFixture(t)
			f.cache.Put(ctx, &core.InterestVector{
				OwnerID:  "u",
				Subjects: core.SparseVector{"math": 1},
				Grades:   core.SparseVector{"10": 1},
				Metadata: core.VectorMetadata{LastUpdated: now.Add(-5 * time.Hour)},
			})
			f.record(t, events("u", 8, "math", "10", core.InteractionLike, now.Add(-time.Hour)))

			if tt.readFirst {
				_, src, err := f.cache.Get(ctx, "u", "10")
				require.NoError(t, err)
				require.Equal(t, SourceStale, src)
			}

			v, err := f.cache.TransitionGrade(ctx, "u", "10", "11")
			require.NoError(t, err)
			assert.Equal(t, core.SparseVector{"10": 0.3, "11": 1.0}, v.Grades)

			f.pool.Wait()

			got, src, err := f.cache.Get(ctx, "u", "11")
			require.NoError(t, err)
			assert.Equal(t, SourceFresh, src)
			assert.Equal(t, core.SparseVector{"10": 0.3, "11": 1.0}, got.Grades)
		})
	}
}

func TestStableCache_PeerVectors(t *testing.T) {
	ctx := context.Background()
	f := newCacheFixture(t)

	// durable 层命中
	durableOnly := &core.InterestVector{
		OwnerID:  "a",
		Subjects: core.SparseVector{"history": 1},
		Metadata: core.VectorMetadata{LastUpdated: now.Add(-time.Hour)},
	}
	data, err := EncodeEntry(CacheEntry[*core.InterestVector]{Value: durableOnly, ComputedAt: durableOnly.Metadata.LastUpdated, Tier: TierDurable})
	require.NoError(t, err)
	require.NoError(t, f.durable.Set(ctx, "vec:a", data, 0))

	// 两层都有
	f.cache.Put(ctx, &core.InterestVector{
		OwnerID:  "d",
		Subjects: core.SparseVector{"art": 1},
		Metadata: core.VectorMetadata{LastUpdated: now},
	})
	// 缓存缺失但交互足够
	f.record(t, events("b", 6, "physics", "10", core.InteractionLike, now.Add(-2*time.Hour)))
	// c 交互不足，只有默认先验

	got, err := f.cache.PeerVectors(ctx, []string{"a", "b", "c", "d"})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, 1.0, got["a"].Subjects["history"])
	assert.InDelta(t, 1.0, got["b"].Subjects["physics"], 1e-9)
	assert.Equal(t, 1.0, got["d"].Subjects["art"])
	assert.NotContains(t, got, "c")

	raw, err := f.fast.Get(ctx, "vec:a")
	require.NoError(t, err, "durable hits are mirrored to the fast tier")
	entry, err := DecodeEntry[*core.InterestVector](raw)
	require.NoError(t, err)
	assert.Equal(t, TierFast, entry.Tier)

	_, err = f.durable.Get(ctx, "vec:b")
	assert.NoError(t, err, "computed peer vectors are written through")
}
