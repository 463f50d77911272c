package coalesce

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/feedrank/core"
	"github.com/rushteam/feedrank/pkg/metrics"
)

func TestGroup_ConcurrentCallersShareOneComputation(t *testing.T) {
	g := New[[]string](0, nil, nil)

	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	fn := func(ctx context.Context) ([]string, error) {
		calls.Add(1)
		close(started)
		<-release
		return []string{"a", "b", "c"}, nil
	}

	var wg sync.WaitGroup
	results := make([][]string, 2)
	errs := make([]error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], _, errs[0] = g.Do(context.Background(), "u1:1:20", fn)
	}()
	<-started

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[1], _, errs[1] = g.Do(context.Background(), "u1:1:20", fn)
	}()

	require.Eventually(t, func() bool { return g.Waiters("u1:1:20") == 2 }, time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, results[0], results[1])
	assert.Equal(t, 0, g.Waiters("u1:1:20"))
}

func TestGroup_ErrorPropagatesToAllWaitersAndClearsState(t *testing.T) {
	g := New[int](0, nil, nil)
	boom := errors.New("boom")

	release := make(chan struct{})
	started := make(chan struct{})
	fn := func(ctx context.Context) (int, error) {
		close(started)
		<-release
		return 0, boom
	}

	var wg sync.WaitGroup
	errs := make([]error, 3)
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _, errs[0] = g.Do(context.Background(), "k", fn)
	}()
	<-started
	for i := 1; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = g.Do(context.Background(), "k", fn)
		}(i)
	}
	require.Eventually(t, func() bool { return g.Waiters("k") == 3 }, time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	for _, err := range errs {
		assert.ErrorIs(t, err, boom)
	}

	// 失败后 in-flight 记录被清除，下一次调用重新计算
	v, _, err := g.Do(context.Background(), "k", func(ctx context.Context) (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestGroup_PanicBecomesError(t *testing.T) {
	g := New[int](0, nil, nil)

	_, _, err := g.Do(context.Background(), "p", func(ctx context.Context) (int, error) {
		panic("bad candidate")
	})
	require.Error(t, err)
	domainErr := core.GetDomainError(err)
	require.NotNil(t, domainErr)
	assert.Equal(t, core.ModuleCoalesce, domainErr.Module)

	v, _, err := g.Do(context.Background(), "p", func(ctx context.Context) (int, error) { return 1, nil })
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

func TestGroup_AbandoningCallerDoesNotCancelComputation(t *testing.T) {
	g := New[string](0, nil, nil)

	started := make(chan struct{})
	release := make(chan struct{})
	var computeCtxErr atomic.Value
	fn := func(ctx context.Context) (string, error) {
		close(started)
		<-release
		if ctx.Err() != nil {
			computeCtxErr.Store(ctx.Err())
		}
		return "done", nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	abandoned := make(chan error, 1)
	go func() {
		_, _, err := g.Do(ctx, "k", fn)
		abandoned <- err
	}()
	<-started

	waiterDone := make(chan string, 1)
	go func() {
		v, _, _ := g.Do(context.Background(), "k", fn)
		waiterDone <- v
	}()
	require.Eventually(t, func() bool { return g.Waiters("k") == 2 }, time.Second, time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-abandoned, context.Canceled)

	close(release)
	assert.Equal(t, "done", <-waiterDone)
	assert.Nil(t, computeCtxErr.Load())
}

func TestGroup_StampedeIsCounted(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	g := New[int](2, nil, m)

	started := make(chan struct{})
	release := make(chan struct{})
	fn := func(ctx context.Context) (int, error) {
		close(started)
		<-release
		return 1, nil
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _, _ = g.Do(context.Background(), "hot", fn)
	}()
	<-started
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, _ = g.Do(context.Background(), "hot", fn)
		}()
	}
	require.Eventually(t, func() bool { return g.Waiters("hot") == 5 }, time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.StampedeEvents))
}
