package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/feedrank/pkg/metrics"
)

func TestPool_DeduplicatesByKey(t *testing.T) {
	p := NewPool(Config{Name: "test", Concurrency: 4}, nil, nil)
	defer p.Close()

	release := make(chan struct{})
	var runs atomic.Int32
	task := func(ctx context.Context) error {
		runs.Add(1)
		<-release
		return nil
	}

	require.True(t, p.Submit("user-1", task))
	assert.False(t, p.Submit("user-1", task))
	assert.True(t, p.Pending("user-1"))
	close(release)
	p.Wait()

	assert.Equal(t, int32(1), runs.Load())
	assert.False(t, p.Pending("user-1"))
	assert.True(t, p.Submit("user-1", func(ctx context.Context) error { return nil }))
	p.Wait()
}

func TestPool_SaturatedDropsTask(t *testing.T) {
	p := NewPool(Config{Name: "test", Concurrency: 1}, nil, nil)
	defer p.Close()

	release := make(chan struct{})
	require.True(t, p.Submit("", func(ctx context.Context) error { <-release; return nil }))
	assert.False(t, p.Submit("", func(ctx context.Context) error { return nil }))
	close(release)
	p.Wait()
}

func TestPool_ErrorsAndPanicsAreRecorded(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	p := NewPool(Config{Name: "refresh", Concurrency: 2}, nil, m)
	defer p.Close()

	require.True(t, p.Submit("a", func(ctx context.Context) error { return errors.New("durable tier down") }))
	require.True(t, p.Submit("b", func(ctx context.Context) error { panic("nil vector") }))
	p.Wait()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.BackgroundTasks.WithLabelValues("refresh", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BackgroundTasks.WithLabelValues("refresh", "panic")))
}

func TestPool_RejectsAfterClose(t *testing.T) {
	p := NewPool(Config{Name: "test"}, nil, nil)
	p.Close()
	assert.False(t, p.Submit("", func(ctx context.Context) error { return nil }))
}

func TestPool_QueueHoldsBurstBeyondConcurrency(t *testing.T) {
	tests := []struct {
		name      string
		queue     int
		submitted int
		accepted  int
	}{
		{name: "burst fits in queue", queue: 100, submitted: 100, accepted: 100},
		{name: "queue overflow drops the rest", queue: 10, submitted: 20, accepted: 12},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPool(Config{Name: "test", Concurrency: 2, QueueSize: tt.queue}, nil, nil)
			defer p.Close()

			release := make(chan struct{})
			var runs atomic.Int32
			accepted := 0
			for i := 0; i < tt.submitted; i++ {
				if p.Submit("", func(ctx context.Context) error {
					<-release
					runs.Add(1)
					return nil
				}) {
					accepted++
				}
			}
			assert.Equal(t, tt.accepted, accepted)
			assert.Equal(t, tt.accepted-2, p.Queued())

			close(release)
			p.Wait()
			assert.Equal(t, int32(tt.accepted), runs.Load())
			assert.Zero(t, p.Queued())
		})
	}
}

func TestPool_CloseDropsQueuedTasks(t *testing.T) {
	p := NewPool(Config{Name: "test", Concurrency: 1, QueueSize: 4}, nil, nil)

	var runs atomic.Int32
	require.True(t, p.Submit("", func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	}))
	require.True(t, p.Submit("", func(ctx context.Context) error {
		runs.Add(1)
		return nil
	}))
	p.Close()
	assert.Zero(t, runs.Load())
}
