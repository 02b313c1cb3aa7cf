package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdd_InvalidSpec(t *testing.T) {
	t.Parallel()

	s := New()
	err := s.Add("broken", "not a cron spec", func(ctx context.Context) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
}

func TestAdd_AcceptsStandardSpecs(t *testing.T) {
	t.Parallel()

	s := New()
	assert.NoError(t, s.Add("ingest", "* * * * *", func(ctx context.Context) error { return nil }))
	assert.NoError(t, s.Add("refresh", "0 2 * * *", func(ctx context.Context) error { return nil }))
}

func TestRun_TriggersJobAndStopsOnCancel(t *testing.T) {
	t.Parallel()

	var runs atomic.Int32
	s := New()
	require.NoError(t, s.Add("tick", "@every 100ms", func(ctx context.Context) error {
		runs.Add(1)
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	assert.Eventually(t, func() bool { return runs.Load() >= 1 }, 3*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("scheduler did not stop after cancellation")
	}
}

func TestRun_SkipsOverlappingRuns(t *testing.T) {
	t.Parallel()

	var started atomic.Int32
	block := make(chan struct{})

	s := New()
	require.NoError(t, s.Add("slow", "@every 100ms", func(ctx context.Context) error {
		started.Add(1)
		<-block
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	assert.Eventually(t, func() bool { return started.Load() == 1 }, 3*time.Second, 20*time.Millisecond)

	// Let several triggers elapse while the first run is still in flight.
	time.Sleep(400 * time.Millisecond)
	assert.Equal(t, int32(1), started.Load())

	close(block)
	cancel()
	<-done
}
