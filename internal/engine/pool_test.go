package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestNewPool(t *testing.T) {
	t.Run("rejects nil logger", func(t *testing.T) {
		_, err := NewPool(2, 4, nil)
		require.Error(t, err)
	})

	t.Run("applies defaults for non-positive sizes", func(t *testing.T) {
		p, err := NewPool(0, 0, zap.NewNop())
		require.NoError(t, err)
		assert.Equal(t, 4, p.size)
		assert.Equal(t, 16, cap(p.jobs))
	})
}

// TestPool_RunsSubmittedJobs verifies the core lifecycle: start, execute
// everything submitted, stop gracefully.
func TestPool_RunsSubmittedJobs(t *testing.T) {
	p, err := NewPool(2, 8, zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	const numJobs = 6
	var executed atomic.Int32
	var wg sync.WaitGroup
	wg.Add(numJobs)

	for i := 0; i < numJobs; i++ {
		err := p.Submit(ctx, func() {
			executed.Add(1)
			wg.Done()
		})
		require.NoError(t, err)
	}

	wg.Wait()
	p.Stop()
	assert.Equal(t, int32(numJobs), executed.Load())
}

func TestPool_SubmitFailsFast(t *testing.T) {
	t.Run("before start", func(t *testing.T) {
		p, err := NewPool(1, 1, zap.NewNop())
		require.NoError(t, err)
		assert.ErrorIs(t, p.Submit(context.Background(), func() {}), ErrPoolStopped)
	})

	t.Run("after stop", func(t *testing.T) {
		p, err := NewPool(1, 1, zap.NewNop())
		require.NoError(t, err)
		p.Start(context.Background())
		p.Stop()
		assert.ErrorIs(t, p.Submit(context.Background(), func() {}), ErrPoolStopped)
	})

	t.Run("cancelled context", func(t *testing.T) {
		p, err := NewPool(1, 1, zap.NewNop())
		require.NoError(t, err)
		p.Start(context.Background())
		defer p.Stop()

		cancelled, cancel := context.WithCancel(context.Background())
		cancel()
		assert.ErrorIs(t, p.Submit(cancelled, func() {}), context.Canceled)
	})

	t.Run("nil job", func(t *testing.T) {
		p, err := NewPool(1, 1, zap.NewNop())
		require.NoError(t, err)
		p.Start(context.Background())
		defer p.Stop()
		assert.Error(t, p.Submit(context.Background(), nil))
	})
}

// TestPool_QueueFull saturates a single-worker pool and verifies the
// non-blocking rejection path.
func TestPool_QueueFull(t *testing.T) {
	p, err := NewPool(1, 1, zap.NewNop())
	require.NoError(t, err)
	p.Start(context.Background())

	gate := make(chan struct{})
	started := make(chan struct{})

	// Occupy the single worker.
	require.NoError(t, p.Submit(context.Background(), func() {
		close(started)
		<-gate
	}))
	<-started

	// Fill the queue slot.
	require.NoError(t, p.Submit(context.Background(), func() {}))

	// Queue and worker are both busy now.
	assert.ErrorIs(t, p.Submit(context.Background(), func() {}), ErrQueueFull)

	close(gate)
	p.Stop()
}

// TestPool_StopWaitsForInflight verifies that Stop blocks until accepted work
// has finished.
func TestPool_StopWaitsForInflight(t *testing.T) {
	p, err := NewPool(2, 4, zap.NewNop())
	require.NoError(t, err)
	p.Start(context.Background())

	var finished atomic.Bool
	require.NoError(t, p.Submit(context.Background(), func() {
		time.Sleep(50 * time.Millisecond)
		finished.Store(true)
	}))

	p.Stop()
	assert.True(t, finished.Load(), "Stop must wait for in-flight jobs")
}

// TestPool_ContextCancelStopsWorkers verifies workers exit on context
// cancellation and Stop still returns.
func TestPool_ContextCancelStopsWorkers(t *testing.T) {
	p, err := NewPool(2, 4, zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)
	cancel()

	// Workers may already be gone; Stop must not hang either way.
	done := make(chan struct{})
	go func() {
		p.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after context cancellation")
	}
}

func TestPool_DoubleStartIsNoop(t *testing.T) {
	p, err := NewPool(1, 2, zap.NewNop())
	require.NoError(t, err)

	p.Start(context.Background())
	p.Start(context.Background())

	var ran atomic.Bool
	var wg sync.WaitGroup
	wg.Add(1)
	require.NoError(t, p.Submit(context.Background(), func() {
		ran.Store(true)
		wg.Done()
	}))
	wg.Wait()
	p.Stop()
	assert.True(t, ran.Load())
}
