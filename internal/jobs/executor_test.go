package jobs

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

func newTestExecutor(t *testing.T, workers, queueSize int) *Executor {
	t.Helper()

	e := NewExecutor(workers, queueSize, arbor.NewLogger())
	e.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = e.Shutdown(ctx)
	})
	return e
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestExecutorRunsSubmittedTask(t *testing.T) {
	e := newTestExecutor(t, 2, 4)

	var ran atomic.Bool
	require.NoError(t, e.Submit("job_a", func(ctx context.Context) {
		ran.Store(true)
	}))

	waitFor(t, ran.Load)
	waitFor(t, func() bool { return e.InFlight() == 0 })
}

func TestSubmitDoesNotBlockWhenWorkersBusy(t *testing.T) {
	e := newTestExecutor(t, 1, 4)

	release := make(chan struct{})
	require.NoError(t, e.Submit("job_busy", func(ctx context.Context) {
		<-release
	}))

	start := time.Now()
	require.NoError(t, e.Submit("job_queued", func(ctx context.Context) {}))
	assert.Less(t, time.Since(start), 100*time.Millisecond)

	close(release)
}

func TestSubmitReturnsErrQueueFullWhenSaturated(t *testing.T) {
	e := newTestExecutor(t, 1, 1)

	release := make(chan struct{})
	defer close(release)

	blocker := func(ctx context.Context) { <-release }

	require.NoError(t, e.Submit("job_running", blocker))
	waitFor(t, func() bool { return len(e.queue) == 0 })

	require.NoError(t, e.Submit("job_queued", blocker))
	assert.ErrorIs(t, e.Submit("job_overflow", blocker), ErrQueueFull)

	// The rejected submission must not leak a handle
	assert.Equal(t, 2, e.InFlight())
}

func TestCancelQueuedTaskNeverRuns(t *testing.T) {
	e := newTestExecutor(t, 1, 4)

	release := make(chan struct{})
	require.NoError(t, e.Submit("job_running", func(ctx context.Context) {
		<-release
	}))
	waitFor(t, func() bool { return len(e.queue) == 0 })

	var ran atomic.Bool
	require.NoError(t, e.Submit("job_queued", func(ctx context.Context) {
		ran.Store(true)
	}))

	assert.True(t, e.Cancel("job_queued"))
	close(release)

	waitFor(t, func() bool { return e.InFlight() == 0 })
	assert.False(t, ran.Load())
}

func TestCancelSignalsRunningTask(t *testing.T) {
	e := newTestExecutor(t, 1, 4)

	started := make(chan struct{})
	var observed atomic.Bool
	require.NoError(t, e.Submit("job_a", func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		observed.Store(true)
	}))

	<-started
	assert.True(t, e.Cancel("job_a"))
	waitFor(t, observed.Load)
}

func TestCancelUnknownJobReturnsFalse(t *testing.T) {
	e := newTestExecutor(t, 1, 4)
	assert.False(t, e.Cancel("job_unknown"))
}

func TestPanickingTaskDoesNotKillPool(t *testing.T) {
	e := newTestExecutor(t, 1, 4)

	require.NoError(t, e.Submit("job_panic", func(ctx context.Context) {
		panic("boom")
	}))
	waitFor(t, func() bool { return e.InFlight() == 0 })

	var ran atomic.Bool
	require.NoError(t, e.Submit("job_after", func(ctx context.Context) {
		ran.Store(true)
	}))
	waitFor(t, ran.Load)
}

func TestShutdownRejectsNewSubmissions(t *testing.T) {
	e := NewExecutor(1, 4, arbor.NewLogger())
	e.Start()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, e.Shutdown(ctx))

	assert.Error(t, e.Submit("job_late", func(ctx context.Context) {}))
}
