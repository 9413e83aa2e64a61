package videowait

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetUnknownIsNone(t *testing.T) {
	t.Parallel()

	w := New(time.Minute, 100)
	state := w.Get("missing")
	assert.Equal(t, StatusNone, state.Status)
}

func TestPublishLastWriteWins(t *testing.T) {
	t.Parallel()

	w := New(time.Minute, 100)
	w.Publish("ev1", StatusPending, "", 0, "")
	w.Publish("ev1", StatusProcessing, "", 0, "")
	w.Publish("ev1", StatusCompleted, "Blue Jay", 0.93, "")

	state := w.Get("ev1")
	assert.Equal(t, StatusCompleted, state.Status)
	assert.Equal(t, "Blue Jay", state.Label)
	assert.InDelta(t, 0.93, state.Score, 1e-9)
}

func TestWaitReturnsImmediatelyWhenTerminal(t *testing.T) {
	t.Parallel()

	w := New(time.Minute, 100)
	w.Publish("ev1", StatusFailed, "", 0, "decode error")

	start := time.Now()
	state := w.WaitForFinalStatus(context.Background(), "ev1", 5*time.Second)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, StatusFailed, state.Status)
	assert.Equal(t, "decode error", state.Err)
}

func TestWaitUnblocksOnTerminalPublish(t *testing.T) {
	t.Parallel()

	w := New(time.Minute, 100)
	w.Publish("ev1", StatusProcessing, "", 0, "")

	go func() {
		time.Sleep(50 * time.Millisecond)
		w.Publish("ev1", StatusCompleted, "Northern Cardinal", 0.88, "")
	}()

	start := time.Now()
	state := w.WaitForFinalStatus(context.Background(), "ev1", 2*time.Second)
	require.Less(t, time.Since(start), time.Second, "must not wait for the full timeout")
	assert.Equal(t, StatusCompleted, state.Status)
	assert.Equal(t, "Northern Cardinal", state.Label)
}

func TestWaitTimesOutWithNonTerminalState(t *testing.T) {
	t.Parallel()

	w := New(time.Minute, 100)
	w.Publish("ev1", StatusProcessing, "", 0, "")

	state := w.WaitForFinalStatus(context.Background(), "ev1", 50*time.Millisecond)
	assert.Equal(t, StatusProcessing, state.Status)
}

func TestWaitOnUnknownEventTimesOut(t *testing.T) {
	t.Parallel()

	w := New(time.Minute, 100)
	state := w.WaitForFinalStatus(context.Background(), "never-seen", 50*time.Millisecond)
	assert.Equal(t, StatusNone, state.Status)
}

func TestWaitHonorsContextCancel(t *testing.T) {
	t.Parallel()

	w := New(time.Minute, 100)
	w.Publish("ev1", StatusPending, "", 0, "")

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	state := w.WaitForFinalStatus(ctx, "ev1", 5*time.Second)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, StatusPending, state.Status)
}

func TestWaitMultipleWaitersReleased(t *testing.T) {
	t.Parallel()

	w := New(time.Minute, 100)
	w.Publish("ev1", StatusPending, "", 0, "")

	const waiters = 5
	var wg sync.WaitGroup
	results := make([]State, waiters)
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = w.WaitForFinalStatus(context.Background(), "ev1", 2*time.Second)
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	w.Publish("ev1", StatusCompleted, "Blue Jay", 0.9, "")
	wg.Wait()

	for _, state := range results {
		assert.Equal(t, StatusCompleted, state.Status)
	}
}

func TestRetryAfterTerminalStatusCanBeAwaited(t *testing.T) {
	t.Parallel()

	w := New(time.Minute, 100)

	// First attempt fails.
	w.Publish("ev1", StatusFailed, "", 0, "decode error")
	state := w.WaitForFinalStatus(context.Background(), "ev1", time.Second)
	require.Equal(t, StatusFailed, state.Status)

	// A retry moves the job back to a non-terminal status; a new waiter
	// must block on it rather than see the stale failure.
	w.Publish("ev1", StatusProcessing, "", 0, "")
	assert.Equal(t, StatusProcessing, w.Get("ev1").Status)

	go func() {
		time.Sleep(30 * time.Millisecond)
		w.Publish("ev1", StatusCompleted, "Blue Jay", 0.9, "")
	}()

	start := time.Now()
	state = w.WaitForFinalStatus(context.Background(), "ev1", 2*time.Second)
	require.Less(t, time.Since(start), time.Second)
	assert.Equal(t, StatusCompleted, state.Status)
	assert.Equal(t, "Blue Jay", state.Label)

	// And the cycle holds a second time around.
	w.Publish("ev1", StatusPending, "", 0, "")
	state = w.WaitForFinalStatus(context.Background(), "ev1", 50*time.Millisecond)
	assert.Equal(t, StatusPending, state.Status, "re-armed signal blocks until the next terminal publish")
}

func TestTTLEviction(t *testing.T) {
	t.Parallel()

	w := New(30*time.Millisecond, 100)
	w.Publish("old", StatusCompleted, "Blue Jay", 0.9, "")

	time.Sleep(60 * time.Millisecond)
	// Sweeps run on publish.
	w.Publish("fresh", StatusPending, "", 0, "")

	assert.Equal(t, StatusNone, w.Get("old").Status)
	assert.Equal(t, StatusPending, w.Get("fresh").Status)
}

func TestMaxEntriesEvictsStalest(t *testing.T) {
	t.Parallel()

	w := New(time.Hour, 3)
	w.Publish("ev1", StatusPending, "", 0, "")
	time.Sleep(5 * time.Millisecond)
	w.Publish("ev2", StatusPending, "", 0, "")
	time.Sleep(5 * time.Millisecond)
	w.Publish("ev3", StatusPending, "", 0, "")
	time.Sleep(5 * time.Millisecond)
	w.Publish("ev4", StatusPending, "", 0, "")

	assert.Equal(t, 3, w.Len())
	assert.Equal(t, StatusNone, w.Get("ev1").Status, "stalest entry is evicted first")
	assert.Equal(t, StatusPending, w.Get("ev4").Status)
}
