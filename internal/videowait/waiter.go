// Package videowait tracks the lifecycle of per-event video classification
// jobs and lets callers block until a job reaches a terminal status.
package videowait

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/featherwatch/featherwatch/internal/logging"
)

// Status is the lifecycle state of a video classification job.
type Status string

const (
	StatusNone       Status = "none"
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether the status is a final one.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// State is the last published state of a video job.
type State struct {
	Status    Status
	Label     string
	Score     float64
	Err       string
	UpdatedAt time.Time
}

type entry struct {
	state  State
	signal chan struct{} // closed when a terminal status is published
}

// Waiter is an in-memory registry of video job states. Entries expire after
// a TTL and the registry is capped at a maximum number of entries, evicting
// the stalest first. All methods are safe for concurrent use.
type Waiter struct {
	mu         sync.Mutex
	entries    map[string]*entry
	ttl        time.Duration
	maxEntries int
	logger     *slog.Logger
	onCount    func(int)
}

// New creates a Waiter. Entries untouched for ttl are evicted, and the
// registry never holds more than maxEntries entries.
func New(ttl time.Duration, maxEntries int) *Waiter {
	return &Waiter{
		entries:    make(map[string]*entry),
		ttl:        ttl,
		maxEntries: maxEntries,
		logger:     logging.ForService("videowait"),
	}
}

// SetCountObserver registers a callback invoked with the entry count after
// each mutation, used to feed a gauge.
func (w *Waiter) SetCountObserver(fn func(int)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onCount = fn
}

// Publish records a state update for the given event id. Last write wins.
// When the new status is terminal, all goroutines blocked in
// WaitForFinalStatus for this id are released; the entry stays resident so a
// later waiter still observes the final state until eviction.
func (w *Waiter) Publish(id string, status Status, label string, score float64, errMsg string) {
	now := time.Now()

	w.mu.Lock()
	e, ok := w.entries[id]
	if !ok {
		e = &entry{signal: make(chan struct{})}
		w.entries[id] = e
	}
	e.state = State{
		Status:    status,
		Label:     label,
		Score:     score,
		Err:       errMsg,
		UpdatedAt: now,
	}

	var signal chan struct{}
	if status.Terminal() {
		signal = e.signal
		// Re-arm so a later non-terminal publish can be waited on again.
		e.signal = make(chan struct{})
	}
	w.sweepLocked(now)
	count := len(w.entries)
	onCount := w.onCount
	w.mu.Unlock()

	if signal != nil {
		close(signal)
	}
	if onCount != nil {
		onCount(count)
	}

	w.logger.Debug("video state published",
		"event_id", id,
		"status", string(status),
		"label", label)
}

// Get returns the current state for an event id. Unknown ids report
// StatusNone.
func (w *Waiter) Get(id string) State {
	w.mu.Lock()
	defer w.mu.Unlock()
	if e, ok := w.entries[id]; ok {
		return e.state
	}
	return State{Status: StatusNone}
}

// WaitForFinalStatus blocks until the event reaches a terminal status, the
// timeout elapses, or ctx is canceled, then returns the state at that moment.
// An already-terminal state returns immediately.
func (w *Waiter) WaitForFinalStatus(ctx context.Context, id string, timeout time.Duration) State {
	w.mu.Lock()
	e, ok := w.entries[id]
	if !ok {
		e = &entry{
			state:  State{Status: StatusNone, UpdatedAt: time.Now()},
			signal: make(chan struct{}),
		}
		w.entries[id] = e
	}
	if e.state.Status.Terminal() || timeout <= 0 {
		state := e.state
		w.mu.Unlock()
		return state
	}
	signal := e.signal
	w.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-signal:
	case <-timer.C:
	case <-ctx.Done():
	}

	return w.Get(id)
}

// Len returns the number of resident entries.
func (w *Waiter) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.entries)
}

func (w *Waiter) sweepLocked(now time.Time) {
	cutoff := now.Add(-w.ttl)
	for id, e := range w.entries {
		if e.state.UpdatedAt.Before(cutoff) {
			delete(w.entries, id)
		}
	}
	for w.maxEntries > 0 && len(w.entries) > w.maxEntries {
		oldestID := ""
		var oldest time.Time
		for id, e := range w.entries {
			if oldestID == "" || e.state.UpdatedAt.Before(oldest) {
				oldestID = id
				oldest = e.state.UpdatedAt
			}
		}
		delete(w.entries, oldestID)
	}
}
