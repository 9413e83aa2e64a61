// Package broadcast fans detection messages out to live subscribers with
// per-subscriber backpressure accounting and slow-consumer eviction.
package broadcast

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/featherwatch/featherwatch/internal/logging"
)

// Message is one broadcast payload.
type Message struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// NewMessage wraps data in a Message with a fresh id and timestamp.
func NewMessage(msgType string, data json.RawMessage) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Type:      msgType,
		Timestamp: time.Now(),
		Data:      data,
	}
}

// SendResult is the outcome of a non-blocking send to a subscriber.
type SendResult int

const (
	SendOK SendResult = iota
	SendFull
	SendClosed
)

// Subscriber receives broadcast messages. TrySend must never block.
type Subscriber interface {
	ID() string
	TrySend(msg *Message) SendResult
	Close()
}

type subscriberState struct {
	sub              Subscriber
	consecutiveDrops int // guarded by Broadcaster.deliverMu
}

// Broadcaster delivers each message to every registered subscriber without
// blocking. A subscriber whose queue overflows on overflowThreshold
// consecutive deliveries is evicted and closed.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]*subscriberState

	// deliverMu serializes delivery passes so consecutive-drop counting
	// stays coherent under concurrent Broadcast calls.
	deliverMu sync.Mutex

	overflowThreshold int
	logger            *slog.Logger

	onDrop     func()
	onEviction func()
	onCount    func(int)
}

// NewBroadcaster creates a Broadcaster evicting subscribers after
// overflowThreshold consecutive full-queue deliveries.
func NewBroadcaster(overflowThreshold int) *Broadcaster {
	return &Broadcaster{
		subscribers:       make(map[string]*subscriberState),
		overflowThreshold: overflowThreshold,
		logger:            logging.ForService("broadcast"),
	}
}

// SetObservers registers optional callbacks fired on dropped messages,
// subscriber evictions, and subscriber count changes.
func (b *Broadcaster) SetObservers(onDrop, onEviction func(), onCount func(int)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onDrop = onDrop
	b.onEviction = onEviction
	b.onCount = onCount
}

// Subscribe registers a subscriber for future messages.
func (b *Broadcaster) Subscribe(sub Subscriber) {
	b.mu.Lock()
	b.subscribers[sub.ID()] = &subscriberState{sub: sub}
	count := len(b.subscribers)
	onCount := b.onCount
	b.mu.Unlock()

	if onCount != nil {
		onCount(count)
	}
	b.logger.Debug("subscriber added", "subscriber_id", sub.ID(), "total", count)
}

// Unsubscribe removes and closes a subscriber. Unknown ids are ignored.
func (b *Broadcaster) Unsubscribe(id string) {
	b.mu.Lock()
	state, ok := b.subscribers[id]
	if ok {
		delete(b.subscribers, id)
	}
	count := len(b.subscribers)
	onCount := b.onCount
	b.mu.Unlock()

	if !ok {
		return
	}
	state.sub.Close()
	if onCount != nil {
		onCount(count)
	}
	b.logger.Debug("subscriber removed", "subscriber_id", id, "total", count)
}

// Count returns the current number of subscribers.
func (b *Broadcaster) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Broadcast delivers msg to a snapshot of the current subscribers. Delivery
// never blocks: full subscribers drop the message, and a subscriber over the
// consecutive-overflow threshold is evicted.
func (b *Broadcaster) Broadcast(msg *Message) {
	b.deliverMu.Lock()
	defer b.deliverMu.Unlock()

	b.mu.RLock()
	snapshot := make([]*subscriberState, 0, len(b.subscribers))
	for _, state := range b.subscribers {
		snapshot = append(snapshot, state)
	}
	onDrop := b.onDrop
	b.mu.RUnlock()

	var evicted []*subscriberState
	for _, state := range snapshot {
		switch state.sub.TrySend(msg) {
		case SendOK:
			state.consecutiveDrops = 0
		case SendFull:
			state.consecutiveDrops++
			if onDrop != nil {
				onDrop()
			}
			if state.consecutiveDrops >= b.overflowThreshold {
				evicted = append(evicted, state)
			}
		case SendClosed:
			evicted = append(evicted, state)
		}
	}

	if len(evicted) == 0 {
		return
	}

	b.mu.Lock()
	removed := evicted[:0]
	for _, state := range evicted {
		id := state.sub.ID()
		// Re-check identity: the slot may have been replaced or removed
		// since the snapshot was taken, in which case it was not evicted.
		if current, ok := b.subscribers[id]; ok && current == state {
			delete(b.subscribers, id)
			removed = append(removed, state)
		}
	}
	count := len(b.subscribers)
	onEviction := b.onEviction
	onCount := b.onCount
	b.mu.Unlock()

	for _, state := range removed {
		state.sub.Close()
		if onEviction != nil {
			onEviction()
		}
		b.logger.Info("slow subscriber evicted",
			"subscriber_id", state.sub.ID(),
			"consecutive_drops", state.consecutiveDrops)
	}
	if len(removed) > 0 && onCount != nil {
		onCount(count)
	}
}
