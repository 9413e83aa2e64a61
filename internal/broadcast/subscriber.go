package broadcast

import (
	"sync"

	"github.com/google/uuid"
)

// ChannelSubscriber is a Subscriber backed by a bounded channel. It is the
// delivery end used by SSE handlers: the producer calls TrySend, the consumer
// drains C.
type ChannelSubscriber struct {
	id     string
	mu     sync.Mutex
	ch     chan *Message
	closed bool
}

// NewChannelSubscriber creates a subscriber with a queue of the given
// capacity.
func NewChannelSubscriber(capacity int) *ChannelSubscriber {
	return &ChannelSubscriber{
		id: uuid.New().String(),
		ch: make(chan *Message, capacity),
	}
}

// ID returns the subscriber's unique id.
func (s *ChannelSubscriber) ID() string { return s.id }

// C returns the receive side of the subscriber's queue. The channel is closed
// when the subscriber is closed.
func (s *ChannelSubscriber) C() <-chan *Message { return s.ch }

// TrySend enqueues msg without blocking. The mutex keeps a concurrent Close
// from closing the channel mid-send.
func (s *ChannelSubscriber) TrySend(msg *Message) SendResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return SendClosed
	}
	select {
	case s.ch <- msg:
		return SendOK
	default:
		return SendFull
	}
}

// Close marks the subscriber closed and closes its channel. Safe to call more
// than once.
func (s *ChannelSubscriber) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}
