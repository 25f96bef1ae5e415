package event

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("event bus closed")

// DefaultBuffer is the bus buffer size used when none is configured.
const DefaultBuffer = 256

// Bus is the ordered multi-producer single-consumer channel for one run.
// Producers serialize through a mutex, so events are delivered in exactly the
// order Publish calls complete. When the buffer is full Publish blocks
// (backpressure) rather than dropping; Log and Chunk events are user-visible
// and no loss is tolerated.
type Bus struct {
	mu     sync.Mutex
	ch     chan Event
	seq    int64
	closed bool
	once   sync.Once
}

// NewBus creates a bus with the given buffer size (<=0 selects DefaultBuffer).
func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Bus{ch: make(chan Event, buffer)}
}

// Publish stamps the event with the next sequence number and timestamp and
// delivers it. It blocks while the buffer is full, until the context is
// cancelled, and returns ErrClosed if the bus has been closed.
func (b *Bus) Publish(ctx context.Context, ev Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}

	ev.Seq = b.seq
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}

	select {
	case b.ch <- ev:
		b.seq++
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Events returns the consumer side of the bus. The channel is closed after
// Close, once all buffered events have been delivered.
func (b *Bus) Events() <-chan Event {
	return b.ch
}

// Close signals end-of-stream. It is idempotent; buffered events remain
// readable until drained. Publish calls after Close return ErrClosed.
func (b *Bus) Close() {
	b.once.Do(func() {
		b.mu.Lock()
		b.closed = true
		b.mu.Unlock()
		close(b.ch)
	})
}
