package stream

import (
	"log/slog"
	"sync"
)

// Broadcaster fans out published snapshots to multiple subscriber channels.
// Each subscriber has its own buffered channel; if a subscriber falls
// behind, the oldest snapshot is dropped. A rendering client that misses an
// intermediate snapshot loses nothing durable — every snapshot is complete.
type Broadcaster struct {
	subscribers map[int]chan Snapshot
	logger      *slog.Logger
	mu          sync.RWMutex
	nextID      int
	closed      bool
}

// NewBroadcaster creates a broadcaster. A nil logger disables warnings.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Broadcaster{
		subscribers: make(map[int]chan Snapshot),
		logger:      logger,
	}
}

// Subscribe creates a new subscriber channel with the given buffer size.
// Returns the subscriber ID (for Unsubscribe) and the read-only channel.
// Subscribing to a closed broadcaster returns a closed channel.
func (b *Broadcaster) Subscribe(bufSize int) (int, <-chan Snapshot) {
	if bufSize < 1 {
		bufSize = 1
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Snapshot, bufSize)
	if b.closed {
		close(ch)
		return -1, ch
	}

	id := b.nextID
	b.nextID++
	b.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broadcaster) Unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.subscribers[id]; ok {
		delete(b.subscribers, id)
		close(ch)
	}
}

// Publish sends a snapshot to all current subscribers without blocking.
// If a subscriber's channel is full, the oldest snapshot is dropped.
func (b *Broadcaster) Publish(snap Snapshot) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}
	for id, ch := range b.subscribers {
		select {
		case ch <- snap:
		default:
			// Channel full — drop oldest then retry once.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
				b.logger.Warn("dropping snapshot for slow subscriber", "subscriber", id)
			}
		}
	}
}

// Close closes all subscriber channels. Further publishes are no-ops.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, id)
	}
}
