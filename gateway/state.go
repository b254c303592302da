// Package gateway connects the aggregator to its external collaborators: an
// upstream duplex connection delivering token fragments, and downstream
// rendering clients consuming published state snapshots.
package gateway

import (
	"sync"
	"time"
)

// State represents the current state of the upstream connection.
type State int

const (
	// StateIdle indicates the feed has not been started.
	StateIdle State = iota
	// StateConnecting indicates a dial is in progress.
	StateConnecting
	// StateConnected indicates the feed is reading events.
	StateConnected
	// StateReconnecting indicates the connection dropped and the feed is
	// backing off before the next dial.
	StateReconnecting
	// StateClosed indicates the feed has shut down.
	StateClosed
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ConnState tracks the upstream connection lifecycle. The feed's run loop
// writes it; status consumers (CLI, viewer) read it.
type ConnState struct {
	mu        sync.RWMutex
	state     State
	lastEvent time.Time
	attempts  int
}

// NewConnState creates a tracker in the idle state.
func NewConnState() *ConnState {
	return &ConnState{state: StateIdle}
}

// MarkConnecting records a dial attempt.
func (c *ConnState) MarkConnecting() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateConnecting
	c.attempts++
}

// MarkConnected records a successful dial and resets the attempt counter.
func (c *ConnState) MarkConnected() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateConnected
	c.attempts = 0
}

// MarkReconnecting records a dropped connection awaiting backoff.
func (c *ConnState) MarkReconnecting() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateClosed {
		c.state = StateReconnecting
	}
}

// MarkClosed records shutdown. The state never leaves closed.
func (c *ConnState) MarkClosed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateClosed
}

// NoteEvent records that an inbound event was consumed.
func (c *ConnState) NoteEvent() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastEvent = time.Now()
}

// State returns the current connection state.
func (c *ConnState) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Attempts returns the number of dial attempts since the last success.
func (c *ConnState) Attempts() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.attempts
}

// TimeSinceEvent returns how long ago the last inbound event arrived.
// Returns zero if no event has been consumed yet.
func (c *ConnState) TimeSinceEvent() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.lastEvent.IsZero() {
		return 0
	}
	return time.Since(c.lastEvent)
}
