// Package stream implements the token-stream aggregator: it ingests the
// interleaved token fragments produced by concurrently responding agents and
// maintains a per-agent, debounced, completion-aware view of what each agent
// has said so far.
package stream

import (
	"log/slog"
	"sync"
	"time"

	"github.com/bazelment/yoloswe/roundtable/protocol"
)

// Snapshot is the published aggregator state: agent identifier to that
// agent's current view. Snapshots handed to consumers are copies; consumers
// must treat them as read-only.
type Snapshot = map[string]protocol.AgentState

// Options configures an Aggregator. Zero values take the defaults below.
type Options struct {
	// Debounce is the quiet window per agent before buffered fragments are
	// published as one state update.
	Debounce time.Duration

	// IdleThreshold is how long an active entry may go without a
	// state-affecting event before the sweep flips it inactive.
	IdleThreshold time.Duration

	// SweepInterval is how often the idle sweep runs.
	SweepInterval time.Duration

	// FinalizeGrace is how long a finalized entry stays visible before it
	// is cleared. It exists only so a consumer can render the final text.
	FinalizeGrace time.Duration

	// Logger receives diagnostic output. Nil disables logging.
	Logger *slog.Logger
}

const (
	defaultDebounce      = 50 * time.Millisecond
	defaultIdleThreshold = 10 * time.Second
	defaultSweepInterval = 2 * time.Second
	defaultFinalizeGrace = 500 * time.Millisecond
)

func (o Options) withDefaults() Options {
	if o.Debounce <= 0 {
		o.Debounce = defaultDebounce
	}
	if o.IdleThreshold <= 0 {
		o.IdleThreshold = defaultIdleThreshold
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = defaultSweepInterval
	}
	if o.FinalizeGrace <= 0 {
		o.FinalizeGrace = defaultFinalizeGrace
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	return o
}

// Aggregator turns an interleaved fragment sequence into per-agent state.
// All mutation — ingestion, timer callbacks, the idle sweep, resets — is
// serialized behind one mutex, so the component behaves as a single-threaded
// state machine regardless of which goroutine delivers an event.
type Aggregator struct {
	opts Options

	mu sync.Mutex

	// entries is the published state table.
	entries map[string]protocol.AgentState

	// pending accumulates each agent's full message text ahead of the
	// debounced publish. It is cleared only by finalization or reset,
	// never by a publish.
	pending map[string]string

	// debounce holds the per-agent timer that flushes pending text.
	// There is never more than one live timer per agent: installs go
	// through armDebounceLocked, which cancels the previous one in the
	// same critical section.
	debounce    map[string]*time.Timer
	debounceGen map[string]uint64

	// grace holds the per-agent timer that clears a finalized entry.
	grace    map[string]*time.Timer
	graceGen map[string]uint64

	// completed holds message identifiers that have been finalized.
	// Fragments bearing these identifiers are dropped. Retained for the
	// lifetime of the aggregator — a global reset does not clear it.
	completed map[string]struct{}

	bc     *Broadcaster
	stop   chan struct{}
	closed bool
}

// New creates an aggregator and starts its idle sweep.
// Call Close when done to stop the sweep and all outstanding timers.
func New(opts Options) *Aggregator {
	a := &Aggregator{
		opts:        opts.withDefaults(),
		entries:     make(map[string]protocol.AgentState),
		pending:     make(map[string]string),
		debounce:    make(map[string]*time.Timer),
		debounceGen: make(map[string]uint64),
		grace:       make(map[string]*time.Timer),
		graceGen:    make(map[string]uint64),
		completed:   make(map[string]struct{}),
		stop:        make(chan struct{}),
	}
	a.bc = NewBroadcaster(a.opts.Logger)
	go a.sweepLoop()
	return a
}

// HandleToken ingests one inbound fragment. It never fails: malformed input
// degrades to defined defaults, and the only error surfaced to consumers is
// an agent-reported timeout notice, modeled as data in the published state.
func (a *Aggregator) HandleToken(ev protocol.TokenEvent) {
	agent := ev.Agent()

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return
	}

	// Duplicate suppression comes first: a fragment for an already
	// completed message causes no state change and no side effect.
	if ev.MessageID != "" {
		if _, done := a.completed[ev.MessageID]; done {
			return
		}
	}

	switch classify(agent, ev.Token) {
	case kindTimeout:
		a.failLocked(agent, ev)
	case kindEnd:
		a.finalizeLocked(agent, ev)
	default:
		a.bufferLocked(agent, ev)
	}
}

// State returns a copy of the current published state.
func (a *Aggregator) State() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked()
}

// Subscribe registers a consumer of published snapshots. Every
// state-changing event produces one snapshot on the returned channel.
func (a *Aggregator) Subscribe(bufSize int) (int, <-chan Snapshot) {
	return a.bc.Subscribe(bufSize)
}

// Unsubscribe removes a subscriber registered with Subscribe.
func (a *Aggregator) Unsubscribe(id int) {
	a.bc.Unsubscribe(id)
}

// ResetAgent cancels the agent's debounce timer, drops its pending buffer,
// and deletes its entry. If messageID is non-empty it is registered as
// completed so a late duplicate of the same message cannot resurrect it.
func (a *Aggregator) ResetAgent(agentID, messageID string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return
	}

	a.cancelDebounceLocked(agentID)
	a.cancelGraceLocked(agentID)
	delete(a.pending, agentID)
	delete(a.entries, agentID)
	if messageID != "" {
		a.completed[messageID] = struct{}{}
	}
	a.publishLocked()
}

// ResetAll cancels every pending timer and clears all per-agent state.
// The completed-message set is intentionally retained: duplicate
// suppression must survive a view reset within the same session.
func (a *Aggregator) ResetAll() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return
	}

	for agent := range a.debounce {
		a.cancelDebounceLocked(agent)
	}
	for agent := range a.grace {
		a.cancelGraceLocked(agent)
	}
	a.pending = make(map[string]string)
	a.entries = make(map[string]protocol.AgentState)
	a.publishLocked()
}

// Close stops the idle sweep, cancels all outstanding timers, and closes
// every subscriber channel. The aggregator must not be used afterwards.
func (a *Aggregator) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	close(a.stop)
	for agent := range a.debounce {
		a.cancelDebounceLocked(agent)
	}
	for agent := range a.grace {
		a.cancelGraceLocked(agent)
	}
	a.mu.Unlock()

	a.bc.Close()
}

// --- Ingestion paths (all hold a.mu) -----------------------------------------

// bufferLocked handles a normal content fragment: append to the pending
// buffer and reset the agent's debounce timer. Fragments arriving inside
// the debounce window collapse into a single publish.
func (a *Aggregator) bufferLocked(agent string, ev protocol.TokenEvent) {
	a.pending[agent] += ev.Token
	a.armDebounceLocked(agent, ev.MessageID)
}

// finalizeLocked handles an end-of-stream marker: scrub the accumulated
// text, publish the final inactive entry, register the message as
// completed, and schedule the grace-delay removal.
func (a *Aggregator) finalizeLocked(agent string, ev protocol.TokenEvent) {
	a.cancelDebounceLocked(agent)

	text := scrub(agent, a.pending[agent]+ev.Token)
	delete(a.pending, agent)

	a.entries[agent] = protocol.AgentState{
		Tokens:      text,
		Active:      false,
		LastUpdated: a.nowMillisLocked(agent),
		MessageID:   ev.MessageID,
	}
	if ev.MessageID != "" {
		a.completed[ev.MessageID] = struct{}{}
	}
	a.opts.Logger.Debug("stream finalized", "agent", agent, "message_id", ev.MessageID)
	a.publishLocked()

	a.cancelGraceLocked(agent)
	a.graceGen[agent]++
	gen := a.graceGen[agent]
	a.grace[agent] = time.AfterFunc(a.opts.FinalizeGrace, func() {
		a.clearFinalized(agent, gen)
	})
}

// failLocked handles an agent-reported timeout notice: the literal notice
// text replaces any buffered content and is published inactive immediately,
// bypassing the debounce. No grace removal is scheduled, and a leftover
// grace timer from a prior finalization is cancelled — the entry stays
// visible until an explicit reset or a new stream supersedes it.
func (a *Aggregator) failLocked(agent string, ev protocol.TokenEvent) {
	a.cancelDebounceLocked(agent)
	a.cancelGraceLocked(agent)
	delete(a.pending, agent)

	a.entries[agent] = protocol.AgentState{
		Tokens:      ev.Token,
		Active:      false,
		LastUpdated: a.nowMillisLocked(agent),
		MessageID:   ev.MessageID,
	}
	a.opts.Logger.Debug("stream failed", "agent", agent, "message_id", ev.MessageID)
	a.publishLocked()
}

// --- Timers ------------------------------------------------------------------

// armDebounceLocked cancels any outstanding debounce timer for the agent and
// installs a fresh one, atomically within the caller's critical section.
func (a *Aggregator) armDebounceLocked(agent, messageID string) {
	if t, ok := a.debounce[agent]; ok {
		t.Stop()
	}
	a.debounceGen[agent]++
	gen := a.debounceGen[agent]
	a.debounce[agent] = time.AfterFunc(a.opts.Debounce, func() {
		a.flush(agent, messageID, gen)
	})
}

// cancelDebounceLocked stops and invalidates the agent's debounce timer.
// The generation bump makes any already-fired callback a no-op, so a stale
// flush can never overwrite newer state.
func (a *Aggregator) cancelDebounceLocked(agent string) {
	if t, ok := a.debounce[agent]; ok {
		t.Stop()
		delete(a.debounce, agent)
	}
	a.debounceGen[agent]++
}

// cancelGraceLocked stops and invalidates the agent's grace-removal timer.
func (a *Aggregator) cancelGraceLocked(agent string) {
	if t, ok := a.grace[agent]; ok {
		t.Stop()
		delete(a.grace, agent)
	}
	a.graceGen[agent]++
}

// flush is the debounce timer callback: publish the agent's accumulated
// buffer as the active entry.
func (a *Aggregator) flush(agent, messageID string, gen uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed || a.debounceGen[agent] != gen {
		return
	}
	delete(a.debounce, agent)

	a.entries[agent] = protocol.AgentState{
		Tokens:      a.pending[agent],
		Active:      true,
		LastUpdated: a.nowMillisLocked(agent),
		MessageID:   messageID,
	}
	a.publishLocked()
}

// clearFinalized is the grace timer callback: remove the finalized entry so
// the consumer's view empties out after it had a chance to render the final
// text.
func (a *Aggregator) clearFinalized(agent string, gen uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed || a.graceGen[agent] != gen {
		return
	}
	delete(a.grace, agent)

	entry, ok := a.entries[agent]
	if !ok || entry.Active {
		// A new stream for this agent began during the grace window;
		// it owns the entry now.
		return
	}
	delete(a.entries, agent)
	a.publishLocked()
}

// --- Idle sweep --------------------------------------------------------------

func (a *Aggregator) sweepLoop() {
	ticker := time.NewTicker(a.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-a.stop:
			return
		case <-ticker.C:
			a.sweepOnce()
		}
	}
}

// sweepOnce flips active entries that have gone quiet past the idle
// threshold to inactive. Text is retained and entries are never deleted
// here — the flip is a liveness signal, not a finalization. A snapshot is
// published only if at least one entry changed.
func (a *Aggregator) sweepOnce() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return
	}

	cutoff := time.Now().Add(-a.opts.IdleThreshold).UnixMilli()
	changed := false
	for agent, entry := range a.entries {
		if entry.Active && entry.LastUpdated <= cutoff {
			entry.Active = false
			a.entries[agent] = entry
			changed = true
			a.opts.Logger.Debug("stream marked idle", "agent", agent)
		}
	}
	if changed {
		a.publishLocked()
	}
}

// --- Publication -------------------------------------------------------------

// nowMillisLocked returns the current epoch-millisecond timestamp, clamped
// so an agent's LastUpdated never decreases even if the wall clock steps
// backwards between events.
func (a *Aggregator) nowMillisLocked(agent string) int64 {
	now := time.Now().UnixMilli()
	if prev, ok := a.entries[agent]; ok && prev.LastUpdated > now {
		return prev.LastUpdated
	}
	return now
}

func (a *Aggregator) snapshotLocked() Snapshot {
	snap := make(Snapshot, len(a.entries))
	for agent, entry := range a.entries {
		snap[agent] = entry
	}
	return snap
}

func (a *Aggregator) publishLocked() {
	a.bc.Publish(a.snapshotLocked())
}
