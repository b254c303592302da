package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bazelment/yoloswe/roundtable/protocol"
)

// TokenSink consumes inbound token fragments. stream.Aggregator satisfies it.
type TokenSink interface {
	HandleToken(ev protocol.TokenEvent)
}

// FeedConfig configures an upstream feed.
type FeedConfig struct {
	// URL is the websocket endpoint delivering token events.
	URL string

	// Sink receives every decoded fragment.
	Sink TokenSink

	// Logger receives diagnostic output. Nil disables logging.
	Logger *slog.Logger

	// DialTimeout bounds each connection attempt.
	DialTimeout time.Duration

	// BackoffMin and BackoffMax bound the reconnect backoff. The delay
	// doubles on every failed attempt and resets on success.
	BackoffMin time.Duration
	BackoffMax time.Duration
}

const (
	defaultDialTimeout = 10 * time.Second
	defaultBackoffMin  = 500 * time.Millisecond
	defaultBackoffMax  = 30 * time.Second
)

// Feed maintains a persistent connection to the upstream token source,
// decoding each frame and forwarding it to the sink. The connection is
// re-established with exponential backoff whenever it drops; the aggregator
// is indifferent to reconnects since each agent's stream is independent.
type Feed struct {
	cfg   FeedConfig
	state *ConnState
}

// NewFeed validates the configuration and creates a feed.
func NewFeed(cfg FeedConfig) (*Feed, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("feed: URL is required")
	}
	if cfg.Sink == nil {
		return nil, fmt.Errorf("feed: Sink is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	if cfg.BackoffMin <= 0 {
		cfg.BackoffMin = defaultBackoffMin
	}
	if cfg.BackoffMax < cfg.BackoffMin {
		cfg.BackoffMax = defaultBackoffMax
	}
	return &Feed{cfg: cfg, state: NewConnState()}, nil
}

// State returns the feed's connection state tracker.
func (f *Feed) State() *ConnState {
	return f.state
}

// Run connects and consumes events until ctx is cancelled. It only returns
// the context's error: transient dial and read failures are retried with
// backoff, never surfaced.
func (f *Feed) Run(ctx context.Context) error {
	backoff := f.cfg.BackoffMin

	for {
		f.state.MarkConnecting()
		conn, err := f.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				f.state.MarkClosed()
				return ctx.Err()
			}
			f.cfg.Logger.Warn("upstream dial failed",
				"url", f.cfg.URL, "attempt", f.state.Attempts(), "error", err)
			f.state.MarkReconnecting()
			if err := sleepCtx(ctx, backoff); err != nil {
				f.state.MarkClosed()
				return err
			}
			backoff = nextBackoff(backoff, f.cfg.BackoffMax)
			continue
		}

		f.state.MarkConnected()
		backoff = f.cfg.BackoffMin
		f.cfg.Logger.Info("upstream connected", "url", f.cfg.URL)

		f.readLoop(ctx, conn)
		conn.Close()

		if ctx.Err() != nil {
			f.state.MarkClosed()
			return ctx.Err()
		}
		f.cfg.Logger.Warn("upstream connection lost", "url", f.cfg.URL)
		f.state.MarkReconnecting()
		if err := sleepCtx(ctx, backoff); err != nil {
			f.state.MarkClosed()
			return err
		}
		backoff = nextBackoff(backoff, f.cfg.BackoffMax)
	}
}

func (f *Feed) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: f.cfg.DialTimeout}
	conn, resp, err := dialer.DialContext(ctx, f.cfg.URL, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	return conn, err
}

// readLoop consumes frames until the connection errors or ctx is cancelled.
// Malformed frames are skipped: the aggregator never sees input it would
// have to reject, and the transport never takes the view down.
func (f *Feed) readLoop(ctx context.Context, conn *websocket.Conn) {
	// Unblock ReadMessage when the context ends.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		ev, err := protocol.ParseTokenEvent(data)
		if err != nil {
			f.cfg.Logger.Debug("skipping malformed frame", "error", err)
			continue
		}
		f.state.NoteEvent()
		f.cfg.Sink.HandleToken(ev)
	}
}

// sleepCtx waits for d or until ctx is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func nextBackoff(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max {
		return max
	}
	return next
}
