package gateway

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bazelment/yoloswe/roundtable/protocol"
	"github.com/bazelment/yoloswe/roundtable/stream"
)

const hubWriteTimeout = 10 * time.Second

// Hub serves the aggregator's published state to rendering clients over
// websocket. Each client receives the current snapshot on connect, then one
// StateUpdate per state-changing event. Clients are read-only consumers;
// a client that writes anything other than control frames is ignored.
type Hub struct {
	agg      *stream.Aggregator
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewHub creates a hub serving the given aggregator's snapshots.
func NewHub(agg *stream.Aggregator, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Hub{
		agg:    agg,
		logger: logger,
		upgrader: websocket.Upgrader{
			// The hub is same-origin-agnostic: rendering clients are
			// trusted collaborators, not arbitrary browsers.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the request and streams snapshots until the client
// disconnects or the aggregator closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	defer conn.Close()

	id, snapshots := h.agg.Subscribe(16)
	defer h.agg.Unsubscribe(id)

	h.logger.Info("client connected", "remote", r.RemoteAddr)
	defer h.logger.Info("client disconnected", "remote", r.RemoteAddr)

	// Detect client disconnect by draining (and discarding) inbound frames.
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	// Current state first so a late-joining client renders immediately.
	if err := h.write(conn, h.agg.State()); err != nil {
		return
	}

	for {
		select {
		case snap, ok := <-snapshots:
			if !ok {
				return
			}
			if err := h.write(conn, snap); err != nil {
				return
			}
		case <-clientGone:
			return
		case <-r.Context().Done():
			return
		}
	}
}

func (h *Hub) write(conn *websocket.Conn, snap stream.Snapshot) error {
	conn.SetWriteDeadline(time.Now().Add(hubWriteTimeout))
	return conn.WriteJSON(protocol.NewStateUpdate(snap))
}
