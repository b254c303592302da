package gateway

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bazelment/yoloswe/roundtable/protocol"
	"github.com/bazelment/yoloswe/roundtable/stream"
)

func newHubAggregator(t *testing.T) *stream.Aggregator {
	t.Helper()
	a := stream.New(stream.Options{
		Debounce:      10 * time.Millisecond,
		IdleThreshold: time.Minute,
		SweepInterval: time.Minute,
		FinalizeGrace: 100 * time.Millisecond,
	})
	t.Cleanup(a.Close)
	return a
}

// readUpdate reads StateUpdate frames until one satisfies the predicate.
func readUpdate(t *testing.T, conn *websocket.Conn, ok func(protocol.StateUpdate) bool) protocol.StateUpdate {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		conn.SetReadDeadline(deadline)
		var update protocol.StateUpdate
		if err := conn.ReadJSON(&update); err != nil {
			t.Fatalf("reading state update: %v", err)
		}
		require.Equal(t, protocol.StateUpdateType, update.Type)
		if ok(update) {
			return update
		}
	}
}

func TestHubSendsInitialAndStreamedState(t *testing.T) {
	agg := newHubAggregator(t)
	server := httptest.NewServer(NewHub(agg, nil))
	defer server.Close()

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(server), nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	// Initial snapshot for a fresh aggregator is empty.
	initial := readUpdate(t, conn, func(protocol.StateUpdate) bool { return true })
	assert.Empty(t, initial.Agents)

	agg.HandleToken(protocol.TokenEvent{AgentType: "LEGAL", Token: "Hello", MessageID: "m1"})

	update := readUpdate(t, conn, func(u protocol.StateUpdate) bool {
		_, ok := u.Agents["LEGAL"]
		return ok
	})
	assert.Equal(t, "Hello", update.Agents["LEGAL"].Tokens)
	assert.True(t, update.Agents["LEGAL"].Active)
	assert.Equal(t, "m1", update.Agents["LEGAL"].MessageID)
}

func TestHubServesMultipleClients(t *testing.T) {
	agg := newHubAggregator(t)
	server := httptest.NewServer(NewHub(agg, nil))
	defer server.Close()

	var conns []*websocket.Conn
	for i := 0; i < 3; i++ {
		conn, resp, err := websocket.DefaultDialer.Dial(wsURL(server), nil)
		require.NoError(t, err)
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		defer conn.Close()
		conns = append(conns, conn)
	}

	agg.HandleToken(protocol.TokenEvent{AgentType: "MEDICAL", Token: "Hi"})

	for _, conn := range conns {
		update := readUpdate(t, conn, func(u protocol.StateUpdate) bool {
			_, ok := u.Agents["MEDICAL"]
			return ok
		})
		assert.Equal(t, "Hi", update.Agents["MEDICAL"].Tokens)
	}
}

func TestHubClientDisconnectUnsubscribes(t *testing.T) {
	agg := newHubAggregator(t)
	server := httptest.NewServer(NewHub(agg, nil))
	defer server.Close()

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(server), nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	conn.Close()

	// Publishing after the disconnect must not wedge the aggregator.
	require.Eventually(t, func() bool {
		agg.HandleToken(protocol.TokenEvent{AgentType: "LEGAL", Token: "x"})
		return true
	}, time.Second, 10*time.Millisecond)
}
