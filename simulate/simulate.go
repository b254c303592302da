// Package simulate provides a scripted upstream token source: a websocket
// server that streams canned multi-agent responses fragment by fragment,
// markers included. It exists for demos and for exercising the full
// aggregation pipeline without a live agent backend.
package simulate

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bazelment/yoloswe/roundtable/protocol"
)

// Step is one scripted emission: wait Delay, then send the fragment.
type Step struct {
	Agent     string
	Token     string
	MessageID string
	Delay     time.Duration
}

// defaultTokenDelay spaces fragments within one streamed response.
const defaultTokenDelay = 40 * time.Millisecond

// StreamText expands a response into per-word fragment steps followed by a
// done marker, approximating how a model streams tokens.
func StreamText(agent, messageID, text string) []Step {
	words := strings.SplitAfter(text, " ")
	steps := make([]Step, 0, len(words)+1)
	for _, w := range words {
		if w == "" {
			continue
		}
		steps = append(steps, Step{
			Agent:     agent,
			Token:     w,
			MessageID: messageID,
			Delay:     defaultTokenDelay,
		})
	}
	steps = append(steps, Step{
		Agent:     agent,
		Token:     "[DONE]",
		MessageID: messageID,
		Delay:     defaultTokenDelay,
	})
	return steps
}

// Interleave merges several agents' step sequences round-robin, preserving
// each agent's internal order. This mimics concurrent streams multiplexed
// onto one connection.
func Interleave(sequences ...[]Step) []Step {
	var merged []Step
	for {
		progressed := false
		for i := range sequences {
			if len(sequences[i]) == 0 {
				continue
			}
			merged = append(merged, sequences[i][0])
			sequences[i] = sequences[i][1:]
			progressed = true
		}
		if !progressed {
			return merged
		}
	}
}

// DefaultScript is a four-agent conversation exercising every
// classification path: interleaved streaming, a thinking indicator, end
// markers, an agent-reported timeout, and a synthesis phase.
func DefaultScript() []Step {
	legal := append([]Step{
		{Agent: "LEGAL", Token: "[THINKING]", MessageID: "legal-1", Delay: defaultTokenDelay},
	}, StreamText("LEGAL", "legal-1",
		"From a legal standpoint, the contract requires written consent from both parties before any amendment takes effect.")...)

	finance := StreamText("FINANCE", "finance-1",
		"The projected cost of the amendment is immaterial to this quarter's guidance.")

	script := Interleave(legal, finance)

	// MEDICAL never completes; its backend reports the failure inline.
	script = append(script, Step{
		Agent:     "MEDICAL",
		Token:     "Agent took too long to respond [TIMEOUT]",
		MessageID: "medical-1",
		Delay:     200 * time.Millisecond,
	})

	// MODERATOR's summary ends with the synthesis marker rather than a
	// done marker.
	moderator := StreamText("MODERATOR", "moderator-1",
		"Both perspectives agree: proceed with the amendment.")
	moderator[len(moderator)-1].Token = "Synthesizing collaborative response"
	script = append(script, moderator...)

	return script
}

// Server streams a script to every connecting client. When Loop is set the
// script repeats; message identifiers are suffixed with a per-playback run
// number so the aggregator's duplicate suppression does not discard replays.
type Server struct {
	Script []Step
	Logger *slog.Logger
	Loop   bool

	runCounter atomic.Uint64
	upgrader   websocket.Upgrader
}

// NewServer creates a simulator for the given script. A nil script plays
// DefaultScript.
func NewServer(script []Step, logger *slog.Logger) *Server {
	if script == nil {
		script = DefaultScript()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{Script: script, Logger: logger}
}

// ServeHTTP upgrades the connection and plays the script.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.Logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	defer conn.Close()

	s.Logger.Info("simulating token stream", "remote", r.RemoteAddr, "steps", len(s.Script))

	for {
		run := s.runCounter.Add(1)
		if err := s.play(r, conn, run); err != nil {
			return
		}
		if !s.Loop {
			// Leave the connection open; the client decides when to hang up.
			<-r.Context().Done()
			return
		}
	}
}

func (s *Server) play(r *http.Request, conn *websocket.Conn, run uint64) error {
	for _, step := range s.Script {
		select {
		case <-r.Context().Done():
			return r.Context().Err()
		case <-time.After(step.Delay):
		}

		ev := protocol.TokenEvent{
			AgentType: step.Agent,
			Token:     step.Token,
			MessageID: runMessageID(step.MessageID, run),
		}
		if err := conn.WriteJSON(ev); err != nil {
			return err
		}
	}
	return nil
}

func runMessageID(id string, run uint64) string {
	if id == "" {
		return ""
	}
	return fmt.Sprintf("%s-run%d", id, run)
}
