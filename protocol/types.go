// Package protocol defines the wire types exchanged with the token transport
// and with rendering clients.
package protocol

import "encoding/json"

// DefaultAgentType is the bucket used for fragments that arrive without an
// agent tag. Malformed input never fails; it degrades to this sentinel.
const DefaultAgentType = "UNKNOWN"

// StateUpdateType is the Type value carried by every StateUpdate.
const StateUpdateType = "state"

// TokenEvent is one inbound token fragment from the transport.
// All fields are optional on the wire.
type TokenEvent struct {
	// AgentType tags the originating agent. Empty means DefaultAgentType.
	AgentType string `json:"agent_type,omitempty"`

	// Token is the streamed text fragment. Empty is a no-op append.
	Token string `json:"token,omitempty"`

	// MessageID identifies the message being streamed. Used for duplicate
	// suppression once the message completes.
	MessageID string `json:"message_id,omitempty"`
}

// Agent returns the agent tag, defaulting to DefaultAgentType when absent.
func (e TokenEvent) Agent() string {
	if e.AgentType == "" {
		return DefaultAgentType
	}
	return e.AgentType
}

// ParseTokenEvent decodes a wire frame into a TokenEvent. Unknown fields are
// ignored; missing fields keep their zero values and are defaulted at the
// point of use.
func ParseTokenEvent(data []byte) (TokenEvent, error) {
	var ev TokenEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return TokenEvent{}, err
	}
	return ev, nil
}

// AgentState is the published view of one agent's stream.
type AgentState struct {
	// Tokens is the accumulated display text for the current message.
	Tokens string `json:"tokens"`

	// Active is true while fragments are still arriving and no end
	// condition has fired.
	Active bool `json:"active"`

	// LastUpdated is the epoch-millisecond timestamp of the last
	// state-affecting event.
	LastUpdated int64 `json:"last_updated"`

	// MessageID identifies the message being streamed, when known.
	MessageID string `json:"message_id,omitempty"`
}

// StateUpdate is the outbound snapshot message sent to rendering clients.
type StateUpdate struct {
	Type   string                `json:"type"`
	Agents map[string]AgentState `json:"agents"`
}

// NewStateUpdate wraps a snapshot in the outbound envelope.
func NewStateUpdate(agents map[string]AgentState) StateUpdate {
	return StateUpdate{Type: StateUpdateType, Agents: agents}
}
