package protocol

import (
	"encoding/json"
	"testing"
)

func TestParseTokenEventDefaults(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantAgent string
		wantToken string
		wantMsgID string
	}{
		{
			name:      "full event",
			input:     `{"agent_type":"LEGAL","token":"Hel","message_id":"m1"}`,
			wantAgent: "LEGAL",
			wantToken: "Hel",
			wantMsgID: "m1",
		},
		{
			name:      "missing agent defaults to UNKNOWN",
			input:     `{"token":"text"}`,
			wantAgent: DefaultAgentType,
			wantToken: "text",
		},
		{
			name:      "missing token is empty",
			input:     `{"agent_type":"LEGAL"}`,
			wantAgent: "LEGAL",
			wantToken: "",
		},
		{
			name:      "empty object",
			input:     `{}`,
			wantAgent: DefaultAgentType,
		},
		{
			name:      "unknown fields ignored",
			input:     `{"agent_type":"LEGAL","token":"x","extra":42}`,
			wantAgent: "LEGAL",
			wantToken: "x",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := ParseTokenEvent([]byte(tt.input))
			if err != nil {
				t.Fatalf("ParseTokenEvent: %v", err)
			}
			if got := ev.Agent(); got != tt.wantAgent {
				t.Errorf("Agent() = %q, want %q", got, tt.wantAgent)
			}
			if ev.Token != tt.wantToken {
				t.Errorf("Token = %q, want %q", ev.Token, tt.wantToken)
			}
			if ev.MessageID != tt.wantMsgID {
				t.Errorf("MessageID = %q, want %q", ev.MessageID, tt.wantMsgID)
			}
		})
	}
}

func TestParseTokenEventMalformed(t *testing.T) {
	if _, err := ParseTokenEvent([]byte("not json")); err == nil {
		t.Fatal("expected error for malformed frame")
	}
}

func TestStateUpdateEnvelope(t *testing.T) {
	update := NewStateUpdate(map[string]AgentState{
		"LEGAL": {Tokens: "Hello", Active: true, LastUpdated: 1234},
	})
	if update.Type != StateUpdateType {
		t.Errorf("Type = %q, want %q", update.Type, StateUpdateType)
	}

	data, err := json.Marshal(update)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded StateUpdate
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Agents["LEGAL"].Tokens != "Hello" {
		t.Errorf("round-trip lost tokens: %+v", decoded.Agents)
	}
	if !decoded.Agents["LEGAL"].Active {
		t.Error("round-trip lost active flag")
	}
}
