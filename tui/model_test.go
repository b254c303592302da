package tui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/bazelment/yoloswe/roundtable/stream"
)

func applyMsg(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	updated, _ := m.Update(msg)
	model, ok := updated.(Model)
	if !ok {
		t.Fatalf("Update returned %T, want Model", updated)
	}
	return model
}

func TestViewShowsAgentPanes(t *testing.T) {
	ch := make(chan stream.Snapshot)
	m := New(ch, nil)

	m = applyMsg(t, m, snapshotMsg(stream.Snapshot{
		"LEGAL":   {Tokens: "Hello from legal", Active: true},
		"MEDICAL": {Tokens: "frozen text", Active: false},
	}))

	view := m.View()
	for _, want := range []string{"LEGAL", "Hello from legal", "MEDICAL", "frozen text", "streaming", "inactive"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestViewEmptySnapshot(t *testing.T) {
	ch := make(chan stream.Snapshot)
	m := New(ch, nil)

	view := m.View()
	if !strings.Contains(view, "waiting for agent streams") {
		t.Errorf("empty view should show the waiting notice:\n%s", view)
	}
}

func TestPaneOrderStableAcrossSnapshots(t *testing.T) {
	ch := make(chan stream.Snapshot)
	m := New(ch, nil)

	m = applyMsg(t, m, snapshotMsg(stream.Snapshot{
		"LEGAL": {Tokens: "a", Active: true},
	}))
	m = applyMsg(t, m, snapshotMsg(stream.Snapshot{
		"LEGAL":   {Tokens: "ab", Active: true},
		"MEDICAL": {Tokens: "x", Active: true},
	}))

	agents := m.visibleAgents()
	if len(agents) != 2 || agents[0] != "LEGAL" || agents[1] != "MEDICAL" {
		t.Errorf("visibleAgents = %v, want [LEGAL MEDICAL]", agents)
	}

	// An agent cleared from the snapshot drops out of view but keeps its
	// slot for a future stream.
	m = applyMsg(t, m, snapshotMsg(stream.Snapshot{
		"MEDICAL": {Tokens: "x", Active: true},
	}))
	agents = m.visibleAgents()
	if len(agents) != 1 || agents[0] != "MEDICAL" {
		t.Errorf("visibleAgents = %v, want [MEDICAL]", agents)
	}
}

func TestQuitKeys(t *testing.T) {
	ch := make(chan stream.Snapshot)
	m := New(ch, nil)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil {
		t.Fatal("expected quit command for q")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q should produce tea.QuitMsg")
	}
}

func TestClosedChannelQuits(t *testing.T) {
	ch := make(chan stream.Snapshot)
	close(ch)
	m := New(ch, nil)

	msg := waitForSnapshot(ch)()
	if _, ok := msg.(snapshotsClosedMsg); !ok {
		t.Fatalf("expected snapshotsClosedMsg, got %T", msg)
	}

	updated, cmd := m.Update(msg)
	if cmd == nil {
		t.Fatal("expected quit command after close")
	}
	if !updated.(Model).closed {
		t.Error("model should record closure")
	}
}
