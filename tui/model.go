// Package tui renders the aggregator's published state as per-agent panes in
// the terminal. It is a read-only consumer: everything it shows comes from
// snapshots, and it never mutates aggregator state.
package tui

import (
	"slices"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/bazelment/yoloswe/roundtable/gateway"
	"github.com/bazelment/yoloswe/roundtable/stream"
)

// snapshotMsg delivers a published snapshot through the bubbletea loop.
type snapshotMsg stream.Snapshot

// snapshotsClosedMsg signals that the aggregator shut down.
type snapshotsClosedMsg struct{}

// Model is the viewer's bubbletea model.
type Model struct {
	snapshots <-chan stream.Snapshot
	conn      *gateway.ConnState

	snapshot stream.Snapshot
	// order preserves first-seen agent order so panes don't jump around
	// as map iteration varies between snapshots.
	order []string

	spin   spinner.Model
	width  int
	height int
	closed bool
}

// New creates a viewer reading from the given snapshot channel. conn is
// optional; when set, the upstream connection state is shown in the header.
func New(snapshots <-chan stream.Snapshot, conn *gateway.ConnState) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle
	return Model{
		snapshots: snapshots,
		conn:      conn,
		snapshot:  stream.Snapshot{},
		spin:      sp,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, waitForSnapshot(m.snapshots))
}

// waitForSnapshot blocks on the channel and wraps the result as a message.
func waitForSnapshot(ch <-chan stream.Snapshot) tea.Cmd {
	return func() tea.Msg {
		snap, ok := <-ch
		if !ok {
			return snapshotsClosedMsg{}
		}
		return snapshotMsg(snap)
	}
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case snapshotMsg:
		m.applySnapshot(stream.Snapshot(msg))
		return m, waitForSnapshot(m.snapshots)

	case snapshotsClosedMsg:
		m.closed = true
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}

	return m, nil
}

// applySnapshot stores the snapshot and folds newly seen agents into the
// stable pane order.
func (m *Model) applySnapshot(snap stream.Snapshot) {
	m.snapshot = snap
	for agent := range snap {
		if !slices.Contains(m.order, agent) {
			m.order = append(m.order, agent)
		}
	}
}

// visibleAgents returns the pane order filtered to agents present in the
// current snapshot. Cleared agents drop out; their slot is remembered in
// case a new stream for the same agent begins.
func (m Model) visibleAgents() []string {
	var agents []string
	for _, agent := range m.order {
		if _, ok := m.snapshot[agent]; ok {
			agents = append(agents, agent)
		}
	}
	return agents
}

// Run starts the viewer and blocks until the user quits.
func Run(snapshots <-chan stream.Snapshot, conn *gateway.ConnState) error {
	program := tea.NewProgram(New(snapshots, conn), tea.WithAltScreen())
	_, err := program.Run()
	return err
}
