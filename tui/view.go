package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))

	headerInfoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	spinnerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205"))

	activeNameStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("42"))

	inactiveNameStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("241"))

	activePaneStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("42")).
			Padding(0, 1)

	inactivePaneStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("241")).
				Padding(0, 1)

	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))
)

// View implements tea.Model.
func (m Model) View() string {
	if m.closed {
		return "aggregator closed\n"
	}

	var b strings.Builder

	header := titleStyle.Render("roundtable")
	if m.conn != nil {
		header += "  " + headerInfoStyle.Render("upstream: "+m.conn.State().String())
	}
	b.WriteString(header)
	b.WriteString("\n\n")

	agents := m.visibleAgents()
	if len(agents) == 0 {
		b.WriteString(headerInfoStyle.Render("waiting for agent streams..."))
		b.WriteString("\n")
	}

	paneWidth := m.width - 4
	if paneWidth < 20 {
		paneWidth = 76
	}

	for _, agent := range agents {
		entry := m.snapshot[agent]

		var title string
		pane := inactivePaneStyle
		if entry.Active {
			title = fmt.Sprintf("%s %s %s",
				activeNameStyle.Render(agent),
				headerInfoStyle.Render("streaming"),
				m.spin.View())
			pane = activePaneStyle
		} else {
			title = fmt.Sprintf("%s %s",
				inactiveNameStyle.Render(agent),
				headerInfoStyle.Render("inactive"))
		}

		body := entry.Tokens
		if body == "" {
			body = headerInfoStyle.Render("(no text yet)")
		}

		b.WriteString(pane.Width(paneWidth).Render(title + "\n" + body))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(footerStyle.Render("q: quit"))
	b.WriteString("\n")
	return b.String()
}
