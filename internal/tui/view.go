package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/calebhart/simdash/internal/api"
	"github.com/calebhart/simdash/internal/sync"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))

	paneStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	cursorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))

	connStyles = map[sync.ConnState]lipgloss.Style{
		sync.StateStreaming: lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		sync.StatePolling:   lipgloss.NewStyle().Foreground(lipgloss.Color("220")),
		sync.StateOffline:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	}
)

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("simdash"))
	b.WriteString("\n")

	listWidth := 44
	if m.width > 0 && m.width < 100 {
		listWidth = m.width * 2 / 5
	}

	list := paneStyle.Width(listWidth).Render(m.renderList(listWidth - 4))
	detail := paneStyle.Render(m.renderDetail())
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, list, detail))
	b.WriteString("\n")
	b.WriteString(m.renderStatus())
	b.WriteString("\n")
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func (m Model) renderList(width int) string {
	if len(m.snap.Simulations) == 0 {
		return dimStyle.Render("no simulations")
	}

	var b strings.Builder
	for i, s := range m.snap.Simulations {
		line := fmt.Sprintf("%-18s %-9s %s #%d",
			truncate(s.Name, 18), s.Status, s.CurrentPhase, s.PhaseNumber)
		line = truncate(line, width)
		switch {
		case i == m.cursor:
			line = cursorStyle.Render("> " + line)
		case s.ID == m.snap.SelectedID:
			line = selectedStyle.Render("* " + line)
		default:
			line = "  " + line
		}
		b.WriteString(line)
		if i < len(m.snap.Simulations)-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

func (m Model) renderDetail() string {
	d := m.snap.Active
	if d == nil {
		return dimStyle.Render("select a simulation")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s  (%s)\n", titleStyle.Render(d.Name), d.ID)
	fmt.Fprintf(&b, "scenario: %s\n", d.Scenario)
	fmt.Fprintf(&b, "status: %s   phase: %s #%d\n", d.Status, d.CurrentPhase, d.PhaseNumber)
	fmt.Fprintf(&b, "pending: %d actions, %d events\n", d.PendingActionCount, d.PendingEventCount)

	if len(d.Actors) > 0 {
		b.WriteString("\nactors\n")
		for _, a := range d.Actors {
			marker := " "
			if !a.Active {
				marker = dimStyle.Render("-")
			}
			fmt.Fprintf(&b, " %s %s (%s)\n", marker, a.Name, a.Type)
		}
	}

	if len(d.PendingActions) > 0 {
		b.WriteString("\npending actions\n")
		for _, a := range d.PendingActions {
			fmt.Fprintf(&b, "  %s: %s\n", a.ActorID, truncate(a.Intent, 48))
		}
	}

	if len(d.PendingEvents) > 0 {
		b.WriteString("\npending events\n")
		for _, e := range d.PendingEvents {
			fmt.Fprintf(&b, "  [%s] %s\n", e.Type, truncate(e.Title, 48))
		}
	}

	if tail := phaseLogTail(d.PhaseLog, 5); len(tail) > 0 {
		b.WriteString("\nphase log\n")
		for _, entry := range tail {
			fmt.Fprintf(&b, "  %s %s\n", dimStyle.Render(entry.Timestamp), entry.Phase)
		}
	}

	if result := m.snap.LastPhaseResult; result != nil && result.SimulationID == d.ID {
		fmt.Fprintf(&b, "\n%s\n", selectedStyle.Render(result.Message))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m Model) renderStatus() string {
	conn := m.snap.Connection
	status := connStyles[conn].Render("● " + conn.String())

	if conn == sync.StateStreaming && !m.snap.LastHeartbeat.IsZero() {
		age := time.Since(m.snap.LastHeartbeat).Round(time.Second)
		if age > m.staleAfter {
			status += errorStyle.Render(fmt.Sprintf("  heartbeat stale (%s ago)", age))
		} else {
			status += dimStyle.Render(fmt.Sprintf("  heartbeat %s ago", age))
		}
	}
	if m.snap.FetchPending || m.snap.SubmitPending {
		status += dimStyle.Render("  working…")
	}
	if m.snap.Err != nil {
		status += "  " + errorStyle.Render(truncate(m.snap.Err.Error(), 80))
	}
	return status
}

func phaseLogTail(log []api.PhaseLogEntry, n int) []api.PhaseLogEntry {
	if len(log) <= n {
		return log
	}
	return log[len(log)-n:]
}

func truncate(s string, n int) string {
	if n <= 1 || len(s) <= n {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}
