// Package tui renders the simulation dashboard. It is pure presentation: the
// model holds the latest snapshot from the sync client and turns key presses
// into client commands; it never mutates simulation state itself.
package tui

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/calebhart/simdash/internal/sync"
)

const commandTimeout = 10 * time.Second

// defaultStaleAfter flags a silent streaming connection; three missed 15s
// heartbeats.
const defaultStaleAfter = 45 * time.Second

type snapshotMsg sync.Snapshot

type updatesClosedMsg struct{}

type commandDoneMsg struct{ err error }

// Model is the bubbletea model for the dashboard.
type Model struct {
	client  *sync.Client
	token   string
	updates <-chan sync.Snapshot

	snap       sync.Snapshot
	cursor     int
	width      int
	height     int
	staleAfter time.Duration

	keys keyMap
	help help.Model
}

// New subscribes to the sync client and builds the dashboard model. A
// non-positive staleAfter falls back to the default threshold.
func New(client *sync.Client, staleAfter time.Duration) Model {
	if staleAfter <= 0 {
		staleAfter = defaultStaleAfter
	}
	token, updates := client.Subscribe()
	return Model{
		client:     client,
		token:      token,
		updates:    updates,
		snap:       client.Snapshot(),
		staleAfter: staleAfter,
		keys:       defaultKeyMap(),
		help:       help.New(),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.waitForUpdate(), m.refreshCmd())
}

// waitForUpdate blocks on the subscription channel and feeds the next
// snapshot into the update loop.
func (m Model) waitForUpdate() tea.Cmd {
	updates := m.updates
	return func() tea.Msg {
		snap, ok := <-updates
		if !ok {
			return updatesClosedMsg{}
		}
		return snapshotMsg(snap)
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case snapshotMsg:
		m.snap = sync.Snapshot(msg)
		if m.cursor >= len(m.snap.Simulations) {
			m.cursor = max(0, len(m.snap.Simulations)-1)
		}
		return m, m.waitForUpdate()

	case updatesClosedMsg:
		return m, tea.Quit

	case commandDoneMsg:
		// failures surface through the snapshot's Err; nothing to do here
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	keys := m.keys
	switch {
	case key.Matches(msg, keys.Quit):
		m.client.Unsubscribe(m.token)
		return m, tea.Quit

	case key.Matches(msg, keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil

	case key.Matches(msg, keys.Down):
		if m.cursor < len(m.snap.Simulations)-1 {
			m.cursor++
		}
		return m, nil

	case key.Matches(msg, keys.Select):
		if id, ok := m.cursorID(); ok {
			return m, m.commandCmd(func(ctx context.Context) error {
				_, err := m.client.Select(ctx, id)
				return err
			})
		}
		return m, nil

	case key.Matches(msg, keys.Deselect):
		m.client.Deselect()
		return m, nil

	case key.Matches(msg, keys.Start):
		if id, ok := m.targetID(); ok {
			return m, m.commandCmd(func(ctx context.Context) error {
				_, err := m.client.Start(ctx, id)
				return err
			})
		}
		return m, nil

	case key.Matches(msg, keys.Advance):
		if id, ok := m.targetID(); ok {
			return m, m.commandCmd(func(ctx context.Context) error {
				_, err := m.client.Advance(ctx, id)
				return err
			})
		}
		return m, nil

	case key.Matches(msg, keys.Delete):
		if id, ok := m.targetID(); ok {
			return m, m.commandCmd(func(ctx context.Context) error {
				return m.client.Delete(ctx, id)
			})
		}
		return m, nil

	case key.Matches(msg, keys.Refresh):
		return m, m.refreshCmd()

	case key.Matches(msg, keys.ToggleAll):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil
	}
	return m, nil
}

// cursorID is the simulation under the list cursor.
func (m Model) cursorID() (string, bool) {
	if m.cursor < 0 || m.cursor >= len(m.snap.Simulations) {
		return "", false
	}
	return m.snap.Simulations[m.cursor].ID, true
}

// targetID prefers the selected simulation, falling back to the cursor.
func (m Model) targetID() (string, bool) {
	if m.snap.SelectedID != "" {
		return m.snap.SelectedID, true
	}
	return m.cursorID()
}

func (m Model) commandCmd(fn func(ctx context.Context) error) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		return commandDoneMsg{err: fn(ctx)}
	}
}

func (m Model) refreshCmd() tea.Cmd {
	return m.commandCmd(func(ctx context.Context) error {
		_, err := m.client.ListAll(ctx)
		return err
	})
}

// Run starts the dashboard and blocks until the user quits.
func Run(client *sync.Client, staleAfter time.Duration) error {
	program := tea.NewProgram(New(client, staleAfter), tea.WithAltScreen())
	_, err := program.Run()
	return err
}
