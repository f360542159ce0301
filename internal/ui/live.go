package ui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/taskboard/taskboard/internal/store"
)

// snapshotMsg carries a store notification into the program.
type snapshotMsg store.Snapshot

// refreshDoneMsg reports the result of a manual refetch.
type refreshDoneMsg struct{ err error }

// BoardModel is a bubbletea model that redraws the board whenever the store
// notifies. Keys: r refetches, q quits.
type BoardModel struct {
	store   *store.Store
	updates chan store.Snapshot
	unsub   func()
	now     func() time.Time

	snap   store.Snapshot
	width  int
	status string
}

// NewBoardModel subscribes to s. Call Close after the program exits.
func NewBoardModel(s *store.Store) *BoardModel {
	m := &BoardModel{
		store:   s,
		updates: make(chan store.Snapshot, 1),
		now:     time.Now,
		snap:    s.Snapshot(),
		width:   TerminalWidth(),
	}
	m.unsub = s.Subscribe(func(snap store.Snapshot) {
		// Keep only the newest snapshot if the program is behind.
		select {
		case <-m.updates:
		default:
		}
		select {
		case m.updates <- snap:
		default:
		}
	})
	return m
}

// Close unsubscribes from the store.
func (m *BoardModel) Close() {
	m.unsub()
}

func (m *BoardModel) waitForSnapshot() tea.Cmd {
	return func() tea.Msg {
		snap, ok := <-m.updates
		if !ok {
			return nil
		}
		return snapshotMsg(snap)
	}
}

func (m *BoardModel) refresh() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return refreshDoneMsg{err: m.store.FetchAll(ctx)}
	}
}

func (m *BoardModel) Init() tea.Cmd {
	return m.waitForSnapshot()
}

func (m *BoardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "r":
			m.status = "refreshing..."
			return m, m.refresh()
		}

	case snapshotMsg:
		m.snap = store.Snapshot(msg)
		return m, m.waitForSnapshot()

	case refreshDoneMsg:
		if msg.err != nil {
			m.status = "refresh failed: " + msg.err.Error()
		} else {
			m.status = "refreshed " + m.now().Format("15:04:05")
		}
	}
	return m, nil
}

func (m *BoardModel) View() string {
	stats := m.snap.Stats(m.now())
	header := RenderBold("Taskboard") + "  " + RenderStats(stats)
	if m.snap.Loading {
		header += "  " + RenderAccent("loading")
	}

	footer := RenderMuted("r refresh · q quit")
	if m.status != "" {
		footer += "  " + m.status
	}
	return header + "\n\n" + RenderBoard(m.snap, m.width, m.now()) + "\n" + footer
}
