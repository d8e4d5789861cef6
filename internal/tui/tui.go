// Package tui renders the live pull-request set in the terminal. It is a
// pure consumer of the store's event bus plus its command surface; all
// reconciliation logic stays in the store.
package tui

import (
	"context"
	"errors"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ldevineau/pullwatch/internal/event"
	"github.com/ldevineau/pullwatch/internal/model"
	"github.com/ldevineau/pullwatch/internal/store"
)

type Model struct {
	commands Commander
	rate     RateReporter
	events   <-chan event.Event

	connected bool
	status    string
	prs       []model.PullRequest
	lastCheck time.Time
	user      model.User
	orgs      []model.Organization

	selected int
	width    int
}

type eventMsg struct {
	event event.Event
}

type refreshDoneMsg struct {
	err error
}

func NewModel(commands Commander, rate RateReporter, events <-chan event.Event) Model {
	return Model{
		commands: commands,
		rate:     rate,
		events:   events,
		status:   "Waiting for first update...",
		width:    100,
	}
}

func (m Model) Init() tea.Cmd {
	return waitForEvent(m.events)
}

func waitForEvent(ch <-chan event.Event) tea.Cmd {
	return func() tea.Msg {
		e, ok := <-ch
		if !ok {
			return tea.Quit()
		}
		return eventMsg{event: e}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case eventMsg:
		m.apply(msg.event)
		return m, waitForEvent(m.events)

	case refreshDoneMsg:
		if msg.err != nil && !errors.Is(msg.err, store.ErrRefreshInFlight) {
			m.status = "Refresh failed: " + msg.err.Error()
		}
		return m, nil
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit

	case "r":
		m.status = "Refreshing..."
		commands := m.commands
		return m, func() tea.Msg {
			return refreshDoneMsg{err: commands.Refresh(context.Background())}
		}

	case "up", "k":
		if m.selected > 0 {
			m.selected--
		}

	case "down", "j":
		if m.selected < len(m.visible())-1 {
			m.selected++
		}

	case "i":
		rows := m.visible()
		if m.selected >= 0 && m.selected < len(rows) {
			m.commands.MarkIgnored(rows[m.selected])
		}

	case "s":
		next := store.SortByPriority
		if m.commands.SortPreference() == store.SortByPriority {
			next = store.SortByCreated
		}
		m.commands.SetSortPreference(next)

	case "d":
		m.commands.ToggleFilter("state", "draft")
	}

	m.clampSelection()
	return m, nil
}

func (m *Model) apply(e event.Event) {
	switch e := e.(type) {
	case event.ConnectionChanged:
		m.connected = e.IsConnected
	case event.StatusMessage:
		m.status = e.Message
	case event.OrganizationsUpdated:
		m.user = e.User
		m.orgs = e.Organizations
	case event.PullRequestsUpdated:
		m.prs = e.PullRequests
		m.lastCheck = e.LastCheck
		m.clampSelection()
	case event.FilterToggled:
		m.clampSelection()
	}
}

// visible applies the presentation filters to the current snapshot.
func (m Model) visible() []model.PullRequest {
	showDrafts := m.commands.IsFilterActive("state", "draft")
	rows := make([]model.PullRequest, 0, len(m.prs))
	for _, pr := range m.prs {
		if pr.Draft && !showDrafts {
			continue
		}
		rows = append(rows, pr)
	}
	return rows
}

func (m *Model) clampSelection() {
	n := len(m.visible())
	if m.selected >= n {
		m.selected = n - 1
	}
	if m.selected < 0 {
		m.selected = 0
	}
}

func (m Model) View() string {
	return renderView(m)
}
