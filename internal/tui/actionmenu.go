package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fentz26/taskboard/internal/models"
)

// MenuState is the action menu's position in its open/confirm cycle.
type MenuState int

const (
	MenuClosed MenuState = iota
	MenuOpen
	MenuConfirm
)

func (s MenuState) String() string {
	switch s {
	case MenuOpen:
		return "open"
	case MenuConfirm:
		return "confirm"
	default:
		return "closed"
	}
}

// DeleteFunc removes one task instance.
type DeleteFunc func(ctx context.Context, instance, name string) error

// TaskDeletedMsg reports the outcome of a confirmed delete.
type TaskDeletedMsg struct {
	ID  models.TaskID
	Err error
}

const (
	itemHistory = iota
	itemDelete
)

var menuItems = []string{"See history for task", "Delete task"}

// ActionMenu offers history navigation and deletion for one task
// instance. While it is active it consumes every key, so nothing reaches
// the row underneath.
type ActionMenu struct {
	state   MenuState
	target  models.TaskID
	cursor  int
	confirm bool // dialog focus: true on Delete, false on Cancel
	del     DeleteFunc
	timeout time.Duration
}

// NewActionMenu creates a closed menu that deletes through del.
func NewActionMenu(del DeleteFunc) *ActionMenu {
	return &ActionMenu{del: del, timeout: 10 * time.Second}
}

// Open shows the menu for id.
func (m *ActionMenu) Open(id models.TaskID) {
	m.state = MenuOpen
	m.target = id
	m.cursor = itemHistory
	m.confirm = false
}

// Close hides the menu and any confirmation.
func (m *ActionMenu) Close() {
	m.state = MenuClosed
	m.confirm = false
}

// State returns the current state.
func (m *ActionMenu) State() MenuState { return m.state }

// Active reports whether the menu should receive input.
func (m *ActionMenu) Active() bool { return m.state != MenuClosed }

// Target is the task the menu acts on.
func (m *ActionMenu) Target() models.TaskID { return m.target }

// Update handles a key while the menu is active.
func (m *ActionMenu) Update(msg tea.KeyMsg) tea.Cmd {
	switch m.state {
	case MenuOpen:
		return m.updateOpen(msg)
	case MenuConfirm:
		return m.updateConfirm(msg)
	}
	return nil
}

func (m *ActionMenu) updateOpen(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "esc", "q", "m":
		m.Close()
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(menuItems)-1 {
			m.cursor++
		}
	case "h":
		m.cursor = itemHistory
		return m.selectItem()
	case "d":
		m.cursor = itemDelete
		return m.selectItem()
	case "enter":
		return m.selectItem()
	}
	return nil
}

func (m *ActionMenu) selectItem() tea.Cmd {
	switch m.cursor {
	case itemHistory:
		path := HistoryPath(m.target)
		m.Close()
		return func() tea.Msg { return NavigateMsg{Path: path} }
	case itemDelete:
		m.state = MenuConfirm
		m.confirm = false
	}
	return nil
}

func (m *ActionMenu) updateConfirm(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "esc", "n":
		m.Close()
	case "left", "right", "tab", "h", "l":
		m.confirm = !m.confirm
	case "y":
		return m.confirmDelete()
	case "enter":
		if m.confirm {
			return m.confirmDelete()
		}
		m.Close()
	}
	return nil
}

// confirmDelete closes the menu and returns the delete request. The
// request's outcome does not reopen the menu.
func (m *ActionMenu) confirmDelete() tea.Cmd {
	id := m.target
	del, timeout := m.del, m.timeout
	m.Close()
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return TaskDeletedMsg{ID: id, Err: del(ctx, id.Instance, id.Name)}
	}
}

// View renders the menu or the confirmation dialog.
func (m *ActionMenu) View() string {
	switch m.state {
	case MenuOpen:
		var lines []string
		for i, item := range menuItems {
			if i == m.cursor {
				lines = append(lines, selectedStyle.Render("▶ "+item))
			} else {
				lines = append(lines, rowStyle.Render("  "+item))
			}
		}
		lines = append(lines, helpStyle.Render("↑↓ select • enter confirm • h history • d delete • esc close"))
		return panelStyle.Render(strings.Join(lines, "\n"))

	case MenuConfirm:
		cancel := rowStyle.Render("Cancel")
		del := rowStyle.Render("Delete")
		if m.confirm {
			del = lipgloss.NewStyle().Background(errorColor).Foreground(fgColor).Bold(true).Padding(0, 2).Render("Delete")
		} else {
			cancel = selectedStyle.Render("Cancel")
		}
		body := lipgloss.NewStyle().Bold(true).Render("Delete Task") + "\n\n" +
			fmt.Sprintf("Are you sure you want to delete, %s Task-ID:%s", m.target.Name, m.target.Instance) + "\n\n" +
			cancel + "  " + del + "\n" +
			helpStyle.Render("y delete • n/esc cancel • ←→ switch")
		return dialogStyle.Render(body)
	}
	return ""
}
