package tui

import (
	"context"
	"errors"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fentz26/taskboard/internal/models"
)

type deleteCall struct {
	instance string
	name     string
}

type deleteRecorder struct {
	mu    sync.Mutex
	calls []deleteCall
	err   error
}

func (d *deleteRecorder) del(_ context.Context, instance, name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, deleteCall{instance: instance, name: name})
	return d.err
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "left":
		return tea.KeyMsg{Type: tea.KeyLeft}
	case "right":
		return tea.KeyMsg{Type: tea.KeyRight}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

var jobA = models.TaskID{Name: "job-A", Instance: "42"}

func TestActionMenu_ConfirmDeleteCallsOnce(t *testing.T) {
	rec := &deleteRecorder{}
	m := NewActionMenu(rec.del)
	m.Open(jobA)

	assert.Nil(t, m.Update(key("d")))
	require.Equal(t, MenuConfirm, m.State())

	cmd := m.Update(key("y"))
	require.NotNil(t, cmd)
	assert.Equal(t, MenuClosed, m.State())

	msg := cmd()
	deleted, ok := msg.(TaskDeletedMsg)
	require.True(t, ok)
	assert.Equal(t, jobA, deleted.ID)
	assert.NoError(t, deleted.Err)
	assert.Equal(t, []deleteCall{{instance: "42", name: "job-A"}}, rec.calls)
}

func TestActionMenu_EnterOnDeleteButton(t *testing.T) {
	rec := &deleteRecorder{}
	m := NewActionMenu(rec.del)
	m.Open(jobA)

	m.Update(key("down"))
	m.Update(key("enter"))
	require.Equal(t, MenuConfirm, m.State())

	// Focus starts on Cancel.
	m.Update(key("right"))
	cmd := m.Update(key("enter"))
	require.NotNil(t, cmd)
	cmd()
	assert.Len(t, rec.calls, 1)
	assert.False(t, m.Active())
}

func TestActionMenu_CancelNeverDeletes(t *testing.T) {
	for _, k := range []string{"n", "esc", "enter"} {
		t.Run(k, func(t *testing.T) {
			rec := &deleteRecorder{}
			m := NewActionMenu(rec.del)
			m.Open(jobA)
			m.Update(key("d"))
			require.Equal(t, MenuConfirm, m.State())

			assert.Nil(t, m.Update(key(k)))
			assert.Equal(t, MenuClosed, m.State())
			assert.Empty(t, rec.calls)
		})
	}
}

func TestActionMenu_DeleteFailureStillCloses(t *testing.T) {
	rec := &deleteRecorder{err: errors.New("boom")}
	m := NewActionMenu(rec.del)
	m.Open(jobA)
	m.Update(key("d"))

	msg := m.Update(key("y"))()
	deleted := msg.(TaskDeletedMsg)
	assert.EqualError(t, deleted.Err, "boom")
	assert.Equal(t, MenuClosed, m.State())
}

func TestActionMenu_HistoryNavigatesOnce(t *testing.T) {
	rec := &deleteRecorder{}
	m := NewActionMenu(rec.del)
	m.Open(jobA)

	cmd := m.Update(key("h"))
	require.NotNil(t, cmd)
	assert.Equal(t, MenuClosed, m.State())
	assert.Equal(t, NavigateMsg{Path: "/history/job-A/42"}, cmd())
	assert.Empty(t, rec.calls)
}

func TestActionMenu_EscClosesWithoutAction(t *testing.T) {
	rec := &deleteRecorder{}
	m := NewActionMenu(rec.del)
	m.Open(jobA)

	assert.Nil(t, m.Update(key("esc")))
	assert.False(t, m.Active())
	assert.Empty(t, rec.calls)
}

func TestActionMenu_ConfirmView(t *testing.T) {
	m := NewActionMenu((&deleteRecorder{}).del)
	assert.Empty(t, m.View())

	m.Open(jobA)
	assert.Contains(t, m.View(), "See history for task")
	assert.Contains(t, m.View(), "Delete task")

	m.Update(key("d"))
	assert.Contains(t, m.View(), "Are you sure you want to delete, job-A Task-ID:42")
}
