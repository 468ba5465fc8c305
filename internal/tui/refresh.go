package tui

import (
	"context"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fentz26/taskboard/internal/models"
	"github.com/fentz26/taskboard/internal/poll"
)

// PollResultMsg carries the outcome of a poll for Sig.
type PollResultMsg struct {
	Sig models.QueryParams
	Err error
}

// RefreshDoneMsg reports that a manual refresh and its follow-up poll
// have finished.
type RefreshDoneMsg struct {
	Sig models.QueryParams
	Err error

	from *RefreshControl
}

// RefreshControl is the refresh button with its delta badges.
type RefreshControl struct {
	rec        *poll.Reconciler
	spinner    spinner.Model
	refreshing bool
}

// NewRefreshControl wraps rec.
func NewRefreshControl(rec *poll.Reconciler) *RefreshControl {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(primaryColor)
	return &RefreshControl{rec: rec, spinner: sp}
}

// Refreshing reports whether a manual refresh is in flight.
func (r *RefreshControl) Refreshing() bool { return r.refreshing }

// Reconcile makes sig current, polling if it changed.
func (r *RefreshControl) Reconcile(sig models.QueryParams) tea.Cmd {
	return func() tea.Msg {
		_, _, err := r.rec.Reconcile(context.Background(), sig)
		return PollResultMsg{Sig: sig, Err: err}
	}
}

// Poll re-polls sig unconditionally. Used by the interval tick.
func (r *RefreshControl) Poll(sig models.QueryParams) tea.Cmd {
	return func() tea.Msg {
		_, err := r.rec.Poll(context.Background(), sig)
		return PollResultMsg{Sig: sig, Err: err}
	}
}

// Refresh runs refetch and then re-polls sig once refetch has finished.
func (r *RefreshControl) Refresh(sig models.QueryParams, refetch func(context.Context) error) tea.Cmd {
	if r.refreshing {
		return nil
	}
	r.refreshing = true
	return tea.Batch(r.spinner.Tick, func() tea.Msg {
		_, err := r.rec.Refresh(context.Background(), sig, refetch)
		return RefreshDoneMsg{Sig: sig, Err: err, from: r}
	})
}

// Update advances the spinner and clears the refreshing state. Done
// messages and spinner ticks issued by another control are ignored.
func (r *RefreshControl) Update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case RefreshDoneMsg:
		if msg.from == r {
			r.refreshing = false
		}
	case spinner.TickMsg:
		if !r.refreshing {
			return nil
		}
		var cmd tea.Cmd
		r.spinner, cmd = r.spinner.Update(msg)
		return cmd
	}
	return nil
}

// View renders the control and the badges for sig.
func (r *RefreshControl) View(sig models.QueryParams) string {
	button := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(primaryColor).
		Padding(0, 1)

	label := "⟳ Refresh"
	if r.refreshing {
		label = r.spinner.View() + " Refreshing"
	}

	var badges string
	if resp, ok := r.rec.Latest(sig); ok {
		badges = RenderIndicators(&resp)
	}
	if badges == "" {
		return button.Render(label)
	}
	return lipgloss.JoinHorizontal(lipgloss.Center, button.Render(label), "  ", badges)
}
