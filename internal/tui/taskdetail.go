package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/fentz26/taskboard/internal/models"
)

var (
	detailHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("205")).
				BorderStyle(lipgloss.NormalBorder()).
				BorderBottom(true).
				BorderForeground(lipgloss.Color("240"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("255"))
)

// renderTaskDetail is the expanded part of a task row.
func renderTaskDetail(t models.Task, now time.Time) string {
	var b strings.Builder
	b.WriteString(detailHeaderStyle.Render(fmt.Sprintf("%s / %s", t.TaskName, t.TaskInstance)) + "\n")

	field := func(label, value string) {
		b.WriteString(fmt.Sprintf("  %s %s\n", labelStyle.Render(fmt.Sprintf("%-14s", label+":")), valueStyle.Render(value)))
	}
	optional := func(label string, ts *time.Time) {
		if ts == nil {
			field(label, "-")
			return
		}
		field(label, FormatTime(*ts)+" ("+RelativeTime(*ts, now)+")")
	}

	field("Status", string(t.Status()))
	field("Execution", FormatTime(t.ExecutionTime)+" ("+RelativeTime(t.ExecutionTime, now)+")")
	if t.Picked {
		field("Picked by", t.PickedBy)
		optional("Heartbeat", t.LastHeartbeat)
	}
	optional("Last success", t.LastSuccess)
	optional("Last failure", t.LastFailure)
	field("Failures", fmt.Sprintf("%d consecutive", t.ConsecutiveFailures))
	field("Version", fmt.Sprintf("%d", t.Version))
	if t.TaskData != "" {
		field("Data", t.TaskData)
	}
	return b.String()
}
