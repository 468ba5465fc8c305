package tui

import (
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/fentz26/taskboard/internal/models"
)

var (
	statusScheduled = lipgloss.NewStyle().Foreground(warningColor)
	statusRunning   = lipgloss.NewStyle().Foreground(runningColor)
	statusFailed    = lipgloss.NewStyle().Foreground(errorColor)
)

// Column widths of a task row.
const (
	colTaskStatus   = 11
	colTaskName     = 24
	colTaskInstance = 20
	colTaskNext     = 18
	colTaskPicked   = 16
)

func formatStatus(status models.TaskStatus) string {
	switch status {
	case models.TaskStatusScheduled:
		return statusScheduled.Render(pad("○ SCHEDULED", colTaskStatus))
	case models.TaskStatusRunning:
		return statusRunning.Render(pad("◑ RUNNING", colTaskStatus))
	case models.TaskStatusFailed:
		return statusFailed.Render(pad("✗ FAILED", colTaskStatus))
	default:
		return pad(string(status), colTaskStatus)
	}
}

func formatStatusPlain(status models.TaskStatus) string {
	switch status {
	case models.TaskStatusScheduled:
		return "○"
	case models.TaskStatusRunning:
		return "◑"
	case models.TaskStatusFailed:
		return "✗"
	default:
		return "?"
	}
}

// RenderTaskHeader draws the column titles matching renderTaskRow.
func RenderTaskHeader() string {
	return headerCellStyle.Render(fmt.Sprintf("  %s %s %s %s %s %s",
		pad("STATUS", colTaskStatus),
		pad("TASK", colTaskName),
		pad("INSTANCE", colTaskInstance),
		pad("NEXT RUN", colTaskNext),
		pad("PICKED BY", colTaskPicked),
		"FAILURES",
	))
}

func renderTaskRow(t models.Task, selected bool, now time.Time) string {
	picked := t.PickedBy
	if picked == "" {
		picked = "-"
	}
	cols := fmt.Sprintf("%s %s %s %s %s",
		pad(t.TaskName, colTaskName),
		pad(t.TaskInstance, colTaskInstance),
		pad(RelativeTime(t.ExecutionTime, now), colTaskNext),
		pad(picked, colTaskPicked),
		strconv.Itoa(t.ConsecutiveFailures),
	)
	if selected {
		return selectedStyle.Render(fmt.Sprintf("▶ %s %s", pad(formatStatusPlain(t.Status())+" "+string(t.Status()), colTaskStatus), cols))
	}
	return rowStyle.Render(formatStatus(t.Status()) + " " + cols)
}
