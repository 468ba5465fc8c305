package tui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/mattn/go-runewidth"

	"github.com/fentz26/taskboard/internal/models"
)

// dateLayout is how timestamps are shown in history rows.
const dateLayout = "2006-01-02 15:04:05"

// Column widths of a history row.
const (
	colStatus   = 3
	colID       = 8
	colInstance = 16
	colTime     = 19
	colClass    = 28
)

// LogRow holds the formatted columns of one history entry.
type LogRow struct {
	Status    string
	ID        string
	Instance  string
	Finished  string
	Class     string
	Message   string
	Succeeded bool
}

// FormatLogRow maps a log entry to its columns.
func FormatLogRow(e models.LogEntry) LogRow {
	row := LogRow{
		Status:    "✗",
		ID:        strconv.FormatInt(e.ID, 10),
		Instance:  e.TaskInstance,
		Finished:  FormatTime(e.TimeFinished),
		Succeeded: e.Succeeded,
	}
	if e.Succeeded {
		row.Status = "●"
	}
	if e.ExceptionClass != nil {
		row.Class = *e.ExceptionClass
	}
	if e.ExceptionMessage != nil {
		row.Message = *e.ExceptionMessage
	}
	return row
}

// FormatTime renders t in local time. The zero time, which is what a
// malformed date decodes to, renders as "-".
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(dateLayout)
}

// RelativeTime renders t relative to now, e.g. "3 minutes ago".
func RelativeTime(t time.Time, now time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return humanize.RelTime(t, now, "ago", "from now")
}

// RenderLogRow draws one history entry as a single line of fixed columns.
func RenderLogRow(e models.LogEntry, width int) string {
	row := FormatLogRow(e)

	status := lipgloss.NewStyle().Foreground(errorColor).Render(pad(row.Status, colStatus))
	if row.Succeeded {
		status = lipgloss.NewStyle().Foreground(successColor).Render(pad(row.Status, colStatus))
	}

	fixed := colStatus + colID + colInstance + colTime + colClass + 5
	msgWidth := width - fixed - 4
	if msgWidth < 10 {
		msgWidth = 10
	}

	return fmt.Sprintf("%s %s %s %s %s %s",
		status,
		pad(row.ID, colID),
		pad(row.Instance, colInstance),
		pad(row.Finished, colTime),
		pad(row.Class, colClass),
		truncate(row.Message, msgWidth),
	)
}

// RenderLogHeader draws the column titles matching RenderLogRow.
func RenderLogHeader() string {
	return headerCellStyle.Render(fmt.Sprintf("%s %s %s %s %s %s",
		pad("", colStatus),
		pad("ID", colID),
		pad("INSTANCE", colInstance),
		pad("FINISHED", colTime),
		pad("EXCEPTION", colClass),
		"MESSAGE",
	))
}

// RenderLogDetail is the expanded part of a history row.
func RenderLogDetail(e models.LogEntry, now time.Time) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("    %s %s\n", labelStyle.Render("Task:"), e.TaskName+"/"+e.TaskInstance))
	b.WriteString(fmt.Sprintf("    %s %s (%s)\n", labelStyle.Render("Started:"), FormatTime(e.TimeStarted), RelativeTime(e.TimeStarted, now)))
	b.WriteString(fmt.Sprintf("    %s %s\n", labelStyle.Render("Duration:"), (time.Duration(e.DurationMs) * time.Millisecond).String()))
	if e.PickedBy != "" {
		b.WriteString(fmt.Sprintf("    %s %s\n", labelStyle.Render("Picked by:"), e.PickedBy))
	}
	if e.TaskData != "" {
		b.WriteString(fmt.Sprintf("    %s %s\n", labelStyle.Render("Data:"), e.TaskData))
	}
	if e.ExceptionStackTrace != nil && *e.ExceptionStackTrace != "" {
		b.WriteString("    " + labelStyle.Render("Stack trace:") + "\n")
		for _, line := range strings.Split(*e.ExceptionStackTrace, "\n") {
			b.WriteString("      " + lipgloss.NewStyle().Foreground(errorColor).Render(line) + "\n")
		}
	}
	return b.String()
}

func pad(s string, width int) string {
	s = truncate(s, width)
	if n := lipgloss.Width(s); n < width {
		s += strings.Repeat(" ", width-n)
	}
	return s
}

// truncate shortens s to at most width terminal cells.
func truncate(s string, width int) string {
	if runewidth.StringWidth(s) <= width {
		return s
	}
	if width <= 3 {
		return runewidth.Truncate(s, width, "")
	}
	return runewidth.Truncate(s, width, "...")
}
