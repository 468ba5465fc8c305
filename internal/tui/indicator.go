package tui

import (
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/fentz26/taskboard/internal/models"
)

// Indicator is one delta badge next to the refresh control.
type Indicator struct {
	// Count is nil when no poll response has arrived yet.
	Count     *int
	Color     lipgloss.Color
	HoverText string
}

// Visible reports whether the badge has anything to show.
func (i Indicator) Visible() bool {
	return i.Count != nil && *i.Count != 0
}

// Render draws the badge, or nothing at all when it is not visible.
func (i Indicator) Render() string {
	if !i.Visible() {
		return ""
	}
	badge := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#111827")).
		Background(i.Color).
		Padding(0, 1).
		Render(strconv.Itoa(*i.Count))
	return badge + labelStyle.Render(i.HoverText)
}

// DeltaIndicators maps a poll response to badges in display order:
// failed, then succeeded or running, then added. Succeeded takes the
// middle slot whenever it is non-zero; running is shown only otherwise.
func DeltaIndicators(resp *models.PollResponse) []Indicator {
	count := func(f func(models.PollResponse) int) *int {
		if resp == nil {
			return nil
		}
		n := f(*resp)
		return &n
	}

	out := []Indicator{{
		Count:     count(func(r models.PollResponse) int { return r.NewFailures }),
		Color:     errorColor,
		HoverText: " failed since refresh",
	}}
	if resp != nil && resp.NewSucceeded != 0 {
		out = append(out, Indicator{
			Count:     count(func(r models.PollResponse) int { return r.NewSucceeded }),
			Color:     successColor,
			HoverText: " succeeded since refresh",
		})
	} else {
		out = append(out, Indicator{
			Count:     count(func(r models.PollResponse) int { return r.NewRunning }),
			Color:     runningColor,
			HoverText: " running since refresh",
		})
	}
	out = append(out, Indicator{
		Count:     count(func(r models.PollResponse) int { return r.NewTasks }),
		Color:     secondaryColor,
		HoverText: " added since refresh",
	})
	return out
}

// RenderIndicators joins the visible badges.
func RenderIndicators(resp *models.PollResponse) string {
	var parts []string
	for _, ind := range DeltaIndicators(resp) {
		if s := ind.Render(); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "  ")
}
