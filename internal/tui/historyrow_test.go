package tui

import (
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"

	"github.com/fentz26/taskboard/internal/models"
)

func strp(s string) *string { return &s }

func TestFormatLogRow_Succeeded(t *testing.T) {
	finished := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	row := FormatLogRow(models.LogEntry{
		ID:           7,
		TaskName:     "job-A",
		TaskInstance: "42",
		TimeFinished: finished,
		Succeeded:    true,
	})

	assert.Equal(t, "●", row.Status)
	assert.Equal(t, "7", row.ID)
	assert.Equal(t, "42", row.Instance)
	assert.Equal(t, finished.Local().Format(dateLayout), row.Finished)
	assert.Empty(t, row.Class)
	assert.Empty(t, row.Message)
	assert.True(t, row.Succeeded)
}

func TestFormatLogRow_Failed(t *testing.T) {
	row := FormatLogRow(models.LogEntry{
		ID:               8,
		TaskInstance:     "42",
		ExceptionClass:   strp("java.lang.IllegalStateException"),
		ExceptionMessage: strp("no connection"),
	})

	assert.Equal(t, "✗", row.Status)
	assert.Equal(t, "java.lang.IllegalStateException", row.Class)
	assert.Equal(t, "no connection", row.Message)
	assert.False(t, row.Succeeded)
}

func TestFormatLogRow_InvalidDate(t *testing.T) {
	row := FormatLogRow(models.LogEntry{ID: 1})
	assert.Equal(t, "-", row.Finished)
}

func TestRelativeTime(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, "-", RelativeTime(time.Time{}, now))
	assert.Equal(t, "3 minutes ago", RelativeTime(now.Add(-3*time.Minute), now))
}

func TestRenderLogRow_TruncatesMessage(t *testing.T) {
	e := models.LogEntry{
		ID:               1,
		TaskInstance:     "42",
		ExceptionMessage: strp(strings.Repeat("x", 500)),
	}
	out := RenderLogRow(e, 120)
	assert.Contains(t, out, "...")
	assert.NotContains(t, out, strings.Repeat("x", 200))
}

func TestRenderLogDetail_StackTrace(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	e := models.LogEntry{
		TaskName:            "job-A",
		TaskInstance:        "42",
		TimeStarted:         now.Add(-time.Minute),
		DurationMs:          1500,
		ExceptionStackTrace: strp("at Foo.bar(Foo.java:1)\nat Baz.qux(Baz.java:2)"),
	}
	out := RenderLogDetail(e, now)
	assert.Contains(t, out, "job-A/42")
	assert.Contains(t, out, "1.5s")
	assert.Contains(t, out, "at Foo.bar(Foo.java:1)")
	assert.Contains(t, out, "at Baz.qux(Baz.java:2)")
}

func TestTruncateAndPad(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab...", truncate("abcdefgh", 5))
	assert.Equal(t, "ab", truncate("abcdefgh", 2))
	assert.Equal(t, "ab   ", pad("ab", 5))
}

func TestTruncate_WideRunes(t *testing.T) {
	assert.Equal(t, "日...", truncate("日本語です", 5))
	assert.Equal(t, "日", truncate("日本語", 3))
	assert.Equal(t, 8, lipgloss.Width(pad("実行インスタンス", 8)))
	assert.Equal(t, 6, lipgloss.Width(pad("日本", 6)))
}
