package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Suggestions completes task names while searching.
type Suggestions struct {
	candidates  []string
	filtered    []string
	selectedIdx int
	visible     bool
}

// NewSuggestions creates an empty, hidden dropdown.
func NewSuggestions() *Suggestions {
	return &Suggestions{}
}

// SetCandidates replaces the names offered, de-duplicated and sorted.
func (s *Suggestions) SetCandidates(names []string) {
	seen := make(map[string]bool, len(names))
	s.candidates = s.candidates[:0]
	for _, n := range names {
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		s.candidates = append(s.candidates, n)
	}
	sort.Strings(s.candidates)
}

// Update filters the candidates by input.
func (s *Suggestions) Update(input string) {
	query := strings.ToLower(strings.TrimSpace(input))
	if query == "" {
		s.Hide()
		return
	}

	s.filtered = s.filtered[:0]
	for _, c := range s.candidates {
		if strings.Contains(strings.ToLower(c), query) && !strings.EqualFold(c, query) {
			s.filtered = append(s.filtered, c)
		}
	}
	s.visible = true
	s.selectedIdx = 0
}

// Hide closes the dropdown.
func (s *Suggestions) Hide() {
	s.visible = false
	s.filtered = nil
	s.selectedIdx = 0
}

// Next moves to the next suggestion
func (s *Suggestions) Next() {
	if len(s.filtered) == 0 {
		return
	}
	s.selectedIdx = (s.selectedIdx + 1) % len(s.filtered)
}

// Prev moves to the previous suggestion
func (s *Suggestions) Prev() {
	if len(s.filtered) == 0 {
		return
	}
	s.selectedIdx--
	if s.selectedIdx < 0 {
		s.selectedIdx = len(s.filtered) - 1
	}
}

// Selected returns the highlighted name.
func (s *Suggestions) Selected() (string, bool) {
	if !s.IsVisible() || s.selectedIdx >= len(s.filtered) {
		return "", false
	}
	return s.filtered[s.selectedIdx], true
}

// IsVisible returns whether suggestions are currently visible
func (s *Suggestions) IsVisible() bool {
	return s.visible && len(s.filtered) > 0
}

// Render renders the suggestions dropdown
func (s *Suggestions) Render(width int) string {
	if !s.IsVisible() {
		return ""
	}

	var b strings.Builder

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(secondaryColor).
		Padding(0, 1).
		Width(max(width-4, 20))

	itemStyle := lipgloss.NewStyle().Foreground(fgColor)
	descStyle := lipgloss.NewStyle().Foreground(mutedColor).Italic(true)
	highlight := lipgloss.NewStyle().Background(primaryColor).Foreground(fgColor).Bold(true)

	b.WriteString(lipgloss.NewStyle().Bold(true).Foreground(primaryColor).Render("Task names"))
	b.WriteString("\n")

	// Show max 5 suggestions
	maxVisible := 5
	for i, name := range s.filtered {
		if i >= maxVisible {
			b.WriteString(descStyle.Render(fmt.Sprintf("  ... and %d more", len(s.filtered)-maxVisible)))
			break
		}
		if i == s.selectedIdx {
			b.WriteString(highlight.Render("▶ " + name))
		} else {
			b.WriteString(itemStyle.Render("  " + name))
		}
		b.WriteString("\n")
	}

	return boxStyle.Render(b.String())
}
