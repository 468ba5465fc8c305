package tui

import (
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	searchBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("255")).
			Padding(0, 1)

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true)
)

// SearchTerms are the search fields applied to a listing.
type SearchTerms struct {
	Name          string
	Instance      string
	NameExact     bool
	InstanceExact bool
}

const (
	fieldName = iota
	fieldInstance
)

// SearchBar edits the task name and instance search terms.
type SearchBar struct {
	inputs  [2]textinput.Model
	exact   [2]bool
	field   int
	focused bool
	applied SearchTerms
}

// NewSearchBar creates an unfocused search bar.
func NewSearchBar() *SearchBar {
	name := textinput.New()
	name.Placeholder = "task name"
	name.CharLimit = 256
	name.Width = 30

	instance := textinput.New()
	instance.Placeholder = "task instance"
	instance.CharLimit = 256
	instance.Width = 30

	return &SearchBar{inputs: [2]textinput.Model{name, instance}}
}

// Focused reports whether the bar is taking input.
func (m *SearchBar) Focused() bool { return m.focused }

// Focus starts editing, beginning with the name field.
func (m *SearchBar) Focus() tea.Cmd {
	m.focused = true
	m.field = fieldName
	m.inputs[fieldInstance].Blur()
	return m.inputs[fieldName].Focus()
}

// Blur stops editing and restores the applied terms.
func (m *SearchBar) Blur() {
	m.focused = false
	m.inputs[fieldName].Blur()
	m.inputs[fieldInstance].Blur()
	m.set(m.applied)
}

// Submit applies the edited terms and stops editing.
func (m *SearchBar) Submit() SearchTerms {
	m.applied = m.current()
	m.Blur()
	return m.applied
}

// Clear drops every term.
func (m *SearchBar) Clear() SearchTerms {
	m.applied = SearchTerms{}
	m.set(m.applied)
	return m.applied
}

// Terms returns the applied terms.
func (m *SearchBar) Terms() SearchTerms { return m.applied }

// SetName replaces the name being edited, e.g. from a suggestion.
func (m *SearchBar) SetName(name string) {
	m.inputs[fieldName].SetValue(name)
	m.inputs[fieldName].CursorEnd()
}

// EditingName reports whether the name field has focus.
func (m *SearchBar) EditingName() bool { return m.focused && m.field == fieldName }

// Value is the text of the focused field.
func (m *SearchBar) Value() string { return m.inputs[m.field].Value() }

func (m *SearchBar) current() SearchTerms {
	return SearchTerms{
		Name:          m.inputs[fieldName].Value(),
		Instance:      m.inputs[fieldInstance].Value(),
		NameExact:     m.exact[fieldName],
		InstanceExact: m.exact[fieldInstance],
	}
}

func (m *SearchBar) set(t SearchTerms) {
	m.inputs[fieldName].SetValue(t.Name)
	m.inputs[fieldInstance].SetValue(t.Instance)
	m.exact = [2]bool{t.NameExact, t.InstanceExact}
}

// Update handles editing keys. Enter and esc are left to the caller.
func (m *SearchBar) Update(msg tea.Msg) tea.Cmd {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "tab", "shift+tab":
			m.inputs[m.field].Blur()
			m.field = 1 - m.field
			return m.inputs[m.field].Focus()
		case "ctrl+e":
			m.exact[m.field] = !m.exact[m.field]
			return nil
		}
	}

	var cmd tea.Cmd
	m.inputs[m.field], cmd = m.inputs[m.field].Update(msg)
	return cmd
}

// View renders the search bar.
func (m *SearchBar) View() string {
	if !m.focused {
		t := m.applied
		if t == (SearchTerms{}) {
			return searchBarStyle.Render("Press / to search by task name or instance")
		}
		return searchBarStyle.Render("Search: " + describeTerm("name", t.Name, t.NameExact) + "  " +
			describeTerm("instance", t.Instance, t.InstanceExact) + "  (x to clear)")
	}

	field := func(i int, label string) string {
		exact := "~"
		if m.exact[i] {
			exact = "="
		}
		return promptStyle.Render(label+exact+" ") + m.inputs[i].View()
	}
	return inputBoxStyle.Render(field(fieldName, "name") + "  " + field(fieldInstance, "instance") +
		helpStyle.Render("  tab switch • ctrl+e exact • enter apply • esc cancel"))
}

func describeTerm(label, value string, exact bool) string {
	if value == "" {
		return label + ": any"
	}
	if exact {
		return label + " = " + value
	}
	return label + " ~ " + value
}
