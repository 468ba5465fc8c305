// Package tui provides the interactive terminal dashboard for taskboard.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/sirupsen/logrus"

	"github.com/fentz26/taskboard/internal/feed"
	"github.com/fentz26/taskboard/internal/models"
	"github.com/fentz26/taskboard/internal/poll"
)

// Options configures the dashboard.
type Options struct {
	// PollInterval is how often the delta badges are re-polled.
	PollInterval time.Duration
	// PageSize is the number of rows fetched per page.
	PageSize int
	// Route is the initial route, "/" when empty.
	Route  string
	Logger logrus.FieldLogger
}

// App is the main TUI application model.
type App struct {
	api  API
	opts Options
	log  logrus.FieldLogger
	now  func() time.Time

	route string
	view  view
	back  []string

	taskFilterIdx int
	logFilterIdx  int
	sortIdx       int
	asc           bool
	logAsc        bool

	tasks    *feed.Feed[models.Task]
	logs     *feed.Feed[models.LogEntry]
	selected int
	expanded bool
	loading  bool

	search      *SearchBar
	suggestions *Suggestions
	menu        *ActionMenu
	taskRefresh *RefreshControl
	logRefresh  *RefreshControl

	width        int
	height       int
	message      string
	daemonOnline bool
}

// New creates a new TUI application.
func New(api API, opts Options) *App {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	if opts.PageSize <= 0 {
		opts.PageSize = 50
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	log := opts.Logger.WithField("component", "tui")

	a := &App{
		api:         api,
		opts:        opts,
		log:         log,
		now:         time.Now,
		asc:         true,
		search:      NewSearchBar(),
		suggestions: NewSuggestions(),
		menu:        NewActionMenu(api.DeleteTask),
		taskRefresh: NewRefreshControl(poll.New(api.PollTasks, poll.WithLogger(log))),
		logRefresh:  NewRefreshControl(poll.New(api.PollLogs, poll.WithLogger(log))),
		width:       120,
		height:      30,
	}
	a.tasks = feed.New(a.taskFetcher(models.QueryParams{}))
	a.logs = feed.New(a.logFetcher(models.QueryParams{}))

	a.route = tasksPath
	if v, ok := resolve(opts.Route); ok && opts.Route != "" {
		a.route = opts.Route
		a.view = v
	}
	return a
}

// Run starts the TUI application.
func (a *App) Run() error {
	p := tea.NewProgram(a, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// Init implements tea.Model
func (a *App) Init() tea.Cmd {
	return tea.Batch(
		a.checkDaemon(),
		a.reload(),
		a.tickCmd(),
	)
}

// Route is the path of the view on screen.
func (a *App) Route() string { return a.route }

// Update implements tea.Model
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return a, a.handleKey(msg)

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height

	case NavigateMsg:
		return a, a.navigate(msg.Path, true)

	case pageLoadedMsg:
		return a, a.pageLoaded(msg)

	case PollResultMsg:
		if msg.Err != nil {
			a.log.WithError(msg.Err).WithField("signature", msg.Sig.Key()).Debug("poll failed")
		}

	case RefreshDoneMsg:
		// The view may have changed since the refresh started.
		a.taskRefresh.Update(msg)
		a.logRefresh.Update(msg)
		a.clampSelection()
		if msg.Err != nil {
			a.message = "Error: " + msg.Err.Error()
		}

	case TaskDeletedMsg:
		if msg.Err != nil {
			a.message = "Error: " + msg.Err.Error()
			return a, nil
		}
		a.message = fmt.Sprintf("✓ Deleted %s", msg.ID)
		return a, a.refreshNow()

	case spinner.TickMsg:
		return a, tea.Batch(a.taskRefresh.Update(msg), a.logRefresh.Update(msg))

	case pollTickMsg:
		return a, tea.Batch(a.refresh().Poll(a.signature()), a.tickCmd())

	case daemonStatusMsg:
		a.daemonOnline = msg.online
	}
	return a, nil
}

// handleKey routes a key press. An open action menu consumes the key
// before anything else, so keys aimed at the menu never act on the row
// behind it.
func (a *App) handleKey(msg tea.KeyMsg) tea.Cmd {
	if msg.String() == "ctrl+c" {
		return tea.Quit
	}
	if a.menu.Active() {
		return a.menu.Update(msg)
	}
	if a.search.Focused() {
		return a.handleSearchKey(msg)
	}

	switch msg.String() {
	case "q":
		return tea.Quit
	case "up", "k":
		if a.selected > 0 {
			a.selected--
			a.expanded = false
		}
	case "down", "j":
		if a.selected < a.rowCount()-1 {
			a.selected++
			a.expanded = false
		}
		if a.selected >= a.rowCount()-1 {
			return a.loadMoreIfNeeded()
		}
	case "enter", " ":
		a.expanded = !a.expanded
	case "m", ".":
		if a.view.history {
			break
		}
		if items := a.tasks.Items(); a.selected >= 0 && a.selected < len(items) {
			a.menu.Open(items[a.selected].ID())
		}
	case "f":
		if a.view.history {
			a.logFilterIdx = (a.logFilterIdx + 1) % len(models.LogFilters)
		} else {
			a.taskFilterIdx = (a.taskFilterIdx + 1) % len(models.TaskFilters)
		}
		return a.reload()
	case "s":
		if !a.view.history {
			a.sortIdx = (a.sortIdx + 1) % len(models.SortFields)
			return a.reload()
		}
	case "o":
		if a.view.history {
			a.logAsc = !a.logAsc
		} else {
			a.asc = !a.asc
		}
		return a.reload()
	case "/":
		return a.search.Focus()
	case "x":
		if a.search.Terms() != (SearchTerms{}) {
			a.search.Clear()
			return a.reload()
		}
	case "r":
		return a.refreshNow()
	case "h":
		return a.navigate(historyPath, true)
	case "t":
		return a.navigate(tasksPath, true)
	case "esc", "backspace":
		if n := len(a.back); n > 0 {
			prev := a.back[n-1]
			a.back = a.back[:n-1]
			return a.navigate(prev, false)
		}
	}
	return nil
}

func (a *App) handleSearchKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "esc":
		a.search.Blur()
		a.suggestions.Hide()
		return nil
	case "enter":
		if name, ok := a.suggestions.Selected(); ok && a.search.EditingName() {
			a.search.SetName(name)
			a.suggestions.Hide()
			return nil
		}
		a.search.Submit()
		a.suggestions.Hide()
		return a.reload()
	case "up":
		a.suggestions.Prev()
		return nil
	case "down":
		a.suggestions.Next()
		return nil
	}

	cmd := a.search.Update(msg)
	if a.search.EditingName() {
		a.suggestions.Update(a.search.Value())
	} else {
		a.suggestions.Hide()
	}
	return cmd
}

// navigate switches to the view at path.
func (a *App) navigate(path string, push bool) tea.Cmd {
	if path == "" {
		path = tasksPath
	}
	v, ok := resolve(path)
	if !ok {
		a.message = "Error: unknown route " + path
		return nil
	}
	if push && path != a.route {
		a.back = append(a.back, a.route)
	}
	a.route = path
	a.view = v
	a.menu.Close()
	return a.reload()
}

// signature is the query signature of the view on screen.
func (a *App) signature() models.QueryParams {
	terms := a.search.Terms()
	q := models.QueryParams{
		SearchTermTaskName:     terms.Name,
		SearchTermTaskInstance: terms.Instance,
		TaskNameExactMatch:     terms.NameExact,
		TaskInstanceExactMatch: terms.InstanceExact,
	}
	if a.view.history {
		q.Filter = models.LogFilters[a.logFilterIdx]
		q.Sorting = models.SortDefault
		q.Asc = a.logAsc
		if a.view.task != nil {
			q.TaskName = a.view.task.Name
			q.TaskID = a.view.task.Instance
		}
	} else {
		q.Filter = models.TaskFilters[a.taskFilterIdx]
		q.Sorting = models.SortFields[a.sortIdx]
		q.Asc = a.asc
	}
	return q.Normalize()
}

func (a *App) refresh() *RefreshControl {
	if a.view.history {
		return a.logRefresh
	}
	return a.taskRefresh
}

func (a *App) rowCount() int {
	if a.view.history {
		return len(a.logs.Items())
	}
	return len(a.tasks.Items())
}

// clampSelection keeps the cursor on a row after the list shrank.
func (a *App) clampSelection() {
	if last := a.rowCount() - 1; a.selected > last {
		a.selected = max(0, last)
		a.expanded = false
	}
}

// --- Data loading ---

type pageLoadedMsg struct {
	sig   models.QueryParams
	first bool
	err   error
}

type pollTickMsg time.Time

type daemonStatusMsg struct {
	online bool
}

func (a *App) taskFetcher(sig models.QueryParams) feed.FetchFunc[models.Task] {
	return func(ctx context.Context, page int) (models.Page[models.Task], error) {
		return a.api.ListTasks(ctx, sig, page, a.opts.PageSize)
	}
}

func (a *App) logFetcher(sig models.QueryParams) feed.FetchFunc[models.LogEntry] {
	return func(ctx context.Context, page int) (models.Page[models.LogEntry], error) {
		return a.api.ListLogs(ctx, sig, page, a.opts.PageSize)
	}
}

// reload drops the loaded rows and fetches the first page for the
// current signature.
func (a *App) reload() tea.Cmd {
	sig := a.signature()
	a.selected = 0
	a.expanded = false
	if a.view.history {
		a.logs.Reset(a.logFetcher(sig))
	} else {
		a.tasks.Reset(a.taskFetcher(sig))
	}
	return a.load(sig, true)
}

func (a *App) loadMoreIfNeeded() tea.Cmd {
	if a.loading {
		return nil
	}
	if a.view.history && !a.logs.HasMore() || !a.view.history && !a.tasks.HasMore() {
		return nil
	}
	return a.load(a.signature(), false)
}

func (a *App) load(sig models.QueryParams, first bool) tea.Cmd {
	a.loading = true
	history := a.view.history
	return func() tea.Msg {
		var err error
		if history {
			_, err = a.logs.LoadMore(context.Background())
		} else {
			_, err = a.tasks.LoadMore(context.Background())
		}
		return pageLoadedMsg{sig: sig, first: first, err: err}
	}
}

func (a *App) pageLoaded(msg pageLoadedMsg) tea.Cmd {
	if msg.sig != a.signature() {
		// A page for a signature no longer on screen.
		return nil
	}
	a.loading = false
	switch {
	case errors.Is(msg.err, feed.ErrStale), errors.Is(msg.err, feed.ErrNoMorePages):
		return nil
	case msg.err != nil:
		a.message = "Error: " + msg.err.Error()
		return nil
	}
	a.clampSelection()

	if !a.view.history {
		var names []string
		for _, t := range a.tasks.Items() {
			names = append(names, t.TaskName)
		}
		a.suggestions.SetCandidates(names)
	}
	if msg.first {
		return a.refresh().Reconcile(msg.sig)
	}
	return nil
}

// refreshNow refetches every loaded page and then re-polls.
func (a *App) refreshNow() tea.Cmd {
	sig := a.signature()
	refetch := func(ctx context.Context) error {
		_, err := a.tasks.Refetch(ctx)
		return err
	}
	if a.view.history {
		refetch = func(ctx context.Context) error {
			_, err := a.logs.Refetch(ctx)
			return err
		}
	}
	return a.refresh().Refresh(sig, refetch)
}

func (a *App) tickCmd() tea.Cmd {
	return tea.Tick(a.opts.PollInterval, func(t time.Time) tea.Msg {
		return pollTickMsg(t)
	})
}

func (a *App) checkDaemon() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_, err := a.api.Health(ctx)
		return daemonStatusMsg{online: err == nil}
	}
}

// --- Rendering ---

// View implements tea.Model
func (a *App) View() string {
	var b strings.Builder
	sig := a.signature()

	daemonStatus := onlineStyle.Render("● DAEMON")
	if !a.daemonOnline {
		daemonStatus = offlineStyle.Render("○ DAEMON")
	}
	header := titleStyle.Render("taskboard") + "  " + daemonStatus + "  " +
		lipgloss.NewStyle().Foreground(cyanColor).Render(a.breadcrumb())
	b.WriteString(header + "\n")
	b.WriteString(strings.Repeat("─", max(a.width, 1)) + "\n")

	b.WriteString(a.refresh().View(sig) + "  " + labelStyle.Render(a.controlsLabel(sig)) + "\n")
	b.WriteString(a.search.View() + "\n")
	if a.suggestions.IsVisible() {
		b.WriteString(a.suggestions.Render(a.width) + "\n")
	}

	contentHeight := a.height - 12
	if contentHeight < 5 {
		contentHeight = 5
	}
	if a.view.history {
		b.WriteString(a.renderHistory(contentHeight))
	} else {
		b.WriteString(a.renderTasks(contentHeight))
	}

	if a.menu.Active() {
		b.WriteString("\n" + a.menu.View())
	}

	// Message bar
	if a.message != "" {
		msgStyle := lipgloss.NewStyle().Foreground(successColor)
		if strings.HasPrefix(a.message, "Error") {
			msgStyle = lipgloss.NewStyle().Foreground(errorColor)
		}
		b.WriteString("\n" + msgStyle.Render(a.message))
	}
	b.WriteString("\n")

	b.WriteString(statusBarStyle.Width(a.width).Render(a.statusLine()))
	return b.String()
}

func (a *App) breadcrumb() string {
	switch {
	case a.view.task != nil:
		return "History › " + a.view.task.String()
	case a.view.history:
		return "History"
	default:
		return "Tasks"
	}
}

func (a *App) controlsLabel(sig models.QueryParams) string {
	dir := "asc"
	if !sig.Asc {
		dir = "desc"
	}
	if a.view.history {
		return fmt.Sprintf("Filter: [%s]  Order: [%s]", sig.Filter, dir)
	}
	return fmt.Sprintf("Filter: [%s]  Sort: [%s %s]", sig.Filter, sig.Sorting, dir)
}

func (a *App) statusLine() string {
	if a.view.history {
		return fmt.Sprintf(" Runs: %d/%d | ↑↓:nav | Enter:details | f:filter | o:order | /:search | r:refresh | t:tasks | Esc:back | q:quit",
			len(a.logs.Items()), a.logs.Total())
	}
	return fmt.Sprintf(" Tasks: %d/%d | ↑↓:nav | Enter:details | m:actions | f:filter | s:sort | o:order | /:search | r:refresh | h:history | q:quit",
		len(a.tasks.Items()), a.tasks.Total())
}

// window returns the slice bounds of rows to draw around the selection.
func (a *App) window(total, height int) (int, int) {
	if total <= height {
		return 0, total
	}
	start := a.selected - height/2
	if start < 0 {
		start = 0
	}
	end := start + height
	if end > total {
		end = total
		start = max(0, end-height)
	}
	return start, end
}

func (a *App) renderTasks(height int) string {
	items := a.tasks.Items()
	if len(items) == 0 {
		if a.loading {
			return "\n  Loading tasks...\n"
		}
		return "\n  No tasks found.\n"
	}

	now := a.now()
	var lines []string
	lines = append(lines, RenderTaskHeader())
	start, end := a.window(len(items), height-1)
	for i := start; i < end; i++ {
		lines = append(lines, renderTaskRow(items[i], i == a.selected, now))
		if i == a.selected && a.expanded {
			lines = append(lines, renderTaskDetail(items[i], now))
		}
	}
	if end == len(items) && a.tasks.HasMore() {
		lines = append(lines, helpStyle.Render("  Loading more..."))
	}
	return strings.Join(lines, "\n")
}

func (a *App) renderHistory(height int) string {
	items := a.logs.Items()
	if len(items) == 0 {
		if a.loading {
			return "\n  Loading history...\n"
		}
		return "\n  No executions found.\n"
	}

	now := a.now()
	var lines []string
	lines = append(lines, "  "+RenderLogHeader())
	start, end := a.window(len(items), height-1)
	for i := start; i < end; i++ {
		row := RenderLogRow(items[i], a.width)
		if i == a.selected {
			lines = append(lines, selectedStyle.Render("▶ ")+row)
		} else {
			lines = append(lines, "  "+row)
		}
		if i == a.selected && a.expanded {
			lines = append(lines, RenderLogDetail(items[i], now))
		}
	}
	if end == len(items) && a.logs.HasMore() {
		lines = append(lines, helpStyle.Render("  Loading more..."))
	}
	return strings.Join(lines, "\n")
}
