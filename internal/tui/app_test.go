package tui

import (
	"context"
	"sync"
	"testing"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fentz26/taskboard/internal/client"
	"github.com/fentz26/taskboard/internal/models"
)

// fakeAPI serves canned rows and records calls in order.
type fakeAPI struct {
	mu      sync.Mutex
	calls   []string
	tasks   []models.Task
	logs    []models.LogEntry
	poll    models.PollResponse
	deletes []deleteCall
	logSigs []models.QueryParams
}

func (f *fakeAPI) note(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeAPI) order() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeAPI) ListTasks(_ context.Context, _ models.QueryParams, page, _ int) (models.Page[models.Task], error) {
	f.note("list")
	f.mu.Lock()
	tasks := append([]models.Task(nil), f.tasks...)
	f.mu.Unlock()
	if page > 0 {
		return models.Page[models.Task]{NumberOfItems: len(tasks), NumberOfPages: 1}, nil
	}
	return models.Page[models.Task]{Items: tasks, NumberOfItems: len(tasks), NumberOfPages: 1}, nil
}

func (f *fakeAPI) ListLogs(_ context.Context, q models.QueryParams, _, _ int) (models.Page[models.LogEntry], error) {
	f.note("logs")
	f.mu.Lock()
	f.logSigs = append(f.logSigs, q)
	f.mu.Unlock()
	return models.Page[models.LogEntry]{Items: f.logs, NumberOfItems: len(f.logs), NumberOfPages: 1}, nil
}

func (f *fakeAPI) PollTasks(context.Context, models.QueryParams) (models.PollResponse, error) {
	f.note("poll")
	return f.poll, nil
}

func (f *fakeAPI) PollLogs(context.Context, models.QueryParams) (models.PollResponse, error) {
	f.note("poll-logs")
	return f.poll, nil
}

func (f *fakeAPI) DeleteTask(_ context.Context, instance, name string) error {
	f.note("delete")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, deleteCall{instance: instance, name: name})
	kept := f.tasks[:0:0]
	for _, t := range f.tasks {
		if t.TaskName != name || t.TaskInstance != instance {
			kept = append(kept, t)
		}
	}
	f.tasks = kept
	return nil
}

func (f *fakeAPI) Health(context.Context) (*client.HealthResponse, error) {
	return &client.HealthResponse{OK: true}, nil
}

func (f *fakeAPI) count(call string) int {
	n := 0
	for _, c := range f.order() {
		if c == call {
			n++
		}
	}
	return n
}

// run executes cmd and feeds every resulting message back into the app
// until no commands remain. Spinner ticks are dropped.
func run(a *App, cmd tea.Cmd) {
	queue := []tea.Cmd{cmd}
	for len(queue) > 0 {
		c := queue[0]
		queue = queue[1:]
		if c == nil {
			continue
		}
		switch msg := c().(type) {
		case tea.BatchMsg:
			queue = append(queue, msg...)
		case nil:
		default:
			if _, ok := msg.(spinner.TickMsg); ok {
				continue
			}
			_, next := a.Update(msg)
			queue = append(queue, next)
		}
	}
}

func newTestApp(t *testing.T, api *fakeAPI) *App {
	t.Helper()
	log, _ := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	a := New(api, Options{PageSize: 10, Logger: log})
	run(a, a.reload())
	return a
}

func sampleTasks() []models.Task {
	return []models.Task{
		{TaskName: "job-A", TaskInstance: "42"},
		{TaskName: "job-B", TaskInstance: "7"},
	}
}

func TestApp_FirstPageThenPoll(t *testing.T) {
	api := &fakeAPI{tasks: sampleTasks(), poll: models.PollResponse{NewFailures: 2}}
	a := newTestApp(t, api)

	assert.Equal(t, []string{"list", "poll"}, api.order())
	assert.Len(t, a.tasks.Items(), 2)
	assert.Contains(t, a.View(), "failed since refresh")
}

func TestApp_MenuConsumesKeys(t *testing.T) {
	api := &fakeAPI{tasks: sampleTasks()}
	a := newTestApp(t, api)

	run(a, a.handleKey(key("m")))
	require.True(t, a.menu.Active())

	// Keys aimed at the menu leave the row alone.
	run(a, a.handleKey(key("down")))
	assert.Equal(t, 0, a.selected)
	assert.False(t, a.expanded)

	run(a, a.handleKey(key("esc")))
	assert.False(t, a.menu.Active())
	assert.False(t, a.expanded)
	assert.Equal(t, "/", a.Route())
}

func TestApp_DeleteThroughMenu(t *testing.T) {
	api := &fakeAPI{tasks: sampleTasks()}
	a := newTestApp(t, api)

	run(a, a.handleKey(key("m")))
	run(a, a.handleKey(key("d")))
	require.Equal(t, MenuConfirm, a.menu.State())
	run(a, a.handleKey(key("y")))

	assert.Equal(t, []deleteCall{{instance: "42", name: "job-A"}}, api.deletes)
	assert.False(t, a.menu.Active())
	assert.Contains(t, a.message, "Deleted job-A/42")
	assert.False(t, a.expanded)
}

func TestApp_CancelDeleteDoesNothing(t *testing.T) {
	api := &fakeAPI{tasks: sampleTasks()}
	a := newTestApp(t, api)

	run(a, a.handleKey(key("m")))
	run(a, a.handleKey(key("d")))
	run(a, a.handleKey(key("enter")))

	assert.Empty(t, api.deletes)
	assert.False(t, a.menu.Active())
	assert.False(t, a.expanded)
}

func TestApp_HistoryNavigation(t *testing.T) {
	api := &fakeAPI{tasks: sampleTasks()}
	a := newTestApp(t, api)

	run(a, a.handleKey(key("m")))
	run(a, a.handleKey(key("h")))

	assert.Equal(t, "/history/job-A/42", a.Route())
	assert.Empty(t, api.deletes)
	assert.Equal(t, 1, api.count("logs"))
	require.Len(t, api.logSigs, 1)
	assert.Equal(t, "job-A", api.logSigs[0].TaskName)
	assert.Equal(t, "42", api.logSigs[0].TaskID)
	assert.Equal(t, 1, api.count("poll-logs"))

	run(a, a.handleKey(key("esc")))
	assert.Equal(t, "/", a.Route())
}

func TestApp_RefreshRefetchesBeforePolling(t *testing.T) {
	api := &fakeAPI{tasks: sampleTasks()}
	a := newTestApp(t, api)
	before := len(api.order())

	run(a, a.handleKey(key("r")))

	assert.Equal(t, []string{"list", "poll"}, api.order()[before:])
	assert.False(t, a.taskRefresh.Refreshing())
}

func TestApp_FilterChangeRepolls(t *testing.T) {
	api := &fakeAPI{tasks: sampleTasks()}
	a := newTestApp(t, api)

	run(a, a.handleKey(key("f")))

	assert.Equal(t, models.FilterFailed, a.signature().Filter)
	assert.Equal(t, 2, api.count("poll"))
}

func TestApp_EnterExpandsRow(t *testing.T) {
	api := &fakeAPI{tasks: sampleTasks()}
	a := newTestApp(t, api)

	run(a, a.handleKey(key("enter")))
	assert.True(t, a.expanded)
	run(a, a.handleKey(key("enter")))
	assert.False(t, a.expanded)
}

func TestApp_DefaultRoute(t *testing.T) {
	api := &fakeAPI{tasks: sampleTasks()}
	a := newTestApp(t, api)
	assert.Equal(t, "/", a.Route())

	run(a, a.handleKey(key("h")))
	assert.Equal(t, []string{"/"}, a.back)
	run(a, a.handleKey(key("esc")))
	assert.Equal(t, "/", a.Route())
	assert.Empty(t, a.back)
}

func TestApp_DeleteLastRowThenReopenMenu(t *testing.T) {
	api := &fakeAPI{tasks: sampleTasks()}
	a := newTestApp(t, api)

	run(a, a.handleKey(key("down")))
	require.Equal(t, 1, a.selected)
	run(a, a.handleKey(key("m")))
	run(a, a.handleKey(key("d")))
	run(a, a.handleKey(key("y")))

	require.Equal(t, []deleteCall{{instance: "7", name: "job-B"}}, api.deletes)
	require.Len(t, a.tasks.Items(), 1)
	assert.Equal(t, 0, a.selected)

	require.NotPanics(t, func() { run(a, a.handleKey(key("m"))) })
	require.True(t, a.menu.Active())
	assert.Equal(t, jobA, a.menu.Target())
}

func TestApp_MenuOnEmptyListStaysClosed(t *testing.T) {
	api := &fakeAPI{tasks: []models.Task{{TaskName: "job-A", TaskInstance: "42"}}}
	a := newTestApp(t, api)

	run(a, a.handleKey(key("m")))
	run(a, a.handleKey(key("d")))
	run(a, a.handleKey(key("y")))
	require.Empty(t, a.tasks.Items())

	require.NotPanics(t, func() { run(a, a.handleKey(key("m"))) })
	assert.False(t, a.menu.Active())
	assert.Equal(t, 0, a.selected)
}

func TestApp_RefreshFinishingOnAnotherView(t *testing.T) {
	api := &fakeAPI{tasks: sampleTasks()}
	a := newTestApp(t, api)

	pending := a.handleKey(key("r"))
	require.True(t, a.taskRefresh.Refreshing())
	run(a, a.handleKey(key("h")))
	run(a, pending)
	assert.False(t, a.taskRefresh.Refreshing())
	assert.False(t, a.logRefresh.Refreshing())

	run(a, a.handleKey(key("t")))
	before := len(api.order())
	run(a, a.handleKey(key("r")))

	assert.Equal(t, []string{"list", "poll"}, api.order()[before:])
	assert.False(t, a.taskRefresh.Refreshing())
}
