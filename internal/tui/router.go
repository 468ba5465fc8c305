package tui

import (
	"net/url"
	"strings"

	"github.com/fentz26/taskboard/internal/models"
)

const (
	tasksPath   = "/"
	historyPath = "/history"
)

// HistoryPath is the route of one task instance's execution history.
func HistoryPath(id models.TaskID) string {
	return historyPath + "/" + url.PathEscape(id.Name) + "/" + url.PathEscape(id.Instance)
}

// ParseHistoryPath extracts the task identity from a history route.
func ParseHistoryPath(p string) (models.TaskID, bool) {
	rest, ok := strings.CutPrefix(p, historyPath+"/")
	if !ok {
		return models.TaskID{}, false
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return models.TaskID{}, false
	}
	name, err := url.PathUnescape(parts[0])
	if err != nil {
		return models.TaskID{}, false
	}
	instance, err := url.PathUnescape(parts[1])
	if err != nil {
		return models.TaskID{}, false
	}
	return models.TaskID{Name: name, Instance: instance}, true
}

// view is what a route resolves to.
type view struct {
	history bool
	task    *models.TaskID
}

func resolve(p string) (view, bool) {
	switch p {
	case tasksPath, "":
		return view{}, true
	case historyPath:
		return view{history: true}, true
	}
	if id, ok := ParseHistoryPath(p); ok {
		return view{history: true, task: &id}, true
	}
	return view{}, false
}

// NavigateMsg asks the app to switch to the route at Path.
type NavigateMsg struct {
	Path string
}
