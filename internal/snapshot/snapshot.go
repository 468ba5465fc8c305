// Package snapshot keeps the state a client last saw for a query signature,
// so a later poll can report what changed since.
package snapshot

import (
	"context"
	"net/url"
	"time"

	"github.com/fentz26/taskboard/internal/models"
)

// Kind separates task-list snapshots from history snapshots.
type Kind string

const (
	KindTasks Kind = "tasks"
	KindLogs  Kind = "logs"
)

// Snapshot is the state recorded when a full listing was served.
type Snapshot struct {
	TakenAt  time.Time                    `json:"takenAt"`
	Tasks    map[string]models.TaskStatus `json:"tasks,omitempty"`
	MaxLogID int64                        `json:"maxLogId,omitempty"`
}

// Cache stores snapshots by key. Implementations must be safe for
// concurrent use.
type Cache interface {
	Get(ctx context.Context, key string) (Snapshot, bool, error)
	Put(ctx context.Context, key string, s Snapshot) error
	Close() error
}

// Key builds the cache key for a signature.
func Key(kind Kind, q models.QueryParams) string {
	return string(kind) + ":" + q.Key()
}

// OfTasks records the status of every task in the listing.
func OfTasks(tasks []models.Task, now time.Time) Snapshot {
	statuses := make(map[string]models.TaskStatus, len(tasks))
	for _, t := range tasks {
		statuses[taskKey(t.ID())] = t.Status()
	}
	return Snapshot{TakenAt: now.UTC(), Tasks: statuses}
}

// OfLogs records the newest log id covered by the listing.
func OfLogs(maxID int64, now time.Time) Snapshot {
	return Snapshot{TakenAt: now.UTC(), MaxLogID: maxID}
}

// DiffTasks counts what changed between prev and the current task states.
// A task entering FAILED or RUNNING counts once per transition; a task
// unknown to prev counts as new.
func DiffTasks(prev Snapshot, current []models.Task) models.PollResponse {
	var resp models.PollResponse
	for _, t := range current {
		status := t.Status()
		before, known := prev.Tasks[taskKey(t.ID())]
		if !known {
			resp.NewTasks++
		}
		if status == models.TaskStatusFailed && before != models.TaskStatusFailed {
			resp.NewFailures++
		}
		if status == models.TaskStatusRunning && before != models.TaskStatusRunning {
			resp.NewRunning++
		}
		if t.LastSuccess != nil && t.LastSuccess.After(prev.TakenAt) {
			resp.NewSucceeded++
		}
	}
	return resp
}

// taskKey escapes both halves so that no two identities share a key.
func taskKey(id models.TaskID) string {
	return url.PathEscape(id.Name) + "/" + url.PathEscape(id.Instance)
}
