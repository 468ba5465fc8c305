// Package models defines the core domain types for taskboard.
package models

import "time"

// TaskStatus is the dashboard's view of a scheduled task row.
type TaskStatus string

const (
	TaskStatusScheduled TaskStatus = "SCHEDULED"
	TaskStatusRunning   TaskStatus = "RUNNING"
	TaskStatusFailed    TaskStatus = "FAILED"
)

// TaskID identifies one execution instance of a task.
type TaskID struct {
	Name     string `json:"taskName"`
	Instance string `json:"taskInstance"`
}

func (id TaskID) String() string {
	return id.Name + "/" + id.Instance
}

// Task mirrors a row of the scheduler's scheduled_tasks table.
type Task struct {
	TaskName            string     `json:"taskName"`
	TaskInstance        string     `json:"taskInstance"`
	TaskData            string     `json:"taskData,omitempty"`
	ExecutionTime       time.Time  `json:"executionTime"`
	Picked              bool       `json:"picked"`
	PickedBy            string     `json:"pickedBy,omitempty"`
	LastSuccess         *time.Time `json:"lastSuccess,omitempty"`
	LastFailure         *time.Time `json:"lastFailure,omitempty"`
	ConsecutiveFailures int        `json:"consecutiveFailures"`
	LastHeartbeat       *time.Time `json:"lastHeartbeat,omitempty"`
	Version             int64      `json:"version"`
}

// ID returns the task's identity.
func (t Task) ID() TaskID {
	return TaskID{Name: t.TaskName, Instance: t.TaskInstance}
}

// Status derives the display status. Failures win over a pick.
func (t Task) Status() TaskStatus {
	switch {
	case t.ConsecutiveFailures > 0:
		return TaskStatusFailed
	case t.Picked:
		return TaskStatusRunning
	default:
		return TaskStatusScheduled
	}
}

// LogEntry is one completed execution from the execution_logs table.
type LogEntry struct {
	ID                  int64     `json:"id"`
	TaskName            string    `json:"taskName"`
	TaskInstance        string    `json:"taskInstance"`
	TaskData            string    `json:"taskData,omitempty"`
	PickedBy            string    `json:"pickedBy,omitempty"`
	TimeStarted         time.Time `json:"timeStarted"`
	TimeFinished        time.Time `json:"timeFinished"`
	Succeeded           bool      `json:"succeeded"`
	DurationMs          int64     `json:"durationMs"`
	ExceptionClass      *string   `json:"exceptionClass"`
	ExceptionMessage    *string   `json:"exceptionMessage"`
	ExceptionStackTrace *string   `json:"exceptionStackTrace,omitempty"`
}

// TaskID returns the identity of the task that produced the entry.
func (l LogEntry) TaskID() TaskID {
	return TaskID{Name: l.TaskName, Instance: l.TaskInstance}
}

// PollResponse carries the counts of changes since the last full listing.
// A response replaces its predecessor; responses are never merged.
type PollResponse struct {
	NewFailures  int `json:"newFailures"`
	NewSucceeded int `json:"newSucceeded"`
	NewRunning   int `json:"newRunning"`
	NewTasks     int `json:"newTasks"`
}

// Page is one page of an infinitely scrolled listing.
type Page[T any] struct {
	Items         []T `json:"items"`
	NumberOfItems int `json:"numberOfItems"`
	NumberOfPages int `json:"numberOfPages"`
}

// AuditEntry records a state-mutating dashboard action.
type AuditEntry struct {
	ID         string    `json:"id"`
	Action     string    `json:"action"`
	InputsHash string    `json:"inputs_hash"`
	Outcome    string    `json:"outcome"`
	TaskName   string    `json:"task_name,omitempty"`
	Instance   string    `json:"task_instance,omitempty"`
	Details    string    `json:"details,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}
