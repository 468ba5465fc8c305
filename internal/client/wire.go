package client

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"

	"github.com/fentz26/taskboard/internal/models"
)

// looseTime accepts the date shapes schedulers emit: RFC 3339, a local
// timestamp without zone, or epoch milliseconds. Anything else decodes to
// the zero time rather than failing the whole page.
type looseTime time.Time

var localLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

func (t *looseTime) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*t = looseTime{}
		return nil
	}
	if b[0] != '"' {
		if ms, err := strconv.ParseInt(string(b), 10, 64); err == nil {
			*t = looseTime(time.UnixMilli(ms))
			return nil
		}
		*t = looseTime{}
		return nil
	}

	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		*t = looseTime{}
		return nil
	}
	*t = looseTime(ParseTime(s))
	return nil
}

// ParseTime parses s with the same fallbacks used when decoding API
// payloads. It returns the zero time when nothing matches.
func ParseTime(s string) time.Time {
	if v, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return v
	}
	for _, layout := range localLayouts {
		if v, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return v
		}
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms)
	}
	return time.Time{}
}

func (t *looseTime) ptr() *time.Time {
	if t == nil || time.Time(*t).IsZero() {
		return nil
	}
	v := time.Time(*t)
	return &v
}

type wireTask struct {
	TaskName            string     `json:"taskName"`
	TaskInstance        string     `json:"taskInstance"`
	TaskData            string     `json:"taskData"`
	ExecutionTime       looseTime  `json:"executionTime"`
	Picked              bool       `json:"picked"`
	PickedBy            string     `json:"pickedBy"`
	LastSuccess         *looseTime `json:"lastSuccess"`
	LastFailure         *looseTime `json:"lastFailure"`
	ConsecutiveFailures int        `json:"consecutiveFailures"`
	LastHeartbeat       *looseTime `json:"lastHeartbeat"`
	Version             int64      `json:"version"`
}

func (w wireTask) model() models.Task {
	return models.Task{
		TaskName:            w.TaskName,
		TaskInstance:        w.TaskInstance,
		TaskData:            w.TaskData,
		ExecutionTime:       time.Time(w.ExecutionTime),
		Picked:              w.Picked,
		PickedBy:            w.PickedBy,
		LastSuccess:         w.LastSuccess.ptr(),
		LastFailure:         w.LastFailure.ptr(),
		ConsecutiveFailures: w.ConsecutiveFailures,
		LastHeartbeat:       w.LastHeartbeat.ptr(),
		Version:             w.Version,
	}
}

type wireLog struct {
	ID                  int64     `json:"id"`
	TaskName            string    `json:"taskName"`
	TaskInstance        string    `json:"taskInstance"`
	TaskData            string    `json:"taskData"`
	PickedBy            string    `json:"pickedBy"`
	TimeStarted         looseTime `json:"timeStarted"`
	TimeFinished        looseTime `json:"timeFinished"`
	Succeeded           bool      `json:"succeeded"`
	DurationMs          int64     `json:"durationMs"`
	ExceptionClass      *string   `json:"exceptionClass"`
	ExceptionMessage    *string   `json:"exceptionMessage"`
	ExceptionStackTrace *string   `json:"exceptionStackTrace"`
}

func (w wireLog) model() models.LogEntry {
	return models.LogEntry{
		ID:                  w.ID,
		TaskName:            w.TaskName,
		TaskInstance:        w.TaskInstance,
		TaskData:            w.TaskData,
		PickedBy:            w.PickedBy,
		TimeStarted:         time.Time(w.TimeStarted),
		TimeFinished:        time.Time(w.TimeFinished),
		Succeeded:           w.Succeeded,
		DurationMs:          w.DurationMs,
		ExceptionClass:      w.ExceptionClass,
		ExceptionMessage:    w.ExceptionMessage,
		ExceptionStackTrace: w.ExceptionStackTrace,
	}
}
