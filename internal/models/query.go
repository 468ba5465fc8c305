package models

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Filter narrows a listing by status.
type Filter string

const (
	FilterAll       Filter = "ALL"
	FilterFailed    Filter = "FAILED"
	FilterRunning   Filter = "RUNNING"
	FilterScheduled Filter = "SCHEDULED"
	FilterSucceeded Filter = "SUCCEEDED"
)

// TaskFilters are the filters offered for the task list, in cycle order.
var TaskFilters = []Filter{FilterAll, FilterFailed, FilterRunning, FilterScheduled}

// LogFilters are the filters offered for execution history, in cycle order.
var LogFilters = []Filter{FilterAll, FilterSucceeded, FilterFailed}

// SortField selects the listing order.
type SortField string

const (
	SortDefault      SortField = "DEFAULT"
	SortTaskName     SortField = "TASK_NAME"
	SortTaskInstance SortField = "TASK_INSTANCE"
)

// SortFields are the sort orders offered by the dashboard, in cycle order.
var SortFields = []SortField{SortDefault, SortTaskName, SortTaskInstance}

// ErrInvalidQuery is returned when query parameters cannot be parsed.
var ErrInvalidQuery = errors.New("invalid query parameters")

// QueryParams is the query signature shared by list and poll requests.
// It is comparable: two signatures are equal iff every field is equal,
// provided both went through Normalize. Normalize trims the search terms,
// so "job " and "job" are the same signature; the server trims them the
// same way before matching.
type QueryParams struct {
	Filter                 Filter
	Sorting                SortField
	Asc                    bool
	StartTime              time.Time
	EndTime                time.Time
	TaskName               string
	TaskID                 string
	SearchTermTaskName     string
	SearchTermTaskInstance string
	TaskNameExactMatch     bool
	TaskInstanceExactMatch bool
}

// Normalize fills defaults, trims the search terms and puts times in UTC
// without a monotonic reading so that == behaves as value equality.
func (q QueryParams) Normalize() QueryParams {
	if q.Filter == "" {
		q.Filter = FilterAll
	}
	if q.Sorting == "" {
		q.Sorting = SortDefault
	}
	q.StartTime = normalizeTime(q.StartTime)
	q.EndTime = normalizeTime(q.EndTime)
	q.SearchTermTaskName = strings.TrimSpace(q.SearchTermTaskName)
	q.SearchTermTaskInstance = strings.TrimSpace(q.SearchTermTaskInstance)
	return q
}

func normalizeTime(t time.Time) time.Time {
	if t.IsZero() {
		return time.Time{}
	}
	return t.UTC().Round(0)
}

// Key returns a stable hash of the normalized signature, suitable for
// cache keys and log fields.
func (q QueryParams) Key() string {
	n := q.Normalize()
	return strconv.FormatUint(xxhash.Sum64String(n.Values().Encode()), 16)
}

// Values encodes the signature as request query parameters. Zero values
// are omitted except the booleans the server reads with defaults.
func (q QueryParams) Values() url.Values {
	v := url.Values{}
	v.Set("filter", string(q.Filter))
	v.Set("sorting", string(q.Sorting))
	v.Set("asc", strconv.FormatBool(q.Asc))
	if !q.StartTime.IsZero() {
		v.Set("startTime", q.StartTime.UTC().Format(time.RFC3339Nano))
	}
	if !q.EndTime.IsZero() {
		v.Set("endTime", q.EndTime.UTC().Format(time.RFC3339Nano))
	}
	if q.TaskName != "" {
		v.Set("taskName", q.TaskName)
	}
	if q.TaskID != "" {
		v.Set("taskId", q.TaskID)
	}
	if q.SearchTermTaskName != "" {
		v.Set("searchTermTaskName", q.SearchTermTaskName)
	}
	if q.SearchTermTaskInstance != "" {
		v.Set("searchTermTaskInstance", q.SearchTermTaskInstance)
	}
	v.Set("taskNameExactMatch", strconv.FormatBool(q.TaskNameExactMatch))
	v.Set("taskInstanceExactMatch", strconv.FormatBool(q.TaskInstanceExactMatch))
	return v
}

// ParseQueryParams decodes request query parameters into a normalized
// signature.
func ParseQueryParams(v url.Values) (QueryParams, error) {
	var q QueryParams
	var err error

	q.Filter = Filter(strings.ToUpper(v.Get("filter")))
	switch q.Filter {
	case "", FilterAll, FilterFailed, FilterRunning, FilterScheduled, FilterSucceeded:
	default:
		return q, fmt.Errorf("%w: unknown filter %q", ErrInvalidQuery, v.Get("filter"))
	}

	q.Sorting = SortField(strings.ToUpper(v.Get("sorting")))
	switch q.Sorting {
	case "", SortDefault, SortTaskName, SortTaskInstance:
	default:
		return q, fmt.Errorf("%w: unknown sorting %q", ErrInvalidQuery, v.Get("sorting"))
	}

	if q.Asc, err = parseBool(v, "asc", true); err != nil {
		return q, err
	}
	if q.TaskNameExactMatch, err = parseBool(v, "taskNameExactMatch", false); err != nil {
		return q, err
	}
	if q.TaskInstanceExactMatch, err = parseBool(v, "taskInstanceExactMatch", false); err != nil {
		return q, err
	}
	if q.StartTime, err = parseTime(v, "startTime"); err != nil {
		return q, err
	}
	if q.EndTime, err = parseTime(v, "endTime"); err != nil {
		return q, err
	}

	q.TaskName = v.Get("taskName")
	q.TaskID = v.Get("taskId")
	q.SearchTermTaskName = v.Get("searchTermTaskName")
	q.SearchTermTaskInstance = v.Get("searchTermTaskInstance")
	return q.Normalize(), nil
}

func parseBool(v url.Values, name string, def bool) (bool, error) {
	raw := v.Get(name)
	if raw == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%w: %s=%q", ErrInvalidQuery, name, raw)
	}
	return b, nil
}

func parseTime(v url.Values, name string) (time.Time, error) {
	raw := v.Get(name)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s=%q", ErrInvalidQuery, name, raw)
	}
	return t, nil
}
