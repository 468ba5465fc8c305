// Package store provides read access to the scheduler's SQLite tables.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fentz26/taskboard/internal/models"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrTaskNotFound indicates no scheduled_tasks row matched the identity.
var ErrTaskNotFound = errors.New("task not found")

// Store provides access to the scheduler database.
type Store struct {
	db *sql.DB
}

// New opens the database at dbPath and ensures the schema exists.
func New(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// WAL lets the dashboard read while the scheduler writes.
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite only supports one writer at a time
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the scheduler tables when they are missing. An existing
// scheduler database is left untouched.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS scheduled_tasks (
		task_name TEXT NOT NULL,
		task_instance TEXT NOT NULL,
		task_data TEXT,
		execution_time DATETIME NOT NULL,
		picked BOOLEAN NOT NULL DEFAULT 0,
		picked_by TEXT,
		last_success DATETIME,
		last_failure DATETIME,
		consecutive_failures INTEGER NOT NULL DEFAULT 0,
		last_heartbeat DATETIME,
		version INTEGER NOT NULL DEFAULT 1,
		PRIMARY KEY (task_name, task_instance)
	);

	CREATE TABLE IF NOT EXISTS execution_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		task_name TEXT NOT NULL,
		task_instance TEXT NOT NULL,
		task_data TEXT,
		picked_by TEXT,
		time_started DATETIME NOT NULL,
		time_finished DATETIME NOT NULL,
		succeeded BOOLEAN NOT NULL,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		exception_class TEXT,
		exception_message TEXT,
		exception_stacktrace TEXT
	);

	CREATE TABLE IF NOT EXISTS dashboard_audit (
		id TEXT PRIMARY KEY,
		action TEXT NOT NULL,
		inputs_hash TEXT NOT NULL,
		outcome TEXT NOT NULL,
		task_name TEXT,
		task_instance TEXT,
		details TEXT,
		timestamp DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_scheduled_tasks_execution_time ON scheduled_tasks(execution_time);
	CREATE INDEX IF NOT EXISTS idx_execution_logs_task ON execution_logs(task_name, task_instance);
	CREATE INDEX IF NOT EXISTS idx_execution_logs_time_finished ON execution_logs(time_finished);
	`

	_, err := s.db.Exec(schema)
	return err
}

// --- Task Operations ---

const taskColumns = `task_name, task_instance, task_data, execution_time, picked, picked_by,
	last_success, last_failure, consecutive_failures, last_heartbeat, version`

// UpsertTask inserts or replaces a scheduled task row. The scheduler owns
// these rows; this exists for seeding development databases and tests.
func (s *Store) UpsertTask(t models.Task) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO scheduled_tasks (`+taskColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.TaskName, t.TaskInstance, t.TaskData, t.ExecutionTime.UTC(), t.Picked, nullString(t.PickedBy),
		nullTime(t.LastSuccess), nullTime(t.LastFailure), t.ConsecutiveFailures, nullTime(t.LastHeartbeat), max64(t.Version, 1),
	)
	if err != nil {
		return fmt.Errorf("upsert task: %w", err)
	}
	return nil
}

// ListTasks returns one page of tasks matching q. Pages are zero-based.
func (s *Store) ListTasks(ctx context.Context, q models.QueryParams, page, size int) (models.Page[models.Task], error) {
	where, args := taskWhere(q)

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM scheduled_tasks`+where, args...).Scan(&total); err != nil {
		return models.Page[models.Task]{}, fmt.Errorf("count tasks: %w", err)
	}

	query := `SELECT ` + taskColumns + ` FROM scheduled_tasks` + where + taskOrder(q) + ` LIMIT ? OFFSET ?`
	tasks, err := s.queryTasks(ctx, query, append(args, size, page*size)...)
	if err != nil {
		return models.Page[models.Task]{}, err
	}

	return models.Page[models.Task]{
		Items:         tasks,
		NumberOfItems: total,
		NumberOfPages: pageCount(total, size),
	}, nil
}

// MatchingTasks returns every task matching q, unpaged. Used to snapshot and
// diff task states for polling.
func (s *Store) MatchingTasks(ctx context.Context, q models.QueryParams) ([]models.Task, error) {
	where, args := taskWhere(q)
	return s.queryTasks(ctx, `SELECT `+taskColumns+` FROM scheduled_tasks`+where, args...)
}

// GetTask retrieves a task by identity. It returns nil when absent.
func (s *Store) GetTask(ctx context.Context, name, instance string) (*models.Task, error) {
	tasks, err := s.queryTasks(ctx,
		`SELECT `+taskColumns+` FROM scheduled_tasks WHERE task_name = ? AND task_instance = ?`,
		name, instance,
	)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, nil
	}
	return &tasks[0], nil
}

// DeleteTask removes a scheduled task instance.
func (s *Store) DeleteTask(ctx context.Context, instance, name string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM scheduled_tasks WHERE task_instance = ? AND task_name = ?`,
		instance, name,
	)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if n == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// --- Execution Operations ---

// PickDue atomically picks the earliest due, unpicked task for worker. It
// returns nil when nothing is due. The version column guards against two
// workers picking the same row.
func (s *Store) PickDue(ctx context.Context, worker string, now time.Time) (*models.Task, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM scheduled_tasks
		 WHERE picked = 0 AND execution_time <= ?
		 ORDER BY execution_time ASC LIMIT 1`,
		now.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("query due task: %w", err)
	}
	tasks, err := scanTasks(rows)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, nil
	}
	t := tasks[0]

	result, err := tx.ExecContext(ctx,
		`UPDATE scheduled_tasks SET picked = 1, picked_by = ?, last_heartbeat = ?, version = version + 1
		 WHERE task_name = ? AND task_instance = ? AND version = ?`,
		worker, now.UTC(), t.TaskName, t.TaskInstance, t.Version,
	)
	if err != nil {
		return nil, fmt.Errorf("pick task: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, nil
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit pick: %w", err)
	}

	t.Picked = true
	t.PickedBy = worker
	t.LastHeartbeat = &now
	t.Version++
	return &t, nil
}

// FinishExecution records the outcome of a picked task: it appends e to
// the execution log, updates the task's success or failure bookkeeping,
// unpicks it and schedules it at next. A task deleted while running only
// gets its log entry.
func (s *Store) FinishExecution(ctx context.Context, e models.LogEntry, next time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO execution_logs (task_name, task_instance, task_data, picked_by, time_started, time_finished,
			succeeded, duration_ms, exception_class, exception_message, exception_stacktrace)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.TaskName, e.TaskInstance, e.TaskData, nullString(e.PickedBy), e.TimeStarted.UTC(), e.TimeFinished.UTC(),
		e.Succeeded, e.DurationMs, e.ExceptionClass, e.ExceptionMessage, e.ExceptionStackTrace,
	); err != nil {
		return fmt.Errorf("insert log: %w", err)
	}

	update := `UPDATE scheduled_tasks SET picked = 0, picked_by = NULL, execution_time = ?,
		last_failure = ?, consecutive_failures = consecutive_failures + 1, version = version + 1
		WHERE task_name = ? AND task_instance = ?`
	if e.Succeeded {
		update = `UPDATE scheduled_tasks SET picked = 0, picked_by = NULL, execution_time = ?,
			last_success = ?, consecutive_failures = 0, version = version + 1
			WHERE task_name = ? AND task_instance = ?`
	}
	if _, err := tx.ExecContext(ctx, update, next.UTC(), e.TimeFinished.UTC(), e.TaskName, e.TaskInstance); err != nil {
		return fmt.Errorf("update task: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit execution: %w", err)
	}
	return nil
}

func (s *Store) queryTasks(ctx context.Context, query string, args ...interface{}) ([]models.Task, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	return scanTasks(rows)
}

func scanTasks(rows *sql.Rows) ([]models.Task, error) {
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		var t models.Task
		var data, pickedBy sql.NullString
		var lastSuccess, lastFailure, heartbeat sql.NullTime
		if err := rows.Scan(&t.TaskName, &t.TaskInstance, &data, &t.ExecutionTime, &t.Picked, &pickedBy,
			&lastSuccess, &lastFailure, &t.ConsecutiveFailures, &heartbeat, &t.Version); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		t.TaskData = data.String
		t.PickedBy = pickedBy.String
		t.LastSuccess = timePtr(lastSuccess)
		t.LastFailure = timePtr(lastFailure)
		t.LastHeartbeat = timePtr(heartbeat)
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func taskWhere(q models.QueryParams) (string, []interface{}) {
	var conds []string
	var args []interface{}

	switch q.Filter {
	case models.FilterFailed:
		conds = append(conds, `consecutive_failures > 0`)
	case models.FilterRunning:
		conds = append(conds, `picked = 1 AND consecutive_failures = 0`)
	case models.FilterScheduled:
		conds = append(conds, `picked = 0 AND consecutive_failures = 0`)
	}

	conds, args = appendRange(conds, args, "execution_time", q)
	conds, args = appendIdentity(conds, args, q)
	return joinWhere(conds), args
}

func taskOrder(q models.QueryParams) string {
	dir := direction(q.Asc)
	switch q.Sorting {
	case models.SortTaskName:
		return ` ORDER BY task_name ` + dir + `, task_instance ` + dir
	case models.SortTaskInstance:
		return ` ORDER BY task_instance ` + dir + `, task_name ` + dir
	default:
		return ` ORDER BY execution_time ` + dir + `, task_name ASC, task_instance ASC`
	}
}

// --- Log Operations ---

const logColumns = `id, task_name, task_instance, task_data, picked_by, time_started, time_finished,
	succeeded, duration_ms, exception_class, exception_message, exception_stacktrace`

// InsertLog appends an execution log entry and returns its id. Like
// UpsertTask it serves seeding and tests.
func (s *Store) InsertLog(e models.LogEntry) (int64, error) {
	result, err := s.db.Exec(
		`INSERT INTO execution_logs (task_name, task_instance, task_data, picked_by, time_started, time_finished,
			succeeded, duration_ms, exception_class, exception_message, exception_stacktrace)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.TaskName, e.TaskInstance, e.TaskData, nullString(e.PickedBy), e.TimeStarted.UTC(), e.TimeFinished.UTC(),
		e.Succeeded, e.DurationMs, e.ExceptionClass, e.ExceptionMessage, e.ExceptionStackTrace,
	)
	if err != nil {
		return 0, fmt.Errorf("insert log: %w", err)
	}
	return result.LastInsertId()
}

// ListLogs returns one page of execution logs matching q.
func (s *Store) ListLogs(ctx context.Context, q models.QueryParams, page, size int) (models.Page[models.LogEntry], error) {
	where, args := logWhere(q)

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM execution_logs`+where, args...).Scan(&total); err != nil {
		return models.Page[models.LogEntry]{}, fmt.Errorf("count logs: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+logColumns+` FROM execution_logs`+where+logOrder(q)+` LIMIT ? OFFSET ?`,
		append(args, size, page*size)...,
	)
	if err != nil {
		return models.Page[models.LogEntry]{}, fmt.Errorf("query logs: %w", err)
	}
	defer rows.Close()

	var logs []models.LogEntry
	for rows.Next() {
		var e models.LogEntry
		var data, pickedBy, class, message, trace sql.NullString
		if err := rows.Scan(&e.ID, &e.TaskName, &e.TaskInstance, &data, &pickedBy, &e.TimeStarted, &e.TimeFinished,
			&e.Succeeded, &e.DurationMs, &class, &message, &trace); err != nil {
			return models.Page[models.LogEntry]{}, fmt.Errorf("scan log: %w", err)
		}
		e.TaskData = data.String
		e.PickedBy = pickedBy.String
		e.ExceptionClass = stringPtr(class)
		e.ExceptionMessage = stringPtr(message)
		e.ExceptionStackTrace = stringPtr(trace)
		logs = append(logs, e)
	}
	if err := rows.Err(); err != nil {
		return models.Page[models.LogEntry]{}, err
	}

	return models.Page[models.LogEntry]{
		Items:         logs,
		NumberOfItems: total,
		NumberOfPages: pageCount(total, size),
	}, nil
}

// MaxLogID returns the highest log id matching q, or 0 when none match.
func (s *Store) MaxLogID(ctx context.Context, q models.QueryParams) (int64, error) {
	where, args := logWhere(q)
	var id sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(id) FROM execution_logs`+where, args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("max log id: %w", err)
	}
	return id.Int64, nil
}

// LogCounts buckets execution logs by outcome.
type LogCounts struct {
	Succeeded int
	Failed    int
	Total     int
}

// CountLogsSince counts logs matching q with an id greater than afterID.
func (s *Store) CountLogsSince(ctx context.Context, q models.QueryParams, afterID int64) (LogCounts, error) {
	where, args := logWhere(q)
	if where == "" {
		where = ` WHERE id > ?`
	} else {
		where += ` AND id > ?`
	}
	args = append(args, afterID)

	var c LogCounts
	var succeeded sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), SUM(CASE WHEN succeeded THEN 1 ELSE 0 END) FROM execution_logs`+where,
		args...,
	).Scan(&c.Total, &succeeded)
	if err != nil {
		return LogCounts{}, fmt.Errorf("count logs: %w", err)
	}
	c.Succeeded = int(succeeded.Int64)
	c.Failed = c.Total - c.Succeeded
	return c, nil
}

func logWhere(q models.QueryParams) (string, []interface{}) {
	var conds []string
	var args []interface{}

	switch q.Filter {
	case models.FilterSucceeded:
		conds = append(conds, `succeeded = 1`)
	case models.FilterFailed:
		conds = append(conds, `succeeded = 0`)
	}

	conds, args = appendRange(conds, args, "time_finished", q)
	conds, args = appendIdentity(conds, args, q)
	return joinWhere(conds), args
}

func logOrder(q models.QueryParams) string {
	dir := direction(q.Asc)
	switch q.Sorting {
	case models.SortTaskName:
		return ` ORDER BY task_name ` + dir + `, id ` + dir
	case models.SortTaskInstance:
		return ` ORDER BY task_instance ` + dir + `, id ` + dir
	default:
		return ` ORDER BY time_finished ` + dir + `, id ` + dir
	}
}

// --- Audit Operations ---

// WriteAudit records a dashboard action.
func (s *Store) WriteAudit(action, inputsHash, outcome string, id models.TaskID, details string) (*models.AuditEntry, error) {
	entry := &models.AuditEntry{
		ID:         uuid.New().String(),
		Action:     action,
		InputsHash: inputsHash,
		Outcome:    outcome,
		TaskName:   id.Name,
		Instance:   id.Instance,
		Details:    details,
		Timestamp:  time.Now().UTC(),
	}

	_, err := s.db.Exec(
		`INSERT INTO dashboard_audit (id, action, inputs_hash, outcome, task_name, task_instance, details, timestamp) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.Action, entry.InputsHash, entry.Outcome, entry.TaskName, entry.Instance, entry.Details, entry.Timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert audit: %w", err)
	}
	return entry, nil
}

// ListAudit returns the most recent audit entries, newest first.
func (s *Store) ListAudit(ctx context.Context, limit int) ([]models.AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, action, inputs_hash, outcome, task_name, task_instance, details, timestamp
		 FROM dashboard_audit ORDER BY timestamp DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query audit: %w", err)
	}
	defer rows.Close()

	var entries []models.AuditEntry
	for rows.Next() {
		var e models.AuditEntry
		var name, instance, details sql.NullString
		if err := rows.Scan(&e.ID, &e.Action, &e.InputsHash, &e.Outcome, &name, &instance, &details, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan audit: %w", err)
		}
		e.TaskName = name.String
		e.Instance = instance.String
		e.Details = details.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// --- Helpers ---

func appendRange(conds []string, args []interface{}, column string, q models.QueryParams) ([]string, []interface{}) {
	if !q.StartTime.IsZero() {
		conds = append(conds, column+` >= ?`)
		args = append(args, q.StartTime.UTC())
	}
	if !q.EndTime.IsZero() {
		conds = append(conds, column+` <= ?`)
		args = append(args, q.EndTime.UTC())
	}
	return conds, args
}

func appendIdentity(conds []string, args []interface{}, q models.QueryParams) ([]string, []interface{}) {
	if q.TaskName != "" {
		conds = append(conds, `task_name = ?`)
		args = append(args, q.TaskName)
	}
	if q.TaskID != "" {
		conds = append(conds, `task_instance = ?`)
		args = append(args, q.TaskID)
	}
	conds, args = appendSearch(conds, args, "task_name", q.SearchTermTaskName, q.TaskNameExactMatch)
	conds, args = appendSearch(conds, args, "task_instance", q.SearchTermTaskInstance, q.TaskInstanceExactMatch)
	return conds, args
}

func appendSearch(conds []string, args []interface{}, column, term string, exact bool) ([]string, []interface{}) {
	if term == "" {
		return conds, args
	}
	if exact {
		return append(conds, column+` = ?`), append(args, term)
	}
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(term)
	return append(conds, column+` LIKE ? ESCAPE '\'`), append(args, "%"+escaped+"%")
}

func joinWhere(conds []string) string {
	if len(conds) == 0 {
		return ""
	}
	return ` WHERE ` + strings.Join(conds, ` AND `)
}

func direction(asc bool) string {
	if asc {
		return "ASC"
	}
	return "DESC"
}

func pageCount(total, size int) int {
	if size <= 0 {
		return 0
	}
	return (total + size - 1) / size
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func stringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
