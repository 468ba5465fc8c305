package controlplane

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fentz26/taskboard/internal/audit"
	"github.com/fentz26/taskboard/internal/models"
	"github.com/fentz26/taskboard/internal/snapshot"
	"github.com/fentz26/taskboard/internal/store"
)

func TestHealthEndpoint_OK(t *testing.T) {
	s, _ := newTestServer(t)

	// Create a test request
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	// Call the handler
	s.handleHealth(w, req)

	// Check response
	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	var health HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if !health.OK {
		t.Error("Expected health.OK to be true")
	}
	if health.DB != "ok" {
		t.Errorf("Expected DB status 'ok', got '%s'", health.DB)
	}
	if health.Version == "" {
		t.Error("Expected version to be set")
	}
	if health.Time == "" {
		t.Error("Expected time to be set")
	}
}

func TestHealthEndpoint_MethodNotAllowed(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/health", nil)
	w := httptest.NewRecorder()

	s.handleHealth(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("Expected status 405, got %d", resp.StatusCode)
	}
}

func TestHealthEndpoint_DBError(t *testing.T) {
	s, st := newTestServer(t)

	// Close the store to simulate DB error
	st.Close()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	s.handleHealth(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503, got %d", resp.StatusCode)
	}

	var health HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if health.OK {
		t.Error("Expected health.OK to be false when DB is down")
	}
	if health.DB == "ok" {
		t.Error("Expected DB status to indicate error")
	}
}

func TestTasksAll_Paging(t *testing.T) {
	s, st := newTestServer(t)
	for _, inst := range []string{"1", "2", "3"} {
		upsert(t, st, models.Task{TaskName: "job-A", TaskInstance: inst})
	}

	w := serve(s, http.MethodGet, "/api/tasks/all?pageNumber=1&size=2&sorting=TASK_INSTANCE")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var page models.Page[models.Task]
	if err := json.NewDecoder(w.Body).Decode(&page); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if page.NumberOfItems != 3 || page.NumberOfPages != 2 {
		t.Errorf("Expected 3 items over 2 pages, got %d over %d", page.NumberOfItems, page.NumberOfPages)
	}
	if len(page.Items) != 1 || page.Items[0].TaskInstance != "3" {
		t.Errorf("Expected only instance 3 on page 1, got %+v", page.Items)
	}
}

func TestTasksAll_EmptyListIsArray(t *testing.T) {
	s, _ := newTestServer(t)

	w := serve(s, http.MethodGet, "/api/tasks/all")
	if !strings.Contains(w.Body.String(), `"items":[]`) {
		t.Errorf("Expected empty items array, got %s", w.Body.String())
	}
}

func TestTasksAll_BadParams(t *testing.T) {
	s, _ := newTestServer(t)

	for _, path := range []string{
		"/api/tasks/all?filter=SUCCEEDED",
		"/api/tasks/all?filter=BOGUS",
		"/api/tasks/all?asc=maybe",
		"/api/tasks/all?pageNumber=-1",
		"/api/tasks/all?pageNumber=9223372036854775807",
		"/api/tasks/all?pageNumber=4294968",
		"/api/logs/all?pageNumber=4294968",
		"/api/tasks/all?size=0",
		"/api/tasks/all?startTime=yesterday",
	} {
		w := serve(s, http.MethodGet, path)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected status 400, got %d", path, w.Code)
		}
	}
}

func TestTasksPoll_CountsSinceListing(t *testing.T) {
	s, st := newTestServer(t)
	upsert(t, st, models.Task{TaskName: "job-A", TaskInstance: "1"})
	upsert(t, st, models.Task{TaskName: "job-A", TaskInstance: "2"})

	// No snapshot yet: zero counts.
	if got := poll(t, s, "/api/tasks/poll"); got != (models.PollResponse{}) {
		t.Errorf("Expected zero counts before any listing, got %+v", got)
	}

	serve(s, http.MethodGet, "/api/tasks/all")

	upsert(t, st, models.Task{TaskName: "job-A", TaskInstance: "1", ConsecutiveFailures: 1})
	upsert(t, st, models.Task{TaskName: "job-A", TaskInstance: "2", Picked: true})
	upsert(t, st, models.Task{TaskName: "job-B", TaskInstance: "1"})

	got := poll(t, s, "/api/tasks/poll")
	want := models.PollResponse{NewFailures: 1, NewRunning: 1, NewTasks: 1}
	if got != want {
		t.Errorf("Expected %+v, got %+v", want, got)
	}

	// A fresh listing resets the baseline.
	serve(s, http.MethodGet, "/api/tasks/all")
	if got := poll(t, s, "/api/tasks/poll"); got != (models.PollResponse{}) {
		t.Errorf("Expected zero counts after relisting, got %+v", got)
	}
}

func TestTasksPoll_SignaturesAreIndependent(t *testing.T) {
	s, st := newTestServer(t)
	serve(s, http.MethodGet, "/api/tasks/all?taskName=job-A")
	serve(s, http.MethodGet, "/api/tasks/all?taskName=job-B")

	upsert(t, st, models.Task{TaskName: "job-A", TaskInstance: "1"})

	if got := poll(t, s, "/api/tasks/poll?taskName=job-A"); got.NewTasks != 1 {
		t.Errorf("Expected one new job-A task, got %+v", got)
	}
	if got := poll(t, s, "/api/tasks/poll?taskName=job-B"); got.NewTasks != 0 {
		t.Errorf("Expected no new job-B tasks, got %+v", got)
	}
}

func TestTasksDelete(t *testing.T) {
	s, st := newTestServer(t)
	upsert(t, st, models.Task{TaskName: "job-A", TaskInstance: "42"})

	w := serve(s, http.MethodPost, "/api/tasks/delete?id=42&name=job-A")
	if w.Code != http.StatusNoContent {
		t.Fatalf("Expected status 204, got %d: %s", w.Code, w.Body.String())
	}

	w = serve(s, http.MethodPost, "/api/tasks/delete?id=42&name=job-A")
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 on second delete, got %d", w.Code)
	}

	w = serve(s, http.MethodPost, "/api/tasks/delete?name=job-A")
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 without instance, got %d", w.Code)
	}

	w = serve(s, http.MethodGet, "/api/tasks/delete?id=42&name=job-A")
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected status 405 for GET, got %d", w.Code)
	}

	var entries []models.AuditEntry
	w = serve(s, http.MethodGet, "/api/audit")
	if err := json.NewDecoder(w.Body).Decode(&entries); err != nil {
		t.Fatalf("Failed to decode audit: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Expected 2 audit entries, got %d", len(entries))
	}
	outcomes := map[string]bool{}
	for _, e := range entries {
		outcomes[e.Outcome] = true
		if e.Action != "task.delete" || e.TaskName != "job-A" || e.Instance != "42" {
			t.Errorf("Unexpected audit entry %+v", e)
		}
	}
	if !outcomes["success"] || !outcomes["not_found"] {
		t.Errorf("Expected success and not_found outcomes, got %v", outcomes)
	}
}

func TestLogsPoll(t *testing.T) {
	s, st := newTestServer(t)
	insertLog(t, st, "job-A", "1", true)

	serve(s, http.MethodGet, "/api/logs/all?taskName=job-A&taskId=1")

	insertLog(t, st, "job-A", "1", true)
	insertLog(t, st, "job-A", "1", false)
	insertLog(t, st, "job-A", "2", false)

	got := poll(t, s, "/api/logs/poll?taskName=job-A&taskId=1")
	want := models.PollResponse{NewFailures: 1, NewSucceeded: 1, NewTasks: 2}
	if got != want {
		t.Errorf("Expected %+v, got %+v", want, got)
	}

	w := serve(s, http.MethodGet, "/api/logs/all?filter=RUNNING")
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for RUNNING history filter, got %d", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	serve(s, http.MethodGet, "/api/tasks/poll")
	serve(s, http.MethodGet, "/api/tasks/poll")

	w := serve(s, http.MethodGet, "/metrics")
	body, _ := io.ReadAll(w.Body)
	for _, want := range []string{
		`taskboard_polls_total{kind="tasks"} 2`,
		`taskboard_http_requests_total{code="200",route="/api/tasks/poll"} 2`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("Expected metrics to contain %q", want)
		}
	}
}

func newTestServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	st, err := store.New(dbPath)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	cache := snapshot.NewMemoryCache(16, time.Minute)
	t.Cleanup(func() {
		cache.Close()
		st.Close()
	})

	service := NewService(st, audit.NewWriter(st), cache)
	return NewServer(service, st, "127.0.0.1:0"), st
}

func serve(s *Server, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func poll(t *testing.T, s *Server, path string) models.PollResponse {
	t.Helper()
	w := serve(s, http.MethodGet, path)
	if w.Code != http.StatusOK {
		t.Fatalf("%s: expected status 200, got %d: %s", path, w.Code, w.Body.String())
	}
	var resp models.PollResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode poll response: %v", err)
	}
	return resp
}

func upsert(t *testing.T, st *store.Store, task models.Task) {
	t.Helper()
	if task.ExecutionTime.IsZero() {
		task.ExecutionTime = time.Now().UTC()
	}
	if err := st.UpsertTask(task); err != nil {
		t.Fatalf("Failed to upsert task: %v", err)
	}
}

func insertLog(t *testing.T, st *store.Store, name, instance string, succeeded bool) {
	t.Helper()
	now := time.Now().UTC()
	if _, err := st.InsertLog(models.LogEntry{
		TaskName:     name,
		TaskInstance: instance,
		TimeStarted:  now.Add(-time.Second),
		TimeFinished: now,
		Succeeded:    succeeded,
		DurationMs:   1000,
	}); err != nil {
		t.Fatalf("Failed to insert log: %v", err)
	}
}
