package controlplane

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fentz26/taskboard/internal/models"
	"github.com/fentz26/taskboard/internal/store"
)

// Version is reported by /health. Overridden at build time.
var Version = "dev"

const (
	defaultPageSize = 50
	maxPageSize     = 500
	maxPage         = math.MaxInt32 / maxPageSize // keeps page*size within int32
)

// Server provides the HTTP API for taskboard.
type Server struct {
	service *Service
	store   *store.Store
	addr    string
	server  *http.Server
	log     logrus.FieldLogger
}

// NewServer creates a new HTTP server.
func NewServer(service *Service, st *store.Store, addr string) *Server {
	return &Server{
		service: service,
		store:   st,
		addr:    addr,
		log:     logrus.WithField("component", "http"),
	}
}

// SetLogger replaces the request logger.
func (s *Server) SetLogger(l logrus.FieldLogger) {
	s.log = l
}

// Handler builds the request router.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	m := s.service.Metrics()

	// Task endpoints
	mux.HandleFunc("/api/tasks/all", m.instrument("/api/tasks/all", s.handleTasksAll))
	mux.HandleFunc("/api/tasks/poll", m.instrument("/api/tasks/poll", s.handleTasksPoll))
	mux.HandleFunc("/api/tasks/delete", m.instrument("/api/tasks/delete", s.handleTasksDelete))

	// History endpoints
	mux.HandleFunc("/api/logs/all", m.instrument("/api/logs/all", s.handleLogsAll))
	mux.HandleFunc("/api/logs/poll", m.instrument("/api/logs/poll", s.handleLogsPoll))

	mux.HandleFunc("/api/audit", m.instrument("/api/audit", s.handleAudit))

	mux.HandleFunc("/health", m.instrument("/health", s.handleHealth))
	mux.Handle("/metrics", m.Handler())

	return s.logRequests(mux)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	s.log.WithField("addr", s.addr).Info("starting taskboard daemon")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"duration": time.Since(start),
		}).Debug("request served")
	})
}

// --- Health ---

// HealthResponse is the /health payload.
type HealthResponse struct {
	OK      bool   `json:"ok"`
	DB      string `json:"db"`
	Version string `json:"version"`
	Time    string `json:"time"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	health := HealthResponse{
		OK:      true,
		DB:      "ok",
		Version: Version,
		Time:    time.Now().UTC().Format(time.RFC3339),
	}
	status := http.StatusOK
	if err := s.store.Ping(ctx); err != nil {
		health.OK = false
		health.DB = "error: " + err.Error()
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, health)
}

// --- Task Handlers ---

func (s *Server) handleTasksAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q, err := parseSignature(r, models.TaskFilters)
	if err != nil {
		s.writeError(w, err)
		return
	}
	page, size, err := parsePage(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	result, err := s.service.ListTasks(r.Context(), q, page, size)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleTasksPoll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q, err := parseSignature(r, models.TaskFilters)
	if err != nil {
		s.writeError(w, err)
		return
	}

	resp, err := s.service.PollTasks(r.Context(), q)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTasksDelete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	instance := r.URL.Query().Get("id")
	name := r.URL.Query().Get("name")

	if err := s.service.DeleteTask(r.Context(), instance, name); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- History Handlers ---

func (s *Server) handleLogsAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q, err := parseSignature(r, models.LogFilters)
	if err != nil {
		s.writeError(w, err)
		return
	}
	page, size, err := parsePage(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	result, err := s.service.ListLogs(r.Context(), q, page, size)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleLogsPoll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q, err := parseSignature(r, models.LogFilters)
	if err != nil {
		s.writeError(w, err)
		return
	}

	resp, err := s.service.PollLogs(r.Context(), q)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	entries, err := s.service.ListAudit(r.Context(), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if entries == nil {
		entries = []models.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// --- Helpers ---

func parseSignature(r *http.Request, allowed []models.Filter) (models.QueryParams, error) {
	q, err := models.ParseQueryParams(r.URL.Query())
	if err != nil {
		return q, err
	}
	for _, f := range allowed {
		if q.Filter == f {
			return q, nil
		}
	}
	return q, ErrFilterNotAllowed
}

func parsePage(r *http.Request) (page, size int, err error) {
	v := r.URL.Query()
	size = defaultPageSize
	if raw := v.Get("pageNumber"); raw != "" {
		if page, err = strconv.Atoi(raw); err != nil || page < 0 || page > maxPage {
			return 0, 0, ErrInvalidPage
		}
	}
	if raw := v.Get("size"); raw != "" {
		if size, err = strconv.Atoi(raw); err != nil || size < 1 || size > maxPageSize {
			return 0, 0, ErrInvalidPage
		}
	}
	return page, size, nil
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrTaskNotFound):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrInvalidQuery),
		errors.Is(err, ErrMissingIdentity),
		errors.Is(err, ErrFilterNotAllowed),
		errors.Is(err, ErrInvalidPage):
		status = http.StatusBadRequest
	default:
		s.log.WithError(err).Error("request failed")
	}
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
