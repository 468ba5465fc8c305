// Package controlplane provides the HTTP API and service layer for taskboard.
package controlplane

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fentz26/taskboard/internal/audit"
	"github.com/fentz26/taskboard/internal/models"
	"github.com/fentz26/taskboard/internal/snapshot"
	"github.com/fentz26/taskboard/internal/store"
)

// Service provides the dashboard business logic.
type Service struct {
	store   *store.Store
	audit   *audit.Writer
	cache   snapshot.Cache
	metrics *Metrics
	log     logrus.FieldLogger
	now     func() time.Time
}

// NewService creates a new control plane service.
func NewService(s *store.Store, w *audit.Writer, cache snapshot.Cache) *Service {
	return &Service{
		store:   s,
		audit:   w,
		cache:   cache,
		metrics: NewMetrics(),
		log:     logrus.WithField("component", "controlplane"),
		now:     time.Now,
	}
}

// SetLogger replaces the service logger.
func (s *Service) SetLogger(l logrus.FieldLogger) {
	s.log = l
}

// Metrics returns the service's collectors.
func (s *Service) Metrics() *Metrics {
	return s.metrics
}

// --- Tasks ---

// ListTasks returns one page of tasks. Serving the first page records a
// snapshot for q that later polls are compared against.
func (s *Service) ListTasks(ctx context.Context, q models.QueryParams, page, size int) (models.Page[models.Task], error) {
	result, err := s.store.ListTasks(ctx, q, page, size)
	if err != nil {
		return models.Page[models.Task]{}, err
	}
	if result.Items == nil {
		result.Items = []models.Task{}
	}
	if page == 0 {
		if err := s.snapshotTasks(ctx, q); err != nil {
			s.log.WithError(err).WithField("signature", q.Key()).Warn("failed to record task snapshot")
		}
	}
	return result, nil
}

// PollTasks counts task changes since the last snapshot for q. Without a
// snapshot it records one and reports no changes.
func (s *Service) PollTasks(ctx context.Context, q models.QueryParams) (models.PollResponse, error) {
	s.metrics.observePoll(snapshot.KindTasks)

	prev, ok, err := s.cache.Get(ctx, snapshot.Key(snapshot.KindTasks, q))
	if err != nil {
		return models.PollResponse{}, fmt.Errorf("load snapshot: %w", err)
	}
	if !ok {
		return models.PollResponse{}, s.snapshotTasks(ctx, q)
	}

	current, err := s.store.MatchingTasks(ctx, q)
	if err != nil {
		return models.PollResponse{}, err
	}
	return snapshot.DiffTasks(prev, current), nil
}

func (s *Service) snapshotTasks(ctx context.Context, q models.QueryParams) error {
	tasks, err := s.store.MatchingTasks(ctx, q)
	if err != nil {
		return err
	}
	return s.cache.Put(ctx, snapshot.Key(snapshot.KindTasks, q), snapshot.OfTasks(tasks, s.now()))
}

// DeleteTask removes a task instance and records the outcome in the
// audit log.
func (s *Service) DeleteTask(ctx context.Context, instance, name string) error {
	if instance == "" || name == "" {
		return ErrMissingIdentity
	}
	id := models.TaskID{Name: name, Instance: instance}
	inputs := map[string]string{"task_name": name, "task_instance": instance}

	err := s.store.DeleteTask(ctx, instance, name)
	switch {
	case errors.Is(err, store.ErrTaskNotFound):
		s.record("task.delete", inputs, "not_found", id, "")
		return ErrTaskNotFound
	case err != nil:
		s.record("task.delete", inputs, "failure", id, err.Error())
		return err
	}

	s.record("task.delete", inputs, "success", id, "")
	s.metrics.deleted.Inc()
	s.log.WithFields(logrus.Fields{
		"task_name":     name,
		"task_instance": instance,
	}).Info("task deleted")
	return nil
}

func (s *Service) record(action string, inputs interface{}, outcome string, id models.TaskID, details string) {
	if _, err := s.audit.Record(action, inputs, outcome, id, details); err != nil {
		s.log.WithError(err).WithField("action", action).Warn("failed to write audit entry")
	}
}

// --- History ---

// ListLogs returns one page of execution history. Serving the first page
// records the newest log id for later polls.
func (s *Service) ListLogs(ctx context.Context, q models.QueryParams, page, size int) (models.Page[models.LogEntry], error) {
	result, err := s.store.ListLogs(ctx, q, page, size)
	if err != nil {
		return models.Page[models.LogEntry]{}, err
	}
	if result.Items == nil {
		result.Items = []models.LogEntry{}
	}
	if page == 0 {
		if err := s.snapshotLogs(ctx, q); err != nil {
			s.log.WithError(err).WithField("signature", q.Key()).Warn("failed to record history snapshot")
		}
	}
	return result, nil
}

// PollLogs counts executions logged since the last snapshot for q.
// Running executions never appear in history, so NewRunning stays zero.
func (s *Service) PollLogs(ctx context.Context, q models.QueryParams) (models.PollResponse, error) {
	s.metrics.observePoll(snapshot.KindLogs)

	prev, ok, err := s.cache.Get(ctx, snapshot.Key(snapshot.KindLogs, q))
	if err != nil {
		return models.PollResponse{}, fmt.Errorf("load snapshot: %w", err)
	}
	if !ok {
		return models.PollResponse{}, s.snapshotLogs(ctx, q)
	}

	counts, err := s.store.CountLogsSince(ctx, q, prev.MaxLogID)
	if err != nil {
		return models.PollResponse{}, err
	}
	return models.PollResponse{
		NewFailures:  counts.Failed,
		NewSucceeded: counts.Succeeded,
		NewTasks:     counts.Total,
	}, nil
}

func (s *Service) snapshotLogs(ctx context.Context, q models.QueryParams) error {
	maxID, err := s.store.MaxLogID(ctx, q)
	if err != nil {
		return err
	}
	return s.cache.Put(ctx, snapshot.Key(snapshot.KindLogs, q), snapshot.OfLogs(maxID, s.now()))
}

// --- Audit ---

// ListAudit returns recent audit entries, newest first.
func (s *Service) ListAudit(ctx context.Context, limit int) ([]models.AuditEntry, error) {
	return s.store.ListAudit(ctx, limit)
}
