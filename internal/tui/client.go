package tui

import (
	"context"

	"github.com/fentz26/taskboard/internal/client"
	"github.com/fentz26/taskboard/internal/models"
)

// API is the daemon surface the dashboard depends on.
type API interface {
	ListTasks(ctx context.Context, q models.QueryParams, page, size int) (models.Page[models.Task], error)
	ListLogs(ctx context.Context, q models.QueryParams, page, size int) (models.Page[models.LogEntry], error)
	PollTasks(ctx context.Context, q models.QueryParams) (models.PollResponse, error)
	PollLogs(ctx context.Context, q models.QueryParams) (models.PollResponse, error)
	DeleteTask(ctx context.Context, instance, name string) error
	Health(ctx context.Context) (*client.HealthResponse, error)
}

var _ API = (*client.Client)(nil)
