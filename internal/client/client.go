// Package client talks to the taskboard daemon over HTTP.
package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/fentz26/taskboard/internal/models"
)

// DefaultTimeout bounds every request made by the client.
const DefaultTimeout = 10 * time.Second

// ErrNotFound is returned when the daemon answers 404.
var ErrNotFound = errors.New("not found")

// APIError is a non-2xx answer from the daemon.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.Status, e.Message)
}

// Is lets errors.Is(err, ErrNotFound) match a 404.
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.Status == http.StatusNotFound
}

// HealthResponse matches the daemon's health payload.
type HealthResponse struct {
	OK      bool   `json:"ok"`
	DB      string `json:"db"`
	Version string `json:"version"`
	Time    string `json:"time"`
}

// Client wraps calls to the daemon API.
type Client struct {
	http *resty.Client
	log  logrus.FieldLogger
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.SetTimeout(d) }
}

// WithLogger sets the request logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(c *Client) { c.log = l }
}

// New creates a client for the daemon at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		http: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")).
			SetTimeout(DefaultTimeout).
			SetHeader("Accept", "application/json"),
		log: logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the daemon address the client targets.
func (c *Client) BaseURL() string {
	return c.http.BaseURL
}

// Health checks the daemon. The payload is returned alongside the error
// on a non-200 answer so callers can inspect it.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var health HealthResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&health).
		SetError(&health).
		Get("/health")
	if err != nil {
		return nil, errors.Wrap(err, "health request failed")
	}
	if resp.StatusCode() != http.StatusOK {
		return &health, apiError(resp)
	}
	return &health, nil
}

// ListTasks fetches one page of scheduled tasks for q. Pages are 0-based.
func (c *Client) ListTasks(ctx context.Context, q models.QueryParams, page, size int) (models.Page[models.Task], error) {
	var out models.Page[wireTask]
	if err := c.get(ctx, "/api/tasks/all", pageValues(q, page, size), &out); err != nil {
		return models.Page[models.Task]{}, errors.Wrapf(err, "list tasks page %d", page)
	}
	items := make([]models.Task, len(out.Items))
	for i, t := range out.Items {
		items[i] = t.model()
	}
	return models.Page[models.Task]{Items: items, NumberOfItems: out.NumberOfItems, NumberOfPages: out.NumberOfPages}, nil
}

// ListLogs fetches one page of execution history for q.
func (c *Client) ListLogs(ctx context.Context, q models.QueryParams, page, size int) (models.Page[models.LogEntry], error) {
	var out models.Page[wireLog]
	if err := c.get(ctx, "/api/logs/all", pageValues(q, page, size), &out); err != nil {
		return models.Page[models.LogEntry]{}, errors.Wrapf(err, "list logs page %d", page)
	}
	items := make([]models.LogEntry, len(out.Items))
	for i, l := range out.Items {
		items[i] = l.model()
	}
	return models.Page[models.LogEntry]{Items: items, NumberOfItems: out.NumberOfItems, NumberOfPages: out.NumberOfPages}, nil
}

// PollTasks asks for task deltas since the last full listing of q.
func (c *Client) PollTasks(ctx context.Context, q models.QueryParams) (models.PollResponse, error) {
	var out models.PollResponse
	if err := c.get(ctx, "/api/tasks/poll", q.Values(), &out); err != nil {
		return models.PollResponse{}, errors.Wrap(err, "poll tasks")
	}
	return out, nil
}

// PollLogs asks for history deltas since the last full listing of q.
func (c *Client) PollLogs(ctx context.Context, q models.QueryParams) (models.PollResponse, error) {
	var out models.PollResponse
	if err := c.get(ctx, "/api/logs/poll", q.Values(), &out); err != nil {
		return models.PollResponse{}, errors.Wrap(err, "poll logs")
	}
	return out, nil
}

// DeleteTask removes one task instance.
func (c *Client) DeleteTask(ctx context.Context, instance, name string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("id", instance).
		SetQueryParam("name", name).
		Post("/api/tasks/delete")
	if err != nil {
		return errors.Wrapf(err, "delete task %s/%s", name, instance)
	}
	if resp.IsError() {
		return errors.Wrapf(apiError(resp), "delete task %s/%s", name, instance)
	}
	c.log.WithFields(logrus.Fields{
		"component":     "client",
		"task_name":     name,
		"task_instance": instance,
	}).Info("task deleted")
	return nil
}

// ListAudit returns the most recent audit entries, newest first.
func (c *Client) ListAudit(ctx context.Context, limit int) ([]models.AuditEntry, error) {
	v := url.Values{}
	if limit > 0 {
		v.Set("limit", strconv.Itoa(limit))
	}
	var out []models.AuditEntry
	if err := c.get(ctx, "/api/audit", v, &out); err != nil {
		return nil, errors.Wrap(err, "list audit")
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, result interface{}) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParamsFromValues(params).
		SetResult(result).
		Get(path)
	if err != nil {
		return errors.Wrap(err, "API request failed")
	}
	if resp.IsError() {
		return apiError(resp)
	}
	return nil
}

func apiError(resp *resty.Response) error {
	msg := strings.TrimSpace(resp.String())
	if msg == "" {
		msg = http.StatusText(resp.StatusCode())
	}
	return &APIError{Status: resp.StatusCode(), Message: msg}
}

func pageValues(q models.QueryParams, page, size int) url.Values {
	v := q.Normalize().Values()
	v.Set("pageNumber", strconv.Itoa(page))
	if size > 0 {
		v.Set("size", strconv.Itoa(size))
	}
	return v
}
