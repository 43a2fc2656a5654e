// Package taskapi is a client for the TaskDrop task REST API.
package taskapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hiroki-koketsu/taskdrop/internal/model"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultTimeout bounds every API call.
const DefaultTimeout = 10 * time.Second

var tracer = otel.Tracer("github.com/hiroki-koketsu/taskdrop/internal/taskapi")

// APIError is a non-2xx response from the task API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("task api: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("task api: %d %s", e.StatusCode, e.Message)
}

// Unwrap lets callers match a 404 with errors.Is(err, model.ErrTaskNotFound).
func (e *APIError) Unwrap() error {
	if e.StatusCode == http.StatusNotFound {
		return model.ErrTaskNotFound
	}
	return nil
}

// Client talks to the task API over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default instrumented HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets the logger used for request diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a Client for the API rooted at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		timeout:    DefaultTimeout,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// List returns every task owned by userID.
func (c *Client) List(ctx context.Context, userID int64) ([]model.Task, error) {
	ctx, span := tracer.Start(ctx, "taskapi.List",
		trace.WithAttributes(attribute.Int64("user.id", userID)),
	)
	defer span.End()

	q := url.Values{"user_id": {strconv.FormatInt(userID, 10)}}
	var items []json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/tasks?"+q.Encode(), nil, &items); err != nil {
		recordError(span, err)
		return nil, fmt.Errorf("list tasks for user %d: %w", userID, err)
	}

	// A task that does not decode is dropped; the rest of the list stands.
	tasks := make([]model.Task, 0, len(items))
	skipped := 0
	for i, item := range items {
		var task model.Task
		if err := json.Unmarshal(item, &task); err != nil {
			skipped++
			c.logger.WarnContext(ctx, "skipping malformed task",
				slog.Int64("user_id", userID),
				slog.Int("index", i),
				slog.Any("error", err),
			)
			continue
		}
		tasks = append(tasks, task)
	}

	span.SetAttributes(
		attribute.Int("task.count", len(tasks)),
		attribute.Int("task.skipped", skipped),
	)
	return tasks, nil
}

// Get returns one task. Deployments of the task API without a single-task
// route answer 404 or 405; the task is then looked up in userID's list.
func (c *Client) Get(ctx context.Context, userID int64, id string) (*model.Task, error) {
	ctx, span := tracer.Start(ctx, "taskapi.Get",
		trace.WithAttributes(attribute.String("task.id", id)),
	)
	defer span.End()

	var task model.Task
	err := c.do(ctx, http.MethodGet, "/tasks/"+url.PathEscape(id), nil, &task)
	if err == nil && task.ID != "" {
		return &task, nil
	}

	var apiErr *APIError
	if err != nil && !(errors.As(err, &apiErr) && (apiErr.StatusCode == http.StatusNotFound || apiErr.StatusCode == http.StatusMethodNotAllowed)) {
		recordError(span, err)
		return nil, fmt.Errorf("get task %s: %w", id, err)
	}

	c.logger.DebugContext(ctx, "single task route unavailable, searching user list",
		slog.String("task_id", id),
		slog.Int64("user_id", userID),
	)
	tasks, err := c.List(ctx, userID)
	if err != nil {
		recordError(span, err)
		return nil, err
	}
	for i := range tasks {
		if tasks[i].ID == id {
			return &tasks[i], nil
		}
	}
	return nil, fmt.Errorf("get task %s: %w", id, model.ErrTaskNotFound)
}

// Create stores a new task and returns its id.
func (c *Client) Create(ctx context.Context, req *model.CreateTaskRequest) (string, error) {
	ctx, span := tracer.Start(ctx, "taskapi.Create",
		trace.WithAttributes(attribute.Int64("user.id", req.UserID)),
	)
	defer span.End()

	var resp model.CreateTaskResponse
	if err := c.do(ctx, http.MethodPost, "/tasks", req, &resp); err != nil {
		recordError(span, err)
		return "", fmt.Errorf("create task: %w", err)
	}
	if resp.ID == "" {
		err := errors.New("create task: response carries no task id")
		recordError(span, err)
		return "", err
	}

	span.SetAttributes(attribute.String("task.id", resp.ID))
	return resp.ID, nil
}

// Update changes the fields present in req. The returned task is nil when
// the API answers without a body.
func (c *Client) Update(ctx context.Context, id string, req *model.UpdateTaskRequest) (*model.Task, error) {
	ctx, span := tracer.Start(ctx, "taskapi.Update",
		trace.WithAttributes(attribute.String("task.id", id)),
	)
	defer span.End()

	var task model.Task
	if err := c.do(ctx, http.MethodPut, "/tasks/"+url.PathEscape(id), req, &task); err != nil {
		recordError(span, err)
		return nil, fmt.Errorf("update task %s: %w", id, err)
	}
	if task.ID == "" {
		return nil, nil
	}
	return &task, nil
}

// Complete marks the task done.
func (c *Client) Complete(ctx context.Context, id string) error {
	done := true
	_, err := c.Update(ctx, id, &model.UpdateTaskRequest{Done: &done})
	return err
}

// SetNotification changes the reminder offset label of the task.
func (c *Client) SetNotification(ctx context.Context, id, notification string) error {
	_, err := c.Update(ctx, id, &model.UpdateTaskRequest{Notification: &notification})
	return err
}

// Delete removes the task.
func (c *Client) Delete(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "taskapi.Delete",
		trace.WithAttributes(attribute.String("task.id", id)),
	)
	defer span.End()

	if err := c.do(ctx, http.MethodDelete, "/tasks/"+url.PathEscape(id), nil, nil); err != nil {
		recordError(span, err)
		return fmt.Errorf("delete task %s: %w", id, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.DebugContext(ctx, "task api request", slog.String("method", method), slog.String("path", path))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return wrapError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(data)}
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// errorMessage extracts {"error": ...} or {"message": ...} from an error body.
func errorMessage(data []byte) string {
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return strings.TrimSpace(string(data))
	}
	if body.Message != "" {
		return body.Message
	}
	return body.Error
}

func wrapError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("request timed out: %w", err)
	}
	return err
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
