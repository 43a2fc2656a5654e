package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hiroki-koketsu/taskdrop/internal/model"
	"github.com/hiroki-koketsu/taskdrop/internal/repository"
	"github.com/hiroki-koketsu/taskdrop/internal/telemetry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/hiroki-koketsu/taskdrop/internal/handler")

const (
	routeTasks = "/tasks"
	routeTask  = "/tasks/{id}"
)

// TaskHandler serves the task API over HTTP.
type TaskHandler struct {
	repo    *repository.TaskRepository
	logger  *slog.Logger
	metrics *telemetry.Metrics
}

// NewTaskHandler creates a new TaskHandler. metrics may be nil.
func NewTaskHandler(repo *repository.TaskRepository, logger *slog.Logger, metrics *telemetry.Metrics) *TaskHandler {
	return &TaskHandler{
		repo:    repo,
		logger:  logger,
		metrics: metrics,
	}
}

// Routes returns the chi router with task routes.
func (h *TaskHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/{id}", h.GetByID)
	r.Put("/{id}", h.Update)
	r.Delete("/{id}", h.Delete)

	return r
}

// List returns the tasks of the user named by the user_id query parameter.
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	ctx, span := tracer.Start(ctx, "TaskHandler.List")
	defer span.End()

	userID, err := strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64)
	if err != nil {
		h.logger.WarnContext(ctx, "invalid user_id", slog.String("user_id", r.URL.Query().Get("user_id")))
		h.respondError(w, http.StatusBadRequest, model.ErrUserRequired.Error())
		h.metrics.RecordRequest(ctx, http.MethodGet, routeTasks, http.StatusBadRequest, start)
		return
	}
	span.SetAttributes(attribute.Int64("user.id", userID))

	tasks, err := h.repo.List(ctx, userID)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list tasks", slog.Any("error", err))
		h.respondError(w, http.StatusInternalServerError, "failed to list tasks")
		h.metrics.RecordRequest(ctx, http.MethodGet, routeTasks, http.StatusInternalServerError, start)
		return
	}

	span.SetAttributes(attribute.Int("task.count", len(tasks)))
	h.logger.InfoContext(ctx, "tasks listed", slog.Int64("user_id", userID), slog.Int("count", len(tasks)))

	h.respondJSON(w, http.StatusOK, tasks)
	h.metrics.RecordRequest(ctx, http.MethodGet, routeTasks, http.StatusOK, start)
}

// Create adds a new task and answers with its id.
func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	ctx, span := tracer.Start(ctx, "TaskHandler.Create")
	defer span.End()

	var req model.CreateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "invalid request body", slog.Any("error", err))
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		h.metrics.RecordRequest(ctx, http.MethodPost, routeTasks, http.StatusBadRequest, start)
		return
	}

	if err := req.Validate(); err != nil {
		h.logger.WarnContext(ctx, "validation failed", slog.Any("error", err))
		h.respondError(w, http.StatusBadRequest, err.Error())
		h.metrics.RecordRequest(ctx, http.MethodPost, routeTasks, http.StatusBadRequest, start)
		return
	}

	task, err := h.repo.Create(ctx, &req)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to create task", slog.Any("error", err))
		h.respondError(w, http.StatusInternalServerError, "failed to create task")
		h.metrics.RecordRequest(ctx, http.MethodPost, routeTasks, http.StatusInternalServerError, start)
		return
	}

	span.SetAttributes(attribute.String("task.id", task.ID))
	h.logger.InfoContext(ctx, "task created", slog.String("id", task.ID), slog.Int64("user_id", task.UserID))

	h.respondJSON(w, http.StatusCreated, model.CreateTaskResponse{ID: task.ID, Success: true})
	h.metrics.RecordRequest(ctx, http.MethodPost, routeTasks, http.StatusCreated, start)
}

// GetByID returns a task by ID.
func (h *TaskHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()
	id := chi.URLParam(r, "id")

	ctx, span := tracer.Start(ctx, "TaskHandler.GetByID",
		trace.WithAttributes(attribute.String("task.id", id)),
	)
	defer span.End()

	task, err := h.repo.GetByID(ctx, id)
	if err != nil {
		status := h.respondRepoError(w, r, err, "failed to get task")
		h.metrics.RecordRequest(ctx, http.MethodGet, routeTask, status, start)
		return
	}

	h.respondJSON(w, http.StatusOK, task)
	h.metrics.RecordRequest(ctx, http.MethodGet, routeTask, http.StatusOK, start)
}

// Update modifies an existing task.
func (h *TaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()
	id := chi.URLParam(r, "id")

	ctx, span := tracer.Start(ctx, "TaskHandler.Update",
		trace.WithAttributes(attribute.String("task.id", id)),
	)
	defer span.End()

	var req model.UpdateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "invalid request body", slog.Any("error", err))
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		h.metrics.RecordRequest(ctx, http.MethodPut, routeTask, http.StatusBadRequest, start)
		return
	}
	if err := req.Validate(); err != nil {
		h.logger.WarnContext(ctx, "validation failed", slog.Any("error", err))
		h.respondError(w, http.StatusBadRequest, err.Error())
		h.metrics.RecordRequest(ctx, http.MethodPut, routeTask, http.StatusBadRequest, start)
		return
	}

	task, err := h.repo.Update(ctx, id, &req)
	if err != nil {
		status := h.respondRepoError(w, r, err, "failed to update task")
		h.metrics.RecordRequest(ctx, http.MethodPut, routeTask, status, start)
		return
	}

	h.logger.InfoContext(ctx, "task updated", slog.String("id", id))

	h.respondJSON(w, http.StatusOK, task)
	h.metrics.RecordRequest(ctx, http.MethodPut, routeTask, http.StatusOK, start)
}

// Delete removes a task.
func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()
	id := chi.URLParam(r, "id")

	ctx, span := tracer.Start(ctx, "TaskHandler.Delete",
		trace.WithAttributes(attribute.String("task.id", id)),
	)
	defer span.End()

	if err := h.repo.Delete(ctx, id); err != nil {
		status := h.respondRepoError(w, r, err, "failed to delete task")
		h.metrics.RecordRequest(ctx, http.MethodDelete, routeTask, status, start)
		return
	}

	h.logger.InfoContext(ctx, "task deleted", slog.String("id", id))

	w.WriteHeader(http.StatusNoContent)
	h.metrics.RecordRequest(ctx, http.MethodDelete, routeTask, http.StatusNoContent, start)
}

// Health returns a health check response.
func (h *TaskHandler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *TaskHandler) respondRepoError(w http.ResponseWriter, r *http.Request, err error, msg string) int {
	ctx := r.Context()
	if errors.Is(err, model.ErrTaskNotFound) {
		h.logger.WarnContext(ctx, "task not found", slog.String("id", chi.URLParam(r, "id")))
		h.respondError(w, http.StatusNotFound, model.ErrTaskNotFound.Error())
		return http.StatusNotFound
	}
	h.logger.ErrorContext(ctx, msg, slog.Any("error", err))
	h.respondError(w, http.StatusInternalServerError, msg)
	return http.StatusInternalServerError
}

func (h *TaskHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	respondJSON(w, status, data)
}

func (h *TaskHandler) respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}
