package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hiroki-koketsu/taskdrop/internal/model"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/hiroki-koketsu/taskdrop/internal/repository")

// TaskRepository provides an in-memory storage for tasks.
type TaskRepository struct {
	mu    sync.RWMutex
	tasks map[string]*model.Task
	now   func() time.Time
}

// NewTaskRepository creates a new TaskRepository.
func NewTaskRepository() *TaskRepository {
	return &TaskRepository{
		tasks: make(map[string]*model.Task),
		now:   time.Now,
	}
}

// Create adds a new task to the repository.
func (r *TaskRepository) Create(ctx context.Context, req *model.CreateTaskRequest) (*model.Task, error) {
	_, span := tracer.Start(ctx, "TaskRepository.Create",
		trace.WithAttributes(
			attribute.String("task.title", req.TaskTitle()),
			attribute.Int64("user.id", req.UserID),
		),
	)
	defer span.End()

	r.mu.Lock()
	defer r.mu.Unlock()

	task := &model.Task{
		ID:           uuid.New().String(),
		Title:        req.TaskTitle(),
		Description:  req.Description,
		Done:         req.Done,
		CreatedAt:    r.now(),
		Priority:     req.Priority,
		DueDate:      req.DueDate,
		DueTime:      req.DueTime,
		Notification: req.Notification,
		Tags:         append([]string(nil), req.Tags...),
		Notes:        req.Notes,
		Location:     req.Location,
		Repeat:       req.Repeat,
		UserID:       req.UserID,
	}
	if task.Priority == "" {
		task.Priority = "medium"
	}

	r.tasks[task.ID] = task

	span.SetAttributes(attribute.String("task.id", task.ID))
	out := *task
	return &out, nil
}

// GetByID retrieves a task by its ID.
func (r *TaskRepository) GetByID(ctx context.Context, id string) (*model.Task, error) {
	_, span := tracer.Start(ctx, "TaskRepository.GetByID",
		trace.WithAttributes(attribute.String("task.id", id)),
	)
	defer span.End()

	r.mu.RLock()
	defer r.mu.RUnlock()

	task, ok := r.tasks[id]
	if !ok {
		span.SetAttributes(attribute.Bool("task.found", false))
		return nil, model.ErrTaskNotFound
	}

	span.SetAttributes(attribute.Bool("task.found", true))
	out := *task
	return &out, nil
}

// List returns the tasks owned by userID, oldest first.
func (r *TaskRepository) List(ctx context.Context, userID int64) ([]model.Task, error) {
	_, span := tracer.Start(ctx, "TaskRepository.List",
		trace.WithAttributes(attribute.Int64("user.id", userID)),
	)
	defer span.End()

	r.mu.RLock()
	defer r.mu.RUnlock()

	tasks := make([]model.Task, 0)
	for _, task := range r.tasks {
		if task.UserID == userID {
			tasks = append(tasks, *task)
		}
	}
	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].ID < tasks[j].ID
		}
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})

	span.SetAttributes(attribute.Int("task.count", len(tasks)))
	return tasks, nil
}

// Update modifies an existing task.
func (r *TaskRepository) Update(ctx context.Context, id string, req *model.UpdateTaskRequest) (*model.Task, error) {
	_, span := tracer.Start(ctx, "TaskRepository.Update",
		trace.WithAttributes(attribute.String("task.id", id)),
	)
	defer span.End()

	r.mu.Lock()
	defer r.mu.Unlock()

	task, ok := r.tasks[id]
	if !ok {
		span.SetAttributes(attribute.Bool("task.found", false))
		return nil, model.ErrTaskNotFound
	}

	req.Apply(task)

	span.SetAttributes(attribute.Bool("task.found", true))
	out := *task
	return &out, nil
}

// Delete removes a task from the repository.
func (r *TaskRepository) Delete(ctx context.Context, id string) error {
	_, span := tracer.Start(ctx, "TaskRepository.Delete",
		trace.WithAttributes(attribute.String("task.id", id)),
	)
	defer span.End()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tasks[id]; !ok {
		span.SetAttributes(attribute.Bool("task.found", false))
		return model.ErrTaskNotFound
	}

	delete(r.tasks, id)
	span.SetAttributes(attribute.Bool("task.found", true))
	return nil
}

// Count returns the current number of tasks.
func (r *TaskRepository) Count() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.tasks))
}
