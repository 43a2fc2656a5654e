package taskapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hiroki-koketsu/taskdrop/internal/handler"
	"github.com/hiroki-koketsu/taskdrop/internal/model"
	"github.com/hiroki-koketsu/taskdrop/internal/repository"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newBackend(t *testing.T) *Client {
	t.Helper()
	h := handler.NewTaskHandler(repository.NewTaskRepository(), discardLogger(), nil)
	srv := httptest.NewServer(handler.NewTaskAPIRouter(h))
	t.Cleanup(srv.Close)
	return New(srv.URL, WithHTTPClient(srv.Client()), WithLogger(discardLogger()))
}

func TestClientRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := newBackend(t)

	id, err := c.Create(ctx, &model.CreateTaskRequest{
		UserID:       3,
		Title:        "Сдать отчёт",
		DueDate:      "2025-05-01",
		DueTime:      "09:00",
		Notification: "За день",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	tasks, err := c.List(ctx, 3)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != id {
		t.Fatalf("List = %+v", tasks)
	}

	got, err := c.Get(ctx, 3, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Notification != "За день" {
		t.Errorf("Notification = %q", got.Notification)
	}

	if err := c.SetNotification(ctx, id, "За 5 минут"); err != nil {
		t.Fatalf("SetNotification: %v", err)
	}
	if err := c.Complete(ctx, id); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	got, err = c.Get(ctx, 3, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !got.Done || got.Notification != "За 5 минут" {
		t.Errorf("task after updates = %+v", got)
	}

	if err := c.Delete(ctx, id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := c.Get(ctx, 3, id); !errors.Is(err, model.ErrTaskNotFound) {
		t.Errorf("Get after delete = %v, want ErrTaskNotFound", err)
	}
	if err := c.Delete(ctx, id); !errors.Is(err, model.ErrTaskNotFound) {
		t.Errorf("Delete missing = %v, want ErrTaskNotFound", err)
	}
}

func TestClientCreateValidationError(t *testing.T) {
	c := newBackend(t)

	_, err := c.Create(context.Background(), &model.CreateTaskRequest{UserID: 1})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Create error = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest || apiErr.Message != "title is required" {
		t.Errorf("APIError = %+v", apiErr)
	}
}

// Some deployments only expose list and mutation routes.
func TestClientGetFallsBackToList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/tasks" && r.URL.Query().Get("user_id") == "9" {
			json.NewEncoder(w).Encode([]model.Task{{ID: "a", Title: "A"}, {ID: "b", Title: "B"}})
			return
		}
		w.WriteHeader(http.StatusMethodNotAllowed)
	}))
	defer srv.Close()

	c := New(srv.URL, WithLogger(discardLogger()))
	task, err := c.Get(context.Background(), 9, "b")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if task.Title != "B" {
		t.Errorf("Title = %q, want B", task.Title)
	}

	if _, err := c.Get(context.Background(), 9, "zzz"); !errors.Is(err, model.ErrTaskNotFound) {
		t.Errorf("Get(zzz) = %v, want ErrTaskNotFound", err)
	}
}

func TestClientServerErrorMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"message":"database is down"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, WithLogger(discardLogger()))
	_, err := c.List(context.Background(), 1)
	if err == nil || !strings.Contains(err.Error(), "database is down") {
		t.Fatalf("List error = %v", err)
	}
	if errors.Is(err, model.ErrTaskNotFound) {
		t.Error("500 must not match ErrTaskNotFound")
	}
}

func TestClientTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := New(srv.URL, WithTimeout(50*time.Millisecond), WithLogger(discardLogger()))
	start := time.Now()
	_, err := c.List(context.Background(), 1)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want deadline exceeded", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("timeout was not applied")
	}
}

func TestClientCreateRequiresID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	c := New(srv.URL, WithLogger(discardLogger()))
	if _, err := c.Create(context.Background(), &model.CreateTaskRequest{Title: "x"}); err == nil {
		t.Error("Create without id in response should fail")
	}
}

func TestClientListSkipsMalformedTasks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"id":"a","title":"naive","created_at":"2025-04-20T08:00:00","due_date":"2025-04-20","due_time":"10:00","notification":"За 1 час"},
			{"id":7,"title":"numeric","done":false},
			{"id":"c","title":"broken","done":"no"},
			{"id":{"v":1},"title":"bad id"}
		]`))
	}))
	defer srv.Close()

	c := New(srv.URL, WithLogger(discardLogger()))
	tasks, err := c.List(context.Background(), 1)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("List returned %d tasks, want 2: %+v", len(tasks), tasks)
	}
	if tasks[0].ID != "a" || tasks[0].Notification != "За 1 час" {
		t.Errorf("tasks[0] = %+v", tasks[0])
	}
	if !tasks[0].CreatedAt.Equal(time.Date(2025, 4, 20, 8, 0, 0, 0, time.UTC)) {
		t.Errorf("CreatedAt = %v", tasks[0].CreatedAt)
	}
	if tasks[1].ID != "7" {
		t.Errorf("numeric id decoded as %q", tasks[1].ID)
	}
}

func TestClientGetNumericID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":42,"title":"x","created_at":"2025-04-20 08:00:00"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, WithLogger(discardLogger()))
	task, err := c.Get(context.Background(), 1, "42")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if task.ID != "42" {
		t.Errorf("ID = %q, want 42", task.ID)
	}
}
