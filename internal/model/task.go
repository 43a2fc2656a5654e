package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"
)

const (
	// MaxTitleLength is the longest accepted task title, in characters.
	MaxTitleLength = 100
	// MaxDescriptionLength is the longest accepted task description, in characters.
	MaxDescriptionLength = 500
)

// Task represents a todo item as exchanged with the task API.
type Task struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Description  string    `json:"description,omitempty"`
	Done         bool      `json:"done"`
	CreatedAt    time.Time `json:"created_at"`
	Priority     string    `json:"priority,omitempty"`
	DueDate      string    `json:"due_date,omitempty"`
	DueTime      string    `json:"due_time,omitempty"`
	Notification string    `json:"notification,omitempty"`
	Tags         []string  `json:"tags,omitempty"`
	Notes        string    `json:"notes,omitempty"`
	Location     string    `json:"location,omitempty"`
	Repeat       string    `json:"repeat,omitempty"`
	UserID       int64     `json:"user_id,omitempty"`
}

// timestampLayouts are tried in order when decoding created_at. Values
// without an offset are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	DateLayout,
}

// UnmarshalJSON accepts numeric ids and created_at values without a zone
// offset. An unreadable created_at is left zero.
func (t *Task) UnmarshalJSON(data []byte) error {
	type plain Task
	aux := struct {
		*plain
		ID        json.RawMessage `json:"id"`
		CreatedAt json.RawMessage `json:"created_at"`
	}{plain: (*plain)(t)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	id, err := decodeID(aux.ID)
	if err != nil {
		return err
	}
	t.ID = id
	t.CreatedAt = decodeTimestamp(aux.CreatedAt)
	return nil
}

func decodeID(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("invalid task id %s", raw)
	}
	return n.String(), nil
}

func decodeTimestamp(raw json.RawMessage) time.Time {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil || s == "" {
		return time.Time{}
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts
		}
	}
	return time.Time{}
}

// CreateTaskRequest represents the request body for creating a task.
// Older web clients send the title as "text".
type CreateTaskRequest struct {
	UserID       int64    `json:"user_id"`
	Title        string   `json:"title,omitempty"`
	Text         string   `json:"text,omitempty"`
	Description  string   `json:"description,omitempty"`
	Done         bool     `json:"done,omitempty"`
	Priority     string   `json:"priority,omitempty"`
	DueDate      string   `json:"due_date,omitempty"`
	DueTime      string   `json:"due_time,omitempty"`
	Notification string   `json:"notification,omitempty"`
	Tags         []string `json:"tags,omitempty"`
	Notes        string   `json:"notes,omitempty"`
	Location     string   `json:"location,omitempty"`
	Repeat       string   `json:"repeat,omitempty"`
}

// CreateTaskResponse is returned by the task API after a successful create.
type CreateTaskResponse struct {
	ID      string `json:"id"`
	Success bool   `json:"success"`
}

// UpdateTaskRequest represents the request body for updating a task.
// Nil fields are left untouched.
type UpdateTaskRequest struct {
	Title        *string   `json:"title,omitempty"`
	Description  *string   `json:"description,omitempty"`
	Done         *bool     `json:"done,omitempty"`
	Priority     *string   `json:"priority,omitempty"`
	DueDate      *string   `json:"due_date,omitempty"`
	DueTime      *string   `json:"due_time,omitempty"`
	Notification *string   `json:"notification,omitempty"`
	Tags         *[]string `json:"tags,omitempty"`
	Notes        *string   `json:"notes,omitempty"`
	Location     *string   `json:"location,omitempty"`
	Repeat       *string   `json:"repeat,omitempty"`
}

// TaskTitle returns the title, falling back to the legacy text field.
func (r *CreateTaskRequest) TaskTitle() string {
	if r.Title != "" {
		return r.Title
	}
	return r.Text
}

// Validate checks if the CreateTaskRequest is valid.
func (r *CreateTaskRequest) Validate() error {
	title := r.TaskTitle()
	if title == "" {
		return ErrTitleRequired
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return ErrTitleTooLong
	}
	if utf8.RuneCountInString(r.Description) > MaxDescriptionLength {
		return ErrDescriptionTooLong
	}
	return nil
}

// Validate checks the fields present in the UpdateTaskRequest.
func (r *UpdateTaskRequest) Validate() error {
	if r.Title != nil {
		if *r.Title == "" {
			return ErrTitleRequired
		}
		if utf8.RuneCountInString(*r.Title) > MaxTitleLength {
			return ErrTitleTooLong
		}
	}
	if r.Description != nil && utf8.RuneCountInString(*r.Description) > MaxDescriptionLength {
		return ErrDescriptionTooLong
	}
	return nil
}

// Apply copies the present fields onto task.
func (r *UpdateTaskRequest) Apply(task *Task) {
	if r.Title != nil {
		task.Title = *r.Title
	}
	if r.Description != nil {
		task.Description = *r.Description
	}
	if r.Done != nil {
		task.Done = *r.Done
	}
	if r.Priority != nil {
		task.Priority = *r.Priority
	}
	if r.DueDate != nil {
		task.DueDate = *r.DueDate
	}
	if r.DueTime != nil {
		task.DueTime = *r.DueTime
	}
	if r.Notification != nil {
		task.Notification = *r.Notification
	}
	if r.Tags != nil {
		task.Tags = append([]string(nil), (*r.Tags)...)
	}
	if r.Notes != nil {
		task.Notes = *r.Notes
	}
	if r.Location != nil {
		task.Location = *r.Location
	}
	if r.Repeat != nil {
		task.Repeat = *r.Repeat
	}
}

// TaskError represents a domain error for tasks.
type TaskError struct {
	Message string
}

func (e TaskError) Error() string {
	return e.Message
}

var (
	ErrTaskNotFound       = TaskError{Message: "task not found"}
	ErrTitleRequired      = TaskError{Message: "title is required"}
	ErrTitleTooLong       = TaskError{Message: "title is too long"}
	ErrDescriptionTooLong = TaskError{Message: "description is too long"}
	ErrUserRequired       = TaskError{Message: "user_id is required"}
)
