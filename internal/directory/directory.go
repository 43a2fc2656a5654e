// Package directory maps task owners to the chats their reminders go to.
package directory

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Route connects a task API user to a messaging chat.
type Route struct {
	UserID    int64
	ChatID    int64
	UpdatedAt time.Time
}

// Directory stores chat routes.
type Directory interface {
	Register(ctx context.Context, userID, chatID int64) error
	Lookup(ctx context.Context, userID int64) (chatID int64, ok bool, err error)
	Routes(ctx context.Context) ([]Route, error)
}

// Memory is an in-process Directory. Routes are lost on restart.
type Memory struct {
	mu     sync.RWMutex
	routes map[int64]Route
	now    func() time.Time
}

// NewMemory creates an empty Memory directory.
func NewMemory() *Memory {
	return &Memory{
		routes: make(map[int64]Route),
		now:    time.Now,
	}
}

// Register stores or replaces the chat for userID.
func (m *Memory) Register(_ context.Context, userID, chatID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routes[userID] = Route{UserID: userID, ChatID: chatID, UpdatedAt: m.now()}
	return nil
}

// Lookup returns the chat registered for userID.
func (m *Memory) Lookup(_ context.Context, userID int64) (int64, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.routes[userID]
	return r.ChatID, ok, nil
}

// Routes returns every route ordered by user id.
func (m *Memory) Routes(_ context.Context) ([]Route, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	routes := make([]Route, 0, len(m.routes))
	for _, r := range m.routes {
		routes = append(routes, r)
	}
	sort.Slice(routes, func(i, j int) bool { return routes[i].UserID < routes[j].UserID })
	return routes, nil
}
