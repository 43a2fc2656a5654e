package reminder

import (
	"sync"
	"time"
)

// DefaultRetention is how long a delivered reminder is remembered after its fire instant.
const DefaultRetention = 24 * time.Hour

type ledgerKey struct {
	taskID string
	fire   int64
}

// Ledger remembers which (task, fire instant) pairs were already delivered so
// a reminder is sent once per window instead of once per poll cycle.
// Editing a task's due date or notification produces a new fire instant and
// therefore a new reminder.
type Ledger struct {
	mu        sync.Mutex
	sent      map[ledgerKey]time.Time
	retention time.Duration
}

// NewLedger creates an empty Ledger. A non-positive retention uses DefaultRetention.
func NewLedger(retention time.Duration) *Ledger {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Ledger{
		sent:      make(map[ledgerKey]time.Time),
		retention: retention,
	}
}

// Seen reports whether the reminder was already recorded.
func (l *Ledger) Seen(taskID string, fire time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.sent[ledgerKey{taskID, fire.Unix()}]
	return ok
}

// Record marks the reminder as delivered.
func (l *Ledger) Record(taskID string, fire time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sent[ledgerKey{taskID, fire.Unix()}] = fire
}

// Prune drops entries whose fire instant is older than the retention period.
// It returns the number of entries removed.
func (l *Ledger) Prune(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for k, fire := range l.sent {
		if now.Sub(fire) > l.retention {
			delete(l.sent, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of remembered reminders.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.sent)
}
