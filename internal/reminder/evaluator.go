package reminder

import (
	"time"

	"github.com/hiroki-koketsu/taskdrop/internal/model"
)

const (
	// DefaultTolerance is the half-width of the match window around the fire instant.
	DefaultTolerance = 2 * time.Minute

	dueTimeLayout = "15:04"
)

// Evaluator decides whether a task's reminder is due. It holds no mutable
// state and may be shared between goroutines.
type Evaluator struct {
	// Location is the calendar that due dates, due times and "now" are read in.
	// Nil means time.Local.
	Location *time.Location
	// Tolerance is compared in whole minutes of the day. Zero means DefaultTolerance.
	Tolerance time.Duration
}

// NewEvaluator creates an Evaluator for the given calendar location.
func NewEvaluator(loc *time.Location) *Evaluator {
	return &Evaluator{Location: loc, Tolerance: DefaultTolerance}
}

func (e *Evaluator) location() *time.Location {
	if e == nil || e.Location == nil {
		return time.Local
	}
	return e.Location
}

func (e *Evaluator) toleranceMinutes() int {
	if e == nil || e.Tolerance <= 0 {
		return int(DefaultTolerance / time.Minute)
	}
	return int(e.Tolerance / time.Minute)
}

// Eligible reports whether the task carries everything a reminder needs.
func Eligible(task model.Task) bool {
	return !task.Done && task.DueDate != "" && task.DueTime != "" && task.Notification != ""
}

// DueInstant combines the task's due date and time in the evaluator's location.
func (e *Evaluator) DueInstant(task model.Task) (time.Time, bool) {
	loc := e.location()
	day, err := time.ParseInLocation(model.DateLayout, task.DueDate, loc)
	if err != nil {
		return time.Time{}, false
	}
	clock, err := time.Parse(dueTimeLayout, task.DueTime)
	if err != nil {
		return time.Time{}, false
	}
	return time.Date(day.Year(), day.Month(), day.Day(), clock.Hour(), clock.Minute(), 0, 0, loc), true
}

// FireInstant returns when the task's notification should be delivered.
// ok is false for tasks that are not eligible or carry malformed dates.
func (e *Evaluator) FireInstant(task model.Task) (time.Time, bool) {
	if !Eligible(task) {
		return time.Time{}, false
	}
	due, ok := e.DueInstant(task)
	if !ok {
		return time.Time{}, false
	}
	offset, _ := LookupOffset(task.Notification)
	return offset.Before(due), true
}

// Match reports whether now falls inside the tolerance window of the task's
// fire instant. The window never crosses midnight: the calendar date of now
// must equal the date of the fire instant.
func (e *Evaluator) Match(task model.Task, now time.Time) bool {
	fire, ok := e.FireInstant(task)
	if !ok {
		return false
	}
	return e.Within(fire, now)
}

// Within applies the date and time-of-day checks to an already computed fire instant.
func (e *Evaluator) Within(fire, now time.Time) bool {
	now = now.In(e.location())
	fire = fire.In(e.location())

	fy, fm, fd := fire.Date()
	ny, nm, nd := now.Date()
	if fy != ny || fm != nm || fd != nd {
		return false
	}

	diff := minuteOfDay(now) - minuteOfDay(fire)
	if diff < 0 {
		diff = -diff
	}
	return diff <= e.toleranceMinutes()
}

func minuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}
