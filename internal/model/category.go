package model

import "time"

// DateLayout is the wire format of Task.DueDate.
const DateLayout = "2006-01-02"

// Category groups tasks for list views.
type Category string

const (
	CategoryAll       Category = "all"
	CategoryInbox     Category = "inbox"
	CategoryToday     Category = "today"
	CategoryTomorrow  Category = "tomorrow"
	CategoryNext7Days Category = "next7days"
	CategoryCompleted Category = "completed"
)

// Categories lists every category in display order.
var Categories = []Category{
	CategoryAll,
	CategoryInbox,
	CategoryToday,
	CategoryTomorrow,
	CategoryNext7Days,
	CategoryCompleted,
}

var categoryLabels = map[Category]string{
	CategoryAll:       "Все задачи",
	CategoryInbox:     "Входящие",
	CategoryToday:     "Сегодня",
	CategoryTomorrow:  "Завтра",
	CategoryNext7Days: "Следующие 7 дней",
	CategoryCompleted: "Завершенные",
}

// Label returns the user-facing name of the category.
func (c Category) Label() string {
	if l, ok := categoryLabels[c]; ok {
		return l
	}
	return string(c)
}

// ParseCategory validates a category identifier.
func ParseCategory(s string) (Category, bool) {
	c := Category(s)
	_, ok := categoryLabels[c]
	return c, ok
}

// Classify returns the single most specific category of task relative to now.
// Tasks whose due date cannot be parsed land in the inbox.
func Classify(task Task, now time.Time) Category {
	if task.Done {
		return CategoryCompleted
	}
	if task.DueDate == "" {
		return CategoryInbox
	}
	due, err := time.ParseInLocation(DateLayout, task.DueDate, now.Location())
	if err != nil {
		return CategoryInbox
	}

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	tomorrow := today.AddDate(0, 0, 1)
	weekLater := today.AddDate(0, 0, 7)

	switch {
	case due.Equal(today):
		return CategoryToday
	case due.Equal(tomorrow):
		return CategoryTomorrow
	case due.After(tomorrow) && !due.After(weekLater):
		return CategoryNext7Days
	default:
		return CategoryAll
	}
}

// FilterByCategory returns the tasks belonging to category. The "all" view holds every
// open task, and "inbox" holds open tasks that are not scheduled within the coming week.
func FilterByCategory(tasks []Task, category Category, now time.Time) []Task {
	var out []Task
	for _, t := range tasks {
		c := Classify(t, now)
		var keep bool
		switch category {
		case CategoryCompleted:
			keep = c == CategoryCompleted
		case CategoryAll:
			keep = c != CategoryCompleted
		case CategoryInbox:
			keep = c == CategoryInbox || c == CategoryAll
		default:
			keep = c == category
		}
		if keep {
			out = append(out, t)
		}
	}
	return out
}
