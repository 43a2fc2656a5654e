// Package reminder decides when task notifications fire and delivers them on a polling schedule.
package reminder

import "time"

// Offset is how long before the due instant a notification fires.
// Days are kept separate from Duration so that "one day earlier" follows the calendar.
type Offset struct {
	Duration time.Duration
	Days     int
}

// Notification labels understood by the task API and the web app.
const (
	Before5Minutes  = "За 5 минут"
	Before10Minutes = "За 10 минут"
	Before15Minutes = "За 15 минут"
	Before30Minutes = "За 30 минут"
	Before1Hour     = "За 1 час"
	Before2Hours    = "За 2 часа"
	Before1Day      = "За день"
)

var offsets = map[string]Offset{
	Before5Minutes:  {Duration: 5 * time.Minute},
	Before10Minutes: {Duration: 10 * time.Minute},
	Before15Minutes: {Duration: 15 * time.Minute},
	Before30Minutes: {Duration: 30 * time.Minute},
	Before1Hour:     {Duration: time.Hour},
	Before2Hours:    {Duration: 2 * time.Hour},
	Before1Day:      {Days: 1},
}

// Choice pairs a notification label with the short key used in bot callback data.
type Choice struct {
	Key   string
	Label string
}

// Choices lists the recognized notification labels in picker order.
var Choices = []Choice{
	{Key: "5min", Label: Before5Minutes},
	{Key: "10min", Label: Before10Minutes},
	{Key: "15min", Label: Before15Minutes},
	{Key: "30min", Label: Before30Minutes},
	{Key: "1hour", Label: Before1Hour},
	{Key: "2hours", Label: Before2Hours},
	{Key: "1day", Label: Before1Day},
}

// LookupOffset returns the offset for a notification label. Unknown labels,
// including the empty string, map to the zero offset and ok == false.
func LookupOffset(notification string) (Offset, bool) {
	o, ok := offsets[notification]
	return o, ok
}

// LabelForKey resolves a callback key such as "1hour" to its label.
func LabelForKey(key string) (string, bool) {
	for _, c := range Choices {
		if c.Key == key {
			return c.Label, true
		}
	}
	return "", false
}

// Before returns t moved back by the offset.
func (o Offset) Before(t time.Time) time.Time {
	if o.Days != 0 {
		t = t.AddDate(0, 0, -o.Days)
	}
	return t.Add(-o.Duration)
}
