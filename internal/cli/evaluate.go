package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/hiroki-koketsu/taskdrop/internal/model"
	"github.com/hiroki-koketsu/taskdrop/internal/reminder"
	"github.com/spf13/cobra"
)

var evaluateFlags struct {
	date         string
	clock        string
	notification string
	now          string
	timezone     string
	done         bool
}

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Show when a reminder fires and whether it matches now",
	Long: `Evaluate the reminder rule for one task without contacting any service.

Example:
  taskdrop evaluate --date 2025-05-01 --time 09:00 --notification "За день" --now "2025-04-30 09:01"`,
	Args: cobra.NoArgs,
	RunE: runEvaluate,
}

func init() {
	f := evaluateCmd.Flags()
	f.StringVar(&evaluateFlags.date, "date", "", "due date (YYYY-MM-DD)")
	f.StringVar(&evaluateFlags.clock, "time", "", "due time (HH:MM)")
	f.StringVar(&evaluateFlags.notification, "notification", "", "notification label, e.g. \"За 1 час\"")
	f.StringVar(&evaluateFlags.now, "now", "", "evaluation instant (YYYY-MM-DD HH:MM); defaults to the current time")
	f.StringVar(&evaluateFlags.timezone, "tz", "", "IANA time zone; defaults to the local zone")
	f.BoolVar(&evaluateFlags.done, "done", false, "treat the task as completed")
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	loc := time.Local
	if evaluateFlags.timezone != "" {
		l, err := time.LoadLocation(evaluateFlags.timezone)
		if err != nil {
			return fmt.Errorf("invalid --tz: %w", err)
		}
		loc = l
	}

	now := time.Now().In(loc)
	if evaluateFlags.now != "" {
		t, err := time.ParseInLocation("2006-01-02 15:04", evaluateFlags.now, loc)
		if err != nil {
			return fmt.Errorf("invalid --now: %w", err)
		}
		now = t
	}

	task := model.Task{
		Title:        "cli",
		Done:         evaluateFlags.done,
		DueDate:      evaluateFlags.date,
		DueTime:      evaluateFlags.clock,
		Notification: evaluateFlags.notification,
	}

	writeEvaluation(cmd.OutOrStdout(), reminder.NewEvaluator(loc), task, now)
	return nil
}

func writeEvaluation(w io.Writer, e *reminder.Evaluator, task model.Task, now time.Time) {
	const layout = "2006-01-02 15:04 MST"

	row := func(label, value string) {
		fmt.Fprintln(w, labelStyle.Render(label)+value)
	}

	row("now", now.Format(layout))

	if !reminder.Eligible(task) {
		row("eligible", errorStyle.Render("no")+" "+subtleStyle.Render(ineligibleReason(task)))
		return
	}

	due, ok := e.DueInstant(task)
	if !ok {
		row("eligible", errorStyle.Render("no")+" "+subtleStyle.Render("malformed due date or time"))
		return
	}

	offsetNote := ""
	if _, known := reminder.LookupOffset(task.Notification); !known {
		offsetNote = " " + subtleStyle.Render("(unknown notification, no offset)")
	}

	fire, _ := e.FireInstant(task)
	row("due", due.Format(layout))
	row("fires", fire.Format(layout)+offsetNote)

	if e.Match(task, now) {
		row("match", successStyle.Render("yes"))
	} else {
		row("match", errorStyle.Render("no"))
	}
}

func ineligibleReason(task model.Task) string {
	var missing []string
	if task.Done {
		return "task is done"
	}
	if task.DueDate == "" {
		missing = append(missing, "--date")
	}
	if task.DueTime == "" {
		missing = append(missing, "--time")
	}
	if task.Notification == "" {
		missing = append(missing, "--notification")
	}
	return "missing " + strings.Join(missing, ", ")
}
