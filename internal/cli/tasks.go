package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/hiroki-koketsu/taskdrop/internal/model"
	"github.com/hiroki-koketsu/taskdrop/internal/taskapi"
	"github.com/spf13/cobra"
)

var tasksFlags struct {
	user     int64
	category string
}

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "List a user's tasks grouped by category",
	Long:  `Fetch a user's tasks from the task API (API_URL) and print them grouped by category.`,
	Args:  cobra.NoArgs,
	RunE:  runTasks,
}

func init() {
	tasksCmd.Flags().Int64Var(&tasksFlags.user, "user", 0, "task owner id (required)")
	tasksCmd.Flags().StringVar(&tasksFlags.category, "category", "", "only show one category: "+categoryList())
	tasksCmd.MarkFlagRequired("user")
}

func runTasks(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	categories := groupOrder
	if tasksFlags.category != "" {
		c, ok := model.ParseCategory(tasksFlags.category)
		if !ok {
			return fmt.Errorf("unknown category %q (want one of %s)", tasksFlags.category, categoryList())
		}
		categories = []model.Category{c}
	}

	client := taskapi.New(cfg.APIURL, taskapi.WithTimeout(cfg.APITimeout))

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.APITimeout)
	defer cancel()

	tasks, err := client.List(ctx, tasksFlags.user)
	if err != nil {
		return fmt.Errorf("failed to list tasks: %w", err)
	}

	writeTaskGroups(cmd.OutOrStdout(), tasks, categories, time.Now().In(loc))
	return nil
}

// groupOrder lists the disjoint groups shown by default. "all" is omitted
// because it repeats every open task.
var groupOrder = []model.Category{
	model.CategoryToday,
	model.CategoryTomorrow,
	model.CategoryNext7Days,
	model.CategoryInbox,
	model.CategoryCompleted,
}

func writeTaskGroups(w io.Writer, tasks []model.Task, categories []model.Category, now time.Time) {
	if len(tasks) == 0 {
		fmt.Fprintln(w, subtleStyle.Render("No tasks."))
		return
	}

	printed := false
	for _, c := range categories {
		group := model.FilterByCategory(tasks, c, now)
		if len(group) == 0 {
			continue
		}
		if printed {
			fmt.Fprintln(w)
		}
		printed = true

		fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("%s (%d)", c.Label(), len(group))))
		for _, t := range group {
			fmt.Fprintln(w, taskLine(t))
		}
	}

	if !printed {
		fmt.Fprintln(w, subtleStyle.Render("No tasks in this category."))
	}
}

func taskLine(t model.Task) string {
	mark := "[ ]"
	if t.Done {
		mark = successStyle.Render("[x]")
	}

	var meta []string
	if t.DueDate != "" {
		meta = append(meta, strings.TrimSpace(t.DueDate+" "+t.DueTime))
	}
	if t.Notification != "" {
		meta = append(meta, "🔔 "+t.Notification)
	}
	if t.Priority != "" && t.Priority != "medium" {
		meta = append(meta, t.Priority)
	}

	line := fmt.Sprintf("  %s %s", mark, t.Title)
	if len(meta) > 0 {
		line += "  " + subtleStyle.Render(strings.Join(meta, " · "))
	}
	line += "  " + subtleStyle.Render(t.ID)
	return line
}

func categoryList() string {
	names := make([]string, len(model.Categories))
	for i, c := range model.Categories {
		names[i] = string(c)
	}
	return strings.Join(names, ", ")
}
