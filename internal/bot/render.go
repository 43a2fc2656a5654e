package bot

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/hiroki-koketsu/taskdrop/internal/model"
	"github.com/hiroki-koketsu/taskdrop/internal/reminder"
)

// Callback data understood by HandleUpdate.
const (
	cbShowTasks       = "show_tasks"
	cbPromptAddTask   = "prompt_add_task"
	cbCreateFromFwd   = "create_task_from_forward"
	cbCancelForward   = "cancel_forward"
	cbCompletePrefix  = "complete_task_"
	cbNotifyPrefix    = "notify_"
	forwardHeaderText = "Переслано от: "
)

const (
	maxForwardTitle = 50
	openAppText     = "🚀 Открыть приложение"
	openInAppText   = "🚀 Открыть в приложении"
	addTaskText     = "➕ Добавить задачу"
	showTasksText   = "📋 Посмотреть задачи"
	usageAdd        = "Пожалуйста, укажите текст задачи: /add Название задачи"
	commandsHint    = "Я понимаю только команды. Используйте /help для получения списка команд."
	genericFailure  = "Произошла ошибка при получении задач. Пожалуйста, попробуйте позже."
)

const commandList = `/tasks - показать список активных задач
/add - добавить новую задачу
/help - показать информацию о командах
/webapp - открыть веб-приложение
/test - проверить уведомления и показать информацию о вашем аккаунте`

// Commands is the menu registered with Telegram.
var Commands = []tgbotapi.BotCommand{
	{Command: "start", Description: "Начать работу с ботом"},
	{Command: "help", Description: "Показать список команд"},
	{Command: "tasks", Description: "Показать список задач"},
	{Command: "add", Description: "Добавить новую задачу"},
	{Command: "webapp", Description: "Открыть веб-приложение"},
	{Command: "test", Description: "Проверить уведомления"},
	{Command: "force_notification", Description: "Отправить уведомление по ID задачи"},
	{Command: "notify", Description: "Установить напоминание для задачи"},
}

// ReminderText renders the reminder message for task. Due date and time lines
// are omitted when the task has none, which only happens for forced reminders.
func ReminderText(task model.Task) string {
	var sb strings.Builder
	sb.WriteString("🔔 Напоминание о задаче!\n\n")
	sb.WriteString(task.Title)
	sb.WriteString("\n")
	if task.Description != "" {
		sb.WriteString(task.Description)
		sb.WriteString("\n\n")
	}
	if task.DueDate != "" {
		fmt.Fprintf(&sb, "📅 Срок: %s\n", task.DueDate)
	}
	if task.DueTime != "" {
		fmt.Fprintf(&sb, "⏰ Время: %s\n", task.DueTime)
	}
	return sb.String()
}

// TaskListText renders the numbered list shown by /tasks. ok is false when
// there is nothing to show.
func TaskListText(tasks []model.Task, category model.Category) (string, bool) {
	if len(tasks) == 0 {
		return "У вас пока нет активных задач.", false
	}

	var sb strings.Builder
	if category == model.CategoryAll {
		sb.WriteString("Ваши активные задачи:\n\n")
	} else {
		fmt.Fprintf(&sb, "Ваши задачи (%s):\n\n", category.Label())
	}

	for i, task := range tasks {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, task.Title)
		if task.Description != "" {
			fmt.Fprintf(&sb, "   %s\n", task.Description)
		}
		var meta []string
		if task.DueDate != "" {
			meta = append(meta, "📅 "+task.DueDate)
		}
		if task.DueTime != "" {
			meta = append(meta, "⏰ "+task.DueTime)
		}
		if task.Notification != "" {
			meta = append(meta, "🔔 "+task.Notification)
		}
		if len(meta) > 0 {
			fmt.Fprintf(&sb, "   %s\n", strings.Join(meta, " "))
		}
		sb.WriteString("\n")
	}
	return sb.String(), true
}

// ForwardTask extracts the task a forwarded message preview describes. The
// preview starts with the sender line, the next line becomes the title and the
// rest the description.
func ForwardTask(preview string) (title, description string) {
	lines := strings.Split(preview, "\n")
	title = preview
	if len(lines) > 1 {
		title = lines[1]
		description = strings.Join(lines[2:], "\n")
	}
	return truncateTitle(strings.TrimSpace(title)), strings.TrimSpace(description)
}

func truncateTitle(s string) string {
	if utf8.RuneCountInString(s) <= maxForwardTitle {
		return s
	}
	r := []rune(s)
	return string(r[:maxForwardTitle-3]) + "..."
}

func forwardPreview(msg *tgbotapi.Message) string {
	from := "неизвестный источник"
	switch {
	case msg.ForwardFrom != nil:
		from = msg.ForwardFrom.FirstName
	case msg.ForwardFromChat != nil:
		from = msg.ForwardFromChat.Title
	case msg.ForwardSenderName != "":
		from = msg.ForwardSenderName
	}

	body := msg.Text
	if body == "" {
		body = msg.Caption
	}
	if body == "" {
		body = "Медиа-контент"
	}
	return forwardHeaderText + from + "\n" + body
}

func isForwarded(msg *tgbotapi.Message) bool {
	return msg.ForwardFrom != nil || msg.ForwardFromChat != nil || msg.ForwardSenderName != ""
}

// parseNotifyData splits "notify_<id>_<key>".
func parseNotifyData(data string) (id, key string, ok bool) {
	rest := strings.TrimPrefix(data, cbNotifyPrefix)
	i := strings.LastIndex(rest, "_")
	if i <= 0 || i == len(rest)-1 {
		return "", "", false
	}
	return rest[:i], rest[i+1:], true
}

func urlButton(text, link string) []tgbotapi.InlineKeyboardButton {
	return tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonURL(text, link))
}

func dataButton(text, data string) []tgbotapi.InlineKeyboardButton {
	return tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(text, data))
}

func reminderKeyboard(webAppURL string, task model.Task) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		dataButton("✅ Отметить выполненной", cbCompletePrefix+task.ID),
		urlButton(openInAppText, EditTaskURL(webAppURL, task.ID)),
	)
}

func notifyKeyboard(taskID string) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	var row []tgbotapi.InlineKeyboardButton
	for _, c := range reminder.Choices {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(c.Label, cbNotifyPrefix+taskID+"_"+c.Key))
		if len(row) == 2 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// EditTaskURL links to the web app's edit view for a task.
func EditTaskURL(webAppURL, taskID string) string {
	return strings.TrimRight(webAppURL, "/") + "/edit-task/" + url.PathEscape(taskID)
}

type webAppUser struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Username  string `json:"username"`
}

// WebAppURL returns the web app address with the launch parameters the web app
// reads from tgWebAppData. When token is set the data is signed the same way
// Telegram signs Web App init data.
func WebAppURL(base, token string, user *tgbotapi.User, now time.Time) string {
	if user == nil {
		return base
	}

	data, _ := json.Marshal(webAppUser{
		ID:        user.ID,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Username:  user.UserName,
	})

	params := url.Values{}
	params.Set("user", string(data))
	params.Set("auth_date", strconv.FormatInt(now.Unix(), 10))
	if token != "" {
		params.Set("hash", signInitData(params, token))
	}

	return base + "#tgWebAppData=" + url.QueryEscape(params.Encode())
}

func signInitData(params url.Values, token string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if k != "hash" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	pairs := make([]string, len(keys))
	for i, k := range keys {
		pairs[i] = k + "=" + params.Get(k)
	}

	secret := hmac.New(sha256.New, []byte("WebAppData"))
	secret.Write([]byte(token))

	mac := hmac.New(sha256.New, secret.Sum(nil))
	mac.Write([]byte(strings.Join(pairs, "\n")))
	return hex.EncodeToString(mac.Sum(nil))
}
