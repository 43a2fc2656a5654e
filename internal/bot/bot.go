// Package bot is the Telegram front end of TaskDrop: it mirrors task CRUD as
// chat commands and delivers reminders.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/hiroki-koketsu/taskdrop/internal/directory"
	"github.com/hiroki-koketsu/taskdrop/internal/model"
	"github.com/hiroki-koketsu/taskdrop/internal/reminder"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/hiroki-koketsu/taskdrop/internal/bot")

// Sender is the subset of *tgbotapi.BotAPI the bot uses.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// TaskService is the task API as seen by the bot.
type TaskService interface {
	List(ctx context.Context, userID int64) ([]model.Task, error)
	Get(ctx context.Context, userID int64, id string) (*model.Task, error)
	Create(ctx context.Context, req *model.CreateTaskRequest) (string, error)
	Complete(ctx context.Context, id string) error
	SetNotification(ctx context.Context, id, notification string) error
}

// Config holds bot settings.
type Config struct {
	WebAppURL string
	// Token signs web app launch data. Empty leaves the data unsigned.
	Token string
	// FallbackUserID, when non-zero, is routed to every chat that runs /start
	// or /test, so tasks created by the web app under a fixed user still reach
	// the chat.
	FallbackUserID int64
	Location       *time.Location
	Now            func() time.Time
}

// Bot handles Telegram updates.
type Bot struct {
	api       Sender
	tasks     TaskService
	directory directory.Directory
	cfg       Config
	logger    *slog.Logger
}

// New creates a new Bot.
func New(api Sender, tasks TaskService, dir directory.Directory, cfg Config, logger *slog.Logger) *Bot {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bot{
		api:       api,
		tasks:     tasks,
		directory: dir,
		cfg:       cfg,
		logger:    logger,
	}
}

// RegisterCommands publishes the command menu.
func (b *Bot) RegisterCommands() error {
	if _, err := b.api.Request(tgbotapi.NewSetMyCommands(Commands...)); err != nil {
		return fmt.Errorf("failed to set bot commands: %w", err)
	}
	return nil
}

// Run handles updates until ctx is cancelled or the channel is closed.
func (b *Bot) Run(ctx context.Context, updates tgbotapi.UpdatesChannel) error {
	b.logger.InfoContext(ctx, "telegram bot started")
	for {
		select {
		case <-ctx.Done():
			b.logger.InfoContext(ctx, "telegram bot stopped")
			return nil
		case update, ok := <-updates:
			if !ok {
				b.logger.InfoContext(ctx, "telegram update channel closed")
				return nil
			}
			b.HandleUpdate(ctx, update)
		}
	}
}

// HandleUpdate dispatches one update. A panic in a handler is logged and
// does not stop the bot.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	ctx, span := tracer.Start(ctx, "Bot.HandleUpdate",
		trace.WithAttributes(attribute.Int("update.id", update.UpdateID)),
	)
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			span.SetStatus(codes.Error, "panic")
			b.logger.ErrorContext(ctx, "update handler panicked", slog.Any("error", fmt.Errorf("%v", r)))
		}
	}()

	switch {
	case update.CallbackQuery != nil:
		span.SetAttributes(attribute.String("callback.data", update.CallbackQuery.Data))
		b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		b.handleMessage(ctx, update.Message)
	}
}

// Notify sends the reminder for task to chatID.
func (b *Bot) Notify(ctx context.Context, chatID int64, task model.Task) error {
	_, span := tracer.Start(ctx, "Bot.Notify",
		trace.WithAttributes(
			attribute.Int64("chat.id", chatID),
			attribute.String("task.id", task.ID),
		),
	)
	defer span.End()

	msg := tgbotapi.NewMessage(chatID, ReminderText(task))
	msg.ReplyMarkup = reminderKeyboard(b.cfg.WebAppURL, task)
	if _, err := b.api.Send(msg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "send reminder")
		return fmt.Errorf("failed to send reminder for task %s: %w", task.ID, err)
	}
	return nil
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if isForwarded(msg) {
		b.offerForward(ctx, msg)
		return
	}
	if !msg.IsCommand() {
		if msg.Text != "" {
			b.send(ctx, b.withAppButton(tgbotapi.NewMessage(msg.Chat.ID, commandsHint), msg.From))
		}
		return
	}

	args := strings.TrimSpace(msg.CommandArguments())
	b.logger.InfoContext(ctx, "command received",
		slog.String("command", msg.Command()),
		slog.Int64("chat_id", msg.Chat.ID),
	)

	switch msg.Command() {
	case "start":
		b.cmdStart(ctx, msg)
	case "help":
		b.cmdHelp(ctx, msg)
	case "webapp":
		b.cmdWebApp(ctx, msg)
	case "tasks":
		b.cmdTasks(ctx, msg, args)
	case "add":
		b.cmdAdd(ctx, msg, args)
	case "test":
		b.cmdTest(ctx, msg)
	case "force_notification":
		b.cmdForceNotification(ctx, msg, args)
	case "notify":
		b.cmdNotify(ctx, msg, args)
	default:
		b.send(ctx, tgbotapi.NewMessage(msg.Chat.ID, "Неизвестная команда. Используйте /help для получения списка команд."))
	}
}

func (b *Bot) handleCallback(ctx context.Context, q *tgbotapi.CallbackQuery) {
	if q.Message == nil || q.Message.Chat == nil {
		b.answer(ctx, q, "")
		return
	}

	switch data := q.Data; {
	case data == cbShowTasks:
		b.answer(ctx, q, "Загружаю список задач...")
		b.showTasksInPlace(ctx, q)
	case data == cbPromptAddTask:
		b.answer(ctx, q, "")
		b.send(ctx, b.withAppButton(tgbotapi.NewMessage(q.Message.Chat.ID, "Напишите задачу в формате: /add Название задачи"), q.From))
	case data == cbCreateFromFwd:
		b.createFromForward(ctx, q)
	case data == cbCancelForward:
		b.answer(ctx, q, "")
		b.send(ctx, tgbotapi.NewMessage(q.Message.Chat.ID, "Действие отменено."))
	case strings.HasPrefix(data, cbCompletePrefix):
		b.completeTask(ctx, q, strings.TrimPrefix(data, cbCompletePrefix))
	case strings.HasPrefix(data, cbNotifyPrefix):
		b.setNotification(ctx, q)
	default:
		b.answer(ctx, q, "Неизвестная команда")
	}
}

// register routes userID and, when configured, the fallback user to chatID.
func (b *Bot) register(ctx context.Context, userID, chatID int64) {
	ids := []int64{userID}
	if b.cfg.FallbackUserID != 0 && b.cfg.FallbackUserID != userID {
		ids = append(ids, b.cfg.FallbackUserID)
	}
	for _, id := range ids {
		if err := b.directory.Register(ctx, id, chatID); err != nil {
			b.logger.ErrorContext(ctx, "failed to register chat route",
				slog.Int64("user_id", id),
				slog.Int64("chat_id", chatID),
				slog.Any("error", err),
			)
			continue
		}
		b.logger.InfoContext(ctx, "chat route registered", slog.Int64("user_id", id), slog.Int64("chat_id", chatID))
	}
}

func (b *Bot) webApp(user *tgbotapi.User) string {
	return WebAppURL(b.cfg.WebAppURL, b.cfg.Token, user, b.cfg.Now())
}

func (b *Bot) withAppButton(msg tgbotapi.MessageConfig, user *tgbotapi.User) tgbotapi.MessageConfig {
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(urlButton(openAppText, b.webApp(user)))
	return msg
}

func (b *Bot) send(ctx context.Context, c tgbotapi.Chattable) {
	if _, err := b.api.Send(c); err != nil {
		b.logger.ErrorContext(ctx, "failed to send telegram message", slog.Any("error", err))
	}
}

func (b *Bot) answer(ctx context.Context, q *tgbotapi.CallbackQuery, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(q.ID, text)); err != nil {
		b.logger.WarnContext(ctx, "failed to answer callback", slog.Any("error", err))
	}
}

func userID(u *tgbotapi.User) int64 {
	if u == nil {
		return 0
	}
	return u.ID
}

func isNotFound(err error) bool {
	return errors.Is(err, model.ErrTaskNotFound)
}

func notificationLabel(key string) (string, bool) {
	return reminder.LabelForKey(key)
}
