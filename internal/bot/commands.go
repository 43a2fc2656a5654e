package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/hiroki-koketsu/taskdrop/internal/model"
)

func (b *Bot) cmdStart(ctx context.Context, msg *tgbotapi.Message) {
	b.register(ctx, userID(msg.From), msg.Chat.ID)

	name := "пользователь"
	if msg.From != nil && msg.From.FirstName != "" {
		name = msg.From.FirstName
	}
	text := fmt.Sprintf("Привет, %s! Я бот для управления задачами TaskDrop. Вот что я умею:\n\n%s", name, commandList)
	b.send(ctx, b.withAppButton(tgbotapi.NewMessage(msg.Chat.ID, text), msg.From))
}

func (b *Bot) cmdHelp(ctx context.Context, msg *tgbotapi.Message) {
	text := "Список доступных команд:\n\n" + commandList +
		"\n/notify ID - выбрать время напоминания для задачи" +
		"\n/force_notification ID - прислать напоминание о задаче сейчас"
	b.send(ctx, b.withAppButton(tgbotapi.NewMessage(msg.Chat.ID, text), msg.From))
}

func (b *Bot) cmdWebApp(ctx context.Context, msg *tgbotapi.Message) {
	reply := tgbotapi.NewMessage(msg.Chat.ID, "Нажмите на кнопку ниже, чтобы открыть веб-приложение TaskDrop:")
	reply.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(urlButton("🚀 Открыть TaskDrop", b.webApp(msg.From)))
	b.send(ctx, reply)
}

// cmdTasks lists the user's open tasks, optionally narrowed to a category
// such as "today" or "inbox".
func (b *Bot) cmdTasks(ctx context.Context, msg *tgbotapi.Message, args string) {
	category := model.CategoryAll
	if args != "" {
		c, ok := model.ParseCategory(args)
		if !ok {
			b.send(ctx, tgbotapi.NewMessage(msg.Chat.ID, "Неизвестная категория. Доступны: "+categoryNames()))
			return
		}
		category = c
	}

	b.send(ctx, tgbotapi.NewMessage(msg.Chat.ID, "Загружаю список задач..."))

	text, markup := b.taskList(ctx, msg.From, category)
	reply := tgbotapi.NewMessage(msg.Chat.ID, text)
	reply.ReplyMarkup = markup
	b.send(ctx, reply)
}

func (b *Bot) cmdAdd(ctx context.Context, msg *tgbotapi.Message, title string) {
	if title == "" {
		b.send(ctx, b.withAppButton(tgbotapi.NewMessage(msg.Chat.ID, usageAdd), msg.From))
		return
	}

	req := &model.CreateTaskRequest{Title: title, UserID: userID(msg.From)}
	if err := req.Validate(); err != nil {
		b.send(ctx, tgbotapi.NewMessage(msg.Chat.ID, "Не удалось добавить задачу: "+err.Error()))
		return
	}

	id, err := b.tasks.Create(ctx, req)
	if err != nil {
		b.logger.ErrorContext(ctx, "failed to create task", slog.Int64("user_id", req.UserID), slog.Any("error", err))
		b.send(ctx, b.withAppButton(tgbotapi.NewMessage(msg.Chat.ID, "Произошла ошибка при добавлении задачи. Пожалуйста, попробуйте позже."), msg.From))
		return
	}
	b.logger.InfoContext(ctx, "task created from chat", slog.String("task_id", id), slog.Int64("user_id", req.UserID))

	reply := tgbotapi.NewMessage(msg.Chat.ID, fmt.Sprintf("✅ Задача \"%s\" успешно добавлена!", title))
	reply.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		dataButton("📋 Посмотреть все задачи", cbShowTasks),
		urlButton(openAppText, b.webApp(msg.From)),
	)
	b.send(ctx, reply)
}

func (b *Bot) cmdTest(ctx context.Context, msg *tgbotapi.Message) {
	uid := userID(msg.From)
	b.register(ctx, uid, msg.Chat.ID)

	now := b.cfg.Now().In(b.cfg.Location)

	var sb strings.Builder
	sb.WriteString("🔔 Тестовое уведомление\n\n")
	fmt.Fprintf(&sb, "Текущее время: %s\n", now.Format("15:04:05"))
	fmt.Fprintf(&sb, "Текущая дата: %s\n\n", now.Format("02.01.2006"))
	fmt.Fprintf(&sb, "Ваш Telegram ID: %d\n", uid)
	fmt.Fprintf(&sb, "Ваш chat_id: %d\n", msg.Chat.ID)

	routes, err := b.directory.Routes(ctx)
	if err != nil {
		b.logger.ErrorContext(ctx, "failed to list chat routes", slog.Any("error", err))
	} else {
		saved := make([]string, len(routes))
		for i, r := range routes {
			saved[i] = fmt.Sprintf("ID %d -> chat %d", r.UserID, r.ChatID)
		}
		fmt.Fprintf(&sb, "Сохраненные пользователи: %s\n", strings.Join(saved, ", "))
	}

	if b.cfg.FallbackUserID != 0 && b.cfg.FallbackUserID != uid {
		fmt.Fprintf(&sb, "\n⚠️ Для задач с user_id = %d и user_id = %d будут приходить уведомления.", uid, b.cfg.FallbackUserID)
	} else {
		fmt.Fprintf(&sb, "\n⚠️ Для задач с user_id = %d будут приходить уведомления.", uid)
	}

	reply := tgbotapi.NewMessage(msg.Chat.ID, sb.String())
	reply.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		dataButton(showTasksText, cbShowTasks),
		urlButton(openAppText, b.webApp(msg.From)),
	)
	b.send(ctx, reply)
}

func (b *Bot) cmdForceNotification(ctx context.Context, msg *tgbotapi.Message, id string) {
	if id == "" {
		b.send(ctx, tgbotapi.NewMessage(msg.Chat.ID, "Пожалуйста, укажите ID задачи: /force_notification ID"))
		return
	}

	task, ok := b.lookupTask(ctx, msg, id)
	if !ok {
		return
	}

	if err := b.Notify(ctx, msg.Chat.ID, *task); err != nil {
		b.logger.ErrorContext(ctx, "failed to send forced reminder", slog.String("task_id", id), slog.Any("error", err))
		b.send(ctx, b.withAppButton(tgbotapi.NewMessage(msg.Chat.ID, "Произошла ошибка при отправке уведомления. Пожалуйста, попробуйте позже."), msg.From))
		return
	}
	b.logger.InfoContext(ctx, "forced reminder sent", slog.String("task_id", id), slog.Int64("chat_id", msg.Chat.ID))
}

func (b *Bot) cmdNotify(ctx context.Context, msg *tgbotapi.Message, id string) {
	if id == "" {
		b.send(ctx, tgbotapi.NewMessage(msg.Chat.ID, "Пожалуйста, укажите ID задачи: /notify ID"))
		return
	}

	task, ok := b.lookupTask(ctx, msg, id)
	if !ok {
		return
	}

	reply := tgbotapi.NewMessage(msg.Chat.ID, fmt.Sprintf("Выберите когда прислать напоминание для задачи \"%s\":", task.Title))
	reply.ReplyMarkup = notifyKeyboard(task.ID)
	b.send(ctx, reply)
}

func (b *Bot) lookupTask(ctx context.Context, msg *tgbotapi.Message, id string) (*model.Task, bool) {
	task, err := b.tasks.Get(ctx, userID(msg.From), id)
	switch {
	case isNotFound(err):
		b.send(ctx, tgbotapi.NewMessage(msg.Chat.ID, fmt.Sprintf("❌ Задача с ID %s не найдена.", id)))
		return nil, false
	case err != nil:
		b.logger.ErrorContext(ctx, "failed to get task", slog.String("task_id", id), slog.Any("error", err))
		b.send(ctx, tgbotapi.NewMessage(msg.Chat.ID, "Произошла ошибка при получении информации о задаче. Пожалуйста, попробуйте позже."))
		return nil, false
	}
	return task, true
}

// taskList renders the user's tasks in category together with the list keyboard.
func (b *Bot) taskList(ctx context.Context, user *tgbotapi.User, category model.Category) (string, tgbotapi.InlineKeyboardMarkup) {
	tasks, err := b.tasks.List(ctx, userID(user))
	if err != nil {
		b.logger.ErrorContext(ctx, "failed to list tasks", slog.Int64("user_id", userID(user)), slog.Any("error", err))
		return genericFailure, tgbotapi.NewInlineKeyboardMarkup(urlButton(openAppText, b.webApp(user)))
	}

	visible := model.FilterByCategory(tasks, category, b.cfg.Now().In(b.cfg.Location))
	text, ok := TaskListText(visible, category)

	appText := openInAppText
	if !ok {
		appText = openAppText
	}
	return text, tgbotapi.NewInlineKeyboardMarkup(
		dataButton(addTaskText, cbPromptAddTask),
		urlButton(appText, b.webApp(user)),
	)
}

func (b *Bot) offerForward(ctx context.Context, msg *tgbotapi.Message) {
	reply := tgbotapi.NewMessage(msg.Chat.ID, forwardPreview(msg))
	reply.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		dataButton("Создать задачу", cbCreateFromFwd),
		dataButton("Отмена", cbCancelForward),
	)
	b.send(ctx, reply)
}

func categoryNames() string {
	names := make([]string, len(model.Categories))
	for i, c := range model.Categories {
		names[i] = string(c)
	}
	return strings.Join(names, ", ")
}
