package bot

import (
	"context"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/hiroki-koketsu/taskdrop/internal/model"
)

func (b *Bot) showTasksInPlace(ctx context.Context, q *tgbotapi.CallbackQuery) {
	text, markup := b.taskList(ctx, q.From, model.CategoryAll)
	edit := tgbotapi.NewEditMessageTextAndMarkup(q.Message.Chat.ID, q.Message.MessageID, text, markup)
	b.send(ctx, edit)
}

func (b *Bot) createFromForward(ctx context.Context, q *tgbotapi.CallbackQuery) {
	chatID := q.Message.Chat.ID
	title, description := ForwardTask(q.Message.Text)

	req := &model.CreateTaskRequest{
		Title:       title,
		Description: description,
		UserID:      userID(q.From),
	}
	if err := req.Validate(); err != nil {
		b.answer(ctx, q, "")
		b.send(ctx, tgbotapi.NewMessage(chatID, fmt.Sprintf("Произошла ошибка при создании задачи: %v.", err)))
		return
	}

	id, err := b.tasks.Create(ctx, req)
	if err != nil {
		b.logger.ErrorContext(ctx, "failed to create task from forward",
			slog.Int64("user_id", req.UserID),
			slog.Any("error", err),
		)
		b.answer(ctx, q, "")
		b.send(ctx, tgbotapi.NewMessage(chatID, fmt.Sprintf("Произошла ошибка при создании задачи: %v. Пожалуйста, попробуйте позже.", err)))
		return
	}
	b.logger.InfoContext(ctx, "task created from forward", slog.String("task_id", id), slog.Int64("user_id", req.UserID))

	b.answer(ctx, q, "")
	reply := tgbotapi.NewMessage(chatID, "✅ Задача успешно создана из пересланного сообщения!")
	reply.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		dataButton("📋 Посмотреть все задачи", cbShowTasks),
		urlButton(openAppText, b.webApp(q.From)),
	)
	b.send(ctx, reply)
}

func (b *Bot) completeTask(ctx context.Context, q *tgbotapi.CallbackQuery, id string) {
	chatID := q.Message.Chat.ID

	if err := b.tasks.Complete(ctx, id); err != nil {
		b.logger.ErrorContext(ctx, "failed to complete task", slog.String("task_id", id), slog.Any("error", err))
		b.answer(ctx, q, "❌ Ошибка: Не удалось изменить статус задачи")
		b.send(ctx, tgbotapi.NewMessage(chatID, "Произошла ошибка при изменении статуса задачи. Пожалуйста, попробуйте позже."))
		return
	}
	b.logger.InfoContext(ctx, "task completed from chat", slog.String("task_id", id))

	b.answer(ctx, q, "✅ Задача отмечена как выполненная!")
	reply := tgbotapi.NewMessage(chatID, "✅ Задача отмечена как выполненная!")
	reply.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		dataButton(showTasksText, cbShowTasks),
		urlButton(openAppText, b.webApp(q.From)),
	)
	b.send(ctx, reply)
}

func (b *Bot) setNotification(ctx context.Context, q *tgbotapi.CallbackQuery) {
	chatID := q.Message.Chat.ID

	id, key, ok := parseNotifyData(q.Data)
	if !ok {
		b.answer(ctx, q, "Неизвестная команда")
		return
	}
	label, ok := notificationLabel(key)
	if !ok {
		b.answer(ctx, q, "Неизвестный вариант напоминания")
		return
	}

	if err := b.tasks.SetNotification(ctx, id, label); err != nil {
		b.logger.ErrorContext(ctx, "failed to set notification",
			slog.String("task_id", id),
			slog.String("notification", label),
			slog.Any("error", err),
		)
		b.answer(ctx, q, "❌ Не удалось установить напоминание")
		return
	}
	b.logger.InfoContext(ctx, "notification set", slog.String("task_id", id), slog.String("notification", label))

	b.answer(ctx, q, "🔔 "+label)
	b.send(ctx, tgbotapi.NewEditMessageText(chatID, q.Message.MessageID, fmt.Sprintf("🔔 Напоминание установлено: %s", label)))
}
