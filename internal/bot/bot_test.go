package bot

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/hiroki-koketsu/taskdrop/internal/directory"
	"github.com/hiroki-koketsu/taskdrop/internal/model"
)

type fakeSender struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	sendErr  error
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return tgbotapi.Message{}, f.sendErr
	}
	f.sent = append(f.sent, c)
	return tgbotapi.Message{MessageID: len(f.sent)}, nil
}

func (f *fakeSender) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeSender) messages(t *testing.T) []tgbotapi.MessageConfig {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []tgbotapi.MessageConfig
	for _, c := range f.sent {
		if m, ok := c.(tgbotapi.MessageConfig); ok {
			out = append(out, m)
		}
	}
	return out
}

func (f *fakeSender) last(t *testing.T) tgbotapi.MessageConfig {
	t.Helper()
	msgs := f.messages(t)
	if len(msgs) == 0 {
		t.Fatal("no messages sent")
	}
	return msgs[len(msgs)-1]
}

func (f *fakeSender) callbackAnswers() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.requests {
		if cb, ok := c.(tgbotapi.CallbackConfig); ok {
			out = append(out, cb.Text)
		}
	}
	return out
}

type fakeTasks struct {
	mu            sync.Mutex
	tasks         map[int64][]model.Task
	created       []model.CreateTaskRequest
	completed     []string
	notifications map[string]string
	listErr       error
	createErr     error
}

func (f *fakeTasks) List(_ context.Context, userID int64) ([]model.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.tasks[userID], nil
}

func (f *fakeTasks) Get(_ context.Context, userID int64, id string) (*model.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.tasks[userID] {
		if t.ID == id {
			return &t, nil
		}
	}
	return nil, model.ErrTaskNotFound
}

func (f *fakeTasks) Create(_ context.Context, req *model.CreateTaskRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	f.created = append(f.created, *req)
	return "new-id", nil
}

func (f *fakeTasks) Complete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = append(f.completed, id)
	return nil
}

func (f *fakeTasks) SetNotification(_ context.Context, id, notification string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.notifications == nil {
		f.notifications = make(map[string]string)
	}
	f.notifications[id] = notification
	return nil
}

const (
	testChat = int64(500)
	testUser = int64(42)
)

func newTestBot(t *testing.T, tasks *fakeTasks, fallback int64) (*Bot, *fakeSender, *directory.Memory) {
	t.Helper()
	sender := &fakeSender{}
	dir := directory.NewMemory()
	now := time.Date(2025, 4, 20, 9, 0, 0, 0, time.UTC)
	b := New(sender, tasks, dir, Config{
		WebAppURL:      "https://app.example.com",
		Token:          "42:secret",
		FallbackUserID: fallback,
		Location:       time.UTC,
		Now:            func() time.Time { return now },
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return b, sender, dir
}

func command(text string) tgbotapi.Update {
	length := strings.IndexByte(text, ' ')
	if length < 0 {
		length = len(text)
	}
	return tgbotapi.Update{
		UpdateID: 1,
		Message: &tgbotapi.Message{
			MessageID: 10,
			From:      &tgbotapi.User{ID: testUser, FirstName: "Аня", UserName: "anya"},
			Chat:      &tgbotapi.Chat{ID: testChat},
			Text:      text,
			Entities:  []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: length}},
		},
	}
}

func callback(data, messageText string) tgbotapi.Update {
	return tgbotapi.Update{
		UpdateID: 2,
		CallbackQuery: &tgbotapi.CallbackQuery{
			ID:   "cb-1",
			From: &tgbotapi.User{ID: testUser, FirstName: "Аня"},
			Message: &tgbotapi.Message{
				MessageID: 77,
				Chat:      &tgbotapi.Chat{ID: testChat},
				Text:      messageText,
			},
			Data: data,
		},
	}
}

func buttons(t *testing.T, msg tgbotapi.MessageConfig) []tgbotapi.InlineKeyboardButton {
	t.Helper()
	markup, ok := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	if !ok {
		t.Fatalf("ReplyMarkup = %T, want InlineKeyboardMarkup", msg.ReplyMarkup)
	}
	var out []tgbotapi.InlineKeyboardButton
	for _, row := range markup.InlineKeyboard {
		out = append(out, row...)
	}
	return out
}

func TestStartRegistersRoutes(t *testing.T) {
	b, sender, dir := newTestBot(t, &fakeTasks{}, 1)

	b.HandleUpdate(context.Background(), command("/start"))

	routes, _ := dir.Routes(context.Background())
	if len(routes) != 2 || routes[0].UserID != 1 || routes[1].UserID != testUser {
		t.Fatalf("routes = %+v", routes)
	}
	for _, r := range routes {
		if r.ChatID != testChat {
			t.Errorf("route %d -> chat %d, want %d", r.UserID, r.ChatID, testChat)
		}
	}

	msg := sender.last(t)
	if !strings.HasPrefix(msg.Text, "Привет, Аня!") {
		t.Errorf("greeting = %q", msg.Text)
	}
	btn := buttons(t, msg)[0]
	if btn.URL == nil || !strings.HasPrefix(*btn.URL, "https://app.example.com#tgWebAppData=") {
		t.Errorf("web app button = %+v", btn)
	}
}

func TestStartWithoutFallback(t *testing.T) {
	b, _, dir := newTestBot(t, &fakeTasks{}, 0)

	b.HandleUpdate(context.Background(), command("/start"))

	routes, _ := dir.Routes(context.Background())
	if len(routes) != 1 || routes[0].UserID != testUser {
		t.Fatalf("routes = %+v", routes)
	}
}

func TestTasksListsOpenTasks(t *testing.T) {
	tasks := &fakeTasks{tasks: map[int64][]model.Task{testUser: {
		{ID: "1", Title: "Купить хлеб", DueDate: "2025-04-20", DueTime: "18:00", Notification: "За 1 час"},
		{ID: "2", Title: "Сделано", Done: true},
		{ID: "3", Title: "Позвонить маме", Description: "в выходные"},
	}}}
	b, sender, _ := newTestBot(t, tasks, 0)

	b.HandleUpdate(context.Background(), command("/tasks"))

	msgs := sender.messages(t)
	if len(msgs) != 2 || msgs[0].Text != "Загружаю список задач..." {
		t.Fatalf("messages = %+v", msgs)
	}
	text := msgs[1].Text
	for _, want := range []string{"Ваши активные задачи:", "1. Купить хлеб", "📅 2025-04-20 ⏰ 18:00 🔔 За 1 час", "2. Позвонить маме", "   в выходные"} {
		if !strings.Contains(text, want) {
			t.Errorf("list missing %q:\n%s", want, text)
		}
	}
	if strings.Contains(text, "Сделано") {
		t.Error("completed task listed")
	}
	if cb := buttons(t, msgs[1])[0].CallbackData; cb == nil || *cb != cbPromptAddTask {
		t.Errorf("first button callback = %v", cb)
	}
}

func TestTasksCategoryFilter(t *testing.T) {
	tasks := &fakeTasks{tasks: map[int64][]model.Task{testUser: {
		{ID: "1", Title: "Сегодня", DueDate: "2025-04-20"},
		{ID: "2", Title: "Завтра", DueDate: "2025-04-21"},
	}}}
	b, sender, _ := newTestBot(t, tasks, 0)

	b.HandleUpdate(context.Background(), command("/tasks today"))
	text := sender.last(t).Text
	if !strings.Contains(text, "Сегодня") || strings.Contains(text, "2. ") {
		t.Errorf("today list = %q", text)
	}

	b.HandleUpdate(context.Background(), command("/tasks someday"))
	if !strings.HasPrefix(sender.last(t).Text, "Неизвестная категория") {
		t.Errorf("unknown category reply = %q", sender.last(t).Text)
	}
}

func TestTasksEmptyAndFailure(t *testing.T) {
	tasks := &fakeTasks{}
	b, sender, _ := newTestBot(t, tasks, 0)

	b.HandleUpdate(context.Background(), command("/tasks"))
	if sender.last(t).Text != "У вас пока нет активных задач." {
		t.Errorf("empty reply = %q", sender.last(t).Text)
	}

	tasks.listErr = errors.New("api down")
	b.HandleUpdate(context.Background(), command("/tasks"))
	if sender.last(t).Text != genericFailure {
		t.Errorf("failure reply = %q", sender.last(t).Text)
	}
}

func TestAddCreatesTask(t *testing.T) {
	tasks := &fakeTasks{}
	b, sender, _ := newTestBot(t, tasks, 0)

	b.HandleUpdate(context.Background(), command("/add Полить цветы"))

	if len(tasks.created) != 1 {
		t.Fatalf("created = %+v", tasks.created)
	}
	if got := tasks.created[0]; got.Title != "Полить цветы" || got.UserID != testUser {
		t.Errorf("request = %+v", got)
	}
	if want := "✅ Задача \"Полить цветы\" успешно добавлена!"; sender.last(t).Text != want {
		t.Errorf("reply = %q", sender.last(t).Text)
	}

	b.HandleUpdate(context.Background(), command("/add"))
	if sender.last(t).Text != usageAdd {
		t.Errorf("usage reply = %q", sender.last(t).Text)
	}
	if len(tasks.created) != 1 {
		t.Error("bare /add created a task")
	}
}

func TestAddReportsAPIFailure(t *testing.T) {
	tasks := &fakeTasks{createErr: errors.New("boom")}
	b, sender, _ := newTestBot(t, tasks, 0)

	b.HandleUpdate(context.Background(), command("/add x"))
	if !strings.HasPrefix(sender.last(t).Text, "Произошла ошибка при добавлении задачи") {
		t.Errorf("reply = %q", sender.last(t).Text)
	}
}

func TestForwardedMessageFlow(t *testing.T) {
	tasks := &fakeTasks{}
	b, sender, _ := newTestBot(t, tasks, 0)

	longLine := strings.Repeat("я", 60)
	fwd := tgbotapi.Update{Message: &tgbotapi.Message{
		From:        &tgbotapi.User{ID: testUser},
		Chat:        &tgbotapi.Chat{ID: testChat},
		ForwardFrom: &tgbotapi.User{FirstName: "Борис"},
		Text:        longLine + "\nподробности\nещё",
	}}
	b.HandleUpdate(context.Background(), fwd)

	preview := sender.last(t)
	if !strings.HasPrefix(preview.Text, "Переслано от: Борис\n") {
		t.Fatalf("preview = %q", preview.Text)
	}
	btns := buttons(t, preview)
	if len(btns) != 2 || *btns[0].CallbackData != cbCreateFromFwd || *btns[1].CallbackData != cbCancelForward {
		t.Fatalf("preview buttons = %+v", btns)
	}

	b.HandleUpdate(context.Background(), callback(cbCreateFromFwd, preview.Text))

	if len(tasks.created) != 1 {
		t.Fatalf("created = %+v", tasks.created)
	}
	got := tasks.created[0]
	if want := strings.Repeat("я", 47) + "..."; got.Title != want {
		t.Errorf("title = %q, want %q", got.Title, want)
	}
	if got.Description != "подробности\nещё" || got.UserID != testUser {
		t.Errorf("request = %+v", got)
	}
	if sender.last(t).Text != "✅ Задача успешно создана из пересланного сообщения!" {
		t.Errorf("reply = %q", sender.last(t).Text)
	}

	b.HandleUpdate(context.Background(), callback(cbCancelForward, preview.Text))
	if sender.last(t).Text != "Действие отменено." {
		t.Errorf("cancel reply = %q", sender.last(t).Text)
	}
}

func TestCompleteTaskCallback(t *testing.T) {
	tasks := &fakeTasks{}
	b, sender, _ := newTestBot(t, tasks, 0)

	b.HandleUpdate(context.Background(), callback("complete_task_abc-123", "reminder"))

	if len(tasks.completed) != 1 || tasks.completed[0] != "abc-123" {
		t.Fatalf("completed = %v", tasks.completed)
	}
	answers := sender.callbackAnswers()
	if len(answers) != 1 || answers[0] != "✅ Задача отмечена как выполненная!" {
		t.Errorf("answers = %v", answers)
	}
}

func TestNotifyPickerAndCallback(t *testing.T) {
	tasks := &fakeTasks{tasks: map[int64][]model.Task{testUser: {{ID: "t-1", Title: "Встреча"}}}}
	b, sender, _ := newTestBot(t, tasks, 0)

	b.HandleUpdate(context.Background(), command("/notify t-1"))
	picker := sender.last(t)
	if picker.Text != "Выберите когда прислать напоминание для задачи \"Встреча\":" {
		t.Errorf("picker text = %q", picker.Text)
	}
	btns := buttons(t, picker)
	if len(btns) != 7 || *btns[4].CallbackData != "notify_t-1_1hour" {
		t.Fatalf("picker buttons = %+v", btns)
	}

	b.HandleUpdate(context.Background(), callback("notify_t-1_1hour", picker.Text))
	if tasks.notifications["t-1"] != "За 1 час" {
		t.Errorf("notification = %q", tasks.notifications["t-1"])
	}

	b.HandleUpdate(context.Background(), command("/notify missing"))
	if sender.last(t).Text != "❌ Задача с ID missing не найдена." {
		t.Errorf("missing reply = %q", sender.last(t).Text)
	}

	b.HandleUpdate(context.Background(), callback("notify_t-1_1week", picker.Text))
	if tasks.notifications["t-1"] != "За 1 час" {
		t.Error("unknown key changed the notification")
	}
}

func TestForceNotification(t *testing.T) {
	tasks := &fakeTasks{tasks: map[int64][]model.Task{testUser: {
		{ID: "t-9", Title: "Отчёт", Description: "квартальный", DueDate: "2025-05-01", DueTime: "09:00"},
	}}}
	b, sender, _ := newTestBot(t, tasks, 0)

	b.HandleUpdate(context.Background(), command("/force_notification t-9"))

	msg := sender.last(t)
	if msg.ChatID != testChat {
		t.Errorf("ChatID = %d", msg.ChatID)
	}
	if msg.Text != "🔔 Напоминание о задаче!\n\nОтчёт\nквартальный\n\n📅 Срок: 2025-05-01\n⏰ Время: 09:00\n" {
		t.Errorf("reminder text = %q", msg.Text)
	}

	b.HandleUpdate(context.Background(), command("/force_notification"))
	if sender.last(t).Text != "Пожалуйста, укажите ID задачи: /force_notification ID" {
		t.Errorf("usage reply = %q", sender.last(t).Text)
	}
}

func TestNotifyRendersReminder(t *testing.T) {
	b, sender, _ := newTestBot(t, &fakeTasks{}, 0)

	task := model.Task{ID: "abc", Title: "Полить цветы", DueDate: "2025-04-20", DueTime: "10:00", Notification: "За 1 час"}
	if err := b.Notify(context.Background(), 900, task); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	msg := sender.last(t)
	if msg.ChatID != 900 {
		t.Errorf("ChatID = %d", msg.ChatID)
	}
	for _, want := range []string{"Полить цветы", "📅 Срок: 2025-04-20", "⏰ Время: 10:00"} {
		if !strings.Contains(msg.Text, want) {
			t.Errorf("reminder missing %q", want)
		}
	}
	btns := buttons(t, msg)
	if btns[0].CallbackData == nil || *btns[0].CallbackData != "complete_task_abc" {
		t.Errorf("done button = %+v", btns[0])
	}
	if btns[1].URL == nil || *btns[1].URL != "https://app.example.com/edit-task/abc" {
		t.Errorf("edit button = %+v", btns[1])
	}
}

func TestNotifyReturnsSendError(t *testing.T) {
	b, sender, _ := newTestBot(t, &fakeTasks{}, 0)
	sender.sendErr = errors.New("Forbidden: bot was blocked by the user")

	err := b.Notify(context.Background(), 1, model.Task{ID: "x", Title: "x"})
	if err == nil || !errors.Is(err, sender.sendErr) {
		t.Errorf("Notify error = %v", err)
	}
}

func TestPlainTextAndUnknownCallback(t *testing.T) {
	b, sender, _ := newTestBot(t, &fakeTasks{}, 0)

	b.HandleUpdate(context.Background(), tgbotapi.Update{Message: &tgbotapi.Message{
		From: &tgbotapi.User{ID: testUser},
		Chat: &tgbotapi.Chat{ID: testChat},
		Text: "привет",
	}})
	if sender.last(t).Text != commandsHint {
		t.Errorf("reply = %q", sender.last(t).Text)
	}

	b.HandleUpdate(context.Background(), callback("mystery", ""))
	answers := sender.callbackAnswers()
	if len(answers) != 1 || answers[0] != "Неизвестная команда" {
		t.Errorf("answers = %v", answers)
	}
}

func TestTestCommandShowsRoutes(t *testing.T) {
	b, sender, _ := newTestBot(t, &fakeTasks{}, 1)

	b.HandleUpdate(context.Background(), command("/test"))

	text := sender.last(t).Text
	for _, want := range []string{
		"Текущее время: 09:00:00",
		"Текущая дата: 20.04.2025",
		"Ваш Telegram ID: 42",
		"Сохраненные пользователи: ID 1 -> chat 500, ID 42 -> chat 500",
		"user_id = 42 и user_id = 1",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("diagnostic missing %q:\n%s", want, text)
		}
	}
}

func TestShowTasksEditsMessage(t *testing.T) {
	tasks := &fakeTasks{tasks: map[int64][]model.Task{testUser: {{ID: "1", Title: "Одна"}}}}
	b, sender, _ := newTestBot(t, tasks, 0)

	b.HandleUpdate(context.Background(), callback(cbShowTasks, "old"))

	sender.mu.Lock()
	defer sender.mu.Unlock()
	edit, ok := sender.sent[len(sender.sent)-1].(tgbotapi.EditMessageTextConfig)
	if !ok {
		t.Fatalf("last sent = %T", sender.sent[len(sender.sent)-1])
	}
	if edit.MessageID != 77 || !strings.Contains(edit.Text, "1. Одна") {
		t.Errorf("edit = %+v", edit)
	}
}

func TestRunStops(t *testing.T) {
	b, _, _ := newTestBot(t, &fakeTasks{}, 0)

	updates := make(chan tgbotapi.Update)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx, updates) }()

	updates <- command("/help")
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop")
	}

	closed := make(chan tgbotapi.Update)
	close(closed)
	if err := b.Run(context.Background(), closed); err != nil {
		t.Errorf("Run on closed channel = %v", err)
	}
}
