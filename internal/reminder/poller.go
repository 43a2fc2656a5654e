package reminder

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hiroki-koketsu/taskdrop/internal/directory"
	"github.com/hiroki-koketsu/taskdrop/internal/model"
	"github.com/hiroki-koketsu/taskdrop/internal/telemetry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/hiroki-koketsu/taskdrop/internal/reminder")

const (
	DefaultInterval     = 60 * time.Second
	DefaultInitialDelay = 5 * time.Second
	DefaultFetchTimeout = 10 * time.Second
)

// TaskFetcher lists a user's tasks from the task API.
type TaskFetcher interface {
	List(ctx context.Context, userID int64) ([]model.Task, error)
}

// ChannelDirectory enumerates the users that have a delivery channel.
type ChannelDirectory interface {
	Routes(ctx context.Context) ([]directory.Route, error)
}

// Notifier delivers a reminder for task to a chat.
type Notifier interface {
	Notify(ctx context.Context, chatID int64, task model.Task) error
}

// PollerConfig tunes a Poller. Zero values fall back to the defaults above.
type PollerConfig struct {
	Interval     time.Duration
	InitialDelay time.Duration
	FetchTimeout time.Duration

	// Ledger suppresses repeated deliveries inside one tolerance window.
	// Nil delivers on every matching cycle.
	Ledger  *Ledger
	Metrics *telemetry.ReminderMetrics
	Logger  *slog.Logger
	Now     func() time.Time
}

// CycleReport summarises one poll cycle.
type CycleReport struct {
	Users            int
	FetchFailures    int
	Evaluated        int
	Ineligible       int
	Matched          int
	Duplicates       int
	Delivered        int
	DeliveryFailures int
	DirectoryFailed  bool
}

// Poller periodically evaluates every known user's tasks and delivers due reminders.
type Poller struct {
	tasks     TaskFetcher
	directory ChannelDirectory
	notifier  Notifier
	evaluator *Evaluator

	interval     time.Duration
	initialDelay time.Duration
	fetchTimeout time.Duration
	ledger       *Ledger
	metrics      *telemetry.ReminderMetrics
	logger       *slog.Logger
	now          func() time.Time
}

// NewPoller creates a new Poller.
func NewPoller(tasks TaskFetcher, dir ChannelDirectory, notifier Notifier, evaluator *Evaluator, cfg PollerConfig) *Poller {
	p := &Poller{
		tasks:        tasks,
		directory:    dir,
		notifier:     notifier,
		evaluator:    evaluator,
		interval:     cfg.Interval,
		initialDelay: cfg.InitialDelay,
		fetchTimeout: cfg.FetchTimeout,
		ledger:       cfg.Ledger,
		metrics:      cfg.Metrics,
		logger:       cfg.Logger,
		now:          cfg.Now,
	}
	if p.interval <= 0 {
		p.interval = DefaultInterval
	}
	if p.initialDelay < 0 {
		p.initialDelay = 0
	}
	if p.fetchTimeout <= 0 {
		p.fetchTimeout = DefaultFetchTimeout
	}
	if p.evaluator == nil {
		p.evaluator = NewEvaluator(nil)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p
}

// Run polls until ctx is cancelled. A cycle that is in flight when ctx is
// cancelled runs to completion; no further cycle is scheduled. Run never
// stops because of a failed cycle.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.InfoContext(ctx, "reminder poller started",
		slog.Duration("interval", p.interval),
		slog.Duration("initial_delay", p.initialDelay),
	)

	timer := time.NewTimer(p.initialDelay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.InfoContext(ctx, "reminder poller stopped")
			return nil
		case <-timer.C:
		}
		if ctx.Err() != nil {
			p.logger.InfoContext(ctx, "reminder poller stopped")
			return nil
		}

		p.safeCycle(context.WithoutCancel(ctx))

		if ctx.Err() != nil {
			p.logger.InfoContext(ctx, "reminder poller stopped")
			return nil
		}
		p.logger.DebugContext(ctx, "next reminder check scheduled", slog.Duration("in", p.interval))
		timer.Reset(p.interval)
	}
}

func (p *Poller) safeCycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.ErrorContext(ctx, "reminder cycle panicked", slog.Any("error", fmt.Errorf("%v", r)))
		}
	}()
	p.RunOnce(ctx)
}

// RunOnce performs a single poll cycle over every route in the directory.
func (p *Poller) RunOnce(ctx context.Context) CycleReport {
	ctx, span := tracer.Start(ctx, "Poller.RunOnce")
	defer span.End()

	start := time.Now()
	var report CycleReport

	routes, err := p.directory.Routes(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list routes")
		p.logger.ErrorContext(ctx, "failed to list chat routes", slog.Any("error", err))
		report.DirectoryFailed = true
		p.metrics.ObserveCycle(report.metrics(), time.Since(start))
		return report
	}

	report.Users = len(routes)
	p.logger.InfoContext(ctx, "checking reminders", slog.Int("users", len(routes)))

	for _, route := range routes {
		p.checkRoute(ctx, route, &report)
	}

	if p.ledger != nil {
		if n := p.ledger.Prune(p.now()); n > 0 {
			p.logger.DebugContext(ctx, "pruned reminder ledger", slog.Int("removed", n))
		}
	}

	span.SetAttributes(
		attribute.Int("reminder.users", report.Users),
		attribute.Int("reminder.matched", report.Matched),
		attribute.Int("reminder.delivered", report.Delivered),
	)
	p.metrics.ObserveCycle(report.metrics(), time.Since(start))
	p.logger.InfoContext(ctx, "reminder check finished",
		slog.Int("users", report.Users),
		slog.Int("fetch_failures", report.FetchFailures),
		slog.Int("matched", report.Matched),
		slog.Int("delivered", report.Delivered),
		slog.Int("duplicates", report.Duplicates),
		slog.Int("delivery_failures", report.DeliveryFailures),
	)
	return report
}

func (p *Poller) checkRoute(ctx context.Context, route directory.Route, report *CycleReport) {
	ctx, span := tracer.Start(ctx, "Poller.checkRoute",
		trace.WithAttributes(
			attribute.Int64("user.id", route.UserID),
			attribute.Int64("chat.id", route.ChatID),
		),
	)
	defer span.End()

	fetchCtx, cancel := context.WithTimeout(ctx, p.fetchTimeout)
	tasks, err := p.tasks.List(fetchCtx, route.UserID)
	cancel()
	if err != nil {
		report.FetchFailures++
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch tasks")
		p.logger.WarnContext(ctx, "failed to fetch tasks",
			slog.Int64("user_id", route.UserID),
			slog.Any("error", err),
		)
		return
	}

	now := p.now()
	for _, task := range tasks {
		report.Evaluated++

		fire, ok := p.evaluator.FireInstant(task)
		if !ok {
			report.Ineligible++
			continue
		}
		if !p.evaluator.Within(fire, now) {
			continue
		}
		report.Matched++

		if p.ledger != nil && p.ledger.Seen(task.ID, fire) {
			report.Duplicates++
			continue
		}

		if err := p.notifier.Notify(ctx, route.ChatID, task); err != nil {
			report.DeliveryFailures++
			span.RecordError(err)
			p.logger.ErrorContext(ctx, "failed to deliver reminder",
				slog.String("task_id", task.ID),
				slog.Int64("user_id", route.UserID),
				slog.Any("error", err),
			)
			continue
		}

		report.Delivered++
		if p.ledger != nil {
			p.ledger.Record(task.ID, fire)
		}
		p.logger.InfoContext(ctx, "reminder delivered",
			slog.String("task_id", task.ID),
			slog.Int64("user_id", route.UserID),
			slog.Time("fire_at", fire),
		)
	}
}

func (r CycleReport) metrics() telemetry.CycleStats {
	return telemetry.CycleStats{
		FetchFailures:    r.FetchFailures,
		Matched:          r.Matched,
		Duplicates:       r.Duplicates,
		Delivered:        r.Delivered,
		DeliveryFailures: r.DeliveryFailures,
		DirectoryFailed:  r.DirectoryFailed,
	}
}
