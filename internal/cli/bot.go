package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/hiroki-koketsu/taskdrop/internal/bot"
	"github.com/hiroki-koketsu/taskdrop/internal/config"
	"github.com/hiroki-koketsu/taskdrop/internal/directory"
	"github.com/hiroki-koketsu/taskdrop/internal/handler"
	"github.com/hiroki-koketsu/taskdrop/internal/reminder"
	"github.com/hiroki-koketsu/taskdrop/internal/taskapi"
	"github.com/hiroki-koketsu/taskdrop/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

var botCmd = &cobra.Command{
	Use:   "bot",
	Short: "Run the Telegram bot and reminder poller",
	Long: `Run the Telegram bot, the reminder poller and the ops server
(/health, /metrics). Stops gracefully on SIGINT or SIGTERM.`,
	RunE: runBot,
}

func runBot(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.RequireBot(); err != nil {
		return err
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	providers, err := telemetry.Setup(ctx, telemetryOptions(cfg))
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	logger := providers.Logger
	defer func() {
		if err := providers.Shutdown(context.WithoutCancel(ctx)); err != nil {
			logger.Error("failed to shutdown telemetry", slog.Any("error", err))
		}
	}()

	dir, closeDir, err := openDirectory(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeDir()

	tasks := taskapi.New(cfg.APIURL,
		taskapi.WithTimeout(cfg.APITimeout),
		taskapi.WithLogger(logger),
	)

	tg, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return fmt.Errorf("failed to connect to telegram: %w", err)
	}
	logger.Info("authorized on telegram", slog.String("account", tg.Self.UserName))

	b := bot.New(tg, tasks, dir, bot.Config{
		WebAppURL:      cfg.WebAppURL,
		Token:          cfg.BotToken,
		FallbackUserID: cfg.FallbackUserID,
		Location:       loc,
	}, logger)
	if err := b.RegisterCommands(); err != nil {
		logger.Warn("failed to register bot commands", slog.Any("error", err))
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	var ledger *reminder.Ledger
	if cfg.ReminderDedup {
		ledger = reminder.NewLedger(reminder.DefaultRetention)
	}

	poller := reminder.NewPoller(tasks, dir, b, reminder.NewEvaluator(loc), reminder.PollerConfig{
		Interval:     cfg.ReminderInterval,
		InitialDelay: cfg.ReminderInitialDelay,
		FetchTimeout: cfg.ReminderFetchTimeout,
		Ledger:       ledger,
		Metrics:      telemetry.NewReminderMetrics(reg),
		Logger:       logger,
	})

	ops := &http.Server{
		Addr:              ":" + cfg.OpsPort,
		Handler:           handler.NewOpsRouter(reg),
		ReadHeaderTimeout: 5 * time.Second,
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := tg.GetUpdatesChan(u)

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		poller.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		b.Run(ctx, updates)
	}()
	go func() {
		defer wg.Done()
		if err := serve(ctx, logger, ops); err != nil {
			logger.Error("ops server error", slog.Any("error", err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down bot...")
	tg.StopReceivingUpdates()
	wg.Wait()
	logger.Info("bot stopped")
	return nil
}

func openDirectory(ctx context.Context, cfg *config.Config) (directory.Directory, func() error, error) {
	if cfg.DirectoryDriver != config.DriverPostgres {
		return directory.NewMemory(), func() error { return nil }, nil
	}

	pg, err := directory.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if err := pg.Migrate(ctx); err != nil {
		pg.Close()
		return nil, nil, err
	}
	return pg, pg.Close, nil
}
