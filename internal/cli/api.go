package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/hiroki-koketsu/taskdrop/internal/handler"
	"github.com/hiroki-koketsu/taskdrop/internal/repository"
	"github.com/hiroki-koketsu/taskdrop/internal/telemetry"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
)

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Run the in-memory task API server",
	Long:  `Serve the task REST API (/tasks) from memory. Useful for local development of the bot and web app.`,
	RunE:  runAPI,
}

func runAPI(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
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

	logger.Info("starting task api",
		slog.String("service", cfg.ServiceName),
		slog.String("environment", cfg.Environment),
		slog.String("port", cfg.ServerPort),
	)

	taskRepo := repository.NewTaskRepository()

	meter := otel.Meter(cfg.ServiceName)
	metrics, err := telemetry.NewMetrics(meter, taskRepo.Count)
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}

	taskHandler := handler.NewTaskHandler(taskRepo, logger, metrics)

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      handler.NewTaskAPIRouter(taskHandler),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return serve(ctx, logger, server)
}
