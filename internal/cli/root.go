// Package cli wires the taskdrop subcommands.
package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/hiroki-koketsu/taskdrop/internal/config"
	"github.com/hiroki-koketsu/taskdrop/internal/telemetry"
	"github.com/spf13/cobra"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:          "taskdrop",
	Short:        "TaskDrop bot, reminder poller and task API",
	Long:         `TaskDrop mirrors a to-do list in Telegram and sends reminders before tasks are due.`,
	Version:      "0.1.0",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "load environment variables from this file instead of .env")

	rootCmd.AddCommand(botCmd)
	rootCmd.AddCommand(apiCmd)
	rootCmd.AddCommand(evaluateCmd)
	rootCmd.AddCommand(tasksCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func loadConfig() (*config.Config, error) {
	if envFile != "" {
		return config.LoadFile(envFile)
	}
	return config.Load()
}

func telemetryOptions(cfg *config.Config) telemetry.Options {
	return telemetry.Options{
		ServiceName:  cfg.ServiceName,
		OTLPEndpoint: cfg.OTLPEndpoint,
		Environment:  cfg.Environment,
		LogLevel:     cfg.LogLevel,
		Disabled:     cfg.OTelDisabled,
	}
}

// serve runs server until ctx is cancelled, then shuts it down gracefully.
func serve(ctx context.Context, logger *slog.Logger, server *http.Server) error {
	errc := make(chan error, 1)
	go func() {
		logger.Info("server listening", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server...", slog.String("addr", server.Addr))

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", slog.Any("error", err))
		return err
	}

	logger.Info("server stopped", slog.String("addr", server.Addr))
	return nil
}
