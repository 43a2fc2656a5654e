package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var keys = []string{
	"SERVER_PORT", "OPS_PORT", "OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_SERVICE_NAME", "ENVIRONMENT",
	"OTEL_SDK_DISABLED", "LOG_LEVEL", "TELEGRAM_BOT_TOKEN", "WEBAPP_URL", "FALLBACK_USER_ID",
	"API_URL", "API_TIMEOUT", "REMINDER_INTERVAL", "REMINDER_INITIAL_DELAY",
	"REMINDER_FETCH_TIMEOUT", "REMINDER_TIMEZONE", "REMINDER_DEDUP", "DIRECTORY_DRIVER",
	"DATABASE_URL",
}

// clearEnv blanks every key so the developer's shell does not leak into tests.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.ServerPort != "8080" || cfg.OpsPort != "9090" {
		t.Errorf("ports = %q, %q", cfg.ServerPort, cfg.OpsPort)
	}
	if cfg.ReminderInterval != time.Minute || cfg.ReminderInitialDelay != 5*time.Second || cfg.ReminderFetchTimeout != 10*time.Second {
		t.Errorf("reminder timings = %v, %v, %v", cfg.ReminderInterval, cfg.ReminderInitialDelay, cfg.ReminderFetchTimeout)
	}
	if !cfg.ReminderDedup {
		t.Error("ReminderDedup should default to true")
	}
	if cfg.DirectoryDriver != DriverMemory {
		t.Errorf("DirectoryDriver = %q", cfg.DirectoryDriver)
	}
	if cfg.APITimeout != 10*time.Second {
		t.Errorf("APITimeout = %v", cfg.APITimeout)
	}
	if loc, err := cfg.Location(); err != nil || loc != time.Local {
		t.Errorf("Location = %v, %v", loc, err)
	}
	if err := cfg.RequireBot(); err == nil {
		t.Error("RequireBot should fail without a token")
	}
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("API_URL", "https://api.example.com/")
	t.Setenv("WEBAPP_URL", "https://app.example.com/")
	t.Setenv("API_TIMEOUT", "3s")
	t.Setenv("REMINDER_INTERVAL", "30s")
	t.Setenv("REMINDER_TIMEZONE", "Europe/Moscow")
	t.Setenv("REMINDER_DEDUP", "false")
	t.Setenv("FALLBACK_USER_ID", "1")
	t.Setenv("DIRECTORY_DRIVER", "Postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/taskdrop?sslmode=disable")
	t.Setenv("OTEL_SDK_DISABLED", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.APIURL != "https://api.example.com" || cfg.WebAppURL != "https://app.example.com" {
		t.Errorf("urls = %q, %q", cfg.APIURL, cfg.WebAppURL)
	}
	if cfg.APITimeout != 3*time.Second || cfg.ReminderInterval != 30*time.Second {
		t.Errorf("durations = %v, %v", cfg.APITimeout, cfg.ReminderInterval)
	}
	if cfg.ReminderDedup || !cfg.OTelDisabled || cfg.FallbackUserID != 1 {
		t.Errorf("flags = %+v", cfg)
	}
	if cfg.DirectoryDriver != DriverPostgres {
		t.Errorf("DirectoryDriver = %q", cfg.DirectoryDriver)
	}
	loc, err := cfg.Location()
	if err != nil || loc.String() != "Europe/Moscow" {
		t.Errorf("Location = %v, %v", loc, err)
	}
	if err := cfg.RequireBot(); err != nil {
		t.Errorf("RequireBot: %v", err)
	}
}

func TestLoadReportsEveryMalformedValue(t *testing.T) {
	clearEnv(t)
	t.Setenv("API_TIMEOUT", "ten seconds")
	t.Setenv("REMINDER_DEDUP", "maybe")
	t.Setenv("FALLBACK_USER_ID", "one")

	_, err := Load()
	if err == nil {
		t.Fatal("expected an error")
	}
	for _, key := range []string{"API_TIMEOUT", "REMINDER_DEDUP", "FALLBACK_USER_ID"} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("error %q does not mention %s", err, key)
		}
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"postgres without url", map[string]string{"DIRECTORY_DRIVER": "postgres"}},
		{"unknown driver", map[string]string{"DIRECTORY_DRIVER": "redis"}},
		{"bad timezone", map[string]string{"REMINDER_TIMEZONE": "Mars/Olympus"}},
		{"zero interval", map[string]string{"REMINDER_INTERVAL": "0s"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	clearEnv(t)
	os.Unsetenv("OPS_PORT")
	os.Unsetenv("TELEGRAM_BOT_TOKEN")

	path := filepath.Join(t.TempDir(), "bot.env")
	content := "TELEGRAM_BOT_TOKEN=42:xyz\nOPS_PORT=9191\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.BotToken != "42:xyz" || cfg.OpsPort != "9191" {
		t.Errorf("cfg = %+v", cfg)
	}
}
