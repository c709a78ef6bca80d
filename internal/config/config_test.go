package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFindConfig_Explicit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	if err := os.WriteFile(path, []byte("listen:\n  port: 9999\n"), 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	got, err := FindConfig(path)
	if err != nil {
		t.Fatalf("FindConfig(%q) error: %v", path, err)
	}
	if got != path {
		t.Errorf("FindConfig(%q) = %q, want %q", path, got, path)
	}
}

func TestFindConfig_ExplicitMissing(t *testing.T) {
	_, err := FindConfig("/nonexistent/config.yaml")
	if err == nil {
		t.Fatal("FindConfig with missing explicit path should error")
	}
}

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("data_dir: "+dir+"\n"), 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Listen.Port != 8080 {
		t.Errorf("Listen.Port = %d, want 8080", cfg.Listen.Port)
	}
	if cfg.API.RateLimit != 60 {
		t.Errorf("API.RateLimit = %d, want 60", cfg.API.RateLimit)
	}
	if cfg.Provider.FailureThreshold != 3 {
		t.Errorf("Provider.FailureThreshold = %d, want 3", cfg.Provider.FailureThreshold)
	}
	if cfg.Scheduler.JournalDir != filepath.Join(dir, "scheduler") {
		t.Errorf("Scheduler.JournalDir = %q, want %q", cfg.Scheduler.JournalDir, filepath.Join(dir, "scheduler"))
	}
	if cfg.Owner.Channel != "api" {
		t.Errorf("Owner.Channel = %q, want %q", cfg.Owner.Channel, "api")
	}
	if cfg.Owner.Model == "" {
		t.Error("Owner.Model should default to a non-empty model name")
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("KENOBOT_TEST_SECRET", "s3cr3t")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	contents := "webhook:\n  secret: ${KENOBOT_TEST_SECRET}\n"
	if err := os.WriteFile(path, []byte(contents), 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Webhook.Secret != "s3cr3t" {
		t.Errorf("Webhook.Secret = %q, want %q", cfg.Webhook.Secret, "s3cr3t")
	}
}

func TestValidate_PortRange(t *testing.T) {
	cfg := Default()
	cfg.Listen.Port = 70000
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for out-of-range port")
	}
}

func TestValidate_TargetHourRange(t *testing.T) {
	cfg := Default()
	cfg.SleepCycle.TargetHour = 24
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for out-of-range target hour")
	}
}

func TestDefault_Applied(t *testing.T) {
	cfg := Default()
	if cfg.Watchdog.Interval != 30*time.Second {
		t.Errorf("Watchdog.Interval = %v, want 30s", cfg.Watchdog.Interval)
	}
	if cfg.SleepCycle.Period != 24*time.Hour {
		t.Errorf("SleepCycle.Period = %v, want 24h", cfg.SleepCycle.Period)
	}
}
