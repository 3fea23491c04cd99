package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.AppPort != 8080 {
		t.Fatalf("expected default port 8080 got %d", cfg.AppPort)
	}
	if cfg.AccessTokenTTL != 30*24*time.Hour {
		t.Fatalf("expected 30 day access tokens got %s", cfg.AccessTokenTTL)
	}
	if cfg.Credits.PostCost != 5 || cfg.Credits.DailyAllowance != 5 {
		t.Fatalf("unexpected credit defaults: %+v", cfg.Credits)
	}
	if cfg.StoryTTL != 24*time.Hour {
		t.Fatalf("expected 24h stories got %s", cfg.StoryTTL)
	}
	if cfg.ObjectStore.Enabled() || cfg.SMTP.Enabled() {
		t.Fatal("expected optional integrations to be disabled by default")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("LINKUP_PORT", "9090")
	t.Setenv("LINKUP_POST_CREDIT_COST", "3")
	t.Setenv("LINKUP_SWEEP_INTERVAL", "5m")
	t.Setenv("LINKUP_S3_BUCKET", "media")
	t.Setenv("LINKUP_PUBLIC_BASE_URL", "https://linkup.example.com/")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.AppPort != 9090 {
		t.Fatalf("expected port override got %d", cfg.AppPort)
	}
	if cfg.Credits.PostCost != 3 {
		t.Fatalf("expected post cost override got %d", cfg.Credits.PostCost)
	}
	if cfg.SweepInterval != 5*time.Minute {
		t.Fatalf("expected sweep interval override got %s", cfg.SweepInterval)
	}
	if !cfg.ObjectStore.Enabled() {
		t.Fatal("expected object store to be enabled")
	}
	if cfg.PublicBaseURL != "https://linkup.example.com" {
		t.Fatalf("expected trailing slash trimmed got %q", cfg.PublicBaseURL)
	}
}

func TestLoadRejectsUnknownTimezone(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("LINKUP_CREDIT_TIMEZONE", "Mars/Olympus_Mons")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown timezone")
	}
}

func TestValidateRequiresSecret(t *testing.T) {
	cfg := Config{DatabaseURL: "postgres://localhost/linkup"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected missing secret to fail validation")
	}

	cfg.JWTSecret = "secret"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
}
