package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linkup/backend/internal/config"
	"github.com/linkup/backend/internal/mailer"
	"github.com/linkup/backend/internal/middleware"
)

type fakePool struct{}

func (fakePool) Acquire(context.Context) (*pgxpool.Conn, error) {
	return nil, errors.New("not implemented")
}

func (fakePool) Close() {}

type pingingPool struct {
	fakePool
}

func (pingingPool) Ping(context.Context) error { return nil }

func testConfig() config.Config {
	return config.Config{
		PublicBaseURL:         "http://localhost:8080",
		JWTSecret:             "secret",
		AccessTokenTTL:        time.Hour,
		RefreshTokenTTL:       24 * time.Hour,
		VerificationTTL:       time.Hour,
		ResetTTL:              10 * time.Minute,
		Credits:               config.CreditConfig{PostCost: 5, DailyAllowance: 5, Timezone: "UTC"},
		StoryTTL:              24 * time.Hour,
		NotificationRetention: 30 * 24 * time.Hour,
		MaxUploadBytes:        1 << 20,
		FFProbePath:           "ffprobe",
		FFProbeTimeout:        time.Second,
		RateLimitRequests:     10,
		RateLimitWindow:       time.Minute,
		MembershipCacheTTL:    time.Minute,
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBuildDependencies(t *testing.T) {
	cfg := testConfig()
	cfg.ObjectStore = config.ObjectStoreConfig{Bucket: "test-bucket", Endpoint: "http://localhost:9000", Region: "us-east-1"}

	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")

	comps, err := buildDependencies(context.Background(), fakePool{}, cfg, quietLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = comps.Close(ctx)
	}()

	deps := comps.Deps
	if deps.Accounts == nil || deps.Profiles == nil || deps.Tokens == nil {
		t.Fatal("expected user repositories to be configured")
	}
	if deps.Sessions == nil || deps.Authenticator == nil {
		t.Fatal("expected session manager to be configured")
	}
	if deps.Friends == nil || deps.Posts == nil || deps.Stories == nil || deps.Conversations == nil {
		t.Fatal("expected content repositories to be configured")
	}
	if deps.Credits == nil {
		t.Fatal("expected credit ledger to be configured")
	}
	if deps.Media == nil || deps.Hub == nil || deps.Realtime == nil {
		t.Fatal("expected media and realtime to be configured")
	}
	if deps.Notifications == nil || deps.Notifier == nil {
		t.Fatal("expected notifier to be configured")
	}
	if deps.Database != nil {
		t.Fatal("expected no health pinger for a pool without Ping")
	}
	if deps.BaseURL != cfg.PublicBaseURL || deps.DailyCredits != 5 || deps.StoryTTL != 24*time.Hour {
		t.Fatalf("unexpected settings: %+v", deps)
	}

	for _, name := range []string{jobStories, jobNotifications, jobSessions, jobTokens} {
		if comps.Jobs[name] == nil {
			t.Fatalf("expected housekeeping job %q", name)
		}
	}
}

func TestBuildDependenciesFallsBackWithoutIntegrations(t *testing.T) {
	comps, err := buildDependencies(context.Background(), pingingPool{}, testConfig(), quietLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer func() { _ = comps.Close(context.Background()) }()

	if _, ok := comps.Deps.Mail.(mailer.LogMailer); !ok {
		t.Fatalf("expected log mailer got %T", comps.Deps.Mail)
	}
	if _, ok := comps.Deps.Limiter.(*middleware.IPRateLimiter); !ok {
		t.Fatalf("expected in-process rate limiter got %T", comps.Deps.Limiter)
	}
	if comps.Deps.Database == nil {
		t.Fatal("expected pool with Ping to back the health check")
	}
	if len(comps.Deps.Checks) != 0 {
		t.Fatalf("expected no optional health checks, got %v", comps.Deps.Checks)
	}
}

func TestBuildDependenciesUsesRedisLimiter(t *testing.T) {
	cfg := testConfig()
	cfg.RedisURL = "redis://localhost:6379/0"

	comps, err := buildDependencies(context.Background(), fakePool{}, cfg, quietLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer func() { _ = comps.Close(context.Background()) }()

	if _, ok := comps.Deps.Limiter.(*middleware.RedisRateLimiter); !ok {
		t.Fatalf("expected redis rate limiter got %T", comps.Deps.Limiter)
	}
	if comps.Deps.Checks["redis"] == nil {
		t.Fatal("expected redis to be reported by the health check")
	}
}

func TestBuildDependenciesRejectsBadInputs(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{name: "unknown timezone", mutate: func(c *config.Config) { c.Credits.Timezone = "Mars/Olympus_Mons" }},
		{name: "malformed redis url", mutate: func(c *config.Config) { c.RedisURL = "tcp://nowhere" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			tc.mutate(&cfg)
			if _, err := buildDependencies(context.Background(), fakePool{}, cfg, quietLogger()); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestSeedFileName(t *testing.T) {
	cases := map[string]string{
		"dev":          "dev_seed.sql",
		"demo.sql":     "demo.sql",
		"dev_seed.sql": "dev_seed.sql",
	}
	for in, want := range cases {
		if got := seedFileName(in); got != want {
			t.Fatalf("seedFileName(%q) = %q want %q", in, got, want)
		}
	}
}

func TestRunRejectsUnknownCommands(t *testing.T) {
	if err := Run(context.Background(), nil); err == nil {
		t.Fatal("expected error without a command")
	}
	if err := Run(context.Background(), []string{"transcode"}); err == nil {
		t.Fatal("expected error for unknown command")
	}
}
