package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/linkup/backend/internal/auth"
	"github.com/linkup/backend/internal/config"
	"github.com/linkup/backend/internal/credits"
	"github.com/linkup/backend/internal/db"
	"github.com/linkup/backend/internal/handlers"
	"github.com/linkup/backend/internal/housekeeping"
	"github.com/linkup/backend/internal/mailer"
	"github.com/linkup/backend/internal/media"
	"github.com/linkup/backend/internal/middleware"
	"github.com/linkup/backend/internal/notifications"
	"github.com/linkup/backend/internal/realtime"
	"github.com/linkup/backend/internal/repositories"
	"github.com/linkup/backend/internal/storage"
)

// Housekeeping job names.
const (
	jobStories       = "stories"
	jobNotifications = "notifications"
	jobSessions      = "sessions"
	jobTokens        = "tokens"
)

// localLimiterTTL is how long an idle client keeps its in-process rate limiter state.
const localLimiterTTL = 10 * time.Minute

// components is the wired service: the handler dependencies, the retention jobs and the
// connections that must be released on exit.
type components struct {
	Deps    handlers.Dependencies
	Jobs    map[string]housekeeping.Job
	Hub     *realtime.Hub
	closers []func(context.Context) error
}

// Close releases external connections in reverse order of creation.
func (c *components) Close(ctx context.Context) error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// buildDependencies wires together concrete implementations used by the HTTP handlers and the
// housekeeping runner. Optional integrations fall back to in-process implementations when
// their address is not configured.
func buildDependencies(ctx context.Context, pool db.Pool, cfg config.Config, logger *slog.Logger) (*components, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &components{}

	users := repositories.NewPostgresUserRepository(pool)
	tokens := repositories.NewPostgresTokenRepository(pool)
	friends := repositories.NewPostgresFriendRepository(pool)
	posts := repositories.NewPostgresPostRepository(pool)
	stories := repositories.NewPostgresStoryRepository(pool)
	conversations := repositories.NewPostgresConversationRepository(pool)

	sessions := auth.NewManager(
		auth.NewTokenIssuer(cfg.JWTSecret, cfg.AccessTokenTTL),
		cfg.RefreshTokenTTL,
		repositories.NewPostgresSessionStore(pool),
	)

	location, err := time.LoadLocation(cfg.Credits.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load credit timezone: %w", err)
	}
	ledger := credits.NewLedger(repositories.NewPostgresCreditStore(pool), credits.Policy{
		DailyAllowance: cfg.Credits.DailyAllowance,
		Cost:           cfg.Credits.PostCost,
		Location:       location,
	})

	var objects media.Storage
	if cfg.ObjectStore.Enabled() {
		s3, err := storage.NewS3Storage(ctx, cfg.ObjectStore)
		if err != nil {
			return nil, err
		}
		objects = s3
	} else {
		logger.Warn("object store not configured, media uploads are disabled")
	}
	uploader := media.NewUploader(objects, media.NewFFProbe(cfg.FFProbePath, cfg.FFProbeTimeout), cfg.MaxUploadBytes)

	var mail handlers.Mailer = mailer.LogMailer{Logger: logger}
	if cfg.SMTP.Enabled() {
		mail = mailer.NewSMTPMailer(cfg.SMTP, cfg.VerificationTTL, cfg.ResetTTL)
	}

	checks := map[string]handlers.Pinger{}
	var publisher notifications.Publisher
	if cfg.NATSURL != "" {
		nats, err := notifications.NewNATSPublisher(cfg.NATSURL, logger)
		if err != nil {
			_ = c.Close(ctx)
			return nil, err
		}
		publisher = nats
		checks["nats"] = nats
		c.closers = append(c.closers, func(context.Context) error { return nats.Close() })
	}
	notifier := notifications.NewNotifier(repositories.NewPostgresNotificationStore(pool), publisher, cfg.NotificationRetention)

	var limiter handlers.RateLimiter
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			_ = c.Close(ctx)
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client := redis.NewClient(opts)
		c.closers = append(c.closers, func(context.Context) error { return client.Close() })
		shared := middleware.NewRedisRateLimiter(client, cfg.RateLimitRequests, cfg.RateLimitWindow, logger)
		limiter = shared
		checks["redis"] = shared
	} else {
		limiter = middleware.NewIPRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow, cfg.RateLimitRequests, localLimiterTTL)
	}

	hub := realtime.NewHub(realtime.NewCachingMembership(conversations, cfg.MembershipCacheTTL), logger)
	c.Hub = hub
	c.closers = append(c.closers, func(context.Context) error {
		hub.Close()
		return nil
	})

	c.Deps = handlers.Dependencies{
		Accounts:        users,
		Profiles:        users,
		Tokens:          tokens,
		Sessions:        sessions,
		Authenticator:   sessions,
		Mail:            mail,
		Limiter:         limiter,
		Friends:         friends,
		Posts:           posts,
		Credits:         ledger,
		Stories:         stories,
		Conversations:   conversations,
		Media:           uploader,
		Hub:             hub,
		Notifications:   notifier,
		Notifier:        notifier,
		Realtime:        realtime.NewHandler(hub, sessions),
		Checks:          checks,
		BaseURL:         cfg.PublicBaseURL,
		DailyCredits:    cfg.Credits.DailyAllowance,
		VerificationTTL: cfg.VerificationTTL,
		ResetTTL:        cfg.ResetTTL,
		StoryTTL:        cfg.StoryTTL,
	}
	if pinger, ok := pool.(handlers.Pinger); ok {
		c.Deps.Database = pinger
	}

	c.Jobs = map[string]housekeeping.Job{
		jobStories: func(ctx context.Context) (int64, error) {
			return stories.DeleteExpired(ctx, time.Now())
		},
		jobNotifications: notifier.Sweep,
		jobSessions:      sessions.PurgeExpired,
		jobTokens: func(ctx context.Context) (int64, error) {
			return tokens.DeleteExpired(ctx, time.Now())
		},
	}

	return c, nil
}
