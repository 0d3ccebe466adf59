// Package app assembles the long-lived components from configuration. Both
// the API server and the cronjob runner build on it.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"bloodlink-backend/internal/cache"
	"bloodlink-backend/internal/config"
	"bloodlink-backend/internal/email"
	"bloodlink-backend/internal/jobs"
	"bloodlink-backend/internal/logger"
	"bloodlink-backend/internal/presence"
	"bloodlink-backend/internal/push"
	"bloodlink-backend/internal/realtime"
	"bloodlink-backend/internal/repository"
	"bloodlink-backend/internal/repository/memory"
	"bloodlink-backend/internal/repository/postgres"
	"bloodlink-backend/internal/service"
)

type App struct {
	Config   *config.Config
	Store    repository.Store
	Cache    *cache.Cache
	Registry *presence.Registry
	Hub      *realtime.Hub
	Emails   *email.Queue
	Pusher   push.Sender

	Matcher    service.GeoMatcher
	Dispatcher service.NotificationDispatcher
	Requests   service.BloodRequestService
	Donors     service.DonorService

	db *sql.DB
}

// New connects the store and optional collaborators and wires the services.
// The email queue is started; Close stops it.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}

	switch cfg.Database.Driver {
	case "memory":
		logger.Warn("Using in-memory store, data is lost on restart")
		a.Store = memory.NewStore()
	default:
		logger.Info("Connecting to database...", "host", cfg.Database.Host, "port", cfg.Database.Port, "database", cfg.Database.Database)
		db, err := postgres.Open(cfg.GetDatabaseConnectionString())
		if err != nil {
			return nil, err
		}
		logger.Info("Database connection established")
		a.db = db
		a.Store = postgres.NewStore(db)
	}

	if cfg.Redis.Addr != "" {
		a.Cache = cache.NewCache(strings.Split(cfg.Redis.Addr, ","), cfg.Redis.Password, cfg.Redis.DB)
		if err := a.Cache.Ping(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		logger.Info("Redis connection established", "addr", cfg.Redis.Addr)
	}

	a.Registry = presence.NewRegistry(cfg.Presence.Shards)
	hubOpts := []realtime.Option{realtime.WithAllowedOrigins(cfg.Server.AllowedOrigins)}
	if a.Cache != nil {
		hubOpts = append(hubOpts, realtime.WithRelay(realtime.NewRedisRelay(a.Cache, cfg.Redis.EventsChannel)))
	}
	a.Hub = realtime.NewHub(a.Registry, cfg.Presence.HeartbeatInterval, hubOpts...)

	emails, err := newEmailQueue(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Emails = emails
	// Workers outlive ctx so shutdown can flush what is queued.
	a.Emails.Start(context.Background())

	a.Pusher = push.NewNoopSender()
	if cfg.Firebase.Enabled {
		pusher, err := push.NewFCMSender(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Pusher = pusher
		logger.Info("Firebase push enabled", "project", cfg.Firebase.ProjectID)
	}

	a.Matcher = service.NewGeoMatcher(a.Store.Donors(), service.GeoOptions{
		DefaultRadiusKm: cfg.Geo.DefaultRadiusKm,
		MaxResults:      cfg.Geo.MaxResults,
		FallbackLimit:   cfg.Geo.FallbackLimit,
		Native:          cfg.Database.Driver == "postgres" && cfg.Database.NativeGeo,
	})
	a.Dispatcher = service.NewNotificationDispatcher(
		a.Store.Notifications(),
		a.Store.Donors(),
		a.Registry,
		a.Hub,
		a.Pusher,
		a.Emails,
		service.DispatcherOptions{
			BulkBatchSize:   cfg.Notification.BulkBatchSize,
			PushConcurrency: cfg.Notification.PushConcurrency,
		},
	)
	a.Requests = service.NewBloodRequestService(
		a.Store.BloodRequests(),
		a.Store.Donors(),
		a.Matcher,
		a.Dispatcher,
		a.Hub,
		service.RequestOptions{
			FanoutTimeout:     cfg.Notification.FanoutTimeout,
			EmailOnNewRequest: cfg.Notification.EmailOnNewRequest,
		},
	)
	a.Donors = service.NewDonorService(a.Store.Donors(), a.Dispatcher, a.Hub)
	return a, nil
}

func newEmailQueue(cfg *config.Config) (*email.Queue, error) {
	var sender email.Sender
	switch strings.ToLower(cfg.Email.Provider) {
	case "sendgrid":
		sender = email.NewSendGridSender(cfg.SendGrid.APIKey, cfg.SendGrid.FromEmail, cfg.SendGrid.FromName)
	case "smtp":
		sender = email.NewSMTPSender(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.User, cfg.SMTP.Password, cfg.SMTP.From)
	default:
		logger.Warn("Email delivery disabled", "provider", cfg.Email.Provider)
		sender = email.NewNoopSender()
	}

	renderer, err := email.NewRenderer(cfg.Email.TemplateDir, cfg.Email.FrontendURL)
	if err != nil {
		return nil, fmt.Errorf("failed to load email templates: %w", err)
	}
	return email.NewQueue(sender, renderer, email.QueueConfig{
		Workers:     cfg.Email.Workers,
		QueueSize:   cfg.Email.QueueSize,
		MaxRetries:  cfg.Email.MaxRetries,
		RatePerSec:  cfg.Email.RatePerSec,
		BaseBackoff: 2 * time.Second,
	}), nil
}

// Locker returns the Redis job lock, or nil on single-instance deployments.
func (a *App) Locker() jobs.Locker {
	if a.Cache == nil {
		return nil
	}
	return a.Cache
}

// Health pings the database and Redis when they are configured.
func (a *App) Health(ctx context.Context) error {
	if a.db != nil {
		if err := a.db.PingContext(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	if a.Cache != nil {
		if err := a.Cache.Ping(ctx); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

// Flush waits for queued email to go out. Used by one-shot runs before
// Close, which would otherwise drop what is still buffered.
func (a *App) Flush(ctx context.Context) {
	if a.Emails == nil {
		return
	}
	if err := a.Emails.Drain(ctx); err != nil {
		logger.Warn("Email queue not fully drained", "error", err)
	}
}

// Close releases everything New acquired. Safe on a partially built App.
func (a *App) Close() {
	if a.Hub != nil {
		a.Hub.Close()
	}
	if a.Emails != nil {
		a.Emails.Stop()
	}
	if a.Cache != nil {
		if err := a.Cache.Close(); err != nil {
			logger.Warn("Failed to close redis", "error", err)
		}
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			logger.Warn("Failed to close store", "error", err)
		}
	}
}
