package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"remindr/internal/access"
	"remindr/internal/api"
	"remindr/internal/auth"
	"remindr/internal/config"
	"remindr/internal/database"
	"remindr/internal/events"
	"remindr/internal/limiter"
	"remindr/internal/logging"
	"remindr/internal/mailer"
	"remindr/internal/metrics"
	"remindr/internal/models"
	"remindr/internal/mongostore"
	"remindr/internal/service"
	"remindr/shared/reminders"
)

// store is what every storage backend provides.
type store interface {
	service.ReminderRepository
	service.UserRepository
	reminders.ReminderStore
}

type backend struct {
	store
	ping   func(ctx context.Context) error
	close  func()
	sqlite *database.DB
}

func main() {
	logger := logging.New("info", false, os.Stdout)

	cfgPath := os.Getenv("REMINDR_CONFIG")
	if cfgPath == "" {
		cfgPath = config.DefaultPath
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	logger = logging.New(cfg.Log.Level, cfg.Log.JSON, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	be, err := openBackend(ctx, cfg, &logger)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.Storage.Driver).Msg("open storage error")
	}
	defer be.close()

	var rdb *redis.Client
	var attempts limiter.Limiter = limiter.NewMemory()
	if cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		attempts = limiter.NewFailover(limiter.NewRedis(rdb), limiter.NewMemory(), &logger)
	}

	m, err := mailer.New(mailer.Config{
		Provider:     cfg.Mail.Provider,
		ResendAPIKey: cfg.Mail.Resend.APIKey,
		SMTPHost:     cfg.Mail.SMTP.Host,
		SMTPPort:     cfg.Mail.SMTP.Port,
		SMTPUsername: cfg.Mail.SMTP.Username,
		SMTPPassword: cfg.Mail.SMTP.Password,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("create mailer error")
	}

	engineLog := logging.NewKV(logger.With().Str("component", "scheduler").Logger())
	engineMetrics := reminders.NewMetrics(metrics.Namespace, prometheus.DefaultRegisterer)
	dispatcher := reminders.NewDispatcher(m, reminders.DispatcherConfig{
		From:         cfg.Mail.From,
		SendInterval: cfg.SendInterval(),
	}, engineLog, engineMetrics)

	scheduler, err := reminders.NewScheduler(reminders.SchedulerConfig{
		Cron:       cfg.Scheduler.Cron,
		RunOnStart: cfg.Scheduler.RunOnStart,
	}, be.store, dispatcher, engineMetrics, engineLog)
	if err != nil {
		logger.Fatal().Err(err).Msg("create scheduler error")
	}

	bus := events.NewEventBus(logger)
	tracker := api.NewPassTracker()
	tracker.Subscribe(bus)
	bus.Subscribe(reminders.EventReminderSent, func(ev events.Event) error {
		if r, ok := ev.Payload.(models.Reminder); ok {
			logger.Debug().Str("reminder_id", r.ID).Str("status", string(r.Status)).Msg("reminder advanced")
		}
		return nil
	})
	scheduler.SetPublisher(bus)

	operators := access.NewService(cfg.Operators, logger)
	go func() {
		err := config.Watch(ctx, cfgPath, logger, func(updated *config.Config) {
			operators.SetOperators(updated.Operators)
		})
		if err != nil {
			logger.Warn().Err(err).Msg("config watch disabled")
		}
	}()

	if be.sqlite != nil && cfg.Backup.Enabled {
		backups := database.NewBackupService(be.sqlite, database.BackupConfig{
			Enabled:   true,
			Cron:      cfg.Backup.Cron,
			Dir:       cfg.Backup.Path,
			Retention: cfg.BackupRetention(),
		}, &logger)
		go backups.Start(ctx)
	}

	go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, be.ping, rdb, &logger)

	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	proxies, err := cfg.TrustedProxies()
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid trusted proxies")
	}

	tokens := auth.NewManager(cfg.Auth.JWTSecret, cfg.TokenTTL())
	server := api.NewHTTPServer(api.Deps{
		Reminders: service.NewReminderService(be.store, logger),
		Auth:      service.NewAuthService(be.store, tokens, cfg.Auth.BcryptCost, logger),
		Tokens:    tokens,
		Access:    operators,
		Runner:    scheduler,
		Tracker:   tracker,
		Limiter:   attempts,
		RateLimit: api.RateLimitConfig{
			Attempts: cfg.RateLimit.LoginAttempts,
			Window:   cfg.RateLimitWindow(),
		},
		TrustedProxies: proxies,
	}, logger)

	schedulerDone := make(chan struct{})
	go func() {
		defer close(schedulerDone)
		scheduler.Start(ctx)
	}()

	logger.Info().
		Str("storage", cfg.Storage.Driver).
		Str("mail", cfg.Mail.Provider).
		Str("cron", cfg.Scheduler.Cron).
		Msg("remindr started")

	if err := server.Start(ctx, fmt.Sprintf(":%d", cfg.HTTP.Port), cfg.ShutdownTimeout()); err != nil {
		logger.Error().Err(err).Msg("api server error")
		stop()
	}
	<-ctx.Done()
	<-schedulerDone
	logger.Info().Msg("remindr stopped")
}

func openBackend(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*backend, error) {
	switch cfg.Storage.Driver {
	case "mongo":
		ctxConnect, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		s, err := mongostore.Connect(ctxConnect, cfg.Storage.Mongo.URI, cfg.Storage.Mongo.Database, logger)
		if err != nil {
			return nil, err
		}
		return &backend{
			store: s,
			ping:  s.Ping,
			close: func() {
				ctxClose, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = s.Close(ctxClose)
			},
		}, nil
	default:
		db, err := database.NewDB(cfg.Storage.SQLite.Path, logger)
		if err != nil {
			return nil, err
		}
		return &backend{
			store:  db,
			ping:   db.PingContext,
			close:  func() { _ = db.Close() },
			sqlite: db,
		}, nil
	}
}

func startHealthServer(ctx context.Context, port int, ping func(context.Context) error, rdb *redis.Client, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if err := ping(ctxPing); err != nil {
			http.Error(w, "storage not ready", http.StatusServiceUnavailable)
			return
		}
		if rdb != nil {
			if err := rdb.Ping(ctxPing).Err(); err != nil {
				http.Error(w, "redis not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	serve(ctx, port, mux, "health", logger)
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	serve(ctx, port, mux, "metrics", logger)
}

func serve(ctx context.Context, port int, h http.Handler, name string, logger *zerolog.Logger) {
	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: h, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Str("server", name).Msg("server error")
	}
}
