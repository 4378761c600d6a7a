package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-telegram/bot"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	groupoffer "github.com/set-night/groupoffer"
	"github.com/set-night/groupoffer/internal/changefeed"
	"github.com/set-night/groupoffer/internal/config"
	"github.com/set-night/groupoffer/internal/repository"
	"github.com/set-night/groupoffer/internal/scheduler"
	"github.com/set-night/groupoffer/internal/service"
	"github.com/set-night/groupoffer/internal/telegram"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)

	// Setup context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connect to database
	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	// Run migrations
	migrationsFS, err := fs.Sub(groupoffer.MigrationsFS, "migrations")
	if err != nil {
		slog.Error("failed to load embedded migrations", "error", err)
		os.Exit(1)
	}
	if err := repository.RunMigrations(cfg.DatabaseURL, migrationsFS); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	repos := repository.NewRepositories(pool)

	// Notification channels
	dispatcher := service.NewDispatcher(cfg.NotifyTimeout)
	dispatcher.Register("inbox", service.InboxNotifier(repos.Notifications))

	var audit service.Auditor
	if cfg.TelegramEnabled() {
		b, err := bot.New(cfg.BotToken, bot.WithSkipGetMe())
		if err != nil {
			slog.Error("failed to create bot", "error", err)
			os.Exit(1)
		}
		dispatcher.Register("telegram", telegram.NewNotifier(b, repos.Channels))
		audit = telegram.NewAuditLogger(b, cfg)
		slog.Info("telegram delivery enabled")
	}

	// Initialize services
	reconciler := service.NewReconciler(repos, cfg.DeadlineLocation())
	finalizer := service.NewFinalizer(repos, dispatcher, audit, cfg.DeadlineLocation(), cfg.PayoutScale)

	// Settlement sweep
	sweep := scheduler.NewScheduler(repos.Offers, reconciler, finalizer, cfg.DeadlineLocation(), cfg.SweepBatchSize)
	if err := sweep.Start(cfg.SweepSchedule); err != nil {
		slog.Error("failed to start sweep", "error", err)
		os.Exit(1)
	}
	defer sweep.Stop()

	// Change feed watchers
	pgFeed := changefeed.NewPGFeed(pool)
	var feed changefeed.Feed = pgFeed
	if cfg.RedisURL != "" {
		client, err := changefeed.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			slog.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer client.Close()

		redisFeed := changefeed.NewRedisFeed(client)
		go func() {
			if err := changefeed.Relay(ctx, pgFeed, redisFeed); err != nil {
				slog.Error("change feed relay stopped", "error", err)
			}
		}()
		feed = redisFeed
	}

	watcher := service.NewWatcher(feed, reconciler, cfg.ReconcileDebounce)
	for _, groupID := range cfg.WatchGroups() {
		w, err := watcher.Watch(ctx, groupID)
		if err != nil {
			slog.Error("failed to watch group", "group_id", groupID, "error", err)
			continue
		}
		defer w.Close()
		slog.Info("watching group", "group_id", groupID)
	}

	// Metrics endpoint
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", "error", err)
		}
	}()

	slog.Info("settler started", "metrics_addr", cfg.MetricsAddr, "deadline_tz", cfg.DeadlineTZ)
	<-ctx.Done()

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("metrics server shutdown", "error", err)
	}
	slog.Info("settler stopped gracefully")
}
