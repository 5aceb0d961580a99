package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/notifyhub/scribe-dispatch/internal/api"
	"github.com/notifyhub/scribe-dispatch/internal/api/handler"
	"github.com/notifyhub/scribe-dispatch/internal/config"
	"github.com/notifyhub/scribe-dispatch/internal/dispatcher"
	"github.com/notifyhub/scribe-dispatch/internal/domain"
	"github.com/notifyhub/scribe-dispatch/internal/health"
	"github.com/notifyhub/scribe-dispatch/internal/ledger"
	"github.com/notifyhub/scribe-dispatch/internal/metrics"
	"github.com/notifyhub/scribe-dispatch/internal/ratelimiter"
	"github.com/notifyhub/scribe-dispatch/internal/service"
	"github.com/notifyhub/scribe-dispatch/internal/templates"
	"github.com/notifyhub/scribe-dispatch/internal/transport"
	"github.com/notifyhub/scribe-dispatch/internal/worker"
)

func main() {
	// ---- configuration ----
	cfg, err := config.Load()
	if err != nil {
		boot, _ := zap.NewProduction()
		boot.Fatal("failed to load config", zap.Error(err))
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "init logger:", err)
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
	logger.Info("server stopped cleanly")
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse LOG_LEVEL: %w", err)
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	return zcfg.Build()
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ---- dedup ledger ----
	led, err := ledger.Open(ctx, cfg.Ledger, logger)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer led.Close()

	// ---- core dependencies ----
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	store, err := templates.NewStore(cfg.Notify.TemplatesPath, logger)
	if err != nil {
		return fmt.Errorf("load templates: %w", err)
	}

	tr, err := transport.New(cfg.Transport)
	if err != nil {
		return fmt.Errorf("init transport: %w", err)
	}
	if !tr.Configured() {
		logger.Warn("delivery transport is not configured; email notifications will not be sent",
			zap.String("driver", cfg.Transport.Driver))
	}

	onEnqueued, onDropped, onSent, onFailed, onCycle := m.DispatcherHooks()
	disp := dispatcher.New(dispatcher.Options{
		Transport:   tr,
		Templates:   store,
		Limiter:     ratelimiter.New(cfg.Notify.RatePerSec),
		Sender:      cfg.Transport.Sender,
		SenderName:  cfg.Transport.SenderName,
		Interval:    cfg.Notify.DrainInterval,
		MaxAttempts: cfg.Notify.MaxAttempts,
		Backoff:     cfg.Notify.RetryBackoff,
		OnDeadLetter: func(job domain.Job, err error) {
			logger.Warn("notification dead-lettered",
				zap.String("kind", string(job.Kind)),
				zap.Strings("recipients", job.Recipients),
				zap.Time("enqueued_at", job.EnqueuedAt),
				zap.Error(err))
		},
		Logger: logger.Named("dispatcher"),
		Hooks: dispatcher.Hooks{
			OnEnqueued: onEnqueued,
			OnDropped:  onDropped,
			OnSent:     onSent,
			OnFailed:   onFailed,
			OnCycle:    onCycle,
		},
	})

	agg := health.NewAggregator(cfg.Health.HistorySize)
	pruner, err := worker.NewPruneWorker(agg, cfg.Health.Retention, cfg.Health.PruneSchedule,
		func(known int) { m.WorkersKnown.Set(float64(known)) }, logger.Named("prune"))
	if err != nil {
		return err
	}

	svc := service.NewNotificationService(disp, led, m.LedgerHook(), logger)

	var dbCheck handler.Pinger
	if p, ok := led.(ledger.Pinger); ok {
		dbCheck = p
	}

	// ---- HTTP server ----
	router := api.NewRouter(api.Deps{
		Service: svc,
		Workers: handler.WorkerHandlerOptions{
			Aggregator:   agg,
			DB:           dbCheck,
			OnlineWindow: cfg.Health.OnlineWindow,
			OnReport:     m.HealthReports.Inc,
			OnStatus:     m.ObserveFleet,
		},
		AdminJWTSecret: cfg.AdminJWTSecret,
		Gatherer:       reg,
	}, logger)
	srv := &http.Server{
		Addr:         ":" + cfg.HTTP.Port,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	// ---- background goroutines ----
	g, gctx := errgroup.WithContext(ctx)

	disp.Start(gctx)

	g.Go(func() error {
		pruner.Run(gctx)
		return nil
	})

	if cfg.Notify.WatchTemplates && cfg.Notify.TemplatesPath != "" {
		g.Go(func() error {
			// a broken watcher only disables hot reload
			if err := store.Watch(gctx); err != nil {
				logger.Error("template watcher stopped", zap.Error(err))
			}
			return nil
		})
	}

	g.Go(func() error {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	// ---- graceful shutdown ----
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received")
		notifySystemd(logger, daemon.SdNotifyStopping)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()

		// 1. Stop accepting new HTTP requests.
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", zap.Error(err))
		}

		// 2. Stop the drain loop and deliver what is still buffered.
		if err := disp.Stop(shutdownCtx, cfg.Notify.FlushOnShutdown); err != nil {
			logger.Warn("dispatcher did not finish before shutdown timeout", zap.Error(err))
		}
		return nil
	})

	notifySystemd(logger, daemon.SdNotifyReady)
	return g.Wait()
}

// notifySystemd is a no-op when not running under a systemd notify unit.
func notifySystemd(logger *zap.Logger, state string) {
	if _, err := daemon.SdNotify(false, state); err != nil {
		logger.Debug("sd_notify failed", zap.String("state", state), zap.Error(err))
	}
}
