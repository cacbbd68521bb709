package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/burenotti/go_course_backend/internal/adapter/api"
	"github.com/burenotti/go_course_backend/internal/adapter/notifier"
	"github.com/burenotti/go_course_backend/internal/app/auth"
	batchservice "github.com/burenotti/go_course_backend/internal/app/batch"
	enrollmentservice "github.com/burenotti/go_course_backend/internal/app/enrollment"
	"github.com/burenotti/go_course_backend/internal/app/messagebus"
	"github.com/burenotti/go_course_backend/internal/app/notify"
	"github.com/burenotti/go_course_backend/internal/app/tasks"
	"github.com/burenotti/go_course_backend/internal/app/unitofwork"
	"github.com/burenotti/go_course_backend/internal/bootstrap"
	"github.com/burenotti/go_course_backend/internal/config"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config/config.yaml", "path to config file")
	flag.Parse()

	// .env is optional, real environment variables win.
	_ = godotenv.Load()

	cfg := config.MustLoad(configPath)
	logger := initLogger(cfg)

	location, err := cfg.Location()
	if err != nil {
		panic(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backends, err := bootstrap.Open(ctx, cfg, logger)
	if err != nil {
		panic("failed to open backends: " + err.Error())
	}
	if err := backends.Migrate(ctx, logger); err != nil {
		panic("failed to apply migrations: " + err.Error())
	}

	bus := messagebus.New(logger, cfg.Notifications.Workers, cfg.Notifications.QueueSize, cfg.Timeouts.Notify)
	notify.NewAudit(logger).Register(bus)
	if cfg.Notifications.Enabled {
		notify.NewHandler(newDispatcher(cfg, logger), logger).Register(bus)
	}
	bus.Start(ctx)

	batches := batchservice.New(
		backends.Directory,
		backends.Directory,
		backends.Index,
		batchservice.Timeouts{Store: cfg.Timeouts.Store, Index: cfg.Timeouts.Index, Lookup: cfg.Timeouts.Lookup},
		location,
		logger,
	)
	enrollments := enrollmentservice.New(
		backends.Directory,
		backends.Index,
		enrollmentservice.Timeouts{Store: cfg.Timeouts.Store, Index: cfg.Timeouts.Index, Lookup: cfg.Timeouts.Lookup},
		location,
		logger,
	)

	authorizer := &auth.Authorizer{
		Secret:         cfg.JWT.Secret,
		AccessTokenTTL: cfg.JWT.AccessTokenTTL,
	}

	server := api.NewServer(
		api.Addr(cfg.Server.Host, cfg.Server.Port),
		api.Logger(logger),
		api.Authorizer(authorizer),
		api.DBContext(backends.DB),
		api.BatchService(batches, backends.BatchContext),
		api.EnrollmentService(enrollments, backends.EnrollmentContext),
		api.MessageBus(bus),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		newUoW := func() *unitofwork.UnitOfWork[*batchservice.AtomicContext] {
			return backends.BatchUoW(bus, logger)
		}
		return tasks.Runner(gctx, logger, tasks.RolloverJob(batches, newUoW, cfg.Rollover.Interval))
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server was not shutdown gracefully", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("server closed with unexpected error", "error", err)
	}

	bus.Close()
	closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := backends.Close(closeCtx); err != nil {
		logger.Error("failed to close backends", "error", err)
	}
	logger.Info("server shutdown")
}

func newDispatcher(cfg *config.Config, logger *slog.Logger) notify.Dispatcher {
	if cfg.Notifications.WebhookURL == "" {
		return notifier.NewLog(logger)
	}
	return notifier.NewWebhook(
		cfg.Notifications.WebhookURL,
		cfg.Notifications.Rate,
		cfg.Notifications.Burst,
		cfg.Timeouts.Notify,
		logger,
	)
}

func initLogger(cfg *config.Config) *slog.Logger {
	var handler slog.Handler
	switch cfg.App.Env {
	case config.Development:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			AddSource: true,
			Level:     slog.LevelDebug,
		})
	case config.Production:
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			AddSource: false,
			Level:     slog.LevelInfo,
		})
	default:
		panic("invalid env")
	}

	return slog.New(handler)
}
