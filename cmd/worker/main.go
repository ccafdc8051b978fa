package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"attendtrack/internal/app"
	"attendtrack/internal/config"
	"attendtrack/internal/govsync"
	"attendtrack/internal/logging"
	"attendtrack/internal/observability"
	"attendtrack/internal/settings"
)

var version = "dev"

// Worker consumes sync jobs from the queue and runs the auto-sync schedule.
func main() {
	cfg := config.Load()

	lg, err := logging.Init(cfg.LogLevel, cfg.Env)
	if err != nil {
		log.Fatalf("logger init: %v", err)
	}
	defer lg.Closer()

	flush, err := observability.InitSentry(cfg.SentryDSN, cfg.Env, version)
	if err != nil {
		lg.Base.Warn("sentry disabled", zap.Error(err))
	}
	defer flush()

	if cfg.QueueBackend == "memory" {
		lg.Base.Fatal("worker needs QUEUE_BACKEND=redis; the api consumes the in-memory queue itself")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b, err := app.Open(ctx, cfg, lg.Base)
	if err != nil {
		observability.CaptureErr(err)
		lg.Base.Fatal("backends", zap.Error(err))
	}
	defer b.Close()

	syncer := govsync.NewSyncer(b.Queue, b.Statuses, b.Store, govsync.LogGateway{Log: lg.Base.Named("gateway")}, lg.Base.Named("sync"))
	c, err := syncer.Schedule(settings.NewService(b.Settings), cfg.Location)
	if err != nil {
		lg.Base.Fatal("schedule", zap.Error(err))
	}
	c.Start()

	lg.Base.Info("worker started", zap.String("queue", app.SyncQueueKey))
	if err := syncer.Run(ctx); err != nil {
		observability.CaptureErr(err)
		lg.Base.Error("consumer stopped", zap.Error(err))
	}

	<-c.Stop().Done()
	lg.Base.Info("worker stopped")
}
