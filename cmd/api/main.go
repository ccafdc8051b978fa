package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"attendtrack/internal/app"
	"attendtrack/internal/attendance"
	"attendtrack/internal/auth"
	"attendtrack/internal/cloudinary"
	"attendtrack/internal/config"
	"attendtrack/internal/faceclient"
	"attendtrack/internal/govsync"
	"attendtrack/internal/handler"
	"attendtrack/internal/httpmiddleware"
	"attendtrack/internal/live"
	"attendtrack/internal/logging"
	"attendtrack/internal/metrics"
	"attendtrack/internal/observability"
	"attendtrack/internal/settings"
)

var version = "dev"

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

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := run(cfg, lg.Base); err != nil {
		observability.CaptureErr(err)
		lg.Base.Fatal("api stopped", zap.Error(err))
	}
}

func run(cfg config.App, lg *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b, err := app.Open(ctx, cfg, lg)
	if err != nil {
		return err
	}
	defer b.Close()

	hub := live.NewHub(lg.Named("live"))
	go hub.Run(ctx)

	face := faceclient.New(cfg.FaceServiceURL, cfg.FaceSkip)
	svc := attendance.NewService(b.Store, lg.Named("attendance"), attendance.Options{
		Location:      cfg.Location,
		Notifier:      hub,
		Face:          face,
		MinSimilarity: cfg.FaceMinSimilarity,
	})
	if cfg.SeedDemo {
		seeded, err := svc.SeedDemo(ctx, cfg.DemoUsername)
		if err != nil {
			return err
		}
		if !seeded {
			lg.Info("demo data already present", zap.String("teacher", cfg.DemoUsername))
		}
	}

	settingsSvc := settings.NewService(b.Settings)
	syncer := govsync.NewSyncer(b.Queue, b.Statuses, b.Store, govsync.LogGateway{Log: lg.Named("gateway")}, lg.Named("sync"))
	if cfg.QueueBackend == "memory" {
		// No separate worker can reach an in-process queue.
		go func() {
			if err := syncer.Run(ctx); err != nil {
				lg.Error("sync consumer stopped", zap.Error(err))
			}
		}()
		c, err := syncer.Schedule(settingsSvc, cfg.Location)
		if err != nil {
			return err
		}
		c.Start()
		defer c.Stop()
	}

	deps := handler.Deps{
		Attendance:      svc,
		Settings:        settingsSvc,
		Sync:            syncer,
		Live:            hub,
		Face:            face,
		Signer:          auth.NewSigner(cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL),
		RFIDDeviceAuth:  cfg.RFIDDeviceAuth,
		RegistrationKey: cfg.DeviceRegistrationKey,
		DemoUsername:    cfg.DemoUsername,
		Checks: map[string]handler.Check{
			"db":    b.PingStore,
			"redis": b.PingRedis,
		},
		Log: lg.Named("http"),
	}
	if cfg.RFIDDeviceAuth && cfg.DeviceRegistrationKey == "" {
		lg.Warn("RFID_DEVICE_AUTH is on but device registration is open; set DEVICE_REGISTRATION_KEY")
	}
	if cfg.CloudinaryConfigured() {
		deps.Photos = cloudinary.New(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder)
		lg.Info("cloudinary configured", zap.String("cloud", cfg.CloudinaryCloudName))
	} else {
		lg.Warn("cloudinary not configured, photo uploads disabled")
	}
	if !cfg.FaceSkip {
		deps.Checks["face"] = face.Health
	}

	limiter := httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin)
	go sweepLimiter(ctx, limiter)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestLogger(lg.Named("access"), "/healthz", "/metrics"))
	r.Use(httpmiddleware.Metrics())
	r.Use(httpmiddleware.CORS())
	r.Use(httpmiddleware.SecurityHeaders())
	r.Use(limiter.GinMiddleware())

	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	handler.New(deps).Register(r)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		lg.Info("http server listening", zap.String("addr", srv.Addr), zap.String("version", version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	lg.Info("shutting down")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Warn("forced shutdown", zap.Error(err))
	}
	return nil
}

func sweepLimiter(ctx context.Context, l *httpmiddleware.TokenBucket) {
	t := time.NewTicker(5 * time.Minute)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			l.Sweep()
		}
	}
}
