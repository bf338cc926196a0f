package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"landscape_tracker/internal/config"
	"landscape_tracker/internal/controllers"
	"landscape_tracker/internal/hub"
	"landscape_tracker/internal/logger"
	"landscape_tracker/internal/metrics"
	"landscape_tracker/internal/middleware"
	"landscape_tracker/internal/repository"
	"landscape_tracker/internal/routes"
	"landscape_tracker/internal/tracking"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration.")
	}

	if err := logger.Setup(cfg.LogLevel, cfg.LogFile); err != nil {
		logrus.WithError(err).Fatal("Failed to set up logging.")
	}
	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	metrics.Init()

	db, err := config.OpenDB(cfg.DB, logger.GormLogger(200*time.Millisecond))
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database.")
	}

	h := hub.New(
		hub.WithBuffer(cfg.HubBuffer),
		hub.WithDropHook(func(string) { metrics.IncHubDrop() }),
	)

	geofenceStore := repository.NewGeofences(db)
	samples := repository.NewSamples(db)
	jobs := repository.NewJobs(db)

	geofences, err := tracking.NewGeofenceService(geofenceStore, h)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to build geofence service.")
	}
	bridge, err := tracking.NewStatusBridge(jobs, h)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to build status bridge.")
	}
	detector, err := tracking.NewDetector(geofenceStore, repository.NewStates(db), repository.NewEvents(db), jobs, bridge,
		tracking.WithDetectorPublisher(h))
	if err != nil {
		logrus.WithError(err).Fatal("Failed to build transition detector.")
	}
	ingestor, err := tracking.NewIngestor(samples, detector,
		tracking.WithIngestorPublisher(h),
		tracking.WithMaxClockSkew(cfg.Tracking.MaxClockSkew),
	)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to build location ingestor.")
	}
	feed, err := tracking.NewFeed(samples, geofenceStore, repository.NewUsers(db),
		tracking.WithStaleAfter(cfg.Tracking.StaleAfter),
		tracking.WithSpeeds(cfg.Tracking.DefaultSpeedMPS, cfg.Tracking.MinSpeedMPS),
	)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to build live feed.")
	}
	sweeper, err := tracking.NewSweeper(ingestor, detector, tracking.SweeperConfig{
		Interval:     cfg.Tracking.SweepInterval,
		Retention:    cfg.Tracking.Retention,
		AbandonAfter: cfg.Tracking.AbandonAfter,
	}, nil)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to build sweeper.")
	}

	auth, err := middleware.NewAuth(cfg.JWTSecret)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to configure authentication.")
	}
	limiter := middleware.NewActorLimiter(cfg.IngestRate, cfg.IngestBurst)

	r := routes.SetupRouter(routes.Deps{
		Auth:      auth,
		Limiter:   limiter,
		Tracking:  controllers.NewTrackingController(ingestor, geofences, detector, feed),
		WebSocket: controllers.NewWebSocketController(ingestor, h, limiter),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go sweeper.Run(ctx)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logrus.WithField("addr", cfg.HTTPAddr).Info("🚀 Server running")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).Fatal("HTTP server stopped unexpectedly.")
		}
	}()

	<-ctx.Done()
	logrus.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Error("Graceful shutdown failed.")
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
}
