package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"trailbot/configs"
	"trailbot/internal/adapter/telegram"
	"trailbot/internal/calibrator"
	"trailbot/internal/database"
	httpdelivery "trailbot/internal/delivery/http"
	"trailbot/internal/exchange/kraken"
	"trailbot/internal/infra"
	"trailbot/internal/metrics"
	"trailbot/internal/repository"
	"trailbot/internal/session"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := configs.Load(log)
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := infra.NewDatabase(ctx, cfg.DatabaseURL, log)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to database")
	}
	defer db.Close()

	if err := database.RunMigrations(ctx, db, log); err != nil {
		log.WithError(err).Fatal("failed to run migrations")
	}

	candleRepo := repository.NewCandleRepository(db)
	positionRepo := repository.NewPositionRepository(db)
	calibrationRepo := repository.NewCalibrationRepository(db)

	exchange := kraken.NewClient(cfg.Kraken.BaseURL, cfg.Kraken.APIKey, cfg.Kraken.APISecret, log)
	if err := exchange.LoadPairIndex(ctx); err != nil {
		log.WithError(err).Fatal("failed to load exchange pair index")
	}

	notifier := telegram.NewNotificationService("", cfg.Telegram.BotToken, cfg.Telegram.ChatID)
	runtime := session.NewRuntime()
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	m := metrics.New(registry)

	driver := session.NewDriver(exchange, candleRepo, positionRepo, calibrationRepo,
		notifier, runtime, m, log, cfg.Pairs)

	calCfg := calibrator.DefaultConfig()
	driver.Bootstrap(ctx, calCfg, cfg.CalibrationHistory)
	if err := driver.Init(ctx); err != nil {
		log.WithError(err).Fatal("failed to initialize session")
	}

	scheduler := session.NewScheduler(driver, log)
	if err := scheduler.Start(ctx, cfg.CycleSchedule, cfg.CalibrationSchedule, calCfg, cfg.CalibrationHistory); err != nil {
		log.WithError(err).Fatal("failed to start scheduler")
	}
	defer scheduler.Stop()

	poller := telegram.NewPoller(notifier, runtime, cfg.Telegram.ChatID, log)
	go poller.Run(ctx)

	opsServer := infra.NewOpsServer(":"+cfg.OpsPort, registry, driver.RunCycle, log)
	go func() {
		if err := opsServer.Start(); err != nil {
			log.WithError(err).Error("ops server failed")
		}
	}()

	e := echo.New()
	e.HideBanner = true
	handler := httpdelivery.NewOperatorHandler(runtime, positionRepo,
		cfg.OperatorUsername, cfg.OperatorPasswordHash, cfg.JWTSecret)
	httpdelivery.SetupRoutes(e, handler, cfg.JWTSecret)
	go func() {
		if err := e.Start(":" + cfg.APIPort); err != nil {
			log.WithError(err).Info("operator API stopped")
		}
	}()

	if err := notifier.Startup(ctx, driver.Pairs()); err != nil {
		log.WithError(err).Warn("startup notification failed")
	}
	log.WithField("pairs", driver.Pairs()).Info("trailbot started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("operator API shutdown failed")
	}
	if err := opsServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("ops server shutdown failed")
	}
}
