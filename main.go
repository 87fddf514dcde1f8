package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"robot-console/config"
	"robot-console/converter"
	"robot-console/database"
	"robot-console/handlers"
	"robot-console/logging"
	"robot-console/metrics"
	"robot-console/models"
	"robot-console/mqtt"
	"robot-console/redis"
	"robot-console/services"
	"robot-console/transport"
)

const draftJanitorInterval = 15 * time.Minute

func main() {
	// Load configuration
	cfg := config.LoadConfig()

	appLogger, logCloser := logging.NewLogger(cfg.LogLevel, cfg.LogFile)
	defer logCloser.Close()
	slog.SetDefault(appLogger)

	// Initialize database
	db, err := database.NewDatabase(cfg, appLogger)
	if err != nil {
		fatal(appLogger, "Failed to initialize database", err)
	}
	defer db.Close()

	// Initialize Redis
	redisClient, err := redis.NewRedisClient(cfg, appLogger)
	if err != nil {
		fatal(appLogger, "Failed to initialize Redis", err)
	}
	defer redisClient.Close()

	// Initialize MQTT client
	mqttClient, err := mqtt.NewClient(cfg, appLogger)
	if err != nil {
		fatal(appLogger, "Failed to initialize MQTT client", err)
	}
	defer mqttClient.Disconnect()

	// Transports
	robotAPI := transport.NewHTTPTransport(cfg.APIBaseURL, cfg.Timeout, appLogger)
	robotAPI.SetBearerToken(cfg.APIToken)
	robotAPI.SetHeader("User-Agent", "robot-console")
	defer robotAPI.Close()

	mqttTransport := transport.NewMQTTTransport(mqttClient.GetClient(), cfg.Timeout, appLogger)
	events := mqtt.NewEventPublisher(mqttTransport, cfg.MQTTTopicPrefix, appLogger)

	// Initialize services
	m := metrics.NewMetrics()
	robotService := services.NewRobotService(
		robotAPI,
		converter.NewNormalizer(cfg.APIBaseURL),
		redisClient,
		events,
		db.SubmissionRepo,
		m,
		appLogger,
	)
	draftService := services.NewDraftService(db.DraftRepo, robotService, appLogger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := draftService.Recover(ctx); err != nil {
		fatal(appLogger, "Failed to recover drafts", err)
	}
	go draftService.RunJanitor(ctx, cfg.DraftTTL, draftJanitorInterval)

	// Robot changes made by other console instances invalidate our cache.
	err = mqttClient.Subscribe(mqtt.EventWildcard(cfg.MQTTTopicPrefix),
		mqtt.RobotEventHandler(appLogger, func(event models.RobotEvent) {
			robotService.HandleRobotEvent(ctx, event)
		}))
	if err != nil {
		appLogger.Warn("Robot events will not invalidate the cache", slog.Any("error", err))
	}

	// Setup HTTP server
	e := handlers.NewServer(handlers.Server{
		Robots: handlers.NewRobotHandler(robotService),
		Drafts: handlers.NewDraftHandler(draftService),
		Health: handlers.NewHealthHandler(map[string]handlers.Pinger{
			"database": db,
			"redis":    redisClient,
			"mqtt":     mqttClient,
		}, cfg.Timeout),
		Metrics:        m.Handler(),
		MaxUploadBytes: cfg.MaxUploadBytes,
		Logger:         appLogger,
	})

	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      e,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: 2 * cfg.Timeout,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		appLogger.Info("Starting HTTP server", "addr", cfg.HTTPAddr, "api_base_url", cfg.APIBaseURL)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal(appLogger, "HTTP server failed", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("HTTP server shutdown error", slog.Any("error", err))
	}

	appLogger.Info("Server stopped")
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, slog.Any("error", err))
	os.Exit(1)
}
