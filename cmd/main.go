package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Dosada05/dinor-predictions/app"
	"github.com/Dosada05/dinor-predictions/config"
	"github.com/Dosada05/dinor-predictions/db"
	"github.com/Dosada05/dinor-predictions/handlers"
	"github.com/Dosada05/dinor-predictions/metrics"
	"github.com/Dosada05/dinor-predictions/middleware"
	api "github.com/Dosada05/dinor-predictions/routes"
	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"
)

const shutdownTimeout = 15 * time.Second

func main() {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	// Настройка логгера
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)
	logger.Info("configuration loaded", slog.Int("port", cfg.ServerPort), slog.String("log_level", cfg.LogLevel.String()))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize application", slog.Any("error", err))
		os.Exit(1)
	}
	defer application.Close()

	if err := db.Migrate(ctx, application.DB); err != nil {
		logger.Error("failed to apply schema", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("schema is up to date")

	go application.Hub.Run(ctx)
	logger.Info("WebSocket Hub started")

	go application.RunScheduler(ctx)

	// Инициализация обработчиков HTTP
	router := chi.NewRouter()
	api.SetupRoutes(router, api.Handlers{
		Auth:        handlers.NewAuthHandler(application.Auth, cfg.JWTSecretKey),
		Tournament:  handlers.NewTournamentHandler(application.Tournaments, application.Matches),
		Match:       handlers.NewMatchHandler(application.Matches, application.Scoring),
		Prediction:  handlers.NewPredictionHandler(application.Predictions),
		Leaderboard: handlers.NewLeaderboardHandler(application.Leaderboard),
		Team:        handlers.NewTeamHandler(application.Teams),
		WebSocket:   handlers.NewWebSocketHandler(application.Hub, application.Tournaments, cfg.CORSAllowedOrigins),
		Health:      handlers.NewHealthHandler(application.DB),
		AdminUsers:  handlers.NewAdminUserHandler(application.AdminUsers),
	}, api.Options{
		Authenticator:      middleware.NewAuthenticator(cfg.JWTSecretKey),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		Metrics:            metrics.Handler(application.Registry),
	})
	logger.Info("Routes configured")

	// Настройка и запуск HTTP-сервера
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 35 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("address", server.Addr))
		serverErrors <- server.ListenAndServe()
	}()

	// Ожидание сигнала завершения
	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			stop()
			application.Close()
			os.Exit(1)
		}
		logger.Info("server stopped gracefully")
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancelShutdown()

		logger.Info("shutting down server", slog.Duration("timeout", shutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", slog.Any("error", err))
			if closeErr := server.Close(); closeErr != nil {
				logger.Error("failed to force close server", slog.Any("error", closeErr))
			}
		} else {
			logger.Info("server shutdown complete")
		}
	}
	logger.Info("application exited")
}
