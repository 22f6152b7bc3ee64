// Package app собирает зависимости приложения: базу, кеш, хранилище,
// репозитории и сервисы. Используется HTTP-сервером и CLI.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Dosada05/dinor-predictions/cache"
	"github.com/Dosada05/dinor-predictions/config"
	"github.com/Dosada05/dinor-predictions/db"
	"github.com/Dosada05/dinor-predictions/metrics"
	"github.com/Dosada05/dinor-predictions/realtime"
	"github.com/Dosada05/dinor-predictions/repositories"
	"github.com/Dosada05/dinor-predictions/services"
	"github.com/Dosada05/dinor-predictions/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

const dbConnectTimeout = 5 * time.Second

type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	DB       *sql.DB
	Hub      *realtime.Hub
	Registry *prometheus.Registry
	Locker   *db.AdvisoryLocker

	Auth        services.AuthService
	Teams       services.TeamService
	Tournaments services.TournamentService
	Leaderboard services.LeaderboardService
	Scoring     services.ScoringService
	Matches     services.MatchService
	Predictions services.PredictionService
	Closures    services.ClosureService
	AdminUsers  services.AdminUserService

	redis *redis.Client
}

// New подключается к базе и, если настроены, к Redis и R2.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	conn, err := db.Connect(cfg.DatabaseURL, dbConnectTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	logger.Info("database connection established")

	a := &App{
		Config:   cfg,
		Logger:   logger,
		DB:       conn,
		Hub:      realtime.NewHub(logger),
		Registry: metrics.NewRegistry(),
		Locker:   db.NewAdvisoryLocker(conn),
	}

	lbCache := cache.NewNoop()
	if cfg.RedisURL != "" {
		client, err := cache.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.redis = client
		lbCache = cache.NewRedisLeaderboardCache(client, cfg.LeaderboardCacheTTL)
		logger.Info("redis leaderboard cache enabled", slog.Duration("ttl", cfg.LeaderboardCacheTTL))
	} else {
		logger.Info("REDIS_URL not set, leaderboard cache disabled")
	}

	var uploader storage.FileUploader
	if cfg.R2Enabled() {
		uploader, err = storage.NewCloudflareR2Uploader(ctx, storage.CloudflareR2UploaderConfig{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			BucketName:      cfg.R2BucketName,
			PublicBaseURL:   cfg.R2PublicBaseURL,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to initialize Cloudflare R2 uploader: %w", err)
		}
		logger.Info("Cloudflare R2 uploader initialized")
	} else {
		logger.Info("R2 settings incomplete, logo uploads disabled")
	}

	recorder := metrics.NewPrometheus(a.Registry)

	// Репозитории
	userRepo := repositories.NewPostgresUserRepository(conn)
	teamRepo := repositories.NewPostgresTeamRepository(conn)
	tournamentRepo := repositories.NewPostgresTournamentRepository(conn)
	participantRepo := repositories.NewPostgresParticipantRepository(conn)
	matchRepo := repositories.NewPostgresMatchRepository(conn)
	predictionRepo := repositories.NewPostgresPredictionRepository(conn)
	leaderboardRepo := repositories.NewPostgresLeaderboardRepository(conn)
	tournamentLeaderboardRepo := repositories.NewPostgresTournamentLeaderboardRepository(conn)

	// Сервисы
	a.Auth = services.NewAuthService(userRepo)
	a.Teams = services.NewTeamService(teamRepo, uploader, logger)
	a.Tournaments = services.NewTournamentService(
		conn,
		tournamentRepo,
		participantRepo,
		tournamentLeaderboardRepo,
		predictionRepo,
		userRepo,
		a.Hub,
		logger,
	)
	a.Leaderboard = services.NewLeaderboardService(
		conn,
		leaderboardRepo,
		predictionRepo,
		userRepo,
		lbCache,
		a.Hub,
		recorder,
		logger,
	)
	a.Scoring = services.NewScoringService(
		conn,
		matchRepo,
		predictionRepo,
		a.Leaderboard,
		a.Tournaments,
		recorder,
		logger,
	)
	a.Matches = services.NewMatchService(
		conn,
		matchRepo,
		teamRepo,
		tournamentRepo,
		predictionRepo,
		a.Scoring,
		uploader,
		logger,
	)
	a.Predictions = services.NewPredictionService(matchRepo, predictionRepo, logger)
	a.Closures = services.NewClosureService(matchRepo, cfg.ClosureLeadTime, recorder, logger)
	a.AdminUsers = services.NewAdminUserService(userRepo)

	return a, nil
}

// Close освобождает соединения с базой и Redis.
func (a *App) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.Logger.Error("failed to close redis client", slog.Any("error", err))
		}
	}
	if err := a.DB.Close(); err != nil {
		a.Logger.Error("failed to close database connection", slog.Any("error", err))
	} else {
		a.Logger.Info("database connection closed")
	}
}

// RunScheduler периодически обновляет статусы турниров и расставляет закрытия
// прогнозов, пока не отменён ctx. Каждый шаг держит ту же блокировку, что и
// соответствующая CLI-команда.
func (a *App) RunScheduler(ctx context.Context) {
	ticker := time.NewTicker(a.Config.SchedulerInterval)
	defer ticker.Stop()
	a.Logger.Info("scheduler started", slog.Duration("interval", a.Config.SchedulerInterval))

	// Первый прогон сразу при старте
	a.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			a.Logger.Info("scheduler stopped")
			return
		case <-ticker.C:
			a.tick(ctx)
		}
	}
}

func (a *App) tick(ctx context.Context) {
	err := services.RunExclusive(ctx, a.Locker, services.LockUpdateStatuses, func(ctx context.Context) error {
		updated, err := a.Tournaments.AutoUpdateStatuses(ctx)
		if err == nil && updated > 0 {
			a.Logger.Info("scheduler: tournament statuses updated", slog.Int("updated", updated))
		}
		return err
	})
	a.logTickError("tournament status update", err)

	err = services.RunExclusive(ctx, a.Locker, services.LockScheduleClosures, func(ctx context.Context) error {
		_, err := a.Closures.ScheduleClosures(ctx, a.Config.ClosureWindowDays, false)
		return err
	})
	a.logTickError("closure scheduling", err)
}

func (a *App) logTickError(step string, err error) {
	switch {
	case err == nil:
	case errors.Is(err, services.ErrBatchAlreadyRunning):
		a.Logger.Debug("scheduler: step skipped, lock held elsewhere", slog.String("step", step))
	case errors.Is(err, context.Canceled):
	default:
		a.Logger.Error("scheduler: step failed", slog.String("step", step), slog.Any("error", err))
	}
}
