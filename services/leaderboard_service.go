package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/Dosada05/dinor-predictions/cache"
	"github.com/Dosada05/dinor-predictions/db"
	"github.com/Dosada05/dinor-predictions/metrics"
	"github.com/Dosada05/dinor-predictions/models"
	"github.com/Dosada05/dinor-predictions/realtime"
	"github.com/Dosada05/dinor-predictions/repositories"
	"github.com/Dosada05/dinor-predictions/scoring"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultTopLimit     = 10
	MaxTopLimit         = 100
	DefaultHistoryLimit = 30
	MaxHistoryLimit     = 365

	refreshTimeout = 2 * time.Minute
)

type LeaderboardService interface {
	RecomputeUser(ctx context.Context, userID int) (*models.LeaderboardEntry, error)
	RecomputeAll(ctx context.Context) (int, error)
	UpdateRankings(ctx context.Context) (int, error)
	Top(ctx context.Context, limit int) ([]*models.LeaderboardEntry, error)
	MyStats(ctx context.Context, userID int) (*models.LeaderboardEntry, error)
	History(ctx context.Context, userID, limit int) ([]models.RankSnapshot, error)
	Refresh(ctx context.Context, userID int, all bool) (*RefreshResult, error)
}

type RefreshResult struct {
	Recomputed  int `json:"recomputed_users"`
	RankedUsers int `json:"ranked_users"`
}

type leaderboardService struct {
	db              *sql.DB
	leaderboardRepo repositories.LeaderboardRepository
	predictionRepo  repositories.PredictionRepository
	userRepo        repositories.UserRepository
	cache           cache.LeaderboardCache
	broadcaster     Broadcaster
	metrics         metrics.Recorder
	logger          *slog.Logger
	refreshGroup    singleflight.Group
	now             func() time.Time
}

func NewLeaderboardService(
	conn *sql.DB,
	leaderboardRepo repositories.LeaderboardRepository,
	predictionRepo repositories.PredictionRepository,
	userRepo repositories.UserRepository,
	lbCache cache.LeaderboardCache,
	broadcaster Broadcaster,
	recorder metrics.Recorder,
	logger *slog.Logger,
) LeaderboardService {
	if lbCache == nil {
		lbCache = cache.NewNoop()
	}
	if recorder == nil {
		recorder = metrics.NoOp()
	}
	return &leaderboardService{
		db:              conn,
		leaderboardRepo: leaderboardRepo,
		predictionRepo:  predictionRepo,
		userRepo:        userRepo,
		cache:           lbCache,
		broadcaster:     broadcaster,
		metrics:         recorder,
		logger:          logger,
		now:             time.Now,
	}
}

// RecomputeUser пересчитывает агрегаты пользователя по всем посчитанным прогнозам.
func (s *leaderboardService) RecomputeUser(ctx context.Context, userID int) (*models.LeaderboardEntry, error) {
	predictions, err := s.predictionRepo.ListCalculatedByUser(ctx, nil, userID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load predictions for user %d: %w", userID, err)
	}

	tally := scoring.TallyPredictions(predictions)
	entry := &models.LeaderboardEntry{
		UserID:             userID,
		TotalPoints:        tally.TotalPoints,
		TotalPredictions:   tally.TotalPredictions,
		CorrectScores:      tally.CorrectScores,
		CorrectWinners:     tally.CorrectWinners,
		PerfectPredictions: tally.PerfectPredictions,
		AccuracyPercentage: tally.GlobalAccuracy(),
	}
	if err := s.leaderboardRepo.Upsert(ctx, nil, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// RecomputeAll covers users with calculated predictions and users that
// already have a row, so a row whose predictions were reset drops to zero.
func (s *leaderboardService) RecomputeAll(ctx context.Context) (int, error) {
	ids, err := s.predictionRepo.ListUserIDsWithCalculated(ctx, nil, nil)
	if err != nil {
		return 0, err
	}
	existing, err := s.leaderboardRepo.ListAll(ctx, nil)
	if err != nil {
		return 0, err
	}

	seen := make(map[int]struct{}, len(ids)+len(existing))
	for _, id := range ids {
		seen[id] = struct{}{}
	}
	for _, e := range existing {
		seen[e.UserID] = struct{}{}
	}
	userIDs := make([]int, 0, len(seen))
	for id := range seen {
		userIDs = append(userIDs, id)
	}
	sort.Ints(userIDs)

	for _, id := range userIDs {
		if _, err := s.RecomputeUser(ctx, id); err != nil {
			return 0, err
		}
	}
	return len(userIDs), nil
}

// UpdateRankings переранжирует весь лидерборд одной транзакцией и дописывает историю.
func (s *leaderboardService) UpdateRankings(ctx context.Context) (int, error) {
	start := s.now()
	var ranked int

	err := db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		entries, err := s.leaderboardRepo.ListAll(ctx, tx)
		if err != nil {
			return err
		}

		standings := make([]scoring.Standing, len(entries))
		byUser := make(map[int]*models.LeaderboardEntry, len(entries))
		for i, e := range entries {
			standings[i] = scoring.Standing{
				UserID:      e.UserID,
				Points:      e.TotalPoints,
				Accuracy:    e.AccuracyPercentage,
				Predictions: e.TotalPredictions,
			}
			byUser[e.UserID] = e
		}

		sorted, ranks := scoring.RankStandings(standings)
		recordedAt := s.now().UTC()
		history := make([]models.RankSnapshot, 0, len(sorted))

		for _, st := range sorted {
			e := byUser[st.UserID]
			rank := ranks[st.UserID]
			if err := s.leaderboardRepo.UpdateRank(ctx, tx, e.UserID, e.CurrentRank, rank); err != nil {
				return err
			}
			history = append(history, models.RankSnapshot{
				UserID:      e.UserID,
				Rank:        rank,
				TotalPoints: e.TotalPoints,
				RecordedAt:  recordedAt,
			})
		}
		if err := s.leaderboardRepo.InsertRankHistory(ctx, tx, history); err != nil {
			return err
		}
		ranked = len(sorted)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to update rankings: %w", err)
	}

	s.metrics.RankingUpdated(ranked, s.now().Sub(start))
	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.WarnContext(ctx, "failed to invalidate leaderboard cache", slog.Any("error", err))
	}
	if s.broadcaster != nil {
		s.broadcaster.BroadcastToRoom(realtime.LeaderboardRoom, realtime.EventLeaderboardUpdated, map[string]int{"ranked_users": ranked})
	}
	s.logger.InfoContext(ctx, "leaderboard rankings updated", slog.Int("ranked_users", ranked))
	return ranked, nil
}

func (s *leaderboardService) Top(ctx context.Context, limit int) ([]*models.LeaderboardEntry, error) {
	limit = clampLimit(limit, DefaultTopLimit, MaxTopLimit)

	version, verErr := s.cache.Version(ctx)
	if verErr != nil {
		s.logger.WarnContext(ctx, "leaderboard cache version read failed", slog.Any("error", verErr))
	} else {
		cached, ok, err := s.cache.GetTop(ctx, version, limit)
		if err != nil {
			s.logger.WarnContext(ctx, "leaderboard cache read failed", slog.Any("error", err))
		}
		s.metrics.LeaderboardCache(ok)
		if ok {
			return cached, nil
		}
	}

	entries, err := s.leaderboardRepo.Top(ctx, limit)
	if err != nil {
		return nil, err
	}
	if err := s.attachUsers(ctx, entries); err != nil {
		return nil, err
	}

	if verErr == nil {
		if err := s.cache.SetTop(ctx, version, limit, entries); err != nil {
			s.logger.WarnContext(ctx, "leaderboard cache write failed", slog.Any("error", err))
		}
	}
	return entries, nil
}

func (s *leaderboardService) attachUsers(ctx context.Context, entries []*models.LeaderboardEntry) error {
	ids := make([]int, len(entries))
	for i, e := range entries {
		ids[i] = e.UserID
	}
	users, err := s.userRepo.ListByIDs(ctx, ids)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if u, ok := users[e.UserID]; ok {
			e.User = &models.UserSummary{ID: u.ID, Name: u.Name}
		}
	}
	return nil
}

func (s *leaderboardService) MyStats(ctx context.Context, userID int) (*models.LeaderboardEntry, error) {
	entry, err := s.leaderboardRepo.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrLeaderboardEntryNotFound) {
			return nil, ErrLeaderboardEntryNotFound
		}
		return nil, err
	}
	return entry, nil
}

func (s *leaderboardService) History(ctx context.Context, userID, limit int) ([]models.RankSnapshot, error) {
	return s.leaderboardRepo.ListHistory(ctx, userID, clampLimit(limit, DefaultHistoryLimit, MaxHistoryLimit))
}

// Refresh пересчитывает пользователя (или всех) и переранжирует. Одновременные
// вызовы с тем же ключом ждут один общий запуск. Общий запуск не зависит от
// отмены запроса, который его начал, и ограничен refreshTimeout.
func (s *leaderboardService) Refresh(ctx context.Context, userID int, all bool) (*RefreshResult, error) {
	key := "user:" + strconv.Itoa(userID)
	if all {
		key = "all"
	}

	v, err, shared := s.refreshGroup.Do(key, func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()

		res := &RefreshResult{}
		if all {
			n, err := s.RecomputeAll(ctx)
			if err != nil {
				return nil, err
			}
			res.Recomputed = n
		} else {
			if _, err := s.RecomputeUser(ctx, userID); err != nil {
				return nil, err
			}
			res.Recomputed = 1
		}
		ranked, err := s.UpdateRankings(ctx)
		if err != nil {
			return nil, err
		}
		res.RankedUsers = ranked
		return res, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		s.logger.DebugContext(ctx, "leaderboard refresh coalesced", slog.String("key", key))
	}
	return v.(*RefreshResult), nil
}
