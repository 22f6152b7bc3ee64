package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/Dosada05/dinor-predictions/db"
	"github.com/Dosada05/dinor-predictions/models"
	"github.com/Dosada05/dinor-predictions/realtime"
	"github.com/Dosada05/dinor-predictions/repositories"
	"github.com/Dosada05/dinor-predictions/scoring"
)

const DefaultFeaturedLimit = 10

type TournamentService interface {
	Featured(ctx context.Context, limit int) ([]*models.Tournament, error)
	GetByID(ctx context.Context, id int) (*models.Tournament, error)
	UpdateStatus(ctx context.Context, id int) (*models.Tournament, error)
	AutoUpdateStatuses(ctx context.Context) (int, error)
	SetStatus(ctx context.Context, id int, status models.TournamentStatus) (*models.Tournament, error)
	Register(ctx context.Context, tournamentID, userID int) error
	RecomputeLeaderboard(ctx context.Context, tournamentID int, userIDs ...int) error
	RankLeaderboard(ctx context.Context, tournamentID int) (int, error)
	Leaderboard(ctx context.Context, tournamentID int) ([]*models.TournamentLeaderboardEntry, error)
}

type tournamentService struct {
	db              *sql.DB
	tournamentRepo  repositories.TournamentRepository
	participantRepo repositories.ParticipantRepository
	leaderboardRepo repositories.TournamentLeaderboardRepository
	predictionRepo  repositories.PredictionRepository
	userRepo        repositories.UserRepository
	broadcaster     Broadcaster
	logger          *slog.Logger
	now             func() time.Time
}

func NewTournamentService(
	conn *sql.DB,
	tournamentRepo repositories.TournamentRepository,
	participantRepo repositories.ParticipantRepository,
	leaderboardRepo repositories.TournamentLeaderboardRepository,
	predictionRepo repositories.PredictionRepository,
	userRepo repositories.UserRepository,
	broadcaster Broadcaster,
	logger *slog.Logger,
) TournamentService {
	return &tournamentService{
		db:              conn,
		tournamentRepo:  tournamentRepo,
		participantRepo: participantRepo,
		leaderboardRepo: leaderboardRepo,
		predictionRepo:  predictionRepo,
		userRepo:        userRepo,
		broadcaster:     broadcaster,
		logger:          logger,
		now:             time.Now,
	}
}

func (s *tournamentService) getTournament(ctx context.Context, id int) (*models.Tournament, error) {
	t, err := s.tournamentRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrTournamentNotFound) {
			return nil, ErrTournamentNotFound
		}
		return nil, err
	}
	return t, nil
}

// refreshStatus сохраняет статус, только если он изменился.
func (s *tournamentService) refreshStatus(ctx context.Context, t *models.Tournament) error {
	next := resolveTournamentStatus(t, s.now())
	if next == t.Status {
		return nil
	}
	if err := s.tournamentRepo.UpdateStatus(ctx, nil, t.ID, next); err != nil {
		return fmt.Errorf("failed to persist status of tournament %d: %w", t.ID, err)
	}
	s.logger.InfoContext(ctx, "tournament status changed",
		slog.Int("tournament_id", t.ID),
		slog.String("from", string(t.Status)),
		slog.String("to", string(next)),
	)
	t.Status = next
	return nil
}

func (s *tournamentService) Featured(ctx context.Context, limit int) ([]*models.Tournament, error) {
	tournaments, err := s.tournamentRepo.List(ctx, repositories.ListTournamentsFilter{
		FeaturedOnly: true,
		PublicOnly:   true,
		Limit:        clampLimit(limit, DefaultFeaturedLimit, MaxTopLimit),
	})
	if err != nil {
		return nil, err
	}
	for _, t := range tournaments {
		if err := s.refreshStatus(ctx, t); err != nil {
			return nil, err
		}
	}
	return tournaments, nil
}

func (s *tournamentService) GetByID(ctx context.Context, id int) (*models.Tournament, error) {
	return s.UpdateStatus(ctx, id)
}

func (s *tournamentService) UpdateStatus(ctx context.Context, id int) (*models.Tournament, error) {
	t, err := s.getTournament(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.refreshStatus(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// AutoUpdateStatuses обходит все незавершённые турниры, у которых наступила хотя бы одна дата.
func (s *tournamentService) AutoUpdateStatuses(ctx context.Context) (int, error) {
	tournaments, err := s.tournamentRepo.GetTournamentsForAutoStatusUpdate(ctx, nil, s.now())
	if err != nil {
		return 0, err
	}
	changed := 0
	for _, t := range tournaments {
		before := t.Status
		if err := s.refreshStatus(ctx, t); err != nil {
			return changed, err
		}
		if t.Status != before {
			changed++
		}
	}
	return changed, nil
}

// SetStatus is the operator override. Only cancellation is accepted.
func (s *tournamentService) SetStatus(ctx context.Context, id int, status models.TournamentStatus) (*models.Tournament, error) {
	if !isKnownTournamentStatus(status) {
		return nil, ErrTournamentInvalidStatus
	}
	t, err := s.UpdateStatus(ctx, id)
	if err != nil {
		return nil, err
	}
	if !isValidStatusTransition(t.Status, status) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrTournamentInvalidStatusTransition, t.Status, status)
	}
	if t.Status == status {
		return t, nil
	}
	if err := s.tournamentRepo.UpdateStatus(ctx, nil, id, status); err != nil {
		return nil, err
	}
	t.Status = status
	return t, nil
}

func (s *tournamentService) Register(ctx context.Context, tournamentID, userID int) error {
	t, err := s.UpdateStatus(ctx, tournamentID)
	if err != nil {
		return err
	}
	if t.Status != models.StatusRegistrationOpen {
		return ErrRegistrationNotOpen
	}
	if t.MaxParticipants != nil && t.ParticipantsCount >= *t.MaxParticipants {
		return ErrTournamentFull
	}

	participant := &models.TournamentParticipant{TournamentID: tournamentID, UserID: userID}
	if err := s.participantRepo.Create(ctx, participant); err != nil {
		switch {
		case errors.Is(err, repositories.ErrParticipantConflict):
			return ErrRegistrationConflict
		case errors.Is(err, repositories.ErrParticipantTournamentInvalid):
			return ErrTournamentNotFound
		}
		return err
	}

	if err := s.leaderboardRepo.EnsureEntry(ctx, nil, tournamentID, userID); err != nil {
		return err
	}
	return nil
}

// RecomputeLeaderboard пересчитывает строки турнира. Без userIDs пересчитываются
// все участники и все, у кого есть посчитанные прогнозы в турнире.
func (s *tournamentService) RecomputeLeaderboard(ctx context.Context, tournamentID int, userIDs ...int) error {
	if len(userIDs) == 0 {
		var err error
		userIDs, err = s.tournamentUserIDs(ctx, tournamentID)
		if err != nil {
			return err
		}
	}

	for _, userID := range userIDs {
		predictions, err := s.predictionRepo.ListCalculatedByUser(ctx, nil, userID, &tournamentID)
		if err != nil {
			return fmt.Errorf("failed to load tournament predictions for user %d: %w", userID, err)
		}
		tally := scoring.TallyPredictions(predictions)
		entry := &models.TournamentLeaderboardEntry{
			TournamentID:       tournamentID,
			UserID:             userID,
			TotalPoints:        tally.TotalPoints,
			TotalPredictions:   tally.TotalPredictions,
			CorrectPredictions: tally.ScoringPredictions,
			Accuracy:           tally.TournamentAccuracy(),
		}
		if err := s.leaderboardRepo.Upsert(ctx, nil, entry); err != nil {
			return err
		}
	}
	return nil
}

func (s *tournamentService) tournamentUserIDs(ctx context.Context, tournamentID int) ([]int, error) {
	participants, err := s.participantRepo.ListUserIDs(ctx, nil, tournamentID)
	if err != nil {
		return nil, err
	}
	predictors, err := s.predictionRepo.ListUserIDsWithCalculated(ctx, nil, &tournamentID)
	if err != nil {
		return nil, err
	}

	seen := make(map[int]struct{}, len(participants)+len(predictors))
	ids := make([]int, 0, len(participants)+len(predictors))
	for _, list := range [][]int{participants, predictors} {
		for _, id := range list {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				ids = append(ids, id)
			}
		}
	}
	sort.Ints(ids)
	return ids, nil
}

func (s *tournamentService) RankLeaderboard(ctx context.Context, tournamentID int) (int, error) {
	var ranked int
	err := db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		entries, err := s.leaderboardRepo.ListByTournament(ctx, tx, tournamentID, true)
		if err != nil {
			return err
		}

		standings := make([]scoring.Standing, len(entries))
		previous := make(map[int]*int, len(entries))
		for i, e := range entries {
			standings[i] = scoring.Standing{
				UserID:      e.UserID,
				Points:      e.TotalPoints,
				Accuracy:    e.Accuracy,
				Predictions: e.TotalPredictions,
			}
			previous[e.UserID] = e.Rank
		}

		sorted, ranks := scoring.RankStandings(standings)
		for _, st := range sorted {
			if err := s.leaderboardRepo.UpdateRank(ctx, tx, tournamentID, st.UserID, previous[st.UserID], ranks[st.UserID]); err != nil {
				return err
			}
		}
		ranked = len(sorted)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to rank tournament %d: %w", tournamentID, err)
	}

	if s.broadcaster != nil {
		s.broadcaster.BroadcastToRoom(realtime.TournamentRoom(tournamentID), realtime.EventLeaderboardUpdated,
			map[string]int{"tournament_id": tournamentID, "ranked_users": ranked})
	}
	return ranked, nil
}

func (s *tournamentService) Leaderboard(ctx context.Context, tournamentID int) ([]*models.TournamentLeaderboardEntry, error) {
	if _, err := s.getTournament(ctx, tournamentID); err != nil {
		return nil, err
	}
	entries, err := s.leaderboardRepo.ListByTournament(ctx, nil, tournamentID, false)
	if err != nil {
		return nil, err
	}

	ids := make([]int, len(entries))
	for i, e := range entries {
		ids[i] = e.UserID
	}
	users, err := s.userRepo.ListByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if u, ok := users[e.UserID]; ok {
			e.User = &models.UserSummary{ID: u.ID, Name: u.Name}
		}
	}
	return entries, nil
}
