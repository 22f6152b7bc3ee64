package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Dosada05/dinor-predictions/db"
	"github.com/Dosada05/dinor-predictions/models"
	"github.com/Dosada05/dinor-predictions/repositories"
	"github.com/Dosada05/dinor-predictions/scoring"
	"github.com/Dosada05/dinor-predictions/storage"
	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"
)

type MatchService interface {
	Create(ctx context.Context, input CreateMatchInput) (*models.FootballMatch, error)
	GetByID(ctx context.Context, id int) (*models.FootballMatch, error)
	ListForTournament(ctx context.Context, tournamentID int, userID *int) ([]*MatchView, error)
	RecordResult(ctx context.Context, matchID int, input RecordResultInput) (*MatchScoringResult, error)
	SetClosure(ctx context.Context, matchID int, input SetClosureInput) (*models.FootballMatch, error)
}

type CreateMatchInput struct {
	TournamentID       *int       `json:"tournament_id" validate:"omitempty,gt=0"`
	HomeTeamID         int        `json:"home_team_id" validate:"required,gt=0"`
	AwayTeamID         int        `json:"away_team_id" validate:"required,gt=0,nefield=HomeTeamID"`
	MatchDate          time.Time  `json:"match_date" validate:"required"`
	PredictionsCloseAt *time.Time `json:"predictions_close_at"`
	Venue              *string    `json:"venue" validate:"omitempty,max=160"`
	PredictionsEnabled *bool      `json:"predictions_enabled"`
}

type RecordResultInput struct {
	HomeScore *int `json:"home_score" validate:"required,min=0,max=99"`
	AwayScore *int `json:"away_score" validate:"required,min=0,max=99"`
}

type SetClosureInput struct {
	// nil убирает явное закрытие: прогнозы закрываются в момент начала матча.
	PredictionsCloseAt *time.Time `json:"predictions_close_at"`
}

// MatchView is a match as shown to a player.
type MatchView struct {
	*models.FootballMatch
	CanPredict   bool               `json:"can_predict"`
	ClosesAt     time.Time          `json:"closes_at"`
	MyPrediction *models.Prediction `json:"my_prediction,omitempty"`
}

type matchService struct {
	db             *sql.DB
	matchRepo      repositories.MatchRepository
	teamRepo       repositories.TeamRepository
	tournamentRepo repositories.TournamentRepository
	predictionRepo repositories.PredictionRepository
	scoring        ScoringService
	uploader       storage.FileUploader
	validate       *validator.Validate
	logger         *slog.Logger
	now            func() time.Time
}

func NewMatchService(
	conn *sql.DB,
	matchRepo repositories.MatchRepository,
	teamRepo repositories.TeamRepository,
	tournamentRepo repositories.TournamentRepository,
	predictionRepo repositories.PredictionRepository,
	scoringService ScoringService,
	uploader storage.FileUploader,
	logger *slog.Logger,
) MatchService {
	return &matchService{
		db:             conn,
		matchRepo:      matchRepo,
		teamRepo:       teamRepo,
		tournamentRepo: tournamentRepo,
		predictionRepo: predictionRepo,
		scoring:        scoringService,
		uploader:       uploader,
		validate:       newValidator(),
		logger:         logger,
		now:            time.Now,
	}
}

func (s *matchService) Create(ctx context.Context, input CreateMatchInput) (*models.FootballMatch, error) {
	if err := s.validate.Struct(input); err != nil {
		return nil, newValidationError(err)
	}
	if input.PredictionsCloseAt != nil && input.PredictionsCloseAt.After(input.MatchDate) {
		return nil, &ValidationError{Fields: map[string]string{"predictions_close_at": "must not be after match_date"}}
	}

	match := &models.FootballMatch{
		TournamentID:       input.TournamentID,
		HomeTeamID:         input.HomeTeamID,
		AwayTeamID:         input.AwayTeamID,
		MatchDate:          input.MatchDate.UTC(),
		PredictionsCloseAt: input.PredictionsCloseAt,
		Status:             models.MatchStatusScheduled,
		Venue:              input.Venue,
		IsActive:           true,
		PredictionsEnabled: true,
	}
	if input.PredictionsEnabled != nil {
		match.PredictionsEnabled = *input.PredictionsEnabled
	}

	if err := s.matchRepo.Create(ctx, match); err != nil {
		switch {
		case errors.Is(err, repositories.ErrMatchTeamInvalid):
			return nil, ErrTeamNotFound
		case errors.Is(err, repositories.ErrMatchTournamentInvalid):
			return nil, ErrTournamentNotFound
		case errors.Is(err, repositories.ErrMatchSameTeams):
			return nil, ErrMatchSameTeams
		}
		return nil, fmt.Errorf("failed to create match: %w", err)
	}
	s.logger.InfoContext(ctx, "match created", slog.Int("match_id", match.ID), slog.Time("match_date", match.MatchDate))
	return match, nil
}

func (s *matchService) getMatch(ctx context.Context, id int) (*models.FootballMatch, error) {
	m, err := s.matchRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrMatchNotFound) {
			return nil, ErrMatchNotFound
		}
		return nil, err
	}
	return m, nil
}

func (s *matchService) GetByID(ctx context.Context, id int) (*models.FootballMatch, error) {
	m, err := s.getMatch(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.attachTeams(ctx, []*models.FootballMatch{m}); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *matchService) attachTeams(ctx context.Context, matches []*models.FootballMatch) error {
	teams, err := s.teamRepo.ListByIDs(ctx, teamIDs(matches))
	if err != nil {
		return err
	}
	for _, t := range teams {
		populateTeamLogoURLFunc(t, s.uploader)
	}
	for _, m := range matches {
		m.HomeTeam = teams[m.HomeTeamID]
		m.AwayTeam = teams[m.AwayTeamID]
	}
	return nil
}

func teamIDs(matches []*models.FootballMatch) []int {
	seen := make(map[int]struct{}, len(matches)*2)
	ids := make([]int, 0, len(matches)*2)
	for _, m := range matches {
		for _, id := range []int{m.HomeTeamID, m.AwayTeamID} {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				ids = append(ids, id)
			}
		}
	}
	return ids
}

// ListForTournament грузит матчи турнира вместе с командами и, если передан
// userID, прогнозами пользователя.
func (s *matchService) ListForTournament(ctx context.Context, tournamentID int, userID *int) ([]*MatchView, error) {
	var matches []*models.FootballMatch

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if _, err := s.tournamentRepo.GetByID(gCtx, tournamentID); err != nil {
			if errors.Is(err, repositories.ErrTournamentNotFound) {
				return ErrTournamentNotFound
			}
			return err
		}
		return nil
	})
	g.Go(func() error {
		var err error
		matches, err = s.matchRepo.ListByTournament(gCtx, tournamentID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	matchIDs := make([]int, len(matches))
	for i, m := range matches {
		matchIDs[i] = m.ID
	}

	var mine map[int]*models.Prediction
	g, gCtx = errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.attachTeams(gCtx, matches)
	})
	if userID != nil {
		g.Go(func() error {
			var err error
			mine, err = s.predictionRepo.ListByUserForMatches(gCtx, *userID, matchIDs)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	now := s.now()
	views := make([]*MatchView, len(matches))
	for i, m := range matches {
		views[i] = &MatchView{
			FootballMatch: m,
			CanPredict:    scoring.CanPredict(m, now),
			ClosesAt:      scoring.ClosureInstant(m),
			MyPrediction:  mine[m.ID],
		}
	}
	return views, nil
}

// RecordResult фиксирует счёт и начисляет очки. Повторная запись исправленного
// счёта сбрасывает уже посчитанные прогнозы в той же транзакции. Если приём
// прогнозов ещё открыт, он закрывается моментом записи результата.
func (s *matchService) RecordResult(ctx context.Context, matchID int, input RecordResultInput) (*MatchScoringResult, error) {
	if err := s.validate.Struct(input); err != nil {
		return nil, newValidationError(err)
	}

	now := s.now().UTC()
	var reset int64
	err := db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		m, err := s.matchRepo.GetByIDForUpdate(ctx, tx, matchID)
		if err != nil {
			return err
		}
		if now.Before(scoring.ClosureInstant(m)) {
			if err := s.matchRepo.UpdateClosesAt(ctx, tx, matchID, &now); err != nil {
				return err
			}
		}
		if err := s.matchRepo.UpdateResult(ctx, tx, matchID, *input.HomeScore, *input.AwayScore, models.MatchStatusFinished); err != nil {
			return err
		}
		reset, err = s.predictionRepo.ResetByMatch(ctx, tx, matchID)
		return err
	})
	if err != nil {
		if errors.Is(err, repositories.ErrMatchNotFound) {
			return nil, ErrMatchNotFound
		}
		return nil, fmt.Errorf("failed to record result for match %d: %w", matchID, err)
	}

	s.logger.InfoContext(ctx, "match result recorded",
		slog.Int("match_id", matchID),
		slog.Int("home_score", *input.HomeScore),
		slog.Int("away_score", *input.AwayScore),
		slog.Int64("predictions_reset", reset),
	)
	return s.scoring.CalculateForMatch(ctx, matchID)
}

func (s *matchService) SetClosure(ctx context.Context, matchID int, input SetClosureInput) (*models.FootballMatch, error) {
	m, err := s.getMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if !s.now().Before(scoring.ClosureInstant(m)) {
		return nil, ErrPredictionsClosed
	}
	if input.PredictionsCloseAt != nil && input.PredictionsCloseAt.After(m.MatchDate) {
		return nil, &ValidationError{Fields: map[string]string{"predictions_close_at": "must not be after match_date"}}
	}

	var closesAt *time.Time
	if input.PredictionsCloseAt != nil {
		t := input.PredictionsCloseAt.UTC()
		closesAt = &t
	}
	if err := s.matchRepo.UpdateClosesAt(ctx, nil, matchID, closesAt); err != nil {
		if errors.Is(err, repositories.ErrMatchNotFound) {
			return nil, ErrMatchNotFound
		}
		return nil, err
	}
	m.PredictionsCloseAt = closesAt
	return m, nil
}
