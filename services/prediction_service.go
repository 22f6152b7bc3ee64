package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Dosada05/dinor-predictions/models"
	"github.com/Dosada05/dinor-predictions/repositories"
	"github.com/Dosada05/dinor-predictions/scoring"
	"github.com/go-playground/validator/v10"
)

type PredictionService interface {
	Upsert(ctx context.Context, userID int, input UpsertPredictionInput) (*models.Prediction, error)
	Mine(ctx context.Context, userID int, tournamentID *int) ([]*models.Prediction, error)
}

// UpsertPredictionInput is the body of a prediction write. PredictedWinner is
// accepted from clients that still send it but never read: the stored label
// always follows from the scores.
type UpsertPredictionInput struct {
	MatchID            int     `json:"match_id" validate:"required,gt=0"`
	PredictedHomeScore *int    `json:"predicted_home_score" validate:"required,min=0,max=99"`
	PredictedAwayScore *int    `json:"predicted_away_score" validate:"required,min=0,max=99"`
	PredictedWinner    *string `json:"predicted_winner,omitempty"`
}

type predictionService struct {
	matchRepo      repositories.MatchRepository
	predictionRepo repositories.PredictionRepository
	validate       *validator.Validate
	logger         *slog.Logger
	now            func() time.Time
}

func NewPredictionService(
	matchRepo repositories.MatchRepository,
	predictionRepo repositories.PredictionRepository,
	logger *slog.Logger,
) PredictionService {
	return &predictionService{
		matchRepo:      matchRepo,
		predictionRepo: predictionRepo,
		validate:       newValidator(),
		logger:         logger,
		now:            time.Now,
	}
}

func (s *predictionService) Upsert(ctx context.Context, userID int, input UpsertPredictionInput) (*models.Prediction, error) {
	if err := s.validate.Struct(input); err != nil {
		return nil, newValidationError(err)
	}

	match, err := s.matchRepo.GetByID(ctx, input.MatchID)
	if err != nil {
		if errors.Is(err, repositories.ErrMatchNotFound) {
			return nil, ErrMatchNotFound
		}
		return nil, fmt.Errorf("failed to load match %d: %w", input.MatchID, err)
	}
	if !scoring.CanPredict(match, s.now()) {
		return nil, ErrPredictionsClosed
	}

	home, away := *input.PredictedHomeScore, *input.PredictedAwayScore
	p := &models.Prediction{
		UserID:             userID,
		MatchID:            input.MatchID,
		PredictedHomeScore: home,
		PredictedAwayScore: away,
		PredictedWinner:    models.WinnerFor(home, away),
	}
	if err := s.predictionRepo.Upsert(ctx, p); err != nil {
		switch {
		case errors.Is(err, repositories.ErrPredictionLocked):
			return nil, ErrPredictionLocked
		case errors.Is(err, repositories.ErrPredictionMatchInvalid):
			return nil, ErrMatchNotFound
		}
		return nil, err
	}

	s.logger.DebugContext(ctx, "prediction saved",
		slog.Int("user_id", userID),
		slog.Int("match_id", p.MatchID),
		slog.String("winner", string(p.PredictedWinner)),
	)
	return p, nil
}

func (s *predictionService) Mine(ctx context.Context, userID int, tournamentID *int) ([]*models.Prediction, error) {
	return s.predictionRepo.ListByUser(ctx, userID, tournamentID)
}
