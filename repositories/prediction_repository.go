package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Dosada05/dinor-predictions/models"
	"github.com/lib/pq"
)

var (
	ErrPredictionNotFound     = errors.New("prediction not found")
	ErrPredictionMatchInvalid = errors.New("prediction match or user invalid")
	ErrPredictionLocked       = errors.New("prediction already calculated")
)

type PredictionRepository interface {
	Upsert(ctx context.Context, p *models.Prediction) error
	ListByUser(ctx context.Context, userID int, tournamentID *int) ([]*models.Prediction, error)
	ListByUserForMatches(ctx context.Context, userID int, matchIDs []int) (map[int]*models.Prediction, error)
	ListPendingByMatchForUpdate(ctx context.Context, exec SQLExecutor, matchID int) ([]*models.Prediction, error)
	MarkCalculated(ctx context.Context, exec SQLExecutor, p *models.Prediction) error
	ResetByMatch(ctx context.Context, exec SQLExecutor, matchID int) (int64, error)
	ListCalculatedByUser(ctx context.Context, exec SQLExecutor, userID int, tournamentID *int) ([]*models.Prediction, error)
	ListUserIDsWithCalculated(ctx context.Context, exec SQLExecutor, tournamentID *int) ([]int, error)
}

type postgresPredictionRepository struct {
	db *sql.DB
}

func NewPostgresPredictionRepository(db *sql.DB) PredictionRepository {
	return &postgresPredictionRepository{db: db}
}

func (r *postgresPredictionRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	return pickExecutor(r.db, exec)
}

const predictionColumns = `
	p.id, p.user_id, p.match_id, p.predicted_home_score, p.predicted_away_score,
	p.predicted_winner, p.points_earned, p.is_calculated, p.created_at, p.updated_at`

func scanPrediction(row rowScanner, extra ...interface{}) (*models.Prediction, error) {
	p := &models.Prediction{}
	dest := []interface{}{
		&p.ID, &p.UserID, &p.MatchID, &p.PredictedHomeScore, &p.PredictedAwayScore,
		&p.PredictedWinner, &p.PointsEarned, &p.Calculated, &p.CreatedAt, &p.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	return p, nil
}

// Upsert создаёт прогноз или перезаписывает счёт существующего.
// Посчитанный прогноз не меняется: ON CONFLICT ... WHERE не вернёт строку.
func (r *postgresPredictionRepository) Upsert(ctx context.Context, p *models.Prediction) error {
	query := `
		INSERT INTO predictions
			(user_id, match_id, predicted_home_score, predicted_away_score, predicted_winner)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT ON CONSTRAINT predictions_user_id_match_id_key DO UPDATE SET
			predicted_home_score = EXCLUDED.predicted_home_score,
			predicted_away_score = EXCLUDED.predicted_away_score,
			predicted_winner     = EXCLUDED.predicted_winner,
			updated_at           = NOW()
		WHERE predictions.is_calculated = FALSE
		RETURNING id, points_earned, is_calculated, created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query,
		p.UserID,
		p.MatchID,
		p.PredictedHomeScore,
		p.PredictedAwayScore,
		p.PredictedWinner,
	).Scan(&p.ID, &p.PointsEarned, &p.Calculated, &p.CreatedAt, &p.UpdatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrPredictionLocked
		}
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23503" {
			return ErrPredictionMatchInvalid
		}
		return fmt.Errorf("failed to upsert prediction: %w", err)
	}
	return nil
}

func (r *postgresPredictionRepository) collect(rows *sql.Rows, withMatch bool) ([]*models.Prediction, error) {
	defer rows.Close()

	predictions := make([]*models.Prediction, 0)
	for rows.Next() {
		var (
			p   *models.Prediction
			err error
		)
		if withMatch {
			m := &models.FootballMatch{}
			p, err = scanPrediction(rows,
				&m.ID, &m.TournamentID, &m.HomeTeamID, &m.AwayTeamID, &m.MatchDate, &m.PredictionsCloseAt,
				&m.Status, &m.HomeScore, &m.AwayScore, &m.IsActive, &m.PredictionsEnabled,
			)
			if p != nil {
				p.Match = m
			}
		} else {
			p, err = scanPrediction(rows)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to scan prediction row: %w", err)
		}
		predictions = append(predictions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during prediction rows iteration: %w", err)
	}
	return predictions, nil
}

const predictionMatchJoin = `, m.id, m.tournament_id, m.home_team_id, m.away_team_id, m.match_date,
	m.predictions_close_at, m.status, m.home_score, m.away_score, m.is_active, m.predictions_enabled
	FROM predictions p
	JOIN football_matches m ON m.id = p.match_id`

func (r *postgresPredictionRepository) ListByUser(ctx context.Context, userID int, tournamentID *int) ([]*models.Prediction, error) {
	query := `SELECT ` + predictionColumns + predictionMatchJoin + ` WHERE p.user_id = $1`
	args := []interface{}{userID}
	if tournamentID != nil {
		query += ` AND m.tournament_id = $2`
		args = append(args, *tournamentID)
	}
	query += ` ORDER BY m.match_date DESC, p.id DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list predictions for user %d: %w", userID, err)
	}
	return r.collect(rows, true)
}

func (r *postgresPredictionRepository) ListByUserForMatches(ctx context.Context, userID int, matchIDs []int) (map[int]*models.Prediction, error) {
	byMatch := make(map[int]*models.Prediction, len(matchIDs))
	if len(matchIDs) == 0 {
		return byMatch, nil
	}

	query := `SELECT ` + predictionColumns + ` FROM predictions p WHERE p.user_id = $1 AND p.match_id = ANY($2)`

	rows, err := r.db.QueryContext(ctx, query, userID, idArray(matchIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to list predictions for matches: %w", err)
	}
	predictions, err := r.collect(rows, false)
	if err != nil {
		return nil, err
	}
	for _, p := range predictions {
		byMatch[p.MatchID] = p
	}
	return byMatch, nil
}

// ListPendingByMatchForUpdate блокирует непосчитанные прогнозы матча.
func (r *postgresPredictionRepository) ListPendingByMatchForUpdate(ctx context.Context, exec SQLExecutor, matchID int) ([]*models.Prediction, error) {
	query := `SELECT ` + predictionColumns + `
		FROM predictions p
		WHERE p.match_id = $1 AND p.is_calculated = FALSE
		ORDER BY p.id
		FOR UPDATE`

	rows, err := r.getExecutor(exec).QueryContext(ctx, query, matchID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending predictions for match %d: %w", matchID, err)
	}
	return r.collect(rows, false)
}

func (r *postgresPredictionRepository) MarkCalculated(ctx context.Context, exec SQLExecutor, p *models.Prediction) error {
	query := `
		UPDATE predictions
		SET points_earned = $1, is_calculated = TRUE, updated_at = NOW()
		WHERE id = $2`

	result, err := r.getExecutor(exec).ExecContext(ctx, query, p.PointsEarned, p.ID)
	if err != nil {
		return fmt.Errorf("failed to mark prediction %d calculated: %w", p.ID, err)
	}
	return checkAffectedRows(result, ErrPredictionNotFound)
}

// ResetByMatch возвращает прогнозы матча в непосчитанное состояние.
func (r *postgresPredictionRepository) ResetByMatch(ctx context.Context, exec SQLExecutor, matchID int) (int64, error) {
	query := `
		UPDATE predictions
		SET points_earned = NULL, is_calculated = FALSE, updated_at = NOW()
		WHERE match_id = $1 AND is_calculated = TRUE`

	result, err := r.getExecutor(exec).ExecContext(ctx, query, matchID)
	if err != nil {
		return 0, fmt.Errorf("failed to reset predictions for match %d: %w", matchID, err)
	}
	return result.RowsAffected()
}

func (r *postgresPredictionRepository) ListCalculatedByUser(ctx context.Context, exec SQLExecutor, userID int, tournamentID *int) ([]*models.Prediction, error) {
	query := `SELECT ` + predictionColumns + predictionMatchJoin + ` WHERE p.user_id = $1 AND p.is_calculated = TRUE`
	args := []interface{}{userID}
	if tournamentID != nil {
		query += ` AND m.tournament_id = $2`
		args = append(args, *tournamentID)
	}
	query += ` ORDER BY p.id`

	rows, err := r.getExecutor(exec).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list calculated predictions for user %d: %w", userID, err)
	}
	return r.collect(rows, true)
}

// ListUserIDsWithCalculated returns users with at least one calculated
// prediction, optionally restricted to one tournament.
func (r *postgresPredictionRepository) ListUserIDsWithCalculated(ctx context.Context, exec SQLExecutor, tournamentID *int) ([]int, error) {
	query := `
		SELECT DISTINCT p.user_id
		FROM predictions p
		JOIN football_matches m ON m.id = p.match_id
		WHERE p.is_calculated = TRUE`
	var args []interface{}
	if tournamentID != nil {
		query += ` AND m.tournament_id = $1`
		args = append(args, *tournamentID)
	}
	query += ` ORDER BY p.user_id`

	rows, err := r.getExecutor(exec).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list users with calculated predictions: %w", err)
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
