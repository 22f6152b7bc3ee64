package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Dosada05/dinor-predictions/models"
)

var ErrLeaderboardEntryNotFound = errors.New("leaderboard entry not found")

type LeaderboardRepository interface {
	GetByUserID(ctx context.Context, userID int) (*models.LeaderboardEntry, error)
	Upsert(ctx context.Context, exec SQLExecutor, entry *models.LeaderboardEntry) error
	ListAll(ctx context.Context, exec SQLExecutor) ([]*models.LeaderboardEntry, error)
	UpdateRank(ctx context.Context, exec SQLExecutor, userID int, previousRank *int, currentRank int) error
	Top(ctx context.Context, limit int) ([]*models.LeaderboardEntry, error)
	InsertRankHistory(ctx context.Context, exec SQLExecutor, snapshots []models.RankSnapshot) error
	ListHistory(ctx context.Context, userID, limit int) ([]models.RankSnapshot, error)
}

type postgresLeaderboardRepository struct {
	db *sql.DB
}

func NewPostgresLeaderboardRepository(db *sql.DB) LeaderboardRepository {
	return &postgresLeaderboardRepository{db: db}
}

func (r *postgresLeaderboardRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	return pickExecutor(r.db, exec)
}

const leaderboardColumns = `
	id, user_id, total_points, total_predictions, correct_scores, correct_winners,
	perfect_predictions, accuracy_percentage, current_rank, previous_rank, updated_at`

func scanLeaderboardEntry(row rowScanner) (*models.LeaderboardEntry, error) {
	e := &models.LeaderboardEntry{}
	err := row.Scan(
		&e.ID, &e.UserID, &e.TotalPoints, &e.TotalPredictions, &e.CorrectScores, &e.CorrectWinners,
		&e.PerfectPredictions, &e.AccuracyPercentage, &e.CurrentRank, &e.PreviousRank, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (r *postgresLeaderboardRepository) GetByUserID(ctx context.Context, userID int) (*models.LeaderboardEntry, error) {
	query := `SELECT ` + leaderboardColumns + ` FROM leaderboards WHERE user_id = $1`

	e, err := scanLeaderboardEntry(r.db.QueryRowContext(ctx, query, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrLeaderboardEntryNotFound
		}
		return nil, fmt.Errorf("failed to get leaderboard entry for user %d: %w", userID, err)
	}
	return e, nil
}

// Upsert пишет агрегаты пользователя. Ранги не трогает.
func (r *postgresLeaderboardRepository) Upsert(ctx context.Context, exec SQLExecutor, e *models.LeaderboardEntry) error {
	query := `
		INSERT INTO leaderboards
			(user_id, total_points, total_predictions, correct_scores, correct_winners,
			 perfect_predictions, accuracy_percentage)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT ON CONSTRAINT leaderboards_user_id_key DO UPDATE SET
			total_points        = EXCLUDED.total_points,
			total_predictions   = EXCLUDED.total_predictions,
			correct_scores      = EXCLUDED.correct_scores,
			correct_winners     = EXCLUDED.correct_winners,
			perfect_predictions = EXCLUDED.perfect_predictions,
			accuracy_percentage = EXCLUDED.accuracy_percentage,
			updated_at          = NOW()
		RETURNING id, current_rank, previous_rank, updated_at`

	err := r.getExecutor(exec).QueryRowContext(ctx, query,
		e.UserID, e.TotalPoints, e.TotalPredictions, e.CorrectScores, e.CorrectWinners,
		e.PerfectPredictions, e.AccuracyPercentage,
	).Scan(&e.ID, &e.CurrentRank, &e.PreviousRank, &e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert leaderboard entry for user %d: %w", e.UserID, err)
	}
	return nil
}

func (r *postgresLeaderboardRepository) list(ctx context.Context, exec SQLExecutor, query string, args ...interface{}) ([]*models.LeaderboardEntry, error) {
	rows, err := r.getExecutor(exec).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query leaderboard: %w", err)
	}
	defer rows.Close()

	entries := make([]*models.LeaderboardEntry, 0)
	for rows.Next() {
		e, err := scanLeaderboardEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan leaderboard row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during leaderboard rows iteration: %w", err)
	}
	return entries, nil
}

// ListAll блокирует строки лидерборда, если exec является транзакцией.
func (r *postgresLeaderboardRepository) ListAll(ctx context.Context, exec SQLExecutor) ([]*models.LeaderboardEntry, error) {
	query := `SELECT ` + leaderboardColumns + ` FROM leaderboards ORDER BY user_id FOR UPDATE`
	return r.list(ctx, exec, query)
}

func (r *postgresLeaderboardRepository) UpdateRank(ctx context.Context, exec SQLExecutor, userID int, previousRank *int, currentRank int) error {
	query := `UPDATE leaderboards SET previous_rank = $1, current_rank = $2, updated_at = NOW() WHERE user_id = $3`

	result, err := r.getExecutor(exec).ExecContext(ctx, query, previousRank, currentRank, userID)
	if err != nil {
		return fmt.Errorf("failed to update rank for user %d: %w", userID, err)
	}
	return checkAffectedRows(result, ErrLeaderboardEntryNotFound)
}

func (r *postgresLeaderboardRepository) Top(ctx context.Context, limit int) ([]*models.LeaderboardEntry, error) {
	query := `SELECT ` + leaderboardColumns + `
		FROM leaderboards
		WHERE current_rank IS NOT NULL
		ORDER BY current_rank ASC, user_id ASC
		LIMIT $1`
	return r.list(ctx, nil, query, limit)
}

func (r *postgresLeaderboardRepository) InsertRankHistory(ctx context.Context, exec SQLExecutor, snapshots []models.RankSnapshot) error {
	executor := r.getExecutor(exec)
	query := `INSERT INTO leaderboard_rank_history (user_id, rank, total_points, recorded_at) VALUES ($1, $2, $3, $4)`

	for _, s := range snapshots {
		if _, err := executor.ExecContext(ctx, query, s.UserID, s.Rank, s.TotalPoints, s.RecordedAt); err != nil {
			return fmt.Errorf("failed to insert rank history for user %d: %w", s.UserID, err)
		}
	}
	return nil
}

func (r *postgresLeaderboardRepository) ListHistory(ctx context.Context, userID, limit int) ([]models.RankSnapshot, error) {
	query := `
		SELECT id, user_id, rank, total_points, recorded_at
		FROM leaderboard_rank_history
		WHERE user_id = $1
		ORDER BY recorded_at DESC, id DESC
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list rank history for user %d: %w", userID, err)
	}
	defer rows.Close()

	history := make([]models.RankSnapshot, 0)
	for rows.Next() {
		var s models.RankSnapshot
		if err := rows.Scan(&s.ID, &s.UserID, &s.Rank, &s.TotalPoints, &s.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan rank history row: %w", err)
		}
		history = append(history, s)
	}
	return history, rows.Err()
}
