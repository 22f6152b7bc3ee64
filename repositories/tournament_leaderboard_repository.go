package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Dosada05/dinor-predictions/models"
)

var ErrTournamentLeaderboardEntryNotFound = errors.New("tournament leaderboard entry not found")

type TournamentLeaderboardRepository interface {
	EnsureEntry(ctx context.Context, exec SQLExecutor, tournamentID, userID int) error
	Upsert(ctx context.Context, exec SQLExecutor, entry *models.TournamentLeaderboardEntry) error
	ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int, forUpdate bool) ([]*models.TournamentLeaderboardEntry, error)
	UpdateRank(ctx context.Context, exec SQLExecutor, tournamentID, userID int, previousRank *int, rank int) error
}

type postgresTournamentLeaderboardRepository struct {
	db *sql.DB
}

func NewPostgresTournamentLeaderboardRepository(db *sql.DB) TournamentLeaderboardRepository {
	return &postgresTournamentLeaderboardRepository{db: db}
}

func (r *postgresTournamentLeaderboardRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	return pickExecutor(r.db, exec)
}

// EnsureEntry создаёт нулевую строку участника, если её ещё нет.
func (r *postgresTournamentLeaderboardRepository) EnsureEntry(ctx context.Context, exec SQLExecutor, tournamentID, userID int) error {
	query := `
		INSERT INTO tournament_leaderboards (tournament_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT ON CONSTRAINT tournament_leaderboards_tournament_id_user_id_key DO NOTHING`

	if _, err := r.getExecutor(exec).ExecContext(ctx, query, tournamentID, userID); err != nil {
		return fmt.Errorf("failed to seed tournament leaderboard for user %d: %w", userID, err)
	}
	return nil
}

func (r *postgresTournamentLeaderboardRepository) Upsert(ctx context.Context, exec SQLExecutor, e *models.TournamentLeaderboardEntry) error {
	query := `
		INSERT INTO tournament_leaderboards
			(tournament_id, user_id, total_points, total_predictions, correct_predictions, accuracy)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT ON CONSTRAINT tournament_leaderboards_tournament_id_user_id_key DO UPDATE SET
			total_points        = EXCLUDED.total_points,
			total_predictions   = EXCLUDED.total_predictions,
			correct_predictions = EXCLUDED.correct_predictions,
			accuracy            = EXCLUDED.accuracy,
			updated_at          = NOW()
		RETURNING id, rank, previous_rank, updated_at`

	err := r.getExecutor(exec).QueryRowContext(ctx, query,
		e.TournamentID, e.UserID, e.TotalPoints, e.TotalPredictions, e.CorrectPredictions, e.Accuracy,
	).Scan(&e.ID, &e.Rank, &e.PreviousRank, &e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert tournament leaderboard entry (tournament %d, user %d): %w", e.TournamentID, e.UserID, err)
	}
	return nil
}

func (r *postgresTournamentLeaderboardRepository) ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int, forUpdate bool) ([]*models.TournamentLeaderboardEntry, error) {
	query := `
		SELECT id, tournament_id, user_id, total_points, total_predictions, correct_predictions,
		       accuracy, rank, previous_rank, updated_at
		FROM tournament_leaderboards
		WHERE tournament_id = $1`
	if forUpdate {
		query += ` ORDER BY user_id FOR UPDATE`
	} else {
		query += ` ORDER BY rank ASC NULLS LAST, total_points DESC, user_id ASC`
	}

	rows, err := r.getExecutor(exec).QueryContext(ctx, query, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tournament leaderboard %d: %w", tournamentID, err)
	}
	defer rows.Close()

	entries := make([]*models.TournamentLeaderboardEntry, 0)
	for rows.Next() {
		var e models.TournamentLeaderboardEntry
		if err := rows.Scan(
			&e.ID, &e.TournamentID, &e.UserID, &e.TotalPoints, &e.TotalPredictions, &e.CorrectPredictions,
			&e.Accuracy, &e.Rank, &e.PreviousRank, &e.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan tournament leaderboard row: %w", err)
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during tournament leaderboard rows iteration: %w", err)
	}
	return entries, nil
}

func (r *postgresTournamentLeaderboardRepository) UpdateRank(ctx context.Context, exec SQLExecutor, tournamentID, userID int, previousRank *int, rank int) error {
	query := `
		UPDATE tournament_leaderboards
		SET previous_rank = $1, rank = $2, updated_at = NOW()
		WHERE tournament_id = $3 AND user_id = $4`

	result, err := r.getExecutor(exec).ExecContext(ctx, query, previousRank, rank, tournamentID, userID)
	if err != nil {
		return fmt.Errorf("failed to update tournament rank for user %d: %w", userID, err)
	}
	return checkAffectedRows(result, ErrTournamentLeaderboardEntryNotFound)
}
