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
	ErrParticipantConflict          = errors.New("user already registered for this tournament")
	ErrParticipantTournamentInvalid = errors.New("participant tournament or user invalid")
)

type ParticipantRepository interface {
	Create(ctx context.Context, p *models.TournamentParticipant) error
	ListUserIDs(ctx context.Context, exec SQLExecutor, tournamentID int) ([]int, error)
}

type postgresParticipantRepository struct {
	db *sql.DB
}

func NewPostgresParticipantRepository(db *sql.DB) ParticipantRepository {
	return &postgresParticipantRepository{db: db}
}

func (r *postgresParticipantRepository) Create(ctx context.Context, p *models.TournamentParticipant) error {
	query := `
		INSERT INTO tournament_participants (tournament_id, user_id)
		VALUES ($1, $2)
		RETURNING id, joined_at`

	err := r.db.QueryRowContext(ctx, query, p.TournamentID, p.UserID).Scan(&p.ID, &p.JoinedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			switch pqErr.Code {
			case "23505": // unique_violation
				if pqErr.Constraint == "tournament_participants_tournament_id_user_id_key" {
					return ErrParticipantConflict
				}
			case "23503": // foreign_key_violation
				return ErrParticipantTournamentInvalid
			}
		}
		return fmt.Errorf("failed to create participant: %w", err)
	}
	return nil
}

func (r *postgresParticipantRepository) ListUserIDs(ctx context.Context, exec SQLExecutor, tournamentID int) ([]int, error) {
	executor := pickExecutor(r.db, exec)
	query := `SELECT user_id FROM tournament_participants WHERE tournament_id = $1 ORDER BY user_id`

	rows, err := executor.QueryContext(ctx, query, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants for tournament %d: %w", tournamentID, err)
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan participant user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
