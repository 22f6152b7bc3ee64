package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Dosada05/dinor-predictions/models"
	"github.com/lib/pq"
)

var (
	ErrMatchNotFound          = errors.New("match not found")
	ErrMatchTeamInvalid       = errors.New("match team reference invalid")
	ErrMatchTournamentInvalid = errors.New("match tournament reference invalid")
	ErrMatchSameTeams         = errors.New("home and away team must differ")
)

type MatchRepository interface {
	Create(ctx context.Context, match *models.FootballMatch) error
	GetByID(ctx context.Context, id int) (*models.FootballMatch, error)
	GetByIDForUpdate(ctx context.Context, exec SQLExecutor, id int) (*models.FootballMatch, error)
	ListByTournament(ctx context.Context, tournamentID int) ([]*models.FootballMatch, error)
	ListUpcoming(ctx context.Context, from, to time.Time) ([]*models.FootballMatch, error)
	ListFinishedWithPending(ctx context.Context) ([]int, error)
	UpdateResult(ctx context.Context, exec SQLExecutor, id int, homeScore, awayScore int, status models.MatchStatus) error
	UpdateClosesAt(ctx context.Context, exec SQLExecutor, id int, closesAt *time.Time) error
}

type postgresMatchRepository struct {
	db *sql.DB
}

func NewPostgresMatchRepository(db *sql.DB) MatchRepository {
	return &postgresMatchRepository{db: db}
}

func (r *postgresMatchRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	return pickExecutor(r.db, exec)
}

const matchColumns = `
	id, tournament_id, home_team_id, away_team_id, match_date, predictions_close_at,
	status, home_score, away_score, venue, is_active, predictions_enabled, created_at, updated_at`

func scanMatch(row rowScanner) (*models.FootballMatch, error) {
	m := &models.FootballMatch{}
	err := row.Scan(
		&m.ID, &m.TournamentID, &m.HomeTeamID, &m.AwayTeamID, &m.MatchDate, &m.PredictionsCloseAt,
		&m.Status, &m.HomeScore, &m.AwayScore, &m.Venue, &m.IsActive, &m.PredictionsEnabled,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (r *postgresMatchRepository) Create(ctx context.Context, m *models.FootballMatch) error {
	query := `
		INSERT INTO football_matches
			(tournament_id, home_team_id, away_team_id, match_date, predictions_close_at,
			 status, venue, is_active, predictions_enabled)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query,
		m.TournamentID,
		m.HomeTeamID,
		m.AwayTeamID,
		m.MatchDate,
		m.PredictionsCloseAt,
		m.Status,
		m.Venue,
		m.IsActive,
		m.PredictionsEnabled,
	).Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)

	return r.handleMatchError(err)
}

func (r *postgresMatchRepository) handleMatchError(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23503": // foreign_key_violation
			switch pqErr.Constraint {
			case "football_matches_tournament_id_fkey":
				return ErrMatchTournamentInvalid
			case "football_matches_home_team_id_fkey", "football_matches_away_team_id_fkey":
				return ErrMatchTeamInvalid
			}
		case "23514": // check_violation
			if pqErr.Constraint == "football_matches_distinct_teams" {
				return ErrMatchSameTeams
			}
		}
	}
	return err
}

func (r *postgresMatchRepository) GetByID(ctx context.Context, id int) (*models.FootballMatch, error) {
	query := `SELECT ` + matchColumns + ` FROM football_matches WHERE id = $1`

	m, err := scanMatch(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMatchNotFound
		}
		return nil, fmt.Errorf("failed to scan match by id %d: %w", id, err)
	}
	return m, nil
}

// GetByIDForUpdate блокирует строку матча до конца транзакции exec.
func (r *postgresMatchRepository) GetByIDForUpdate(ctx context.Context, exec SQLExecutor, id int) (*models.FootballMatch, error) {
	query := `SELECT ` + matchColumns + ` FROM football_matches WHERE id = $1 FOR UPDATE`

	m, err := scanMatch(r.getExecutor(exec).QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMatchNotFound
		}
		return nil, fmt.Errorf("failed to lock match %d: %w", id, err)
	}
	return m, nil
}

func (r *postgresMatchRepository) listMatches(ctx context.Context, query string, args ...interface{}) ([]*models.FootballMatch, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query matches: %w", err)
	}
	defer rows.Close()

	matches := make([]*models.FootballMatch, 0)
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan match row: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during match rows iteration: %w", err)
	}
	return matches, nil
}

func (r *postgresMatchRepository) ListByTournament(ctx context.Context, tournamentID int) ([]*models.FootballMatch, error) {
	query := `SELECT ` + matchColumns + `
		FROM football_matches
		WHERE tournament_id = $1 AND is_active = TRUE
		ORDER BY match_date ASC, id ASC`
	return r.listMatches(ctx, query, tournamentID)
}

// ListUpcoming возвращает запланированные матчи с открытыми прогнозами,
// стартующие в окне [from, to].
func (r *postgresMatchRepository) ListUpcoming(ctx context.Context, from, to time.Time) ([]*models.FootballMatch, error) {
	query := `SELECT ` + matchColumns + `
		FROM football_matches
		WHERE status = $1
		  AND is_active = TRUE
		  AND predictions_enabled = TRUE
		  AND match_date BETWEEN $2 AND $3
		ORDER BY match_date ASC, id ASC`
	return r.listMatches(ctx, query, models.MatchStatusScheduled, from, to)
}

func (r *postgresMatchRepository) ListFinishedWithPending(ctx context.Context) ([]int, error) {
	query := `
		SELECT m.id
		FROM football_matches m
		WHERE m.status = $1
		  AND m.home_score IS NOT NULL
		  AND m.away_score IS NOT NULL
		  AND EXISTS (
		      SELECT 1 FROM predictions p
		      WHERE p.match_id = m.id AND p.is_calculated = FALSE
		  )
		ORDER BY m.match_date ASC, m.id ASC`

	rows, err := r.db.QueryContext(ctx, query, models.MatchStatusFinished)
	if err != nil {
		return nil, fmt.Errorf("failed to query finished matches with pending predictions: %w", err)
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan match id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *postgresMatchRepository) UpdateResult(ctx context.Context, exec SQLExecutor, id int, homeScore, awayScore int, status models.MatchStatus) error {
	query := `
		UPDATE football_matches
		SET home_score = $1, away_score = $2, status = $3, updated_at = NOW()
		WHERE id = $4`

	result, err := r.getExecutor(exec).ExecContext(ctx, query, homeScore, awayScore, status, id)
	if err != nil {
		return fmt.Errorf("failed to update result for match %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrMatchNotFound)
}

func (r *postgresMatchRepository) UpdateClosesAt(ctx context.Context, exec SQLExecutor, id int, closesAt *time.Time) error {
	query := `UPDATE football_matches SET predictions_close_at = $1, updated_at = NOW() WHERE id = $2`

	result, err := r.getExecutor(exec).ExecContext(ctx, query, closesAt, id)
	if err != nil {
		return fmt.Errorf("failed to update closure for match %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrMatchNotFound)
}
