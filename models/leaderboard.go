package models

import "time"

// LeaderboardEntry is a user's row on the global leaderboard.
type LeaderboardEntry struct {
	ID                 int       `json:"id" db:"id"`
	UserID             int       `json:"user_id" db:"user_id"`
	TotalPoints        int       `json:"total_points" db:"total_points"`
	TotalPredictions   int       `json:"total_predictions" db:"total_predictions"`
	CorrectScores      int       `json:"correct_scores" db:"correct_scores"`
	CorrectWinners     int       `json:"correct_winners" db:"correct_winners"`
	PerfectPredictions int       `json:"perfect_predictions" db:"perfect_predictions"`
	AccuracyPercentage float64   `json:"accuracy_percentage" db:"accuracy_percentage"`
	CurrentRank        *int      `json:"current_rank,omitempty" db:"current_rank"`
	PreviousRank       *int      `json:"previous_rank,omitempty" db:"previous_rank"`
	UpdatedAt          time.Time `json:"updated_at" db:"updated_at"`

	User *UserSummary `json:"user,omitempty" db:"-"`
}

// RankChange is positive when the user moved up. Zero until two rankings exist.
func (e *LeaderboardEntry) RankChange() int {
	if e.CurrentRank == nil || e.PreviousRank == nil {
		return 0
	}
	return *e.PreviousRank - *e.CurrentRank
}

// RankSnapshot is one append-only rank history record.
type RankSnapshot struct {
	ID          int64     `json:"id"`
	UserID      int       `json:"user_id"`
	Rank        int       `json:"rank"`
	TotalPoints int       `json:"total_points"`
	RecordedAt  time.Time `json:"recorded_at"`
}

type TournamentLeaderboardEntry struct {
	ID                 int       `json:"id" db:"id"`
	TournamentID       int       `json:"tournament_id" db:"tournament_id"`
	UserID             int       `json:"user_id" db:"user_id"`
	TotalPoints        int       `json:"total_points" db:"total_points"`
	TotalPredictions   int       `json:"total_predictions" db:"total_predictions"`
	CorrectPredictions int       `json:"correct_predictions" db:"correct_predictions"`
	Accuracy           float64   `json:"accuracy" db:"accuracy"`
	Rank               *int      `json:"rank,omitempty" db:"rank"`
	PreviousRank       *int      `json:"previous_rank,omitempty" db:"previous_rank"`
	UpdatedAt          time.Time `json:"updated_at" db:"updated_at"`

	User *UserSummary `json:"user,omitempty" db:"-"`
}

func (e *TournamentLeaderboardEntry) RankChange() int {
	if e.Rank == nil || e.PreviousRank == nil {
		return 0
	}
	return *e.PreviousRank - *e.Rank
}
