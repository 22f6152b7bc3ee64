package models

import "time"

type Prediction struct {
	ID                 int       `json:"id" db:"id"`
	UserID             int       `json:"user_id" db:"user_id"`
	MatchID            int       `json:"match_id" db:"match_id"`
	PredictedHomeScore int       `json:"predicted_home_score" db:"predicted_home_score"`
	PredictedAwayScore int       `json:"predicted_away_score" db:"predicted_away_score"`
	PredictedWinner    Winner    `json:"predicted_winner" db:"predicted_winner"`
	PointsEarned       *int      `json:"points_earned,omitempty" db:"points_earned"`
	Calculated         bool      `json:"is_calculated" db:"is_calculated"`
	CreatedAt          time.Time `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time `json:"updated_at" db:"updated_at"`

	// Populated by joins, not stored on the row.
	Match *FootballMatch `json:"match,omitempty" db:"-"`
}
