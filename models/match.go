package models

import "time"

type MatchStatus string

const (
	MatchStatusScheduled MatchStatus = "scheduled"
	MatchStatusLive      MatchStatus = "live"
	MatchStatusFinished  MatchStatus = "finished"
)

// Winner is the outcome label of a match or of a prediction.
type Winner string

const (
	WinnerHome Winner = "home"
	WinnerAway Winner = "away"
	WinnerDraw Winner = "draw"
)

// WinnerFor derives the outcome label from a pair of scores.
func WinnerFor(home, away int) Winner {
	switch {
	case home > away:
		return WinnerHome
	case away > home:
		return WinnerAway
	default:
		return WinnerDraw
	}
}

func (w Winner) Valid() bool {
	return w == WinnerHome || w == WinnerAway || w == WinnerDraw
}

type FootballMatch struct {
	ID                 int         `json:"id" db:"id"`
	TournamentID       *int        `json:"tournament_id,omitempty" db:"tournament_id"`
	HomeTeamID         int         `json:"home_team_id" db:"home_team_id"`
	AwayTeamID         int         `json:"away_team_id" db:"away_team_id"`
	MatchDate          time.Time   `json:"match_date" db:"match_date"`
	PredictionsCloseAt *time.Time  `json:"predictions_close_at,omitempty" db:"predictions_close_at"`
	Status             MatchStatus `json:"status" db:"status"`
	HomeScore          *int        `json:"home_score,omitempty" db:"home_score"`
	AwayScore          *int        `json:"away_score,omitempty" db:"away_score"`
	Venue              *string     `json:"venue,omitempty" db:"venue"`
	IsActive           bool        `json:"is_active" db:"is_active"`
	PredictionsEnabled bool        `json:"predictions_enabled" db:"predictions_enabled"`
	CreatedAt          time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at" db:"updated_at"`

	HomeTeam *Team `json:"home_team,omitempty" db:"-"`
	AwayTeam *Team `json:"away_team,omitempty" db:"-"`
}

// Winner returns the actual outcome; ok is false while either score is unknown.
func (m *FootballMatch) Winner() (w Winner, ok bool) {
	if m.HomeScore == nil || m.AwayScore == nil {
		return "", false
	}
	return WinnerFor(*m.HomeScore, *m.AwayScore), true
}

// IsFinished reports whether the match is finished with both scores recorded.
func (m *FootballMatch) IsFinished() bool {
	return m.Status == MatchStatusFinished && m.HomeScore != nil && m.AwayScore != nil
}
