// Package scoring holds the pure rules of the prediction game: points per
// prediction, the closure instant of a match and leaderboard ordering.
package scoring

import "github.com/Dosada05/dinor-predictions/models"

const (
	ExactScorePoints = 3
	WinnerPoints     = 1
)

// Outcome classifies a prediction against a finished match.
type Outcome struct {
	Exact         bool
	CorrectWinner bool
	Points        int
}

// Perfect is an exact score whose stored winner label also matches.
func (o Outcome) Perfect() bool {
	return o.Exact && o.CorrectWinner
}

// Evaluate compares a prediction with the match result. ok is false when the
// match is not finished or a score is missing; the outcome is zero then.
//
// An exact score earns ExactScorePoints whatever the stored winner label says.
// Otherwise a matching winner label earns WinnerPoints.
func Evaluate(p *models.Prediction, m *models.FootballMatch) (out Outcome, ok bool) {
	if p == nil || m == nil || !m.IsFinished() {
		return Outcome{}, false
	}
	actual, _ := m.Winner()

	out.Exact = p.PredictedHomeScore == *m.HomeScore && p.PredictedAwayScore == *m.AwayScore
	out.CorrectWinner = p.PredictedWinner == actual

	switch {
	case out.Exact:
		out.Points = ExactScorePoints
	case out.CorrectWinner:
		out.Points = WinnerPoints
	}
	return out, true
}

// Points returns the points a prediction earns, 0 for unfinished matches.
func Points(p *models.Prediction, m *models.FootballMatch) int {
	out, _ := Evaluate(p, m)
	return out.Points
}

// Apply stores the points on the prediction, marks it calculated and returns
// the outcome it applied. It overwrites rather than accumulates, so applying
// twice is harmless. It reports false and leaves p untouched when the match
// is not finished.
func Apply(p *models.Prediction, m *models.FootballMatch) (Outcome, bool) {
	out, ok := Evaluate(p, m)
	if !ok {
		return Outcome{}, false
	}
	points := out.Points
	p.PointsEarned = &points
	p.Calculated = true
	return out, true
}
