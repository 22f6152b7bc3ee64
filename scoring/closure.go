package scoring

import (
	"time"

	"github.com/Dosada05/dinor-predictions/models"
)

// DefaultClosureLeadTime is how long before kickoff the scheduler closes predictions.
const DefaultClosureLeadTime = 15 * time.Minute

// ClosureInstant is the moment after which a match stops accepting predictions:
// the explicit closure time when set, kickoff otherwise.
func ClosureInstant(m *models.FootballMatch) time.Time {
	if m.PredictionsCloseAt != nil {
		return *m.PredictionsCloseAt
	}
	return m.MatchDate
}

// CanPredict reports whether m accepts new or updated predictions at now.
func CanPredict(m *models.FootballMatch, now time.Time) bool {
	if m == nil || !m.PredictionsEnabled || !m.IsActive {
		return false
	}
	return now.Before(ClosureInstant(m))
}

// PlannedClosure is the closure the scheduler assigns to a kickoff.
func PlannedClosure(kickoff time.Time, lead time.Duration) time.Time {
	return kickoff.Add(-lead)
}
