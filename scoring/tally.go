package scoring

import "github.com/Dosada05/dinor-predictions/models"

// Tally accumulates a user's calculated predictions.
type Tally struct {
	TotalPoints        int
	TotalPredictions   int
	CorrectScores      int
	CorrectWinners     int
	PerfectPredictions int
	// Predictions that earned any points.
	ScoringPredictions int
}

// Add counts one calculated prediction. Points come from the stored
// points_earned; the exact/winner counters are re-derived against the match.
func (t *Tally) Add(p *models.Prediction) {
	if p == nil || !p.Calculated {
		return
	}
	t.TotalPredictions++

	points := 0
	if p.PointsEarned != nil {
		points = *p.PointsEarned
	}
	t.TotalPoints += points
	if points > 0 {
		t.ScoringPredictions++
	}

	out, ok := Evaluate(p, p.Match)
	if !ok {
		return
	}
	if out.Exact {
		t.CorrectScores++
	}
	if out.CorrectWinner {
		t.CorrectWinners++
	}
	if out.Perfect() {
		t.PerfectPredictions++
	}
}

// TallyPredictions folds a slice of predictions.
func TallyPredictions(predictions []*models.Prediction) Tally {
	var t Tally
	for _, p := range predictions {
		t.Add(p)
	}
	return t
}

// GlobalAccuracy is the leaderboard accuracy: correct winners over all, two decimals.
func (t Tally) GlobalAccuracy() float64 {
	return Accuracy(t.CorrectWinners, t.TotalPredictions, GlobalAccuracyDecimals)
}

// TournamentAccuracy is scoring predictions over all, one decimal.
func (t Tally) TournamentAccuracy() float64 {
	return Accuracy(t.ScoringPredictions, t.TotalPredictions, TournamentAccuracyDecimals)
}
