package scoring

import "math"

const (
	GlobalAccuracyDecimals     = 2
	TournamentAccuracyDecimals = 1
)

// Accuracy is correct/total as a percentage rounded half away from zero to the
// given number of decimals. It is 0 when total is 0.
func Accuracy(correct, total, decimals int) float64 {
	if total <= 0 {
		return 0
	}
	pct := float64(correct) / float64(total) * 100
	factor := math.Pow(10, float64(decimals))
	return math.Round(pct*factor) / factor
}
