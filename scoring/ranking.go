package scoring

import "sort"

// Standing is the part of a leaderboard row that decides its position.
type Standing struct {
	UserID      int
	Points      int
	Accuracy    float64
	Predictions int
}

// Less orders by points, accuracy and prediction count (all descending), then
// by user id ascending so exact ties rank the same way on every run.
func Less(a, b Standing) bool {
	if a.Points != b.Points {
		return a.Points > b.Points
	}
	if a.Accuracy != b.Accuracy {
		return a.Accuracy > b.Accuracy
	}
	if a.Predictions != b.Predictions {
		return a.Predictions > b.Predictions
	}
	return a.UserID < b.UserID
}

// RankStandings returns a sorted copy of standings and the 1-based rank of
// every user id. The input slice is not modified.
func RankStandings(standings []Standing) ([]Standing, map[int]int) {
	sorted := make([]Standing, len(standings))
	copy(sorted, standings)
	sort.SliceStable(sorted, func(i, j int) bool { return Less(sorted[i], sorted[j]) })

	ranks := make(map[int]int, len(sorted))
	for i, s := range sorted {
		ranks[s.UserID] = i + 1
	}
	return sorted, ranks
}
