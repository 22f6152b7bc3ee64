package services

import (
	"context"
	"testing"

	"github.com/Dosada05/dinor-predictions/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateRankingsOrdersByPointsThenAccuracy(t *testing.T) {
	st := newMemStore()
	env := newTestEnv(t, st, 1)
	env.addUsers(1, 2, 3)
	st.leaderboard[1] = &models.LeaderboardEntry{UserID: 1, TotalPoints: 30, AccuracyPercentage: 50, TotalPredictions: 20}
	st.leaderboard[2] = &models.LeaderboardEntry{UserID: 2, TotalPoints: 30, AccuracyPercentage: 40, TotalPredictions: 25}
	st.leaderboard[3] = &models.LeaderboardEntry{UserID: 3, TotalPoints: 20, AccuracyPercentage: 90, TotalPredictions: 10, CurrentRank: intPtr(1)}

	ranked, err := env.leaderboards.UpdateRankings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, ranked)

	assert.Equal(t, 1, *st.leaderboard[1].CurrentRank)
	assert.Equal(t, 2, *st.leaderboard[2].CurrentRank)
	assert.Equal(t, 3, *st.leaderboard[3].CurrentRank)
	require.NotNil(t, st.leaderboard[3].PreviousRank)
	assert.Equal(t, 1, *st.leaderboard[3].PreviousRank)
	assert.Equal(t, -2, st.leaderboard[3].RankChange())
	assert.Nil(t, st.leaderboard[1].PreviousRank)

	require.Len(t, st.history, 3)
	assert.Equal(t, models.RankSnapshot{UserID: 1, Rank: 1, TotalPoints: 30, RecordedAt: testNow}, st.history[0])
	assert.NoError(t, env.mock.ExpectationsWereMet())
}

func TestUpdateRankingsBreaksExactTiesByUserID(t *testing.T) {
	st := newMemStore()
	env := newTestEnv(t, st, 1)
	st.leaderboard[9] = &models.LeaderboardEntry{UserID: 9, TotalPoints: 12, AccuracyPercentage: 60, TotalPredictions: 5}
	st.leaderboard[4] = &models.LeaderboardEntry{UserID: 4, TotalPoints: 12, AccuracyPercentage: 60, TotalPredictions: 5}

	_, err := env.leaderboards.UpdateRankings(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, *st.leaderboard[4].CurrentRank)
	assert.Equal(t, 2, *st.leaderboard[9].CurrentRank)
}

func TestRecomputeUserUsesTwoDecimalAccuracy(t *testing.T) {
	st := newMemStore()
	env := newTestEnv(t, st, 0)
	env.addFinishedMatch(10, nil, 1, 0)
	env.addFinishedMatch(11, nil, 0, 0)
	env.addFinishedMatch(12, nil, 2, 2)
	for _, mid := range []int{10, 11, 12} {
		p := st.addPrediction(1, mid, 1, 0)
		mustApply(t, p, st.matches[mid])
	}

	entry, err := env.leaderboards.RecomputeUser(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, 3, entry.TotalPoints)
	assert.Equal(t, 3, entry.TotalPredictions)
	assert.Equal(t, 1, entry.CorrectScores)
	assert.Equal(t, 1, entry.CorrectWinners)
	assert.Equal(t, 33.33, entry.AccuracyPercentage)
	assert.Equal(t, entry.TotalPoints, st.leaderboard[1].TotalPoints)
}

func TestTopAttachesUserSummaries(t *testing.T) {
	st := newMemStore()
	env := newTestEnv(t, st, 0)
	env.addUsers(1, 2)
	st.leaderboard[1] = &models.LeaderboardEntry{UserID: 1, TotalPoints: 5, CurrentRank: intPtr(2)}
	st.leaderboard[2] = &models.LeaderboardEntry{UserID: 2, TotalPoints: 9, CurrentRank: intPtr(1)}

	top, err := env.leaderboards.Top(context.Background(), 0)
	require.NoError(t, err)

	require.Len(t, top, 2)
	assert.Equal(t, 2, top[0].UserID)
	require.NotNil(t, top[0].User)
	assert.Equal(t, "player-2", top[0].User.Name)
}

// rerankingCache промахивается и сразу имитирует переранжирование, которое
// успевает пройти, пока Top читает строки из базы.
type rerankingCache struct {
	version  int64
	versions int
	stored   map[int64][]*models.LeaderboardEntry
}

func (c *rerankingCache) Version(context.Context) (int64, error) {
	c.versions++
	return c.version, nil
}

func (c *rerankingCache) GetTop(_ context.Context, version int64, _ int) ([]*models.LeaderboardEntry, bool, error) {
	entries, ok := c.stored[version]
	if !ok {
		c.version++
	}
	return entries, ok, nil
}

func (c *rerankingCache) SetTop(_ context.Context, version int64, _ int, entries []*models.LeaderboardEntry) error {
	c.stored[version] = entries
	return nil
}

func (c *rerankingCache) Invalidate(context.Context) error {
	c.version++
	return nil
}

func TestTopCachesUnderVersionItMissedOn(t *testing.T) {
	st := newMemStore()
	env := newTestEnv(t, st, 0)
	env.addUsers(1)
	st.leaderboard[1] = &models.LeaderboardEntry{UserID: 1, TotalPoints: 5, CurrentRank: intPtr(1)}

	lbCache := &rerankingCache{version: 3, stored: map[int64][]*models.LeaderboardEntry{}}
	svc := NewLeaderboardService(nil, &fakeLeaderboardRepo{st: st}, &fakePredictionRepo{st: st},
		&fakeUserRepo{st: st}, lbCache, nil, nil, discardLogger())

	_, err := svc.Top(context.Background(), 10)
	require.NoError(t, err)

	assert.Equal(t, 1, lbCache.versions)
	assert.Contains(t, lbCache.stored, int64(3))
	assert.NotContains(t, lbCache.stored, int64(4))
}

func TestMyStatsWithoutEntry(t *testing.T) {
	env := newTestEnv(t, newMemStore(), 0)

	_, err := env.leaderboards.MyStats(context.Background(), 42)
	assert.ErrorIs(t, err, ErrLeaderboardEntryNotFound)
}

func TestRefreshSingleUser(t *testing.T) {
	st := newMemStore()
	env := newTestEnv(t, st, 1)
	env.addFinishedMatch(10, nil, 3, 1)
	p := st.addPrediction(7, 10, 3, 1)
	mustApply(t, p, st.matches[10])

	res, err := env.leaderboards.Refresh(context.Background(), 7, false)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Recomputed)
	assert.Equal(t, 1, res.RankedUsers)
	assert.Equal(t, 1, *st.leaderboard[7].CurrentRank)
	assert.NoError(t, env.mock.ExpectationsWereMet())
}

func TestRefreshOutlivesCancelledCaller(t *testing.T) {
	st := newMemStore()
	env := newTestEnv(t, st, 1)
	env.addFinishedMatch(10, nil, 2, 0)
	p := st.addPrediction(7, 10, 1, 0)
	mustApply(t, p, st.matches[10])

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := env.leaderboards.Refresh(ctx, 7, false)
	require.NoError(t, err)
	assert.Equal(t, 1, res.RankedUsers)
	require.NotNil(t, st.leaderboard[7])
	assert.Equal(t, 1, st.leaderboard[7].TotalPoints)
	assert.NoError(t, env.mock.ExpectationsWereMet())
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, DefaultTopLimit, clampLimit(0, DefaultTopLimit, MaxTopLimit))
	assert.Equal(t, DefaultTopLimit, clampLimit(-3, DefaultTopLimit, MaxTopLimit))
	assert.Equal(t, 25, clampLimit(25, DefaultTopLimit, MaxTopLimit))
	assert.Equal(t, MaxTopLimit, clampLimit(1000, DefaultTopLimit, MaxTopLimit))
}
