package services

import (
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/Dosada05/dinor-predictions/models"
)

var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

// testEnv wires every service over one memStore and one sqlmock connection.
type testEnv struct {
	st   *memStore
	mock sqlmock.Sqlmock
	bc   *fakeBroadcaster

	matchRepo      *fakeMatchRepo
	tournamentRepo *fakeTournamentRepo

	leaderboards *leaderboardService
	tournaments  *tournamentService
	scoring      *scoringService
	matches      *matchService
	predictions  *predictionService
	closures     *closureService
}

func newTestEnv(t *testing.T, st *memStore, txs int) *testEnv {
	t.Helper()
	conn, mock := newTxMock(t, txs)
	clock := func() time.Time { return testNow }
	logger := discardLogger()

	env := &testEnv{
		st:             st,
		mock:           mock,
		bc:             &fakeBroadcaster{},
		matchRepo:      &fakeMatchRepo{st: st},
		tournamentRepo: &fakeTournamentRepo{st: st},
	}
	predictionRepo := &fakePredictionRepo{st: st}
	userRepo := &fakeUserRepo{st: st}

	env.leaderboards = NewLeaderboardService(conn, &fakeLeaderboardRepo{st: st}, predictionRepo, userRepo,
		nil, env.bc, nil, logger).(*leaderboardService)
	env.leaderboards.now = clock

	env.tournaments = NewTournamentService(conn, env.tournamentRepo, &fakeParticipantRepo{st: st},
		&fakeTournamentLeaderboardRepo{st: st}, predictionRepo, userRepo, env.bc, logger).(*tournamentService)
	env.tournaments.now = clock

	env.scoring = NewScoringService(conn, env.matchRepo, predictionRepo, env.leaderboards, env.tournaments,
		nil, logger).(*scoringService)
	env.scoring.now = clock

	env.matches = NewMatchService(conn, env.matchRepo, &fakeTeamRepo{st: st}, env.tournamentRepo, predictionRepo,
		env.scoring, &fakeUploader{}, logger).(*matchService)
	env.matches.now = clock

	env.predictions = NewPredictionService(env.matchRepo, predictionRepo, logger).(*predictionService)
	env.predictions.now = clock

	env.closures = NewClosureService(env.matchRepo, 15*time.Minute, nil, logger).(*closureService)
	env.closures.now = clock

	return env
}

func (env *testEnv) addUsers(ids ...int) {
	for _, id := range ids {
		env.st.users[id] = &models.User{ID: id, Name: fmt.Sprintf("player-%d", id), Email: fmt.Sprintf("p%d@dinor.test", id)}
	}
}

func (env *testEnv) addFinishedMatch(id int, tournamentID *int, home, away int) *models.FootballMatch {
	m := &models.FootballMatch{
		ID:                 id,
		TournamentID:       tournamentID,
		HomeTeamID:         1,
		AwayTeamID:         2,
		MatchDate:          testNow.Add(-2 * time.Hour),
		Status:             models.MatchStatusFinished,
		HomeScore:          intPtr(home),
		AwayScore:          intPtr(away),
		IsActive:           true,
		PredictionsEnabled: true,
	}
	env.st.matches[id] = m
	return m
}

func (env *testEnv) addScheduledMatch(id int, tournamentID *int, kickoff time.Time) *models.FootballMatch {
	m := &models.FootballMatch{
		ID:                 id,
		TournamentID:       tournamentID,
		HomeTeamID:         1,
		AwayTeamID:         2,
		MatchDate:          kickoff,
		Status:             models.MatchStatusScheduled,
		IsActive:           true,
		PredictionsEnabled: true,
	}
	env.st.matches[id] = m
	return m
}
