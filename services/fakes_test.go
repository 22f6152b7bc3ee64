package services

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/Dosada05/dinor-predictions/models"
	"github.com/Dosada05/dinor-predictions/repositories"
	"github.com/Dosada05/dinor-predictions/scoring"
	"github.com/Dosada05/dinor-predictions/storage"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTxMock отдаёт sqlmock, ожидающий n пустых транзакций подряд.
func newTxMock(t *testing.T, n int) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	for i := 0; i < n; i++ {
		mock.ExpectBegin()
		mock.ExpectCommit()
	}
	return conn, mock
}

func intPtr(v int) *int { return &v }

func mustApply(t *testing.T, p *models.Prediction, m *models.FootballMatch) {
	t.Helper()
	_, ok := scoring.Apply(p, m)
	require.True(t, ok)
}

func timePtr(t time.Time) *time.Time { return &t }

// memStore is the shared in-memory state behind the fake repositories.
type memStore struct {
	mu sync.Mutex

	users        map[int]*models.User
	teams        map[int]*models.Team
	tournaments  map[int]*models.Tournament
	participants map[int][]int
	matches      map[int]*models.FootballMatch
	predictions  []*models.Prediction
	leaderboard  map[int]*models.LeaderboardEntry
	history      []models.RankSnapshot
	tournamentLB map[[2]int]*models.TournamentLeaderboardEntry
	nextID       int
}

func newMemStore() *memStore {
	return &memStore{
		users:        make(map[int]*models.User),
		teams:        make(map[int]*models.Team),
		tournaments:  make(map[int]*models.Tournament),
		participants: make(map[int][]int),
		matches:      make(map[int]*models.FootballMatch),
		leaderboard:  make(map[int]*models.LeaderboardEntry),
		tournamentLB: make(map[[2]int]*models.TournamentLeaderboardEntry),
		nextID:       1000,
	}
}

func (st *memStore) id() int {
	st.nextID++
	return st.nextID
}

func (st *memStore) addPrediction(userID, matchID, home, away int) *models.Prediction {
	p := &models.Prediction{
		ID:                 st.id(),
		UserID:             userID,
		MatchID:            matchID,
		PredictedHomeScore: home,
		PredictedAwayScore: away,
		PredictedWinner:    models.WinnerFor(home, away),
	}
	st.predictions = append(st.predictions, p)
	return p
}

func (st *memStore) prediction(userID, matchID int) *models.Prediction {
	for _, p := range st.predictions {
		if p.UserID == userID && p.MatchID == matchID {
			return p
		}
	}
	return nil
}

// --- users ---

type fakeUserRepo struct{ st *memStore }

func (r *fakeUserRepo) Create(ctx context.Context, user *models.User) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	for _, u := range r.st.users {
		if u.Email == user.Email {
			return repositories.ErrUserEmailConflict
		}
	}
	user.ID = r.st.id()
	user.CreatedAt = time.Now()
	cp := *user
	r.st.users[user.ID] = &cp
	return nil
}

func (r *fakeUserRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	for _, u := range r.st.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repositories.ErrUserNotFound
}

func (r *fakeUserRepo) ListByIDs(ctx context.Context, ids []int) (map[int]*models.User, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	out := make(map[int]*models.User, len(ids))
	for _, id := range ids {
		if u, ok := r.st.users[id]; ok {
			out[id] = &models.User{ID: u.ID, Name: u.Name, Email: u.Email}
		}
	}
	return out, nil
}

// List фильтрует только по роли и странице; поиск проверяется в тестах репозитория.
func (r *fakeUserRepo) List(ctx context.Context, filter models.UserFilter) ([]*models.User, int, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	ids := make([]int, 0, len(r.st.users))
	for id, u := range r.st.users {
		if filter.Role == nil || u.Role == *filter.Role {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	total := len(ids)
	from := min((filter.Page-1)*filter.Limit, total)
	to := min(from+filter.Limit, total)
	out := make([]*models.User, 0, to-from)
	for _, id := range ids[from:to] {
		u := r.st.users[id]
		out = append(out, &models.User{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role})
	}
	return out, total, nil
}

// --- teams ---

type fakeTeamRepo struct{ st *memStore }

func (r *fakeTeamRepo) GetByID(ctx context.Context, id int) (*models.Team, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	t, ok := r.st.teams[id]
	if !ok {
		return nil, repositories.ErrTeamNotFound
	}
	cp := *t
	return &cp, nil
}

func (r *fakeTeamRepo) ListByIDs(ctx context.Context, ids []int) (map[int]*models.Team, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	out := make(map[int]*models.Team, len(ids))
	for _, id := range ids {
		if t, ok := r.st.teams[id]; ok {
			cp := *t
			out[id] = &cp
		}
	}
	return out, nil
}

func (r *fakeTeamRepo) UpdateLogoKey(ctx context.Context, teamID int, logoKey *string) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	t, ok := r.st.teams[teamID]
	if !ok {
		return repositories.ErrTeamNotFound
	}
	t.LogoKey = logoKey
	return nil
}

// --- tournaments ---

type fakeTournamentRepo struct {
	st            *memStore
	statusUpdates int
}

func (r *fakeTournamentRepo) GetByID(ctx context.Context, id int) (*models.Tournament, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	t, ok := r.st.tournaments[id]
	if !ok {
		return nil, repositories.ErrTournamentNotFound
	}
	cp := *t
	cp.ParticipantsCount = len(r.st.participants[id])
	return &cp, nil
}

func (r *fakeTournamentRepo) List(ctx context.Context, filter repositories.ListTournamentsFilter) ([]*models.Tournament, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var out []*models.Tournament
	for _, t := range r.st.tournaments {
		if filter.FeaturedOnly && !t.IsFeatured {
			continue
		}
		if filter.PublicOnly && !t.IsPublic {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.Before(out[j].StartDate) })
	return out, nil
}

func (r *fakeTournamentRepo) UpdateStatus(ctx context.Context, exec repositories.SQLExecutor, id int, status models.TournamentStatus) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	t, ok := r.st.tournaments[id]
	if !ok {
		return repositories.ErrTournamentNotFound
	}
	t.Status = status
	r.statusUpdates++
	return nil
}

func (r *fakeTournamentRepo) GetTournamentsForAutoStatusUpdate(ctx context.Context, exec repositories.SQLExecutor, now time.Time) ([]*models.Tournament, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var out []*models.Tournament
	for _, t := range r.st.tournaments {
		if t.Status == models.StatusFinished || t.Status == models.StatusCancelled {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	return out, nil
}

// --- participants ---

type fakeParticipantRepo struct{ st *memStore }

func (r *fakeParticipantRepo) Create(ctx context.Context, p *models.TournamentParticipant) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if _, ok := r.st.tournaments[p.TournamentID]; !ok {
		return repositories.ErrParticipantTournamentInvalid
	}
	for _, uid := range r.st.participants[p.TournamentID] {
		if uid == p.UserID {
			return repositories.ErrParticipantConflict
		}
	}
	r.st.participants[p.TournamentID] = append(r.st.participants[p.TournamentID], p.UserID)
	p.ID = r.st.id()
	return nil
}

func (r *fakeParticipantRepo) ListUserIDs(ctx context.Context, exec repositories.SQLExecutor, tournamentID int) ([]int, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	return append([]int(nil), r.st.participants[tournamentID]...), nil
}

// --- matches ---

type fakeMatchRepo struct {
	st           *memStore
	closureCalls int
}

func (r *fakeMatchRepo) Create(ctx context.Context, m *models.FootballMatch) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if _, ok := r.st.teams[m.HomeTeamID]; !ok {
		return repositories.ErrMatchTeamInvalid
	}
	if _, ok := r.st.teams[m.AwayTeamID]; !ok {
		return repositories.ErrMatchTeamInvalid
	}
	m.ID = r.st.id()
	cp := *m
	r.st.matches[m.ID] = &cp
	return nil
}

func (r *fakeMatchRepo) GetByID(ctx context.Context, id int) (*models.FootballMatch, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	m, ok := r.st.matches[id]
	if !ok {
		return nil, repositories.ErrMatchNotFound
	}
	cp := *m
	return &cp, nil
}

func (r *fakeMatchRepo) GetByIDForUpdate(ctx context.Context, exec repositories.SQLExecutor, id int) (*models.FootballMatch, error) {
	return r.GetByID(ctx, id)
}

func (r *fakeMatchRepo) ListByTournament(ctx context.Context, tournamentID int) ([]*models.FootballMatch, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var out []*models.FootballMatch
	for _, m := range r.st.matches {
		if m.TournamentID != nil && *m.TournamentID == tournamentID && m.IsActive {
			cp := *m
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MatchDate.Before(out[j].MatchDate) })
	return out, nil
}

func (r *fakeMatchRepo) ListUpcoming(ctx context.Context, from, to time.Time) ([]*models.FootballMatch, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var out []*models.FootballMatch
	for _, m := range r.st.matches {
		if m.Status != models.MatchStatusScheduled || !m.IsActive || !m.PredictionsEnabled {
			continue
		}
		if m.MatchDate.Before(from) || m.MatchDate.After(to) {
			continue
		}
		cp := *m
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeMatchRepo) ListFinishedWithPending(ctx context.Context) ([]int, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	seen := make(map[int]struct{})
	for _, p := range r.st.predictions {
		m, ok := r.st.matches[p.MatchID]
		if ok && !p.Calculated && m.Status == models.MatchStatusFinished {
			seen[p.MatchID] = struct{}{}
		}
	}
	return sortedKeys(seen), nil
}

func (r *fakeMatchRepo) UpdateResult(ctx context.Context, exec repositories.SQLExecutor, id int, homeScore, awayScore int, status models.MatchStatus) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	m, ok := r.st.matches[id]
	if !ok {
		return repositories.ErrMatchNotFound
	}
	m.HomeScore, m.AwayScore, m.Status = intPtr(homeScore), intPtr(awayScore), status
	return nil
}

func (r *fakeMatchRepo) UpdateClosesAt(ctx context.Context, exec repositories.SQLExecutor, id int, closesAt *time.Time) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	m, ok := r.st.matches[id]
	if !ok {
		return repositories.ErrMatchNotFound
	}
	m.PredictionsCloseAt = closesAt
	r.closureCalls++
	return nil
}

// --- predictions ---

type fakePredictionRepo struct{ st *memStore }

func (r *fakePredictionRepo) Upsert(ctx context.Context, p *models.Prediction) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if _, ok := r.st.matches[p.MatchID]; !ok {
		return repositories.ErrPredictionMatchInvalid
	}
	if existing := r.st.prediction(p.UserID, p.MatchID); existing != nil {
		if existing.Calculated {
			return repositories.ErrPredictionLocked
		}
		existing.PredictedHomeScore = p.PredictedHomeScore
		existing.PredictedAwayScore = p.PredictedAwayScore
		existing.PredictedWinner = p.PredictedWinner
		p.ID = existing.ID
		return nil
	}
	p.ID = r.st.id()
	cp := *p
	r.st.predictions = append(r.st.predictions, &cp)
	return nil
}

func (r *fakePredictionRepo) ListByUser(ctx context.Context, userID int, tournamentID *int) ([]*models.Prediction, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var out []*models.Prediction
	for _, p := range r.st.predictions {
		if p.UserID != userID || !r.inTournament(p, tournamentID) {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

func (r *fakePredictionRepo) inTournament(p *models.Prediction, tournamentID *int) bool {
	if tournamentID == nil {
		return true
	}
	m, ok := r.st.matches[p.MatchID]
	return ok && m.TournamentID != nil && *m.TournamentID == *tournamentID
}

func (r *fakePredictionRepo) ListByUserForMatches(ctx context.Context, userID int, matchIDs []int) (map[int]*models.Prediction, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	out := make(map[int]*models.Prediction)
	for _, id := range matchIDs {
		if p := r.st.prediction(userID, id); p != nil {
			cp := *p
			out[id] = &cp
		}
	}
	return out, nil
}

func (r *fakePredictionRepo) ListPendingByMatchForUpdate(ctx context.Context, exec repositories.SQLExecutor, matchID int) ([]*models.Prediction, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var out []*models.Prediction
	for _, p := range r.st.predictions {
		if p.MatchID == matchID && !p.Calculated {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakePredictionRepo) MarkCalculated(ctx context.Context, exec repositories.SQLExecutor, p *models.Prediction) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	for _, stored := range r.st.predictions {
		if stored.ID == p.ID {
			stored.PointsEarned = p.PointsEarned
			stored.Calculated = p.Calculated
			return nil
		}
	}
	return repositories.ErrPredictionNotFound
}

func (r *fakePredictionRepo) ResetByMatch(ctx context.Context, exec repositories.SQLExecutor, matchID int) (int64, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var n int64
	for _, p := range r.st.predictions {
		if p.MatchID == matchID && p.Calculated {
			p.Calculated, p.PointsEarned = false, nil
			n++
		}
	}
	return n, nil
}

func (r *fakePredictionRepo) ListCalculatedByUser(ctx context.Context, exec repositories.SQLExecutor, userID int, tournamentID *int) ([]*models.Prediction, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var out []*models.Prediction
	for _, p := range r.st.predictions {
		if p.UserID != userID || !p.Calculated || !r.inTournament(p, tournamentID) {
			continue
		}
		cp := *p
		m := *r.st.matches[p.MatchID]
		cp.Match = &m
		out = append(out, &cp)
	}
	return out, nil
}

func (r *fakePredictionRepo) ListUserIDsWithCalculated(ctx context.Context, exec repositories.SQLExecutor, tournamentID *int) ([]int, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	seen := make(map[int]struct{})
	for _, p := range r.st.predictions {
		if p.Calculated && r.inTournament(p, tournamentID) {
			seen[p.UserID] = struct{}{}
		}
	}
	return sortedKeys(seen), nil
}

// --- global leaderboard ---

type fakeLeaderboardRepo struct{ st *memStore }

func (r *fakeLeaderboardRepo) GetByUserID(ctx context.Context, userID int) (*models.LeaderboardEntry, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	e, ok := r.st.leaderboard[userID]
	if !ok {
		return nil, repositories.ErrLeaderboardEntryNotFound
	}
	cp := *e
	return &cp, nil
}

func (r *fakeLeaderboardRepo) Upsert(ctx context.Context, exec repositories.SQLExecutor, entry *models.LeaderboardEntry) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if existing, ok := r.st.leaderboard[entry.UserID]; ok {
		entry.ID, entry.CurrentRank, entry.PreviousRank = existing.ID, existing.CurrentRank, existing.PreviousRank
	} else {
		entry.ID = r.st.id()
	}
	cp := *entry
	r.st.leaderboard[entry.UserID] = &cp
	return nil
}

func (r *fakeLeaderboardRepo) ListAll(ctx context.Context, exec repositories.SQLExecutor) ([]*models.LeaderboardEntry, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	out := make([]*models.LeaderboardEntry, 0, len(r.st.leaderboard))
	for _, e := range r.st.leaderboard {
		cp := *e
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (r *fakeLeaderboardRepo) UpdateRank(ctx context.Context, exec repositories.SQLExecutor, userID int, previousRank *int, currentRank int) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	e, ok := r.st.leaderboard[userID]
	if !ok {
		return repositories.ErrLeaderboardEntryNotFound
	}
	e.PreviousRank, e.CurrentRank = previousRank, intPtr(currentRank)
	return nil
}

func (r *fakeLeaderboardRepo) Top(ctx context.Context, limit int) ([]*models.LeaderboardEntry, error) {
	all, _ := r.ListAll(ctx, nil)
	var ranked []*models.LeaderboardEntry
	for _, e := range all {
		if e.CurrentRank != nil {
			ranked = append(ranked, e)
		}
	}
	sort.Slice(ranked, func(i, j int) bool { return *ranked[i].CurrentRank < *ranked[j].CurrentRank })
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked, nil
}

func (r *fakeLeaderboardRepo) InsertRankHistory(ctx context.Context, exec repositories.SQLExecutor, snapshots []models.RankSnapshot) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	r.st.history = append(r.st.history, snapshots...)
	return nil
}

func (r *fakeLeaderboardRepo) ListHistory(ctx context.Context, userID, limit int) ([]models.RankSnapshot, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var out []models.RankSnapshot
	for i := len(r.st.history) - 1; i >= 0 && len(out) < limit; i-- {
		if r.st.history[i].UserID == userID {
			out = append(out, r.st.history[i])
		}
	}
	return out, nil
}

// --- tournament leaderboard ---

type fakeTournamentLeaderboardRepo struct{ st *memStore }

func (r *fakeTournamentLeaderboardRepo) EnsureEntry(ctx context.Context, exec repositories.SQLExecutor, tournamentID, userID int) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	key := [2]int{tournamentID, userID}
	if _, ok := r.st.tournamentLB[key]; !ok {
		r.st.tournamentLB[key] = &models.TournamentLeaderboardEntry{ID: r.st.id(), TournamentID: tournamentID, UserID: userID}
	}
	return nil
}

func (r *fakeTournamentLeaderboardRepo) Upsert(ctx context.Context, exec repositories.SQLExecutor, entry *models.TournamentLeaderboardEntry) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	key := [2]int{entry.TournamentID, entry.UserID}
	if existing, ok := r.st.tournamentLB[key]; ok {
		entry.ID, entry.Rank, entry.PreviousRank = existing.ID, existing.Rank, existing.PreviousRank
	} else {
		entry.ID = r.st.id()
	}
	cp := *entry
	r.st.tournamentLB[key] = &cp
	return nil
}

func (r *fakeTournamentLeaderboardRepo) ListByTournament(ctx context.Context, exec repositories.SQLExecutor, tournamentID int, forUpdate bool) ([]*models.TournamentLeaderboardEntry, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var out []*models.TournamentLeaderboardEntry
	for key, e := range r.st.tournamentLB {
		if key[0] == tournamentID {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		ri, rj := out[i].Rank, out[j].Rank
		if ri != nil && rj != nil && *ri != *rj {
			return *ri < *rj
		}
		return out[i].UserID < out[j].UserID
	})
	return out, nil
}

func (r *fakeTournamentLeaderboardRepo) UpdateRank(ctx context.Context, exec repositories.SQLExecutor, tournamentID, userID int, previousRank *int, rank int) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	e, ok := r.st.tournamentLB[[2]int{tournamentID, userID}]
	if !ok {
		return repositories.ErrTournamentLeaderboardEntryNotFound
	}
	e.PreviousRank, e.Rank = previousRank, intPtr(rank)
	return nil
}

// --- infrastructure ---

type broadcastCall struct {
	Room  string
	Event string
}

type fakeBroadcaster struct {
	mu    sync.Mutex
	calls []broadcastCall
}

func (b *fakeBroadcaster) BroadcastToRoom(roomID string, eventType string, payload interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, broadcastCall{Room: roomID, Event: eventType})
}

type fakeUploader struct {
	uploaded []string
	deleted  []string
	failWith error
}

func (u *fakeUploader) Upload(ctx context.Context, key string, contentType string, reader io.Reader) (*storage.UploadResult, error) {
	if u.failWith != nil {
		return nil, u.failWith
	}
	u.uploaded = append(u.uploaded, key)
	return &storage.UploadResult{Key: key, Location: "https://cdn.test/" + key}, nil
}

func (u *fakeUploader) Delete(ctx context.Context, key string) error {
	u.deleted = append(u.deleted, key)
	return nil
}

func (u *fakeUploader) GetPublicURL(key string) string {
	return "https://cdn.test/" + key
}

type fakeLocker struct {
	held     map[string]bool
	released []string
}

func (l *fakeLocker) TryLock(ctx context.Context, name string) (func(), bool, error) {
	if l.held[name] {
		return nil, false, nil
	}
	return func() { l.released = append(l.released, name) }, true, nil
}
