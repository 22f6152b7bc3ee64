package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/Dosada05/dinor-predictions/middleware"
	"github.com/Dosada05/dinor-predictions/models"
	"github.com/Dosada05/dinor-predictions/services"
	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/mock"
)

type mockAuthService struct{ mock.Mock }

func (m *mockAuthService) Register(ctx context.Context, input services.RegisterInput) (*models.User, error) {
	args := m.Called(ctx, input)
	user, _ := args.Get(0).(*models.User)
	return user, args.Error(1)
}

func (m *mockAuthService) Login(ctx context.Context, input services.LoginInput) (*models.User, error) {
	args := m.Called(ctx, input)
	user, _ := args.Get(0).(*models.User)
	return user, args.Error(1)
}

type mockPredictionService struct{ mock.Mock }

func (m *mockPredictionService) Upsert(ctx context.Context, userID int, input services.UpsertPredictionInput) (*models.Prediction, error) {
	args := m.Called(ctx, userID, input)
	p, _ := args.Get(0).(*models.Prediction)
	return p, args.Error(1)
}

func (m *mockPredictionService) Mine(ctx context.Context, userID int, tournamentID *int) ([]*models.Prediction, error) {
	args := m.Called(ctx, userID, tournamentID)
	list, _ := args.Get(0).([]*models.Prediction)
	return list, args.Error(1)
}

type mockLeaderboardService struct{ mock.Mock }

func (m *mockLeaderboardService) RecomputeUser(ctx context.Context, userID int) (*models.LeaderboardEntry, error) {
	args := m.Called(ctx, userID)
	e, _ := args.Get(0).(*models.LeaderboardEntry)
	return e, args.Error(1)
}

func (m *mockLeaderboardService) RecomputeAll(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *mockLeaderboardService) UpdateRankings(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *mockLeaderboardService) Top(ctx context.Context, limit int) ([]*models.LeaderboardEntry, error) {
	args := m.Called(ctx, limit)
	list, _ := args.Get(0).([]*models.LeaderboardEntry)
	return list, args.Error(1)
}

func (m *mockLeaderboardService) MyStats(ctx context.Context, userID int) (*models.LeaderboardEntry, error) {
	args := m.Called(ctx, userID)
	e, _ := args.Get(0).(*models.LeaderboardEntry)
	return e, args.Error(1)
}

func (m *mockLeaderboardService) History(ctx context.Context, userID, limit int) ([]models.RankSnapshot, error) {
	args := m.Called(ctx, userID, limit)
	list, _ := args.Get(0).([]models.RankSnapshot)
	return list, args.Error(1)
}

func (m *mockLeaderboardService) Refresh(ctx context.Context, userID int, all bool) (*services.RefreshResult, error) {
	args := m.Called(ctx, userID, all)
	res, _ := args.Get(0).(*services.RefreshResult)
	return res, args.Error(1)
}

type mockTeamService struct{ mock.Mock }

func (m *mockTeamService) GetByID(ctx context.Context, id int) (*models.Team, error) {
	args := m.Called(ctx, id)
	team, _ := args.Get(0).(*models.Team)
	return team, args.Error(1)
}

func (m *mockTeamService) UploadLogo(ctx context.Context, teamID int, file io.Reader, contentType string) (*models.Team, error) {
	args := m.Called(ctx, teamID, file, contentType)
	team, _ := args.Get(0).(*models.Team)
	return team, args.Error(1)
}

type mockMatchService struct{ mock.Mock }

func (m *mockMatchService) Create(ctx context.Context, input services.CreateMatchInput) (*models.FootballMatch, error) {
	args := m.Called(ctx, input)
	match, _ := args.Get(0).(*models.FootballMatch)
	return match, args.Error(1)
}

func (m *mockMatchService) GetByID(ctx context.Context, id int) (*models.FootballMatch, error) {
	args := m.Called(ctx, id)
	match, _ := args.Get(0).(*models.FootballMatch)
	return match, args.Error(1)
}

func (m *mockMatchService) ListForTournament(ctx context.Context, tournamentID int, userID *int) ([]*services.MatchView, error) {
	args := m.Called(ctx, tournamentID, userID)
	list, _ := args.Get(0).([]*services.MatchView)
	return list, args.Error(1)
}

func (m *mockMatchService) RecordResult(ctx context.Context, matchID int, input services.RecordResultInput) (*services.MatchScoringResult, error) {
	args := m.Called(ctx, matchID, input)
	res, _ := args.Get(0).(*services.MatchScoringResult)
	return res, args.Error(1)
}

func (m *mockMatchService) SetClosure(ctx context.Context, matchID int, input services.SetClosureInput) (*models.FootballMatch, error) {
	args := m.Called(ctx, matchID, input)
	match, _ := args.Get(0).(*models.FootballMatch)
	return match, args.Error(1)
}

type mockScoringService struct{ mock.Mock }

func (m *mockScoringService) CalculateForMatch(ctx context.Context, matchID int) (*services.MatchScoringResult, error) {
	args := m.Called(ctx, matchID)
	res, _ := args.Get(0).(*services.MatchScoringResult)
	return res, args.Error(1)
}

func (m *mockScoringService) CalculateAllPending(ctx context.Context) (*services.ScoringReport, error) {
	args := m.Called(ctx)
	res, _ := args.Get(0).(*services.ScoringReport)
	return res, args.Error(1)
}

// asUser кладёт claims так же, как это делает Authenticate.
func asUser(r *http.Request, userID int, role models.UserRole) *http.Request {
	claims := jwt.MapClaims{
		middleware.JWTClaimUserID: float64(userID),
		middleware.JWTClaimRole:   string(role),
	}
	return r.WithContext(middleware.WithClaims(r.Context(), claims))
}

// withURLParam эмулирует маршрутизацию chi для одного параметра пути.
func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

type mockTournamentService struct{ mock.Mock }

func (m *mockTournamentService) Featured(ctx context.Context, limit int) ([]*models.Tournament, error) {
	args := m.Called(ctx, limit)
	list, _ := args.Get(0).([]*models.Tournament)
	return list, args.Error(1)
}

func (m *mockTournamentService) GetByID(ctx context.Context, id int) (*models.Tournament, error) {
	args := m.Called(ctx, id)
	t, _ := args.Get(0).(*models.Tournament)
	return t, args.Error(1)
}

func (m *mockTournamentService) UpdateStatus(ctx context.Context, id int) (*models.Tournament, error) {
	args := m.Called(ctx, id)
	t, _ := args.Get(0).(*models.Tournament)
	return t, args.Error(1)
}

func (m *mockTournamentService) AutoUpdateStatuses(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *mockTournamentService) SetStatus(ctx context.Context, id int, status models.TournamentStatus) (*models.Tournament, error) {
	args := m.Called(ctx, id, status)
	t, _ := args.Get(0).(*models.Tournament)
	return t, args.Error(1)
}

func (m *mockTournamentService) Register(ctx context.Context, tournamentID, userID int) error {
	return m.Called(ctx, tournamentID, userID).Error(0)
}

func (m *mockTournamentService) RecomputeLeaderboard(ctx context.Context, tournamentID int, userIDs ...int) error {
	return m.Called(ctx, tournamentID, userIDs).Error(0)
}

func (m *mockTournamentService) RankLeaderboard(ctx context.Context, tournamentID int) (int, error) {
	args := m.Called(ctx, tournamentID)
	return args.Int(0), args.Error(1)
}

func (m *mockTournamentService) Leaderboard(ctx context.Context, tournamentID int) ([]*models.TournamentLeaderboardEntry, error) {
	args := m.Called(ctx, tournamentID)
	list, _ := args.Get(0).([]*models.TournamentLeaderboardEntry)
	return list, args.Error(1)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type mockAdminUserService struct{ mock.Mock }

func (m *mockAdminUserService) ListUsers(ctx context.Context, filter models.UserFilter) (models.UserListResponse, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).(models.UserListResponse), args.Error(1)
}
