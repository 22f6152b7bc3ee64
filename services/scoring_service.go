package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/Dosada05/dinor-predictions/db"
	"github.com/Dosada05/dinor-predictions/metrics"
	"github.com/Dosada05/dinor-predictions/repositories"
	"github.com/Dosada05/dinor-predictions/scoring"
)

const (
	SkipReasonNotFound    = "not_found"
	SkipReasonNotFinished = "not_finished"
)

type ScoringService interface {
	CalculateForMatch(ctx context.Context, matchID int) (*MatchScoringResult, error)
	CalculateAllPending(ctx context.Context) (*ScoringReport, error)
}

// MatchScoringResult summarises one match. A skipped match is not an error.
type MatchScoringResult struct {
	MatchID      int    `json:"match_id"`
	TournamentID *int   `json:"tournament_id,omitempty"`
	Scored       int    `json:"scored"`
	Exact        int    `json:"exact"`
	WinnerOnly   int    `json:"winner_only"`
	Missed       int    `json:"missed"`
	Skipped      bool   `json:"skipped"`
	SkipReason   string `json:"skip_reason,omitempty"`

	userIDs []int
}

type ScoringReport struct {
	Matches         []*MatchScoringResult `json:"matches"`
	UsersRecomputed int                   `json:"users_recomputed"`
	RankedUsers     int                   `json:"ranked_users"`
}

type scoringService struct {
	db             *sql.DB
	matchRepo      repositories.MatchRepository
	predictionRepo repositories.PredictionRepository
	leaderboards   LeaderboardService
	tournaments    TournamentService
	metrics        metrics.Recorder
	logger         *slog.Logger
	now            func() time.Time
}

func NewScoringService(
	conn *sql.DB,
	matchRepo repositories.MatchRepository,
	predictionRepo repositories.PredictionRepository,
	leaderboards LeaderboardService,
	tournaments TournamentService,
	recorder metrics.Recorder,
	logger *slog.Logger,
) ScoringService {
	if recorder == nil {
		recorder = metrics.NoOp()
	}
	return &scoringService{
		db:             conn,
		matchRepo:      matchRepo,
		predictionRepo: predictionRepo,
		leaderboards:   leaderboards,
		tournaments:    tournaments,
		metrics:        recorder,
		logger:         logger,
		now:            time.Now,
	}
}

func (s *scoringService) CalculateForMatch(ctx context.Context, matchID int) (*MatchScoringResult, error) {
	res, err := s.scoreMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if _, err := s.refreshAggregates(ctx, []*MatchScoringResult{res}); err != nil {
		return res, err
	}
	return res, nil
}

// CalculateAllPending scores every finished match with pending predictions.
// Each match commits on its own; a failure stops the run without undoing
// matches already scored.
func (s *scoringService) CalculateAllPending(ctx context.Context) (*ScoringReport, error) {
	ids, err := s.matchRepo.ListFinishedWithPending(ctx)
	if err != nil {
		return nil, err
	}

	report := &ScoringReport{Matches: make([]*MatchScoringResult, 0, len(ids))}
	for _, id := range ids {
		res, err := s.scoreMatch(ctx, id)
		if err != nil {
			// уже посчитанные матчи всё равно попадают в лидерборды
			if refreshErr := s.refreshInto(ctx, report); refreshErr != nil {
				s.logger.ErrorContext(ctx, "failed to refresh leaderboards after partial run", slog.Any("error", refreshErr))
			}
			return report, err
		}
		report.Matches = append(report.Matches, res)
	}

	if err := s.refreshInto(ctx, report); err != nil {
		return report, err
	}
	return report, nil
}

func (s *scoringService) refreshInto(ctx context.Context, report *ScoringReport) error {
	stats, err := s.refreshAggregates(ctx, report.Matches)
	report.UsersRecomputed = stats.users
	report.RankedUsers = stats.ranked
	return err
}

// scoreMatch блокирует матч и его непосчитанные прогнозы, начисляет очки и коммитит.
func (s *scoringService) scoreMatch(ctx context.Context, matchID int) (*MatchScoringResult, error) {
	start := s.now()
	res := &MatchScoringResult{MatchID: matchID}
	var awarded []int

	err := db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		match, err := s.matchRepo.GetByIDForUpdate(ctx, tx, matchID)
		if err != nil {
			if errors.Is(err, repositories.ErrMatchNotFound) {
				res.Skipped, res.SkipReason = true, SkipReasonNotFound
				return nil
			}
			return err
		}
		res.TournamentID = match.TournamentID
		if !match.IsFinished() {
			res.Skipped, res.SkipReason = true, SkipReasonNotFinished
			return nil
		}

		pending, err := s.predictionRepo.ListPendingByMatchForUpdate(ctx, tx, matchID)
		if err != nil {
			return err
		}
		for _, p := range pending {
			outcome, _ := scoring.Apply(p, match)
			if err := s.predictionRepo.MarkCalculated(ctx, tx, p); err != nil {
				return err
			}
			switch {
			case outcome.Exact:
				res.Exact++
			case outcome.CorrectWinner:
				res.WinnerOnly++
			default:
				res.Missed++
			}
			res.Scored++
			res.userIDs = append(res.userIDs, p.UserID)
			awarded = append(awarded, outcome.Points)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to score match %d: %w", matchID, err)
	}

	if res.Skipped {
		s.logger.InfoContext(ctx, "match skipped for scoring", slog.Int("match_id", matchID), slog.String("reason", res.SkipReason))
		return res, nil
	}

	for _, points := range awarded {
		s.metrics.PredictionsScored(points)
	}
	s.metrics.MatchScored(s.now().Sub(start))
	s.logger.InfoContext(ctx, "match scored",
		slog.Int("match_id", matchID),
		slog.Int("predictions", res.Scored),
		slog.Int("exact", res.Exact),
		slog.Int("winner_only", res.WinnerOnly),
	)
	return res, nil
}

type aggregateStats struct {
	users  int
	ranked int
}

// refreshAggregates пересчитывает затронутых пользователей в глобальном и
// турнирных лидербордах и переранжирует их один раз.
func (s *scoringService) refreshAggregates(ctx context.Context, results []*MatchScoringResult) (aggregateStats, error) {
	var stats aggregateStats

	users := make(map[int]struct{})
	byTournament := make(map[int]map[int]struct{})
	for _, r := range results {
		if r == nil || r.Scored == 0 {
			continue
		}
		for _, uid := range r.userIDs {
			users[uid] = struct{}{}
			if r.TournamentID != nil {
				if byTournament[*r.TournamentID] == nil {
					byTournament[*r.TournamentID] = make(map[int]struct{})
				}
				byTournament[*r.TournamentID][uid] = struct{}{}
			}
		}
	}
	if len(users) == 0 {
		return stats, nil
	}

	for _, uid := range sortedKeys(users) {
		if _, err := s.leaderboards.RecomputeUser(ctx, uid); err != nil {
			return stats, err
		}
		stats.users++
	}

	for _, tid := range sortedKeys(byTournamentKeys(byTournament)) {
		if err := s.tournaments.RecomputeLeaderboard(ctx, tid, sortedKeys(byTournament[tid])...); err != nil {
			return stats, err
		}
		if _, err := s.tournaments.RankLeaderboard(ctx, tid); err != nil {
			return stats, err
		}
	}

	ranked, err := s.leaderboards.UpdateRankings(ctx)
	if err != nil {
		return stats, err
	}
	stats.ranked = ranked
	return stats, nil
}

func byTournamentKeys(m map[int]map[int]struct{}) map[int]struct{} {
	keys := make(map[int]struct{}, len(m))
	for k := range m {
		keys[k] = struct{}{}
	}
	return keys
}

func sortedKeys(m map[int]struct{}) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
