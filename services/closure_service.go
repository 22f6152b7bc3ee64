package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Dosada05/dinor-predictions/metrics"
	"github.com/Dosada05/dinor-predictions/repositories"
	"github.com/Dosada05/dinor-predictions/scoring"
)

// Действия пакетного планировщика закрытия прогнозов.
const (
	ClosureScheduled       = "scheduled"
	ClosureRescheduled     = "rescheduled"
	ClosureSkippedClosed   = "skipped_closed"
	ClosureSkippedExisting = "skipped_existing"
)

const DefaultClosureWindowDays = 7

type ClosureService interface {
	ScheduleClosures(ctx context.Context, windowDays int, force bool) (*ClosureReport, error)
}

type ClosureEvent struct {
	MatchID  int        `json:"match_id"`
	Kickoff  time.Time  `json:"kickoff"`
	ClosesAt *time.Time `json:"closes_at,omitempty"`
	Action   string     `json:"action"`
}

type ClosureReport struct {
	Events []ClosureEvent  `json:"events"`
	Counts map[string]int `json:"counts"`
}

func (r *ClosureReport) add(ev ClosureEvent) {
	r.Events = append(r.Events, ev)
	r.Counts[ev.Action]++
}

type closureService struct {
	matchRepo repositories.MatchRepository
	leadTime  time.Duration
	metrics   metrics.Recorder
	logger    *slog.Logger
	now       func() time.Time
}

func NewClosureService(
	matchRepo repositories.MatchRepository,
	leadTime time.Duration,
	recorder metrics.Recorder,
	logger *slog.Logger,
) ClosureService {
	if recorder == nil {
		recorder = metrics.NoOp()
	}
	if leadTime < 0 {
		leadTime = scoring.DefaultClosureLeadTime
	}
	return &closureService{
		matchRepo: matchRepo,
		leadTime:  leadTime,
		metrics:   recorder,
		logger:    logger,
		now:       time.Now,
	}
}

// ScheduleClosures проставляет predictions_close_at = kickoff - leadTime матчам,
// стартующим в ближайшие windowDays дней, включая те, до начала которых
// осталось меньше leadTime. Уже записанные закрытия сохраняются
// при ошибке на следующем матче.
func (s *closureService) ScheduleClosures(ctx context.Context, windowDays int, force bool) (*ClosureReport, error) {
	if windowDays <= 0 {
		windowDays = DefaultClosureWindowDays
	}
	now := s.now().UTC()
	matches, err := s.matchRepo.ListUpcoming(ctx, now, now.AddDate(0, 0, windowDays))
	if err != nil {
		return nil, fmt.Errorf("failed to list upcoming matches: %w", err)
	}

	report := &ClosureReport{Events: make([]ClosureEvent, 0, len(matches)), Counts: make(map[string]int)}
	for _, m := range matches {
		ev := ClosureEvent{MatchID: m.ID, Kickoff: m.MatchDate, ClosesAt: m.PredictionsCloseAt}
		planned := scoring.PlannedClosure(m.MatchDate, s.leadTime).UTC()

		switch {
		case !now.Before(scoring.ClosureInstant(m)):
			ev.Action = ClosureSkippedClosed
		case m.PredictionsCloseAt != nil && (!force || m.PredictionsCloseAt.Equal(planned)):
			ev.Action = ClosureSkippedExisting
		default:
			// planned может быть уже в прошлом: такой матч закрывается сразу
			ev.Action = ClosureScheduled
			if m.PredictionsCloseAt != nil {
				ev.Action = ClosureRescheduled
			}
			if err := s.matchRepo.UpdateClosesAt(ctx, nil, m.ID, &planned); err != nil {
				return report, fmt.Errorf("failed to schedule closure for match %d: %w", m.ID, err)
			}
			ev.ClosesAt = &planned
		}

		report.add(ev)
		s.metrics.ClosureAction(ev.Action)
		level := slog.LevelDebug
		if ev.Action == ClosureScheduled || ev.Action == ClosureRescheduled {
			level = slog.LevelInfo
		}
		s.logger.Log(ctx, level, "closure processed",
			slog.Int("match_id", m.ID),
			slog.String("action", ev.Action),
			slog.Time("kickoff", m.MatchDate),
		)
	}
	return report, nil
}
