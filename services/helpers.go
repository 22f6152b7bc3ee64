package services

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/Dosada05/dinor-predictions/models"
	"github.com/Dosada05/dinor-predictions/storage"
	"github.com/go-playground/validator/v10"
)

// Broadcaster рассылает события клиентам по websocket. *realtime.Hub реализует его.
type Broadcaster interface {
	BroadcastToRoom(roomID string, eventType string, payload interface{})
}

// Имена блокировок пакетных команд; совпадают с именами CLI-команд.
const (
	LockCalculatePoints  = "predictions:calculate-points"
	LockScheduleClosures = "predictions:schedule-closures"
	LockUpdateStatuses   = "tournaments:update-statuses"
	LockRankLeaderboard  = "leaderboard:rank"
)

// BatchLocker даёт эксклюзивный запуск пакетных команд. *db.AdvisoryLocker реализует его.
type BatchLocker interface {
	TryLock(ctx context.Context, name string) (release func(), ok bool, err error)
}

// RunExclusive runs fn while holding the named lock, or returns ErrBatchAlreadyRunning.
func RunExclusive(ctx context.Context, locker BatchLocker, name string, fn func(ctx context.Context) error) error {
	release, ok, err := locker.TryLock(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to acquire lock %q: %w", name, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrBatchAlreadyRunning, name)
	}
	defer release()
	return fn(ctx)
}

// --- Общие хелперы ---

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// В ошибках используем имена полей из json тегов.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}

// resolveTournamentStatus выводит статус турнира из дат. Завершённый и
// отменённый турниры не меняются.
func resolveTournamentStatus(t *models.Tournament, now time.Time) models.TournamentStatus {
	switch t.Status {
	case models.StatusCancelled, models.StatusFinished:
		return t.Status
	}
	switch {
	case !now.Before(t.EndDate):
		return models.StatusFinished
	case !now.Before(t.StartDate):
		return models.StatusActive
	case t.RegistrationEnd != nil && !now.Before(*t.RegistrationEnd):
		return models.StatusRegistrationClosed
	case t.RegistrationStart != nil && !now.Before(*t.RegistrationStart):
		return models.StatusRegistrationOpen
	default:
		return models.StatusUpcoming
	}
}

// isValidStatusTransition проверяет ручную смену статуса оператором.
// Вручную можно только отменить незавершённый турнир.
func isValidStatusTransition(current, next models.TournamentStatus) bool {
	if current == next {
		return true
	}
	allowedTransitions := map[models.TournamentStatus][]models.TournamentStatus{
		models.StatusUpcoming:           {models.StatusCancelled},
		models.StatusRegistrationOpen:   {models.StatusCancelled},
		models.StatusRegistrationClosed: {models.StatusCancelled},
		models.StatusActive:             {models.StatusCancelled},
		models.StatusFinished:           {},
		models.StatusCancelled:          {},
	}
	for _, allowedNextStatus := range allowedTransitions[current] {
		if next == allowedNextStatus {
			return true
		}
	}
	return false
}

func isKnownTournamentStatus(s models.TournamentStatus) bool {
	switch s {
	case models.StatusUpcoming, models.StatusRegistrationOpen, models.StatusRegistrationClosed,
		models.StatusActive, models.StatusFinished, models.StatusCancelled:
		return true
	}
	return false
}

// --- Хелперы для заполнения URL логотипов ---

func populateTeamLogoURLFunc(team *models.Team, uploader storage.FileUploader) {
	if team != nil && team.LogoKey != nil && *team.LogoKey != "" && uploader != nil {
		url := uploader.GetPublicURL(*team.LogoKey)
		if url != "" {
			team.LogoURL = &url
		}
	}
}

func GetExtensionFromContentType(contentType string) (string, error) {
	switch contentType {
	case "image/jpeg", "image/jpg":
		return ".jpg", nil
	case "image/png":
		return ".png", nil
	case "image/gif":
		return ".gif", nil
	case "image/webp":
		return ".webp", nil
	case "image/svg+xml":
		return ".svg", nil
	default:
		return "", fmt.Errorf("%w: '%s'", ErrInvalidFileType, contentType)
	}
}
