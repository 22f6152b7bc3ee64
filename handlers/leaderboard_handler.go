package handlers

import (
	"net/http"

	"github.com/Dosada05/dinor-predictions/middleware"
	"github.com/Dosada05/dinor-predictions/models"
	"github.com/Dosada05/dinor-predictions/services"
)

type LeaderboardHandler struct {
	leaderboardService services.LeaderboardService
}

func NewLeaderboardHandler(ls services.LeaderboardService) *LeaderboardHandler {
	return &LeaderboardHandler{leaderboardService: ls}
}

type leaderboardRow struct {
	*models.LeaderboardEntry
	RankChange int `json:"rank_change"`
}

func toLeaderboardRow(e *models.LeaderboardEntry) leaderboardRow {
	return leaderboardRow{LeaderboardEntry: e, RankChange: e.RankChange()}
}

// TopHandler обрабатывает GET /leaderboard/top?limit=
func (h *LeaderboardHandler) TopHandler(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", services.DefaultTopLimit)
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	entries, err := h.leaderboardService.Top(r.Context(), limit)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	rows := make([]leaderboardRow, len(entries))
	for i, e := range entries {
		rows[i] = toLeaderboardRow(e)
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"leaderboard": rows}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// MyStatsHandler обрабатывает GET /leaderboard/my-stats
func (h *LeaderboardHandler) MyStatsHandler(w http.ResponseWriter, r *http.Request) {
	currentUserID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required")
		return
	}

	entry, err := h.leaderboardService.MyStats(r.Context(), currentUserID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"stats": toLeaderboardRow(entry)}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// MyHistoryHandler обрабатывает GET /leaderboard/my-history?limit=
func (h *LeaderboardHandler) MyHistoryHandler(w http.ResponseWriter, r *http.Request) {
	currentUserID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required")
		return
	}
	limit, err := queryInt(r, "limit", services.DefaultHistoryLimit)
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	history, err := h.leaderboardService.History(r.Context(), currentUserID, limit)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"history": history}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// RefreshHandler обрабатывает POST /leaderboard/refresh. Тело необязательно;
// {"all": true} доступно только администраторам.
func (h *LeaderboardHandler) RefreshHandler(w http.ResponseWriter, r *http.Request) {
	currentUserID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required")
		return
	}

	var input struct {
		All bool `json:"all"`
	}
	if r.ContentLength != 0 {
		if err := readJSON(w, r, &input); err != nil {
			badRequestResponse(w, r, err)
			return
		}
	}
	if input.All {
		role, err := middleware.GetUserRoleFromContext(r.Context())
		if err != nil || role != models.RoleAdmin {
			forbiddenResponse(w, r, "admin privileges required to refresh every user")
			return
		}
	}

	result, err := h.leaderboardService.Refresh(r.Context(), currentUserID, input.All)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, result, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
