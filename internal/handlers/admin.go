package handlers

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"healthspan/internal/analytics"
)

type AnalysisRunner interface {
	Today() time.Time
	RunDailyPass(ctx context.Context, today time.Time) (*analytics.PassReport, error)
	AnalyzeUser(ctx context.Context, userID uuid.UUID, today time.Time) (*analytics.Summary, error)
}

type AdminHandler struct {
	db     *sqlx.DB
	runner AnalysisRunner
	logger *zap.Logger
}

func NewAdminHandler(db *sqlx.DB, runner AnalysisRunner, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{db: db, runner: runner, logger: logger}
}

type adminOverview struct {
	TotalUsers          int `json:"total_users"`
	TotalHabitEntries   int `json:"total_habit_entries"`
	ActiveUsersThisWeek int `json:"active_users_this_week"`
	EntriesThisWeek     int `json:"entries_this_week"`
	EntriesThisMonth    int `json:"entries_this_month"`
	UnresolvedAlerts    int `json:"unresolved_alerts"`
	ConnectedWearables  int `json:"connected_wearables"`
}

// mustBeAdmin checks the current user is admin
func (h *AdminHandler) mustBeAdmin(ctx context.Context, userID uuid.UUID) (bool, error) {
	var isAdmin bool
	if err := h.db.QueryRowxContext(ctx, `SELECT is_admin FROM users WHERE id=$1 AND deleted_at IS NULL`, userID).Scan(&isAdmin); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return isAdmin, nil
}

// guard answers 403/500 for non-admins and reports whether to continue.
func (h *AdminHandler) guard(w http.ResponseWriter, r *http.Request) bool {
	userID, ok := requireUser(w, r)
	if !ok {
		return false
	}
	if ok, err := h.mustBeAdmin(r.Context(), userID); err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return false
	} else if !ok {
		http.Error(w, "forbidden", http.StatusForbidden)
		return false
	}
	return true
}

// Overview godoc
// @Summary Get admin overview
// @Description Returns administrative statistics and metrics (admin only)
// @Tags admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Success 200 {object} adminOverview
// @Failure 403 {string} string "Forbidden"
// @Failure 500 {string} string "Internal server error"
// @Router /admin/overview [get]
func (h *AdminHandler) Overview(w http.ResponseWriter, r *http.Request) {
	if !h.guard(w, r) {
		return
	}
	ctx := r.Context()

	var out adminOverview
	queries := []struct {
		dst   *int
		query string
	}{
		{&out.TotalUsers, `SELECT COUNT(*) FROM users WHERE deleted_at IS NULL`},
		{&out.TotalHabitEntries, `SELECT COUNT(*) FROM habit_entries`},
		{&out.ActiveUsersThisWeek, `SELECT COUNT(DISTINCT user_id) FROM habit_entries WHERE local_date >= date_trunc('week', CURRENT_DATE) AND local_date <= CURRENT_DATE`},
		{&out.EntriesThisWeek, `SELECT COUNT(*) FROM habit_entries WHERE local_date >= date_trunc('week', CURRENT_DATE) AND local_date <= CURRENT_DATE`},
		{&out.EntriesThisMonth, `SELECT COUNT(*) FROM habit_entries WHERE date_trunc('month', local_date) = date_trunc('month', CURRENT_DATE)`},
		{&out.UnresolvedAlerts, `SELECT COUNT(*) FROM health_alerts WHERE resolved_at IS NULL`},
		{&out.ConnectedWearables, `SELECT COUNT(*) FROM wearable_credentials`},
	}
	for _, q := range queries {
		if err := h.db.QueryRowxContext(ctx, q.query).Scan(q.dst); err != nil {
			http.Error(w, "server error", http.StatusInternalServerError)
			return
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// RunAnalysis godoc
// @Summary Run the daily analysis now
// @Description Runs the daily pass for every active user, or for one user when user_id is given (admin only)
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param date query string false "Analysis day YYYY-MM-DD (default today)"
// @Param user_id query string false "Analyze a single user"
// @Success 200 {object} analytics.PassReport
// @Failure 403 {string} string "Forbidden"
// @Router /admin/analysis/run [post]
func (h *AdminHandler) RunAnalysis(w http.ResponseWriter, r *http.Request) {
	if !h.guard(w, r) {
		return
	}
	day, err := dateParam(r, "date")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	today := h.runner.Today()
	if day != nil {
		today = *day
	}

	if raw := r.URL.Query().Get("user_id"); raw != "" {
		target, err := uuid.Parse(raw)
		if err != nil {
			http.Error(w, "invalid user_id", http.StatusBadRequest)
			return
		}
		summary, err := h.runner.AnalyzeUser(r.Context(), target, today)
		if err != nil && summary == nil {
			http.Error(w, "analysis failed", http.StatusInternalServerError)
			return
		}
		resp := map[string]interface{}{"summary": summary}
		if err != nil {
			resp["error"] = err.Error()
		}
		writeJSON(w, http.StatusOK, resp)
		return
	}

	report, err := h.runner.RunDailyPass(r.Context(), today)
	if err != nil {
		h.logger.Error("manual daily pass failed", zap.Error(err))
		http.Error(w, "analysis failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
