package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"healthspan/internal/analytics"
	"healthspan/internal/habits"
)

const maxWindowDays = 365

type Analyzer interface {
	Today() time.Time
	Summarize(ctx context.Context, userID uuid.UUID, today time.Time, days int) (*analytics.Summary, error)
	KindAnalytics(ctx context.Context, userID uuid.UUID, kind habits.Kind, today time.Time, days int) (*analytics.KindAnalytics, error)
	Recommendations(ctx context.Context, userID uuid.UUID, today time.Time) ([]analytics.Recommendation, error)
}

type AnalyticsHandler struct {
	engine Analyzer
}

func NewAnalyticsHandler(engine Analyzer) *AnalyticsHandler {
	return &AnalyticsHandler{engine: engine}
}

// Summary godoc
// @Summary Habit summary
// @Description Per-habit counts and averages, category streaks, consistency and reminders for the window ending today
// @Tags analytics
// @Produce json
// @Security BearerAuth
// @Param days query int false "Window in days (default 7)"
// @Success 200 {object} analytics.Summary
// @Router /habits/summary [get]
func (h *AnalyticsHandler) Summary(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	days, err := intParam(r, "days", 7, maxWindowDays)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s, err := h.engine.Summarize(r.Context(), userID, h.engine.Today(), days)
	if err != nil {
		http.Error(w, "could not build summary", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// KindAnalytics godoc
// @Summary Analytics for one habit
// @Tags analytics
// @Produce json
// @Security BearerAuth
// @Param kind path string true "Habit type"
// @Param days query int false "Window in days (default 30)"
// @Success 200 {object} analytics.KindAnalytics
// @Failure 400 {string} string "Bad request"
// @Router /habits/{kind}/analytics [get]
func (h *AnalyticsHandler) KindAnalytics(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	kind, err := habits.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	days, err := intParam(r, "days", 30, maxWindowDays)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	out, err := h.engine.KindAnalytics(r.Context(), userID, kind, h.engine.Today(), days)
	if err != nil {
		http.Error(w, "could not compute analytics", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *AnalyticsHandler) Recommendations(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	recs, err := h.engine.Recommendations(r.Context(), userID, h.engine.Today())
	if err != nil {
		http.Error(w, "could not fetch recommendations", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"recommendations": recs})
}
