package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"healthspan/internal/habits"
	"healthspan/internal/models"
)

type DashboardEngine interface {
	Today() time.Time
	Consistency(ctx context.Context, userID uuid.UUID, today time.Time, days int) (int, error)
	CategoryStreaks(ctx context.Context, userID uuid.UUID, today time.Time) (map[habits.Category]int, error)
}

type DashboardHandler struct {
	db     *sqlx.DB
	engine DashboardEngine
}

func NewDashboardHandler(db *sqlx.DB, engine DashboardEngine) *DashboardHandler {
	return &DashboardHandler{db: db, engine: engine}
}

type trendPoint struct {
	LocalDate string `json:"local_date"`
	Entries   int    `json:"entries"`
	Habits    int    `json:"habits"`
}

type todayEntry struct {
	HabitType string      `db:"habit_type" json:"habit_type"`
	Value     models.JSON `db:"value" json:"value"`
}

type dashboardResponse struct {
	ReferenceDate     string                  `json:"reference_date"`
	HasTodayEntry     bool                    `json:"has_today_entry"`
	TodayEntries      []todayEntry            `json:"today_entries"`
	EntriesThisWeek   int                     `json:"entries_this_week"`
	EntriesThisMonth  int                     `json:"entries_this_month"`
	HabitsThisWeek    int                     `json:"habits_this_week"`
	AvgQualityMonth   *float64                `json:"avg_quality_month"`
	AvgEnergyMonth    *float64                `json:"avg_energy_month"`
	Consistency7Days  int                     `json:"consistency_7_days"`
	Consistency30Days int                     `json:"consistency_30_days"`
	CategoryStreaks   map[habits.Category]int `json:"category_streaks"`
	Last7DaysTrend    []trendPoint            `json:"last7_days_trend"`
}

// Get aggregates and useful metrics to power the dashboard.
// Accepts optional query param: local_date=YYYY-MM-DD to use as the user's "today".
func (h *DashboardHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	ref, err := dateParam(r, "local_date")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	refDate := h.engine.Today()
	if ref != nil {
		refDate = *ref
	}
	ctx := r.Context()
	resp := dashboardResponse{ReferenceDate: refDate.Format(habits.DateLayout)}

	// 1) Counts and averages in a single query using FILTER
	aggQuery := `
		SELECT
			COUNT(*) FILTER (WHERE local_date >= date_trunc('week', $2::timestamp)::date AND local_date <= $2) AS entries_this_week,
			COUNT(*) FILTER (WHERE date_trunc('month', local_date) = date_trunc('month', $2::date)) AS entries_this_month,
			COUNT(DISTINCT habit_type) FILTER (WHERE local_date >= date_trunc('week', $2::timestamp)::date AND local_date <= $2) AS habits_this_week,
			(AVG(quality_score) FILTER (WHERE date_trunc('month', local_date) = date_trunc('month', $2::date)))::float8 AS avg_quality_month,
			(AVG(energy_level) FILTER (WHERE date_trunc('month', local_date) = date_trunc('month', $2::date)))::float8 AS avg_energy_month
		FROM habit_entries
		WHERE user_id = $1`
	if err := h.db.QueryRowxContext(ctx, aggQuery, userID, refDate).Scan(
		&resp.EntriesThisWeek, &resp.EntriesThisMonth, &resp.HabitsThisWeek,
		&resp.AvgQualityMonth, &resp.AvgEnergyMonth,
	); err != nil {
		http.Error(w, "could not fetch aggregates", http.StatusInternalServerError)
		return
	}

	// 2) Entries on the reference date
	resp.TodayEntries = []todayEntry{}
	if err := h.db.SelectContext(ctx, &resp.TodayEntries,
		`SELECT habit_type, value FROM habit_entries WHERE user_id=$1 AND local_date=$2 ORDER BY habit_type`,
		userID, refDate); err != nil {
		http.Error(w, "could not fetch today's entries", http.StatusInternalServerError)
		return
	}
	resp.HasTodayEntry = len(resp.TodayEntries) > 0

	// 3) Consistency and streaks up to the reference date
	if resp.Consistency7Days, err = h.engine.Consistency(ctx, userID, refDate, 7); err != nil {
		http.Error(w, "could not compute consistency", http.StatusInternalServerError)
		return
	}
	if resp.Consistency30Days, err = h.engine.Consistency(ctx, userID, refDate, 30); err != nil {
		http.Error(w, "could not compute consistency", http.StatusInternalServerError)
		return
	}
	if resp.CategoryStreaks, err = h.engine.CategoryStreaks(ctx, userID, refDate); err != nil {
		http.Error(w, "could not compute streaks", http.StatusInternalServerError)
		return
	}

	// 4) Last 7 days trend ending at reference date (inclusive)
	trendRows, err := h.db.QueryxContext(ctx, `
		SELECT d::date AS local_date, COUNT(e.id) AS entries, COUNT(DISTINCT e.habit_type) AS habits
		FROM generate_series($2::date - INTERVAL '6 days', $2::date, INTERVAL '1 day') AS d
		LEFT JOIN habit_entries e ON e.user_id=$1 AND e.local_date = d::date
		GROUP BY d
		ORDER BY d`, userID, refDate)
	if err != nil {
		http.Error(w, "could not fetch trend", http.StatusInternalServerError)
		return
	}
	defer trendRows.Close()
	resp.Last7DaysTrend = make([]trendPoint, 0, 7)
	for trendRows.Next() {
		var d time.Time
		var p trendPoint
		if err := trendRows.Scan(&d, &p.Entries, &p.Habits); err == nil {
			p.LocalDate = d.Format(habits.DateLayout)
			resp.Last7DaysTrend = append(resp.Last7DaysTrend, p)
		}
	}

	writeJSON(w, http.StatusOK, resp)
}
