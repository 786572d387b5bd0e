package analytics

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"healthspan/internal/events"
	"healthspan/internal/habits"
	"healthspan/internal/metrics"
	"healthspan/internal/models"
	"healthspan/internal/store"
)

type HabitReader interface {
	List(ctx context.Context, f store.HabitFilter) ([]models.HabitEntry, error)
	Dates(ctx context.Context, userID uuid.UUID, habitType string) ([]time.Time, error)
	DistinctDays(ctx context.Context, userID uuid.UUID, from, to time.Time) (int, error)
	LastLogged(ctx context.Context, userID uuid.UUID) (map[string]time.Time, error)
	KindStats(ctx context.Context, userID uuid.UUID, from time.Time) ([]store.KindStat, error)
}

type BiometricReader interface {
	Range(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]models.BiometricReading, error)
}

type AlertWriter interface {
	Create(ctx context.Context, a *models.HealthAlert) error
}

type UserLister interface {
	ActiveIDs(ctx context.Context) ([]uuid.UUID, error)
}

// Deps are the collaborators of an Engine.
type Deps struct {
	Habits     HabitReader
	Biometrics BiometricReader
	Alerts     AlertWriter
	Users      UserLister
	Publisher  events.Publisher
	Thresholds Thresholds
	Logger     *zap.Logger
}

// Engine runs the habit analysis against storage and raises alerts.
type Engine struct {
	habits     HabitReader
	biometrics BiometricReader
	alerts     AlertWriter
	users      UserLister
	publisher  events.Publisher
	thresholds Thresholds
	logger     *zap.Logger
	now        func() time.Time
}

func NewEngine(d Deps) *Engine {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Thresholds == (Thresholds{}) {
		d.Thresholds = DefaultThresholds()
	}
	return &Engine{
		habits:     d.Habits,
		biometrics: d.Biometrics,
		alerts:     d.Alerts,
		users:      d.Users,
		publisher:  d.Publisher,
		thresholds: d.Thresholds,
		logger:     d.Logger,
		now:        time.Now,
	}
}

func (e *Engine) Thresholds() Thresholds { return e.thresholds }

// Today is the current UTC calendar day.
func (e *Engine) Today() time.Time { return habits.Day(e.now()) }

func (e *Engine) Streak(ctx context.Context, userID uuid.UUID, kind habits.Kind, today time.Time) (int, error) {
	dates, err := e.habits.Dates(ctx, userID, string(kind))
	if err != nil {
		return 0, err
	}
	return Streak(dates, today), nil
}

// CategoryStreaks reports, per category, the best streak among its kinds.
func (e *Engine) CategoryStreaks(ctx context.Context, userID uuid.UUID, today time.Time) (map[habits.Category]int, error) {
	out := make(map[habits.Category]int, len(habits.Categories))
	for _, cat := range habits.CategoryNames() {
		best := 0
		for _, kind := range habits.Categories[cat] {
			n, err := e.Streak(ctx, userID, kind, today)
			if err != nil {
				return nil, fmt.Errorf("streak %s: %w", kind, err)
			}
			if n > best {
				best = n
			}
		}
		out[cat] = best
	}
	return out, nil
}

// Consistency covers the days window ending on today, both ends included.
func (e *Engine) Consistency(ctx context.Context, userID uuid.UUID, today time.Time, days int) (int, error) {
	if days <= 0 {
		return 0, nil
	}
	n, err := e.habits.DistinctDays(ctx, userID, WindowStart(today, days), habits.Day(today))
	if err != nil {
		return 0, err
	}
	return Consistency(n, days), nil
}

// KindAnalytics is the per-kind view of a window.
type KindAnalytics struct {
	Habit          habits.Kind `json:"habit"`
	WindowDays     int         `json:"window_days"`
	TotalDays      int         `json:"total_days"`
	CompletionRate float64     `json:"completion_rate"`
	Streak         int         `json:"streak"`
	Trend          Trend       `json:"trend"`
	LastEntry      *string     `json:"last_entry"`
}

func (e *Engine) KindAnalytics(ctx context.Context, userID uuid.UUID, kind habits.Kind, today time.Time, days int) (*KindAnalytics, error) {
	if days <= 0 {
		days = 30
	}
	from, to := WindowStart(today, days), habits.Day(today)
	entries, err := e.habits.List(ctx, store.HabitFilter{
		UserID:    userID,
		From:      &from,
		To:        &to,
		HabitType: string(kind),
		Ascending: true,
	})
	if err != nil {
		return nil, err
	}

	values := make([]habits.Value, 0, len(entries))
	for _, en := range entries {
		v, err := habits.ParseValue(kind, []byte(en.Value))
		if err != nil {
			e.logger.Debug("skipping malformed habit value",
				zap.String("entry_id", en.ID.String()), zap.Error(err))
			continue
		}
		values = append(values, v)
	}

	streak, err := e.Streak(ctx, userID, kind, today)
	if err != nil {
		return nil, err
	}

	out := &KindAnalytics{
		Habit:          kind,
		WindowDays:     days,
		TotalDays:      len(entries),
		CompletionRate: float64(len(entries)) / float64(days) * 100,
		Streak:         streak,
		Trend:          ClassifyTrend(values),
	}
	if len(entries) > 0 {
		last := entries[len(entries)-1].LocalDate.Format(habits.DateLayout)
		out.LastEntry = &last
	}
	return out, nil
}

func (e *Engine) Recommendations(ctx context.Context, userID uuid.UUID, today time.Time) ([]Recommendation, error) {
	last, err := e.habits.LastLogged(ctx, userID)
	if err != nil {
		return nil, err
	}
	byKind := make(map[habits.Kind]time.Time, len(last))
	for name, at := range last {
		kind, err := habits.ParseKind(name)
		if err != nil {
			continue
		}
		byKind[kind] = at
	}
	return Recommend(byKind, today, e.thresholds.StaleAfterDays), nil
}

// AnalyzeCorrelations joins the lookback window's habit entries with
// same-day biometrics and raises a stress-pattern alert for every kind whose
// averages breach the thresholds. With kinds given, only those kinds are
// considered. A failure on one kind does not stop the others; the created
// alerts are returned together with the joined errors.
func (e *Engine) AnalyzeCorrelations(ctx context.Context, userID uuid.UUID, today time.Time, kinds ...habits.Kind) ([]models.HealthAlert, error) {
	from, to := WindowStart(today, e.thresholds.CorrelationLookbackDays), habits.Day(today)
	filter := store.HabitFilter{UserID: userID, From: &from, To: &to}
	if len(kinds) == 1 {
		filter.HabitType = string(kinds[0])
	}
	entries, err := e.habits.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	if len(kinds) > 1 {
		entries = onlyKinds(entries, kinds)
	}
	if len(entries) == 0 {
		return nil, nil
	}

	readings, err := e.biometrics.Range(ctx, userID, from, to.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}

	var created []models.HealthAlert
	var errs []error
	for _, c := range Correlate(entries, readings) {
		if !e.thresholds.Breached(c) {
			continue
		}
		alert := models.HealthAlert{
			UserID:   userID,
			Kind:     models.AlertStressPattern,
			Severity: e.thresholds.Severity(c.AvgStress),
			Message:  alertMessage(models.AlertStressPattern, c, 0),
			Data:     models.MustJSON(c),
		}
		stored, err := e.raise(ctx, &alert)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", c.HabitType, err))
		}
		if stored {
			created = append(created, alert)
		}
	}
	return created, errors.Join(errs...)
}

func onlyKinds(entries []models.HabitEntry, kinds []habits.Kind) []models.HabitEntry {
	keep := make(map[string]bool, len(kinds))
	for _, k := range kinds {
		keep[string(k)] = true
	}
	out := entries[:0]
	for _, en := range entries {
		if keep[en.HabitType] {
			out = append(out, en)
		}
	}
	return out
}

// raise persists an alert and enqueues its event. stored is true once the
// alert is written, even when the publish afterwards fails.
func (e *Engine) raise(ctx context.Context, a *models.HealthAlert) (stored bool, err error) {
	if err := e.alerts.Create(ctx, a); err != nil {
		return false, err
	}
	metrics.RecordAlert(string(a.Kind), string(a.Severity))
	e.logger.Info("health alert raised",
		zap.String("user_id", a.UserID.String()),
		zap.String("kind", string(a.Kind)),
		zap.String("severity", string(a.Severity)))
	return true, e.publish(ctx, events.New(events.HealthAlertCreated, a.UserID, a))
}

func (e *Engine) publish(ctx context.Context, ev events.Event) error {
	if e.publisher == nil {
		return nil
	}
	err := e.publisher.Publish(ctx, ev)
	metrics.RecordEvent(string(ev.Type), err == nil)
	if err != nil {
		return fmt.Errorf("publish %s: %w", ev.Type, err)
	}
	return nil
}

// HabitTracked runs after an entry is stored: correlations for the entry's
// kind, then the habit.tracked event. The entry itself is never rolled back.
func (e *Engine) HabitTracked(ctx context.Context, entry models.HabitEntry) error {
	start := e.now()
	kind, err := habits.ParseKind(entry.HabitType)
	if err != nil {
		return err
	}
	_, corrErr := e.AnalyzeCorrelations(ctx, entry.UserID, e.Today(), kind)
	pubErr := e.publish(ctx, events.New(events.HabitTracked, entry.UserID, entry))
	err = errors.Join(corrErr, pubErr)
	metrics.RecordAnalysisRun("habit", time.Since(start), err)
	return err
}

// Summary is the weekly report for one user.
type Summary struct {
	UserID          uuid.UUID               `json:"user_id"`
	WindowDays      int                     `json:"window_days"`
	From            string                  `json:"from"`
	To              string                  `json:"to"`
	Habits          []store.KindStat        `json:"habits"`
	Streaks         map[habits.Category]int `json:"streaks"`
	Consistency     int                     `json:"consistency"`
	Recommendations []Recommendation        `json:"recommendations"`
	GeneratedAt     time.Time               `json:"generated_at"`
}

func (e *Engine) Summarize(ctx context.Context, userID uuid.UUID, today time.Time, days int) (*Summary, error) {
	if days <= 0 {
		days = e.thresholds.WeeklyWindowDays
	}
	from := WindowStart(today, days)
	stats, err := e.habits.KindStats(ctx, userID, from)
	if err != nil {
		return nil, err
	}
	streaks, err := e.CategoryStreaks(ctx, userID, today)
	if err != nil {
		return nil, err
	}
	consistency, err := e.Consistency(ctx, userID, today, days)
	if err != nil {
		return nil, err
	}
	recs, err := e.Recommendations(ctx, userID, today)
	if err != nil {
		return nil, err
	}
	if stats == nil {
		stats = []store.KindStat{}
	}
	return &Summary{
		UserID:          userID,
		WindowDays:      days,
		From:            from.Format(habits.DateLayout),
		To:              habits.Day(today).Format(habits.DateLayout),
		Habits:          stats,
		Streaks:         streaks,
		Consistency:     consistency,
		Recommendations: recs,
		GeneratedAt:     e.now().UTC(),
	}, nil
}

// AnalyzeUser is one user's share of the daily pass: the weekly summary, a
// missing-habits alert when consistency is low, a correlation pass over all
// kinds, and the habits.weekly.analyzed event.
func (e *Engine) AnalyzeUser(ctx context.Context, userID uuid.UUID, today time.Time) (*Summary, error) {
	summary, err := e.Summarize(ctx, userID, today, e.thresholds.WeeklyWindowDays)
	if err != nil {
		return nil, fmt.Errorf("summarize: %w", err)
	}

	var errs []error
	if summary.Consistency < e.thresholds.LowConsistencyBelow {
		alert := models.HealthAlert{
			UserID:   userID,
			Kind:     models.AlertMissingHabits,
			Severity: models.SeverityInfo,
			Message:  alertMessage(models.AlertMissingHabits, Correlation{}, summary.Consistency),
			Data: models.MustJSON(map[string]any{
				"consistency": summary.Consistency,
				"window_days": summary.WindowDays,
			}),
		}
		if _, err := e.raise(ctx, &alert); err != nil {
			errs = append(errs, fmt.Errorf("missing habits alert: %w", err))
		}
	}
	if _, err := e.AnalyzeCorrelations(ctx, userID, today); err != nil {
		errs = append(errs, fmt.Errorf("correlations: %w", err))
	}
	if err := e.publish(ctx, events.New(events.HabitsWeeklyAnalyzed, userID, summary)); err != nil {
		errs = append(errs, err)
	}
	return summary, errors.Join(errs...)
}

// UserFailure records one user the daily pass could not finish.
type UserFailure struct {
	UserID uuid.UUID `json:"user_id"`
	Error  string    `json:"error"`
}

type PassReport struct {
	Date      string        `json:"date"`
	Users     int           `json:"users"`
	Succeeded int           `json:"succeeded"`
	Failures  []UserFailure `json:"failures"`
	Duration  string        `json:"duration"`
}

// RunDailyPass analyzes every active user with bounded concurrency. One
// user's failure is logged and reported without affecting the others. The
// returned error is only set when the user list cannot be read.
func (e *Engine) RunDailyPass(ctx context.Context, today time.Time) (*PassReport, error) {
	start := e.now()
	ids, err := e.users.ActiveIDs(ctx)
	if err != nil {
		metrics.RecordAnalysisRun("daily", time.Since(start), err)
		return nil, fmt.Errorf("list active users: %w", err)
	}

	report := &PassReport{
		Date:     habits.Day(today).Format(habits.DateLayout),
		Users:    len(ids),
		Failures: []UserFailure{},
	}
	var mu sync.Mutex

	limit := e.thresholds.DailyPassConcurrency
	if limit < 1 {
		limit = 1
	}
	var g errgroup.Group
	g.SetLimit(limit)
	for _, id := range ids {
		g.Go(func() error {
			userStart := e.now()
			err := ctx.Err()
			if err == nil {
				_, err = e.AnalyzeUser(ctx, id, today)
			}
			metrics.RecordAnalysisRun("user", time.Since(userStart), err)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				e.logger.Error("daily analysis failed",
					zap.String("user_id", id.String()), zap.Error(err))
				report.Failures = append(report.Failures, UserFailure{UserID: id, Error: err.Error()})
				return nil
			}
			report.Succeeded++
			return nil
		})
	}
	_ = g.Wait()

	elapsed := time.Since(start)
	report.Duration = elapsed.String()
	var passErr error
	if len(report.Failures) > 0 {
		passErr = fmt.Errorf("%d of %d users failed", len(report.Failures), report.Users)
	}
	metrics.RecordAnalysisRun("daily", elapsed, passErr)
	e.logger.Info("daily analysis complete",
		zap.String("date", report.Date),
		zap.Int("users", report.Users),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", len(report.Failures)),
		zap.Duration("duration", elapsed))
	return report, nil
}
