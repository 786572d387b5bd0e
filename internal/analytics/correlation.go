package analytics

import (
	"fmt"
	"sort"
	"time"

	"healthspan/internal/habits"
	"healthspan/internal/models"
)

// Correlation holds the same-day biometric averages for one habit kind.
// Averages are nil when no joined row carried the field.
type Correlation struct {
	HabitType     string   `json:"habit_type"`
	Rows          int      `json:"rows"`
	AvgEnergy     *float64 `json:"avg_energy"`
	AvgHRV        *float64 `json:"avg_hrv"`
	AvgStress     *float64 `json:"avg_stress"`
	AvgSleepScore *float64 `json:"avg_sleep_score"`
}

type mean struct {
	sum float64
	n   int
}

func (m *mean) add(v *float64) {
	if v == nil {
		return
	}
	m.sum += *v
	m.n++
}

func (m mean) value() *float64 {
	if m.n == 0 {
		return nil
	}
	v := m.sum / float64(m.n)
	return &v
}

type group struct {
	rows                       int
	energy, hrv, stress, sleep mean
}

// Correlate left-joins entries to readings on calendar day and averages each
// habit kind's joined rows. An entry matching k readings contributes k rows;
// an entry with no reading contributes one row with empty biometrics.
// Groups are returned sorted by habit type.
func Correlate(entries []models.HabitEntry, readings []models.BiometricReading) []Correlation {
	byDay := make(map[time.Time][]*models.BiometricReading)
	for i := range readings {
		d := habits.Day(readings[i].RecordedAt)
		byDay[d] = append(byDay[d], &readings[i])
	}

	groups := make(map[string]*group)
	for _, e := range entries {
		g := groups[e.HabitType]
		if g == nil {
			g = &group{}
			groups[e.HabitType] = g
		}
		var energy *float64
		if e.EnergyLevel != nil {
			v := float64(*e.EnergyLevel)
			energy = &v
		}
		matches := byDay[habits.Day(e.LocalDate)]
		if len(matches) == 0 {
			g.rows++
			g.energy.add(energy)
			continue
		}
		for _, r := range matches {
			g.rows++
			g.energy.add(energy)
			g.hrv.add(r.HRVAverage)
			g.stress.add(r.StressLevel)
			g.sleep.add(r.SleepScore)
		}
	}

	out := make([]Correlation, 0, len(groups))
	for kind, g := range groups {
		out = append(out, Correlation{
			HabitType:     kind,
			Rows:          g.rows,
			AvgEnergy:     g.energy.value(),
			AvgHRV:        g.hrv.value(),
			AvgStress:     g.stress.value(),
			AvgSleepScore: g.sleep.value(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].HabitType < out[j].HabitType })
	return out
}

// Thresholds are the tunable cutoffs of the analysis. DefaultThresholds
// returns the production values.
type Thresholds struct {
	CorrelationLookbackDays int
	StressAlertAbove        float64
	HRVAlertBelow           float64
	CriticalStressAbove     float64
	WarningStressAbove      float64
	StaleAfterDays          int
	WeeklyWindowDays        int
	LowConsistencyBelow     int
	DailyPassConcurrency    int
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		CorrelationLookbackDays: 30,
		StressAlertAbove:        70,
		HRVAlertBelow:           30,
		CriticalStressAbove:     80,
		WarningStressAbove:      60,
		StaleAfterDays:          3,
		WeeklyWindowDays:        7,
		LowConsistencyBelow:     50,
		DailyPassConcurrency:    4,
	}
}

// Breached reports whether c warrants a stress-pattern alert. A missing
// average never trips its branch.
func (t Thresholds) Breached(c Correlation) bool {
	if c.AvgStress != nil && *c.AvgStress > t.StressAlertAbove {
		return true
	}
	return c.AvgHRV != nil && *c.AvgHRV < t.HRVAlertBelow
}

// Severity grades an alert by average stress.
func (t Thresholds) Severity(avgStress *float64) models.Severity {
	switch {
	case avgStress == nil:
		return models.SeverityInfo
	case *avgStress > t.CriticalStressAbove:
		return models.SeverityCritical
	case *avgStress > t.WarningStressAbove:
		return models.SeverityWarning
	default:
		return models.SeverityInfo
	}
}

func formatAvg(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.0f", *v)
}

// alertMessage renders the user-facing text for an alert kind.
func alertMessage(kind models.AlertKind, c Correlation, consistency int) string {
	switch kind {
	case models.AlertStressPattern:
		return fmt.Sprintf("Elevated stress detected on days you log %s. Your average is %s/100 with HRV %s ms.",
			c.HabitType, formatAvg(c.AvgStress), formatAvg(c.AvgHRV))
	case models.AlertMissingHabits:
		return fmt.Sprintf("Your habit consistency is low this week: %d%% of days logged.", consistency)
	default:
		return "Health alert detected."
	}
}
