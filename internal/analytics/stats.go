// Package analytics computes habit statistics (streaks, consistency, trend)
// and raises health alerts from habit and biometric rows. The functions in
// this file are pure; Engine wires them to storage.
package analytics

import (
	"math"
	"sort"
	"time"

	"healthspan/internal/habits"
)

// Streak counts consecutive calendar days with an entry, walking backward
// from the most recent entry on or before today and stopping at the first
// missing day. The run does not have to include today. Dates after today are
// ignored and a day that appears more than once is counted once.
func Streak(dates []time.Time, today time.Time) int {
	ref := habits.Day(today)
	days := make([]time.Time, 0, len(dates))
	for _, d := range dates {
		d = habits.Day(d)
		if d.After(ref) {
			continue
		}
		days = append(days, d)
	}
	if len(days) == 0 {
		return 0
	}
	sort.Slice(days, func(i, j int) bool { return days[i].After(days[j]) })

	anchor := days[0]
	streak := 0
	for _, d := range days {
		gap := habits.DaysBetween(d, anchor)
		if gap == streak {
			streak++
		} else if gap > streak {
			break
		}
	}
	return streak
}

// Consistency is the rounded percentage of days in the window with at least
// one entry. It is not clamped.
func Consistency(distinctDays, windowDays int) int {
	if windowDays <= 0 || distinctDays <= 0 {
		return 0
	}
	return int(math.Round(100 * float64(distinctDays) / float64(windowDays)))
}

// WindowStart returns the first day of a window of days ending on today.
func WindowStart(today time.Time, days int) time.Time {
	if days < 1 {
		days = 1
	}
	return habits.Day(today).AddDate(0, 0, -(days - 1))
}

type Trend string

const (
	TrendImproving Trend = "improving"
	TrendDeclining Trend = "declining"
	TrendStable    Trend = "stable"
	TrendNeutral   Trend = "neutral"
)

// ClassifyTrend compares the average of the first half of values (oldest
// first) with the second half. The first half takes the middle element when
// the length is odd. A ten percent move either way counts as a trend. This
// is a coarse heuristic with no significance test.
func ClassifyTrend(values []habits.Value) Trend {
	if len(values) < 2 {
		return TrendNeutral
	}
	mid := (len(values) + 1) / 2
	first, second := average(values[:mid]), average(values[mid:])
	switch {
	case second > first*1.1:
		return TrendImproving
	case second < first*0.9:
		return TrendDeclining
	default:
		return TrendStable
	}
}

// average reduces values to a number according to the shape of the first
// value: the true fraction for booleans, the mean for numbers, and zero for
// structured payloads. Values of another shape are skipped.
func average(values []habits.Value) float64 {
	if len(values) == 0 {
		return 0
	}
	shape := values[0].Shape()
	var sum float64
	n := 0
	for _, v := range values {
		if v.Shape() != shape {
			continue
		}
		switch shape {
		case habits.ShapeBoolean:
			if b, _ := v.Bool(); b {
				sum++
			}
		case habits.ShapeNumeric:
			x, _ := v.Number()
			sum += x
		default:
			return 0
		}
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
