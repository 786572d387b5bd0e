package analytics

import (
	"fmt"
	"sort"
	"time"

	"healthspan/internal/habits"
)

type Recommendation struct {
	Type          string      `json:"type"`
	Habit         habits.Kind `json:"habit"`
	Message       string      `json:"message"`
	Priority      string      `json:"priority"`
	DaysSinceLast int         `json:"days_since_last"`
	LastLogged    string      `json:"last_logged"`
}

// Recommend emits one reminder per kind whose last entry is more than
// staleDays before today. Kinds never logged are not in lastLogged and so
// never recommended.
func Recommend(lastLogged map[habits.Kind]time.Time, today time.Time, staleDays int) []Recommendation {
	out := []Recommendation{}
	for kind, last := range lastLogged {
		since := habits.DaysBetween(last, today)
		if since <= staleDays {
			continue
		}
		out = append(out, Recommendation{
			Type:          "missing_habit",
			Habit:         kind,
			Message:       fmt.Sprintf("You haven't logged %s in %d days.", kind, since),
			Priority:      "medium",
			DaysSinceLast: since,
			LastLogged:    habits.Day(last).Format(habits.DateLayout),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Habit < out[j].Habit })
	return out
}
