package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"healthspan/internal/habits"
	mw "healthspan/internal/middleware"
	"healthspan/internal/models"
)

// UserDTO renders dates as date-only strings and timestamps as RFC3339.
type UserDTO struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Name      *string   `json:"name,omitempty"`
	AvatarURL *string   `json:"avatar_url,omitempty"`
	BirthDate *string   `json:"birth_date,omitempty"`
	Gender    *string   `json:"gender,omitempty"`
	IsAdmin   bool      `json:"is_admin"`
	CreatedAt string    `json:"created_at"`
	LastLogin *string   `json:"last_login,omitempty"`
}

func toDateStringPtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(habits.DateLayout)
	return &s
}

func toDateTimeStringPtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}

func ToUserDTO(u models.User) UserDTO {
	return UserDTO{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		AvatarURL: u.AvatarURL,
		BirthDate: toDateStringPtr(u.BirthDate),
		Gender:    u.Gender,
		IsAdmin:   u.IsAdmin,
		CreatedAt: u.CreatedAt.Format(time.RFC3339),
		LastLogin: toDateTimeStringPtr(u.LastLogin),
	}
}

// HabitEntryDTO is a habit entry with its calendar day as YYYY-MM-DD.
type HabitEntryDTO struct {
	ID              uuid.UUID   `json:"id"`
	LocalDate       string      `json:"local_date"`
	HabitType       string      `json:"habit_type"`
	Value           models.JSON `json:"value"`
	DurationMinutes *int        `json:"duration_minutes,omitempty"`
	QualityScore    *int        `json:"quality_score,omitempty"`
	EnergyLevel     *int        `json:"energy_level,omitempty"`
	Note            *string     `json:"note,omitempty"`
	UpdatedAt       string      `json:"updated_at"`
}

func ToHabitEntryDTO(e models.HabitEntry) HabitEntryDTO {
	return HabitEntryDTO{
		ID:              e.ID,
		LocalDate:       e.LocalDate.Format(habits.DateLayout),
		HabitType:       e.HabitType,
		Value:           e.Value,
		DurationMinutes: e.DurationMinutes,
		QualityScore:    e.QualityScore,
		EnergyLevel:     e.EnergyLevel,
		Note:            e.Note,
		UpdatedAt:       e.UpdatedAt.Format(time.RFC3339),
	}
}

func toHabitEntryDTOs(entries []models.HabitEntry) []HabitEntryDTO {
	out := make([]HabitEntryDTO, 0, len(entries))
	for _, e := range entries {
		out = append(out, ToHabitEntryDTO(e))
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// requireUser reads the authenticated user, answering 401 when absent.
func requireUser(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	userID, ok := mw.UserID(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}
	return userID, ok
}

// intParam parses an optional positive query parameter bounded by max.
func intParam(r *http.Request, name string, def, max int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > max {
		return 0, fmt.Errorf("invalid %s; expected 1..%d", name, max)
	}
	return n, nil
}

// dateParam parses an optional YYYY-MM-DD query parameter.
func dateParam(r *http.Request, name string) (*time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	d, err := habits.ParseDate(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid %s format; expected YYYY-MM-DD", name)
	}
	return &d, nil
}
