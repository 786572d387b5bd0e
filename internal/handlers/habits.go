package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"healthspan/internal/habits"
	"healthspan/internal/models"
	"healthspan/internal/store"
)

const maxImportEntries = 1000

type HabitStore interface {
	Upsert(ctx context.Context, e *models.HabitEntry) (bool, error)
	ImportBatch(ctx context.Context, userID uuid.UUID, entries []models.HabitEntry) (int, error)
	List(ctx context.Context, f store.HabitFilter) ([]models.HabitEntry, error)
	Delete(ctx context.Context, userID uuid.UUID, date time.Time, habitType string) error
}

// HabitTracker reacts to newly written entries.
type HabitTracker interface {
	HabitTracked(ctx context.Context, entry models.HabitEntry) error
	AnalyzeCorrelations(ctx context.Context, userID uuid.UUID, today time.Time, kinds ...habits.Kind) ([]models.HealthAlert, error)
	Today() time.Time
}

type HabitHandler struct {
	habits  HabitStore
	tracker HabitTracker
	logger  *zap.Logger
}

func NewHabitHandler(hs HabitStore, tracker HabitTracker, logger *zap.Logger) *HabitHandler {
	return &HabitHandler{habits: hs, tracker: tracker, logger: logger}
}

type habitRequest struct {
	LocalDate       string          `json:"local_date"` // YYYY-MM-DD provided by frontend
	HabitType       string          `json:"habit_type"`
	Value           json.RawMessage `json:"value"`
	DurationMinutes *int            `json:"duration_minutes"`
	QualityScore    *int            `json:"quality_score"`
	EnergyLevel     *int            `json:"energy_level"`
	Note            *string         `json:"note"`
}

func inScoreRange(v *int) bool { return v == nil || (*v >= 1 && *v <= 10) }

// entry validates req and builds the entry to store.
func (req habitRequest) entry(userID uuid.UUID) (models.HabitEntry, error) {
	day, err := habits.ParseDate(req.LocalDate)
	if err != nil {
		return models.HabitEntry{}, errors.New("invalid local_date format; expected YYYY-MM-DD")
	}
	kind, err := habits.ParseKind(req.HabitType)
	if err != nil {
		return models.HabitEntry{}, err
	}
	if _, err := habits.ParseValue(kind, req.Value); err != nil {
		return models.HabitEntry{}, err
	}
	if !inScoreRange(req.QualityScore) || !inScoreRange(req.EnergyLevel) {
		return models.HabitEntry{}, errors.New("quality_score and energy_level must be between 1 and 10")
	}
	if req.DurationMinutes != nil && *req.DurationMinutes < 0 {
		return models.HabitEntry{}, errors.New("duration_minutes must not be negative")
	}
	return models.HabitEntry{
		UserID:          userID,
		LocalDate:       day,
		HabitType:       string(kind),
		Value:           models.JSON(req.Value),
		DurationMinutes: req.DurationMinutes,
		QualityScore:    req.QualityScore,
		EnergyLevel:     req.EnergyLevel,
		Note:            req.Note,
	}, nil
}

// Upsert godoc
// @Summary Log a habit
// @Description Creates or replaces the entry for the same user, date and habit type, then runs correlation analysis for that habit
// @Tags habits
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param entry body habitRequest true "Habit entry"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {string} string "Bad request"
// @Failure 500 {string} string "Internal server error"
// @Router /habits [post]
func (h *HabitHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req habitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	entry, err := req.entry(userID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	inserted, err := h.habits.Upsert(r.Context(), &entry)
	if err != nil {
		h.logger.Error("save habit", zap.String("user_id", userID.String()), zap.Error(err))
		http.Error(w, "could not save", http.StatusInternalServerError)
		return
	}

	// The entry is stored; analysis problems are reported but do not fail the request.
	if err := h.tracker.HabitTracked(r.Context(), entry); err != nil {
		h.logger.Warn("habit analysis failed",
			zap.String("user_id", userID.String()),
			zap.String("habit_type", entry.HabitType),
			zap.Error(err))
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":    "Entry saved successfully",
		"id":         entry.ID,
		"local_date": entry.LocalDate.Format(habits.DateLayout),
		"habit_type": entry.HabitType,
		"is_update":  !inserted,
	})
}

// List godoc
// @Summary List habit entries
// @Tags habits
// @Produce json
// @Security BearerAuth
// @Param start_date query string false "YYYY-MM-DD"
// @Param end_date query string false "YYYY-MM-DD"
// @Param habit_type query string false "Habit type"
// @Success 200 {array} HabitEntryDTO
// @Router /habits [get]
func (h *HabitHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	f := store.HabitFilter{UserID: userID, Limit: 500}
	var err error
	if f.From, err = dateParam(r, "start_date"); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if f.To, err = dateParam(r, "end_date"); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if t := r.URL.Query().Get("habit_type"); t != "" {
		kind, err := habits.ParseKind(t)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.HabitType = string(kind)
	}

	entries, err := h.habits.List(r.Context(), f)
	if err != nil {
		http.Error(w, "could not fetch", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, toHabitEntryDTOs(entries))
}

// Delete removes one entry identified by { "local_date", "habit_type" }.
func (h *HabitHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var body struct {
		LocalDate string `json:"local_date"`
		HabitType string `json:"habit_type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.LocalDate == "" || body.HabitType == "" {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	day, err := habits.ParseDate(body.LocalDate)
	if err != nil {
		http.Error(w, "invalid local_date format; expected YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	err = h.habits.Delete(r.Context(), userID, day, body.HabitType)
	switch {
	case errors.Is(err, store.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
		return
	case err != nil:
		http.Error(w, "could not delete", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type ImportRequest struct {
	Entries []habitRequest `json:"entries"`
}

// Import godoc
// @Summary Import habit entries
// @Description Upserts a batch of entries in one transaction. Nothing is written if any entry is invalid.
// @Tags habits
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param data body ImportRequest true "Entries"
// @Success 201 {object} map[string]interface{} "Entries imported"
// @Failure 400 {string} string "Bad request"
// @Failure 500 {string} string "Internal server error"
// @Router /habits/import [post]
func (h *HabitHandler) Import(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req ImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Entries) == 0 {
		http.Error(w, "no entries provided", http.StatusBadRequest)
		return
	}
	if len(req.Entries) > maxImportEntries {
		http.Error(w, fmt.Sprintf("at most %d entries per import", maxImportEntries), http.StatusBadRequest)
		return
	}

	entries := make([]models.HabitEntry, 0, len(req.Entries))
	kinds := map[habits.Kind]bool{}
	for i, item := range req.Entries {
		e, err := item.entry(userID)
		if err != nil {
			http.Error(w, fmt.Sprintf("entry %d: %v", i, err), http.StatusBadRequest)
			return
		}
		entries = append(entries, e)
		kinds[habits.Kind(e.HabitType)] = true
	}

	n, err := h.habits.ImportBatch(r.Context(), userID, entries)
	if err != nil {
		h.logger.Error("import habits", zap.String("user_id", userID.String()), zap.Error(err))
		http.Error(w, "could not import entries", http.StatusInternalServerError)
		return
	}

	imported := make([]habits.Kind, 0, len(kinds))
	for k := range kinds {
		imported = append(imported, k)
	}
	sort.Slice(imported, func(i, j int) bool { return imported[i] < imported[j] })
	if _, err := h.tracker.AnalyzeCorrelations(r.Context(), userID, h.tracker.Today(), imported...); err != nil {
		h.logger.Warn("post-import analysis failed", zap.String("user_id", userID.String()), zap.Error(err))
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message":  "Entries imported successfully",
		"imported": n,
	})
}
