package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"healthspan/internal/habits"
	"healthspan/internal/models"
	"healthspan/internal/store"
)

type UserStore interface {
	Get(ctx context.Context, id uuid.UUID) (*models.User, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, p store.ProfileUpdate) error
	SoftDelete(ctx context.Context, id uuid.UUID) error
}

type UserHandler struct {
	users UserStore
}

func NewUserHandler(users UserStore) *UserHandler {
	return &UserHandler{users: users}
}

var genders = map[string]bool{"": true, "female": true, "male": true, "other": true}

// GetMe returns the current user's profile
func (h *UserHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	u, err := h.users.Get(r.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		http.Error(w, "could not fetch user", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, ToUserDTO(*u))
}

// UpdateMe updates provided fields on the current user's profile
func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var body struct {
		Name      *string `json:"name"`
		AvatarURL *string `json:"avatar_url"`
		BirthDate *string `json:"birth_date"` // YYYY-MM-DD, "" clears
		Gender    *string `json:"gender"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if body.BirthDate != nil && *body.BirthDate != "" {
		if _, err := habits.ParseDate(*body.BirthDate); err != nil {
			http.Error(w, "invalid birth_date; expected YYYY-MM-DD", http.StatusBadRequest)
			return
		}
	}
	if body.Gender != nil && !genders[*body.Gender] {
		http.Error(w, "invalid gender", http.StatusBadRequest)
		return
	}

	err := h.users.UpdateProfile(r.Context(), userID, store.ProfileUpdate{
		Name:      body.Name,
		AvatarURL: body.AvatarURL,
		BirthDate: body.BirthDate,
		Gender:    body.Gender,
	})
	switch {
	case errors.Is(err, store.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
		return
	case err != nil:
		http.Error(w, "could not update", http.StatusInternalServerError)
		return
	}
	h.GetMe(w, r)
}

// DeleteMe deactivates the account. Data is kept; signing in again restores it.
func (h *UserHandler) DeleteMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	if err := h.users.SoftDelete(r.Context(), userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		http.Error(w, "could not delete", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
