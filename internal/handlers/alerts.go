package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"healthspan/internal/models"
	"healthspan/internal/store"
)

type AlertStore interface {
	List(ctx context.Context, userID uuid.UUID, unresolvedOnly bool, limit int) ([]models.HealthAlert, error)
	Acknowledge(ctx context.Context, userID, alertID uuid.UUID) error
	Resolve(ctx context.Context, userID, alertID uuid.UUID) error
}

type AlertHandler struct {
	alerts AlertStore
}

func NewAlertHandler(alerts AlertStore) *AlertHandler { return &AlertHandler{alerts: alerts} }

// List godoc
// @Summary List health alerts
// @Tags alerts
// @Produce json
// @Security BearerAuth
// @Param unresolved query bool false "Only unresolved alerts"
// @Param limit query int false "Max alerts (default 50)"
// @Success 200 {array} models.HealthAlert
// @Router /alerts [get]
func (h *AlertHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	limit, err := intParam(r, "limit", 50, 200)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	unresolved := r.URL.Query().Get("unresolved") == "true"
	alerts, err := h.alerts.List(r.Context(), userID, unresolved, limit)
	if err != nil {
		http.Error(w, "could not fetch alerts", http.StatusInternalServerError)
		return
	}
	if alerts == nil {
		alerts = []models.HealthAlert{}
	}
	writeJSON(w, http.StatusOK, alerts)
}

func (h *AlertHandler) Acknowledge(w http.ResponseWriter, r *http.Request) {
	h.stamp(w, r, h.alerts.Acknowledge)
}

func (h *AlertHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	h.stamp(w, r, h.alerts.Resolve)
}

func (h *AlertHandler) stamp(w http.ResponseWriter, r *http.Request, update func(context.Context, uuid.UUID, uuid.UUID) error) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	alertID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid alert id", http.StatusBadRequest)
		return
	}
	err = update(r.Context(), userID, alertID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
		return
	case err != nil:
		http.Error(w, "could not update alert", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
