package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"healthspan/internal/wearable"
)

type WearableSyncer interface {
	Connect(ctx context.Context, userID uuid.UUID, token string) (*wearable.SyncResult, error)
	Sync(ctx context.Context, userID uuid.UUID) (*wearable.SyncResult, error)
	Activities(ctx context.Context, userID uuid.UUID, limit int) ([]wearable.ActivityView, error)
}

type WearableHandler struct {
	syncer WearableSyncer
	logger *zap.Logger
}

func NewWearableHandler(syncer WearableSyncer, logger *zap.Logger) *WearableHandler {
	return &WearableHandler{syncer: syncer, logger: logger}
}

// writeSyncError maps sync failures onto HTTP statuses.
func (h *WearableHandler) writeSyncError(w http.ResponseWriter, userID uuid.UUID, err error) {
	switch {
	case errors.Is(err, wearable.ErrNotConnected):
		http.Error(w, "wearable not connected", http.StatusNotFound)
	case errors.Is(err, wearable.ErrRateLimited):
		w.Header().Set("Retry-After", "60")
		http.Error(w, "sync requested too often", http.StatusTooManyRequests)
	case errors.Is(err, wearable.ErrUnauthorized):
		http.Error(w, "wearable token rejected; reconnect the device", http.StatusConflict)
	default:
		h.logger.Error("wearable sync failed", zap.String("user_id", userID.String()), zap.Error(err))
		http.Error(w, "could not sync wearable data", http.StatusBadGateway)
	}
}

// Connect godoc
// @Summary Connect a wearable account
// @Description Verifies the vendor access token, stores it encrypted and runs a first sync
// @Tags wearable
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body object true "{ access_token }"
// @Success 200 {object} wearable.SyncResult
// @Failure 400 {string} string "Bad request"
// @Router /wearable/connect [post]
func (h *WearableHandler) Connect(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var body struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || strings.TrimSpace(body.AccessToken) == "" {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	res, err := h.syncer.Connect(r.Context(), userID, strings.TrimSpace(body.AccessToken))
	if errors.Is(err, wearable.ErrUnauthorized) {
		http.Error(w, "wearable token rejected", http.StatusBadRequest)
		return
	}
	if err != nil {
		h.writeSyncError(w, userID, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *WearableHandler) Sync(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	res, err := h.syncer.Sync(r.Context(), userID)
	if err != nil {
		h.writeSyncError(w, userID, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Activities godoc
// @Summary Recent wearable activities
// @Description Activities with short-lived download links for their stored files
// @Tags wearable
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Max activities (default 10)"
// @Success 200 {array} wearable.ActivityView
// @Router /wearable/activities [get]
func (h *WearableHandler) Activities(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	limit, err := intParam(r, "limit", 10, 100)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	views, err := h.syncer.Activities(r.Context(), userID, limit)
	if err != nil {
		http.Error(w, "could not fetch activities", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, views)
}
