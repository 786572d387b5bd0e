package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"healthspan/internal/analytics"
	"healthspan/internal/habits"
	"healthspan/internal/models"
	"healthspan/internal/store"
	"healthspan/internal/wearable"
)

type fakeAlerts struct {
	alerts   []models.HealthAlert
	stamped  []uuid.UUID
	lastOnly bool
}

func (f *fakeAlerts) List(_ context.Context, _ uuid.UUID, unresolvedOnly bool, _ int) ([]models.HealthAlert, error) {
	f.lastOnly = unresolvedOnly
	return f.alerts, nil
}

func (f *fakeAlerts) update(_ context.Context, userID, alertID uuid.UUID) error {
	for _, a := range f.alerts {
		if a.ID == alertID && a.UserID == userID {
			f.stamped = append(f.stamped, alertID)
			return nil
		}
	}
	return store.ErrNotFound
}

func (f *fakeAlerts) Acknowledge(ctx context.Context, userID, alertID uuid.UUID) error {
	return f.update(ctx, userID, alertID)
}

func (f *fakeAlerts) Resolve(ctx context.Context, userID, alertID uuid.UUID) error {
	return f.update(ctx, userID, alertID)
}

func TestAlertsList(t *testing.T) {
	fa := &fakeAlerts{}
	h := NewAlertHandler(fa)

	rec := serve(t, http.MethodGet, "/alerts", "/alerts?unresolved=true", nil, h.List)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
	assert.True(t, fa.lastOnly)

	rec = serve(t, http.MethodGet, "/alerts", "/alerts?limit=1000", nil, h.List)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAlertsAcknowledgeAndResolve(t *testing.T) {
	mine := models.HealthAlert{ID: uuid.New(), UserID: testUser}
	theirs := models.HealthAlert{ID: uuid.New(), UserID: uuid.New()}
	fa := &fakeAlerts{alerts: []models.HealthAlert{mine, theirs}}
	h := NewAlertHandler(fa)

	rec := serve(t, http.MethodPost, "/alerts/{id}/acknowledge", "/alerts/"+mine.ID.String()+"/acknowledge", nil, h.Acknowledge)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = serve(t, http.MethodPost, "/alerts/{id}/resolve", "/alerts/"+mine.ID.String()+"/resolve", nil, h.Resolve)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = serve(t, http.MethodPost, "/alerts/{id}/resolve", "/alerts/"+theirs.ID.String()+"/resolve", nil, h.Resolve)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = serve(t, http.MethodPost, "/alerts/{id}/resolve", "/alerts/not-a-uuid/resolve", nil, h.Resolve)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Equal(t, []uuid.UUID{mine.ID, mine.ID}, fa.stamped)
}

type fakeSyncer struct {
	err    error
	result *wearable.SyncResult
	token  string
}

func (f *fakeSyncer) Connect(_ context.Context, userID uuid.UUID, token string) (*wearable.SyncResult, error) {
	f.token = token
	return f.result, f.err
}

func (f *fakeSyncer) Sync(context.Context, uuid.UUID) (*wearable.SyncResult, error) {
	return f.result, f.err
}

func (f *fakeSyncer) Activities(context.Context, uuid.UUID, int) ([]wearable.ActivityView, error) {
	return []wearable.ActivityView{}, f.err
}

func TestWearableSyncErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"ok", nil, http.StatusOK},
		{"not connected", wearable.ErrNotConnected, http.StatusNotFound},
		{"throttled", wearable.ErrRateLimited, http.StatusTooManyRequests},
		{"token revoked", fmt.Errorf("daily metrics: %w", wearable.ErrUnauthorized), http.StatusConflict},
		{"vendor down", errors.New("vendor: status 503"), http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := &fakeSyncer{err: tt.err, result: &wearable.SyncResult{UserID: testUser, Readings: 3}}
			h := NewWearableHandler(fs, zaptest.NewLogger(t))
			rec := serve(t, http.MethodPost, "/wearable/sync", "/wearable/sync", nil, h.Sync)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestWearableConnect(t *testing.T) {
	fs := &fakeSyncer{result: &wearable.SyncResult{UserID: testUser, Activities: 2}}
	h := NewWearableHandler(fs, zaptest.NewLogger(t))

	rec := serve(t, http.MethodPost, "/wearable/connect", "/wearable/connect", map[string]string{"access_token": " tok "}, h.Connect)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "tok", fs.token)

	rec = serve(t, http.MethodPost, "/wearable/connect", "/wearable/connect", map[string]string{}, h.Connect)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	fs.err = fmt.Errorf("verify wearable account: %w", wearable.ErrUnauthorized)
	rec = serve(t, http.MethodPost, "/wearable/connect", "/wearable/connect", map[string]string{"access_token": "bad"}, h.Connect)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type fakeUsers struct {
	user    *models.User
	update  store.ProfileUpdate
	deleted bool
}

func (f *fakeUsers) Get(context.Context, uuid.UUID) (*models.User, error) {
	if f.user == nil || f.deleted {
		return nil, store.ErrNotFound
	}
	return f.user, nil
}

func (f *fakeUsers) UpdateProfile(_ context.Context, _ uuid.UUID, p store.ProfileUpdate) error {
	if f.user == nil {
		return store.ErrNotFound
	}
	f.update = p
	if p.Name != nil {
		f.user.Name = p.Name
	}
	return nil
}

func (f *fakeUsers) SoftDelete(context.Context, uuid.UUID) error {
	if f.user == nil || f.deleted {
		return store.ErrNotFound
	}
	f.deleted = true
	return nil
}

func TestUserProfile(t *testing.T) {
	birth := time.Date(1990, 5, 17, 0, 0, 0, 0, time.UTC)
	fu := &fakeUsers{user: &models.User{ID: testUser, Email: "ada@example.com", BirthDate: &birth}}
	h := NewUserHandler(fu)

	rec := serve(t, http.MethodGet, "/me", "/me", nil, h.GetMe)
	require.Equal(t, http.StatusOK, rec.Code)
	var dto UserDTO
	decode(t, rec, &dto)
	require.NotNil(t, dto.BirthDate)
	assert.Equal(t, "1990-05-17", *dto.BirthDate)

	rec = serve(t, http.MethodPatch, "/me", "/me", map[string]string{"name": "Ada L"}, h.UpdateMe)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &dto)
	require.NotNil(t, dto.Name)
	assert.Equal(t, "Ada L", *dto.Name)
	assert.Nil(t, fu.update.BirthDate)

	rec = serve(t, http.MethodPatch, "/me", "/me", map[string]string{"birth_date": "17.05.1990"}, h.UpdateMe)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = serve(t, http.MethodPatch, "/me", "/me", map[string]string{"gender": "robot"}, h.UpdateMe)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(t, http.MethodDelete, "/me", "/me", nil, h.DeleteMe)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = serve(t, http.MethodGet, "/me", "/me", nil, h.GetMe)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

type fakeAnalyzer struct {
	days int
	kind habits.Kind
}

func (f *fakeAnalyzer) Today() time.Time { return time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC) }

func (f *fakeAnalyzer) Summarize(_ context.Context, userID uuid.UUID, today time.Time, days int) (*analytics.Summary, error) {
	f.days = days
	return &analytics.Summary{UserID: userID, WindowDays: days, To: today.Format(habits.DateLayout)}, nil
}

func (f *fakeAnalyzer) KindAnalytics(_ context.Context, _ uuid.UUID, kind habits.Kind, _ time.Time, days int) (*analytics.KindAnalytics, error) {
	f.kind, f.days = kind, days
	return &analytics.KindAnalytics{Habit: kind, WindowDays: days, Trend: analytics.TrendStable}, nil
}

func (f *fakeAnalyzer) Recommendations(context.Context, uuid.UUID, time.Time) ([]analytics.Recommendation, error) {
	return []analytics.Recommendation{}, nil
}

func TestAnalyticsEndpoints(t *testing.T) {
	fa := &fakeAnalyzer{}
	h := NewAnalyticsHandler(fa)

	rec := serve(t, http.MethodGet, "/habits/summary", "/habits/summary", nil, h.Summary)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 7, fa.days)

	rec = serve(t, http.MethodGet, "/habits/summary", "/habits/summary?days=0", nil, h.Summary)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(t, http.MethodGet, "/habits/{kind}/analytics", "/habits/sleep/analytics?days=14", nil, h.KindAnalytics)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, habits.Sleep, fa.kind)
	assert.Equal(t, 14, fa.days)
	var ka analytics.KindAnalytics
	decode(t, rec, &ka)
	assert.Equal(t, analytics.TrendStable, ka.Trend)

	rec = serve(t, http.MethodGet, "/habits/{kind}/analytics", "/habits/yoga/analytics", nil, h.KindAnalytics)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(t, http.MethodGet, "/recommendations", "/recommendations", nil, h.Recommendations)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"recommendations":[]}`, rec.Body.String())
}
