package wearable

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"healthspan/internal/blob"
	"healthspan/internal/events"
	"healthspan/internal/models"
	"healthspan/internal/services"
	"healthspan/internal/store"
)

type fakeClient struct {
	token      string
	activities []Activity
	files      map[string][]byte
	fileErr    error
}

func (c *fakeClient) Profile(context.Context) (*Profile, error) {
	if c.token != "good-token" {
		return nil, ErrUnauthorized
	}
	return &Profile{Email: "runner@example.com"}, nil
}

func (c *fakeClient) DailyMetrics(_ context.Context, day time.Time) (*DailyMetrics, error) {
	stress, hrv := 55.0, 41.0
	return &DailyMetrics{Day: day, StressLevel: &stress, HRVAverage: &hrv, Raw: []byte(`{}`)}, nil
}

func (c *fakeClient) Activities(_ context.Context, _, _ int) ([]Activity, error) {
	return c.activities, nil
}

func (c *fakeClient) ActivityFile(_ context.Context, activityID, _ string) ([]byte, error) {
	if c.fileErr != nil {
		return nil, c.fileErr
	}
	data, ok := c.files[activityID]
	if !ok {
		return nil, ErrNoFile
	}
	return data, nil
}

type fakeDialer struct {
	client *fakeClient
}

func (d *fakeDialer) Dial(_ context.Context, token string) (Client, error) {
	c := *d.client
	c.token = token
	return &c, nil
}

type memCreds struct {
	mu    sync.Mutex
	creds map[uuid.UUID]models.WearableCredential
}

func (m *memCreds) Save(_ context.Context, c *models.WearableCredential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds[c.UserID] = *c
	return nil
}

func (m *memCreds) Get(_ context.Context, userID uuid.UUID) (*models.WearableCredential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.creds[userID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &c, nil
}

func (m *memCreds) TouchSync(_ context.Context, userID uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.creds[userID]
	c.LastSync = &at
	m.creds[userID] = c
	return nil
}

// memReadings mimics the external-id upsert of the real store.
type memReadings struct {
	byExternal map[string]*models.BiometricReading
}

func (m *memReadings) Save(_ context.Context, r *models.BiometricReading) error {
	if prev, ok := m.byExternal[*r.ExternalID]; ok {
		r.ID = prev.ID
	} else if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	cp := *r
	m.byExternal[*r.ExternalID] = &cp
	return nil
}

func (m *memReadings) Activities(_ context.Context, userID uuid.UUID, _ int) ([]models.BiometricReading, error) {
	var out []models.BiometricReading
	for _, r := range m.byExternal {
		if r.UserID == userID && r.ActivityType != nil {
			out = append(out, *r)
		}
	}
	return out, nil
}

type memFiles struct {
	files []models.ActivityFile
}

func (m *memFiles) Insert(_ context.Context, f *models.ActivityFile) error {
	f.ID = uuid.New()
	m.files = append(m.files, *f)
	return nil
}

func (m *memFiles) ForReadings(_ context.Context, userID uuid.UUID, ids []uuid.UUID) ([]models.ActivityFile, error) {
	want := map[uuid.UUID]bool{}
	for _, id := range ids {
		want[id] = true
	}
	var out []models.ActivityFile
	for _, f := range m.files {
		if f.UserID == userID && want[f.ReadingID] {
			out = append(out, f)
		}
	}
	return out, nil
}

type recordingPublisher struct {
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.events = append(p.events, e)
	return nil
}

type harness struct {
	syncer    *Syncer
	client    *fakeClient
	creds     *memCreds
	readings  *memReadings
	files     *memFiles
	blobs     *blob.Memory
	publisher *recordingPublisher
}

func newHarness(t *testing.T, minInterval time.Duration) *harness {
	vault, err := services.NewEncryptionService(bytes.Repeat([]byte{1}, 32))
	require.NoError(t, err)
	h := &harness{
		client: &fakeClient{
			activities: []Activity{{
				ID:        "101",
				StartTime: time.Date(2025, 3, 14, 7, 0, 0, 0, time.UTC),
				Type:      "cycling",
				HasTrack:  true,
			}},
			files: map[string][]byte{"101": []byte("<gpx/>")},
		},
		creds:     &memCreds{creds: map[uuid.UUID]models.WearableCredential{}},
		readings:  &memReadings{byExternal: map[string]*models.BiometricReading{}},
		files:     &memFiles{},
		blobs:     blob.NewMemory(),
		publisher: &recordingPublisher{},
	}
	h.syncer = NewSyncer(SyncerDeps{
		Credentials: h.creds,
		Readings:    h.readings,
		Files:       h.files,
		Blobs:       h.blobs,
		Vault:       vault,
		Dialer:      &fakeDialer{client: h.client},
		Publisher:   h.publisher,
		Logger:      zaptest.NewLogger(t),
		MinInterval: minInterval,
	})
	h.syncer.now = func() time.Time { return time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC) }
	return h
}

func TestConnectStoresEncryptedTokenAndSyncs(t *testing.T) {
	h := newHarness(t, 0)
	user := uuid.New()

	res, err := h.syncer.Connect(context.Background(), user, "good-token")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Readings)
	assert.Equal(t, 1, res.Activities)
	assert.Equal(t, 1, res.Files)

	cred := h.creds.creds[user]
	assert.Equal(t, "runner@example.com", cred.AccountEmail)
	assert.NotContains(t, cred.EncryptedToken, "good-token")
	require.NotNil(t, cred.LastSync)

	daily := h.readings.byExternal["daily:2025-03-15"]
	require.NotNil(t, daily)
	assert.Equal(t, 55.0, *daily.StressLevel)

	activity := h.readings.byExternal["activity:101"]
	require.NotNil(t, activity)
	key := blob.ActivityKey(user, activity.ID, "gpx")
	data, contentType, ok := h.blobs.Get(key)
	require.True(t, ok)
	assert.Equal(t, "<gpx/>", string(data))
	assert.Equal(t, "application/gpx+xml", contentType)

	require.Len(t, h.publisher.events, 1)
	assert.Equal(t, events.WearableDataSynced, h.publisher.events[0].Type)
}

func TestConnectRejectsBadToken(t *testing.T) {
	h := newHarness(t, 0)
	_, err := h.syncer.Connect(context.Background(), uuid.New(), "bad-token")
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Empty(t, h.creds.creds)
}

func TestSyncIsIdempotent(t *testing.T) {
	h := newHarness(t, 0)
	user := uuid.New()
	_, err := h.syncer.Connect(context.Background(), user, "good-token")
	require.NoError(t, err)

	res, err := h.syncer.Sync(context.Background(), user)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Files)
	assert.Len(t, h.readings.byExternal, 2)
	assert.Len(t, h.files.files, 1)
}

func TestSyncWithoutCredential(t *testing.T) {
	h := newHarness(t, 0)
	_, err := h.syncer.Sync(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestSyncSurvivesFileFailure(t *testing.T) {
	h := newHarness(t, 0)
	h.client.fileErr = errors.New("export timed out")
	user := uuid.New()

	res, err := h.syncer.Connect(context.Background(), user, "good-token")
	require.NoError(t, err)
	assert.Equal(t, 0, res.Files)
	assert.Equal(t, 1, res.Activities)
	assert.Empty(t, h.files.files)
}

func TestSyncThrottledPerUser(t *testing.T) {
	h := newHarness(t, time.Hour)
	alice, bob := uuid.New(), uuid.New()
	for _, u := range []uuid.UUID{alice, bob} {
		_, err := h.syncer.Connect(context.Background(), u, "good-token")
		require.NoError(t, err)
	}

	_, err := h.syncer.Sync(context.Background(), alice)
	require.NoError(t, err)
	_, err = h.syncer.Sync(context.Background(), alice)
	assert.ErrorIs(t, err, ErrRateLimited)
	_, err = h.syncer.Sync(context.Background(), bob)
	assert.NoError(t, err)
}

func TestActivitiesFeed(t *testing.T) {
	h := newHarness(t, 0)
	user := uuid.New()
	_, err := h.syncer.Connect(context.Background(), user, "good-token")
	require.NoError(t, err)

	feed, err := h.syncer.Activities(context.Background(), user, 10)
	require.NoError(t, err)
	require.Len(t, feed, 1)
	require.Len(t, feed[0].Files, 1)
	assert.Equal(t, "gpx", feed[0].Files[0].Type)
	assert.Contains(t, feed[0].Files[0].URL, "mem://users/")
	assert.Equal(t, int64(6), feed[0].Files[0].Size)
}

func TestUserLimiterDropsIdleBuckets(t *testing.T) {
	l := newUserLimiter(time.Minute, 1)
	start := time.Date(2025, 3, 15, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 1000; i++ {
		assert.True(t, l.allow(uuid.NewString(), start))
	}
	assert.Equal(t, 1000, l.size())

	alice := uuid.NewString()
	assert.True(t, l.allow(alice, start.Add(30*time.Second)))
	assert.False(t, l.allow(alice, start.Add(40*time.Second)))

	assert.True(t, l.allow(alice, start.Add(2*time.Minute)), "bucket refilled")
	assert.Equal(t, 1, l.size(), "idle users are released")
}
