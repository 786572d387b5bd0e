package wearable

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"healthspan/internal/blob"
	"healthspan/internal/events"
	"healthspan/internal/metrics"
	"healthspan/internal/models"
	"healthspan/internal/store"
)

var (
	ErrNotConnected = errors.New("wearable not connected")
	ErrRateLimited  = errors.New("wearable sync rate limited")
)

type CredentialStore interface {
	Save(ctx context.Context, c *models.WearableCredential) error
	Get(ctx context.Context, userID uuid.UUID) (*models.WearableCredential, error)
	TouchSync(ctx context.Context, userID uuid.UUID, at time.Time) error
}

type ReadingStore interface {
	Save(ctx context.Context, r *models.BiometricReading) error
	Activities(ctx context.Context, userID uuid.UUID, limit int) ([]models.BiometricReading, error)
}

type FileStore interface {
	Insert(ctx context.Context, f *models.ActivityFile) error
	ForReadings(ctx context.Context, userID uuid.UUID, readingIDs []uuid.UUID) ([]models.ActivityFile, error)
}

type TokenVault interface {
	EncryptCredential(cred *models.WearableCredential, token string) error
	DecryptCredential(cred *models.WearableCredential) (string, error)
}

// Session is one user's authenticated connection to the vendor, built for a
// single operation from the stored credential.
type Session struct {
	UserID uuid.UUID
	Client Client
}

type SyncerDeps struct {
	Credentials CredentialStore
	Readings    ReadingStore
	Files       FileStore
	Blobs       blob.Store
	Vault       TokenVault
	Dialer      Dialer
	Publisher   events.Publisher
	Logger      *zap.Logger
	// ActivityLimit is how many recent activities each sync fetches.
	ActivityLimit int
	// MinInterval throttles syncs per user; zero disables the throttle.
	MinInterval time.Duration
}

type Syncer struct {
	creds         CredentialStore
	readings      ReadingStore
	files         FileStore
	blobs         blob.Store
	vault         TokenVault
	dialer        Dialer
	publisher     events.Publisher
	logger        *zap.Logger
	activityLimit int
	throttle      *userLimiter
	now           func() time.Time
}

func NewSyncer(d SyncerDeps) *Syncer {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.ActivityLimit <= 0 {
		d.ActivityLimit = 10
	}
	s := &Syncer{
		creds:         d.Credentials,
		readings:      d.Readings,
		files:         d.Files,
		blobs:         d.Blobs,
		vault:         d.Vault,
		dialer:        d.Dialer,
		publisher:     d.Publisher,
		logger:        d.Logger,
		activityLimit: d.ActivityLimit,
		now:           time.Now,
	}
	if d.MinInterval > 0 {
		s.throttle = newUserLimiter(d.MinInterval, 1)
	}
	return s
}

// Connect verifies token against the vendor, stores it encrypted and runs
// the first sync. The credential is kept even when that sync fails.
func (s *Syncer) Connect(ctx context.Context, userID uuid.UUID, token string) (*SyncResult, error) {
	client, err := s.dialer.Dial(ctx, token)
	if err != nil {
		return nil, err
	}
	profile, err := client.Profile(ctx)
	if err != nil {
		return nil, fmt.Errorf("verify wearable account: %w", err)
	}
	cred := &models.WearableCredential{UserID: userID, AccountEmail: profile.Email}
	if err := s.vault.EncryptCredential(cred, token); err != nil {
		return nil, fmt.Errorf("encrypt token: %w", err)
	}
	if err := s.creds.Save(ctx, cred); err != nil {
		return nil, err
	}
	s.logger.Info("wearable connected", zap.String("user_id", userID.String()))
	return s.sync(ctx, &Session{UserID: userID, Client: client})
}

// Session opens a vendor session from the user's stored credential.
func (s *Syncer) Session(ctx context.Context, userID uuid.UUID) (*Session, error) {
	cred, err := s.creds.Get(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotConnected
	}
	if err != nil {
		return nil, err
	}
	token, err := s.vault.DecryptCredential(cred)
	if err != nil {
		return nil, fmt.Errorf("decrypt token: %w", err)
	}
	client, err := s.dialer.Dial(ctx, token)
	if err != nil {
		return nil, err
	}
	return &Session{UserID: userID, Client: client}, nil
}

type SyncResult struct {
	UserID     uuid.UUID `json:"user_id"`
	Readings   int       `json:"readings"`
	Activities int       `json:"activities"`
	Files      int       `json:"files"`
	SyncedAt   time.Time `json:"synced_at"`
}

// Sync pulls today's wellness summary and the latest activities for userID.
func (s *Syncer) Sync(ctx context.Context, userID uuid.UUID) (*SyncResult, error) {
	if s.throttle != nil && !s.throttle.allow(userID.String(), s.now()) {
		return nil, ErrRateLimited
	}
	sess, err := s.Session(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.sync(ctx, sess)
}

func (s *Syncer) sync(ctx context.Context, sess *Session) (*SyncResult, error) {
	res, err := s.pull(ctx, sess)
	records := 0
	if res != nil {
		records = res.Readings
	}
	metrics.RecordWearableSync(records, err == nil)
	if err != nil {
		s.logger.Error("wearable sync failed", zap.String("user_id", sess.UserID.String()), zap.Error(err))
		return nil, err
	}
	return res, nil
}

func (s *Syncer) pull(ctx context.Context, sess *Session) (*SyncResult, error) {
	now := s.now().UTC()
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	var daily *DailyMetrics
	var activities []Activity
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		daily, err = sess.Client.DailyMetrics(gctx, day)
		return err
	})
	g.Go(func() error {
		var err error
		activities, err = sess.Client.Activities(gctx, 0, s.activityLimit)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &SyncResult{UserID: sess.UserID, SyncedAt: now}
	if err := s.readings.Save(ctx, dailyReading(sess.UserID, daily)); err != nil {
		return nil, err
	}
	result.Readings++

	for _, a := range activities {
		r := activityReading(sess.UserID, a)
		if err := s.readings.Save(ctx, r); err != nil {
			return nil, err
		}
		result.Readings++
		result.Activities++
		if a.HasTrack {
			ok, err := s.attachFile(ctx, sess, r.ID, a.ID, "gpx")
			if err != nil {
				s.logger.Warn("activity file download failed",
					zap.String("user_id", sess.UserID.String()),
					zap.String("activity_id", a.ID),
					zap.Error(err))
			}
			if ok {
				result.Files++
			}
		}
	}

	if err := s.creds.TouchSync(ctx, sess.UserID, now); err != nil {
		return nil, err
	}
	if s.publisher != nil {
		err := s.publisher.Publish(ctx, events.New(events.WearableDataSynced, sess.UserID, map[string]any{
			"metrics_count": result.Readings,
			"activities":    result.Activities,
			"files":         result.Files,
		}))
		metrics.RecordEvent(string(events.WearableDataSynced), err == nil)
		if err != nil {
			s.logger.Warn("publish sync event failed", zap.String("user_id", sess.UserID.String()), zap.Error(err))
		}
	}
	return result, nil
}

// attachFile downloads one export format into blob storage unless the
// reading already has it.
func (s *Syncer) attachFile(ctx context.Context, sess *Session, readingID uuid.UUID, activityID, format string) (bool, error) {
	existing, err := s.files.ForReadings(ctx, sess.UserID, []uuid.UUID{readingID})
	if err != nil {
		return false, err
	}
	for _, f := range existing {
		if f.FileType == format {
			return false, nil
		}
	}

	data, err := sess.Client.ActivityFile(ctx, activityID, format)
	if errors.Is(err, ErrNoFile) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	key := blob.ActivityKey(sess.UserID, readingID, format)
	if _, err := s.blobs.Put(ctx, key, bytes.NewReader(data), blob.ContentType(format)); err != nil {
		return false, err
	}
	err = s.files.Insert(ctx, &models.ActivityFile{
		ReadingID: readingID,
		UserID:    sess.UserID,
		ObjectKey: key,
		FileType:  format,
		FileSize:  int64(len(data)),
		Metadata: models.MustJSON(map[string]string{
			"activity_id":   activityID,
			"file_format":   format,
			"download_date": s.now().UTC().Format(time.RFC3339),
		}),
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

func dailyReading(userID uuid.UUID, m *DailyMetrics) *models.BiometricReading {
	ext := "daily:" + m.Day.Format("2006-01-02")
	return &models.BiometricReading{
		UserID:      userID,
		RecordedAt:  m.Day,
		ExternalID:  &ext,
		HRVAverage:  m.HRVAverage,
		StressLevel: m.StressLevel,
		BodyBattery: m.BodyBattery,
		SleepScore:  m.SleepScore,
		RawData:     models.JSON(m.Raw),
	}
}

func activityReading(userID uuid.UUID, a Activity) *models.BiometricReading {
	ext := "activity:" + a.ID
	r := &models.BiometricReading{
		UserID:         userID,
		RecordedAt:     a.StartTime,
		ExternalID:     &ext,
		Duration:       a.Duration,
		Distance:       a.Distance,
		ElevationGain:  a.ElevationGain,
		AvgSpeed:       a.AvgSpeed,
		MaxSpeed:       a.MaxSpeed,
		AvgHeartRate:   a.AvgHeartRate,
		MaxHeartRate:   a.MaxHeartRate,
		Calories:       a.Calories,
		VO2Max:         a.VO2Max,
		RecoveryTime:   a.RecoveryTime,
		TrainingEffect: a.TrainingEffect,
		RawData:        models.JSON(a.Raw),
	}
	if a.Device != "" {
		r.Device = &a.Device
	}
	if a.Type != "" {
		r.ActivityType = &a.Type
	}
	return r
}

// userLimiter hands out one token bucket per user. A bucket unused for idle
// has refilled completely, so it is dropped and recreated on the next call.
type userLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*userBucket
	rate      rate.Limit
	burst     int
	idle      time.Duration
	lastSweep time.Time
}

type userBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newUserLimiter(interval time.Duration, burst int) *userLimiter {
	return &userLimiter{
		limiters: make(map[string]*userBucket),
		rate:     rate.Every(interval),
		burst:    burst,
		idle:     interval * time.Duration(burst),
	}
}

func (l *userLimiter) allow(key string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) >= l.idle {
		for k, b := range l.limiters {
			if now.Sub(b.lastSeen) >= l.idle {
				delete(l.limiters, k)
			}
		}
		l.lastSweep = now
	}
	b, ok := l.limiters[key]
	if !ok {
		b = &userBucket{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.limiters[key] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

func (l *userLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}
