package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"healthspan/internal/models"
)

const readingColumns = `id, user_id, recorded_at, device, external_id, activity_type, duration, distance, elevation_gain,
	avg_speed, max_speed, avg_heart_rate, max_heart_rate, calories, vo2_max, recovery_time, training_effect,
	hrv_average, stress_level, body_battery, sleep_score, raw_data, created_at`

type BiometricStore struct {
	db *sqlx.DB
}

func NewBiometricStore(db *sqlx.DB) *BiometricStore { return &BiometricStore{db: db} }

// Save inserts r. Readings carrying an external id replace the earlier copy
// of the same vendor record, so re-syncing a day is idempotent.
func (s *BiometricStore) Save(ctx context.Context, r *models.BiometricReading) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	err := s.db.QueryRowxContext(ctx, `
		INSERT INTO biometric_readings (id, user_id, recorded_at, device, external_id, activity_type, duration, distance,
			elevation_gain, avg_speed, max_speed, avg_heart_rate, max_heart_rate, calories, vo2_max, recovery_time,
			training_effect, hrv_average, stress_level, body_battery, sleep_score, raw_data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
		ON CONFLICT (user_id, external_id) WHERE external_id IS NOT NULL
		DO UPDATE SET
		  recorded_at = EXCLUDED.recorded_at,
		  activity_type = EXCLUDED.activity_type,
		  duration = EXCLUDED.duration,
		  distance = EXCLUDED.distance,
		  calories = EXCLUDED.calories,
		  hrv_average = EXCLUDED.hrv_average,
		  stress_level = EXCLUDED.stress_level,
		  body_battery = EXCLUDED.body_battery,
		  sleep_score = EXCLUDED.sleep_score,
		  raw_data = EXCLUDED.raw_data
		RETURNING id`,
		r.ID, r.UserID, r.RecordedAt, r.Device, r.ExternalID, r.ActivityType, r.Duration, r.Distance,
		r.ElevationGain, r.AvgSpeed, r.MaxSpeed, r.AvgHeartRate, r.MaxHeartRate, r.Calories, r.VO2Max,
		r.RecoveryTime, r.TrainingEffect, r.HRVAverage, r.StressLevel, r.BodyBattery, r.SleepScore, r.RawData,
	).Scan(&r.ID)
	if err != nil {
		return fmt.Errorf("save reading: %w", err)
	}
	return nil
}

// Range returns readings recorded in [from, to), oldest first.
func (s *BiometricStore) Range(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]models.BiometricReading, error) {
	var out []models.BiometricReading
	err := s.db.SelectContext(ctx, &out,
		`SELECT `+readingColumns+` FROM biometric_readings
		 WHERE user_id = $1 AND recorded_at >= $2 AND recorded_at < $3
		 ORDER BY recorded_at`, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("reading range: %w", err)
	}
	return out, nil
}

// Activities returns the most recent activity readings.
func (s *BiometricStore) Activities(ctx context.Context, userID uuid.UUID, limit int) ([]models.BiometricReading, error) {
	var out []models.BiometricReading
	err := s.db.SelectContext(ctx, &out,
		`SELECT `+readingColumns+` FROM biometric_readings
		 WHERE user_id = $1 AND activity_type IS NOT NULL
		 ORDER BY recorded_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	return out, nil
}

type ActivityFileStore struct {
	db *sqlx.DB
}

func NewActivityFileStore(db *sqlx.DB) *ActivityFileStore { return &ActivityFileStore{db: db} }

func (s *ActivityFileStore) Insert(ctx context.Context, f *models.ActivityFile) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO activity_files (id, reading_id, user_id, object_key, file_type, file_size, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		f.ID, f.ReadingID, f.UserID, f.ObjectKey, f.FileType, f.FileSize, f.Metadata)
	if err != nil {
		return fmt.Errorf("insert activity file: %w", err)
	}
	return nil
}

// ForReadings returns the files attached to any of the given readings.
func (s *ActivityFileStore) ForReadings(ctx context.Context, userID uuid.UUID, readingIDs []uuid.UUID) ([]models.ActivityFile, error) {
	if len(readingIDs) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(
		`SELECT id, reading_id, user_id, object_key, file_type, file_size, metadata, uploaded_at
		 FROM activity_files WHERE user_id = ? AND reading_id IN (?) ORDER BY uploaded_at`,
		userID, readingIDs)
	if err != nil {
		return nil, fmt.Errorf("build activity file query: %w", err)
	}
	var out []models.ActivityFile
	if err := s.db.SelectContext(ctx, &out, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list activity files: %w", err)
	}
	return out, nil
}
