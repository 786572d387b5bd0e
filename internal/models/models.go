package models

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	Email     string     `db:"email" json:"email"`
	GoogleID  *string    `db:"google_id" json:"-"`
	Name      *string    `db:"name" json:"name,omitempty"`
	AvatarURL *string    `db:"avatar_url" json:"avatar_url,omitempty"`
	BirthDate *time.Time `db:"birth_date" json:"birth_date,omitempty"`
	Gender    *string    `db:"gender" json:"gender,omitempty"`
	IsAdmin   bool       `db:"is_admin" json:"is_admin"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	LastLogin *time.Time `db:"last_login" json:"last_login,omitempty"`
	DeletedAt *time.Time `db:"deleted_at" json:"-"`
}

// HabitEntry is one user's record of one habit kind on one calendar day.
// Value holds the JSON payload as stored; habits.ParseValue interprets it.
type HabitEntry struct {
	ID              uuid.UUID `db:"id" json:"id"`
	UserID          uuid.UUID `db:"user_id" json:"user_id"`
	LocalDate       time.Time `db:"local_date" json:"local_date"`
	HabitType       string    `db:"habit_type" json:"habit_type"`
	Value           JSON      `db:"value" json:"value"`
	DurationMinutes *int      `db:"duration_minutes" json:"duration_minutes,omitempty"`
	QualityScore    *int      `db:"quality_score" json:"quality_score,omitempty"`
	EnergyLevel     *int      `db:"energy_level" json:"energy_level,omitempty"`
	Note            *string   `db:"note" json:"note,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// BiometricReading is a wearable-device sample: either a daily health
// snapshot (HRV, stress, sleep) or an activity summary.
type BiometricReading struct {
	ID             uuid.UUID `db:"id" json:"id"`
	UserID         uuid.UUID `db:"user_id" json:"user_id"`
	RecordedAt     time.Time `db:"recorded_at" json:"recorded_at"`
	Device         *string   `db:"device" json:"device,omitempty"`
	ExternalID     *string   `db:"external_id" json:"external_id,omitempty"`
	ActivityType   *string   `db:"activity_type" json:"activity_type,omitempty"`
	Duration       *int      `db:"duration" json:"duration,omitempty"`
	Distance       *float64  `db:"distance" json:"distance,omitempty"`
	ElevationGain  *float64  `db:"elevation_gain" json:"elevation_gain,omitempty"`
	AvgSpeed       *float64  `db:"avg_speed" json:"avg_speed,omitempty"`
	MaxSpeed       *float64  `db:"max_speed" json:"max_speed,omitempty"`
	AvgHeartRate   *int      `db:"avg_heart_rate" json:"avg_heart_rate,omitempty"`
	MaxHeartRate   *int      `db:"max_heart_rate" json:"max_heart_rate,omitempty"`
	Calories       *int      `db:"calories" json:"calories,omitempty"`
	VO2Max         *float64  `db:"vo2_max" json:"vo2_max,omitempty"`
	RecoveryTime   *int      `db:"recovery_time" json:"recovery_time,omitempty"`
	TrainingEffect *float64  `db:"training_effect" json:"training_effect,omitempty"`
	HRVAverage     *float64  `db:"hrv_average" json:"hrv_average,omitempty"`
	StressLevel    *float64  `db:"stress_level" json:"stress_level,omitempty"`
	BodyBattery    *float64  `db:"body_battery" json:"body_battery,omitempty"`
	SleepScore     *float64  `db:"sleep_score" json:"sleep_score,omitempty"`
	RawData        JSON      `db:"raw_data" json:"-"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

type AlertKind string

const (
	AlertStressPattern     AlertKind = "stress_pattern"
	AlertPoorSleep         AlertKind = "poor_sleep"
	AlertLowHRVTrend       AlertKind = "low_hrv_trend"
	AlertMissingHabits     AlertKind = "missing_habits"
	AlertBiomarkerAbnormal AlertKind = "biomarker_abnormal"
	AlertRecoveryNeeded    AlertKind = "recovery_needed"
)

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

type HealthAlert struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	UserID         uuid.UUID  `db:"user_id" json:"user_id"`
	Kind           AlertKind  `db:"alert_type" json:"alert_type"`
	Severity       Severity   `db:"severity" json:"severity"`
	Message        string     `db:"message" json:"message"`
	Data           JSON       `db:"data" json:"data,omitempty"`
	TriggeredAt    time.Time  `db:"triggered_at" json:"triggered_at"`
	AcknowledgedAt *time.Time `db:"acknowledged_at" json:"acknowledged_at,omitempty"`
	ResolvedAt     *time.Time `db:"resolved_at" json:"resolved_at,omitempty"`
}

// WearableCredential holds the vendor access token, encrypted at rest.
type WearableCredential struct {
	UserID         uuid.UUID  `db:"user_id" json:"user_id"`
	AccountEmail   string     `db:"account_email" json:"account_email"`
	EncryptedToken string     `db:"encrypted_token" json:"-"`
	LastSync       *time.Time `db:"last_sync" json:"last_sync,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}

type ActivityFile struct {
	ID         uuid.UUID `db:"id" json:"id"`
	ReadingID  uuid.UUID `db:"reading_id" json:"reading_id"`
	UserID     uuid.UUID `db:"user_id" json:"user_id"`
	ObjectKey  string    `db:"object_key" json:"object_key"`
	FileType   string    `db:"file_type" json:"file_type"`
	FileSize   int64     `db:"file_size" json:"file_size"`
	Metadata   JSON      `db:"metadata" json:"metadata,omitempty"`
	UploadedAt time.Time `db:"uploaded_at" json:"uploaded_at"`
}
