package db

import (
	"context"

	"github.com/jmoiron/sqlx"
)

func RunMigrations(ctx context.Context, db *sqlx.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS users (
    id UUID PRIMARY KEY,
    email TEXT UNIQUE NOT NULL,
    google_id TEXT UNIQUE,
    name TEXT,
    avatar_url TEXT,
    birth_date DATE,
    gender TEXT CHECK (gender IN ('male', 'female', 'other')),
    is_admin BOOLEAN NOT NULL DEFAULT false,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    last_login TIMESTAMPTZ,
    deleted_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS habit_entries (
    id UUID PRIMARY KEY,
    user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    local_date DATE NOT NULL,
    habit_type TEXT NOT NULL,
    value JSONB NOT NULL,
    duration_minutes INTEGER,
    quality_score INTEGER CHECK (quality_score BETWEEN 1 AND 10),
    energy_level INTEGER CHECK (energy_level BETWEEN 1 AND 10),
    note TEXT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (user_id, local_date, habit_type)
);

CREATE TABLE IF NOT EXISTS biometric_readings (
    id UUID PRIMARY KEY,
    user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    recorded_at TIMESTAMPTZ NOT NULL,
    device TEXT,
    external_id TEXT,
    activity_type TEXT,
    duration INTEGER,
    distance DOUBLE PRECISION,
    elevation_gain DOUBLE PRECISION,
    avg_speed DOUBLE PRECISION,
    max_speed DOUBLE PRECISION,
    avg_heart_rate INTEGER,
    max_heart_rate INTEGER,
    calories INTEGER,
    vo2_max DOUBLE PRECISION,
    recovery_time INTEGER,
    training_effect DOUBLE PRECISION,
    hrv_average DOUBLE PRECISION,
    stress_level DOUBLE PRECISION,
    body_battery DOUBLE PRECISION,
    sleep_score DOUBLE PRECISION,
    raw_data JSONB,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS health_alerts (
    id UUID PRIMARY KEY,
    user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    alert_type TEXT NOT NULL CHECK (alert_type IN (
        'stress_pattern', 'poor_sleep', 'low_hrv_trend',
        'missing_habits', 'biomarker_abnormal', 'recovery_needed'
    )),
    severity TEXT NOT NULL CHECK (severity IN ('info', 'warning', 'critical')),
    message TEXT NOT NULL,
    data JSONB,
    triggered_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    acknowledged_at TIMESTAMPTZ,
    resolved_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS wearable_credentials (
    user_id UUID PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
    account_email TEXT NOT NULL,
    encrypted_token TEXT NOT NULL,
    last_sync TIMESTAMPTZ,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS activity_files (
    id UUID PRIMARY KEY,
    reading_id UUID NOT NULL REFERENCES biometric_readings(id) ON DELETE CASCADE,
    user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    object_key TEXT NOT NULL,
    file_type TEXT NOT NULL CHECK (file_type IN ('gpx', 'fit', 'tcx')),
    file_size BIGINT NOT NULL DEFAULT 0,
    metadata JSONB,
    uploaded_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return err
	}

	indexes := `
CREATE INDEX IF NOT EXISTS idx_habits_user_date ON habit_entries(user_id, local_date);
CREATE INDEX IF NOT EXISTS idx_biometrics_user_recorded ON biometric_readings(user_id, recorded_at);
CREATE UNIQUE INDEX IF NOT EXISTS idx_biometrics_user_external ON biometric_readings(user_id, external_id) WHERE external_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_alerts_user_type ON health_alerts(user_id, alert_type);
CREATE INDEX IF NOT EXISTS idx_activity_files_reading ON activity_files(reading_id);`
	_, err := db.ExecContext(ctx, indexes)
	return err
}
