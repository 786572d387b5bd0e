// Package config loads process settings from the environment, after an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"

	"healthspan/internal/analytics"
)

type Config struct {
	Port        string `env:"PORT,default=8080"`
	Env         string `env:"APP_ENV,default=production"`
	DatabaseURL string `env:"DATABASE_URL,required"`
	JWTSecret   string `env:"JWT_SECRET,required"`

	// Hex encoded, at least 32 bytes. Wearable connect is disabled without it.
	EncryptionKey string `env:"ENCRYPTION_KEY"`

	Google struct {
		ClientID     string `env:"GOOGLE_CLIENT_ID"`
		ClientSecret string `env:"GOOGLE_CLIENT_SECRET"`
		RedirectURL  string `env:"GOOGLE_REDIRECT_URL"`
	}

	RedisURL    string        `env:"REDIS_URL"`
	EventStream string        `env:"EVENT_STREAM,default=healthspan:events"`
	EventMaxLen int64         `env:"EVENT_STREAM_MAXLEN,default=100000"`
	AWSRegion   string        `env:"AWS_REGION,default=us-east-1"`
	S3Bucket    string        `env:"AWS_S3_BUCKET"`
	PresignTTL  time.Duration `env:"AWS_PRESIGN_TTL,default=168h"`

	WearableBaseURL   string  `env:"WEARABLE_BASE_URL,default=https://connectapi.garmin.com"`
	WearableRateLimit float64 `env:"WEARABLE_RATE_LIMIT,default=2"`

	DailyPassSchedule string `env:"DAILY_PASS_SCHEDULE,default=0 10 * * *"`

	Analysis struct {
		CorrelationLookbackDays int     `env:"ANALYSIS_LOOKBACK_DAYS,default=30"`
		StressAlertAbove        float64 `env:"ANALYSIS_STRESS_ALERT_ABOVE,default=70"`
		HRVAlertBelow           float64 `env:"ANALYSIS_HRV_ALERT_BELOW,default=30"`
		CriticalStressAbove     float64 `env:"ANALYSIS_CRITICAL_STRESS_ABOVE,default=80"`
		WarningStressAbove      float64 `env:"ANALYSIS_WARNING_STRESS_ABOVE,default=60"`
		StaleAfterDays          int     `env:"ANALYSIS_STALE_AFTER_DAYS,default=3"`
		WeeklyWindowDays        int     `env:"ANALYSIS_WEEKLY_WINDOW_DAYS,default=7"`
		LowConsistencyBelow     int     `env:"ANALYSIS_LOW_CONSISTENCY_BELOW,default=50"`
		DailyPassConcurrency    int     `env:"ANALYSIS_CONCURRENCY,default=4"`
	}
}

// Load reads .env files (missing files are fine) and decodes the environment.
func Load(files ...string) (*Config, error) {
	_ = godotenv.Load(files...)

	var c Config
	if err := envdecode.StrictDecode(&c); err != nil {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	if c.Analysis.WeeklyWindowDays <= 0 || c.Analysis.CorrelationLookbackDays <= 0 {
		return nil, errors.New("analysis windows must be positive")
	}
	return &c, nil
}

func (c *Config) Development() bool { return c.Env == "development" }

func (c *Config) Thresholds() analytics.Thresholds {
	a := c.Analysis
	return analytics.Thresholds{
		CorrelationLookbackDays: a.CorrelationLookbackDays,
		StressAlertAbove:        a.StressAlertAbove,
		HRVAlertBelow:           a.HRVAlertBelow,
		CriticalStressAbove:     a.CriticalStressAbove,
		WarningStressAbove:      a.WarningStressAbove,
		StaleAfterDays:          a.StaleAfterDays,
		WeeklyWindowDays:        a.WeeklyWindowDays,
		LowConsistencyBelow:     a.LowConsistencyBelow,
		DailyPassConcurrency:    a.DailyPassConcurrency,
	}
}
