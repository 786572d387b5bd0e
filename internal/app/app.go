// Package app wires configuration, storage and services into one value
// shared by the server and the CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"healthspan/internal/analytics"
	"healthspan/internal/blob"
	"healthspan/internal/config"
	"healthspan/internal/crypto"
	"healthspan/internal/events"
	"healthspan/internal/services"
	"healthspan/internal/store"
	"healthspan/internal/wearable"
)

const (
	wearableTimeout     = 30 * time.Second
	wearableMinInterval = time.Minute
)

// Application ties stores and services together and owns their connections.
type Application struct {
	Config *config.Config
	Logger *zap.Logger
	DB     *sqlx.DB

	Users       *store.UserStore
	Habits      *store.HabitStore
	Biometrics  *store.BiometricStore
	Alerts      *store.AlertStore
	Credentials *store.CredentialStore
	Files       *store.ActivityFileStore

	Publisher events.Publisher
	Blobs     blob.Store
	Engine    *analytics.Engine
	// Syncer is nil when no encryption key is configured.
	Syncer *wearable.Syncer

	closers []func() error
}

// OpenDB connects to Postgres through the pgx stdlib driver and pings it.
func OpenDB(ctx context.Context, url string) (*sqlx.DB, error) {
	db, err := sqlx.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxLifetime(2 * time.Hour)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return db, nil
}

// New connects every backing service named by cfg.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Application, error) {
	db, err := OpenDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	a := &Application{
		Config:      cfg,
		Logger:      logger,
		DB:          db,
		Users:       store.NewUserStore(db),
		Habits:      store.NewHabitStore(db),
		Biometrics:  store.NewBiometricStore(db),
		Alerts:      store.NewAlertStore(db),
		Credentials: store.NewCredentialStore(db),
		Files:       store.NewActivityFileStore(db),
	}
	a.closers = append(a.closers, db.Close)

	if err := a.initPublisher(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.initBlobs(ctx); err != nil {
		a.Close()
		return nil, err
	}

	a.Engine = analytics.NewEngine(analytics.Deps{
		Habits:     a.Habits,
		Biometrics: a.Biometrics,
		Alerts:     a.Alerts,
		Users:      a.Users,
		Publisher:  a.Publisher,
		Thresholds: cfg.Thresholds(),
		Logger:     logger.Named("analytics"),
	})

	if err := a.initWearable(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *Application) initPublisher(ctx context.Context) error {
	if a.Config.RedisURL == "" {
		a.Logger.Warn("REDIS_URL not set; events are only logged")
		a.Publisher = events.NewLogPublisher(a.Logger.Named("events"))
		return nil
	}
	client, err := events.NewRedisClient(a.Config.RedisURL)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, client.Close)
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	a.Publisher = events.NewRedisPublisher(client, a.Config.EventStream, a.Config.EventMaxLen)
	return nil
}

func (a *Application) initBlobs(ctx context.Context) error {
	if a.Config.S3Bucket == "" {
		a.Logger.Warn("AWS_S3_BUCKET not set; activity files are kept in memory")
		a.Blobs = blob.NewMemory()
		return nil
	}
	s3, err := blob.NewS3Store(ctx, a.Config.AWSRegion, a.Config.S3Bucket, a.Config.PresignTTL)
	if err != nil {
		return err
	}
	a.Blobs = s3
	return nil
}

func (a *Application) initWearable() error {
	if a.Config.EncryptionKey == "" {
		a.Logger.Warn("ENCRYPTION_KEY not set; wearable sync is disabled")
		return nil
	}
	key, err := crypto.ParseKey(a.Config.EncryptionKey)
	if err != nil {
		return fmt.Errorf("ENCRYPTION_KEY: %w", err)
	}
	vault, err := services.NewEncryptionService(key)
	if err != nil {
		return err
	}
	a.Syncer = wearable.NewSyncer(wearable.SyncerDeps{
		Credentials: a.Credentials,
		Readings:    a.Biometrics,
		Files:       a.Files,
		Blobs:       a.Blobs,
		Vault:       vault,
		Dialer: wearable.HTTPDialer{
			BaseURL: a.Config.WearableBaseURL,
			Limiter: rate.NewLimiter(rate.Limit(a.Config.WearableRateLimit), 1),
			Timeout: wearableTimeout,
		},
		Publisher:   a.Publisher,
		Logger:      a.Logger.Named("wearable"),
		MinInterval: wearableMinInterval,
	})
	return nil
}

// Close releases connections in reverse order of opening.
func (a *Application) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
