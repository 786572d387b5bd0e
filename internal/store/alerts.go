package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"healthspan/internal/models"
)

type AlertStore struct {
	db *sqlx.DB
}

func NewAlertStore(db *sqlx.DB) *AlertStore { return &AlertStore{db: db} }

// Create persists a in a single statement; a failed insert leaves nothing behind.
func (s *AlertStore) Create(ctx context.Context, a *models.HealthAlert) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.TriggeredAt.IsZero() {
		a.TriggeredAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO health_alerts (id, user_id, alert_type, severity, message, data, triggered_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		a.ID, a.UserID, a.Kind, a.Severity, a.Message, a.Data, a.TriggeredAt)
	if err != nil {
		return fmt.Errorf("create alert: %w", err)
	}
	return nil
}

func (s *AlertStore) List(ctx context.Context, userID uuid.UUID, unresolvedOnly bool, limit int) ([]models.HealthAlert, error) {
	query := `SELECT id, user_id, alert_type, severity, message, data, triggered_at, acknowledged_at, resolved_at
		FROM health_alerts WHERE user_id = $1`
	if unresolvedOnly {
		query += ` AND resolved_at IS NULL`
	}
	query += ` ORDER BY triggered_at DESC LIMIT $2`
	var out []models.HealthAlert
	if err := s.db.SelectContext(ctx, &out, query, userID, limit); err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	return out, nil
}

func (s *AlertStore) Acknowledge(ctx context.Context, userID, alertID uuid.UUID) error {
	return s.stamp(ctx, "acknowledged_at", userID, alertID)
}

func (s *AlertStore) Resolve(ctx context.Context, userID, alertID uuid.UUID) error {
	return s.stamp(ctx, "resolved_at", userID, alertID)
}

// stamp sets column to NOW() once; repeated calls keep the first timestamp.
func (s *AlertStore) stamp(ctx context.Context, column string, userID, alertID uuid.UUID) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE health_alerts SET `+column+` = COALESCE(`+column+`, NOW()) WHERE id = $1 AND user_id = $2`,
		alertID, userID)
	if err != nil {
		return fmt.Errorf("update alert %s: %w", column, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
