// Package events is the outbound notification queue. Producers enqueue
// synchronously through Publisher; delivery to notification and insight
// consumers happens elsewhere. Consumers dedupe on Event.ID because
// delivery is at-least-once.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Type string

const (
	HabitTracked         Type = "habit.tracked"
	HabitsWeeklyAnalyzed Type = "habits.weekly.analyzed"
	HealthAlertCreated   Type = "health.alert.created"
	WearableDataSynced   Type = "wearable.data.synced"
)

type Event struct {
	ID         uuid.UUID `json:"id"`
	Type       Type      `json:"type"`
	UserID     uuid.UUID `json:"user_id"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload"`
}

// New stamps a fresh id and time on an event.
func New(t Type, userID uuid.UUID, payload any) Event {
	return Event{
		ID:         uuid.New(),
		Type:       t,
		UserID:     userID,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	}
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// LogPublisher writes events to the log. Used when no broker is configured.
type LogPublisher struct {
	logger *zap.Logger
}

func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, e Event) error {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return err
	}
	p.logger.Info("event",
		zap.String("event_id", e.ID.String()),
		zap.String("type", string(e.Type)),
		zap.String("user_id", e.UserID.String()),
		zap.Time("occurred_at", e.OccurredAt),
		zap.ByteString("payload", payload),
	)
	return nil
}
