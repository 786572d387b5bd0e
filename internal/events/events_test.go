package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestStreamValuesCarryDedupeID(t *testing.T) {
	userID := uuid.New()
	e := New(HealthAlertCreated, userID, map[string]any{"severity": "critical"})

	values, err := streamValues(e)
	require.NoError(t, err)

	assert.Equal(t, e.ID.String(), values["id"])
	assert.Equal(t, "health.alert.created", values["type"])
	assert.Equal(t, userID.String(), values["user_id"])
	assert.JSONEq(t, `{"severity":"critical"}`, values["payload"].(string))

	ts, err := time.Parse(time.RFC3339Nano, values["occurred_at"].(string))
	require.NoError(t, err)
	assert.True(t, ts.Equal(e.OccurredAt))
}

func TestStreamValuesRejectsUnencodablePayload(t *testing.T) {
	_, err := streamValues(New(HabitTracked, uuid.New(), make(chan int)))
	assert.Error(t, err)
}

func TestNewAssignsDistinctIDs(t *testing.T) {
	a := New(HabitTracked, uuid.Nil, nil)
	b := New(HabitTracked, uuid.Nil, nil)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestLogPublisher(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	p := NewLogPublisher(zap.New(core))

	e := New(HabitsWeeklyAnalyzed, uuid.New(), map[string]int{"consistency": 42})
	require.NoError(t, p.Publish(context.Background(), e))

	entries := logs.FilterField(zap.String("type", string(HabitsWeeklyAnalyzed))).All()
	require.Len(t, entries, 1)
	var payload map[string]int
	require.NoError(t, json.Unmarshal([]byte(entries[0].ContextMap()["payload"].(string)), &payload))
	assert.Equal(t, 42, payload["consistency"])
}
