package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"healthspan/internal/analytics"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type countingPass struct {
	runs  atomic.Int32
	block chan struct{}
}

func (p *countingPass) Today() time.Time { return time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC) }

func (p *countingPass) RunDailyPass(ctx context.Context, today time.Time) (*analytics.PassReport, error) {
	p.runs.Add(1)
	if p.block != nil {
		select {
		case <-p.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return &analytics.PassReport{Date: today.Format("2006-01-02")}, nil
}

func TestRejectsBadSchedule(t *testing.T) {
	_, err := New("not a schedule", &countingPass{}, zaptest.NewLogger(t))
	assert.Error(t, err)
}

func TestNextRunIsDaily(t *testing.T) {
	s, err := New("0 10 * * *", &countingPass{}, zaptest.NewLogger(t))
	require.NoError(t, err)

	next := s.Next()
	assert.Equal(t, 10, next.Hour())
	assert.Equal(t, 0, next.Minute())
	assert.Equal(t, time.UTC, next.Location())
	assert.True(t, next.After(time.Now()))
	require.NoError(t, s.Stop(context.Background()))
}

func TestRunsAndStops(t *testing.T) {
	pass := &countingPass{}
	s, err := New("@every 1s", pass, zaptest.NewLogger(t))
	require.NoError(t, err)
	s.Start()

	assert.Eventually(t, func() bool { return pass.runs.Load() >= 1 }, 3*time.Second, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
}

func TestStopCancelsRunningPass(t *testing.T) {
	pass := &countingPass{block: make(chan struct{})}
	s, err := New("@every 1s", pass, zaptest.NewLogger(t))
	require.NoError(t, err)
	s.Start()

	require.Eventually(t, func() bool { return pass.runs.Load() == 1 }, 3*time.Second, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	assert.Equal(t, int32(1), pass.runs.Load())
}
