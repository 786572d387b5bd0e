// Package scheduler triggers the daily analysis pass on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"healthspan/internal/analytics"
)

// DailyPass is the job the scheduler runs.
type DailyPass interface {
	Today() time.Time
	RunDailyPass(ctx context.Context, today time.Time) (*analytics.PassReport, error)
}

type Scheduler struct {
	cron    *cron.Cron
	pass    DailyPass
	logger  *zap.Logger
	timeout time.Duration
	ctx     context.Context
	cancel  context.CancelFunc
}

// New validates spec (standard five-field cron, UTC) and registers the pass.
// Overlapping runs are skipped and a panicking run is recovered and logged.
func New(spec string, pass DailyPass, logger *zap.Logger) (*Scheduler, error) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		pass:    pass,
		logger:  logger,
		timeout: time.Hour,
		ctx:     ctx,
		cancel:  cancel,
	}
	cl := cronLogger{logger: logger}
	s.cron = cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	if _, err := s.cron.AddFunc(spec, s.run); err != nil {
		cancel()
		return nil, fmt.Errorf("schedule %q: %w", spec, err)
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.logger.Info("scheduler started", zap.Time("next_run", s.Next()))
	s.cron.Start()
}

// Next is the next planned run.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Schedule.Next(time.Now().In(time.UTC))
}

// Stop cancels a running pass and waits for it to return or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	s.cancel()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) run() {
	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	report, err := s.pass.RunDailyPass(ctx, s.pass.Today())
	if err != nil {
		s.logger.Error("daily pass failed", zap.Error(err))
		return
	}
	s.logger.Info("daily pass finished",
		zap.String("date", report.Date),
		zap.Int("users", report.Users),
		zap.Int("failed", len(report.Failures)))
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	logger *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Debugw("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}
