package warranty

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const DefaultSchedule = "@daily"

// Scheduler drives Tracker.Tick from a cron expression evaluated in UTC.
type Scheduler struct {
	cron       *cron.Cron
	tracker    *Tracker
	logger     *zap.Logger
	runOnStart bool
	now        func() time.Time
}

type SchedulerOptions struct {
	Spec string
	// RunOnStart ticks once before waiting for the first scheduled run.
	RunOnStart bool
}

func NewScheduler(tracker *Tracker, opts SchedulerOptions, logger *zap.Logger) (*Scheduler, error) {
	if opts.Spec == "" {
		opts.Spec = DefaultSchedule
	}

	cl := cronLogger{logger.Sugar()}
	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		tracker:    tracker,
		logger:     logger,
		runOnStart: opts.RunOnStart,
		now:        time.Now,
	}

	if _, err := s.cron.AddFunc(opts.Spec, s.tick); err != nil {
		return nil, fmt.Errorf("parse warranty schedule %q: %w", opts.Spec, err)
	}

	return s, nil
}

// Run blocks until ctx is cancelled and waits for a running tick to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.runOnStart {
		s.tickContext(ctx)
	}

	s.cron.Start()
	s.logger.Info("warranty scheduler started", zap.Time("next", s.next()))

	<-ctx.Done()

	<-s.cron.Stop().Done()
	s.logger.Info("warranty scheduler stopped")

	return nil
}

func (s *Scheduler) next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

func (s *Scheduler) tick() {
	s.tickContext(context.Background())
}

func (s *Scheduler) tickContext(ctx context.Context) {
	if _, err := s.tracker.Tick(ctx, s.now()); err != nil {
		s.logger.Error("scheduled warranty tick failed", zap.Error(err))
	}
}

type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
