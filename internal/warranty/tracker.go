// Package warranty counts down headhunt warranties once per day and releases
// the escrowed fee when a countdown reaches zero.
package warranty

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/hh-market/internal/logger"
	"github.com/spigell/hh-market/internal/market"
	"github.com/spigell/hh-market/internal/store"
	"github.com/spigell/hh-market/internal/utils"
)

const (
	DefaultMaxAttempts = 3
	DefaultBackoff     = time.Second
)

// Releaser pays out the escrow of an expired record inside a transaction.
type Releaser interface {
	Release(tx store.Tx, rr *market.RecruitResume) error
}

type Config struct {
	MaxAttempts int
	Backoff     time.Duration
}

type Tracker struct {
	store    store.Store
	releaser Releaser
	cfg      Config
	logger   *zap.Logger
}

func NewTracker(st store.Store, releaser Releaser, cfg Config, log *zap.Logger) *Tracker {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}

	return &Tracker{
		store:    st,
		releaser: releaser,
		cfg:      cfg,
		logger:   logger.WithFields(log, zap.String("component", "warranty")),
	}
}

// Report summarizes one tick.
type Report struct {
	Day      time.Time
	Pending  int
	Ticked   int
	Released int
	Skipped  int
	Failed   int
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeTicked
	outcomeReleased
)

// Tick advances every active warranty that has not been ticked on day yet.
// Each record is handled in its own transaction, so a tick may be rerun for
// the same day without decrementing or releasing twice.
func (t *Tracker) Tick(ctx context.Context, day time.Time) (*Report, error) {
	day = store.Day(day)
	report := &Report{Day: day}

	var ids []uint
	err := t.store.Transaction(ctx, func(tx store.Tx) error {
		var err error
		ids, err = tx.PendingWarranties(day)
		return err
	})
	if err != nil {
		return report, fmt.Errorf("list pending warranties: %w", err)
	}
	report.Pending = len(ids)

	var failures []error
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		result, err := t.process(ctx, id, day)
		if err != nil {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			report.Failed++
			failures = append(failures, fmt.Errorf("recruit resume %d: %w", id, err))
			t.logger.Error("warranty tick failed",
				zap.Uint("recruit_resume_id", id),
				zap.Int("attempts", t.cfg.MaxAttempts),
				zap.Error(err),
			)
			continue
		}

		switch result {
		case outcomeReleased:
			report.Ticked++
			report.Released++
		case outcomeTicked:
			report.Ticked++
		default:
			report.Skipped++
		}
	}

	t.logger.Info("warranty tick finished",
		zap.Time("day", day),
		zap.Int("pending", report.Pending),
		zap.Int("ticked", report.Ticked),
		zap.Int("released", report.Released),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
	)

	return report, errors.Join(failures...)
}

func (t *Tracker) process(ctx context.Context, id uint, day time.Time) (outcome, error) {
	var (
		result outcome
		err    error
	)

	for attempt := 1; attempt <= t.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			if werr := utils.WaitFor(ctx, utils.Backoff(t.cfg.Backoff, attempt-1)); werr != nil {
				return outcomeSkipped, werr
			}
		}

		result, err = t.tickOne(ctx, id, day)
		if err == nil {
			return result, nil
		}

		t.logger.Warn("warranty tick attempt failed",
			zap.Uint("recruit_resume_id", id),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}

	return outcomeSkipped, err
}

func (t *Tracker) tickOne(ctx context.Context, id uint, day time.Time) (outcome, error) {
	result := outcomeSkipped

	err := t.store.Transaction(ctx, func(tx store.Tx) error {
		result = outcomeSkipped

		rr, err := tx.RecruitResume(id)
		if err != nil {
			return store.Missing(err, "recruit resume", id)
		}
		if rr.WarrantyState != market.WarrantyActive {
			return nil
		}
		if rr.LastWarrantyTick != nil && !store.Day(*rr.LastWarrantyTick).Before(day) {
			return nil
		}

		ticked := day
		rr.LastWarrantyTick = &ticked
		if rr.RemainWarrantyTime > 0 {
			rr.RemainWarrantyTime--
		}
		if err := tx.SaveRecruitResume(rr); err != nil {
			return err
		}

		if rr.RemainWarrantyTime > 0 {
			result = outcomeTicked
			return nil
		}

		if err := t.releaser.Release(tx, rr); err != nil {
			return fmt.Errorf("release escrow: %w", err)
		}
		result = outcomeReleased
		return nil
	})

	return result, err
}
