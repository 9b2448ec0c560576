// Package ledger moves points between users: candidate selection, point
// purchases, draw requests and headhunt escrow release.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/spigell/hh-market/internal/logger"
	"github.com/spigell/hh-market/internal/market"
	"github.com/spigell/hh-market/internal/payment"
	"github.com/spigell/hh-market/internal/store"
	"github.com/spigell/hh-market/internal/utils"
)

const (
	DefaultPlatinumMultiplier = 10
	DefaultMaxRetries         = 3
	DefaultRetryBackoff       = 50 * time.Millisecond
)

// ReleaseMode selects how escrowed headhunt points reach the collaborator.
type ReleaseMode string

const (
	// ReleaseAdd moves the fee of the expiring record from warranty_point
	// into point.
	ReleaseAdd ReleaseMode = "add"
	// ReleaseOverwrite sets point to the fee and clears warranty_point.
	ReleaseOverwrite ReleaseMode = "overwrite"
)

func (m ReleaseMode) Valid() bool {
	return m == ReleaseAdd || m == ReleaseOverwrite
}

type Config struct {
	PlatinumMultiplier decimal.Decimal
	MaxRetries         int
	RetryBackoff       time.Duration
	ReleaseMode        ReleaseMode
}

func DefaultConfig() Config {
	return Config{
		PlatinumMultiplier: decimal.NewFromInt(DefaultPlatinumMultiplier),
		MaxRetries:         DefaultMaxRetries,
		RetryBackoff:       DefaultRetryBackoff,
		ReleaseMode:        ReleaseAdd,
	}
}

type Ledger struct {
	store    store.Store
	payments payment.Provider
	cfg      Config
	logger   *zap.Logger
}

func New(st store.Store, payments payment.Provider, cfg Config, log *zap.Logger) (*Ledger, error) {
	if !cfg.PlatinumMultiplier.IsPositive() {
		return nil, fmt.Errorf("platinum multiplier must be positive, got %s", cfg.PlatinumMultiplier)
	}
	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("max retries must not be negative, got %d", cfg.MaxRetries)
	}
	if cfg.ReleaseMode == "" {
		cfg.ReleaseMode = ReleaseAdd
	}
	if !cfg.ReleaseMode.Valid() {
		return nil, fmt.Errorf("unknown release mode %q", cfg.ReleaseMode)
	}

	return &Ledger{
		store:    st,
		payments: payments,
		cfg:      cfg,
		logger:   logger.WithFields(log, zap.String("component", "ledger")),
	}, nil
}

// Selection describes which package a recruiter pays for. JobID is required
// for the headhunt package.
type Selection struct {
	Package market.Package
	JobID   uint
}

// SelectCandidate charges the payer for a candidate resume and records the
// claim. Headhunt fees are escrowed in the referring collaborator's
// warranty_point until the job's warranty countdown ends.
func (l *Ledger) SelectCandidate(ctx context.Context, payerID, resumeID uint, sel Selection) (*market.RecruitResume, error) {
	var recruit *market.RecruitResume

	err := l.retry(ctx, "select candidate", func() error {
		return l.store.Transaction(ctx, func(tx store.Tx) error {
			payer, err := tx.User(payerID)
			if err != nil {
				return store.Missing(err, "user", payerID)
			}
			if payer.Role != market.RoleRecruiter {
				return fmt.Errorf("select candidate as %s: %w", payer.Role, market.ErrForbidden)
			}

			resume, err := tx.Resume(resumeID)
			if err != nil {
				return store.Missing(err, "resume", resumeID)
			}

			rr := &market.RecruitResume{
				RecruiterID:   payer.ID,
				ResumeID:      resume.ID,
				Package:       sel.Package,
				WarrantyState: market.WarrantyNone,
			}

			var job *market.Job
			switch sel.Package {
			case market.PackageBasic, market.PackagePlatinum:
				v, err := tx.Valuation(resume.ID)
				if err != nil {
					if errors.Is(err, store.ErrNotFound) {
						return &market.NotFoundError{Entity: "valuation", ID: resume.ID, Reason: "resume has not been valuated yet"}
					}
					return err
				}
				rr.Fee = v.TotalPoint
				if sel.Package == market.PackagePlatinum {
					rr.Fee = v.TotalPoint.Mul(l.cfg.PlatinumMultiplier)
				}
			case market.PackageHeadhunt:
				if sel.JobID == 0 {
					return fmt.Errorf("headhunt package requires a job: %w", market.ErrInvalidInput)
				}
				job, err = tx.Job(sel.JobID)
				if err != nil {
					return store.Missing(err, "job", sel.JobID)
				}
				rr.JobID = &job.ID
				rr.Fee = job.HeadhuntPoint
			default:
				return fmt.Errorf("unknown package %q: %w", sel.Package, market.ErrInvalidInput)
			}

			if payer.Point.LessThan(rr.Fee) {
				return &market.InsufficientPointsError{Fee: rr.Fee, Balance: payer.Point}
			}

			payer.Point = payer.Point.Sub(rr.Fee)
			if err := tx.SaveUserPoints(payer); err != nil {
				return err
			}

			if job != nil {
				collaborator, err := tx.User(resume.CollaboratorID)
				if err != nil {
					return store.Missing(err, "user", resume.CollaboratorID)
				}
				collaborator.WarrantyPoint = collaborator.WarrantyPoint.Add(rr.Fee)
				if err := tx.SaveUserPoints(collaborator); err != nil {
					return err
				}

				rr.WarrantyState = market.WarrantyActive
				rr.RemainWarrantyTime = job.WarrantyTime
			}

			if err := tx.CreateRecruitResume(rr); err != nil {
				return err
			}

			if rr.WarrantyState == market.WarrantyActive && rr.RemainWarrantyTime <= 0 {
				rr.RemainWarrantyTime = 0
				if err := l.Release(tx, rr); err != nil {
					return err
				}
			}

			recruit = rr
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("candidate selected",
		zap.Uint("recruiter_id", recruit.RecruiterID),
		zap.Uint("resume_id", recruit.ResumeID),
		zap.String("package", string(recruit.Package)),
		zap.String("fee", recruit.Fee.String()),
		zap.String("warranty_state", string(recruit.WarrantyState)),
	)

	return recruit, nil
}

// Release ends the warranty of an active headhunt record inside tx and pays
// the escrowed fee out to the resume's collaborator. Records that are not
// active are left untouched.
func (l *Ledger) Release(tx store.Tx, rr *market.RecruitResume) error {
	if rr.WarrantyState != market.WarrantyActive {
		return nil
	}

	resume, err := tx.Resume(rr.ResumeID)
	if err != nil {
		return store.Missing(err, "resume", rr.ResumeID)
	}
	collaborator, err := tx.User(resume.CollaboratorID)
	if err != nil {
		return store.Missing(err, "user", resume.CollaboratorID)
	}

	switch l.cfg.ReleaseMode {
	case ReleaseOverwrite:
		collaborator.Point = rr.Fee
		collaborator.WarrantyPoint = decimal.Zero
	default:
		collaborator.Point = collaborator.Point.Add(rr.Fee)
		collaborator.WarrantyPoint = collaborator.WarrantyPoint.Sub(rr.Fee)
		if collaborator.WarrantyPoint.IsNegative() {
			collaborator.WarrantyPoint = decimal.Zero
		}
	}

	if err := tx.SaveUserPoints(collaborator); err != nil {
		return err
	}

	rr.WarrantyState = market.WarrantyExpired
	if err := tx.SaveRecruitResume(rr); err != nil {
		return err
	}

	l.logger.Info("warranty released",
		zap.Uint("recruit_resume_id", rr.ID),
		zap.Uint("collaborator_id", collaborator.ID),
		zap.String("fee", rr.Fee.String()),
		zap.String("mode", string(l.cfg.ReleaseMode)),
	)

	return nil
}

// PurchasePoints credits quantity packages to the payer once the provider
// confirms the payment reference covers the exact price.
func (l *Ledger) PurchasePoints(ctx context.Context, payerID, packageID uint, quantity int, paymentRef string) (*market.TransactionHistory, error) {
	paymentRef = strings.TrimSpace(paymentRef)
	if quantity <= 0 {
		return nil, fmt.Errorf("quantity must be positive, got %d: %w", quantity, market.ErrInvalidInput)
	}
	if paymentRef == "" {
		return nil, fmt.Errorf("payment reference is required: %w", market.ErrInvalidInput)
	}
	if l.payments == nil {
		return nil, errors.New("payment provider is not configured")
	}

	var pkg *market.PointPackage
	err := l.store.Transaction(ctx, func(tx store.Tx) error {
		if _, err := tx.User(payerID); err != nil {
			return store.Missing(err, "user", payerID)
		}
		if _, err := tx.TransactionByReference(paymentRef); err == nil {
			return market.ErrPaymentReused
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		p, err := tx.PointPackage(packageID)
		if err != nil {
			return store.Missing(err, "point package", packageID)
		}
		pkg = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	expected := pkg.Price.Mul(decimal.NewFromInt(int64(quantity)))

	receipt, err := l.payments.Verify(ctx, paymentRef)
	if err != nil {
		if errors.Is(err, payment.ErrUnknownReference) {
			return nil, fmt.Errorf("%w: %w", market.ErrPaymentMismatch, err)
		}
		return nil, fmt.Errorf("verify payment: %w", err)
	}
	if err := matchReceipt(receipt, expected, pkg.Currency); err != nil {
		l.logger.Warn("payment rejected",
			zap.Uint("user_id", payerID),
			zap.String("reference", paymentRef),
			zap.String("expected", expected.String()),
			zap.String("paid", receipt.Amount.String()),
			zap.Error(err),
		)
		return nil, err
	}

	history := &market.TransactionHistory{
		UserID:           payerID,
		PackageID:        pkg.ID,
		Quantity:         quantity,
		Point:            pkg.Point.Mul(decimal.NewFromInt(int64(quantity))),
		Amount:           expected,
		Currency:         pkg.Currency,
		PaymentReference: paymentRef,
	}

	err = l.retry(ctx, "purchase points", func() error {
		return l.store.Transaction(ctx, func(tx store.Tx) error {
			if _, err := tx.TransactionByReference(paymentRef); err == nil {
				return market.ErrPaymentReused
			} else if !errors.Is(err, store.ErrNotFound) {
				return err
			}

			payer, err := tx.User(payerID)
			if err != nil {
				return store.Missing(err, "user", payerID)
			}
			payer.Point = payer.Point.Add(history.Point)
			if err := tx.SaveUserPoints(payer); err != nil {
				return err
			}

			record := *history
			if err := tx.CreateTransaction(&record); err != nil {
				if errors.Is(err, store.ErrDuplicate) {
					return market.ErrPaymentReused
				}
				return err
			}
			history = &record
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("points purchased",
		zap.Uint("user_id", payerID),
		zap.Uint("package_id", pkg.ID),
		zap.Int("quantity", quantity),
		zap.String("point", history.Point.String()),
		zap.String("reference", paymentRef),
	)

	return history, nil
}

func matchReceipt(r *payment.Receipt, expected decimal.Decimal, currency string) error {
	if !r.Completed() {
		return fmt.Errorf("%w: payment status is %q", market.ErrPaymentMismatch, r.Status)
	}
	if !strings.EqualFold(strings.TrimSpace(r.Currency), currency) {
		return fmt.Errorf("%w: paid in %s, package is priced in %s", market.ErrPaymentMismatch, r.Currency, currency)
	}
	if !r.Amount.Equal(expected) {
		return fmt.Errorf("%w: paid %s, expected %s", market.ErrPaymentMismatch, r.Amount, expected)
	}
	return nil
}

// RequestDraw records a collaborator's request to withdraw points. Approval
// and settlement happen elsewhere.
func (l *Ledger) RequestDraw(ctx context.Context, collaboratorID uint, amount decimal.Decimal) (*market.DrawHistory, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("draw amount must be positive, got %s: %w", amount, market.ErrInvalidInput)
	}

	var draw *market.DrawHistory
	err := l.retry(ctx, "request draw", func() error {
		return l.store.Transaction(ctx, func(tx store.Tx) error {
			user, err := tx.User(collaboratorID)
			if err != nil {
				return store.Missing(err, "user", collaboratorID)
			}
			if user.Role != market.RoleCollaborator {
				return fmt.Errorf("request draw as %s: %w", user.Role, market.ErrForbidden)
			}

			d := &market.DrawHistory{
				CollaboratorID: user.ID,
				DrawPoint:      amount,
				Status:         market.DrawPending,
			}
			if err := tx.CreateDraw(d); err != nil {
				return err
			}
			draw = d
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("draw requested",
		zap.Uint("collaborator_id", collaboratorID),
		zap.String("amount", amount.String()),
	)

	return draw, nil
}

// retry reruns fn while the store reports a conflict.
func (l *Ledger) retry(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 0; attempt <= l.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if werr := utils.WaitFor(ctx, utils.Backoff(l.cfg.RetryBackoff, attempt)); werr != nil {
				return werr
			}
		}

		err = fn()
		if !errors.Is(err, store.ErrConflict) {
			return err
		}

		l.logger.Warn("transaction conflict",
			zap.String("operation", op),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
	}

	return fmt.Errorf("%s: %w: %w", op, market.ErrTryAgain, err)
}
