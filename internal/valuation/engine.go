// Package valuation converts a resume's career level (or salary), education
// and certificates into a point value and persists it.
package valuation

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/spigell/hh-market/internal/ai"
	"github.com/spigell/hh-market/internal/logger"
	"github.com/spigell/hh-market/internal/market"
	"github.com/spigell/hh-market/internal/store"
)

// Engine computes and stores resume valuations.
type Engine struct {
	store     store.Store
	rules     *Rules
	estimator ai.Estimator
	parser    ai.Parser
	logger    *zap.Logger
}

// Deps aggregates the collaborators of the engine. Estimator is only needed
// for salary based valuation and Parser only for ValuateDocument.
type Deps struct {
	Store     store.Store
	Rules     *Rules
	Estimator ai.Estimator
	Parser    ai.Parser
	Logger    *zap.Logger
}

func New(deps *Deps) *Engine {
	rules := deps.Rules
	if rules == nil {
		rules = MustDefaultRules()
	}

	return &Engine{
		store:     deps.Store,
		rules:     rules,
		estimator: deps.Estimator,
		parser:    deps.Parser,
		logger:    logger.WithFields(deps.Logger, zap.String("component", "valuation")),
	}
}

// Update carries the parts of a valuation to replace. Nil fields keep the
// stored value.
type Update struct {
	HardItem     HardItem
	Education    *[]market.Education
	Certificates *[]market.Certificate
}

func (u Update) empty() bool {
	return u.HardItem == nil && u.Education == nil && u.Certificates == nil
}

type hardResult struct {
	kind  market.HardItemKind
	value string
	point decimal.Decimal
}

// Valuate scores a resume and stores the result, moving the resume to
// pricing_approved in the same transaction.
func (e *Engine) Valuate(ctx context.Context, resumeID uint, item HardItem, creds Credentials) (*market.Valuation, error) {
	if item == nil {
		return nil, fmt.Errorf("%w: a level or a current salary is required", market.ErrInvalidInput)
	}

	if _, ok := item.(SalaryItem); ok {
		// avoid paying for an estimate of a resume that does not exist
		if err := e.ensureResume(ctx, resumeID); err != nil {
			return nil, err
		}
	}

	hard, err := e.hardPoint(ctx, resumeID, item)
	if err != nil {
		return nil, err
	}

	score := e.rules.ScoreCredentials(creds)
	e.logSkipped(resumeID, score.Skipped)

	v := &market.Valuation{
		ResumeID:          resumeID,
		HardItemKind:      hard.kind,
		HardItem:          hard.value,
		HardPoint:         hard.point,
		Degrees:           score.Degrees,
		DegreePoint:       score.DegreePoint,
		Certificates:      score.Certificates,
		CertificatesPoint: score.CertificatesPoint,
	}
	v.Recompute()

	err = e.store.Transaction(ctx, func(tx store.Tx) error {
		if _, err := tx.Resume(resumeID); err != nil {
			return store.Missing(err, "resume", resumeID)
		}

		existing, err := tx.Valuation(resumeID)
		switch {
		case err == nil:
			v.ID = existing.ID
			v.CreatedAt = existing.CreatedAt
		case !errors.Is(err, store.ErrNotFound):
			return err
		}

		if err := tx.SaveValuation(v); err != nil {
			return fmt.Errorf("save valuation: %w", err)
		}

		return tx.SetResumeStatus(resumeID, market.ResumePricingApproved)
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("resume valuated",
		zap.Uint("resume_id", resumeID),
		zap.String("hard_item_kind", string(v.HardItemKind)),
		zap.String("total_point", v.TotalPoint.String()),
	)

	return v, nil
}

// Revaluate replaces the supplied components of the stored valuation and
// recomputes the total from all three stored components.
func (e *Engine) Revaluate(ctx context.Context, resumeID uint, upd Update) (*market.Valuation, error) {
	if upd.empty() {
		return nil, fmt.Errorf("%w: nothing to update", market.ErrInvalidInput)
	}

	var hard *hardResult
	if upd.HardItem != nil {
		if _, ok := upd.HardItem.(SalaryItem); ok {
			if err := e.ensureResume(ctx, resumeID); err != nil {
				return nil, err
			}
		}

		h, err := e.hardPoint(ctx, resumeID, upd.HardItem)
		if err != nil {
			return nil, err
		}
		hard = &h
	}

	var v *market.Valuation
	err := e.store.Transaction(ctx, func(tx store.Tx) error {
		if _, err := tx.Resume(resumeID); err != nil {
			return store.Missing(err, "resume", resumeID)
		}

		stored, err := tx.Valuation(resumeID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return &market.NotFoundError{Entity: "valuation", ID: resumeID, Reason: "resume has not been valuated yet"}
			}
			return err
		}

		if hard != nil {
			stored.HardItemKind = hard.kind
			stored.HardItem = hard.value
			stored.HardPoint = hard.point
		}

		if upd.Education != nil {
			stored.Degrees, stored.DegreePoint = e.rules.ScoreDegrees(*upd.Education)
		}

		if upd.Certificates != nil {
			var skipped []SkippedCredential
			stored.Certificates, stored.CertificatesPoint, skipped = e.rules.ScoreCertificates(*upd.Certificates)
			e.logSkipped(resumeID, skipped)
		}

		stored.Recompute()

		if err := tx.SaveValuation(stored); err != nil {
			return fmt.Errorf("save valuation: %w", err)
		}

		v = stored
		return tx.SetResumeStatus(resumeID, market.ResumePricingApproved)
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("resume revaluated",
		zap.Uint("resume_id", resumeID),
		zap.String("total_point", v.TotalPoint.String()),
	)

	return v, nil
}

// ValuateDocument parses a resume document and valuates the parsed record.
// A parsed level takes precedence over a parsed salary.
func (e *Engine) ValuateDocument(ctx context.Context, resumeID uint, doc ai.Document) (*market.Valuation, error) {
	if e.parser == nil {
		return nil, errors.New("document parser is not configured")
	}

	if err := e.ensureResume(ctx, resumeID); err != nil {
		return nil, err
	}

	parsed, err := e.parser.Parse(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("parse resume document: %w", err)
	}

	var item HardItem
	switch {
	case parsed.Level != "":
		item = LevelItem{Level: parsed.Level}
	case parsed.CurrentSalary.IsPositive():
		item = SalaryItem{Amount: parsed.CurrentSalary, Document: doc}
	default:
		// an unknown level is worth zero points rather than an error
		item = LevelItem{}
	}

	return e.Valuate(ctx, resumeID, item, Credentials{
		Education:    parsed.Education,
		Certificates: parsed.Certificates,
	})
}

func (e *Engine) hardPoint(ctx context.Context, resumeID uint, item HardItem) (hardResult, error) {
	switch it := item.(type) {
	case LevelItem:
		return hardResult{
			kind:  market.HardItemLevel,
			value: it.Level,
			point: e.rules.LevelPoint(it.Level),
		}, nil
	case SalaryItem:
		if !it.Amount.IsPositive() {
			return hardResult{}, fmt.Errorf("%w: current salary must be positive", market.ErrInvalidInput)
		}
		if e.estimator == nil {
			return hardResult{}, errors.New("percentage estimator is not configured")
		}

		est, err := e.estimator.Estimate(ctx, it.Document)
		if err != nil {
			return hardResult{}, fmt.Errorf("estimate resume quality: %w", err)
		}
		if est.Ratio.IsNegative() {
			return hardResult{}, fmt.Errorf("estimator returned negative ratio %s", est.Ratio)
		}

		e.logger.Debug("salary estimate",
			zap.Uint("resume_id", resumeID),
			zap.String("ratio", est.Ratio.String()),
			zap.String("explanation", est.Explanation),
		)

		return hardResult{
			kind:  market.HardItemSalary,
			value: it.Amount.String(),
			point: SalaryPoint(est.Ratio, it.Amount, e.rules.MoneyPerPoint()),
		}, nil
	default:
		return hardResult{}, fmt.Errorf("%w: unsupported hard item %T", market.ErrInvalidInput, item)
	}
}

// SalaryPoint is ratio × salary / moneyPerPoint rounded to one decimal place.
func SalaryPoint(ratio, salary, moneyPerPoint decimal.Decimal) decimal.Decimal {
	return ratio.Mul(salary).Div(moneyPerPoint).Round(1)
}

func (e *Engine) ensureResume(ctx context.Context, resumeID uint) error {
	return e.store.Transaction(ctx, func(tx store.Tx) error {
		_, err := tx.Resume(resumeID)
		return store.Missing(err, "resume", resumeID)
	})
}

func (e *Engine) logSkipped(resumeID uint, skipped []SkippedCredential) {
	for _, s := range skipped {
		e.logger.Warn("skipping certificate",
			zap.Uint("resume_id", resumeID),
			zap.String("certificate", s.Certificate.Descriptor()),
			zap.String("reason", s.Reason),
		)
	}
}
