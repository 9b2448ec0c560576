// Package store persists marketplace entities behind a transactional
// repository. MySQL (gorm) backs production; Memory backs tests and the
// in-memory development mode.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/spigell/hh-market/internal/market"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrConflict marks a transaction aborted by a concurrent writer
	// (deadlock or lock wait timeout). The whole transaction may be retried.
	ErrConflict = errors.New("concurrent update conflict")
	// ErrDuplicate marks a write rejected by a unique constraint.
	ErrDuplicate = errors.New("duplicate record")
)

// Store runs fn inside a single atomic transaction. If fn returns an error
// nothing it wrote is kept.
type Store interface {
	Transaction(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the set of repository operations available inside a transaction.
// User and RecruitResume reads lock the row until the transaction ends.
type Tx interface {
	User(id uint) (*market.User, error)
	CreateUser(u *market.User) error
	SaveUserPoints(u *market.User) error

	Resume(id uint) (*market.Resume, error)
	CreateResume(r *market.Resume) error
	SetResumeStatus(id uint, status market.ResumeStatus) error

	Job(id uint) (*market.Job, error)
	CreateJob(j *market.Job) error

	Valuation(resumeID uint) (*market.Valuation, error)
	SaveValuation(v *market.Valuation) error

	RecruitResume(id uint) (*market.RecruitResume, error)
	CreateRecruitResume(r *market.RecruitResume) error
	SaveRecruitResume(r *market.RecruitResume) error
	// PendingWarranties lists active warranty records not yet ticked on day.
	PendingWarranties(day time.Time) ([]uint, error)

	CreateDraw(d *market.DrawHistory) error
	Draws(collaboratorID uint) ([]market.DrawHistory, error)

	PointPackage(id uint) (*market.PointPackage, error)
	CreatePointPackage(p *market.PointPackage) error
	TransactionByReference(ref string) (*market.TransactionHistory, error)
	CreateTransaction(t *market.TransactionHistory) error
	Transactions(userID uint) ([]market.TransactionHistory, error)
}

// Day truncates t to the UTC calendar day used for warranty ticks.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Missing converts ErrNotFound into a market.NotFoundError naming entity.
// Other errors are returned unchanged.
func Missing(err error, entity string, id uint) error {
	if errors.Is(err, ErrNotFound) {
		return market.NotFound(entity, id)
	}
	return err
}
