package market

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrPaymentMismatch = errors.New("payment amount does not match the expected total")
	ErrPaymentReused   = errors.New("payment reference was already used")
	ErrTryAgain        = errors.New("the balance is busy, try again")
	ErrForbidden       = errors.New("action is not allowed for this role")
	ErrInvalidInput    = errors.New("invalid input")
)

// NotFoundError names the missing entity.
type NotFoundError struct {
	Entity string
	ID     uint
	Reason string
}

func (e *NotFoundError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s %d not found: %s", e.Entity, e.ID, e.Reason)
	}
	return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
}

// NotFound builds a NotFoundError for the given entity.
func NotFound(entity string, id uint) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// InsufficientPointsError is returned when a debit would make a balance negative.
type InsufficientPointsError struct {
	Fee     decimal.Decimal
	Balance decimal.Decimal
}

// Shortfall is the amount the payer is missing.
func (e *InsufficientPointsError) Shortfall() decimal.Decimal {
	return e.Fee.Sub(e.Balance)
}

func (e *InsufficientPointsError) Error() string {
	return fmt.Sprintf("points short by %s (fee %s, balance %s)",
		e.Shortfall().String(), e.Fee.String(), e.Balance.String())
}
