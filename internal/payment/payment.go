// Package payment verifies point purchases against the payment provider.
package payment

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
)

const StatusCompleted = "completed"

// Receipt is what the provider reports about a payment reference.
type Receipt struct {
	Reference string          `json:"reference"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	Status    string          `json:"status"`
}

// Completed reports whether the provider considers the payment settled.
func (r *Receipt) Completed() bool {
	return strings.EqualFold(strings.TrimSpace(r.Status), StatusCompleted)
}

type Provider interface {
	Verify(ctx context.Context, reference string) (*Receipt, error)
}
