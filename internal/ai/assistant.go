package ai

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/spigell/hh-market/internal/market"
)

// Document is an uploaded resume or job description file.
type Document struct {
	Name     string
	MIMEType string
	Data     []byte
}

// ParsedResume is the structured record extracted from a resume document.
type ParsedResume struct {
	CandidateName string               `mapstructure:"candidate_name"`
	JobTitle      string               `mapstructure:"job_title"`
	Level         string               `mapstructure:"level"`
	CurrentSalary decimal.Decimal      `mapstructure:"current_salary"`
	Education     []market.Education   `mapstructure:"education"`
	Certificates  []market.Certificate `mapstructure:"certificates"`
	Other         []string             `mapstructure:"other"`
	Raw           string               `mapstructure:"-"`
}

// Estimate is the quality estimate used for salary based valuation. Ratio is
// a fraction (0.015 for 1.5%).
type Estimate struct {
	Ratio       decimal.Decimal
	Explanation string
	Raw         string
}

type Parser interface {
	Parse(ctx context.Context, doc Document) (*ParsedResume, error)
}

type Estimator interface {
	Estimate(ctx context.Context, doc Document) (*Estimate, error)
}
