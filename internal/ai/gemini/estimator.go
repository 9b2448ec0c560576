package gemini

import (
	"context"
	"fmt"
	"unicode/utf8"

	_ "embed"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/spigell/hh-market/internal/ai"
	"github.com/spigell/hh-market/internal/utils"
)

//go:embed estimate_prompt.md
var estimatePrompt string

//go:embed estimate_schema.json
var estimateSchemaJSON string

var estimateSchema = mustSchema(estimateSchemaJSON)

const estimateMessage = "Rate the attached resume."

var (
	minPercent = decimal.RequireFromString("1.5")
	maxPercent = decimal.RequireFromString("2.0")
	hundred    = decimal.NewFromInt(100)
)

type estimateResponse struct {
	Percent     decimal.Decimal `mapstructure:"percent"`
	Explanation string          `mapstructure:"explanation"`
}

// Estimator rates a resume with a percentage used by salary based valuation.
type Estimator struct {
	generator contentGenerator
	logger    *zap.Logger
	maxLogLen int
}

func NewEstimator(generator contentGenerator, logger *zap.Logger, maxLogLength int) *Estimator {
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}

	return &Estimator{generator: generator, logger: logger, maxLogLen: maxLogLength}
}

// Estimate returns the model's percentage as a ratio, kept within 1.5%..2.0%.
func (e *Estimator) Estimate(ctx context.Context, doc ai.Document) (*ai.Estimate, error) {
	if len(doc.Data) == 0 {
		return nil, fmt.Errorf("document is required")
	}

	raw, err := e.generator.GenerateContent(ctx, estimatePrompt, estimateMessage, doc)
	if err != nil {
		return nil, err
	}

	e.logger.Debug("gemini estimate response",
		zap.String("document", doc.Name),
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", utils.TruncateForLog(raw, e.maxLogLen)),
	)

	var resp estimateResponse
	if err := decodeResponse(raw, estimateSchema, &resp); err != nil {
		return nil, err
	}

	if !resp.Percent.IsPositive() {
		return nil, fmt.Errorf("gemini returned non-positive percent %s", resp.Percent)
	}

	percent := resp.Percent
	if percent.LessThan(minPercent) || percent.GreaterThan(maxPercent) {
		clamped := decimal.Min(decimal.Max(percent, minPercent), maxPercent)
		e.logger.Warn("estimate percent out of range, clamping",
			zap.String("percent", percent.String()),
			zap.String("clamped", clamped.String()),
		)
		percent = clamped
	}

	return &ai.Estimate{
		Ratio:       percent.Div(hundred),
		Explanation: resp.Explanation,
		Raw:         raw,
	}, nil
}
