package gemini

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	_ "embed"

	"go.uber.org/zap"

	"github.com/spigell/hh-market/internal/ai"
	"github.com/spigell/hh-market/internal/utils"
)

//go:embed parse_prompt.md
var parsePrompt string

//go:embed parse_schema.json
var parseSchemaJSON string

var parseSchema = mustSchema(parseSchemaJSON)

const parseMessage = "Extract the resume data from the attached document."

// Parser extracts structured resume data from an uploaded document.
type Parser struct {
	generator contentGenerator
	system    string
	logger    *zap.Logger
	maxLogLen int
}

// NewParser builds a Parser. levels are the career titles the model may
// answer with.
func NewParser(generator contentGenerator, levels []string, logger *zap.Logger, maxLogLength int) *Parser {
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}

	return &Parser{
		generator: generator,
		system:    strings.ReplaceAll(parsePrompt, "{{LEVELS}}", "- "+strings.Join(levels, "\n- ")),
		logger:    logger,
		maxLogLen: maxLogLength,
	}
}

func (p *Parser) Parse(ctx context.Context, doc ai.Document) (*ai.ParsedResume, error) {
	if len(doc.Data) == 0 {
		return nil, fmt.Errorf("document is required")
	}

	p.logger.Debug("gemini parse request",
		zap.String("document", doc.Name),
		zap.String("mime_type", doc.MIMEType),
		zap.Int("size", len(doc.Data)),
	)

	raw, err := p.generator.GenerateContent(ctx, p.system, parseMessage, doc)
	if err != nil {
		return nil, err
	}

	p.logger.Debug("gemini parse response",
		zap.String("document", doc.Name),
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", utils.TruncateForLog(raw, p.maxLogLen)),
	)

	var parsed ai.ParsedResume
	if err := decodeResponse(raw, parseSchema, &parsed); err != nil {
		return nil, err
	}

	parsed.Level = strings.TrimSpace(parsed.Level)
	parsed.Raw = raw

	return &parsed, nil
}
