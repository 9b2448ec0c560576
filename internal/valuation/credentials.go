package valuation

import (
	"fmt"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/spigell/hh-market/internal/market"
)

const notAvailable = "N/A"

func hasSentinel(c market.Certificate) bool {
	return c.Language == notAvailable || c.Name == notAvailable || c.Level == notAvailable
}

// Credentials is the scorable part of a resume.
type Credentials struct {
	Education    []market.Education   `json:"education"`
	Certificates []market.Certificate `json:"certificates"`
}

// SkippedCredential is a certificate that could not be evaluated.
type SkippedCredential struct {
	Certificate market.Certificate
	Reason      string
}

// CredentialScore is the outcome of scoring education and certificates.
type CredentialScore struct {
	Degrees           []string
	DegreePoint       decimal.Decimal
	Certificates      []string
	CertificatesPoint decimal.Decimal
	Skipped           []SkippedCredential
}

// ScoreDegrees keeps Bachelor, Master and Ph.D entries, each worth half a point.
func (r *Rules) ScoreDegrees(education []market.Education) ([]string, decimal.Decimal) {
	degrees := make([]string, 0, len(education))
	for _, e := range education {
		if _, ok := r.degrees[e.Degree]; ok {
			degrees = append(degrees, e.Degree)
		}
	}

	return degrees, r.creditPerItem.Mul(decimal.NewFromInt(int64(len(degrees))))
}

// ScoreCertificates keeps certificates matching a qualification rule, each
// worth half a point. A certificate that cannot be evaluated is reported in
// the skipped list and does not affect the others.
func (r *Rules) ScoreCertificates(certificates []market.Certificate) ([]string, decimal.Decimal, []SkippedCredential) {
	qualified := make([]string, 0, len(certificates))
	var skipped []SkippedCredential

	rules := r.certificateRules()

	for _, cert := range certificates {
		if hasSentinel(cert) {
			continue
		}

		for _, rule := range rules {
			if !rule.applies(cert) {
				continue
			}

			ok, err := rule.qualifies(cert)
			if err != nil {
				skipped = append(skipped, SkippedCredential{Certificate: cert, Reason: fmt.Sprintf("%s: %s", rule.name, err)})
				break
			}
			if ok {
				qualified = append(qualified, cert.Descriptor())
			}
			break
		}
	}

	return qualified, r.creditPerItem.Mul(decimal.NewFromInt(int64(len(qualified)))), skipped
}

// ScoreCredentials scores degrees and certificates together.
func (r *Rules) ScoreCredentials(c Credentials) CredentialScore {
	degrees, degreePoint := r.ScoreDegrees(c.Education)
	certs, certsPoint, skipped := r.ScoreCertificates(c.Certificates)

	return CredentialScore{
		Degrees:           degrees,
		DegreePoint:       degreePoint,
		Certificates:      certs,
		CertificatesPoint: certsPoint,
		Skipped:           skipped,
	}
}

type certificateRule struct {
	name      string
	applies   func(c market.Certificate) bool
	qualifies func(c market.Certificate) (bool, error)
}

var (
	toeicThreshold = decimal.NewFromInt(700)
	ieltsThreshold = decimal.RequireFromString("7.0")
	hskLevels      = []string{"HSK-5", "HSK-6"}
)

func (r *Rules) certificateRules() []certificateRule {
	return []certificateRule{
		{
			name:    "english",
			applies: func(c market.Certificate) bool { return c.Language == "English" },
			qualifies: func(c market.Certificate) (bool, error) {
				var threshold decimal.Decimal
				switch c.Name {
				case "TOEIC":
					threshold = toeicThreshold
				case "IELTS":
					threshold = ieltsThreshold
				default:
					return false, nil
				}

				score, err := decimal.NewFromString(strings.TrimSpace(c.Level))
				if err != nil {
					return false, fmt.Errorf("score %q is not a number", c.Level)
				}
				return score.GreaterThan(threshold), nil
			},
		},
		{
			name:    "japanese",
			applies: func(c market.Certificate) bool { return c.Language == "Japan" || c.Language == "Japanese" },
			qualifies: func(c market.Certificate) (bool, error) {
				return c.Level == "N1" || c.Level == "N2", nil
			},
		},
		{
			name:    "korean",
			applies: func(c market.Certificate) bool { return c.Language == "Korean" },
			qualifies: func(c market.Certificate) (bool, error) {
				return c.Name == "Topik_II" && (c.Level == "Level 5" || c.Level == "Level 6"), nil
			},
		},
		{
			name:    "chinese",
			applies: func(c market.Certificate) bool { return c.Language == "Chinese" },
			qualifies: func(c market.Certificate) (bool, error) {
				if r.hskMembership {
					return slices.Contains(hskLevels, c.Level), nil
				}
				// Legacy rule compares a single level with the whole list,
				// which never holds.
				return false, nil
			},
		},
	}
}
