package valuation

import (
	"fmt"
	"slices"

	"github.com/shopspring/decimal"
)

// Tier is a named group of level titles sharing one point value.
type Tier struct {
	Name   string
	Titles []string
	Point  decimal.Decimal
}

// Rules is the process-wide scoring configuration. Build it once with
// NewRules and share it read-only.
type Rules struct {
	tiers         []Tier
	degrees       map[string]struct{}
	creditPerItem decimal.Decimal
	moneyPerPoint decimal.Decimal
	hskMembership bool
}

// Options tunes the parts of Rules that are deployment configuration.
type Options struct {
	// MoneyPerPoint is how many money units one point is worth for salary
	// based valuation. Nil means 100000.
	MoneyPerPoint *decimal.Decimal
	// ChineseHSKMembership makes HSK-5 and HSK-6 qualify. When false the
	// Chinese rule compares the level against the whole list and never
	// matches, which is how the rule behaves in production today.
	ChineseHSKMembership bool
}

var defaultMoneyPerPoint = decimal.NewFromInt(100000)

// DefaultTiers returns the nine career tiers in evaluation order.
func DefaultTiers() []Tier {
	return []Tier{
		{Name: "executive", Titles: []string{"Executive", "Senior", "Engineer", "Developer"}, Point: decimal.NewFromInt(2)},
		{Name: "leader", Titles: []string{"Leader", "Supervisor", "Team Leader"}, Point: decimal.NewFromInt(3)},
		{Name: "assistant_manager", Titles: []string{"Assistant Manager", "Deputy Manager"}, Point: decimal.NewFromInt(4)},
		{Name: "manager", Titles: []string{"Manager"}, Point: decimal.NewFromInt(5)},
		{Name: "director", Titles: []string{"Director", "Deputy Director", "Senior Manager"}, Point: decimal.NewFromInt(8)},
		{Name: "vice_president", Titles: []string{"Vice President", "Head of Department"}, Point: decimal.NewFromInt(15)},
		{Name: "chief_officer", Titles: []string{"Chief Officer", "CFO", "CTO", "COO", "CMO"}, Point: decimal.NewFromInt(20)},
		{Name: "deputy_general", Titles: []string{"Deputy General Manager", "Deputy General Director"}, Point: decimal.NewFromInt(25)},
		{Name: "general", Titles: []string{"General Manager", "General Director"}, Point: decimal.NewFromInt(30)},
	}
}

// NewRules validates tiers and builds the lookup tables. A title may belong
// to one tier only.
func NewRules(tiers []Tier, opts Options) (*Rules, error) {
	if len(tiers) == 0 {
		return nil, fmt.Errorf("at least one tier is required")
	}

	r := &Rules{
		tiers: make([]Tier, 0, len(tiers)),
		degrees: map[string]struct{}{
			"Bachelor": {},
			"Master":   {},
			"Ph.D":     {},
		},
		creditPerItem: decimal.RequireFromString("0.5"),
		moneyPerPoint: defaultMoneyPerPoint,
		hskMembership: opts.ChineseHSKMembership,
	}

	if opts.MoneyPerPoint != nil {
		if !opts.MoneyPerPoint.IsPositive() {
			return nil, fmt.Errorf("money per point must be positive, got %s", opts.MoneyPerPoint)
		}
		r.moneyPerPoint = *opts.MoneyPerPoint
	}

	seen := make(map[string]int)
	for idx, tier := range tiers {
		for _, title := range tier.Titles {
			if prev, ok := seen[title]; ok {
				return nil, fmt.Errorf("title %q is listed in tiers %q and %q", title, tiers[prev].Name, tier.Name)
			}
			seen[title] = idx
		}
		r.tiers = append(r.tiers, Tier{
			Name:   tier.Name,
			Titles: append([]string(nil), tier.Titles...),
			Point:  tier.Point,
		})
	}

	return r, nil
}

// MustDefaultRules returns Rules over DefaultTiers with default options.
func MustDefaultRules() *Rules {
	r, err := NewRules(DefaultTiers(), Options{})
	if err != nil {
		panic(err)
	}
	return r
}

// LevelPoint returns the point of the first tier containing level, matched
// exactly and case-sensitively. Unknown levels are worth zero.
func (r *Rules) LevelPoint(level string) decimal.Decimal {
	for _, tier := range r.tiers {
		if slices.Contains(tier.Titles, level) {
			return tier.Point
		}
	}
	return decimal.Zero
}

// Tiers returns a copy of the configured tiers.
func (r *Rules) Tiers() []Tier {
	out := make([]Tier, len(r.tiers))
	copy(out, r.tiers)
	return out
}

func (r *Rules) MoneyPerPoint() decimal.Decimal {
	return r.moneyPerPoint
}
