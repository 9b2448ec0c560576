package valuation

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spigell/hh-market/internal/ai"
	"github.com/spigell/hh-market/internal/market"
	"github.com/spigell/hh-market/internal/store"
)

type stubEstimator struct {
	ratio decimal.Decimal
	err   error
	calls int
}

func (s *stubEstimator) Estimate(context.Context, ai.Document) (*ai.Estimate, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &ai.Estimate{Ratio: s.ratio, Explanation: "stub"}, nil
}

type stubParser struct {
	parsed *ai.ParsedResume
	err    error
}

func (s *stubParser) Parse(context.Context, ai.Document) (*ai.ParsedResume, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.parsed, nil
}

func seedResume(t *testing.T, s store.Store) uint {
	t.Helper()

	var id uint
	err := s.Transaction(context.Background(), func(tx store.Tx) error {
		r := &market.Resume{CollaboratorID: 1, CandidateName: "Candidate"}
		if err := tx.CreateResume(r); err != nil {
			return err
		}
		id = r.ID
		return nil
	})
	if err != nil {
		t.Fatalf("seed resume: %v", err)
	}
	return id
}

func loadResume(t *testing.T, s store.Store, id uint) *market.Resume {
	t.Helper()

	var r *market.Resume
	err := s.Transaction(context.Background(), func(tx store.Tx) error {
		var err error
		r, err = tx.Resume(id)
		return err
	})
	if err != nil {
		t.Fatalf("load resume: %v", err)
	}
	return r
}

func assertTotal(t *testing.T, v *market.Valuation) {
	t.Helper()

	sum := v.HardPoint.Add(v.DegreePoint).Add(v.CertificatesPoint)
	if !v.TotalPoint.Equal(sum) {
		t.Fatalf("total %s does not equal the sum of components %s", v.TotalPoint, sum)
	}
}

func scenarioCredentials() Credentials {
	return Credentials{
		Education: []market.Education{{Degree: "Master"}, {Degree: "Bachelor"}},
		Certificates: []market.Certificate{
			{Language: "English", Name: "TOEIC", Level: "750"},
		},
	}
}

func TestValuateLevelScenario(t *testing.T) {
	s := store.NewMemory()
	resumeID := seedResume(t, s)
	engine := New(&Deps{Store: s, Logger: zap.NewNop()})

	v, err := engine.Valuate(context.Background(), resumeID, LevelItem{Level: "Director"}, scenarioCredentials())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !v.HardPoint.Equal(decimal.NewFromInt(8)) {
		t.Fatalf("expected hard point 8, got %s", v.HardPoint)
	}
	if !v.DegreePoint.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("expected degree point 1, got %s", v.DegreePoint)
	}
	if !v.CertificatesPoint.Equal(decimal.RequireFromString("0.5")) {
		t.Fatalf("expected certificates point 0.5, got %s", v.CertificatesPoint)
	}
	if !v.TotalPoint.Equal(decimal.RequireFromString("9.5")) {
		t.Fatalf("expected total point 9.5, got %s", v.TotalPoint)
	}
	assertTotal(t, v)

	if v.HardItemKind != market.HardItemLevel || v.HardItem != "Director" {
		t.Fatalf("unexpected hard item: %s %q", v.HardItemKind, v.HardItem)
	}

	if got := loadResume(t, s, resumeID).Status; got != market.ResumePricingApproved {
		t.Fatalf("expected resume status pricing_approved, got %s", got)
	}
}

func TestValuateUnknownLevelIsWorthZero(t *testing.T) {
	s := store.NewMemory()
	resumeID := seedResume(t, s)
	engine := New(&Deps{Store: s, Logger: zap.NewNop()})

	v, err := engine.Valuate(context.Background(), resumeID, LevelItem{Level: "Wizard"}, Credentials{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !v.HardPoint.IsZero() || !v.TotalPoint.IsZero() {
		t.Fatalf("expected zero points, got hard %s total %s", v.HardPoint, v.TotalPoint)
	}
}

func TestValuateSalary(t *testing.T) {
	s := store.NewMemory()
	resumeID := seedResume(t, s)
	estimator := &stubEstimator{ratio: decimal.RequireFromString("0.018")}
	engine := New(&Deps{Store: s, Estimator: estimator, Logger: zap.NewNop()})

	item := SalaryItem{Amount: decimal.NewFromInt(32_000_000), Document: ai.Document{Name: "cv.pdf"}}
	v, err := engine.Valuate(context.Background(), resumeID, item, Credentials{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// 0.018 * 32,000,000 / 100,000 = 5.76 -> 5.8
	if !v.HardPoint.Equal(decimal.RequireFromString("5.8")) {
		t.Fatalf("expected hard point 5.8, got %s", v.HardPoint)
	}
	if v.HardItemKind != market.HardItemSalary || v.HardItem != "32000000" {
		t.Fatalf("unexpected hard item: %s %q", v.HardItemKind, v.HardItem)
	}
	assertTotal(t, v)
}

func TestValuateSalaryUsesConfiguredExchangeRate(t *testing.T) {
	s := store.NewMemory()
	resumeID := seedResume(t, s)
	moneyPerPoint := decimal.NewFromInt(1000)
	rules, err := NewRules(DefaultTiers(), Options{MoneyPerPoint: &moneyPerPoint})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	engine := New(&Deps{Store: s, Rules: rules, Estimator: &stubEstimator{ratio: decimal.RequireFromString("0.02")}, Logger: zap.NewNop()})

	v, err := engine.Valuate(context.Background(), resumeID, SalaryItem{Amount: decimal.NewFromInt(2500)}, Credentials{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !v.HardPoint.Equal(decimal.RequireFromString("0.1")) {
		t.Fatalf("expected hard point 0.1, got %s", v.HardPoint)
	}
}

func TestValuateSalaryMissingResumeSkipsEstimator(t *testing.T) {
	estimator := &stubEstimator{ratio: decimal.RequireFromString("0.015")}
	engine := New(&Deps{Store: store.NewMemory(), Estimator: estimator, Logger: zap.NewNop()})

	_, err := engine.Valuate(context.Background(), 99, SalaryItem{Amount: decimal.NewFromInt(1000)}, Credentials{})

	var nf *market.NotFoundError
	if !errors.As(err, &nf) || nf.Entity != "resume" {
		t.Fatalf("expected resume not found, got %v", err)
	}
	if estimator.calls != 0 {
		t.Fatalf("estimator must not be called for a missing resume")
	}
}

func TestValuateMissingResume(t *testing.T) {
	engine := New(&Deps{Store: store.NewMemory(), Logger: zap.NewNop()})

	_, err := engine.Valuate(context.Background(), 99, LevelItem{Level: "Manager"}, Credentials{})

	var nf *market.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected not found error, got %v", err)
	}
	if nf.Entity != "resume" || nf.ID != 99 {
		t.Fatalf("unexpected not found error: %+v", nf)
	}
}

func TestValuateRequiresHardItem(t *testing.T) {
	s := store.NewMemory()
	engine := New(&Deps{Store: s, Logger: zap.NewNop()})

	_, err := engine.Valuate(context.Background(), seedResume(t, s), nil, Credentials{})
	if !errors.Is(err, market.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestValuateLogsSkippedCertificate(t *testing.T) {
	core, observed := observer.New(zapcore.WarnLevel)
	s := store.NewMemory()
	resumeID := seedResume(t, s)
	engine := New(&Deps{Store: s, Logger: zap.New(core)})

	creds := Credentials{Certificates: []market.Certificate{
		{Language: "English", Name: "TOEIC", Level: "n/a score"},
		{Language: "English", Name: "TOEIC", Level: "905"},
	}}

	v, err := engine.Valuate(context.Background(), resumeID, LevelItem{Level: "Manager"}, creds)
	if err != nil {
		t.Fatalf("a malformed certificate must not abort the valuation: %v", err)
	}

	if !v.TotalPoint.Equal(decimal.RequireFromString("5.5")) {
		t.Fatalf("expected total point 5.5, got %s", v.TotalPoint)
	}

	if observed.FilterMessage("skipping certificate").Len() != 1 {
		t.Fatalf("expected one skipped certificate warning, got %d", observed.Len())
	}
}

func TestRevaluatePartialUpdates(t *testing.T) {
	s := store.NewMemory()
	resumeID := seedResume(t, s)
	engine := New(&Deps{Store: s, Logger: zap.NewNop()})
	ctx := context.Background()

	if _, err := engine.Valuate(ctx, resumeID, LevelItem{Level: "Director"}, scenarioCredentials()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	v, err := engine.Revaluate(ctx, resumeID, Update{HardItem: LevelItem{Level: "General Director"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !v.TotalPoint.Equal(decimal.RequireFromString("31.5")) {
		t.Fatalf("expected total 31.5 after level change, got %s", v.TotalPoint)
	}
	if len(v.Degrees) != 2 || len(v.Certificates) != 1 {
		t.Fatalf("untouched components must be kept: %+v", v)
	}

	education := []market.Education{{Degree: "Ph.D"}}
	v, err = engine.Revaluate(ctx, resumeID, Update{Education: &education})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !v.DegreePoint.Equal(decimal.RequireFromString("0.5")) {
		t.Fatalf("expected degree point 0.5, got %s", v.DegreePoint)
	}
	if !v.TotalPoint.Equal(decimal.NewFromInt(31)) {
		t.Fatalf("expected total 31, got %s", v.TotalPoint)
	}
	assertTotal(t, v)

	noCerts := []market.Certificate{}
	v, err = engine.Revaluate(ctx, resumeID, Update{Certificates: &noCerts})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !v.TotalPoint.Equal(decimal.RequireFromString("30.5")) {
		t.Fatalf("expected total 30.5, got %s", v.TotalPoint)
	}
	assertTotal(t, v)
}

func TestRevaluateIsIdempotent(t *testing.T) {
	s := store.NewMemory()
	resumeID := seedResume(t, s)
	engine := New(&Deps{Store: s, Logger: zap.NewNop()})
	ctx := context.Background()

	if _, err := engine.Valuate(ctx, resumeID, LevelItem{Level: "Manager"}, Credentials{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	creds := scenarioCredentials()
	upd := Update{
		HardItem:     LevelItem{Level: "Director"},
		Education:    &creds.Education,
		Certificates: &creds.Certificates,
	}

	first, err := engine.Revaluate(ctx, resumeID, upd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := engine.Revaluate(ctx, resumeID, upd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if first.ID != second.ID {
		t.Fatalf("expected the same record, got %d and %d", first.ID, second.ID)
	}
	if !first.TotalPoint.Equal(second.TotalPoint) || !first.HardPoint.Equal(second.HardPoint) ||
		!first.DegreePoint.Equal(second.DegreePoint) || !first.CertificatesPoint.Equal(second.CertificatesPoint) {
		t.Fatalf("repeated revaluation drifted: %+v vs %+v", first, second)
	}
	if !second.TotalPoint.Equal(decimal.RequireFromString("9.5")) {
		t.Fatalf("expected total 9.5, got %s", second.TotalPoint)
	}
}

func TestRevaluateWithoutValuation(t *testing.T) {
	s := store.NewMemory()
	resumeID := seedResume(t, s)
	engine := New(&Deps{Store: s, Logger: zap.NewNop()})

	_, err := engine.Revaluate(context.Background(), resumeID, Update{HardItem: LevelItem{Level: "Manager"}})

	var nf *market.NotFoundError
	if !errors.As(err, &nf) || nf.Entity != "valuation" {
		t.Fatalf("expected valuation not found, got %v", err)
	}
	if nf.Reason == "" {
		t.Fatalf("expected a distinct reason for a missing valuation")
	}
}

func TestRevaluateRequiresChanges(t *testing.T) {
	engine := New(&Deps{Store: store.NewMemory(), Logger: zap.NewNop()})

	if _, err := engine.Revaluate(context.Background(), 1, Update{}); !errors.Is(err, market.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestValuateDocument(t *testing.T) {
	s := store.NewMemory()
	resumeID := seedResume(t, s)
	parser := &stubParser{parsed: &ai.ParsedResume{
		Level:        "Director",
		Education:    []market.Education{{Degree: "Master"}, {Degree: "Bachelor"}},
		Certificates: []market.Certificate{{Language: "English", Name: "TOEIC", Level: "750"}},
	}}
	engine := New(&Deps{Store: s, Parser: parser, Logger: zap.NewNop()})

	v, err := engine.ValuateDocument(context.Background(), resumeID, ai.Document{Name: "cv.pdf", MIMEType: "application/pdf"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !v.TotalPoint.Equal(decimal.RequireFromString("9.5")) {
		t.Fatalf("expected total 9.5, got %s", v.TotalPoint)
	}
}

func TestValuateDocumentFallsBackToSalary(t *testing.T) {
	s := store.NewMemory()
	resumeID := seedResume(t, s)
	parser := &stubParser{parsed: &ai.ParsedResume{CurrentSalary: decimal.NewFromInt(10_000_000)}}
	estimator := &stubEstimator{ratio: decimal.RequireFromString("0.015")}
	engine := New(&Deps{Store: s, Parser: parser, Estimator: estimator, Logger: zap.NewNop()})

	v, err := engine.ValuateDocument(context.Background(), resumeID, ai.Document{Name: "cv.pdf"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if estimator.calls != 1 {
		t.Fatalf("expected one estimator call, got %d", estimator.calls)
	}
	if !v.HardPoint.Equal(decimal.RequireFromString("1.5")) {
		t.Fatalf("expected hard point 1.5, got %s", v.HardPoint)
	}
}

func TestValuateDocumentParserError(t *testing.T) {
	s := store.NewMemory()
	resumeID := seedResume(t, s)
	engine := New(&Deps{Store: s, Parser: &stubParser{err: errors.New("quota")}, Logger: zap.NewNop()})

	if _, err := engine.ValuateDocument(context.Background(), resumeID, ai.Document{}); err == nil {
		t.Fatal("expected parser error")
	}

	if got := loadResume(t, s, resumeID).Status; got != market.ResumePending {
		t.Fatalf("resume status must not change on failure, got %s", got)
	}
}

func TestSalaryPoint(t *testing.T) {
	got := SalaryPoint(decimal.RequireFromString("0.0175"), decimal.NewFromInt(20_000_000), decimal.NewFromInt(100_000))
	if !got.Equal(decimal.RequireFromString("3.5")) {
		t.Fatalf("expected 3.5, got %s", got)
	}
}
