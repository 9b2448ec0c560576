package ledger

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/spigell/hh-market/internal/market"
	"github.com/spigell/hh-market/internal/payment"
	"github.com/spigell/hh-market/internal/store"
)

type stubProvider struct {
	receipt *payment.Receipt
	err     error
	calls   int
}

func (s *stubProvider) Verify(_ context.Context, ref string) (*payment.Receipt, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	r := *s.receipt
	r.Reference = ref
	return &r, nil
}

// conflictStore fails the first failures transactions with store.ErrConflict.
type conflictStore struct {
	store.Store
	failures int
	attempts int
}

func (c *conflictStore) Transaction(ctx context.Context, fn func(tx store.Tx) error) error {
	c.attempts++
	if c.failures > 0 {
		c.failures--
		return fmt.Errorf("deadlock found: %w", store.ErrConflict)
	}
	return c.Store.Transaction(ctx, fn)
}

type fixture struct {
	store        *store.Memory
	recruiter    uint
	collaborator uint
	resume       uint
	job          uint
	pkg          uint
}

func newFixture(t *testing.T, recruiterPoint, totalPoint string) *fixture {
	t.Helper()

	f := &fixture{store: store.NewMemory()}
	err := f.store.Transaction(context.Background(), func(tx store.Tx) error {
		recruiter := &market.User{Name: "recruiter", Role: market.RoleRecruiter, Point: decimal.RequireFromString(recruiterPoint)}
		if err := tx.CreateUser(recruiter); err != nil {
			return err
		}
		collaborator := &market.User{Name: "collaborator", Role: market.RoleCollaborator}
		if err := tx.CreateUser(collaborator); err != nil {
			return err
		}
		resume := &market.Resume{CollaboratorID: collaborator.ID, CandidateName: "Nguyen Van A"}
		if err := tx.CreateResume(resume); err != nil {
			return err
		}
		if totalPoint != "" {
			v := &market.Valuation{
				ResumeID:     resume.ID,
				HardItemKind: market.HardItemLevel,
				HardItem:     "Director",
				HardPoint:    decimal.RequireFromString(totalPoint),
			}
			v.Recompute()
			if err := tx.SaveValuation(v); err != nil {
				return err
			}
		}
		job := &market.Job{RecruiterID: recruiter.ID, Title: "CTO", HeadhuntPoint: decimal.NewFromInt(12), WarrantyTime: 30}
		if err := tx.CreateJob(job); err != nil {
			return err
		}
		pkg := &market.PointPackage{Point: decimal.NewFromInt(10), Price: decimal.NewFromInt(1000000), Currency: "VND"}
		if err := tx.CreatePointPackage(pkg); err != nil {
			return err
		}

		f.recruiter, f.collaborator, f.resume, f.job, f.pkg = recruiter.ID, collaborator.ID, resume.ID, job.ID, pkg.ID
		return nil
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return f
}

func (f *fixture) user(t *testing.T, id uint) *market.User {
	t.Helper()
	var u *market.User
	err := f.store.Transaction(context.Background(), func(tx store.Tx) error {
		var err error
		u, err = tx.User(id)
		return err
	})
	if err != nil {
		t.Fatalf("load user %d: %v", id, err)
	}
	return u
}

func newLedger(t *testing.T, st store.Store, provider payment.Provider, cfg Config) *Ledger {
	t.Helper()
	cfg.RetryBackoff = 0
	l, err := New(st, provider, cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	return l
}

func assertPoint(t *testing.T, got decimal.Decimal, want string) {
	t.Helper()
	if !got.Equal(decimal.RequireFromString(want)) {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestSelectCandidateInsufficientPoints(t *testing.T) {
	f := newFixture(t, "5", "8")
	l := newLedger(t, f.store, nil, DefaultConfig())

	_, err := l.SelectCandidate(context.Background(), f.recruiter, f.resume, Selection{Package: market.PackageBasic})

	var short *market.InsufficientPointsError
	if !errors.As(err, &short) {
		t.Fatalf("expected InsufficientPointsError, got %v", err)
	}
	assertPoint(t, short.Shortfall(), "3")
	assertPoint(t, f.user(t, f.recruiter).Point, "5")

	// Ids are shared across entities; the next one would belong to the claim.
	err = f.store.Transaction(context.Background(), func(tx store.Tx) error {
		_, err := tx.RecruitResume(f.pkg + 1)
		return err
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected no recruit record, got %v", err)
	}
}

func TestSelectCandidatePlatinum(t *testing.T) {
	f := newFixture(t, "25", "2")
	l := newLedger(t, f.store, nil, DefaultConfig())

	rr, err := l.SelectCandidate(context.Background(), f.recruiter, f.resume, Selection{Package: market.PackagePlatinum})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	assertPoint(t, rr.Fee, "20")
	assertPoint(t, f.user(t, f.recruiter).Point, "5")
	if rr.Package != market.PackagePlatinum {
		t.Fatalf("expected platinum package, got %s", rr.Package)
	}
	if rr.WarrantyState != market.WarrantyNone {
		t.Fatalf("expected no warranty, got %s", rr.WarrantyState)
	}
}

func TestSelectCandidateBasicExactBalance(t *testing.T) {
	f := newFixture(t, "9.5", "9.5")
	l := newLedger(t, f.store, nil, DefaultConfig())

	rr, err := l.SelectCandidate(context.Background(), f.recruiter, f.resume, Selection{Package: market.PackageBasic})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	assertPoint(t, rr.Fee, "9.5")
	assertPoint(t, f.user(t, f.recruiter).Point, "0")
}

func TestSelectCandidateHeadhuntEscrow(t *testing.T) {
	f := newFixture(t, "20", "")
	l := newLedger(t, f.store, nil, DefaultConfig())

	rr, err := l.SelectCandidate(context.Background(), f.recruiter, f.resume, Selection{Package: market.PackageHeadhunt, JobID: f.job})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	assertPoint(t, rr.Fee, "12")
	if rr.WarrantyState != market.WarrantyActive || rr.RemainWarrantyTime != 30 {
		t.Fatalf("expected active warranty of 30 days, got %s/%d", rr.WarrantyState, rr.RemainWarrantyTime)
	}
	if rr.JobID == nil || *rr.JobID != f.job {
		t.Fatalf("expected job %d on record", f.job)
	}

	assertPoint(t, f.user(t, f.recruiter).Point, "8")
	collaborator := f.user(t, f.collaborator)
	assertPoint(t, collaborator.WarrantyPoint, "12")
	assertPoint(t, collaborator.Point, "0")
}

func TestSelectCandidateHeadhuntWithoutWarrantyReleases(t *testing.T) {
	f := newFixture(t, "20", "")
	_ = f.store.Transaction(context.Background(), func(tx store.Tx) error {
		job := &market.Job{RecruiterID: f.recruiter, Title: "Intern", HeadhuntPoint: decimal.NewFromInt(4)}
		err := tx.CreateJob(job)
		f.job = job.ID
		return err
	})
	l := newLedger(t, f.store, nil, DefaultConfig())

	rr, err := l.SelectCandidate(context.Background(), f.recruiter, f.resume, Selection{Package: market.PackageHeadhunt, JobID: f.job})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if rr.WarrantyState != market.WarrantyExpired {
		t.Fatalf("expected expired warranty, got %s", rr.WarrantyState)
	}
	collaborator := f.user(t, f.collaborator)
	assertPoint(t, collaborator.Point, "4")
	assertPoint(t, collaborator.WarrantyPoint, "0")
}

func TestSelectCandidateRejections(t *testing.T) {
	tests := []struct {
		name     string
		payer    func(f *fixture) uint
		resume   func(f *fixture) uint
		sel      Selection
		valuated bool
		check    func(t *testing.T, err error)
	}{
		{
			name:     "collaborator cannot select",
			payer:    func(f *fixture) uint { return f.collaborator },
			resume:   func(f *fixture) uint { return f.resume },
			sel:      Selection{Package: market.PackageBasic},
			valuated: true,
			check: func(t *testing.T, err error) {
				if !errors.Is(err, market.ErrForbidden) {
					t.Fatalf("expected ErrForbidden, got %v", err)
				}
			},
		},
		{
			name:   "resume without valuation",
			payer:  func(f *fixture) uint { return f.recruiter },
			resume: func(f *fixture) uint { return f.resume },
			sel:    Selection{Package: market.PackageBasic},
			check: func(t *testing.T, err error) {
				var nf *market.NotFoundError
				if !errors.As(err, &nf) || nf.Entity != "valuation" {
					t.Fatalf("expected valuation NotFoundError, got %v", err)
				}
			},
		},
		{
			name:     "missing resume",
			payer:    func(f *fixture) uint { return f.recruiter },
			resume:   func(f *fixture) uint { return 999 },
			sel:      Selection{Package: market.PackageBasic},
			valuated: true,
			check: func(t *testing.T, err error) {
				var nf *market.NotFoundError
				if !errors.As(err, &nf) || nf.Entity != "resume" {
					t.Fatalf("expected resume NotFoundError, got %v", err)
				}
			},
		},
		{
			name:     "headhunt without job",
			payer:    func(f *fixture) uint { return f.recruiter },
			resume:   func(f *fixture) uint { return f.resume },
			sel:      Selection{Package: market.PackageHeadhunt},
			valuated: true,
			check: func(t *testing.T, err error) {
				if !errors.Is(err, market.ErrInvalidInput) {
					t.Fatalf("expected ErrInvalidInput, got %v", err)
				}
			},
		},
		{
			name:     "unknown package",
			payer:    func(f *fixture) uint { return f.recruiter },
			resume:   func(f *fixture) uint { return f.resume },
			sel:      Selection{Package: "gold"},
			valuated: true,
			check: func(t *testing.T, err error) {
				if !errors.Is(err, market.ErrInvalidInput) {
					t.Fatalf("expected ErrInvalidInput, got %v", err)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			total := ""
			if tt.valuated {
				total = "2"
			}
			f := newFixture(t, "100", total)
			l := newLedger(t, f.store, nil, DefaultConfig())

			_, err := l.SelectCandidate(context.Background(), tt.payer(f), tt.resume(f), tt.sel)
			tt.check(t, err)
			assertPoint(t, f.user(t, f.recruiter).Point, "100")
		})
	}
}

func TestSelectCandidateRetriesConflicts(t *testing.T) {
	f := newFixture(t, "10", "2")
	st := &conflictStore{Store: f.store, failures: 2}
	l := newLedger(t, st, nil, DefaultConfig())

	if _, err := l.SelectCandidate(context.Background(), f.recruiter, f.resume, Selection{Package: market.PackageBasic}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", st.attempts)
	}
	assertPoint(t, f.user(t, f.recruiter).Point, "8")
}

func TestSelectCandidateGivesUpAfterRetries(t *testing.T) {
	f := newFixture(t, "10", "2")
	st := &conflictStore{Store: f.store, failures: 10}
	cfg := DefaultConfig()
	cfg.MaxRetries = 2
	l := newLedger(t, st, nil, cfg)

	_, err := l.SelectCandidate(context.Background(), f.recruiter, f.resume, Selection{Package: market.PackageBasic})
	if !errors.Is(err, market.ErrTryAgain) {
		t.Fatalf("expected ErrTryAgain, got %v", err)
	}
	if st.attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", st.attempts)
	}
	assertPoint(t, f.user(t, f.recruiter).Point, "10")
}

func TestPurchasePoints(t *testing.T) {
	f := newFixture(t, "1", "")
	provider := &stubProvider{receipt: &payment.Receipt{Amount: decimal.NewFromInt(3000000), Currency: "vnd", Status: "completed"}}
	l := newLedger(t, f.store, provider, DefaultConfig())

	history, err := l.PurchasePoints(context.Background(), f.recruiter, f.pkg, 3, "pay-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	assertPoint(t, history.Point, "30")
	assertPoint(t, history.Amount, "3000000")
	assertPoint(t, f.user(t, f.recruiter).Point, "31")

	_, err = l.PurchasePoints(context.Background(), f.recruiter, f.pkg, 3, "pay-1")
	if !errors.Is(err, market.ErrPaymentReused) {
		t.Fatalf("expected ErrPaymentReused, got %v", err)
	}
	if provider.calls != 1 {
		t.Fatalf("expected reused reference to skip the provider, got %d calls", provider.calls)
	}
	assertPoint(t, f.user(t, f.recruiter).Point, "31")
}

func TestPurchasePointsRejectsMismatch(t *testing.T) {
	tests := []struct {
		name    string
		receipt payment.Receipt
		err     error
	}{
		{
			name:    "amount differs",
			receipt: payment.Receipt{Amount: decimal.NewFromInt(1000000), Currency: "VND", Status: "completed"},
		},
		{
			name:    "currency differs",
			receipt: payment.Receipt{Amount: decimal.NewFromInt(2000000), Currency: "USD", Status: "completed"},
		},
		{
			name:    "payment not completed",
			receipt: payment.Receipt{Amount: decimal.NewFromInt(2000000), Currency: "VND", Status: "pending"},
		},
		{
			name: "unknown reference",
			err:  payment.ErrUnknownReference,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, "1", "")
			receipt := tt.receipt
			provider := &stubProvider{receipt: &receipt, err: tt.err}
			l := newLedger(t, f.store, provider, DefaultConfig())

			_, err := l.PurchasePoints(context.Background(), f.recruiter, f.pkg, 2, "pay-2")
			if !errors.Is(err, market.ErrPaymentMismatch) {
				t.Fatalf("expected ErrPaymentMismatch, got %v", err)
			}

			assertPoint(t, f.user(t, f.recruiter).Point, "1")
			_ = f.store.Transaction(context.Background(), func(tx store.Tx) error {
				history, err := tx.Transactions(f.recruiter)
				if err != nil {
					t.Fatalf("load history: %v", err)
				}
				if len(history) != 0 {
					t.Fatalf("expected no transaction history, got %d", len(history))
				}
				return nil
			})
		})
	}
}

func TestPurchasePointsValidatesInput(t *testing.T) {
	f := newFixture(t, "1", "")
	l := newLedger(t, f.store, &stubProvider{}, DefaultConfig())

	if _, err := l.PurchasePoints(context.Background(), f.recruiter, f.pkg, 0, "pay"); !errors.Is(err, market.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for zero quantity, got %v", err)
	}
	if _, err := l.PurchasePoints(context.Background(), f.recruiter, f.pkg, 1, " "); !errors.Is(err, market.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for empty reference, got %v", err)
	}

	var nf *market.NotFoundError
	if _, err := l.PurchasePoints(context.Background(), f.recruiter, 999, 1, "pay"); !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError for unknown package, got %v", err)
	}
}

func TestRequestDraw(t *testing.T) {
	f := newFixture(t, "1", "")
	l := newLedger(t, f.store, nil, DefaultConfig())

	draw, err := l.RequestDraw(context.Background(), f.collaborator, decimal.RequireFromString("7.5"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if draw.Status != market.DrawPending {
		t.Fatalf("expected pending draw, got %s", draw.Status)
	}
	assertPoint(t, draw.DrawPoint, "7.5")

	if _, err := l.RequestDraw(context.Background(), f.collaborator, decimal.Zero); !errors.Is(err, market.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := l.RequestDraw(context.Background(), f.recruiter, decimal.NewFromInt(1)); !errors.Is(err, market.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestReleaseModes(t *testing.T) {
	tests := []struct {
		mode          ReleaseMode
		point         string
		warrantyPoint string
	}{
		{mode: ReleaseAdd, point: "15", warrantyPoint: "5"},
		{mode: ReleaseOverwrite, point: "12", warrantyPoint: "0"},
	}

	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			f := newFixture(t, "100", "")
			cfg := DefaultConfig()
			cfg.ReleaseMode = tt.mode
			l := newLedger(t, f.store, nil, cfg)

			rr, err := l.SelectCandidate(context.Background(), f.recruiter, f.resume, Selection{Package: market.PackageHeadhunt, JobID: f.job})
			if err != nil {
				t.Fatalf("select: %v", err)
			}

			// Another escrowed fee and some earned points on the collaborator.
			err = f.store.Transaction(context.Background(), func(tx store.Tx) error {
				c, err := tx.User(f.collaborator)
				if err != nil {
					return err
				}
				c.Point = decimal.NewFromInt(3)
				c.WarrantyPoint = c.WarrantyPoint.Add(decimal.NewFromInt(5))
				return tx.SaveUserPoints(c)
			})
			if err != nil {
				t.Fatalf("adjust collaborator: %v", err)
			}

			err = f.store.Transaction(context.Background(), func(tx store.Tx) error {
				stored, err := tx.RecruitResume(rr.ID)
				if err != nil {
					return err
				}
				if err := l.Release(tx, stored); err != nil {
					return err
				}
				// A second release of the same record is a no-op.
				return l.Release(tx, stored)
			})
			if err != nil {
				t.Fatalf("release: %v", err)
			}

			c := f.user(t, f.collaborator)
			assertPoint(t, c.Point, tt.point)
			assertPoint(t, c.WarrantyPoint, tt.warrantyPoint)
		})
	}
}

func TestNewValidatesConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ReleaseMode = "split"
	if _, err := New(store.NewMemory(), nil, cfg, zap.NewNop()); err == nil {
		t.Fatal("expected error for unknown release mode")
	}

	cfg = DefaultConfig()
	cfg.MaxRetries = -1
	if _, err := New(store.NewMemory(), nil, cfg, zap.NewNop()); err == nil {
		t.Fatal("expected error for negative retries")
	}

	for _, m := range []int64{0, -10} {
		cfg = DefaultConfig()
		cfg.PlatinumMultiplier = decimal.NewFromInt(m)
		if _, err := New(store.NewMemory(), nil, cfg, zap.NewNop()); err == nil {
			t.Fatalf("expected error for platinum multiplier %d", m)
		}
	}
}
