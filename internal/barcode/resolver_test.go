package barcode

import (
	"context"
	"errors"
	"testing"
	"time"

	"rollyshop/backend/internal/catalog"
	"rollyshop/backend/internal/domain"
)

type stubLookup struct {
	products map[string]domain.Product
	err      error
	calls    int
}

func (s *stubLookup) ProductByBarcode(_ context.Context, code string) (*domain.Product, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if p, ok := s.products[code]; ok {
		return &p, nil
	}
	return nil, catalog.ErrProductNotFound
}

func testSnapshot() *catalog.Snapshot {
	return catalog.NewSnapshot([]domain.Product{
		{ID: "prod-a", Name: "Kopi Sachet", Kind: domain.ProductSimple, Barcode: "8991002101234", DiscountedPriceCents: 2600, StockQuantity: 20, Active: true},
		{ID: "prod-b", Name: "Roti Tawar", Kind: domain.ProductSimple, Barcode: "8991002105555", DiscountedPriceCents: 17800, StockQuantity: 8, Active: true},
	}, time.Now().UTC())
}

func fixedClock(at *time.Time) func() time.Time {
	return func() time.Time { return *at }
}

func TestResolveFromSnapshot(t *testing.T) {
	lookup := &stubLookup{}
	r := NewResolver(testSnapshot(), lookup, time.Second)

	p, suppressed, err := r.Resolve(context.Background(), "8991002101234")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if suppressed {
		t.Fatalf("unexpected suppression")
	}
	if p.ID != "prod-a" {
		t.Fatalf("unexpected product %s", p.ID)
	}
	if lookup.calls != 0 {
		t.Fatalf("snapshot hit must not call remote lookup")
	}
}

func TestResolveFallsBackToRemoteLookup(t *testing.T) {
	lookup := &stubLookup{products: map[string]domain.Product{
		"8990000000001": {ID: "prod-remote", Name: "Remote Item", Kind: domain.ProductSimple, Barcode: "8990000000001", DiscountedPriceCents: 4000, StockQuantity: 3, Active: true},
	}}
	r := NewResolver(testSnapshot(), lookup, time.Second)

	p, suppressed, err := r.Resolve(context.Background(), "8990000000001")
	if err != nil || suppressed {
		t.Fatalf("resolve failed: %v suppressed=%t", err, suppressed)
	}
	if p.ID != "prod-remote" {
		t.Fatalf("unexpected product %s", p.ID)
	}
	if lookup.calls != 1 {
		t.Fatalf("expected exactly one remote call, got %d", lookup.calls)
	}
}

func TestResolveUnknownCode(t *testing.T) {
	r := NewResolver(testSnapshot(), &stubLookup{}, time.Second)

	_, suppressed, err := r.Resolve(context.Background(), "0000000000000")
	if !errors.Is(err, catalog.ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
	if suppressed {
		t.Fatalf("unexpected suppression")
	}
}

func TestResolveRemoteFailureReportsNotFound(t *testing.T) {
	lookup := &stubLookup{err: errors.New("connection refused")}
	r := NewResolver(testSnapshot(), lookup, time.Second)

	_, _, err := r.Resolve(context.Background(), "8990000000002")
	if !errors.Is(err, catalog.ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound on remote failure, got %v", err)
	}
}

func TestDuplicateScanSuppressedWithinCooldown(t *testing.T) {
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	r := NewResolver(testSnapshot(), nil, time.Second).WithClock(fixedClock(&at))

	if _, suppressed, err := r.Resolve(context.Background(), "8991002101234"); err != nil || suppressed {
		t.Fatalf("first scan failed: %v suppressed=%t", err, suppressed)
	}

	at = at.Add(500 * time.Millisecond)
	_, suppressed, err := r.Resolve(context.Background(), "8991002101234")
	if err != nil {
		t.Fatalf("second scan errored: %v", err)
	}
	if !suppressed {
		t.Fatalf("expected duplicate within 500ms to be suppressed")
	}

	// After the cooldown the same code resolves again.
	at = at.Add(time.Second)
	_, suppressed, err = r.Resolve(context.Background(), "8991002101234")
	if err != nil || suppressed {
		t.Fatalf("scan after cooldown failed: %v suppressed=%t", err, suppressed)
	}
}

func TestDifferentCodeNotSuppressed(t *testing.T) {
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	r := NewResolver(testSnapshot(), nil, time.Second).WithClock(fixedClock(&at))

	if _, _, err := r.Resolve(context.Background(), "8991002101234"); err != nil {
		t.Fatalf("first scan failed: %v", err)
	}
	at = at.Add(100 * time.Millisecond)
	p, suppressed, err := r.Resolve(context.Background(), "8991002105555")
	if err != nil || suppressed {
		t.Fatalf("different code must not be suppressed: %v suppressed=%t", err, suppressed)
	}
	if p.ID != "prod-b" {
		t.Fatalf("unexpected product %s", p.ID)
	}
}

func TestFailedScanDoesNotArmCooldown(t *testing.T) {
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	lookup := &stubLookup{products: map[string]domain.Product{}}
	r := NewResolver(testSnapshot(), lookup, time.Second).WithClock(fixedClock(&at))

	if _, _, err := r.Resolve(context.Background(), "1112223334445"); !errors.Is(err, catalog.ErrProductNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	// The cooldown only tracks successful scans, so the retry still
	// reaches the lookup.
	at = at.Add(100 * time.Millisecond)
	if _, _, err := r.Resolve(context.Background(), "1112223334445"); !errors.Is(err, catalog.ErrProductNotFound) {
		t.Fatalf("expected not found on retry, got %v", err)
	}
	if lookup.calls != 2 {
		t.Fatalf("expected 2 lookup calls, got %d", lookup.calls)
	}
}
