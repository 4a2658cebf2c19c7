package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"rollyshop/backend/internal/cache"
	"rollyshop/backend/internal/domain"
	"rollyshop/backend/internal/store/memory"
)

func TestSnapshotSkipsInactiveProducts(t *testing.T) {
	snap := NewSnapshot([]domain.Product{
		{ID: "p-1", Barcode: "111222333", Active: true},
		{ID: "p-2", Barcode: "444555666", Active: false},
	}, time.Now().UTC())

	if snap.Len() != 1 {
		t.Fatalf("expected 1 indexed product, got %d", snap.Len())
	}
	if _, ok := snap.ProductByID("p-2"); ok {
		t.Fatalf("inactive product must not be indexed")
	}
	if _, ok := snap.ProductByBarcode("444555666"); ok {
		t.Fatalf("inactive barcode must not be indexed")
	}
	if _, ok := snap.ProductByBarcode("111222333"); !ok {
		t.Fatalf("active barcode missing from index")
	}
}

func TestLoadFromRepository(t *testing.T) {
	repo := memory.NewSeeded()

	snap, err := Load(context.Background(), repo, cache.NoopCatalogCache{}, time.Minute)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	// The seeded variant parent is not sellable and never snapshotted.
	if _, ok := snap.ProductByID("prod-tshirt"); ok {
		t.Fatalf("variant parent must not be in the snapshot")
	}
	if _, ok := snap.ProductByBarcode("8991002100011"); !ok {
		t.Fatalf("variant child barcode missing")
	}
}

type stubCache struct {
	products []domain.Product
	getErr   error
	sets     int
}

func (c *stubCache) Get(_ context.Context) ([]domain.Product, bool, error) {
	if c.getErr != nil {
		return nil, false, c.getErr
	}
	if c.products == nil {
		return nil, false, nil
	}
	return c.products, true, nil
}

func (c *stubCache) Set(_ context.Context, products []domain.Product, _ time.Duration) error {
	c.products = products
	c.sets++
	return nil
}

func (c *stubCache) Invalidate(_ context.Context) error {
	c.products = nil
	return nil
}

func TestLoadUsesWarmCache(t *testing.T) {
	repo := memory.NewSeeded()
	warm := &stubCache{products: []domain.Product{
		{ID: "p-cached", Barcode: "999000111", Active: true},
	}}

	snap, err := Load(context.Background(), repo, warm, time.Minute)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if _, ok := snap.ProductByID("p-cached"); !ok {
		t.Fatalf("expected cached catalog to be used")
	}
	if warm.sets != 0 {
		t.Fatalf("warm cache must not be repopulated")
	}
}

func TestLoadTreatsCacheErrorAsMiss(t *testing.T) {
	repo := memory.NewSeeded()
	broken := &stubCache{getErr: errors.New("connection refused")}

	snap, err := Load(context.Background(), repo, broken, time.Minute)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if snap.Len() == 0 {
		t.Fatalf("expected repository fallback")
	}
}
