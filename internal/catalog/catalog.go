package catalog

import (
	"context"
	"errors"
	"log"
	"time"

	"rollyshop/backend/internal/cache"
	"rollyshop/backend/internal/domain"
	"rollyshop/backend/internal/store"
)

// ErrProductNotFound is surfaced when a barcode or product ID resolves
// neither locally nor through the remote lookup collaborator.
var ErrProductNotFound = errors.New("product not found")

// Snapshot is an immutable view of the sellable catalog taken at
// session start. Stock figures are not refreshed mid-session; the sale
// submission re-validates against live stock.
type Snapshot struct {
	products  []domain.Product
	byID      map[string]domain.Product
	byBarcode map[string]domain.Product
	loadedAt  time.Time
}

func NewSnapshot(products []domain.Product, loadedAt time.Time) *Snapshot {
	snap := &Snapshot{
		products:  make([]domain.Product, 0, len(products)),
		byID:      make(map[string]domain.Product, len(products)),
		byBarcode: make(map[string]domain.Product),
		loadedAt:  loadedAt,
	}
	for _, p := range products {
		if !p.Active {
			continue
		}
		snap.products = append(snap.products, p)
		snap.byID[p.ID] = p
		if p.Barcode != "" {
			snap.byBarcode[p.Barcode] = p
		}
	}
	return snap
}

func (s *Snapshot) ProductByID(id string) (domain.Product, bool) {
	p, ok := s.byID[id]
	return p, ok
}

func (s *Snapshot) ProductByBarcode(code string) (domain.Product, bool) {
	p, ok := s.byBarcode[code]
	return p, ok
}

func (s *Snapshot) Products() []domain.Product {
	out := make([]domain.Product, len(s.products))
	copy(out, s.products)
	return out
}

func (s *Snapshot) Len() int {
	return len(s.byID)
}

func (s *Snapshot) LoadedAt() time.Time {
	return s.loadedAt
}

// Load builds a snapshot from the catalog cache when warm, falling back
// to the repository and repopulating the cache. Cache failures are
// logged and treated as misses; the repository stays the source of truth.
func Load(ctx context.Context, repo store.Repository, snapshotCache cache.CatalogCache, ttl time.Duration) (*Snapshot, error) {
	now := time.Now().UTC()

	if products, ok, err := snapshotCache.Get(ctx); err != nil {
		log.Printf("[catalog] WARN: cache get failed: %v", err)
	} else if ok {
		return NewSnapshot(products, now), nil
	}

	products, err := repo.ListSellableProducts(ctx)
	if err != nil {
		return nil, err
	}

	if err := snapshotCache.Set(ctx, products, ttl); err != nil {
		log.Printf("[catalog] WARN: cache set failed: %v", err)
	}

	return NewSnapshot(products, now), nil
}
