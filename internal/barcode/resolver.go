package barcode

import (
	"context"
	"errors"
	"log"
	"time"

	"rollyshop/backend/internal/catalog"
	"rollyshop/backend/internal/domain"
)

// DefaultScanCooldown absorbs scanner and camera double-fire: a repeat
// of the previous successful code inside this window is suppressed.
const DefaultScanCooldown = time.Second

// Lookup is the remote barcode-to-product collaborator consulted when
// a code misses the local catalog snapshot.
type Lookup interface {
	ProductByBarcode(ctx context.Context, code string) (*domain.Product, error)
}

// Resolver turns decoded barcode strings into catalog products. It is
// owned by a single session and mutated by one scan at a time.
type Resolver struct {
	snapshot *catalog.Snapshot
	lookup   Lookup
	cooldown time.Duration
	now      func() time.Time

	lastCode string
	lastAt   time.Time
}

func NewResolver(snapshot *catalog.Snapshot, lookup Lookup, cooldown time.Duration) *Resolver {
	if cooldown <= 0 {
		cooldown = DefaultScanCooldown
	}
	return &Resolver{
		snapshot: snapshot,
		lookup:   lookup,
		cooldown: cooldown,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source, for tests.
func (r *Resolver) WithClock(now func() time.Time) *Resolver {
	r.now = now
	return r
}

// Resolve maps a code to a product. The second return is true when the
// scan was suppressed as a duplicate; in that case no product is
// returned and no lookup happens. A code missing from both the snapshot
// and the remote lookup yields catalog.ErrProductNotFound; remote
// failures are reported the same way and logged for operators.
func (r *Resolver) Resolve(ctx context.Context, code string) (domain.Product, bool, error) {
	at := r.now()
	if code == r.lastCode && at.Sub(r.lastAt) < r.cooldown {
		return domain.Product{}, true, nil
	}

	if p, ok := r.snapshot.ProductByBarcode(code); ok {
		r.remember(code, at)
		return p, false, nil
	}

	if r.lookup != nil {
		p, err := r.lookup.ProductByBarcode(ctx, code)
		if err != nil {
			if !errors.Is(err, catalog.ErrProductNotFound) {
				log.Printf("[barcode] WARN: remote lookup failed for %q: %v", code, err)
			}
			return domain.Product{}, false, catalog.ErrProductNotFound
		}
		if p != nil {
			r.remember(code, at)
			return *p, false, nil
		}
	}

	return domain.Product{}, false, catalog.ErrProductNotFound
}

func (r *Resolver) remember(code string, at time.Time) {
	r.lastCode = code
	r.lastAt = at
}
