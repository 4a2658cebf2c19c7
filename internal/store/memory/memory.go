package memory

import (
	"context"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"rollyshop/backend/internal/domain"
	"rollyshop/backend/internal/store"
	"rollyshop/backend/internal/xid"
)

type Store struct {
	mu              sync.RWMutex
	products        map[string]domain.Product
	productOrder    []string
	categories      map[string]domain.Category
	brands          map[string]domain.Brand
	salesByID       map[string]*domain.Sale
	salesByIdem     map[string]*domain.Sale
	auditLogs       []domain.AuditLog
	usersByUsername map[string]domain.UserAccount
}

// seedUsers builds the initial in-memory user accounts for dev/demo
// mode. Credentials come from SEED_ADMIN_PASSWORD and
// SEED_CASHIER_PASSWORD; hardcoded dev defaults are used with a warning
// when unset. Production deployments run on PostgreSQL instead.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"cashier", cashierPwd, "cashier"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func NewSeeded() *Store {
	now := time.Now().UTC()

	categories := []domain.Category{
		{ID: "cat-tops", Name: "Tops", SortOrder: 1, CreatedAt: now},
		{ID: "cat-bottoms", Name: "Bottoms", SortOrder: 2, CreatedAt: now},
		{ID: "cat-shoes", Name: "Shoes", SortOrder: 3, CreatedAt: now},
		{ID: "cat-accessories", Name: "Accessories", SortOrder: 4, CreatedAt: now},
	}
	brands := []domain.Brand{
		{ID: "brand-rolly", Name: "Rolly Basics", CreatedAt: now},
		{ID: "brand-northwave", Name: "Northwave", CreatedAt: now},
		{ID: "brand-kencana", Name: "Kencana", CreatedAt: now},
	}

	products := []domain.Product{
		{ID: "prod-tshirt", Name: "Rolly Tee", Kind: domain.ProductVariantParent, CategoryID: "cat-tops", BrandID: "brand-rolly", PriceCents: 14900, DiscountedPriceCents: 14900, CostCents: 6500, TotalVariantStock: 36, Active: true},
		{ID: "prod-tshirt-blk-m", Name: "Rolly Tee Black M", Kind: domain.ProductVariantChild, CategoryID: "cat-tops", BrandID: "brand-rolly", Barcode: "8991002100011", PriceCents: 14900, DiscountedPriceCents: 12900, CostCents: 6500, StockQuantity: 12, ParentID: "prod-tshirt", VariantAttributes: map[string]string{"code": "BLK-M", "color": "black", "size": "M"}, Active: true},
		{ID: "prod-tshirt-blk-l", Name: "Rolly Tee Black L", Kind: domain.ProductVariantChild, CategoryID: "cat-tops", BrandID: "brand-rolly", Barcode: "8991002100012", PriceCents: 14900, DiscountedPriceCents: 12900, CostCents: 6500, StockQuantity: 10, ParentID: "prod-tshirt", VariantAttributes: map[string]string{"code": "BLK-L", "color": "black", "size": "L"}, Active: true},
		{ID: "prod-tshirt-wht-m", Name: "Rolly Tee White M", Kind: domain.ProductVariantChild, CategoryID: "cat-tops", BrandID: "brand-rolly", Barcode: "8991002100013", PriceCents: 14900, DiscountedPriceCents: 14900, CostCents: 6500, StockQuantity: 14, ParentID: "prod-tshirt", VariantAttributes: map[string]string{"code": "WHT-M", "color": "white", "size": "M"}, Active: true},
		{ID: "prod-chino", Name: "Kencana Chino 32", Kind: domain.ProductSimple, CategoryID: "cat-bottoms", BrandID: "brand-kencana", Barcode: "8991002100020", PriceCents: 32900, DiscountedPriceCents: 29900, CostCents: 17000, StockQuantity: 18, Active: true},
		{ID: "prod-sneaker", Name: "Northwave Runner 42", Kind: domain.ProductSimple, CategoryID: "cat-shoes", BrandID: "brand-northwave", Barcode: "8991002100030", PriceCents: 79900, DiscountedPriceCents: 79900, CostCents: 41000, StockQuantity: 6, Active: true},
		{ID: "prod-cap", Name: "Rolly Cap", Kind: domain.ProductSimple, CategoryID: "cat-accessories", BrandID: "brand-rolly", Barcode: "8991002100040", PriceCents: 9900, DiscountedPriceCents: 8900, CostCents: 3800, StockQuantity: 30, Active: true},
		{ID: "prod-socks", Name: "Kencana Socks 3pk", Kind: domain.ProductSimple, CategoryID: "cat-accessories", BrandID: "brand-kencana", Barcode: "8991002100041", PriceCents: 5900, DiscountedPriceCents: 5900, CostCents: 2100, StockQuantity: 44, Active: true},
	}

	s := &Store{
		products:        make(map[string]domain.Product, len(products)),
		productOrder:    make([]string, 0, len(products)),
		categories:      make(map[string]domain.Category, len(categories)),
		brands:          make(map[string]domain.Brand, len(brands)),
		salesByID:       make(map[string]*domain.Sale),
		salesByIdem:     make(map[string]*domain.Sale),
		auditLogs:       make([]domain.AuditLog, 0, 128),
		usersByUsername: seedUsers(),
	}
	for _, p := range products {
		p.CreatedAt = now
		p.UpdatedAt = now
		s.products[p.ID] = p
		s.productOrder = append(s.productOrder, p.ID)
	}
	for _, c := range categories {
		s.categories[c.ID] = c
	}
	for _, b := range brands {
		s.brands[b.ID] = b
	}
	return s
}

func (s *Store) ListProducts(_ context.Context, limit int, offset int) ([]domain.Product, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]domain.Product, 0, len(s.productOrder))
	for _, id := range s.productOrder {
		p := s.products[id]
		if !p.Active {
			continue
		}
		all = append(all, p)
	}

	total := len(all)
	if limit < 1 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= total {
		return []domain.Product{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return slices.Clone(all[offset:end]), total, nil
}

func (s *Store) ListSellableProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Product, 0, len(s.productOrder))
	for _, id := range s.productOrder {
		p := s.products[id]
		if !p.Active || !p.Sellable() {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *Store) GetProductByID(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, exists := s.products[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	cp := p
	return &cp, nil
}

func (s *Store) GetProductByBarcode(_ context.Context, barcode string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.products {
		if p.Active && p.Barcode != "" && p.Barcode == barcode {
			cp := p
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.ID == "" || product.Name == "" || product.PriceCents < 1 {
		return nil, store.ErrInvalidInput
	}
	if _, exists := s.products[product.ID]; exists {
		return nil, store.ErrConflict
	}
	if product.Barcode != "" {
		for _, p := range s.products {
			if p.Barcode == product.Barcode && p.Active {
				return nil, store.ErrConflict
			}
		}
	}
	if product.Kind == domain.ProductVariantChild {
		parent, ok := s.products[product.ParentID]
		if !ok || parent.Kind != domain.ProductVariantParent {
			return nil, store.ErrInvalidInput
		}
	}

	product.Active = true
	s.products[product.ID] = product
	s.productOrder = append(s.productOrder, product.ID)
	s.refreshParentAggregate(product.ParentID)

	created := s.products[product.ID]
	return &created, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.products[product.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	// Kind, parent linkage and stock are not updatable through this path.
	product.Kind = existing.Kind
	product.ParentID = existing.ParentID
	product.StockQuantity = existing.StockQuantity
	product.TotalVariantStock = existing.TotalVariantStock
	product.CreatedAt = existing.CreatedAt

	s.products[product.ID] = product
	saved := product
	return &saved, nil
}

func (s *Store) DeleteProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, exists := s.products[id]
	if !exists {
		return store.ErrNotFound
	}
	p.Active = false
	s.products[id] = p

	// Deactivating a parent takes its variants off sale too.
	if p.Kind == domain.ProductVariantParent {
		for childID, child := range s.products {
			if child.ParentID == id {
				child.Active = false
				s.products[childID] = child
			}
		}
	}
	s.refreshParentAggregate(p.ParentID)
	return nil
}

func (s *Store) AdjustStock(_ context.Context, productID string, delta int) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, exists := s.products[productID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if p.Kind == domain.ProductVariantParent {
		return nil, store.ErrInvalidInput
	}
	newQty := p.StockQuantity + delta
	if newQty < 0 {
		return nil, store.ErrInsufficientStock
	}
	p.StockQuantity = newQty
	p.UpdatedAt = time.Now().UTC()
	s.products[productID] = p
	s.refreshParentAggregate(p.ParentID)

	updated := s.products[productID]
	return &updated, nil
}

// refreshParentAggregate recomputes TotalVariantStock from the active
// children. Caller must hold the write lock.
func (s *Store) refreshParentAggregate(parentID string) {
	if parentID == "" {
		return
	}
	parent, ok := s.products[parentID]
	if !ok {
		return
	}
	total := 0
	for _, p := range s.products {
		if p.ParentID == parentID && p.Active {
			total += p.StockQuantity
		}
	}
	parent.TotalVariantStock = total
	s.products[parentID] = parent
}

func (s *Store) ListCategories(_ context.Context) ([]domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Category, 0, len(s.categories))
	for _, c := range s.categories {
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b domain.Category) int {
		if a.SortOrder != b.SortOrder {
			return a.SortOrder - b.SortOrder
		}
		return strings.Compare(a.Name, b.Name)
	})
	return out, nil
}

func (s *Store) CreateCategory(_ context.Context, category domain.Category) (*domain.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if category.ID == "" || category.Name == "" {
		return nil, store.ErrInvalidInput
	}
	for _, c := range s.categories {
		if strings.EqualFold(c.Name, category.Name) {
			return nil, store.ErrConflict
		}
	}
	category.SortOrder = len(s.categories) + 1
	s.categories[category.ID] = category
	created := category
	return &created, nil
}

func (s *Store) DeleteCategory(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.categories[id]; !exists {
		return store.ErrNotFound
	}
	for _, p := range s.products {
		if p.Active && p.CategoryID == id {
			return store.ErrConflict
		}
	}
	delete(s.categories, id)
	return nil
}

func (s *Store) ReorderCategories(_ context.Context, orderedIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(orderedIDs) != len(s.categories) {
		return store.ErrInvalidInput
	}
	for _, id := range orderedIDs {
		if _, exists := s.categories[id]; !exists {
			return store.ErrInvalidInput
		}
	}
	for i, id := range orderedIDs {
		c := s.categories[id]
		c.SortOrder = i + 1
		s.categories[id] = c
	}
	return nil
}

func (s *Store) ListBrands(_ context.Context) ([]domain.Brand, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Brand, 0, len(s.brands))
	for _, b := range s.brands {
		out = append(out, b)
	}
	slices.SortFunc(out, func(a, b domain.Brand) int {
		return strings.Compare(a.Name, b.Name)
	})
	return out, nil
}

func (s *Store) CreateBrand(_ context.Context, brand domain.Brand) (*domain.Brand, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if brand.ID == "" || brand.Name == "" {
		return nil, store.ErrInvalidInput
	}
	for _, b := range s.brands {
		if strings.EqualFold(b.Name, brand.Name) {
			return nil, store.ErrConflict
		}
	}
	s.brands[brand.ID] = brand
	created := brand
	return &created, nil
}

func (s *Store) DeleteBrand(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.brands[id]; !exists {
		return store.ErrNotFound
	}
	for _, p := range s.products {
		if p.Active && p.BrandID == id {
			return store.ErrConflict
		}
	}
	delete(s.brands, id)
	return nil
}

// CreateSale prices the lines from the product table, decrements stock
// and persists the sale in one critical section. Any line failing the
// stock check rejects the whole sale with no partial mutation.
func (s *Store) CreateSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(sale.Lines) == 0 || sale.ID == "" {
		return nil, store.ErrInvalidInput
	}
	if _, exists := s.salesByIdem[sale.IdempotencyKey]; exists && sale.IdempotencyKey != "" {
		return nil, store.ErrConflict
	}

	var subtotal int64
	priced := make([]domain.SaleLine, 0, len(sale.Lines))
	for _, line := range sale.Lines {
		p, exists := s.products[line.ProductID]
		if !exists || !p.Active || !p.Sellable() {
			return nil, store.ErrInvalidInput
		}
		if line.Qty < 1 {
			return nil, store.ErrInvalidInput
		}
		if line.Qty > p.StockQuantity {
			return nil, store.ErrInsufficientStock
		}
		priced = append(priced, domain.SaleLine{
			ProductID: p.ID,
			Name:      p.Name,
			Qty:       line.Qty,
			UnitCents: p.DiscountedPriceCents,
		})
		subtotal += int64(line.Qty) * p.DiscountedPriceCents
	}

	if sale.DiscountCents < 0 {
		return nil, store.ErrInvalidInput
	}
	total := subtotal - sale.DiscountCents
	if total < 0 {
		total = 0
	}
	if sale.PaymentMethod == domain.PaymentCash && sale.CashReceivedCents < total {
		return nil, store.ErrInvalidInput
	}

	for _, line := range priced {
		p := s.products[line.ProductID]
		p.StockQuantity -= line.Qty
		p.UpdatedAt = time.Now().UTC()
		s.products[line.ProductID] = p
		s.refreshParentAggregate(p.ParentID)
	}

	sale.Lines = priced
	sale.SubtotalCents = subtotal
	sale.TotalCents = total
	if sale.PaymentMethod == domain.PaymentCash {
		sale.ChangeCents = sale.CashReceivedCents - total
	} else {
		sale.CashReceivedCents = total
	}
	sale.Status = domain.SaleStatusPaid

	stored := sale
	s.salesByID[sale.ID] = &stored
	if sale.IdempotencyKey != "" {
		s.salesByIdem[sale.IdempotencyKey] = &stored
	}
	result := stored
	return &result, nil
}

func (s *Store) FindSaleByID(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, exists := s.salesByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	cp := *sale
	return &cp, nil
}

func (s *Store) FindSaleByIdempotency(_ context.Context, key string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, exists := s.salesByIdem[key]
	if !exists {
		return nil, store.ErrNotFound
	}
	cp := *sale
	return &cp, nil
}

func (s *Store) ListSales(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 100
	}
	out := make([]domain.Sale, 0, limit)
	for _, sale := range s.salesByID {
		if sale.CreatedAt.Before(from) || !sale.CreatedAt.Before(to) {
			continue
		}
		out = append(out, *sale)
	}
	slices.SortFunc(out, func(a, b domain.Sale) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) VoidSale(_ context.Context, id string, reason string, at time.Time) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, exists := s.salesByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	if sale.Status != domain.SaleStatusPaid {
		return nil, store.ErrConflict
	}

	for _, line := range sale.Lines {
		if p, ok := s.products[line.ProductID]; ok {
			p.StockQuantity += line.Qty
			s.products[line.ProductID] = p
			s.refreshParentAggregate(p.ParentID)
		}
	}

	sale.Status = domain.SaleStatusVoided
	sale.VoidReason = reason
	voidedAt := at
	sale.VoidedAt = &voidedAt

	cp := *sale
	return &cp, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 100
	}
	out := make([]domain.AuditLog, 0, limit)
	for i := len(s.auditLogs) - 1; i >= 0 && len(out) < limit; i-- {
		entry := s.auditLogs[i]
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.Username == "" || user.Password == "" {
		return store.ErrInvalidInput
	}
	if _, exists := s.usersByUsername[user.Username]; exists {
		return store.ErrConflict
	}
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, u := range s.usersByUsername {
		out = append(out, u)
	}
	return out, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	u.Password = password
	s.usersByUsername[username] = u
	return nil
}

var _ store.Repository = (*Store)(nil)
