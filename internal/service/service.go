package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"rollyshop/backend/internal/barcode"
	"rollyshop/backend/internal/cache"
	"rollyshop/backend/internal/cart"
	"rollyshop/backend/internal/catalog"
	"rollyshop/backend/internal/domain"
	"rollyshop/backend/internal/store"
	"rollyshop/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// session is the server-side state of one open POS checkout: the cart
// engine, the scanner keystroke buffer, the barcode resolver and the
// catalog snapshot the session was opened against. All access goes
// through the session mutex.
type session struct {
	mu sync.Mutex

	id         string
	terminalID string
	cashier    string
	openedAt   time.Time

	snapshot *catalog.Snapshot
	engine   *cart.Engine
	buffer   *barcode.Buffer
	resolver *barcode.Resolver
}

type Service struct {
	repo         store.Repository
	cache        cache.CatalogCache
	catalogTTL   time.Duration
	scanCooldown time.Duration
	bufferIdle   time.Duration
	minBarcode   int

	mu       sync.Mutex
	sessions map[string]*session
}

type Options struct {
	CatalogTTL       time.Duration
	ScanCooldown     time.Duration
	BufferIdle       time.Duration
	MinBarcodeLength int
}

func New(repo store.Repository, catalogCache cache.CatalogCache, opts Options) *Service {
	if catalogCache == nil {
		catalogCache = cache.NoopCatalogCache{}
	}
	if opts.CatalogTTL <= 0 {
		opts.CatalogTTL = 5 * time.Minute
	}
	if opts.ScanCooldown <= 0 {
		opts.ScanCooldown = barcode.DefaultScanCooldown
	}
	if opts.BufferIdle <= 0 {
		opts.BufferIdle = barcode.DefaultIdleTimeout
	}
	if opts.MinBarcodeLength <= 0 {
		opts.MinBarcodeLength = barcode.DefaultMinLength
	}

	return &Service{
		repo:         repo,
		cache:        catalogCache,
		catalogTTL:   opts.CatalogTTL,
		scanCooldown: opts.ScanCooldown,
		bufferIdle:   opts.BufferIdle,
		minBarcode:   opts.MinBarcodeLength,
		sessions:     make(map[string]*session),
	}
}

// repoLookup adapts the repository to the resolver's remote lookup,
// translating the store sentinel into the catalog one.
type repoLookup struct {
	repo store.Repository
}

func (l repoLookup) ProductByBarcode(ctx context.Context, code string) (*domain.Product, error) {
	p, err := l.repo.GetProductByBarcode(ctx, code)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, catalog.ErrProductNotFound
		}
		return nil, err
	}
	if !p.Sellable() || !p.Active {
		return nil, catalog.ErrProductNotFound
	}
	return p, nil
}

func (s *Service) OpenSession(ctx context.Context, terminalID string) (domain.SessionView, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.SessionView{}, fmt.Errorf("authenticated actor required")
	}
	terminalID = strings.TrimSpace(terminalID)
	if terminalID == "" {
		terminalID = "main-terminal"
	}

	snapshot, err := catalog.Load(ctx, s.repo, s.cache, s.catalogTTL)
	if err != nil {
		return domain.SessionView{}, err
	}

	sess := &session{
		id:         xid.New("sess"),
		terminalID: terminalID,
		cashier:    actor.Username,
		openedAt:   time.Now().UTC(),
		snapshot:   snapshot,
		engine:     cart.NewEngine(),
		buffer:     barcode.NewBuffer(s.bufferIdle, s.minBarcode),
	}
	sess.resolver = barcode.NewResolver(snapshot, repoLookup{repo: s.repo}, s.scanCooldown)

	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	return sess.view(), nil
}

func (s *Service) CloseSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return store.ErrNotFound
	}
	delete(s.sessions, sessionID)
	return nil
}

func (s *Service) getSession(sessionID string) (*session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return sess, nil
}

func (sess *session) view() domain.SessionView {
	return domain.SessionView{
		SessionID:  sess.id,
		TerminalID: sess.terminalID,
		Cashier:    sess.cashier,
		OpenedAt:   sess.openedAt,
		Cart:       sess.engine.View(sess.id),
	}
}

// sessionProduct resolves a product for cart mutation: the session
// snapshot first, the repository as fallback for products added after
// the snapshot was taken.
func (s *Service) sessionProduct(ctx context.Context, sess *session, productID string) (domain.Product, error) {
	if p, ok := sess.snapshot.ProductByID(productID); ok {
		return p, nil
	}
	p, err := s.repo.GetProductByID(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}
	if !p.Active {
		return domain.Product{}, store.ErrNotFound
	}
	return *p, nil
}

func (s *Service) AddItem(ctx context.Context, sessionID string, productID string) (domain.CartView, error) {
	sess, err := s.getSession(sessionID)
	if err != nil {
		return domain.CartView{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	p, err := s.sessionProduct(ctx, sess, productID)
	if err != nil {
		return domain.CartView{}, err
	}
	if err := sess.engine.AddItem(p); err != nil {
		return domain.CartView{}, err
	}
	return sess.engine.View(sess.id), nil
}

func (s *Service) UpdateQuantity(ctx context.Context, sessionID string, productID string, delta int) (domain.CartView, error) {
	sess, err := s.getSession(sessionID)
	if err != nil {
		return domain.CartView{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if err := sess.engine.UpdateQuantity(productID, delta); err != nil {
		return domain.CartView{}, err
	}
	return sess.engine.View(sess.id), nil
}

func (s *Service) RemoveItem(ctx context.Context, sessionID string, productID string) (domain.CartView, error) {
	sess, err := s.getSession(sessionID)
	if err != nil {
		return domain.CartView{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	sess.engine.RemoveItem(productID)
	return sess.engine.View(sess.id), nil
}

func (s *Service) SetDiscount(ctx context.Context, sessionID string, cents int64) (domain.CartView, error) {
	sess, err := s.getSession(sessionID)
	if err != nil {
		return domain.CartView{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if err := sess.engine.SetDiscount(cents); err != nil {
		return domain.CartView{}, err
	}
	return sess.engine.View(sess.id), nil
}

func (s *Service) ClearCart(ctx context.Context, sessionID string) (domain.CartView, error) {
	sess, err := s.getSession(sessionID)
	if err != nil {
		return domain.CartView{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	sess.engine.Clear()
	sess.buffer.Reset()
	return sess.engine.View(sess.id), nil
}

func (s *Service) CartState(ctx context.Context, sessionID string) (domain.CartView, error) {
	sess, err := s.getSession(sessionID)
	if err != nil {
		return domain.CartView{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	return sess.engine.View(sess.id), nil
}

// Scan resolves a decoded barcode against the session and adds the
// product to the cart. Suppressed duplicates report success without
// touching the cart.
func (s *Service) Scan(ctx context.Context, sessionID string, code string) (domain.ScanOutcome, error) {
	sess, err := s.getSession(sessionID)
	if err != nil {
		return domain.ScanOutcome{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	return s.scanLocked(ctx, sess, code)
}

func (s *Service) scanLocked(ctx context.Context, sess *session, code string) (domain.ScanOutcome, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return domain.ScanOutcome{}, store.ErrInvalidInput
	}

	p, suppressed, err := sess.resolver.Resolve(ctx, code)
	if err != nil {
		return domain.ScanOutcome{Cart: sess.engine.View(sess.id)}, err
	}
	if suppressed {
		return domain.ScanOutcome{
			Suppressed: true,
			Cart:       sess.engine.View(sess.id),
		}, nil
	}

	if err := sess.engine.AddItem(p); err != nil {
		return domain.ScanOutcome{Cart: sess.engine.View(sess.id)}, err
	}
	return domain.ScanOutcome{
		Added:     true,
		ProductID: p.ID,
		Cart:      sess.engine.View(sess.id),
	}, nil
}

// PressKey feeds one raw keystroke into the session's scanner buffer.
// When the keystroke completes a burst the decoded code is scanned
// immediately and the outcome returned.
func (s *Service) PressKey(ctx context.Context, sessionID string, key string) (domain.KeyPressResponse, error) {
	sess, err := s.getSession(sessionID)
	if err != nil {
		return domain.KeyPressResponse{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	var r rune
	switch key {
	case "Enter", "\n", "\r":
		r = '\n'
	default:
		var size int
		r, size = utf8.DecodeRuneInString(key)
		if size == 0 || size != len(key) {
			return domain.KeyPressResponse{}, store.ErrInvalidInput
		}
	}

	code, ok := sess.buffer.Press(r, time.Now().UTC())
	if !ok {
		return domain.KeyPressResponse{}, nil
	}

	outcome, err := s.scanLocked(ctx, sess, code)
	if err != nil {
		return domain.KeyPressResponse{Flushed: true, Outcome: &outcome}, err
	}
	return domain.KeyPressResponse{Flushed: true, Outcome: &outcome}, nil
}

// FlushScanner force-flushes an idle keystroke buffer, for terminals
// that poll instead of sending a trailing Enter.
func (s *Service) FlushScanner(ctx context.Context, sessionID string) (domain.KeyPressResponse, error) {
	sess, err := s.getSession(sessionID)
	if err != nil {
		return domain.KeyPressResponse{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	code, ok := sess.buffer.FlushIfIdle(time.Now().UTC())
	if !ok {
		return domain.KeyPressResponse{}, nil
	}
	outcome, err := s.scanLocked(ctx, sess, code)
	if err != nil {
		return domain.KeyPressResponse{Flushed: true, Outcome: &outcome}, err
	}
	return domain.KeyPressResponse{Flushed: true, Outcome: &outcome}, nil
}

// SubmitSale turns the session cart into a persisted sale. The
// repository re-prices lines and decrements stock; the cart is cleared
// only after the sale commits. A reused idempotency key returns the
// already-stored sale without touching stock.
func (s *Service) SubmitSale(ctx context.Context, sessionID string, req domain.SubmitSaleRequest) (domain.SubmitSaleResponse, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.SubmitSaleResponse{}, fmt.Errorf("authenticated actor required")
	}

	sess, err := s.getSession(sessionID)
	if err != nil {
		return domain.SubmitSaleResponse{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	switch req.PaymentMethod {
	case domain.PaymentCash, domain.PaymentCard, domain.PaymentQRIS, domain.PaymentTransfer:
	default:
		return domain.SubmitSaleResponse{}, store.ErrInvalidInput
	}

	// Idempotency is checked before the empty-cart guard so a retried
	// request still succeeds after the first attempt cleared the cart.
	key := strings.TrimSpace(req.IdempotencyKey)
	if key != "" {
		existing, err := s.repo.FindSaleByIdempotency(ctx, key)
		if err == nil {
			return domain.SubmitSaleResponse{Sale: *existing, Duplicate: true}, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return domain.SubmitSaleResponse{}, err
		}
	}

	if sess.engine.Empty() {
		return domain.SubmitSaleResponse{}, store.ErrInvalidInput
	}

	sale := domain.Sale{
		ID:                xid.New("sale"),
		TerminalID:        sess.terminalID,
		CashierUsername:   actor.Username,
		IdempotencyKey:    key,
		PaymentMethod:     req.PaymentMethod,
		CustomerName:      strings.TrimSpace(req.CustomerName),
		DiscountCents:     sess.engine.DiscountCents(),
		CashReceivedCents: req.CashReceivedCents,
		CreatedAt:         time.Now().UTC(),
		Lines:             sess.engine.SaleLines(),
	}

	created, err := s.repo.CreateSale(ctx, sale)
	if err != nil {
		if errors.Is(err, store.ErrConflict) && key != "" {
			// Lost a race against the same idempotency key.
			existing, lookupErr := s.repo.FindSaleByIdempotency(ctx, key)
			if lookupErr == nil {
				return domain.SubmitSaleResponse{Sale: *existing, Duplicate: true}, nil
			}
		}
		return domain.SubmitSaleResponse{}, err
	}

	sess.engine.Clear()
	sess.buffer.Reset()
	s.invalidateCatalog(ctx)
	s.refreshSessionSnapshot(ctx, sess)

	s.logAudit(ctx, "sale_submit", "sale", created.ID,
		fmt.Sprintf("terminal=%s,total=%d,payment=%s", created.TerminalID, created.TotalCents, created.PaymentMethod))
	return domain.SubmitSaleResponse{Sale: *created}, nil
}

// refreshSessionSnapshot reloads the catalog after stock changed so the
// next cart mutation sees current quantities. Failure keeps the old
// snapshot; scans still work, only stock bounds are stale.
func (s *Service) refreshSessionSnapshot(ctx context.Context, sess *session) {
	snapshot, err := catalog.Load(ctx, s.repo, s.cache, s.catalogTTL)
	if err != nil {
		log.Printf("[service] WARN: catalog refresh failed, keeping stale snapshot: %v", err)
		return
	}
	sess.snapshot = snapshot
	sess.resolver = barcode.NewResolver(snapshot, repoLookup{repo: s.repo}, s.scanCooldown)
}

func (s *Service) invalidateCatalog(ctx context.Context) {
	if err := s.cache.Invalidate(ctx); err != nil {
		log.Printf("[service] WARN: catalog cache invalidation failed: %v", err)
	}
}

func (s *Service) ListProducts(ctx context.Context, limit int, offset int) (domain.ProductListResponse, error) {
	if limit < 1 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	products, total, err := s.repo.ListProducts(ctx, limit, offset)
	if err != nil {
		return domain.ProductListResponse{}, err
	}
	return domain.ProductListResponse{
		Products: products,
		Total:    total,
		Limit:    limit,
		Offset:   offset,
	}, nil
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	p, err := s.repo.GetProductByID(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	return *p, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Product{}, fmt.Errorf("admin role required")
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Barcode = strings.TrimSpace(req.Barcode)
	if req.Name == "" || req.PriceCents < 1 || req.InitialStock < 0 {
		return domain.Product{}, store.ErrInvalidInput
	}
	if req.DiscountedPriceCents < 1 {
		req.DiscountedPriceCents = req.PriceCents
	}

	switch req.Kind {
	case domain.ProductSimple:
		if req.ParentID != "" {
			return domain.Product{}, store.ErrInvalidInput
		}
	case domain.ProductVariantParent:
		// Parents carry no stock and no barcode of their own.
		if req.Barcode != "" || req.InitialStock != 0 || req.ParentID != "" {
			return domain.Product{}, store.ErrInvalidInput
		}
	case domain.ProductVariantChild:
		if req.ParentID == "" {
			return domain.Product{}, store.ErrInvalidInput
		}
	default:
		return domain.Product{}, store.ErrInvalidInput
	}

	product := domain.Product{
		ID:                   xid.New("prod"),
		Name:                 req.Name,
		Kind:                 req.Kind,
		CategoryID:           strings.TrimSpace(req.CategoryID),
		BrandID:              strings.TrimSpace(req.BrandID),
		Barcode:              req.Barcode,
		PriceCents:           req.PriceCents,
		DiscountedPriceCents: req.DiscountedPriceCents,
		CostCents:            req.CostCents,
		StockQuantity:        req.InitialStock,
		ParentID:             strings.TrimSpace(req.ParentID),
		VariantAttributes:    req.VariantAttributes,
		Active:               true,
		CreatedAt:            time.Now().UTC(),
		UpdatedAt:            time.Now().UTC(),
	}

	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}

	s.invalidateCatalog(ctx)
	s.logAudit(ctx, "product_create", "product", created.ID,
		fmt.Sprintf("name=%s,kind=%s,price=%d,stock=%d", created.Name, created.Kind, created.PriceCents, req.InitialStock))
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Product{}, fmt.Errorf("admin role required")
	}

	existing, err := s.repo.GetProductByID(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.Name = name
	}
	if req.CategoryID != nil {
		updated.CategoryID = strings.TrimSpace(*req.CategoryID)
	}
	if req.BrandID != nil {
		updated.BrandID = strings.TrimSpace(*req.BrandID)
	}
	if req.Barcode != nil {
		updated.Barcode = strings.TrimSpace(*req.Barcode)
	}
	if req.PriceCents != nil {
		if *req.PriceCents < 1 {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.PriceCents = *req.PriceCents
	}
	if req.DiscountedPriceCents != nil {
		if *req.DiscountedPriceCents < 1 {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.DiscountedPriceCents = *req.DiscountedPriceCents
	}
	if req.CostCents != nil {
		updated.CostCents = *req.CostCents
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}

	result, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}

	s.invalidateCatalog(ctx)
	s.logAudit(ctx, "product_update", "product", result.ID,
		fmt.Sprintf("name=%s,price=%d,active=%t", result.Name, result.PriceCents, result.Active))
	return *result, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return fmt.Errorf("admin role required")
	}

	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		return err
	}
	s.invalidateCatalog(ctx)
	s.logAudit(ctx, "product_delete", "product", id, "")
	return nil
}

func (s *Service) AdjustStock(ctx context.Context, req domain.StockAdjustmentRequest) (domain.Product, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Product{}, fmt.Errorf("admin role required")
	}
	if req.ProductID == "" || req.Delta == 0 {
		return domain.Product{}, store.ErrInvalidInput
	}

	adjusted, err := s.repo.AdjustStock(ctx, req.ProductID, req.Delta)
	if err != nil {
		return domain.Product{}, err
	}

	s.invalidateCatalog(ctx)
	s.logAudit(ctx, "stock_adjust", "product", adjusted.ID,
		fmt.Sprintf("delta=%d,reason=%s,stock=%d", req.Delta, strings.TrimSpace(req.Reason), adjusted.StockQuantity))
	return *adjusted, nil
}

func (s *Service) ListCategories(ctx context.Context) ([]domain.Category, error) {
	return s.repo.ListCategories(ctx)
}

func (s *Service) CreateCategory(ctx context.Context, req domain.CategoryCreateRequest) (domain.Category, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Category{}, fmt.Errorf("admin role required")
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Category{}, store.ErrInvalidInput
	}

	created, err := s.repo.CreateCategory(ctx, domain.Category{
		ID:        xid.New("cat"),
		Name:      name,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return domain.Category{}, err
	}

	s.logAudit(ctx, "category_create", "category", created.ID, "name="+created.Name)
	return *created, nil
}

func (s *Service) DeleteCategory(ctx context.Context, id string) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return fmt.Errorf("admin role required")
	}
	if err := s.repo.DeleteCategory(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "category_delete", "category", id, "")
	return nil
}

func (s *Service) ReorderCategories(ctx context.Context, req domain.CategoryReorderRequest) ([]domain.Category, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return nil, fmt.Errorf("admin role required")
	}
	if len(req.OrderedIDs) == 0 {
		return nil, store.ErrInvalidInput
	}
	if err := s.repo.ReorderCategories(ctx, req.OrderedIDs); err != nil {
		return nil, err
	}

	s.logAudit(ctx, "category_reorder", "category", "", fmt.Sprintf("count=%d", len(req.OrderedIDs)))
	return s.repo.ListCategories(ctx)
}

func (s *Service) ListBrands(ctx context.Context) ([]domain.Brand, error) {
	return s.repo.ListBrands(ctx)
}

func (s *Service) CreateBrand(ctx context.Context, req domain.BrandCreateRequest) (domain.Brand, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Brand{}, fmt.Errorf("admin role required")
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Brand{}, store.ErrInvalidInput
	}

	created, err := s.repo.CreateBrand(ctx, domain.Brand{
		ID:        xid.New("brand"),
		Name:      name,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return domain.Brand{}, err
	}

	s.logAudit(ctx, "brand_create", "brand", created.ID, "name="+created.Name)
	return *created, nil
}

func (s *Service) DeleteBrand(ctx context.Context, id string) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return fmt.Errorf("admin role required")
	}
	if err := s.repo.DeleteBrand(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "brand_delete", "brand", id, "")
	return nil
}

func (s *Service) GetSale(ctx context.Context, id string) (domain.Sale, error) {
	sale, err := s.repo.FindSaleByID(ctx, id)
	if err != nil {
		return domain.Sale{}, err
	}
	return *sale, nil
}

func (s *Service) ListSales(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.Sale, error) {
	if from.IsZero() {
		from = time.Now().UTC().Truncate(24 * time.Hour)
	}
	if to.IsZero() || !to.After(from) {
		to = from.Add(24 * time.Hour)
	}
	if limit < 1 || limit > 500 {
		limit = 100
	}
	return s.repo.ListSales(ctx, from, to, limit)
}

func (s *Service) VoidSale(ctx context.Context, req domain.VoidSaleRequest) (domain.Sale, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Sale{}, fmt.Errorf("admin role required")
	}
	req.Reason = strings.TrimSpace(req.Reason)
	if req.SaleID == "" || req.Reason == "" {
		return domain.Sale{}, store.ErrInvalidInput
	}

	voided, err := s.repo.VoidSale(ctx, req.SaleID, req.Reason, time.Now().UTC())
	if err != nil {
		return domain.Sale{}, err
	}

	s.invalidateCatalog(ctx)
	s.logAudit(ctx, "sale_void", "sale", voided.ID, "reason="+req.Reason)
	return *voided, nil
}

// BuildReceipt renders a sale as an ESC/POS byte stream for the local
// printer bridge, plus a plain-text preview.
func (s *Service) BuildReceipt(ctx context.Context, saleID string) (domain.ReceiptResponse, error) {
	saleID = strings.TrimSpace(saleID)
	if saleID == "" {
		return domain.ReceiptResponse{}, store.ErrInvalidInput
	}
	sale, err := s.repo.FindSaleByID(ctx, saleID)
	if err != nil {
		return domain.ReceiptResponse{}, err
	}

	lines := []string{
		"RollyShop",
		"========================",
		"Sale: " + sale.ID,
		"Terminal: " + sale.TerminalID,
		"Cashier: " + sale.CashierUsername,
		"Date: " + sale.CreatedAt.Format("2006-01-02 15:04:05"),
		"------------------------",
	}
	for _, line := range sale.Lines {
		lines = append(lines, fmt.Sprintf("%s x%d", line.Name, line.Qty))
		lines = append(lines, fmt.Sprintf("  %d", line.UnitCents*int64(line.Qty)))
	}
	lines = append(lines,
		"------------------------",
		fmt.Sprintf("Subtotal : %d", sale.SubtotalCents),
		fmt.Sprintf("Diskon   : %d", sale.DiscountCents),
		fmt.Sprintf("Total    : %d", sale.TotalCents),
		fmt.Sprintf("Bayar    : %d", sale.CashReceivedCents),
		fmt.Sprintf("Kembali  : %d", sale.ChangeCents),
		"========================",
		"Terima kasih",
		"",
	)
	if sale.Status == domain.SaleStatusVoided {
		lines = append(lines, "*** VOIDED: "+sale.VoidReason+" ***", "")
	}

	escpos := []byte{0x1b, 0x40}
	for _, line := range lines {
		escpos = append(escpos, []byte(line)...)
		escpos = append(escpos, '\n')
	}
	escpos = append(escpos, []byte{0x1d, 0x56, 0x41, 0x10}...)

	return domain.ReceiptResponse{
		SaleID:       sale.ID,
		EscposBase64: base64.StdEncoding.EncodeToString(escpos),
		PreviewText:  strings.Join(lines, "\n"),
		FileName:     fmt.Sprintf("receipt-%s.bin", sale.ID),
	}, nil
}

func (s *Service) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return nil, fmt.Errorf("admin role required")
	}
	if from.IsZero() {
		from = time.Now().UTC().Add(-7 * 24 * time.Hour)
	}
	if to.IsZero() || !to.After(from) {
		to = time.Now().UTC().Add(time.Minute)
	}
	if limit < 1 || limit > 500 {
		limit = 100
	}
	return s.repo.ListAuditLogs(ctx, from, to, limit)
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     time.Now().UTC(),
	}); err != nil {
		log.Printf("[audit] WARN: failed to write audit log action=%s entity=%s/%s: %v", action, entityType, entityID, err)
	}
}
