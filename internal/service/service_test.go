package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"rollyshop/backend/internal/cart"
	"rollyshop/backend/internal/catalog"
	"rollyshop/backend/internal/domain"
	"rollyshop/backend/internal/store"
	"rollyshop/backend/internal/store/memory"
)

func newTestService() *Service {
	return New(memory.NewSeeded(), nil, Options{})
}

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "admin", Role: "admin"})
}

func cashierCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "cashier", Role: "cashier"})
}

func openTestSession(t *testing.T, svc *Service, ctx context.Context) string {
	t.Helper()
	sess, err := svc.OpenSession(ctx, "till-1")
	if err != nil {
		t.Fatalf("open session failed: %v", err)
	}
	return sess.SessionID
}

func TestScanAddsProductToCart(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()
	sessionID := openTestSession(t, svc, ctx)

	outcome, err := svc.Scan(ctx, sessionID, "8991002100020")
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if !outcome.Added || outcome.Suppressed {
		t.Fatalf("expected added outcome, got %+v", outcome)
	}
	if outcome.ProductID != "prod-chino" {
		t.Fatalf("unexpected product %s", outcome.ProductID)
	}
	if len(outcome.Cart.Lines) != 1 || outcome.Cart.Lines[0].UnitCents != 29900 {
		t.Fatalf("unexpected cart %+v", outcome.Cart)
	}
}

func TestScanDuplicateSuppressed(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()
	sessionID := openTestSession(t, svc, ctx)

	if _, err := svc.Scan(ctx, sessionID, "8991002100040"); err != nil {
		t.Fatalf("first scan failed: %v", err)
	}
	outcome, err := svc.Scan(ctx, sessionID, "8991002100040")
	if err != nil {
		t.Fatalf("second scan errored: %v", err)
	}
	if !outcome.Suppressed || outcome.Added {
		t.Fatalf("expected suppression, got %+v", outcome)
	}
	if outcome.Cart.Totals.ItemCount != 1 {
		t.Fatalf("suppressed scan must not change the cart, count=%d", outcome.Cart.Totals.ItemCount)
	}
}

func TestScanUnknownBarcode(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()
	sessionID := openTestSession(t, svc, ctx)

	_, err := svc.Scan(ctx, sessionID, "0000000000000")
	if !errors.Is(err, catalog.ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
}

func TestAddItemVariantParentRejected(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()
	sessionID := openTestSession(t, svc, ctx)

	_, err := svc.AddItem(ctx, sessionID, "prod-tshirt")
	if !errors.Is(err, cart.ErrVariantParent) {
		t.Fatalf("expected ErrVariantParent, got %v", err)
	}

	// The matching child goes through fine.
	view, err := svc.AddItem(ctx, sessionID, "prod-tshirt-blk-m")
	if err != nil {
		t.Fatalf("child add failed: %v", err)
	}
	if len(view.Lines) != 1 || view.Lines[0].ProductID != "prod-tshirt-blk-m" {
		t.Fatalf("unexpected cart %+v", view)
	}
}

func TestUpdateQuantityBeyondStockRejected(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()
	sessionID := openTestSession(t, svc, ctx)

	// Sneaker stock is 6.
	if _, err := svc.AddItem(ctx, sessionID, "prod-sneaker"); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if _, err := svc.UpdateQuantity(ctx, sessionID, "prod-sneaker", 10); !errors.Is(err, cart.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	view, err := svc.CartState(ctx, sessionID)
	if err != nil {
		t.Fatalf("cart state failed: %v", err)
	}
	if view.Lines[0].Quantity != 1 {
		t.Fatalf("rejected update must not change quantity, got %d", view.Lines[0].Quantity)
	}
}

func TestPressKeyBurstScans(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()
	sessionID := openTestSession(t, svc, ctx)

	for _, r := range "8991002100041" {
		resp, err := svc.PressKey(ctx, sessionID, string(r))
		if err != nil {
			t.Fatalf("press failed: %v", err)
		}
		if resp.Flushed {
			t.Fatalf("unexpected flush mid-burst")
		}
	}
	resp, err := svc.PressKey(ctx, sessionID, "Enter")
	if err != nil {
		t.Fatalf("enter press failed: %v", err)
	}
	if !resp.Flushed || resp.Outcome == nil || !resp.Outcome.Added {
		t.Fatalf("expected flushed scan, got %+v", resp)
	}
	if resp.Outcome.ProductID != "prod-socks" {
		t.Fatalf("unexpected product %s", resp.Outcome.ProductID)
	}
}

func TestSubmitSaleComputesTotalsAndDecrementsStock(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()
	sessionID := openTestSession(t, svc, ctx)

	if _, err := svc.AddItem(ctx, sessionID, "prod-sneaker"); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if _, err := svc.UpdateQuantity(ctx, sessionID, "prod-sneaker", 2); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if _, err := svc.SetDiscount(ctx, sessionID, 9700); err != nil {
		t.Fatalf("discount failed: %v", err)
	}

	resp, err := svc.SubmitSale(ctx, sessionID, domain.SubmitSaleRequest{
		PaymentMethod:     domain.PaymentCash,
		CashReceivedCents: 250000,
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	sale := resp.Sale
	if sale.SubtotalCents != 3*79900 {
		t.Fatalf("unexpected subtotal %d", sale.SubtotalCents)
	}
	if sale.TotalCents != 3*79900-9700 {
		t.Fatalf("unexpected total %d", sale.TotalCents)
	}
	if sale.ChangeCents != 250000-sale.TotalCents {
		t.Fatalf("unexpected change %d", sale.ChangeCents)
	}

	p, err := svc.GetProduct(ctx, "prod-sneaker")
	if err != nil {
		t.Fatalf("get product failed: %v", err)
	}
	if p.StockQuantity != 3 {
		t.Fatalf("expected stock 3 after sale, got %d", p.StockQuantity)
	}

	view, err := svc.CartState(ctx, sessionID)
	if err != nil {
		t.Fatalf("cart state failed: %v", err)
	}
	if len(view.Lines) != 0 {
		t.Fatalf("cart must be cleared after submit")
	}
}

func TestSubmitSaleIdempotencyReturnsStoredSale(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()
	sessionID := openTestSession(t, svc, ctx)

	if _, err := svc.AddItem(ctx, sessionID, "prod-cap"); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	first, err := svc.SubmitSale(ctx, sessionID, domain.SubmitSaleRequest{
		PaymentMethod:  domain.PaymentQRIS,
		IdempotencyKey: "idem-test-1",
	})
	if err != nil {
		t.Fatalf("first submit failed: %v", err)
	}

	// A retry with the same key hits the cleared cart but still
	// returns the stored sale.
	retry, err := svc.SubmitSale(ctx, sessionID, domain.SubmitSaleRequest{
		PaymentMethod:  domain.PaymentQRIS,
		IdempotencyKey: "idem-test-1",
	})
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if !retry.Duplicate || retry.Sale.ID != first.Sale.ID {
		t.Fatalf("expected duplicate of %s, got %+v", first.Sale.ID, retry)
	}

	p, err := svc.GetProduct(ctx, "prod-cap")
	if err != nil {
		t.Fatalf("get product failed: %v", err)
	}
	if p.StockQuantity != 29 {
		t.Fatalf("retry must not decrement stock again, got %d", p.StockQuantity)
	}
}

func TestSubmitSaleRaceOnStock(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()
	sessA := openTestSession(t, svc, ctx)
	sessB := openTestSession(t, svc, ctx)

	for _, id := range []string{sessA, sessB} {
		if _, err := svc.AddItem(ctx, id, "prod-sneaker"); err != nil {
			t.Fatalf("add failed: %v", err)
		}
		if _, err := svc.UpdateQuantity(ctx, id, "prod-sneaker", 5); err != nil {
			t.Fatalf("update failed: %v", err)
		}
	}

	if _, err := svc.SubmitSale(ctx, sessA, domain.SubmitSaleRequest{PaymentMethod: domain.PaymentCard}); err != nil {
		t.Fatalf("first submit failed: %v", err)
	}

	_, err := svc.SubmitSale(ctx, sessB, domain.SubmitSaleRequest{PaymentMethod: domain.PaymentCard})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	// The losing cart is untouched so the cashier can correct it.
	view, err := svc.CartState(ctx, sessB)
	if err != nil {
		t.Fatalf("cart state failed: %v", err)
	}
	if len(view.Lines) != 1 || view.Lines[0].Quantity != 6 {
		t.Fatalf("losing cart must survive, got %+v", view)
	}
}

func TestSubmitSaleCashShortRejected(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()
	sessionID := openTestSession(t, svc, ctx)

	if _, err := svc.AddItem(ctx, sessionID, "prod-chino"); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	_, err := svc.SubmitSale(ctx, sessionID, domain.SubmitSaleRequest{
		PaymentMethod:     domain.PaymentCash,
		CashReceivedCents: 1000,
	})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestVoidSaleRestocks(t *testing.T) {
	svc := newTestService()
	sessionID := openTestSession(t, svc, cashierCtx())

	if _, err := svc.AddItem(cashierCtx(), sessionID, "prod-chino"); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	resp, err := svc.SubmitSale(cashierCtx(), sessionID, domain.SubmitSaleRequest{PaymentMethod: domain.PaymentCard})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	voided, err := svc.VoidSale(adminCtx(), domain.VoidSaleRequest{SaleID: resp.Sale.ID, Reason: "customer return"})
	if err != nil {
		t.Fatalf("void failed: %v", err)
	}
	if voided.Status != domain.SaleStatusVoided {
		t.Fatalf("unexpected status %s", voided.Status)
	}

	p, err := svc.GetProduct(adminCtx(), "prod-chino")
	if err != nil {
		t.Fatalf("get product failed: %v", err)
	}
	if p.StockQuantity != 18 {
		t.Fatalf("expected restock to 18, got %d", p.StockQuantity)
	}

	// Voiding twice conflicts.
	if _, err := svc.VoidSale(adminCtx(), domain.VoidSaleRequest{SaleID: resp.Sale.ID, Reason: "again"}); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestAdminOnlyOperationsRejectCashier(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()

	if _, err := svc.CreateProduct(ctx, domain.ProductCreateRequest{Name: "X", Kind: domain.ProductSimple, PriceCents: 100}); err == nil || !strings.Contains(err.Error(), "admin role required") {
		t.Fatalf("expected admin requirement, got %v", err)
	}
	if _, err := svc.VoidSale(ctx, domain.VoidSaleRequest{SaleID: "sale-x", Reason: "r"}); err == nil || !strings.Contains(err.Error(), "admin role required") {
		t.Fatalf("expected admin requirement, got %v", err)
	}
	if _, err := svc.AdjustStock(ctx, domain.StockAdjustmentRequest{ProductID: "prod-cap", Delta: 1}); err == nil || !strings.Contains(err.Error(), "admin role required") {
		t.Fatalf("expected admin requirement, got %v", err)
	}
}

func TestCreateVariantChildUpdatesParentAggregate(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	_, err := svc.CreateProduct(ctx, domain.ProductCreateRequest{
		Name:         "Rolly Tee White L",
		Kind:         domain.ProductVariantChild,
		CategoryID:   "cat-tops",
		BrandID:      "brand-rolly",
		Barcode:      "8991002100014",
		PriceCents:   14900,
		InitialStock: 5,
		ParentID:     "prod-tshirt",
		VariantAttributes: map[string]string{
			"code": "WHT-L", "color": "white", "size": "L",
		},
	})
	if err != nil {
		t.Fatalf("create child failed: %v", err)
	}

	parent, err := svc.GetProduct(ctx, "prod-tshirt")
	if err != nil {
		t.Fatalf("get parent failed: %v", err)
	}
	if parent.TotalVariantStock != 41 {
		t.Fatalf("expected aggregate 41, got %d", parent.TotalVariantStock)
	}
}

func TestAdjustStockAndAudit(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	p, err := svc.AdjustStock(ctx, domain.StockAdjustmentRequest{ProductID: "prod-cap", Delta: -5, Reason: "shrinkage"})
	if err != nil {
		t.Fatalf("adjust failed: %v", err)
	}
	if p.StockQuantity != 25 {
		t.Fatalf("expected 25, got %d", p.StockQuantity)
	}

	logs, err := svc.ListAuditLogs(ctx, time.Time{}, time.Time{}, 50)
	if err != nil {
		t.Fatalf("list audit failed: %v", err)
	}
	found := false
	for _, entry := range logs {
		if entry.Action == "stock_adjust" && entry.EntityID == "prod-cap" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected stock_adjust audit entry")
	}
}

func TestBuildReceipt(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()
	sessionID := openTestSession(t, svc, ctx)

	if _, err := svc.AddItem(ctx, sessionID, "prod-socks"); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	resp, err := svc.SubmitSale(ctx, sessionID, domain.SubmitSaleRequest{PaymentMethod: domain.PaymentTransfer})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	receipt, err := svc.BuildReceipt(ctx, resp.Sale.ID)
	if err != nil {
		t.Fatalf("receipt failed: %v", err)
	}
	if receipt.EscposBase64 == "" {
		t.Fatalf("expected escpos payload")
	}
	if !strings.Contains(receipt.PreviewText, "Kencana Socks 3pk") {
		t.Fatalf("preview missing line item:\n%s", receipt.PreviewText)
	}
	if receipt.FileName != "receipt-"+resp.Sale.ID+".bin" {
		t.Fatalf("unexpected file name %s", receipt.FileName)
	}
}

func TestCategoryReorder(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	cats, err := svc.ReorderCategories(ctx, domain.CategoryReorderRequest{
		OrderedIDs: []string{"cat-shoes", "cat-tops", "cat-accessories", "cat-bottoms"},
	})
	if err != nil {
		t.Fatalf("reorder failed: %v", err)
	}
	if cats[0].ID != "cat-shoes" || cats[0].SortOrder != 1 {
		t.Fatalf("unexpected order %+v", cats)
	}
}

func TestDeleteCategoryInUseConflicts(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	if err := svc.DeleteCategory(ctx, "cat-shoes"); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestCloseSessionForgetsCart(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()
	sessionID := openTestSession(t, svc, ctx)

	if err := svc.CloseSession(ctx, sessionID); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if _, err := svc.CartState(ctx, sessionID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
