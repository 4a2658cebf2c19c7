package domain

import "time"

// ProductKind discriminates how a product participates in selling.
// Simple products and variant children are sellable; a variant parent
// only groups its children and is never added to a cart directly.
type ProductKind string

const (
	ProductSimple        ProductKind = "simple"
	ProductVariantParent ProductKind = "variant_parent"
	ProductVariantChild  ProductKind = "variant_child"
)

type Product struct {
	ID                   string            `json:"id"`
	Name                 string            `json:"name"`
	Kind                 ProductKind       `json:"kind"`
	CategoryID           string            `json:"category_id,omitempty"`
	BrandID              string            `json:"brand_id,omitempty"`
	Barcode              string            `json:"barcode,omitempty"`
	PriceCents           int64             `json:"price_cents"`
	DiscountedPriceCents int64             `json:"discounted_price_cents"`
	CostCents            int64             `json:"cost_cents"`
	StockQuantity        int               `json:"stock_quantity"`
	ParentID             string            `json:"parent_id,omitempty"`
	VariantAttributes    map[string]string `json:"variant_attributes,omitempty"`
	TotalVariantStock    int               `json:"total_variant_stock,omitempty"`
	Active               bool              `json:"active"`
	CreatedAt            time.Time         `json:"created_at"`
	UpdatedAt            time.Time         `json:"updated_at"`
}

// Sellable reports whether the product can be placed on a cart line.
// Variant parents are never sellable, regardless of whether their
// aggregate stock data is present.
func (p Product) Sellable() bool {
	return p.Kind != ProductVariantParent
}

type ProductCreateRequest struct {
	Name                 string            `json:"name"`
	Kind                 ProductKind       `json:"kind"`
	CategoryID           string            `json:"category_id"`
	BrandID              string            `json:"brand_id"`
	Barcode              string            `json:"barcode"`
	PriceCents           int64             `json:"price_cents"`
	DiscountedPriceCents int64             `json:"discounted_price_cents"`
	CostCents            int64             `json:"cost_cents"`
	InitialStock         int               `json:"initial_stock"`
	ParentID             string            `json:"parent_id"`
	VariantAttributes    map[string]string `json:"variant_attributes"`
}

type ProductUpdateRequest struct {
	Name                 *string `json:"name,omitempty"`
	CategoryID           *string `json:"category_id,omitempty"`
	BrandID              *string `json:"brand_id,omitempty"`
	Barcode              *string `json:"barcode,omitempty"`
	PriceCents           *int64  `json:"price_cents,omitempty"`
	DiscountedPriceCents *int64  `json:"discounted_price_cents,omitempty"`
	CostCents            *int64  `json:"cost_cents,omitempty"`
	Active               *bool   `json:"active,omitempty"`
}

type ProductListResponse struct {
	Products []Product `json:"products"`
	Total    int       `json:"total"`
	Limit    int       `json:"limit"`
	Offset   int       `json:"offset"`
}

type Category struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	SortOrder int       `json:"sort_order"`
	CreatedAt time.Time `json:"created_at"`
}

type CategoryCreateRequest struct {
	Name string `json:"name"`
}

type CategoryReorderRequest struct {
	OrderedIDs []string `json:"ordered_ids"`
}

type Brand struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type BrandCreateRequest struct {
	Name string `json:"name"`
}

type StockAdjustmentRequest struct {
	ProductID string `json:"product_id"`
	Delta     int    `json:"delta"`
	Reason    string `json:"reason"`
}

// SaleTotals is derived cart state, recomputed on demand and never stored.
type SaleTotals struct {
	SubtotalCents int64 `json:"subtotal_cents"`
	DiscountCents int64 `json:"discount_cents"`
	TotalCents    int64 `json:"total_cents"`
	ItemCount     int   `json:"item_count"`
}

type CartLineView struct {
	ProductID     string `json:"product_id"`
	Name          string `json:"name"`
	UnitCents     int64  `json:"unit_cents"`
	Quantity      int    `json:"quantity"`
	SubtotalCents int64  `json:"subtotal_cents"`
}

type CartView struct {
	SessionID string         `json:"session_id"`
	Lines     []CartLineView `json:"lines"`
	Totals    SaleTotals     `json:"totals"`
}

type SaleLine struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Qty       int    `json:"qty"`
	UnitCents int64  `json:"unit_cents"`
}

type Sale struct {
	ID                string     `json:"id"`
	TerminalID        string     `json:"terminal_id"`
	CashierUsername   string     `json:"cashier_username"`
	IdempotencyKey    string     `json:"idempotency_key"`
	PaymentMethod     string     `json:"payment_method"`
	CustomerName      string     `json:"customer_name,omitempty"`
	SubtotalCents     int64      `json:"subtotal_cents"`
	DiscountCents     int64      `json:"discount_cents"`
	TotalCents        int64      `json:"total_cents"`
	CashReceivedCents int64      `json:"cash_received_cents"`
	ChangeCents       int64      `json:"change_cents"`
	Status            string     `json:"status"`
	VoidReason        string     `json:"void_reason,omitempty"`
	VoidedAt          *time.Time `json:"voided_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	Lines             []SaleLine `json:"lines"`
}

type SubmitSaleRequest struct {
	PaymentMethod     string `json:"payment_method"`
	CustomerName      string `json:"customer_name"`
	CashReceivedCents int64  `json:"cash_received_cents"`
	IdempotencyKey    string `json:"idempotency_key"`
}

type SubmitSaleResponse struct {
	Sale      Sale `json:"sale"`
	Duplicate bool `json:"duplicate"`
}

type VoidSaleRequest struct {
	SaleID string `json:"sale_id"`
	Reason string `json:"reason"`
}

type ScanRequest struct {
	Barcode string `json:"barcode"`
}

// KeyPressRequest carries one raw keystroke from a POS terminal. Key is
// a single character, or "Enter" for the scanner's terminator.
type KeyPressRequest struct {
	Key string `json:"key"`
}

type KeyPressResponse struct {
	Flushed bool         `json:"flushed"`
	Outcome *ScanOutcome `json:"outcome,omitempty"`
}

type SessionView struct {
	SessionID  string    `json:"session_id"`
	TerminalID string    `json:"terminal_id"`
	Cashier    string    `json:"cashier"`
	OpenedAt   time.Time `json:"opened_at"`
	Cart       CartView  `json:"cart"`
}

// ScanOutcome is the discriminated result of a scan: exactly one of
// Added or Suppressed is true on success.
type ScanOutcome struct {
	Added      bool     `json:"added"`
	Suppressed bool     `json:"suppressed"`
	ProductID  string   `json:"product_id,omitempty"`
	Cart       CartView `json:"cart"`
}

type ReceiptResponse struct {
	SaleID       string `json:"sale_id"`
	EscposBase64 string `json:"escpos_base64"`
	PreviewText  string `json:"preview_text"`
	FileName     string `json:"file_name"`
}

type SaleListResponse struct {
	Sales []Sale `json:"sales"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type CashierCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type CashierUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

const (
	SaleStatusPaid   = "paid"
	SaleStatusVoided = "voided"
)

const (
	PaymentCash     = "cash"
	PaymentCard     = "card"
	PaymentQRIS     = "qris"
	PaymentTransfer = "transfer"
)
