package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"rollyshop/backend/internal/domain"
	"rollyshop/backend/internal/store"
	"rollyshop/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

const productColumns = `
	id, name, kind, category_id, brand_id, barcode, price_cents,
	discounted_price_cents, cost_cents, stock_qty, parent_id,
	variant_attributes, total_variant_stock, active, created_at, updated_at
`

func scanProduct(row interface{ Scan(...any) error }) (domain.Product, error) {
	var p domain.Product
	var categoryID, brandID, barcode, parentID sql.NullString
	var attrs []byte
	err := row.Scan(
		&p.ID, &p.Name, &p.Kind, &categoryID, &brandID, &barcode,
		&p.PriceCents, &p.DiscountedPriceCents, &p.CostCents, &p.StockQuantity,
		&parentID, &attrs, &p.TotalVariantStock, &p.Active, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return domain.Product{}, err
	}
	p.CategoryID = categoryID.String
	p.BrandID = brandID.String
	p.Barcode = barcode.String
	p.ParentID = parentID.String
	if len(attrs) > 0 {
		if err := json.Unmarshal(attrs, &p.VariantAttributes); err != nil {
			return domain.Product{}, err
		}
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}

func (s *Store) ListProducts(ctx context.Context, limit int, offset int) ([]domain.Product, int, error) {
	if limit < 1 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `
		SELECT count(*) FROM products WHERE active = true
	`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE active = true
		ORDER BY created_at, id
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, limit)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return products, total, nil
}

func (s *Store) ListSellableProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE active = true AND kind <> 'variant_parent'
		ORDER BY created_at, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) GetProductByID(ctx context.Context, id string) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = $1
	`, id)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) GetProductByBarcode(ctx context.Context, barcode string) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE active = true AND barcode = $1
	`, barcode)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" || product.Name == "" || product.PriceCents < 1 {
		return nil, store.ErrInvalidInput
	}

	attrs, err := marshalAttrs(product.VariantAttributes)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if product.Kind == domain.ProductVariantChild {
		var parentKind string
		err := tx.QueryRowContext(ctx, `
			SELECT kind FROM products WHERE id = $1
		`, product.ParentID).Scan(&parentKind)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, store.ErrInvalidInput
			}
			return nil, err
		}
		if parentKind != string(domain.ProductVariantParent) {
			return nil, store.ErrInvalidInput
		}
	}

	product.Active = true
	_, err = tx.ExecContext(ctx, `
		INSERT INTO products (
			id, name, kind, category_id, brand_id, barcode, price_cents,
			discounted_price_cents, cost_cents, stock_qty, parent_id,
			variant_attributes, total_variant_stock, active, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,0,true,now(),now())
	`, product.ID, product.Name, product.Kind, nullIfEmpty(product.CategoryID),
		nullIfEmpty(product.BrandID), nullIfEmpty(product.Barcode), product.PriceCents,
		product.DiscountedPriceCents, product.CostCents, product.StockQuantity,
		nullIfEmpty(product.ParentID), attrs)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}

	if err := refreshParentAggregate(ctx, tx, product.ParentID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" || product.Name == "" || product.PriceCents < 1 {
		return nil, store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, category_id = $3, brand_id = $4, barcode = $5,
		    price_cents = $6, discounted_price_cents = $7, cost_cents = $8,
		    active = $9, updated_at = now()
		WHERE id = $1
	`, product.ID, product.Name, nullIfEmpty(product.CategoryID), nullIfEmpty(product.BrandID),
		nullIfEmpty(product.Barcode), product.PriceCents, product.DiscountedPriceCents,
		product.CostCents, product.Active)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	return s.GetProductByID(ctx, product.ID)
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var kind string
	var parentID sql.NullString
	err = tx.QueryRowContext(ctx, `
		SELECT kind, parent_id FROM products WHERE id = $1
	`, id).Scan(&kind, &parentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE products SET active = false, updated_at = now()
		WHERE id = $1 OR parent_id = $1
	`, id); err != nil {
		return err
	}
	if err := refreshParentAggregate(ctx, tx, parentID.String); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) AdjustStock(ctx context.Context, productID string, delta int) (*domain.Product, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var kind string
	var qty int
	var parentID sql.NullString
	err = tx.QueryRowContext(ctx, `
		SELECT kind, stock_qty, parent_id FROM products WHERE id = $1 FOR UPDATE
	`, productID).Scan(&kind, &qty, &parentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if kind == string(domain.ProductVariantParent) {
		return nil, store.ErrInvalidInput
	}
	if qty+delta < 0 {
		return nil, store.ErrInsufficientStock
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE products SET stock_qty = stock_qty + $2, updated_at = now() WHERE id = $1
	`, productID, delta); err != nil {
		return nil, err
	}
	if err := refreshParentAggregate(ctx, tx, parentID.String); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return s.GetProductByID(ctx, productID)
}

func (s *Store) ListCategories(ctx context.Context) ([]domain.Category, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, sort_order, created_at
		FROM categories
		ORDER BY sort_order, name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	categories := make([]domain.Category, 0, 32)
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.SortOrder, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.CreatedAt = c.CreatedAt.UTC()
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return categories, nil
}

func (s *Store) CreateCategory(ctx context.Context, category domain.Category) (*domain.Category, error) {
	if category.ID == "" || category.Name == "" {
		return nil, store.ErrInvalidInput
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO categories (id, name, sort_order, created_at)
		VALUES ($1, $2, (SELECT coalesce(max(sort_order), 0) + 1 FROM categories), $3)
		RETURNING sort_order
	`, category.ID, category.Name, category.CreatedAt).Scan(&category.SortOrder)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	created := category
	return &created, nil
}

func (s *Store) DeleteCategory(ctx context.Context, id string) error {
	var inUse int
	if err := s.db.QueryRowContext(ctx, `
		SELECT count(*) FROM products WHERE active = true AND category_id = $1
	`, id).Scan(&inUse); err != nil {
		return err
	}
	if inUse > 0 {
		return store.ErrConflict
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM categories WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ReorderCategories(ctx context.Context, orderedIDs []string) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var total int
	if err := tx.QueryRowContext(ctx, `SELECT count(*) FROM categories`).Scan(&total); err != nil {
		return err
	}
	if total != len(orderedIDs) {
		return store.ErrInvalidInput
	}

	for i, id := range orderedIDs {
		res, err := tx.ExecContext(ctx, `
			UPDATE categories SET sort_order = $2 WHERE id = $1
		`, id, i+1)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return store.ErrInvalidInput
		}
	}
	return tx.Commit()
}

func (s *Store) ListBrands(ctx context.Context) ([]domain.Brand, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, created_at FROM brands ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	brands := make([]domain.Brand, 0, 32)
	for rows.Next() {
		var b domain.Brand
		if err := rows.Scan(&b.ID, &b.Name, &b.CreatedAt); err != nil {
			return nil, err
		}
		b.CreatedAt = b.CreatedAt.UTC()
		brands = append(brands, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return brands, nil
}

func (s *Store) CreateBrand(ctx context.Context, brand domain.Brand) (*domain.Brand, error) {
	if brand.ID == "" || brand.Name == "" {
		return nil, store.ErrInvalidInput
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO brands (id, name, created_at) VALUES ($1, $2, $3)
	`, brand.ID, brand.Name, brand.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	created := brand
	return &created, nil
}

func (s *Store) DeleteBrand(ctx context.Context, id string) error {
	var inUse int
	if err := s.db.QueryRowContext(ctx, `
		SELECT count(*) FROM products WHERE active = true AND brand_id = $1
	`, id).Scan(&inUse); err != nil {
		return err
	}
	if inUse > 0 {
		return store.ErrConflict
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM brands WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// CreateSale re-prices the lines from the products table under
// serializable isolation, locks the stock rows, decrements them and
// writes the sale. Insufficient stock on any line aborts the whole
// transaction.
func (s *Store) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	if sale.ID == "" || len(sale.Lines) == 0 {
		return nil, store.ErrInvalidInput
	}
	if sale.DiscountCents < 0 {
		return nil, store.ErrInvalidInput
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var subtotal int64
	priced := make([]domain.SaleLine, 0, len(sale.Lines))
	for _, line := range sale.Lines {
		if line.Qty < 1 {
			return nil, store.ErrInvalidInput
		}
		var name, kind string
		var unit int64
		var qty int
		var parentID sql.NullString
		err := tx.QueryRowContext(ctx, `
			SELECT name, kind, discounted_price_cents, stock_qty, parent_id
			FROM products
			WHERE id = $1 AND active = true
			FOR UPDATE
		`, line.ProductID).Scan(&name, &kind, &unit, &qty, &parentID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, store.ErrInvalidInput
			}
			return nil, err
		}
		if kind == string(domain.ProductVariantParent) {
			return nil, store.ErrInvalidInput
		}
		if line.Qty > qty {
			return nil, store.ErrInsufficientStock
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE products SET stock_qty = stock_qty - $2, updated_at = now() WHERE id = $1
		`, line.ProductID, line.Qty); err != nil {
			return nil, err
		}
		if err := refreshParentAggregate(ctx, tx, parentID.String); err != nil {
			return nil, err
		}

		priced = append(priced, domain.SaleLine{
			ProductID: line.ProductID,
			Name:      name,
			Qty:       line.Qty,
			UnitCents: unit,
		})
		subtotal += int64(line.Qty) * unit
	}

	total := subtotal - sale.DiscountCents
	if total < 0 {
		total = 0
	}
	if sale.PaymentMethod == domain.PaymentCash {
		if sale.CashReceivedCents < total {
			return nil, store.ErrInvalidInput
		}
		sale.ChangeCents = sale.CashReceivedCents - total
	} else {
		sale.CashReceivedCents = total
	}
	sale.SubtotalCents = subtotal
	sale.TotalCents = total
	sale.Status = domain.SaleStatusPaid
	sale.Lines = priced

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sales (
			id, terminal_id, cashier_username, idempotency_key, payment_method,
			customer_name, subtotal_cents, discount_cents, total_cents,
			cash_received_cents, change_cents, status, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, sale.ID, sale.TerminalID, sale.CashierUsername, nullIfEmpty(sale.IdempotencyKey),
		sale.PaymentMethod, nullIfEmpty(sale.CustomerName), sale.SubtotalCents,
		sale.DiscountCents, sale.TotalCents, sale.CashReceivedCents, sale.ChangeCents,
		sale.Status, sale.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}

	for i, line := range priced {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO sale_lines (sale_id, line_no, product_id, name, qty, unit_cents)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, sale.ID, i+1, line.ProductID, line.Name, line.Qty, line.UnitCents); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	created := sale
	return &created, nil
}

func (s *Store) FindSaleByID(ctx context.Context, id string) (*domain.Sale, error) {
	return s.findSale(ctx, `WHERE id = $1`, id)
}

func (s *Store) FindSaleByIdempotency(ctx context.Context, key string) (*domain.Sale, error) {
	return s.findSale(ctx, `WHERE idempotency_key = $1`, key)
}

func (s *Store) findSale(ctx context.Context, where string, arg any) (*domain.Sale, error) {
	var sale domain.Sale
	var idem, customer, voidReason sql.NullString
	var voidedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT id, terminal_id, cashier_username, idempotency_key, payment_method,
		       customer_name, subtotal_cents, discount_cents, total_cents,
		       cash_received_cents, change_cents, status, void_reason, voided_at, created_at
		FROM sales `+where,
		arg,
	).Scan(&sale.ID, &sale.TerminalID, &sale.CashierUsername, &idem, &sale.PaymentMethod,
		&customer, &sale.SubtotalCents, &sale.DiscountCents, &sale.TotalCents,
		&sale.CashReceivedCents, &sale.ChangeCents, &sale.Status, &voidReason, &voidedAt, &sale.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	sale.IdempotencyKey = idem.String
	sale.CustomerName = customer.String
	sale.VoidReason = voidReason.String
	if voidedAt.Valid {
		at := voidedAt.Time.UTC()
		sale.VoidedAt = &at
	}
	sale.CreatedAt = sale.CreatedAt.UTC()

	lines, err := s.saleLines(ctx, sale.ID)
	if err != nil {
		return nil, err
	}
	sale.Lines = lines
	return &sale, nil
}

func (s *Store) saleLines(ctx context.Context, saleID string) ([]domain.SaleLine, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id, name, qty, unit_cents
		FROM sale_lines
		WHERE sale_id = $1
		ORDER BY line_no
	`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lines := make([]domain.SaleLine, 0, 8)
	for rows.Next() {
		var line domain.SaleLine
		if err := rows.Scan(&line.ProductID, &line.Name, &line.Qty, &line.UnitCents); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

func (s *Store) ListSales(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.Sale, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM sales
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at DESC
		LIMIT $3
	`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]string, 0, limit)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sales := make([]domain.Sale, 0, len(ids))
	for _, id := range ids {
		sale, err := s.FindSaleByID(ctx, id)
		if err != nil {
			return nil, err
		}
		sales = append(sales, *sale)
	}
	return sales, nil
}

func (s *Store) VoidSale(ctx context.Context, id string, reason string, at time.Time) (*domain.Sale, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var status string
	err = tx.QueryRowContext(ctx, `
		SELECT status FROM sales WHERE id = $1 FOR UPDATE
	`, id).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if status != domain.SaleStatusPaid {
		return nil, store.ErrConflict
	}

	// Restock the voided lines.
	if _, err := tx.ExecContext(ctx, `
		UPDATE products p
		SET stock_qty = p.stock_qty + l.qty, updated_at = now()
		FROM sale_lines l
		WHERE l.sale_id = $1 AND l.product_id = p.id
	`, id); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE products parent
		SET total_variant_stock = agg.total
		FROM (
			SELECT parent_id, coalesce(sum(stock_qty), 0) AS total
			FROM products
			WHERE parent_id IS NOT NULL AND active = true
			GROUP BY parent_id
		) agg
		WHERE parent.id = agg.parent_id
	`); err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE sales SET status = $2, void_reason = $3, voided_at = $4 WHERE id = $1
	`, id, domain.SaleStatusVoided, reason, at); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.FindSaleByID(ctx, id)
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at DESC
		LIMIT $3
	`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorUsername, &entry.ActorRole, &entry.Action,
			&entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	if user.Username == "" || user.Password == "" {
		return store.ErrInvalidInput
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil && isUniqueViolation(err) {
		return store.ErrConflict
	}
	return err
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at FROM users
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var u domain.UserAccount
		if err := rows.Scan(&u.Username, &u.Password, &u.Role, &u.Active, &u.CreatedAt); err != nil {
			return nil, err
		}
		u.CreatedAt = u.CreatedAt.UTC()
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET password = $2 WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// refreshParentAggregate recomputes a parent's total_variant_stock from
// its active children inside the caller's transaction.
func refreshParentAggregate(ctx context.Context, tx *sql.Tx, parentID string) error {
	if parentID == "" {
		return nil
	}
	_, err := tx.ExecContext(ctx, `
		UPDATE products
		SET total_variant_stock = (
			SELECT coalesce(sum(stock_qty), 0)
			FROM products c
			WHERE c.parent_id = $1 AND c.active = true
		)
		WHERE id = $1
	`, parentID)
	return err
}

func marshalAttrs(attrs map[string]string) ([]byte, error) {
	if len(attrs) == 0 {
		return nil, nil
	}
	return json.Marshal(attrs)
}

func nullIfEmpty(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

var _ store.Repository = (*Store)(nil)
