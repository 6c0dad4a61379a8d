package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/xenking/boutique-checkout/internal/domain/catalog"
	"github.com/xenking/boutique-checkout/internal/domain/coupon"
	"github.com/xenking/boutique-checkout/internal/domain/customer"
	"github.com/xenking/boutique-checkout/internal/domain/order"
)

const (
	// The upsert takes a row lock on the day's counter, so concurrent
	// checkouts on the same day queue here until commit.
	nextSequenceSQL = `INSERT INTO order_sequences (prefix, last_number) VALUES ($1, 1)
		ON CONFLICT (prefix) DO UPDATE SET last_number = order_sequences.last_number + 1
		RETURNING last_number`

	insertOrderSQL = `INSERT INTO orders (id, order_number, customer_id, shipping_address_id,
		billing_address_id, shipping_zone_id, shipping_zone_name, shipping_rate_id, delivery_type,
		customer_email, customer_phone, subtotal, shipping_cost, tax_amount, discount_amount, total,
		coupon_code, status, notes, paid, paid_at, created_at, updated_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, $7, $8, $9, $10, $11, $12, $13, $14,
		$15, $16, $17, $18, $19, $20, $21, $22, $23)`

	insertOrderItemSQL = `INSERT INTO order_items (id, order_id, product_id, variant_id, product_name,
		variant_details, unit_price, quantity, subtotal, position)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	reserveStockSQL = `UPDATE product_variants SET reserved = reserved + $2
		WHERE id = $1 AND quantity - reserved >= $2`

	availableStockSQL = `SELECT GREATEST(quantity - reserved, 0) FROM product_variants WHERE id = $1`

	releaseStockSQL = `UPDATE product_variants SET reserved = GREATEST(reserved - $2, 0) WHERE id = $1`

	consumeStockSQL = `UPDATE product_variants
		SET quantity = GREATEST(quantity - $2, 0), reserved = GREATEST(reserved - $2, 0)
		WHERE id = $1`

	addProductSalesSQL = `UPDATE products SET total_sales = total_sales + $2 WHERE id = $1`

	incrementCouponUsageSQL = `UPDATE coupons SET times_used = times_used + 1
		WHERE id = $1 AND (usage_limit = 0 OR times_used < usage_limit)`

	// Runs after incrementCouponUsageSQL, so the coupon row lock orders
	// concurrent checkouts and the count sees committed usages.
	customerUsesLockedSQL = `SELECT c.per_customer_limit,
		(SELECT count(*) FROM coupon_usages u WHERE u.coupon_id = c.id AND u.customer_id = $2)
		FROM coupons c WHERE c.id = $1`

	insertCouponUsageSQL = `INSERT INTO coupon_usages (id, coupon_id, customer_id, order_id, discount, used_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	insertStatusSQL = `INSERT INTO order_status_history (id, order_id, status, comment, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	recordCustomerOrderSQL = `UPDATE customers SET total_orders = total_orders + 1, total_spent = total_spent + $2
		WHERE id = $1`

	setStatusSQL = `UPDATE orders SET status = $2, updated_at = $3 WHERE id = $1`

	markPaidSQL = `UPDATE orders SET paid = TRUE, paid_at = $2, updated_at = $2 WHERE id = $1`
)

var _ order.Tx = (*tx)(nil)

// tx is the order.Tx handed to Store.Atomically callbacks.
type tx struct {
	q pgx.Tx
}

func (t *tx) NextSequence(ctx context.Context, prefix string) (int64, error) {
	var n int64
	if err := t.q.QueryRow(ctx, nextSequenceSQL, prefix).Scan(&n); err != nil {
		return 0, fmt.Errorf("next sequence for %q: %w", prefix, err)
	}
	return n, nil
}

func (t *tx) InsertOrder(ctx context.Context, o *order.Order) error {
	_, err := t.q.Exec(ctx, insertOrderSQL,
		o.ID, o.Number, o.CustomerID, o.ShippingAddressID,
		o.BillingAddressID, o.ShippingZoneID, o.ShippingZoneName, o.ShippingRateID, string(o.DeliveryType),
		o.CustomerEmail, o.CustomerPhone, o.Subtotal, o.ShippingCost, o.TaxAmount, o.DiscountAmount, o.Total,
		o.CouponCode, string(o.Status), o.Notes, o.Paid, o.PaidAt, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting order %q: %w", o.Number, err)
	}

	batch := &pgx.Batch{}
	for i, it := range o.Items {
		batch.Queue(insertOrderItemSQL,
			it.ID, o.ID, it.ProductID, it.VariantID, it.ProductName,
			it.VariantDetails, it.UnitPrice, it.Quantity, it.Subtotal, i,
		)
	}
	if batch.Len() == 0 {
		return nil
	}
	if err := t.q.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("inserting items of %q: %w", o.Number, err)
	}
	return nil
}

// ReserveStock reserves qty units only when enough are available. A
// shortfall is reported as *catalog.StockError.
func (t *tx) ReserveStock(ctx context.Context, variantID string, qty int) error {
	tag, err := t.q.Exec(ctx, reserveStockSQL, variantID, qty)
	if err != nil {
		return fmt.Errorf("reserving %d of %q: %w", qty, variantID, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var available int
	if err := t.q.QueryRow(ctx, availableStockSQL, variantID).Scan(&available); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return catalog.ErrVariantNotFound
		}
		return fmt.Errorf("reading stock of %q: %w", variantID, err)
	}
	return &catalog.StockError{VariantID: variantID, Requested: qty, Available: available}
}

func (t *tx) AddProductSales(ctx context.Context, productID string, qty int) error {
	if _, err := t.q.Exec(ctx, addProductSalesSQL, productID, qty); err != nil {
		return fmt.Errorf("adding sales to %q: %w", productID, err)
	}
	return nil
}

// RecordCouponUsage increments the usage counter under the global limit,
// checks the per-customer limit under the resulting row lock and writes the
// usage record.
func (t *tx) RecordCouponUsage(ctx context.Context, u coupon.Usage) error {
	tag, err := t.q.Exec(ctx, incrementCouponUsageSQL, u.CouponID)
	if err != nil {
		return fmt.Errorf("incrementing coupon %q: %w", u.CouponID, err)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrUsageLimitReached
	}
	var limit, used int
	if err := t.q.QueryRow(ctx, customerUsesLockedSQL, u.CouponID, u.CustomerID).Scan(&limit, &used); err != nil {
		return fmt.Errorf("counting uses of coupon %q: %w", u.CouponID, err)
	}
	if limit > 0 && used >= limit {
		return coupon.ErrCustomerLimitReached
	}
	if _, err := t.q.Exec(ctx, insertCouponUsageSQL,
		u.ID, u.CouponID, u.CustomerID, u.OrderID, u.Discount, u.UsedAt,
	); err != nil {
		return fmt.Errorf("inserting usage of coupon %q: %w", u.CouponID, err)
	}
	return nil
}

func (t *tx) AppendStatus(ctx context.Context, e order.StatusEntry) error {
	if _, err := t.q.Exec(ctx, insertStatusSQL,
		e.ID, e.OrderID, string(e.Status), e.Comment, e.CreatedBy, e.CreatedAt,
	); err != nil {
		return fmt.Errorf("appending status %q: %w", e.Status, err)
	}
	return nil
}

func (t *tx) RecordCustomerOrder(ctx context.Context, customerID string, total decimal.Decimal) error {
	tag, err := t.q.Exec(ctx, recordCustomerOrderSQL, customerID, total)
	if err != nil {
		return fmt.Errorf("updating stats of %q: %w", customerID, err)
	}
	if tag.RowsAffected() == 0 {
		return customer.ErrNotFound
	}
	return nil
}

// LockOrder reads an order with its items and holds a row lock on it until
// the transaction ends.
func (t *tx) LockOrder(ctx context.Context, number string) (*order.Order, error) {
	return getOrder(ctx, t.q, lockOrderSQL, number)
}

func (t *tx) SetStatus(ctx context.Context, orderID uuid.UUID, status order.Status, at time.Time) error {
	if _, err := t.q.Exec(ctx, setStatusSQL, orderID, string(status), at); err != nil {
		return fmt.Errorf("setting status of %s: %w", orderID, err)
	}
	return nil
}

func (t *tx) ReleaseStock(ctx context.Context, variantID string, qty int) error {
	if _, err := t.q.Exec(ctx, releaseStockSQL, variantID, qty); err != nil {
		return fmt.Errorf("releasing %d of %q: %w", qty, variantID, err)
	}
	return nil
}

func (t *tx) ConsumeStock(ctx context.Context, variantID string, qty int) error {
	if _, err := t.q.Exec(ctx, consumeStockSQL, variantID, qty); err != nil {
		return fmt.Errorf("consuming %d of %q: %w", qty, variantID, err)
	}
	return nil
}

func (t *tx) MarkPaid(ctx context.Context, orderID uuid.UUID, at time.Time) error {
	if _, err := t.q.Exec(ctx, markPaidSQL, orderID, at); err != nil {
		return fmt.Errorf("marking %s paid: %w", orderID, err)
	}
	return nil
}
