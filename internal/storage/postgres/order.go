package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/boutique-checkout/internal/domain/order"
	"github.com/xenking/boutique-checkout/internal/domain/shipping"
)

const (
	orderColumns = `id, order_number, customer_id, COALESCE(shipping_address_id, ''),
		COALESCE(billing_address_id, ''), shipping_zone_id, shipping_zone_name, shipping_rate_id,
		delivery_type, customer_email, customer_phone, subtotal, shipping_cost, tax_amount,
		discount_amount, total, coupon_code, status, notes, paid, paid_at, created_at, updated_at`

	getOrderByNumberSQL = `SELECT ` + orderColumns + ` FROM orders WHERE order_number = $1`

	lockOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE order_number = $1 FOR UPDATE`

	listOrdersByCustomerSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE customer_id = $1
		ORDER BY created_at DESC, order_number DESC
		LIMIT $2`

	getOrderItemsSQL = `SELECT id, product_id, variant_id, product_name, variant_details,
		unit_price, quantity, subtotal
		FROM order_items WHERE order_id = $1 ORDER BY position`

	getOrderHistorySQL = `SELECT id, order_id, status, comment, created_by, created_at
		FROM order_status_history WHERE order_id = $1 ORDER BY created_at, id`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// GetByNumber returns an order with its items.
func (r *OrderRepository) GetByNumber(ctx context.Context, number string) (*order.Order, error) {
	return getOrder(ctx, r.pool, getOrderByNumberSQL, number)
}

// ListByCustomer returns the newest orders of a customer without items.
func (r *OrderRepository) ListByCustomer(ctx context.Context, customerID string, limit int) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listOrdersByCustomerSQL, customerID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing orders of %q: %w", customerID, err)
	}
	return pgx.CollectRows(rows, scanOrder)
}

// History returns the status history of an order, oldest first.
func (r *OrderRepository) History(ctx context.Context, orderID uuid.UUID) ([]order.StatusEntry, error) {
	rows, err := r.pool.Query(ctx, getOrderHistorySQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("getting history of %s: %w", orderID, err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (order.StatusEntry, error) {
		var (
			e      order.StatusEntry
			status string
		)
		err := row.Scan(&e.ID, &e.OrderID, &status, &e.Comment, &e.CreatedBy, &e.CreatedAt)
		e.Status = order.Status(status)
		return e, err
	})
}

func getOrder(ctx context.Context, q querier, sql, number string) (*order.Order, error) {
	rows, err := q.Query(ctx, sql, number)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", number, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", number, err)
	}

	rows, err = q.Query(ctx, getOrderItemsSQL, o.ID)
	if err != nil {
		return nil, fmt.Errorf("getting items of %q: %w", number, err)
	}
	o.Items, err = pgx.CollectRows(rows, scanItem)
	if err != nil {
		return nil, fmt.Errorf("getting items of %q: %w", number, err)
	}
	return &o, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o            order.Order
		deliveryType string
		status       string
	)
	err := row.Scan(
		&o.ID, &o.Number, &o.CustomerID, &o.ShippingAddressID,
		&o.BillingAddressID, &o.ShippingZoneID, &o.ShippingZoneName, &o.ShippingRateID,
		&deliveryType, &o.CustomerEmail, &o.CustomerPhone, &o.Subtotal, &o.ShippingCost, &o.TaxAmount,
		&o.DiscountAmount, &o.Total, &o.CouponCode, &status, &o.Notes, &o.Paid, &o.PaidAt, &o.CreatedAt, &o.UpdatedAt,
	)
	o.DeliveryType = shipping.DeliveryType(deliveryType)
	o.Status = order.Status(status)
	return o, err
}

func scanItem(row pgx.CollectableRow) (order.Item, error) {
	var it order.Item
	err := row.Scan(
		&it.ID, &it.ProductID, &it.VariantID, &it.ProductName, &it.VariantDetails,
		&it.UnitPrice, &it.Quantity, &it.Subtotal,
	)
	return it, err
}
