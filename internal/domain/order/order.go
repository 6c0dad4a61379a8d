// Package order assembles customer orders from carts and drives their
// status lifecycle.
package order

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/boutique-checkout/internal/domain/coupon"
	"github.com/xenking/boutique-checkout/internal/domain/shipping"
)

// Order is a placed order with its snapshotted pricing and delivery choices.
type Order struct {
	ID                uuid.UUID
	Number            string
	CustomerID        string
	ShippingAddressID string
	BillingAddressID  string
	ShippingZoneID    string
	ShippingZoneName  string
	ShippingRateID    string
	DeliveryType      shipping.DeliveryType
	CustomerEmail     string
	CustomerPhone     string

	Subtotal       decimal.Decimal
	ShippingCost   decimal.Decimal
	TaxAmount      decimal.Decimal
	DiscountAmount decimal.Decimal
	Total          decimal.Decimal
	CouponCode     string

	Status    Status
	Notes     string
	Paid      bool
	PaidAt    *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time

	Items []Item
}

// Totals returns the monetary fields of the order.
func (o *Order) Totals() Totals {
	return Totals{
		Subtotal: o.Subtotal,
		Shipping: o.ShippingCost,
		Tax:      o.TaxAmount,
		Discount: o.DiscountAmount,
		Total:    o.Total,
	}
}

func (o *Order) applyTotals(t Totals) {
	o.Subtotal = t.Subtotal
	o.ShippingCost = t.Shipping
	o.TaxAmount = t.Tax
	o.DiscountAmount = t.Discount
	o.Total = t.Total
}

// Item is an order line. Product name, variant details and unit price are
// copied from the catalog when the order is placed.
type Item struct {
	ID             uuid.UUID
	ProductID      string
	VariantID      string
	ProductName    string
	VariantDetails string
	UnitPrice      decimal.Decimal
	Quantity       int
	Subtotal       decimal.Decimal
}

// StatusEntry is an append-only status history record.
type StatusEntry struct {
	ID        uuid.UUID
	OrderID   uuid.UUID
	Status    Status
	Comment   string
	CreatedBy string
	CreatedAt time.Time
}

// Totals holds the monetary breakdown of an order.
type Totals struct {
	Subtotal decimal.Decimal
	Shipping decimal.Decimal
	Tax      decimal.Decimal
	Discount decimal.Decimal
	Total    decimal.Decimal
}

// ComputeTotals sums the line subtotals and derives the order total as
// subtotal + shipping + tax - discount.
func ComputeTotals(items []Item, shippingCost, tax, discount decimal.Decimal) Totals {
	subtotal := decimal.Zero
	for _, it := range items {
		subtotal = subtotal.Add(it.Subtotal)
	}
	t := Totals{
		Subtotal: subtotal.Round(2),
		Shipping: shippingCost.Round(2),
		Tax:      tax.Round(2),
		Discount: discount.Round(2),
	}
	t.Total = t.Subtotal.Add(t.Shipping).Add(t.Tax).Sub(t.Discount)
	return t
}

// Consistent reports whether no field is negative and the total equals
// subtotal + shipping + tax - discount.
func (t Totals) Consistent() bool {
	for _, d := range []decimal.Decimal{t.Subtotal, t.Shipping, t.Tax, t.Discount, t.Total} {
		if d.IsNegative() {
			return false
		}
	}
	return t.Total.Equal(t.Subtotal.Add(t.Shipping).Add(t.Tax).Sub(t.Discount))
}

// Repository reads placed orders.
type Repository interface {
	// GetByNumber returns the order with its items, or ErrNotFound.
	GetByNumber(ctx context.Context, number string) (*Order, error)
	// ListByCustomer returns the customer's orders, newest first, without items.
	ListByCustomer(ctx context.Context, customerID string, limit int) ([]Order, error)
	History(ctx context.Context, orderID uuid.UUID) ([]StatusEntry, error)
}

// Store runs fn inside a single database transaction. The transaction
// commits when fn returns nil and rolls back otherwise.
type Store interface {
	Atomically(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the set of writes performed while placing or updating an order.
// Every counter update is an in-database increment.
type Tx interface {
	// NextSequence increments and returns the counter for prefix. The
	// sequence row stays locked until the transaction ends.
	NextSequence(ctx context.Context, prefix string) (int64, error)
	InsertOrder(ctx context.Context, o *Order) error
	// ReserveStock adds qty to the reserved quantity when enough stock is
	// available, and returns a *catalog.StockError otherwise.
	ReserveStock(ctx context.Context, variantID string, qty int) error
	AddProductSales(ctx context.Context, productID string, qty int) error
	// RecordCouponUsage inserts the usage record and increments the coupon
	// counter while holding the coupon. It returns
	// coupon.ErrUsageLimitReached or coupon.ErrCustomerLimitReached when a
	// concurrent order used up the coupon after validation.
	RecordCouponUsage(ctx context.Context, u coupon.Usage) error
	AppendStatus(ctx context.Context, e StatusEntry) error
	RecordCustomerOrder(ctx context.Context, customerID string, total decimal.Decimal) error

	// LockOrder loads the order with its items and locks its row.
	LockOrder(ctx context.Context, number string) (*Order, error)
	SetStatus(ctx context.Context, orderID uuid.UUID, status Status, at time.Time) error
	ReleaseStock(ctx context.Context, variantID string, qty int) error
	ConsumeStock(ctx context.Context, variantID string, qty int) error
	MarkPaid(ctx context.Context, orderID uuid.UUID, at time.Time) error
}
