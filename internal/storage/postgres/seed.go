package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/boutique-checkout/internal/domain/catalog"
	"github.com/xenking/boutique-checkout/internal/domain/coupon"
	"github.com/xenking/boutique-checkout/internal/domain/customer"
	"github.com/xenking/boutique-checkout/internal/domain/shipping"
)

const (
	upsertProductSQL = `INSERT INTO products (id, name) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`

	upsertVariantSQL = `INSERT INTO product_variants (id, product_id, sku, size, color, price, active,
		quantity, reserved, low_stock_threshold)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET sku = EXCLUDED.sku, size = EXCLUDED.size, color = EXCLUDED.color,
			price = EXCLUDED.price, active = EXCLUDED.active, quantity = EXCLUDED.quantity,
			reserved = EXCLUDED.reserved, low_stock_threshold = EXCLUDED.low_stock_threshold`

	upsertZoneSQL = `INSERT INTO shipping_zones (id, name, cities, active, min_days, max_days)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, cities = EXCLUDED.cities,
			active = EXCLUDED.active, min_days = EXCLUDED.min_days, max_days = EXCLUDED.max_days`

	upsertRateSQL = `INSERT INTO shipping_rates (id, zone_id, delivery_type, price, free_shipping_threshold, active)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET zone_id = EXCLUDED.zone_id, delivery_type = EXCLUDED.delivery_type,
			price = EXCLUDED.price, free_shipping_threshold = EXCLUDED.free_shipping_threshold,
			active = EXCLUDED.active`

	upsertCouponSQL = `INSERT INTO coupons (id, code, description, discount_type, value, max_discount,
		minimum_purchase, usage_limit, per_customer_limit, valid_from, valid_until, active)
		VALUES ($1, UPPER(TRIM($2)), $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (code) DO UPDATE SET description = EXCLUDED.description,
			discount_type = EXCLUDED.discount_type, value = EXCLUDED.value,
			max_discount = EXCLUDED.max_discount, minimum_purchase = EXCLUDED.minimum_purchase,
			usage_limit = EXCLUDED.usage_limit, per_customer_limit = EXCLUDED.per_customer_limit,
			valid_from = EXCLUDED.valid_from, valid_until = EXCLUDED.valid_until, active = EXCLUDED.active`

	upsertAddressSQL = `INSERT INTO addresses (id, customer_id, full_name, phone, line1, line2, city,
		region, postal_code, country)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET full_name = EXCLUDED.full_name, phone = EXCLUDED.phone,
			line1 = EXCLUDED.line1, line2 = EXCLUDED.line2, city = EXCLUDED.city,
			region = EXCLUDED.region, postal_code = EXCLUDED.postal_code, country = EXCLUDED.country`
)

// Seeder writes reference data: catalog, shipping, coupons and addresses.
// Every write is an upsert keyed by id, or by code for coupons.
type Seeder struct {
	pool *pgxpool.Pool
}

// NewSeeder returns a Seeder that uses the given pool.
func NewSeeder(pool *pgxpool.Pool) *Seeder {
	return &Seeder{pool: pool}
}

// UpsertProduct stores a product header.
func (s *Seeder) UpsertProduct(ctx context.Context, id, name string) error {
	if _, err := s.pool.Exec(ctx, upsertProductSQL, id, name); err != nil {
		return fmt.Errorf("upserting product %q: %w", id, err)
	}
	return nil
}

// UpsertVariant stores a variant and its stock counters.
func (s *Seeder) UpsertVariant(ctx context.Context, v catalog.Variant) error {
	threshold := v.Stock.LowStockThreshold
	if threshold == 0 {
		threshold = catalog.DefaultLowStockThreshold
	}
	if _, err := s.pool.Exec(ctx, upsertVariantSQL,
		v.ID, v.ProductID, v.SKU, v.Size, v.Color, v.Price, v.Active,
		v.Stock.Quantity, v.Stock.Reserved, threshold,
	); err != nil {
		return fmt.Errorf("upserting variant %q: %w", v.ID, err)
	}
	return nil
}

// UpsertZone stores a shipping zone.
func (s *Seeder) UpsertZone(ctx context.Context, z shipping.Zone) error {
	if _, err := s.pool.Exec(ctx, upsertZoneSQL,
		z.ID, z.Name, strings.Join(z.Cities.Names(), ", "), z.Active, z.MinDays, z.MaxDays,
	); err != nil {
		return fmt.Errorf("upserting zone %q: %w", z.ID, err)
	}
	return nil
}

// UpsertRate stores a shipping rate of r.Zone.
func (s *Seeder) UpsertRate(ctx context.Context, r shipping.Rate) error {
	if _, err := s.pool.Exec(ctx, upsertRateSQL,
		r.ID, r.Zone.ID, string(r.DeliveryType), r.Price, r.FreeShippingThreshold, r.Active,
	); err != nil {
		return fmt.Errorf("upserting rate %q: %w", r.ID, err)
	}
	return nil
}

// UpsertCoupon stores a coupon definition. The usage counter is left
// untouched on update.
func (s *Seeder) UpsertCoupon(ctx context.Context, c coupon.Coupon) error {
	if _, err := s.pool.Exec(ctx, upsertCouponSQL,
		c.ID, c.Code, c.Description, string(c.DiscountType), c.Value, c.MaxDiscount,
		c.MinimumPurchase, c.UsageLimit, c.PerCustomerLimit,
		nullTime(c.ValidFrom), nullTime(c.ValidUntil), c.Active,
	); err != nil {
		return fmt.Errorf("upserting coupon %q: %w", c.Code, err)
	}
	return nil
}

// UpsertAddress stores an address of an existing customer.
func (s *Seeder) UpsertAddress(ctx context.Context, a customer.Address) error {
	if _, err := s.pool.Exec(ctx, upsertAddressSQL,
		a.ID, a.CustomerID, a.FullName, a.Phone, a.Line1, a.Line2, a.City,
		a.Region, a.PostalCode, a.Country,
	); err != nil {
		return fmt.Errorf("upserting address %q: %w", a.ID, err)
	}
	return nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
