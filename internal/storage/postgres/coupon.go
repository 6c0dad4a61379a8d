package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/boutique-checkout/internal/domain/coupon"
)

const (
	getCouponByCodeSQL = `SELECT id, code, description, discount_type, value, max_discount,
		minimum_purchase, usage_limit, per_customer_limit, times_used, valid_from, valid_until, active
		FROM coupons WHERE code = UPPER(TRIM($1))`

	countCustomerUsesSQL = `SELECT count(*) FROM coupon_usages WHERE coupon_id = $1 AND customer_id = $2`
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindByCode looks up a coupon by its code, case-insensitively. Inactive
// coupons are returned so the validator can reject them.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, getCouponByCodeSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrInvalidCoupon
		}
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}
	return &c, nil
}

// CountCustomerUses returns how many usage records customerID holds for
// couponID.
func (r *CouponRepository) CountCustomerUses(ctx context.Context, couponID, customerID string) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, countCustomerUsesSQL, couponID, customerID).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting uses of coupon %q: %w", couponID, err)
	}
	return n, nil
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		c            coupon.Coupon
		discountType string
		validFrom    *time.Time
		validUntil   *time.Time
	)
	err := row.Scan(
		&c.ID, &c.Code, &c.Description, &discountType, &c.Value, &c.MaxDiscount,
		&c.MinimumPurchase, &c.UsageLimit, &c.PerCustomerLimit, &c.TimesUsed,
		&validFrom, &validUntil, &c.Active,
	)
	c.DiscountType = coupon.DiscountType(discountType)
	if validFrom != nil {
		c.ValidFrom = *validFrom
	}
	if validUntil != nil {
		c.ValidUntil = *validUntil
	}
	return c, err
}
