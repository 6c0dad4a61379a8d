package coupon

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DiscountType enumerates the supported coupon discount strategies.
type DiscountType string

const (
	// DiscountPercentage takes a percentage of the cart total, optionally capped.
	DiscountPercentage DiscountType = "percentage"
	// DiscountFixed takes a fixed amount, never more than the cart total.
	DiscountFixed DiscountType = "fixed"
)

// Rejection reasons, checked in this order by Validator.Validate.
var (
	ErrEmptyCode            = errors.New("please enter a coupon code")
	ErrInvalidCoupon        = errors.New("this coupon code does not exist or is no longer valid")
	ErrNotYetValid          = errors.New("this coupon is not valid yet")
	ErrExpired              = errors.New("this coupon has expired")
	ErrUsageLimitReached    = errors.New("this coupon has reached its usage limit")
	ErrCustomerLimitReached = errors.New("you have already used this coupon")
)

// MinimumPurchaseError is returned when the cart total is below the coupon minimum.
type MinimumPurchaseError struct {
	Minimum   decimal.Decimal
	CartTotal decimal.Decimal
}

func (e *MinimumPurchaseError) Error() string {
	return fmt.Sprintf("this coupon requires a minimum purchase of %s FCFA, your cart: %s FCFA",
		e.Minimum.StringFixed(2), e.CartTotal.StringFixed(2))
}

// Coupon is a promotional code with its eligibility rules.
type Coupon struct {
	ID           string
	Code         string
	Description  string
	DiscountType DiscountType
	Value        decimal.Decimal
	// MaxDiscount caps percentage discounts when positive.
	MaxDiscount     decimal.Decimal
	MinimumPurchase decimal.Decimal
	// UsageLimit bounds TimesUsed when positive.
	UsageLimit       int
	PerCustomerLimit int
	TimesUsed        int
	ValidFrom        time.Time
	ValidUntil       time.Time
	Active           bool
}

// Exhausted reports whether the global usage limit has been reached.
func (c *Coupon) Exhausted() bool {
	return c.UsageLimit > 0 && c.TimesUsed >= c.UsageLimit
}

// Usage links one application of a coupon to an order and a customer.
// It is written once, inside the order transaction.
type Usage struct {
	ID         uuid.UUID
	CouponID   string
	CustomerID string
	OrderID    uuid.UUID
	Discount   decimal.Decimal
	UsedAt     time.Time
}

// Applied is the outcome of a successful validation.
type Applied struct {
	Coupon  *Coupon
	Amount  decimal.Decimal
	Message string
}

// Repository provides read access to coupons and their usage.
type Repository interface {
	// FindByCode returns the active coupon whose code matches case-insensitively,
	// or ErrInvalidCoupon.
	FindByCode(ctx context.Context, code string) (*Coupon, error)
	CountCustomerUses(ctx context.Context, couponID, customerID string) (int, error)
}
