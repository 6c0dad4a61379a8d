package coupon

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Validator checks a code against its coupon rules without mutating anything.
type Validator struct {
	repo Repository
	now  func() time.Time
}

// ValidatorOption configures a Validator.
type ValidatorOption func(*Validator)

// WithClock overrides the time source used for the validity window.
func WithClock(now func() time.Time) ValidatorOption {
	return func(v *Validator) { v.now = now }
}

// NewValidator creates a Validator backed by the given Repository.
func NewValidator(repo Repository, opts ...ValidatorOption) *Validator {
	v := &Validator{repo: repo, now: time.Now}
	for _, o := range opts {
		o(v)
	}
	return v
}

// IsRejection reports whether err is a business rejection rather than a
// lookup failure.
func IsRejection(err error) bool {
	var minErr *MinimumPurchaseError
	switch {
	case errors.As(err, &minErr),
		errors.Is(err, ErrEmptyCode),
		errors.Is(err, ErrInvalidCoupon),
		errors.Is(err, ErrNotYetValid),
		errors.Is(err, ErrExpired),
		errors.Is(err, ErrUsageLimitReached),
		errors.Is(err, ErrCustomerLimitReached):
		return true
	default:
		return false
	}
}

// Validate checks code for customerID against a cart total and computes the
// discount. Checks short-circuit in order: non-empty code, existence, validity
// window, global usage limit, minimum purchase, per-customer limit.
func (v *Validator) Validate(ctx context.Context, code, customerID string, cartTotal decimal.Decimal) (*Applied, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, ErrEmptyCode
	}

	c, err := v.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrInvalidCoupon) {
			return nil, ErrInvalidCoupon
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}
	if !c.Active {
		return nil, ErrInvalidCoupon
	}

	now := v.now()
	if !c.ValidFrom.IsZero() && now.Before(c.ValidFrom) {
		return nil, ErrNotYetValid
	}
	if !c.ValidUntil.IsZero() && now.After(c.ValidUntil) {
		return nil, ErrExpired
	}
	if c.Exhausted() {
		return nil, ErrUsageLimitReached
	}
	if cartTotal.LessThan(c.MinimumPurchase) {
		return nil, &MinimumPurchaseError{Minimum: c.MinimumPurchase, CartTotal: cartTotal}
	}

	if c.PerCustomerLimit > 0 {
		used, err := v.repo.CountCustomerUses(ctx, c.ID, customerID)
		if err != nil {
			return nil, errors.Wrap(err, "count customer uses")
		}
		if used >= c.PerCustomerLimit {
			return nil, ErrCustomerLimitReached
		}
	}

	amount := c.Discount(cartTotal)
	return &Applied{
		Coupon:  c,
		Amount:  amount,
		Message: appliedMessage(c, amount),
	}, nil
}

func appliedMessage(c *Coupon, amount decimal.Decimal) string {
	if c.DiscountType == DiscountPercentage {
		return fmt.Sprintf("Coupon '%s' applied: -%s%% (%s FCFA)", c.Code, c.Value.String(), amount.StringFixed(2))
	}
	return fmt.Sprintf("Coupon '%s' applied: -%s FCFA", c.Code, amount.StringFixed(2))
}
