package coupon

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockCouponRepo struct {
	coupon   *Coupon
	err      error
	uses     int
	usesErr  error
	countFor string
}

func (m *mockCouponRepo) FindByCode(_ context.Context, _ string) (*Coupon, error) {
	return m.coupon, m.err
}

func (m *mockCouponRepo) CountCustomerUses(_ context.Context, _, customerID string) (int, error) {
	m.countFor = customerID
	return m.uses, m.usesErr
}

func TestValidator_Validate(t *testing.T) {
	fixedNow := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	past := fixedNow.Add(-24 * time.Hour)
	future := fixedNow.Add(24 * time.Hour)

	base := func(mod func(c *Coupon)) *Coupon {
		c := &Coupon{
			ID:               "c1",
			Code:             "BIENVENUE",
			DiscountType:     DiscountPercentage,
			Value:            decimal.NewFromInt(10),
			PerCustomerLimit: 1,
			ValidFrom:        past,
			ValidUntil:       future,
			Active:           true,
		}
		if mod != nil {
			mod(c)
		}
		return c
	}

	tests := []struct {
		name       string
		repo       *mockCouponRepo
		code       string
		total      int64
		wantAmount int64
		wantErr    error
	}{
		{
			name:       "valid percentage coupon",
			repo:       &mockCouponRepo{coupon: base(nil)},
			code:       "bienvenue",
			total:      20000,
			wantAmount: 2000,
		},
		{
			name:    "blank code",
			repo:    &mockCouponRepo{coupon: base(nil)},
			code:    "   ",
			total:   20000,
			wantErr: ErrEmptyCode,
		},
		{
			name:    "unknown code",
			repo:    &mockCouponRepo{err: ErrInvalidCoupon},
			code:    "NOPE",
			total:   20000,
			wantErr: ErrInvalidCoupon,
		},
		{
			name:    "inactive coupon",
			repo:    &mockCouponRepo{coupon: base(func(c *Coupon) { c.Active = false })},
			code:    "BIENVENUE",
			total:   20000,
			wantErr: ErrInvalidCoupon,
		},
		{
			name:    "not yet valid",
			repo:    &mockCouponRepo{coupon: base(func(c *Coupon) { c.ValidFrom = future })},
			code:    "BIENVENUE",
			total:   20000,
			wantErr: ErrNotYetValid,
		},
		{
			name:    "expired",
			repo:    &mockCouponRepo{coupon: base(func(c *Coupon) { c.ValidUntil = past })},
			code:    "BIENVENUE",
			total:   20000,
			wantErr: ErrExpired,
		},
		{
			name: "global usage limit reached",
			repo: &mockCouponRepo{coupon: base(func(c *Coupon) {
				c.UsageLimit = 100
				c.TimesUsed = 100
			})},
			code:    "BIENVENUE",
			total:   20000,
			wantErr: ErrUsageLimitReached,
		},
		{
			name: "unlimited usage ignores counter",
			repo: &mockCouponRepo{coupon: base(func(c *Coupon) {
				c.UsageLimit = 0
				c.TimesUsed = 9999
			})},
			code:       "BIENVENUE",
			total:      20000,
			wantAmount: 2000,
		},
		{
			name:    "per customer limit reached",
			repo:    &mockCouponRepo{coupon: base(nil), uses: 1},
			code:    "BIENVENUE",
			total:   20000,
			wantErr: ErrCustomerLimitReached,
		},
		{
			name: "capped percentage",
			repo: &mockCouponRepo{coupon: base(func(c *Coupon) {
				c.Value = decimal.NewFromInt(50)
				c.MaxDiscount = decimal.NewFromInt(5000)
			})},
			code:       "BIENVENUE",
			total:      20000,
			wantAmount: 5000,
		},
		{
			name: "fixed coupon larger than cart",
			repo: &mockCouponRepo{coupon: base(func(c *Coupon) {
				c.DiscountType = DiscountFixed
				c.Value = decimal.NewFromInt(10000)
			})},
			code:       "BIENVENUE",
			total:      7000,
			wantAmount: 7000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewValidator(tt.repo)
			v.now = func() time.Time { return fixedNow }

			got, err := v.Validate(context.Background(), tt.code, "cust-1", decimal.NewFromInt(tt.total))

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.True(t, IsRejection(err))
				assert.Nil(t, got)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, got)
			assert.True(t, decimal.NewFromInt(tt.wantAmount).Equal(got.Amount),
				"expected amount %d, got %s", tt.wantAmount, got.Amount)
			assert.NotEmpty(t, got.Message)
		})
	}
}

func TestValidator_MinimumPurchase(t *testing.T) {
	repo := &mockCouponRepo{coupon: &Coupon{
		ID:              "c2",
		Code:            "GROS",
		DiscountType:    DiscountFixed,
		Value:           decimal.NewFromInt(5000),
		MinimumPurchase: decimal.NewFromInt(30000),
		Active:          true,
	}}

	_, err := NewValidator(repo).Validate(context.Background(), "GROS", "cust-1", decimal.NewFromInt(29999))

	var minErr *MinimumPurchaseError
	require.ErrorAs(t, err, &minErr)
	assert.True(t, IsRejection(err))
	assert.Equal(t, "this coupon requires a minimum purchase of 30000.00 FCFA, your cart: 29999.00 FCFA", err.Error())
}

func TestValidator_MinimumPurchaseCheckedBeforeCustomerLimit(t *testing.T) {
	repo := &mockCouponRepo{
		coupon: &Coupon{
			ID:               "c3",
			Code:             "ONCE",
			DiscountType:     DiscountFixed,
			Value:            decimal.NewFromInt(1000),
			MinimumPurchase:  decimal.NewFromInt(10000),
			PerCustomerLimit: 1,
			Active:           true,
		},
		uses: 5,
	}

	_, err := NewValidator(repo).Validate(context.Background(), "ONCE", "cust-9", decimal.NewFromInt(500))

	var minErr *MinimumPurchaseError
	require.ErrorAs(t, err, &minErr)
	assert.Empty(t, repo.countFor, "per-customer count must not run after an earlier rejection")
}

func TestValidator_RepositoryErrors(t *testing.T) {
	v := NewValidator(&mockCouponRepo{err: errors.New("db down")})
	_, err := v.Validate(context.Background(), "X", "cust-1", decimal.NewFromInt(100))
	require.Error(t, err)
	assert.False(t, IsRejection(err))
	assert.Contains(t, err.Error(), "lookup coupon")

	v = NewValidator(&mockCouponRepo{
		coupon:  &Coupon{ID: "c1", Code: "X", DiscountType: DiscountFixed, Value: decimal.NewFromInt(1), PerCustomerLimit: 1, Active: true},
		usesErr: errors.New("db down"),
	})
	_, err = v.Validate(context.Background(), "X", "cust-1", decimal.NewFromInt(100))
	require.Error(t, err)
	assert.False(t, IsRejection(err))
	assert.Contains(t, err.Error(), "count customer uses")
}
