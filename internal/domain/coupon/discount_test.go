package coupon

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestCoupon_Discount(t *testing.T) {
	d := decimal.RequireFromString

	tests := []struct {
		name   string
		coupon Coupon
		total  string
		want   string
	}{
		{
			name:   "percentage without cap",
			coupon: Coupon{DiscountType: DiscountPercentage, Value: d("15")},
			total:  "12345",
			want:   "1851.75",
		},
		{
			name:   "percentage capped",
			coupon: Coupon{DiscountType: DiscountPercentage, Value: d("50"), MaxDiscount: d("5000")},
			total:  "20000",
			want:   "5000",
		},
		{
			name:   "percentage under cap",
			coupon: Coupon{DiscountType: DiscountPercentage, Value: d("10"), MaxDiscount: d("5000")},
			total:  "20000",
			want:   "2000",
		},
		{
			name:   "fixed below total",
			coupon: Coupon{DiscountType: DiscountFixed, Value: d("2500")},
			total:  "7000",
			want:   "2500",
		},
		{
			name:   "fixed larger than total",
			coupon: Coupon{DiscountType: DiscountFixed, Value: d("10000")},
			total:  "7000",
			want:   "7000",
		},
		{
			name:   "percentage over one hundred never exceeds total",
			coupon: Coupon{DiscountType: DiscountPercentage, Value: d("150")},
			total:  "4000",
			want:   "4000",
		},
		{
			name:   "negative value floors at zero",
			coupon: Coupon{DiscountType: DiscountFixed, Value: d("-10")},
			total:  "4000",
			want:   "0",
		},
		{
			name:   "unknown type yields nothing",
			coupon: Coupon{DiscountType: "bogo", Value: d("10")},
			total:  "4000",
			want:   "0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.coupon.Discount(d(tt.total))
			assert.True(t, d(tt.want).Equal(got), "expected %s, got %s", tt.want, got)
		})
	}
}
