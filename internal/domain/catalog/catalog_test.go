package catalog

import (
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
)

func TestStock_Available(t *testing.T) {
	tests := []struct {
		name    string
		stock   Stock
		want    int
		inStock bool
		low     bool
		fulfil3 bool
	}{
		{name: "plenty", stock: Stock{Quantity: 20, Reserved: 2, LowStockThreshold: 5}, want: 18, inStock: true, fulfil3: true},
		{name: "at threshold", stock: Stock{Quantity: 8, Reserved: 3, LowStockThreshold: 5}, want: 5, inStock: true, low: true, fulfil3: true},
		{name: "fully reserved", stock: Stock{Quantity: 4, Reserved: 4}, want: 0, low: true},
		{name: "over reserved clamps to zero", stock: Stock{Quantity: 2, Reserved: 5}, want: 0, low: true},
		{name: "two left", stock: Stock{Quantity: 2, LowStockThreshold: 1}, want: 2, inStock: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.stock.Available())
			assert.Equal(t, tt.inStock, tt.stock.InStock())
			assert.Equal(t, tt.low, tt.stock.Low())
			assert.Equal(t, tt.fulfil3, tt.stock.CanFulfil(3))
		})
	}
}

func TestStock_CanFulfilRejectsNonPositive(t *testing.T) {
	s := Stock{Quantity: 10}
	assert.False(t, s.CanFulfil(0))
	assert.False(t, s.CanFulfil(-1))
}

func TestVariant_Details(t *testing.T) {
	assert.Equal(t, "M / Rouge", Variant{Size: "M", Color: "Rouge"}.Details())
	assert.Equal(t, "XL", Variant{Size: "XL"}.Details())
	assert.Equal(t, "", Variant{}.Details())
}

func TestStockError_MatchesSentinel(t *testing.T) {
	var err error = &StockError{VariantID: "v1", Requested: 2, Available: 1}
	assert.True(t, errors.Is(err, ErrInsufficientStock))
	assert.Equal(t, "variant v1: requested 2, available 1", err.Error())
}
