package order

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatNumber(t *testing.T) {
	day := time.Date(2025, 6, 15, 23, 59, 0, 0, time.UTC)
	prefix := SequencePrefix(day)

	assert.Equal(t, "20250615", prefix)
	assert.Equal(t, "ORD-20250615-0001", FormatNumber(prefix, 1))
	assert.Equal(t, "ORD-20250615-0042", FormatNumber(prefix, 42))
	assert.Equal(t, "ORD-20250615-9999", FormatNumber(prefix, 9999))
	assert.Equal(t, "ORD-20250615-10000", FormatNumber(prefix, 10000))
}

func TestSequencePrefix_UsesGivenZone(t *testing.T) {
	loc := time.FixedZone("WAT", 3600)
	late := time.Date(2025, 6, 15, 23, 30, 0, 0, time.UTC)

	assert.Equal(t, "20250616", SequencePrefix(late.In(loc)))
}

func TestComputeTotals(t *testing.T) {
	items := []Item{
		{Subtotal: d("20000")},
		{Subtotal: d("3500.50")},
	}
	got := ComputeTotals(items, d("2500"), d("150"), d("5000"))

	assert.True(t, d("23500.50").Equal(got.Subtotal))
	assert.True(t, d("21150.50").Equal(got.Total))
	assert.True(t, got.Consistent())

	broken := got
	broken.Total = d("1")
	assert.False(t, broken.Consistent())

	negative := Totals{Subtotal: d("0"), Shipping: d("0"), Tax: d("-1"), Discount: d("0"), Total: d("-1")}
	assert.False(t, negative.Consistent())
}
