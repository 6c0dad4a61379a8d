// Package catalog describes purchasable product variants and their stock ledger.
package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrVariantNotFound is returned when a variant does not exist or is inactive.
	ErrVariantNotFound = errors.New("variant not found")
	// ErrInsufficientStock is returned when a reservation exceeds available stock.
	ErrInsufficientStock = errors.New("insufficient stock")
)

// DefaultLowStockThreshold is applied to stock rows created without an explicit threshold.
const DefaultLowStockThreshold = 5

// Variant is a purchasable size/color configuration of a product and the unit
// of inventory.
type Variant struct {
	ID          string
	ProductID   string
	ProductName string
	SKU         string
	Size        string
	Color       string
	// Price is the final unit price: product price plus the variant adjustment.
	Price  decimal.Decimal
	Active bool
	Stock  Stock
}

// Details renders the variant attributes snapshotted on order items.
func (v Variant) Details() string {
	parts := make([]string, 0, 2)
	if s := strings.TrimSpace(v.Size); s != "" {
		parts = append(parts, s)
	}
	if c := strings.TrimSpace(v.Color); c != "" {
		parts = append(parts, c)
	}
	return strings.Join(parts, " / ")
}

// Stock tracks on-hand and reserved quantity for one variant.
type Stock struct {
	Quantity          int
	Reserved          int
	LowStockThreshold int
}

// Available returns the sellable quantity, never negative.
func (s Stock) Available() int {
	return max(0, s.Quantity-s.Reserved)
}

// InStock reports whether at least one unit can be sold.
func (s Stock) InStock() bool {
	return s.Available() > 0
}

// Low reports whether available stock is at or below the alert threshold.
func (s Stock) Low() bool {
	return s.Available() <= s.LowStockThreshold
}

// CanFulfil reports whether qty units can be reserved.
func (s Stock) CanFulfil(qty int) bool {
	return qty > 0 && s.Available() >= qty
}

// StockError reports a reservation that could not be satisfied.
type StockError struct {
	VariantID string
	Requested int
	Available int
}

func (e *StockError) Error() string {
	return fmt.Sprintf("variant %s: requested %d, available %d", e.VariantID, e.Requested, e.Available)
}

// Is makes StockError match ErrInsufficientStock.
func (e *StockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// Repository provides read access to variants and their stock.
type Repository interface {
	// GetVariants returns the active variants among ids. Unknown or inactive
	// ids are omitted from the result.
	GetVariants(ctx context.Context, ids []string) ([]Variant, error)
	ListVariants(ctx context.Context) ([]Variant, error)
}
