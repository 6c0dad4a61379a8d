package order

import (
	"context"
	"fmt"
	"sort"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/boutique-checkout/internal/domain/catalog"
)

// Cart maps variant IDs to requested quantities.
type Cart map[string]int

// IDs returns the variant IDs in lexical order.
func (c Cart) IDs() []string {
	ids := make([]string, 0, len(c))
	for id := range c {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// CartLine is one cart entry resolved against the catalog for display.
type CartLine struct {
	VariantID string
	Variant   *catalog.Variant
	Quantity  int
	Subtotal  decimal.Decimal
	// Problem is empty when the line can be ordered as is.
	Problem string
}

// Preview resolves a cart for display without rejecting it.
type Preview struct {
	Lines    []CartLine
	Subtotal decimal.Decimal
}

// Orderable reports whether every line can be ordered.
func (p Preview) Orderable() bool {
	if len(p.Lines) == 0 {
		return false
	}
	for _, l := range p.Lines {
		if l.Problem != "" {
			return false
		}
	}
	return true
}

// Unavailable returns the IDs of lines whose variant no longer exists or is
// out of stock.
func (p Preview) Unavailable() []string {
	var ids []string
	for _, l := range p.Lines {
		if l.Problem != "" && (l.Variant == nil || !l.Variant.Stock.InStock()) {
			ids = append(ids, l.VariantID)
		}
	}
	return ids
}

// PreviewCart resolves every cart line and sums the subtotal of the lines
// that can be ordered.
func PreviewCart(ctx context.Context, variants catalog.Repository, cart Cart) (Preview, error) {
	p := Preview{Subtotal: decimal.Zero}
	if len(cart) == 0 {
		return p, nil
	}

	ids := cart.IDs()
	found, err := variants.GetVariants(ctx, ids)
	if err != nil {
		return p, errors.Wrap(err, "get variants")
	}
	byID := make(map[string]*catalog.Variant, len(found))
	for i := range found {
		byID[found[i].ID] = &found[i]
	}

	for _, id := range ids {
		qty := cart[id]
		line := CartLine{VariantID: id, Variant: byID[id], Quantity: qty, Subtotal: decimal.Zero}
		line.Problem = lineProblem(id, line.Variant, qty)
		if line.Problem == "" {
			line.Subtotal = line.Variant.Price.Round(2).Mul(decimal.NewFromInt(int64(qty)))
			p.Subtotal = p.Subtotal.Add(line.Subtotal)
		}
		p.Lines = append(p.Lines, line)
	}
	return p, nil
}

// ValidateCart resolves a cart into order items. Every failing line is
// reported together in a *ValidationError; an empty cart yields ErrEmptyCart.
func ValidateCart(ctx context.Context, variants catalog.Repository, cart Cart) ([]Item, error) {
	if len(cart) == 0 {
		return nil, invalid(ErrEmptyCart)
	}

	p, err := PreviewCart(ctx, variants, cart)
	if err != nil {
		return nil, err
	}

	var problems []string
	items := make([]Item, 0, len(p.Lines))
	for _, l := range p.Lines {
		if l.Problem != "" {
			problems = append(problems, l.Problem)
			continue
		}
		v := l.Variant
		items = append(items, Item{
			ProductID:      v.ProductID,
			VariantID:      v.ID,
			ProductName:    v.ProductName,
			VariantDetails: v.Details(),
			UnitPrice:      v.Price.Round(2),
			Quantity:       l.Quantity,
			Subtotal:       l.Subtotal,
		})
	}
	if len(problems) > 0 {
		return nil, &ValidationError{Message: ErrInvalidCart.Error(), Lines: problems, Err: ErrInvalidCart}
	}
	return items, nil
}

func lineProblem(id string, v *catalog.Variant, qty int) string {
	switch {
	case qty <= 0:
		return fmt.Sprintf("item %s: quantity must be at least 1", id)
	case v == nil:
		return fmt.Sprintf("item %s is no longer available", id)
	case !v.Stock.InStock():
		return fmt.Sprintf("%s is out of stock", label(v))
	case !v.Stock.CanFulfil(qty):
		return fmt.Sprintf("%s: only %d left in stock (requested %d)", label(v), v.Stock.Available(), qty)
	default:
		return ""
	}
}

func label(v *catalog.Variant) string {
	if d := v.Details(); d != "" {
		return v.ProductName + " (" + d + ")"
	}
	return v.ProductName
}
