package handler

import (
	"time"

	"github.com/go-faster/jx"

	"github.com/xenking/boutique-checkout/internal/domain/catalog"
	"github.com/xenking/boutique-checkout/internal/domain/customer"
	"github.com/xenking/boutique-checkout/internal/domain/order"
	"github.com/xenking/boutique-checkout/internal/domain/shipping"
)

func encodeTime(e *jx.Encoder, t time.Time) {
	e.Str(t.UTC().Format(time.RFC3339))
}

func encodeVariant(e *jx.Encoder, v *catalog.Variant) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(v.ID) })
		e.Field("product_id", func(e *jx.Encoder) { e.Str(v.ProductID) })
		e.Field("product_name", func(e *jx.Encoder) { e.Str(v.ProductName) })
		e.Field("sku", func(e *jx.Encoder) { e.Str(v.SKU) })
		e.Field("size", func(e *jx.Encoder) { e.Str(v.Size) })
		e.Field("color", func(e *jx.Encoder) { e.Str(v.Color) })
		e.Field("price", func(e *jx.Encoder) { encodeMoney(e, v.Price) })
		e.Field("available", func(e *jx.Encoder) { e.Int(v.Stock.Available()) })
		e.Field("in_stock", func(e *jx.Encoder) { e.Bool(v.Stock.InStock()) })
		e.Field("low_stock", func(e *jx.Encoder) { e.Bool(v.Stock.Low()) })
	})
}

func encodeCart(e *jx.Encoder, p order.Preview, couponCode string) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("lines", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, l := range p.Lines {
					e.Obj(func(e *jx.Encoder) {
						e.Field("variant_id", func(e *jx.Encoder) { e.Str(l.VariantID) })
						e.Field("quantity", func(e *jx.Encoder) { e.Int(l.Quantity) })
						if v := l.Variant; v != nil {
							e.Field("product_name", func(e *jx.Encoder) { e.Str(v.ProductName) })
							e.Field("details", func(e *jx.Encoder) { e.Str(v.Details()) })
							e.Field("unit_price", func(e *jx.Encoder) { encodeMoney(e, v.Price.Round(2)) })
						}
						e.Field("subtotal", func(e *jx.Encoder) { encodeMoney(e, l.Subtotal) })
						if l.Problem != "" {
							e.Field("problem", func(e *jx.Encoder) { e.Str(l.Problem) })
						}
					})
				}
			})
		})
		e.Field("subtotal", func(e *jx.Encoder) { encodeMoney(e, p.Subtotal) })
		e.Field("orderable", func(e *jx.Encoder) { e.Bool(p.Orderable()) })
		if couponCode != "" {
			e.Field("coupon_code", func(e *jx.Encoder) { e.Str(couponCode) })
		}
	})
}

func encodeRate(e *jx.Encoder, r *shipping.Rate) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(r.ID) })
		e.Field("zone", func(e *jx.Encoder) { e.Str(r.Zone.Name) })
		e.Field("delivery_type", func(e *jx.Encoder) { e.Str(string(r.DeliveryType)) })
		e.Field("label", func(e *jx.Encoder) { e.Str(r.DeliveryType.Label()) })
		e.Field("price", func(e *jx.Encoder) { encodeMoney(e, r.Price) })
		e.Field("free_shipping_threshold", func(e *jx.Encoder) {
			if r.FreeShippingThreshold == nil {
				e.Null()
				return
			}
			encodeMoney(e, *r.FreeShippingThreshold)
		})
		e.Field("min_days", func(e *jx.Encoder) { e.Int(r.Zone.MinDays) })
		e.Field("max_days", func(e *jx.Encoder) { e.Int(r.Zone.MaxDays) })
	})
}

// encodeOrder writes an order. Items are included when loaded.
func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(o.ID.String()) })
		e.Field("order_number", func(e *jx.Encoder) { e.Str(o.Number) })
		e.Field("status", func(e *jx.Encoder) { e.Str(string(o.Status)) })
		e.Field("status_label", func(e *jx.Encoder) { e.Str(o.Status.Label()) })
		e.Field("delivery_type", func(e *jx.Encoder) { e.Str(string(o.DeliveryType)) })
		e.Field("shipping_zone", func(e *jx.Encoder) { e.Str(o.ShippingZoneName) })
		e.Field("subtotal", func(e *jx.Encoder) { encodeMoney(e, o.Subtotal) })
		e.Field("shipping_cost", func(e *jx.Encoder) { encodeMoney(e, o.ShippingCost) })
		e.Field("tax_amount", func(e *jx.Encoder) { encodeMoney(e, o.TaxAmount) })
		e.Field("discount_amount", func(e *jx.Encoder) { encodeMoney(e, o.DiscountAmount) })
		e.Field("total", func(e *jx.Encoder) { encodeMoney(e, o.Total) })
		if o.CouponCode != "" {
			e.Field("coupon_code", func(e *jx.Encoder) { e.Str(o.CouponCode) })
		}
		e.Field("paid", func(e *jx.Encoder) { e.Bool(o.Paid) })
		if o.PaidAt != nil {
			e.Field("paid_at", func(e *jx.Encoder) { encodeTime(e, *o.PaidAt) })
		}
		if o.Notes != "" {
			e.Field("notes", func(e *jx.Encoder) { e.Str(o.Notes) })
		}
		e.Field("created_at", func(e *jx.Encoder) { encodeTime(e, o.CreatedAt) })
		if len(o.Items) == 0 {
			return
		}
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, it := range o.Items {
					e.Obj(func(e *jx.Encoder) {
						e.Field("variant_id", func(e *jx.Encoder) { e.Str(it.VariantID) })
						e.Field("product_name", func(e *jx.Encoder) { e.Str(it.ProductName) })
						e.Field("details", func(e *jx.Encoder) { e.Str(it.VariantDetails) })
						e.Field("unit_price", func(e *jx.Encoder) { encodeMoney(e, it.UnitPrice) })
						e.Field("quantity", func(e *jx.Encoder) { e.Int(it.Quantity) })
						e.Field("subtotal", func(e *jx.Encoder) { encodeMoney(e, it.Subtotal) })
					})
				}
			})
		})
	})
}

func encodeHistory(e *jx.Encoder, entries []order.StatusEntry) {
	e.Arr(func(e *jx.Encoder) {
		for _, h := range entries {
			e.Obj(func(e *jx.Encoder) {
				e.Field("status", func(e *jx.Encoder) { e.Str(string(h.Status)) })
				e.Field("comment", func(e *jx.Encoder) { e.Str(h.Comment) })
				e.Field("created_by", func(e *jx.Encoder) { e.Str(h.CreatedBy) })
				e.Field("created_at", func(e *jx.Encoder) { encodeTime(e, h.CreatedAt) })
			})
		}
	})
}

func encodeCustomer(e *jx.Encoder, c *customer.Customer) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(c.ID) })
		e.Field("username", func(e *jx.Encoder) { e.Str(c.Username) })
		e.Field("email", func(e *jx.Encoder) { e.Str(c.Email) })
		e.Field("phone", func(e *jx.Encoder) { e.Str(c.Phone) })
		e.Field("total_orders", func(e *jx.Encoder) { e.Int(c.TotalOrders) })
		e.Field("total_spent", func(e *jx.Encoder) { encodeMoney(e, c.TotalSpent) })
	})
}
