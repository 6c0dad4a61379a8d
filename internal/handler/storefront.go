package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/boutique-checkout/internal/domain/order"
)

// ListVariants serves GET /api/variants.
func (h *Handler) ListVariants(w http.ResponseWriter, r *http.Request) {
	variants, err := h.catalog.ListVariants(r.Context())
	if err != nil {
		fail(w, r, errors.Wrap(err, "list variants"))
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for i := range variants {
				encodeVariant(e, &variants[i])
			}
		})
	})
}

// ListShippingRates serves GET /api/shipping/rates?city=.
func (h *Handler) ListShippingRates(w http.ResponseWriter, r *http.Request) {
	city := strings.TrimSpace(r.URL.Query().Get("city"))
	if city == "" {
		writeError(w, http.StatusBadRequest, "city is required")
		return
	}
	rates, err := h.rates.RatesForCity(r.Context(), city)
	if err != nil {
		fail(w, r, errors.Wrap(err, "list rates"))
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for i := range rates {
				encodeRate(e, &rates[i])
			}
		})
	})
}

// GetCart serves GET /api/cart.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	customerID := claimsFromContext(r.Context()).Subject
	cart, err := h.carts.Get(r.Context(), customerID)
	if err != nil {
		fail(w, r, err)
		return
	}
	h.writeCart(w, r, customerID, cart)
}

type cartItemRequest struct {
	Quantity int `json:"quantity" validate:"gte=1,lte=99"`
}

// SetCartItem serves PUT /api/cart/items/{variantID}. The variant must be
// sellable in the requested quantity.
func (h *Handler) SetCartItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	customerID := claimsFromContext(ctx).Subject
	variantID := chi.URLParam(r, "variantID")

	var req cartItemRequest
	if err := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		switch key {
		case "quantity":
			v, err := d.Int()
			req.Quantity = v
			return err
		default:
			return d.Skip()
		}
	}); err != nil {
		fail(w, r, err)
		return
	}
	if err := h.validate.StructCtx(ctx, req); err != nil {
		fail(w, r, err)
		return
	}

	p, err := order.PreviewCart(ctx, h.catalog, order.Cart{variantID: req.Quantity})
	if err != nil {
		fail(w, r, err)
		return
	}
	if problem := p.Lines[0].Problem; problem != "" {
		writeErrorLines(w, http.StatusUnprocessableEntity, "item cannot be added to the cart", []string{problem})
		return
	}

	cart, err := h.carts.SetItem(ctx, customerID, variantID, req.Quantity)
	if err != nil {
		fail(w, r, err)
		return
	}
	h.writeCart(w, r, customerID, cart)
}

// RemoveCartItem serves DELETE /api/cart/items/{variantID}.
func (h *Handler) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	customerID := claimsFromContext(r.Context()).Subject
	cart, err := h.carts.RemoveItem(r.Context(), customerID, chi.URLParam(r, "variantID"))
	if err != nil {
		fail(w, r, err)
		return
	}
	h.writeCart(w, r, customerID, cart)
}

func (h *Handler) writeCart(w http.ResponseWriter, r *http.Request, customerID string, cart order.Cart) {
	ctx := r.Context()
	p, err := order.PreviewCart(ctx, h.catalog, cart)
	if err != nil {
		fail(w, r, err)
		return
	}
	code, err := h.carts.Coupon(ctx, customerID)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCart(e, p, code) })
}

type couponRequest struct {
	Code string `json:"code" validate:"required,max=50"`
}

// ValidateCoupon serves POST /api/coupons/validate. A valid code is
// remembered for the next checkout; the discount shown is a preview.
func (h *Handler) ValidateCoupon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	customerID := claimsFromContext(ctx).Subject

	var req couponRequest
	if err := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		switch key {
		case "code":
			v, err := optStr(d)
			req.Code = strings.TrimSpace(v)
			return err
		default:
			return d.Skip()
		}
	}); err != nil {
		fail(w, r, err)
		return
	}
	if err := h.validate.StructCtx(ctx, req); err != nil {
		fail(w, r, err)
		return
	}

	cart, err := h.carts.Get(ctx, customerID)
	if err != nil {
		fail(w, r, err)
		return
	}
	p, err := order.PreviewCart(ctx, h.catalog, cart)
	if err != nil {
		fail(w, r, err)
		return
	}

	applied, err := h.coupons.Validate(ctx, req.Code, customerID, p.Subtotal)
	if err != nil {
		fail(w, r, err)
		return
	}
	if err := h.carts.SetCoupon(ctx, customerID, applied.Coupon.Code); err != nil {
		fail(w, r, err)
		return
	}
	zctx.From(ctx).Info("Coupon applied to cart",
		zap.String("coupon", applied.Coupon.Code),
		zap.Stringer("discount", applied.Amount),
	)

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("code", func(e *jx.Encoder) { e.Str(applied.Coupon.Code) })
			e.Field("message", func(e *jx.Encoder) { e.Str(applied.Message) })
			e.Field("discount", func(e *jx.Encoder) { encodeMoney(e, applied.Amount) })
			e.Field("subtotal", func(e *jx.Encoder) { encodeMoney(e, p.Subtotal) })
		})
	})
}
