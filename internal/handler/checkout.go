package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/boutique-checkout/internal/domain/order"
)

type checkoutRequest struct {
	AddressID      string          `json:"address_id" validate:"required,max=64"`
	ShippingRateID string          `json:"shipping_rate_id" validate:"required,max=64"`
	CouponCode     string          `json:"coupon_code" validate:"max=50"`
	TaxAmount      decimal.Decimal `json:"tax_amount" validate:"-"`
	Notes          string          `json:"notes" validate:"max=1000"`
}

func (req *checkoutRequest) decode(d *jx.Decoder, key string) error {
	var err error
	switch key {
	case "address_id":
		req.AddressID, err = optStr(d)
	case "shipping_rate_id":
		req.ShippingRateID, err = optStr(d)
	case "coupon_code":
		req.CouponCode, err = optStr(d)
	case "tax_amount":
		req.TaxAmount, err = decodeDecimal(d)
	case "notes":
		req.Notes, err = optStr(d)
	default:
		err = d.Skip()
	}
	return err
}

// Checkout serves POST /api/checkout. The cart and remembered coupon come
// from the cart store; a coupon_code in the body takes precedence. The cart
// is cleared and the confirmation mail queued once the order is committed.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := claimsFromContext(ctx)

	var req checkoutRequest
	if err := decodeObject(w, r, req.decode); err != nil {
		fail(w, r, err)
		return
	}
	if err := h.validate.StructCtx(ctx, req); err != nil {
		fail(w, r, err)
		return
	}

	profile, err := h.customers.Get(ctx, claims.Subject)
	if err != nil {
		fail(w, r, err)
		return
	}
	cart, err := h.carts.Get(ctx, claims.Subject)
	if err != nil {
		fail(w, r, err)
		return
	}
	code := strings.TrimSpace(req.CouponCode)
	if code == "" {
		if code, err = h.carts.Coupon(ctx, claims.Subject); err != nil {
			fail(w, r, err)
			return
		}
	}

	o, err := h.orders.CreateOrder(ctx, order.CreateRequest{
		Customer:       *profile,
		Cart:           cart,
		AddressID:      req.AddressID,
		ShippingRateID: req.ShippingRateID,
		CouponCode:     code,
		TaxAmount:      req.TaxAmount,
		Notes:          req.Notes,
	})
	if err != nil {
		fail(w, r, err)
		return
	}

	if err := h.carts.Clear(ctx, claims.Subject); err != nil {
		zctx.From(ctx).Warn("Cart not cleared after checkout",
			zap.String("order_number", o.Number),
			zap.Error(err),
		)
	}
	h.notifier.Go(ctx, "order_placed", o, h.notifier.OrderPlaced)

	w.Header().Set("Location", "/api/orders/"+o.Number)
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeOrder(e, o) })
}

// ListOrders serves GET /api/orders?limit=.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	orders, err := h.orders.List(r.Context(), claimsFromContext(r.Context()).Subject, limit)
	if err != nil {
		fail(w, r, errors.Wrap(err, "list orders"))
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for i := range orders {
				encodeOrder(e, &orders[i])
			}
		})
	})
}

// GetOrder serves GET /api/orders/{number}. Orders of other customers are
// reported as missing.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), claimsFromContext(r.Context()).Subject, chi.URLParam(r, "number"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

// RegisterCustomer serves POST /api/customers. It creates the profile
// described by the token on first call and returns it afterwards.
func (h *Handler) RegisterCustomer(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	c, created, err := h.customers.GetOrCreate(r.Context(), claims.Customer())
	if err != nil {
		fail(w, r, errors.Wrap(err, "get or create customer"))
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
		zctx.From(r.Context()).Info("Customer registered", zap.String("username", c.Username))
	}
	writeJSON(w, status, func(e *jx.Encoder) { encodeCustomer(e, c) })
}
