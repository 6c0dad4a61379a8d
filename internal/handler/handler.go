// Package handler exposes the storefront and back-office HTTP API.
package handler

import (
	"context"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/xenking/boutique-checkout/internal/domain/auth"
	"github.com/xenking/boutique-checkout/internal/domain/catalog"
	"github.com/xenking/boutique-checkout/internal/domain/coupon"
	"github.com/xenking/boutique-checkout/internal/domain/customer"
	"github.com/xenking/boutique-checkout/internal/domain/order"
	"github.com/xenking/boutique-checkout/internal/domain/shipping"
	"github.com/xenking/boutique-checkout/pkg/httpmiddleware"
)

// OrderService places orders and applies status changes.
type OrderService interface {
	CreateOrder(ctx context.Context, req order.CreateRequest) (*order.Order, error)
	ChangeStatus(ctx context.Context, ch order.StatusChange) (*order.Order, error)
	MarkPaid(ctx context.Context, number string) (*order.Order, error)
	Get(ctx context.Context, customerID, number string) (*order.Order, error)
	Lookup(ctx context.Context, number string) (*order.Order, error)
	List(ctx context.Context, customerID string, limit int) ([]order.Order, error)
	History(ctx context.Context, number string) ([]order.StatusEntry, error)
}

// CartStore keeps the cart and remembered coupon of each customer.
type CartStore interface {
	Get(ctx context.Context, customerID string) (order.Cart, error)
	SetItem(ctx context.Context, customerID, variantID string, qty int) (order.Cart, error)
	RemoveItem(ctx context.Context, customerID, variantID string) (order.Cart, error)
	Clear(ctx context.Context, customerID string) error
	SetCoupon(ctx context.Context, customerID, code string) error
	Coupon(ctx context.Context, customerID string) (string, error)
}

// CouponValidator previews a coupon against a cart total.
type CouponValidator interface {
	Validate(ctx context.Context, code, customerID string, cartTotal decimal.Decimal) (*coupon.Applied, error)
}

// RateLister lists the shipping rates available in a city.
type RateLister interface {
	RatesForCity(ctx context.Context, city string) ([]shipping.Rate, error)
}

// InvoiceRenderer renders the HTML invoice of an order.
type InvoiceRenderer interface {
	Render(o *order.Order) ([]byte, error)
}

// Notifier delivers order mail after the response is decided.
type Notifier interface {
	Go(ctx context.Context, kind string, o *order.Order, fn func(context.Context, *order.Order) error)
	OrderPlaced(ctx context.Context, o *order.Order) error
	StatusChanged(ctx context.Context, o *order.Order) error
}

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// JWTSecret verifies HS256 customer tokens.
	JWTSecret []byte
	// JWTIssuer, when set, must match the iss claim.
	JWTIssuer string
	// APIKeyPepper is the HMAC key that API keys are hashed with.
	APIKeyPepper []byte
	// CheckoutLimit bounds checkout attempts per customer. Its KeyFunc is
	// replaced; a zero Max disables it.
	CheckoutLimit httpmiddleware.RateLimitConfig
}

// Deps holds the collaborators of a Handler.
type Deps struct {
	Orders    OrderService
	Carts     CartStore
	Catalog   catalog.Repository
	Customers customer.Repository
	Coupons   CouponValidator
	Rates     RateLister
	APIKeys   auth.Repository
	Invoices  InvoiceRenderer
	Notifier  Notifier
}

// Handler serves the /api routes.
type Handler struct {
	orders    OrderService
	carts     CartStore
	catalog   catalog.Repository
	customers customer.Repository
	coupons   CouponValidator
	rates     RateLister
	apikeys   auth.Repository
	invoices  InvoiceRenderer
	notifier  Notifier

	jwtSecret     []byte
	jwtIssuer     string
	pepper        []byte
	validate      *validator.Validate
	checkoutLimit httpmiddleware.Middleware
}

// New constructs a Handler.
func New(cfg Config, deps Deps) *Handler {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	limit := cfg.CheckoutLimit
	limit.KeyFunc = customerKey
	return &Handler{
		orders:    deps.Orders,
		carts:     deps.Carts,
		catalog:   deps.Catalog,
		customers: deps.Customers,
		coupons:   deps.Coupons,
		rates:     deps.Rates,
		apikeys:   deps.APIKeys,
		invoices:  deps.Invoices,
		notifier:  deps.Notifier,
		jwtSecret: cfg.JWTSecret,
		jwtIssuer: cfg.JWTIssuer,
		pepper:    cfg.APIKeyPepper,
		validate:  v,

		checkoutLimit: httpmiddleware.RateLimit(limit),
	}
}

// customerKey keys limits by the authenticated customer, so shoppers behind
// a shared carrier NAT do not exhaust each other's attempts.
func customerKey(r *http.Request) string {
	if c := claimsFromContext(r.Context()); c != nil {
		return "customer:" + c.Subject
	}
	return httpmiddleware.ClientIP(r)
}

// Routes returns the API router. Customer routes need a bearer token,
// /api/admin routes need an API key.
func (h *Handler) Routes() *chi.Mux {
	r := chi.NewRouter()
	r.Use(
		httpmiddleware.LogRequests(),
		httpmiddleware.Labeler(),
	)
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/variants", h.ListVariants)
		r.Get("/shipping/rates", h.ListShippingRates)

		r.Group(func(r chi.Router) {
			r.Use(h.RequireCustomer)

			r.Post("/customers", h.RegisterCustomer)

			r.Get("/cart", h.GetCart)
			r.Put("/cart/items/{variantID}", h.SetCartItem)
			r.Delete("/cart/items/{variantID}", h.RemoveCartItem)
			r.Post("/coupons/validate", h.ValidateCoupon)

			r.With(h.checkoutLimit).Post("/checkout", h.Checkout)
			r.Get("/orders", h.ListOrders)
			r.Get("/orders/{number}", h.GetOrder)
		})

		r.Route("/admin/orders/{number}", func(r chi.Router) {
			r.Use(h.RequireAPIKey)

			r.With(h.RequireScope(auth.ScopeOrdersRead)).Get("/history", h.OrderHistory)
			r.With(h.RequireScope(auth.ScopeOrdersRead)).Get("/invoice", h.OrderInvoice)
			r.With(h.RequireScope(auth.ScopeOrdersWrite)).Post("/status", h.ChangeStatus)
			r.With(h.RequireScope(auth.ScopeOrdersWrite)).Post("/paid", h.MarkPaid)
		})
	})
	return r
}
