package order

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/boutique-checkout/internal/domain/catalog"
	"github.com/xenking/boutique-checkout/internal/domain/coupon"
	"github.com/xenking/boutique-checkout/internal/domain/customer"
	"github.com/xenking/boutique-checkout/internal/domain/shipping"
)

// CouponValidator validates a coupon code for a customer and cart total.
type CouponValidator interface {
	Validate(ctx context.Context, code, customerID string, cartTotal decimal.Decimal) (*coupon.Applied, error)
}

// RateResolver resolves a shipping rate for a delivery city.
type RateResolver interface {
	Resolve(ctx context.Context, rateID, city string) (*shipping.Rate, error)
}

// Deps holds the collaborators of a Service.
type Deps struct {
	Catalog   catalog.Repository
	Addresses customer.AddressBook
	Rates     RateResolver
	Coupons   CouponValidator
	Store     Store
	Orders    Repository
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLocation sets the time zone that decides the order-number date.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) { s.loc = loc }
}

// WithTracerProvider sets the tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) { s.tracerProvider = tp }
}

// WithMeterProvider sets the meter provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *Service) { s.meterProvider = mp }
}

// CreateRequest is a checkout submission.
type CreateRequest struct {
	Customer       customer.Customer
	Cart           Cart
	AddressID      string
	ShippingRateID string
	// CouponCode is optional. An invalid code is ignored.
	CouponCode string
	TaxAmount  decimal.Decimal
	Notes      string
}

// StatusChange is an explicit status update requested by staff.
type StatusChange struct {
	Number  string
	Status  Status
	Comment string
	Actor   string
}

// Service places orders and applies status changes.
type Service struct {
	catalog   catalog.Repository
	addresses customer.AddressBook
	rates     RateResolver
	coupons   CouponValidator
	store     Store
	orders    Repository

	now            func() time.Time
	loc            *time.Location
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider

	tracer         trace.Tracer
	created        metric.Int64Counter
	rejected       metric.Int64Counter
	ignoredCoupons metric.Int64Counter
}

// NewService creates an order Service.
func NewService(deps Deps, opts ...Option) (*Service, error) {
	s := &Service{
		catalog:        deps.Catalog,
		addresses:      deps.Addresses,
		rates:          deps.Rates,
		coupons:        deps.Coupons,
		store:          deps.Store,
		orders:         deps.Orders,
		now:            time.Now,
		loc:            time.UTC,
		tracerProvider: tracenoop.NewTracerProvider(),
		meterProvider:  metricnoop.NewMeterProvider(),
	}
	for _, o := range opts {
		o(s)
	}

	const scope = "github.com/xenking/boutique-checkout/internal/domain/order"
	s.tracer = s.tracerProvider.Tracer(scope)
	meter := s.meterProvider.Meter(scope)

	var err error
	if s.created, err = meter.Int64Counter("boutique.orders.created",
		metric.WithDescription("Orders placed successfully")); err != nil {
		return nil, errors.Wrap(err, "orders.created counter")
	}
	if s.rejected, err = meter.Int64Counter("boutique.orders.rejected",
		metric.WithDescription("Checkout attempts that did not produce an order")); err != nil {
		return nil, errors.Wrap(err, "orders.rejected counter")
	}
	if s.ignoredCoupons, err = meter.Int64Counter("boutique.coupons.ignored",
		metric.WithDescription("Coupon codes dropped at checkout")); err != nil {
		return nil, errors.Wrap(err, "coupons.ignored counter")
	}
	return s, nil
}

// CreateOrder validates the cart, the address, the shipping rate and the
// optional coupon, then persists the order, its items, the stock
// reservations, the coupon usage, the first history entry and the customer
// statistics in one transaction.
//
// Customer-fixable problems are returned as *ValidationError. Any other
// failure matches ErrCreateFailed and leaves no durable state behind.
func (s *Service) CreateOrder(ctx context.Context, req CreateRequest) (_ *Order, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.CreateOrder", trace.WithAttributes(
		attribute.String("customer.id", req.Customer.ID),
		attribute.Int("cart.lines", len(req.Cart)),
	))
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		span.End()
	}()

	draft, applied, err := s.prepare(ctx, req)
	if err != nil {
		return nil, s.reject(ctx, req, err)
	}

	o, err := s.commit(ctx, draft, applied, req.Customer.Username)
	if applied != nil && (errors.Is(err, coupon.ErrUsageLimitReached) || errors.Is(err, coupon.ErrCustomerLimitReached)) {
		s.ignoreCoupon(ctx, applied.Coupon.Code, err)
		o, err = s.commit(ctx, draft, nil, req.Customer.Username)
	}
	if err != nil {
		return nil, s.reject(ctx, req, stockRejection(draft, err))
	}

	s.created.Add(ctx, 1, metric.WithAttributes(
		attribute.String("delivery_type", string(o.DeliveryType)),
		attribute.Bool("coupon", o.CouponCode != ""),
	))
	zctx.From(ctx).Info("Order created",
		zap.String("order_number", o.Number),
		zap.String("customer_id", o.CustomerID),
		zap.Stringer("total", o.Total),
		zap.String("coupon", o.CouponCode),
	)
	return o, nil
}

// prepare runs every validation phase outside the transaction and returns
// an order draft without identifiers.
func (s *Service) prepare(ctx context.Context, req CreateRequest) (*Order, *coupon.Applied, error) {
	items, err := ValidateCart(ctx, s.catalog, req.Cart)
	if err != nil {
		return nil, nil, err
	}
	if req.TaxAmount.IsNegative() {
		return nil, nil, invalid(ErrNegativeTax)
	}

	addr, err := s.addresses.GetAddress(ctx, req.Customer.ID, req.AddressID)
	if err != nil {
		if errors.Is(err, customer.ErrAddressNotFound) {
			return nil, nil, invalid(ErrInvalidAddress)
		}
		return nil, nil, errors.Wrap(err, "get address")
	}

	rate, err := s.rates.Resolve(ctx, req.ShippingRateID, addr.City)
	if err != nil {
		var cityErr *shipping.CityNotCoveredError
		if errors.Is(err, shipping.ErrRateNotFound) || errors.Is(err, shipping.ErrZoneInactive) || errors.As(err, &cityErr) {
			return nil, nil, &ValidationError{Message: err.Error(), Err: err}
		}
		return nil, nil, errors.Wrap(err, "resolve shipping rate")
	}

	base := ComputeTotals(items, decimal.Zero, decimal.Zero, decimal.Zero)
	applied, err := s.applyCoupon(ctx, req, base.Subtotal)
	if err != nil {
		return nil, nil, err
	}

	draft := &Order{
		CustomerID:        req.Customer.ID,
		ShippingAddressID: addr.ID,
		BillingAddressID:  addr.ID,
		ShippingZoneID:    rate.Zone.ID,
		ShippingZoneName:  rate.Zone.Name,
		ShippingRateID:    rate.ID,
		DeliveryType:      rate.DeliveryType,
		CustomerEmail:     req.Customer.Email,
		CustomerPhone:     firstNonEmpty(req.Customer.Phone, addr.Phone),
		Notes:             strings.TrimSpace(req.Notes),
		Items:             items,
	}
	draft.applyTotals(ComputeTotals(items, rate.Cost(base.Subtotal), req.TaxAmount, decimal.Zero))
	return draft, applied, nil
}

// applyCoupon validates the optional code. Rejected codes are logged and
// dropped so the checkout proceeds at full price.
func (s *Service) applyCoupon(ctx context.Context, req CreateRequest, subtotal decimal.Decimal) (*coupon.Applied, error) {
	if strings.TrimSpace(req.CouponCode) == "" {
		return nil, nil
	}
	applied, err := s.coupons.Validate(ctx, req.CouponCode, req.Customer.ID, subtotal)
	if err != nil {
		if coupon.IsRejection(err) {
			s.ignoreCoupon(ctx, req.CouponCode, err)
			return nil, nil
		}
		return nil, errors.Wrap(err, "validate coupon")
	}
	return applied, nil
}

func (s *Service) ignoreCoupon(ctx context.Context, code string, reason error) {
	s.ignoredCoupons.Add(ctx, 1)
	zctx.From(ctx).Warn("Ignoring coupon at checkout",
		zap.String("coupon", code),
		zap.Error(reason),
	)
}

// commit persists a copy of draft with fresh identifiers and the discount
// of applied, if any.
func (s *Service) commit(ctx context.Context, draft *Order, applied *coupon.Applied, actor string) (*Order, error) {
	now := s.now()
	o := *draft
	o.ID = uuid.New()
	o.Status = StatusPending
	o.CreatedAt = now
	o.UpdatedAt = now
	o.CouponCode = ""
	o.Items = make([]Item, len(draft.Items))
	for i, it := range draft.Items {
		it.ID = uuid.New()
		o.Items[i] = it
	}

	discount := decimal.Zero
	if applied != nil {
		discount = applied.Amount
		o.CouponCode = applied.Coupon.Code
	}
	o.applyTotals(ComputeTotals(o.Items, draft.ShippingCost, draft.TaxAmount, discount))

	err := s.store.Atomically(ctx, func(ctx context.Context, tx Tx) error {
		prefix := SequencePrefix(now.In(s.loc))
		seq, err := tx.NextSequence(ctx, prefix)
		if err != nil {
			return errors.Wrap(err, "next order number")
		}
		o.Number = FormatNumber(prefix, seq)

		if err := tx.InsertOrder(ctx, &o); err != nil {
			return errors.Wrap(err, "insert order")
		}
		for _, it := range o.Items {
			if err := tx.ReserveStock(ctx, it.VariantID, it.Quantity); err != nil {
				return errors.Wrapf(err, "reserve stock for %s", it.VariantID)
			}
			if err := tx.AddProductSales(ctx, it.ProductID, it.Quantity); err != nil {
				return errors.Wrapf(err, "add sales for %s", it.ProductID)
			}
		}
		if applied != nil {
			usage := coupon.Usage{
				ID:         uuid.New(),
				CouponID:   applied.Coupon.ID,
				CustomerID: o.CustomerID,
				OrderID:    o.ID,
				Discount:   o.DiscountAmount,
				UsedAt:     now,
			}
			if err := tx.RecordCouponUsage(ctx, usage); err != nil {
				return errors.Wrap(err, "record coupon usage")
			}
		}
		if err := tx.AppendStatus(ctx, StatusEntry{
			ID:        uuid.New(),
			OrderID:   o.ID,
			Status:    StatusPending,
			Comment:   creationComment(&o),
			CreatedBy: actor,
			CreatedAt: now,
		}); err != nil {
			return errors.Wrap(err, "append status")
		}
		if err := tx.RecordCustomerOrder(ctx, o.CustomerID, o.Total); err != nil {
			return errors.Wrap(err, "update customer stats")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// reject classifies a failed checkout. Validation errors are returned as
// is; anything else is logged and wrapped so it matches ErrCreateFailed.
func (s *Service) reject(ctx context.Context, req CreateRequest, err error) error {
	var verr *ValidationError
	if errors.As(err, &verr) {
		s.rejected.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", rejectionReason(verr))))
		return err
	}

	s.rejected.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", "internal")))
	zctx.From(ctx).Error("Order creation failed",
		zap.String("customer_id", req.Customer.ID),
		zap.Int("cart_lines", len(req.Cart)),
		zap.String("shipping_rate_id", req.ShippingRateID),
		zap.Error(err),
	)
	return &createFailure{cause: err}
}

func rejectionReason(verr *ValidationError) string {
	switch {
	case errors.Is(verr, ErrEmptyCart):
		return "empty_cart"
	case errors.Is(verr, ErrInvalidCart), errors.Is(verr, catalog.ErrInsufficientStock):
		return "cart"
	case errors.Is(verr, ErrInvalidAddress):
		return "address"
	case errors.Is(verr, ErrNegativeTax):
		return "tax"
	default:
		return "shipping"
	}
}

// stockRejection turns a reservation lost to a concurrent checkout into a
// cart validation error.
func stockRejection(draft *Order, err error) error {
	var stockErr *catalog.StockError
	if !errors.As(err, &stockErr) {
		return err
	}
	name := stockErr.VariantID
	for _, it := range draft.Items {
		if it.VariantID == stockErr.VariantID {
			name = it.ProductName
			if it.VariantDetails != "" {
				name += " (" + it.VariantDetails + ")"
			}
			break
		}
	}
	line := fmt.Sprintf("%s: only %d left in stock (requested %d)", name, stockErr.Available, stockErr.Requested)
	if stockErr.Available == 0 {
		line = name + " is out of stock"
	}
	return &ValidationError{Message: ErrInvalidCart.Error(), Lines: []string{line}, Err: errors.Join(ErrInvalidCart, stockErr)}
}

func creationComment(o *Order) string {
	comment := fmt.Sprintf("Order created - %s delivery to %s", o.DeliveryType.Label(), o.ShippingZoneName)
	if o.CouponCode != "" {
		comment += fmt.Sprintf(" - coupon %q applied", o.CouponCode)
	}
	return comment
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
