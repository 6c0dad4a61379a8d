// Package memory is an in-process implementation of the storage interfaces.
// Transactions are serialized by a single lock and roll back by restoring a
// snapshot, so it preserves the atomicity and isolation of the postgres
// store for tests and local runs.
package memory

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/boutique-checkout/internal/domain/auth"
	"github.com/xenking/boutique-checkout/internal/domain/catalog"
	"github.com/xenking/boutique-checkout/internal/domain/coupon"
	"github.com/xenking/boutique-checkout/internal/domain/customer"
	"github.com/xenking/boutique-checkout/internal/domain/order"
	"github.com/xenking/boutique-checkout/internal/domain/shipping"
)

var (
	_ catalog.Repository   = (*Store)(nil)
	_ customer.Repository  = (*Store)(nil)
	_ customer.AddressBook = (*Store)(nil)
	_ coupon.Repository    = (*Store)(nil)
	_ shipping.Repository  = (*Store)(nil)
	_ order.Repository     = (*Store)(nil)
	_ order.Store          = (*Store)(nil)
	_ order.Tx             = (*tx)(nil)
	_ auth.Repository      = (*Store)(nil)
)

type rateRow struct {
	rate   shipping.Rate
	zoneID string
}

type state struct {
	variants     map[string]catalog.Variant
	productSales map[string]int
	customers    map[string]customer.Customer
	addresses    map[string]customer.Address
	coupons      map[string]coupon.Coupon
	usages       []coupon.Usage
	zones        map[string]shipping.Zone
	rates        map[string]rateRow
	orders       map[string]order.Order
	history      []order.StatusEntry
	sequences    map[string]int64
	apiKeys      map[string]auth.APIKeyInfo
}

func (s *state) clone() *state {
	return &state{
		variants:     maps.Clone(s.variants),
		productSales: maps.Clone(s.productSales),
		customers:    maps.Clone(s.customers),
		addresses:    maps.Clone(s.addresses),
		coupons:      maps.Clone(s.coupons),
		usages:       slices.Clone(s.usages),
		zones:        maps.Clone(s.zones),
		rates:        maps.Clone(s.rates),
		orders:       maps.Clone(s.orders),
		history:      slices.Clone(s.history),
		sequences:    maps.Clone(s.sequences),
		apiKeys:      maps.Clone(s.apiKeys),
	}
}

// Store keeps every entity in maps guarded by one mutex.
type Store struct {
	mu sync.Mutex
	st *state
}

// New returns an empty Store.
func New() *Store {
	return &Store{st: &state{
		variants:     make(map[string]catalog.Variant),
		productSales: make(map[string]int),
		customers:    make(map[string]customer.Customer),
		addresses:    make(map[string]customer.Address),
		coupons:      make(map[string]coupon.Coupon),
		zones:        make(map[string]shipping.Zone),
		rates:        make(map[string]rateRow),
		orders:       make(map[string]order.Order),
		sequences:    make(map[string]int64),
		apiKeys:      make(map[string]auth.APIKeyInfo),
	}}
}

// Atomically runs fn with exclusive access to the store. Changes made by fn
// are discarded when it returns an error.
func (s *Store) Atomically(ctx context.Context, fn func(ctx context.Context, tx order.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	snapshot := s.st.clone()
	if err := fn(ctx, &tx{st: s.st}); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

// PutVariant inserts or replaces a variant.
func (s *Store) PutVariant(v catalog.Variant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.variants[v.ID] = v
}

// PutCustomer inserts or replaces a customer.
func (s *Store) PutCustomer(c customer.Customer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.customers[c.ID] = c
}

// PutAddress inserts or replaces an address.
func (s *Store) PutAddress(a customer.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.addresses[a.ID] = a
}

// PutCoupon inserts or replaces a coupon. Codes are stored upper-cased.
func (s *Store) PutCoupon(c coupon.Coupon) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.Code = strings.ToUpper(strings.TrimSpace(c.Code))
	s.st.coupons[c.ID] = c
}

// PutZone inserts or replaces a shipping zone.
func (s *Store) PutZone(z shipping.Zone) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.zones[z.ID] = z
}

// PutRate inserts or replaces a rate. Its zone is resolved by r.Zone.ID at
// read time.
func (s *Store) PutRate(r shipping.Rate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.rates[r.ID] = rateRow{rate: r, zoneID: r.Zone.ID}
}

// PutAPIKey registers an API key by hash.
func (s *Store) PutAPIKey(k auth.APIKeyInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.apiKeys[k.KeyHash] = k
}

// Variant returns the stored variant.
func (s *Store) Variant(id string) (catalog.Variant, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.st.variants[id]
	return v, ok
}

// Coupon returns the stored coupon.
func (s *Store) Coupon(id string) (coupon.Coupon, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.st.coupons[id]
	return c, ok
}

// Usages returns the recorded coupon usages.
func (s *Store) Usages() []coupon.Usage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.st.usages)
}

// ProductSales returns the sales counter of a product.
func (s *Store) ProductSales(productID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.productSales[productID]
}

// OrderCount returns the number of persisted orders.
func (s *Store) OrderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.st.orders)
}

func (s *Store) GetVariants(ctx context.Context, ids []string) ([]catalog.Variant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]catalog.Variant, 0, len(ids))
	for _, id := range ids {
		if v, ok := s.st.variants[id]; ok && v.Active {
			out = append(out, v)
		}
	}
	return out, nil
}

func (s *Store) ListVariants(ctx context.Context) ([]catalog.Variant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]catalog.Variant, 0, len(s.st.variants))
	for _, id := range slices.Sorted(maps.Keys(s.st.variants)) {
		if v := s.st.variants[id]; v.Active {
			out = append(out, v)
		}
	}
	return out, nil
}

func (s *Store) Get(ctx context.Context, id string) (*customer.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.st.customers[id]
	if !ok {
		return nil, customer.ErrNotFound
	}
	return &c, nil
}

func (s *Store) GetOrCreate(ctx context.Context, c customer.Customer) (*customer.Customer, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.st.customers[c.ID]; ok {
		return &existing, false, nil
	}
	c.TotalOrders = 0
	c.TotalSpent = decimal.Zero
	s.st.customers[c.ID] = c
	return &c, true, nil
}

func (s *Store) GetAddress(ctx context.Context, customerID, addressID string) (*customer.Address, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.st.addresses[addressID]
	if !ok || a.CustomerID != customerID {
		return nil, customer.ErrAddressNotFound
	}
	return &a, nil
}

func (s *Store) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.st.coupons {
		if c.Active && c.Code == strings.ToUpper(strings.TrimSpace(code)) {
			return &c, nil
		}
	}
	return nil, coupon.ErrInvalidCoupon
}

func (s *Store) CountCustomerUses(ctx context.Context, couponID, customerID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, u := range s.st.usages {
		if u.CouponID == couponID && u.CustomerID == customerID {
			n++
		}
	}
	return n, nil
}

func (s *Store) GetRate(ctx context.Context, id string) (*shipping.Rate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.st.rates[id]
	if !ok {
		return nil, shipping.ErrRateNotFound
	}
	r := row.rate
	r.Zone = s.st.zones[row.zoneID]
	return &r, nil
}

func (s *Store) ListActiveRates(ctx context.Context) ([]shipping.Rate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []shipping.Rate
	for _, id := range slices.Sorted(maps.Keys(s.st.rates)) {
		row := s.st.rates[id]
		r := row.rate
		r.Zone = s.st.zones[row.zoneID]
		if r.Active && r.Zone.Active {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Store) GetByNumber(ctx context.Context, number string) (*order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.st.orders[number]
	if !ok {
		return nil, order.ErrNotFound
	}
	o.Items = slices.Clone(o.Items)
	return &o, nil
}

func (s *Store) ListByCustomer(ctx context.Context, customerID string, limit int) ([]order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []order.Order
	for _, o := range s.st.orders {
		if o.CustomerID == customerID {
			o.Items = nil
			out = append(out, o)
		}
	}
	slices.SortFunc(out, func(a, b order.Order) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.Number, a.Number)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) History(ctx context.Context, orderID uuid.UUID) ([]order.StatusEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []order.StatusEntry
	for _, e := range s.st.history {
		if e.OrderID == orderID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *Store) FindByHash(ctx context.Context, hash string) (*auth.APIKeyInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.st.apiKeys[hash]
	if !ok {
		return nil, auth.ErrKeyNotFound
	}
	return &k, nil
}

// tx mutates the live state while the store lock is held.
type tx struct {
	st *state
}

func (t *tx) NextSequence(ctx context.Context, prefix string) (int64, error) {
	t.st.sequences[prefix]++
	return t.st.sequences[prefix], nil
}

func (t *tx) InsertOrder(ctx context.Context, o *order.Order) error {
	stored := *o
	stored.Items = slices.Clone(o.Items)
	t.st.orders[o.Number] = stored
	return nil
}

func (t *tx) ReserveStock(ctx context.Context, variantID string, qty int) error {
	v, ok := t.st.variants[variantID]
	if !ok {
		return catalog.ErrVariantNotFound
	}
	if !v.Stock.CanFulfil(qty) {
		return &catalog.StockError{VariantID: variantID, Requested: qty, Available: v.Stock.Available()}
	}
	v.Stock.Reserved += qty
	t.st.variants[variantID] = v
	return nil
}

func (t *tx) AddProductSales(ctx context.Context, productID string, qty int) error {
	t.st.productSales[productID] += qty
	return nil
}

func (t *tx) RecordCouponUsage(ctx context.Context, u coupon.Usage) error {
	c, ok := t.st.coupons[u.CouponID]
	if !ok {
		return coupon.ErrInvalidCoupon
	}
	if c.Exhausted() {
		return coupon.ErrUsageLimitReached
	}
	if c.PerCustomerLimit > 0 {
		var used int
		for _, prev := range t.st.usages {
			if prev.CouponID == u.CouponID && prev.CustomerID == u.CustomerID {
				used++
			}
		}
		if used >= c.PerCustomerLimit {
			return coupon.ErrCustomerLimitReached
		}
	}
	c.TimesUsed++
	t.st.coupons[c.ID] = c
	t.st.usages = append(t.st.usages, u)
	return nil
}

func (t *tx) AppendStatus(ctx context.Context, e order.StatusEntry) error {
	t.st.history = append(t.st.history, e)
	return nil
}

func (t *tx) RecordCustomerOrder(ctx context.Context, customerID string, total decimal.Decimal) error {
	c, ok := t.st.customers[customerID]
	if !ok {
		return customer.ErrNotFound
	}
	c.TotalOrders++
	c.TotalSpent = c.TotalSpent.Add(total)
	t.st.customers[customerID] = c
	return nil
}

func (t *tx) LockOrder(ctx context.Context, number string) (*order.Order, error) {
	o, ok := t.st.orders[number]
	if !ok {
		return nil, order.ErrNotFound
	}
	o.Items = slices.Clone(o.Items)
	return &o, nil
}

func (t *tx) SetStatus(ctx context.Context, orderID uuid.UUID, status order.Status, at time.Time) error {
	return t.updateOrder(orderID, func(o *order.Order) {
		o.Status = status
		o.UpdatedAt = at
	})
}

func (t *tx) ReleaseStock(ctx context.Context, variantID string, qty int) error {
	v, ok := t.st.variants[variantID]
	if !ok {
		return nil
	}
	v.Stock.Reserved = max(0, v.Stock.Reserved-qty)
	t.st.variants[variantID] = v
	return nil
}

func (t *tx) ConsumeStock(ctx context.Context, variantID string, qty int) error {
	v, ok := t.st.variants[variantID]
	if !ok {
		return nil
	}
	v.Stock.Quantity = max(0, v.Stock.Quantity-qty)
	v.Stock.Reserved = max(0, v.Stock.Reserved-qty)
	t.st.variants[variantID] = v
	return nil
}

func (t *tx) MarkPaid(ctx context.Context, orderID uuid.UUID, at time.Time) error {
	return t.updateOrder(orderID, func(o *order.Order) {
		o.Paid = true
		o.PaidAt = &at
		o.UpdatedAt = at
	})
}

func (t *tx) updateOrder(orderID uuid.UUID, fn func(o *order.Order)) error {
	for number, o := range t.st.orders {
		if o.ID == orderID {
			fn(&o)
			t.st.orders[number] = o
			return nil
		}
	}
	return order.ErrNotFound
}
