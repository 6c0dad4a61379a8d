// Package redis keeps per-customer carts in Redis.
package redis

import (
	"context"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	goredis "github.com/redis/go-redis/v9"

	"github.com/xenking/boutique-checkout/internal/domain/order"
)

// DefaultCartTTL is how long an untouched cart survives.
const DefaultCartTTL = 7 * 24 * time.Hour

// ErrInvalidQuantity is returned for quantities below one.
var ErrInvalidQuantity = errors.New("quantity must be at least 1")

// Options configure a Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// NewClient connects to Redis and checks the connection.
func NewClient(ctx context.Context, opts Options) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrapf(err, "ping redis at %s", opts.Addr)
	}
	return client, nil
}

// CartStore stores a cart as a hash of variant id to quantity, plus the
// coupon code the customer asked for. Every write refreshes the TTL.
type CartStore struct {
	client goredis.UniversalClient
	ttl    time.Duration
}

// NewCartStore returns a CartStore. A non-positive ttl means DefaultCartTTL.
func NewCartStore(client goredis.UniversalClient, ttl time.Duration) *CartStore {
	if ttl <= 0 {
		ttl = DefaultCartTTL
	}
	return &CartStore{client: client, ttl: ttl}
}

func itemsKey(customerID string) string  { return "cart:" + customerID + ":items" }
func couponKey(customerID string) string { return "cart:" + customerID + ":coupon" }

// Get returns the cart of a customer. A missing cart is empty.
func (s *CartStore) Get(ctx context.Context, customerID string) (order.Cart, error) {
	raw, err := s.client.HGetAll(ctx, itemsKey(customerID)).Result()
	if err != nil {
		return nil, errors.Wrapf(err, "read cart of %q", customerID)
	}
	cart := make(order.Cart, len(raw))
	for variantID, v := range raw {
		qty, err := strconv.Atoi(v)
		if err != nil {
			return nil, errors.Errorf("cart of %q: bad quantity %q for %s", customerID, v, variantID)
		}
		cart[variantID] = qty
	}
	return cart, nil
}

// SetItem sets the quantity of one variant.
func (s *CartStore) SetItem(ctx context.Context, customerID, variantID string, qty int) (order.Cart, error) {
	if qty < 1 {
		return nil, ErrInvalidQuantity
	}
	key := itemsKey(customerID)
	_, err := s.client.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.HSet(ctx, key, variantID, qty)
		p.Expire(ctx, key, s.ttl)
		p.Expire(ctx, couponKey(customerID), s.ttl)
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "update cart of %q", customerID)
	}
	return s.Get(ctx, customerID)
}

// RemoveItem drops one variant from the cart.
func (s *CartStore) RemoveItem(ctx context.Context, customerID, variantID string) (order.Cart, error) {
	if err := s.client.HDel(ctx, itemsKey(customerID), variantID).Err(); err != nil {
		return nil, errors.Wrapf(err, "update cart of %q", customerID)
	}
	return s.Get(ctx, customerID)
}

// Clear empties the cart and forgets the coupon.
func (s *CartStore) Clear(ctx context.Context, customerID string) error {
	if err := s.client.Del(ctx, itemsKey(customerID), couponKey(customerID)).Err(); err != nil {
		return errors.Wrapf(err, "clear cart of %q", customerID)
	}
	return nil
}

// SetCoupon remembers the coupon code for the next checkout. An empty code
// forgets it.
func (s *CartStore) SetCoupon(ctx context.Context, customerID, code string) error {
	var err error
	if code == "" {
		err = s.client.Del(ctx, couponKey(customerID)).Err()
	} else {
		err = s.client.Set(ctx, couponKey(customerID), code, s.ttl).Err()
	}
	if err != nil {
		return errors.Wrapf(err, "store coupon of %q", customerID)
	}
	return nil
}

// Coupon returns the remembered coupon code, or "".
func (s *CartStore) Coupon(ctx context.Context, customerID string) (string, error) {
	code, err := s.client.Get(ctx, couponKey(customerID)).Result()
	if errors.Is(err, goredis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrapf(err, "read coupon of %q", customerID)
	}
	return code, nil
}
