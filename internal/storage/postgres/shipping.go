package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/boutique-checkout/internal/domain/shipping"
)

const (
	rateColumns = `r.id, r.delivery_type, r.price, r.free_shipping_threshold, r.active,
		z.id, z.name, z.cities, z.active, z.min_days, z.max_days`

	getRateSQL = `SELECT ` + rateColumns + `
		FROM shipping_rates r JOIN shipping_zones z ON z.id = r.zone_id
		WHERE r.id = $1`

	listActiveRatesSQL = `SELECT ` + rateColumns + `
		FROM shipping_rates r JOIN shipping_zones z ON z.id = r.zone_id
		WHERE r.active = TRUE AND z.active = TRUE
		ORDER BY z.name, r.price`
)

var _ shipping.Repository = (*ShippingRepository)(nil)

// ShippingRepository implements shipping.Repository backed by PostgreSQL.
type ShippingRepository struct {
	pool *pgxpool.Pool
}

// NewShippingRepository returns a ShippingRepository that uses the given pool.
func NewShippingRepository(pool *pgxpool.Pool) *ShippingRepository {
	return &ShippingRepository{pool: pool}
}

// GetRate returns a rate with its zone regardless of the active flags.
func (r *ShippingRepository) GetRate(ctx context.Context, id string) (*shipping.Rate, error) {
	rows, err := r.pool.Query(ctx, getRateSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting shipping rate %q: %w", id, err)
	}
	rate, err := pgx.CollectExactlyOneRow(rows, scanRate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shipping.ErrRateNotFound
		}
		return nil, fmt.Errorf("getting shipping rate %q: %w", id, err)
	}
	return &rate, nil
}

// ListActiveRates returns active rates of active zones.
func (r *ShippingRepository) ListActiveRates(ctx context.Context) ([]shipping.Rate, error) {
	rows, err := r.pool.Query(ctx, listActiveRatesSQL)
	if err != nil {
		return nil, fmt.Errorf("listing shipping rates: %w", err)
	}
	return pgx.CollectRows(rows, scanRate)
}

func scanRate(row pgx.CollectableRow) (shipping.Rate, error) {
	var (
		rate         shipping.Rate
		deliveryType string
		threshold    decimal.NullDecimal
		cities       string
	)
	err := row.Scan(
		&rate.ID, &deliveryType, &rate.Price, &threshold, &rate.Active,
		&rate.Zone.ID, &rate.Zone.Name, &cities, &rate.Zone.Active, &rate.Zone.MinDays, &rate.Zone.MaxDays,
	)
	rate.DeliveryType = shipping.DeliveryType(deliveryType)
	rate.Zone.Cities = shipping.ParseCities(cities)
	if threshold.Valid {
		rate.FreeShippingThreshold = &threshold.Decimal
	}
	return rate, err
}
