package shipping

import (
	"context"

	"github.com/go-faster/errors"
)

// Resolver validates a requested rate against a delivery city.
type Resolver struct {
	repo Repository
}

// NewResolver creates a Resolver backed by repo.
func NewResolver(repo Repository) *Resolver {
	return &Resolver{repo: repo}
}

// Resolve returns the rate identified by rateID when it is active, its zone
// is active and the zone covers city.
func (r *Resolver) Resolve(ctx context.Context, rateID, city string) (*Rate, error) {
	rate, err := r.repo.GetRate(ctx, rateID)
	if err != nil {
		if errors.Is(err, ErrRateNotFound) {
			return nil, ErrRateNotFound
		}
		return nil, errors.Wrap(err, "get rate")
	}
	if !rate.Active {
		return nil, ErrRateNotFound
	}
	if !rate.Zone.Active {
		return nil, ErrZoneInactive
	}
	if !rate.Zone.Cities.Covers(city) {
		return nil, &CityNotCoveredError{City: city, Zone: rate.Zone.Name}
	}
	return rate, nil
}

// RatesForCity lists the active rates that deliver to city.
func (r *Resolver) RatesForCity(ctx context.Context, city string) ([]Rate, error) {
	rates, err := r.repo.ListActiveRates(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list rates")
	}
	out := rates[:0]
	for _, rate := range rates {
		if rate.Active && rate.Zone.Active && rate.Zone.Cities.Covers(city) {
			out = append(out, rate)
		}
	}
	return out, nil
}
