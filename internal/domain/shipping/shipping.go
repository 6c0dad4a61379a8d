// Package shipping resolves delivery rates for an address and prices them.
package shipping

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// DeliveryType distinguishes the rate rows of a zone.
type DeliveryType string

const (
	DeliveryStandard DeliveryType = "standard"
	DeliveryExpress  DeliveryType = "express"
)

// Label returns the human-readable delivery type.
func (d DeliveryType) Label() string {
	switch d {
	case DeliveryExpress:
		return "Express"
	case DeliveryStandard:
		return "Standard"
	default:
		return string(d)
	}
}

var (
	// ErrRateNotFound is returned when a rate does not exist or is inactive.
	ErrRateNotFound = errors.New("shipping rate not found")
	// ErrZoneInactive is returned when the rate's zone is disabled.
	ErrZoneInactive = errors.New("shipping zone is not active")
)

// CityNotCoveredError reports an address city outside the zone's city list.
type CityNotCoveredError struct {
	City string
	Zone string
}

func (e *CityNotCoveredError) Error() string {
	return fmt.Sprintf("zone %s does not deliver to %s", e.Zone, e.City)
}

// CitySet is a set of normalized city names.
type CitySet map[string]struct{}

// ParseCities builds a CitySet from a comma-separated list.
func ParseCities(list string) CitySet {
	return NewCitySet(strings.Split(list, ",")...)
}

// NewCitySet builds a CitySet from city names. Blank names are skipped.
func NewCitySet(cities ...string) CitySet {
	set := make(CitySet, len(cities))
	for _, c := range cities {
		if n := normalizeCity(c); n != "" {
			set[n] = struct{}{}
		}
	}
	return set
}

// Covers reports whether city is in the set, ignoring case and surrounding space.
func (s CitySet) Covers(city string) bool {
	_, ok := s[normalizeCity(city)]
	return ok
}

// Names returns the normalized city names in lexical order.
func (s CitySet) Names() []string {
	names := make([]string, 0, len(s))
	for n := range s {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// String renders the set back into the stored comma-separated form.
func (s CitySet) String() string {
	return strings.Join(s.Names(), ", ")
}

func normalizeCity(city string) string {
	return strings.ToLower(strings.TrimSpace(city))
}

// Zone is a named group of covered cities sharing rates.
type Zone struct {
	ID      string
	Name    string
	Cities  CitySet
	Active  bool
	MinDays int
	MaxDays int
}

// Rate is the price of one delivery type within a zone.
type Rate struct {
	ID           string
	Zone         Zone
	DeliveryType DeliveryType
	Price        decimal.Decimal
	// FreeShippingThreshold, when set, waives the price for subtotals at or
	// above it.
	FreeShippingThreshold *decimal.Decimal
	Active                bool
}

// Cost returns the shipping cost for an order subtotal.
func (r Rate) Cost(subtotal decimal.Decimal) decimal.Decimal {
	if r.FreeShippingThreshold != nil && subtotal.GreaterThanOrEqual(*r.FreeShippingThreshold) {
		return decimal.Zero
	}
	return r.Price.Round(2)
}

// Repository reads shipping rates together with their zone.
type Repository interface {
	// GetRate returns the rate regardless of its active flags.
	GetRate(ctx context.Context, id string) (*Rate, error)
	// ListActiveRates returns active rates whose zone is active.
	ListActiveRates(ctx context.Context) ([]Rate, error)
}
