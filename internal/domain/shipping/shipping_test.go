package shipping

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockRateRepo struct {
	rates map[string]Rate
	err   error
}

func (m *mockRateRepo) GetRate(_ context.Context, id string) (*Rate, error) {
	if m.err != nil {
		return nil, m.err
	}
	r, ok := m.rates[id]
	if !ok {
		return nil, ErrRateNotFound
	}
	return &r, nil
}

func (m *mockRateRepo) ListActiveRates(_ context.Context) ([]Rate, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []Rate
	for _, r := range m.rates {
		out = append(out, r)
	}
	return out, nil
}

func estuaire(active bool) Zone {
	return Zone{ID: "z1", Name: "Estuaire", Cities: ParseCities("Libreville, Owendo"), Active: active}
}

func TestCitySet(t *testing.T) {
	set := ParseCities(" Libreville,Owendo , ,Akanda")

	assert.True(t, set.Covers("owendo"))
	assert.True(t, set.Covers("  LIBREVILLE "))
	assert.False(t, set.Covers("Port-Gentil"))
	assert.False(t, set.Covers(""))
	assert.Equal(t, []string{"akanda", "libreville", "owendo"}, set.Names())
	assert.Equal(t, "akanda, libreville, owendo", set.String())
}

func TestRate_Cost(t *testing.T) {
	threshold := decimal.NewFromInt(50000)
	rate := Rate{Price: decimal.NewFromInt(2500), FreeShippingThreshold: &threshold}

	tests := []struct {
		name     string
		subtotal int64
		want     int64
	}{
		{name: "below threshold pays flat price", subtotal: 49999, want: 2500},
		{name: "exactly threshold is free", subtotal: 50000, want: 0},
		{name: "above threshold is free", subtotal: 120000, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := rate.Cost(decimal.NewFromInt(tt.subtotal))
			assert.True(t, decimal.NewFromInt(tt.want).Equal(got), "got %s", got)
		})
	}

	noThreshold := Rate{Price: decimal.NewFromInt(2500)}
	assert.True(t, decimal.NewFromInt(2500).Equal(noThreshold.Cost(decimal.NewFromInt(1_000_000))))
}

func TestResolver_Resolve(t *testing.T) {
	repo := &mockRateRepo{rates: map[string]Rate{
		"std":      {ID: "std", Zone: estuaire(true), DeliveryType: DeliveryStandard, Price: decimal.NewFromInt(2000), Active: true},
		"off":      {ID: "off", Zone: estuaire(true), DeliveryType: DeliveryExpress, Price: decimal.NewFromInt(5000), Active: false},
		"deadzone": {ID: "deadzone", Zone: estuaire(false), DeliveryType: DeliveryStandard, Price: decimal.NewFromInt(2000), Active: true},
	}}
	r := NewResolver(repo)
	ctx := context.Background()

	rate, err := r.Resolve(ctx, "std", "owendo")
	require.NoError(t, err)
	assert.Equal(t, "std", rate.ID)

	_, err = r.Resolve(ctx, "std", "Port-Gentil")
	var cityErr *CityNotCoveredError
	require.ErrorAs(t, err, &cityErr)
	assert.Equal(t, "Port-Gentil", cityErr.City)
	assert.Equal(t, "Estuaire", cityErr.Zone)

	_, err = r.Resolve(ctx, "missing", "Libreville")
	require.ErrorIs(t, err, ErrRateNotFound)

	_, err = r.Resolve(ctx, "off", "Libreville")
	require.ErrorIs(t, err, ErrRateNotFound)

	_, err = r.Resolve(ctx, "deadzone", "Libreville")
	require.ErrorIs(t, err, ErrZoneInactive)
}

func TestResolver_ResolveRepoError(t *testing.T) {
	r := NewResolver(&mockRateRepo{err: errors.New("connection reset")})

	_, err := r.Resolve(context.Background(), "std", "Libreville")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrRateNotFound)
	assert.Contains(t, err.Error(), "get rate")
}

func TestResolver_RatesForCity(t *testing.T) {
	ogooue := Zone{ID: "z2", Name: "Ogooue-Maritime", Cities: NewCitySet("Port-Gentil"), Active: true}
	repo := &mockRateRepo{rates: map[string]Rate{
		"lbv-std": {ID: "lbv-std", Zone: estuaire(true), DeliveryType: DeliveryStandard, Active: true},
		"lbv-exp": {ID: "lbv-exp", Zone: estuaire(true), DeliveryType: DeliveryExpress, Active: true},
		"pog-std": {ID: "pog-std", Zone: ogooue, DeliveryType: DeliveryStandard, Active: true},
	}}

	rates, err := NewResolver(repo).RatesForCity(context.Background(), "PORT-GENTIL")
	require.NoError(t, err)
	require.Len(t, rates, 1)
	assert.Equal(t, "pog-std", rates[0].ID)
}
