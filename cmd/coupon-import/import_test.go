package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xenking/boutique-checkout/internal/domain/coupon"
)

func writeGz(t *testing.T, name string, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	require.NoError(t, err)
	gz := pgzip.NewWriter(f)
	_, err = gz.Write([]byte(strings.Join(lines, "\n") + "\n"))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())
	return path
}

func TestParseCoupon(t *testing.T) {
	tests := []struct {
		name    string
		row     string
		wantErr string
		check   func(t *testing.T, c coupon.Coupon)
	}{
		{
			name: "percentage with all columns",
			row:  " tabaski ,percentage,15,5000,20000,100,2,2025-06-01,2025-06-30T23:59:59Z,Fête de Tabaski",
			check: func(t *testing.T, c coupon.Coupon) {
				assert.Equal(t, "TABASKI", c.Code)
				assert.Equal(t, coupon.DiscountPercentage, c.DiscountType)
				assert.True(t, c.Value.Equal(decimal.NewFromInt(15)))
				assert.True(t, c.MaxDiscount.Equal(decimal.NewFromInt(5000)))
				assert.True(t, c.MinimumPurchase.Equal(decimal.NewFromInt(20000)))
				assert.Equal(t, 100, c.UsageLimit)
				assert.Equal(t, 2, c.PerCustomerLimit)
				assert.True(t, c.ValidFrom.Equal(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)))
				assert.True(t, c.ValidUntil.Equal(time.Date(2025, 6, 30, 23, 59, 59, 0, time.UTC)))
				assert.Equal(t, "Fête de Tabaski", c.Description)
				assert.True(t, c.Active)
				assert.NotEmpty(t, c.ID)
			},
		},
		{
			name: "fixed with defaults",
			row:  "MILLE,FIXED,1000",
			check: func(t *testing.T, c coupon.Coupon) {
				assert.Equal(t, coupon.DiscountFixed, c.DiscountType)
				assert.Equal(t, 0, c.UsageLimit)
				assert.Equal(t, 1, c.PerCustomerLimit)
				assert.True(t, c.ValidFrom.IsZero())
				assert.True(t, c.MaxDiscount.IsZero())
			},
		},
		{name: "empty code", row: ",fixed,1000", wantErr: "empty code"},
		{name: "long code", row: strings.Repeat("X", 51) + ",fixed,1000", wantErr: "longer than"},
		{name: "unknown type", row: "A,bogo,1", wantErr: "unknown discount type"},
		{name: "percentage over 100", row: "A,percentage,120", wantErr: "out of range"},
		{name: "zero fixed", row: "A,fixed,0", wantErr: "must be positive"},
		{name: "bad value", row: "A,fixed,abc", wantErr: "parse value"},
		{name: "negative minimum", row: "A,fixed,10,,-5", wantErr: "minimum_purchase must not be negative"},
		{name: "bad limit", row: "A,fixed,10,,,many", wantErr: "parse usage_limit"},
		{name: "bad date", row: "A,fixed,10,,,,,01/06/2025", wantErr: "parse valid_from"},
		{name: "inverted window", row: "A,fixed,10,,,,,2025-07-01,2025-06-01", wantErr: "valid_until before valid_from"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := parseCoupon(strings.Split(tt.row, ","))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			tt.check(t, c)
		})
	}
}

func TestParseCoupon_StableID(t *testing.T) {
	a, err := parseCoupon([]string{"promo", "fixed", "500"})
	require.NoError(t, err)
	b, err := parseCoupon([]string{"PROMO", "fixed", "700"})
	require.NoError(t, err)
	assert.Equal(t, a.ID, b.ID)

	c, err := parseCoupon([]string{"OTHER", "fixed", "500"})
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, c.ID)
}

func TestScan(t *testing.T) {
	a := writeGz(t, "a.csv.gz",
		"code,type,value,max_discount,minimum_purchase,usage_limit,per_customer_limit,valid_from,valid_until,description",
		"ALPHA,fixed,1000",
		"SHARED,percentage,10",
		"ALPHA,fixed,2000",
		"BROKEN,percentage,500",
	)
	b := writeGz(t, "b.csv.gz",
		"BETA,fixed,500",
		"shared,fixed,700",
		"BROKEN,fixed,100",
	)

	p, err := scan(context.Background(), zap.NewNop(), importConfig{files: []string{a, b}, capacity: 1000})
	require.NoError(t, err)

	codes := make([]string, 0, len(p.coupons))
	for _, c := range p.coupons {
		codes = append(codes, c.Code)
	}
	// BROKEN is invalid in a.csv.gz, so b.csv.gz alone defines it.
	assert.Equal(t, []string{"ALPHA", "BETA", "BROKEN"}, codes)
	assert.Equal(t, []string{"SHARED"}, p.conflicts)
	assert.Equal(t, 1, p.invalid)

	// The first ALPHA row wins.
	assert.True(t, p.coupons[0].Value.Equal(decimal.NewFromInt(1000)))
}

func TestRun_MissingFile(t *testing.T) {
	err := run(context.Background(), zap.NewNop(), "", importConfig{
		files:  []string{filepath.Join(t.TempDir(), "missing.csv.gz")},
		dryRun: true,
	})
	require.Error(t, err)
}

func TestScan_NotGzip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plain.csv")
	require.NoError(t, os.WriteFile(path, []byte("A,fixed,1\n"), 0o600))

	_, err := scan(context.Background(), zap.NewNop(), importConfig{files: []string{path}})
	require.Error(t, err)
}

type recordingWriter struct {
	mu    sync.Mutex
	codes []string
	fail  string
}

func (w *recordingWriter) UpsertCoupon(_ context.Context, c coupon.Coupon) error {
	if c.Code == w.fail {
		return errors.New("boom")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.codes = append(w.codes, c.Code)
	return nil
}

func TestWrite(t *testing.T) {
	coupons := []coupon.Coupon{{Code: "A"}, {Code: "B"}, {Code: "C"}}

	t.Run("all written", func(t *testing.T) {
		w := &recordingWriter{}
		require.NoError(t, write(context.Background(), zap.NewNop(), w, coupons, 2))
		assert.ElementsMatch(t, []string{"A", "B", "C"}, w.codes)
	})

	t.Run("error stops the import", func(t *testing.T) {
		w := &recordingWriter{fail: "B"}
		err := write(context.Background(), zap.NewNop(), w, coupons, 0)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "upsert coupon B")
	})
}
