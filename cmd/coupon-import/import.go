package main

import (
	"context"
	"encoding/csv"
	"io"
	"math/bits"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/google/uuid"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/boutique-checkout/internal/domain/coupon"
	"github.com/xenking/boutique-checkout/internal/storage/postgres"
)

const (
	bloomFPR      = 0.001
	maxCodeLen    = 50
	progressEvery = 10_000
	// Files are tracked in a bitmask.
	maxFiles = bits.UintSize
)

// Columns of a campaign export, in order. The header row is optional.
var columns = []string{
	"code", "type", "value", "max_discount", "minimum_purchase",
	"usage_limit", "per_customer_limit", "valid_from", "valid_until", "description",
}

// couponNamespace derives stable coupon ids from codes, so re-importing a
// code updates the same row.
var couponNamespace = uuid.MustParse("6f1c2a52-8a8e-4c1e-9a0b-5b7d3f2e9c41")

type importConfig struct {
	files    []string
	capacity uint
	workers  int
	dryRun   bool
}

// plan is the outcome of scanning the campaign files.
type plan struct {
	coupons   []coupon.Coupon
	conflicts []string
	invalid   int
}

// couponWriter is the subset of postgres.Seeder used to store coupons.
type couponWriter interface {
	UpsertCoupon(ctx context.Context, c coupon.Coupon) error
}

func run(ctx context.Context, lg *zap.Logger, databaseURL string, cfg importConfig) error {
	if len(cfg.files) > maxFiles {
		return errors.Errorf("at most %d files per import, got %d", maxFiles, len(cfg.files))
	}
	for _, f := range cfg.files {
		if _, err := os.Stat(f); err != nil {
			return errors.Wrapf(err, "check file %s", f)
		}
	}

	p, err := scan(ctx, lg, cfg)
	if err != nil {
		return err
	}
	lg.Info("Scan complete",
		zap.Int("coupons", len(p.coupons)),
		zap.Int("conflicts", len(p.conflicts)),
		zap.Int("invalid_rows", p.invalid),
	)
	if len(p.conflicts) > 0 {
		lg.Warn("Codes defined in several files were skipped", zap.Strings("codes", p.conflicts))
	}
	if cfg.dryRun || len(p.coupons) == 0 {
		return nil
	}

	lg.Info("Connecting to database")
	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	return write(ctx, lg, postgres.NewSeeder(pool), p.coupons, cfg.workers)
}

// scan reads the files twice. The first pass fills one bloom filter per
// file with its codes. The second pass parses every row and marks codes
// that hit another file's filter; marks from two or more files confirm a
// conflict, and conflicting codes are not imported.
func scan(ctx context.Context, lg *zap.Logger, cfg importConfig) (*plan, error) {
	capacity := cfg.capacity
	if capacity == 0 {
		capacity = 1_000_000
	}

	lg.Info("Pass 1: building bloom filters", zap.Int("files", len(cfg.files)))
	filters := make([]*bloom.BloomFilter, len(cfg.files))
	g, gctx := errgroup.WithContext(ctx)
	for i, path := range cfg.files {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(capacity, bloomFPR)
			if err := readRecords(gctx, path, func(_ int, rec []string) error {
				if code := normalizeCode(rec[0]); code != "" {
					filter.AddString(code)
				}
				return nil
			}); err != nil {
				return errors.Wrapf(err, "build filter for %s", path)
			}
			filters[i] = filter
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	lg.Info("Pass 2: parsing coupons")
	type fileResult struct {
		coupons    map[string]coupon.Coupon
		candidates map[string]uint
		invalid    int
	}
	results := make([]fileResult, len(cfg.files))
	g, gctx = errgroup.WithContext(ctx)
	for i, path := range cfg.files {
		g.Go(func() error {
			res := fileResult{
				coupons:    make(map[string]coupon.Coupon),
				candidates: make(map[string]uint),
			}
			fileBit := uint(1) << uint(i)
			err := readRecords(gctx, path, func(line int, rec []string) error {
				c, err := parseCoupon(rec)
				if err != nil {
					res.invalid++
					lg.Warn("Skipping invalid row",
						zap.String("file", path),
						zap.Int("line", line),
						zap.Error(err),
					)
					return nil
				}
				if _, dup := res.coupons[c.Code]; dup {
					lg.Warn("Duplicate code in file, keeping the first row",
						zap.String("file", path),
						zap.Int("line", line),
						zap.String("code", c.Code),
					)
					return nil
				}
				res.coupons[c.Code] = c
				for j, f := range filters {
					if j != i && f.TestString(c.Code) {
						res.candidates[c.Code] |= fileBit
						break
					}
				}
				return nil
			})
			if err != nil {
				return errors.Wrapf(err, "parse %s", path)
			}
			lg.Info("Pass 2 file complete",
				zap.String("file", path),
				zap.Int("coupons", len(res.coupons)),
				zap.Int("candidates", len(res.candidates)),
			)
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[string]uint)
	for _, r := range results {
		for code, mask := range r.candidates {
			merged[code] |= mask
		}
	}

	p := &plan{}
	for code, mask := range merged {
		if bits.OnesCount(mask) >= 2 {
			p.conflicts = append(p.conflicts, code)
		}
	}
	slices.Sort(p.conflicts)

	for _, r := range results {
		p.invalid += r.invalid
		for code, c := range r.coupons {
			if _, found := slices.BinarySearch(p.conflicts, code); found {
				continue
			}
			p.coupons = append(p.coupons, c)
		}
	}
	slices.SortFunc(p.coupons, func(a, b coupon.Coupon) int { return strings.Compare(a.Code, b.Code) })
	return p, nil
}

// write upserts coupons with a bounded number of concurrent writers.
func write(ctx context.Context, lg *zap.Logger, w couponWriter, coupons []coupon.Coupon, workers int) error {
	if workers <= 0 {
		workers = 1
	}
	lg.Info("Writing coupons", zap.Int("count", len(coupons)), zap.Int("workers", workers))

	var written atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, c := range coupons {
		g.Go(func() error {
			if err := w.UpsertCoupon(gctx, c); err != nil {
				return errors.Wrapf(err, "upsert coupon %s", c.Code)
			}
			if n := written.Add(1); n%progressEvery == 0 {
				lg.Info("Write progress", zap.Int64("written", n), zap.Int("total", len(coupons)))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	lg.Info("Coupons written", zap.Int64("written", written.Load()))
	return nil
}

// readRecords streams a gzip-compressed CSV file and calls fn for every data
// row with its 1-based line number.
func readRecords(ctx context.Context, path string, fn func(line int, rec []string) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	r := csv.NewReader(gz)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	r.ReuseRecord = true

	for line := 1; ; line++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return errors.Wrapf(err, "read line %d", line)
		}
		if line == 1 && strings.EqualFold(strings.TrimSpace(rec[0]), columns[0]) {
			continue
		}
		if err := fn(line, rec); err != nil {
			return err
		}
	}
}

func normalizeCode(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// parseCoupon builds an active coupon from one CSV row. Empty optional
// columns keep their zero value, and missing trailing columns are empty.
func parseCoupon(rec []string) (coupon.Coupon, error) {
	field := func(i int) string {
		if i < len(rec) {
			return strings.TrimSpace(rec[i])
		}
		return ""
	}

	c := coupon.Coupon{
		Code:         normalizeCode(field(0)),
		DiscountType: coupon.DiscountType(strings.ToLower(field(1))),
		Description:  field(9),
		Active:       true,
	}
	switch {
	case c.Code == "":
		return c, errors.New("empty code")
	case len(c.Code) > maxCodeLen:
		return c, errors.Errorf("code longer than %d characters", maxCodeLen)
	}
	c.ID = uuid.NewSHA1(couponNamespace, []byte(c.Code)).String()

	var err error
	if c.Value, err = parseAmount(field(2), "value"); err != nil {
		return c, err
	}
	switch c.DiscountType {
	case coupon.DiscountPercentage:
		if !c.Value.IsPositive() || c.Value.GreaterThan(decimal.NewFromInt(100)) {
			return c, errors.Errorf("percentage %s out of range (0, 100]", c.Value)
		}
	case coupon.DiscountFixed:
		if !c.Value.IsPositive() {
			return c, errors.Errorf("fixed amount %s must be positive", c.Value)
		}
	default:
		return c, errors.Errorf("unknown discount type %q", c.DiscountType)
	}

	if c.MaxDiscount, err = parseAmount(field(3), "max_discount"); err != nil {
		return c, err
	}
	if c.MinimumPurchase, err = parseAmount(field(4), "minimum_purchase"); err != nil {
		return c, err
	}
	if c.UsageLimit, err = parseCount(field(5), "usage_limit", 0); err != nil {
		return c, err
	}
	if c.PerCustomerLimit, err = parseCount(field(6), "per_customer_limit", 1); err != nil {
		return c, err
	}
	if c.ValidFrom, err = parseDate(field(7), "valid_from"); err != nil {
		return c, err
	}
	if c.ValidUntil, err = parseDate(field(8), "valid_until"); err != nil {
		return c, err
	}
	if !c.ValidFrom.IsZero() && !c.ValidUntil.IsZero() && c.ValidUntil.Before(c.ValidFrom) {
		return c, errors.New("valid_until before valid_from")
	}
	return c, nil
}

func parseAmount(s, name string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "parse %s", name)
	}
	if d.IsNegative() {
		return decimal.Zero, errors.Errorf("%s must not be negative", name)
	}
	return d.Round(2), nil
}

func parseCount(s, name string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.Wrapf(err, "parse %s", name)
	}
	if n < 0 {
		return 0, errors.Errorf("%s must not be negative", name)
	}
	return n, nil
}

// parseDate accepts RFC 3339 timestamps and plain dates, read as UTC
// midnight.
func parseDate(s, name string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "parse %s", name)
	}
	return t, nil
}
