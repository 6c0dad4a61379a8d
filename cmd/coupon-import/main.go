package main

import (
	"context"
	"flag"
	"os"
	"os/signal"

	"go.uber.org/zap"
)

func main() {
	var (
		databaseURL string
		cfg         importConfig
	)
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.UintVar(&cfg.capacity, "expected-codes", 1_000_000, "expected number of codes per file, sizes the bloom filters")
	flag.IntVar(&cfg.workers, "workers", 8, "concurrent database writers")
	flag.BoolVar(&cfg.dryRun, "dry-run", false, "parse and check files without writing")
	flag.Parse()

	lg, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	cfg.files = flag.Args()
	if len(cfg.files) == 0 {
		lg.Fatal("Usage: coupon-import [flags] campaign1.csv.gz [campaign2.csv.gz ...]")
	}
	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" && !cfg.dryRun {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, databaseURL, cfg); err != nil {
		lg.Fatal("Coupon import failed", zap.Error(err))
	}
	lg.Info("Coupon import completed")
}
