package app

import (
	"context"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	goredis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/boutique-checkout/internal/domain/coupon"
	"github.com/xenking/boutique-checkout/internal/domain/order"
	"github.com/xenking/boutique-checkout/internal/domain/shipping"
	"github.com/xenking/boutique-checkout/internal/handler"
	"github.com/xenking/boutique-checkout/internal/invoice"
	"github.com/xenking/boutique-checkout/internal/notify"
	"github.com/xenking/boutique-checkout/internal/storage/postgres"
	"github.com/xenking/boutique-checkout/internal/storage/redis"
	"github.com/xenking/boutique-checkout/pkg/health"
	"github.com/xenking/boutique-checkout/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	return run(ctx, lg, m.TracerProvider(), m.MeterProvider(), cfg)
}

func run(ctx context.Context, lg *zap.Logger, tp trace.TracerProvider, mp metric.MeterProvider, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("time_zone", cfg.TimeZone),
	)

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	if cfg.Sentry.DSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.Sentry.DSN,
			Environment:      cfg.Sentry.Environment,
			AttachStacktrace: true,
		}); err != nil {
			return errors.Wrap(err, "init sentry")
		}
		defer sentry.Flush(2 * time.Second)
	}

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Redis holds carts.
	redisOpts, err := cfg.RedisOptions()
	if err != nil {
		return err
	}
	rdb, err := redis.NewClient(ctx, redisOpts)
	if err != nil {
		return errors.Wrap(err, "connect redis")
	}
	defer func() { _ = rdb.Close() }()

	healthSvc := newHealth(lg.Named("health"), pool, rdb)
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Repositories.
	catalogRepo := postgres.NewCatalogRepository(pool)
	customerRepo := postgres.NewCustomerRepository(pool)
	couponRepo := postgres.NewCouponRepository(pool)
	shippingRepo := postgres.NewShippingRepository(pool)
	orderRepo := postgres.NewOrderRepository(pool)
	apikeyRepo := postgres.NewAPIKeyRepository(pool)
	carts := redis.NewCartStore(rdb, cfg.Redis.CartTTL)

	// Domain services.
	couponValidator := coupon.NewValidator(couponRepo)
	rateResolver := shipping.NewResolver(shippingRepo)
	orderService, err := order.NewService(order.Deps{
		Catalog:   catalogRepo,
		Addresses: customerRepo,
		Rates:     rateResolver,
		Coupons:   couponValidator,
		Store:     postgres.NewStore(pool),
		Orders:    orderRepo,
	},
		order.WithLocation(loc),
		order.WithTracerProvider(tp),
		order.WithMeterProvider(mp),
	)
	if err != nil {
		return errors.Wrap(err, "create order service")
	}

	invoices, err := invoice.NewRenderer(invoice.Seller{
		Name:     cfg.Invoice.SellerName,
		BankName: cfg.Invoice.BankName,
		IBAN:     cfg.Invoice.IBAN,
	}, loc)
	if err != nil {
		return errors.Wrap(err, "create invoice renderer")
	}

	var sender notify.Sender = notify.LogSender{}
	if cfg.SMTP.Enabled {
		smtp, err := notify.NewSMTPSender(notify.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		})
		if err != nil {
			return errors.Wrap(err, "create smtp sender")
		}
		sender = smtp
	} else {
		lg.Warn("SMTP disabled, order mail is only logged")
	}
	notifier := notify.NewNotifier(sender, customerRepo, invoices, cfg.SMTP.Timeout)

	// HTTP handlers.
	h := handler.New(handler.Config{
		JWTSecret:     []byte(cfg.JWT.Secret),
		JWTIssuer:     cfg.JWT.Issuer,
		APIKeyPepper:  []byte(cfg.APIKeyPepper),
		CheckoutLimit: httpmiddleware.RateLimitConfig{
			Max:    cfg.RateLimit.CheckoutMax,
			Window: cfg.RateLimit.CheckoutWindow,
		},
	}, handler.Deps{
		Orders:    orderService,
		Carts:     carts,
		Catalog:   catalogRepo,
		Customers: customerRepo,
		Coupons:   couponValidator,
		Rates:     rateResolver,
		APIKeys:   apikeyRepo,
		Invoices:  invoices,
		Notifier:  notifier,
	})

	// Mux: health endpoints + API routes on one server.
	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	mux.Handle("/api/", h.Routes())

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.InjectLogger(lg),
			httpmiddleware.RequestID(),
			httpmiddleware.Recovery(),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
				Skip:   httpmiddleware.SkipPaths("/livez", "/readyz"),
			}),
			httpmiddleware.Instrument("boutique-api", tp, mp),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		lg.Info("Waiting for pending notifications")
		notifier.Wait()
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

// newHealth registers the probes of the API server. Readiness follows
// Postgres and the Redis cart store; liveness watches the runtime.
func newHealth(lg *zap.Logger, db health.Pinger, carts goredis.UniversalClient, opts ...health.Option) *health.Health {
	h := health.New(append([]health.Option{health.WithLogger(lg)}, opts...)...)
	h.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(db))
	h.AddReadinessCheck("redis", 2*time.Second, health.RedisCheck(carts))
	h.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	h.AddLivenessCheck("gc", time.Second, health.GCMaxPauseCheck(time.Second))
	return h
}
