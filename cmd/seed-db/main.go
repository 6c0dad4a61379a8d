package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/boutique-checkout/internal/domain/auth"
	"github.com/xenking/boutique-checkout/internal/domain/catalog"
	"github.com/xenking/boutique-checkout/internal/domain/coupon"
	"github.com/xenking/boutique-checkout/internal/domain/customer"
	"github.com/xenking/boutique-checkout/internal/domain/shipping"
	"github.com/xenking/boutique-checkout/internal/handler"
	"github.com/xenking/boutique-checkout/internal/storage/postgres"
)

type options struct {
	databaseURL  string
	apiKey       string
	apiKeyPepper string
	jwtSecret    string
	jwtIssuer    string
	tokenTTL     time.Duration
}

func main() {
	var opts options
	flag.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&opts.apiKey, "api-key", "", "back-office API key to seed (or BOUTIQUE_SEED_API_KEY env)")
	flag.StringVar(&opts.apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or BOUTIQUE_API_KEY_PEPPER env)")
	flag.StringVar(&opts.jwtSecret, "jwt-secret", "", "secret that signs the demo customer token (or BOUTIQUE_JWT_SECRET env)")
	flag.StringVar(&opts.jwtIssuer, "jwt-issuer", "boutique", "issuer of the demo customer token")
	flag.DurationVar(&opts.tokenTTL, "token-ttl", 24*time.Hour, "lifetime of the demo customer token")
	flag.Parse()

	lg, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	opts.databaseURL = orEnv(opts.databaseURL, "BOUTIQUE_DATABASE_URL", "DATABASE_URL")
	opts.apiKey = orEnv(opts.apiKey, "BOUTIQUE_SEED_API_KEY")
	opts.apiKeyPepper = orEnv(opts.apiKeyPepper, "BOUTIQUE_API_KEY_PEPPER")
	opts.jwtSecret = orEnv(opts.jwtSecret, "BOUTIQUE_JWT_SECRET")

	if opts.databaseURL == "" {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}
	if opts.apiKey == "" {
		lg.Fatal("API key is required: set --api-key or BOUTIQUE_SEED_API_KEY")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, opts); err != nil {
		lg.Fatal("Seed failed", zap.Error(err))
	}
	lg.Info("Seed completed")
}

func orEnv(v string, keys ...string) string {
	for _, k := range keys {
		if v != "" {
			return v
		}
		v = os.Getenv(k)
	}
	return v
}

func run(ctx context.Context, lg *zap.Logger, opts options) error {
	lg.Info("Connecting to database")
	pool, err := postgres.NewPool(ctx, opts.databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	lg.Info("Running migrations")
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	seeder := postgres.NewSeeder(pool)
	if err := seedCatalog(ctx, lg, seeder); err != nil {
		return errors.Wrap(err, "seed catalog")
	}
	if err := seedShipping(ctx, lg, seeder); err != nil {
		return errors.Wrap(err, "seed shipping")
	}
	if err := seedCoupons(ctx, lg, seeder); err != nil {
		return errors.Wrap(err, "seed coupons")
	}

	demo, err := seedCustomer(ctx, lg, postgres.NewCustomerRepository(pool), seeder)
	if err != nil {
		return errors.Wrap(err, "seed demo customer")
	}

	keys := postgres.NewAPIKeyRepository(pool)
	if err := keys.Save(ctx, auth.APIKeyInfo{
		ID:      "backoffice",
		KeyHash: auth.HashKey([]byte(opts.apiKeyPepper), opts.apiKey),
		Name:    "Back-office",
		Scopes:  []string{auth.ScopeOrdersRead, auth.ScopeOrdersWrite},
	}); err != nil {
		return errors.Wrap(err, "seed api key")
	}
	lg.Info("Upserted API key", zap.String("id", "backoffice"))

	if opts.jwtSecret != "" {
		token, err := handler.SignCustomerToken([]byte(opts.jwtSecret), opts.jwtIssuer, *demo, time.Now(), opts.tokenTTL)
		if err != nil {
			return errors.Wrap(err, "sign demo token")
		}
		lg.Info("Demo customer token",
			zap.String("customer_id", demo.ID),
			zap.Duration("ttl", opts.tokenTTL),
			zap.String("token", token),
		)
	}
	return nil
}

func seedCatalog(ctx context.Context, lg *zap.Logger, s *postgres.Seeder) error {
	products := []struct {
		id, name string
		variants []catalog.Variant
	}{
		{
			id: "robe-wax", name: "Robe en wax",
			variants: []catalog.Variant{
				{ID: "robe-wax-s", SKU: "RW-S-ORG", Size: "S", Color: "Orange", Price: decimal.NewFromInt(25000), Stock: catalog.Stock{Quantity: 12}},
				{ID: "robe-wax-m", SKU: "RW-M-ORG", Size: "M", Color: "Orange", Price: decimal.NewFromInt(25000), Stock: catalog.Stock{Quantity: 20}},
				{ID: "robe-wax-l", SKU: "RW-L-BLU", Size: "L", Color: "Bleu", Price: decimal.NewFromInt(27500), Stock: catalog.Stock{Quantity: 3}},
			},
		},
		{
			id: "sac-raphia", name: "Sac en raphia",
			variants: []catalog.Variant{
				{ID: "sac-raphia-nat", SKU: "SR-NAT", Color: "Naturel", Price: decimal.NewFromInt(15000), Stock: catalog.Stock{Quantity: 8}},
			},
		},
		{
			id: "sandales-cuir", name: "Sandales en cuir",
			variants: []catalog.Variant{
				{ID: "sandales-39", SKU: "SC-39", Size: "39", Price: decimal.NewFromInt(18000), Stock: catalog.Stock{Quantity: 5}},
				{ID: "sandales-40", SKU: "SC-40", Size: "40", Price: decimal.NewFromInt(18000), Stock: catalog.Stock{Quantity: 0}},
			},
		},
	}

	for _, p := range products {
		if err := s.UpsertProduct(ctx, p.id, p.name); err != nil {
			return err
		}
		for _, v := range p.variants {
			v.ProductID = p.id
			v.Active = true
			if err := s.UpsertVariant(ctx, v); err != nil {
				return err
			}
		}
		lg.Info("Upserted product", zap.String("id", p.id), zap.Int("variants", len(p.variants)))
	}
	return nil
}

func seedShipping(ctx context.Context, lg *zap.Logger, s *postgres.Seeder) error {
	estuaire := shipping.Zone{
		ID: "estuaire", Name: "Estuaire",
		Cities: shipping.NewCitySet("Libreville", "Akanda", "Owendo", "Ntoum"),
		Active: true, MinDays: 1, MaxDays: 2,
	}
	ogooue := shipping.Zone{
		ID: "ogooue-maritime", Name: "Ogooué-Maritime",
		Cities: shipping.NewCitySet("Port-Gentil", "Omboué"),
		Active: true, MinDays: 3, MaxDays: 5,
	}
	haut := shipping.Zone{
		ID: "haut-ogooue", Name: "Haut-Ogooué",
		Cities: shipping.NewCitySet("Franceville", "Moanda", "Mounana"),
		Active: true, MinDays: 4, MaxDays: 7,
	}
	free := decimal.NewFromInt(50000)

	for _, z := range []shipping.Zone{estuaire, ogooue, haut} {
		if err := s.UpsertZone(ctx, z); err != nil {
			return err
		}
		lg.Info("Upserted zone", zap.String("id", z.ID), zap.Strings("cities", z.Cities.Names()))
	}

	rates := []shipping.Rate{
		{ID: "estuaire-standard", Zone: estuaire, DeliveryType: shipping.DeliveryStandard, Price: decimal.NewFromInt(2500), FreeShippingThreshold: &free},
		{ID: "estuaire-express", Zone: estuaire, DeliveryType: shipping.DeliveryExpress, Price: decimal.NewFromInt(5000)},
		{ID: "ogooue-standard", Zone: ogooue, DeliveryType: shipping.DeliveryStandard, Price: decimal.NewFromInt(7500)},
		{ID: "haut-standard", Zone: haut, DeliveryType: shipping.DeliveryStandard, Price: decimal.NewFromInt(10000)},
	}
	for _, r := range rates {
		r.Active = true
		if err := s.UpsertRate(ctx, r); err != nil {
			return err
		}
		lg.Info("Upserted rate", zap.String("id", r.ID), zap.String("price", r.Price.String()))
	}
	return nil
}

func seedCoupons(ctx context.Context, lg *zap.Logger, s *postgres.Seeder) error {
	coupons := []coupon.Coupon{
		{
			ID: "bienvenue", Code: "BIENVENUE",
			Description:  "10% de réduction, plafonnée à 5 000 FCFA",
			DiscountType: coupon.DiscountPercentage, Value: decimal.NewFromInt(10),
			MaxDiscount: decimal.NewFromInt(5000), PerCustomerLimit: 1,
		},
		{
			ID: "fete", Code: "FETE5000",
			Description:  "5 000 FCFA offerts dès 30 000 FCFA d'achat",
			DiscountType: coupon.DiscountFixed, Value: decimal.NewFromInt(5000),
			MinimumPurchase: decimal.NewFromInt(30000), UsageLimit: 100,
		},
	}
	for _, c := range coupons {
		c.Active = true
		if err := s.UpsertCoupon(ctx, c); err != nil {
			return err
		}
		lg.Info("Upserted coupon", zap.String("code", c.Code), zap.String("description", c.Description))
	}
	return nil
}

func seedCustomer(ctx context.Context, lg *zap.Logger, repo *postgres.CustomerRepository, s *postgres.Seeder) (*customer.Customer, error) {
	c, created, err := repo.GetOrCreate(ctx, customer.Customer{
		ID:       "demo-customer",
		Username: "demo",
		Email:    "demo@example.com",
		Phone:    "+24177000000",
	})
	if err != nil {
		return nil, err
	}
	if err := s.UpsertAddress(ctx, customer.Address{
		ID:         "demo-home",
		CustomerID: c.ID,
		FullName:   "Client Démo",
		Phone:      c.Phone,
		Line1:      "Boulevard Triomphal",
		City:       "Libreville",
		Region:     "Estuaire",
		Country:    "GA",
	}); err != nil {
		return nil, err
	}
	lg.Info("Upserted demo customer", zap.String("id", c.ID), zap.Bool("created", created))
	return c, nil
}
