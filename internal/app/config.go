package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	goredis "github.com/redis/go-redis/v9"

	"github.com/xenking/boutique-checkout/internal/storage/redis"
)

// Config holds the complete application configuration, loadable from
// environment variables (BOUTIQUE_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (BOUTIQUE_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	APIKeyPepper string `usage:"HMAC pepper for API key hashing (BOUTIQUE_API_KEY_PEPPER)" flag:"api-key-pepper"`
	TimeZone     string `default:"Africa/Libreville" usage:"Time zone that dates order numbers" flag:"time-zone"`
	Redis        RedisConfig
	JWT          JWTConfig
	SMTP         SMTPConfig
	Invoice      InvoiceConfig
	Sentry       SentryConfig
	RateLimit    RateLimitConfig
	Graceful     GracefulConfig
}

// RedisConfig locates the cart store.
type RedisConfig struct {
	// URL, when set, overrides Addr, Password and DB.
	URL      string        `usage:"Redis URL (BOUTIQUE_REDIS_URL or REDIS_URL)"`
	Addr     string        `default:"localhost:6379" usage:"Redis address"`
	Password string        `usage:"Redis password"`
	DB       int           `default:"0" usage:"Redis database"`
	CartTTL  time.Duration `default:"168h" usage:"Lifetime of an untouched cart"`
}

// JWTConfig verifies customer bearer tokens.
type JWTConfig struct {
	Secret string `usage:"HS256 secret of customer tokens (BOUTIQUE_JWT_SECRET)"`
	Issuer string `default:"boutique" usage:"Expected token issuer, empty to skip the check"`
}

// SMTPConfig controls order mail. When disabled, mail is logged instead.
type SMTPConfig struct {
	Enabled  bool          `default:"false" usage:"Send order mail over SMTP"`
	Host     string        `default:"localhost" usage:"SMTP host"`
	Port     int           `default:"587" usage:"SMTP port"`
	Username string        `usage:"SMTP username"`
	Password string        `usage:"SMTP password"`
	From     string        `default:"Boutique <commandes@boutique.ga>" usage:"Sender address"`
	Timeout  time.Duration `default:"30s" usage:"Deadline of one notification"`
}

// InvoiceConfig is printed on invoices and encoded in the payment QR code.
type InvoiceConfig struct {
	SellerName string `default:"Boutique" usage:"Seller name on invoices"`
	BankName   string `usage:"Bank receiving transfers"`
	IBAN       string `usage:"IBAN receiving transfers"`
}

// SentryConfig enables error reporting when DSN is set.
type SentryConfig struct {
	DSN         string `usage:"Sentry DSN, empty disables reporting"`
	Environment string `default:"production" usage:"Sentry environment"`
}

// RateLimitConfig controls the per-client sliding window rate limiter and
// the per-customer checkout limit.
type RateLimitConfig struct {
	Max            int           `default:"100" usage:"Max requests per window"`
	Window         time.Duration `default:"1m"  usage:"Rate limit window duration"`
	CheckoutMax    int           `default:"10"  usage:"Max checkout attempts per customer and window, 0 disables"`
	CheckoutWindow time.Duration `default:"10m" usage:"Checkout limit window duration"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

func loaderConfig() aconfig.Config {
	return aconfig.Config{
		EnvPrefix: "BOUTIQUE",
		Files:     []string{"config.yaml", "/etc/boutique/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	}
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	return loadConfig(loaderConfig())
}

func loadConfig(ac aconfig.Config) (*Config, error) {
	var cfg Config
	if err := aconfig.LoaderFor(&cfg, ac).Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required: set BOUTIQUE_DATABASE_URL or DATABASE_URL")
	}
	if cfg.JWT.Secret == "" {
		return nil, errors.New("JWT secret is required: set BOUTIQUE_JWT_SECRET")
	}
	if _, err := cfg.Location(); err != nil {
		return nil, err
	}
	if _, err := cfg.RedisOptions(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's BOUTIQUE_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if c.Redis.URL == "" {
		c.Redis.URL = os.Getenv("REDIS_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}

// Location returns the time zone that dates order numbers.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return nil, errors.Wrapf(err, "time zone %q", c.TimeZone)
	}
	return loc, nil
}

// RedisOptions resolves the cart store connection.
func (c *Config) RedisOptions() (redis.Options, error) {
	if c.Redis.URL == "" {
		return redis.Options{Addr: c.Redis.Addr, Password: c.Redis.Password, DB: c.Redis.DB}, nil
	}
	o, err := goredis.ParseURL(c.Redis.URL)
	if err != nil {
		return redis.Options{}, errors.Wrap(err, "parse redis URL")
	}
	return redis.Options{Addr: o.Addr, Password: o.Password, DB: o.DB}, nil
}
