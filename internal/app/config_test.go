package app

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/cristalhq/aconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLoader() aconfig.Config {
	ac := loaderConfig()
	ac.SkipFlags = true
	ac.SkipFiles = true
	return ac
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("REDIS_URL", "")
	t.Setenv("BOUTIQUE_DATABASE_URL", "postgres://localhost/boutique")
	t.Setenv("BOUTIQUE_JWT_SECRET", "s3cret")

	cfg, err := loadConfig(testLoader())
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Addr)
	assert.Equal(t, "Africa/Libreville", cfg.TimeZone)
	assert.Equal(t, 7*24*time.Hour, cfg.Redis.CartTTL)
	assert.Equal(t, "boutique", cfg.JWT.Issuer)
	assert.False(t, cfg.SMTP.Enabled)
	assert.Equal(t, 100, cfg.RateLimit.Max)
	assert.Equal(t, 10, cfg.RateLimit.CheckoutMax)
	assert.Equal(t, 10*time.Minute, cfg.RateLimit.CheckoutWindow)
	assert.Equal(t, 15*time.Second, cfg.Graceful.ShutdownTimeout)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Africa/Libreville", loc.String())

	opts, err := cfg.RedisOptions()
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", opts.Addr)
}

func TestLoadConfig_PlatformDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://db/boutique")
	t.Setenv("REDIS_URL", "redis://:pw@cache:6380/2")
	t.Setenv("PORT", "9000")
	t.Setenv("BOUTIQUE_JWT_SECRET", "s3cret")

	cfg, err := loadConfig(testLoader())
	require.NoError(t, err)

	assert.Equal(t, "postgres://db/boutique", cfg.DatabaseURL)
	assert.Equal(t, "0.0.0.0:9000", cfg.Addr)

	opts, err := cfg.RedisOptions()
	require.NoError(t, err)
	assert.Equal(t, "cache:6380", opts.Addr)
	assert.Equal(t, "pw", opts.Password)
	assert.Equal(t, 2, opts.DB)
}

func TestLoadConfig_Errors(t *testing.T) {
	for _, tt := range []struct {
		name string
		env  map[string]string
		want string
	}{
		{
			name: "NoDatabase",
			env:  map[string]string{"BOUTIQUE_JWT_SECRET": "s"},
			want: "database URL is required",
		},
		{
			name: "NoSecret",
			env:  map[string]string{"BOUTIQUE_DATABASE_URL": "postgres://x"},
			want: "JWT secret is required",
		},
		{
			name: "BadTimeZone",
			env: map[string]string{
				"BOUTIQUE_DATABASE_URL": "postgres://x",
				"BOUTIQUE_JWT_SECRET":   "s",
				"BOUTIQUE_TIME_ZONE":    "Mars/Olympus",
			},
			want: "time zone",
		},
		{
			name: "BadRedisURL",
			env: map[string]string{
				"BOUTIQUE_DATABASE_URL": "postgres://x",
				"BOUTIQUE_JWT_SECRET":   "s",
				"BOUTIQUE_REDIS_URL":    "http://cache",
			},
			want: "parse redis URL",
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DATABASE_URL", "")
			t.Setenv("REDIS_URL", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := loadConfig(testLoader())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
