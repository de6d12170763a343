package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	Auth         AuthConfig
	FeatureFlags FeatureFlagsConfig
	Stripe       StripeConfig
	Clerk        ClerkConfig
	Billing      BillingConfig
	Cron         CronConfig
	Webhooks     WebhooksConfig
	RateLimit    RateLimitConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Billing.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string   `envconfig:"FILMTECH_APP_ENV" required:"true"`
	Port         string   `envconfig:"FILMTECH_APP_PORT" required:"true"`
	PublicURL    string   `envconfig:"FILMTECH_APP_PUBLIC_URL" default:"http://localhost:3000"`
	CORSOrigins  []string `envconfig:"FILMTECH_CORS_ORIGINS" default:"http://localhost:3000"`
	LogLevel     string   `envconfig:"FILMTECH_LOG_LEVEL" default:"info"`
	LogFormat    string   `envconfig:"FILMTECH_LOG_FORMAT" default:"json"`
	LogWarnStack bool     `envconfig:"FILMTECH_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"FILMTECH_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"FILMTECH_DB_DSN"`
	Driver string `envconfig:"FILMTECH_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"FILMTECH_DB_HOST"`
	LegacyPort     int    `envconfig:"FILMTECH_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"FILMTECH_DB_USER"`
	LegacyPassword string `envconfig:"FILMTECH_DB_PASSWORD"`
	LegacyName     string `envconfig:"FILMTECH_DB_NAME"`
	LegacySSLMode  string `envconfig:"FILMTECH_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"FILMTECH_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"FILMTECH_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"FILMTECH_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"FILMTECH_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"FILMTECH_REDIS_URL" required:"true"`
	Address      string        `envconfig:"FILMTECH_REDIS_ADDR"`
	Password     string        `envconfig:"FILMTECH_REDIS_PASSWORD"`
	DB           int           `envconfig:"FILMTECH_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"FILMTECH_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"FILMTECH_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"FILMTECH_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"FILMTECH_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"FILMTECH_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// AuthConfig holds the verification settings for session tokens minted by the identity provider.
type AuthConfig struct {
	SessionSecret string        `envconfig:"FILMTECH_AUTH_SESSION_SECRET" required:"true"`
	Issuer        string        `envconfig:"FILMTECH_AUTH_ISSUER" required:"true"`
	ClockSkew     time.Duration `envconfig:"FILMTECH_AUTH_CLOCK_SKEW" default:"30s"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"FILMTECH_AUTO_MIGRATE" default:"false"`
}

type StripeConfig struct {
	APIKey string `envconfig:"FILMTECH_STRIPE_API_KEY"`
	Secret string `envconfig:"FILMTECH_STRIPE_SECRET"`
	Env    string `envconfig:"FILMTECH_STRIPE_ENV" default:"test"`

	MonthlyPriceID        string `envconfig:"FILMTECH_STRIPE_MONTHLY_PRICE_ID"`
	YearlyPriceID         string `envconfig:"FILMTECH_STRIPE_YEARLY_PRICE_ID"`
	FounderMonthlyPriceID string `envconfig:"FILMTECH_STRIPE_FOUNDER_MONTHLY_PRICE_ID"`
	FounderYearlyPriceID  string `envconfig:"FILMTECH_STRIPE_FOUNDER_YEARLY_PRICE_ID"`

	SuccessURL string `envconfig:"FILMTECH_STRIPE_SUCCESS_URL" default:"http://localhost:3000/billing/success?session_id={CHECKOUT_SESSION_ID}"`
	CancelURL  string `envconfig:"FILMTECH_STRIPE_CANCEL_URL" default:"http://localhost:3000/billing"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type ClerkConfig struct {
	SecretKey     string        `envconfig:"FILMTECH_CLERK_SECRET_KEY"`
	WebhookSecret string        `envconfig:"FILMTECH_CLERK_WEBHOOK_SECRET"`
	APIURL        string        `envconfig:"FILMTECH_CLERK_API_URL" default:"https://api.clerk.com/v1"`
	Timeout       time.Duration `envconfig:"FILMTECH_CLERK_TIMEOUT" default:"10s"`
	RedirectURL   string        `envconfig:"FILMTECH_CLERK_INVITE_REDIRECT_URL"`
}

type BillingConfig struct {
	FounderMaxSlots   int `envconfig:"FILMTECH_BILLING_FOUNDER_MAX_SLOTS" default:"15"`
	FounderLockMonths int `envconfig:"FILMTECH_BILLING_FOUNDER_LOCK_MONTHS" default:"12"`
	TrialDays         int `envconfig:"FILMTECH_BILLING_TRIAL_DAYS" default:"14"`
}

// FounderLockPeriod returns how long a founder keeps the discounted price.
func (b BillingConfig) FounderLockPeriod(from time.Time) time.Time {
	return from.AddDate(0, b.FounderLockMonths, 0)
}

// TrialPeriod returns the trial length granted to newly created tenants.
func (b BillingConfig) TrialPeriod() time.Duration {
	return time.Duration(b.TrialDays) * 24 * time.Hour
}

func (b BillingConfig) validate() error {
	if b.FounderMaxSlots <= 0 {
		return fmt.Errorf("%s must be positive", EnvFounderMaxSlots)
	}
	if b.FounderLockMonths <= 0 {
		return fmt.Errorf("%s must be positive", EnvFounderLockMonths)
	}
	if b.TrialDays < 0 {
		return fmt.Errorf("%s must not be negative", EnvTrialDays)
	}
	return nil
}

type CronConfig struct {
	Secret   string        `envconfig:"FILMTECH_CRON_SECRET"`
	Interval time.Duration `envconfig:"FILMTECH_CRON_INTERVAL" default:"1h"`
	LockTTL  time.Duration `envconfig:"FILMTECH_CRON_LOCK_TTL" default:"10m"`
}

type WebhooksConfig struct {
	MaxBodyBytes int64         `envconfig:"FILMTECH_WEBHOOK_MAX_BODY_BYTES" default:"1048576"`
	InFlightTTL  time.Duration `envconfig:"FILMTECH_WEBHOOK_IN_FLIGHT_TTL" default:"2m"`
}

// RateLimitConfig sets fixed-window limits per surface. A zero limit disables that scope.
type RateLimitConfig struct {
	Window         time.Duration `envconfig:"FILMTECH_RATE_LIMIT_WINDOW" default:"1m"`
	PublicIPLimit  int           `envconfig:"FILMTECH_RATE_LIMIT_PUBLIC_IP" default:"60"`
	APIIPLimit     int           `envconfig:"FILMTECH_RATE_LIMIT_API_IP" default:"300"`
	APITenantLimit int           `envconfig:"FILMTECH_RATE_LIMIT_API_TENANT" default:"600"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
