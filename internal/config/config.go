package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/syedhariswaseem/lazr/internal/payment"
)

const (
	StorageMemory = "memory"
	StorageRedis  = "redis"
	StorageMongo  = "mongo"
	StorageCached = "cached"

	PaymentStripe    = "stripe"
	PaymentSimulated = "simulated"
)

type Config struct {
	HTTPPort           string
	LogLevel           string
	RequestTimeout     time.Duration
	ShutdownTimeout    time.Duration
	MaxRequestBodySize int64

	StorageDriver string
	RedisAddr     string
	RedisPassword string
	MongoURI      string
	MongoDBName   string
	RecordTTL     time.Duration
	CacheTTL      time.Duration

	CatalogDBPath     string
	SeedCatalog       bool
	OrdersDatabaseURL string
	KafkaBrokers      []string
	OrderEventsTopic  string

	PaymentDriver       string
	StripeSecretKey     string
	StripeWebhookSecret string
	StripeAPIBase       string
	PaymentTimeout      time.Duration

	Currency      string
	TaxRate       decimal.Decimal
	SessionCookie string
	SecureCookie  bool
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	taxRate, err := decimal.NewFromString(getEnv("TAX_RATE", "0.08"))
	if err != nil {
		return nil, fmt.Errorf("invalid TAX_RATE: %w", err)
	}

	cfg := &Config{
		HTTPPort:           getEnv("HTTP_PORT", "8080"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		RequestTimeout:     getDuration("REQUEST_TIMEOUT", 30*time.Second),
		ShutdownTimeout:    getDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		MaxRequestBodySize: 1 << 20, // 1MB

		StorageDriver: strings.ToLower(getEnv("STORAGE_DRIVER", StorageMemory)),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		MongoURI:      getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDBName:   getEnv("MONGO_DB_NAME", "lazr"),
		RecordTTL:     getDuration("RECORD_TTL", 30*24*time.Hour),
		CacheTTL:      getDuration("CACHE_TTL", 5*time.Minute),

		CatalogDBPath:     getEnv("CATALOG_DB_PATH", "catalog.db"),
		SeedCatalog:       getBool("SEED_CATALOG", true),
		OrdersDatabaseURL: getEnv("ORDERS_DATABASE_URL", ""),
		KafkaBrokers:      splitList(getEnv("KAFKA_BROKERS", "")),
		OrderEventsTopic:  getEnv("ORDER_EVENTS_TOPIC", "order-events"),

		PaymentDriver:       strings.ToLower(getEnv("PAYMENT_DRIVER", PaymentStripe)),
		StripeSecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
		StripeAPIBase:       getEnv("STRIPE_API_BASE", "https://api.stripe.com"),
		PaymentTimeout:      getDuration("PAYMENT_TIMEOUT", 10*time.Second),

		Currency:      strings.ToLower(getEnv("CURRENCY", "usd")),
		TaxRate:       taxRate,
		SessionCookie: getEnv("SESSION_COOKIE", "sid"),
		SecureCookie:  getBool("SECURE_COOKIE", false),
	}
	return cfg, nil
}

// Validate reports settings that would make the process misbehave at runtime.
func (c *Config) Validate() error {
	var errs []error

	switch c.StorageDriver {
	case StorageMemory, StorageRedis, StorageMongo, StorageCached:
	default:
		errs = append(errs, fmt.Errorf("unknown STORAGE_DRIVER %q", c.StorageDriver))
	}

	switch c.PaymentDriver {
	case PaymentSimulated:
	case PaymentStripe:
		if !payment.IsSecretKey(c.StripeSecretKey) {
			errs = append(errs, fmt.Errorf("STRIPE_SECRET_KEY must be a Stripe secret key (%s or %s)",
				payment.SecretKeyPrefixStandard, payment.SecretKeyPrefixRestricted))
		}
		if c.StripeWebhookSecret != "" && !payment.IsWebhookSecret(c.StripeWebhookSecret) {
			errs = append(errs, fmt.Errorf("STRIPE_WEBHOOK_SECRET must start with %s", payment.WebhookSecretPrefix))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown PAYMENT_DRIVER %q", c.PaymentDriver))
	}

	if c.TaxRate.IsNegative() || c.TaxRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		errs = append(errs, fmt.Errorf("TAX_RATE must be in [0, 1), got %s", c.TaxRate))
	}
	if len(c.Currency) != 3 {
		errs = append(errs, fmt.Errorf("CURRENCY must be an ISO 4217 code, got %q", c.Currency))
	}
	if c.PaymentTimeout <= 0 {
		errs = append(errs, errors.New("PAYMENT_TIMEOUT must be positive"))
	}

	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}

func getBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
