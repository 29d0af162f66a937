package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("STRIPE_SECRET_KEY", "sk_test_123")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, StorageMemory, cfg.StorageDriver)
	assert.Equal(t, PaymentStripe, cfg.PaymentDriver)
	assert.Equal(t, 10*time.Second, cfg.PaymentTimeout)
	assert.Equal(t, "usd", cfg.Currency)
	assert.True(t, cfg.TaxRate.Equal(decimal.RequireFromString("0.08")))
	assert.Equal(t, "sid", cfg.SessionCookie)
	assert.Equal(t, 5*time.Minute, cfg.CacheTTL)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("HTTP_PORT", "9000")
	t.Setenv("STORAGE_DRIVER", "Redis")
	t.Setenv("PAYMENT_DRIVER", "simulated")
	t.Setenv("PAYMENT_TIMEOUT", "3s")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("TAX_RATE", "0.2")
	t.Setenv("CURRENCY", "EUR")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.HTTPPort)
	assert.Equal(t, StorageRedis, cfg.StorageDriver)
	assert.Equal(t, 3*time.Second, cfg.PaymentTimeout)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "eur", cfg.Currency)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_InvalidTaxRate(t *testing.T) {
	t.Setenv("TAX_RATE", "eight percent")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_BadDurationFallsBack(t *testing.T) {
	t.Setenv("REQUEST_TIMEOUT", "soon")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := &Config{
		StorageDriver:       "disk",
		PaymentDriver:       PaymentStripe,
		StripeSecretKey:     "pk_live_oops",
		StripeWebhookSecret: "secret",
		TaxRate:             decimal.NewFromInt(2),
		Currency:            "dollars",
	}

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"STORAGE_DRIVER", "STRIPE_SECRET_KEY", "STRIPE_WEBHOOK_SECRET", "TAX_RATE", "CURRENCY", "PAYMENT_TIMEOUT"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestValidate_KeyPrefixes(t *testing.T) {
	cfg := &Config{
		StorageDriver:       StorageMemory,
		PaymentDriver:       PaymentStripe,
		StripeSecretKey:     "  rk_live_restricted",
		StripeWebhookSecret: "whsec_abc",
		TaxRate:             decimal.RequireFromString("0.08"),
		Currency:            "usd",
		PaymentTimeout:      time.Second,
	}
	assert.NoError(t, cfg.Validate())

	cfg.StripeSecretKey = "pk_test_publishable"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STRIPE_SECRET_KEY")

	cfg.StripeSecretKey = "sk_test_123"
	cfg.StripeWebhookSecret = "sk_test_123"
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STRIPE_WEBHOOK_SECRET")

	cfg.PaymentDriver = PaymentSimulated
	cfg.StripeSecretKey = ""
	cfg.StripeWebhookSecret = ""
	assert.NoError(t, cfg.Validate())
}
