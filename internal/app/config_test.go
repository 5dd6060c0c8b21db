package app

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/stockorder/internal/domain/pricing"
)

func validConfig() *Config {
	return &Config{
		Addr:  "0.0.0.0:8080",
		Store: StoreConfig{LockWait: 2 * time.Second, MaxAttempts: 5, RetryBackoff: 10 * time.Millisecond},
		Pricing: PricingConfig{
			MinOrderAmount:        5000,
			FreeDeliveryThreshold: 30000,
			DeliveryFee:           3000,
			VIPDiscountPercent:    "10",
		},
	}
}

func TestPricingConfig_Policy(t *testing.T) {
	p, err := validConfig().Pricing.Policy()
	require.NoError(t, err)
	assert.Equal(t, pricing.Default().MinOrderAmount, p.MinOrderAmount)
	assert.Equal(t, pricing.Default().FreeDeliveryThreshold, p.FreeDeliveryThreshold)
	assert.Equal(t, pricing.Default().DeliveryFee, p.DeliveryFee)
	assert.True(t, decimal.NewFromInt(10).Equal(p.VIPDiscountPercent))
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"fractional vip", func(c *Config) { c.Pricing.VIPDiscountPercent = "12.5" }, false},
		{"vip not a number", func(c *Config) { c.Pricing.VIPDiscountPercent = "ten" }, true},
		{"vip over 100", func(c *Config) { c.Pricing.VIPDiscountPercent = "101" }, true},
		{"negative fee", func(c *Config) { c.Pricing.DeliveryFee = -1 }, true},
		{"zero lock wait", func(c *Config) { c.Store.LockWait = 0 }, true},
		{"zero attempts", func(c *Config) { c.Store.MaxAttempts = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestStoreConfig_RetryPolicy(t *testing.T) {
	rp := validConfig().Store.RetryPolicy()
	assert.Equal(t, 2*time.Second, rp.LockWait)
	assert.Equal(t, 5, rp.MaxAttempts)
	assert.Equal(t, 10*time.Millisecond, rp.Backoff)
}

func TestApplyPlatformDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/shop")
	t.Setenv("PORT", "9000")

	cfg := validConfig()
	cfg.applyPlatformDefaults()
	assert.Equal(t, "postgres://localhost/shop", cfg.DatabaseURL)
	assert.Equal(t, "0.0.0.0:9000", cfg.Addr)

	cfg = validConfig()
	cfg.DatabaseURL = "postgres://explicit/shop"
	cfg.Addr = "127.0.0.1:7000"
	cfg.applyPlatformDefaults()
	assert.Equal(t, "postgres://explicit/shop", cfg.DatabaseURL)
	assert.Equal(t, "127.0.0.1:7000", cfg.Addr)
}
