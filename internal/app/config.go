package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/stockorder/internal/domain/pricing"
	"github.com/xenking/stockorder/internal/storage/postgres"
)

// Config holds the complete application configuration, loadable from
// environment variables (SHOP_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL; empty runs the in-memory backend" flag:"database-url"`
	SeedFile    string `usage:"Fixture file loaded at startup" flag:"seed-file"`
	Store       StoreConfig
	Pricing     PricingConfig
	Redis       RedisConfig
	Kafka       KafkaConfig
	Graceful    GracefulConfig
}

// StoreConfig bounds how long a request waits for a locked product or coupon.
type StoreConfig struct {
	LockWait     time.Duration `default:"2s"   usage:"Max wait for a product or coupon lock" flag:"lock-wait"`
	MaxAttempts  int           `default:"5"    usage:"Transaction attempts on lock conflicts" flag:"max-attempts"`
	RetryBackoff time.Duration `default:"10ms" usage:"Base backoff between attempts" flag:"retry-backoff"`
}

// PricingConfig holds the order pricing thresholds.
type PricingConfig struct {
	MinOrderAmount        int64  `default:"5000"  usage:"Minimum order subtotal" flag:"min-order-amount"`
	FreeDeliveryThreshold int64  `default:"30000" usage:"Discounted subtotal from which delivery is free" flag:"free-delivery-threshold"`
	DeliveryFee           int64  `default:"3000"  usage:"Delivery fee below the threshold" flag:"delivery-fee"`
	VIPDiscountPercent    string `default:"10"    usage:"Discount percent for VIP members" flag:"vip-discount"`
}

// RedisConfig enables the Redis idempotency store when Addr is set.
type RedisConfig struct {
	Addr           string        `usage:"Redis address for idempotency keys" flag:"redis-addr"`
	Password       string        `usage:"Redis password" flag:"redis-password"`
	IdempotencyTTL time.Duration `default:"24h" usage:"How long idempotency keys are kept" flag:"idempotency-ttl"`
}

// KafkaConfig enables order event publication when Brokers is set.
type KafkaConfig struct {
	Brokers        []string      `usage:"Kafka brokers for order events" flag:"kafka-brokers"`
	Topic          string        `default:"orders.created" usage:"Kafka topic for order events" flag:"kafka-topic"`
	PublishTimeout time.Duration `default:"3s" usage:"Max time a committed order waits on its event" flag:"publish-timeout"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables and YAML config
// files, then applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "SHOP",
		Files:     []string{"config.yaml", "/etc/shop/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if _, err := c.Pricing.Policy(); err != nil {
		return err
	}
	if c.Store.LockWait <= 0 {
		return errors.New("store lock wait must be positive")
	}
	if c.Store.MaxAttempts <= 0 {
		return errors.New("store max attempts must be positive")
	}
	return nil
}

// Policy converts the pricing section into a pricing.Policy.
func (p PricingConfig) Policy() (pricing.Policy, error) {
	vip, err := decimal.NewFromString(p.VIPDiscountPercent)
	if err != nil {
		return pricing.Policy{}, errors.Wrap(err, "parse vip discount")
	}
	if !pricing.ValidRate(vip) {
		return pricing.Policy{}, errors.Errorf("vip discount %s out of range", vip)
	}
	if p.MinOrderAmount < 0 || p.FreeDeliveryThreshold < 0 || p.DeliveryFee < 0 {
		return pricing.Policy{}, errors.New("pricing amounts must not be negative")
	}
	return pricing.Policy{
		MinOrderAmount:        p.MinOrderAmount,
		FreeDeliveryThreshold: p.FreeDeliveryThreshold,
		DeliveryFee:           p.DeliveryFee,
		VIPDiscountPercent:    vip,
	}, nil
}

// RetryPolicy converts the store section into a postgres.RetryPolicy.
func (s StoreConfig) RetryPolicy() postgres.RetryPolicy {
	return postgres.RetryPolicy{
		LockWait:    s.LockWait,
		MaxAttempts: s.MaxAttempts,
		Backoff:     s.RetryBackoff,
	}
}

// applyPlatformDefaults maps the standard DATABASE_URL and PORT variables
// used by hosting platforms onto the SHOP_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
