// Package app wires configuration, storage and the HTTP server together.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/xenking/stockorder/internal/domain/coupon"
	"github.com/xenking/stockorder/internal/domain/inventory"
	"github.com/xenking/stockorder/internal/domain/member"
	"github.com/xenking/stockorder/internal/domain/order"
	"github.com/xenking/stockorder/internal/domain/product"
	"github.com/xenking/stockorder/internal/events"
	"github.com/xenking/stockorder/internal/handler"
	"github.com/xenking/stockorder/internal/idempotency"
	"github.com/xenking/stockorder/internal/seed"
	"github.com/xenking/stockorder/internal/storage/memory"
	"github.com/xenking/stockorder/internal/storage/postgres"
	"github.com/xenking/stockorder/pkg/health"
	"github.com/xenking/stockorder/pkg/httpmiddleware"
)

// backend is one storage implementation of every store the service needs.
type backend struct {
	members  member.Repository
	products interface {
		product.Repository
		inventory.Store
	}
	coupons interface {
		coupon.Repository
		coupon.Ledger
	}
	orders order.Repository
	sink   seed.Sink
	close  func()
}

func openBackend(ctx context.Context, lg *zap.Logger, cfg *Config, hs *health.Health) (*backend, error) {
	if cfg.DatabaseURL == "" {
		lg.Warn("No database configured, using in-memory store")
		st := memory.New(cfg.Store.LockWait)
		return &backend{
			members:  st.Members,
			products: st.Products,
			coupons:  st.Coupons,
			orders:   st.Orders,
			sink:     st,
			close:    func() {},
		}, nil
	}

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "create db pool")
	}
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "run migrations")
	}
	hs.AddReadiness(health.Check{
		Name:    "postgres",
		Timeout: 5 * time.Second,
		Func:    health.PingCheck(pool),
	})

	st := postgres.NewStore(pool, cfg.Store.RetryPolicy())
	return &backend{
		members:  st.Members,
		products: st.Products,
		coupons:  st.Coupons,
		orders:   st.Orders,
		sink:     st,
		close:    pool.Close,
	}, nil
}

func openIdempotency(cfg *Config, hs *health.Health) (idempotency.Store, func()) {
	if cfg.Redis.Addr == "" {
		return idempotency.NewMemoryStore(cfg.Redis.IdempotencyTTL), func() {}
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
	})
	hs.AddReadiness(health.Check{
		Name:    "redis",
		Timeout: 2 * time.Second,
		Func: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		},
	})
	return idempotency.NewRedisStore(rdb, cfg.Redis.IdempotencyTTL), func() { _ = rdb.Close() }
}

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	policy, err := cfg.Pricing.Policy()
	if err != nil {
		return errors.Wrap(err, "pricing policy")
	}

	healthSvc := health.New()
	healthSvc.AddLiveness(health.Check{
		Name:    "goroutines",
		Timeout: time.Second,
		Func:    health.GoroutineCountCheck(10000),
	})

	be, err := openBackend(ctx, lg, cfg, healthSvc)
	if err != nil {
		return err
	}
	defer be.close()

	if cfg.SeedFile != "" {
		stats, err := seed.LoadFile(ctx, cfg.SeedFile, be.sink)
		if err != nil {
			return errors.Wrap(err, "seed")
		}
		lg.Info("Fixtures loaded",
			zap.String("file", cfg.SeedFile),
			zap.Int("members", stats.Members),
			zap.Int("products", stats.Products),
			zap.Int("coupons", stats.Coupons),
		)
	}

	idem, closeIdem := openIdempotency(cfg, healthSvc)
	defer closeIdem()

	opts := []order.Option{
		order.WithPolicy(policy),
		order.WithTracerProvider(m.TracerProvider()),
		order.WithMeterProvider(m.MeterProvider()),
	}
	if len(cfg.Kafka.Brokers) > 0 {
		pub := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer func() {
			if err := pub.Close(); err != nil {
				lg.Warn("Close kafka publisher", zap.Error(err))
			}
		}()
		opts = append(opts,
			order.WithPublisher(pub),
			order.WithPublishTimeout(cfg.Kafka.PublishTimeout),
		)
	}

	orderService, err := order.NewService(
		be.members,
		be.products,
		be.products,
		be.coupons,
		be.coupons,
		be.orders,
		opts...,
	)
	if err != nil {
		return errors.Wrap(err, "create order service")
	}

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	h := handler.NewHandler(orderService, be.products, idem)

	r := chi.NewRouter()
	r.Get("/livez", healthSvc.LiveEndpoint)
	r.Get("/readyz", healthSvc.ReadyEndpoint)
	r.Mount("/api", h.Routes())

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: otelhttp.NewHandler(
			httpmiddleware.Wrap(r,
				httpmiddleware.Recovery(),
				httpmiddleware.RequestID(),
				httpmiddleware.InjectLogger(zctx.From(ctx)),
				httpmiddleware.LogRequests(),
			),
			"order-api",
			otelhttp.WithTracerProvider(m.TracerProvider()),
			otelhttp.WithMeterProvider(m.MeterProvider()),
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
