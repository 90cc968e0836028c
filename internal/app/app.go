package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/xenking/coffeeshop/internal/domain/cart"
	"github.com/xenking/coffeeshop/internal/domain/catalog"
	"github.com/xenking/coffeeshop/internal/domain/search"
	"github.com/xenking/coffeeshop/internal/handler"
	"github.com/xenking/coffeeshop/internal/storage/cache"
	"github.com/xenking/coffeeshop/internal/storage/events"
	"github.com/xenking/coffeeshop/internal/storage/postgres"
	"github.com/xenking/coffeeshop/pkg/health"
	"github.com/xenking/coffeeshop/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	var rdb redis.UniversalClient
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() { _ = client.Close() }()
		rdb = client
		lg.Info("Search cache enabled", zap.String("redis", cfg.Redis.Addr), zap.Duration("ttl", cfg.Redis.TTL))
	}

	var publisher cart.Publisher
	if len(cfg.Kafka.Brokers) > 0 {
		kp, err := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, m.MeterProvider())
		if err != nil {
			return errors.Wrap(err, "create kafka publisher")
		}
		defer func() {
			if err := kp.Close(); err != nil {
				lg.Warn("Close kafka publisher", zap.Error(err))
			}
		}()
		publisher = kp
		lg.Info("Cart events enabled", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}

	apiHandler, healthSvc := newHandler(ctx, cfg, deps{pool: pool, redis: rdb, publisher: publisher},
		otelhttp.WithTracerProvider(m.TracerProvider()),
		otelhttp.WithMeterProvider(m.MeterProvider()),
	)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler:           apiHandler,
	}
	healthSvc.SetReady(true)

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
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

// deps are the external connections the API runs on. redis and publisher
// are optional.
type deps struct {
	pool      *pgxpool.Pool
	redis     redis.UniversalClient
	publisher cart.Publisher
}

// newHandler wires stores, services and middleware into the server handler.
// The returned Health starts not ready.
func newHandler(ctx context.Context, cfg *Config, d deps, otelOpts ...otelhttp.Option) (http.Handler, *health.Health) {
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, func(ctx context.Context) error {
		return d.pool.Ping(ctx)
	})
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))

	// Interface values stay nil when the cache is disabled.
	var (
		searchCache search.Cache
		invalidator catalog.Invalidator
	)
	if d.redis != nil {
		c := cache.NewSearchCache(d.redis, cfg.Redis.TTL)
		searchCache, invalidator = c, c
		healthSvc.AddReadinessCheck("redis", 2*time.Second, func(ctx context.Context) error {
			return d.redis.Ping(ctx).Err()
		})
	}

	coffeeRepo := postgres.NewCoffeeRepository(d.pool)
	cartRepo := postgres.NewCartRepository(d.pool)

	catalogSvc := catalog.NewService(coffeeRepo, invalidator)
	searchEngine := search.NewEngine(coffeeRepo, searchCache)
	cartSvc := cart.NewService(cartRepo, coffeeRepo, d.publisher)

	router := newRouter(handler.NewHandler(catalogSvc, searchEngine, cartSvc), healthSvc)

	return httpmiddleware.Wrap(
		otelhttp.NewHandler(router, "coffee-api", otelOpts...),
		httpmiddleware.Recovery(),
		httpmiddleware.CORS(httpmiddleware.CORSConfig{
			AllowOrigins: cfg.CORS.Origins,
			MaxAge:       86400,
		}),
		httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
			Max:    cfg.RateLimit.Max,
			Window: cfg.RateLimit.Window,
		}),
		httpmiddleware.InjectLogger(zctx.From(ctx)),
		httpmiddleware.LogRequests(),
	), healthSvc
}

// newRouter mounts the probes and the API on one router.
func newRouter(h *handler.Handler, hs *health.Health) *mux.Router {
	r := mux.NewRouter()
	r.Use(httpmiddleware.CaptureRoute())
	r.HandleFunc("/livez", hs.LiveEndpoint).Methods(http.MethodGet)
	r.HandleFunc("/readyz", hs.ReadyEndpoint).Methods(http.MethodGet)
	h.Register(r)
	return r
}
