package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"llm_router/internal/auth"
	"llm_router/internal/billing"
	"llm_router/internal/config"
	"llm_router/internal/gateway"
	"llm_router/internal/logging"
	"llm_router/internal/middleware"
	"llm_router/internal/providers"
	"llm_router/internal/ratelimit"
	"llm_router/internal/routing"
	"llm_router/internal/storage"
	"llm_router/internal/utils"
)

// Dependencies aggregates all services the HTTP layer needs.
type Dependencies struct {
	Store    storage.Store
	Catalog  *storage.CachedCatalog
	Registry *providers.Registry
	Gateway  *gateway.Service
	Redis    *storage.RedisClient // nil when Redis is not configured
	Logger   *zap.Logger

	// drains the Redis request buffer into PostgreSQL; nil unless both are configured
	drainWorker *logging.DrainWorker
	// stops the catalog cache cleanup loop; nil when it is not running
	stopCatalogCleanup func()
}

// NewDependencies opens the store, Redis and the provider registry described
// by cfg and wires the gateway on top of them.
func NewDependencies(cfg *config.Config) (*Dependencies, error) {
	store, db, err := openStore(cfg.Database)
	if err != nil {
		return nil, err
	}

	var redisClient *storage.RedisClient
	if cfg.RedisEnabled() {
		redisClient, err = storage.NewRedisClient(storage.RedisConfig{
			Address:      cfg.Redis.Address,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("failed to initialize Redis: %w", err)
		}
	}

	registry := providers.NewRegistryFromConfig(cfg.Providers)

	deps, err := Assemble(cfg, store, registry, redisClient)
	if err != nil {
		_ = registry.Close()
		if redisClient != nil {
			_ = redisClient.Close()
		}
		_ = store.Close()
		return nil, err
	}

	if cfg.Cache.CatalogCacheCleanupInterval > 0 {
		deps.stopCatalogCleanup = deps.Catalog.StartCleanup(cfg.Cache.CatalogCacheCleanupInterval)
	}

	if db != nil && redisClient != nil && cfg.RequestLog.DrainInterval > 0 {
		buffer := logging.NewRedisBuffer(redisClient.Client(), logging.RedisBufferConfig{
			QueueKey: cfg.RequestLog.QueueKey,
			MaxSize:  cfg.RequestLog.MaxSize,
		})
		deps.drainWorker = logging.NewDrainWorker(buffer, storage.NewRequestLogRepository(db), cfg.RequestLog.DrainInterval)
		deps.drainWorker.Start(context.Background())
	}
	return deps, nil
}

// Assemble wires the gateway over an already opened store, registry and
// optional Redis client.
func Assemble(cfg *config.Config, store storage.Store, registry *providers.Registry, redisClient *storage.RedisClient) (*Dependencies, error) {
	selector, err := routing.NewSelector(cfg.Router.SelectionPolicy)
	if err != nil {
		return nil, err
	}
	calculator, err := billing.NewCalculator(cfg.Billing.CostPolicy, cfg.Billing.FlatMultiplier)
	if err != nil {
		return nil, err
	}

	catalog := storage.NewCachedCatalog(store, cfg.Cache.CatalogCacheSize, cfg.Cache.CatalogCacheTTL)

	var client *redis.Client
	var sink logging.Sink = logging.NewNoopSink()
	if redisClient != nil {
		client = redisClient.Client()
		sink = logging.NewRedisSink(logging.NewRedisBuffer(client, logging.RedisBufferConfig{
			QueueKey: cfg.RequestLog.QueueKey,
			MaxSize:  cfg.RequestLog.MaxSize,
		}))
	}

	svc := gateway.NewService(gateway.Options{
		Guard:       billing.NewGuard(store),
		Limiter:     ratelimit.New(client, cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst),
		Router:      routing.NewRouter(catalog, registry, selector),
		Calculator:  calculator,
		Meter:       billing.NewMeter(store),
		Sink:        sink,
		CallTimeout: cfg.Providers.RequestTimeout,
	})

	logging.Infof("gateway ready: providers=%v selection=%s cost=%s rate_limit=%d/min",
		registry.Names(), cfg.Router.SelectionPolicy, cfg.Billing.CostPolicy, cfg.RateLimit.RequestsPerMinute)

	return &Dependencies{
		Store:    store,
		Catalog:  catalog,
		Registry: registry,
		Gateway:  svc,
		Redis:    redisClient,
		Logger:   logging.L(),
	}, nil
}

// openStore returns the configured store. The *storage.DB is nil for the
// memory backend.
func openStore(cfg config.DatabaseConfig) (storage.Store, *storage.DB, error) {
	if cfg.Backend == "memory" {
		store := storage.NewMemoryStore()
		if cfg.SeedFile == "" {
			return store, nil, nil
		}
		seed, err := storage.LoadSeedFile(cfg.SeedFile)
		if err != nil {
			return nil, nil, err
		}
		ctx := context.Background()
		res, err := storage.ApplyCatalog(ctx, store, seed)
		if err != nil {
			return nil, nil, err
		}
		if err := storage.ApplyAccounts(ctx, store, seed, auth.HashAPIKey); err != nil {
			return nil, nil, err
		}
		logging.Infof("memory store seeded from %s: %+v", cfg.SeedFile, res)
		return store, nil, nil
	}

	db, err := storage.NewDB(storage.DBConfig{
		URL:             cfg.URL,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return storage.NewPostgresStore(db), db, nil
}

// Close releases every resource opened by NewDependencies
func (d *Dependencies) Close() error {
	var errs []error
	if d.stopCatalogCleanup != nil {
		d.stopCatalogCleanup()
	}
	if d.drainWorker != nil {
		errs = append(errs, d.drainWorker.Stop())
	}
	if d.Registry != nil {
		errs = append(errs, d.Registry.Close())
	}
	if d.Redis != nil {
		errs = append(errs, d.Redis.Close())
	}
	if d.Store != nil {
		errs = append(errs, d.Store.Close())
	}
	return errors.Join(errs...)
}

// NewRouter creates the HTTP handler with all routes registered
func NewRouter(deps *Dependencies, cfg *config.Config) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.AccessLog(deps.Logger))
	r.Use(chimw.Recoverer)

	if cfg.HTTP.OriginURL != "" {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{cfg.HTTP.OriginURL},
			AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
			ExposedHeaders:   []string{"X-Request-Id"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	r.Get("/health", deps.handleHealth)

	catalog := NewCatalogHandler(deps.Store)
	admin := NewAdminHandler(deps.Store, cfg.JWTSecret)
	keys := NewAdminAPIKeysHandler(deps.Store)

	r.Route("/api/v1", func(r chi.Router) {
		r.With(middleware.APIKeyMiddleware(deps.Gateway, writeAPIError)).
			Post("/chat/completions", deps.handleChat)

		r.Get("/models", catalog.ListModels)
		r.Get("/models/{modelId}", catalog.GetModel)
		r.Get("/providers", catalog.ListProviders)
		r.Get("/mappings", catalog.ListMappings)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Post("/auth/login", admin.Login)

		r.Route("/accounts/{accountId}", func(r chi.Router) {
			r.With(middleware.AdminJWTMiddleware(cfg.JWTSecret, auth.RoleViewer)).Get("/", admin.GetAccount)
			r.With(middleware.AdminJWTMiddleware(cfg.JWTSecret, auth.RoleViewer)).Get("/usage", admin.Usage)
			r.With(middleware.AdminJWTMiddleware(cfg.JWTSecret, auth.RoleViewer)).Get("/topups", admin.TopUps)
			r.With(middleware.AdminJWTMiddleware(cfg.JWTSecret, auth.RoleAdmin)).Post("/credits", admin.TopUp)

			r.With(middleware.AdminJWTMiddleware(cfg.JWTSecret, auth.RoleViewer)).Get("/keys", keys.List)
			r.With(middleware.AdminJWTMiddleware(cfg.JWTSecret, auth.RoleAdmin)).Post("/keys", keys.Create)
			r.With(middleware.AdminJWTMiddleware(cfg.JWTSecret, auth.RoleAdmin)).Patch("/keys/{keyId}", keys.Update)
			r.With(middleware.AdminJWTMiddleware(cfg.JWTSecret, auth.RoleAdmin)).Delete("/keys/{keyId}", keys.Delete)
		})

		r.With(middleware.AdminJWTMiddleware(cfg.JWTSecret, auth.RoleAdmin)).
			Post("/catalog/invalidate", deps.handleCatalogInvalidate)
	})

	return r
}

// handleHealth reports whether the store and, when configured, Redis respond
func (d *Dependencies) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := map[string]string{"database": "ok"}
	healthy := true

	if err := d.Store.Health(ctx); err != nil {
		checks["database"] = err.Error()
		healthy = false
	}
	if d.Redis != nil {
		checks["redis"] = "ok"
		if err := d.Redis.Health(ctx); err != nil {
			checks["redis"] = err.Error()
			healthy = false
		}
	}

	status, code := "ok", http.StatusOK
	if !healthy {
		status, code = "unavailable", http.StatusServiceUnavailable
	}
	utils.RespondWithJSON(w, code, map[string]any{"status": status, "checks": checks})
}

// handleCatalogInvalidate drops the routing cache so catalog changes made
// with gatewayctl seed take effect on the next request
func (d *Dependencies) handleCatalogInvalidate(w http.ResponseWriter, r *http.Request) {
	d.Catalog.Invalidate()

	adminID, _ := middleware.GetAdminID(r.Context())
	logging.Infof("catalog cache invalidated by admin %d", adminID)

	utils.RespondWithJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}
