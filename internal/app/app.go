package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	redislib "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	creditshttp "github.com/preset/credits/internal/adapter/http"
	"github.com/preset/credits/internal/adapter/outbound/postgres"
	"github.com/preset/credits/internal/adapter/outbound/provider"
	creditsredis "github.com/preset/credits/internal/adapter/outbound/redis"
	"github.com/preset/credits/internal/domain/ledger"
	"github.com/preset/credits/internal/domain/pool"
	"github.com/preset/credits/internal/domain/refund"
	"github.com/preset/credits/internal/domain/task"
	"github.com/preset/credits/internal/shared/cache"
	"github.com/preset/credits/internal/shared/config"
	"github.com/preset/credits/internal/shared/database"
	"github.com/preset/credits/internal/shared/logger"
	"github.com/preset/credits/internal/shared/metrics"
	"github.com/preset/credits/internal/shared/middleware"
)

// App wires configuration, storage, domains and the HTTP surface.
type App struct {
	config  *config.Config
	db      *gorm.DB
	redis   *redislib.Client
	router  *gin.Engine
	logger  *zap.Logger
	metrics *metrics.Metrics

	ledgerDomain *ledger.Domain
	taskDomain   *task.Domain
	refundDomain *refund.Domain
	poolDomain   *pool.Domain
}

// New creates a new application instance.
func New(cfg *config.Config) (*App, error) {
	log, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	app := &App{
		config:  cfg,
		logger:  log,
		metrics: metrics.New("preset_credits"),
	}

	db, err := database.New(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	app.db = db

	if err := postgres.Migrate(db); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := postgres.SeedRefundPolicies(ctx, db); err != nil {
		return nil, err
	}
	if err := postgres.SeedCreditPool(ctx, db, cfg.Provider.Name); err != nil {
		return nil, err
	}

	redisClient, err := cache.NewRedisClient(&cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("init redis: %w", err)
	}
	app.redis = redisClient

	app.initDomains()
	app.router = app.setupRouter()

	return app, nil
}

// initDomains builds the adapter and domain graph.
func (a *App) initDomains() {
	stores := postgres.NewStores(a.db)
	uow := postgres.NewUnitOfWork(a.db)
	alerts := postgres.NewAlertAdapter(a.db)
	policies := postgres.NewRefundPolicyAdapter(a.db)
	estimate := creditsredis.NewPoolEstimateCache(a.redis)

	balanceClient := provider.NewBalanceClient(
		&http.Client{Timeout: a.config.Provider.SyncTimeout},
		&a.config.Provider,
	)

	a.ledgerDomain = ledger.NewLedgerDomain(uow, stores, a.metrics, a.logger)
	a.poolDomain = pool.NewPoolDomain(stores, balanceClient, estimate, alerts, &a.config.Provider, a.metrics, a.logger)
	a.refundDomain = refund.NewRefundDomain(uow, stores, policies, &a.config.Provider, a.metrics, a.logger)
	a.taskDomain = task.NewTaskDomain(uow, stores, alerts, estimate, a.refundDomain, a.poolDomain, &a.config.Provider, a.metrics, a.logger)
}

// setupRouter creates and configures the Gin router.
func (a *App) setupRouter() *gin.Engine {
	if a.config.Log.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	r.Use(middleware.Recovery(a.logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.Logging(a.logger))
	r.Use(middleware.Metrics(a.metrics))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
		MaxAge:           12 * time.Hour,
		AllowCredentials: false,
	}))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	{
		creditshttp.NewLedgerHandler(a.ledgerDomain).RegisterRoutes(api)
		creditshttp.NewTaskHandler(a.taskDomain).RegisterRoutes(api)
		refundHandler := creditshttp.NewRefundHandler(a.refundDomain)
		refundHandler.RegisterRoutes(api)

		admin := api.Group("/admin")
		{
			refundHandler.RegisterAdminRoutes(admin)
			creditshttp.NewPoolHandler(a.poolDomain).RegisterAdminRoutes(admin)
		}
	}

	return r
}

// Router returns the configured HTTP router.
func (a *App) Router() *gin.Engine {
	return a.router
}

// Start launches background work: the pool reconciliation loop.
func (a *App) Start() {
	a.poolDomain.Start()
	a.logger.Info("pool reconciler started",
		zap.String("provider", a.config.Provider.Name),
		zap.Duration("interval", a.config.Provider.SyncInterval),
	)
}

// Stop releases application resources.
func (a *App) Stop() {
	a.poolDomain.Stop()

	if err := cache.Close(a.redis); err != nil {
		a.logger.Warn("redis close failed", zap.Error(err))
	}
	if err := database.Close(a.db); err != nil {
		a.logger.Warn("database close failed", zap.Error(err))
	}

	_ = a.logger.Sync()
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}
