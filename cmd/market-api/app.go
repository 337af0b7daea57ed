package main

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"carbon-scribe/credit-market/credit-market-backend/internal/audit"
	"carbon-scribe/credit-market/credit-market-backend/internal/auth"
	"carbon-scribe/credit-market/credit-market-backend/internal/config"
	"carbon-scribe/credit-market/credit-market-backend/internal/journal"
	"carbon-scribe/credit-market/credit-market-backend/internal/ledger"
	"carbon-scribe/credit-market/credit-market-backend/internal/market"
	"carbon-scribe/credit-market/credit-market-backend/internal/notifications/sns"
	"carbon-scribe/credit-market/credit-market-backend/internal/notifications/websocket"
	"carbon-scribe/credit-market/credit-market-backend/internal/projects"
	"carbon-scribe/credit-market/credit-market-backend/internal/reports"
	"carbon-scribe/credit-market/credit-market-backend/internal/validators"
)

// app is the wired service. Close releases everything newApp started.
type app struct {
	router  *gin.Engine
	engine  *market.Engine
	closers []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	// Registries and ledger
	store := projects.NewStore(cfg.Market.RegistryOwner, logger)
	registry := validators.NewRegistry(cfg.Market.RegistryOwner, logger)
	for _, v := range cfg.Market.Validators {
		if err := registry.AddValidator(cfg.Market.RegistryOwner, v); err != nil {
			return nil, fmt.Errorf("failed to register validator %s: %w", v, err)
		}
	}
	credits := ledger.NewLedger(cfg.Market.EngineAddress, logger)

	// Settlement engine
	engine, err := market.NewEngine(market.Config{
		Address:          cfg.Market.EngineAddress,
		UnitPrice:        cfg.Market.UnitPrice,
		CollateralMarkup: cfg.Market.CollateralMarkup,
		PenaltySink:      cfg.Market.PenaltySink,
	}, store, credits, registry, logger)
	if err != nil {
		return nil, err
	}
	a.engine = engine

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	engine.SetMetrics(market.NewMetrics(promRegistry))

	authenticator := auth.NewAuthenticator(cfg.Security.JWTSecret, cfg.Security.TokenTTL)
	authHandler := auth.NewHandler(authenticator)
	requireCaller := authHandler.RequireCaller()

	// Setup Router
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger), cors())
	api := router.Group("/api/v1")

	auth.RegisterRoutes(api, authHandler)
	projects.NewHandler(store, logger).RegisterRoutes(api, requireCaller)
	validators.NewHandler(registry, logger).RegisterRoutes(api, requireCaller)
	ledger.NewHandler(credits, logger).RegisterRoutes(api, requireCaller)
	market.NewHandler(engine, logger).RegisterRoutes(api, requireCaller)
	statements := reports.NewHandler(store, engine, logger)
	statements.RegisterRoutes(api)

	// Event fan-out
	if cfg.Database.Driver != "" {
		db, err := sqlx.Connect(cfg.Database.Driver, cfg.Database.GetDatabaseURL())
		if err != nil {
			return nil, fmt.Errorf("failed to connect to journal database: %w", err)
		}
		a.closers = append(a.closers, func() { db.Close() })
		if cfg.Database.MaxConnections > 0 {
			db.SetMaxOpenConns(cfg.Database.MaxConnections)
		}
		if cfg.Database.MaxIdleConns > 0 {
			db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
		}
		if cfg.Database.MaxLifetime > 0 {
			db.SetConnMaxLifetime(cfg.Database.MaxLifetime)
		}

		repo := journal.NewRepository(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		engine.Subscribe(journal.NewRecorder(repo, logger))
		journal.NewHandler(repo, logger).RegisterRoutes(api)
		logger.Info("Event journal enabled", zap.String("driver", cfg.Database.Driver))
	}

	if cfg.Notifications.WebsocketEnabled {
		feed := websocket.NewManager(logger)
		a.closers = append(a.closers, feed.Close)
		engine.Subscribe(feed)
		api.GET("/ws", feed.Handle)
	}

	if cfg.Notifications.SNSTopicARN != "" {
		publisher, err := sns.NewFromConfig(ctx, cfg.Notifications.AWSRegion, cfg.Notifications.SNSTopicARN, logger)
		if err != nil {
			return nil, err
		}
		engine.Subscribe(publisher)
		logger.Info("SNS fan-out enabled", zap.String("topic", cfg.Notifications.SNSTopicARN))
	}

	if cfg.Reports.ArchiveBucket != "" {
		archiver, err := reports.NewS3Archiver(ctx, statements, cfg.Notifications.AWSRegion,
			cfg.Reports.ArchiveBucket, cfg.Reports.ArchivePrefix, logger)
		if err != nil {
			return nil, err
		}
		engine.Subscribe(archiver)
		logger.Info("Statement archiving enabled", zap.String("bucket", cfg.Reports.ArchiveBucket))
	}

	auditor, err := audit.NewAuditor(engine, cfg.Audit.Schedule, logger)
	if err != nil && cfg.Audit.Enabled {
		return nil, err
	}
	if auditor != nil {
		auditor.RegisterRoutes(api)
		if cfg.Audit.Enabled {
			if err := auditor.Start(); err != nil {
				return nil, err
			}
			a.closers = append(a.closers, auditor.Stop)
		}
	}

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{})))
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":    "healthy",
			"projects":  store.NumProjects(),
			"supply":    credits.TotalSupply(),
			"timestamp": time.Now(),
		})
	})

	a.router = router
	return a, nil
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("Request handled",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

// CORS Middleware
func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
