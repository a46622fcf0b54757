package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-redis/redis/v8"

	"github.com/logiclinic/logiclinic-backend/internal/stock/cache"
	"github.com/logiclinic/logiclinic-backend/internal/stock/consumers"
	"github.com/logiclinic/logiclinic-backend/internal/stock/events"
	"github.com/logiclinic/logiclinic-backend/internal/stock/handler"
	"github.com/logiclinic/logiclinic-backend/internal/stock/repository"
	"github.com/logiclinic/logiclinic-backend/internal/stock/service"
	"github.com/logiclinic/logiclinic-backend/pkg/config"
	"github.com/logiclinic/logiclinic-backend/pkg/database"
	"github.com/logiclinic/logiclinic-backend/pkg/httputil"
	"github.com/logiclinic/logiclinic-backend/pkg/logger"
	"github.com/logiclinic/logiclinic-backend/pkg/messaging"
)

func main() {
	// Load configuration with validation (fails fast in production if required config is missing)
	cfg, err := config.LoadWithValidation("stock-service")
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New("stock-service", cfg.Server.Environment)
	log.Info().Msg("starting Stock Service")

	// Connect to database
	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	// Connect to RabbitMQ
	rmq, err := messaging.New(&cfg.RabbitMQ, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
	}
	defer rmq.Close()

	// Initialize event publisher
	publisher, err := events.NewStockEventPublisher(rmq, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create event publisher")
	}

	// Connect to Redis for the drug cache. The cache degrades to
	// in-process only if Redis is unreachable.
	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis unreachable, drug cache runs in-process only")
			redisClient = nil
		}
	}
	drugCache := cache.NewDrugCache(redisClient, cfg.Redis.CacheTTL, log)

	// Initialize repositories
	drugRepo := repository.NewDrugRepository(db)
	lotRepo := repository.NewLotRepository(db)
	movementRepo := repository.NewMovementRepository(db)
	transferRepo := repository.NewTransferRepository(db)
	dispensationRepo := repository.NewDispensationRepository(db)
	lossReturnRepo := repository.NewLossReturnRepository(db)
	alertRepo := repository.NewAlertRepository(db)
	auditRepo := repository.NewAuditTrailRepository(db)

	// Initialize services
	auditService := service.NewAuditService(auditRepo, log)
	alertService := service.NewAlertService(drugRepo, lotRepo, alertRepo, publisher, auditService, cfg.Stock.ExpiryWarningDays, log)
	catalogService := service.NewCatalogService(drugRepo, drugCache, publisher, auditService, log)
	stockService := service.NewStockService(db, drugRepo, lotRepo, movementRepo, publisher, alertService, auditService, log)
	transferService := service.NewTransferService(db, transferRepo, lotRepo, movementRepo, publisher, auditService, log)
	dispensationService := service.NewDispensationService(db, dispensationRepo, drugRepo, lotRepo, movementRepo, publisher, alertService, auditService, log)
	lossReturnService := service.NewLossReturnService(db, lossReturnRepo, lotRepo, movementRepo, publisher, alertService, auditService, log)
	statsService := service.NewStatsService(lotRepo, alertRepo, transferRepo, dispensationRepo, movementRepo, cfg.Stock.ExpiryWarningDays, log)

	// Initialize handlers
	drugHandler := handler.NewDrugHandler(catalogService, stockService, log)
	lotHandler := handler.NewLotHandler(stockService, alertService, log)
	transferHandler := handler.NewTransferHandler(transferService, log)
	dispensationHandler := handler.NewDispensationHandler(dispensationService, log)
	lossReturnHandler := handler.NewLossReturnHandler(lossReturnService, log)
	alertHandler := handler.NewAlertHandler(alertService, log)
	auditHandler := handler.NewAuditHandler(auditService, log)
	statsHandler := handler.NewStatsHandler(statsService, catalogService, log)

	// Start drug event consumer so cache entries are dropped when a
	// peer instance updates the catalog
	drugConsumer, err := consumers.NewDrugEventConsumer(rmq, drugCache, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create drug event consumer")
	}

	consumerCtx, consumerCancel := context.WithCancel(context.Background())
	defer consumerCancel()

	if err := drugConsumer.Start(consumerCtx); err != nil {
		log.Fatal().Err(err).Msg("failed to start drug event consumer")
	}

	// Create router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RealIP)
	r.Use(httputil.RequestID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))
	r.Use(httputil.CORS())
	r.Use(httputil.Timeout(cfg.Stock.OperationTimeout))
	r.Use(httputil.TenantMiddleware) // Extract tenant context from headers
	r.Use(httputil.ActorMiddleware)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]interface{}{
			"status":   "healthy",
			"service":  "stock-service",
			"database": db.Health(r.Context()),
			"rabbitmq": rmq.Health(),
		})
	})

	// API routes
	r.Route("/api/v1/stock", func(r chi.Router) {
		// Drug catalog
		r.Route("/drugs", func(r chi.Router) {
			r.Get("/", drugHandler.List)
			r.Post("/", drugHandler.Create)
			r.Get("/{id}", drugHandler.Get)
			r.Put("/{id}", drugHandler.Update)
			r.Get("/{id}/availability", drugHandler.Availability)
		})

		// Lots and the movement ledger
		r.Route("/lots", func(r chi.Router) {
			r.Get("/", lotHandler.List)
			r.Post("/receive", lotHandler.Receive)
			r.Get("/{id}", lotHandler.Get)
			r.Post("/{id}/adjust", lotHandler.Adjust)
			r.Post("/expiry-sweep", lotHandler.ExpirySweep)
		})
		r.Get("/movements", lotHandler.ListMovements)

		// Transfer workflow
		r.Route("/transfers", func(r chi.Router) {
			r.Get("/", transferHandler.List)
			r.Post("/", transferHandler.Request)
			r.Post("/direct", transferHandler.Direct)
			r.Get("/{id}", transferHandler.Get)
			r.Post("/{id}/validate", transferHandler.Validate)
			r.Post("/{id}/refuse", transferHandler.Refuse)
			r.Post("/{id}/receive", transferHandler.Receive)
		})

		// Dispensations
		r.Route("/dispensations", func(r chi.Router) {
			r.Get("/", dispensationHandler.List)
			r.Post("/", dispensationHandler.Create)
			r.Get("/{id}", dispensationHandler.Get)
		})

		// Losses and returns
		r.Route("/losses", func(r chi.Router) {
			r.Get("/", lossReturnHandler.List)
			r.Post("/", lossReturnHandler.RecordLoss)
			r.Post("/returns", lossReturnHandler.RecordReturn)
			r.Get("/{id}", lossReturnHandler.Get)
		})

		// Alerts
		r.Route("/alerts", func(r chi.Router) {
			r.Get("/", alertHandler.List)
			r.Post("/recompute/{drugID}", alertHandler.Recompute)
			r.Put("/{id}/resolve", alertHandler.Resolve)
			r.Put("/{id}/ignore", alertHandler.Ignore)
		})

		// Audit trail
		r.Get("/audit", auditHandler.List)
		r.Get("/audit/{type}/{id}", auditHandler.ListByEntity)

		// Dashboard
		r.Get("/dashboard/stats", statsHandler.Dashboard)
		r.Get("/dashboard/cache", statsHandler.CacheStats)
	})

	// Create server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server
	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	if redisClient != nil {
		redisClient.Close()
	}

	log.Info().Msg("server stopped")
}
