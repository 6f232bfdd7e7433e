package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"medidispatch/internal/config"
	handlers "medidispatch/internal/handlers/shared"
	"medidispatch/internal/middleware"
	"medidispatch/internal/models"
	"medidispatch/internal/repositories/interfaces"
	"medidispatch/internal/repositories/memory"
	"medidispatch/internal/repositories/mongodb"
	"medidispatch/internal/services"
	"medidispatch/pkg/cache"
	"medidispatch/pkg/database"
	"medidispatch/pkg/logger"
	"medidispatch/pkg/maps"
	"medidispatch/pkg/push"
	"medidispatch/pkg/sms"
	"medidispatch/pkg/websocket"
	"medidispatch/routes"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLogger, err := logger.NewLogger(&logger.Config{
		Level:   logger.LogLevel(cfg.App.LogLevel),
		Format:  cfg.App.LogFormat,
		Output:  "stdout",
		AppName: cfg.App.Name,
		Version: cfg.App.Version,
	})
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	if err := run(cfg, appLogger); err != nil {
		appLogger.WithError(err).Fatal("Server stopped with error")
	}
}

type repositories struct {
	calls      interfaces.CallRepository
	transports interfaces.TransportRepository
	vehicles   interfaces.VehicleRepository
	drivers    interfaces.DriverRepository
	operators  interfaces.OperatorRepository
	routes     interfaces.RouteRepository
	alerts     interfaces.TrafficAlertRepository
	auditLogs  interfaces.AuditLogRepository

	tx    services.Transactor
	ready readinessChecks
}

func run(cfg *config.Config, appLogger *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisCache := connectRedis(ctx, cfg.Redis, appLogger)
	if redisCache != nil {
		defer redisCache.Close()
	}

	repos, closeStore, err := openRepositories(cfg, redisCache, appLogger)
	if err != nil {
		return err
	}
	defer closeStore()

	hub := websocket.NewHub(appLogger)
	wsHandler := websocket.NewHandler(hub)

	dispatchCfg := cfg.Dispatch
	now := time.Now
	retries := dispatchCfg.TransitionRetries

	notifier := services.NewNotificationService(services.NotificationOptions{
		Console:          wsHandler,
		SMS:              newSMSProvider(ctx, cfg.SMS, appLogger),
		Push:             newPushProviders(ctx, cfg.Push, appLogger),
		Drivers:          repos.drivers,
		SupervisorPhones: dispatchCfg.SupervisorPhones,
	}, appLogger, now)
	defer notifier.Wait()

	var queue services.PendingQueue
	if redisCache != nil {
		queue = services.NewRedisQueue(redisCache)
	} else {
		queue = services.NewMemoryQueue()
	}

	ids := services.NewIDGenerator(redisCache, dispatchCfg.IDSequenceTTL, now, appLogger)
	audit := services.NewAuditService(repos.auditLogs, redisCache, appLogger, now)
	registry := services.NewRegistryService(repos.vehicles, repos.drivers, audit, appLogger, now, retries)
	planner := services.NewRoutePlanner(repos.routes, repos.alerts, ids, audit, notifier, appLogger, now, dispatchCfg.AverageSpeedKMH, retries)
	matcher := services.NewDispatchMatcher(repos.vehicles, repos.drivers, notifier, appLogger, now, dispatchCfg.ReservationAttempts, retries)
	balancer := services.NewOperatorBalancer(repos.operators, repos.calls, queue, ids, audit, notifier, appLogger, now, retries)
	lifecycle := services.NewLifecycleService(services.LifecycleDeps{
		Calls:      repos.calls,
		Transports: repos.transports,
		Vehicles:   repos.vehicles,
		Drivers:    repos.drivers,
		Matcher:    matcher,
		Balancer:   balancer,
		Planner:    planner,
		Audit:      audit,
		Notifier:   notifier,
		Tx:         repos.tx,
	}, dispatchCfg, appLogger, now)
	intake := services.NewIntakeService(repos.calls, repos.transports, ids, lifecycle, balancer, audit, newGeocoder(cfg.Maps, appLogger), appLogger, now)
	traffic := services.NewTrafficService(repos.alerts, planner, ids, audit, notifier, dispatchCfg, appLogger, now)
	stats := services.NewStatsService(repos.calls, repos.transports, queue, planner, dispatchCfg, now)
	sweeper := services.NewEscalationSweeper(services.SweeperDeps{
		Calls:      repos.calls,
		Transports: repos.transports,
		Alerts:     repos.alerts,
		Lifecycle:  lifecycle,
		Traffic:    traffic,
	}, dispatchCfg.SweepInterval, appLogger)

	router := newRouter(cfg, appLogger, routes.Handlers{
		Calls:      handlers.NewCallHandler(intake, lifecycle, audit),
		Transports: handlers.NewTransportHandler(intake, lifecycle, audit),
		Fleet:      handlers.NewFleetHandler(registry, lifecycle),
		Operators:  handlers.NewOperatorHandler(balancer),
		Routes:     handlers.NewRouteHandler(planner),
		Alerts:     handlers.NewAlertHandler(traffic),
		Stats:      handlers.NewStatsHandler(stats, sweeper),
	}, wsHandler, repos.ready)

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.App.Host, cfg.App.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		sweeper.Run(gctx)
		return nil
	})
	g.Go(func() error {
		traffic.RunExpiryLoop(gctx, dispatchCfg.AlertExpiryInterval)
		return nil
	})
	g.Go(func() error {
		appLogger.WithField("addr", server.Addr).Info("Starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		appLogger.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func newRouter(cfg *config.Config, appLogger *logger.Logger, h routes.Handlers, ws *websocket.Handler, ready readinessChecks) *gin.Engine {
	if !cfg.App.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(middleware.RecoveryMiddleware(appLogger))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggingMiddleware(appLogger))
	router.Use(middleware.CORSMiddleware(cfg.App.CORSOrigins))

	routes.SetupDispatchRoutes(router.Group("/api/v1"), h)

	if cfg.WebSocket.Enabled {
		router.GET(cfg.WebSocket.Path, ws.HandleWebSocket)
	}

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":            "healthy",
			"version":           cfg.App.Version,
			"console_listeners": ws.GetHub().ClientCount(),
		})
	})
	router.GET("/ready", readyHandler(ready))

	return router
}

// readinessChecks maps a backing store name to its ping.
type readinessChecks map[string]func(ctx context.Context) error

// readyHandler answers 503 while any backing store fails its ping.
func readyHandler(checks readinessChecks) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := http.StatusOK
		stores := make(map[string]string, len(checks))
		for name, ping := range checks {
			if err := ping(c.Request.Context()); err != nil {
				status = http.StatusServiceUnavailable
				stores[name] = err.Error()
				continue
			}
			stores[name] = "ok"
		}

		state := "ready"
		if status != http.StatusOK {
			state = "unavailable"
		}
		c.JSON(status, gin.H{"status": state, "stores": stores})
	}
}

// openRepositories returns the MongoDB-backed store, or the in-memory one
// when MongoDB is disabled.
func openRepositories(cfg *config.Config, redisCache *cache.RedisCache, appLogger *logger.Logger) (*repositories, func(), error) {
	if !cfg.Database.Enabled {
		appLogger.Warn("MongoDB disabled, using in-memory repositories")
		return &repositories{
			calls:      memory.NewCallRepository(),
			transports: memory.NewTransportRepository(),
			vehicles:   memory.NewVehicleRepository(),
			drivers:    memory.NewDriverRepository(),
			operators:  memory.NewOperatorRepository(),
			routes:     memory.NewRouteRepository(),
			alerts:     memory.NewTrafficAlertRepository(),
			auditLogs:  memory.NewAuditLogRepository(),
			ready:      redisReadiness(redisCache),
		}, func() {}, nil
	}

	db, err := database.NewMongoDB(&database.DatabaseConfig{
		URI:            cfg.Database.URI,
		Database:       cfg.Database.Database,
		MaxPoolSize:    cfg.Database.MaxPoolSize,
		MinPoolSize:    cfg.Database.MinPoolSize,
		ConnectTimeout: cfg.Database.ConnectTimeout,
		SocketTimeout:  cfg.Database.SocketTimeout,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if cfg.Database.RunMigrations {
		if err := database.NewMigrator(db.Database, appLogger).Up(); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	var vehicleCache interfaces.CacheService
	if redisCache != nil {
		vehicleCache = redisCache
	}

	ready := redisReadiness(redisCache)
	ready["mongodb"] = db.Ping

	var tx services.Transactor
	if cfg.Database.Transactions {
		tx = db
	}

	closeDB := func() {
		if err := db.Close(); err != nil {
			appLogger.WithError(err).Error("Failed to close MongoDB")
		}
	}
	return &repositories{
		calls:      mongodb.NewCallRepository(db),
		transports: mongodb.NewTransportRepository(db),
		vehicles:   mongodb.NewVehicleRepository(db, vehicleCache),
		drivers:    mongodb.NewDriverRepository(db),
		operators:  mongodb.NewOperatorRepository(db),
		routes:     mongodb.NewRouteRepository(db),
		alerts:     mongodb.NewTrafficAlertRepository(db),
		auditLogs:  mongodb.NewAuditLogRepository(db),
		tx:         tx,
		ready:      ready,
	}, closeDB, nil
}

func redisReadiness(redisCache *cache.RedisCache) readinessChecks {
	checks := readinessChecks{}
	if redisCache != nil {
		checks["redis"] = redisCache.Ping
	}
	return checks
}

// connectRedis returns nil when Redis is disabled or unreachable; the
// services then fall back to process-local sequences and queues.
func connectRedis(ctx context.Context, cfg *config.RedisConfig, appLogger *logger.Logger) *cache.RedisCache {
	if !cfg.Enabled {
		return nil
	}
	redisCache, err := cache.NewRedisCache(&cache.RedisConfig{
		Host:         cfg.Host,
		Port:         cfg.Port,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		IdleTimeout:  cfg.IdleTimeout,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
	if err == nil {
		err = redisCache.Ping(ctx)
	}
	if err != nil {
		appLogger.WithError(err).Warn("Redis unavailable, running without shared cache")
		return nil
	}
	return redisCache
}

func newSMSProvider(ctx context.Context, cfg *config.SMSConfig, appLogger *logger.Logger) sms.SMSProvider {
	switch cfg.Provider {
	case "twilio":
		return sms.NewTwilioProvider(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken, cfg.Twilio.FromNumber)
	case "aws_sns":
		provider, err := sms.NewAWSSNSProvider(ctx, cfg.AWS.Region, cfg.AWS.SenderID)
		if err != nil {
			appLogger.WithError(err).Error("Failed to initialise AWS SNS, supervisor paging disabled")
			return nil
		}
		return provider
	case "":
		return nil
	default:
		appLogger.WithField("provider", cfg.Provider).Warn("Unknown SMS provider, supervisor paging disabled")
		return nil
	}
}

func newPushProviders(ctx context.Context, cfg *config.PushConfig, appLogger *logger.Logger) map[models.DevicePlatform]push.PushProvider {
	providers := make(map[models.DevicePlatform]push.PushProvider)

	if cfg.FCM.Credentials != "" {
		fcm, err := push.NewFCMProvider(ctx, cfg.FCM.Credentials)
		if err != nil {
			appLogger.WithError(err).Error("Failed to initialise FCM")
		} else {
			providers[models.DevicePlatformAndroid] = fcm
		}
	}

	if cfg.APNS.KeyFile != "" {
		apns, err := push.NewAPNSProvider(cfg.APNS.KeyFile, cfg.APNS.KeyID, cfg.APNS.TeamID, cfg.APNS.BundleID, cfg.APNS.Production)
		if err != nil {
			appLogger.WithError(err).Error("Failed to initialise APNs")
		} else {
			providers[models.DevicePlatformIOS] = apns
		}
	}

	return providers
}

func newGeocoder(cfg *config.MapsConfig, appLogger *logger.Logger) maps.Geocoder {
	if !cfg.GeocodingEnabled() {
		return nil
	}
	provider, err := maps.NewGoogleMapsProvider(cfg.GoogleMaps.APIKey)
	if err != nil {
		appLogger.WithError(err).Error("Failed to initialise geocoding")
		return nil
	}
	return provider
}
