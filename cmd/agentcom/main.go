// Package main is the entry point for the AgentCom coordination hub.
// One binary hosts the task queue, the agent registry, the scheduler and
// the WebSocket/HTTP gateway over a shared event bus.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/agentcom/agentcom/internal/agent"
	"github.com/agentcom/agentcom/internal/common/config"
	"github.com/agentcom/agentcom/internal/common/httpmw"
	"github.com/agentcom/agentcom/internal/common/logger"
	"github.com/agentcom/agentcom/internal/gateway/rest"
	gateways "github.com/agentcom/agentcom/internal/gateway/websocket"
	"github.com/agentcom/agentcom/internal/metrics"
	"github.com/agentcom/agentcom/internal/queue"
	"github.com/agentcom/agentcom/internal/scheduler"
	"github.com/agentcom/agentcom/internal/storage"
	"github.com/agentcom/agentcom/internal/tracing"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize logger
	log, err := logger.NewLogger(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: cfg.Logging.OutputPath,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetDefault(log)

	log.Info("Starting AgentCom hub...")

	// 3. Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 4. Initialize event bus (in-memory by default, NATS if configured)
	eventBus, busCleanup, err := provideEventBus(cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize event bus", zap.Error(err))
	}
	defer func() {
		if err := busCleanup(); err != nil {
			log.Error("Event bus close error", zap.Error(err))
		}
	}()

	// 5. Open the durable store
	store, storeCleanup, err := storage.Provide(cfg.Storage, log)
	if err != nil {
		log.Fatal("Failed to open storage", zap.Error(err))
	}
	defer func() {
		if err := storeCleanup(); err != nil {
			log.Error("Storage close error", zap.Error(err))
		}
	}()
	log.Info("Storage ready", zap.String("driver", cfg.Storage.Driver))

	// 6. Task queue
	queueSvc, err := queue.NewService(store, eventBus, log, queue.Options{
		DefaultMaxRetries:    cfg.Coordination.DefaultMaxRetries,
		OverdueSweepInterval: cfg.Coordination.OverdueSweepInterval(),
	})
	if err != nil {
		log.Fatal("Failed to initialize task queue", zap.Error(err))
	}

	// 7. Agent registry (the queue reclaims tasks held by dead agents)
	registry := agent.NewRegistry(queueSvc, eventBus, log, agent.Options{
		AcceptanceTimeout: cfg.Coordination.AcceptanceTimeout(),
		StaleThreshold:    cfg.Coordination.AgentStaleThreshold(),
		ReaperInterval:    cfg.Coordination.ReaperInterval(),
	})

	// 8. Routing (repo registry, endpoints, resolver, limiter, cooldowns)
	routes, err := provideRouting(cfg, store, log)
	if err != nil {
		log.Fatal("Failed to initialize routing", zap.Error(err))
	}

	// 9. Scheduler
	sched := scheduler.New(
		queueSvc,
		registry,
		routes.Resolver,
		routes.Limiter,
		routes.Repos,
		routes.Endpoints,
		eventBus,
		log,
		scheduler.Options{
			StuckSweepInterval: cfg.Coordination.StuckSweepInterval(),
			StuckThreshold:     cfg.Coordination.StuckThreshold(),
			TTLSweepInterval:   cfg.Coordination.TTLSweepInterval(),
			TaskTTL:            cfg.Coordination.TaskTTL(),
			FallbackWait:       cfg.Coordination.FallbackWait(),
		},
	)
	if err := sched.Start(ctx); err != nil {
		log.Fatal("Failed to start scheduler", zap.Error(err))
	}
	log.Info("Scheduler started")

	// 10. Metrics watcher folds bus events into Prometheus collectors
	metricsWatcher := metrics.NewWatcher(eventBus, queueSvc, registry, log)
	if err := metricsWatcher.Start(); err != nil {
		log.Fatal("Failed to start metrics watcher", zap.Error(err))
	}

	// 11. WebSocket gateway for agent sessions
	gateway := gateways.NewGateway(
		gateways.Deps{
			Queue:     queueSvc,
			Registry:  registry,
			Cooldowns: routes.Cooldowns,
			Auth:      &gateways.StaticTokenValidator{Token: cfg.Auth.AgentToken},
			EventBus:  eventBus,
			Resources: metricsWatcher,
		},
		gateways.Options{
			HeartbeatInterval:  cfg.Coordination.HeartbeatInterval(),
			PongWait:           cfg.Coordination.PongWait(),
			ViolationThreshold: cfg.Coordination.ViolationThreshold,
			ViolationWindow:    cfg.Coordination.ViolationWindow(),
			WakeMaxAttempts:    cfg.Coordination.WakeMaxAttempts,
		},
		log,
	)
	if err := gateway.Start(); err != nil {
		log.Fatal("Failed to start WebSocket gateway", zap.Error(err))
	}

	// 12. Background sweeps (overdue tasks, stale agents)
	sweeps, sweepCtx := errgroup.WithContext(ctx)
	sweeps.Go(func() error { return queueSvc.RunOverdueSweep(sweepCtx) })
	sweeps.Go(func() error { return registry.RunReaper(sweepCtx) })

	// ============================================
	// HTTP SERVER (WebSocket + HTTP endpoints)
	// ============================================
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())
	router.Use(httpmw.RequestLogger(log, "hub"))
	router.Use(httpmw.OtelTracing("agentcom"))

	// WebSocket endpoint - agent realtime transport
	gateway.SetupRoutes(router)

	// Submission and admin API
	configTable, err := store.Table(storage.TableConfig)
	if err != nil {
		log.Fatal("Failed to open config table", zap.Error(err))
	}
	rest.RegisterRoutes(router, queueSvc, registry, configTable, log)

	// Health check for load balancers/monitoring. Every operation
	// persists before replying, so an unreachable store means the hub
	// cannot make progress.
	router.GET("/healthz", func(c *gin.Context) {
		if err := store.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "degraded",
				"service": "agentcom",
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": "agentcom",
		})
	})

	// Prometheus scrape endpoint
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeoutDuration(),
		WriteTimeout: cfg.Server.WriteTimeoutDuration(),
	}

	// Start server
	go func() {
		log.Info("Hub listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	log.Info("API configured",
		zap.String("websocket", "/ws"),
		zap.String("http", "/api/v1"),
		zap.String("health", "/healthz"),
		zap.String("metrics", "/metrics"),
	)

	// ============================================
	// GRACEFUL SHUTDOWN
	// ============================================
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down AgentCom...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}

	gateway.Stop()

	if err := sched.Stop(); err != nil {
		log.Error("Scheduler stop error", zap.Error(err))
	}

	metricsWatcher.Stop()

	if err := sweeps.Wait(); err != nil {
		log.Error("Background sweep error", zap.Error(err))
	}

	if err := queueSvc.Sync(shutdownCtx); err != nil {
		log.Error("Queue sync error", zap.Error(err))
	}

	if err := tracing.Shutdown(shutdownCtx); err != nil {
		log.Error("Tracing shutdown error", zap.Error(err))
	}

	log.Info("AgentCom stopped")
}
