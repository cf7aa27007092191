// Package main is the entry point for the semantic cache service
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/developer-mesh/semcache/internal/api"
	"github.com/developer-mesh/semcache/internal/config"
	"github.com/developer-mesh/semcache/internal/embedding"
	"github.com/developer-mesh/semcache/internal/llm"
	"github.com/developer-mesh/semcache/internal/metrics"
	"github.com/developer-mesh/semcache/internal/resilience"
	"github.com/developer-mesh/semcache/internal/service"
	"github.com/developer-mesh/semcache/internal/store"
	"github.com/developer-mesh/semcache/pkg/observability"
)

var (
	// Version information (set via ldflags during build)
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

func main() {
	var showVersion = flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("semcache\nVersion: %s\nBuild Time: %s\nGit Commit: %s\n",
			version, buildTime, gitCommit)
		os.Exit(0)
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger := observability.NewStandardLoggerWithLevel("semcache", observability.ParseLevel(cfg.Service.LogLevel))
	logger.Info("Starting semantic cache service", map[string]interface{}{
		"version":    version,
		"build_time": buildTime,
		"git_commit": gitCommit,
	})

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Prometheus collectors and the stats registry
	prom := metrics.NewPrometheusMetrics()
	registry := metrics.NewRegistryWithPrometheus(prom)

	// Circuit breakers, one per dependency, mirrored into Prometheus
	onStateChange := func(name string, from, to resilience.CircuitBreakerState) {
		prom.SetCircuitBreakerState(name, to == resilience.StateOpen)
	}
	storeBreaker := resilience.NewCircuitBreaker("redis", resilience.CircuitBreakerConfig{
		FailureThreshold:    cfg.CircuitBreakers.Store.FailureThreshold,
		RecoveryTimeout:     cfg.CircuitBreakers.Store.RecoveryTimeout,
		HalfOpenMaxInflight: cfg.CircuitBreakers.Store.HalfOpenMaxInflight,
		OnStateChange:       onStateChange,
	}, logger)
	backendBreaker := resilience.NewCircuitBreaker("backend", resilience.CircuitBreakerConfig{
		FailureThreshold:    cfg.CircuitBreakers.Backend.FailureThreshold,
		RecoveryTimeout:     cfg.CircuitBreakers.Backend.RecoveryTimeout,
		HalfOpenMaxInflight: cfg.CircuitBreakers.Backend.HalfOpenMaxInflight,
		OnStateChange:       onStateChange,
	}, logger)

	// Connect to Redis
	redisClient, err := connectRedis(ctx, cfg.Redis, logger)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error("Failed to close Redis connection", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	// Vector cache store: eviction config is advisory, the index is not
	cacheStore := store.NewRedisStore(redisClient, store.Config{
		IndexName:      cfg.Cache.IndexName,
		KeyPrefix:      cfg.Cache.KeyPrefix,
		Dimensions:     cfg.Cache.Dimensions,
		EvictionPolicy: cfg.Cache.EvictionPolicy,
	}, storeBreaker, logger, prom)
	cacheStore.ConfigureEviction(ctx)
	if err := cacheStore.EnsureIndex(ctx); err != nil {
		log.Fatalf("Failed to ensure vector index: %v", err)
	}

	// Embedding adapter
	embedder := embedding.NewHTTPEmbedder(embedding.Config{
		BaseURL:    cfg.Embedding.BaseURL,
		Dimensions: cfg.Cache.Dimensions,
		Timeout:    cfg.Embedding.Timeout,
	}, logger, prom)

	// Backend adapter
	openaiClient := llm.NewOpenAIClient(llm.ClientConfig{
		BaseURL: cfg.Backend.BaseURL,
		APIKey:  cfg.Backend.APIKey,
		Model:   cfg.Backend.Model,
		Timeout: cfg.Backend.Timeout,
	}, logger)
	backend := llm.NewBackend(openaiClient, backendBreaker, logger)

	// Pipeline
	svc := service.New(embedder, cacheStore, backend, registry, service.Config{
		CoalesceRequests: cfg.Cache.CoalesceRequests,
	}, logger)

	// Request API server
	apiServer := startAPIServer(cfg, svc, logger)

	// Health, readiness and metrics server
	opsServer := startOpsServer(cfg, cacheStore, embedder, logger)

	// Wait for shutdown signal
	sig := <-sigChan
	logger.Info("Received shutdown signal", map[string]interface{}{
		"signal": sig.String(),
	})

	// Graceful shutdown
	logger.Info("Starting graceful shutdown", nil)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Service.ShutdownTimeout)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to shutdown API server", map[string]interface{}{
			"error": err.Error(),
		})
	}
	if err := opsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to shutdown ops server", map[string]interface{}{
			"error": err.Error(),
		})
	}

	cancel()
	logger.Info("Shutdown complete", nil)
}

// connectRedis establishes the Redis connection with exponential-backoff
// retries so the service survives a slower-starting Redis.
func connectRedis(ctx context.Context, cfg config.RedisConfig, logger observability.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Address,
		Password:    cfg.Password,
		DB:          cfg.Database,
		MaxRetries:  cfg.MaxRetries,
		DialTimeout: cfg.DialTimeout,
		PoolSize:    cfg.PoolSize,
	})

	logger.Info("Connecting to Redis", map[string]interface{}{
		"address": cfg.Address,
	})

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 1 * time.Second
	policy.MaxInterval = 10 * time.Second
	policy.MaxElapsedTime = 60 * time.Second

	err := backoff.Retry(func() error {
		pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
		defer pingCancel()

		if err := client.Ping(pingCtx).Err(); err != nil {
			logger.Warn("Redis connection failed, retrying...", map[string]interface{}{
				"error": err.Error(),
			})
			return err
		}
		return nil
	}, backoff.WithContext(policy, ctx))
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Redis connection established", nil)
	return client, nil
}

// startAPIServer starts the request API
func startAPIServer(cfg *config.Config, svc *service.Service, logger observability.Logger) *http.Server {
	// Set Gin mode based on log level
	if cfg.Service.LogLevel == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	handler := api.NewHandler(svc, logger)
	router := api.NewRouter(handler, logger)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Service.Port),
		Handler: router,
	}

	go func() {
		logger.Info("Starting API server", map[string]interface{}{
			"port": cfg.Service.Port,
		})

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("API server error", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	return server
}

// startOpsServer starts the health, readiness and metrics endpoint
func startOpsServer(cfg *config.Config, cacheStore *store.RedisStore, embedder *embedding.HTTPEmbedder, logger observability.Logger) *http.Server {
	mux := http.NewServeMux()

	// Health endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprint(w, "healthy")
	})

	// Ready endpoint: the service can answer only with Redis and the
	// embedding sidecar reachable
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if err := cacheStore.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = fmt.Fprintf(w, "not ready: redis: %v", err)
			return
		}
		if err := embedder.Health(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = fmt.Fprintf(w, "not ready: embedding: %v", err)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprint(w, "ready")
	})

	// Metrics endpoint (Prometheus)
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Service.MetricsPort),
		Handler: mux,
	}

	go func() {
		logger.Info("Starting ops server", map[string]interface{}{
			"port": cfg.Service.MetricsPort,
		})

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Ops server error", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	return server
}
