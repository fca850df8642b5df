// cmd/worker-manager/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/EditMuse/EditMuse-sub002/internal/common/camunda"
	"github.com/EditMuse/EditMuse-sub002/internal/common/config"
	"github.com/EditMuse/EditMuse-sub002/internal/common/database"
	commonhttp "github.com/EditMuse/EditMuse-sub002/internal/common/http"
	"github.com/EditMuse/EditMuse-sub002/internal/common/logger"
	"github.com/EditMuse/EditMuse-sub002/internal/common/observability"
	"github.com/EditMuse/EditMuse-sub002/internal/ranking/cache"
	"github.com/EditMuse/EditMuse-sub002/internal/ranking/engine"
	"github.com/EditMuse/EditMuse-sub002/internal/ranking/provider"
	rp "github.com/EditMuse/EditMuse-sub002/internal/workers/catalog/rank-products"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	defer zapLog.Sync()

	log := logger.NewZapAdapter(zapLog)

	if err := run(cfg, log); err != nil {
		zapLog.Fatal("worker manager failed", zap.Error(err))
	}
	zapLog.Info("Worker manager stopped gracefully")
}

func run(cfg *config.Config, log logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("Starting worker manager", map[string]interface{}{
		"app":         cfg.App.Name,
		"version":     cfg.App.Version,
		"environment": cfg.App.Environment,
		"provider":    cfg.APIs.Provider,
	})

	obs := observability.New(cfg.App.Name)
	defer obs.Shutdown()

	client, err := buildProvider(ctx, cfg)
	if err != nil {
		return err
	}

	opts := []engine.Option{engine.WithObservability(obs)}

	rankCfg := engine.ConfigFrom(cfg.Ranking, cfg.Cache)

	var cachePing redisPinger
	if cfg.Cache.Enabled {
		var redisClient *database.RedisClient
		redisClient, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			// The cache is optional; ranking proceeds without it.
			log.Warn("Outcome cache disabled", map[string]interface{}{"error": err.Error()})
		} else {
			defer redisClient.Close()
			cachePing = redisClient

			gateway := cache.NewRedisGateway(redisClient.GetClient(), cfg.Cache.KeyPrefix)
			writer := cache.NewAsyncWriter(gateway, rankCfg.CacheTTL, cfg.Cache.QueueSize, log)
			defer writer.Close()

			opts = append(opts, engine.WithCache(gateway, writer))
			log.Info("Outcome cache enabled", map[string]interface{}{
				"address": cfg.Database.Redis.Address,
				"ttl":     rankCfg.CacheTTL.String(),
			})
		}
	}

	ranker := engine.New(rankCfg, client, log, opts...)

	zeebe, err := camunda.NewClient(ctx, camunda.ConfigFrom(cfg.Camunda), log)
	if err != nil {
		return err
	}
	defer func() {
		if err := zeebe.Close(); err != nil {
			log.Error("Error closing Zeebe client", map[string]interface{}{"error": err.Error()})
		}
	}()

	handler, err := rp.NewHandler(rp.HandlerOptions{
		AppConfig:     cfg,
		Ranker:        ranker,
		Observability: obs,
		Logger:        log,
	})
	if err != nil {
		return fmt.Errorf("failed to create %s handler: %w", rp.TaskType, err)
	}

	wcfg := handler.Config()
	jobWorker := zeebe.StartWorker(rp.TaskType, camunda.WorkerOptions{
		Enabled:       wcfg.Enabled,
		MaxJobsActive: wcfg.MaxJobsActive,
		Timeout:       wcfg.Timeout,
		Name:          cfg.App.Name,
	}, handler.Handle)
	defer jobWorker.Close()

	server := &http.Server{
		Addr:              cfg.Metrics.Address,
		Handler:           newHealthMux(zeebe, cachePing),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("Health/Metrics server listening", map[string]interface{}{"address": server.Addr})
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("health/metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutdown signal received, stopping workers", nil)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func buildProvider(ctx context.Context, cfg *config.Config) (provider.Client, error) {
	g := cfg.APIs.GenAI
	switch cfg.APIs.Provider {
	case config.ProviderGenAI:
		client, err := provider.NewGenAIClient(ctx, provider.GenAIConfig{
			APIKey:      g.APIKey,
			Model:       g.Model,
			Temperature: g.Temperature,
			MaxTokens:   g.MaxTokens,
			BaseURL:     g.BaseURL,
		})
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		// Attempt deadlines come from the engine's context.
		maxTimeout := config.GetDuration(cfg.Ranking.MaxTimeout) + 5*time.Second
		return provider.NewHTTPClient(provider.HTTPConfig{
			BaseURL:     g.BaseURL,
			APIKey:      g.APIKey,
			Model:       g.Model,
			Temperature: g.Temperature,
			MaxTokens:   g.MaxTokens,
		}, commonhttp.NewClient(maxTimeout)), nil
	}
}
