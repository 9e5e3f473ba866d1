package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"relaygate-gateway/internal/auth"
	"relaygate-gateway/internal/cache"
	"relaygate-gateway/internal/handlers"
	"relaygate-gateway/internal/httpserver"
	"relaygate-gateway/internal/metrics"
	"relaygate-gateway/internal/suggest"
	"relaygate-gateway/internal/upstream"
	"relaygate-gateway/pkg/logging/logging"
)

type Config struct {
	Port      string `env:"PORT" envDefault:"8080"`
	VersionID string `env:"GATEWAY_VERSION" envDefault:"v1"`

	UpstreamBaseURL string        `env:"UPSTREAM_BASE_URL" envDefault:"http://127.0.0.1:8000"`
	AppName         string        `env:"AGENT_APP_NAME" envDefault:"app"`
	StreamTimeout   time.Duration `env:"UPSTREAM_STREAM_TIMEOUT" envDefault:"120s"`

	// Credential provider: a token endpoint, or a static token for dev.
	TokenURL    string `env:"TOKEN_URL"`
	ServiceKey  string `env:"SERVICE_KEY"`
	StaticToken string `env:"STATIC_TOKEN"`

	// Suggestion enrichment; empty URL disables the suggestions tail.
	SuggestURL     string        `env:"SUGGEST_URL"`
	SuggestTimeout time.Duration `env:"SUGGEST_TIMEOUT" envDefault:"10s"`
	SuggestTTL     time.Duration `env:"SUGGEST_CACHE_TTL" envDefault:"5m"`

	CacheBackend string `env:"CACHE_BACKEND" envDefault:"memory"` // "memory" or "redis"
	RedisAddr    string `env:"REDIS_ADDR" envDefault:"127.0.0.1:6379"`
}

func main() {
	if err := run(); err != nil {
		log.Fatalf("gateway exited with error: %v", err)
	}
}

func run() error {
	// ----- Logger -----
	logger := logging.DefaultLogger()
	defer logger.Sync()

	// ----- Metrics -----
	metrics.Register()

	// ----- Config -----
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return err
	}

	logger.Info("loaded config",
		zap.String("port", cfg.Port),
		zap.String("version_id", cfg.VersionID),
		zap.String("upstream_base_url", cfg.UpstreamBaseURL),
		zap.String("app_name", cfg.AppName),
		zap.String("cache_backend", cfg.CacheBackend),
		zap.Bool("suggestions_enabled", cfg.SuggestURL != ""),
	)

	// ----- Redis client (only if needed) -----
	var redisClient *redis.Client
	if cfg.CacheBackend == "redis" {
		redisClient = redis.NewClient(&redis.Options{
			Addr: cfg.RedisAddr,
		})

		// Fail fast if Redis is misconfigured
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Error("redis connection failed", zap.Error(err))
			return err
		}
		logger.Info("redis connection established",
			zap.String("addr", cfg.RedisAddr),
		)
	}

	// ----- Credential cache -----
	var provider auth.Provider
	if cfg.TokenURL != "" {
		provider = auth.NewHTTPProvider(cfg.TokenURL, cfg.ServiceKey, nil)
	} else {
		logger.Warn("no TOKEN_URL configured, using static token")
		provider = auth.StaticProvider{TokenValue: cfg.StaticToken}
	}
	tokens := auth.NewCache(provider, logger)

	// ----- Upstream client -----
	upstreamClient, err := upstream.NewClient(upstream.Config{
		BaseURL:       cfg.UpstreamBaseURL,
		StreamTimeout: cfg.StreamTimeout,
	}, logger)
	if err != nil {
		return err
	}
	if closer, ok := upstreamClient.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	// ----- Suggestion enrichment (best effort, optional) -----
	var enricher suggest.Provider
	if cfg.SuggestURL != "" {
		httpEnricher, err := suggest.NewHTTPProvider(suggest.HTTPConfig{
			URL:     cfg.SuggestURL,
			Timeout: cfg.SuggestTimeout,
		}, logger)
		if err != nil {
			return err
		}

		store := cache.NewStore(cache.Config{
			Backend: cfg.CacheBackend,
			TTL:     cfg.SuggestTTL,
			Prefix:  "relaygate",
		}, redisClient)
		store = cache.NewLoggingStore(store)

		enricher = suggest.NewCachingProvider(httpEnricher, store, cfg.SuggestTTL, cfg.AppName, cfg.VersionID)
	}

	// ----- Handlers -----
	streamHandler := handlers.NewStreamHandler(tokens, upstreamClient, enricher, cfg.AppName)

	// ----- Router + middleware -----
	r := chi.NewRouter()
	httpserver.SetupRouter(r, logger, streamHandler)

	// ----- HTTP server -----
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// WriteTimeout stays 0: live streams are bounded by the upstream
		// stream deadline, not a flat response timeout.
		IdleTimeout: 60 * time.Second,
	}

	logger.Info("starting gateway",
		zap.String("addr", srv.Addr),
		zap.String("version_id", cfg.VersionID),
	)

	// Start server in background
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", zap.Error(err))
		}
	}()

	// ----- Graceful shutdown -----
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
		return err
	}

	logger.Info("server shutdown complete")
	return nil
}
