package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"marketplace-gateway/internal/config"
	"marketplace-gateway/internal/identity"
	"marketplace-gateway/internal/logger"
	"marketplace-gateway/internal/policies"
	"marketplace-gateway/middleware/ratelimit"
	"marketplace-gateway/middleware/ratelimit/application"
	"marketplace-gateway/middleware/ratelimit/domain"
	"marketplace-gateway/middleware/ratelimit/infra"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(config.String("LOG_LEVEL", "info"))
	defer func() { _ = log.Sync() }()

	cfg, err := readConfig()
	if err != nil {
		log.Fatal("config error", zap.Error(err))
	}

	target, err := url.Parse(cfg.upstreamURL)
	if err != nil {
		log.Fatal("invalid UPSTREAM_URL", zap.Error(err))
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		log.Warn("proxy error", zap.String("path", r.URL.Path), zap.Error(err))
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// contador distribuído; sem Redis o Factory deixa tudo passar (fail-open)
	var rdb *redis.Client
	var store domain.CounterStore
	if cfg.redisURL != "" {
		rdb, err = infra.NewRedisClient(cfg.redisURL, cfg.redisToken)
		if err != nil {
			log.Fatal("redis client", zap.Error(err))
		}
		defer func() { _ = rdb.Close() }()

		pingCtx, cancelPing := context.WithTimeout(ctx, 2*time.Second)
		err = rdb.Ping(pingCtx).Err()
		cancelPing()
		if err != nil {
			// sobe mesmo assim: cada política decide o que fazer com a falha
			log.Error("redis ping failed", zap.Error(err))
		}
		store = infra.NewRedisWindowStore(rdb)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	stats := infra.FanoutStats{infra.NewPrometheusStats(reg)}
	if cfg.statsEnabled {
		if rdb == nil {
			log.Fatal("RATE_STATS_ENABLED requires RATE_LIMIT_REDIS_URL")
		}
		stats = append(stats, infra.NewRedisStatsStore(
			rdb,
			infra.WithStatsPrefix(cfg.statsPrefix),
			infra.WithStatsTTL(cfg.statsTTL),
			infra.WithStatsBucket(cfg.statsBucket),
			infra.WithStatsTrackKeys(cfg.statsTrackKeys),
		))
	}

	resolveIP := ratelimit.ClientIP
	if !cfg.trustProxyHeaders {
		resolveIP = func(r *http.Request) string { return ratelimit.ResolveIP(nil, r.RemoteAddr) }
	}

	var getUserID ratelimit.UserIDFunc
	if cfg.jwtSecret != "" {
		opts := []identity.Option{identity.WithCookie(cfg.jwtCookie)}
		if cfg.jwtIssuer != "" {
			opts = append(opts, identity.WithIssuer(cfg.jwtIssuer))
		}
		getUserID = identity.NewJWTResolver(cfg.jwtSecret, opts...).UserID
	}

	notice := application.NewDisabledNotice(log)
	factory := &application.Factory{Store: store, Notice: notice, Logger: log}

	builder, err := policies.NewBuilder(policies.Deps{
		Factory:   factory,
		GetUserID: getUserID,
		OnLimited: auditLimited(log),
		Stats:     stats,
		Logger:    log,
		ResolveIP: resolveIP,
	}, policies.Catalog())
	if err != nil {
		log.Fatal("rate limit policies", zap.Error(err))
	}

	// tier de borda, local ao processo, atrás dos tiers de rota
	upstream := http.Handler(proxy)
	if cfg.edgeEnabled {
		edgeStore := infra.NewTokenBucketStore(infra.WithIdleTTL(cfg.edgeIdleTTL))
		edgeStore.StartJanitor(ctx)

		edge := domain.MustPolicy(cfg.edgeLimit, cfg.edgeWindowSec, "edge", domain.WithStoreErrorMode(domain.StoreErrorOpen))
		edgeFactory := &application.Factory{Store: edgeStore, Notice: notice, Logger: log}
		upstream = ratelimit.WithRateLimit(upstream, ratelimit.Options{
			Limiter:   edgeFactory.New(edge),
			MakeKey:   ratelimit.ByIPOr("anonymous"),
			Policy:    edge,
			Stats:     stats,
			Logger:    log,
			ResolveIP: resolveIP,
		})
	}
	upstream = ratelimit.ConcurrencyMiddleware(ratelimit.ConcurrencyOptions{
		Max:            cfg.concurrencyMax,
		AcquireTimeout: cfg.concurrencyTimeout,
		Logger:         log,
	})(upstream)

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	builder.Mount(mux, upstream)
	mux.Handle("/", upstream)

	srv := &http.Server{
		Addr:              cfg.listenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("gateway listening",
		zap.String("addr", cfg.listenAddr),
		zap.Stringer("upstream", target),
		zap.Bool("rate_limit_enabled", factory.Enabled()),
		zap.Int("endpoints", len(builder.Endpoints())),
		zap.Bool("edge_enabled", cfg.edgeEnabled),
		zap.Bool("stats_redis", cfg.statsEnabled),
		zap.Int("concurrency_max", cfg.concurrencyMax),
	)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("server error", zap.Error(err))
	}
}

// auditLimited registra cada 429 (chave, usuário e IP) para auditoria.
func auditLimited(log *zap.Logger) ratelimit.LimitedFunc {
	return func(_ context.Context, ev ratelimit.LimitedEvent) {
		log.Info("request rate limited",
			zap.String("method", ev.Request.Method),
			zap.String("path", ev.Request.URL.Path),
			zap.String("key", ev.Key),
			zap.String("user_id", ev.UserID),
			zap.String("ip", ev.IP),
			zap.Int("limit", ev.Result.Limit),
			zap.Int("retry_after", ev.Result.RetryAfter),
		)
	}
}

type gatewayConfig struct {
	listenAddr         string
	upstreamURL        string
	trustProxyHeaders  bool
	concurrencyMax     int
	concurrencyTimeout time.Duration

	redisURL   string
	redisToken string

	jwtSecret string
	jwtCookie string
	jwtIssuer string

	edgeEnabled   bool
	edgeLimit     uint
	edgeWindowSec uint
	edgeIdleTTL   time.Duration

	statsEnabled   bool
	statsPrefix    string
	statsTTL       time.Duration
	statsBucket    string
	statsTrackKeys bool
}

func readConfig() (gatewayConfig, error) {
	cfg := gatewayConfig{
		listenAddr:         config.String("LISTEN_ADDR", ":8080"),
		upstreamURL:        config.String("UPSTREAM_URL", ""),
		trustProxyHeaders:  config.Bool("TRUST_PROXY_HEADERS", true),
		concurrencyMax:     config.Int("CONCURRENCY_MAX", 100),
		concurrencyTimeout: config.Duration("CONCURRENCY_TIMEOUT", 0),

		redisURL:   config.String("RATE_LIMIT_REDIS_URL", ""),
		redisToken: config.String("RATE_LIMIT_REDIS_TOKEN", ""),

		jwtSecret: config.String("SESSION_JWT_SECRET", ""),
		jwtCookie: config.String("SESSION_COOKIE", "session"),
		jwtIssuer: config.String("SESSION_JWT_ISSUER", ""),

		edgeEnabled:   config.Bool("RATE_EDGE_ENABLED", false),
		edgeLimit:     config.PositiveUint("RATE_EDGE_LIMIT", 120),
		edgeWindowSec: config.PositiveUint("RATE_EDGE_WINDOW_SEC", 60),
		edgeIdleTTL:   config.Duration("RATE_EDGE_IDLE_TTL", 15*time.Minute),

		statsEnabled:   config.Bool("RATE_STATS_ENABLED", false),
		statsPrefix:    config.String("RATE_STATS_PREFIX", "ratelimit:stats"),
		statsTTL:       config.Duration("RATE_STATS_TTL", 24*time.Hour),
		statsBucket:    config.String("RATE_STATS_BUCKET", "minute"),
		statsTrackKeys: config.Bool("RATE_STATS_TRACK_KEYS", false),
	}

	if strings.TrimSpace(cfg.upstreamURL) == "" {
		return gatewayConfig{}, errors.New("UPSTREAM_URL is required")
	}
	if cfg.concurrencyMax < 0 {
		return gatewayConfig{}, errors.New("CONCURRENCY_MAX must be >= 0")
	}
	return cfg, nil
}
