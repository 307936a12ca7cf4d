package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"marketplace-gateway/internal/config"
	"marketplace-gateway/internal/logger"
	"marketplace-gateway/internal/policies"
	"marketplace-gateway/middleware/ratelimit"
	"marketplace-gateway/middleware/ratelimit/application"
	"marketplace-gateway/middleware/ratelimit/infra"

	"go.uber.org/zap"
)

func main() {
	// Exemplo: catálogo aplicado direto no webserver (sem proxy), contador em memória
	_ = config.LoadDotEnv()
	log := logger.New(config.String("LOG_LEVEL", "debug"))
	defer func() { _ = log.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store := infra.NewMemoryWindowStore()
	store.StartJanitor(ctx)
	stats := infra.NewMemoryStatsStore()

	builder, err := policies.NewBuilder(policies.Deps{
		Factory: &application.Factory{Store: store, Logger: log},
		// só para demonstração: o usuário vem de um header sem autenticação
		GetUserID: func(r *http.Request) (string, error) {
			return strings.TrimSpace(r.Header.Get("X-User-Id")), nil
		},
		Stats:  stats,
		Logger: log,
	}, policies.Catalog())
	if err != nil {
		log.Fatal("rate limit policies", zap.Error(err))
	}

	mux := http.NewServeMux()
	builder.Mount(mux, http.HandlerFunc(echo))
	mux.HandleFunc("GET /stats", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"total":    stats.Total(),
			"byPolicy": stats.ByPolicy(),
			"byRoute":  stats.ByRoute(),
		})
	})

	h := ratelimit.ConcurrencyMiddleware(ratelimit.ConcurrencyOptions{Max: 50, Logger: log})(mux)

	addr := config.String("LISTEN_ADDR", ":8081")
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("example server listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("server error", zap.Error(err))
	}
}

func echo(w http.ResponseWriter, r *http.Request) {
	ip, user, _ := ratelimit.RequestIdentity(r.Context())
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"path":   r.URL.Path,
		"ip":     ip,
		"userId": user,
	})
}
