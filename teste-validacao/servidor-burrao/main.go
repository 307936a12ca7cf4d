package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"marketplace-gateway/internal/config"
	"marketplace-gateway/internal/logger"

	"go.uber.org/zap"
)

// Backend falso do marketplace para validar o gateway na mão:
//
//	UPSTREAM_URL=http://localhost:9090 go run ./cmd/gateway
//	for i in $(seq 1 7); do curl -si -XPOST localhost:8080/api/phone/request | head -1; done
func main() {
	log := logger.New("debug")
	defer func() { _ = log.Sync() }()

	mux := http.NewServeMux()
	mux.HandleFunc("/api/", func(w http.ResponseWriter, r *http.Request) {
		log.Info("upstream hit",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("x_forwarded_for", r.Header.Get("X-Forwarded-For")),
		)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok":   true,
			"path": r.URL.Path,
			"at":   time.Now().UTC().Format(time.RFC3339),
		})
	})

	addr := config.String("LISTEN_ADDR", ":9090")
	log.Info("fake marketplace backend listening", zap.String("addr", addr))

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("server error", zap.Error(err))
	}
}
