package ratelimit

import (
	"net/http"
	"time"

	"marketplace-gateway/middleware/ratelimit/application"
	"marketplace-gateway/middleware/ratelimit/domain"
	"marketplace-gateway/middleware/ratelimit/infra"

	"go.uber.org/zap"
)

const ErrorOverloaded = "overloaded"

type ConcurrencyOptions struct {
	Max            int
	RejectStatus   int
	AcquireTimeout time.Duration
	Logger         *zap.Logger

	// Pool substitui o semáforo padrão (testes).
	Pool domain.SlotPool
}

// ConcurrencyMiddleware limita quantas requests o upstream atende ao mesmo tempo.
// Sem vaga dentro de AcquireTimeout responde RejectStatus (503 por padrão).
func ConcurrencyMiddleware(opts ConcurrencyOptions) func(next http.Handler) http.Handler {
	if opts.Max <= 0 && opts.Pool == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusServiceUnavailable
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	pool := opts.Pool
	if pool == nil {
		pool = infra.NewChanPool(opts.Max)
	}

	guard := application.SlotGuard{Pool: pool, Wait: opts.AcquireTimeout}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			release, err := guard.Enter(r.Context())
			if err != nil {
				opts.Logger.Warn(err.Error(),
					zap.String("path", r.URL.Path),
					zap.Duration("timeout", opts.AcquireTimeout),
				)
				writeJSON(w, opts.RejectStatus, map[string]string{"error": ErrorOverloaded})
				return
			}
			defer release()

			next.ServeHTTP(w, r)
		})
	}
}
