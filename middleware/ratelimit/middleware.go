package ratelimit

import (
	"context"
	"net/http"
	"time"

	"marketplace-gateway/middleware/ratelimit/domain"

	"go.uber.org/zap"
)

// UserIDFunc resolve o usuário da request ("" = anônimo). Pode fazer I/O
// (lookup de sessão).
type UserIDFunc func(r *http.Request) (string, error)

// LimitedEvent é passado para OnLimited antes do 429 (ex: log de auditoria).
type LimitedEvent struct {
	Request *http.Request
	UserID  string
	IP      string
	Key     string
	Result  domain.Result
}

type LimitedFunc func(ctx context.Context, ev LimitedEvent)

type Options struct {
	Limiter   domain.Limiter
	MakeKey   KeyFunc
	GetUserID UserIDFunc
	OnLimited LimitedFunc

	// Policy só é usada para identificar o tier em logs/estatísticas.
	Policy domain.Policy
	Stats  domain.StatsStore
	Logger *zap.Logger

	// ResolveIP substitui ClientIP (ex: para ignorar cabeçalhos de proxy).
	ResolveIP func(r *http.Request) string
}

// WithRateLimit envolve next com um tier de rate limit.
//
// Tiers se compõem aninhando: o externo roda primeiro. A ordem só muda quem
// é descartado mais cedo, não o resultado final, já que todos precisam passar.
func WithRateLimit(next http.Handler, opts Options) http.Handler {
	return Middleware(opts)(next)
}

func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.ResolveIP == nil {
		opts.ResolveIP = ClientIP
	}
	if opts.MakeKey == nil {
		opts.MakeKey = ByIP()
	}
	tier := opts.Policy.Prefix()
	log := opts.Logger.With(zap.String("tier", tier))

	return func(next http.Handler) http.Handler {
		if opts.Limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r, rc := withRequestContext(r, opts.ResolveIP)

			userID := ""
			if opts.GetUserID != nil {
				userID = rc.userID(r, opts.GetUserID, log)
			}

			keys := normalizeKeys(opts.MakeKey(r, userID, rc.ip))
			var last *domain.Result

			// sequencial: a primeira chave que falha encerra (AND)
			for _, key := range keys {
				res, err := opts.Limiter.Limit(r.Context(), domain.Key(key))
				if err != nil {
					log.Error("rate limit check failed", zap.String("path", r.URL.Path), zap.Error(err))
					writeUnavailable(w)
					return
				}
				recordStats(r, opts, key, res.Success, log)

				if !res.Success {
					if opts.OnLimited != nil {
						opts.OnLimited(r.Context(), LimitedEvent{
							Request: r,
							UserID:  userID,
							IP:      rc.ip,
							Key:     key,
							Result:  res,
						})
					}
					writeLimited(w, res)
					return
				}
				last = &res
			}

			if last != nil {
				setRateLimitHeaders(w.Header(), *last)
			}
			next.ServeHTTP(w, r)
		})
	}
}

func recordStats(r *http.Request, opts Options, key string, allowed bool, log *zap.Logger) {
	if opts.Stats == nil {
		return
	}
	err := opts.Stats.Record(r.Context(), domain.StatsEvent{
		Namespace: opts.Policy.Namespace(),
		Prefix:    opts.Policy.Prefix(),
		Key:       domain.Key(key),
		Allowed:   allowed,
		Method:    r.Method,
		Path:      r.URL.Path,
		At:        time.Now(),
	})
	if err != nil {
		log.Debug("rate limit stats record failed", zap.Error(err))
	}
}

// requestContext guarda IP e usuário resolvidos uma vez por request,
// compartilhados entre os tiers aninhados.
type requestContext struct {
	ip string

	userResolved bool
	user         string
}

type requestContextKey struct{}

func withRequestContext(r *http.Request, resolve func(*http.Request) string) (*http.Request, *requestContext) {
	if rc, ok := r.Context().Value(requestContextKey{}).(*requestContext); ok {
		return r, rc
	}
	rc := &requestContext{ip: resolve(r)}
	return r.WithContext(context.WithValue(r.Context(), requestContextKey{}, rc)), rc
}

func (rc *requestContext) userID(r *http.Request, fn UserIDFunc, log *zap.Logger) string {
	if rc.userResolved {
		return rc.user
	}
	id, err := fn(r)
	if err != nil {
		// sem identidade cai nos tiers de anônimo (mais restritivos)
		log.Warn("user id lookup failed, treating request as anonymous", zap.Error(err))
		return ""
	}
	rc.user = id
	rc.userResolved = true
	return id
}

// RequestIdentity devolve o IP e o usuário já resolvidos pelos tiers para
// esta request (para uso do handler final).
func RequestIdentity(ctx context.Context) (ip, userID string, ok bool) {
	rc, found := ctx.Value(requestContextKey{}).(*requestContext)
	if !found {
		return "", "", false
	}
	return rc.ip, rc.user, true
}
