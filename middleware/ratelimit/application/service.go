package application

import (
	"context"
	"fmt"
	"sync"
	"time"

	"marketplace-gateway/middleware/ratelimit/domain"

	"go.uber.org/zap"
)

// DisabledNotice avisa uma única vez que o rate limit está desligado.
// É estado do processo, injetado no Factory (e não uma variável global).
type DisabledNotice struct {
	once   sync.Once
	logger *zap.Logger
}

func NewDisabledNotice(logger *zap.Logger) *DisabledNotice {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DisabledNotice{logger: logger}
}

func (n *DisabledNotice) Warn() {
	if n == nil {
		return
	}
	n.once.Do(func() {
		n.logger.Warn("rate limiting disabled: counter store is not configured")
	})
}

// Factory monta limiters a partir de políticas.
//
// Sem Store (nil) todos os limiters deixam passar (fail-open): throttling é
// defesa em profundidade e a ausência dele não pode bloquear tráfego legítimo.
type Factory struct {
	Store  domain.CounterStore
	Notice *DisabledNotice
	Logger *zap.Logger
	Now    func() time.Time
}

func (f *Factory) logger() *zap.Logger {
	if f.Logger == nil {
		return zap.NewNop()
	}
	return f.Logger
}

func (f *Factory) now() time.Time {
	if f.Now == nil {
		return time.Now()
	}
	return f.Now()
}

// Enabled informa se existe store configurado.
func (f *Factory) Enabled() bool { return f.Store != nil }

// New devolve o limiter da política. Deve ser chamado na inicialização.
func (f *Factory) New(p domain.Policy) domain.Limiter {
	if f.Store == nil {
		f.Notice.Warn()
		return domain.LimiterFunc(func(context.Context, domain.Key) (domain.Result, error) {
			return f.pass(p), nil
		})
	}

	return &limiter{f: f, policy: p, namespace: p.Namespace()}
}

// pass é o resultado de "não consultou o store".
func (f *Factory) pass(p domain.Policy) domain.Result {
	return domain.Result{
		Success:   true,
		Limit:     p.Limit(),
		Remaining: p.Limit(),
		Reset:     f.now().Unix() + int64(p.WindowSeconds()),
	}
}

type limiter struct {
	f         *Factory
	policy    domain.Policy
	namespace string
}

func (l *limiter) Limit(ctx context.Context, key domain.Key) (domain.Result, error) {
	key = key.Normalize()
	if key == "" {
		return l.f.pass(l.policy), nil
	}

	v, err := l.f.Store.Check(ctx, l.namespace, key, l.policy.Limit(), l.policy.Window())
	if err != nil {
		return l.onStoreError(err)
	}
	return l.result(v), nil
}

func (l *limiter) result(v domain.Verdict) domain.Result {
	now := l.f.now().Unix()
	reset := epochSecondsCeil(v.Reset)

	res := domain.Result{
		Success:   v.Allowed,
		Limit:     l.policy.Limit(),
		Remaining: max(v.Remaining, 0),
		Reset:     reset,
	}
	if !v.Allowed {
		res.Remaining = 0
		// nunca 0 numa negação: 0 significa "sucesso" no contrato
		res.RetryAfter = int(max(reset-now, 1))
	}
	return res
}

func (l *limiter) onStoreError(err error) (domain.Result, error) {
	log := l.f.logger().With(
		zap.String("namespace", l.namespace),
		zap.Stringer("mode", l.policy.OnStoreError()),
		zap.Error(err),
	)

	switch l.policy.OnStoreError() {
	case domain.StoreErrorOpen:
		log.Warn("rate limit store failed, allowing request")
		return l.f.pass(l.policy), nil
	case domain.StoreErrorClosed:
		log.Warn("rate limit store failed, rejecting request")
		window := l.policy.WindowSeconds()
		return domain.Result{
			Success:    false,
			Limit:      l.policy.Limit(),
			Remaining:  0,
			Reset:      l.f.now().Unix() + int64(window),
			RetryAfter: window,
		}, nil
	default:
		return domain.Result{}, fmt.Errorf("check %s: %w", l.namespace, err)
	}
}

// epochSecondsCeil arredonda para cima: o reset nunca é anterior ao real.
func epochSecondsCeil(t time.Time) int64 {
	ms := t.UnixMilli()
	sec := ms / 1000
	if ms%1000 > 0 {
		sec++
	}
	return sec
}
