package application

import (
	"context"
	"sync"
	"time"

	"marketplace-gateway/middleware/ratelimit/domain"
)

// SlotGuard controla a entrada no upstream, sem saber nada sobre HTTP.
type SlotGuard struct {
	Pool domain.SlotPool

	// Wait <= 0 espera até o ctx da request encerrar.
	Wait time.Duration
}

// Enter ocupa uma vaga. O release devolvido pode ser chamado mais de uma vez;
// só a primeira chamada libera.
func (g SlotGuard) Enter(ctx context.Context) (func(), error) {
	if g.Pool == nil {
		return func() {}, nil
	}

	if g.Wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.Wait)
		defer cancel()
	}

	release, ok := g.Pool.Acquire(ctx)
	if !ok {
		return nil, domain.ErrNoSlot
	}

	var once sync.Once
	return func() { once.Do(release) }, nil
}
