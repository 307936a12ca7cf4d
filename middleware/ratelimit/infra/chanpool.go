package infra

import "context"

// ChanPool é o SlotPool padrão: semáforo em channel com capacidade fixa.
type ChanPool struct {
	slots chan struct{}
}

// NewChanPool cria um pool com `size` vagas (mínimo 1).
func NewChanPool(size int) *ChanPool {
	return &ChanPool{slots: make(chan struct{}, max(size, 1))}
}

// Acquire implementa domain.SlotPool. Um ctx já encerrado nunca ocupa vaga.
func (p *ChanPool) Acquire(ctx context.Context) (func(), bool) {
	if ctx.Err() != nil {
		return nil, false
	}
	select {
	case p.slots <- struct{}{}:
		return func() { <-p.slots }, true
	case <-ctx.Done():
		return nil, false
	}
}

// InUse é o número de vagas ocupadas agora.
func (p *ChanPool) InUse() int { return len(p.slots) }

func (p *ChanPool) Cap() int { return cap(p.slots) }
