package domain

import (
	"context"
	"time"
)

// StatsEvent é uma decisão de um tier, sem nada de HTTP além de Method/Path.
// Key e Path têm cardinalidade alta: quem persiste decide se guarda.
type StatsEvent struct {
	Namespace string
	Prefix    string
	Key       Key
	Allowed   bool

	Method string
	Path   string

	At time.Time
}

// StatsStore recebe as decisões. Erro aqui nunca muda a resposta da request.
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}
