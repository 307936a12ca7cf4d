package domain

import (
	"context"
	"errors"
)

// ErrNoSlot indica que nenhuma vaga ficou livre antes do prazo.
var ErrNoSlot = errors.New("no concurrency slot available")

// SlotPool é um recurso de capacidade finita (requests simultâneas no upstream).
// Acquire bloqueia até conseguir vaga ou o ctx encerrar.
type SlotPool interface {
	Acquire(ctx context.Context) (release func(), ok bool)
}
