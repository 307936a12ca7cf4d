// Package application monta limiters a partir de políticas (Factory) e controla
// as vagas de concorrência (SlotGuard).
//
// Depende só de domain e não conhece net/http: Factory.New(policy) devolve um
// domain.Limiter e Limit(ctx, key) devolve o Result (sucesso, remaining, reset,
// retry-after).
package application
