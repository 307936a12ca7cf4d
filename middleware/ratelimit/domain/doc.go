// Package domain define contratos e tipos de domínio para rate limit e concorrência.
//
// Policy, Result e Verdict descrevem uma regra de sliding window e o seu
// resultado; CounterStore e Limiter são as portas implementadas por infra e
// application. Este pacote não depende de net/http nem de implementações concretas.
package domain
