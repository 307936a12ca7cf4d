// Package ratelimit fornece adapters HTTP (net/http) para rate limit e limite de concorrência.
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos do domínio (sem dependência de net/http)
//   - application: Factory (política -> limiter, fail-open sem store) e concorrência
//   - infra: sliding window no Redis/memória, token bucket local, estatísticas
//   - ratelimit (este pacote): middlewares HTTP, resolução de IP, chaves e o contrato 429
//
// Fluxo de um tier:
//
//  1. Resolve o IP do cliente (X-Forwarded-For, X-Real-IP, ... , conexão)
//  2. Resolve o usuário, se o tier tiver GetUserID
//  3. MakeKey devolve as chaves; nenhuma chave = tier ignorado
//  4. Avalia as chaves em ordem; a primeira que falha responde 429
//  5. Tudo ok: headers RateLimit-* e chama o próximo handler
//
// Tiers são empilhados aninhando WithRateLimit, o mais externo roda primeiro:
//
//	h := ratelimit.WithRateLimit(core, ratelimit.Options{Limiter: perUser, MakeKey: ratelimit.ByUser(), GetUserID: ids})
//	h = ratelimit.WithRateLimit(h, ratelimit.Options{Limiter: perIP, MakeKey: ratelimit.ByIP()})
package ratelimit
