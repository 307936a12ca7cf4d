// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Exemplos:
//   - RedisWindowStore: sliding window distribuído (sorted set + Lua) no Redis
//   - MemoryWindowStore: o mesmo algoritmo em memória, para dev e testes
//   - TokenBucketStore: token bucket local (golang.org/x/time/rate) para o tier de borda
//   - Stats*: estatísticas de decisão em memória, Redis e Prometheus
//   - ChanPool: semáforo simples para limite de concorrência
package infra
