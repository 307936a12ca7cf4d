package infra

import (
	"context"
	"fmt"
	"sync"
	"time"

	"marketplace-gateway/middleware/ratelimit/domain"
)

// MemoryWindowStore é o mesmo sliding log do RedisWindowStore, só que em memória.
// Útil para testes e desenvolvimento; não é compartilhado entre processos.
type MemoryWindowStore struct {
	mu      sync.Mutex
	entries map[string]*windowEntry
	now     func() time.Time

	cleanupEvery time.Duration
}

type windowEntry struct {
	hits   []time.Time // ordenado, mais antigo primeiro
	expire time.Time
}

type MemoryWindowOption func(*MemoryWindowStore)

func WithMemoryClock(now func() time.Time) MemoryWindowOption {
	return func(s *MemoryWindowStore) {
		if now != nil {
			s.now = now
		}
	}
}

func WithWindowCleanupEvery(d time.Duration) MemoryWindowOption {
	return func(s *MemoryWindowStore) { s.cleanupEvery = d }
}

func NewMemoryWindowStore(opts ...MemoryWindowOption) *MemoryWindowStore {
	s := &MemoryWindowStore{
		entries:      make(map[string]*windowEntry),
		now:          time.Now,
		cleanupEvery: time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Check implementa domain.CounterStore.
func (s *MemoryWindowStore) Check(_ context.Context, namespace string, key domain.Key, limit int, window time.Duration) (domain.Verdict, error) {
	if limit <= 0 {
		return domain.Verdict{}, fmt.Errorf("limit must be positive, got %d", limit)
	}
	if window <= 0 {
		return domain.Verdict{}, fmt.Errorf("window must be positive, got %s", window)
	}

	now := s.now()
	id := namespace + ":" + string(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	ent, ok := s.entries[id]
	if !ok {
		ent = &windowEntry{}
		s.entries[id] = ent
	}
	ent.evict(now.Add(-window))

	v := domain.Verdict{}
	if len(ent.hits) < limit {
		ent.hits = append(ent.hits, now)
		ent.expire = now.Add(window)
		v.Allowed = true
		v.Remaining = limit - len(ent.hits)
	}

	v.Reset = now.Add(window)
	if len(ent.hits) > 0 {
		v.Reset = ent.hits[0].Add(window)
	}
	return v, nil
}

// evict remove os hits com instante <= cutoff (mesma regra do script Redis).
func (e *windowEntry) evict(cutoff time.Time) {
	idx := 0
	for idx < len(e.hits) && !e.hits[idx].After(cutoff) {
		idx++
	}
	if idx > 0 {
		e.hits = e.hits[idx:]
	}
}

// Cleanup remove entradas expiradas (equivalente ao TTL do Redis).
func (s *MemoryWindowStore) Cleanup() {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, ent := range s.entries {
		if !ent.expire.After(now) {
			delete(s.entries, k)
		}
	}
}

// Len devolve o número de chaves vivas.
func (s *MemoryWindowStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// StartJanitor roda Cleanup periodicamente até o contexto encerrar.
func (s *MemoryWindowStore) StartJanitor(ctx DoneContext) {
	startJanitor(ctx, s.cleanupEvery, s.Cleanup)
}
