package infra

import (
	"context"
	"sort"
	"strings"
	"sync"

	"marketplace-gateway/middleware/ratelimit/domain"
)

type Counters struct {
	Allowed int64 `json:"allowed"`
	Denied  int64 `json:"denied"`
}

func (c *Counters) add(allowed bool) {
	if allowed {
		c.Allowed++
		return
	}
	c.Denied++
}

// MemoryStatsStore guarda as mesmas agregações do RedisStatsStore, mas só
// neste processo e sem expiração (desenvolvimento, testes, cmd/example-server).
type MemoryStatsStore struct {
	mu       sync.Mutex
	total    Counters
	byRoute  map[string]Counters
	byPolicy map[string]Counters
	denied   map[string]map[string]int64 // namespace -> chave -> negações

	trackKeys bool
}

type MemoryStatsOption func(*MemoryStatsStore)

func WithTrackKeys(track bool) MemoryStatsOption {
	return func(s *MemoryStatsStore) { s.trackKeys = track }
}

func NewMemoryStatsStore(opts ...MemoryStatsOption) *MemoryStatsStore {
	s := &MemoryStatsStore{
		byRoute:  make(map[string]Counters),
		byPolicy: make(map[string]Counters),
		denied:   make(map[string]map[string]int64),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	route := strings.TrimSpace(ev.Method + " " + ev.Path)
	policy := strings.TrimSpace(ev.Prefix)
	key := strings.TrimSpace(string(ev.Key))

	s.mu.Lock()
	defer s.mu.Unlock()

	s.total.add(ev.Allowed)
	if route != "" {
		bump(s.byRoute, route, ev.Allowed)
	}
	if policy != "" {
		bump(s.byPolicy, policy, ev.Allowed)
	}
	if s.trackKeys && !ev.Allowed && key != "" {
		keys := s.denied[ev.Namespace]
		if keys == nil {
			keys = make(map[string]int64)
			s.denied[ev.Namespace] = keys
		}
		keys[key]++
	}
	return nil
}

func bump(m map[string]Counters, k string, allowed bool) {
	c := m[k]
	c.add(allowed)
	m[k] = c
}

func (s *MemoryStatsStore) Total() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

// ByRoute agrupa por "<METHOD> <path>".
func (s *MemoryStatsStore) ByRoute() map[string]Counters { return s.snapshot(s.byRoute) }

// ByPolicy agrupa pelo prefix da política (ex: "chat:send:user").
func (s *MemoryStatsStore) ByPolicy() map[string]Counters { return s.snapshot(s.byPolicy) }

// TopDenied devolve as n chaves mais negadas do namespace, da maior para a menor.
func (s *MemoryStatsStore) TopDenied(namespace string, n int) []KeyCount {
	s.mu.Lock()
	out := make([]KeyCount, 0, len(s.denied[namespace]))
	for k, c := range s.denied[namespace] {
		out = append(out, KeyCount{Key: k, Denied: c})
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Denied != out[j].Denied {
			return out[i].Denied > out[j].Denied
		}
		return out[i].Key < out[j].Key
	})
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

func (s *MemoryStatsStore) snapshot(src map[string]Counters) map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Counters, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
