package infra

import (
	"context"
	"math"
	"sync"
	"time"

	"marketplace-gateway/middleware/ratelimit/domain"

	"golang.org/x/time/rate"
)

// TokenBucketStore é uma implementação de infra baseada em token-bucket
// (x/time/rate) com cache por chave e limpeza periódica.
//
// Não é sliding window: serve para o tier de borda (descarte barato, local ao
// processo) antes de ir ao Redis. limit vira o burst e limit/janela a taxa.
type TokenBucketStore struct {
	mu           sync.Mutex
	entries      map[string]*storeEntry
	idleTTL      time.Duration
	cleanupEvery time.Duration
	now          func() time.Time
}

type storeEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

type StoreOption func(*TokenBucketStore)

func WithIdleTTL(d time.Duration) StoreOption {
	return func(s *TokenBucketStore) { s.idleTTL = d }
}

func WithCleanupEvery(d time.Duration) StoreOption {
	return func(s *TokenBucketStore) { s.cleanupEvery = d }
}

func WithBucketClock(now func() time.Time) StoreOption {
	return func(s *TokenBucketStore) {
		if now != nil {
			s.now = now
		}
	}
}

func NewTokenBucketStore(opts ...StoreOption) *TokenBucketStore {
	s := &TokenBucketStore{
		entries:      make(map[string]*storeEntry),
		idleTTL:      15 * time.Minute,
		cleanupEvery: 2 * time.Minute,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *TokenBucketStore) CleanupEvery() time.Duration { return s.cleanupEvery }

// Check implementa domain.CounterStore.
func (s *TokenBucketStore) Check(_ context.Context, namespace string, key domain.Key, limit int, window time.Duration) (domain.Verdict, error) {
	now := s.now()
	every := rate.Every(window / time.Duration(max(limit, 1)))
	lim := s.get(namespace+":"+string(key), every, limit, now)

	allowed := lim.AllowN(now, 1)
	tokens := lim.TokensAt(now)
	perSec := float64(lim.Limit())

	v := domain.Verdict{Allowed: allowed, Remaining: int(math.Max(0, math.Floor(tokens)))}
	switch {
	case perSec <= 0:
		v.Reset = now.Add(window)
	case allowed:
		// reset = quando o balde volta a ficar cheio
		v.Reset = now.Add(secondsToDuration((float64(limit) - tokens) / perSec))
	default:
		// reset = quando existe 1 token
		v.Reset = now.Add(secondsToDuration((1 - tokens) / perSec))
	}
	return v, nil
}

func (s *TokenBucketStore) get(id string, every rate.Limit, burst int, now time.Time) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ent, ok := s.entries[id]; ok {
		ent.lastSeen = now
		return ent.lim
	}

	lim := rate.NewLimiter(every, burst)
	s.entries[id] = &storeEntry{lim: lim, lastSeen: now}
	return lim
}

func (s *TokenBucketStore) Cleanup() {
	cutoff := s.now().Add(-s.idleTTL)

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, ent := range s.entries {
		if ent.lastSeen.Before(cutoff) {
			delete(s.entries, k)
		}
	}
}

func (s *TokenBucketStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// StartJanitor inicia uma goroutine que limpa chaves inativas periodicamente.
// Pare cancelando o contexto.
func (s *TokenBucketStore) StartJanitor(ctx DoneContext) {
	startJanitor(ctx, s.cleanupEvery, s.Cleanup)
}

func startJanitor(ctx DoneContext, every time.Duration, cleanup func()) {
	if every <= 0 {
		return
	}

	t := time.NewTicker(every)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				cleanup()
			}
		}
	}()
}

func secondsToDuration(sec float64) time.Duration {
	if sec <= 0 {
		return 0
	}
	return time.Duration(math.Ceil(sec * float64(time.Second)))
}

// DoneContext é o mínimo que os janitors precisam de um context.Context.
type DoneContext interface {
	Done() <-chan struct{}
}
