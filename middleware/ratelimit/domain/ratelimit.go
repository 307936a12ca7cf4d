package domain

// Camada de domínio do rate limit.
//
// Regras e contratos (interfaces/tipos) sem dependência de net/http.

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultBucketID é usado quando a política não define bucket.
const DefaultBucketID = "default"

var (
	ErrInvalidPolicy    = errors.New("ratelimit: invalid policy")
	ErrStoreUnavailable = errors.New("ratelimit: counter store unavailable")
)

type Key string

// Normalize remove espaços; chave vazia significa "sem chave" (pula o tier).
func (k Key) Normalize() Key { return Key(strings.TrimSpace(string(k))) }

func (k Key) Empty() bool { return k.Normalize() == "" }

// StoreErrorMode define o que fazer quando o counter store falha numa chamada.
type StoreErrorMode int

const (
	// StoreErrorPropagate devolve o erro para quem chamou (o middleware responde 503).
	StoreErrorPropagate StoreErrorMode = iota
	// StoreErrorOpen deixa passar.
	StoreErrorOpen
	// StoreErrorClosed bloqueia como se o limite tivesse estourado.
	StoreErrorClosed
)

func (m StoreErrorMode) String() string {
	switch m {
	case StoreErrorOpen:
		return "open"
	case StoreErrorClosed:
		return "closed"
	default:
		return "propagate"
	}
}

// ParseStoreErrorMode aceita "open", "closed" ou "propagate" (padrão).
func ParseStoreErrorMode(s string) StoreErrorMode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "open", "fail-open", "fail_open":
		return StoreErrorOpen
	case "closed", "fail-closed", "fail_closed":
		return StoreErrorClosed
	default:
		return StoreErrorPropagate
	}
}

// Policy é uma regra (limit, janela, namespace). Imutável depois de construída.
type Policy struct {
	limit         uint
	windowSeconds uint
	prefix        string
	bucketID      string
	onStoreError  StoreErrorMode
}

type PolicyOption func(*Policy)

// WithBucket separa contadores que compartilham limit/janela.
func WithBucket(id string) PolicyOption {
	return func(p *Policy) {
		if id = strings.TrimSpace(id); id != "" {
			p.bucketID = id
		}
	}
}

func WithStoreErrorMode(m StoreErrorMode) PolicyOption {
	return func(p *Policy) { p.onStoreError = m }
}

func NewPolicy(limit, windowSeconds uint, prefix string, opts ...PolicyOption) (Policy, error) {
	p := Policy{
		limit:         limit,
		windowSeconds: windowSeconds,
		prefix:        strings.TrimSpace(prefix),
		bucketID:      DefaultBucketID,
	}
	for _, opt := range opts {
		opt(&p)
	}
	if p.limit == 0 {
		return Policy{}, fmt.Errorf("%w: limit must be > 0", ErrInvalidPolicy)
	}
	if p.windowSeconds == 0 {
		return Policy{}, fmt.Errorf("%w: window must be > 0", ErrInvalidPolicy)
	}
	if p.prefix == "" {
		return Policy{}, fmt.Errorf("%w: prefix is required", ErrInvalidPolicy)
	}
	return p, nil
}

// MustPolicy é NewPolicy para políticas fixas em tempo de inicialização.
func MustPolicy(limit, windowSeconds uint, prefix string, opts ...PolicyOption) Policy {
	p, err := NewPolicy(limit, windowSeconds, prefix, opts...)
	if err != nil {
		panic(err)
	}
	return p
}

func (p Policy) Limit() int { return int(p.limit) }
func (p Policy) WindowSeconds() int { return int(p.windowSeconds) }
func (p Policy) Window() time.Duration { return time.Duration(p.windowSeconds) * time.Second }
func (p Policy) Prefix() string { return p.prefix }
func (p Policy) BucketID() string { return p.bucketID }
func (p Policy) OnStoreError() StoreErrorMode { return p.onStoreError }

var namespaceEscaper = strings.NewReplacer("%", "%25", ":", "%3A")

// Namespace codifica os quatro campos da política. Prefix e bucket são escapados,
// então políticas diferentes nunca compartilham contador.
func (p Policy) Namespace() string {
	return strings.Join([]string{
		"rl",
		namespaceEscaper.Replace(p.prefix),
		namespaceEscaper.Replace(p.bucketID),
		strconv.FormatUint(uint64(p.limit), 10),
		strconv.FormatUint(uint64(p.windowSeconds), 10),
	}, ":")
}

func (p Policy) String() string { return p.Namespace() }

// Result é o resultado de uma avaliação (efêmero, nada fica local).
type Result struct {
	Success    bool
	Limit      int
	Remaining  int
	Reset      int64 // epoch em segundos
	RetryAfter int   // segundos; 0 quando Success
}

// ResetTime devolve Reset como time.Time (UTC).
func (r Result) ResetTime() time.Time { return time.Unix(r.Reset, 0).UTC() }

// Verdict é a resposta crua do counter store.
type Verdict struct {
	Allowed   bool
	Remaining int
	Reset     time.Time
}

// CounterStore é o sliding window counter compartilhado (ex: Redis).
//
// Check precisa ser atômico entre processos: incrementa (se couber) e lê na
// mesma operação.
type CounterStore interface {
	Check(ctx context.Context, namespace string, key Key, limit int, window time.Duration) (Verdict, error)
}

// Limiter avalia uma chave contra uma política já configurada.
type Limiter interface {
	Limit(ctx context.Context, key Key) (Result, error)
}

type LimiterFunc func(ctx context.Context, key Key) (Result, error)

func (f LimiterFunc) Limit(ctx context.Context, key Key) (Result, error) { return f(ctx, key) }
