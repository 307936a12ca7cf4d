package infra

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"marketplace-gateway/middleware/ratelimit/domain"

	"github.com/redis/go-redis/v9"
)

// RedisStatsStore agrega decisões no Redis, compartilhado entre instâncias.
//
// Chaves (com prefix "ratelimit:stats"):
//
//	<prefix>:total                 hash allowed/denied, não expira
//	<prefix>:policy:<prefixo>      hash allowed/denied por política, não expira
//	<prefix>:minute:<yyyymmddHHMM> hash "<prefixo>:allowed|denied", expira em ttl
//	<prefix>:route                 hash "<METHOD> <path>:allowed|denied"
//	<prefix>:denied:<namespace>    zset chave -> negações (só com trackKeys), expira em ttl
type RedisStatsStore struct {
	rdb redis.Cmdable

	prefix    string
	ttl       time.Duration
	bucket    string // "minute" (padrão) ou "none"
	trackKeys bool
}

type RedisStatsOption func(*RedisStatsStore)

func WithStatsPrefix(prefix string) RedisStatsOption {
	return func(s *RedisStatsStore) {
		s.prefix = strings.Trim(prefix, ":")
	}
}

func WithStatsTTL(d time.Duration) RedisStatsOption {
	return func(s *RedisStatsStore) { s.ttl = d }
}

func WithStatsBucket(bucket string) RedisStatsOption {
	return func(s *RedisStatsStore) { s.bucket = strings.ToLower(strings.TrimSpace(bucket)) }
}

func WithStatsTrackKeys(track bool) RedisStatsOption {
	return func(s *RedisStatsStore) { s.trackKeys = track }
}

func NewRedisStatsStore(rdb redis.Cmdable, opts ...RedisStatsOption) *RedisStatsStore {
	s := &RedisStatsStore{
		rdb:    rdb,
		prefix: "ratelimit:stats",
		ttl:    24 * time.Hour,
		bucket: "minute",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStatsStore) Record(ctx context.Context, ev domain.StatsEvent) error {
	if s == nil || s.rdb == nil {
		return nil
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	result := resultField(ev.Allowed)
	policy := strings.TrimSpace(ev.Prefix)

	pipe := s.rdb.Pipeline()
	pipe.HIncrBy(ctx, s.key("total"), result, 1)

	if policy != "" {
		pipe.HIncrBy(ctx, s.key("policy", policy), result, 1)
	}

	if s.bucket == "minute" && policy != "" {
		k := s.key("minute", at.UTC().Format("200601021504"))
		pipe.HIncrBy(ctx, k, policy+":"+result, 1)
		s.expire(ctx, pipe, k)
	}

	if route := strings.TrimSpace(ev.Method + " " + ev.Path); route != "" {
		pipe.HIncrBy(ctx, s.key("route"), route+":"+result, 1)
	}

	// só as negações: é o que interessa para achar abuso
	if s.trackKeys && !ev.Allowed && ev.Namespace != "" {
		if k := strings.TrimSpace(string(ev.Key)); k != "" {
			zk := s.key("denied", ev.Namespace)
			pipe.ZIncrBy(ctx, zk, 1, k)
			s.expire(ctx, pipe, zk)
		}
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record stats: %w", err)
	}
	return nil
}

// Totals lê os contadores globais.
func (s *RedisStatsStore) Totals(ctx context.Context) (Counters, error) {
	return s.counters(ctx, s.key("total"))
}

// PolicyTotals lê os contadores de uma política (pelo prefixo).
func (s *RedisStatsStore) PolicyTotals(ctx context.Context, policy string) (Counters, error) {
	return s.counters(ctx, s.key("policy", strings.TrimSpace(policy)))
}

// KeyCount é uma chave e quantas vezes foi negada.
type KeyCount struct {
	Key    string `json:"key"`
	Denied int64  `json:"denied"`
}

// TopDenied devolve as n chaves mais negadas de um namespace (requer trackKeys).
func (s *RedisStatsStore) TopDenied(ctx context.Context, namespace string, n int) ([]KeyCount, error) {
	if n <= 0 {
		return nil, nil
	}
	zs, err := s.rdb.ZRevRangeWithScores(ctx, s.key("denied", namespace), 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("top denied %s: %w", namespace, err)
	}
	out := make([]KeyCount, 0, len(zs))
	for _, z := range zs {
		member, _ := z.Member.(string)
		out = append(out, KeyCount{Key: member, Denied: int64(z.Score)})
	}
	return out, nil
}

func (s *RedisStatsStore) counters(ctx context.Context, key string) (Counters, error) {
	h, err := s.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return Counters{}, fmt.Errorf("read %s: %w", key, err)
	}
	var c Counters
	c.Allowed, _ = strconv.ParseInt(h["allowed"], 10, 64)
	c.Denied, _ = strconv.ParseInt(h["denied"], 10, 64)
	return c, nil
}

func (s *RedisStatsStore) key(parts ...string) string {
	return s.prefix + ":" + strings.Join(parts, ":")
}

func (s *RedisStatsStore) expire(ctx context.Context, pipe redis.Pipeliner, key string) {
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
}

func resultField(allowed bool) string {
	if allowed {
		return "allowed"
	}
	return "denied"
}
