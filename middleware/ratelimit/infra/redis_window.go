package infra

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"marketplace-gateway/middleware/ratelimit/domain"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Sliding log em sorted set: score = instante (ms) de cada chamada aceita.
// Remove o que saiu da janela, conta, aceita se couber e devolve o reset
// (membro mais antigo + janela).
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)

local allowed = 0
local remaining = 0

if count < limit then
  redis.call('ZADD', key, now, member)
  redis.call('PEXPIRE', key, window)
  allowed = 1
  remaining = limit - (count + 1)
end

local reset = now + window
local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
if oldest ~= nil and #oldest >= 2 then
  reset = tonumber(oldest[2]) + window
end

return {allowed, remaining, reset}
`)

// RedisWindowStore é o sliding window counter distribuído.
// A atomicidade vem do script Lua; não há lock local.
type RedisWindowStore struct {
	rdb redis.Scripter
	now func() time.Time
}

type RedisWindowOption func(*RedisWindowStore)

// WithRedisClock troca o relógio (testes).
func WithRedisClock(now func() time.Time) RedisWindowOption {
	return func(s *RedisWindowStore) {
		if now != nil {
			s.now = now
		}
	}
}

func NewRedisWindowStore(rdb redis.Scripter, opts ...RedisWindowOption) *RedisWindowStore {
	s := &RedisWindowStore{rdb: rdb, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Check implementa domain.CounterStore.
func (s *RedisWindowStore) Check(ctx context.Context, namespace string, key domain.Key, limit int, window time.Duration) (domain.Verdict, error) {
	if limit <= 0 {
		return domain.Verdict{}, fmt.Errorf("limit must be positive, got %d", limit)
	}
	windowMS := window.Milliseconds()
	if windowMS <= 0 {
		return domain.Verdict{}, fmt.Errorf("window must be at least 1ms, got %s", window)
	}

	redisKey := namespace + ":" + string(key)
	nowMS := s.now().UnixMilli()

	res, err := slidingWindowScript.Run(ctx, s.rdb, []string{redisKey}, nowMS, windowMS, limit, uuid.NewString()).Result()
	if err != nil {
		return domain.Verdict{}, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}

	values, ok := res.([]interface{})
	if !ok || len(values) != 3 {
		return domain.Verdict{}, fmt.Errorf("%w: unexpected script result %T", domain.ErrStoreUnavailable, res)
	}

	allowed, err := asInt64(values[0])
	if err != nil {
		return domain.Verdict{}, fmt.Errorf("parsing allowed: %w", err)
	}
	remaining, err := asInt64(values[1])
	if err != nil {
		return domain.Verdict{}, fmt.Errorf("parsing remaining: %w", err)
	}
	reset, err := asInt64(values[2])
	if err != nil {
		return domain.Verdict{}, fmt.Errorf("parsing reset: %w", err)
	}
	if remaining < 0 {
		remaining = 0
	}

	return domain.Verdict{
		Allowed:   allowed == 1,
		Remaining: int(remaining),
		Reset:     time.UnixMilli(reset),
	}, nil
}

// NewRedisClient monta o client a partir de uma URL (redis:// ou rediss://).
// O token, quando informado, vira a senha (sobrescreve a da URL).
func NewRedisClient(rawURL, token string) (*redis.Client, error) {
	opts, err := redis.ParseURL(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if token = strings.TrimSpace(token); token != "" {
		opts.Password = token
	}
	return redis.NewClient(opts), nil
}

// Lua devolve inteiros, mas números grandes podem chegar como string/float
// dependendo do client.
func asInt64(v interface{}) (int64, error) {
	switch x := v.(type) {
	case int64:
		return x, nil
	case int:
		return int64(x), nil
	case float64:
		return int64(x), nil
	case string:
		n, err := strconv.ParseInt(x, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse int64 from %q: %w", x, err)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("unsupported numeric type %T", v)
	}
}
