// Package client converte respostas 429 do gateway em um erro tipado com os
// dados de backoff (retry-after e reset), para quem consome a API em Go.
package client

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const maxBodyBytes = 64 << 10

// RateLimitedError representa um 429.
type RateLimitedError struct {
	// RetryAfter é zero quando o servidor não informou.
	RetryAfter time.Duration
	// ResetAt é zero quando o servidor não informou.
	ResetAt time.Time
	// Label é o campo "error" do corpo (ex: "rate_limited").
	Label   string
	Payload map[string]any
}

func (e *RateLimitedError) Error() string {
	if e.Label != "" {
		return "too many requests: " + e.Label
	}
	return "too many requests"
}

// IsRateLimited devolve o *RateLimitedError dentro de err, se houver.
func IsRateLimited(err error) (*RateLimitedError, bool) {
	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return rl, true
	}
	return nil, false
}

// CheckResponse devolve *RateLimitedError para status 429 e nil caso contrário.
// O corpo é lido e recolocado em resp.Body, então continua legível.
func CheckResponse(resp *http.Response) error {
	if resp == nil || resp.StatusCode != http.StatusTooManyRequests {
		return nil
	}

	var payload map[string]any
	if resp.Body != nil {
		raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		_ = resp.Body.Close()
		if err == nil {
			resp.Body = io.NopCloser(bytes.NewReader(raw))
			if json.Unmarshal(raw, &payload) != nil {
				payload = nil
			}
		}
	}

	label, _ := payload["error"].(string)
	return &RateLimitedError{
		RetryAfter: pickRetryAfter(payload, resp.Header.Get("Retry-After")),
		ResetAt:    pickResetAt(payload, resp.Header.Get("RateLimit-Reset")),
		Label:      label,
		Payload:    payload,
	}
}

// Do executa a request e converte 429 em *RateLimitedError.
func Do(c *http.Client, req *http.Request) (*http.Response, error) {
	if c == nil {
		c = http.DefaultClient
	}
	resp, err := c.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	if err := CheckResponse(resp); err != nil {
		return resp, err
	}
	return resp, nil
}

// corpo (retry_after_seconds, retryAfter) tem prioridade sobre o header.
func pickRetryAfter(body map[string]any, header string) time.Duration {
	for _, field := range []string{"retry_after_seconds", "retryAfter"} {
		if v, ok := body[field].(float64); ok && v > 0 {
			return time.Duration(math.Ceil(v)) * time.Second
		}
	}
	if v, err := strconv.ParseFloat(strings.TrimSpace(header), 64); err == nil && v > 0 && !math.IsInf(v, 0) {
		return time.Duration(math.Ceil(v)) * time.Second
	}
	return 0
}

func pickResetAt(body map[string]any, header string) time.Time {
	if s, ok := body["resetAt"].(string); ok && s != "" {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t.UTC()
		}
	}
	if v, err := strconv.ParseInt(strings.TrimSpace(header), 10, 64); err == nil && v > 0 {
		return time.Unix(v, 0).UTC()
	}
	return time.Time{}
}
