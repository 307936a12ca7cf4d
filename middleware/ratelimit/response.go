package ratelimit

import (
	"encoding/json"
	"net/http"

	"marketplace-gateway/middleware/ratelimit/domain"
)

const (
	HeaderLimit      = "RateLimit-Limit"
	HeaderRemaining  = "RateLimit-Remaining"
	HeaderReset      = "RateLimit-Reset"
	HeaderRetryAfter = "Retry-After"

	ErrorRateLimited = "rate_limited"
	ErrorUnavailable = "rate_limiter_unavailable"
)

// LimitedBody é o corpo JSON do 429. Os clientes usam esses campos para backoff.
type LimitedBody struct {
	Error      string `json:"error"`
	RetryAfter int    `json:"retryAfter"`
	Limit      int    `json:"limit"`
	Remaining  int    `json:"remaining"`
	ResetAt    string `json:"resetAt"`
}

// setRateLimitHeaders decora uma resposta aceita. Um tier externo já pode ter
// decorado; nesse caso mantém o que está lá.
func setRateLimitHeaders(h http.Header, res domain.Result) {
	if h.Get(HeaderLimit) != "" {
		return
	}
	h.Set(HeaderLimit, formatInt(res.Limit))
	h.Set(HeaderRemaining, formatInt(max(res.Remaining, 0)))
	h.Set(HeaderReset, formatInt64(res.Reset))
}

func writeLimited(w http.ResponseWriter, res domain.Result) {
	h := w.Header()
	h.Set(HeaderRetryAfter, formatInt(res.RetryAfter))
	h.Set(HeaderLimit, formatInt(res.Limit))
	h.Set(HeaderRemaining, "0")
	h.Set(HeaderReset, formatInt64(res.Reset))

	writeJSON(w, http.StatusTooManyRequests, LimitedBody{
		Error:      ErrorRateLimited,
		RetryAfter: res.RetryAfter,
		Limit:      res.Limit,
		Remaining:  0,
		ResetAt:    formatResetAt(res.Reset),
	})
}

func writeUnavailable(w http.ResponseWriter) {
	writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": ErrorUnavailable})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
