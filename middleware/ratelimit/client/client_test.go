package client

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckResponse_ParsesBodyFirst(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "99")
		w.Header().Set("RateLimit-Reset", "1700000999")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error":"rate_limited","retryAfter":42.2,"limit":5,"remaining":0,"resetAt":"2023-11-14T22:14:20.000Z"}`)
	}))
	defer srv.Close()

	req, err := http.NewRequest(http.MethodPost, srv.URL, nil)
	require.NoError(t, err)

	resp, err := Do(srv.Client(), req)
	require.Error(t, err)
	defer resp.Body.Close()

	rl, ok := IsRateLimited(err)
	require.True(t, ok)
	assert.Equal(t, 43*time.Second, rl.RetryAfter)
	assert.Equal(t, time.Date(2023, 11, 14, 22, 14, 20, 0, time.UTC), rl.ResetAt)
	assert.Equal(t, "rate_limited", rl.Label)
	assert.Equal(t, "too many requests: rate_limited", rl.Error())

	// corpo continua legível
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"limit":5`)
}

func TestCheckResponse_FallsBackToHeaders(t *testing.T) {
	resp := &http.Response{
		StatusCode: http.StatusTooManyRequests,
		Header:     http.Header{"Retry-After": {"7"}, "Ratelimit-Reset": {"1700000060"}},
		Body:       io.NopCloser(errReader{}),
	}

	err := CheckResponse(resp)
	rl, ok := IsRateLimited(err)
	require.True(t, ok)
	assert.Equal(t, 7*time.Second, rl.RetryAfter)
	assert.Equal(t, time.Unix(1700000060, 0).UTC(), rl.ResetAt)
	assert.Equal(t, "too many requests", rl.Error())
}

func TestCheckResponse_UnknownMetadata(t *testing.T) {
	resp := &http.Response{StatusCode: http.StatusTooManyRequests, Header: http.Header{}}

	rl, ok := IsRateLimited(CheckResponse(resp))
	require.True(t, ok)
	assert.Zero(t, rl.RetryAfter)
	assert.True(t, rl.ResetAt.IsZero())
}

func TestCheckResponse_IgnoresOtherStatuses(t *testing.T) {
	assert.NoError(t, CheckResponse(&http.Response{StatusCode: http.StatusOK}))
	assert.NoError(t, CheckResponse(nil))
}

type errReader struct{}

func (errReader) Read([]byte) (int, error) { return 0, errors.New("broken body") }
