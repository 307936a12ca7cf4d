package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestResolveIP_Precedence(t *testing.T) {
	cases := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{
			name:    "forwarded for wins over real ip",
			headers: map[string]string{"X-Forwarded-For": "1.1.1.1, 2.2.2.2", "X-Real-IP": "3.3.3.3"},
			want:    "1.1.1.1",
		},
		{
			name:    "real ip",
			headers: map[string]string{"X-Real-IP": " 3.3.3.3 ", "CF-Connecting-IP": "4.4.4.4"},
			want:    "3.3.3.3",
		},
		{
			name:    "cloudflare before client ip",
			headers: map[string]string{"CF-Connecting-IP": "4.4.4.4", "X-Client-IP": "5.5.5.5"},
			want:    "4.4.4.4",
		},
		{
			name:    "client ip before fastly",
			headers: map[string]string{"X-Client-IP": "5.5.5.5", "Fastly-Client-IP": "6.6.6.6"},
			want:    "5.5.5.5",
		},
		{
			name:    "fastly before true client ip",
			headers: map[string]string{"Fastly-Client-IP": "6.6.6.6", "True-Client-IP": "7.7.7.7"},
			want:    "6.6.6.6",
		},
		{
			name:    "true client ip before connection",
			headers: map[string]string{"True-Client-IP": "7.7.7.7"},
			remote:  "10.0.0.9:5555",
			want:    "7.7.7.7",
		},
		{
			name:    "empty forwarded entries are skipped",
			headers: map[string]string{"X-Forwarded-For": " , 8.8.8.8"},
			want:    "8.8.8.8",
		},
		{
			name:   "connection address host",
			remote: "10.0.0.9:5555",
			want:   "10.0.0.9",
		},
		{
			name:   "ipv6 connection address",
			remote: "[2001:db8::1]:443",
			want:   "2001:db8::1",
		},
		{
			name:   "connection address without port",
			remote: "10.0.0.9",
			want:   "10.0.0.9",
		},
		{
			name: "nothing available",
			want: "",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := http.Header{}
			for k, v := range tc.headers {
				h.Set(k, v)
			}
			if got := ResolveIP(h, tc.remote); got != tc.want {
				t.Fatalf("ResolveIP() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestClientIP_UsesRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
	r.RemoteAddr = "10.0.0.9:5555"
	r.Header.Set("x-forwarded-for", "1.2.3.4, 5.6.7.8")

	if got := ClientIP(r); got != "1.2.3.4" {
		t.Fatalf("expected first XFF ip, got %q", got)
	}
}
