package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
)

func TestKeyFuncs(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "http://example/", nil)

	cases := []struct {
		name   string
		fn     KeyFunc
		userID string
		ip     string
		want   []string
	}{
		{"by user", ByUser(), "u-1", "1.1.1.1", []string{"u-1"}},
		{"by user anonymous", ByUser(), "", "1.1.1.1", nil},
		{"by ip", ByIP(), "u-1", "1.1.1.1", []string{"1.1.1.1"}},
		{"by ip missing", ByIP(), "u-1", "", nil},
		{"by ip or anonymous", ByIPOr("anonymous"), "", "", []string{"anonymous"}},
		{"fallback skips authenticated", ByIPWhenAnonymous(), "u-1", "1.1.1.1", nil},
		{"fallback applies to anonymous", ByIPWhenAnonymous(), "", "1.1.1.1", []string{"1.1.1.1"}},
		{"composite keeps order", Composite(ByUser(), ByIP()), "u-1", "1.1.1.1", []string{"u-1", "1.1.1.1"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := normalizeKeys(tc.fn(r, tc.userID, tc.ip))
			if len(got) == 0 && len(tc.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
		})
	}
}
