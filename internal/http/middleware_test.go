package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractClientIP(t *testing.T) {
	tests := []struct {
		name       string
		xff        string
		realIP     string
		remoteAddr string
		expected   string
	}{
		{
			name:       "proxy chain takes the browser address",
			xff:        "203.0.113.7, 10.0.0.2",
			remoteAddr: "10.0.0.2:443",
			expected:   "203.0.113.7",
		},
		{
			name:     "padding around the first entry is trimmed",
			xff:      " 203.0.113.7  ,10.0.0.2",
			expected: "203.0.113.7",
		},
		{
			name:       "forwarded header wins over X-Real-IP",
			xff:        "203.0.113.7",
			realIP:     "198.51.100.20",
			remoteAddr: "10.0.0.2:443",
			expected:   "203.0.113.7",
		},
		{
			name:       "garbage forwarded header falls through to X-Real-IP",
			xff:        "unknown",
			realIP:     "198.51.100.20",
			remoteAddr: "10.0.0.2:443",
			expected:   "198.51.100.20",
		},
		{
			name:       "garbage headers fall through to the socket address",
			xff:        "<script>",
			realIP:     "not-an-ip",
			remoteAddr: "192.0.2.44:51234",
			expected:   "192.0.2.44",
		},
		{
			name:       "IPv6 socket address loses brackets and port",
			remoteAddr: "[2001:db8::1]:54321",
			expected:   "2001:db8::1",
		},
		{
			name:     "IPv4 mapped IPv6 is unmapped",
			realIP:   "::ffff:192.0.2.9",
			expected: "192.0.2.9",
		},
		{
			name:       "socket address without port",
			remoteAddr: "192.0.2.44",
			expected:   "192.0.2.44",
		},
		{
			name:       "nothing usable",
			remoteAddr: "pipe",
			expected:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/auth/callback", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.realIP != "" {
				r.Header.Set("X-Real-IP", tt.realIP)
			}

			require.Equal(t, tt.expected, ExtractClientIP(r))
		})
	}
}

func TestClientIPMiddleware(t *testing.T) {
	var captured string
	handler := ClientIPMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = ClientIPFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/auth/callback?code=abc&state=xyz", nil)
	r.Header.Set("X-Forwarded-For", "203.0.113.7")

	handler.ServeHTTP(rec, r)

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "203.0.113.7", captured)
	require.Empty(t, ClientIPFromContext(context.Background()))
}
