package client

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewHTTPClient_DefaultTimeout(t *testing.T) {
	require.Equal(t, DefaultTimeout, NewHTTPClient(0).Timeout)
	require.Equal(t, 3*time.Second, NewHTTPClient(3*time.Second).Timeout)
}

func TestNewHTTPClient_DoesNotCache(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Cache-Control", "private, max-age=60")
		_, _ = io.WriteString(w, `{"valid":true}`)
	}))
	defer srv.Close()

	c := NewHTTPClient(0)
	for range 3 {
		resp, err := c.Get(srv.URL + "/api/v2/me/has_access/pass_required")
		require.NoError(t, err)
		_, err = io.Copy(io.Discard, resp.Body)
		require.NoError(t, err)
		resp.Body.Close()
	}

	require.Equal(t, int32(3), hits.Load())
}
