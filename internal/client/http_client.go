package client

import (
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// DefaultTimeout bounds a single upstream request when the caller's context has no deadline.
const DefaultTimeout = 15 * time.Second

// NewHTTPClient creates a traced HTTP client for upstream APIs (Whop, the
// analysis service). Responses are never cached: Whop answers per bearer token
// on shared URLs, and every entitlement check must reach the provider.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
		Timeout:   timeout,
	}
}
