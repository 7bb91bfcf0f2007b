// Package membership owns the client-visible membership cookie. The cookie is a
// cache of the provider's last answer, so the inverted encoding ("false" means
// entitled) is kept for compatibility with existing browsers.
package membership

import (
	"context"
	"net/http"
	"time"

	"github.com/wolfeidau/readpilot/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	CookieName = "membership"

	// DefaultMaxAge is how long a cached verdict is kept by the browser.
	DefaultMaxAge = 7 * 24 * time.Hour
)

// State is the tri-state membership flag.
type State int

const (
	Unknown State = iota
	Entitled
	NotEntitled
)

func (s State) String() string {
	switch s {
	case Entitled:
		return "entitled"
	case NotEntitled:
		return "not_entitled"
	default:
		return "unknown"
	}
}

// Known reports whether the state holds a cached verdict.
func (s State) Known() bool { return s != Unknown }

// CookieValue returns the wire encoding, empty for Unknown.
func (s State) CookieValue() string {
	switch s {
	case Entitled:
		return "false"
	case NotEntitled:
		return "true"
	default:
		return ""
	}
}

// ParseState decodes a cookie value. Anything unexpected reads as Unknown.
func ParseState(v string) State {
	switch v {
	case "false":
		return Entitled
	case "true":
		return NotEntitled
	default:
		return Unknown
	}
}

func FromVerdict(entitled bool) State {
	if entitled {
		return Entitled
	}
	return NotEntitled
}

// Jar is the single writer of the membership cookie.
type Jar struct {
	maxAge  time.Duration
	secure  bool
	metrics *telemetry.Metrics
}

func NewJar(maxAge time.Duration, secure bool) *Jar {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &Jar{maxAge: maxAge, secure: secure, metrics: telemetry.GetMetrics()}
}

func (j *Jar) Read(r *http.Request) State {
	c, err := r.Cookie(CookieName)
	if err != nil {
		return Unknown
	}
	return ParseState(c.Value)
}

// Write stores state in the response. Writing Unknown clears the cookie.
func (j *Jar) Write(ctx context.Context, w http.ResponseWriter, state State) {
	cookie := &http.Cookie{
		Name:     CookieName,
		Value:    state.CookieValue(),
		Path:     "/",
		Secure:   j.secure,
		SameSite: http.SameSiteLaxMode,
		// read by the browser script, so not HttpOnly
		HttpOnly: false,
	}

	if state.Known() {
		cookie.MaxAge = int(j.maxAge.Seconds())
		cookie.Expires = time.Now().Add(j.maxAge)
	} else {
		cookie.MaxAge = -1
	}

	http.SetCookie(w, cookie)

	j.metrics.MembershipWritesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("state", state.String())))
}
