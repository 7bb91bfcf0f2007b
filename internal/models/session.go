package models

import (
	"time"

	"github.com/google/uuid"
)

// Session represents a signed-in Whop user.
// Only the session ID leaves the server (inside the signed session cookie), the
// access token and profile live server-side.
type Session struct {
	SessionID uuid.UUID // UUIDv7
	UserID    string    // Whop user id
	Name      string    // display name shown in the header

	// AccessToken is the Whop OAuth access token used for entitlement checks.
	AccessToken string

	CreatedAt  time.Time
	ExpiresAt  time.Time
	LastUsedAt time.Time

	// Optional audit metadata
	UserAgent string
	IPAddress string
}

// IsExpired returns true if the session has expired.
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}
