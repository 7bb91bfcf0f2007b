package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/wolfeidau/readpilot/internal/models"
)

// Sentinel errors for common error conditions
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
)

// SessionStore persists signed-in user sessions.
type SessionStore interface {
	// Create stores a new session.
	Create(ctx context.Context, session *models.Session) error

	// Get returns the session, ErrSessionNotFound if it does not exist and
	// ErrSessionExpired once it has passed ExpiresAt.
	Get(ctx context.Context, sessionID uuid.UUID) (*models.Session, error)

	// UpdateLastUsed bumps last_used_at.
	UpdateLastUsed(ctx context.Context, sessionID uuid.UUID) error

	// Delete removes a session (sign out).
	Delete(ctx context.Context, sessionID uuid.UUID) error

	// DeleteExpired removes all expired sessions and returns how many were removed.
	DeleteExpired(ctx context.Context) (int, error)
}
