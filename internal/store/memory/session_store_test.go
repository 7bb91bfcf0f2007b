package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/readpilot/internal/models"
	"github.com/wolfeidau/readpilot/internal/store"
)

func newTestSession(t *testing.T, expiresIn time.Duration) *models.Session {
	t.Helper()

	id, err := uuid.NewV7()
	require.NoError(t, err)

	now := time.Now()
	return &models.Session{
		SessionID:   id,
		UserID:      "user_123",
		Name:        "Test User",
		AccessToken: "token-abc",
		CreatedAt:   now,
		ExpiresAt:   now.Add(expiresIn),
		LastUsedAt:  now,
	}
}

func TestSessionStore_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	s := NewSessionStore()

	session := newTestSession(t, time.Hour)
	require.NoError(t, s.Create(ctx, session))

	got, err := s.Get(ctx, session.SessionID)
	require.NoError(t, err)
	require.Equal(t, "Test User", got.Name)
	require.Equal(t, "token-abc", got.AccessToken)

	// mutating the returned copy must not change the stored session
	got.Name = "changed"
	again, err := s.Get(ctx, session.SessionID)
	require.NoError(t, err)
	require.Equal(t, "Test User", again.Name)
}

func TestSessionStore_GetMissing(t *testing.T) {
	s := NewSessionStore()

	_, err := s.Get(context.Background(), uuid.New())
	require.ErrorIs(t, err, store.ErrSessionNotFound)
}

func TestSessionStore_GetExpired(t *testing.T) {
	ctx := context.Background()
	s := NewSessionStore()

	session := newTestSession(t, -time.Minute)
	require.NoError(t, s.Create(ctx, session))

	_, err := s.Get(ctx, session.SessionID)
	require.ErrorIs(t, err, store.ErrSessionExpired)
}

func TestSessionStore_UpdateLastUsed(t *testing.T) {
	ctx := context.Background()
	s := NewSessionStore()

	session := newTestSession(t, time.Hour)
	session.LastUsedAt = time.Now().Add(-time.Hour)
	require.NoError(t, s.Create(ctx, session))

	require.NoError(t, s.UpdateLastUsed(ctx, session.SessionID))

	got, err := s.Get(ctx, session.SessionID)
	require.NoError(t, err)
	require.WithinDuration(t, time.Now(), got.LastUsedAt, time.Second)

	require.ErrorIs(t, s.UpdateLastUsed(ctx, uuid.New()), store.ErrSessionNotFound)
}

func TestSessionStore_Delete(t *testing.T) {
	ctx := context.Background()
	s := NewSessionStore()

	session := newTestSession(t, time.Hour)
	require.NoError(t, s.Create(ctx, session))

	require.NoError(t, s.Delete(ctx, session.SessionID))
	require.ErrorIs(t, s.Delete(ctx, session.SessionID), store.ErrSessionNotFound)

	_, err := s.Get(ctx, session.SessionID)
	require.ErrorIs(t, err, store.ErrSessionNotFound)
}

func TestSessionStore_DeleteExpired(t *testing.T) {
	ctx := context.Background()
	s := NewSessionStore()

	live := newTestSession(t, time.Hour)
	expired1 := newTestSession(t, -time.Minute)
	expired2 := newTestSession(t, -time.Hour)
	for _, session := range []*models.Session{live, expired1, expired2} {
		require.NoError(t, s.Create(ctx, session))
	}

	count, err := s.DeleteExpired(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, count)

	_, err = s.Get(ctx, live.SessionID)
	require.NoError(t, err)

	_, err = s.Get(ctx, expired1.SessionID)
	require.ErrorIs(t, err, store.ErrSessionNotFound)
}
