package store

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/readpilot/internal/models"
)

type countingStore struct {
	sweeps atomic.Int32
}

func (c *countingStore) Create(ctx context.Context, session *models.Session) error { return nil }
func (c *countingStore) Get(ctx context.Context, sessionID uuid.UUID) (*models.Session, error) {
	return nil, ErrSessionNotFound
}
func (c *countingStore) UpdateLastUsed(ctx context.Context, sessionID uuid.UUID) error { return nil }
func (c *countingStore) Delete(ctx context.Context, sessionID uuid.UUID) error         { return nil }
func (c *countingStore) DeleteExpired(ctx context.Context) (int, error) {
	c.sweeps.Add(1)
	return 1, nil
}

func TestJanitor_SweepsUntilStopped(t *testing.T) {
	sessions := &countingStore{}

	j := NewJanitor(context.Background(), sessions, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		return sessions.sweeps.Load() >= 2
	}, time.Second, 5*time.Millisecond)

	j.Stop()

	stopped := sessions.sweeps.Load()
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, stopped, sessions.sweeps.Load())
}
