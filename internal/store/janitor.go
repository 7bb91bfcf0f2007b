package store

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Janitor periodically deletes expired sessions from a SessionStore.
// The background goroutine runs until Stop() is called.
type Janitor struct {
	sessions SessionStore
	interval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// DefaultJanitorInterval is used when NewJanitor is given a non-positive interval.
const DefaultJanitorInterval = 15 * time.Minute

// NewJanitor starts a janitor sweeping every interval.
func NewJanitor(ctx context.Context, sessions SessionStore, interval time.Duration) *Janitor {
	if interval <= 0 {
		interval = DefaultJanitorInterval
	}

	janitorCtx, cancel := context.WithCancel(ctx)

	j := &Janitor{
		sessions: sessions,
		interval: interval,
		ctx:      janitorCtx,
		cancel:   cancel,
	}

	j.wg.Add(1)
	go j.loop()

	return j
}

// Stop stops the background sweep and waits for it to exit.
func (j *Janitor) Stop() {
	j.cancel()
	j.wg.Wait()
}

func (j *Janitor) loop() {
	defer j.wg.Done()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-j.ctx.Done():
			log.Info().Msg("Session janitor stopped")
			return

		case <-ticker.C:
			j.sweep()
		}
	}
}

func (j *Janitor) sweep() {
	count, err := j.sessions.DeleteExpired(j.ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to delete expired sessions")
		return
	}

	if count > 0 {
		log.Info().Int("count", count).Msg("Deleted expired sessions")
	}
}
