package player

import (
	"context"
	"sync"
	"time"

	"github.com/lpetrelli/autopause/internal/domain"
	"go.uber.org/zap"
)

// Options tunes the control-command policy shared by all backends
type Options struct {
	// Retries is the number of re-attempts after a failed command
	Retries int
	// Backoff is the delay between attempts
	Backoff time.Duration
	// Settle bounds the wait for a command to take observable effect
	Settle time.Duration
}

// base carries the behavior common to every backend: the per-pass running
// memo and the bounded-retry helper for transport commands. Queries
// (IsRunning, PlayState) are never retried; their failures degrade to
// false/Unknown instead of blocking a transition.
type base struct {
	logger *zap.Logger
	opts   Options

	mu      sync.Mutex
	running *bool // memoized within one coordinator pass
}

// BeginPass drops the running memo so the next IsRunning performs a fresh
// process lookup. Called by the coordinator at the start of each transition.
func (b *base) BeginPass() {
	b.mu.Lock()
	b.running = nil
	b.mu.Unlock()
}

// runningMemo returns the memoized running state, probing at most once per
// pass. Probe errors resolve to not-running.
func (b *base) runningMemo(id domain.PlayerIdentity, probe func() (bool, error)) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.running != nil {
		return *b.running
	}

	ok, err := probe()
	if err != nil {
		b.logger.Debug("Running check failed, treating player as not running",
			zap.String("player", string(id)),
			zap.Error(err))
		ok = false
	}
	b.running = &ok
	return ok
}

// withRetry issues a transport command with bounded retry and backoff.
// The control channel of an external player can be transiently busy; a
// couple of short re-attempts absorb that without stalling the batch.
// The final failure is wrapped into a ControlChannelError.
func (b *base) withRetry(ctx context.Context, id domain.PlayerIdentity, command string, fn func() error) error {
	var err error
	for attempt := 0; attempt <= b.opts.Retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return &domain.ControlChannelError{Player: id, Command: command, Err: ctx.Err()}
			case <-time.After(b.opts.Backoff):
			}
			b.logger.Debug("Retrying control command",
				zap.String("player", string(id)),
				zap.String("command", command),
				zap.Int("attempt", attempt))
		}

		if err = fn(); err == nil {
			return nil
		}
	}

	return &domain.ControlChannelError{Player: id, Command: command, Err: err}
}
