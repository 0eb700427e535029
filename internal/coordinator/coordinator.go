// Package coordinator implements the pause/resume state machine that reacts
// to output-route transitions: on engage it pauses the players that are
// currently playing and records them; on disengage it resumes exactly the
// recorded set.
package coordinator

import (
	"context"
	"sort"
	"sync"

	"github.com/lpetrelli/autopause/internal/domain"
	"github.com/lpetrelli/autopause/internal/registry"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// State is the coordinator's processing phase
type State int

const (
	// Idle means no transition is in flight
	Idle State = iota
	// EngageInProgress means an engage batch is being processed
	EngageInProgress
	// DisengageInProgress means a disengage batch is being processed
	DisengageInProgress
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case EngageInProgress:
		return "engage-in-progress"
	case DisengageInProgress:
		return "disengage-in-progress"
	default:
		return "unknown"
	}
}

// Coordinator owns the paused set. Transitions are processed strictly one
// at a time to completion; the device monitor's coalescing is what lets
// newer events queue up without requiring mid-flight cancellation here.
type Coordinator struct {
	logger   *zap.Logger
	registry *registry.Registry
	monitor  domain.DeviceMonitor

	mu     sync.Mutex
	state  State
	paused map[domain.PlayerIdentity]struct{}
}

var _ domain.PauseQuery = (*Coordinator)(nil)

// New creates a coordinator over the given registry and device monitor.
// The registry is borrowed, not owned.
func New(logger *zap.Logger, reg *registry.Registry, mon domain.DeviceMonitor) *Coordinator {
	return &Coordinator{
		logger:   logger,
		registry: reg,
		monitor:  mon,
		paused:   make(map[domain.PlayerIdentity]struct{}),
	}
}

// Run consumes transitions until the context ends or the monitor closes
// its channel
func (c *Coordinator) Run(ctx context.Context) {
	events := c.monitor.Transitions()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Coordinator loop stopped")
			return

		case transition, ok := <-events:
			if !ok {
				c.logger.Info("Device monitor channel closed")
				return
			}
			c.handleTransition(ctx, transition)
		}
	}
}

// handleTransition runs one transition to completion
func (c *Coordinator) handleTransition(ctx context.Context, t domain.DeviceTransition) {
	switch t {
	case domain.TransitionEngaged:
		c.engage(ctx)
	case domain.TransitionDisengaged:
		c.disengage(ctx)
	default:
		c.logger.Warn("Ignoring unknown device transition", zap.Int("transition", int(t)))
	}
}

// engage pauses every currently playing player and records the successes.
// An engage arriving while the paused set is non-empty (a prior disengage
// left failed resumes behind) is treated as a fresh engage: newly playing
// players are paused, entries already recorded are left untouched.
func (c *Coordinator) engage(ctx context.Context) {
	c.setState(EngageInProgress)
	defer c.setState(Idle)

	handles := c.registry.All()
	for _, h := range handles {
		h.BeginPass()
	}

	playing := c.registry.PlayingNow(ctx)
	c.logger.Info("Device engaged, pausing players", zap.Int("playing", len(playing)))

	var wg sync.WaitGroup
	for _, h := range playing {
		id := h.Identity()
		if c.isPaused(id) {
			// Already recorded from a prior engage; do not pause twice
			// or double-count.
			c.logger.Debug("Player already managed, skipping",
				zap.String("player", string(id)))
			continue
		}

		wg.Add(1)
		go func(h domain.Controller, id domain.PlayerIdentity) {
			defer wg.Done()

			if err := h.Pause(ctx); err != nil {
				// Failure isolation: log and keep the player out of the
				// paused set, the rest of the batch continues.
				c.logger.Error("Pause failed",
					zap.String("player", string(id)),
					zap.Error(err))
				return
			}

			c.mu.Lock()
			c.paused[id] = struct{}{}
			c.mu.Unlock()

			c.logger.Info("Player paused", zap.String("player", string(id)))
		}(h, id)
	}
	wg.Wait()

	c.logger.Info("Engage processed", zap.Int("managedPauses", c.pausedCount()))
}

// disengage resumes exactly the recorded players. Successes leave the set;
// failures stay in it and are surfaced through ManagedPauses and the log,
// with no automatic retry.
func (c *Coordinator) disengage(ctx context.Context) {
	c.setState(DisengageInProgress)
	defer c.setState(Idle)

	snapshot := c.snapshotPaused()
	if len(snapshot) == 0 {
		// Spurious or duplicate notification, nothing to resume
		c.logger.Debug("Device disengaged with no managed pauses")
		return
	}

	for _, h := range c.registry.All() {
		h.BeginPass()
	}

	c.logger.Info("Device disengaged, resuming players", zap.Int("paused", len(snapshot)))

	var wg sync.WaitGroup
	var errMu sync.Mutex
	var errs error

	for _, id := range snapshot {
		h, ok := c.lookup(id)
		if !ok {
			// Cannot happen while registration is startup-only; drop the
			// entry rather than keep it forever.
			c.logger.Warn("Paused player no longer registered",
				zap.String("player", string(id)))
			c.removePaused(id)
			continue
		}

		wg.Add(1)
		go func(h domain.Controller, id domain.PlayerIdentity) {
			defer wg.Done()

			if err := h.Resume(ctx); err != nil {
				c.logger.Error("Resume failed, player stays managed",
					zap.String("player", string(id)),
					zap.Error(err))
				errMu.Lock()
				errs = multierr.Append(errs, err)
				errMu.Unlock()
				return
			}

			c.removePaused(id)
			c.logger.Info("Player resumed", zap.String("player", string(id)))
		}(h, id)
	}
	wg.Wait()

	if errs != nil {
		c.logger.Warn("Disengage finished with pending resumes",
			zap.Int("pending", c.pausedCount()),
			zap.Error(errs))
	} else {
		c.logger.Info("Disengage processed")
	}
}

// IsPlayerKnown reports whether a backend is registered for the identity
func (c *Coordinator) IsPlayerKnown(id domain.PlayerIdentity) bool {
	return c.registry.Known(id)
}

// ManagedPauses returns a sorted copy of the players currently paused by
// the system and not yet resumed
func (c *Coordinator) ManagedPauses() []domain.PlayerIdentity {
	ids := c.snapshotPaused()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// State returns the coordinator's current processing phase
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Coordinator) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Coordinator) isPaused(id domain.PlayerIdentity) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.paused[id]
	return ok
}

func (c *Coordinator) removePaused(id domain.PlayerIdentity) {
	c.mu.Lock()
	delete(c.paused, id)
	c.mu.Unlock()
}

func (c *Coordinator) pausedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.paused)
}

func (c *Coordinator) snapshotPaused() []domain.PlayerIdentity {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids := make([]domain.PlayerIdentity, 0, len(c.paused))
	for id := range c.paused {
		ids = append(ids, id)
	}
	return ids
}

func (c *Coordinator) lookup(id domain.PlayerIdentity) (domain.Controller, bool) {
	for _, h := range c.registry.All() {
		if h.Identity() == id {
			return h, true
		}
	}
	return nil, false
}
