// Package registry holds the set of known player backends and answers the
// coordinator's "all players" and "currently playing" queries.
package registry

import (
	"context"
	"sync"

	"github.com/lpetrelli/autopause/internal/domain"
	"go.uber.org/zap"
)

// Registry owns the player handles. Registration happens at startup; after
// that the set is read-only, so an RWMutex is all the locking it needs.
type Registry struct {
	logger *zap.Logger

	mu   sync.RWMutex
	all  []domain.Controller // registration order
	byID map[domain.PlayerIdentity]domain.Controller
}

// New creates an empty registry
func New(logger *zap.Logger) *Registry {
	return &Registry{
		logger: logger,
		byID:   make(map[domain.PlayerIdentity]domain.Controller),
	}
}

// Register adds a backend. Registering the same identity twice is a
// configuration mistake and returns a DuplicateIdentityError.
func (r *Registry) Register(c domain.Controller) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := c.Identity()
	if _, exists := r.byID[id]; exists {
		return &domain.DuplicateIdentityError{Identity: id}
	}

	r.byID[id] = c
	r.all = append(r.all, c)

	r.logger.Info("Player registered", zap.String("player", string(id)))
	return nil
}

// All returns every handle in registration order
func (r *Registry) All() []domain.Controller {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Controller, len(r.all))
	copy(out, r.all)
	return out
}

// PlayingNow queries every handle's play state and returns those currently
// playing, in registration order. This is a live query on every call:
// external play state changes at any moment outside our knowledge, so
// caching it across coordinator invocations would be wrong.
func (r *Registry) PlayingNow(ctx context.Context) []domain.Controller {
	playing := make([]domain.Controller, 0)
	for _, c := range r.All() {
		state := c.PlayState(ctx)
		r.logger.Debug("Play state queried",
			zap.String("player", string(c.Identity())),
			zap.String("state", string(state)))
		if state == domain.StatePlaying {
			playing = append(playing, c)
		}
	}
	return playing
}

// Known reports whether a backend is registered for the identity
func (r *Registry) Known(id domain.PlayerIdentity) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.byID[id]
	return ok
}
