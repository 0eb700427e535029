package player

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/lpetrelli/autopause/internal/domain"
	"go.uber.org/zap"
)

// MPRIS D-Bus constants
const (
	mprisPrefix      = "org.mpris.MediaPlayer2."
	mprisPath        = "/org/mpris/MediaPlayer2"
	mprisPlayerIface = "org.mpris.MediaPlayer2.Player"

	propPlaybackStatus = mprisPlayerIface + ".PlaybackStatus"
	methodPause        = mprisPlayerIface + ".Pause"
	methodPlay         = mprisPlayerIface + ".Play"
)

// settlePollInterval is how often the controller re-reads PlaybackStatus
// while waiting for a command to take effect
const settlePollInterval = 100 * time.Millisecond

// mprisController drives one external player over its MPRIS interface.
// It holds no reference to the external process; every call re-resolves
// the bus name, since the player can quit or restart at any moment.
type mprisController struct {
	base
	identity domain.PlayerIdentity
	busName  string
	conn     BusClient

	// instanced players (Firefox) publish busName + ".instance<pid>";
	// the live name is resolved by prefix scan once per pass
	instanced bool

	// mpv treats Play after Stop as "restart the file", so its Resume
	// must act only from Paused
	resumeOnlyFromPaused bool

	resolveMu sync.Mutex
	resolved  string
}

// Identity returns the stable identifier of the player this backend controls
func (p *mprisController) Identity() domain.PlayerIdentity {
	return p.identity
}

// BeginPass drops the running memo and the resolved instance name
func (p *mprisController) BeginPass() {
	p.base.BeginPass()
	p.resolveMu.Lock()
	p.resolved = ""
	p.resolveMu.Unlock()
}

// IsRunning reports whether the player owns its bus name. Lookup failures
// resolve to false; this call never fails.
func (p *mprisController) IsRunning(ctx context.Context) bool {
	return p.runningMemo(p.identity, func() (bool, error) {
		name, err := p.target()
		if err != nil {
			return false, err
		}
		return name != "", nil
	})
}

// PlayState returns the player's transport state, or StateUnknown when the
// player is not running or the property read fails
func (p *mprisController) PlayState(ctx context.Context) domain.PlayState {
	if !p.IsRunning(ctx) {
		return domain.StateUnknown
	}

	name, err := p.target()
	if err != nil || name == "" {
		return domain.StateUnknown
	}

	variant, err := p.conn.GetProperty(name, mprisPath, propPlaybackStatus)
	if err != nil {
		p.logger.Debug("PlaybackStatus read failed",
			zap.String("player", string(p.identity)),
			zap.Error(err))
		return domain.StateUnknown
	}

	status, ok := variant.Value().(string)
	if !ok {
		p.logger.Debug("PlaybackStatus has unexpected type",
			zap.String("player", string(p.identity)),
			zap.String("type", fmt.Sprintf("%T", variant.Value())))
		return domain.StateUnknown
	}

	switch status {
	case "Playing":
		return domain.StatePlaying
	case "Paused":
		return domain.StatePaused
	case "Stopped":
		return domain.StateStopped
	default:
		// Non-compliant players have been seen reporting e.g. "playing"
		switch strings.ToLower(status) {
		case "playing":
			return domain.StatePlaying
		case "paused":
			return domain.StatePaused
		case "stopped":
			return domain.StateStopped
		}
		return domain.StateUnknown
	}
}

// Pause pauses playback. No-op when the player is not running or not
// playing. The command is retried on delivery failure and verified to have
// taken effect within the settle window.
func (p *mprisController) Pause(ctx context.Context) error {
	if !p.IsRunning(ctx) {
		p.logger.Debug("Pause skipped, player not running",
			zap.String("player", string(p.identity)))
		return nil
	}

	if state := p.PlayState(ctx); state != domain.StatePlaying {
		p.logger.Debug("Pause skipped, player not playing",
			zap.String("player", string(p.identity)),
			zap.String("state", string(state)))
		return nil
	}

	name, err := p.target()
	if err != nil || name == "" {
		// Player vanished between the running check and the command
		return nil
	}

	if err := p.withRetry(ctx, p.identity, "Pause", func() error {
		return p.conn.Call(ctx, name, mprisPath, methodPause)
	}); err != nil {
		return err
	}

	// Success means the player left Playing; Unknown also counts, the
	// player may have quit after accepting the command.
	return p.settle(ctx, "Pause", func(state domain.PlayState) bool {
		return state != domain.StatePlaying
	})
}

// Resume restarts playback, symmetric to Pause: no-op when the player is
// not running or already playing
func (p *mprisController) Resume(ctx context.Context) error {
	if !p.IsRunning(ctx) {
		p.logger.Debug("Resume skipped, player not running",
			zap.String("player", string(p.identity)))
		return nil
	}

	state := p.PlayState(ctx)
	if state == domain.StatePlaying {
		p.logger.Debug("Resume skipped, player already playing",
			zap.String("player", string(p.identity)))
		return nil
	}
	if state == domain.StateUnknown {
		return nil
	}
	if p.resumeOnlyFromPaused && state != domain.StatePaused {
		p.logger.Debug("Resume skipped, player not paused",
			zap.String("player", string(p.identity)),
			zap.String("state", string(state)))
		return nil
	}

	name, err := p.target()
	if err != nil || name == "" {
		return nil
	}

	if err := p.withRetry(ctx, p.identity, "Play", func() error {
		return p.conn.Call(ctx, name, mprisPath, methodPlay)
	}); err != nil {
		return err
	}

	return p.settle(ctx, "Play", func(state domain.PlayState) bool {
		return state == domain.StatePlaying
	})
}

// settle polls PlayState until done reports the command took effect, the
// settle window elapses, or the context ends
func (p *mprisController) settle(ctx context.Context, command string, done func(domain.PlayState) bool) error {
	deadline := time.Now().Add(p.opts.Settle)

	for {
		state := p.PlayState(ctx)
		if done(state) {
			return nil
		}
		if time.Now().After(deadline) {
			return &domain.ControlChannelError{
				Player:  p.identity,
				Command: command,
				Err:     fmt.Errorf("command did not take effect within %s (state %s)", p.opts.Settle, state),
			}
		}

		select {
		case <-ctx.Done():
			return &domain.ControlChannelError{Player: p.identity, Command: command, Err: ctx.Err()}
		case <-time.After(settlePollInterval):
		}
	}
}

// target returns the live bus name for this player, resolving instanced
// names by prefix scan. An empty name means the player is not on the bus.
func (p *mprisController) target() (string, error) {
	if !p.instanced {
		owned, err := p.conn.NameHasOwner(p.busName)
		if err != nil {
			return "", err
		}
		if !owned {
			return "", nil
		}
		return p.busName, nil
	}

	p.resolveMu.Lock()
	defer p.resolveMu.Unlock()

	if p.resolved != "" {
		return p.resolved, nil
	}

	names, err := p.conn.ListNames()
	if err != nil {
		return "", err
	}
	for _, name := range names {
		if strings.HasPrefix(name, p.busName) {
			p.resolved = name
			return name, nil
		}
	}
	return "", nil
}
