package domain

import "context"

// Controller is the uniform control surface every player backend implements.
// Implementations talk to an external process they do not own: the process
// can appear, disappear or change state at any moment, so every call
// re-resolves it. Calls mutate nothing but the external player's transport
// state; bookkeeping lives in the coordinator.
type Controller interface {
	// Identity returns the stable identifier of the player this backend controls
	Identity() PlayerIdentity

	// BeginPass resets per-pass caches (the running-check memo). The
	// coordinator calls it on every handle at the start of a transition so
	// one transition performs at most one process lookup per player.
	BeginPass()

	// IsRunning reports whether the target application has a live process.
	// It never fails; lookup errors resolve to false.
	IsRunning(ctx context.Context) bool

	// PlayState returns the player's transport state, or StateUnknown if
	// the player is not running or the control channel is unreachable.
	// Query failures are not retried; a stale Unknown is cheaper than
	// blocking the transition.
	PlayState(ctx context.Context) PlayState

	// Pause pauses playback. No-op when the player is not running or is
	// already paused/stopped. Returns a ControlChannelError when the
	// command cannot be delivered or does not take effect within the
	// bounded wait.
	Pause(ctx context.Context) error

	// Resume restarts playback, symmetric to Pause: no-op when the player
	// is not running or already playing.
	Resume(ctx context.Context) error
}

// DeviceMonitor observes the host's audio output route and reports when the
// managed sink engages or disengages as the default output
type DeviceMonitor interface {
	// Start begins monitoring. It blocks until the context is cancelled
	// or an unrecoverable error occurs.
	Start(ctx context.Context) error

	// Stop gracefully stops the monitor
	Stop(ctx context.Context) error

	// Transitions returns the channel on which normalized transitions are
	// delivered. Bursts are coalesced: only the latest pending transition
	// is ever observable on this channel.
	Transitions() <-chan DeviceTransition
}

// PauseQuery is the read-only surface exposed to a UI shell
type PauseQuery interface {
	// IsPlayerKnown reports whether a backend is registered for the identity
	IsPlayerKnown(id PlayerIdentity) bool

	// ManagedPauses returns the players currently paused by the system
	// and not yet resumed
	ManagedPauses() []PlayerIdentity
}
