package domain

// PlayState represents the transport state of an external media player
type PlayState string

const (
	// StatePlaying indicates the player is currently playing
	StatePlaying PlayState = "Playing"
	// StatePaused indicates the player is paused
	StatePaused PlayState = "Paused"
	// StateStopped indicates the player is stopped
	StateStopped PlayState = "Stopped"
	// StateUnknown indicates the player is not running or its control
	// channel could not be queried
	StateUnknown PlayState = "Unknown"
)

// PlayerIdentity is the stable identifier of a supported player application.
// For MPRIS players this is the well-known bus name
// (e.g. "org.mpris.MediaPlayer2.spotify"). Immutable once registered.
type PlayerIdentity string

// DeviceTransition is a normalized output-route change
type DeviceTransition int

const (
	// TransitionEngaged means the managed sink became the default output
	TransitionEngaged DeviceTransition = iota
	// TransitionDisengaged means the managed sink stopped being the default output
	TransitionDisengaged
)

func (t DeviceTransition) String() string {
	switch t {
	case TransitionEngaged:
		return "engaged"
	case TransitionDisengaged:
		return "disengaged"
	default:
		return "unknown"
	}
}
