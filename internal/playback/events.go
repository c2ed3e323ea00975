package playback

import "time"

// State is the controller's readiness.
type State int

const (
	Uninitialized State = iota
	Connecting
	Ready
	Degraded
	Disconnected
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Connecting:
		return "connecting"
	case Ready:
		return "ready"
	case Degraded:
		return "degraded"
	case Disconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// EventKind names a player callback.
type EventKind int

const (
	EventReady EventKind = iota
	EventNotReady
	EventStateChanged
	EventInitializationError
	EventAuthenticationError
	EventAccountError
	EventPlaybackError
	EventSessionLost
)

func (k EventKind) String() string {
	switch k {
	case EventReady:
		return "ready"
	case EventNotReady:
		return "not_ready"
	case EventStateChanged:
		return "player_state_changed"
	case EventInitializationError:
		return "initialization_error"
	case EventAuthenticationError:
		return "authentication_error"
	case EventAccountError:
		return "account_error"
	case EventPlaybackError:
		return "playback_error"
	case EventSessionLost:
		return "session_lost"
	default:
		return "unknown"
	}
}

// Event is one player callback.
type Event struct {
	Kind     EventKind
	DeviceID string
	State    *PlayerState
	Err      error

	generation uint64
}

// PlayerState is the lightweight state reported with player_state_changed.
type PlayerState struct {
	TrackID    string
	TrackName  string
	ContextURI string
	Position   time.Duration
	Duration   time.Duration
	Paused     bool
	Shuffle    bool
	// Volume is in [0,1] and only meaningful when HasVolume is set.
	Volume    float64
	HasVolume bool
}

// NoticeLevel grades a [Notice].
type NoticeLevel int

const (
	NoticeInfo NoticeLevel = iota
	NoticeError
)

// Notice is a user-facing message, rendered by the host as a toast.
type Notice struct {
	Level   NoticeLevel
	Message string
	Err     error
}

// Notifier shows notices to the user.
type Notifier interface {
	Notify(Notice)
}

// NotifierFunc adapts a function to [Notifier].
type NotifierFunc func(Notice)

func (f NotifierFunc) Notify(n Notice) { f(n) }
