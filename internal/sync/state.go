package sync

import (
	"github.com/pawsitive/pawsync/internal/gateway"
	"github.com/pawsitive/pawsync/internal/schema"
)

// State is the lifecycle position of an Engine.
type State int

const (
	// StateLoading waits for the first snapshot.
	StateLoading State = iota
	// StateSynced holds a loaded session with no save in flight.
	StateSynced
	// StateSaving has a SetMerged call in flight.
	StateSaving
	// StateNotFound is terminal: the session was deleted or never existed.
	StateNotFound
	// StateErrored is terminal: the store failed with Kind().
	StateErrored
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateSynced:
		return "synced"
	case StateSaving:
		return "saving"
	case StateNotFound:
		return "not_found"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateNotFound || s == StateErrored
}

// Ready reports whether mutations are accepted.
func (s State) Ready() bool {
	return s == StateSynced || s == StateSaving
}

// EventType identifies what an Event reports.
type EventType int

const (
	// EventLoaded follows the first snapshot.
	EventLoaded EventType = iota
	// EventRemoteUpdate follows a changed snapshot from another client.
	EventRemoteUpdate
	// EventNoticeCleared follows the expiry of the update notice.
	EventNoticeCleared
	// EventLocalChange follows an applied local mutation.
	EventLocalChange
	// EventSaving follows the start of a save.
	EventSaving
	// EventSaved follows the end of a save; Err is set on failure.
	EventSaved
	// EventNotFound reports the terminal NotFound state.
	EventNotFound
	// EventErrored reports the terminal Errored state.
	EventErrored
)

// String returns a human-readable representation of the event type.
func (t EventType) String() string {
	switch t {
	case EventLoaded:
		return "loaded"
	case EventRemoteUpdate:
		return "remote_update"
	case EventNoticeCleared:
		return "notice_cleared"
	case EventLocalChange:
		return "local_change"
	case EventSaving:
		return "saving"
	case EventSaved:
		return "saved"
	case EventNotFound:
		return "not_found"
	case EventErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Event is one engine notification.
type Event struct {
	Type  EventType
	State State

	// Session is a copy of the state after Loaded, RemoteUpdate and
	// LocalChange events.
	Session *schema.Session

	// Notice is true while the "update received" notice is showing.
	Notice bool

	// Kind classifies Err for EventErrored and failed EventSaved.
	Kind gateway.Kind
	Err  error
}
