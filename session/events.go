package session

// EventType identifies one event emitted by a Realtime session.
type EventType int

const (
	// EventReady fires once, when the backend has acknowledged the session
	// configuration.
	EventReady EventType = iota

	// EventMedia carries one outbound audio delta.
	EventMedia

	// EventClose fires when the backend connection closes.
	EventClose

	// EventError carries a backend failure.
	EventError
)

func (t EventType) String() string {
	switch t {
	case EventReady:
		return "ready"
	case EventMedia:
		return "media"
	case EventClose:
		return "close"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// MediaDelta is one outbound audio delta, tagged with the stream identifier
// known at emission time. StreamSID may be empty if the start frame has not
// arrived yet; consumers must tolerate that.
type MediaDelta struct {
	StreamSID string
	Payload   string // base64-encoded audio
}

// Event is one typed notification from a Realtime session to its relay. The
// relay subscribes once per call via Events.
type Event struct {
	Type  EventType
	Media MediaDelta // set when Type == EventMedia
	Err   error      // set when Type == EventError
}
