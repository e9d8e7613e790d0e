package transport

// Role is the engine-level client role on a channel.
type Role string

const (
	RoleBroadcaster Role = "broadcaster"
	RoleAudience    Role = "audience"
)

// JoinOptions controls what a client publishes and subscribes to when
// joining a channel. Camera publishing does not exist in this system; audio
// is the only track.
type JoinOptions struct {
	PublishMic         bool
	AutoSubscribeAudio bool
}

// EventKind classifies asynchronous engine events.
type EventKind int

const (
	EventJoined EventKind = iota
	EventPeerJoined
	EventPeerLeft
	EventError
)

var eventKindNames = map[EventKind]string{
	EventJoined:     "joined",
	EventPeerJoined: "peer_joined",
	EventPeerLeft:   "peer_left",
	EventError:      "error",
}

func (k EventKind) String() string {
	if n, ok := eventKindNames[k]; ok {
		return n
	}
	return "unknown"
}

// Event is an asynchronous engine notification. Consumed for observability
// only; no control flow depends on it.
type Event struct {
	Kind EventKind
	UID  int
	Code int
	Err  error
}

// Engine is the real-time audio transport provider. Init must be idempotent
// while an engine instance is live. Implementations own their internal
// threading; callers interact only through these methods and the events
// channel, which is closed by Destroy.
type Engine interface {
	Init(appID string) error
	SetRole(role Role) error
	Join(channel, token string, uid int, opts JoinOptions) error
	Leave() error
	Destroy()
	Events() <-chan Event
}

// EngineFactory creates a fresh engine instance. A nil factory means the
// transport binding is missing on this build.
type EngineFactory func() Engine
