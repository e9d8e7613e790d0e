package transport

// State is the device-wide audio transport state. At most one non-idle
// value exists at any time; only the Controller mutates it.
type State int

const (
	StateIdle State = iota
	StateBroadcasting
	StateListening
)

var stateNames = map[State]string{
	StateIdle:         "idle",
	StateBroadcasting: "broadcasting",
	StateListening:    "listening",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "unknown"
}
