package session

import "encoding/json"

// Role identifies which side of a tour this device plays.
type Role int

const (
	RoleGuide Role = iota
	RoleGuest
)

var roleNames = map[Role]string{
	RoleGuide: "guide",
	RoleGuest: "guest",
}

var roleFromName = map[string]Role{
	"guide": RoleGuide,
	"guest": RoleGuest,
}

func (r Role) String() string {
	if s, ok := roleNames[r]; ok {
		return s
	}
	return "unknown"
}

func (r Role) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

func (r *Role) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if v, ok := roleFromName[s]; ok {
		*r = v
	}
	return nil
}

// Identity binds a device to one live tour. It is created when a session is
// started (guide) or joined (guest) and is immutable until the tour ends.
// ListenerID is set for guests only and is used to notify the backend of a
// graceful leave.
type Identity struct {
	Pin        string `json:"pin"`
	SessionID  string `json:"sessionId"`
	Role       Role   `json:"role"`
	ListenerID string `json:"listenerId,omitempty"`
}

// Channel returns the audio channel name for this tour. Channels map 1:1 to
// the session PIN.
func (id *Identity) Channel() string {
	if id == nil {
		return ""
	}
	return id.Pin
}

// StatusSnapshot is the backend's authoritative view of a session, replaced
// wholesale on every successful poll. RemainingSeconds is nil when the
// backend does not report a time budget.
type StatusSnapshot struct {
	IsActive         bool `json:"is_active"`
	RemainingSeconds *int `json:"remaining_seconds"`
	CurrentListeners int  `json:"current_listeners"`
}

// License is the activated capacity for a guide. It is discarded
// unconditionally when the guide's tour ends; the next tour requires a fresh
// activation.
type License struct {
	Code             string `json:"code"`
	MaxGuests        int    `json:"max_guests"`
	RemainingMinutes int    `json:"remaining_minutes,omitempty"`
}
