package api

// StartSessionResponse is returned by POST /api/start-session.
type StartSessionResponse struct {
	Pin string `json:"pin"`
	ID  string `json:"id"`
}

// JoinPinResponse is returned by POST /api/join-pin.
type JoinPinResponse struct {
	ID        string `json:"id"`
	SessionID string `json:"session_id"`
}

// ListenerStatusResponse is returned by GET /api/listeners/{id}.
type ListenerStatusResponse struct {
	ID          string `json:"id"`
	SessionID   string `json:"session_id"`
	DisplayName string `json:"display_name,omitempty"`
	Active      bool   `json:"active"`
}
