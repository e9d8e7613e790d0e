package relay

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"
)

// Server exposes the session REST API and the RTC websocket endpoint.
type Server struct {
	store *Store
	hub   *Hub
}

func NewServer(store *Store, hub *Hub) *Server {
	return &Server{store: store, hub: hub}
}

func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/healthz", s.handleHealthz)
	mux.HandleFunc("/api/activate-license", s.handleActivateLicense)
	mux.HandleFunc("/api/start-session", s.handleStartSession)
	mux.HandleFunc("/api/end-session", s.handleEndSession)
	mux.HandleFunc("/api/sessions/", s.handleSessionRoutes)
	mux.HandleFunc("/api/join-pin", s.handleJoinPin)
	mux.HandleFunc("/api/listeners/", s.handleListenerRoutes)
	mux.HandleFunc("/rtc/", s.handleRTC)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleActivateLicense(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeDetail(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var body struct {
		LicenseCode string `json:"license_code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.LicenseCode == "" {
		writeDetail(w, http.StatusBadRequest, "license_code required")
		return
	}

	lic, err := s.store.ActivateLicense(body.LicenseCode)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lic)
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeDetail(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	code := r.URL.Query().Get("license_code")
	if code == "" {
		writeDetail(w, http.StatusBadRequest, "license_code required")
		return
	}
	maxListeners := 0
	if raw := r.URL.Query().Get("max_listeners"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeDetail(w, http.StatusBadRequest, "max_listeners must be a number")
			return
		}
		maxListeners = n
	}

	pin, id, err := s.store.StartSession(code, maxListeners)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	log.Printf("relay: session %s started, pin %s", id, pin)
	writeJSON(w, http.StatusOK, map[string]string{"pin": pin, "id": id})
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeDetail(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id := r.URL.Query().Get("session_id")
	if id == "" {
		writeDetail(w, http.StatusBadRequest, "session_id required")
		return
	}

	// Drop the RTC channel along with the session so lingering clients
	// are disconnected rather than streaming into a dead session.
	pin, hadPin := s.store.PinForSession(id)
	if err := s.store.EndSession(id); err != nil {
		writeStoreError(w, err)
		return
	}
	if hadPin {
		s.hub.CloseChannel(pin)
	}
	log.Printf("relay: session %s ended", id)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ended"})
}

// handleSessionRoutes serves /api/sessions/{id}/status.
func (s *Server) handleSessionRoutes(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
	parts := strings.SplitN(path, "/", 2)
	if len(parts) != 2 || parts[1] != "status" {
		writeDetail(w, http.StatusNotFound, "not found")
		return
	}
	if r.Method != http.MethodGet {
		writeDetail(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	id, err := url.PathUnescape(parts[0])
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid session id")
		return
	}
	snap, err := s.store.Status(id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleJoinPin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeDetail(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	pin := r.URL.Query().Get("pin")
	if pin == "" {
		writeDetail(w, http.StatusBadRequest, "pin required")
		return
	}

	listenerID, sessionID, err := s.store.JoinPin(pin, r.URL.Query().Get("display_name"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	log.Printf("relay: listener %s joined session %s", listenerID, sessionID)
	writeJSON(w, http.StatusOK, map[string]string{"id": listenerID, "session_id": sessionID})
}

// handleListenerRoutes serves /api/listeners/{id} and
// /api/listeners/{id}/leave.
func (s *Server) handleListenerRoutes(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/listeners/")
	parts := strings.SplitN(path, "/", 2)

	id, err := url.PathUnescape(parts[0])
	if err != nil || id == "" {
		writeDetail(w, http.StatusBadRequest, "invalid listener id")
		return
	}

	switch {
	case len(parts) == 1:
		if r.Method != http.MethodGet {
			writeDetail(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		sessionID, displayName, active, err := s.store.Listener(id)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"id":           id,
			"session_id":   sessionID,
			"display_name": displayName,
			"active":       active,
		})
	case parts[1] == "leave":
		if r.Method != http.MethodPost {
			writeDetail(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if err := s.store.LeaveListener(id); err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "left"})
	default:
		writeDetail(w, http.StatusNotFound, "not found")
	}
}

// handleRTC upgrades /rtc/{channel} and pumps the connection through the hub
// until it drops.
func (s *Server) handleRTC(w http.ResponseWriter, r *http.Request) {
	channel := strings.TrimPrefix(r.URL.Path, "/rtc/")
	if channel == "" || strings.Contains(channel, "/") {
		writeDetail(w, http.StatusNotFound, "not found")
		return
	}
	role := r.URL.Query().Get("role")
	if role != "broadcaster" && role != "audience" {
		writeDetail(w, http.StatusBadRequest, "role must be broadcaster or audience")
		return
	}

	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("rtc upgrade error: %v", err)
		return
	}

	c := s.hub.Join(channel, role, conn)
	if c == nil {
		return
	}

	conn.SetPingHandler(func(data string) error {
		select {
		case c.send <- wsMessage{kind: websocket.PongMessage, data: []byte(data)}:
		default:
		}
		return nil
	})

	go func() {
		defer s.hub.Leave(channel, c)
		for {
			kind, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if kind == websocket.BinaryMessage {
				s.hub.Forward(channel, c, data)
			}
		}
	}()
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// writeStoreError maps store errors onto HTTP statuses.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrLicenseUnknown), errors.Is(err, ErrPinUnknown),
		errors.Is(err, ErrSessionUnknown), errors.Is(err, ErrListenerUnknown):
		writeDetail(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrLicenseUsed), errors.Is(err, ErrSessionInactive):
		writeDetail(w, http.StatusConflict, err.Error())
	case errors.Is(err, ErrSessionFull):
		writeDetail(w, http.StatusForbidden, err.Error())
	default:
		writeDetail(w, http.StatusInternalServerError, err.Error())
	}
}

// ListenAndServe starts the relay on host:port.
func ListenAndServe(host string, port int, mux *http.ServeMux) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	log.Printf("relay listening on %s", addr)
	return http.ListenAndServe(addr, mux)
}
