package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPongTimeout  = 60 * time.Second
	wsPingInterval = 30 * time.Second
)

// FrameSource produces encoded audio frames for publishing. Start begins
// capture and invokes emit once per frame; Stop ends capture.
type FrameSource interface {
	Start(emit func([]byte)) error
	Stop()
}

// FrameSink consumes received audio frames for playback.
type FrameSink interface {
	Play(frame []byte)
}

// wireEvent is the relay's JSON control message on an RTC channel. Binary
// websocket messages on the same connection carry audio frames.
type wireEvent struct {
	Type string `json:"type"`
	UID  int    `json:"uid,omitempty"`
	Code int    `json:"code,omitempty"`
}

// WSEngine is an Engine speaking the relay's websocket RTC protocol:
// broadcasters push binary audio frames, audiences receive them.
type WSEngine struct {
	serverURL string
	source    FrameSource
	sink      FrameSink

	mu        sync.Mutex
	writeMu   sync.Mutex // serialises conn writes (frames, pings)
	appID     string
	role      Role
	conn      *websocket.Conn
	publishing bool
	events    chan Event
	destroyed bool
}

// NewWSEngine creates an engine that joins channels on the relay at
// serverURL (e.g. "ws://127.0.0.1:8080"). source may be nil for
// audience-only use; sink may be nil to discard received audio.
func NewWSEngine(serverURL string, source FrameSource, sink FrameSink) *WSEngine {
	return &WSEngine{
		serverURL: serverURL,
		source:    source,
		sink:      sink,
		events:    make(chan Event, 16),
	}
}

// Init records the application id. A second init while the engine is live is
// a no-op.
func (e *WSEngine) Init(appID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.destroyed {
		return errors.New("engine destroyed")
	}
	if e.appID != "" {
		return nil
	}
	if appID == "" {
		return errors.New("empty app id")
	}
	e.appID = appID
	return nil
}

func (e *WSEngine) SetRole(role Role) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.appID == "" {
		return errors.New("engine not initialized")
	}
	if e.conn != nil {
		return errors.New("cannot change role while joined")
	}
	e.role = role
	return nil
}

func (e *WSEngine) Join(channel, token string, uid int, opts JoinOptions) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.appID == "" {
		return errors.New("engine not initialized")
	}
	if e.role == "" {
		return errors.New("role not set")
	}
	if e.conn != nil {
		return errors.New("already joined")
	}

	params := url.Values{}
	params.Set("role", string(e.role))
	params.Set("app_id", e.appID)
	params.Set("uid", strconv.Itoa(uid))
	if token != "" {
		params.Set("token", token)
	}
	target := fmt.Sprintf("%s/rtc/%s?%s", e.serverURL, url.PathEscape(channel), params.Encode())

	conn, _, err := websocket.DefaultDialer.Dial(target, nil)
	if err != nil {
		return fmt.Errorf("rtc dial: %w", err)
	}
	e.conn = conn

	go e.readLoop(conn, opts)
	go e.pingLoop(conn)

	if opts.PublishMic && e.source != nil {
		e.publishing = true
		if err := e.source.Start(func(frame []byte) { e.writeFrame(conn, frame) }); err != nil {
			e.publishing = false
			e.conn = nil
			conn.Close()
			return fmt.Errorf("frame source: %w", err)
		}
	}
	return nil
}

func (e *WSEngine) Leave() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.leaveLocked()
}

func (e *WSEngine) leaveLocked() error {
	if e.publishing && e.source != nil {
		e.source.Stop()
		e.publishing = false
	}
	if e.conn != nil {
		e.conn.Close()
		e.conn = nil
	}
	return nil
}

// Destroy releases the engine and closes the events channel. Idempotent.
func (e *WSEngine) Destroy() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.destroyed {
		return
	}
	e.leaveLocked()
	e.destroyed = true
	close(e.events)
}

func (e *WSEngine) Events() <-chan Event {
	return e.events
}

func (e *WSEngine) readLoop(conn *websocket.Conn, opts JoinOptions) {
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
		return nil
	})
	conn.SetReadDeadline(time.Now().Add(wsPongTimeout))

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			e.mu.Lock()
			stale := e.conn != conn
			e.mu.Unlock()
			if !stale {
				e.emit(Event{Kind: EventError, Err: err})
			}
			return
		}

		switch kind {
		case websocket.BinaryMessage:
			if opts.AutoSubscribeAudio && e.sink != nil {
				e.sink.Play(data)
			}
		case websocket.TextMessage:
			var ev wireEvent
			if err := json.Unmarshal(data, &ev); err != nil {
				continue
			}
			switch ev.Type {
			case "joined":
				e.emit(Event{Kind: EventJoined, UID: ev.UID})
			case "peer_joined":
				e.emit(Event{Kind: EventPeerJoined, UID: ev.UID})
			case "peer_left":
				e.emit(Event{Kind: EventPeerLeft, UID: ev.UID})
			case "error":
				e.emit(Event{Kind: EventError, Code: ev.Code})
			}
		}
	}
}

func (e *WSEngine) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	for range ticker.C {
		e.mu.Lock()
		current := e.conn
		e.mu.Unlock()
		if current != conn {
			return
		}
		e.writeMu.Lock()
		conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		err := conn.WriteMessage(websocket.PingMessage, nil)
		e.writeMu.Unlock()
		if err != nil {
			return
		}
	}
}

func (e *WSEngine) writeFrame(conn *websocket.Conn, frame []byte) {
	e.mu.Lock()
	current := e.conn
	e.mu.Unlock()
	if current != conn {
		return
	}
	e.writeMu.Lock()
	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	err := conn.WriteMessage(websocket.BinaryMessage, frame)
	e.writeMu.Unlock()
	if err != nil {
		log.Printf("rtc: frame write error: %v", err)
	}
}

// emit delivers an event without blocking; observability events may be
// dropped under backpressure.
func (e *WSEngine) emit(ev Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.destroyed {
		return
	}
	select {
	case e.events <- ev:
	default:
	}
}
