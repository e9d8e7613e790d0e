package relay

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/gorilla/websocket"
)

// controlEvent is the JSON control message sent alongside binary audio
// frames on an RTC connection.
type controlEvent struct {
	Type string `json:"type"`
	UID  int    `json:"uid,omitempty"`
	Code int    `json:"code,omitempty"`
}

// codeBroadcasterTaken is sent when a second broadcaster tries to claim a
// channel that already has one.
const codeBroadcasterTaken = 17

type wsMessage struct {
	kind int
	data []byte
}

type rtcClient struct {
	conn *websocket.Conn
	send chan wsMessage
	done chan struct{}
	once sync.Once
	uid  int
	role string
}

func newRTCClient(conn *websocket.Conn, uid int, role string) *rtcClient {
	c := &rtcClient{
		conn: conn,
		send: make(chan wsMessage, 64),
		done: make(chan struct{}),
		uid:  uid,
		role: role,
	}
	go c.writePump()
	return c
}

func (c *rtcClient) writePump() {
	defer c.conn.Close()
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			if err := c.conn.WriteMessage(msg.kind, msg.data); err != nil {
				return
			}
		}
	}
}

// close stops the write pump. The send channel stays open so late senders
// holding a stale handle cannot panic.
func (c *rtcClient) close() {
	c.once.Do(func() { close(c.done) })
}

type rtcChannel struct {
	name        string
	broadcaster *rtcClient
	audience    map[*rtcClient]bool
	nextUID     int
}

// Hub fans audio out per channel: one broadcaster pushes binary frames, the
// audience receives them. Control messages announce peer arrivals and
// departures.
type Hub struct {
	mu       sync.Mutex
	channels map[string]*rtcChannel
}

func NewHub() *Hub {
	return &Hub{channels: make(map[string]*rtcChannel)}
}

// Join admits a connection into a channel and returns its client handle.
// A channel holds at most one broadcaster; a competing broadcaster is told
// so and turned away with a nil client.
func (h *Hub) Join(channelName, role string, conn *websocket.Conn) *rtcClient {
	h.mu.Lock()
	ch, ok := h.channels[channelName]
	if !ok {
		ch = &rtcChannel{name: channelName, audience: make(map[*rtcClient]bool), nextUID: 1}
		h.channels[channelName] = ch
	}

	if role == "broadcaster" && ch.broadcaster != nil {
		h.mu.Unlock()
		data, _ := json.Marshal(controlEvent{Type: "error", Code: codeBroadcasterTaken})
		conn.WriteMessage(websocket.TextMessage, data)
		conn.Close()
		return nil
	}

	uid := ch.nextUID
	ch.nextUID++
	c := newRTCClient(conn, uid, role)
	if role == "broadcaster" {
		ch.broadcaster = c
	} else {
		ch.audience[c] = true
	}
	peers := ch.peersOf(c)
	h.mu.Unlock()

	c.sendControl(controlEvent{Type: "joined", UID: uid})
	// Tell the newcomer who is already here, and everyone else who arrived.
	for _, p := range peers {
		c.sendControl(controlEvent{Type: "peer_joined", UID: p.uid})
	}
	h.notify(channelName, c, controlEvent{Type: "peer_joined", UID: uid})
	log.Printf("rtc: %s joined channel %s as uid %d", role, channelName, uid)
	return c
}

// Leave removes a client from its channel and tells the remaining peers.
func (h *Hub) Leave(channelName string, c *rtcClient) {
	h.mu.Lock()
	ch, ok := h.channels[channelName]
	if !ok {
		h.mu.Unlock()
		return
	}
	if ch.broadcaster == c {
		ch.broadcaster = nil
	} else if ch.audience[c] {
		delete(ch.audience, c)
	} else {
		h.mu.Unlock()
		return
	}
	empty := ch.broadcaster == nil && len(ch.audience) == 0
	if empty {
		delete(h.channels, channelName)
	}
	h.mu.Unlock()

	c.close()
	h.notify(channelName, nil, controlEvent{Type: "peer_left", UID: c.uid})
	log.Printf("rtc: uid %d left channel %s", c.uid, channelName)
}

// Forward relays a broadcaster's audio frame to the channel's audience.
// Frames to a client that cannot keep up are dropped, not queued.
func (h *Hub) Forward(channelName string, from *rtcClient, frame []byte) {
	if from.role != "broadcaster" {
		return
	}
	h.mu.Lock()
	ch, ok := h.channels[channelName]
	if !ok {
		h.mu.Unlock()
		return
	}
	targets := make([]*rtcClient, 0, len(ch.audience))
	for a := range ch.audience {
		targets = append(targets, a)
	}
	h.mu.Unlock()

	for _, t := range targets {
		select {
		case t.send <- wsMessage{kind: websocket.BinaryMessage, data: frame}:
		default:
		}
	}
}

// CloseChannel disconnects every client on a channel. Used when the session
// behind the channel ends.
func (h *Hub) CloseChannel(channelName string) {
	h.mu.Lock()
	ch, ok := h.channels[channelName]
	if !ok {
		h.mu.Unlock()
		return
	}
	delete(h.channels, channelName)
	clients := make([]*rtcClient, 0, len(ch.audience)+1)
	if ch.broadcaster != nil {
		clients = append(clients, ch.broadcaster)
	}
	for a := range ch.audience {
		clients = append(clients, a)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
	log.Printf("rtc: channel %s closed, %d clients dropped", channelName, len(clients))
}

// ClientCount reports how many clients a channel holds.
func (h *Hub) ClientCount(channelName string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch, ok := h.channels[channelName]
	if !ok {
		return 0
	}
	n := len(ch.audience)
	if ch.broadcaster != nil {
		n++
	}
	return n
}

// notify sends a control event to every client on the channel except skip.
// A client whose queue is full is disconnected rather than skipped; control
// messages must not be silently lost.
func (h *Hub) notify(channelName string, skip *rtcClient, ev controlEvent) {
	h.mu.Lock()
	ch, ok := h.channels[channelName]
	if !ok {
		h.mu.Unlock()
		return
	}
	targets := make([]*rtcClient, 0, len(ch.audience)+1)
	if ch.broadcaster != nil && ch.broadcaster != skip {
		targets = append(targets, ch.broadcaster)
	}
	for a := range ch.audience {
		if a != skip {
			targets = append(targets, a)
		}
	}
	h.mu.Unlock()

	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	for _, t := range targets {
		select {
		case t.send <- wsMessage{kind: websocket.TextMessage, data: data}:
		default:
			log.Printf("rtc: client uid %d too slow, disconnecting", t.uid)
			h.Leave(channelName, t)
		}
	}
}

func (c *rtcClient) sendControl(ev controlEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	select {
	case c.send <- wsMessage{kind: websocket.TextMessage, data: data}:
	default:
	}
}

// peersOf lists the other clients already on the channel. Caller holds the
// hub lock.
func (ch *rtcChannel) peersOf(c *rtcClient) []*rtcClient {
	peers := make([]*rtcClient, 0, len(ch.audience)+1)
	if ch.broadcaster != nil && ch.broadcaster != c {
		peers = append(peers, ch.broadcaster)
	}
	for a := range ch.audience {
		if a != c {
			peers = append(peers, a)
		}
	}
	return peers
}
