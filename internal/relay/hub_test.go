package relay

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func newRTCTestServer(t *testing.T) (*Hub, string) {
	t.Helper()
	hub := NewHub()
	mux := http.NewServeMux()
	NewServer(NewStore(time.Hour), hub).SetupRoutes(mux)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return hub, "ws" + strings.TrimPrefix(ts.URL, "http")
}

func dialRTC(t *testing.T, base, channel, role string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(base+"/rtc/"+channel+"?role="+role, nil)
	if err != nil {
		t.Fatalf("dial %s as %s: %v", channel, role, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readControl reads text messages until one arrives, skipping binary frames.
func readControl(t *testing.T, conn *websocket.Conn) controlEvent {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read control: %v", err)
		}
		if kind != websocket.TextMessage {
			continue
		}
		var ev controlEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			t.Fatalf("unmarshal control %q: %v", data, err)
		}
		return ev
	}
}

func readBinary(t *testing.T, conn *websocket.Conn) []byte {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read binary: %v", err)
		}
		if kind == websocket.BinaryMessage {
			return data
		}
	}
}

func TestJoinHandshake(t *testing.T) {
	_, base := newRTCTestServer(t)

	guide := dialRTC(t, base, "006BT9", "broadcaster")
	ev := readControl(t, guide)
	if ev.Type != "joined" || ev.UID == 0 {
		t.Fatalf("first event = %+v, want joined with uid", ev)
	}

	guest := dialRTC(t, base, "006BT9", "audience")
	if ev := readControl(t, guest); ev.Type != "joined" {
		t.Fatalf("guest first event = %+v", ev)
	}
	// The guest learns about the broadcaster already on the channel, and
	// the broadcaster hears about the guest.
	if ev := readControl(t, guest); ev.Type != "peer_joined" {
		t.Errorf("guest second event = %+v, want peer_joined", ev)
	}
	if ev := readControl(t, guide); ev.Type != "peer_joined" {
		t.Errorf("broadcaster event = %+v, want peer_joined", ev)
	}
}

func TestAudioFanOut(t *testing.T) {
	_, base := newRTCTestServer(t)

	guide := dialRTC(t, base, "006BT9", "broadcaster")
	readControl(t, guide)
	guestA := dialRTC(t, base, "006BT9", "audience")
	readControl(t, guestA)
	guestB := dialRTC(t, base, "006BT9", "audience")
	readControl(t, guestB)

	frame := []byte{0x01, 0x02, 0x03, 0x04}
	if err := guide.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		t.Fatalf("write frame: %v", err)
	}

	for name, conn := range map[string]*websocket.Conn{"A": guestA, "B": guestB} {
		got := readBinary(t, conn)
		if string(got) != string(frame) {
			t.Errorf("guest %s frame = %v, want %v", name, got, frame)
		}
	}
}

func TestAudienceFramesNotRelayed(t *testing.T) {
	_, base := newRTCTestServer(t)

	guide := dialRTC(t, base, "006BT9", "broadcaster")
	readControl(t, guide)
	guest := dialRTC(t, base, "006BT9", "audience")
	readControl(t, guest)

	guest.WriteMessage(websocket.BinaryMessage, []byte{0xFF})

	guide.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	for {
		kind, _, err := guide.ReadMessage()
		if err != nil {
			break
		}
		if kind == websocket.BinaryMessage {
			t.Fatal("audience frame must not reach the broadcaster")
		}
	}
}

func TestSecondBroadcasterRejected(t *testing.T) {
	_, base := newRTCTestServer(t)

	first := dialRTC(t, base, "006BT9", "broadcaster")
	readControl(t, first)

	second := dialRTC(t, base, "006BT9", "broadcaster")
	ev := readControl(t, second)
	if ev.Type != "error" || ev.Code != codeBroadcasterTaken {
		t.Fatalf("second broadcaster event = %+v, want error %d", ev, codeBroadcasterTaken)
	}
	second.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := second.ReadMessage(); err == nil {
		t.Error("rejected connection must be closed")
	}
}

func TestPeerLeftOnDisconnect(t *testing.T) {
	_, base := newRTCTestServer(t)

	guide := dialRTC(t, base, "006BT9", "broadcaster")
	readControl(t, guide)
	guest := dialRTC(t, base, "006BT9", "audience")
	readControl(t, guest)
	readControl(t, guide) // peer_joined for the guest

	guest.Close()

	ev := readControl(t, guide)
	if ev.Type != "peer_left" {
		t.Fatalf("event = %+v, want peer_left", ev)
	}
}

func TestCloseChannelDropsClients(t *testing.T) {
	hub, base := newRTCTestServer(t)

	guide := dialRTC(t, base, "006BT9", "broadcaster")
	readControl(t, guide)
	guest := dialRTC(t, base, "006BT9", "audience")
	readControl(t, guest)

	hub.CloseChannel("006BT9")

	guest.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := guest.ReadMessage(); err != nil {
			break
		}
	}
	if n := hub.ClientCount("006BT9"); n != 0 {
		t.Errorf("ClientCount = %d, want 0", n)
	}
}

func TestChannelsAreIsolated(t *testing.T) {
	_, base := newRTCTestServer(t)

	guideA := dialRTC(t, base, "AAAAAA", "broadcaster")
	readControl(t, guideA)
	guestB := dialRTC(t, base, "BBBBBB", "audience")
	readControl(t, guestB)

	guideA.WriteMessage(websocket.BinaryMessage, []byte{0x01})

	guestB.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	for {
		kind, _, err := guestB.ReadMessage()
		if err != nil {
			break
		}
		if kind == websocket.BinaryMessage {
			t.Fatal("frame crossed channel boundary")
		}
	}
}
