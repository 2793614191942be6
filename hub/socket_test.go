package hub

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// startSocketServer serves websocket upgrades that join every connection to
// the same room, mirroring the production handler. startWriter=false leaves
// the send buffer undrained so overflow drops can be provoked.
func startSocketServer(t *testing.T, h *Hub, sendBuf int, startWriter bool) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		client := &Client{
			ID:       r.URL.Query().Get("id"),
			ScriptID: "script-a",
			Hub:      h,
			Conn:     conn,
			Send:     make(chan []byte, sendBuf),
		}
		h.Register(client)
		if startWriter {
			go client.WritePump()
		}
		go client.ReadPump()
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dialSocket(t *testing.T, srv *httptest.Server, id string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?id=" + id
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dialing: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("reading frame: %v", err)
	}
	return msg
}

func TestSocketJoinPongAndErrorReplies(t *testing.T) {
	h := startHub(t)
	srv := startSocketServer(t, h, 16, true)

	conn := dialSocket(t, srv, "c1")
	if msg := readFrame(t, conn); msg.Type != TypeConnectionAck {
		t.Fatalf("first frame = %s, want connection_ack", msg.Type)
	}

	if err := conn.WriteJSON(Message{Type: TypePing}); err != nil {
		t.Fatalf("writing ping: %v", err)
	}
	if msg := readFrame(t, conn); msg.Type != TypePong {
		t.Fatalf("frame = %s, want pong", msg.Type)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("writing garbage: %v", err)
	}
	msg := readFrame(t, conn)
	if msg.Type != TypeError || msg.Code != "bad_message" {
		t.Fatalf("frame = %s/%s, want error/bad_message", msg.Type, msg.Code)
	}

	if err := conn.WriteJSON(Message{Type: "rewind"}); err != nil {
		t.Fatalf("writing unknown type: %v", err)
	}
	msg = readFrame(t, conn)
	if msg.Type != TypeError || msg.Code != "unknown_type" {
		t.Fatalf("frame = %s/%s, want error/unknown_type", msg.Type, msg.Code)
	}
}

func TestSocketPositionSyncBetweenConnections(t *testing.T) {
	h := startHub(t)
	srv := startSocketServer(t, h, 16, true)

	sender := dialSocket(t, srv, "sender")
	readFrame(t, sender) // ack

	listener := dialSocket(t, srv, "listener")
	readFrame(t, listener) // ack
	if msg := readFrame(t, sender); msg.Type != TypeParticipantJoin {
		t.Fatalf("frame = %s, want participant_join", msg.Type)
	}

	pos := 12.5
	playing := true
	if err := sender.WriteJSON(Message{Type: TypePositionSync, CurrentTime: &pos, IsPlaying: &playing}); err != nil {
		t.Fatalf("writing position: %v", err)
	}
	msg := readFrame(t, listener)
	if msg.Type != TypePositionSync || msg.CurrentTime == nil || *msg.CurrentTime != 12.5 {
		t.Fatalf("listener frame = %+v, want position_sync at 12.5", msg)
	}
}

func TestSocketSilentConnectionReclaimed(t *testing.T) {
	h := NewHub(testLogger(), 50*time.Millisecond, 2)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.Run(ctx)
	srv := startSocketServer(t, h, 16, true)

	watcher := dialSocket(t, srv, "watcher")
	readFrame(t, watcher) // ack

	// The silent connection reads its ack and then nothing: it never pongs
	// the server's pings, so the read deadline window expires.
	silent := dialSocket(t, srv, "silent")
	readFrame(t, silent)

	if msg := readFrame(t, watcher); msg.Type != TypeParticipantJoin {
		t.Fatalf("frame = %s, want participant_join", msg.Type)
	}

	// The watcher keeps reading, which answers pings and keeps it alive.
	msg := readFrame(t, watcher)
	if msg.Type != TypeParticipantLeave || msg.ConnectionID != "silent" {
		t.Fatalf("frame = %+v, want participant_leave for silent", msg)
	}
}

func TestSocketPingAfterDropDoesNotCrashServer(t *testing.T) {
	h := startHub(t)
	// One-slot buffers and no write pump: the ack fills the buffer, so the
	// next fan-out drops the connection from the room.
	srv := startSocketServer(t, h, 1, false)

	first := dialSocket(t, srv, "first")
	dialSocket(t, srv, "second") // join fan-out overflows first's buffer
	time.Sleep(200 * time.Millisecond)

	// The dropped connection's read side is still running; its ping must
	// be discarded by the hub loop, not sent on the closed channel.
	if err := first.WriteJSON(Message{Type: TypePing}); err != nil {
		t.Fatalf("writing ping: %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	late := newClient(h, "late", "script-a")
	h.Register(late)
	if msg := recv(t, late); msg.Type != TypeConnectionAck {
		t.Fatalf("frame = %s, want connection_ack (hub loop dead?)", msg.Type)
	}
}
