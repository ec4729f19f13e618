package live

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/gorilla/mux"

	"github.com/furnivision/furnivision/internal/design"
)

func startServer(t *testing.T, exists func(string) bool) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub()
	go hub.Run()

	r := mux.NewRouter()
	r.HandleFunc("/ws/sessions/{sessionId}", NewHandler(hub, exists, nil).Watch)
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		srv.Close()
		hub.Stop()
	})
	return hub, srv
}

func dial(t *testing.T, ctx context.Context, srv *httptest.Server, sessionID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/sessions/" + sessionID
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func readMessage(t *testing.T, ctx context.Context, conn *websocket.Conn) Message {
	t.Helper()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal %s: %v", data, err)
	}
	return msg
}

func waitForWatchers(t *testing.T, hub *Hub, sessionID string, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.Watchers(sessionID) != n {
		if time.Now().After(deadline) {
			t.Fatalf("watchers = %d, want %d", hub.Watchers(sessionID), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestPublishReachesSessionWatchers(t *testing.T) {
	hub, srv := startServer(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	a := dial(t, ctx, srv, "s1")
	b := dial(t, ctx, srv, "s2")
	if msg := readMessage(t, ctx, a); msg.Type != TypeHello || msg.SessionID != "s1" {
		t.Fatalf("hello = %+v", msg)
	}
	readMessage(t, ctx, b)
	waitForWatchers(t, hub, "s1", 1)

	hub.Publish("s1", design.Change{Kind: design.ChangeAdded, Revision: 3, FurnitureID: 7})
	hub.Publish("s2", design.Change{Kind: design.ChangeRoom, Revision: 1})

	got := readMessage(t, ctx, a)
	if got.Type != TypeDesignChanged || got.Kind != design.ChangeAdded || got.Revision != 3 || got.FurnitureID != 7 {
		t.Fatalf("s1 message = %+v", got)
	}
	if got := readMessage(t, ctx, b); got.Kind != design.ChangeRoom {
		t.Fatalf("s2 message = %+v", got)
	}
}

func TestUnknownSessionRejected(t *testing.T) {
	_, srv := startServer(t, func(id string) bool { return id == "known" })

	resp, err := http.Get(srv.URL + "/ws/sessions/missing")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestDisconnectRemovesWatcher(t *testing.T) {
	hub, srv := startServer(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dial(t, ctx, srv, "s1")
	readMessage(t, ctx, conn)
	waitForWatchers(t, hub, "s1", 1)

	conn.Close(websocket.StatusNormalClosure, "bye")
	waitForWatchers(t, hub, "s1", 0)

	// Publishing to an empty room is a no-op.
	hub.Publish("s1", design.Change{Kind: design.ChangeRemoved, Revision: 2, FurnitureID: 1})
}

func TestClosedNotifiesWatchers(t *testing.T) {
	hub, srv := startServer(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dial(t, ctx, srv, "s1")
	readMessage(t, ctx, conn)
	waitForWatchers(t, hub, "s1", 1)

	hub.Closed("s1")
	if msg := readMessage(t, ctx, conn); msg.Type != TypeSessionClosed {
		t.Fatalf("message = %+v", msg)
	}
}
