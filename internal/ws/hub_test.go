package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aaronlmathis/homemonitor/internal/series"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

func dialHub(t *testing.T, hub *Hub, room string) *websocket.Conn {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWS(w, r, room)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Failed to dial hub: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	return conn
}

func waitForClients(t *testing.T, hub *Hub, want int) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.ClientCount() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Expected %d clients, have %d", want, hub.ClientCount())
}

func TestHubBroadcastToRoom(t *testing.T) {
	health := series.NewHealthMetrics()
	hub := NewHub(zap.NewNop(), health)
	go hub.Run()
	defer hub.Stop()

	conn := dialHub(t, hub, "feeds")
	waitForClients(t, hub, 1)

	hub.BroadcastToRoom("feeds", "refresh", map[string]int{"channel": 1})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Failed to read broadcast: %v", err)
	}

	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		t.Fatalf("Failed to decode broadcast: %v", err)
	}
	if msg.Type != "refresh" {
		t.Errorf("Expected type refresh, got %q", msg.Type)
	}
	if msg.Room != "feeds" {
		t.Errorf("Expected room feeds, got %q", msg.Room)
	}
}

func TestHubBroadcastSkipsOtherRooms(t *testing.T) {
	health := series.NewHealthMetrics()
	hub := NewHub(zap.NewNop(), health)
	go hub.Run()
	defer hub.Stop()

	conn := dialHub(t, hub, "other")
	waitForClients(t, hub, 1)

	hub.BroadcastToRoom("feeds", "refresh", nil)

	conn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("Expected no message for a client in another room")
	}
}

func TestHubDropsSlowClientDuringBroadcast(t *testing.T) {
	hub := NewHub(zap.NewNop(), series.NewHealthMetrics())
	go hub.Run()
	defer hub.Stop()

	// A client that never drains its send buffer.
	client := &Client{hub: hub, send: make(chan []byte, 1), room: "feeds", id: "slow"}
	hub.register <- client
	waitForClients(t, hub, 1)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 8; i++ {
			hub.BroadcastToRoom("feeds", "refresh", i)
		}
	}()

	// Disconnect while the broadcasts are still being delivered. The
	// hub goroutine owns both paths, so this must not panic on a
	// closed send channel.
	hub.unregister <- client
	<-done

	waitForClients(t, hub, 0)
}

func TestServeWSAfterStop(t *testing.T) {
	hub := NewHub(zap.NewNop(), series.NewHealthMetrics())
	go hub.Run()
	hub.Stop()
	time.Sleep(50 * time.Millisecond)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWS(w, r, "feeds")
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		// Refusing the upgrade outright is also acceptable.
		return
	}
	defer conn.Close()

	// The server must close the connection rather than park the
	// handler on an unread register channel.
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	start := time.Now()
	if _, _, readErr := conn.ReadMessage(); readErr == nil {
		t.Fatal("Expected connection to be closed after hub stop")
	}
	if time.Since(start) > 2*time.Second {
		t.Error("Connection was left open after hub stop")
	}

	if hub.ClientCount() != 0 {
		t.Errorf("Expected no clients after stop, have %d", hub.ClientCount())
	}
}

func TestHubTracksClientCount(t *testing.T) {
	health := series.NewHealthMetrics()
	hub := NewHub(zap.NewNop(), health)
	go hub.Run()
	defer hub.Stop()

	conn := dialHub(t, hub, "feeds")
	waitForClients(t, hub, 1)

	if got := health.GetSnapshot().WSClientCount; got != 1 {
		t.Errorf("Expected health to report 1 client, got %d", got)
	}

	conn.Close()
	waitForClients(t, hub, 0)
}
