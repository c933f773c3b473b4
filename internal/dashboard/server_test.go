package dashboard

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/blendonl/mkanban-mobile/internal/events"
	"github.com/blendonl/mkanban-mobile/internal/types"
)

func newTestServer(t *testing.T) (*Server, *events.Bus) {
	t.Helper()

	bus := events.NewBus(log.New(io.Discard, "", 0))
	server := NewServer(bus, Config{
		Port:   0, // random available port
		Logger: log.New(io.Discard, "", 0),
	})

	if err := server.Start(); err != nil {
		t.Fatalf("failed to start server: %v", err)
	}
	t.Cleanup(func() { _ = server.Stop() })

	return server, bus
}

func TestServerStartStop(t *testing.T) {
	bus := events.NewBus(log.New(io.Discard, "", 0))
	server := NewServer(bus, Config{Port: 0, Logger: log.New(io.Discard, "", 0)})

	if err := server.Start(); err != nil {
		t.Fatalf("failed to start server: %v", err)
	}
	if server.Addr() == "" {
		t.Fatal("server address is empty")
	}
	if bus.TotalSubscriptions() == 0 {
		t.Fatal("server registered no bus subscriptions")
	}

	if err := server.Stop(); err != nil {
		t.Fatalf("failed to stop server: %v", err)
	}
	if got := bus.TotalSubscriptions(); got != 0 {
		t.Errorf("Stop left %d bus subscriptions", got)
	}
}

func TestHealthEndpoint(t *testing.T) {
	server, _ := newTestServer(t)

	resp, err := http.Get("http://" + server.Addr() + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status = %d", resp.StatusCode)
	}

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode health body: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("health status field = %v", body["status"])
	}
}

func TestBusEventsStreamToClient(t *testing.T) {
	server, bus := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws://"+server.Addr()+"/ws", nil)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	// Let the read loop register the client.
	deadline := time.Now().Add(2 * time.Second)
	for server.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	payload := events.FileChangedPayload{
		Entity: types.EntityBoard,
		Change: types.ChangeModified,
		Path:   "boards/work.md",
	}
	if err := bus.Publish(context.Background(), events.FileChanged, payload); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("failed to read frame: %v", err)
	}

	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("failed to unmarshal frame: %v", err)
	}
	if frame.Event != events.FileChanged {
		t.Errorf("frame event = %q, want %q", frame.Event, events.FileChanged)
	}
	if frame.Payload == nil {
		t.Error("frame payload missing")
	}
}

func TestUnstreamedEventsAreNotForwarded(t *testing.T) {
	_, bus := newTestServer(t)

	// The default set excludes raw task events; publishing one must not
	// reach the dashboard's subscriptions.
	if got := bus.SubscriptionCount(events.TaskCreated); got != 0 {
		t.Errorf("server subscribed to %q (%d handlers)", events.TaskCreated, got)
	}
}

func TestClientDisconnectIsNoticed(t *testing.T) {
	server, _ := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws://"+server.Addr()+"/ws", nil)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	conn.Close(websocket.StatusNormalClosure, "")

	deadline := time.Now().Add(2 * time.Second)
	for server.ClientCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("client count = %d after disconnect", server.ClientCount())
		}
		time.Sleep(10 * time.Millisecond)
	}
}
