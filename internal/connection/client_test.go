package connection

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// mockWSServer creates a test WebSocket server.
func mockWSServer(t *testing.T, handler func(*websocket.Conn)) *httptest.Server {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer conn.Close()
		handler(conn)
	}))

	return server
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func testClientConfig(server *httptest.Server) ClientConfig {
	return ClientConfig{
		URL:          wsURL(server),
		WriteTimeout: 5 * time.Second,
		BufferSize:   100,
	}
}

func TestClient_Connect(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		// Just keep the connection open
		for {
			_, _, err := conn.ReadMessage()
			if err != nil {
				return
			}
		}
	})
	defer server.Close()

	client := NewClient(testClientConfig(server), nil)
	ctx := context.Background()

	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	if !client.IsConnected() {
		t.Error("expected IsConnected to return true")
	}

	if err := client.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}

	if client.IsConnected() {
		t.Error("expected IsConnected to return false after Close")
	}
}

func TestClient_Send(t *testing.T) {
	var received []byte
	var mu sync.Mutex

	server := mockWSServer(t, func(conn *websocket.Conn) {
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			mu.Lock()
			received = msg
			mu.Unlock()
		}
	})
	defer server.Close()

	client := NewClient(testClientConfig(server), nil)
	ctx := context.Background()

	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Close()

	testMsg := []byte(`{"type":"market","assets_ids":["123"]}`)
	if err := client.Send(testMsg); err != nil {
		t.Errorf("Send failed: %v", err)
	}

	// Wait for message to be received
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if string(received) != string(testMsg) {
		t.Errorf("received %q, want %q", received, testMsg)
	}
}

func TestClient_Messages(t *testing.T) {
	testMessages := []string{
		`[{"event_type":"book","asset_id":"1"}]`,
		`[{"event_type":"book","asset_id":"2"}]`,
		`[{"event_type":"book","asset_id":"3"}]`,
	}

	server := mockWSServer(t, func(conn *websocket.Conn) {
		for _, msg := range testMessages {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
		// Keep connection open
		time.Sleep(time.Second)
	})
	defer server.Close()

	client := NewClient(testClientConfig(server), nil)
	ctx := context.Background()

	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Close()

	var received []string
	timeout := time.After(500 * time.Millisecond)

	for i := 0; i < len(testMessages); i++ {
		select {
		case msg := <-client.Messages():
			received = append(received, string(msg.Data))
			if msg.ReceivedAt.IsZero() {
				t.Error("ReceivedAt should not be zero")
			}
		case <-timeout:
			t.Fatalf("timeout waiting for messages, received %d of %d", len(received), len(testMessages))
		}
	}

	for i, want := range testMessages {
		if received[i] != want {
			t.Errorf("message %d: got %q, want %q", i, received[i], want)
		}
	}
}

func TestClient_SendNotConnected(t *testing.T) {
	cfg := ClientConfig{
		URL:          "ws://localhost:12345",
		WriteTimeout: 5 * time.Second,
		BufferSize:   100,
	}

	client := NewClient(cfg, nil)

	if err := client.Send([]byte("test")); err != ErrNotConnected {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
	if err := client.Ping(); err != ErrNotConnected {
		t.Errorf("expected ErrNotConnected from Ping, got %v", err)
	}
}

func TestClient_DoubleClose(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		time.Sleep(time.Second)
	})
	defer server.Close()

	client := NewClient(testClientConfig(server), nil)
	ctx := context.Background()

	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	// First close should succeed
	if err := client.Close(); err != nil {
		t.Errorf("first Close failed: %v", err)
	}

	// Second close should be no-op
	if err := client.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
}

func TestClient_TerminateSurfacesError(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		for {
			_, _, err := conn.ReadMessage()
			if err != nil {
				return
			}
		}
	})
	defer server.Close()

	client := NewClient(testClientConfig(server), nil)
	ctx := context.Background()

	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	client.Terminate()

	select {
	case err := <-client.Errors():
		if err == nil {
			t.Error("expected a non-nil read error after Terminate")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for error after Terminate")
	}

	if client.IsConnected() {
		t.Error("expected IsConnected to return false after Terminate")
	}
}

func TestClient_CloseSuppressesError(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		for {
			_, _, err := conn.ReadMessage()
			if err != nil {
				return
			}
		}
	})
	defer server.Close()

	client := NewClient(testClientConfig(server), nil)
	ctx := context.Background()

	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	if err := client.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	select {
	case err := <-client.Errors():
		t.Errorf("unexpected error after graceful Close: %v", err)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestClient_ServerPingCountsAsLiveness(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		if err := conn.WriteControl(websocket.PingMessage, []byte("heartbeat"), time.Now().Add(time.Second)); err != nil {
			t.Logf("ping error: %v", err)
			return
		}
		// The read pump must run for control frames to be processed
		for {
			_, _, err := conn.ReadMessage()
			if err != nil {
				return
			}
		}
	})
	defer server.Close()

	client := NewClient(testClientConfig(server), nil)
	ctx := context.Background()

	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Close()

	select {
	case ts := <-client.Pongs():
		if ts.IsZero() {
			t.Error("pong timestamp should not be zero")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for liveness signal from server ping")
	}

	if !client.IsConnected() {
		t.Error("expected client to be connected after ping")
	}
}

func TestClient_PingGetsPongBack(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		// The default ping handler answers with a pong; the read pump just
		// has to run for control frames to be processed.
		for {
			_, _, err := conn.ReadMessage()
			if err != nil {
				return
			}
		}
	})
	defer server.Close()

	client := NewClient(testClientConfig(server), nil)
	ctx := context.Background()

	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Close()

	if err := client.Ping(); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}

	select {
	case ts := <-client.Pongs():
		if ts.IsZero() {
			t.Error("pong timestamp should not be zero")
		}
	case <-time.After(time.Second):
		t.Fatal("client never observed pong for its ping")
	}
}

func TestDefaultConfigs(t *testing.T) {
	clientCfg := DefaultClientConfig()
	if clientCfg.WriteTimeout != 5*time.Second {
		t.Errorf("WriteTimeout = %v, want 5s", clientCfg.WriteTimeout)
	}
	if clientCfg.BufferSize != 1000 {
		t.Errorf("BufferSize = %d, want 1000", clientCfg.BufferSize)
	}

	supCfg := DefaultSupervisorConfig()
	if supCfg.PingInterval != 10*time.Second {
		t.Errorf("PingInterval = %v, want 10s", supCfg.PingInterval)
	}
	if supCfg.ReconnectBaseDelay != 5*time.Second {
		t.Errorf("ReconnectBaseDelay = %v, want 5s", supCfg.ReconnectBaseDelay)
	}
	if supCfg.ReconnectMaxDelay != 60*time.Second {
		t.Errorf("ReconnectMaxDelay = %v, want 60s", supCfg.ReconnectMaxDelay)
	}
	if supCfg.MaxReconnectAttempts != 10 {
		t.Errorf("MaxReconnectAttempts = %d, want 10", supCfg.MaxReconnectAttempts)
	}
}
