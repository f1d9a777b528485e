package dashboard

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"testing"
	"time"

	"github.com/coder/websocket"
)

func testConfig() *Config {
	return &Config{
		Port:   0, // Use random available port
		Logger: log.New(io.Discard, "", 0),
	}
}

func TestServerStartStop(t *testing.T) {
	server := NewServer(testConfig())

	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	if addr := server.GetAddr(); addr == "" {
		t.Fatal("Server address is empty")
	}

	if err := server.Stop(); err != nil {
		t.Fatalf("Failed to stop server: %v", err)
	}
}

func TestWebSocketConnection(t *testing.T) {
	server := NewServer(testConfig())

	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	defer server.Stop()

	time.Sleep(100 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws://" + server.GetAddr() + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	if count := server.ClientCount(); count != 1 {
		t.Errorf("Expected 1 client, got %d", count)
	}

	// Read welcome message
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Failed to read welcome message: %v", err)
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Failed to unmarshal message: %v", err)
	}
	if msg.Type != MessageTypeStats {
		t.Errorf("Expected welcome message type %s, got %s", MessageTypeStats, msg.Type)
	}
}

func TestMessageBroadcast(t *testing.T) {
	server := NewServer(testConfig())

	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	defer server.Stop()

	time.Sleep(100 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws://" + server.GetAddr() + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	// Read welcome message
	if _, _, err := conn.Read(ctx); err != nil {
		t.Fatalf("Failed to read welcome message: %v", err)
	}

	// Broadcast a test message
	testData := ImportStartedData{
		Source: "/drop/inbox.deck",
		Tags:   "auto",
	}
	dataJSON, _ := json.Marshal(testData)
	server.Broadcast(Message{
		Type:      MessageTypeImportStarted,
		Timestamp: time.Now(),
		Data:      dataJSON,
	})

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Failed to read broadcast message: %v", err)
	}

	var received Message
	if err := json.Unmarshal(data, &received); err != nil {
		t.Fatalf("Failed to unmarshal message: %v", err)
	}
	if received.Type != MessageTypeImportStarted {
		t.Errorf("Expected message type %s, got %s", MessageTypeImportStarted, received.Type)
	}

	var receivedData ImportStartedData
	if err := json.Unmarshal(received.Data, &receivedData); err != nil {
		t.Fatalf("Failed to unmarshal import data: %v", err)
	}
	if receivedData.Source != testData.Source {
		t.Errorf("Expected source %s, got %s", testData.Source, receivedData.Source)
	}
}

func TestHandlerImportEvents(t *testing.T) {
	server := NewServer(testConfig())

	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	defer server.Stop()

	time.Sleep(100 * time.Millisecond)

	handler := NewHandler(server, log.New(io.Discard, "", 0))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws://" + server.GetAddr() + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	// Read welcome message
	if _, _, err := conn.Read(ctx); err != nil {
		t.Fatalf("Failed to read welcome message: %v", err)
	}

	handler.OnImportComplete("/drop/inbox.deck", 42, 3*time.Second, nil)

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Failed to read import complete: %v", err)
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Failed to unmarshal message: %v", err)
	}
	if msg.Type != MessageTypeImportComplete {
		t.Errorf("Expected message type %s, got %s", MessageTypeImportComplete, msg.Type)
	}

	var completeData ImportCompleteData
	if err := json.Unmarshal(msg.Data, &completeData); err != nil {
		t.Fatalf("Failed to unmarshal complete data: %v", err)
	}
	if completeData.NotesAdded != 42 {
		t.Errorf("Expected 42 notes added, got %d", completeData.NotesAdded)
	}
	if completeData.Error != "" {
		t.Errorf("Expected no error, got %q", completeData.Error)
	}
}

func TestHandlerStats(t *testing.T) {
	server := NewServer(testConfig())

	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	defer server.Stop()

	time.Sleep(100 * time.Millisecond)

	handler := NewHandler(server, log.New(io.Discard, "", 0))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws://" + server.GetAddr() + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	// Read welcome message
	if _, _, err := conn.Read(ctx); err != nil {
		t.Fatalf("Failed to read welcome message: %v", err)
	}

	handler.PublishStats(3, 120, 240)

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Failed to read stats: %v", err)
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Failed to unmarshal message: %v", err)
	}
	if msg.Type != MessageTypeStats {
		t.Errorf("Expected message type %s, got %s", MessageTypeStats, msg.Type)
	}

	var stats StatsData
	if err := json.Unmarshal(msg.Data, &stats); err != nil {
		t.Fatalf("Failed to unmarshal stats data: %v", err)
	}
	if stats.Notes != 120 || stats.Cards != 240 {
		t.Errorf("Stats mismatch: %+v", stats)
	}
}

// A nil handler must be safe to call; the daemon runs without a
// dashboard attached.
func TestNilHandlerIsNoop(t *testing.T) {
	var h *Handler
	h.OnImportStarted("/drop/inbox.deck", "")
	h.OnImportComplete("/drop/inbox.deck", 0, 0, nil)
	h.OnMediaSynced(0, 0, 0, 0)
	h.PublishStats(0, 0, 0)
}
