// ABOUTME: Tests for the WebSocket relay
// ABOUTME: Uses httptest to verify hello, frame layout, drops, and disconnects
package relay

import (
	"encoding/binary"
	"encoding/json"
	"math"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nanometers/nanometers-go/pkg/snapshot"
)

func dialRelay(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + Path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("failed to dial relay: %v", err)
	}
	return conn
}

func waitForClients(t *testing.T, r *Relay, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for r.Clients() != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d clients, have %d", n, r.Clients())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestEncodeFrame(t *testing.T) {
	s := snapshot.Snapshot{Cursor: 3, Samples: []float32{0.5, -1, 0.25}}
	frame := EncodeFrame(make([]byte, FrameSize(3)), s)

	if len(frame) != 16 {
		t.Fatalf("expected 16 bytes, got %d", len(frame))
	}
	if got := binary.LittleEndian.Uint32(frame); got != 3 {
		t.Errorf("expected cursor 3, got %d", got)
	}
	for i, want := range s.Samples {
		got := math.Float32frombits(binary.LittleEndian.Uint32(frame[4*(i+1):]))
		if got != want {
			t.Errorf("sample %d: expected %v, got %v", i, want, got)
		}
	}
}

func TestNewDefaults(t *testing.T) {
	r := New(Config{})
	if r.Addr() != DefaultAddr {
		t.Errorf("expected default addr %s, got %s", DefaultAddr, r.Addr())
	}
	if r.relayID == "" {
		t.Error("expected relay ID")
	}
}

func TestRelayHelloAndFrames(t *testing.T) {
	counts := make(chan int, 10)
	r := New(Config{OnClients: func(n int) { counts <- n }})
	srv := httptest.NewServer(r.Handler())
	defer srv.Close()
	defer r.Stop()

	conn := dialRelay(t, srv)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	msgType, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read hello: %v", err)
	}
	if msgType != websocket.TextMessage {
		t.Fatalf("expected text hello, got type %d", msgType)
	}

	var hello struct {
		Type    string `json:"type"`
		Payload Hello  `json:"payload"`
	}
	if err := json.Unmarshal(data, &hello); err != nil {
		t.Fatalf("failed to parse hello: %v", err)
	}
	if hello.Type != "relay/hello" || hello.Payload.Format != FrameFormat {
		t.Errorf("unexpected hello: %+v", hello)
	}
	if hello.Payload.ClientID == "" || hello.Payload.RelayID != r.relayID {
		t.Errorf("unexpected ids in hello: %+v", hello.Payload)
	}

	waitForClients(t, r, 1)
	if n := <-counts; n != 1 {
		t.Errorf("expected client count 1, got %d", n)
	}

	r.Handle(snapshot.Snapshot{Cursor: 1, Samples: []float32{0.1, 0.2}})

	msgType, data, err = conn.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read frame: %v", err)
	}
	if msgType != websocket.BinaryMessage {
		t.Fatalf("expected binary frame, got type %d", msgType)
	}
	if len(data) != FrameSize(2) {
		t.Fatalf("expected %d bytes, got %d", FrameSize(2), len(data))
	}
	if binary.LittleEndian.Uint32(data) != 1 {
		t.Errorf("expected cursor 1")
	}
	if got := math.Float32frombits(binary.LittleEndian.Uint32(data[8:])); got != 0.2 {
		t.Errorf("expected sample 0.2, got %v", got)
	}

	conn.Close()
	waitForClients(t, r, 0)
}

func TestHandleWithoutClients(t *testing.T) {
	r := New(Config{})
	r.Handle(snapshot.Snapshot{Samples: make([]float32, 4)})
	if r.frames.Load() != 0 {
		t.Error("expected no frames encoded without clients")
	}
}

func TestHandleDropsForFullQueue(t *testing.T) {
	r := New(Config{})
	r.clients["slow"] = &client{id: "slow", sendChan: make(chan interface{})}

	for i := 0; i < 3; i++ {
		r.Handle(snapshot.Snapshot{Samples: make([]float32, 4)})
	}

	if r.Dropped() != 3 {
		t.Errorf("expected 3 dropped frames, got %d", r.Dropped())
	}
}

func TestStopDisconnectsClients(t *testing.T) {
	r := New(Config{Addr: "127.0.0.1:0"})
	if err := r.Start(); err != nil {
		t.Fatalf("failed to start relay: %v", err)
	}

	url := "ws://" + r.Addr() + Path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("failed to dial relay: %v", err)
	}
	defer conn.Close()

	waitForClients(t, r, 1)
	r.Stop()
	r.Stop() // idempotent

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	waitForClients(t, r, 0)
}
