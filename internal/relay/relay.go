// ABOUTME: WebSocket relay for decoded snapshots
// ABOUTME: Fans out each snapshot to browser clients without blocking the receiver
// Package relay re-serves received snapshots to WebSocket clients.
//
// Browser scopes connect to ws://<addr>/scope. Each client first receives a
// JSON relay/hello text message, then one binary message per snapshot:
//
//	[cursor uint32 LE][capacity x float32 LE samples]
//
// Slow clients miss frames; they never stall the receiver.
package relay

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/nanometers/nanometers-go/pkg/snapshot"
)

const (
	// DefaultAddr is the default listen address
	DefaultAddr = "localhost:8928"

	// Path is the WebSocket endpoint
	Path = "/scope"

	// FrameFormat names the binary frame layout in the hello message
	FrameFormat = "cursor-u32le+f32le"

	clientQueue   = 8
	writeDeadline = 10 * time.Second
	pingInterval  = 30 * time.Second
)

// Config holds relay configuration
type Config struct {
	// Addr is the HTTP listen address (default: DefaultAddr)
	Addr string

	// OnClients is called with the client count whenever it changes; optional
	OnClients func(n int)

	Debug bool
}

// Hello is sent to each client on connect
type Hello struct {
	RelayID  string `json:"relay_id"`
	ClientID string `json:"client_id"`
	Format   string `json:"format"`
}

// Message is the JSON envelope for text messages
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Relay serves snapshots over WebSocket
type Relay struct {
	config   Config
	relayID  string
	upgrader websocket.Upgrader

	mux        *http.ServeMux
	httpServer *http.Server
	listener   net.Listener

	clients   map[string]*client
	clientsMu sync.RWMutex

	frames  atomic.Uint64
	dropped atomic.Uint64

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

type client struct {
	id       string
	conn     *websocket.Conn
	sendChan chan interface{}
}

// New creates a relay
func New(config Config) *Relay {
	if config.Addr == "" {
		config.Addr = DefaultAddr
	}

	r := &Relay{
		config:  config,
		relayID: uuid.New().String(),
		mux:     http.NewServeMux(),
		upgrader: websocket.Upgrader{
			// Scopes are served from arbitrary local origins
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients:  make(map[string]*client),
		stopChan: make(chan struct{}),
	}
	r.mux.HandleFunc(Path, r.handleWebSocket)
	return r
}

// Handler returns the relay's HTTP handler
func (r *Relay) Handler() http.Handler {
	return r.mux
}

// Start binds the listen address and serves in the background
func (r *Relay) Start() error {
	l, err := net.Listen("tcp", r.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", r.config.Addr, err)
	}
	r.listener = l
	r.httpServer = &http.Server{Handler: r.mux}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("Relay server error: %v", err)
		}
	}()

	log.Printf("Relay %s listening on ws://%s%s", r.relayID, l.Addr(), Path)
	return nil
}

// Addr returns the bound address, or the configured one before Start
func (r *Relay) Addr() string {
	if r.listener != nil {
		return r.listener.Addr().String()
	}
	return r.config.Addr
}

// Clients returns the number of connected clients
func (r *Relay) Clients() int {
	r.clientsMu.RLock()
	defer r.clientsMu.RUnlock()
	return len(r.clients)
}

// Dropped returns the number of frames dropped for slow clients
func (r *Relay) Dropped() uint64 {
	return r.dropped.Load()
}

// Handle broadcasts one snapshot. It never blocks.
func (r *Relay) Handle(s snapshot.Snapshot) {
	r.clientsMu.RLock()
	defer r.clientsMu.RUnlock()

	if len(r.clients) == 0 {
		return
	}

	// Shared read-only by every client writer
	frame := EncodeFrame(make([]byte, FrameSize(len(s.Samples))), s)
	r.frames.Add(1)

	for _, c := range r.clients {
		select {
		case c.sendChan <- frame:
		default:
			r.dropped.Add(1)
			if r.config.Debug {
				log.Printf("[DEBUG] Relay: dropped frame for %s (queue full)", c.id)
			}
		}
	}
}

// Stop closes every client and the HTTP server
func (r *Relay) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopChan)

		r.clientsMu.RLock()
		for _, c := range r.clients {
			c.conn.Close()
		}
		r.clientsMu.RUnlock()

		if r.httpServer != nil {
			r.httpServer.Close()
		}
		r.wg.Wait()
		log.Printf("Relay %s stopped", r.relayID)
	})
}

func (r *Relay) handleWebSocket(w http.ResponseWriter, req *http.Request) {
	select {
	case <-r.stopChan:
		http.Error(w, "relay stopped", http.StatusServiceUnavailable)
		return
	default:
	}

	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	log.Printf("New relay client from %s", req.RemoteAddr)
	r.handleConnection(conn)
}

func (r *Relay) handleConnection(conn *websocket.Conn) {
	defer conn.Close()

	c := &client{
		id:       uuid.New().String(),
		conn:     conn,
		sendChan: make(chan interface{}, clientQueue),
	}

	c.sendChan <- Message{
		Type:    "relay/hello",
		Payload: Hello{RelayID: r.relayID, ClientID: c.id, Format: FrameFormat},
	}

	r.clientsMu.Lock()
	r.clients[c.id] = c
	n := len(r.clients)
	r.clientsMu.Unlock()
	r.notifyClients(n)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		r.clientWriter(c)
	}()

	defer func() {
		r.clientsMu.Lock()
		delete(r.clients, c.id)
		n := len(r.clients)
		r.clientsMu.Unlock()
		close(c.sendChan)
		<-writerDone
		log.Printf("Relay client disconnected: %s", c.id)
		r.notifyClients(n)
	}()

	// Clients only listen; reads detect close
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("Relay WebSocket error: %v", err)
			}
			return
		}
	}
}

func (r *Relay) notifyClients(n int) {
	if r.config.OnClients != nil {
		r.config.OnClients(n)
	}
}

// clientWriter sends queued messages to one client
func (r *Relay) clientWriter(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.sendChan:
			if !ok {
				return
			}

			switch v := msg.(type) {
			case []byte:
				c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
				if err := c.conn.WriteMessage(websocket.BinaryMessage, v); err != nil {
					log.Printf("Error writing frame to %s: %v", c.id, err)
					c.conn.Close()
					drain(c.sendChan)
					return
				}
			default:
				data, err := json.Marshal(v)
				if err != nil {
					log.Printf("Error marshaling message: %v", err)
					continue
				}
				c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
				if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
					log.Printf("Error writing text message to %s: %v", c.id, err)
					c.conn.Close()
					drain(c.sendChan)
					return
				}
			}

		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(writeDeadline)); err != nil {
				c.conn.Close()
				drain(c.sendChan)
				return
			}
		}
	}
}

// drain discards messages until the channel is closed
func drain(ch <-chan interface{}) {
	for range ch {
	}
}

// FrameSize returns the binary frame size for capacity samples
func FrameSize(capacity int) int {
	return snapshot.WordSize * (capacity + 1)
}

// EncodeFrame writes s as [cursor uint32 LE][float32 LE samples] into dst,
// which must hold FrameSize(len(s.Samples)) bytes, and returns dst
func EncodeFrame(dst []byte, s snapshot.Snapshot) []byte {
	binary.LittleEndian.PutUint32(dst, uint32(s.Cursor))
	for i, v := range s.Samples {
		binary.LittleEndian.PutUint32(dst[snapshot.WordSize*(i+1):], math.Float32bits(v))
	}
	return dst[:FrameSize(len(s.Samples))]
}
