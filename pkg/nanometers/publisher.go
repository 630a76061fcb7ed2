// ABOUTME: Publish/accept cycle run from the audio callback
// ABOUTME: Appends each block to the ring and writes snapshots without blocking
package nanometers

import (
	"errors"
	"fmt"
	"log"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/nanometers/nanometers-go/pkg/localsock"
	"github.com/nanometers/nanometers-go/pkg/ring"
	"github.com/nanometers/nanometers-go/pkg/snapshot"
)

// Mode selects the connection lifetime
type Mode int

const (
	// ModeOneShot accepts, writes one snapshot, and closes the connection.
	// Consumers read one snapshot per connection and reconnect.
	ModeOneShot Mode = iota

	// ModePersistent keeps the accepted connection and writes a snapshot
	// every block until a write fails or a newer consumer connects.
	ModePersistent
)

func (m Mode) String() string {
	switch m {
	case ModeOneShot:
		return "oneshot"
	case ModePersistent:
		return "persistent"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode parses "oneshot" or "persistent"
func ParseMode(s string) (Mode, error) {
	switch s {
	case "oneshot", "":
		return ModeOneShot, nil
	case "persistent":
		return ModePersistent, nil
	default:
		return ModeOneShot, fmt.Errorf("unknown mode %q (supported: oneshot, persistent)", s)
	}
}

// Config holds publisher configuration
type Config struct {
	// Capacity is the ring size in samples (default: ring.DefaultCapacity())
	Capacity int

	// Address is where consumers connect (default: platform address for localsock.DefaultName)
	Address localsock.Address

	// Mode selects one-shot or persistent connections (default: ModeOneShot)
	Mode Mode

	// Encoding selects the cursor word format (default: snapshot.CursorUint32)
	Encoding snapshot.CursorEncoding

	// SendBuffer is the kernel send buffer request (default: 2 snapshots)
	SendBuffer int

	// Listener overrides socket creation; the publisher takes ownership
	Listener localsock.Listener

	// Debug enables logging of swallowed streaming failures
	Debug bool
}

// Stats counts publish cycle outcomes. Safe to read from any goroutine.
type Stats struct {
	Blocks        uint64 // Process calls
	Samples       uint64 // samples appended
	Rejected      uint64 // blocks longer than the ring
	Accepts       uint64 // consumer connections accepted
	Snapshots     uint64 // snapshots fully written
	WriteFailures uint64 // writes or flushes that failed
	AcceptErrors  uint64 // accept calls that failed
}

// Publisher owns the ring buffer and the local socket listener.
// Process, Append, TryPublish, and Reset must be called from one goroutine.
type Publisher struct {
	config Config
	id     string

	ring      *ring.Buffer
	listener  localsock.Listener
	listenErr error

	// Preallocated at construction, reused every block
	scratch []float32
	encoded []byte

	// Held across blocks in persistent mode
	conn localsock.Conn

	blocks        atomic.Uint64
	samples       atomic.Uint64
	rejected      atomic.Uint64
	accepts       atomic.Uint64
	snapshots     atomic.Uint64
	writeFailures atomic.Uint64
	acceptErrors  atomic.Uint64
	connected     atomic.Bool
	closed        atomic.Bool
}

// New creates a publisher and binds its listener. A bind failure does not
// fail construction: the publisher keeps buffering audio with streaming
// disabled, and ListenErr reports the cause. Only invalid configuration
// returns an error.
func New(config Config) (*Publisher, error) {
	if config.Capacity < 0 {
		return nil, fmt.Errorf("invalid capacity %d", config.Capacity)
	}
	if config.Capacity == 0 {
		config.Capacity = ring.DefaultCapacity()
	}
	if config.Address.Name == "" {
		config.Address = localsock.DefaultAddress(localsock.DefaultName)
	}
	if config.Mode != ModeOneShot && config.Mode != ModePersistent {
		return nil, fmt.Errorf("invalid mode %v", config.Mode)
	}

	size := snapshot.Size(config.Capacity)
	if config.SendBuffer == 0 {
		config.SendBuffer = 2 * size
	}

	p := &Publisher{
		config:  config,
		id:      uuid.New().String(),
		ring:    ring.New(config.Capacity),
		scratch: make([]float32, config.Capacity),
		encoded: make([]byte, size),
	}

	if config.Listener != nil {
		p.listener = config.Listener
	} else {
		l, err := localsock.Listen(config.Address, localsock.Options{
			SendBuffer: config.SendBuffer,
			RecvBuffer: config.SendBuffer,
			Debug:      config.Debug,
		})
		if err != nil {
			p.listenErr = err
			log.Printf("Publisher %s: streaming disabled: %v", p.id, err)
		} else {
			p.listener = l
		}
	}

	log.Printf("Publisher %s: capacity=%d samples, snapshot=%d bytes, mode=%s, cursor=%s",
		p.id, config.Capacity, size, config.Mode, config.Encoding)

	return p, nil
}

// ID returns the publisher instance ID
func (p *Publisher) ID() string {
	return p.id
}

// Capacity returns the ring size in samples
func (p *Publisher) Capacity() int {
	return p.ring.Capacity()
}

// Streaming reports whether a listener is bound
func (p *Publisher) Streaming() bool {
	return p.listener != nil && !p.closed.Load()
}

// ListenErr returns the bind failure that disabled streaming, if any
func (p *Publisher) ListenErr() error {
	return p.listenErr
}

// Addr returns the address consumers should connect to
func (p *Publisher) Addr() localsock.Address {
	if p.listener != nil {
		return p.listener.Addr()
	}
	return p.config.Address
}

// Connected reports whether a persistent consumer is currently held
func (p *Publisher) Connected() bool {
	return p.connected.Load()
}

// Ring exposes the buffer for inspection on the owning goroutine
func (p *Publisher) Ring() *ring.Buffer {
	return p.ring
}

// Process handles one audio block: channel slices are concatenated in order
// (all of channel 0, then channel 1, ...), appended to the ring, and a
// snapshot is published if a consumer is connecting. It never fails; a block
// longer than the ring is dropped and counted.
func (p *Publisher) Process(channels [][]float32) {
	p.blocks.Add(1)

	n := 0
	for _, ch := range channels {
		if n+len(ch) > len(p.scratch) {
			p.rejected.Add(1)
			p.TryPublish()
			return
		}
		n += copy(p.scratch[n:], ch)
	}

	if err := p.Append(p.scratch[:n]); err != nil {
		p.rejected.Add(1)
	}
	p.TryPublish()
}

// Append writes an already-flattened frame into the ring
func (p *Publisher) Append(frame []float32) error {
	if err := p.ring.Append(frame); err != nil {
		return err
	}
	p.samples.Add(uint64(len(frame)))
	return nil
}

// TryPublish runs one accept/write attempt. It never blocks and swallows
// every streaming failure.
func (p *Publisher) TryPublish() {
	if p.listener == nil || p.closed.Load() {
		return
	}

	conn, err := p.listener.TryAccept()
	if err != nil {
		p.acceptErrors.Add(1)
		if p.config.Debug {
			log.Printf("[DEBUG] Publisher %s: accept failed: %v", p.id, err)
		}
	}

	if conn != nil {
		p.accepts.Add(1)
		if p.config.Mode == ModeOneShot {
			p.send(conn)
			conn.Close()
			return
		}

		// Newest consumer wins
		p.dropConn()
		p.conn = conn
		p.connected.Store(true)
	}

	if p.conn != nil {
		if !p.send(p.conn) {
			p.dropConn()
		}
	}
}

// send encodes the ring and writes one full snapshot
func (p *Publisher) send(conn localsock.Conn) bool {
	n, err := snapshot.EncodeInto(p.encoded, p.ring.Cursor(), p.ring.Samples(), p.config.Encoding)
	if err == nil {
		err = localsock.WriteFull(conn, p.encoded[:n])
	}
	if err == nil {
		err = conn.Flush()
	}
	if err != nil {
		p.writeFailures.Add(1)
		if p.config.Debug {
			log.Printf("[DEBUG] Publisher %s: snapshot write failed: %v", p.id, err)
		}
		return false
	}

	p.snapshots.Add(1)
	return true
}

func (p *Publisher) dropConn() {
	if p.conn != nil {
		p.conn.Close()
		p.conn = nil
	}
	p.connected.Store(false)
}

// Reset clears the ring without touching the listener. Safe on the audio
// goroutine: nothing is allocated.
func (p *Publisher) Reset() {
	p.ring.Reset()
}

// Stats returns a copy of the counters
func (p *Publisher) Stats() Stats {
	return Stats{
		Blocks:        p.blocks.Load(),
		Samples:       p.samples.Load(),
		Rejected:      p.rejected.Load(),
		Accepts:       p.accepts.Load(),
		Snapshots:     p.snapshots.Load(),
		WriteFailures: p.writeFailures.Load(),
		AcceptErrors:  p.acceptErrors.Load(),
	}
}

// Close releases the held connection and the listener, removing the socket
// file for path addresses. Call it after the audio callback has stopped.
func (p *Publisher) Close() error {
	if p.closed.Swap(true) {
		return nil
	}

	p.dropConn()

	var err error
	if p.listener != nil {
		if cerr := p.listener.Close(); cerr != nil && !errors.Is(cerr, localsock.ErrClosed) {
			err = fmt.Errorf("failed to close listener: %w", cerr)
		}
	}

	log.Printf("Publisher %s stopped", p.id)
	return err
}
