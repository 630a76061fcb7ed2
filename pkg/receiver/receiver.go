// ABOUTME: Reconnecting snapshot reader
// ABOUTME: Reads fixed-size snapshots from the local socket until cancelled
package receiver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"sync/atomic"
	"time"

	"github.com/nanometers/nanometers-go/pkg/localsock"
	"github.com/nanometers/nanometers-go/pkg/ring"
	"github.com/nanometers/nanometers-go/pkg/snapshot"
)

// Config holds receiver configuration
type Config struct {
	// Address of the publisher (default: platform address for localsock.DefaultName)
	Address localsock.Address

	// Capacity is the publisher's ring size in samples (default: ring.DefaultCapacity())
	Capacity int

	// Encoding must match the publisher's cursor encoding
	Encoding snapshot.CursorEncoding

	// Backoff is the pause before reconnecting (default: 50ms)
	Backoff time.Duration

	// OnConnect and OnDisconnect are optional connection state callbacks
	OnConnect    func()
	OnDisconnect func(err error)

	// Debug enables per-reconnect logging
	Debug bool
}

// Stats counts receiver activity. Safe to read from any goroutine.
type Stats struct {
	Connects  uint64
	Snapshots uint64
	Errors    uint64
	BytesRead uint64
}

// Receiver reads snapshots from a publisher
type Receiver struct {
	config Config

	buf  []byte
	snap snapshot.Snapshot

	connects  atomic.Uint64
	snapshots atomic.Uint64
	errs      atomic.Uint64
	bytesRead atomic.Uint64
	connected atomic.Bool
}

// New creates a receiver
func New(config Config) *Receiver {
	if config.Address.Name == "" {
		config.Address = localsock.DefaultAddress(localsock.DefaultName)
	}
	if config.Capacity <= 0 {
		config.Capacity = ring.DefaultCapacity()
	}
	if config.Backoff <= 0 {
		config.Backoff = 50 * time.Millisecond
	}

	return &Receiver{
		config: config,
		buf:    make([]byte, snapshot.Size(config.Capacity)),
		snap:   snapshot.Snapshot{Samples: make([]float32, config.Capacity)},
	}
}

// Run connects and reads until ctx is cancelled, reconnecting after every
// error. handle is called on this goroutine for each decoded snapshot; the
// snapshot's Samples slice is reused by the next read. Run returns ctx.Err().
func (r *Receiver) Run(ctx context.Context, handle func(snapshot.Snapshot)) error {
	for {
		got, err := r.session(ctx, handle)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		// One-shot publishers end every connection after a snapshot
		if errors.Is(err, io.EOF) && got > 0 {
			continue
		}

		r.errs.Add(1)
		if r.config.Debug {
			log.Printf("[DEBUG] Receiver: %v, reconnecting in %v", err, r.config.Backoff)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.config.Backoff):
		}
	}
}

// session runs one connection until it fails and returns the number of
// snapshots it delivered
func (r *Receiver) session(ctx context.Context, handle func(snapshot.Snapshot)) (int, error) {
	conn, err := localsock.Dial(ctx, r.config.Address)
	if err != nil {
		return 0, fmt.Errorf("failed to connect to %s: %w", r.config.Address, err)
	}
	defer conn.Close()

	r.connects.Add(1)
	r.connected.Store(true)
	if r.config.OnConnect != nil {
		r.config.OnConnect()
	}

	// Unblock reads when the caller cancels
	stop := context.AfterFunc(ctx, func() {
		conn.SetReadDeadline(time.Now())
	})
	defer stop()

	got, err := r.readLoop(conn, handle)

	r.connected.Store(false)
	if r.config.OnDisconnect != nil {
		r.config.OnDisconnect(err)
	}
	return got, err
}

func (r *Receiver) readLoop(conn net.Conn, handle func(snapshot.Snapshot)) (int, error) {
	got := 0
	for {
		n, err := io.ReadFull(conn, r.buf)
		r.bytesRead.Add(uint64(n))
		if err != nil {
			if errors.Is(err, io.EOF) {
				return got, io.EOF
			}
			return got, fmt.Errorf("failed to read snapshot: %w", err)
		}

		if err := snapshot.DecodeInto(&r.snap, r.buf, r.config.Encoding); err != nil {
			return got, fmt.Errorf("failed to decode snapshot: %w", err)
		}

		got++
		r.snapshots.Add(1)
		handle(r.snap)
	}
}

// Connected reports whether a connection is currently open
func (r *Receiver) Connected() bool {
	return r.connected.Load()
}

// Stats returns a copy of the counters
func (r *Receiver) Stats() Stats {
	return Stats{
		Connects:  r.connects.Load(),
		Snapshots: r.snapshots.Load(),
		Errors:    r.errs.Load(),
		BytesRead: r.bytesRead.Load(),
	}
}
