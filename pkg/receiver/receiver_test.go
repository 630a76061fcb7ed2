//go:build unix

// ABOUTME: Tests for the reconnecting receiver against a live publisher
// ABOUTME: Covers both publisher modes, refused connections, and publisher restarts
package receiver

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nanometers/nanometers-go/pkg/localsock"
	"github.com/nanometers/nanometers-go/pkg/nanometers"
	"github.com/nanometers/nanometers-go/pkg/snapshot"
)

const testCapacity = 64

func testAddress(t *testing.T) localsock.Address {
	t.Helper()
	dir, err := os.MkdirTemp("", "nm")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	return localsock.ParseAddress(filepath.Join(dir, "rx.sock"))
}

// runPublisher drives a publisher from its own goroutine like an audio callback
func runPublisher(t *testing.T, addr localsock.Address, mode nanometers.Mode) (stop func()) {
	t.Helper()
	p, err := nanometers.New(nanometers.Config{
		Capacity: testCapacity,
		Address:  addr,
		Mode:     mode,
	})
	if err != nil {
		t.Fatalf("failed to create publisher: %v", err)
	}
	if !p.Streaming() {
		t.Fatalf("publisher not streaming: %v", p.ListenErr())
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		block := [][]float32{{0.25, 0.5}, {-0.25, -0.5}}
		ticker := time.NewTicker(time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				p.Process(block)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			wg.Wait()
			p.Close()
		})
	}
}

func TestNewDefaults(t *testing.T) {
	r := New(Config{})
	if r.config.Capacity <= 0 {
		t.Error("expected default capacity")
	}
	if r.config.Backoff <= 0 {
		t.Error("expected default backoff")
	}
	if r.config.Address.Name == "" {
		t.Error("expected default address")
	}
	if len(r.buf) != snapshot.Size(r.config.Capacity) {
		t.Errorf("expected read buffer of %d bytes, got %d", snapshot.Size(r.config.Capacity), len(r.buf))
	}
}

func TestReceiveSnapshots(t *testing.T) {
	for _, mode := range []nanometers.Mode{nanometers.ModeOneShot, nanometers.ModePersistent} {
		t.Run(mode.String(), func(t *testing.T) {
			addr := testAddress(t)
			stop := runPublisher(t, addr, mode)
			defer stop()

			r := New(Config{Address: addr, Capacity: testCapacity, Backoff: 5 * time.Millisecond})

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			var got atomic.Int32
			var bad atomic.Int32
			err := r.Run(ctx, func(s snapshot.Snapshot) {
				if s.Cursor < 0 || s.Cursor > testCapacity || len(s.Samples) != testCapacity {
					bad.Add(1)
				}
				if got.Add(1) >= 5 {
					cancel()
				}
			})

			if !errors.Is(err, context.Canceled) {
				t.Errorf("expected context.Canceled, got %v", err)
			}
			if got.Load() < 5 {
				t.Errorf("expected at least 5 snapshots, got %d", got.Load())
			}
			if bad.Load() != 0 {
				t.Errorf("%d malformed snapshots", bad.Load())
			}
			if r.Stats().Snapshots < 5 {
				t.Errorf("expected stats to count snapshots, got %+v", r.Stats())
			}
		})
	}
}

func TestRetriesWhileNoPublisher(t *testing.T) {
	addr := testAddress(t)
	r := New(Config{Address: addr, Capacity: testCapacity, Backoff: 5 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := r.Run(ctx, func(snapshot.Snapshot) {
		t.Error("unexpected snapshot")
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
	if r.Stats().Errors < 2 {
		t.Errorf("expected repeated connection attempts, got %+v", r.Stats())
	}
	if r.Connected() {
		t.Error("expected not connected")
	}
}

func TestReconnectsAfterPublisherRestart(t *testing.T) {
	addr := testAddress(t)
	stop := runPublisher(t, addr, nanometers.ModePersistent)
	defer func() { stop() }()

	var connects, disconnects atomic.Int32
	r := New(Config{
		Address:      addr,
		Capacity:     testCapacity,
		Backoff:      5 * time.Millisecond,
		OnConnect:    func() { connects.Add(1) },
		OnDisconnect: func(error) { disconnects.Add(1) },
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var got atomic.Int32
	first := make(chan struct{})
	var firstOnce sync.Once

	errChan := make(chan error, 1)
	go func() {
		errChan <- r.Run(ctx, func(snapshot.Snapshot) {
			n := got.Add(1)
			if n >= 3 {
				firstOnce.Do(func() { close(first) })
			}
			if n >= 10 && disconnects.Load() > 0 {
				cancel()
			}
		})
	}()

	select {
	case <-first:
	case <-time.After(5 * time.Second):
		t.Fatal("no snapshots from first publisher")
	}

	stop()
	stop = runPublisher(t, addr, nanometers.ModePersistent)

	select {
	case err := <-errChan:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("receiver did not finish")
	}

	if connects.Load() < 2 {
		t.Errorf("expected a reconnect, got %d connects", connects.Load())
	}
	if got.Load() < 10 {
		t.Errorf("expected snapshots after restart, got %d", got.Load())
	}
}
