//go:build unix

// ABOUTME: End-to-end tests for the publisher over a real Unix socket
// ABOUTME: Covers bind-failure degradation and snapshot delivery to a consumer
package nanometers

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nanometers/nanometers-go/pkg/localsock"
	"github.com/nanometers/nanometers-go/pkg/snapshot"
)

func TestBindFailureDisablesStreaming(t *testing.T) {
	addr := localsock.ParseAddress("/nonexistent-dir/nanometers/test.sock")
	p, err := New(Config{Capacity: 8, Address: addr})
	if err != nil {
		t.Fatalf("bind failure should not fail construction: %v", err)
	}
	defer p.Close()

	if p.Streaming() {
		t.Error("expected streaming disabled")
	}
	if p.ListenErr() == nil {
		t.Error("expected listen error to be reported")
	}

	p.Process([][]float32{{1, 2}, {3}})
	if p.Ring().Cursor() != 3 {
		t.Errorf("expected audio path to continue, cursor %d", p.Ring().Cursor())
	}
}

func TestPublishOverSocket(t *testing.T) {
	dir, err := os.MkdirTemp("", "nm")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(dir)

	addr := localsock.ParseAddress(filepath.Join(dir, "pub.sock"))
	p, err := New(Config{Capacity: 16, Address: addr})
	if err != nil {
		t.Fatalf("failed to create publisher: %v", err)
	}
	if !p.Streaming() {
		t.Fatalf("expected streaming, listen error: %v", p.ListenErr())
	}

	client, err := localsock.Dial(context.Background(), p.Addr())
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer client.Close()

	// Drive blocks until the pending consumer has been served
	deadline := time.Now().Add(2 * time.Second)
	for p.Stats().Snapshots == 0 && time.Now().Before(deadline) {
		p.Process([][]float32{{0.5, -0.5}})
		time.Sleep(time.Millisecond)
	}
	if p.Stats().Snapshots == 0 {
		t.Fatal("no snapshot published")
	}

	data, err := io.ReadAll(client)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if len(data) != snapshot.Size(16) {
		t.Fatalf("expected %d bytes, got %d", snapshot.Size(16), len(data))
	}

	snap, err := snapshot.Decode(data, snapshot.CursorUint32)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if snap.Cursor%2 != 0 {
		t.Errorf("expected even cursor after stereo pairs, got %d", snap.Cursor)
	}
	if snap.Samples[0] != 0.5 || snap.Samples[1] != -0.5 {
		t.Errorf("unexpected samples %v", snap.Samples[:2])
	}

	if err := p.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if _, err := os.Stat(addr.Name); !os.IsNotExist(err) {
		t.Errorf("expected socket file removed on close, stat err = %v", err)
	}
}
