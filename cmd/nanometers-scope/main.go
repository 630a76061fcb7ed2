// ABOUTME: Entry point for the nanometers scope
// ABOUTME: Reads snapshots from the local socket and displays or relays them
package main

import (
	"context"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/nanometers/nanometers-go/internal/relay"
	"github.com/nanometers/nanometers-go/internal/scope"
	"github.com/nanometers/nanometers-go/internal/version"
	"github.com/nanometers/nanometers-go/pkg/localsock"
	"github.com/nanometers/nanometers-go/pkg/receiver"
	"github.com/nanometers/nanometers-go/pkg/ring"
	"github.com/nanometers/nanometers-go/pkg/snapshot"
)

var (
	address     = flag.String("address", "", "Socket address (default: platform address for nanometers.sock)")
	capacity    = flag.Int("capacity", ring.DefaultCapacity(), "Publisher ring buffer size in samples")
	legacyFloat = flag.Bool("legacy-float-cursor", false, "Decode the cursor as float32")
	window      = flag.Int("window", scope.DefaultWindow, "Newest samples shown per redraw")
	wsAddr      = flag.String("ws", "", "Serve snapshots to WebSocket clients on this address (e.g. localhost:8928)")
	logFile     = flag.String("log-file", "nanometers-scope.log", "Log file path")
	debug       = flag.Bool("debug", false, "Enable debug logging")
	noTUI       = flag.Bool("no-tui", false, "Disable TUI, use streaming logs instead")
)

func main() {
	flag.Parse()

	useTUI := !*noTUI

	// Set up logging
	f, err := os.OpenFile(*logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer f.Close()

	if useTUI {
		log.SetOutput(f)
	} else {
		log.SetOutput(io.MultiWriter(os.Stdout, f))
	}

	log.Printf("Starting %s scope", version.String())

	addr := localsock.DefaultAddress(localsock.DefaultName)
	if *address != "" {
		addr = localsock.ParseAddress(*address)
	}

	encoding := snapshot.CursorUint32
	if *legacyFloat {
		encoding = snapshot.CursorFloat32
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// TUI setup
	var tuiProg *tea.Program
	quit := make(chan struct{}, 1)
	updateTUI := func(msg tea.Msg) {
		if tuiProg != nil {
			tuiProg.Send(msg)
		}
	}

	var feeder *scope.Feeder
	if useTUI {
		feeder = scope.NewFeeder(updateTUI, *window, scope.DefaultFrameInterval)
		model := scope.NewModel(addr.String(), quit).OnResize(feeder.SetColumns)
		tuiProg = tea.NewProgram(model, tea.WithAltScreen())
		go func() {
			if _, err := tuiProg.Run(); err != nil {
				log.Printf("TUI error: %v", err)
			}
			select {
			case quit <- struct{}{}:
			default:
			}
		}()
	}

	var rl *relay.Relay
	if *wsAddr != "" {
		rl = relay.New(relay.Config{
			Addr:  *wsAddr,
			Debug: *debug,
			OnClients: func(n int) {
				updateTUI(scope.StatusMsg{RelayClients: &n})
			},
		})
		if err := rl.Start(); err != nil {
			log.Fatalf("Failed to start relay: %v", err)
		}
		defer rl.Stop()
		updateTUI(scope.StatusMsg{RelayAddr: rl.Addr()})
	}

	var rx *receiver.Receiver
	rx = receiver.New(receiver.Config{
		Address:  addr,
		Capacity: *capacity,
		Encoding: encoding,
		Debug:    *debug,
		OnConnect: func() {
			log.Printf("Connected to %s", addr)
			connected := true
			stats := rx.Stats()
			updateTUI(scope.StatusMsg{Connected: &connected, Connects: stats.Connects})
		},
		OnDisconnect: func(err error) {
			if *debug {
				log.Printf("[DEBUG] Disconnected from %s: %v", addr, err)
			}
			connected := false
			updateTUI(scope.StatusMsg{Connected: &connected, Errors: rx.Stats().Errors})
		},
	})

	var lastLog time.Time
	handle := func(s snapshot.Snapshot) {
		if feeder != nil {
			feeder.Handle(s)
		}
		if rl != nil {
			rl.Handle(s)
		}
		if !useTUI && time.Since(lastLog) >= time.Second {
			lastLog = time.Now()
			levels := scope.Analyze(s.Samples)
			log.Printf("cursor=%d/%d peak=%.3f rms=%.3f snapshots=%d",
				s.Cursor, len(s.Samples), levels.Peak, levels.RMS, rx.Stats().Snapshots)
		}
	}

	rxDone := make(chan struct{})
	go func() {
		rx.Run(ctx, handle)
		close(rxDone)
	}()

	log.Printf("Reading snapshots from %s", addr)

	// Handle shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Printf("Received quit signal from TUI")
	case <-sigChan:
		log.Printf("Shutdown signal received")
	}

	cancel()
	<-rxDone
	if tuiProg != nil {
		tuiProg.Quit()
	}

	stats := rx.Stats()
	log.Printf("Scope stopped: %d connects, %d snapshots, %d errors", stats.Connects, stats.Snapshots, stats.Errors)
}
