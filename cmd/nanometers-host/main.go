// ABOUTME: Entry point for the simulated nanometers host
// ABOUTME: Streams an audio source through a publisher on the local socket
package main

import (
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/nanometers/nanometers-go/internal/host"
	"github.com/nanometers/nanometers-go/internal/source"
	"github.com/nanometers/nanometers-go/internal/version"
	"github.com/nanometers/nanometers-go/pkg/localsock"
	"github.com/nanometers/nanometers-go/pkg/nanometers"
	"github.com/nanometers/nanometers-go/pkg/ring"
	"github.com/nanometers/nanometers-go/pkg/snapshot"
)

var (
	audioFile   = flag.String("audio", "", "Audio file to stream (MP3, FLAC). If not specified, plays test tone")
	blockFrames = flag.Int("block", host.DefaultBlockFrames, "Frames per audio block")
	capacity    = flag.Int("capacity", ring.DefaultCapacity(), "Ring buffer size in samples")
	address     = flag.String("address", "", "Socket address (default: platform address for nanometers.sock)")
	mode        = flag.String("mode", "oneshot", "Connection mode: oneshot or persistent")
	legacyFloat = flag.Bool("legacy-float-cursor", false, "Encode the cursor as float32 for older consumers")
	play        = flag.Bool("play", false, "Play the audio through the default output device")
	volume      = flag.Int("volume", 100, "Monitor volume (0-100), used with -play")
	logFile     = flag.String("log-file", "nanometers-host.log", "Log file path")
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
		// TUI mode: log only to file
		log.SetOutput(f)
	} else {
		log.SetOutput(io.MultiWriter(os.Stdout, f))
	}

	log.Printf("Starting %s host", version.String())
	if *debug {
		log.Printf("Debug logging enabled")
	}
	log.Printf("Logging to: %s", *logFile)

	connMode, err := nanometers.ParseMode(*mode)
	if err != nil {
		log.Fatalf("Invalid -mode: %v", err)
	}

	addr := localsock.DefaultAddress(localsock.DefaultName)
	if *address != "" {
		addr = localsock.ParseAddress(*address)
	}

	encoding := snapshot.CursorUint32
	if *legacyFloat {
		encoding = snapshot.CursorFloat32
	}

	src, err := source.New(*audioFile)
	if err != nil {
		log.Fatalf("Failed to open audio source: %v", err)
	}
	defer src.Close()

	var monitor *host.Monitor
	if *play {
		monitor, err = host.NewMonitor(src.SampleRate(), src.Channels())
		if err != nil {
			log.Printf("Monitor output unavailable: %v", err)
		} else {
			defer monitor.Close()
			monitor.SetVolume(*volume)
		}
	}

	var tui *host.TUI
	if useTUI {
		tui = host.NewTUI()
	}

	config := host.Config{
		Source:      src,
		BlockFrames: *blockFrames,
		Publisher: nanometers.Config{
			Capacity: *capacity,
			Address:  addr,
			Mode:     connMode,
			Encoding: encoding,
		},
		Monitor: monitor,
		Debug:   *debug,
	}
	if tui != nil {
		config.OnStatus = tui.Update
	}

	h, err := host.New(config)
	if err != nil {
		log.Fatalf("Failed to create host: %v", err)
	}

	hostDone := make(chan struct{})
	go func() {
		h.Start()
		close(hostDone)
	}()

	// Handle shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if tui != nil {
		tuiDone := make(chan struct{})
		go func() {
			if err := tui.Start(); err != nil {
				log.Printf("TUI error: %v", err)
			}
			close(tuiDone)
		}()

	loop:
		for {
			select {
			case <-tui.ResetChan():
				h.Reset()
			case delta := <-tui.VolumeChan():
				h.AdjustVolume(delta)
			case <-tui.MuteChan():
				h.ToggleMute()
			case <-tui.QuitChan():
				log.Printf("Received quit signal from TUI")
				break loop
			case <-tuiDone:
				break loop
			case <-sigChan:
				log.Printf("Shutdown signal received")
				break loop
			}
		}
	} else {
		log.Printf("Publishing on %s, press Ctrl-C to stop", addr)
		<-sigChan
		log.Printf("Shutdown signal received")
	}

	h.Stop()
	<-hostDone
	if tui != nil {
		tui.Stop()
	}

	log.Printf("Host stopped")
}
