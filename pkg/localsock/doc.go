// ABOUTME: Local socket package for publishing snapshots to one consumer
// ABOUTME: Picks platform addressing and yields a non-blocking listener
// Package localsock provides the local interprocess channel the publisher
// writes snapshots to.
//
// The addressing scheme is chosen once, at start, from the platform's socket
// naming capability:
//
//   - Namespaced: Linux abstract sockets ("@nanometers.sock"), no file to clean up
//   - PathsOnly:  Unix-domain sockets bound to a filesystem path ("/tmp/nanometers.sock")
//   - Pipes:      Windows named pipes (`\\.\pipe\nanometers.sock`)
//
// Listen returns a Listener whose TryAccept never blocks. Connections it hands
// out are non-blocking too: a write that cannot complete immediately fails
// with ErrWouldBlock instead of stalling the caller.
//
// Example:
//
//	l, err := localsock.Listen(localsock.DefaultAddress("nanometers.sock"), localsock.Options{})
//	conn, err := l.TryAccept() // nil, nil when nobody is connecting
package localsock
