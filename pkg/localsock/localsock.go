// ABOUTME: Platform-independent local socket types and address selection
// ABOUTME: Defines the Listener/Conn abstraction shared by all variants
package localsock

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// DefaultName is the base socket name shared with consumers
const DefaultName = "nanometers.sock"

// Capability describes how local sockets can be named on this platform
type Capability int

const (
	// Namespaced sockets live in an abstract namespace with no filesystem artifact
	Namespaced Capability = iota
	// PathsOnly sockets are bound to a filesystem path
	PathsOnly
	// Pipes means no Unix-domain sockets; use named pipes
	Pipes
)

func (c Capability) String() string {
	switch c {
	case Namespaced:
		return "namespaced"
	case PathsOnly:
		return "paths-only"
	case Pipes:
		return "pipes"
	default:
		return "unknown"
	}
}

var (
	// ErrAddressInUse is returned when a live listener already owns the address
	ErrAddressInUse = errors.New("localsock: address already in use")

	// ErrWouldBlock is returned when a write cannot complete without blocking
	ErrWouldBlock = errors.New("localsock: operation would block")

	// ErrClosed is returned by operations on a closed listener
	ErrClosed = errors.New("localsock: listener closed")
)

// Query reports the socket naming capability of the running platform
func Query() Capability {
	switch runtime.GOOS {
	case "windows":
		return Pipes
	case "linux", "android":
		return Namespaced
	default:
		return PathsOnly
	}
}

// Address is a local socket name together with its naming scheme
type Address struct {
	Name   string
	Scheme Capability
}

func (a Address) String() string {
	return a.Name
}

// IsPath reports whether the address refers to a filesystem path
func (a Address) IsPath() bool {
	return a.Scheme == PathsOnly
}

// DefaultAddress maps a base name to an address for this platform
func DefaultAddress(name string) Address {
	return AddressFor(Query(), name)
}

// AddressFor maps a base name to an address for the given capability
func AddressFor(c Capability, name string) Address {
	switch c {
	case Namespaced:
		return Address{Name: "@" + name, Scheme: Namespaced}
	case Pipes:
		return Address{Name: `\\.\pipe\` + name, Scheme: Pipes}
	default:
		return Address{Name: filepath.Join(tempDir(), name), Scheme: PathsOnly}
	}
}

// ParseAddress interprets a user-supplied address string.
// A leading '@' selects the abstract namespace, a `\\.\pipe\` prefix selects a
// named pipe, anything else is a filesystem path.
func ParseAddress(s string) Address {
	switch {
	case strings.HasPrefix(s, "@"):
		return Address{Name: s, Scheme: Namespaced}
	case strings.HasPrefix(s, `\\.\pipe\`):
		return Address{Name: s, Scheme: Pipes}
	default:
		return Address{Name: s, Scheme: PathsOnly}
	}
}

// tempDir prefers /tmp so consumers can find the socket without sharing TMPDIR
func tempDir() string {
	if fi, err := os.Stat("/tmp"); err == nil && fi.IsDir() {
		return "/tmp"
	}
	return os.TempDir()
}

// Options tunes a listener
type Options struct {
	// SendBuffer is the requested kernel send buffer size in bytes for
	// accepted connections. Zero leaves the kernel default.
	SendBuffer int

	// RecvBuffer is the requested kernel receive buffer size in bytes.
	// Zero leaves the kernel default.
	RecvBuffer int

	// Backlog is the listen queue length (default: 4)
	Backlog int

	// Debug logs buffer tuning failures on every accepted connection
	Debug bool
}

// Listener hands out at most one pending connection per TryAccept call
type Listener interface {
	// TryAccept returns a pending connection, or nil with a nil error when
	// nobody is connecting. It never blocks.
	TryAccept() (Conn, error)

	// Addr returns the bound address
	Addr() Address

	// Close releases the listener and removes any socket file
	Close() error
}

// Conn is an accepted consumer connection
type Conn interface {
	io.Writer

	// Flush pushes any buffered bytes to the peer
	Flush() error

	// Close releases the connection
	Close() error
}

// Listen binds a non-blocking listener at addr
func Listen(addr Address, opts Options) (Listener, error) {
	if opts.Backlog <= 0 {
		opts.Backlog = 4
	}
	return listen(addr, opts)
}

// Dial connects a consumer to addr
func Dial(ctx context.Context, addr Address) (net.Conn, error) {
	return dial(ctx, addr)
}

// WriteFull writes all of p to c, stopping at the first error
func WriteFull(c Conn, p []byte) error {
	for len(p) > 0 {
		n, err := c.Write(p)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		p = p[n:]
	}
	return nil
}
