//go:build unix

// ABOUTME: Unix-domain socket listener built on raw non-blocking descriptors
// ABOUTME: Handles stale path cleanup, kernel buffer tuning, and EAGAIN accepts
package localsock

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// livenessTimeout bounds the liveness check on an existing socket path
const livenessTimeout = 100 * time.Millisecond

// unixListener is a listening AF_UNIX socket in O_NONBLOCK mode
type unixListener struct {
	fd         int
	addr       Address
	sendBuffer int
	debug      bool

	closeOnce sync.Once
	closed    bool
}

func listen(addr Address, opts Options) (Listener, error) {
	if addr.Scheme == Pipes {
		return nil, fmt.Errorf("named pipe address %s not supported on this platform", addr)
	}

	if addr.IsPath() {
		if err := removeStale(addr.Name); err != nil {
			return nil, err
		}
	}

	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to create socket: %w", err)
	}
	unix.CloseOnExec(fd)

	// Accepted sockets inherit the listener's buffer sizes on most kernels
	tuneBuffers(fd, opts, true)

	if err := unix.Bind(fd, &unix.SockaddrUnix{Name: addr.Name}); err != nil {
		unix.Close(fd)
		if errors.Is(err, unix.EADDRINUSE) {
			return nil, fmt.Errorf("failed to bind %s: %w", addr, ErrAddressInUse)
		}
		return nil, fmt.Errorf("failed to bind %s: %w", addr, err)
	}

	if err := unix.Listen(fd, opts.Backlog); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("failed to set nonblocking: %w", err)
	}

	log.Printf("Local socket listening on %s (%s)", addr, addr.Scheme)

	return &unixListener{
		fd:         fd,
		addr:       addr,
		sendBuffer: opts.SendBuffer,
		debug:      opts.Debug,
	}, nil
}

// removeStale deletes a socket file left behind by a previous run. A path
// that still has a live listener behind it is reported as in use.
func removeStale(path string) error {
	fi, err := os.Lstat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}

	if fi.Mode()&os.ModeSocket == 0 {
		return fmt.Errorf("refusing to remove %s: not a socket", path)
	}

	conn, err := net.DialTimeout("unix", path, livenessTimeout)
	if err == nil {
		conn.Close()
		return fmt.Errorf("failed to claim %s: %w", path, ErrAddressInUse)
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove stale socket %s: %w", path, err)
	}

	log.Printf("Removed stale socket %s", path)
	return nil
}

// tuneBuffers raises kernel buffer sizes; failures are never fatal
func tuneBuffers(fd int, opts Options, verbose bool) {
	if opts.SendBuffer > 0 {
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_SNDBUF, opts.SendBuffer); err != nil && verbose {
			log.Printf("Warning: failed to set SO_SNDBUF=%d: %v", opts.SendBuffer, err)
		}
	}
	if opts.RecvBuffer > 0 {
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF, opts.RecvBuffer); err != nil && verbose {
			log.Printf("Warning: failed to set SO_RCVBUF=%d: %v", opts.RecvBuffer, err)
		}
	}

	if verbose && opts.SendBuffer > 0 {
		if got, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_SNDBUF); err == nil {
			if got < opts.SendBuffer {
				log.Printf("Warning: kernel capped SO_SNDBUF at %d bytes (requested %d)", got, opts.SendBuffer)
			}
		}
	}
}

func (l *unixListener) TryAccept() (Conn, error) {
	if l.closed {
		return nil, ErrClosed
	}

	for {
		nfd, _, err := unix.Accept(l.fd)
		if err == nil {
			return l.prepare(nfd)
		}

		switch {
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.EAGAIN), errors.Is(err, unix.EWOULDBLOCK):
			return nil, nil
		case errors.Is(err, unix.ECONNABORTED):
			// Peer gave up before we got to it
			return nil, nil
		default:
			return nil, err
		}
	}
}

func (l *unixListener) prepare(nfd int) (Conn, error) {
	unix.CloseOnExec(nfd)
	if err := unix.SetNonblock(nfd, true); err != nil {
		unix.Close(nfd)
		return nil, err
	}
	tuneBuffers(nfd, Options{SendBuffer: l.sendBuffer}, l.debug)
	return &fdConn{fd: nfd}, nil
}

func (l *unixListener) Addr() Address {
	return l.addr
}

func (l *unixListener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		l.closed = true
		err = unix.Close(l.fd)
		if l.addr.IsPath() {
			if rmErr := os.Remove(l.addr.Name); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) && err == nil {
				err = rmErr
			}
		}
	})
	return err
}

// fdConn is an accepted non-blocking connection
type fdConn struct {
	fd     int
	closed bool
}

func (c *fdConn) Write(p []byte) (int, error) {
	if c.closed {
		return 0, ErrClosed
	}

	written := 0
	for written < len(p) {
		n, err := unix.Write(c.fd, p[written:])
		if n > 0 {
			written += n
		}
		if err == nil {
			continue
		}
		switch {
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.EAGAIN), errors.Is(err, unix.EWOULDBLOCK):
			return written, ErrWouldBlock
		default:
			return written, err
		}
	}
	return written, nil
}

// Flush is a no-op: writes go straight to the kernel
func (c *fdConn) Flush() error {
	return nil
}

func (c *fdConn) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	return unix.Close(c.fd)
}

func dial(ctx context.Context, addr Address) (net.Conn, error) {
	if addr.Scheme == Pipes {
		return nil, fmt.Errorf("named pipe address %s not supported on this platform", addr)
	}
	var d net.Dialer
	return d.DialContext(ctx, "unix", addr.Name)
}
