//go:build windows

// ABOUTME: Named pipe listener for platforms without Unix-domain sockets
// ABOUTME: Parks Accept in a goroutine and hands connections over a 1-slot channel
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

	"github.com/Microsoft/go-winio"
)

// writeBudget bounds a single snapshot write on a pipe
const writeBudget = time.Millisecond

// pipeListener wraps a winio pipe listener so TryAccept can poll it
type pipeListener struct {
	inner   net.Listener
	addr    Address
	pending chan net.Conn
	done    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
}

func listen(addr Address, opts Options) (Listener, error) {
	if addr.Scheme != Pipes {
		// Windows 10+ has AF_UNIX but the pipe is the native local channel
		addr = AddressFor(Pipes, baseName(addr.Name))
	}

	cfg := &winio.PipeConfig{
		InputBufferSize:  int32(opts.RecvBuffer),
		OutputBufferSize: int32(opts.SendBuffer),
	}

	inner, err := winio.ListenPipe(addr.Name, cfg)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("failed to bind %s: %w", addr, ErrAddressInUse)
		}
		return nil, fmt.Errorf("failed to bind %s: %w", addr, err)
	}

	l := &pipeListener{
		inner:   inner,
		addr:    addr,
		pending: make(chan net.Conn, 1),
		done:    make(chan struct{}),
	}

	l.wg.Add(1)
	go l.acceptLoop()

	log.Printf("Local socket listening on %s (%s)", addr, addr.Scheme)
	return l, nil
}

func (l *pipeListener) acceptLoop() {
	defer l.wg.Done()

	for {
		conn, err := l.inner.Accept()
		if err != nil {
			select {
			case <-l.done:
				return
			default:
			}
			if errors.Is(err, winio.ErrPipeListenerClosed) {
				return
			}
			log.Printf("Pipe accept error: %v", err)
			time.Sleep(10 * time.Millisecond)
			continue
		}

		select {
		case l.pending <- conn:
		default:
			// A consumer is already waiting to be picked up
			conn.Close()
		}
	}
}

func (l *pipeListener) TryAccept() (Conn, error) {
	select {
	case <-l.done:
		return nil, ErrClosed
	default:
	}

	select {
	case conn := <-l.pending:
		return &pipeConn{conn: conn}, nil
	default:
		return nil, nil
	}
}

func (l *pipeListener) Addr() Address {
	return l.addr
}

func (l *pipeListener) Close() error {
	var err error
	l.once.Do(func() {
		close(l.done)
		err = l.inner.Close()
		l.wg.Wait()
		select {
		case conn := <-l.pending:
			conn.Close()
		default:
		}
	})
	return err
}

// pipeConn bounds each write so the caller never waits on a slow reader
type pipeConn struct {
	conn net.Conn
}

func (c *pipeConn) Write(p []byte) (int, error) {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeBudget))
	n, err := c.conn.Write(p)
	if errors.Is(err, winio.ErrTimeout) || errors.Is(err, os.ErrDeadlineExceeded) {
		return n, ErrWouldBlock
	}
	return n, err
}

func (c *pipeConn) Flush() error {
	return nil
}

func (c *pipeConn) Close() error {
	return c.conn.Close()
}

func dial(ctx context.Context, addr Address) (net.Conn, error) {
	if addr.Scheme != Pipes {
		addr = AddressFor(Pipes, baseName(addr.Name))
	}
	return winio.DialPipeContext(ctx, addr.Name)
}

// baseName strips any namespace marker or directory from a socket name
func baseName(name string) string {
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '/' || name[i] == '\\' || name[i] == '@' {
			return name[i+1:]
		}
	}
	return name
}
