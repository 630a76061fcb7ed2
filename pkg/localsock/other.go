//go:build !unix && !windows

// ABOUTME: Fallback for platforms with neither Unix sockets nor named pipes
// ABOUTME: Listen and Dial always fail so callers degrade to no streaming
package localsock

import (
	"context"
	"fmt"
	"net"
	"runtime"
)

func listen(addr Address, opts Options) (Listener, error) {
	return nil, fmt.Errorf("local sockets not supported on %s", runtime.GOOS)
}

func dial(ctx context.Context, addr Address) (net.Conn, error) {
	return nil, fmt.Errorf("local sockets not supported on %s", runtime.GOOS)
}
