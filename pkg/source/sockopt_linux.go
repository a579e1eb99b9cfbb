//go:build linux

package source

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// Bursty senders can outrun the decoder briefly; a larger receive buffer absorbs them.
const recvBufferSize = 1024 * 1024

func controlSocket(network, address string, c syscall.RawConn) error {
	// No SO_REUSEADDR: a second bind of a busy endpoint has to fail.
	return c.Control(func(fd uintptr) {
		// The kernel caps this at net.core.rmem_max, which is fine.
		_ = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF, recvBufferSize)
	})
}
