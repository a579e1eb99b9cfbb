package source

import (
	"context"
	"fmt"
	"log/slog"
	"net"
)

// MaxDatagram is the receive size for one datagram; longer datagrams are truncated.
const MaxDatagram = 1024

// UDPSource receives datagrams on a bound socket and echoes each one back to its sender.
// The echo is part of the device contract: senders use it as a keepalive.
type UDPSource struct {
	conn *net.UDPConn
	log  *slog.Logger
}

// OpenUDP binds endpoint ("host:port").
func OpenUDP(endpoint string, logger *slog.Logger) (*UDPSource, error) {
	if _, _, err := ParseEndpoint(endpoint); err != nil {
		return nil, err
	}
	logger = orDiscard(logger)

	lc := net.ListenConfig{Control: controlSocket}
	pc, err := lc.ListenPacket(context.Background(), "udp", endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: bind udp %s: %w", ErrOpen, endpoint, err)
	}
	conn, ok := pc.(*net.UDPConn)
	if !ok {
		pc.Close()
		return nil, fmt.Errorf("%w: bind udp %s: unexpected connection type %T", ErrOpen, endpoint, pc)
	}

	logger.Info("udp socket bound", slog.String("addr", conn.LocalAddr().String()))
	return &UDPSource{conn: conn, log: logger}, nil
}

// Read blocks until a datagram arrives, copies it into p and echoes it to the sender.
// A failed echo is logged and does not fail the read.
func (u *UDPSource) Read(p []byte) (int, error) {
	n, addr, err := u.conn.ReadFromUDP(p)
	if err != nil {
		return 0, err
	}
	if _, err := u.conn.WriteToUDP(p[:n], addr); err != nil {
		u.log.Debug("udp echo failed", slog.String("peer", addr.String()), slog.Any("error", err))
	}
	return n, nil
}

// LocalAddr returns the bound address, useful when binding port 0.
func (u *UDPSource) LocalAddr() *net.UDPAddr {
	return u.conn.LocalAddr().(*net.UDPAddr)
}

// Close releases the socket and unblocks a pending Read.
func (u *UDPSource) Close() error {
	return u.conn.Close()
}

func (u *UDPSource) Kind() Kind { return KindUDP }
