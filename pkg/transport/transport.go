// Package transport supplies the concrete I/O backends rudp.Multiplexer
// needs to put framed datagrams on the wire and pull them back off it. It
// ships two implementations behind the same rudp.Transport contract: a
// real UDP socket, and an Azure Blob Storage relay for reaching a peer that
// direct UDP cannot reach.
package transport

import (
	"context"
	"net"

	"github.com/rs/zerolog/log"

	"rudp/pkg/rudp"
)

// MaxDatagramSize bounds a single read from the UDP socket. 65535 is the
// largest payload a UDP datagram can carry regardless of path MTU.
const MaxDatagramSize = 65535

// DefaultReadBufferSize is the bufferSize NewUDPMultiplexer records when
// the caller passes bufferSize <= 0.
const DefaultReadBufferSize = 8192

// onDatagram is the narrow surface both backends need from a bound
// rudp.Multiplexer: feed it a raw inbound datagram and the endpoint it
// came from. A *rudp.Multiplexer satisfies this directly.
type onDatagram interface {
	OnDatagram(raw []byte, from rudp.Endpoint)
}

// UDPMultiplexer binds a *net.UDPConn and relays between it and a
// rudp.Multiplexer: inbound datagrams are handed to OnDatagram from a
// dedicated read-loop goroutine, outbound datagrams are written directly
// on the caller's goroutine via SendTo.
type UDPMultiplexer struct {
	conn       *net.UDPConn
	bufferSize int
	mux        onDatagram
	closed     chan struct{}
}

// NewUDPMultiplexer wraps an already-bound UDP socket. bufferSize sets the
// size of the read loop's buffer (DefaultReadBufferSize if bufferSize <= 0);
// the read loop raises any size below MaxDatagramSize to MaxDatagramSize.
func NewUDPMultiplexer(conn *net.UDPConn, bufferSize int) *UDPMultiplexer {
	if bufferSize <= 0 {
		bufferSize = DefaultReadBufferSize
	}
	return &UDPMultiplexer{conn: conn, bufferSize: bufferSize, closed: make(chan struct{})}
}

// Bind attaches the rudp.Multiplexer this transport feeds and starts the
// read loop. Must be called exactly once, before any datagram is expected.
func (u *UDPMultiplexer) Bind(mux *rudp.Multiplexer) {
	u.mux = mux
	go u.readLoop()
}

func (u *UDPMultiplexer) readLoop() {
	buf := make([]byte, u.bufferSize)
	if u.bufferSize < MaxDatagramSize {
		buf = make([]byte, MaxDatagramSize)
	}
	for {
		n, from, err := u.conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			select {
			case <-u.closed:
				return
			default:
			}
			log.Debug().Err(err).Msg("transport: udp read failed")
			continue
		}
		datagram := append([]byte(nil), buf[:n]...)
		u.mux.OnDatagram(datagram, from)
	}
}

// SendTo writes datagram to the UDP socket. ctx is accepted to satisfy
// rudp.Transport but is not consulted: net.UDPConn.WriteToUDPAddrPort
// never blocks long enough to need cancellation.
func (u *UDPMultiplexer) SendTo(ctx context.Context, datagram []byte, to rudp.Endpoint) error {
	_, err := u.conn.WriteToUDPAddrPort(datagram, to)
	return err
}

// Close shuts down the UDP socket and stops the read loop.
func (u *UDPMultiplexer) Close() error {
	close(u.closed)
	return u.conn.Close()
}
