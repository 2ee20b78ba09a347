package rudp

import (
	"context"

	"github.com/rs/zerolog/log"

	"rudp/pkg/wire"
)

// Transport is the external collaborator that puts a framed datagram on
// the wire and pulls raw datagrams off it. pkg/transport ships two
// implementations — a real UDP socket and an Azure-Blob-Storage relay —
// but the Multiplexer only ever sees this interface, matching the "UDP
// socket binding and datagram I/O are out of scope" boundary from the
// design: encoding/decoding is this module's (pkg/wire's), binding the
// pipe is the Transport's.
type Transport interface {
	// SendTo best-effort-sends a framed datagram to an endpoint.
	SendTo(ctx context.Context, datagram []byte, to Endpoint) error
}

// Multiplexer is the single-threaded event loop that owns a Dispatcher and
// serializes every inbound datagram and every Socket operation onto one
// goroutine. No Socket, Session, Sender, or Dispatcher field is ever
// touched from outside that goroutine, so none of them need a mutex —
// this is the idiomatic Go rendering of the design's "single strand, no
// implicit concurrency" requirement.
type Multiplexer struct {
	dispatcher *Dispatcher
	transport  Transport
	cmdCh      chan func()
	closeCh    chan struct{}
}

// NewMultiplexer creates a Multiplexer bound to the given Transport and
// starts its event-loop goroutine.
func NewMultiplexer(t Transport) *Multiplexer {
	m := &Multiplexer{
		dispatcher: NewDispatcher(),
		transport:  t,
		cmdCh:      make(chan func(), 256),
		closeCh:    make(chan struct{}),
	}
	go m.run()
	return m
}

func (m *Multiplexer) run() {
	for {
		select {
		case cmd := <-m.cmdCh:
			cmd()
		case <-m.closeCh:
			return
		}
	}
}

// Post enqueues fn to run on the loop goroutine. Safe to call from any
// goroutine; fn itself must not block. Used by Socket.Start* to marshal
// caller-submitted work onto the loop, and by OnDatagram to marshal
// inbound I/O onto it.
func (m *Multiplexer) Post(fn func()) {
	select {
	case m.cmdCh <- fn:
	case <-m.closeCh:
	}
}

// Dispatcher returns the id-to-socket routing table. Only safe to read
// from within a Post closure (i.e. from the loop goroutine); exposed
// unguarded for diagnostics callers (e.g. a CLI) that tolerate a racy
// snapshot.
func (m *Multiplexer) Dispatcher() *Dispatcher { return m.dispatcher }

// SendTo forwards to the underlying Transport. Only called from the loop
// goroutine, when a Socket sends a handshake, a data segment, or an ack.
func (m *Multiplexer) SendTo(ctx context.Context, datagram []byte, to Endpoint) error {
	return m.transport.SendTo(ctx, datagram, to)
}

// Shutdown stops the loop goroutine. Any commands already queued but not
// yet run are dropped.
func (m *Multiplexer) Shutdown() {
	close(m.closeCh)
}

// OnDatagram decodes a raw inbound datagram and, on success, dispatches it
// to the addressed socket — both on the loop goroutine. Called by a
// Transport's read loop from whatever goroutine that read loop runs on.
// Undecodable datagrams are logged at debug level and dropped; they never
// reach a caller as an error.
func (m *Multiplexer) OnDatagram(raw []byte, from Endpoint) {
	m.Post(func() {
		pkt, err := wire.Decode(raw)
		if err != nil {
			log.Debug().Err(err).Str("from", from.String()).Msg("rudp: dropping undecodable datagram")
			return
		}

		var routed bool
		if hp, ok := pkt.(wire.HandshakePacket); ok {
			routed = m.dispatcher.DispatchHandshake(pkt, ConnectionID(hp.SrcID), from)
		} else {
			routed = m.dispatcher.Dispatch(ConnectionID(pkt.DestinationID()), pkt, from)
		}
		if !routed {
			log.Debug().
				Uint32("dest_id", pkt.DestinationID()).
				Str("from", from.String()).
				Msg("rudp: dropping unroutable packet")
		}
	})
}
