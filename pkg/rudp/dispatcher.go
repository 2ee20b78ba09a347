package rudp

import "rudp/pkg/wire"

// receiver is the minimal surface the dispatcher needs from a Socket to
// route inbound packets to it. Socket implements this; the dispatcher never
// imports anything richer, so it stays decoupled from Socket's I/O state.
type receiver interface {
	ID() ConnectionID
	handleReceive(pkt wire.Packet, from Endpoint)
}

// rendezvousKey identifies a not-yet-connected Responder socket by the
// (peer endpoint, peer id) pair the caller preset on it before calling
// StartAccept. It exists because a freshly assigned local id is all an
// Initiator's first handshake packet can carry as its *source* — it
// cannot yet address the Responder by the Responder's local id, since it
// has no way to learn that id before the handshake completes. See
// Dispatcher.DispatchHandshake.
type rendezvousKey struct {
	endpoint Endpoint
	peerID   ConnectionID
}

// Dispatcher is the id-to-socket routing table owned by a Multiplexer.
// It is touched only from its multiplexer's single event-loop goroutine,
// so it carries no locking of its own.
type Dispatcher struct {
	sockets    map[ConnectionID]receiver
	rendezvous map[rendezvousKey]receiver
	next       ConnectionID
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		sockets:    make(map[ConnectionID]receiver),
		rendezvous: make(map[rendezvousKey]receiver),
		next:       1,
	}
}

// AddSocket allocates a fresh nonzero connection id, records the mapping,
// and returns the id. Returns ErrResourceExhausted if every id in the
// 32-bit space (other than 0) is already live.
func (d *Dispatcher) AddSocket(s receiver) (ConnectionID, error) {
	if len(d.sockets) >= (1<<32)-1 {
		return 0, ErrResourceExhausted
	}

	for {
		id := d.next
		d.next++
		if d.next == 0 {
			d.next = 1 // wrap past the reserved zero id
		}
		if id == 0 {
			continue
		}
		if _, live := d.sockets[id]; live {
			continue
		}
		d.sockets[id] = s
		return id, nil
	}
}

// RemoveSocket removes the mapping for id. Removing an unknown or already-
// removed id is a no-op.
func (d *Dispatcher) RemoveSocket(id ConnectionID) {
	delete(d.sockets, id)
}

// Lookup returns the socket currently registered for id, or nil if none.
func (d *Dispatcher) Lookup(id ConnectionID) receiver {
	return d.sockets[id]
}

// Count returns the number of live sockets. Exposed for diagnostics/CLI use.
func (d *Dispatcher) Count() int {
	return len(d.sockets)
}

// IDs returns a snapshot of currently registered connection ids. Exposed
// for diagnostics/CLI use.
func (d *Dispatcher) IDs() []ConnectionID {
	ids := make([]ConnectionID, 0, len(d.sockets))
	for id := range d.sockets {
		ids = append(ids, id)
	}
	return ids
}

// Dispatch looks up the destination id carried by pkt and, if a socket is
// registered for it, delivers pkt to that socket's handleReceive and
// reports true. Unroutable packets are discarded without error — the
// dispatcher never synthesizes errors for the caller of Dispatch — and
// Dispatch reports false so a caller (the Multiplexer) can decide whether
// an unroutable Handshake packet is worth surfacing as a connection
// request.
func (d *Dispatcher) Dispatch(destID ConnectionID, pkt wire.Packet, from Endpoint) bool {
	sock, ok := d.sockets[destID]
	if !ok {
		return false
	}
	sock.handleReceive(pkt, from)
	return true
}

// RegisterRendezvous records s as the Responder waiting for a handshake
// from (from, peerID). StartAccept calls this right after the session
// enters Opening; the entry is removed once the handshake completes or the
// socket closes, whichever comes first.
func (d *Dispatcher) RegisterRendezvous(from Endpoint, peerID ConnectionID, s receiver) {
	d.rendezvous[rendezvousKey{endpoint: from, peerID: peerID}] = s
}

// UnregisterRendezvous removes the entry registered by RegisterRendezvous.
// Idempotent: removing an unknown key is a no-op.
func (d *Dispatcher) UnregisterRendezvous(from Endpoint, peerID ConnectionID) {
	delete(d.rendezvous, rendezvousKey{endpoint: from, peerID: peerID})
}

// DispatchHandshake routes a Handshake packet. It first tries ordinary
// id-based dispatch (the case where the destination id is already known,
// e.g. a Responder's reply reaching the Initiator). Failing that — the
// Initiator's first handshake addresses a destination id it cannot yet
// know — it falls back to the rendezvous table, matching on the sender's
// endpoint and the source connection id the packet carries. Reports
// whether any socket accepted the packet.
func (d *Dispatcher) DispatchHandshake(pkt wire.Packet, srcID ConnectionID, from Endpoint) bool {
	if d.Dispatch(ConnectionID(pkt.DestinationID()), pkt, from) {
		return true
	}
	sock, ok := d.rendezvous[rendezvousKey{endpoint: from, peerID: srcID}]
	if !ok {
		return false
	}
	sock.handleReceive(pkt, from)
	return true
}
