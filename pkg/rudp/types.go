// Package rudp implements a reliable, connection-oriented datagram transport
// layered over UDP. A Multiplexer demultiplexes inbound datagrams to the
// right Socket by connection id; each Socket drives a handshake, buffers
// ordered application bytes in both directions, and exposes stream-style
// read/write operations with back-pressure.
package rudp

import "net/netip"

// ConnectionID identifies a connection within a single Multiplexer. It is
// nonzero for every allocated socket; zero is reserved to mean "unassigned".
type ConnectionID uint32

// Seq is a packet sequence number, monotonically increasing per session.
type Seq uint32

// Endpoint is the remote address a Peer talks to. The zero value denotes
// "unbound".
type Endpoint = netip.AddrPort

// Role distinguishes which side of the handshake a Session plays.
type Role int

const (
	// RoleInitiator opens a connection by sending the first handshake packet.
	RoleInitiator Role = iota
	// RoleResponder accepts a connection whose peer identity is preset by
	// the caller before Open is called.
	RoleResponder
)

func (r Role) String() string {
	if r == RoleInitiator {
		return "initiator"
	}
	return "responder"
}

// Result is the outcome delivered on a pending operation's completion
// channel. Err is nil on success. BytesTransferred is meaningful only for
// StartRead/StartWrite.
type Result struct {
	Err              error
	BytesTransferred int
}
