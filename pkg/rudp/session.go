package rudp

import "github.com/rs/zerolog/log"

// SessionState is one of the three states a Session can occupy.
type SessionState int

const (
	// StateClosed is the initial state and the state after Close. No
	// packets are accepted.
	StateClosed SessionState = iota
	// StateOpening is entered by Open; the session is waiting for a
	// handshake packet to validate the peer.
	StateOpening
	// StateConnected is entered once the handshake validates; data and ack
	// packets are now accepted.
	StateConnected
)

func (s SessionState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpening:
		return "opening"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Session is the per-connection state machine: Closed -> Opening ->
// Connected -> Closed. It owns the local connection id and role, and
// validates inbound handshake packets against the peer they belong to.
//
// Session never returns an error from packet handling: malformed or stray
// handshakes are logged and ignored so a single bad datagram can never
// destabilize a connection.
type Session struct {
	localID     ConnectionID
	role        Role
	initialSeq  Seq
	state       SessionState
	peer        *Peer
	handshakeFn func(localID ConnectionID, peerID ConnectionID) bool
}

// NewSession creates a Closed session bound to the given peer. peer is
// shared with the owning Socket so that HandleHandshake can bind the
// remote connection id in place.
func NewSession(peer *Peer) *Session {
	return &Session{state: StateClosed, peer: peer}
}

// ID returns the local connection id, zero before Open is called.
func (s *Session) ID() ConnectionID { return s.localID }

// Role returns the role this session was opened with.
func (s *Session) Role() Role { return s.role }

// InitialSeq returns the sequence number seed recorded at Open.
func (s *Session) InitialSeq() Seq { return s.initialSeq }

// IsOpen reports whether the session has been opened and not yet closed.
func (s *Session) IsOpen() bool { return s.state != StateClosed }

// IsConnected reports whether the handshake has completed.
func (s *Session) IsConnected() bool { return s.state == StateConnected }

// Open transitions Closed -> Opening, recording the local id, the initial
// sequence number, and the role. For RoleInitiator the peer's endpoint must
// already be set and its id is expected to arrive via the handshake
// response. For RoleResponder the caller must have already preset both
// peer.Endpoint and peer.ID before calling Open.
func (s *Session) Open(localID ConnectionID, initialSeq Seq, role Role) {
	s.localID = localID
	s.initialSeq = initialSeq
	s.role = role
	s.state = StateOpening
}

// Close performs the terminal Opening/Connected -> Closed transition. It is
// idempotent.
func (s *Session) Close() {
	s.state = StateClosed
}

// HandleHandshake validates an inbound handshake packet against the
// session's current role and state. On success it binds peer.id (if not
// already known) and transitions Opening -> Connected. Invalid handshakes —
// wrong state, id mismatch for a responder, or a handshake received after
// the session is already connected — are logged at debug level and
// otherwise ignored.
func (s *Session) HandleHandshake(srcID ConnectionID, dstID ConnectionID) {
	if s.state != StateOpening {
		log.Debug().
			Uint32("local_id", uint32(s.localID)).
			Str("state", s.state.String()).
			Msg("rudp: ignoring handshake packet outside Opening state")
		return
	}

	// dstID == 0 is the bootstrap case: an Initiator's first handshake
	// cannot yet address the Responder by local id, since it has no way
	// to know it. Such packets only reach here via the dispatcher's
	// rendezvous fallback, which has already matched on endpoint and
	// source id, so no further dstID check applies. Once dstID is
	// nonzero it must match exactly.
	if dstID != 0 && dstID != s.localID {
		log.Debug().
			Uint32("local_id", uint32(s.localID)).
			Uint32("dst_id", uint32(dstID)).
			Msg("rudp: ignoring handshake addressed to a different connection id")
		return
	}

	switch s.role {
	case RoleInitiator:
		// The responder's handshake reply carries its own connection id;
		// bind it if we don't already have one.
		if s.peer.ID() == 0 {
			s.peer.SetID(srcID)
		}
	case RoleResponder:
		// A responder already knows its peer's id from the caller-preset
		// Peer; the inbound handshake must match it.
		if srcID != s.peer.ID() {
			log.Debug().
				Uint32("local_id", uint32(s.localID)).
				Uint32("expected_peer_id", uint32(s.peer.ID())).
				Uint32("got_peer_id", uint32(srcID)).
				Msg("rudp: ignoring handshake from unexpected peer id")
			return
		}
	}

	s.state = StateConnected
}
