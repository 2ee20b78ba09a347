package rudp

import "testing"

func TestSessionOpenTransitionsToOpening(t *testing.T) {
	s := NewSession(&Peer{})
	if s.IsOpen() {
		t.Fatalf("a fresh session reports IsOpen before Open is called")
	}
	s.Open(1, 100, RoleInitiator)
	if !s.IsOpen() {
		t.Fatalf("IsOpen false after Open")
	}
	if s.IsConnected() {
		t.Fatalf("IsConnected true before any handshake")
	}
	if s.ID() != 1 || s.InitialSeq() != 100 || s.Role() != RoleInitiator {
		t.Fatalf("Open did not record local id/seq/role faithfully")
	}
}

func TestSessionInitiatorBindsPeerIDFromHandshake(t *testing.T) {
	peer := &Peer{}
	s := NewSession(peer)
	s.Open(5, 1, RoleInitiator)

	s.HandleHandshake(ConnectionID(9), ConnectionID(5))

	if !s.IsConnected() {
		t.Fatalf("session did not reach Connected after a valid handshake")
	}
	if peer.ID() != 9 {
		t.Fatalf("peer.ID() = %d, want 9", peer.ID())
	}
}

func TestSessionResponderRequiresMatchingPeerID(t *testing.T) {
	peer := &Peer{}
	peer.SetEndpoint(mustEndpoint(t, "127.0.0.1:1"))
	peer.SetID(9)
	s := NewSession(peer)
	s.Open(5, 1, RoleResponder)

	// A handshake from a different source id must be ignored.
	s.HandleHandshake(ConnectionID(123), ConnectionID(5))
	if s.IsConnected() {
		t.Fatalf("session connected on a handshake from an unexpected peer id")
	}

	s.HandleHandshake(ConnectionID(9), ConnectionID(5))
	if !s.IsConnected() {
		t.Fatalf("session did not connect on a handshake matching the preset peer id")
	}
}

func TestSessionIgnoresHandshakeOutsideOpeningState(t *testing.T) {
	s := NewSession(&Peer{})
	// Closed state: never opened.
	s.HandleHandshake(ConnectionID(1), ConnectionID(0))
	if s.IsConnected() {
		t.Fatalf("session connected from Closed state")
	}

	s.Open(1, 0, RoleInitiator)
	s.HandleHandshake(ConnectionID(2), ConnectionID(1))
	if !s.IsConnected() {
		t.Fatalf("setup: expected session to connect")
	}

	// A second handshake once already Connected must be a no-op, not a
	// re-validation that could rebind the peer id.
	s.HandleHandshake(ConnectionID(3), ConnectionID(1))
	// The test keeps no reference to the Peer it passed to NewSession, so
	// it only asserts that the state didn't regress.
	if !s.IsConnected() {
		t.Fatalf("session left Connected state on a stray post-connect handshake")
	}
}

func TestSessionCloseIsIdempotentAndTerminal(t *testing.T) {
	s := NewSession(&Peer{})
	s.Open(1, 0, RoleInitiator)
	s.Close()
	if s.IsOpen() {
		t.Fatalf("IsOpen true after Close")
	}
	s.Close() // must not panic
	if s.IsOpen() {
		t.Fatalf("IsOpen true after double Close")
	}
}

func TestSessionIgnoresHandshakeAddressedToAnotherConnectionID(t *testing.T) {
	peer := &Peer{}
	s := NewSession(peer)
	s.Open(5, 1, RoleInitiator)

	s.HandleHandshake(ConnectionID(9), ConnectionID(999))
	if s.IsConnected() {
		t.Fatalf("session connected on a handshake addressed to a different local id")
	}
}
