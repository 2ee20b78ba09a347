package rudp

import (
	"context"
	"net/netip"
	"testing"
	"time"
)

func mustEndpoint(t *testing.T, s string) Endpoint {
	t.Helper()
	ep, err := netip.ParseAddrPort(s)
	if err != nil {
		t.Fatalf("parsing endpoint %q: %v", s, err)
	}
	return ep
}

// loopbackTransport hands every outbound datagram straight to a peer
// Multiplexer's OnDatagram, tagging it with a fixed source endpoint. Two of
// these, cross-wired, let a test drive a full two-socket handshake without
// any real UDP socket.
type loopbackTransport struct {
	peer *Multiplexer
	from Endpoint

	// drop, when non-nil, is consulted before delivery; returning true
	// drops the datagram instead of delivering it. Used to exercise the
	// oversize-drop and back-pressure scenarios deterministically.
	drop func(datagram []byte) bool
}

func (l *loopbackTransport) SendTo(ctx context.Context, datagram []byte, to Endpoint) error {
	if l.peer == nil {
		return nil // no responder wired up; simulates a datagram to an unreachable endpoint
	}
	if l.drop != nil && l.drop(datagram) {
		return nil
	}
	cp := append([]byte(nil), datagram...)
	l.peer.OnDatagram(cp, l.from)
	return nil
}

// connectedPair wires up two multiplexers over loopbackTransport, opens a
// socket on each side, drives the handshake to completion, and returns both
// connected sockets along with a teardown func.
func connectedPair(t *testing.T, cfg Config) (a, b *Socket, teardown func()) {
	t.Helper()

	epA := mustEndpoint(t, "127.0.0.1:40001")
	epB := mustEndpoint(t, "127.0.0.1:40002")

	tA := &loopbackTransport{from: epA}
	tB := &loopbackTransport{from: epB}

	muxA := NewMultiplexer(tA)
	muxB := NewMultiplexer(tB)
	tA.peer = muxB
	tB.peer = muxA

	sA, err := NewSocket(muxA, cfg)
	if err != nil {
		t.Fatalf("NewSocket(A): %v", err)
	}
	sB, err := NewSocket(muxB, cfg)
	if err != nil {
		t.Fatalf("NewSocket(B): %v", err)
	}

	sB.Peer().SetEndpoint(epA)
	sB.Peer().SetID(sA.ID())

	doneB := sB.StartAccept()
	doneA := sA.StartConnect(epB)

	resA := mustResult(t, doneA, "connect")
	if resA.Err != nil {
		t.Fatalf("A's connect failed: %v", resA.Err)
	}
	resB := mustResult(t, doneB, "accept")
	if resB.Err != nil {
		t.Fatalf("B's accept failed: %v", resB.Err)
	}

	return sA, sB, func() {
		_ = sA.Close()
		_ = sB.Close()
		muxA.Shutdown()
		muxB.Shutdown()
	}
}

// mustResult drains a pending-I/O completion channel with a generous
// deadline so a real bug (a completion that never fires) fails the test
// instead of hanging the suite.
func mustResult(t *testing.T, ch <-chan Result, what string) Result {
	t.Helper()
	select {
	case res := <-ch:
		return res
	case <-time.After(2 * time.Second):
		t.Fatalf("%s never completed", what)
		return Result{}
	}
}
