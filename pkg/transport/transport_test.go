package transport

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"rudp/pkg/rudp"
)

// recordingReceiver implements onDatagram by pushing every delivery onto a
// channel, so a test can block until the read loop actually fires.
type recordingReceiver struct {
	got chan []byte
}

func (r *recordingReceiver) OnDatagram(raw []byte, from rudp.Endpoint) {
	r.got <- append([]byte(nil), raw...)
}

func listenLoopbackUDP(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}
	return conn
}

func TestUDPMultiplexerSendToDeliversToReadLoop(t *testing.T) {
	connA := listenLoopbackUDP(t)
	connB := listenLoopbackUDP(t)

	recvA := NewUDPMultiplexer(connA, 0)
	recvB := NewUDPMultiplexer(connB, 0)
	defer recvA.Close()
	defer recvB.Close()

	rcv := &recordingReceiver{got: make(chan []byte, 1)}
	recvB.mux = rcv
	go recvB.readLoop()

	toAddr, ok := connB.LocalAddr().(*net.UDPAddr)
	if !ok {
		t.Fatalf("connB.LocalAddr() = %T, want *net.UDPAddr", connB.LocalAddr())
	}
	to := toAddr.AddrPort()

	payload := []byte("ping over udp")
	if err := recvA.SendTo(context.Background(), payload, to); err != nil {
		t.Fatalf("SendTo: %v", err)
	}

	select {
	case got := <-rcv.got:
		if !bytes.Equal(got, payload) {
			t.Fatalf("received %q, want %q", got, payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("datagram never arrived at the read loop")
	}
}

func TestUDPMultiplexerCloseStopsReadLoopWithoutPanic(t *testing.T) {
	conn := listenLoopbackUDP(t)
	u := NewUDPMultiplexer(conn, 0)
	rcv := &recordingReceiver{got: make(chan []byte, 1)}
	u.mux = rcv

	done := make(chan struct{})
	go func() {
		u.readLoop()
		close(done)
	}()

	if err := u.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("readLoop did not return after Close")
	}
}

func TestNewUDPMultiplexerDefaultsBufferSize(t *testing.T) {
	conn := listenLoopbackUDP(t)
	defer conn.Close()
	u := NewUDPMultiplexer(conn, 0)
	if u.bufferSize != DefaultReadBufferSize {
		t.Fatalf("bufferSize = %d, want %d", u.bufferSize, DefaultReadBufferSize)
	}
	u2 := NewUDPMultiplexer(conn, 128)
	if u2.bufferSize != 128 {
		t.Fatalf("bufferSize = %d, want 128", u2.bufferSize)
	}
}
