package rudp

import (
	"context"
	"crypto/rand"
	"encoding/binary"

	"github.com/rs/zerolog/log"

	"rudp/pkg/wire"
)

// pendingIO is the one-shot completion slot for an in-flight StartRead or
// StartWrite. At most one exists per kind per Socket at a time; Socket
// panics if a caller tries to start a second one while the first is still
// outstanding, matching the "invalid caller contract" failure mode.
type pendingIO struct {
	buf         []byte
	cursor      int
	min         int
	transferred int
	result      chan Result
}

func (p *pendingIO) remaining() int { return len(p.buf) - p.cursor }

// Socket is the connection façade: the public surface application code
// drives. It owns a Session, a Sender, a Peer, and a bounded inbound byte
// queue, and hosts the three pending-I/O slots (connect, read, write).
// NewSocket, the Start* methods and Close do their work on the
// Multiplexer's loop goroutine via Multiplexer.Post, and Socket itself
// carries no locking. The accessors below, and the Peer setters a
// Responder caller uses before StartAccept, act directly on the caller's
// goroutine.
type Socket struct {
	mux     *Multiplexer
	cfg     Config
	session *Session
	sender  *Sender
	peer    *Peer
	id      ConnectionID

	inbound        []byte
	expectedOffset int

	privateKey [32]byte
	publicKey  [32]byte
	nonce      [24]byte
	secretKey  []byte

	pendingConnect chan Result
	pendingRead    *pendingIO
	pendingWrite   *pendingIO
}

// NewSocket allocates a fresh local connection id from mux's dispatcher and
// returns a Socket bound to it, with a Closed session. The id is assigned
// here rather than deferred to StartConnect/StartAccept so that two peers
// under test (or a caller driving its own rendezvous) can learn each
// other's local id before either side opens its session — Open only
// records an id that already exists, it never allocates one of its own.
func NewSocket(mux *Multiplexer, cfg Config) (*Socket, error) {
	cfg = cfg.withDefaults()
	peer := &Peer{}
	s := &Socket{
		mux:     mux,
		cfg:     cfg,
		session: NewSession(peer),
		sender:  NewSender(cfg.SendCap, randomSeq()),
		peer:    peer,
	}
	var err error
	done := make(chan struct{})
	mux.Post(func() {
		defer close(done)
		s.id, err = mux.dispatcher.AddSocket(s)
	})
	<-done
	if err != nil {
		return nil, err
	}
	return s, nil
}

func randomSeq() Seq {
	var b [4]byte
	_, _ = rand.Read(b[:])
	return Seq(binary.BigEndian.Uint32(b[:]))
}

// ID returns the local connection id the dispatcher assigned in NewSocket.
func (s *Socket) ID() ConnectionID { return s.id }

// RemoteEndpoint returns the peer's UDP endpoint, the zero Endpoint if
// unbound.
func (s *Socket) RemoteEndpoint() Endpoint { return s.peer.Endpoint() }

// RemoteID returns the peer's connection id, zero if not yet known.
func (s *Socket) RemoteID() ConnectionID { return s.peer.ID() }

// IsOpen reports whether the session has been opened and not yet closed.
func (s *Socket) IsOpen() bool { return s.session.IsOpen() }

// HasSecureChannel reports whether the handshake has derived a shared
// secret yet. Exposed for diagnostics (e.g. a CLI's connection table);
// returns ErrNotConnected before the session reaches Connected.
func (s *Socket) HasSecureChannel() (bool, error) {
	if !s.session.IsConnected() {
		return false, ErrNotConnected
	}
	return s.secretKey != nil, nil
}

// IsConnected reports whether the handshake has completed.
func (s *Socket) IsConnected() bool { return s.session.IsConnected() }

// Peer exposes the socket's Peer value holder so a Responder caller can
// preset Endpoint and ID before calling StartAccept, per that path's
// documented precondition.
func (s *Socket) Peer() *Peer { return s.peer }

// StartConnect is the Initiator path. It sets the peer's endpoint, clears
// any stale peer id, opens the session as Initiator, and sends the first
// handshake packet. The returned channel receives a success Result once
// the handshake completes, or ErrOperationAborted if Close runs first.
func (s *Socket) StartConnect(remote Endpoint) <-chan Result {
	done := make(chan Result, 1)
	s.mux.Post(func() {
		if s.pendingConnect != nil {
			panic(ErrPendingOperation)
		}
		s.peer.SetEndpoint(remote)
		s.peer.SetID(0)
		s.session.Open(s.ID(), s.sender.NextSequenceNumber(), RoleInitiator)
		s.pendingConnect = done

		priv, pub := wire.GenerateKeyPair()
		s.privateKey = priv
		s.publicKey = pub
		s.nonce = wire.GenerateNonce()

		dgram := wire.EncodeHandshake(0, uint32(s.ID()), s.publicKey, s.nonce)
		if err := s.mux.SendTo(context.Background(), dgram, remote); err != nil {
			log.Debug().Err(err).Msg("rudp: sending initial handshake failed")
		}
	})
	return done
}

// StartAccept is the Responder path. The caller must have already set
// Peer().Endpoint() and Peer().ID() to the remote party's address and local
// connection id — violating that precondition is a programming error and
// panics, per the distilled spec's "detection via runtime assertion is
// permitted". It opens the session as Responder and registers a rendezvous
// entry so the Initiator's bootstrap handshake (which cannot yet address
// this socket by id) can still find it.
func (s *Socket) StartAccept() <-chan Result {
	done := make(chan Result, 1)
	s.mux.Post(func() {
		if s.pendingConnect != nil {
			panic(ErrPendingOperation)
		}
		if s.peer.Endpoint() == (Endpoint{}) || s.peer.ID() == 0 {
			panic("rudp: StartAccept requires Peer().Endpoint() and Peer().ID() to be preset")
		}
		s.session.Open(s.ID(), s.sender.NextSequenceNumber(), RoleResponder)
		s.pendingConnect = done

		priv, pub := wire.GenerateKeyPair()
		s.privateKey = priv
		s.publicKey = pub

		s.mux.dispatcher.RegisterRendezvous(s.peer.Endpoint(), s.peer.ID(), s)
	})
	return done
}

// StartWrite installs p as the pending write buffer and drives it forward.
// A zero-length p completes immediately without consulting the sender. It
// panics if a write is already pending.
func (s *Socket) StartWrite(p []byte) <-chan Result {
	done := make(chan Result, 1)
	if len(p) == 0 {
		done <- Result{}
		return done
	}
	s.mux.Post(func() {
		if s.pendingWrite != nil {
			panic(ErrPendingOperation)
		}
		s.pendingWrite = &pendingIO{buf: p, result: done}
		s.processWrite()
	})
	return done
}

// StartRead installs p as the pending read buffer with the given minimum
// transfer and drives it forward. A zero-length p completes immediately
// without consulting the inbound buffer. It panics if a read is already
// pending.
func (s *Socket) StartRead(p []byte, minTransfer int) <-chan Result {
	done := make(chan Result, 1)
	if len(p) == 0 {
		done <- Result{}
		return done
	}
	s.mux.Post(func() {
		if s.pendingRead != nil {
			panic(ErrPendingOperation)
		}
		s.pendingRead = &pendingIO{buf: p, min: minTransfer, result: done}
		s.processRead()
	})
	return done
}

// Close deregisters the socket, transitions its session to Closed, resets
// its peer, and cancels every pending slot with ErrOperationAborted. Safe
// to call more than once; the second call observes an already-Closed
// session and is a no-op beyond that.
func (s *Socket) Close() error {
	done := make(chan struct{})
	s.mux.Post(func() {
		defer close(done)
		if !s.session.IsOpen() {
			return
		}
		s.mux.dispatcher.RemoveSocket(s.ID())
		if s.peer.Endpoint() != (Endpoint{}) && s.peer.ID() != 0 {
			s.mux.dispatcher.UnregisterRendezvous(s.peer.Endpoint(), s.peer.ID())
		}
		s.session.Close()
		s.sender.Reset()
		s.peer.Reset()

		if s.pendingConnect != nil {
			s.pendingConnect <- Result{Err: ErrOperationAborted}
			s.pendingConnect = nil
		}
		if s.pendingWrite != nil {
			s.pendingWrite.result <- Result{Err: ErrOperationAborted}
			s.pendingWrite = nil
		}
		if s.pendingRead != nil {
			s.pendingRead.result <- Result{Err: ErrOperationAborted}
			s.pendingRead = nil
		}
	})
	<-done
	return nil
}

// processWrite drains the pending write buffer into the sender, then
// flushes whatever the sender accepted onto the wire. It completes the
// pending write once the whole buffer has been absorbed.
func (s *Socket) processWrite() {
	p := s.pendingWrite
	if p == nil {
		return
	}
	for p.remaining() > 0 && s.sender.FreeSpace() > 0 {
		n := s.sender.AddData(p.buf[p.cursor:])
		if n == 0 {
			break
		}
		p.cursor += n
		p.transferred += n
	}
	s.drainSender()
	if p.remaining() == 0 {
		p.result <- Result{BytesTransferred: p.transferred}
		s.pendingWrite = nil
	}
}

// processRead drains the inbound buffer into the pending read buffer. It
// completes the pending read once the region is full or at least
// minTransfer bytes have moved, fill dominating minTransfer per the
// distilled spec's boundary case.
func (s *Socket) processRead() {
	p := s.pendingRead
	if p == nil {
		return
	}
	for p.remaining() > 0 && len(s.inbound) > 0 {
		n := p.remaining()
		if n > len(s.inbound) {
			n = len(s.inbound)
		}
		copy(p.buf[p.cursor:], s.inbound[:n])
		p.cursor += n
		p.transferred += n
		s.inbound = s.inbound[n:]
	}
	if p.remaining() == 0 || p.transferred >= p.min {
		p.result <- Result{BytesTransferred: p.transferred}
		s.pendingRead = nil
	}
}

// drainSender fragments whatever the sender has buffered into MTU-sized
// segments, seals each under the session's shared secret once one has been
// derived (segments go out unsealed before that), and ships it.
// Called after every processWrite and after every ack, since an ack can
// free window space a blocked write was waiting on.
func (s *Socket) drainSender() {
	if !s.session.IsConnected() {
		return
	}
	for _, seg := range s.sender.DrainSegments(s.cfg.MTU) {
		payload := seg.data
		if s.secretKey != nil {
			sealed, err := wire.Seal(s.secretKey, seg.data)
			if err != nil {
				log.Debug().Err(err).Msg("rudp: sealing data payload failed")
				continue
			}
			payload = sealed
		}
		dgram := wire.EncodeData(uint32(s.peer.ID()), uint32(seg.offset), payload)
		if err := s.mux.SendTo(context.Background(), dgram, s.peer.Endpoint()); err != nil {
			log.Debug().Err(err).Msg("rudp: sending data segment failed")
		}
	}
}

// handleReceive is the dispatcher's entry point into a Socket: it routes
// an already-decoded packet to the session, sender, or inbound buffer by
// variant. It never panics and never returns an error — every malformed or
// out-of-contract condition is logged and swallowed, per the design's
// "transport must be tolerant of adversarial or stale datagrams".
func (s *Socket) handleReceive(pkt wire.Packet, from Endpoint) {
	switch p := pkt.(type) {
	case wire.DataPacket:
		s.onData(p)
	case wire.AckPacket:
		s.onAck(p)
	case wire.HandshakePacket:
		s.onHandshake(p, from)
	default:
		log.Debug().Msg("rudp: handleReceive saw an unrecognized packet variant")
	}
}

func (s *Socket) onData(p wire.DataPacket) {
	if !s.session.IsConnected() {
		return
	}
	if int(p.Offset) != s.expectedOffset {
		log.Debug().
			Uint32("id", uint32(s.ID())).
			Uint32("got_offset", p.Offset).
			Int("expected_offset", s.expectedOffset).
			Msg("rudp: dropping out-of-order data packet")
		return
	}

	plaintext := p.Payload
	if s.secretKey != nil {
		opened, err := wire.Open(s.secretKey, p.Payload)
		if err != nil {
			log.Debug().Err(err).Msg("rudp: dropping data packet that failed to decrypt")
			return
		}
		plaintext = opened
	}

	if len(s.inbound)+len(plaintext) >= s.cfg.ReadCap {
		log.Debug().
			Uint32("id", uint32(s.ID())).
			Int("inbound_len", len(s.inbound)).
			Int("payload_len", len(plaintext)).
			Msg("rudp: dropping data packet that would overflow the read cap")
		return
	}

	s.inbound = append(s.inbound, plaintext...)
	s.expectedOffset += len(plaintext)
	s.processRead()

	ack := wire.EncodeAck(uint32(s.peer.ID()), uint32(s.expectedOffset))
	if err := s.mux.SendTo(context.Background(), ack, s.peer.Endpoint()); err != nil {
		log.Debug().Err(err).Msg("rudp: sending ack failed")
	}
}

func (s *Socket) onAck(p wire.AckPacket) {
	if !s.session.IsConnected() {
		return
	}
	s.sender.HandleAck(int(p.AckOffset))
	s.processWrite()
}

func (s *Socket) onHandshake(p wire.HandshakePacket, from Endpoint) {
	wasConnected := s.session.IsConnected()
	s.session.HandleHandshake(ConnectionID(p.SrcID), ConnectionID(p.DestID))
	if wasConnected || !s.session.IsConnected() {
		return
	}

	switch s.session.Role() {
	case RoleInitiator:
		secret, err := wire.DeriveSharedSecret(s.privateKey, p.PublicKey, s.nonce)
		if err != nil {
			log.Debug().Err(err).Msg("rudp: deriving shared secret failed")
		} else {
			s.secretKey = secret
		}

	case RoleResponder:
		secret, err := wire.DeriveSharedSecret(s.privateKey, p.PublicKey, p.Nonce)
		if err != nil {
			log.Debug().Err(err).Msg("rudp: deriving shared secret failed")
		} else {
			s.secretKey = secret
		}
		s.mux.dispatcher.UnregisterRendezvous(from, ConnectionID(p.SrcID))

		reply := wire.EncodeHandshake(uint32(s.peer.ID()), uint32(s.ID()), s.publicKey, p.Nonce)
		if err := s.mux.SendTo(context.Background(), reply, from); err != nil {
			log.Debug().Err(err).Msg("rudp: sending handshake reply failed")
		}
	}

	if s.pendingConnect != nil {
		s.pendingConnect <- Result{}
		s.pendingConnect = nil
	}
}
