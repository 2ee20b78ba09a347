// Package wire implements the on-the-wire codec for rudp: encoding and
// decoding of the three packet variants (Data, Ack, Handshake) that
// pkg/rudp exchanges over a Multiplexer, plus the handshake key-exchange
// and payload-encryption helpers a Connected session uses once it has a
// shared secret.
//
// wire has no dependency on pkg/rudp — it deals only in connection ids and
// bytes — so pkg/rudp consumes it as a leaf dependency, matching the
// layering in the design: the codec is an opaque collaborator, not part of
// the state machine.
package wire

import "fmt"

// PacketType tags the three packet variants carried in the header's first
// byte.
type PacketType byte

const (
	TypeData      PacketType = 0
	TypeAck       PacketType = 1
	TypeHandshake PacketType = 2
)

// HandshakeVersion is the only handshake wire version this module speaks.
// A mismatched version byte makes Decode fail, which pkg/rudp treats like
// any other undecodable datagram: dropped with a log line, never an error
// surfaced to a caller.
const HandshakeVersion byte = 1

const (
	headerTypeSize = 1
	headerIDSize   = 4
	headerSeqSize  = 4

	dataAckHeaderSize = headerTypeSize + headerIDSize + headerSeqSize

	// Handshake layout: type(1) destID(4) version(1) srcID(4) pubkey(32) nonce(24)
	handshakeFixedSize = headerTypeSize + headerIDSize + 1 + headerIDSize + 32 + 24
)

// Packet is implemented by DataPacket, AckPacket, and HandshakePacket.
type Packet interface {
	// DestinationID returns the connection id this packet is addressed to.
	DestinationID() uint32
	Type() PacketType
}

// DataPacket carries application payload at a given stream offset.
type DataPacket struct {
	DestID  uint32
	Offset  uint32 // byte offset of Payload[0] in the sender's outbound stream
	Payload []byte
}

func (p DataPacket) DestinationID() uint32 { return p.DestID }
func (p DataPacket) Type() PacketType      { return TypeData }

// AckPacket cumulatively acknowledges everything before AckOffset.
type AckPacket struct {
	DestID    uint32
	AckOffset uint32
}

func (p AckPacket) DestinationID() uint32 { return p.DestID }
func (p AckPacket) Type() PacketType      { return TypeAck }

// HandshakePacket carries the sender's connection id and X25519 key
// material used to derive the session's shared secret.
type HandshakePacket struct {
	DestID    uint32
	SrcID     uint32
	PublicKey [32]byte
	Nonce     [24]byte
}

func (p HandshakePacket) DestinationID() uint32 { return p.DestID }
func (p HandshakePacket) Type() PacketType      { return TypeHandshake }

// ErrMalformed is returned by Decode for any datagram that is too short,
// carries an unrecognized type byte, or fails variant-specific validation.
type ErrMalformed struct {
	Reason string
}

func (e *ErrMalformed) Error() string { return fmt.Sprintf("wire: malformed packet: %s", e.Reason) }
