package wire

import "encoding/binary"

// Decode inspects a raw datagram and parses it as one of the three packet
// variants (Data, Ack, Handshake). The type byte selects the single
// variant to decode, and that variant's validation is what "decode
// succeeds" means here. Any failure —
// unknown type byte, truncated payload — returns *ErrMalformed, which
// pkg/rudp treats as an undecodable datagram: logged and dropped, never
// surfaced as an error to an application caller.
func Decode(b []byte) (Packet, error) {
	if len(b) < headerTypeSize+headerIDSize {
		return nil, &ErrMalformed{Reason: "shorter than the fixed header"}
	}

	switch PacketType(b[0]) {
	case TypeData:
		return decodeData(b)
	case TypeAck:
		return decodeAck(b)
	case TypeHandshake:
		return decodeHandshake(b)
	default:
		return nil, &ErrMalformed{Reason: "unrecognized packet type"}
	}
}

func decodeData(b []byte) (Packet, error) {
	if len(b) < dataAckHeaderSize {
		return nil, &ErrMalformed{Reason: "data header truncated"}
	}
	destID := binary.BigEndian.Uint32(b[1:5])
	offset := binary.BigEndian.Uint32(b[5:9])
	payload := append([]byte(nil), b[dataAckHeaderSize:]...)
	return DataPacket{DestID: destID, Offset: offset, Payload: payload}, nil
}

func decodeAck(b []byte) (Packet, error) {
	if len(b) != dataAckHeaderSize {
		return nil, &ErrMalformed{Reason: "ack packet has unexpected length"}
	}
	destID := binary.BigEndian.Uint32(b[1:5])
	ackOffset := binary.BigEndian.Uint32(b[5:9])
	return AckPacket{DestID: destID, AckOffset: ackOffset}, nil
}

func decodeHandshake(b []byte) (Packet, error) {
	if len(b) != handshakeFixedSize {
		return nil, &ErrMalformed{Reason: "handshake packet has unexpected length"}
	}
	if b[5] != HandshakeVersion {
		return nil, &ErrMalformed{Reason: "unsupported handshake version"}
	}
	destID := binary.BigEndian.Uint32(b[1:5])
	srcID := binary.BigEndian.Uint32(b[6:10])

	var pub [32]byte
	copy(pub[:], b[10:42])
	var nonce [24]byte
	copy(nonce[:], b[42:66])

	return HandshakePacket{DestID: destID, SrcID: srcID, PublicKey: pub, Nonce: nonce}, nil
}

// EncodeData serializes a Data packet.
func EncodeData(destID uint32, offset uint32, payload []byte) []byte {
	buf := make([]byte, dataAckHeaderSize+len(payload))
	buf[0] = byte(TypeData)
	binary.BigEndian.PutUint32(buf[1:5], destID)
	binary.BigEndian.PutUint32(buf[5:9], offset)
	copy(buf[dataAckHeaderSize:], payload)
	return buf
}

// EncodeAck serializes an Ack packet.
func EncodeAck(destID uint32, ackOffset uint32) []byte {
	buf := make([]byte, dataAckHeaderSize)
	buf[0] = byte(TypeAck)
	binary.BigEndian.PutUint32(buf[1:5], destID)
	binary.BigEndian.PutUint32(buf[5:9], ackOffset)
	return buf
}

// EncodeHandshake serializes a Handshake packet.
func EncodeHandshake(destID uint32, srcID uint32, pub [32]byte, nonce [24]byte) []byte {
	buf := make([]byte, handshakeFixedSize)
	buf[0] = byte(TypeHandshake)
	binary.BigEndian.PutUint32(buf[1:5], destID)
	buf[5] = HandshakeVersion
	binary.BigEndian.PutUint32(buf[6:10], srcID)
	copy(buf[10:42], pub[:])
	copy(buf[42:66], nonce[:])
	return buf
}
