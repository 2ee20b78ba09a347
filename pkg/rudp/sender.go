package rudp

import "github.com/rs/zerolog/log"

// segment is a contiguous run of bytes that has left the send buffer and is
// waiting to be acknowledged. offset is the byte's position in the
// session's outbound byte stream (stream-relative, not wall-clock).
type segment struct {
	offset int
	data   []byte
}

// Sender owns the outbound sequence-number generator, a bounded send
// buffer, and the window of bytes that have been handed to the multiplexer
// but not yet acknowledged. It never blocks: AddData absorbs whatever fits
// and reports how much it took.
type Sender struct {
	capacity int

	seqCounter Seq // monotonic counter for NextSequenceNumber

	buffered   []byte    // bytes queued, not yet drained into a segment
	inFlight   []segment // segments sent, awaiting ack, ordered by offset
	sendCursor int       // stream offset of the next byte to be drained
	baseOffset int       // stream offset of the first unacked byte
}

// NewSender creates a Sender with the given send-buffer capacity and
// initial sequence number seed.
func NewSender(capacity int, initialSeq Seq) *Sender {
	return &Sender{capacity: capacity, seqCounter: initialSeq}
}

// NextSequenceNumber returns the current sequence counter and advances it.
// Used to seed the session's initial sequence number at Open; strictly
// monotonic within a session.
func (s *Sender) NextSequenceNumber() Seq {
	v := s.seqCounter
	s.seqCounter++
	return v
}

// outstanding returns the number of bytes buffered-but-unsent plus bytes
// in flight — everything counted against the send cap.
func (s *Sender) outstanding() int {
	return (s.sendCursor - s.baseOffset) + len(s.buffered)
}

// FreeSpace returns the number of additional bytes AddData would currently
// accept. Always >= 0.
func (s *Sender) FreeSpace() int {
	free := s.capacity - s.outstanding()
	if free < 0 {
		return 0
	}
	return free
}

// AddData copies up to FreeSpace() bytes from p into the send buffer and
// returns the count actually absorbed. Never blocks; returns 0 if the
// buffer is full.
func (s *Sender) AddData(p []byte) int {
	free := s.FreeSpace()
	if free <= 0 || len(p) == 0 {
		return 0
	}
	n := len(p)
	if n > free {
		n = free
	}
	s.buffered = append(s.buffered, p[:n]...)
	return n
}

// DrainSegments fragments the currently buffered-but-unsent bytes into
// chunks no larger than mtu, moves each chunk into the in-flight window,
// and returns the chunks (with their stream offsets) for the multiplexer to
// frame and send as Data packets. Returns nil if nothing is buffered.
func (s *Sender) DrainSegments(mtu int) []segment {
	if len(s.buffered) == 0 || mtu <= 0 {
		return nil
	}
	var out []segment
	for len(s.buffered) > 0 {
		n := mtu
		if n > len(s.buffered) {
			n = len(s.buffered)
		}
		chunk := s.buffered[:n]
		s.buffered = s.buffered[n:]

		seg := segment{offset: s.sendCursor, data: chunk}
		s.sendCursor += n
		s.inFlight = append(s.inFlight, seg)
		out = append(out, seg)
	}
	return out
}

// HandleAck advances the unacked cursor to ackOffset and releases any
// in-flight segments it fully covers. Out-of-range acks (beyond what has
// been sent) and duplicate/stale acks (at or behind the current cursor) are
// ignored with a debug log line.
func (s *Sender) HandleAck(ackOffset int) {
	if ackOffset <= s.baseOffset || ackOffset > s.sendCursor {
		log.Debug().
			Int("ack_offset", ackOffset).
			Int("base_offset", s.baseOffset).
			Int("send_cursor", s.sendCursor).
			Msg("rudp: ignoring ack outside the unacked window")
		return
	}

	kept := s.inFlight[:0]
	for _, seg := range s.inFlight {
		if seg.offset+len(seg.data) <= ackOffset {
			continue // fully acked, drop it
		}
		kept = append(kept, seg)
	}
	s.inFlight = kept
	s.baseOffset = ackOffset
}

// Reset discards all buffered and in-flight bytes. Called on Close: per the
// spec, buffered-unsent and in-flight bytes are simply dropped, not flushed.
// baseOffset is advanced to sendCursor so FreeSpace reports the full
// capacity again rather than still counting the discarded in-flight bytes.
func (s *Sender) Reset() {
	s.buffered = nil
	s.inFlight = nil
	s.baseOffset = s.sendCursor
}
