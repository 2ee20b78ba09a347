package rudp

import "errors"

// Error values surfaced on pending I/O completions.
//
// Everything else a Socket can observe on the wire — undecodable datagrams,
// stray or malformed handshakes, acks outside the unacked window, data
// packets that would overflow the read cap — is swallowed with a log line
// rather than surfaced here. The transport must tolerate adversarial or
// stale datagrams without tearing a session down; peer liveness and
// retransmission are the sender's concern, not this package's.
var (
	// ErrOperationAborted is delivered to any pending connect/read/write
	// when the socket is closed while that operation was outstanding.
	ErrOperationAborted = errors.New("rudp: operation aborted")

	// ErrResourceExhausted is returned by the dispatcher when no connection
	// id can be allocated.
	ErrResourceExhausted = errors.New("rudp: connection id space exhausted")

	// ErrNotConnected is returned by helpers that require a Connected
	// session (for example, deriving the handshake secret) when called too
	// early.
	ErrNotConnected = errors.New("rudp: socket is not connected")

	// ErrPendingOperation is the panic value for a caller-contract
	// violation: starting a connect/read/write while one of that same
	// kind is already outstanding on the socket. This package detects it
	// with a runtime assertion rather than returning it as an error,
	// since it cannot happen without a caller bug.
	ErrPendingOperation = errors.New("rudp: an operation of this kind is already pending")
)
