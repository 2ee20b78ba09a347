package rudp

// Peer holds the remote identity of a connection: its UDP endpoint and its
// connection id as seen by the remote multiplexer. Both fields start zero.
// endpoint is set before a connect attempt (or preset by the caller on the
// responder side); id is set when a handshake reply is processed.
//
// Peer is owned by exactly one Socket and carries no locking. Apart from a
// Responder caller presetting it before StartAccept, it is touched only
// from that socket's multiplexer loop goroutine.
type Peer struct {
	endpoint Endpoint
	id       ConnectionID
}

// Endpoint returns the peer's remote UDP address.
func (p *Peer) Endpoint() Endpoint { return p.endpoint }

// ID returns the peer's connection id, or zero if not yet known.
func (p *Peer) ID() ConnectionID { return p.id }

// SetEndpoint updates the remote address.
func (p *Peer) SetEndpoint(e Endpoint) { p.endpoint = e }

// SetID updates the remote connection id.
func (p *Peer) SetID(id ConnectionID) { p.id = id }

// Reset clears both fields, returning the peer to its zero value.
func (p *Peer) Reset() {
	p.endpoint = Endpoint{}
	p.id = 0
}
