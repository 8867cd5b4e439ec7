// Package transport declares the contracts the core consumes from the
// network layer and exposes to it. Nothing in this package dials a
// socket; concrete implementations live outside the core (see
// internal/transport for the demo TCP+Noise implementation).
package transport

// PeerID identifies a participant by its fixed, small integer id.
type PeerID int

// Transport is the outbound capability handed to the core. Both
// methods are fire-and-forget: failures are swallowed by the
// implementation and recovered via the core's own retry timers
// (heartbeats, re-elections), never surfaced as an error here.
type Transport interface {
	// Send delivers payload to a single peer.
	Send(payload []byte, dest PeerID)
	// Broadcast delivers payload to every peer except self.
	Broadcast(payload []byte)
}

// Receiver is implemented by the core and driven by the transport
// whenever a payload arrives from src.
type Receiver interface {
	OnReceive(payload []byte, src PeerID)
}

// ClientSink is the upward interface that receives committed Raft
// entries. Deliver is called exactly once per committed index, in
// strictly ascending index order.
type ClientSink interface {
	Deliver(payload []byte)
}
