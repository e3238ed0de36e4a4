// Package transport defines the coordinator's view of the byte-level
// connection layer: framing, dialing and accepting are external concerns
// (TCP, WebSocket) — the loop only ever sees a Connection it can enqueue
// frames onto and an EventSink it posts NewConnection/ConnectionReleased
// events through.
package transport

import (
	"net"

	"github.com/I-luk-I/Warthog/eventloop/peers"
)

// Connection is the loop's handle to one peer's send side. Implementations
// own the actual socket and any read-side goroutine; the loop only ever
// calls Enqueue and Close.
type Connection interface {
	peers.Sender
	Close()
	RemoteAddr() net.Addr
}

// EventSink is the narrow slice of the loop's Defer API a transport needs:
// posting connection lifecycle events without depending on the rest of
// eventloop (which in turn depends on transport for outbound dialing),
// avoiding an import cycle. DeferInbound blocks until the loop has admitted
// the connection and assigned it a stable id, since Serve needs that id
// before it can start delivering buffers.
type EventSink interface {
	DeferInbound(conn Connection) (peers.ConnID, bool)
	DeferReleased(id peers.ConnID, closeCode int32)
	DeferInboundBuffer(id peers.ConnID, buf []byte) bool
}

// Servable is a Connection whose owner also runs its blocking read loop,
// started only once EventSink.DeferInbound has handed back an id.
type Servable interface {
	Connection
	Serve(sink EventSink, id peers.ConnID)
}

// Dialer opens outbound connections on behalf of the address manager. Dial
// itself may block on the network round trip, so callers run it on its own
// goroutine rather than from the event loop.
type Dialer interface {
	Dial(addr string) (Servable, error)
}
