package transport

import (
	"net"
	"net/http"
	"sync"

	"github.com/I-luk-I/Warthog/eventloop/peers"
	"github.com/ethereum/go-ethereum/log"
	"github.com/gorilla/websocket"
)

// WSConn is a Connection backed by a WebSocket, the nearest idiomatic Go
// stand-in for the source's optional WebRTC transport: both exist to reach
// peers a raw TCP dial cannot (browser-hosted or NAT-constrained peers).
type WSConn struct {
	conn *websocket.Conn

	mu     sync.Mutex
	closed bool
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,
}

// AcceptWS upgrades an inbound HTTP request to a WebSocket connection.
func AcceptWS(w http.ResponseWriter, r *http.Request) (*WSConn, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return &WSConn{conn: conn}, nil
}

// DialWS opens an outbound WebSocket connection to url.
func DialWS(url string) (*WSConn, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, err
	}
	return &WSConn{conn: conn}, nil
}

// Serve reads binary frames, each one already a complete protocol.Frame
// buffer (WebSocket framing replaces the length prefix TCP needs).
func (c *WSConn) Serve(sink EventSink, id peers.ConnID) {
	for {
		kind, buf, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		if kind != websocket.BinaryMessage {
			log.Warn("websocket: dropping non-binary frame", "id", id, "kind", kind)
			continue
		}
		if !sink.DeferInboundBuffer(id, buf) {
			break
		}
	}
	c.Close()
	sink.DeferReleased(id, 0)
}

func (c *WSConn) Enqueue(buf []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.conn.WriteMessage(websocket.BinaryMessage, buf)
}

func (c *WSConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.conn.Close()
}

func (c *WSConn) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

// WSDialer implements Dialer over WebSocket.
type WSDialer struct{}

func (WSDialer) Dial(addr string) (Servable, error) { return DialWS(addr) }
