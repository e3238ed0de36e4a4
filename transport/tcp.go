package transport

import (
	"bufio"
	"encoding/binary"
	"net"
	"sync"

	"github.com/I-luk-I/Warthog/eventloop/peers"
	"github.com/ethereum/go-ethereum/log"
)

const maxFrameLen = 4*1024*1024 + 64

// TCPConn is a Connection backed by a plain TCP socket, framed with a
// 4-byte big-endian length prefix ahead of each buffer produced by
// protocol.Frame.
type TCPConn struct {
	conn net.Conn

	mu     sync.Mutex
	closed bool

	id   peers.ConnID
	sink EventSink
}

// DialTCP opens an outbound TCP connection to addr.
func DialTCP(addr string) (*TCPConn, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &TCPConn{conn: conn}, nil
}

// AcceptTCP wraps an already-accepted inbound socket, mirroring AcceptWS's
// role for the WebSocket transport.
func AcceptTCP(conn net.Conn) *TCPConn { return &TCPConn{conn: conn} }

// Serve wires the connection into the loop and blocks reading frames until
// the connection closes or the loop rejects it. id is assigned by the loop
// once DeferInbound admits the connection; Serve is meant to run on its own
// goroutine, one per accepted or dialed connection, mirroring p2p.Peer.run.
func (c *TCPConn) Serve(sink EventSink, id peers.ConnID) {
	c.sink = sink
	c.id = id
	reader := bufio.NewReaderSize(c.conn, 64*1024)
	var lenBuf [4]byte
	for {
		if _, err := ioReadFull(reader, lenBuf[:]); err != nil {
			break
		}
		n := binary.BigEndian.Uint32(lenBuf[:])
		if n == 0 || n > maxFrameLen {
			log.Warn("tcp: peer sent oversize frame", "id", id, "len", n)
			break
		}
		buf := make([]byte, n)
		if _, err := ioReadFull(reader, buf); err != nil {
			break
		}
		if !sink.DeferInboundBuffer(id, buf) {
			break
		}
	}
	c.Close()
	sink.DeferReleased(id, 0)
}

func ioReadFull(r *bufio.Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Enqueue writes buf length-prefixed to the socket. The writes happen on
// whatever goroutine calls Enqueue, the event loop included, serialized by
// c.mu; the call blocks until the socket has taken both writes.
func (c *TCPConn) Enqueue(buf []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(buf)))
	if _, err := c.conn.Write(lenBuf[:]); err != nil {
		return
	}
	c.conn.Write(buf)
}

func (c *TCPConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.conn.Close()
}

func (c *TCPConn) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

// TCPDialer implements Dialer over plain TCP.
type TCPDialer struct{}

func (TCPDialer) Dial(addr string) (Servable, error) { return DialTCP(addr) }
