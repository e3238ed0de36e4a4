package transport

import (
	"net"

	"github.com/ethereum/go-ethereum/log"
)

// ListenTCP opens addr and spawns an accept loop, admitting each inbound
// socket through sink and starting its Serve loop on its own goroutine,
// mirroring p2p.Server's own listen-then-hand-off-to-a-goroutine shape. The
// returned listener is closed when the caller closes it or the accept loop
// hits a permanent error.
func ListenTCP(addr string, sink EventSink) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	go acceptLoop(ln, sink)
	return ln, nil
}

func acceptLoop(ln net.Listener, sink EventSink) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			log.Debug("transport: accept loop stopped", "err", err)
			ln.Close()
			return
		}
		go admitInbound(AcceptTCP(conn), sink)
	}
}

func admitInbound(conn Servable, sink EventSink) {
	id, ok := sink.DeferInbound(conn)
	if !ok {
		conn.Close()
		return
	}
	conn.Serve(sink, id)
}
