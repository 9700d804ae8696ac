package p2p

import (
	"context"
	"fmt"
	"log"
	"net"

	"github.com/tenzoki/peerx/internal/wire"
)

// Server accepts inbound peer connections, admits them into the registry
// and feeds their traffic to the configured dispatcher. Pings are answered
// directly so liveness checks work without involving upper layers.
type Server struct {
	peers      *Peers
	version    wire.MessageVersion
	dispatcher Dispatcher
	debug      bool
}

// NewServer wires a server to the registry and the data-path dispatcher.
func NewServer(peers *Peers, version wire.MessageVersion, dispatcher Dispatcher, debug bool) *Server {
	return &Server{
		peers:      peers,
		version:    version,
		dispatcher: dispatcher,
		debug:      debug,
	}
}

// Serve listens on port until ctx is cancelled. Accept errors on single
// connections are logged and do not stop the loop.
func (s *Server) Serve(ctx context.Context, port uint16) error {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("listen on %d: %w", port, err)
	}
	if s.debug {
		log.Printf("server: listening on %s", listener.Addr())
	}

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	for {
		raw, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Printf("server: accept error: %v", err)
			continue
		}
		s.admit(raw)
	}
}

// admit registers an inbound connection before its actor starts, so no
// message can race past the registry.
func (s *Server) admit(raw net.Conn) {
	conn := NewConn(raw, s.version, nil, s.debug)
	conn.SetDispatcher(&pingResponder{conn: conn, next: s.dispatcher})
	s.peers.Add(conn.ID(), conn)
	conn.Start()
	if s.debug {
		log.Printf("server: admitted %s from %s", conn.ID(), raw.RemoteAddr())
	}
}

// pingResponder answers Ping directly and defers everything else.
type pingResponder struct {
	conn *Conn
	next Dispatcher
}

func (p *pingResponder) Dispatch(from ConnectionID, msg wire.Message) bool {
	if ping, ok := msg.(*wire.Ping); ok {
		if err := p.conn.TrySend(&wire.Pong{RequestNonce: ping.Nonce}); err != nil {
			log.Printf("%s: pong not sent: %v", from, err)
		}
		return true
	}
	if p.next != nil {
		return p.next.Dispatch(from, msg)
	}
	return false
}
