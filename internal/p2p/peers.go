package p2p

import (
	"log"
	"sync"

	"github.com/tenzoki/peerx/internal/wire"
)

// Peers is the process-wide directory of live connections and the
// broadcaster fanning gossip out to them.
//
// Connections never hold a reference back to the registry. Closure is
// signalled over a channel the registry consumes, so a connection dying on
// its own reader goroutine removes itself without a reference cycle.
type Peers struct {
	mux    sync.RWMutex
	conns  map[ConnectionID]*Conn
	closed chan ConnectionID
	done   chan struct{}
	debug  bool
}

// NewPeers creates the registry and starts its closure reaper.
func NewPeers(debug bool) *Peers {
	p := &Peers{
		conns:  make(map[ConnectionID]*Conn),
		closed: make(chan ConnectionID, 16),
		done:   make(chan struct{}),
		debug:  debug,
	}
	go p.reapClosed()
	return p
}

func (p *Peers) reapClosed() {
	for {
		select {
		case id := <-p.closed:
			p.Remove(id)
		case <-p.done:
			return
		}
	}
}

// Add admits a connection after its handshake and subscribes to its
// closure.
func (p *Peers) Add(id ConnectionID, conn *Conn) {
	p.mux.Lock()
	p.conns[id] = conn
	p.mux.Unlock()
	conn.setCloseNotify(p.closed)
	if p.debug {
		log.Printf("peers: added %s (%d live)", id, p.Len())
	}
}

// Remove drops a connection from the directory.
func (p *Peers) Remove(id ConnectionID) {
	p.mux.Lock()
	_, existed := p.conns[id]
	delete(p.conns, id)
	p.mux.Unlock()
	if existed && p.debug {
		log.Printf("peers: removed %s (%d live)", id, p.Len())
	}
}

// Get looks a connection up by id.
func (p *Peers) Get(id ConnectionID) (*Conn, bool) {
	p.mux.RLock()
	defer p.mux.RUnlock()
	conn, ok := p.conns[id]
	return conn, ok
}

// Len reports the number of live connections.
func (p *Peers) Len() int {
	p.mux.RLock()
	defer p.mux.RUnlock()
	return len(p.conns)
}

// Broadcast queues msg on every live connection except the one named by
// except; pass an empty id to reach everyone. A peer whose queue is full
// or closed is logged and skipped, it never aborts the fan-out.
func (p *Peers) Broadcast(msg wire.Message, except ConnectionID) {
	p.mux.RLock()
	targets := make([]*Conn, 0, len(p.conns))
	for id, conn := range p.conns {
		if id != except {
			targets = append(targets, conn)
		}
	}
	p.mux.RUnlock()

	for _, conn := range targets {
		if err := conn.TrySend(msg); err != nil {
			log.Printf("peers: broadcast to %s failed: %v", conn.ID(), err)
		}
	}
}

// Stop shuts the reaper down and closes every live connection.
func (p *Peers) Stop() {
	close(p.done)
	p.mux.Lock()
	conns := make([]*Conn, 0, len(p.conns))
	for _, conn := range p.conns {
		conns = append(conns, conn)
	}
	p.conns = make(map[ConnectionID]*Conn)
	p.mux.Unlock()
	for _, conn := range conns {
		conn.Stop()
	}
}
