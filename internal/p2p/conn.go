// Package p2p owns the live connections of the node: the per-peer
// connection actor with its bounded send queue and correlation table, the
// dispatcher contract that hands inbound traffic to upper layers, the
// process-wide peers registry with its broadcaster, and the accept loop
// for inbound peers.
package p2p

import (
	"context"
	"errors"
	"io"
	"log"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tenzoki/peerx/internal/tor"
	"github.com/tenzoki/peerx/internal/wire"
)

var (
	// ErrConnectFailed reports a failed TCP or SOCKS connect.
	ErrConnectFailed = errors.New("connect failed")
	// ErrConnectionClosed reports an operation on a connection that has
	// stopped, including requests in flight when the stream closed.
	ErrConnectionClosed = errors.New("connection closed")
	// ErrNoCorrelation reports a request message that carries no
	// correlation id and therefore can never see its response.
	ErrNoCorrelation = errors.New("request message carries no correlation id")
	// ErrSendQueueFull reports a non-blocking send against a full queue.
	ErrSendQueueFull = errors.New("send queue full")
)

// sendQueueDepth bounds the outbound queue of one connection. This is the
// only flow control the node applies.
const sendQueueDepth = 10

const dialTimeout = 30 * time.Second

// ConnectionID identifies one live connection. It is generated on
// admission and stays stable until the connection dies.
type ConnectionID string

// NewConnectionID generates a fresh id.
func NewConnectionID() ConnectionID {
	return ConnectionID(uuid.New().String())
}

// Conn is the actor owning one peer link. A writer goroutine drains the
// bounded send queue into framed, flushed messages; a reader goroutine
// decodes inbound frames and routes each message first against the
// correlation table and otherwise into the dispatcher. All exported
// methods are safe for concurrent use.
type Conn struct {
	id      ConnectionID
	raw     net.Conn
	version wire.MessageVersion
	debug   bool

	sendQ chan wire.Message

	mux        sync.Mutex
	dispatcher Dispatcher
	waiters    map[int32]chan wire.Message
	notify     chan<- ConnectionID

	closed    chan struct{}
	closeOnce sync.Once
}

// Open dials a peer and starts the connection actor. With a non-zero
// socksPort the dial goes through the SOCKS proxy on localhost, so
// hidden-service names are resolved by the proxy.
func Open(addr wire.NodeAddress, version wire.MessageVersion, dispatcher Dispatcher, socksPort uint16, debug bool) (ConnectionID, *Conn, error) {
	var (
		raw net.Conn
		err error
	)
	if socksPort != 0 {
		raw, err = tor.Dial(socksPort, addr.String())
	} else {
		raw, err = net.DialTimeout("tcp", addr.String(), dialTimeout)
	}
	if err != nil {
		return "", nil, errors.Join(ErrConnectFailed, err)
	}
	conn := NewConn(raw, version, dispatcher, debug)
	conn.Start()
	return conn.ID(), conn, nil
}

// NewConn wraps an established stream without starting the actor, so the
// caller can register the connection before any traffic is processed.
// Call Start exactly once afterwards.
func NewConn(raw net.Conn, version wire.MessageVersion, dispatcher Dispatcher, debug bool) *Conn {
	return &Conn{
		id:         NewConnectionID(),
		raw:        raw,
		version:    version,
		debug:      debug,
		sendQ:      make(chan wire.Message, sendQueueDepth),
		dispatcher: dispatcher,
		waiters:    make(map[int32]chan wire.Message),
		closed:     make(chan struct{}),
	}
}

// Start launches the reader and writer goroutines.
func (c *Conn) Start() {
	go c.writeLoop()
	go c.readLoop()
}

// ID returns the connection's stable identifier.
func (c *Conn) ID() ConnectionID { return c.id }

// SetDispatcher replaces the consumer of uncorrelated inbound messages.
// Used when a connection opened for bootstrap is handed over to the
// regular data path.
func (c *Conn) SetDispatcher(d Dispatcher) {
	c.mux.Lock()
	c.dispatcher = d
	c.mux.Unlock()
}

// setCloseNotify wires the channel the registry listens on for closures.
func (c *Conn) setCloseNotify(ch chan<- ConnectionID) {
	c.mux.Lock()
	c.notify = ch
	c.mux.Unlock()
	// A connection that died before registration still has to be reaped.
	select {
	case <-c.closed:
		c.sendCloseNotify()
	default:
	}
}

// Send queues one outbound message. It returns once the send queue has
// accepted the message, not once it is flushed. A full queue blocks the
// caller until the writer catches up or the connection closes.
func (c *Conn) Send(msg wire.Message) error {
	select {
	case <-c.closed:
		return ErrConnectionClosed
	default:
	}
	select {
	case c.sendQ <- msg:
		return nil
	case <-c.closed:
		return ErrConnectionClosed
	}
}

// TrySend queues one outbound message without blocking. Used by the
// broadcaster so one slow peer cannot stall the fan-out.
func (c *Conn) TrySend(msg wire.Message) error {
	select {
	case c.sendQ <- msg:
		return nil
	case <-c.closed:
		return ErrConnectionClosed
	default:
		return ErrSendQueueFull
	}
}

// SendRequest queues a request and waits for the response carrying the
// same correlation id. The message must carry a correlation id. There is
// no built-in deadline; bound the wait through ctx.
func (c *Conn) SendRequest(ctx context.Context, msg wire.Message) (wire.Message, error) {
	corr, ok := wire.CorrelationOf(msg)
	if !ok {
		return nil, ErrNoCorrelation
	}

	waiter := make(chan wire.Message, 1)
	c.mux.Lock()
	if _, dup := c.waiters[corr]; dup {
		log.Printf("%s: duplicate in-flight correlation id %d, overwriting", c.id, corr)
	}
	c.waiters[corr] = waiter
	c.mux.Unlock()

	if err := c.Send(msg); err != nil {
		c.removeWaiter(corr)
		return nil, err
	}

	select {
	case resp := <-waiter:
		return resp, nil
	case <-c.closed:
		c.removeWaiter(corr)
		return nil, ErrConnectionClosed
	case <-ctx.Done():
		c.removeWaiter(corr)
		return nil, ctx.Err()
	}
}

func (c *Conn) removeWaiter(corr int32) {
	c.mux.Lock()
	delete(c.waiters, corr)
	c.mux.Unlock()
}

// Stop closes the connection. Outstanding requests fail with
// ErrConnectionClosed.
func (c *Conn) Stop() {
	c.close(nil)
}

func (c *Conn) close(reason error) {
	c.closeOnce.Do(func() {
		if reason != nil && c.debug {
			log.Printf("%s: closing: %v", c.id, reason)
		}
		close(c.closed)
		c.raw.Close()
		c.mux.Lock()
		// Outstanding waiters learn about the closure through the closed
		// channel their SendRequest selects on.
		c.waiters = make(map[int32]chan wire.Message)
		c.mux.Unlock()
		c.sendCloseNotify()
	})
}

func (c *Conn) sendCloseNotify() {
	c.mux.Lock()
	notify := c.notify
	c.notify = nil
	c.mux.Unlock()
	if notify != nil {
		select {
		case notify <- c.id:
		default:
			log.Printf("%s: close notification dropped, registry not draining", c.id)
		}
	}
}

func (c *Conn) writeLoop() {
	fw := wire.NewFrameWriter(c.raw, c.version)
	for {
		select {
		case msg := <-c.sendQ:
			if c.debug {
				log.Printf("%s: sending %s", c.id, msg.Kind())
			}
			if err := fw.Write(msg); err != nil {
				c.close(err)
				return
			}
		case <-c.closed:
			return
		}
	}
}

func (c *Conn) readLoop() {
	fr := wire.NewFrameReader(c.raw, c.version, c.debug)
	for {
		msg, err := fr.Next()
		if err != nil {
			if err == io.EOF {
				c.close(nil)
			} else {
				c.close(err)
			}
			return
		}
		if c.debug {
			log.Printf("%s: received %s", c.id, msg.Kind())
		}
		c.handleInbound(msg)
	}
}

// handleInbound routes one decoded message: a registered correlation
// waiter consumes it, anything else goes to the dispatcher. Messages the
// dispatcher does not recognize are dropped.
func (c *Conn) handleInbound(msg wire.Message) {
	if corr, ok := wire.CorrelationOf(msg); ok {
		c.mux.Lock()
		waiter, exists := c.waiters[corr]
		if exists {
			delete(c.waiters, corr)
		}
		c.mux.Unlock()
		if exists {
			waiter <- msg
			return
		}
	}

	c.mux.Lock()
	dispatcher := c.dispatcher
	c.mux.Unlock()
	if dispatcher != nil {
		dispatcher.Dispatch(c.id, msg)
	}
}
