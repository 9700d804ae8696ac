package p2p

import "github.com/tenzoki/peerx/internal/wire"

// Dispatcher consumes inbound messages a connection could not correlate to
// an outstanding request. The return value reports whether the message was
// consumed; unconsumed messages are dropped by the connection.
type Dispatcher interface {
	Dispatch(from ConnectionID, msg wire.Message) bool
}

// DispatcherFunc adapts a function to the Dispatcher interface.
type DispatcherFunc func(from ConnectionID, msg wire.Message) bool

// Dispatch implements Dispatcher.
func (f DispatcherFunc) Dispatch(from ConnectionID, msg wire.Message) bool {
	return f(from, msg)
}

// DiscardDispatcher drops every message. Used while a connection is owned
// exclusively by a request/response exchange, such as during bootstrap.
var DiscardDispatcher Dispatcher = DispatcherFunc(func(ConnectionID, wire.Message) bool {
	return false
})
