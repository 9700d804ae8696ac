package daemon

import (
	"context"
	"fmt"
	"time"

	"github.com/tenzoki/peerx/internal/p2p"
	"github.com/tenzoki/peerx/internal/wire"
)

// CheckNode opens a single connection to a peer, sends a Ping and reports
// the round-trip time of the matching Pong. Used by the CLI to probe
// seeds and own deployments.
func CheckNode(ctx context.Context, network wire.BaseCurrencyNetwork, addr wire.NodeAddress, proxyPort uint16) (time.Duration, error) {
	_, conn, err := p2p.Open(addr, network.MessageVersion(), p2p.DiscardDispatcher, proxyPort, false)
	if err != nil {
		return 0, err
	}
	defer conn.Stop()

	start := time.Now()
	reply, err := conn.SendRequest(ctx, &wire.Ping{Nonce: wire.GenNonce()})
	if err != nil {
		return 0, err
	}
	if _, ok := reply.(*wire.Pong); !ok {
		return 0, fmt.Errorf("peer answered %s instead of a pong", reply.Kind())
	}
	return time.Since(start), nil
}
