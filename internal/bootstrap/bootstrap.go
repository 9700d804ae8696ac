// Package bootstrap acquires the network's current gossip state from a
// seed peer: it picks seeds from the compile-time list in random order,
// performs the two-step data-load handshake against the first one that
// answers, hands the resulting data set to the router and leaves the seed
// connection registered for regular traffic.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/tenzoki/peerx/internal/p2p"
	"github.com/tenzoki/peerx/internal/router"
	"github.com/tenzoki/peerx/internal/wire"
)

// ErrNoSeeds reports an empty seed list for the configured network. There
// is nothing to bootstrap from; this is fatal.
var ErrNoSeeds = errors.New("no seed nodes available")

// seedBackoff paces the walk over the shuffled seed list after a failure.
const seedBackoff = time.Second

// Config parameterizes one bootstrap run.
type Config struct {
	Network      wire.BaseCurrencyNetwork
	LocalAddress wire.NodeAddress
	// ProxyPort routes seed dials through the local SOCKS proxy when
	// non-zero.
	ProxyPort uint16
	// Seeds overrides the network's compile-time seed list when non-empty.
	Seeds []wire.NodeAddress
	Debug bool
}

// Result reports the seed a successful bootstrap used.
type Result struct {
	Seed   wire.NodeAddress
	ConnID p2p.ConnectionID
}

// Run executes the bootstrap state machine once. It returns after the data
// set has been delivered to the router and the seed connection has been
// admitted into the registry, or with an error once every seed failed.
// Cancelling ctx abandons the run.
func Run(ctx context.Context, cfg Config, rt *router.Router, peers *p2p.Peers) (*Result, error) {
	seeds := cfg.Seeds
	if len(seeds) == 0 {
		seeds = wire.SeedNodes(cfg.Network)
	}
	if len(seeds) == 0 {
		return nil, ErrNoSeeds
	}
	rand.Shuffle(len(seeds), func(i, j int) {
		seeds[i], seeds[j] = seeds[j], seeds[i]
	})

	pacing := backoff.WithContext(backoff.NewConstantBackOff(seedBackoff), ctx)
	var lastErr error
	for _, seed := range seeds {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		result, err := runAgainstSeed(ctx, cfg, seed, rt, peers)
		if err == nil {
			return result, nil
		}
		log.Printf("bootstrap: seed %s failed: %v", seed, err)
		lastErr = err

		wait := pacing.NextBackOff()
		if wait == backoff.Stop {
			break
		}
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("all seeds failed: %w", lastErr)
}

// runAgainstSeed performs the two request/response steps against one seed.
// Responses are matched through the connection's correlation table, so a
// reply carrying the wrong request nonce never completes a step: it falls
// through to the connection's dispatcher and is discarded there.
func runAgainstSeed(ctx context.Context, cfg Config, seed wire.NodeAddress, rt *router.Router, peers *p2p.Peers) (*Result, error) {
	version := cfg.Network.MessageVersion()
	id, conn, err := p2p.Open(seed, version, p2p.DiscardDispatcher, cfg.ProxyPort, cfg.Debug)
	if err != nil {
		return nil, err
	}

	if cfg.Debug {
		log.Printf("bootstrap: exchanging preliminary data request with %s", seed)
	}
	preliminary := &wire.PreliminaryGetDataRequest{
		Nonce:                 wire.GenNonce(),
		SupportedCapabilities: wire.LocalCapabilities(),
	}
	first, err := awaitDataResponse(ctx, conn, preliminary)
	if err != nil {
		conn.Stop()
		return nil, err
	}

	if cfg.Debug {
		log.Printf("bootstrap: exchanging updated data request with %s", seed)
	}
	updated := &wire.GetUpdatedDataRequest{
		SenderNodeAddress: cfg.LocalAddress,
		Nonce:             wire.GenNonce(),
		ExcludedKeys:      observedKeys(first),
	}
	second, err := awaitDataResponse(ctx, conn, updated)
	if err != nil {
		conn.Stop()
		return nil, err
	}

	for _, resp := range []*wire.GetDataResponse{first, second} {
		err := rt.Deliver(router.Dispatch{Bootstrap: &router.BootstrapData{
			Entries:  resp.DataSet,
			Payloads: resp.PersistableNetworkPayloadItems,
		}})
		if err != nil {
			conn.Stop()
			return nil, err
		}
	}

	// The seed connection joins the regular data path.
	conn.SetDispatcher(rt)
	peers.Add(id, conn)

	log.Printf("bootstrap: loaded %d entries and %d payloads from %s",
		len(first.DataSet)+len(second.DataSet),
		len(first.PersistableNetworkPayloadItems)+len(second.PersistableNetworkPayloadItems),
		seed)
	return &Result{Seed: seed, ConnID: id}, nil
}

func awaitDataResponse(ctx context.Context, conn *p2p.Conn, request wire.Message) (*wire.GetDataResponse, error) {
	reply, err := conn.SendRequest(ctx, request)
	if err != nil {
		return nil, err
	}
	resp, ok := reply.(*wire.GetDataResponse)
	if !ok {
		return nil, fmt.Errorf("seed answered %s instead of a data response", reply.Kind())
	}
	return resp, nil
}

// observedKeys lists the content hashes the first response already
// delivered, so the updated request does not fetch them again.
func observedKeys(resp *wire.GetDataResponse) [][]byte {
	keys := make([][]byte, 0, len(resp.DataSet)+len(resp.PersistableNetworkPayloadItems))
	for _, wrapper := range resp.DataSet {
		entry := wrapper.Entry()
		if entry == nil {
			continue
		}
		hash, err := wire.HashOfStoragePayload(&entry.StoragePayload)
		if err != nil {
			continue
		}
		keys = append(keys, hash.Bytes())
	}
	for _, payload := range resp.PersistableNetworkPayloadItems {
		if sum, ok := payload.PersistentHash(); ok {
			keys = append(keys, sum)
		}
	}
	return keys
}
