// Package daemon is the composition root: it builds the domain
// collaborators, the router, the peers registry, the inbound server, the
// query API and the bootstrap task, and supervises them until shutdown.
package daemon

import (
	"context"
	"fmt"
	"log"

	"golang.org/x/sync/errgroup"

	"github.com/tenzoki/peerx/internal/api"
	"github.com/tenzoki/peerx/internal/bootstrap"
	"github.com/tenzoki/peerx/internal/config"
	"github.com/tenzoki/peerx/internal/domain"
	"github.com/tenzoki/peerx/internal/p2p"
	"github.com/tenzoki/peerx/internal/router"
	"github.com/tenzoki/peerx/internal/tor"
	"github.com/tenzoki/peerx/internal/wire"
)

// Run starts the node and blocks until ctx is cancelled or a service
// fails. A failed bootstrap is fatal only to the bootstrap task: the node
// keeps serving inbound peers and the query API.
func Run(ctx context.Context, cfg *config.Config) error {
	network := cfg.BaseCurrencyNetwork()
	version := network.MessageVersion()
	log.Printf("daemon: starting on %s (message version %d)", network, version)

	offers := domain.NewOfferBook(cfg.Debug)
	stats := domain.NewStatsCache()
	peers := p2p.NewPeers(cfg.Debug)
	defer peers.Stop()

	rt := router.New(offers, stats, peers, cfg.Debug)
	rt.Start(ctx)

	group, ctx := errgroup.WithContext(ctx)

	server := p2p.NewServer(peers, version, rt, cfg.Debug)
	group.Go(func() error {
		return server.Serve(ctx, cfg.ServerPort)
	})

	queryAPI := api.New(offers, stats, peers, cfg.Debug)
	group.Go(func() error {
		return queryAPI.ListenAndServe(ctx, cfg.APIPort)
	})

	localAddress, err := publishAddress(ctx, cfg)
	if err != nil {
		return err
	}

	group.Go(func() error {
		result, err := bootstrap.Run(ctx, bootstrap.Config{
			Network:      network,
			LocalAddress: localAddress,
			ProxyPort:    cfg.Tor.ProxyPort,
			Debug:        cfg.Debug,
		}, rt, peers)
		if err != nil {
			// The node stays up for inbound peers and the API.
			log.Printf("daemon: bootstrap failed: %v", err)
			return nil
		}
		log.Printf("daemon: bootstrapped from %s", result.Seed)
		return nil
	})

	return group.Wait()
}

// publishAddress determines the address peers should reach us on. With a
// control port configured the server port is published as a hidden
// service; otherwise the node announces localhost, which is only useful on
// regtest setups.
func publishAddress(ctx context.Context, cfg *config.Config) (wire.NodeAddress, error) {
	if cfg.Tor.ControlPort == 0 {
		return wire.NodeAddress{HostName: "127.0.0.1", Port: cfg.ServerPort}, nil
	}

	control, err := tor.DialControl(fmt.Sprintf("127.0.0.1:%d", cfg.Tor.ControlPort), cfg.Debug)
	if err != nil {
		return wire.NodeAddress{}, err
	}
	go func() {
		<-ctx.Done()
		control.Close()
	}()

	if err := control.Authenticate(); err != nil {
		return wire.NodeAddress{}, err
	}
	service, err := control.AddOnion(cfg.Tor.PrivateKey, cfg.ServerPort, cfg.ServerPort)
	if err != nil {
		return wire.NodeAddress{}, err
	}
	log.Printf("daemon: hidden service %s.onion:%d", service.ServiceID, cfg.ServerPort)
	return wire.NodeAddress{HostName: service.ServiceID + ".onion", Port: cfg.ServerPort}, nil
}
