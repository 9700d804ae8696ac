// Package main runs the exchange-network peer daemon.
//
// Without flags the daemon loads peerx.yaml from the working directory if
// present, falls back to built-in defaults otherwise, bootstraps from a
// seed and serves peers and the query API until interrupted. With -check
// it probes a single peer with a ping and exits.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/tenzoki/peerx/internal/config"
	"github.com/tenzoki/peerx/internal/daemon"
	"github.com/tenzoki/peerx/internal/wire"
)

const defaultConfigFile = "peerx.yaml"

func main() {
	var (
		configFile = flag.String("config", "", "path to the configuration file")
		checkAddr  = flag.String("check", "", "probe a peer (host:port) with a ping and exit")
		network    = flag.String("network", "", "override the configured network")
		proxyPort  = flag.Uint("proxy", 0, "SOCKS proxy port for -check")
	)
	flag.Parse()

	cfg := loadConfig(*configFile)
	if *network != "" {
		cfg.Network = *network
		if err := cfg.Validate(); err != nil {
			log.Fatalf("invalid network override: %v", err)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *checkAddr != "" {
		checkNode(ctx, cfg, *checkAddr, uint16(*proxyPort))
		return
	}

	if err := daemon.Run(ctx, cfg); err != nil {
		log.Fatalf("daemon failed: %v", err)
	}
}

// loadConfig resolves the configuration source: an explicit file, the
// default file if it exists, or built-in defaults.
func loadConfig(path string) *config.Config {
	if path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			log.Fatalf("failed to load config from %s: %v", path, err)
		}
		log.Printf("using config file: %s", path)
		return cfg
	}
	if _, err := os.Stat(defaultConfigFile); err == nil {
		cfg, err := config.Load(defaultConfigFile)
		if err != nil {
			log.Fatalf("%s exists but failed to load: %v", defaultConfigFile, err)
		}
		log.Printf("using config file: %s", defaultConfigFile)
		return cfg
	}
	log.Printf("no config file found, using defaults")
	return config.Default()
}

func checkNode(ctx context.Context, cfg *config.Config, addr string, proxyPort uint16) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		log.Fatalf("invalid peer address %q: %v", addr, err)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		log.Fatalf("invalid peer port %q: %v", portStr, err)
	}

	target := wire.NodeAddress{HostName: host, Port: uint16(port)}
	rtt, err := daemon.CheckNode(ctx, cfg.BaseCurrencyNetwork(), target, proxyPort)
	if err != nil {
		fmt.Fprintf(os.Stderr, "check of %s failed: %v\n", target, err)
		os.Exit(1)
	}
	fmt.Printf("received pong from %s after %dms\n", target, rtt.Milliseconds())
}
