// Package tor integrates the node with a locally running anonymizing
// proxy: outbound dialing through its SOCKS5 port, and a client for the
// line-oriented control protocol used to authenticate and publish the
// node's hidden service.
package tor

import (
	"fmt"
	"net"

	"golang.org/x/net/proxy"
)

// Dial connects to addr through the SOCKS5 proxy on 127.0.0.1:proxyPort.
// The target address is handed to the proxy verbatim, so hidden-service
// names resolve on the proxy side.
func Dial(proxyPort uint16, addr string) (net.Conn, error) {
	dialer, err := proxy.SOCKS5("tcp", fmt.Sprintf("127.0.0.1:%d", proxyPort), nil, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("socks dialer: %w", err)
	}
	conn, err := dialer.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("socks connect to %s: %w", addr, err)
	}
	return conn, nil
}
