// Package config loads the daemon configuration from YAML, applies
// defaults and validates the result.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tenzoki/peerx/internal/wire"
)

// Config is the daemon configuration.
type Config struct {
	// APIPort serves the read-only query API.
	APIPort uint16 `yaml:"api_port"`
	// ServerPort accepts inbound peer connections.
	ServerPort uint16 `yaml:"server_port"`
	// Network selects the deployment: mainnet, testnet, regtest,
	// dao_beta or dao_regtest.
	Network string `yaml:"network"`
	Debug   bool   `yaml:"debug"`

	Tor TorConfig `yaml:"tor"`
}

// TorConfig controls the optional anonymizing-network integration.
type TorConfig struct {
	// ProxyPort routes outbound dials through the local SOCKS proxy when
	// non-zero.
	ProxyPort uint16 `yaml:"proxy_port"`
	// ControlPort enables hidden-service publication when non-zero.
	ControlPort uint16 `yaml:"control_port"`
	// PrivateKey keeps the hidden-service address stable across restarts.
	// Empty requests a fresh key.
	PrivateKey string `yaml:"private_key"`
}

// Default returns the built-in configuration used when no file is given.
func Default() *Config {
	return &Config{
		APIPort:    7477,
		ServerPort: 5000,
		Network:    "mainnet",
	}
}

// Load reads and validates a configuration file.
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration values.
func (c *Config) Validate() error {
	if _, err := wire.NetworkFromName(c.Network); err != nil {
		return err
	}
	if c.APIPort == 0 {
		return fmt.Errorf("api_port must be set")
	}
	if c.ServerPort == 0 {
		return fmt.Errorf("server_port must be set")
	}
	return nil
}

// BaseCurrencyNetwork resolves the configured network name. Validate must
// have passed.
func (c *Config) BaseCurrencyNetwork() wire.BaseCurrencyNetwork {
	network, err := wire.NetworkFromName(c.Network)
	if err != nil {
		panic(err)
	}
	return network
}
