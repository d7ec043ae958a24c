// Package config handles application configuration.
//
// Settings are layered, lowest precedence first: built-in defaults, the
// .conf file in the data directory, environment variables, and finally
// command-line flags.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/Klingon-tech/utxowallet/internal/indexer"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
)

// NetworkType identifies the Bitcoin network the wallet operates on.
type NetworkType string

const (
	Mainnet NetworkType = "mainnet"
	Testnet NetworkType = "testnet"
	Signet  NetworkType = "signet"
	Regtest NetworkType = "regtest"
)

// ParseNetwork maps a network name to its NetworkType. "testnet3" and
// "main" are accepted as aliases.
func ParseNetwork(s string) (NetworkType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mainnet", "main":
		return Mainnet, nil
	case "testnet", "testnet3", "test":
		return Testnet, nil
	case "signet":
		return Signet, nil
	case "regtest":
		return Regtest, nil
	}
	return "", fmt.Errorf("%w: unknown network %q", ErrConfiguration, s)
}

// Params returns the chain parameters of the network.
func (n NetworkType) Params() (*chaincfg.Params, error) {
	switch n {
	case Mainnet:
		return &chaincfg.MainNetParams, nil
	case Testnet:
		return &chaincfg.TestNet3Params, nil
	case Signet:
		return &chaincfg.SigNetParams, nil
	case Regtest:
		return &chaincfg.RegressionNetParams, nil
	}
	return nil, fmt.Errorf("%w: unknown network %q", ErrConfiguration, n)
}

// ChainSelector returns the indexer's chain selector for the network.
// Regtest has no hosted indexer and returns an empty selector.
func (n NetworkType) ChainSelector() string {
	switch n {
	case Mainnet:
		return "bitcoin-mainnet"
	case Testnet:
		return "bitcoin-testnet"
	case Signet:
		return "bitcoin-signet"
	}
	return ""
}

// Config holds the runtime configuration.
type Config struct {
	Network NetworkType `conf:"network"`
	DataDir string      `conf:"datadir"`

	Indexer IndexerConfig
	Send    SendConfig
	Wallet  WalletConfig
	Log     LogConfig
}

// IndexerConfig holds the hosted indexer settings.
type IndexerConfig struct {
	URL       string        `conf:"indexer.url"`
	APIKey    string        `conf:"indexer.apikey"`
	ChainPath string        `conf:"indexer.chain"`
	Selector  string        `conf:"indexer.selector"` // Empty: derived from the network.
	Timeout   time.Duration `conf:"indexer.timeout"`
	Retries   int           `conf:"indexer.retries"`
	RateLimit int           `conf:"indexer.ratelimit"` // Requests per second, 0 = unlimited.
}

// SendConfig holds the parameters of a payment.
type SendConfig struct {
	From       string         `conf:"send.from"`
	FromKey    string         `conf:"send.fromkey"` // WIF; never written back to disk.
	To         string         `conf:"send.to"`
	Amount     btcutil.Amount `conf:"send.amount"`
	Fee        btcutil.Amount `conf:"send.fee"`
	Change     string         `conf:"send.change"`
	ReserveTTL time.Duration  `conf:"send.reservettl"`
}

// WalletConfig holds HD wallet settings.
type WalletConfig struct {
	AddressType string `conf:"wallet.addresstype"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `conf:"log.level"`
	File  string `conf:"log.file"`
	JSON  bool   `conf:"log.json"`
}

// Params returns the chain parameters of the configured network.
func (c *Config) Params() (*chaincfg.Params, error) {
	return c.Network.Params()
}

// ChainSelector returns the configured selector, or the network default.
func (c *Config) ChainSelector() string {
	if c.Indexer.Selector != "" {
		return c.Indexer.Selector
	}
	return c.Network.ChainSelector()
}

// IndexerClientConfig converts the indexer settings into a client config.
func (c *Config) IndexerClientConfig() indexer.Config {
	ic := indexer.DefaultConfig()
	ic.URL = c.Indexer.URL
	ic.APIKey = c.Indexer.APIKey
	ic.ChainPath = c.Indexer.ChainPath
	ic.ChainSelector = c.ChainSelector()
	ic.Timeout = c.Indexer.Timeout
	ic.MaxRetries = c.Indexer.Retries
	ic.RateLimit = c.Indexer.RateLimit
	return ic
}

// =============================================================================
// Directory helpers
// =============================================================================

// DefaultDataDir returns the platform-specific default data directory.
//
//	Linux:   ~/.utxowallet
//	macOS:   ~/Library/Application Support/UTXOWallet
//	Windows: %APPDATA%\UTXOWallet
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".utxowallet"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "UTXOWallet")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, "UTXOWallet")
		}
		return filepath.Join(home, "AppData", "Roaming", "UTXOWallet")
	default:
		return filepath.Join(home, ".utxowallet")
	}
}

// ChainDataDir returns the network-specific data directory.
func (c *Config) ChainDataDir() string {
	return filepath.Join(c.DataDir, string(c.Network))
}

// KeystoreDir returns the keystore directory.
func (c *Config) KeystoreDir() string {
	return filepath.Join(c.ChainDataDir(), "keystore")
}

// ReserveDir returns the UTXO reservation database directory.
func (c *Config) ReserveDir() string {
	return filepath.Join(c.ChainDataDir(), "reserve")
}

// ConfigFile returns the config file path.
func (c *Config) ConfigFile() string {
	return filepath.Join(c.DataDir, "utxowallet.conf")
}
