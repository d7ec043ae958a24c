package config

import (
	"time"

	"github.com/Klingon-tech/utxowallet/internal/indexer"
	"github.com/Klingon-tech/utxowallet/internal/reserve"
)

// Default send values, in satoshis (0.00001 and 0.00002 BTC).
const (
	DefaultAmount = 1000
	DefaultFee    = 2000
)

// DefaultTestnet returns the default configuration for testnet.
func DefaultTestnet() *Config {
	return &Config{
		Network: Testnet,
		DataDir: DefaultDataDir(),
		Indexer: IndexerConfig{
			URL:       indexer.DefaultURL,
			ChainPath: indexer.DefaultChainPath,
			Timeout:   indexer.DefaultTimeout,
			Retries:   indexer.DefaultMaxRetries,
			RateLimit: indexer.DefaultRateLimit,
		},
		Send: SendConfig{
			Amount:     DefaultAmount,
			Fee:        DefaultFee,
			ReserveTTL: reserve.DefaultTTL,
		},
		Wallet: WalletConfig{
			AddressType: "legacy",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Default returns the default configuration for the given network.
func Default(network NetworkType) *Config {
	cfg := DefaultTestnet()
	cfg.Network = network
	if network == Regtest {
		cfg.Indexer.URL = "http://127.0.0.1:8080"
		cfg.Indexer.RateLimit = 0
		cfg.Send.ReserveTTL = time.Minute
	}
	return cfg
}
