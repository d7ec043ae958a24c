package config

import (
	"fmt"
	"os"

	"github.com/Klingon-tech/utxowallet/pkg/units"
)

// Environment variable names.
const (
	EnvAPIKey     = "TATUM_API_KEY"
	EnvFromAddr   = "FROM_ADDR"
	EnvFromPriv   = "FROM_PRIV"
	EnvToAddr     = "TO_ADDR"
	EnvAmountBTC  = "AMOUNT_BTC"
	EnvFeeBTC     = "FEE_BTC"
	EnvAPIURL     = "UTXOWALLET_API_URL"
	EnvNetwork    = "UTXOWALLET_NETWORK"
	EnvChain      = "UTXOWALLET_CHAIN"
	EnvDataDir    = "UTXOWALLET_DATADIR"
	EnvLogLevel   = "UTXOWALLET_LOG_LEVEL"
	EnvChangeAddr = "UTXOWALLET_CHANGE_ADDR"
)

// LookupFunc reads one environment variable.
type LookupFunc func(key string) (string, bool)

// ApplyEnv applies environment variables to cfg. Empty values are treated
// as unset.
func ApplyEnv(cfg *Config, lookup LookupFunc) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		return v, ok && v != ""
	}

	if v, ok := get(EnvNetwork); ok {
		n, err := ParseNetwork(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvNetwork, err)
		}
		cfg.Network = n
	}
	if v, ok := get(EnvDataDir); ok {
		cfg.DataDir = v
	}
	if v, ok := get(EnvAPIURL); ok {
		cfg.Indexer.URL = v
	}
	if v, ok := get(EnvAPIKey); ok {
		cfg.Indexer.APIKey = v
	}
	if v, ok := get(EnvChain); ok {
		cfg.Indexer.Selector = v
	}
	if v, ok := get(EnvFromAddr); ok {
		cfg.Send.From = v
	}
	if v, ok := get(EnvFromPriv); ok {
		cfg.Send.FromKey = v
	}
	if v, ok := get(EnvToAddr); ok {
		cfg.Send.To = v
	}
	if v, ok := get(EnvChangeAddr); ok {
		cfg.Send.Change = v
	}
	if v, ok := get(EnvAmountBTC); ok {
		a, err := units.ParseBTC(v)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrConfiguration, EnvAmountBTC, err)
		}
		cfg.Send.Amount = a
	}
	if v, ok := get(EnvFeeBTC); ok {
		a, err := units.ParseBTC(v)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrConfiguration, EnvFeeBTC, err)
		}
		cfg.Send.Fee = a
	}
	if v, ok := get(EnvLogLevel); ok {
		cfg.Log.Level = v
	}
	return nil
}
