package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Klingon-tech/utxowallet/internal/log"
	"github.com/Klingon-tech/utxowallet/internal/wallet"
	"github.com/Klingon-tech/utxowallet/pkg/crypto"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
)

// ErrConfiguration is returned for missing or malformed configuration.
var ErrConfiguration = errors.New("configuration error")

// problems collects validation failures so they can be reported at once.
type problems []string

func (p *problems) addf(format string, args ...any) {
	*p = append(*p, fmt.Sprintf(format, args...))
}

func (p problems) err() error {
	if len(p) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrConfiguration, strings.Join(p, "; "))
}

// Validate checks the runtime config for obvious operator mistakes.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: config is nil", ErrConfiguration)
	}
	var p problems
	if _, err := cfg.Network.Params(); err != nil {
		p.addf("network must be one of %s, %s, %s, %s", Mainnet, Testnet, Signet, Regtest)
	}
	if cfg.DataDir == "" {
		p.addf("datadir is empty")
	}
	if cfg.Indexer.URL == "" {
		p.addf("indexer.url is empty")
	} else if !strings.HasPrefix(cfg.Indexer.URL, "http://") && !strings.HasPrefix(cfg.Indexer.URL, "https://") {
		p.addf("indexer.url must be an http(s) URL")
	}
	if cfg.Indexer.ChainPath == "" {
		p.addf("indexer.chain is empty")
	}
	if cfg.Indexer.Timeout <= 0 {
		p.addf("indexer.timeout must be positive")
	}
	if cfg.Indexer.Retries < 0 {
		p.addf("indexer.retries must not be negative")
	}
	if cfg.Indexer.RateLimit < 0 {
		p.addf("indexer.ratelimit must not be negative")
	}
	if cfg.Send.ReserveTTL < time.Second {
		p.addf("send.reservettl must be at least 1s")
	}
	if _, err := wallet.ParseAddressType(cfg.Wallet.AddressType); err != nil {
		p.addf("wallet.addresstype must be legacy or segwit")
	}
	if !log.ValidLevel(cfg.Log.Level) {
		p.addf("log.level %q is not a valid level", cfg.Log.Level)
	}
	return p.err()
}

// ValidateSend checks every value a send needs, before any network call.
// All problems are reported together.
func ValidateSend(cfg *Config) error {
	if err := Validate(cfg); err != nil {
		return err
	}
	params, _ := cfg.Params()

	var p problems
	if cfg.Indexer.APIKey == "" {
		p.addf("API key is required (%s)", EnvAPIKey)
	}
	if cfg.ChainSelector() == "" {
		p.addf("indexer.selector is required on %s", cfg.Network)
	}
	from := checkAddress(&p, "sender", EnvFromAddr, cfg.Send.From, params)
	to := checkAddress(&p, "recipient", EnvToAddr, cfg.Send.To, params)
	if cfg.Send.Change != "" {
		checkAddress(&p, "change", EnvChangeAddr, cfg.Send.Change, params)
	}
	if from != nil && to != nil && from.EncodeAddress() == to.EncodeAddress() {
		p.addf("recipient must differ from sender")
	}

	if cfg.Send.FromKey == "" {
		p.addf("sender private key is required (%s)", EnvFromPriv)
	} else if key, err := crypto.PrivateKeyFromWIF(cfg.Send.FromKey, params); err != nil {
		p.addf("sender private key: %v", err)
	} else {
		if from != nil && !controls(key, from, params) {
			p.addf("sender private key does not control %s", cfg.Send.From)
		}
		key.Zero()
	}

	if cfg.Send.Amount <= 0 {
		p.addf("amount must be positive")
	}
	if cfg.Send.Fee < 0 {
		p.addf("fee must not be negative")
	}
	if cfg.Send.Amount+cfg.Send.Fee > btcutil.MaxSatoshi {
		p.addf("amount plus fee exceeds max supply")
	}
	return p.err()
}

func checkAddress(p *problems, field, env, s string, params *chaincfg.Params) btcutil.Address {
	if s == "" {
		p.addf("%s address is required (%s)", field, env)
		return nil
	}
	addr, err := btcutil.DecodeAddress(s, params)
	if err != nil {
		p.addf("%s address %q: %v", field, s, err)
		return nil
	}
	if !addr.IsForNet(params) {
		p.addf("%s address %q is not for %s", field, s, params.Name)
		return nil
	}
	return addr
}

func controls(key *crypto.PrivateKey, addr btcutil.Address, params *chaincfg.Params) bool {
	addrs, err := key.Addresses(params)
	if err != nil {
		return false
	}
	for _, a := range addrs {
		if a.EncodeAddress() == addr.EncodeAddress() {
			return true
		}
	}
	return false
}
