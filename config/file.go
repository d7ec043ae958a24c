package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Klingon-tech/utxowallet/pkg/units"
)

// LoadFile loads configuration values from a .conf file.
// Format: key = value (one per line, # for comments). A missing file
// yields no values.
func LoadFile(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]string), nil
		}
		return nil, err
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("line %d: invalid format (expected key = value)", lineNum)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Remove quotes if present
		if len(value) >= 2 {
			if (value[0] == '"' && value[len(value)-1] == '"') ||
				(value[0] == '\'' && value[len(value)-1] == '\'') {
				value = value[1 : len(value)-1]
			}
		}

		values[key] = value
	}

	return values, scanner.Err()
}

// ApplyFileConfig applies file configuration to a Config struct.
func ApplyFileConfig(cfg *Config, values map[string]string) error {
	for key, value := range values {
		if err := setConfigValue(cfg, key, value); err != nil {
			return fmt.Errorf("%w: config key %q: %v", ErrConfiguration, key, err)
		}
	}
	return nil
}

// setConfigValue sets a config value by key. Unknown keys are ignored.
func setConfigValue(cfg *Config, key, value string) error {
	switch key {
	case "network":
		n, err := ParseNetwork(value)
		if err != nil {
			return err
		}
		cfg.Network = n
	case "datadir":
		cfg.DataDir = value

	// Indexer
	case "indexer.url":
		cfg.Indexer.URL = value
	case "indexer.apikey":
		cfg.Indexer.APIKey = value
	case "indexer.chain":
		cfg.Indexer.ChainPath = value
	case "indexer.selector":
		cfg.Indexer.Selector = value
	case "indexer.timeout":
		d, err := parseDuration(value)
		if err != nil {
			return err
		}
		cfg.Indexer.Timeout = d
	case "indexer.retries":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.Indexer.Retries = n
	case "indexer.ratelimit":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.Indexer.RateLimit = n

	// Send
	case "send.from":
		cfg.Send.From = value
	case "send.fromkey":
		cfg.Send.FromKey = value
	case "send.to":
		cfg.Send.To = value
	case "send.amount":
		a, err := units.ParseBTC(value)
		if err != nil {
			return err
		}
		cfg.Send.Amount = a
	case "send.fee":
		a, err := units.ParseBTC(value)
		if err != nil {
			return err
		}
		cfg.Send.Fee = a
	case "send.change":
		cfg.Send.Change = value
	case "send.reservettl":
		d, err := parseDuration(value)
		if err != nil {
			return err
		}
		cfg.Send.ReserveTTL = d

	// Wallet
	case "wallet.addresstype":
		cfg.Wallet.AddressType = strings.ToLower(value)

	// Logging
	case "log.level":
		cfg.Log.Level = value
	case "log.file":
		cfg.Log.File = value
	case "log.json":
		cfg.Log.JSON = parseBool(value)
	}
	return nil
}

// parseBool parses a boolean value.
func parseBool(s string) bool {
	s = strings.ToLower(s)
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

// parseDuration accepts Go durations ("30s") or a bare number of seconds.
func parseDuration(s string) (time.Duration, error) {
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(s)
}

// WriteDefaultConfig writes a default configuration file. Secrets are
// left commented out; they belong in the environment.
func WriteDefaultConfig(path string, network NetworkType) error {
	content := `# UTXO Wallet Configuration
#
# Precedence: defaults < this file < environment < command-line flags.
# Keep secrets (API key, private key) in the environment:
#   TATUM_API_KEY, FROM_PRIV

# Network: mainnet, testnet, signet or regtest
network = ` + string(network) + `

# Data directory (default: ~/.utxowallet)
# datadir = ~/.utxowallet

# ============================================================================
# Indexer
# ============================================================================

indexer.url = ` + Default(network).Indexer.URL + `
indexer.chain = bitcoin
# Chain selector of the data API (default derived from network)
# indexer.selector = ` + network.ChainSelector() + `
indexer.timeout = 30s
indexer.retries = 3
# Requests per second, 0 = unlimited
indexer.ratelimit = 3

# ============================================================================
# Send
# ============================================================================

# send.from = <sender address>
# send.to = <recipient address>
# send.amount = 0.00001
# send.fee = 0.00002
# Change address (default: sender address)
# send.change =
# How long selected UTXOs stay reserved
send.reservettl = 10m

# ============================================================================
# Wallet
# ============================================================================

# legacy (BIP-44, P2PKH) or segwit (BIP-84, P2WPKH)
wallet.addresstype = legacy

# ============================================================================
# Logging
# ============================================================================

log.level = info
# log.file =
log.json = false
`
	return os.WriteFile(path, []byte(content), 0600)
}
