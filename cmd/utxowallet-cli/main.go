// utxowallet-cli derives HD wallet material and sends Bitcoin payments
// through a hosted indexer, signing every transaction locally.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Klingon-tech/utxowallet/config"
	"github.com/Klingon-tech/utxowallet/internal/indexer"
	"github.com/Klingon-tech/utxowallet/internal/log"
	"github.com/Klingon-tech/utxowallet/internal/send"
	"github.com/Klingon-tech/utxowallet/internal/wallet"
	"github.com/Klingon-tech/utxowallet/pkg/units"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"golang.org/x/term"
)

const version = "0.1.0"

// app carries what every command needs.
type app struct {
	cfg    *config.Config
	params *chaincfg.Params
}

func main() {
	flags, err := config.ParseFlags(os.Args[1:])
	if err != nil {
		fatal("%v", err)
	}
	if flags.Version {
		fmt.Printf("utxowallet-cli version %s\n", version)
		return
	}
	if flags.Help || len(flags.Args) == 0 {
		usage()
		if flags.Help {
			return
		}
		os.Exit(1)
	}

	cfg, err := config.Load(flags, nil)
	if err != nil {
		fatal("%v", err)
	}
	if err := log.Init(cfg.Log.Level, cfg.Log.JSON, cfg.Log.File); err != nil {
		fatal("init logging: %v", err)
	}
	params, err := cfg.Params()
	if err != nil {
		fatal("%v", err)
	}
	a := &app{cfg: cfg, params: params}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = a.dispatch(ctx, flags.Args[0], flags.Args[1:])
	stop()
	if err != nil {
		if send.Retryable(err) {
			fmt.Fprintln(os.Stderr, "Hint: this failure is temporary, try again later.")
		}
		fatal("%v", err)
	}
}

func (a *app) dispatch(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "generate":
		return a.cmdGenerate(args)
	case "send":
		return a.cmdSend(ctx, args)
	case "balance":
		return a.cmdBalance(ctx, args)
	case "utxos":
		return a.cmdUTXOs(ctx, args)
	case "wallet":
		return a.cmdWallet(args)
	case "help":
		usage()
		return nil
	}
	usage()
	return fmt.Errorf("unknown command: %s", cmd)
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: utxowallet-cli [global flags] <command> [flags]

Global flags:
  --network <net>     mainnet, testnet (default), signet or regtest
  --datadir <path>    Data directory (default: ~/.utxowallet)
  --config <path>     Config file (default: <datadir>/utxowallet.conf)
  --log-level <lvl>   trace, debug, info, warn, error or off
  --log-json          Output logs as JSON

Commands:
  generate [--type legacy|segwit] [--index n] [--save name]
      Create a new seed phrase and print {mnemonic, xpub, address, privateKey}.
  send [--to addr] [--amount btc] [--fee btc] [--fee-rate sat/vB]
       [--from addr --key wif | --wallet name --index n] [--change addr]
      Select UTXOs, sign locally and broadcast. Unset values come from
      the environment (TO_ADDR, AMOUNT_BTC, FEE_BTC, FROM_ADDR, FROM_PRIV).
  balance <addr>
  utxos <addr> [--min btc]
  wallet create --name <name> [--type legacy|segwit]
  wallet import --name <name> --mnemonic "word1 word2 ..." [--type legacy|segwit]
  wallet list
  wallet address --wallet <name>
  wallet new-address --wallet <name>
  wallet export-key --wallet <name> [--index n] [--output path]

The indexer API key is read from TATUM_API_KEY.
`)
}

// openIndexer returns a client that the caller must Close.
func (a *app) openIndexer() (*indexer.Client, error) {
	if a.cfg.Indexer.APIKey == "" {
		return nil, fmt.Errorf("%w: API key is required (%s)", config.ErrConfiguration, config.EnvAPIKey)
	}
	return indexer.New(a.cfg.IndexerClientConfig(), a.params)
}

func (a *app) cmdBalance(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: utxowallet-cli balance <addr>")
	}
	client, err := a.openIndexer()
	if err != nil {
		return err
	}
	defer client.Close()

	bal, err := client.Balance(ctx, args[0])
	if err != nil {
		return err
	}
	return printJSON(balanceView(bal))
}

func (a *app) cmdUTXOs(ctx context.Context, args []string) error {
	fs := newFlagSet("utxos")
	minStr := fs.String("min", "", "Minimum total value in BTC (default: amount + fee)")
	addr, err := parseWithPositional(fs, args)
	if err != nil {
		return err
	}
	if addr == "" {
		return errors.New("usage: utxowallet-cli utxos <addr> [--min btc]")
	}
	minTotal := a.cfg.Send.Amount + a.cfg.Send.Fee
	if *minStr != "" {
		if minTotal, err = units.ParseBTC(*minStr); err != nil {
			return err
		}
	}

	client, err := a.openIndexer()
	if err != nil {
		return err
	}
	defer client.Close()

	utxos, err := client.SelectUTXOs(ctx, addr, minTotal)
	if err != nil {
		return err
	}
	return printJSON(utxoViews(utxos))
}

// ── Output helpers ──────────────────────────────────────────────────────

type balanceJSON struct {
	Confirmed   string `json:"confirmed"`
	Unconfirmed string `json:"unconfirmed"`
}

type utxoJSON struct {
	TxID  string `json:"txId"`
	Index uint32 `json:"index"`
	Value string `json:"value"`
}

func balanceView(b *wallet.Balance) *balanceJSON {
	if b == nil {
		return nil
	}
	return &balanceJSON{
		Confirmed:   units.FormatBTC(b.Confirmed()),
		Unconfirmed: units.FormatBTC(b.Unconfirmed()),
	}
}

func utxoViews(utxos []wallet.UTXO) []utxoJSON {
	out := make([]utxoJSON, len(utxos))
	for i, u := range utxos {
		out[i] = utxoJSON{
			TxID:  u.Outpoint.Hash.String(),
			Index: u.Outpoint.Index,
			Value: units.FormatBTC(u.Value),
		}
	}
	return out
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// parseFeeRate converts a sat/vB rate into satoshis per 1000 vbytes.
func parseFeeRate(satPerVByte float64) (btcutil.Amount, error) {
	if satPerVByte < 0 {
		return 0, errors.New("fee rate must not be negative")
	}
	return btcutil.Amount(satPerVByte*1000 + 0.5), nil
}

// addressIndex checks an --index flag value. Only non-hardened child
// indices (below 2^31) can be derived.
func addressIndex(v uint) (uint32, error) {
	if v >= 1<<31 {
		return 0, fmt.Errorf("usage: --index %d out of range, must be below 2147483648", v)
	}
	return uint32(v), nil
}

// ── Password helper ─────────────────────────────────────────────────────

func readPassword(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr) // newline after hidden input
	if err != nil {
		return nil, err
	}
	return password, nil
}

func readNewPassword() ([]byte, error) {
	password, err := readPassword("Enter password: ")
	if err != nil {
		return nil, fmt.Errorf("read password: %w", err)
	}
	confirm, err := readPassword("Confirm password: ")
	if err != nil {
		return nil, fmt.Errorf("read password: %w", err)
	}
	if string(password) != string(confirm) {
		return nil, errors.New("passwords do not match")
	}
	return password, nil
}

// ── Error helper ────────────────────────────────────────────────────────

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
