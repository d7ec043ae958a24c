package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Klingon-tech/utxowallet/config"
	"github.com/Klingon-tech/utxowallet/internal/log"
	"github.com/Klingon-tech/utxowallet/internal/reserve"
	"github.com/Klingon-tech/utxowallet/internal/send"
	"github.com/Klingon-tech/utxowallet/internal/storage"
	"github.com/Klingon-tech/utxowallet/internal/wallet"
	"github.com/Klingon-tech/utxowallet/pkg/tx"
	"github.com/Klingon-tech/utxowallet/pkg/units"
)

type sendJSON struct {
	Balance    *balanceJSON `json:"balance"`
	UTXOs      []utxoJSON   `json:"utxos"`
	Fee        string       `json:"fee"`
	FoldedDust string       `json:"foldedDust,omitempty"`
	TxHash     string       `json:"txHash"`
}

func (a *app) cmdSend(ctx context.Context, args []string) error {
	fs := newFlagSet("send")
	to := fs.String("to", "", "Recipient address")
	amountStr := fs.String("amount", "", "Amount in BTC")
	feeStr := fs.String("fee", "", "Flat fee in BTC")
	feeRate := fs.Float64("fee-rate", 0, "Fee rate in sat/vB (replaces --fee)")
	from := fs.String("from", "", "Sender address")
	key := fs.String("key", "", "Sender private key (WIF); prefer FROM_PRIV")
	change := fs.String("change", "", "Change address (default: sender, or the next internal address with --wallet)")
	walletName := fs.String("wallet", "", "Sign with a keystore wallet instead of --key")
	index := fs.Uint("index", 0, "External address index of the wallet key")
	if err := fs.Parse(args); err != nil {
		return err
	}

	sc := &a.cfg.Send
	if *to != "" {
		sc.To = *to
	}
	if *from != "" {
		sc.From = *from
	}
	if *key != "" {
		sc.FromKey = *key
	}
	if *change != "" {
		sc.Change = *change
	}
	var err error
	if *amountStr != "" {
		if sc.Amount, err = units.ParseBTC(*amountStr); err != nil {
			return fmt.Errorf("%w: amount: %v", config.ErrConfiguration, err)
		}
	}
	if *feeStr != "" {
		if sc.Fee, err = units.ParseBTC(*feeStr); err != nil {
			return fmt.Errorf("%w: fee: %v", config.ErrConfiguration, err)
		}
	}
	rate, err := parseFeeRate(*feeRate)
	if err != nil {
		return fmt.Errorf("%w: %v", config.ErrConfiguration, err)
	}
	var ks *wallet.Keystore
	if *walletName != "" {
		idx, err := addressIndex(*index)
		if err != nil {
			return err
		}
		if err := a.loadWalletKey(*walletName, idx); err != nil {
			return err
		}
		// Wallet sends pay change to a fresh address on the internal chain.
		if sc.Change == "" {
			if ks, _, err = a.openWallet(*walletName); err != nil {
				return err
			}
			acct, err := ks.NextChangeAddress(*walletName, a.params)
			if err != nil {
				return err
			}
			sc.Change = acct.Address
		}
	}
	defer func() { sc.FromKey = "" }()

	if err := config.ValidateSend(a.cfg); err != nil {
		return err
	}

	ring, err := tx.NewKeyRing(a.params)
	if err != nil {
		return err
	}
	defer ring.Zero()
	if err := ring.AddWIF(sc.FromKey); err != nil {
		return err
	}

	client, err := a.openIndexer()
	if err != nil {
		return err
	}
	defer client.Close()

	db, err := storage.NewBadger(a.cfg.ReserveDir())
	if err != nil {
		return err
	}
	defer db.Close()
	store := reserve.New(db)
	if _, err := store.Prune(time.Now()); err != nil {
		log.Reserve.Warn().Err(err).Msg("Pruning reservations failed")
	}

	flow := send.NewFlow(a.params, client, client).WithReserve(store, sc.ReserveTTL)
	res, err := flow.Run(ctx, send.Params{
		From:    sc.From,
		To:      sc.To,
		Change:  sc.Change,
		Amount:  sc.Amount,
		Fee:     sc.Fee,
		FeeRate: rate,
		Keys:    ring,
	})
	if err != nil {
		return err
	}
	if ks != nil && res.Request.ChangeIndex() >= 0 {
		if err := ks.IncrementChangeIndex(*walletName); err != nil {
			log.Wallet.Warn().Err(err).Str("wallet", *walletName).Msg("Advancing change index failed")
		}
	}

	out := sendJSON{
		Balance: balanceView(res.Balance),
		UTXOs:   utxoViews(res.Selected),
		Fee:     units.FormatBTC(res.Request.Fee),
		TxHash:  res.TxHash.String(),
	}
	if res.Request.FoldedDust > 0 {
		out.FoldedDust = units.FormatBTC(res.Request.FoldedDust)
	}
	return printJSON(out)
}

// ── Flag helpers ────────────────────────────────────────────────────────

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

// parseWithPositional parses flags that may come before or after a single
// positional argument, and returns that argument.
func parseWithPositional(fs *flag.FlagSet, args []string) (string, error) {
	var positional string
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		positional, args = args[0], args[1:]
	}
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	if positional == "" && fs.NArg() > 0 {
		positional = fs.Arg(0)
	}
	return positional, nil
}
