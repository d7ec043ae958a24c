// Package send runs the payment pipeline: query the indexer for UTXOs,
// build and sign a transaction locally, then broadcast it. Each step
// happens strictly after the previous one succeeds.
package send

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Klingon-tech/utxowallet/internal/indexer"
	"github.com/Klingon-tech/utxowallet/internal/log"
	"github.com/Klingon-tech/utxowallet/internal/reserve"
	"github.com/Klingon-tech/utxowallet/internal/wallet"
	"github.com/Klingon-tech/utxowallet/pkg/tx"
	"github.com/Klingon-tech/utxowallet/pkg/units"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/rs/zerolog"
)

// ErrInvalidParams is returned for unusable send parameters.
var ErrInvalidParams = errors.New("invalid send parameters")

// UtxoSource reports balances and spendable outputs of an address.
type UtxoSource interface {
	Balance(ctx context.Context, addr string) (*wallet.Balance, error)
	SelectUTXOs(ctx context.Context, addr string, minTotal btcutil.Amount) ([]wallet.UTXO, error)
}

// Broadcaster relays signed transactions.
type Broadcaster interface {
	Broadcast(ctx context.Context, signed *tx.SignedTx) (chainhash.Hash, error)
}

// Params describes one payment.
type Params struct {
	From   string
	To     string
	Change string // Defaults to From.
	Amount btcutil.Amount
	Fee    btcutil.Amount // Flat fee; with FeeRate set, the first guess when asking for UTXOs.
	// FeeRate, when positive, replaces the flat fee with one estimated
	// from the transaction size (satoshis per 1000 vbytes).
	FeeRate btcutil.Amount
	// Keys signs the inputs. It is zeroed when Run returns.
	Keys *tx.KeyRing
}

// Result reports what a send did.
type Result struct {
	Balance  *wallet.Balance // Nil when the balance query failed.
	UTXOs    []wallet.UTXO   // As returned by the indexer.
	Selected []wallet.UTXO   // Spent by the transaction.
	Request  *tx.Request
	Signed   *tx.SignedTx
	TxHash   chainhash.Hash
}

// Flow wires the pipeline to its collaborators.
type Flow struct {
	params      *chaincfg.Params
	source      UtxoSource
	broadcaster Broadcaster
	reserve     *reserve.Store
	reserveTTL  time.Duration
}

// NewFlow creates a send flow for the given network.
func NewFlow(params *chaincfg.Params, source UtxoSource, broadcaster Broadcaster) *Flow {
	return &Flow{params: params, source: source, broadcaster: broadcaster}
}

// WithReserve makes the flow hold selected UTXOs in store for ttl, so a
// later send does not pick them again before the indexer sees the spend.
func (f *Flow) WithReserve(store *reserve.Store, ttl time.Duration) *Flow {
	f.reserve = store
	f.reserveTTL = ttl
	return f
}

// Run executes one payment.
func (f *Flow) Run(ctx context.Context, p Params) (*Result, error) {
	if p.Keys != nil {
		defer p.Keys.Zero()
	}
	defer log.Benchmark(log.Send, "send")()

	to, change, err := f.checkParams(&p)
	if err != nil {
		return nil, err
	}
	logger := log.Send.With().Str("from", p.From).Str("to", p.To).Logger()
	res := &Result{}

	// The balance is informational; a failure here does not stop the send.
	bal, err := f.source.Balance(ctx, p.From)
	if err != nil {
		logger.Warn().Err(err).Msg("Balance query failed")
	} else {
		res.Balance = bal
		logger.Info().
			Str("confirmed", units.FormatBTC(bal.Confirmed())).
			Str("pending", units.FormatBTC(bal.Unconfirmed())).
			Msg("Balance")
	}

	selection, err := f.selectCoins(ctx, p, to, change, res, logger)
	if err != nil {
		return res, err
	}
	res.Selected = selection.Inputs
	outpoints := outpointsOf(selection.Inputs)

	if f.reserve != nil {
		if err := f.reserve.Reserve(outpoints, f.reserveTTL); err != nil {
			return res, err
		}
	}
	broadcastAttempted := false
	defer func() {
		if f.reserve == nil || broadcastAttempted {
			return
		}
		if err := f.reserve.Release(outpoints); err != nil {
			logger.Warn().Err(err).Msg("Releasing reservation failed")
		}
	}()

	inputs := toInputs(selection.Inputs)
	var req *tx.Request
	if p.FeeRate > 0 {
		req, err = tx.BuildWithFeeRate(inputs, to, p.Amount, p.FeeRate, change)
	} else {
		req, err = tx.Build(inputs, to, p.Amount, p.Fee, change)
	}
	if err != nil {
		return res, err
	}
	res.Request = req
	if req.FoldedDust > 0 {
		logger.Info().Str("dust", units.FormatBTC(req.FoldedDust)).Msg("Change below dust threshold added to fee")
	}

	signed, err := tx.Sign(req, p.Keys)
	if err != nil {
		return res, err
	}
	res.Signed = signed

	broadcastAttempted = true
	hash, err := f.broadcaster.Broadcast(ctx, signed)
	if err != nil {
		notRelayed := errors.Is(err, indexer.ErrBroadcastRejected) || errors.Is(err, indexer.ErrNotSent)
		if notRelayed && f.reserve != nil {
			// Nothing was relayed, so the outputs are free again.
			if rerr := f.reserve.Release(outpoints); rerr != nil {
				logger.Warn().Err(rerr).Msg("Releasing reservation failed")
			}
		} else if f.reserve != nil {
			logger.Warn().Str("txid", signed.TxID().String()).Msg("Broadcast outcome unknown; keeping UTXOs reserved")
		}
		return res, err
	}
	res.TxHash = hash

	if f.reserve != nil {
		if err := f.reserve.Commit(outpoints, hash); err != nil {
			logger.Warn().Err(err).Msg("Recording spend failed")
		}
	}
	logger.Info().
		Str("txid", hash.String()).
		Str("amount", units.FormatBTC(p.Amount)).
		Str("fee", units.FormatBTC(req.Fee)).
		Msg("Transaction sent")
	return res, nil
}

// maxSelectRounds bounds how often a fee-rate send grows its target after
// the estimated fee outgrew the selection.
const maxSelectRounds = 4

// selectCoins asks the source for UTXOs worth the amount plus the fee,
// drops those held by other sends and picks the inputs. With a fee rate the
// flat fee is only the first guess: when the fee estimated for the picked
// inputs is not covered, the target grows to match and selection repeats.
func (f *Flow) selectCoins(ctx context.Context, p Params, to, change btcutil.Address, res *Result, logger zerolog.Logger) (*wallet.CoinSelection, error) {
	need := p.Amount + p.Fee
	for round := 0; ; round++ {
		logger.Info().Str("need", units.FormatBTC(need)).Msg("Selecting UTXOs")
		utxos, err := f.source.SelectUTXOs(ctx, p.From, need)
		if err != nil {
			return nil, err
		}
		if len(utxos) == 0 {
			return nil, fmt.Errorf("%w for %s (waiting for confirmations?)", wallet.ErrNoUTXOs, p.From)
		}
		res.UTXOs = utxos

		spendable := utxos
		if f.reserve != nil {
			if spendable, err = f.reserve.Available(utxos); err != nil {
				return nil, err
			}
			if len(spendable) == 0 {
				return nil, fmt.Errorf("%w: all %d UTXOs of %s are held by pending sends%s",
					wallet.ErrInsufficientFunds, len(utxos), p.From, f.pendingSpends(utxos))
			}
		}

		selection, err := wallet.SelectCoins(spendable, need)
		if err != nil || p.FeeRate <= 0 || round == maxSelectRounds {
			return selection, err
		}
		fee, err := tx.EstimateFee(toInputs(selection.Inputs), to, p.Amount, p.FeeRate, change)
		if err != nil {
			return nil, err
		}
		target := p.Amount + fee
		if selection.Total >= target || target <= need {
			return selection, nil
		}
		logger.Debug().Str("fee", units.FormatBTC(fee)).Int("inputs", len(selection.Inputs)).Msg("Estimated fee exceeds selection; reselecting")
		need = target
	}
}

// pendingSpends names the transactions recorded against utxos, for error
// messages.
func (f *Flow) pendingSpends(utxos []wallet.UTXO) string {
	seen := make(map[string]bool)
	var txids []string
	for _, u := range utxos {
		txid, ok, err := f.reserve.SpentBy(u.Outpoint)
		if err != nil || !ok || seen[txid] {
			continue
		}
		seen[txid] = true
		txids = append(txids, txid)
	}
	if len(txids) == 0 {
		return ""
	}
	return " (" + strings.Join(txids, ", ") + ")"
}

// checkParams validates p, fills in the change address, and decodes the
// destination and change addresses.
func (f *Flow) checkParams(p *Params) (btcutil.Address, btcutil.Address, error) {
	if p.Keys == nil {
		return nil, nil, fmt.Errorf("%w: no signing keys", ErrInvalidParams)
	}
	if p.Amount <= 0 {
		return nil, nil, fmt.Errorf("%w: amount must be positive", ErrInvalidParams)
	}
	if p.Fee < 0 || p.FeeRate < 0 {
		return nil, nil, fmt.Errorf("%w: fee must not be negative", ErrInvalidParams)
	}
	if p.Amount > btcutil.MaxSatoshi || p.Fee > btcutil.MaxSatoshi-p.Amount || p.FeeRate > btcutil.MaxSatoshi {
		return nil, nil, fmt.Errorf("%w: amount plus fee exceeds max supply", ErrInvalidParams)
	}
	if _, err := f.decode("from", p.From); err != nil {
		return nil, nil, err
	}
	to, err := f.decode("to", p.To)
	if err != nil {
		return nil, nil, err
	}
	if p.Change == "" {
		p.Change = p.From
	}
	change, err := f.decode("change", p.Change)
	if err != nil {
		return nil, nil, err
	}
	return to, change, nil
}

func (f *Flow) decode(field, s string) (btcutil.Address, error) {
	if s == "" {
		return nil, fmt.Errorf("%w: %s address is required", ErrInvalidParams, field)
	}
	addr, err := btcutil.DecodeAddress(s, f.params)
	if err != nil {
		return nil, fmt.Errorf("%w: %s address %q: %v", ErrInvalidParams, field, s, err)
	}
	if !addr.IsForNet(f.params) {
		return nil, fmt.Errorf("%w: %s address %q is not for %s", ErrInvalidParams, field, s, f.params.Name)
	}
	return addr, nil
}

func outpointsOf(utxos []wallet.UTXO) []wire.OutPoint {
	ops := make([]wire.OutPoint, len(utxos))
	for i, u := range utxos {
		ops[i] = u.Outpoint
	}
	return ops
}

func toInputs(utxos []wallet.UTXO) []tx.Input {
	inputs := make([]tx.Input, len(utxos))
	for i, u := range utxos {
		inputs[i] = tx.Input{Outpoint: u.Outpoint, Value: u.Value, PkScript: u.PkScript}
	}
	return inputs
}

// Retryable reports whether a failed send may succeed if tried again
// later without operator action: funds still confirming, outputs held by
// another send, or a transient indexer failure.
func Retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, wallet.ErrInsufficientFunds),
		errors.Is(err, tx.ErrInsufficientInputValue),
		errors.Is(err, reserve.ErrReserved):
		return true
	}
	return indexer.IsTransient(err)
}
