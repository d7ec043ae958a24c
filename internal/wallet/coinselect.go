package wallet

import (
	"errors"
	"fmt"
	"sort"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
)

// Coin selection errors.
var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrNoUTXOs           = fmt.Errorf("%w: no UTXOs available", ErrInsufficientFunds)
)

// UTXO is a spendable output reported by the indexer.
type UTXO struct {
	Outpoint wire.OutPoint
	Value    btcutil.Amount
	Address  string
	PkScript []byte
}

// String renders the UTXO as txid:vout (value).
func (u UTXO) String() string {
	return fmt.Sprintf("%s (%s)", u.Outpoint, u.Value)
}

// CoinSelection holds the result of coin selection.
type CoinSelection struct {
	Inputs []UTXO         // Selected UTXOs to spend.
	Total  btcutil.Amount // Sum of selected input values.
	Change btcutil.Amount // Change = Total - target.
}

// SelectCoins chooses UTXOs to fund a spend of the given target (amount + fee).
// It tries two strategies:
//  1. Single UTXO: finds the smallest single UTXO that covers the target (minimizes inputs).
//  2. Largest-first accumulation: greedily adds the largest UTXOs until the target is met.
//
// Returns the strategy that produces the least change. Ties between equal
// values are broken by outpoint so the result does not depend on input order.
func SelectCoins(utxos []UTXO, target btcutil.Amount) (*CoinSelection, error) {
	if len(utxos) == 0 {
		return nil, ErrNoUTXOs
	}
	if target <= 0 {
		return nil, fmt.Errorf("target must be positive")
	}

	candidates := make([]UTXO, 0, len(utxos))
	for _, u := range utxos {
		if u.Value > 0 {
			candidates = append(candidates, u)
		}
	}
	if len(candidates) == 0 {
		return nil, ErrNoUTXOs
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Value != candidates[j].Value {
			return candidates[i].Value < candidates[j].Value
		}
		return candidates[i].Outpoint.String() < candidates[j].Outpoint.String()
	})

	// Strategy 1: smallest single UTXO that covers the target.
	var single *CoinSelection
	for _, u := range candidates {
		if u.Value >= target {
			single = &CoinSelection{
				Inputs: []UTXO{u},
				Total:  u.Value,
				Change: u.Value - target,
			}
			break
		}
	}

	// Strategy 2: largest-first accumulation.
	var accum *CoinSelection
	var selected []UTXO
	var total btcutil.Amount
	for i := len(candidates) - 1; i >= 0; i-- {
		selected = append(selected, candidates[i])
		total += candidates[i].Value
		if total >= target {
			accum = &CoinSelection{
				Inputs: selected,
				Total:  total,
				Change: total - target,
			}
			break
		}
	}

	switch {
	case single != nil && accum != nil:
		if single.Change <= accum.Change {
			return single, nil
		}
		return accum, nil
	case single != nil:
		return single, nil
	case accum != nil:
		return accum, nil
	default:
		return nil, fmt.Errorf("%w: have %s, need %s", ErrInsufficientFunds, TotalValue(candidates), target)
	}
}

// TotalValue sums the values of a UTXO set.
func TotalValue(utxos []UTXO) btcutil.Amount {
	var total btcutil.Amount
	for _, u := range utxos {
		total += u.Value
	}
	return total
}
