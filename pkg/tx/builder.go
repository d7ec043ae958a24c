package tx

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/wallet/txrules"
)

// RelayFeePerKb is the relay fee used for dust decisions.
var RelayFeePerKb = txrules.DefaultRelayFeePerKb

// Build creates a request paying amount to destination from the given
// inputs, with fee going to the miner and the rest returned to
// changeAddress. Inputs keep the caller's order. A change value that would
// be dust is added to the fee instead of creating an unrelayable output.
func Build(inputs []Input, destination btcutil.Address, amount, fee btcutil.Amount, changeAddress btcutil.Address) (*Request, error) {
	if err := checkInputs(inputs); err != nil {
		return nil, err
	}
	if amount <= 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAmount, amount)
	}
	if fee < 0 {
		return nil, fmt.Errorf("%w: %v", ErrNegativeFee, fee)
	}
	if err := checkRange(amount, fee); err != nil {
		return nil, err
	}
	if destination == nil {
		return nil, ErrNoDestination
	}
	if changeAddress == nil {
		return nil, ErrNoChangeAddress
	}

	destScript, err := txscript.PayToAddrScript(destination)
	if err != nil {
		return nil, fmt.Errorf("destination script: %w", err)
	}
	if isDust(amount, destScript) {
		return nil, fmt.Errorf("%w: %v to %s", ErrDustOutput, amount, destination)
	}

	var total btcutil.Amount
	for _, in := range inputs {
		total += in.Value
	}
	need := amount + fee
	if total < need {
		return nil, fmt.Errorf("%w: have %v, need %v", ErrInsufficientInputValue, total, need)
	}

	req := &Request{
		Inputs:        append([]Input(nil), inputs...),
		Outputs:       []Output{{Address: destination, Value: amount, PkScript: destScript}},
		Amount:        amount,
		Fee:           fee,
		ChangeAddress: changeAddress,
	}

	change := total - need
	if change > 0 {
		changeScript, err := txscript.PayToAddrScript(changeAddress)
		if err != nil {
			return nil, fmt.Errorf("change script: %w", err)
		}
		if isDust(change, changeScript) {
			req.Fee += change
			req.FoldedDust = change
		} else {
			req.Outputs = append(req.Outputs, Output{Address: changeAddress, Value: change, PkScript: changeScript})
		}
	}
	return req, nil
}

// checkRange rejects amounts and fees beyond the coin supply, so their sum
// cannot overflow.
func checkRange(amount, fee btcutil.Amount) error {
	switch {
	case amount > btcutil.MaxSatoshi:
		return fmt.Errorf("%w: amount %v", ErrValueOutOfRange, amount)
	case fee > btcutil.MaxSatoshi:
		return fmt.Errorf("%w: fee %v", ErrValueOutOfRange, fee)
	case amount+fee > btcutil.MaxSatoshi:
		return fmt.Errorf("%w: amount %v plus fee %v", ErrValueOutOfRange, amount, fee)
	}
	return nil
}

// isDust reports whether an output of value paying to script would be
// rejected by relay policy at RelayFeePerKb.
func isDust(value btcutil.Amount, script []byte) bool {
	return txrules.IsDustOutput(wire.NewTxOut(int64(value), script), RelayFeePerKb)
}

func checkInputs(inputs []Input) error {
	if len(inputs) == 0 {
		return ErrNoInputs
	}
	seen := make(map[wire.OutPoint]struct{}, len(inputs))
	for i, in := range inputs {
		if _, dup := seen[in.Outpoint]; dup {
			return fmt.Errorf("input %d (%v): %w", i, in.Outpoint, ErrDuplicateInput)
		}
		seen[in.Outpoint] = struct{}{}
		if in.Value <= 0 || in.Value > btcutil.MaxSatoshi {
			return fmt.Errorf("input %d: %w: %v", i, ErrInvalidInputValue, in.Value)
		}
		if len(in.PkScript) == 0 {
			return fmt.Errorf("input %d: %w", i, ErrUnsupportedScript)
		}
	}
	return nil
}
