package tx

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/wallet/txrules"
	"github.com/btcsuite/btcwallet/wallet/txsizes"
)

// inputCounts tallies the spendable script classes of a set of inputs.
func inputCounts(inputs []Input) (p2pkh, p2wpkh int, err error) {
	for i, in := range inputs {
		switch txscript.GetScriptClass(in.PkScript) {
		case txscript.PubKeyHashTy:
			p2pkh++
		case txscript.WitnessV0PubKeyHashTy:
			p2wpkh++
		default:
			return 0, 0, fmt.Errorf("input %d: %w", i, ErrUnsupportedScript)
		}
	}
	return p2pkh, p2wpkh, nil
}

// EstimateVirtualSize returns the worst-case virtual size of the request
// once signed.
func EstimateVirtualSize(req *Request) (int, error) {
	p2pkh, p2wpkh, err := inputCounts(req.Inputs)
	if err != nil {
		return 0, err
	}
	txOuts := make([]*wire.TxOut, 0, len(req.Outputs))
	for _, out := range req.Outputs {
		txOuts = append(txOuts, wire.NewTxOut(int64(out.Value), out.PkScript))
	}
	return txsizes.EstimateVirtualSize(p2pkh, 0, p2wpkh, 0, txOuts, 0), nil
}

// FeeForRate returns the fee the request would pay at satPerKvB.
func FeeForRate(req *Request, satPerKvB btcutil.Amount) (btcutil.Amount, error) {
	vsize, err := EstimateVirtualSize(req)
	if err != nil {
		return 0, err
	}
	return txrules.FeeForSerializeSize(satPerKvB, vsize), nil
}

// EstimateFee returns the fee a transaction spending inputs to pay amount
// to destination would need at satPerKvB, assuming it also pays change.
// Callers use it to size a coin selection before building.
func EstimateFee(inputs []Input, destination btcutil.Address, amount, satPerKvB btcutil.Amount, changeAddress btcutil.Address) (btcutil.Amount, error) {
	withChange, _, err := rateFees(inputs, destination, amount, satPerKvB, changeAddress)
	return withChange, err
}

// BuildWithFeeRate is Build with the fee computed from the estimated size
// at satPerKvB instead of supplied as a flat amount. When the inputs cannot
// cover a change output the fee is re-estimated without one.
func BuildWithFeeRate(inputs []Input, destination btcutil.Address, amount, satPerKvB btcutil.Amount, changeAddress btcutil.Address) (*Request, error) {
	withChange, noChange, err := rateFees(inputs, destination, amount, satPerKvB, changeAddress)
	if err != nil {
		return nil, err
	}
	req, err := Build(inputs, destination, amount, withChange, changeAddress)
	if !errors.Is(err, ErrInsufficientInputValue) {
		return req, err
	}
	return Build(inputs, destination, amount, noChange, changeAddress)
}

// rateFees returns the fee at satPerKvB with and without a change output.
func rateFees(inputs []Input, destination btcutil.Address, amount, satPerKvB btcutil.Amount, changeAddress btcutil.Address) (withChange, noChange btcutil.Amount, err error) {
	if satPerKvB < 0 {
		return 0, 0, fmt.Errorf("%w: rate %v", ErrNegativeFee, satPerKvB)
	}
	if satPerKvB > btcutil.MaxSatoshi {
		return 0, 0, fmt.Errorf("%w: rate %v", ErrValueOutOfRange, satPerKvB)
	}
	if err := checkInputs(inputs); err != nil {
		return 0, 0, err
	}
	if destination == nil {
		return 0, 0, ErrNoDestination
	}
	if changeAddress == nil {
		return 0, 0, ErrNoChangeAddress
	}
	p2pkh, p2wpkh, err := inputCounts(inputs)
	if err != nil {
		return 0, 0, err
	}
	destScript, err := txscript.PayToAddrScript(destination)
	if err != nil {
		return 0, 0, fmt.Errorf("destination script: %w", err)
	}
	changeScript, err := txscript.PayToAddrScript(changeAddress)
	if err != nil {
		return 0, 0, fmt.Errorf("change script: %w", err)
	}
	txOuts := []*wire.TxOut{wire.NewTxOut(int64(amount), destScript)}

	withSize := txsizes.EstimateVirtualSize(p2pkh, 0, p2wpkh, 0, txOuts, len(changeScript))
	noSize := txsizes.EstimateVirtualSize(p2pkh, 0, p2wpkh, 0, txOuts, 0)
	return txrules.FeeForSerializeSize(satPerKvB, withSize), txrules.FeeForSerializeSize(satPerKvB, noSize), nil
}
