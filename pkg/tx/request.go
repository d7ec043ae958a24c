// Package tx builds and signs Bitcoin transactions spending P2PKH and
// P2WPKH outputs.
package tx

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// Input is a spendable output fed to the builder.
type Input struct {
	Outpoint wire.OutPoint
	Value    btcutil.Amount
	PkScript []byte
}

// Output is a payment created by a transaction.
type Output struct {
	Address  btcutil.Address
	Value    btcutil.Amount
	PkScript []byte
}

// Request is an unsigned transaction together with the data needed to
// sign it. Outputs are the destination followed by the optional change.
type Request struct {
	Inputs        []Input
	Outputs       []Output
	Amount        btcutil.Amount
	Fee           btcutil.Amount // Effective fee, including FoldedDust.
	FoldedDust    btcutil.Amount // Change too small to relay, given to the miner.
	ChangeAddress btcutil.Address
}

// TotalIn returns the summed value of all inputs.
func (r *Request) TotalIn() btcutil.Amount {
	var total btcutil.Amount
	for _, in := range r.Inputs {
		total += in.Value
	}
	return total
}

// TotalOut returns the summed value of all outputs.
func (r *Request) TotalOut() btcutil.Amount {
	var total btcutil.Amount
	for _, out := range r.Outputs {
		total += out.Value
	}
	return total
}

// ChangeIndex returns the output index of the change output, or -1 when
// the request pays no change.
func (r *Request) ChangeIndex() int {
	if len(r.Outputs) > 1 {
		return len(r.Outputs) - 1
	}
	return -1
}

// Change returns the change value, zero when there is no change output.
func (r *Request) Change() btcutil.Amount {
	if i := r.ChangeIndex(); i >= 0 {
		return r.Outputs[i].Value
	}
	return 0
}

// UnsignedTx returns a fresh wire transaction with empty signature
// scripts and witnesses.
func (r *Request) UnsignedTx() *wire.MsgTx {
	msg := wire.NewMsgTx(wire.TxVersion)
	for _, in := range r.Inputs {
		op := in.Outpoint
		msg.AddTxIn(wire.NewTxIn(&op, nil, nil))
	}
	for _, out := range r.Outputs {
		msg.AddTxOut(wire.NewTxOut(int64(out.Value), out.PkScript))
	}
	return msg
}

// prevOutFetcher indexes the previous outputs spent by the request.
func (r *Request) prevOutFetcher() *txscript.MultiPrevOutFetcher {
	fetcher := txscript.NewMultiPrevOutFetcher(nil)
	for _, in := range r.Inputs {
		fetcher.AddPrevOut(in.Outpoint, wire.NewTxOut(int64(in.Value), in.PkScript))
	}
	return fetcher
}
