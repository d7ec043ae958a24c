package wallet

import "github.com/btcsuite/btcd/btcutil"

// Balance is the indexer's view of an address, in satoshis.
type Balance struct {
	Incoming        btcutil.Amount `json:"incoming"`
	Outgoing        btcutil.Amount `json:"outgoing"`
	IncomingPending btcutil.Amount `json:"incomingPending"`
	OutgoingPending btcutil.Amount `json:"outgoingPending"`
}

// Confirmed returns the settled balance.
func (b Balance) Confirmed() btcutil.Amount {
	return b.Incoming - b.Outgoing
}

// Unconfirmed returns the net effect of pending transactions.
func (b Balance) Unconfirmed() btcutil.Amount {
	return b.IncomingPending - b.OutgoingPending
}
