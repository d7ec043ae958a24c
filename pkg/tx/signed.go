package tx

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// SignedTx is a fully signed, serialized transaction. It cannot be
// modified after creation.
type SignedTx struct {
	raw   []byte
	txid  chainhash.Hash
	vsize int
}

func newSignedTx(msg *wire.MsgTx) (*SignedTx, error) {
	var buf bytes.Buffer
	buf.Grow(msg.SerializeSize())
	if err := msg.Serialize(&buf); err != nil {
		return nil, fmt.Errorf("%w: serialize: %v", ErrSigningFailure, err)
	}
	weight := blockchain.GetTransactionWeight(btcutil.NewTx(msg))
	return &SignedTx{
		raw:   buf.Bytes(),
		txid:  msg.TxHash(),
		vsize: int((weight + blockchain.WitnessScaleFactor - 1) / blockchain.WitnessScaleFactor),
	}, nil
}

// Bytes returns a copy of the serialized transaction.
func (s *SignedTx) Bytes() []byte {
	return append([]byte(nil), s.raw...)
}

// Hex returns the serialized transaction as hex, the form broadcast APIs take.
func (s *SignedTx) Hex() string {
	return hex.EncodeToString(s.raw)
}

// TxID returns the transaction id (witness data excluded).
func (s *SignedTx) TxID() chainhash.Hash {
	return s.txid
}

// Size returns the serialized size in bytes.
func (s *SignedTx) Size() int {
	return len(s.raw)
}

// VirtualSize returns the size in virtual bytes used for fee rates.
func (s *SignedTx) VirtualSize() int {
	return s.vsize
}

// MsgTx decodes a fresh copy of the transaction.
func (s *SignedTx) MsgTx() (*wire.MsgTx, error) {
	var msg wire.MsgTx
	if err := msg.Deserialize(bytes.NewReader(s.raw)); err != nil {
		return nil, err
	}
	return &msg, nil
}
