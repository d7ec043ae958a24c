package tx

import (
	"testing"

	"github.com/Klingon-tech/utxowallet/pkg/crypto"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

var testParams = &chaincfg.TestNet3Params

// testKey returns a deterministic compressed key whose secret is n.
func testKey(t *testing.T, n byte) *crypto.PrivateKey {
	t.Helper()
	b := make([]byte, 32)
	b[31] = n
	key, err := crypto.PrivateKeyFromBytes(b)
	if err != nil {
		t.Fatalf("PrivateKeyFromBytes() error: %v", err)
	}
	return key
}

func legacyAddr(t *testing.T, key *crypto.PrivateKey) btcutil.Address {
	t.Helper()
	addr, err := crypto.P2PKHAddress(key.PublicKey(), testParams)
	if err != nil {
		t.Fatalf("P2PKHAddress() error: %v", err)
	}
	return addr
}

func segwitAddr(t *testing.T, key *crypto.PrivateKey) btcutil.Address {
	t.Helper()
	addr, err := crypto.P2WPKHAddress(key.PublicKey(), testParams)
	if err != nil {
		t.Fatalf("P2WPKHAddress() error: %v", err)
	}
	return addr
}

// inputFor creates an input paying addr, with a txid derived from n.
func inputFor(t *testing.T, addr btcutil.Address, n byte, value btcutil.Amount) Input {
	t.Helper()
	script, err := txscript.PayToAddrScript(addr)
	if err != nil {
		t.Fatalf("PayToAddrScript() error: %v", err)
	}
	return Input{
		Outpoint: wire.OutPoint{Hash: chainhash.Hash{n}, Index: uint32(n)},
		Value:    value,
		PkScript: script,
	}
}
