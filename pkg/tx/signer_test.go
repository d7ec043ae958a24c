package tx

import (
	"bytes"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
)

func signOne(t *testing.T, req *Request, ring *KeyRing) *SignedTx {
	t.Helper()
	signed, err := Sign(req, ring)
	if err != nil {
		t.Fatalf("Sign() error: %v", err)
	}
	return signed
}

func TestSign_P2PKH(t *testing.T) {
	key := testKey(t, 1)
	from, to := legacyAddr(t, key), legacyAddr(t, testKey(t, 2))
	ring, err := NewKeyRing(testParams, key)
	if err != nil {
		t.Fatalf("NewKeyRing() error: %v", err)
	}

	req, err := Build([]Input{inputFor(t, from, 1, 150000)}, to, 100000, 20000, from)
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	signed := signOne(t, req, ring)

	msg, err := signed.MsgTx()
	if err != nil {
		t.Fatalf("MsgTx() error: %v", err)
	}
	if len(msg.TxIn[0].SignatureScript) == 0 {
		t.Error("p2pkh input should carry a signature script")
	}
	if msg.HasWitness() {
		t.Error("p2pkh-only tx should have no witness")
	}
	if signed.TxID() != msg.TxHash() {
		t.Error("TxID() does not match decoded tx hash")
	}
	if signed.VirtualSize() != signed.Size() {
		t.Errorf("vsize %d != size %d for non-witness tx", signed.VirtualSize(), signed.Size())
	}
	// Signature scripts are part of a legacy txid.
	if req.UnsignedTx().TxHash() == signed.TxID() {
		t.Error("signing should change the txid of a legacy tx")
	}
}

func TestSign_P2WPKH(t *testing.T) {
	key := testKey(t, 1)
	from, to := segwitAddr(t, key), segwitAddr(t, testKey(t, 2))
	ring, err := NewKeyRing(testParams, key)
	if err != nil {
		t.Fatalf("NewKeyRing() error: %v", err)
	}

	req, err := Build([]Input{inputFor(t, from, 1, 150000)}, to, 100000, 20000, from)
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	signed := signOne(t, req, ring)

	msg, err := signed.MsgTx()
	if err != nil {
		t.Fatalf("MsgTx() error: %v", err)
	}
	if len(msg.TxIn[0].Witness) != 2 {
		t.Errorf("witness items = %d, want 2", len(msg.TxIn[0].Witness))
	}
	if len(msg.TxIn[0].SignatureScript) != 0 {
		t.Error("p2wpkh input should have an empty signature script")
	}
	if signed.VirtualSize() >= signed.Size() {
		t.Errorf("vsize %d should be below size %d for witness tx", signed.VirtualSize(), signed.Size())
	}
	// Witness data is not part of the txid.
	if req.UnsignedTx().TxHash() != signed.TxID() {
		t.Error("segwit txid should not change when signing")
	}
}

func TestSign_MixedInputsAndKeys(t *testing.T) {
	k1, k2 := testKey(t, 1), testKey(t, 2)
	to := legacyAddr(t, testKey(t, 3))
	ring, err := NewKeyRing(testParams, k1, k2)
	if err != nil {
		t.Fatalf("NewKeyRing() error: %v", err)
	}

	inputs := []Input{
		inputFor(t, legacyAddr(t, k1), 1, 40000),
		inputFor(t, segwitAddr(t, k2), 2, 40000),
		inputFor(t, segwitAddr(t, k1), 3, 40000),
	}
	req, err := Build(inputs, to, 100000, 5000, legacyAddr(t, k1))
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	signed := signOne(t, req, ring)

	// Re-verify every input independently of Sign.
	msg, err := signed.MsgTx()
	if err != nil {
		t.Fatalf("MsgTx() error: %v", err)
	}
	fetcher := req.prevOutFetcher()
	hashes := txscript.NewTxSigHashes(msg, fetcher)
	for i, in := range req.Inputs {
		vm, err := txscript.NewEngine(in.PkScript, msg, i, txscript.StandardVerifyFlags, nil, hashes, int64(in.Value), fetcher)
		if err != nil {
			t.Fatalf("NewEngine(%d) error: %v", i, err)
		}
		if err := vm.Execute(); err != nil {
			t.Errorf("input %d does not verify: %v", i, err)
		}
	}
}

func TestSign_MissingKey(t *testing.T) {
	owner, stranger := testKey(t, 1), testKey(t, 2)
	from, to := legacyAddr(t, owner), legacyAddr(t, testKey(t, 3))
	ring, err := NewKeyRing(testParams, stranger)
	if err != nil {
		t.Fatalf("NewKeyRing() error: %v", err)
	}

	req, err := Build([]Input{inputFor(t, from, 1, 150000)}, to, 100000, 20000, from)
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	signed, err := Sign(req, ring)
	if !errors.Is(err, ErrMissingKey) {
		t.Fatalf("expected ErrMissingKey, got: %v", err)
	}
	if signed != nil {
		t.Error("no partial output expected on missing key")
	}
}

func TestSign_MissingKeyForOneOfMany(t *testing.T) {
	owner := testKey(t, 1)
	ring, err := NewKeyRing(testParams, owner)
	if err != nil {
		t.Fatalf("NewKeyRing() error: %v", err)
	}
	inputs := []Input{
		inputFor(t, legacyAddr(t, owner), 1, 60000),
		inputFor(t, legacyAddr(t, testKey(t, 9)), 2, 60000),
	}
	req, err := Build(inputs, legacyAddr(t, testKey(t, 3)), 100000, 1000, legacyAddr(t, owner))
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	if _, err := Sign(req, ring); !errors.Is(err, ErrMissingKey) {
		t.Errorf("expected ErrMissingKey, got: %v", err)
	}
}

func TestSign_UnsupportedScript(t *testing.T) {
	key := testKey(t, 1)
	ring, _ := NewKeyRing(testParams, key)

	p2sh, err := btcutil.NewAddressScriptHash([]byte{txscript.OP_TRUE}, testParams)
	if err != nil {
		t.Fatalf("NewAddressScriptHash() error: %v", err)
	}
	req, err := Build([]Input{inputFor(t, p2sh, 1, 150000)}, legacyAddr(t, key), 100000, 1000, legacyAddr(t, key))
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	if _, err := Sign(req, ring); !errors.Is(err, ErrUnsupportedScript) {
		t.Errorf("expected ErrUnsupportedScript, got: %v", err)
	}
}

func TestSign_Deterministic(t *testing.T) {
	key := testKey(t, 1)
	from, to := legacyAddr(t, key), legacyAddr(t, testKey(t, 2))
	ring, _ := NewKeyRing(testParams, key)
	req, err := Build([]Input{inputFor(t, from, 1, 150000)}, to, 100000, 20000, from)
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}

	a, b := signOne(t, req, ring), signOne(t, req, ring)
	if !bytes.Equal(a.Bytes(), b.Bytes()) {
		t.Error("RFC6979 signing should be deterministic")
	}
}

func TestSignedTx_Immutable(t *testing.T) {
	key := testKey(t, 1)
	from, to := legacyAddr(t, key), legacyAddr(t, testKey(t, 2))
	ring, _ := NewKeyRing(testParams, key)
	req, _ := Build([]Input{inputFor(t, from, 1, 150000)}, to, 100000, 20000, from)
	signed := signOne(t, req, ring)

	raw := signed.Bytes()
	raw[0] ^= 0xff
	if bytes.Equal(raw, signed.Bytes()) {
		t.Error("Bytes() should return a copy")
	}

	decoded, err := hex.DecodeString(signed.Hex())
	if err != nil {
		t.Fatalf("DecodeString() error: %v", err)
	}
	if !bytes.Equal(decoded, signed.Bytes()) {
		t.Error("Hex() does not match Bytes()")
	}

	msg, err := signed.MsgTx()
	if err != nil {
		t.Fatalf("MsgTx() error: %v", err)
	}
	if msg.TxHash() != signed.TxID() {
		t.Error("decoded txid mismatch")
	}
}

func TestKeyRing(t *testing.T) {
	key := testKey(t, 1)
	ring, err := NewKeyRing(testParams)
	if err != nil {
		t.Fatalf("NewKeyRing() error: %v", err)
	}

	wif, err := key.WIF(testParams)
	if err != nil {
		t.Fatalf("WIF() error: %v", err)
	}
	if err := ring.AddWIF(wif); err != nil {
		t.Fatalf("AddWIF() error: %v", err)
	}
	if ring.Len() != 2 {
		t.Errorf("Len() = %d, want 2 (p2pkh and p2wpkh)", ring.Len())
	}
	if !ring.Has(legacyAddr(t, key)) || !ring.Has(segwitAddr(t, key)) {
		t.Error("ring should hold both address forms")
	}

	mainWIF, _ := key.WIF(&chaincfg.MainNetParams)
	if err := ring.AddWIF(mainWIF); err == nil {
		t.Error("mainnet WIF should be rejected by a testnet ring")
	}

	ring.Zero()
	if ring.Len() != 0 {
		t.Errorf("Len() after Zero() = %d, want 0", ring.Len())
	}
}

func TestKeyRing_ZeroLeavesCallerKey(t *testing.T) {
	key := testKey(t, 1)
	from, to := legacyAddr(t, key), legacyAddr(t, testKey(t, 2))
	req, _ := Build([]Input{inputFor(t, from, 1, 150000)}, to, 100000, 20000, from)

	for run := 0; run < 2; run++ {
		ring, err := NewKeyRing(testParams, key)
		if err != nil {
			t.Fatalf("run %d: NewKeyRing() error: %v", run, err)
		}
		signOne(t, req, ring)
		ring.Zero()
	}
	if bytes.Equal(key.Serialize(), make([]byte, 32)) {
		t.Error("Zero() should not clear a key the caller still holds")
	}
}
