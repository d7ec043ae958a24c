package tx

import (
	"errors"
	"fmt"

	"github.com/Klingon-tech/utxowallet/pkg/crypto"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
)

// Signing errors.
var (
	ErrMissingKey     = errors.New("no key for input address")
	ErrSigningFailure = errors.New("signing failed")
)

// KeyRing maps spendable addresses to the keys controlling them. Each key
// is registered under every address form it can spend from.
type KeyRing struct {
	params *chaincfg.Params
	keys   map[string]*crypto.PrivateKey
}

// NewKeyRing creates a key ring for params holding the given keys.
func NewKeyRing(params *chaincfg.Params, keys ...*crypto.PrivateKey) (*KeyRing, error) {
	r := &KeyRing{params: params, keys: make(map[string]*crypto.PrivateKey)}
	for _, k := range keys {
		if err := r.Add(k); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Add registers a copy of key under all of its addresses. The ring owns
// the copy, so Zero never touches the caller's key.
func (r *KeyRing) Add(key *crypto.PrivateKey) error {
	addrs, err := key.Addresses(r.params)
	if err != nil {
		return err
	}
	r.add(key.Copy(), addrs)
	return nil
}

// AddWIF decodes a WIF private key and registers it.
func (r *KeyRing) AddWIF(wif string) error {
	key, err := crypto.PrivateKeyFromWIF(wif, r.params)
	if err != nil {
		return err
	}
	addrs, err := key.Addresses(r.params)
	if err != nil {
		key.Zero()
		return err
	}
	r.add(key, addrs)
	return nil
}

func (r *KeyRing) add(key *crypto.PrivateKey, addrs []btcutil.Address) {
	for _, a := range addrs {
		r.keys[a.EncodeAddress()] = key
	}
}

// Len returns the number of registered addresses.
func (r *KeyRing) Len() int { return len(r.keys) }

// Has reports whether the ring can sign for addr.
func (r *KeyRing) Has(addr btcutil.Address) bool {
	_, ok := r.keys[addr.EncodeAddress()]
	return ok
}

// Zero wipes every key in the ring and empties it.
func (r *KeyRing) Zero() {
	for a, k := range r.keys {
		k.Zero()
		delete(r.keys, a)
	}
}

// inputAddress returns the single address paid by a P2PKH or P2WPKH script.
func inputAddress(pkScript []byte, params *chaincfg.Params) (txscript.ScriptClass, btcutil.Address, error) {
	class, addrs, _, err := txscript.ExtractPkScriptAddrs(pkScript, params)
	if err != nil {
		return class, nil, err
	}
	switch class {
	case txscript.PubKeyHashTy, txscript.WitnessV0PubKeyHashTy:
		if len(addrs) == 1 {
			return class, addrs[0], nil
		}
	}
	return class, nil, fmt.Errorf("%w: %v", ErrUnsupportedScript, class)
}

// Sign signs every input of req with the key from ring that controls it.
// All keys are located before anything is signed, so a missing key yields
// no output at all. Each signed input is then run through the script
// engine.
func Sign(req *Request, ring *KeyRing) (*SignedTx, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	classes := make([]txscript.ScriptClass, len(req.Inputs))
	keys := make([]*crypto.PrivateKey, len(req.Inputs))
	for i, in := range req.Inputs {
		class, addr, err := inputAddress(in.PkScript, ring.params)
		if err != nil {
			return nil, fmt.Errorf("input %d: %w", i, err)
		}
		key, ok := ring.keys[addr.EncodeAddress()]
		if !ok {
			return nil, fmt.Errorf("%w: input %d (%s)", ErrMissingKey, i, addr.EncodeAddress())
		}
		classes[i], keys[i] = class, key
	}

	msg := req.UnsignedTx()
	fetcher := req.prevOutFetcher()
	sigHashes := txscript.NewTxSigHashes(msg, fetcher)

	for i, in := range req.Inputs {
		key := keys[i]
		switch classes[i] {
		case txscript.PubKeyHashTy:
			script, err := txscript.SignatureScript(msg, i, in.PkScript, txscript.SigHashAll, key.Key(), key.Compressed())
			if err != nil {
				return nil, fmt.Errorf("%w: input %d: %v", ErrSigningFailure, i, err)
			}
			msg.TxIn[i].SignatureScript = script
		case txscript.WitnessV0PubKeyHashTy:
			witness, err := txscript.WitnessSignature(msg, sigHashes, i, int64(in.Value), in.PkScript, txscript.SigHashAll, key.Key(), true)
			if err != nil {
				return nil, fmt.Errorf("%w: input %d: %v", ErrSigningFailure, i, err)
			}
			msg.TxIn[i].Witness = witness
		}
	}

	for i, in := range req.Inputs {
		vm, err := txscript.NewEngine(in.PkScript, msg, i, txscript.StandardVerifyFlags, nil, sigHashes, int64(in.Value), fetcher)
		if err != nil {
			return nil, fmt.Errorf("%w: input %d: %v", ErrSigningFailure, i, err)
		}
		if err := vm.Execute(); err != nil {
			return nil, fmt.Errorf("%w: input %d: %v", ErrSigningFailure, i, err)
		}
	}

	return newSignedTx(msg)
}
