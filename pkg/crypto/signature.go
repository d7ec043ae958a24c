// Package crypto provides the secp256k1 key handling used to sign Bitcoin inputs.
package crypto

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// PrivateKey wraps a secp256k1 private key together with the public key
// encoding its addresses are derived from.
type PrivateKey struct {
	key        *secp256k1.PrivateKey
	compressed bool
}

// PrivateKeyFromBytes creates a PrivateKey from a 32-byte secret.
// The key uses compressed public key encoding.
func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	if len(b) != 32 {
		return nil, fmt.Errorf("private key must be 32 bytes, got %d", len(b))
	}
	key := secp256k1.PrivKeyFromBytes(b)
	if key.Key.IsZero() {
		return nil, fmt.Errorf("private key is zero")
	}
	return &PrivateKey{key: key, compressed: true}, nil
}

// PrivateKeyFromWIF decodes a wallet import format key and checks that it
// belongs to the given network.
func PrivateKeyFromWIF(s string, params *chaincfg.Params) (*PrivateKey, error) {
	wif, err := btcutil.DecodeWIF(s)
	if err != nil {
		return nil, fmt.Errorf("decode wif: %w", err)
	}
	if !wif.IsForNet(params) {
		wif.PrivKey.Zero()
		return nil, fmt.Errorf("wif is not for network %s", params.Name)
	}
	return &PrivateKey{key: wif.PrivKey, compressed: wif.CompressPubKey}, nil
}

// WIF encodes the key in wallet import format for the given network.
func (pk *PrivateKey) WIF(params *chaincfg.Params) (string, error) {
	wif, err := btcutil.NewWIF(pk.key, params, pk.compressed)
	if err != nil {
		return "", fmt.Errorf("encode wif: %w", err)
	}
	return wif.String(), nil
}

// Sign produces a DER-encoded ECDSA signature over a 32-byte hash.
func (pk *PrivateKey) Sign(hash []byte) ([]byte, error) {
	if len(hash) != 32 {
		return nil, fmt.Errorf("hash must be 32 bytes, got %d", len(hash))
	}
	return ecdsa.Sign(pk.key, hash).Serialize(), nil
}

// PublicKey returns the serialized public key (33 bytes when compressed).
func (pk *PrivateKey) PublicKey() []byte {
	if pk.compressed {
		return pk.key.PubKey().SerializeCompressed()
	}
	return pk.key.PubKey().SerializeUncompressed()
}

// Compressed reports whether addresses use the compressed public key.
func (pk *PrivateKey) Compressed() bool {
	return pk.compressed
}

// Key returns the underlying key for script signing.
func (pk *PrivateKey) Key() *btcec.PrivateKey {
	return pk.key
}

// Serialize returns the 32-byte private key scalar.
func (pk *PrivateKey) Serialize() []byte {
	return pk.key.Serialize()
}

// Copy returns an independent key holding the same scalar and public key
// encoding. Zeroing either key leaves the other intact.
func (pk *PrivateKey) Copy() *PrivateKey {
	b := pk.key.Serialize()
	defer clear(b)
	return &PrivateKey{key: secp256k1.PrivKeyFromBytes(b), compressed: pk.compressed}
}

// Zero securely zeroes the private key memory.
func (pk *PrivateKey) Zero() {
	pk.key.Zero()
}

// VerifySignature checks a DER ECDSA signature against a 32-byte hash
// and a serialized public key. Returns false on any error.
func VerifySignature(hash, signature, publicKey []byte) bool {
	pubKey, err := secp256k1.ParsePubKey(publicKey)
	if err != nil {
		return false
	}
	sig, err := ecdsa.ParseDERSignature(signature)
	if err != nil {
		return false
	}
	return sig.Verify(hash, pubKey)
}
