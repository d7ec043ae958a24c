package wallet

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/Klingon-tech/utxowallet/pkg/crypto"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/tyler-smith/go-bip32"
)

// Derivation path constants.
// Full path: m/purpose'/coin'/account'/change/index
const (
	// PurposeBIP44 is the legacy P2PKH purpose field (hardened).
	PurposeBIP44 = bip32.FirstHardenedChild + 44

	// PurposeBIP84 is the native segwit P2WPKH purpose field (hardened).
	PurposeBIP84 = bip32.FirstHardenedChild + 84

	// ChangeExternal is for receiving addresses.
	ChangeExternal = 0

	// ChangeInternal is for change addresses.
	ChangeInternal = 1
)

// HD key errors.
var (
	ErrInvalidIndex     = errors.New("index must be below the hardened range")
	ErrWrongNetworkKey  = errors.New("extended key is for a different network")
	ErrPublicDerivation = errors.New("cannot derive hardened child from public key")
)

// AddressType selects the script type and purpose of derived addresses.
type AddressType string

const (
	AddressLegacy AddressType = "legacy" // BIP-44, P2PKH
	AddressSegwit AddressType = "segwit" // BIP-84, P2WPKH
)

// ParseAddressType parses an address type name. Empty means legacy.
func ParseAddressType(s string) (AddressType, error) {
	switch AddressType(s) {
	case "", AddressLegacy:
		return AddressLegacy, nil
	case AddressSegwit:
		return AddressSegwit, nil
	default:
		return "", fmt.Errorf("unknown address type %q (want legacy or segwit)", s)
	}
}

// Purpose returns the hardened purpose index for the address type.
func (t AddressType) Purpose() uint32 {
	if t == AddressSegwit {
		return PurposeBIP84
	}
	return PurposeBIP44
}

// HDKey represents a hierarchical deterministic key (BIP-32) bound to a
// network, which decides its serialization version bytes.
type HDKey struct {
	key    *bip32.Key
	params *chaincfg.Params
}

// NewMasterKey creates a master HD key from a 64-byte seed.
func NewMasterKey(seed []byte, params *chaincfg.Params) (*HDKey, error) {
	if len(seed) != SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", SeedSize, len(seed))
	}
	master, err := bip32.NewMasterKey(seed)
	if err != nil {
		return nil, fmt.Errorf("create master key: %w", err)
	}
	return &HDKey{key: master, params: params}, nil
}

// ParseExtendedKey decodes a base58 extended key and checks its version
// bytes against the network.
func ParseExtendedKey(s string, params *chaincfg.Params) (*HDKey, error) {
	key, err := bip32.B58Deserialize(s)
	if err != nil {
		return nil, fmt.Errorf("decode extended key: %w", err)
	}
	want := params.HDPublicKeyID[:]
	if key.IsPrivate {
		want = params.HDPrivateKeyID[:]
	}
	if !bytes.Equal(key.Version, want) {
		return nil, ErrWrongNetworkKey
	}
	return &HDKey{key: key, params: params}, nil
}

// DeriveChild derives a child key at the given index.
// For hardened derivation, add bip32.FirstHardenedChild to the index.
func (k *HDKey) DeriveChild(index uint32) (*HDKey, error) {
	if !k.key.IsPrivate && index >= bip32.FirstHardenedChild {
		return nil, ErrPublicDerivation
	}
	child, err := k.key.NewChildKey(index)
	if err != nil {
		return nil, fmt.Errorf("derive child %d: %w", index, err)
	}
	return &HDKey{key: child, params: k.params}, nil
}

// DerivePath derives a key along a sequence of indices.
func (k *HDKey) DerivePath(indices ...uint32) (*HDKey, error) {
	current := k
	for _, idx := range indices {
		child, err := current.DeriveChild(idx)
		if err != nil {
			return nil, err
		}
		current = child
	}
	return current, nil
}

// DeriveAccount derives the account key at m/purpose'/coin'/account'.
func (k *HDKey) DeriveAccount(addrType AddressType, account uint32) (*HDKey, error) {
	if account >= bip32.FirstHardenedChild {
		return nil, ErrInvalidIndex
	}
	return k.DerivePath(
		addrType.Purpose(),
		bip32.FirstHardenedChild+k.params.HDCoinType,
		bip32.FirstHardenedChild+account,
	)
}

// PrivateKeyBytes returns the raw 32-byte private key.
// Returns nil if this is a public-only key.
func (k *HDKey) PrivateKeyBytes() []byte {
	if !k.key.IsPrivate {
		return nil
	}
	raw := k.key.Key
	if len(raw) == 33 && raw[0] == 0 {
		raw = raw[1:]
	}
	out := make([]byte, 32)
	copy(out[32-len(raw):], raw)
	return out
}

// PublicKeyBytes returns the compressed 33-byte public key.
func (k *HDKey) PublicKeyBytes() []byte {
	if !k.key.IsPrivate {
		return k.key.Key
	}
	return k.key.PublicKey().Key
}

// Signer returns the private key of this node.
// Returns error if this is a public-only key.
func (k *HDKey) Signer() (*crypto.PrivateKey, error) {
	priv := k.PrivateKeyBytes()
	if priv == nil {
		return nil, fmt.Errorf("cannot create signer from public key")
	}
	defer zeroBytes(priv)
	return crypto.PrivateKeyFromBytes(priv)
}

// Address encodes this key's public key as an address of the given type.
func (k *HDKey) Address(addrType AddressType) (btcutil.Address, error) {
	return AddressForPubKey(k.PublicKeyBytes(), addrType, k.params)
}

// AddressForPubKey encodes a compressed public key as an address.
func AddressForPubKey(pub []byte, addrType AddressType, params *chaincfg.Params) (btcutil.Address, error) {
	if addrType == AddressSegwit {
		return crypto.P2WPKHAddress(pub, params)
	}
	return crypto.P2PKHAddress(pub, params)
}

// IsPrivate returns true if this key contains a private key.
func (k *HDKey) IsPrivate() bool {
	return k.key.IsPrivate
}

// Depth returns the derivation depth (0 for master).
func (k *HDKey) Depth() uint8 {
	return k.key.Depth
}

// Neuter returns a public-key-only copy (for watch-only wallets).
func (k *HDKey) Neuter() *HDKey {
	if !k.key.IsPrivate {
		return k
	}
	return &HDKey{key: k.key.PublicKey(), params: k.params}
}

// String serializes the key in base58 with the network's version bytes
// (xprv/xpub on mainnet, tprv/tpub on test networks).
func (k *HDKey) String() string {
	cp := *k.key
	if cp.IsPrivate {
		cp.Version = k.params.HDPrivateKeyID[:]
	} else {
		cp.Version = k.params.HDPublicKeyID[:]
	}
	return cp.B58Serialize()
}
