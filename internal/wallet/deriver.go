package wallet

import (
	"fmt"

	"github.com/Klingon-tech/utxowallet/pkg/crypto"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/tyler-smith/go-bip32"
)

// Deriver turns a seed phrase into account keys, addresses and private keys
// for one network and address type on account 0. Every method is a pure
// function of its inputs.
type Deriver struct {
	params   *chaincfg.Params
	addrType AddressType
}

// NewDeriver creates a deriver for account 0.
func NewDeriver(params *chaincfg.Params, addrType AddressType) *Deriver {
	return &Deriver{params: params, addrType: addrType}
}

// Params returns the network parameters.
func (d *Deriver) Params() *chaincfg.Params { return d.params }

// AddressType returns the address type of derived addresses.
func (d *Deriver) AddressType() AddressType { return d.addrType }

// GenerateSeedPhrase returns a fresh 24-word mnemonic.
func (d *Deriver) GenerateSeedPhrase() (string, error) {
	return GenerateMnemonic()
}

// accountKey derives m/purpose'/coin'/account' from the phrase.
func (d *Deriver) accountKey(mnemonic string) (*HDKey, error) {
	seed, err := SeedFromMnemonic(mnemonic, "")
	if err != nil {
		return nil, err
	}
	defer zeroBytes(seed)

	master, err := NewMasterKey(seed, d.params)
	if err != nil {
		return nil, err
	}
	return master.DeriveAccount(d.addrType, 0)
}

// ExtendedPublicKey returns the account-level extended public key.
func (d *Deriver) ExtendedPublicKey(mnemonic string) (string, error) {
	acct, err := d.accountKey(mnemonic)
	if err != nil {
		return "", err
	}
	return acct.Neuter().String(), nil
}

// Address returns the external (receiving) address at index.
func (d *Deriver) Address(mnemonic string, index uint32) (btcutil.Address, error) {
	kp, err := d.KeyPair(mnemonic, ChangeExternal, index)
	if err != nil {
		return nil, err
	}
	kp.Key.Zero()
	return kp.Address, nil
}

// PrivateKey returns the key controlling Address(mnemonic, index).
// The caller should Zero it once signing is done.
func (d *Deriver) PrivateKey(mnemonic string, index uint32) (*crypto.PrivateKey, error) {
	kp, err := d.KeyPair(mnemonic, ChangeExternal, index)
	if err != nil {
		return nil, err
	}
	return kp.Key, nil
}

// KeyPair derives the address and private key at change/index.
func (d *Deriver) KeyPair(mnemonic string, change, index uint32) (*KeyPair, error) {
	if index >= bip32.FirstHardenedChild || change > ChangeInternal {
		return nil, ErrInvalidIndex
	}
	acct, err := d.accountKey(mnemonic)
	if err != nil {
		return nil, err
	}
	leaf, err := acct.DerivePath(change, index)
	if err != nil {
		return nil, err
	}
	addr, err := leaf.Address(d.addrType)
	if err != nil {
		return nil, err
	}
	key, err := leaf.Signer()
	if err != nil {
		return nil, err
	}
	return &KeyPair{
		Path:    FormatPath(d.addrType, d.params.HDCoinType, 0, change, index),
		Address: addr,
		Key:     key,
	}, nil
}

// AddressFromExtendedKey derives an address from an account-level extended
// public key without access to any private material.
func AddressFromExtendedKey(xpub string, addrType AddressType, params *chaincfg.Params, change, index uint32) (btcutil.Address, error) {
	acct, err := ParseExtendedKey(xpub, params)
	if err != nil {
		return nil, err
	}
	leaf, err := acct.Neuter().DerivePath(change, index)
	if err != nil {
		return nil, err
	}
	return leaf.Address(addrType)
}

// FormatPath renders a derivation path such as m/44'/1'/0'/0/3.
func FormatPath(addrType AddressType, coinType, account, change, index uint32) string {
	return fmt.Sprintf("m/%d'/%d'/%d'/%d/%d",
		addrType.Purpose()-bip32.FirstHardenedChild, coinType, account, change, index)
}
