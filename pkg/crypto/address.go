package crypto

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
)

// P2PKHAddress returns the legacy pay-to-pubkey-hash address of a public key.
func P2PKHAddress(pubKey []byte, params *chaincfg.Params) (*btcutil.AddressPubKeyHash, error) {
	addr, err := btcutil.NewAddressPubKeyHash(btcutil.Hash160(pubKey), params)
	if err != nil {
		return nil, fmt.Errorf("p2pkh address: %w", err)
	}
	return addr, nil
}

// P2WPKHAddress returns the native segwit v0 address of a compressed public key.
func P2WPKHAddress(pubKey []byte, params *chaincfg.Params) (*btcutil.AddressWitnessPubKeyHash, error) {
	if len(pubKey) != 33 {
		return nil, fmt.Errorf("p2wpkh requires a compressed public key, got %d bytes", len(pubKey))
	}
	addr, err := btcutil.NewAddressWitnessPubKeyHash(btcutil.Hash160(pubKey), params)
	if err != nil {
		return nil, fmt.Errorf("p2wpkh address: %w", err)
	}
	return addr, nil
}

// Addresses returns every address form the key can spend from.
// Uncompressed keys only have a P2PKH form.
func (pk *PrivateKey) Addresses(params *chaincfg.Params) ([]btcutil.Address, error) {
	pub := pk.PublicKey()
	p2pkh, err := P2PKHAddress(pub, params)
	if err != nil {
		return nil, err
	}
	addrs := []btcutil.Address{p2pkh}
	if pk.compressed {
		p2wpkh, err := P2WPKHAddress(pub, params)
		if err != nil {
			return nil, err
		}
		addrs = append(addrs, p2wpkh)
	}
	return addrs, nil
}
