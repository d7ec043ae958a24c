package wallet

import (
	"github.com/Klingon-tech/utxowallet/pkg/crypto"
	"github.com/btcsuite/btcd/btcutil"
)

// KeyPair is one leaf of the derivation tree.
type KeyPair struct {
	Path    string
	Address btcutil.Address
	Key     *crypto.PrivateKey
}

// Material is the output of the wallet generation flow.
type Material struct {
	Mnemonic   string `json:"mnemonic"`
	Xpub       string `json:"xpub"`
	Address    string `json:"address"`
	PrivateKey string `json:"privateKey"`
	Path       string `json:"path"`
}

// Generate creates a new seed phrase and derives its account xpub plus the
// address and WIF private key at the given external index.
func Generate(d *Deriver, index uint32) (*Material, error) {
	mnemonic, err := d.GenerateSeedPhrase()
	if err != nil {
		return nil, err
	}
	return Describe(d, mnemonic, index)
}

// Describe derives the generation output for an existing seed phrase.
func Describe(d *Deriver, mnemonic string, index uint32) (*Material, error) {
	xpub, err := d.ExtendedPublicKey(mnemonic)
	if err != nil {
		return nil, err
	}
	kp, err := d.KeyPair(mnemonic, ChangeExternal, index)
	if err != nil {
		return nil, err
	}
	defer kp.Key.Zero()

	wif, err := kp.Key.WIF(d.params)
	if err != nil {
		return nil, err
	}
	return &Material{
		Mnemonic:   NormalizeMnemonic(mnemonic),
		Xpub:       xpub,
		Address:    kp.Address.EncodeAddress(),
		PrivateKey: wif,
		Path:       kp.Path,
	}, nil
}
