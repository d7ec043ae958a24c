package wallet

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Klingon-tech/utxowallet/internal/log"
	"github.com/btcsuite/btcd/chaincfg"
)

// Keystore errors.
var (
	ErrWalletExists   = errors.New("wallet already exists")
	ErrWalletNotFound = errors.New("wallet not found")
)

const keystoreVersion = 1

// keystoreFile is the on-disk JSON format for an encrypted wallet.
type keystoreFile struct {
	Version           int            `json:"version"`
	CreatedAt         time.Time      `json:"created_at"`
	Network           string         `json:"network"`
	AddressType       AddressType    `json:"address_type"`
	Xpub              string         `json:"xpub"`
	EncryptedMnemonic []byte         `json:"encrypted_mnemonic"`
	Accounts          []AccountEntry `json:"accounts"`
	NextChangeIndex   uint32         `json:"next_change_index"`   // Internal chain index.
	NextExternalIndex uint32         `json:"next_external_index"` // External chain index.
}

// AccountEntry stores metadata for a derived address.
type AccountEntry struct {
	Index   uint32 `json:"index"`
	Change  uint32 `json:"change"` // 0=external (deposit), 1=internal (change)
	Name    string `json:"name"`
	Address string `json:"address"`
	Path    string `json:"path"`
}

// WalletInfo is the public metadata of a stored wallet.
type WalletInfo struct {
	Name        string
	Network     string
	AddressType AddressType
	Xpub        string
	CreatedAt   time.Time
}

// Keystore manages encrypted wallet files in a directory.
type Keystore struct {
	path string
}

// NewKeystore creates a keystore that reads/writes to the given directory.
// The directory is created if it doesn't exist.
func NewKeystore(path string) (*Keystore, error) {
	if err := os.MkdirAll(path, 0700); err != nil {
		return nil, fmt.Errorf("create keystore dir: %w", err)
	}
	return &Keystore{path: path}, nil
}

func (ks *Keystore) walletPath(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", fmt.Errorf("invalid wallet name %q", name)
	}
	return filepath.Join(ks.path, name+".wallet"), nil
}

// Create encrypts the mnemonic and writes a new wallet file.
func (ks *Keystore) Create(name, mnemonic string, password []byte, params EncryptionParams, info WalletInfo) error {
	path, err := ks.walletPath(name)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%w: %q", ErrWalletExists, name)
	}
	if !ValidateMnemonic(mnemonic) {
		return ErrInvalidSeed
	}

	plain := []byte(NormalizeMnemonic(mnemonic))
	defer zeroBytes(plain)
	encrypted, err := Encrypt(plain, password, params)
	if err != nil {
		return fmt.Errorf("encrypt mnemonic: %w", err)
	}

	kf := keystoreFile{
		Version:           keystoreVersion,
		CreatedAt:         time.Now().UTC(),
		Network:           info.Network,
		AddressType:       info.AddressType,
		Xpub:              info.Xpub,
		EncryptedMnemonic: encrypted,
		Accounts:          []AccountEntry{},
	}
	if err := writeKeystoreFile(path, &kf); err != nil {
		return err
	}
	log.Wallet.Info().Str("wallet", name).Str("network", info.Network).Str("type", string(info.AddressType)).Msg("Wallet created")
	return nil
}

// Load decrypts a wallet and returns its mnemonic.
func (ks *Keystore) Load(name string, password []byte) (string, error) {
	kf, err := ks.read(name)
	if err != nil {
		return "", err
	}
	plain, err := Decrypt(kf.EncryptedMnemonic, password)
	if err != nil {
		return "", fmt.Errorf("decrypt wallet %q: %w", name, err)
	}
	defer zeroBytes(plain)
	return string(plain), nil
}

// Info returns a wallet's metadata without decrypting it.
func (ks *Keystore) Info(name string) (*WalletInfo, error) {
	kf, err := ks.read(name)
	if err != nil {
		return nil, err
	}
	return &WalletInfo{
		Name:        name,
		Network:     kf.Network,
		AddressType: kf.AddressType,
		Xpub:        kf.Xpub,
		CreatedAt:   kf.CreatedAt,
	}, nil
}

// AddAccount records a derived address in the wallet metadata.
// Re-adding the same path with the same address is a no-op.
func (ks *Keystore) AddAccount(name string, acct AccountEntry) error {
	return ks.update(name, func(kf *keystoreFile) error {
		for _, existing := range kf.Accounts {
			if existing.Change == acct.Change && existing.Index == acct.Index {
				if existing.Address == acct.Address {
					return errUnchanged
				}
				return fmt.Errorf("account path change=%d index=%d already exists", acct.Change, acct.Index)
			}
			if existing.Address != "" && existing.Address == acct.Address {
				return errUnchanged
			}
		}
		kf.Accounts = append(kf.Accounts, acct)
		return nil
	})
}

// ListAccounts returns the address entries of a wallet.
func (ks *Keystore) ListAccounts(name string) ([]AccountEntry, error) {
	kf, err := ks.read(name)
	if err != nil {
		return nil, err
	}
	return kf.Accounts, nil
}

// List returns the names of all wallet files in the keystore.
func (ks *Keystore) List() ([]string, error) {
	entries, err := os.ReadDir(ks.path)
	if err != nil {
		return nil, fmt.Errorf("read keystore dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if n := e.Name(); filepath.Ext(n) == ".wallet" {
			names = append(names, strings.TrimSuffix(n, ".wallet"))
		}
	}
	return names, nil
}

// IncrementChangeIndex advances the change address index by 1.
func (ks *Keystore) IncrementChangeIndex(name string) error {
	return ks.update(name, func(kf *keystoreFile) error {
		kf.NextChangeIndex++
		log.Wallet.Debug().Str("wallet", name).Uint32("next", kf.NextChangeIndex).Msg("Change index advanced")
		return nil
	})
}

// NextChangeAddress derives the address at the next change index from the
// stored xpub and records it in the wallet metadata. The index only moves
// on IncrementChangeIndex, so repeated calls return the same address until
// a send actually pays change to it.
func (ks *Keystore) NextChangeAddress(name string, params *chaincfg.Params) (*AccountEntry, error) {
	kf, err := ks.read(name)
	if err != nil {
		return nil, err
	}
	addr, err := AddressFromExtendedKey(kf.Xpub, kf.AddressType, params, ChangeInternal, kf.NextChangeIndex)
	if err != nil {
		return nil, fmt.Errorf("derive change address: %w", err)
	}
	acct := AccountEntry{
		Index:   kf.NextChangeIndex,
		Change:  ChangeInternal,
		Name:    fmt.Sprintf("Change %d", kf.NextChangeIndex),
		Address: addr.EncodeAddress(),
		Path:    FormatPath(kf.AddressType, params.HDCoinType, 0, ChangeInternal, kf.NextChangeIndex),
	}
	if err := ks.AddAccount(name, acct); err != nil {
		return nil, err
	}
	log.Wallet.Debug().Str("wallet", name).Str("address", acct.Address).Str("path", acct.Path).Msg("Change address derived")
	return &acct, nil
}

// GetExternalIndex returns the next external address index for a wallet.
func (ks *Keystore) GetExternalIndex(name string) (uint32, error) {
	kf, err := ks.read(name)
	if err != nil {
		return 0, err
	}
	return kf.NextExternalIndex, nil
}

// IncrementExternalIndex advances the external address index by 1.
func (ks *Keystore) IncrementExternalIndex(name string) error {
	return ks.update(name, func(kf *keystoreFile) error {
		kf.NextExternalIndex++
		return nil
	})
}

// SetExternalIndex sets the next external address index.
func (ks *Keystore) SetExternalIndex(name string, idx uint32) error {
	return ks.update(name, func(kf *keystoreFile) error {
		kf.NextExternalIndex = idx
		return nil
	})
}

// Delete removes a wallet file.
func (ks *Keystore) Delete(name string) error {
	path, err := ks.walletPath(name)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("%w: %q", ErrWalletNotFound, name)
	}
	return os.Remove(path)
}

var errUnchanged = errors.New("unchanged")

func (ks *Keystore) update(name string, fn func(*keystoreFile) error) error {
	path, err := ks.walletPath(name)
	if err != nil {
		return err
	}
	kf, err := readKeystoreFile(path)
	if err != nil {
		return err
	}
	if err := fn(kf); err != nil {
		if errors.Is(err, errUnchanged) {
			return nil
		}
		return err
	}
	return writeKeystoreFile(path, kf)
}

func (ks *Keystore) read(name string) (*keystoreFile, error) {
	path, err := ks.walletPath(name)
	if err != nil {
		return nil, err
	}
	return readKeystoreFile(path)
}

// writeKeystoreFile writes through a temp file so a crash never leaves a
// truncated wallet behind.
func writeKeystoreFile(path string, kf *keystoreFile) error {
	data, err := json.MarshalIndent(kf, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal wallet: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write wallet: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write wallet: %w", err)
	}
	return nil
}

func readKeystoreFile(path string) (*keystoreFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrWalletNotFound, filepath.Base(path))
		}
		return nil, fmt.Errorf("read wallet: %w", err)
	}
	var kf keystoreFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return nil, fmt.Errorf("parse wallet: %w", err)
	}
	if kf.Version != keystoreVersion {
		return nil, fmt.Errorf("unsupported wallet version: %d", kf.Version)
	}
	return &kf, nil
}
