// Package wallet implements HD key derivation, coin selection and the
// encrypted keystore for Bitcoin wallets.
package wallet

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tyler-smith/go-bip39"
)

// ErrInvalidSeed is returned when a seed phrase fails BIP-39 word list or
// checksum validation.
var ErrInvalidSeed = errors.New("invalid seed phrase")

// MnemonicEntropyBits is the entropy size for 24-word mnemonics.
const MnemonicEntropyBits = 256

// MnemonicWords is the word count of generated mnemonics.
const MnemonicWords = 24

// GenerateMnemonic creates a new 24-word BIP-39 mnemonic.
func GenerateMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(MnemonicEntropyBits)
	if err != nil {
		return "", fmt.Errorf("generate entropy: %w", err)
	}
	defer zeroBytes(entropy)

	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", fmt.Errorf("generate mnemonic: %w", err)
	}
	return mnemonic, nil
}

// NormalizeMnemonic lowercases the phrase and collapses runs of whitespace,
// so pasted phrases with stray newlines still validate.
func NormalizeMnemonic(mnemonic string) string {
	return strings.Join(strings.Fields(strings.ToLower(mnemonic)), " ")
}

// ValidateMnemonic checks if a mnemonic is valid per BIP-39
// (correct word count, valid words, valid checksum).
func ValidateMnemonic(mnemonic string) bool {
	return bip39.IsMnemonicValid(NormalizeMnemonic(mnemonic))
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
