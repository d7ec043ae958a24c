package wallet

import (
	"bytes"
	"encoding/hex"
	"errors"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/tyler-smith/go-bip32"
)

const testMnemonic12 = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

// testSeed returns a deterministic seed for testing.
// Uses the BIP-39 test vector: "abandon" x11 + "about" with passphrase "TREZOR".
func testSeed(t *testing.T) []byte {
	t.Helper()
	seed, err := SeedFromMnemonic(testMnemonic12, "TREZOR")
	if err != nil {
		t.Fatalf("SeedFromMnemonic() error: %v", err)
	}
	return seed
}

func testMaster(t *testing.T, params *chaincfg.Params) *HDKey {
	t.Helper()
	master, err := NewMasterKey(testSeed(t), params)
	if err != nil {
		t.Fatalf("NewMasterKey() error: %v", err)
	}
	return master
}

func TestNewMasterKey(t *testing.T) {
	master := testMaster(t, &chaincfg.TestNet3Params)

	if !master.IsPrivate() {
		t.Error("master key should be private")
	}
	if master.Depth() != 0 {
		t.Errorf("master key depth = %d, want 0", master.Depth())
	}
	if priv := master.PrivateKeyBytes(); len(priv) != 32 {
		t.Errorf("private key length = %d, want 32", len(priv))
	}
	if pub := master.PublicKeyBytes(); len(pub) != 33 {
		t.Errorf("public key length = %d, want 33", len(pub))
	}
}

func TestNewMasterKey_InvalidSeedLength(t *testing.T) {
	tests := []struct {
		name string
		seed []byte
	}{
		{"empty", []byte{}},
		{"too short", make([]byte, 32)},
		{"too long", make([]byte, 128)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewMasterKey(tt.seed, &chaincfg.MainNetParams); err == nil {
				t.Error("expected error for invalid seed length")
			}
		})
	}
}

func TestNewMasterKey_BIP32Vector2(t *testing.T) {
	seed, _ := hex.DecodeString("fffcf9f6f3f0edeae7e4e1dedbd8d5d2cfccc9c6c3c0bdbab7b4b1aeaba8a5a29f9c999693908d8a8784817e7b7875726f6c696663605d5a5754514e4b484542")
	master, err := NewMasterKey(seed, &chaincfg.MainNetParams)
	if err != nil {
		t.Fatalf("NewMasterKey() error: %v", err)
	}
	want := "xpub661MyMwAqRbcFW31YEwpkMuc5THy2PSt5bDMsktWQcFF8syAmRUapSCGu8ED9W6oDMSgv6Zz8idoc4a6mr8BDzTJY47LJhkJ8UB7WEGuduB"
	if got := master.Neuter().String(); got != want {
		t.Errorf("master xpub = %s, want %s", got, want)
	}
}

func TestDeriveChild(t *testing.T) {
	master := testMaster(t, &chaincfg.MainNetParams)

	child, err := master.DeriveChild(0)
	if err != nil {
		t.Fatalf("DeriveChild(0) error: %v", err)
	}
	if child.Depth() != 1 {
		t.Errorf("child depth = %d, want 1", child.Depth())
	}
	if !child.IsPrivate() {
		t.Error("child derived from private key should be private")
	}

	child2, err := master.DeriveChild(1)
	if err != nil {
		t.Fatalf("DeriveChild(1) error: %v", err)
	}
	if bytes.Equal(child.PrivateKeyBytes(), child2.PrivateKeyBytes()) {
		t.Error("different indices should produce different keys")
	}
}

func TestDeriveChild_HardenedFromPublic(t *testing.T) {
	pub := testMaster(t, &chaincfg.MainNetParams).Neuter()
	if _, err := pub.DeriveChild(bip32.FirstHardenedChild); !errors.Is(err, ErrPublicDerivation) {
		t.Errorf("expected ErrPublicDerivation, got: %v", err)
	}
}

func TestDeriveAccount_Depth(t *testing.T) {
	acct, err := testMaster(t, &chaincfg.TestNet3Params).DeriveAccount(AddressLegacy, 0)
	if err != nil {
		t.Fatalf("DeriveAccount() error: %v", err)
	}
	if acct.Depth() != 3 {
		t.Errorf("account depth = %d, want 3", acct.Depth())
	}
}

func TestNeuter_PublicDerivationMatchesPrivate(t *testing.T) {
	acct, err := testMaster(t, &chaincfg.MainNetParams).DeriveAccount(AddressSegwit, 0)
	if err != nil {
		t.Fatalf("DeriveAccount() error: %v", err)
	}

	privChild, err := acct.DerivePath(ChangeExternal, 7)
	if err != nil {
		t.Fatalf("DerivePath() error: %v", err)
	}
	pubChild, err := acct.Neuter().DerivePath(ChangeExternal, 7)
	if err != nil {
		t.Fatalf("DerivePath() on neutered key error: %v", err)
	}

	if !bytes.Equal(privChild.PublicKeyBytes(), pubChild.PublicKeyBytes()) {
		t.Error("public derivation should match private derivation")
	}
	if pubChild.IsPrivate() || pubChild.PrivateKeyBytes() != nil {
		t.Error("neutered child should not carry a private key")
	}
	if _, err := pubChild.Signer(); err == nil {
		t.Error("Signer() from public key should return error")
	}
}

func TestString_NetworkVersion(t *testing.T) {
	tests := []struct {
		params  *chaincfg.Params
		pubPref string
		prvPref string
	}{
		{&chaincfg.MainNetParams, "xpub", "xprv"},
		{&chaincfg.TestNet3Params, "tpub", "tprv"},
	}
	for _, tt := range tests {
		master := testMaster(t, tt.params)
		if s := master.String(); !strings.HasPrefix(s, tt.prvPref) {
			t.Errorf("%s private = %s, want prefix %s", tt.params.Name, s, tt.prvPref)
		}
		if s := master.Neuter().String(); !strings.HasPrefix(s, tt.pubPref) {
			t.Errorf("%s public = %s, want prefix %s", tt.params.Name, s, tt.pubPref)
		}
	}
}

func TestParseExtendedKey(t *testing.T) {
	acct, err := testMaster(t, &chaincfg.TestNet3Params).DeriveAccount(AddressLegacy, 0)
	if err != nil {
		t.Fatalf("DeriveAccount() error: %v", err)
	}
	tpub := acct.Neuter().String()

	parsed, err := ParseExtendedKey(tpub, &chaincfg.TestNet3Params)
	if err != nil {
		t.Fatalf("ParseExtendedKey() error: %v", err)
	}
	if !bytes.Equal(parsed.PublicKeyBytes(), acct.PublicKeyBytes()) {
		t.Error("parsed key should match original")
	}

	if _, err := ParseExtendedKey(tpub, &chaincfg.MainNetParams); !errors.Is(err, ErrWrongNetworkKey) {
		t.Errorf("expected ErrWrongNetworkKey, got: %v", err)
	}
	if _, err := ParseExtendedKey("tpubgarbage", &chaincfg.TestNet3Params); err == nil {
		t.Error("garbage key should not parse")
	}
}

func TestParseAddressType(t *testing.T) {
	tests := []struct {
		in   string
		want AddressType
		ok   bool
	}{
		{"", AddressLegacy, true},
		{"legacy", AddressLegacy, true},
		{"segwit", AddressSegwit, true},
		{"taproot", "", false},
	}
	for _, tt := range tests {
		got, err := ParseAddressType(tt.in)
		if (err == nil) != tt.ok {
			t.Errorf("ParseAddressType(%q) error = %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseAddressType(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
