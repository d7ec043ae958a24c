package crypto

import (
	"bytes"
	"crypto/sha256"
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
)

func keyOne(t *testing.T) *PrivateKey {
	t.Helper()
	b := make([]byte, 32)
	b[31] = 1
	key, err := PrivateKeyFromBytes(b)
	if err != nil {
		t.Fatalf("PrivateKeyFromBytes() error: %v", err)
	}
	return key
}

func keyTwo(t *testing.T) *PrivateKey {
	t.Helper()
	b := make([]byte, 32)
	b[31] = 2
	key, err := PrivateKeyFromBytes(b)
	if err != nil {
		t.Fatalf("PrivateKeyFromBytes() error: %v", err)
	}
	return key
}

func TestPrivateKeyFromBytes(t *testing.T) {
	key := keyOne(t)

	if pub := key.PublicKey(); len(pub) != 33 {
		t.Errorf("PublicKey() length = %d, want 33", len(pub))
	}
	if ser := key.Serialize(); len(ser) != 32 {
		t.Errorf("Serialize() length = %d, want 32", len(ser))
	}
	if bytes.Equal(key.Serialize(), keyTwo(t).Serialize()) {
		t.Error("distinct scalars should give distinct keys")
	}
}

func TestCopy_Independent(t *testing.T) {
	key, err := PrivateKeyFromWIF("5HueCGU8rMjxEXxiPuD5BDku4MkFqeZyd4dZ1jvhTVqvbTLvyTJ", &chaincfg.MainNetParams)
	if err != nil {
		t.Fatalf("PrivateKeyFromWIF() error: %v", err)
	}
	cp := key.Copy()
	if !bytes.Equal(cp.PublicKey(), key.PublicKey()) || cp.Compressed() != key.Compressed() {
		t.Fatal("copy should keep the scalar and public key encoding")
	}

	cp.Zero()
	if bytes.Equal(key.Serialize(), make([]byte, 32)) {
		t.Error("zeroing the copy should not clear the original")
	}
}

func TestPrivateKeyFromBytes_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", []byte{}},
		{"too short", make([]byte, 16)},
		{"too long", make([]byte, 64)},
		{"zero scalar", make([]byte, 32)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := PrivateKeyFromBytes(tt.data); err == nil {
				t.Error("expected error for invalid key")
			}
		})
	}
}

func TestWIF(t *testing.T) {
	key := keyOne(t)

	wif, err := key.WIF(&chaincfg.MainNetParams)
	if err != nil {
		t.Fatalf("WIF() error: %v", err)
	}
	if wif != "KwDiBf89QgGbjEhKnhXJuH7LrciVrZi3qYjgd9M7rFU73sVHnoWn" {
		t.Errorf("WIF() = %s", wif)
	}

	restored, err := PrivateKeyFromWIF(wif, &chaincfg.MainNetParams)
	if err != nil {
		t.Fatalf("PrivateKeyFromWIF() error: %v", err)
	}
	if !bytes.Equal(restored.PublicKey(), key.PublicKey()) {
		t.Error("restored key should have same public key")
	}
	if !restored.Compressed() {
		t.Error("restored key should be compressed")
	}
}

func TestPrivateKeyFromWIF_WrongNetwork(t *testing.T) {
	key := keyOne(t)
	wif, err := key.WIF(&chaincfg.MainNetParams)
	if err != nil {
		t.Fatalf("WIF() error: %v", err)
	}
	if _, err := PrivateKeyFromWIF(wif, &chaincfg.TestNet3Params); err == nil {
		t.Error("mainnet WIF should be rejected on testnet")
	}
	if _, err := PrivateKeyFromWIF("not-a-wif", &chaincfg.MainNetParams); err == nil {
		t.Error("garbage WIF should be rejected")
	}
}

func TestSign_Verify(t *testing.T) {
	key := keyOne(t)
	hash := sha256.Sum256([]byte("spend"))

	sig, err := key.Sign(hash[:])
	if err != nil {
		t.Fatalf("Sign() error: %v", err)
	}
	if !VerifySignature(hash[:], sig, key.PublicKey()) {
		t.Error("signature should verify")
	}

	other := sha256.Sum256([]byte("other"))
	if VerifySignature(other[:], sig, key.PublicKey()) {
		t.Error("signature should not verify for a different hash")
	}

	if VerifySignature(hash[:], sig, keyTwo(t).PublicKey()) {
		t.Error("signature should not verify for a different key")
	}
}

func TestSign_BadHashLength(t *testing.T) {
	key := keyOne(t)
	if _, err := key.Sign([]byte("short")); err == nil {
		t.Error("expected error for short hash")
	}
}

func TestZero(t *testing.T) {
	key := keyOne(t)
	key.Zero()
	if !bytes.Equal(key.Serialize(), make([]byte, 32)) {
		t.Error("Zero() should clear the scalar")
	}
}
