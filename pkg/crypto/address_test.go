package crypto

import (
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
)

func TestAddresses_KnownKey(t *testing.T) {
	key := keyOne(t)

	addrs, err := key.Addresses(&chaincfg.MainNetParams)
	if err != nil {
		t.Fatalf("Addresses() error: %v", err)
	}
	if len(addrs) != 2 {
		t.Fatalf("Addresses() returned %d, want 2", len(addrs))
	}
	if got := addrs[0].EncodeAddress(); got != "1BgGZ9tcN4rm9KBzDn7KprQz87SZ26SAMH" {
		t.Errorf("p2pkh = %s", got)
	}
	if got := addrs[1].EncodeAddress(); got != "bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4" {
		t.Errorf("p2wpkh = %s", got)
	}
}

func TestP2WPKHAddress_Testnet(t *testing.T) {
	key := keyOne(t)
	addr, err := P2WPKHAddress(key.PublicKey(), &chaincfg.TestNet3Params)
	if err != nil {
		t.Fatalf("P2WPKHAddress() error: %v", err)
	}
	if got := addr.EncodeAddress(); got != "tb1qw508d6qejxtdg4y5r3zarvary0c5xw7kxpjzsx" {
		t.Errorf("p2wpkh testnet = %s", got)
	}
}

func TestP2WPKHAddress_Uncompressed(t *testing.T) {
	if _, err := P2WPKHAddress(make([]byte, 65), &chaincfg.MainNetParams); err == nil {
		t.Error("expected error for uncompressed key")
	}
}
