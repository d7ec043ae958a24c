// derive_key.go prints the addresses controlled by a WIF private key file.
// Usage: go run scripts/derive_key.go [--network testnet] <keyfile>
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/Klingon-tech/utxowallet/config"
	"github.com/Klingon-tech/utxowallet/pkg/crypto"
)

func main() {
	network := flag.String("network", "testnet", "mainnet, testnet, signet or regtest")
	flag.Parse()
	if flag.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: derive_key [--network net] <keyfile>")
		os.Exit(1)
	}
	n, err := config.ParseNetwork(*network)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	params, _ := n.Params()

	data, err := os.ReadFile(flag.Arg(0))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	key, err := crypto.PrivateKeyFromWIF(strings.TrimSpace(string(data)), params)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer key.Zero()

	addrs, err := key.Addresses(params)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Printf("PubKey: %x\n", key.PublicKey())
	for _, a := range addrs {
		fmt.Printf("Address: %s\n", a.EncodeAddress())
	}
}
