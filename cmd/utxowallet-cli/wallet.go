package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/Klingon-tech/utxowallet/internal/wallet"
)

func (a *app) keystore() (*wallet.Keystore, error) {
	return wallet.NewKeystore(a.cfg.KeystoreDir())
}

func (a *app) addressType(flagValue string) (wallet.AddressType, error) {
	if flagValue == "" {
		flagValue = a.cfg.Wallet.AddressType
	}
	return wallet.ParseAddressType(flagValue)
}

func (a *app) cmdGenerate(args []string) error {
	fs := newFlagSet("generate")
	typ := fs.String("type", "", "Address type: legacy or segwit")
	index := fs.Uint("index", 0, "External address index")
	save := fs.String("save", "", "Save the seed phrase to the keystore under this name")
	if err := fs.Parse(args); err != nil {
		return err
	}
	idx, err := addressIndex(*index)
	if err != nil {
		return err
	}
	addrType, err := a.addressType(*typ)
	if err != nil {
		return err
	}

	d := wallet.NewDeriver(a.params, addrType)
	material, err := wallet.Generate(d, idx)
	if err != nil {
		return err
	}
	if *save != "" {
		if err := a.storeWallet(*save, material.Mnemonic, d, idx); err != nil {
			return err
		}
	}
	return printJSON(material)
}

func (a *app) cmdWallet(args []string) error {
	const help = "usage: utxowallet-cli wallet <create|import|list|address|new-address|export-key> [flags]"
	if len(args) < 1 {
		return errors.New(help)
	}
	switch args[0] {
	case "create":
		return a.cmdWalletCreate(args[1:])
	case "import":
		return a.cmdWalletImport(args[1:])
	case "list":
		return a.cmdWalletList()
	case "address":
		return a.cmdWalletAddress(args[1:])
	case "new-address":
		return a.cmdWalletNewAddress(args[1:])
	case "export-key":
		return a.cmdWalletExportKey(args[1:])
	}
	return fmt.Errorf("unknown wallet command: %s\n%s", args[0], help)
}

func (a *app) cmdWalletCreate(args []string) error {
	fs := newFlagSet("wallet create")
	name := fs.String("name", "", "Wallet name")
	typ := fs.String("type", "", "Address type: legacy or segwit")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *name == "" {
		return errors.New("usage: utxowallet-cli wallet create --name <name> [--type legacy|segwit]")
	}
	addrType, err := a.addressType(*typ)
	if err != nil {
		return err
	}

	mnemonic, err := wallet.GenerateMnemonic()
	if err != nil {
		return fmt.Errorf("generate mnemonic: %w", err)
	}
	fmt.Println("Mnemonic (write this down!):")
	fmt.Printf("  %s\n\n", mnemonic)

	return a.storeWallet(*name, mnemonic, wallet.NewDeriver(a.params, addrType), 0)
}

func (a *app) cmdWalletImport(args []string) error {
	fs := newFlagSet("wallet import")
	name := fs.String("name", "", "Wallet name")
	mnemonic := fs.String("mnemonic", "", "BIP-39 mnemonic")
	typ := fs.String("type", "", "Address type: legacy or segwit")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *name == "" || *mnemonic == "" {
		return errors.New(`usage: utxowallet-cli wallet import --name <name> --mnemonic "word1 word2 ..."`)
	}
	if !wallet.ValidateMnemonic(*mnemonic) {
		return wallet.ErrInvalidSeed
	}
	addrType, err := a.addressType(*typ)
	if err != nil {
		return err
	}
	return a.storeWallet(*name, *mnemonic, wallet.NewDeriver(a.params, addrType), 0)
}

// storeWallet encrypts mnemonic under a new password and records the
// address at the given external index.
func (a *app) storeWallet(name, mnemonic string, d *wallet.Deriver, index uint32) error {
	ks, err := a.keystore()
	if err != nil {
		return err
	}
	xpub, err := d.ExtendedPublicKey(mnemonic)
	if err != nil {
		return err
	}
	addr, err := d.Address(mnemonic, index)
	if err != nil {
		return err
	}

	password, err := readNewPassword()
	if err != nil {
		return err
	}
	defer zero(password)

	if err := ks.Create(name, mnemonic, password, wallet.DefaultParams(), wallet.WalletInfo{
		Network:     string(a.cfg.Network),
		AddressType: d.AddressType(),
		Xpub:        xpub,
	}); err != nil {
		return fmt.Errorf("create wallet: %w", err)
	}
	if err := ks.AddAccount(name, wallet.AccountEntry{
		Index:   index,
		Change:  wallet.ChangeExternal,
		Name:    "Default",
		Address: addr.EncodeAddress(),
		Path:    wallet.FormatPath(d.AddressType(), a.params.HDCoinType, 0, wallet.ChangeExternal, index),
	}); err != nil {
		return fmt.Errorf("add account: %w", err)
	}
	if err := ks.SetExternalIndex(name, index+1); err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Wallet saved: %s\n", name)
	fmt.Fprintf(os.Stderr, "Address: %s\n", addr.EncodeAddress())
	return nil
}

func (a *app) cmdWalletList() error {
	ks, err := a.keystore()
	if err != nil {
		return err
	}
	names, err := ks.List()
	if err != nil {
		return fmt.Errorf("list wallets: %w", err)
	}
	if len(names) == 0 {
		fmt.Println("No wallets found.")
		return nil
	}
	for _, name := range names {
		info, err := ks.Info(name)
		if err != nil {
			fmt.Printf("%s (unreadable: %v)\n", name, err)
			continue
		}
		fmt.Printf("%s  %s  %s\n", name, info.Network, info.AddressType)
	}
	return nil
}

// openWallet returns the keystore and metadata of a wallet that belongs to
// the configured network.
func (a *app) openWallet(name string) (*wallet.Keystore, *wallet.WalletInfo, error) {
	ks, err := a.keystore()
	if err != nil {
		return nil, nil, err
	}
	info, err := ks.Info(name)
	if err != nil {
		return nil, nil, err
	}
	if info.Network != string(a.cfg.Network) {
		return nil, nil, fmt.Errorf("wallet %q belongs to %s, not %s", name, info.Network, a.cfg.Network)
	}
	return ks, info, nil
}

func (a *app) cmdWalletAddress(args []string) error {
	fs := newFlagSet("wallet address")
	name := fs.String("wallet", "", "Wallet name")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *name == "" {
		return errors.New("usage: utxowallet-cli wallet address --wallet <name>")
	}
	ks, _, err := a.openWallet(*name)
	if err != nil {
		return err
	}
	accounts, err := ks.ListAccounts(*name)
	if err != nil {
		return fmt.Errorf("list accounts: %w", err)
	}
	if len(accounts) == 0 {
		fmt.Println("No addresses found.")
		return nil
	}
	for _, acct := range accounts {
		fmt.Printf("  [%d] %s  %s\n", acct.Index, acct.Address, acct.Path)
	}
	return nil
}

// cmdWalletNewAddress derives the next receiving address from the stored
// xpub, so no password is needed.
func (a *app) cmdWalletNewAddress(args []string) error {
	fs := newFlagSet("wallet new-address")
	name := fs.String("wallet", "", "Wallet name")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *name == "" {
		return errors.New("usage: utxowallet-cli wallet new-address --wallet <name>")
	}
	ks, info, err := a.openWallet(*name)
	if err != nil {
		return err
	}
	next, err := ks.GetExternalIndex(*name)
	if err != nil {
		return err
	}
	addr, err := wallet.AddressFromExtendedKey(info.Xpub, info.AddressType, a.params, wallet.ChangeExternal, next)
	if err != nil {
		return fmt.Errorf("derive address: %w", err)
	}
	if err := ks.AddAccount(*name, wallet.AccountEntry{
		Index:   next,
		Change:  wallet.ChangeExternal,
		Name:    fmt.Sprintf("Address %d", next),
		Address: addr.EncodeAddress(),
		Path:    wallet.FormatPath(info.AddressType, a.params.HDCoinType, 0, wallet.ChangeExternal, next),
	}); err != nil {
		return fmt.Errorf("add account: %w", err)
	}
	if err := ks.IncrementExternalIndex(*name); err != nil {
		return fmt.Errorf("increment index: %w", err)
	}
	fmt.Printf("New address [%d]: %s\n", next, addr.EncodeAddress())
	return nil
}

func (a *app) cmdWalletExportKey(args []string) error {
	fs := newFlagSet("wallet export-key")
	name := fs.String("wallet", "", "Wallet name")
	index := fs.Uint("index", 0, "External address index")
	output := fs.String("output", "", "Write the WIF key to this file instead of stdout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *name == "" {
		return errors.New("usage: utxowallet-cli wallet export-key --wallet <name> [--index n] [--output path]")
	}
	idx, err := addressIndex(*index)
	if err != nil {
		return err
	}
	kp, err := a.walletKeyPair(*name, idx)
	if err != nil {
		return err
	}
	defer kp.Key.Zero()

	wif, err := kp.Key.WIF(a.params)
	if err != nil {
		return err
	}
	if *output == "" {
		fmt.Println(wif)
		return nil
	}
	if err := os.WriteFile(*output, []byte(wif+"\n"), 0600); err != nil {
		return fmt.Errorf("write key file: %w", err)
	}
	fmt.Printf("Exported key to: %s\n", *output)
	fmt.Printf("  Path:    %s\n", kp.Path)
	fmt.Printf("  Address: %s\n", kp.Address.EncodeAddress())
	return nil
}

// walletKeyPair decrypts a wallet and derives the key at an external index.
func (a *app) walletKeyPair(name string, index uint32) (*wallet.KeyPair, error) {
	ks, info, err := a.openWallet(name)
	if err != nil {
		return nil, err
	}
	password, err := readPassword("Enter password: ")
	if err != nil {
		return nil, fmt.Errorf("read password: %w", err)
	}
	defer zero(password)

	mnemonic, err := ks.Load(name, password)
	if err != nil {
		return nil, err
	}
	return wallet.NewDeriver(a.params, info.AddressType).KeyPair(mnemonic, wallet.ChangeExternal, index)
}

// loadWalletKey fills the sender address and key of the send config from
// a keystore wallet.
func (a *app) loadWalletKey(name string, index uint32) error {
	kp, err := a.walletKeyPair(name, index)
	if err != nil {
		return err
	}
	defer kp.Key.Zero()

	wif, err := kp.Key.WIF(a.params)
	if err != nil {
		return err
	}
	a.cfg.Send.From = kp.Address.EncodeAddress()
	a.cfg.Send.FromKey = wif
	return nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
