package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
)

// Flags holds the global command-line flags. Command-specific flags are
// parsed by the command itself from Args.
type Flags struct {
	Help    bool
	Version bool

	Network string
	DataDir string
	Config  string

	LogLevel string
	LogFile  string
	LogJSON  bool

	// Remaining args: the command and its own flags.
	Args []string

	SetLogJSON bool
}

// ParseFlags parses the global flags in args (without the program name).
// Parsing stops at the first non-flag argument, the command name.
func ParseFlags(args []string) (*Flags, error) {
	f := &Flags{}
	fs := flag.NewFlagSet("utxowallet-cli", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.BoolVar(&f.Help, "help", false, "Show help message")
	fs.BoolVar(&f.Help, "h", false, "Show help message (shorthand)")
	fs.BoolVar(&f.Version, "version", false, "Show version information")

	fs.StringVar(&f.Network, "network", "", "Network: mainnet, testnet, signet or regtest")
	fs.BoolFunc("testnet", "Shorthand for --network=testnet", func(string) error {
		f.Network = string(Testnet)
		return nil
	})
	fs.StringVar(&f.DataDir, "datadir", "", "Data directory path")
	fs.StringVar(&f.Config, "config", "", "Config file path")
	fs.StringVar(&f.Config, "c", "", "Config file path (shorthand)")

	fs.StringVar(&f.LogLevel, "log-level", "", "Log level (trace, debug, info, warn, error, off)")
	fs.StringVar(&f.LogFile, "log-file", "", "Log file path")
	fs.BoolVar(&f.LogJSON, "log-json", false, "Output logs as JSON")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			f.Help = true
			return f, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	f.SetLogJSON = isFlagSet(fs, "log-json")
	f.Args = fs.Args()
	return f, nil
}

// ApplyFlags applies command-line flags to a Config struct.
func ApplyFlags(cfg *Config, f *Flags) error {
	if f.Network != "" {
		n, err := ParseNetwork(f.Network)
		if err != nil {
			return err
		}
		cfg.Network = n
	}
	if f.DataDir != "" {
		cfg.DataDir = f.DataDir
	}
	if f.LogLevel != "" {
		cfg.Log.Level = f.LogLevel
	}
	if f.LogFile != "" {
		cfg.Log.File = f.LogFile
	}
	if f.SetLogJSON {
		cfg.Log.JSON = f.LogJSON
	}
	return nil
}

// isFlagSet checks if a flag was explicitly set.
func isFlagSet(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

// Load builds the configuration with the following precedence:
// 1. Default values
// 2. Config file (created with defaults on first start)
// 3. Environment (read through lookup; nil means os.LookupEnv)
// 4. Command-line flags
func Load(flags *Flags, lookup LookupFunc) (*Config, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	// The network and data directory must be known before the file is read.
	network := Testnet
	if v, ok := lookup(EnvNetwork); ok && v != "" {
		n, err := ParseNetwork(v)
		if err != nil {
			return nil, err
		}
		network = n
	}
	if flags.Network != "" {
		n, err := ParseNetwork(flags.Network)
		if err != nil {
			return nil, err
		}
		network = n
	}

	cfg := Default(network)
	if v, ok := lookup(EnvDataDir); ok && v != "" {
		cfg.DataDir = v
	}
	if flags.DataDir != "" {
		cfg.DataDir = flags.DataDir
	}
	cfg.DataDir = expandHome(cfg.DataDir)

	if err := EnsureDataDirs(cfg); err != nil {
		return nil, fmt.Errorf("ensuring data dirs: %w", err)
	}

	configPath := flags.Config
	if configPath == "" {
		configPath = cfg.ConfigFile()
	}
	fileValues, err := LoadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("%w: loading config file: %v", ErrConfiguration, err)
	}
	if err := ApplyFileConfig(cfg, fileValues); err != nil {
		return nil, err
	}
	if err := ApplyEnv(cfg, lookup); err != nil {
		return nil, err
	}
	if err := ApplyFlags(cfg, flags); err != nil {
		return nil, err
	}
	cfg.DataDir = expandHome(cfg.DataDir)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	// The file or environment may have moved the network or datadir.
	if err := EnsureDataDirs(cfg); err != nil {
		return nil, fmt.Errorf("ensuring data dirs: %w", err)
	}
	return cfg, nil
}

// EnsureDataDirs creates the data directory structure and a default config
// file if they don't already exist. Safe to call on every start.
func EnsureDataDirs(cfg *Config) error {
	dirs := []string{
		cfg.DataDir,
		cfg.ChainDataDir(),
		cfg.KeystoreDir(),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}

	configPath := cfg.ConfigFile()
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := WriteDefaultConfig(configPath, cfg.Network); err != nil {
			return fmt.Errorf("writing config file: %w", err)
		}
	}
	return nil
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return home + path[1:]
}
