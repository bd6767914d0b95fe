// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jessevdk/go-flags"

	"github.com/chainlight/lwallet/chaincfg"
)

const (
	defaultConfigFilename = "lwalletd.conf"
	defaultLogFilename    = "lwalletd.log"
	defaultHeadersDbName  = "headers.bin"
	defaultWalletDbName   = "wallet.ldb"
	defaultSeedFilename   = "seed.dat"
	defaultMaxConnections = 8
	defaultWalletID       = "default"
)

// config holds every user-settable option, populated from the config file
// then overridden by command-line flags.
type config struct {
	DataDir          string   `short:"b" long:"datadir" description:"Directory to store wallet and header data"`
	ConfigFile       string   `short:"C" long:"configfile" description:"Path to configuration file"`
	LogDir           string   `long:"logdir" description:"Directory to log output"`
	DebugLevel       string   `short:"d" long:"debuglevel" description:"Logging level {trace, debug, info, warn, error, critical}"`
	Network          string   `long:"network" description:"Network to connect to {mainnet, testnet, regtest}"`
	Seeds            []string `long:"seed" description:"Seed peer address (host:port); may be given multiple times"`
	MaxConnections   int      `long:"maxconnections" description:"Maximum number of simultaneous peer connections"`
	DiscoveryEnabled bool     `long:"discovery" description:"Enable addr/addrv2-driven peer discovery"`
	WalletID         string   `long:"walletid" description:"Identifier for the wallet's persisted state"`
	RescanFull       bool     `long:"rescan" description:"Force a full rescan from genesis on startup"`

	params *chaincfg.Params
}

// defaultConfig returns a config populated with defaults, before the config
// file or flags are applied.
func defaultConfig() *config {
	dataDir := defaultDataDir()
	return &config{
		DataDir:        dataDir,
		ConfigFile:     filepath.Join(dataDir, defaultConfigFilename),
		LogDir:         filepath.Join(dataDir, "logs"),
		DebugLevel:     "info",
		Network:        "mainnet",
		MaxConnections: defaultMaxConnections,
		WalletID:       defaultWalletID,
	}
}

// defaultDataDir returns the OS-appropriate default application data
// directory.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".lwalletd")
	}
	return filepath.Join(home, ".lwalletd")
}

// loadConfig parses command-line flags (and, if present, the config file)
// into a config, resolving the network name into chaincfg.Params.
func loadConfig() (*config, error) {
	cfg := defaultConfig()

	parser := flags.NewParser(cfg, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		return nil, err
	}

	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory %s: %w", cfg.DataDir, err)
	}

	switch cfg.Network {
	case "mainnet":
		cfg.params = chaincfg.MainNetParams()
	case "testnet":
		cfg.params = chaincfg.TestNetParams()
	case "regtest":
		cfg.params = chaincfg.RegTestParams()
	default:
		return nil, fmt.Errorf("unknown network %q", cfg.Network)
	}

	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = defaultMaxConnections
	}

	return cfg, nil
}

func (c *config) headersDbPath() string {
	return filepath.Join(c.DataDir, c.Network, defaultHeadersDbName)
}

func (c *config) walletDbPath() string {
	return filepath.Join(c.DataDir, c.Network, defaultWalletDbName)
}

func (c *config) seedFilePath() string {
	return filepath.Join(c.DataDir, c.Network, defaultSeedFilename)
}

func (c *config) logFilePath() string {
	return filepath.Join(c.LogDir, c.Network, defaultLogFilename)
}
