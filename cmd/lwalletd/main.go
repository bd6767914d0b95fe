// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Command lwalletd is a headless light Bitcoin wallet daemon: it speaks the
// P2P wire protocol directly to full nodes, syncs headers and BIP157/158
// compact filters, and discovers and tracks a wallet's UTXO set without
// ever downloading the full chain.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/chainlight/lwallet/client"
	"github.com/chainlight/lwallet/keys"
	"github.com/chainlight/lwallet/wallet"
	"github.com/chainlight/lwallet/walletdb"
)

// rescanInterval is how often the daemon re-runs an incremental UTXO scan
// once the initial sync completes.
const rescanInterval = 30 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	initLogRotator(cfg.logFilePath())
	useLoggers()
	if err := setLogLevels(cfg.DebugLevel); err != nil {
		return fmt.Errorf("setting log level: %w", err)
	}
	log.Infof("lwalletd starting, network=%s datadir=%s", cfg.Network, cfg.DataDir)

	for _, dir := range []string{filepath.Dir(cfg.headersDbPath()), filepath.Dir(cfg.walletDbPath())} {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	seed, err := loadOrCreateSeed(cfg.seedFilePath())
	if err != nil {
		return fmt.Errorf("loading wallet seed: %w", err)
	}
	master, err := keys.NewMaster(seed)
	if err != nil {
		return fmt.Errorf("deriving master key: %w", err)
	}

	db, err := walletdb.Open(cfg.walletDbPath())
	if err != nil {
		return fmt.Errorf("opening wallet database: %w", err)
	}
	defer db.Close()

	repo, err := wallet.Open(cfg.params, db, cfg.WalletID, master)
	if err != nil {
		return fmt.Errorf("opening wallet: %w", err)
	}

	c, err := client.New(client.Config{
		Params:           cfg.params,
		HeaderStorePath:  cfg.headersDbPath(),
		Seeds:            cfg.Seeds,
		MaxConnections:   cfg.MaxConnections,
		DiscoveryEnabled: cfg.DiscoveryEnabled,
		OnStateChanged: func(phase client.Phase) {
			log.Infof("sync phase: %s", phase)
		},
		OnReorg: func(oldHeight, newHeight int, _ chainhash.Hash) {
			log.Warnf("reorg detected: rewound from height %d to %d", oldHeight, newHeight)
			if err := repo.HandleReorg(int32(newHeight) + 1); err != nil {
				log.Errorf("handling reorg in wallet: %v", err)
			}
		},
	})
	if err != nil {
		return fmt.Errorf("constructing client: %w", err)
	}
	repo.AttachChain(c)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		log.Infof("received interrupt, shutting down")
		cancel()
	}()

	if err := c.Start(ctx); err != nil {
		return fmt.Errorf("starting client: %w", err)
	}
	defer c.Stop()

	repo.OnProgress = func(scanned, total int32, status string) {
		log.Infof("scan progress: %d/%d (%s)", scanned, total, status)
	}

	if err := repo.DiscoverUtxos(ctx, cfg.RescanFull, 0); err != nil {
		log.Warnf("initial utxo discovery: %v", err)
	}

	ticker := time.NewTicker(rescanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Infof("lwalletd shutting down")
			return nil
		case <-ticker.C:
			if err := repo.DiscoverUtxos(ctx, false, repo.LastScannedHeight()); err != nil {
				log.Warnf("incremental utxo discovery: %v", err)
			}
		}
	}
}
