// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package wallet owns the UTXO set and address cursor for a single wallet
// and orchestrates compact-filter-driven scanning: building the watched
// script set, probing filters in batches, fetching and parsing matching
// blocks, and reconciling reorgs.
package wallet

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/decred/slog"

	"github.com/chainlight/lwallet/addr"
	"github.com/chainlight/lwallet/chaincfg"
	"github.com/chainlight/lwallet/keys"
	"github.com/chainlight/lwallet/txparse"
	"github.com/chainlight/lwallet/walletdb"
)

var log = slog.Disabled

// UseLogger sets the package-wide logger.
func UseLogger(logger slog.Logger) {
	log = logger
}

// filterBatchSize mirrors the filter sync batching window so prefetch calls
// line up with how filters actually arrive.
const filterBatchSize = 100

// progressInterval is the minimum spacing between scan_progress callbacks.
const progressInterval = 250 * time.Millisecond

// Chain is the subset of client-facade functionality scan orchestration
// needs; a real implementation is backed by headerstore/headersync/
// filtersync/peermgr collaborators.
type Chain interface {
	TipHeight() int32
	PrefetchFilters(ctx context.Context, start, end int32) error
	FilterMatchesScripts(ctx context.Context, height int32, scripts [][]byte) (bool, error)
	FetchBlock(ctx context.Context, height int32) ([]byte, error)
}

// ProgressFunc reports scan progress; status is a short human string.
type ProgressFunc func(scanned, total int32, status string)

// Repository owns a wallet's UTXO set, address cursor, and scan state.
type Repository struct {
	params *chaincfg.Params
	db     *walletdb.DB
	chain  Chain
	id     string
	master *keys.ExtendedKey

	mu       sync.Mutex
	utxos    map[string]walletdb.Utxo // keyed by "txid:vout"
	cursor   AddressCursor
	lastScan int32

	OnProgress ProgressFunc
}

// Open loads (or initializes) a wallet's persisted state from db.
func Open(params *chaincfg.Params, db *walletdb.DB, id string, master *keys.ExtendedKey) (*Repository, error) {
	r := &Repository{
		params: params,
		db:     db,
		id:     id,
		master: master,
		utxos:  map[string]walletdb.Utxo{},
	}

	utxos, err := db.Utxos(id)
	if err != nil {
		return nil, fmt.Errorf("wallet: loading utxos: %w", err)
	}
	for _, u := range utxos {
		r.utxos[outpointKey(u.Txid, u.Vout)] = u
	}

	book, err := db.AddressBook(id)
	if err != nil {
		return nil, fmt.Errorf("wallet: loading address book: %w", err)
	}
	r.cursor = AddressCursorFromBook(book)

	lastScan, err := db.LastScannedHeight(id)
	if err != nil {
		return nil, fmt.Errorf("wallet: loading last scanned height: %w", err)
	}
	r.lastScan = lastScan

	return r, nil
}

// AttachChain wires the collaborator scan orchestration pulls headers,
// filters, and blocks through. Separate from Open so a Repository can be
// constructed before its chain facade exists.
func (r *Repository) AttachChain(chain Chain) {
	r.chain = chain
}

func outpointKey(txid string, vout uint32) string {
	return fmt.Sprintf("%s:%d", txid, vout)
}

// Utxos returns a snapshot of the wallet's currently tracked UTXO set.
func (r *Repository) Utxos() []walletdb.Utxo {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]walletdb.Utxo, 0, len(r.utxos))
	for _, u := range r.utxos {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Txid != out[j].Txid {
			return out[i].Txid < out[j].Txid
		}
		return out[i].Vout < out[j].Vout
	})
	return out
}

// LastScannedHeight returns the height the most recent scan completed at.
func (r *Repository) LastScannedHeight() int32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastScan
}

// NextReceiveAddress derives and returns the next unused receive address,
// advancing the cursor's receive high-water mark and persisting it.
func (r *Repository) NextReceiveAddress() (string, error) {
	r.mu.Lock()
	index := r.cursor.NextReceiveIndex()
	r.mu.Unlock()

	ws, err := r.deriveWatchedScript(keys.ReceiveBranch, uint32(index))
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	r.cursor.MarkReceiveUsed(index)
	r.mu.Unlock()

	if err := r.persist(); err != nil {
		return "", err
	}
	return ws.address, nil
}

// NextChangeAddress derives and returns the next unused change address,
// advancing the cursor's change high-water mark and persisting it.
func (r *Repository) NextChangeAddress() (string, error) {
	r.mu.Lock()
	index := r.cursor.NextChangeIndex()
	r.mu.Unlock()

	ws, err := r.deriveWatchedScript(keys.ChangeBranch, uint32(index))
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	r.cursor.MarkChangeUsed(index)
	r.mu.Unlock()

	if err := r.persist(); err != nil {
		return "", err
	}
	return ws.address, nil
}

// watchedScript is one derived output script the scanner probes filters
// for, tagged with the branch/index/address it came from so matches can be
// attributed.
type watchedScript struct {
	script  []byte
	address string
	branch  uint32
	index   int32
}

// buildScriptSet derives the first MaxReceiveIndex receive scripts and
// MaxChangeIndex change scripts, all native segwit P2WPKH, independent of
// persisted cursor state (derivation is stateless; the cursor only tracks
// which indices have been seen paid).
func (r *Repository) buildScriptSet() ([]watchedScript, error) {
	var out []watchedScript
	for branch, count := range map[uint32]int32{keys.ReceiveBranch: MaxReceiveIndex, keys.ChangeBranch: MaxChangeIndex} {
		for i := int32(0); i < count; i++ {
			ws, err := r.deriveWatchedScript(branch, uint32(i))
			if err != nil {
				return nil, err
			}
			ws.branch = branch
			ws.index = i
			out = append(out, ws)
		}
	}
	return out, nil
}

func (r *Repository) deriveWatchedScript(branch, index uint32) (watchedScript, error) {
	child, err := keys.DeriveBIP44(r.master, r.params.CoinType, 0, branch, index)
	if err != nil {
		return watchedScript{}, fmt.Errorf("wallet: deriving branch %d index %d: %w", branch, index, err)
	}
	pkHash := addr.Hash160(child.SerializedPubKey())
	address, err := addr.EncodeP2WPKH(r.params, pkHash)
	if err != nil {
		return watchedScript{}, fmt.Errorf("wallet: encoding address: %w", err)
	}
	script, err := addr.AddressToScript(r.params, address)
	if err != nil {
		return watchedScript{}, fmt.Errorf("wallet: deriving script for %s: %w", address, err)
	}
	return watchedScript{script: script, address: address}, nil
}

// DiscoverUtxos scans from effective_start to the chain tip: every
// filterBatchSize heights, prefetches filters; for each height, tests the
// watched script set against the filter; for every matched height
// (ascending), fetches the block and extracts spends/new outputs.
func (r *Repository) DiscoverUtxos(ctx context.Context, fullRescan bool, startHeight int32) error {
	if r.chain == nil {
		return fmt.Errorf("wallet: not initialized: no chain attached")
	}

	scripts, err := r.buildScriptSet()
	if err != nil {
		return err
	}
	scriptBytes := make([][]byte, len(scripts))
	for i, ws := range scripts {
		scriptBytes[i] = ws.script
	}

	tip := r.chain.TipHeight()
	effectiveStart := r.effectiveStart(fullRescan, startHeight, tip)

	var matched []int32
	lastProgress := time.Time{}

	for h := effectiveStart; h < tip; h++ {
		if (h-effectiveStart)%filterBatchSize == 0 {
			end := h + filterBatchSize - 1
			if end >= tip {
				end = tip - 1
			}
			if err := r.chain.PrefetchFilters(ctx, h, end); err != nil {
				return fmt.Errorf("wallet: prefetching filters %d-%d: %w", h, end, err)
			}
		}

		ok, err := r.chain.FilterMatchesScripts(ctx, h, scriptBytes)
		if err != nil {
			return fmt.Errorf("wallet: testing filter at height %d: %w", h, err)
		}
		if ok {
			matched = append(matched, h)
		}

		if r.OnProgress != nil && time.Since(lastProgress) >= progressInterval {
			r.OnProgress(h-effectiveStart, tip-effectiveStart, "scanning")
			lastProgress = time.Now()
		}
	}

	for _, h := range matched {
		if err := r.applyBlockAtHeight(ctx, h, scripts); err != nil {
			return fmt.Errorf("wallet: applying block at height %d: %w", h, err)
		}
	}

	r.mu.Lock()
	r.lastScan = tip
	r.mu.Unlock()

	return r.persist()
}

// effectiveStart resolves the scan start height per the discover_utxos
// rules: full rescan uses start_height clamped to tip; otherwise resume
// from last_scanned_height if it's at least start_height, else
// start_height itself.
func (r *Repository) effectiveStart(fullRescan bool, startHeight, tip int32) int32 {
	if fullRescan {
		if startHeight > tip {
			return tip
		}
		return startHeight
	}
	r.mu.Lock()
	lastScan := r.lastScan
	r.mu.Unlock()
	if lastScan >= startHeight {
		return lastScan
	}
	return startHeight
}

// CheckBlockForTransactions runs extraction for a single newly-connected
// block.
func (r *Repository) CheckBlockForTransactions(ctx context.Context, height int32) error {
	if r.chain == nil {
		return fmt.Errorf("wallet: not initialized: no chain attached")
	}
	scripts, err := r.buildScriptSet()
	if err != nil {
		return err
	}
	if err := r.applyBlockAtHeight(ctx, height, scripts); err != nil {
		return err
	}
	r.mu.Lock()
	if height > r.lastScan {
		r.lastScan = height
	}
	r.mu.Unlock()
	return r.persist()
}

// applyBlockAtHeight fetches the block at height, extracts spends and new
// outputs paying any of scripts, and applies the update to the in-memory
// UTXO set.
func (r *Repository) applyBlockAtHeight(ctx context.Context, height int32, scripts []watchedScript) error {
	raw, err := r.chain.FetchBlock(ctx, height)
	if err != nil {
		return fmt.Errorf("fetching block: %w", err)
	}
	if raw == nil {
		log.Warnf("wallet: block at height %d unavailable (timeout/notfound), skipping", height)
		return nil
	}

	byScript := make(map[string]watchedScript, len(scripts))
	for _, ws := range scripts {
		byScript[string(ws.script)] = ws
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for scriptStr, ws := range byScript {
		result, err := txparse.ParseBlock(r.params, raw, []byte(scriptStr))
		if err != nil {
			return fmt.Errorf("parsing block: %w", err)
		}
		for _, spent := range result.Spent {
			delete(r.utxos, outpointKey(spent.TxidHex, spent.Vout))
		}
		for _, match := range result.Matched {
			if ws.branch == keys.ReceiveBranch {
				r.cursor.MarkReceiveUsed(ws.index)
			} else {
				r.cursor.MarkChangeUsed(ws.index)
			}
			key := outpointKey(match.TxidHex, match.Vout)
			r.utxos[key] = walletdb.Utxo{
				Txid:         match.TxidHex,
				Vout:         match.Vout,
				Value:        match.Value,
				ScriptPubKey: scriptStr,
				Address:      ws.address,
				BlockHeight:  height,
				Confirmed:    true,
			}
		}
	}
	return nil
}

// HandleReorg marks every UTXO recorded at or above fromHeight as
// unconfirmed without deleting it; a subsequent scan starting at
// fromHeight reconfirms or drops it.
func (r *Repository) HandleReorg(fromHeight int32) error {
	r.mu.Lock()
	for key, u := range r.utxos {
		if u.BlockHeight >= fromHeight {
			u.Confirmed = false
			r.utxos[key] = u
		}
	}
	r.mu.Unlock()
	return r.persist()
}

// persist writes the UTXO set, address cursor, and last-scanned height to
// the wallet's key-value store. Must be called without r.mu held.
func (r *Repository) persist() error {
	r.mu.Lock()
	utxos := make([]walletdb.Utxo, 0, len(r.utxos))
	for _, u := range r.utxos {
		utxos = append(utxos, u)
	}
	cursor := r.cursor
	lastScan := r.lastScan
	r.mu.Unlock()

	if err := r.db.SetUtxos(r.id, utxos); err != nil {
		return err
	}
	if err := r.db.SetAddressBook(r.id, cursor.ToBook()); err != nil {
		return err
	}
	return r.db.SetLastScannedHeight(r.id, lastScan)
}
