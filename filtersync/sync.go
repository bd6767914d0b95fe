// Copyright (c) 2016-2017 The btcsuite developers
// Copyright (c) 2018 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package filtersync implements BIP157/BIP158 compact filter
// synchronization: checkpoint retrieval, filter-header chain validation,
// filter fetching with backpressure, and filter/script membership testing.
package filtersync

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/decred/slog"

	"github.com/chainlight/lwallet/gcs"
	"github.com/chainlight/lwallet/headerstore"
	"github.com/chainlight/lwallet/wire"
)

var log = slog.Disabled

// UseLogger sets the package-wide logger used by this package.
func UseLogger(logger slog.Logger) { log = logger }

// filterP is the BIP158 basic filter's false-positive rate parameter,
// 1/2**filterP.
const filterP = 19

// FilterBatchSize bounds the number of in-flight filter requests.
const FilterBatchSize = 100

// filterCachePollInterval and filterCachePollBudget bound how long
// FilterMatchesScripts will poll for a requested-but-not-yet-arrived
// filter.
const (
	filterCachePollInterval = 100 * time.Millisecond
	filterCachePollBudget   = 5 * time.Second
)

// backpressurePollInterval and backpressurePollBudget bound how long a
// filter request blocks waiting for in-flight capacity to free up.
const (
	backpressurePollInterval = 100 * time.Millisecond
	backpressurePollBudget   = 3 * time.Second
)

// Peer is the minimal surface filtersync needs from a connected peer.
type Peer interface {
	SendGetCFCheckpt(stopHash chainhash.Hash) error
	SendGetCFHeaders(startHeight uint32, stopHash chainhash.Hash) error
	SendGetCFilters(startHeight, stopHeight uint32) error
}

// Syncer tracks filter-header checkpoints, the reconstructed filter-header
// chain, and a cache of decoded filters. The filter cache has no size bound;
// nothing evicts from it.
type Syncer struct {
	store *headerstore.Store

	mu sync.Mutex

	checkpoints map[int]chainhash.Hash // height -> filter header, at checkpoint spacing

	filterHeaders map[int]chainhash.Hash // height -> filter header
	lastFilterHeight int
	lastFilterHeader chainhash.Hash

	filters        map[int]*gcs.Filter
	pendingFilters map[chainhash.Hash]int // block hash -> requested height, in FIFO order
	pendingOrder   []chainhash.Hash
	inFlight       int
}

// New constructs a Syncer bound to a header store, used to resolve block
// hashes for filter requests and SipHash keys.
func New(store *headerstore.Store) *Syncer {
	return &Syncer{
		store:            store,
		checkpoints:      make(map[int]chainhash.Hash),
		filterHeaders:    make(map[int]chainhash.Hash),
		filters:          make(map[int]*gcs.Filter),
		pendingFilters:   make(map[chainhash.Hash]int),
		lastFilterHeight: -1,
	}
}

// RequestCheckpoints sends getcfcheckpt for the basic filter type, stopping
// at the header one below the current tip (per the checkpoint retrieval
// contract: stop-hash = header at tip-1).
func (s *Syncer) RequestCheckpoints(peer Peer) error {
	tip := s.store.TipHeight()
	if tip <= 0 {
		return fmt.Errorf("filtersync: no tip to checkpoint against")
	}
	stopHash, ok := s.store.GetBlockHash(tip - 1)
	if !ok {
		return fmt.Errorf("filtersync: missing hash for height %d", tip-1)
	}
	return peer.SendGetCFCheckpt(stopHash)
}

// HandleCFCheckpt parses a cfcheckpt response. Entry i corresponds to
// height min((i+1)*spacing - 1, stop_height).
func (s *Syncer) HandleCFCheckpt(msg *wire.MsgCFCheckpt, stopHeight int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	spacing := int(wire.CFCheckptSpacing)
	for i, header := range msg.FilterHeaders {
		height := (i + 1) * spacing - 1
		if height > stopHeight {
			height = stopHeight
		}
		s.checkpoints[height] = header
	}
}

// RequestFilterHeaders sends getcfheaders for [startHeight, stopHash].
func (s *Syncer) RequestFilterHeaders(peer Peer, startHeight int, stopHeight int) error {
	stopHash, ok := s.store.GetBlockHash(stopHeight)
	if !ok {
		return fmt.Errorf("filtersync: missing hash for height %d", stopHeight)
	}
	return peer.SendGetCFHeaders(uint32(startHeight), stopHash)
}

// HandleCFHeaders rebuilds the filter-header chain from a cfheaders
// response and validates any checkpoint heights the batch covers.
// Checkpoint mismatches are logged but do not abort synchronization
// (best-effort validation).
func (s *Syncer) HandleCFHeaders(msg *wire.MsgCFHeaders, startHeight int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := msg.PrevFilterHeader
	if s.lastFilterHeight == startHeight-1 {
		prev = s.lastFilterHeader
	}

	for i, filterHash := range msg.FilterHashes {
		height := startHeight + i
		header := chainHeaderFromFilterHash(filterHash, prev)
		s.filterHeaders[height] = header
		if want, ok := s.checkpoints[height]; ok && want != header {
			log.Warnf("filtersync: checkpoint mismatch at height %d: have %s want %s",
				height, header, want)
		}
		prev = header
	}

	if len(msg.FilterHashes) > 0 {
		s.lastFilterHeight = startHeight + len(msg.FilterHashes) - 1
		s.lastFilterHeader = prev
	}
}

// chainHeaderFromFilterHash computes hash = SHA256(filterHash || prevHeader),
// the filter-header chaining rule.
func chainHeaderFromFilterHash(filterHash, prevHeader chainhash.Hash) chainhash.Hash {
	buf := make([]byte, 0, 2*chainhash.HashSize)
	buf = append(buf, filterHash[:]...)
	buf = append(buf, prevHeader[:]...)
	return chainhash.HashH(buf)
}

// RequestFilter requests the single filter at height, recording the
// expected block hash in the pending-request table. Blocks (polling) until
// in-flight capacity is available.
func (s *Syncer) RequestFilter(peer Peer, height int) error {
	return s.RequestFilterBatch(peer, height, height)
}

// RequestFilterBatch requests filters for [start, end] inclusive.
func (s *Syncer) RequestFilterBatch(peer Peer, start, end int) error {
	if !s.waitForCapacity() {
		return fmt.Errorf("filtersync: no capacity for filter request after backoff")
	}

	s.mu.Lock()
	for h := start; h <= end; h++ {
		blockHash, ok := s.store.GetBlockHash(h)
		if !ok {
			continue
		}
		s.pendingFilters[blockHash] = h
		s.pendingOrder = append(s.pendingOrder, blockHash)
		s.inFlight++
	}
	s.mu.Unlock()

	return peer.SendGetCFilters(uint32(start), uint32(end))
}

// waitForCapacity polls until fewer than FilterBatchSize requests are
// outstanding, or the backoff budget elapses.
func (s *Syncer) waitForCapacity() bool {
	deadline := time.Now().Add(backpressurePollBudget)
	for {
		s.mu.Lock()
		ok := s.inFlight < FilterBatchSize
		s.mu.Unlock()
		if ok {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(backpressurePollInterval)
	}
}

// HandleCFilter decodes and caches a received filter, resolving it against
// the pending-request table by block hash; if the hash isn't pending
// (unexpected but tolerated), the oldest pending request is consumed as a
// fallback with a warning.
func (s *Syncer) HandleCFilter(msg *wire.MsgCFilter) error {
	n, filterBits, err := decodeCompactSizePrefixed(msg.Data)
	if err != nil {
		return fmt.Errorf("filtersync: decoding cfilter payload: %w", err)
	}
	filter, err := gcs.FromBytes(n, filterP, filterBits)
	if err != nil {
		return fmt.Errorf("filtersync: gcs.FromBytes: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	height, ok := s.pendingFilters[msg.BlockHash]
	if ok {
		delete(s.pendingFilters, msg.BlockHash)
		s.removePendingOrder(msg.BlockHash)
	} else if len(s.pendingOrder) > 0 {
		fallbackHash := s.pendingOrder[0]
		s.pendingOrder = s.pendingOrder[1:]
		height = s.pendingFilters[fallbackHash]
		delete(s.pendingFilters, fallbackHash)
		log.Warnf("filtersync: cfilter for unknown block hash %s, consuming oldest pending request (height %d)",
			msg.BlockHash, height)
	} else {
		return fmt.Errorf("filtersync: unsolicited cfilter for %s", msg.BlockHash)
	}

	s.filters[height] = filter
	if s.inFlight > 0 {
		s.inFlight--
	}
	return nil
}

func (s *Syncer) removePendingOrder(hash chainhash.Hash) {
	for i, h := range s.pendingOrder {
		if h == hash {
			s.pendingOrder = append(s.pendingOrder[:i], s.pendingOrder[i+1:]...)
			return
		}
	}
}

// FilterMatchesScripts ensures the filter at height is cached (requesting
// and polling for it if not), then tests whether any of scripts is a
// probable member.
func (s *Syncer) FilterMatchesScripts(peer Peer, height int, scripts [][]byte) (bool, error) {
	filter, err := s.ensureFilterCached(peer, height)
	if err != nil {
		return false, err
	}

	blockHash, ok := s.store.GetBlockHash(height)
	if !ok {
		return false, fmt.Errorf("filtersync: missing block hash at height %d", height)
	}
	var key [gcs.KeySize]byte
	copy(key[:], blockHash[:gcs.KeySize])

	return filter.MatchAny(key, scripts), nil
}

func (s *Syncer) ensureFilterCached(peer Peer, height int) (*gcs.Filter, error) {
	s.mu.Lock()
	filter, ok := s.filters[height]
	s.mu.Unlock()
	if ok {
		return filter, nil
	}

	if err := s.RequestFilter(peer, height); err != nil {
		return nil, err
	}

	deadline := time.Now().Add(filterCachePollBudget)
	for {
		s.mu.Lock()
		filter, ok = s.filters[height]
		s.mu.Unlock()
		if ok {
			return filter, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("filtersync: timed out waiting for filter at height %d", height)
		}
		time.Sleep(filterCachePollInterval)
	}
}

// decodeCompactSizePrefixed splits a cfilter message's Data field into its
// leading compact-size element count N and the remaining Golomb-coded
// bitstream, matching the BIP158 wire encoding.
func decodeCompactSizePrefixed(data []byte) (uint32, []byte, error) {
	r := bytes.NewReader(data)
	n, err := wire.ReadVarInt(r)
	if err != nil {
		return 0, nil, err
	}
	rest := make([]byte, r.Len())
	if _, err := r.Read(rest); err != nil && r.Len() != 0 {
		return 0, nil, err
	}
	return uint32(n), rest, nil
}
