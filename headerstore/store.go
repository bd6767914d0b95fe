// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package headerstore implements the header chain store: a bounded
// in-memory cache of parsed headers, a pending queue of raw header bytes
// not yet persisted, and an append-only file of fixed-width header records.
package headerstore

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/decred/slog"

	"github.com/chainlight/lwallet/chaincfg"
	"github.com/chainlight/lwallet/wire"
)

// log is the package-level logger. Callers wire a real backend in with
// UseLogger; by default log output is discarded.
var log = slog.Disabled

// UseLogger sets the package-wide logger used by this package.
func UseLogger(logger slog.Logger) { log = logger }

// cacheCapacity is the maximum number of parsed headers held in memory at
// once, per the bounded header cache requirement.
const cacheCapacity = 100

// defaultFlushBatchSize is the pending-queue length flush_to_storage
// persists at once when called without an explicit size.
const defaultFlushBatchSize = 2000

var (
	// ErrNotFound is returned when a height has no known header, in cache,
	// pending, or on disk.
	ErrNotFound = errors.New("headerstore: header not found")
)

// entry is a parsed header paired with its raw on-wire bytes, the unit
// stored in both the cache and the pending queue.
type entry struct {
	height int
	header wire.BlockHeader
	raw    []byte
	hash   chainhash.Hash
}

// Store is the header chain store described by the header-chain-store
// design: bounded cache, pending queue, and an append-only fixed-width disk
// file. All methods are safe for concurrent use, though the client facade
// serializes access to a single event loop in practice.
type Store struct {
	params *chaincfg.Params

	mu sync.Mutex

	path string

	cache      map[int]*entry
	hashIndex  map[chainhash.Hash]int
	pending    []*entry
	persisted  int // number of records durably on disk
	tipHeight  int // -1 when empty
	tipHash    chainhash.Hash
}

// New opens (creating if necessary) the header file at path and returns a
// Store positioned at whatever tip the file implies. The pending queue
// starts empty and the in-memory cache holds only the tip record read back
// from disk; other heights resolve through GetHeaderAsync, which falls back
// to disk.
func New(params *chaincfg.Params, path string) (*Store, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("headerstore: open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	f.Close()

	persisted := int(info.Size()) / params.HeaderLength

	s := &Store{
		params:    params,
		path:      path,
		cache:     make(map[int]*entry),
		hashIndex: make(map[chainhash.Hash]int),
		persisted: persisted,
		tipHeight: -1,
	}

	if persisted > 0 {
		h, raw, err := s.readDiskRecord(persisted - 1)
		if err != nil {
			return nil, err
		}
		hash, err := h.BlockHash(params.HeaderHashT1, params.HeaderHashT2)
		if err != nil {
			return nil, err
		}
		s.tipHeight = persisted - 1
		s.tipHash = hash
		s.hashIndex[hash] = s.tipHeight
		s.cacheInsert(&entry{height: s.tipHeight, header: *h, raw: raw, hash: hash})
	} else {
		s.tipHeight = -1
	}

	return s, nil
}

// TipHeight returns the height of the highest known header, or -1 if the
// store is empty.
func (s *Store) TipHeight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tipHeight
}

// TipHash returns the hash of the current tip. Only valid when TipHeight
// returns >= 0.
func (s *Store) TipHash() chainhash.Hash {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tipHash
}

// PersistedCount returns the number of header records durably written to
// disk.
func (s *Store) PersistedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persisted
}

// TotalHeight returns persisted_count + |pending|, the invariant quantity
// described by the header-chain-store design.
func (s *Store) TotalHeight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persisted + len(s.pending)
}

// GetHeader returns the header at height from cache or the pending queue
// only; it never touches disk. Callers that need a header regardless of
// whether it has been evicted from memory should use GetHeaderAsync.
func (s *Store) GetHeader(height int) (*wire.BlockHeader, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.cache[height]; ok {
		h := e.header
		return &h, true
	}
	if e := s.pendingEntry(height); e != nil {
		h := e.header
		return &h, true
	}
	return nil, false
}

// GetHeaderAsync resolves height from cache or pending first, falling back
// to a disk read. The name and signature mirror the synchronous/async pair
// from the design; there is no actual goroutine dispatch needed since disk
// reads here are a single pread-equivalent.
func (s *Store) GetHeaderAsync(height int) (*wire.BlockHeader, error) {
	if h, ok := s.GetHeader(height); ok {
		return h, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if height < 0 || height >= s.persisted {
		return nil, ErrNotFound
	}
	h, raw, err := s.readDiskRecord(height)
	if err != nil {
		return nil, err
	}
	hash, err := h.BlockHash(s.params.HeaderHashT1, s.params.HeaderHashT2)
	if err != nil {
		return nil, err
	}
	s.cacheInsert(&entry{height: height, header: *h, raw: raw, hash: hash})
	return h, nil
}

// GetBlockHash returns the block hash at height, from the cache or the
// pending queue only; it never touches disk (GetBlockHashAsync does).
// Height 0 returns the chain's genesis hash directly rather than requiring
// it to have been added through AddHeader.
func (s *Store) GetBlockHash(height int) (chainhash.Hash, bool) {
	if height == 0 {
		return s.params.GenesisHash, true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.cache[height]; ok {
		return e.hash, true
	}
	if e := s.pendingEntry(height); e != nil {
		return e.hash, true
	}
	return chainhash.Hash{}, false
}

// GetBlockHashAsync is the disk-falling-back counterpart to GetBlockHash.
func (s *Store) GetBlockHashAsync(height int) (chainhash.Hash, error) {
	if height == 0 {
		return s.params.GenesisHash, nil
	}
	if hash, ok := s.GetBlockHash(height); ok {
		return hash, nil
	}
	h, err := s.GetHeaderAsync(height)
	if err != nil {
		return chainhash.Hash{}, err
	}
	return h.BlockHash(s.params.HeaderHashT1, s.params.HeaderHashT2)
}

// AddHeader validates linkage against the current tip (prev_hash must equal
// the previous tip's hash, or the chain genesis hash for height 0),
// rejects duplicate hashes, then appends to the pending queue and updates
// the cache and hash index. Returns false (without error) on any
// validation failure, per the "reject header silently" error policy.
func (s *Store) AddHeader(header *wire.BlockHeader, raw []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	height := s.tipHeight + 1

	hash, err := header.BlockHash(s.params.HeaderHashT1, s.params.HeaderHashT2)
	if err != nil {
		log.Warnf("headerstore: hashing header at height %d: %v", height, err)
		return false
	}
	if _, dup := s.hashIndex[hash]; dup {
		return false
	}

	var wantPrev chainhash.Hash
	if height == 0 {
		wantPrev = s.params.GenesisHash
	} else {
		wantPrev = s.tipHash
	}
	if header.PrevBlock != wantPrev {
		return false
	}

	e := &entry{height: height, header: *header, raw: append([]byte(nil), raw...), hash: hash}
	s.pending = append(s.pending, e)
	s.hashIndex[hash] = height
	s.cacheInsert(e)
	s.tipHeight = height
	s.tipHash = hash
	return true
}

// FlushToStorage persists pending records when the pending queue has
// reached batchSize or more. It is idempotent: calling it again before
// enough new headers accumulate is a no-op. On I/O error the records that
// failed to write are reinserted at the head of the pending queue so a
// later flush retries them first.
func (s *Store) FlushToStorage(batchSize int) error {
	if batchSize <= 0 {
		batchSize = defaultFlushBatchSize
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) < batchSize {
		return nil
	}
	return s.flushLocked()
}

// ForceFlush persists all pending records regardless of the batch-size
// threshold.
func (s *Store) ForceFlush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		return nil
	}
	return s.flushLocked()
}

func (s *Store) flushLocked() error {
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("headerstore: open %s for append: %w", s.path, err)
	}
	defer f.Close()

	toFlush := s.pending
	var written int
	for _, e := range toFlush {
		if _, err := f.Write(e.raw); err != nil {
			// Reinsert the unwritten remainder (including the record that
			// failed) at the head of the pending queue.
			s.persisted += written
			s.pending = append(toFlush[written:], s.pending[len(toFlush):]...)
			return fmt.Errorf("headerstore: write record at height %d: %w", e.height, err)
		}
		written++
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("headerstore: sync %s: %w", s.path, err)
	}

	s.persisted += written
	s.pending = s.pending[written:]
	return nil
}

// Truncate discards all cache entries, hash-index entries, pending records,
// and disk records above height keepCount-1, leaving exactly keepCount
// headers (heights 0..keepCount-1). Used to unwind a reorg.
func (s *Store) Truncate(keepCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for height, e := range s.cache {
		if height >= keepCount {
			delete(s.cache, height)
			delete(s.hashIndex, e.hash)
		}
	}

	kept := s.pending[:0:0]
	for _, e := range s.pending {
		if e.height < keepCount {
			kept = append(kept, e)
		} else {
			delete(s.hashIndex, e.hash)
		}
	}
	s.pending = kept

	if keepCount < s.persisted {
		f, err := os.OpenFile(s.path, os.O_WRONLY, 0o600)
		if err != nil {
			return fmt.Errorf("headerstore: open %s for truncate: %w", s.path, err)
		}
		newSize := int64(keepCount) * int64(s.params.HeaderLength)
		err = f.Truncate(newSize)
		f.Close()
		if err != nil {
			return fmt.Errorf("headerstore: truncate %s: %w", s.path, err)
		}
		s.persisted = keepCount
	}

	if keepCount == 0 {
		s.tipHeight = -1
		s.tipHash = chainhash.Hash{}
		return nil
	}

	tipHeight := keepCount - 1
	var h *wire.BlockHeader
	if e := s.pendingEntry(tipHeight); e != nil {
		h = &e.header
	} else {
		var err error
		if h, _, err = s.readDiskRecord(tipHeight); err != nil {
			return err
		}
	}
	hash, err := h.BlockHash(s.params.HeaderHashT1, s.params.HeaderHashT2)
	if err != nil {
		return err
	}
	s.tipHeight = tipHeight
	s.tipHash = hash
	return nil
}

// Reset clears all in-memory state and truncates the disk file to empty.
func (s *Store) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cache = make(map[int]*entry)
	s.hashIndex = make(map[chainhash.Hash]int)
	s.pending = nil
	s.persisted = 0
	s.tipHeight = -1
	s.tipHash = chainhash.Hash{}

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("headerstore: reset %s: %w", s.path, err)
	}
	return f.Close()
}

// LocatorEntry is one (height, hash) pair within a block locator.
type LocatorEntry struct {
	Height int
	Hash   chainhash.Hash
}

// BuildBlockLocator emits a sparse list of (height, hash) pairs starting at
// the tip, step 1 for the first 10 entries then doubling thereafter,
// always ending with the genesis entry.
func (s *Store) BuildBlockLocator() ([]LocatorEntry, error) {
	s.mu.Lock()
	tip := s.tipHeight
	s.mu.Unlock()

	if tip < 0 {
		hash, _ := s.GetBlockHash(0)
		return []LocatorEntry{{Height: 0, Hash: hash}}, nil
	}

	var locator []LocatorEntry
	step := 1
	height := tip
	for {
		hash, err := s.GetBlockHashAsync(height)
		if err != nil {
			return nil, err
		}
		locator = append(locator, LocatorEntry{Height: height, Hash: hash})
		if height == 0 {
			return locator, nil
		}
		if len(locator) >= 10 {
			step *= 2
		}
		if height < step {
			height = 0
		} else {
			height -= step
		}
	}
}

// cacheInsert inserts e into the bounded cache, evicting the entry with the
// lowest height when the cache is at capacity. This is not recency-based
// LRU: the design calls for evicting the oldest (lowest-height) record,
// since scans proceed linearly and the lowest height is the least likely to
// be revisited.
func (s *Store) cacheInsert(e *entry) {
	if _, exists := s.cache[e.height]; !exists && len(s.cache) >= cacheCapacity {
		lowest := e.height
		for h := range s.cache {
			if h < lowest {
				lowest = h
			}
		}
		if lowest == e.height {
			// e itself is the lowest height: it is not cached.
			return
		}
		delete(s.cache, lowest)
	}
	s.cache[e.height] = e
}

// pendingEntry linear-scans the (small, bounded-by-flush-cadence) pending
// queue for height. Pending only grows to flush batch size before being
// drained, so this stays cheap.
func (s *Store) pendingEntry(height int) *entry {
	for _, e := range s.pending {
		if e.height == height {
			return e
		}
	}
	return nil
}

// readDiskRecord reads and parses the fixed-width record at the given
// height from the header file.
func (s *Store) readDiskRecord(height int) (*wire.BlockHeader, []byte, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	offset := int64(height) * int64(s.params.HeaderLength)
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil, nil, err
	}

	raw := make([]byte, s.params.HeaderLength)
	if _, err := io.ReadFull(f, raw); err != nil {
		return nil, nil, fmt.Errorf("headerstore: read record at height %d: %w", height, err)
	}

	var h wire.BlockHeader
	if err := h.Decode(newByteReader(raw), s.params.HeaderLength); err != nil {
		return nil, nil, err
	}
	return &h, raw, nil
}

// newByteReader wraps a []byte as an io.Reader without the allocation
// overhead of bytes.NewReader's extra bookkeeping this package doesn't use.
func newByteReader(b []byte) io.Reader {
	return &sliceReader{b: b}
}

type sliceReader struct {
	b   []byte
	pos int
}

func (r *sliceReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.b) {
		return 0, io.EOF
	}
	n := copy(p, r.b[r.pos:])
	r.pos += n
	return n, nil
}
