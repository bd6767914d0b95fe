// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txsign

import (
	"sync"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/chainlight/lwallet/wire"
)

// broadcastCacheEntry pairs a broadcast transaction with the time its cache
// entry expires.
type broadcastCacheEntry struct {
	tx      *wire.MsgTx
	expires time.Time
}

// BroadcastCache remembers transactions this wallet has recently announced,
// keyed by their non-witness txid, so a peer's getdata for that hash can be
// answered with tx even after the signing call that produced it returns.
// Entries expire after broadcastCacheTTL and are purged lazily on lookup.
type BroadcastCache struct {
	mu      sync.Mutex
	entries map[chainhash.Hash]broadcastCacheEntry
}

// NewBroadcastCache returns an empty BroadcastCache.
func NewBroadcastCache() *BroadcastCache {
	return &BroadcastCache{entries: make(map[chainhash.Hash]broadcastCacheEntry)}
}

// Put records tx under txid, to be served on getdata until it expires.
func (c *BroadcastCache) Put(txid chainhash.Hash, tx *wire.MsgTx) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[txid] = broadcastCacheEntry{tx: tx, expires: time.Now().Add(broadcastCacheTTL)}
}

// Get returns the transaction cached under txid, if present and not yet
// expired. An expired entry is removed as a side effect.
func (c *BroadcastCache) Get(txid chainhash.Hash) (*wire.MsgTx, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[txid]
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expires) {
		delete(c.entries, txid)
		return nil, false
	}
	return entry.tx, true
}

// Purge removes every expired entry. Callers may run it periodically; Get
// also purges lazily so this is only needed to bound memory held by
// transactions nobody ever asks for again.
func (c *BroadcastCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	for txid, entry := range c.entries {
		if now.After(entry.expires) {
			delete(c.entries, txid)
		}
	}
}
