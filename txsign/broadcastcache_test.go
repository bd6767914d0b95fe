// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txsign

import (
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/chainlight/lwallet/wire"
)

func TestBroadcastCachePutGet(t *testing.T) {
	c := NewBroadcastCache()
	txid := chainhash.Hash{0x01}
	tx := &wire.MsgTx{Version: 1}

	if _, ok := c.Get(txid); ok {
		t.Fatalf("expected a miss before Put")
	}

	c.Put(txid, tx)
	got, ok := c.Get(txid)
	if !ok {
		t.Fatalf("expected a hit after Put")
	}
	if got != tx {
		t.Errorf("expected the same tx pointer back")
	}
}

func TestBroadcastCacheExpires(t *testing.T) {
	c := NewBroadcastCache()
	txid := chainhash.Hash{0x02}
	c.entries[txid] = broadcastCacheEntry{tx: &wire.MsgTx{}, expires: time.Now().Add(-time.Second)}

	if _, ok := c.Get(txid); ok {
		t.Errorf("expected an expired entry to miss")
	}
	if _, ok := c.entries[txid]; ok {
		t.Errorf("expected Get to purge the expired entry")
	}
}

func TestBroadcastCachePurge(t *testing.T) {
	c := NewBroadcastCache()
	live := chainhash.Hash{0x03}
	stale := chainhash.Hash{0x04}
	c.Put(live, &wire.MsgTx{})
	c.entries[stale] = broadcastCacheEntry{tx: &wire.MsgTx{}, expires: time.Now().Add(-time.Minute)}

	c.Purge()

	if _, ok := c.entries[live]; !ok {
		t.Errorf("expected the live entry to survive Purge")
	}
	if _, ok := c.entries[stale]; ok {
		t.Errorf("expected the stale entry to be removed by Purge")
	}
}
