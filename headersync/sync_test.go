// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package headersync

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/chainlight/lwallet/chaincfg"
	"github.com/chainlight/lwallet/headerstore"
	"github.com/chainlight/lwallet/wire"
)

// fakePeer records getheaders requests and, when onGetHeaders is set, invokes
// it synchronously to simulate a peer replying with a headers message.
type fakePeer struct {
	onGetHeaders func(locator []headerstore.LocatorEntry)
}

func (p *fakePeer) SendGetHeaders(locator []headerstore.LocatorEntry) error {
	if p.onGetHeaders != nil {
		p.onGetHeaders(locator)
	}
	return nil
}

func buildHeaders(t *testing.T, params *chaincfg.Params, prev chainhash.Hash, n int, startTime int64) []*wire.BlockHeader {
	t.Helper()
	headers := make([]*wire.BlockHeader, n)
	for i := 0; i < n; i++ {
		h := &wire.BlockHeader{
			Version:   1,
			PrevBlock: prev,
			Timestamp: time.Unix(startTime+int64(i), 0),
			Bits:      0x1d00ffff,
			ProofBlob: make([]byte, params.HeaderLength-wire.MinBlockHeaderPayload),
		}
		hash, err := h.BlockHash(params.HeaderHashT1, params.HeaderHashT2)
		if err != nil {
			t.Fatalf("BlockHash: %v", err)
		}
		headers[i] = h
		prev = hash
	}
	return headers
}

func TestSyncToTipSingleBatch(t *testing.T) {
	params := chaincfg.RegTestParams()
	dir := t.TempDir()
	store, err := headerstore.New(params, filepath.Join(dir, "headers.bin"))
	if err != nil {
		t.Fatalf("headerstore.New: %v", err)
	}

	headers := buildHeaders(t, params, params.GenesisHash, 5, 2000000000)

	var syncer *Syncer
	peer := &fakePeer{}
	peer.onGetHeaders = func(locator []headerstore.LocatorEntry) {
		msg := &wire.MsgHeaders{Headers: headers}
		syncer.HandleHeaders(msg)
	}

	syncer = New(store, func() (Peer, bool) { return peer, true })
	syncer.SetTargetHeight(4)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := syncer.SyncToTip(ctx); err != nil {
		t.Fatalf("SyncToTip: %v", err)
	}
	if store.TipHeight() != 4 {
		t.Fatalf("expected tip height 4, got %d", store.TipHeight())
	}
}

func TestSyncToTipStallReportsError(t *testing.T) {
	params := chaincfg.RegTestParams()
	dir := t.TempDir()
	store, err := headerstore.New(params, filepath.Join(dir, "headers.bin"))
	if err != nil {
		t.Fatalf("headerstore.New: %v", err)
	}

	var syncer *Syncer
	peer := &fakePeer{}
	peer.onGetHeaders = func(locator []headerstore.LocatorEntry) {
		// Peer never has anything new to offer.
		syncer.HandleHeaders(&wire.MsgHeaders{})
	}
	syncer = New(store, func() (Peer, bool) { return peer, true })
	syncer.SetTargetHeight(10)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := syncer.SyncToTip(ctx); err != ErrStalled {
		t.Fatalf("expected ErrStalled, got %v", err)
	}
}
