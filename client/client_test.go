// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package client

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/chainlight/lwallet/chaincfg"
	"github.com/chainlight/lwallet/txsign"
	"github.com/chainlight/lwallet/wire"
)

func newTestClient(t *testing.T, cfg Config) *Client {
	t.Helper()
	params := chaincfg.RegTestParams()
	cfg.Params = params
	cfg.HeaderStorePath = filepath.Join(t.TempDir(), "headers.bin")
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func buildTestHeaders(t *testing.T, params *chaincfg.Params, prev chainhash.Hash, n int) []*wire.BlockHeader {
	t.Helper()
	headers := make([]*wire.BlockHeader, n)
	for i := 0; i < n; i++ {
		h := &wire.BlockHeader{
			Version:   1,
			PrevBlock: prev,
			Timestamp: time.Unix(1700000000+int64(i), 0),
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

func TestPhaseString(t *testing.T) {
	cases := map[Phase]string{
		PhaseConnecting:           "connecting",
		PhaseSyncingHeaders:       "syncing_headers",
		PhaseSyncingFilterHeaders: "syncing_filter_headers",
		PhaseReady:                "ready",
		Phase(99):                 "unknown",
	}
	for phase, want := range cases {
		if got := phase.String(); got != want {
			t.Errorf("Phase(%d).String() = %q, want %q", phase, got, want)
		}
	}
}

func TestStartReachesReadyWithoutPeers(t *testing.T) {
	c := newTestClient(t, Config{})
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if c.Phase() != PhaseReady {
		t.Errorf("expected PhaseReady, got %s", c.Phase())
	}
}

func TestHandleBlockResolvesPending(t *testing.T) {
	c := newTestClient(t, Config{})
	header := buildTestHeaders(t, c.cfg.Params, c.cfg.Params.GenesisHash, 1)[0]
	hash, err := header.BlockHash(c.cfg.Params.HeaderHashT1, c.cfg.Params.HeaderHashT2)
	if err != nil {
		t.Fatalf("BlockHash: %v", err)
	}

	ch := make(chan *wire.MsgBlock, 1)
	c.pendingBlocks[hash] = ch

	block := &wire.MsgBlock{Header: *header}
	c.handleBlock(block)

	select {
	case got := <-ch:
		if got != block {
			t.Errorf("expected the same block pointer to be delivered")
		}
	default:
		t.Fatalf("expected pending block channel to receive a value")
	}
	if _, ok := c.pendingBlocks[hash]; ok {
		t.Errorf("expected pending entry to be removed")
	}
}

func TestHandleNotFoundResolvesBlockAndBroadcast(t *testing.T) {
	c := newTestClient(t, Config{})
	blockHash := chainhash.Hash{0x01}
	txHash := chainhash.Hash{0x02}

	blockCh := make(chan *wire.MsgBlock, 1)
	broadcastCh := make(chan error, 1)
	c.pendingBlocks[blockHash] = blockCh
	c.pendingBroadcast[txHash] = broadcastCh

	notFound := &wire.MsgNotFound{}
	notFound.AddInvVect(&wire.InvVect{Type: wire.InvTypeWitnessBlock, Hash: blockHash})
	notFound.AddInvVect(&wire.InvVect{Type: wire.InvTypeTx, Hash: txHash})
	c.handleNotFound(notFound)

	select {
	case got := <-blockCh:
		if got != nil {
			t.Errorf("expected nil block on notfound, got %v", got)
		}
	default:
		t.Fatalf("expected block channel to receive a value")
	}
	select {
	case err := <-broadcastCh:
		if err != txsign.ErrNotFound {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	default:
		t.Fatalf("expected broadcast channel to receive a value")
	}
}

func TestHandleRejectResolvesPendingBroadcast(t *testing.T) {
	c := newTestClient(t, Config{})
	txHash := chainhash.Hash{0x03}
	ch := make(chan error, 1)
	c.pendingBroadcast[txHash] = ch

	c.handleReject(&wire.MsgReject{
		Cmd:    wire.CmdTx,
		Code:   wire.RejectDust,
		Reason: "dust",
		Hash:   txHash,
	})

	select {
	case err := <-ch:
		if err == nil {
			t.Fatalf("expected a non-nil error")
		}
	default:
		t.Fatalf("expected broadcast channel to receive a value")
	}
}

func TestHandleInvForBroadcastResolvesOnAnnouncement(t *testing.T) {
	c := newTestClient(t, Config{})
	txHash := chainhash.Hash{0x04}
	ch := make(chan error, 1)
	c.pendingBroadcast[txHash] = ch

	inv := &wire.MsgInv{}
	inv.AddInvVect(&wire.InvVect{Type: wire.InvTypeWitnessTx, Hash: txHash})
	c.handleInvForBroadcast(inv)

	select {
	case err := <-ch:
		if err != nil {
			t.Errorf("expected nil (silent acceptance), got %v", err)
		}
	default:
		t.Fatalf("expected broadcast channel to receive a value")
	}
}

func TestRecoverFromStallRewindsAndInvokesOnReorg(t *testing.T) {
	var gotOld, gotNew int
	c := newTestClient(t, Config{
		OnReorg: func(oldHeight, newHeight int, commonAncestor chainhash.Hash) {
			gotOld, gotNew = oldHeight, newHeight
		},
	})

	headers := buildTestHeaders(t, c.cfg.Params, c.cfg.Params.GenesisHash, 11)
	for _, h := range headers {
		raw, err := h.Bytes()
		if err != nil {
			t.Fatalf("Bytes: %v", err)
		}
		if !c.store.AddHeader(h, raw) {
			t.Fatalf("AddHeader rejected a linked header")
		}
	}
	if c.store.TipHeight() != 10 {
		t.Fatalf("expected tip height 10, got %d", c.store.TipHeight())
	}

	c.recoverFromStall(context.Background())

	if gotOld != 10 {
		t.Errorf("expected OnReorg oldHeight 10, got %d", gotOld)
	}
	if gotNew != 4 {
		t.Errorf("expected OnReorg newHeight 4, got %d", gotNew)
	}
	if c.store.TipHeight() != 4 {
		t.Errorf("expected store tip height 4 after rewind, got %d", c.store.TipHeight())
	}
}

func TestTipHeightReflectsStore(t *testing.T) {
	c := newTestClient(t, Config{})
	if c.TipHeight() != -1 {
		t.Errorf("expected -1 for an empty store, got %d", c.TipHeight())
	}
}
