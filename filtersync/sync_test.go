// Copyright (c) 2016-2017 The btcsuite developers
// Copyright (c) 2018 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package filtersync

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/chainlight/lwallet/chaincfg"
	"github.com/chainlight/lwallet/gcs"
	"github.com/chainlight/lwallet/headerstore"
	"github.com/chainlight/lwallet/wire"
)

type fakeFilterPeer struct {
	onGetCFilters func(start, stop uint32)
}

func (p *fakeFilterPeer) SendGetCFCheckpt(stopHash chainhash.Hash) error { return nil }
func (p *fakeFilterPeer) SendGetCFHeaders(startHeight uint32, stopHash chainhash.Hash) error {
	return nil
}
func (p *fakeFilterPeer) SendGetCFilters(start, stop uint32) error {
	if p.onGetCFilters != nil {
		p.onGetCFilters(start, stop)
	}
	return nil
}

func buildStoreWithHeaders(t *testing.T, n int) *headerstore.Store {
	t.Helper()
	params := chaincfg.RegTestParams()
	dir := t.TempDir()
	store, err := headerstore.New(params, filepath.Join(dir, "headers.bin"))
	if err != nil {
		t.Fatalf("headerstore.New: %v", err)
	}
	prev := params.GenesisHash
	for i := 0; i < n; i++ {
		h := &wire.BlockHeader{
			Version:   1,
			PrevBlock: prev,
			Timestamp: time.Unix(int64(2000000000+i), 0),
			ProofBlob: make([]byte, params.HeaderLength-wire.MinBlockHeaderPayload),
		}
		raw, err := h.Bytes()
		if err != nil {
			t.Fatalf("Bytes: %v", err)
		}
		if !store.AddHeader(h, raw) {
			t.Fatalf("AddHeader(%d) rejected", i)
		}
		prev, err = h.BlockHash(params.HeaderHashT1, params.HeaderHashT2)
		if err != nil {
			t.Fatalf("BlockHash: %v", err)
		}
	}
	return store
}

// encodeCFilterData reconstructs a cfilter wire payload (compact-size N +
// GCS bitstream) from a built filter, mirroring what a real peer would send.
func encodeCFilterData(t *testing.T, f *gcs.Filter) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := wire.WriteVarInt(&buf, uint64(f.N())); err != nil {
		t.Fatalf("WriteVarInt: %v", err)
	}
	buf.Write(f.Bytes())
	return buf.Bytes()
}

func TestFilterMatchesScriptsRoundTrip(t *testing.T) {
	store := buildStoreWithHeaders(t, 3)
	syncer := New(store)

	blockHash, ok := store.GetBlockHash(2)
	if !ok {
		t.Fatal("missing block hash at height 2")
	}
	var key [gcs.KeySize]byte
	copy(key[:], blockHash[:gcs.KeySize])

	targetScript := []byte("the watched scriptPubKey")
	f, err := gcs.NewFilter(19, key, [][]byte{targetScript, []byte("unrelated output")})
	if err != nil {
		t.Fatalf("NewFilter: %v", err)
	}

	peer := &fakeFilterPeer{
		onGetCFilters: func(start, stop uint32) {
			msg := &wire.MsgCFilter{
				FilterType: wire.FilterTypeBasic,
				BlockHash:  blockHash,
				Data:       encodeCFilterData(t, f),
			}
			if err := syncer.HandleCFilter(msg); err != nil {
				t.Errorf("HandleCFilter: %v", err)
			}
		},
	}

	matched, err := syncer.FilterMatchesScripts(peer, 2, [][]byte{targetScript})
	if err != nil {
		t.Fatalf("FilterMatchesScripts: %v", err)
	}
	if !matched {
		t.Error("expected filter to match the inserted script")
	}
}

func TestHandleCFHeadersChainsAndValidatesCheckpoint(t *testing.T) {
	store := buildStoreWithHeaders(t, 1)
	syncer := New(store)

	var prevHeader chainhash.Hash
	filterHash1 := chainhash.HashH([]byte("filter-hash-1"))
	header1 := chainHeaderFromFilterHash(filterHash1, prevHeader)

	syncer.HandleCFCheckpt(&wire.MsgCFCheckpt{
		FilterHeaders: []chainhash.Hash{header1},
	}, 0)

	syncer.HandleCFHeaders(&wire.MsgCFHeaders{
		PrevFilterHeader: prevHeader,
		FilterHashes:     []chainhash.Hash{filterHash1},
	}, 0)

	got, ok := syncer.filterHeaders[0]
	if !ok {
		t.Fatal("expected filter header recorded at height 0")
	}
	if got != header1 {
		t.Errorf("filter header chain mismatch: got %s want %s", got, header1)
	}
}
