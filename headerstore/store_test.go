// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package headerstore

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/chainlight/lwallet/chaincfg"
	"github.com/chainlight/lwallet/wire"
)

func testParams() *chaincfg.Params {
	return chaincfg.RegTestParams()
}

func buildChain(t *testing.T, params *chaincfg.Params, n int) []*wire.BlockHeader {
	t.Helper()
	headers := make([]*wire.BlockHeader, n)
	prev := params.GenesisHash
	for i := 0; i < n; i++ {
		h := &wire.BlockHeader{
			Version:   1,
			PrevBlock: prev,
			Timestamp: time.Unix(int64(2000000000+i), 0),
			Bits:      0x1d00ffff,
			Nonce:     uint32(i),
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

func rawBytes(t *testing.T, h *wire.BlockHeader) []byte {
	t.Helper()
	raw, err := h.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	return raw
}

func TestAddHeaderLinkageAndDuplicateRejection(t *testing.T) {
	params := testParams()
	dir := t.TempDir()
	s, err := New(params, filepath.Join(dir, "headers.bin"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	headers := buildChain(t, params, 3)
	for i, h := range headers {
		if !s.AddHeader(h, rawBytes(t, h)) {
			t.Fatalf("AddHeader(%d) unexpectedly rejected", i)
		}
	}

	// Duplicate of the first header must be rejected.
	if s.AddHeader(headers[0], rawBytes(t, headers[0])) {
		t.Error("duplicate header was accepted")
	}

	// A header whose prev hash doesn't match the tip must be rejected.
	bogus := &wire.BlockHeader{
		Version:   1,
		PrevBlock: params.GenesisHash,
		Timestamp: time.Unix(1234, 0),
		ProofBlob: make([]byte, params.HeaderLength-wire.MinBlockHeaderPayload),
	}
	if s.AddHeader(bogus, rawBytes(t, bogus)) {
		t.Error("header with mismatched prev hash was accepted")
	}

	if s.TipHeight() != 2 {
		t.Fatalf("expected tip height 2, got %d", s.TipHeight())
	}
}

func TestFlushAndDiskRoundTrip(t *testing.T) {
	params := testParams()
	dir := t.TempDir()
	s, err := New(params, filepath.Join(dir, "headers.bin"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	headers := buildChain(t, params, 5)
	for _, h := range headers {
		if !s.AddHeader(h, rawBytes(t, h)) {
			t.Fatal("AddHeader rejected a valid header")
		}
	}

	if err := s.ForceFlush(); err != nil {
		t.Fatalf("ForceFlush: %v", err)
	}
	if got := s.PersistedCount(); got != 5 {
		t.Fatalf("expected persisted count 5, got %d", got)
	}

	reopened, err := New(params, filepath.Join(dir, "headers.bin"))
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if reopened.TipHeight() != 4 {
		t.Fatalf("expected reopened tip height 4, got %d", reopened.TipHeight())
	}

	h, err := reopened.GetHeaderAsync(1)
	if err != nil {
		t.Fatalf("GetHeaderAsync: %v", err)
	}
	wantHash, err := headers[1].BlockHash(params.HeaderHashT1, params.HeaderHashT2)
	if err != nil {
		t.Fatalf("BlockHash: %v", err)
	}
	gotHash, err := h.BlockHash(params.HeaderHashT1, params.HeaderHashT2)
	if err != nil {
		t.Fatalf("BlockHash: %v", err)
	}
	if gotHash != wantHash {
		t.Error("round-tripped header hash mismatch")
	}
}

func TestTruncateForReorg(t *testing.T) {
	params := testParams()
	dir := t.TempDir()
	s, err := New(params, filepath.Join(dir, "headers.bin"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	headers := buildChain(t, params, 6)
	for _, h := range headers {
		if !s.AddHeader(h, rawBytes(t, h)) {
			t.Fatal("AddHeader rejected a valid header")
		}
	}
	if err := s.ForceFlush(); err != nil {
		t.Fatalf("ForceFlush: %v", err)
	}

	if err := s.Truncate(3); err != nil {
		t.Fatalf("Truncate: %v", err)
	}
	if s.TipHeight() != 2 {
		t.Fatalf("expected tip height 2 after truncate, got %d", s.TipHeight())
	}
	if s.PersistedCount() != 3 {
		t.Fatalf("expected persisted count 3 after truncate, got %d", s.PersistedCount())
	}
	if _, ok := s.GetHeader(5); ok {
		t.Error("truncated height 5 still resolvable from cache/pending")
	}
}

func TestBuildBlockLocatorEndsAtGenesis(t *testing.T) {
	params := testParams()
	dir := t.TempDir()
	s, err := New(params, filepath.Join(dir, "headers.bin"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	headers := buildChain(t, params, 30)
	for _, h := range headers {
		if !s.AddHeader(h, rawBytes(t, h)) {
			t.Fatal("AddHeader rejected a valid header")
		}
	}

	locator, err := s.BuildBlockLocator()
	if err != nil {
		t.Fatalf("BuildBlockLocator: %v", err)
	}
	if len(locator) == 0 {
		t.Fatal("empty locator")
	}
	if locator[0].Height != 29 {
		t.Errorf("expected locator to start at tip height 29, got %d", locator[0].Height)
	}
	last := locator[len(locator)-1]
	if last.Height != 0 || last.Hash != params.GenesisHash {
		t.Errorf("expected locator to end at genesis, got height %d", last.Height)
	}
}
