// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"bytes"
	"context"
	"encoding/binary"
	"path/filepath"
	"testing"
	"time"

	"github.com/chainlight/lwallet/chaincfg"
	"github.com/chainlight/lwallet/keys"
	"github.com/chainlight/lwallet/wire"
	"github.com/chainlight/lwallet/walletdb"
)

func testMaster(t *testing.T) *keys.ExtendedKey {
	t.Helper()
	seed := bytes.Repeat([]byte{0x07}, 32)
	master, err := keys.NewMaster(seed)
	if err != nil {
		t.Fatalf("NewMaster: %v", err)
	}
	return master
}

func openTestRepository(t *testing.T) (*Repository, *chaincfg.Params) {
	t.Helper()
	params := chaincfg.RegTestParams()
	db, err := walletdb.Open(filepath.Join(t.TempDir(), "wallet.ldb"))
	if err != nil {
		t.Fatalf("walletdb.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	repo, err := Open(params, db, "w1", testMaster(t))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return repo, params
}

// fakeChain is an in-memory Chain: a fixed tip height and a set of raw
// blocks keyed by height, with filter matching implemented by literally
// scanning the block for the watched scripts (standing in for a real GCS
// probe in these orchestration-focused tests).
type fakeChain struct {
	tip    int32
	blocks map[int32][]byte
}

func (c *fakeChain) TipHeight() int32 { return c.tip }

func (c *fakeChain) PrefetchFilters(ctx context.Context, start, end int32) error { return nil }

func (c *fakeChain) FilterMatchesScripts(ctx context.Context, height int32, scripts [][]byte) (bool, error) {
	raw, ok := c.blocks[height]
	if !ok {
		return false, nil
	}
	for _, s := range scripts {
		if bytes.Contains(raw, s) {
			return true, nil
		}
	}
	return false, nil
}

func (c *fakeChain) FetchBlock(ctx context.Context, height int32) ([]byte, error) {
	return c.blocks[height], nil
}

func writeUint32LE(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeUint64LE(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

// buildBlockPayingScript constructs a raw block (per txparse's expected
// layout) with a single legacy transaction paying value to script.
func buildBlockPayingScript(t *testing.T, params *chaincfg.Params, script []byte, value int64) []byte {
	t.Helper()
	var buf bytes.Buffer

	header := wire.BlockHeader{
		Version:   1,
		Timestamp: time.Unix(2000000000, 0),
		ProofBlob: make([]byte, params.HeaderLength-wire.MinBlockHeaderPayload),
	}
	if err := header.Serialize(&buf); err != nil {
		t.Fatalf("Serialize header: %v", err)
	}

	wire.WriteVarInt(&buf, 1) // tx count

	var tx bytes.Buffer
	writeUint32LE(&tx, 1) // version
	wire.WriteVarInt(&tx, 1)
	tx.Write(bytes.Repeat([]byte{0xAA}, 32))
	writeUint32LE(&tx, 0)
	wire.WriteVarInt(&tx, 0)
	writeUint32LE(&tx, 0xffffffff)

	wire.WriteVarInt(&tx, 1)
	writeUint64LE(&tx, uint64(value))
	wire.WriteVarInt(&tx, uint64(len(script)))
	tx.Write(script)

	writeUint32LE(&tx, 0) // locktime

	buf.Write(tx.Bytes())
	return buf.Bytes()
}

func TestDiscoverUtxosFindsMatchedOutput(t *testing.T) {
	repo, params := openTestRepository(t)

	ws, err := repo.deriveWatchedScript(keys.ReceiveBranch, 3)
	if err != nil {
		t.Fatalf("deriveWatchedScript: %v", err)
	}

	chain := &fakeChain{
		tip: 5,
		blocks: map[int32][]byte{
			2: buildBlockPayingScript(t, params, ws.script, 50000),
		},
	}
	repo.AttachChain(chain)

	if err := repo.DiscoverUtxos(context.Background(), true, 0); err != nil {
		t.Fatalf("DiscoverUtxos: %v", err)
	}

	utxos := repo.Utxos()
	if len(utxos) != 1 {
		t.Fatalf("expected 1 utxo, got %d", len(utxos))
	}
	if utxos[0].Value != 50000 || utxos[0].Address != ws.address {
		t.Errorf("unexpected utxo: %+v", utxos[0])
	}
	if repo.LastScannedHeight() != 5 {
		t.Errorf("expected last scanned height 5, got %d", repo.LastScannedHeight())
	}
}

func TestHandleReorgMarksUnconfirmed(t *testing.T) {
	repo, _ := openTestRepository(t)
	repo.utxos["txid:0"] = walletdb.Utxo{Txid: "txid", Vout: 0, BlockHeight: 98, Confirmed: true}
	repo.utxos["txid2:0"] = walletdb.Utxo{Txid: "txid2", Vout: 0, BlockHeight: 97, Confirmed: true}

	if err := repo.HandleReorg(98); err != nil {
		t.Fatalf("HandleReorg: %v", err)
	}

	if repo.utxos["txid:0"].Confirmed {
		t.Errorf("expected height-98 utxo to be marked unconfirmed")
	}
	if !repo.utxos["txid2:0"].Confirmed {
		t.Errorf("expected height-97 utxo to remain confirmed")
	}
}

func TestAddressCursorBounds(t *testing.T) {
	c := NewAddressCursor()
	if c.NextReceiveIndex() != 0 {
		t.Errorf("expected first receive index 0, got %d", c.NextReceiveIndex())
	}
	c.HighestReceive = MaxReceiveIndex + 5
	if c.NextReceiveIndex() != MaxReceiveIndex-1 {
		t.Errorf("expected receive index clamped to %d, got %d", MaxReceiveIndex-1, c.NextReceiveIndex())
	}
}

func TestNextReceiveAddressAdvancesCursor(t *testing.T) {
	repo, _ := openTestRepository(t)
	first, err := repo.NextReceiveAddress()
	if err != nil {
		t.Fatalf("NextReceiveAddress: %v", err)
	}
	second, err := repo.NextReceiveAddress()
	if err != nil {
		t.Fatalf("NextReceiveAddress: %v", err)
	}
	if first == second {
		t.Errorf("expected successive receive addresses to differ")
	}
}
