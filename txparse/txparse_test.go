// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txparse

import (
	"bytes"
	"encoding/binary"
	"testing"
	"time"

	"github.com/chainlight/lwallet/chaincfg"
	"github.com/chainlight/lwallet/wire"
)

func buildRawBlock(t *testing.T, params *chaincfg.Params, txBytes [][]byte) []byte {
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

	if err := wire.WriteVarInt(&buf, uint64(len(txBytes))); err != nil {
		t.Fatalf("WriteVarInt: %v", err)
	}
	for _, tx := range txBytes {
		buf.Write(tx)
	}
	return buf.Bytes()
}

// buildLegacyTx builds a non-segwit transaction with one input spending
// prevTxid:prevVout and one output of value paying script.
func buildLegacyTx(prevTxid [32]byte, prevVout uint32, value int64, script []byte) []byte {
	var buf bytes.Buffer

	writeUint32LE(&buf, 1) // version
	wire.WriteVarInt(&buf, 1)
	buf.Write(prevTxid[:])
	writeUint32LE(&buf, prevVout)
	wire.WriteVarInt(&buf, 0) // empty scriptSig
	writeUint32LE(&buf, 0xffffffff)

	wire.WriteVarInt(&buf, 1)
	writeUint64LE(&buf, uint64(value))
	wire.WriteVarInt(&buf, uint64(len(script)))
	buf.Write(script)

	writeUint32LE(&buf, 0) // locktime
	return buf.Bytes()
}

// buildSegwitTx builds a segwit transaction with one input, empty witness
// stack, and one output.
func buildSegwitTx(prevTxid [32]byte, prevVout uint32, value int64, script []byte) []byte {
	var buf bytes.Buffer

	writeUint32LE(&buf, 1)
	buf.WriteByte(0x00)
	buf.WriteByte(0x01)

	wire.WriteVarInt(&buf, 1)
	buf.Write(prevTxid[:])
	writeUint32LE(&buf, prevVout)
	wire.WriteVarInt(&buf, 0)
	writeUint32LE(&buf, 0xffffffff)

	wire.WriteVarInt(&buf, 1)
	writeUint64LE(&buf, uint64(value))
	wire.WriteVarInt(&buf, uint64(len(script)))
	buf.Write(script)

	wire.WriteVarInt(&buf, 2) // witness item count
	wire.WriteVarInt(&buf, 1)
	buf.WriteByte(0xAA)
	wire.WriteVarInt(&buf, 1)
	buf.WriteByte(0xBB)

	writeUint32LE(&buf, 0)
	return buf.Bytes()
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

func TestParseBlockMatchesAndSpends(t *testing.T) {
	params := chaincfg.RegTestParams()
	watched := []byte{0x76, 0xa9, 0x14, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 0x88, 0xac}
	unrelated := []byte{0x51}

	var prevTxid1, prevTxid2 [32]byte
	prevTxid1[0] = 0xAA
	prevTxid2[0] = 0xBB

	legacy := buildLegacyTx(prevTxid1, 0, 50000, watched)
	segwit := buildSegwitTx(prevTxid2, 1, 12345, unrelated)

	raw := buildRawBlock(t, params, [][]byte{legacy, segwit})

	result, err := ParseBlock(params, raw, watched)
	if err != nil {
		t.Fatalf("ParseBlock: %v", err)
	}

	if len(result.Matched) != 1 {
		t.Fatalf("expected 1 matched output, got %d", len(result.Matched))
	}
	if result.Matched[0].Value != 50000 {
		t.Errorf("expected matched value 50000, got %d", result.Matched[0].Value)
	}

	if len(result.Spent) != 2 {
		t.Fatalf("expected 2 spent outpoints, got %d", len(result.Spent))
	}
}
