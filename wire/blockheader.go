// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"crypto/sha256"
	"io"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// MinBlockHeaderPayload is the size of the canonical Bitcoin-shaped header
// fields: version(4) + prevblock(32) + merkleroot(32) + time(4) + bits(4) +
// nonce(4).
const MinBlockHeaderPayload = 80

// BlockHeader is a fixed-size record: the canonical 80 Bitcoin fields plus an
// opaque trailing proof blob whose length is dictated by the chain's
// HeaderLength parameter. The proof blob is carried through unparsed; this
// package never interprets it beyond including it (or not) in the hash
// computation per the legacy cutover rules below.
type BlockHeader struct {
	Version    int32
	PrevBlock  chainhash.Hash
	MerkleRoot chainhash.Hash
	Timestamp  time.Time
	Bits       uint32
	Nonce      uint32

	// ProofBlob is the chain-specific trailing extension; its length is
	// HeaderLength-80. It is empty for chains with the canonical 80-byte
	// header.
	ProofBlob []byte
}

// Decode reads a header of exactly headerLength bytes (80 fixed fields plus
// a trailing proof blob) from r.
func (h *BlockHeader) Decode(r io.Reader, headerLength int) error {
	version, err := binarySerializer.Uint32(r)
	if err != nil {
		return err
	}
	h.Version = int32(version)
	if err := readHash(r, &h.PrevBlock); err != nil {
		return err
	}
	if err := readHash(r, &h.MerkleRoot); err != nil {
		return err
	}
	if h.Timestamp, err = readTimestamp32(r); err != nil {
		return err
	}
	if h.Bits, err = binarySerializer.Uint32(r); err != nil {
		return err
	}
	if h.Nonce, err = binarySerializer.Uint32(r); err != nil {
		return err
	}
	blobLen := headerLength - MinBlockHeaderPayload
	if blobLen > 0 {
		h.ProofBlob = make([]byte, blobLen)
		if _, err := io.ReadFull(r, h.ProofBlob); err != nil {
			return err
		}
	}
	return nil
}

// Serialize writes the full fixed-width header (fields plus proof blob).
func (h *BlockHeader) Serialize(w io.Writer) error {
	if err := binarySerializer.PutUint32(w, uint32(h.Version)); err != nil {
		return err
	}
	if err := writeHash(w, &h.PrevBlock); err != nil {
		return err
	}
	if err := writeHash(w, &h.MerkleRoot); err != nil {
		return err
	}
	if err := writeTimestamp32(w, h.Timestamp); err != nil {
		return err
	}
	if err := binarySerializer.PutUint32(w, h.Bits); err != nil {
		return err
	}
	if err := binarySerializer.PutUint32(w, h.Nonce); err != nil {
		return err
	}
	_, err := w.Write(h.ProofBlob)
	return err
}

// Bytes returns the full fixed-width serialized header.
func (h *BlockHeader) Bytes() ([]byte, error) {
	var buf bufferWriter
	if err := h.Serialize(&buf); err != nil {
		return nil, err
	}
	return buf.b, nil
}

// bufferWriter is a tiny growable []byte sink avoiding a bytes.Buffer import
// cycle concern; behaves like bytes.Buffer's Write.
type bufferWriter struct{ b []byte }

func (w *bufferWriter) Write(p []byte) (int, error) {
	w.b = append(w.b, p...)
	return len(p), nil
}

// BlockHash computes the header identity hash per the three legacy rules
// keyed off the header's timestamp and the chain's two cutover constants:
//
//   - timestamp <= t1: single SHA-256 of the proof blob only.
//   - t1 < timestamp <= t2: double SHA-256 of the full serialized header.
//   - timestamp > t2: single SHA-256 of the full serialized header.
func (h *BlockHeader) BlockHash(t1, t2 uint32) (chainhash.Hash, error) {
	ts := uint32(h.Timestamp.Unix())
	switch {
	case ts <= t1:
		sum := sha256.Sum256(h.ProofBlob)
		return chainhash.Hash(sum), nil
	case ts <= t2:
		raw, err := h.Bytes()
		if err != nil {
			return chainhash.Hash{}, err
		}
		var out chainhash.Hash
		copy(out[:], doubleHashB(raw))
		return out, nil
	default:
		raw, err := h.Bytes()
		if err != nil {
			return chainhash.Hash{}, err
		}
		return chainhash.Hash(sha256.Sum256(raw)), nil
	}
}
