// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"fmt"
	"io"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// MaxBlockLocatorsPerMsg caps the number of locator hashes a getheaders
// message may carry.
const MaxBlockLocatorsPerMsg = 500

// MaxHeadersPerMsg caps the number of headers a single headers message may
// carry.
const MaxHeadersPerMsg = 2000

// BlockLocator is a set of block hashes, densely spaced near the chain tip
// and exponentially sparser toward genesis, used to let a peer locate the
// point of divergence between two chains.
type BlockLocator []*chainhash.Hash

// MsgGetHeaders requests a run of headers starting just after the first
// locator hash the peer recognizes, up to HashStop (or MaxHeadersPerMsg).
type MsgGetHeaders struct {
	ProtocolVersion    uint32
	BlockLocatorHashes BlockLocator
	HashStop           chainhash.Hash
}

func (m *MsgGetHeaders) Command() string { return CmdGetHeaders }

func (m *MsgGetHeaders) Decode(r io.Reader) error {
	pver, err := binarySerializer.Uint32(r)
	if err != nil {
		return err
	}
	m.ProtocolVersion = pver

	count, err := ReadVarInt(r)
	if err != nil {
		return err
	}
	if count > MaxBlockLocatorsPerMsg {
		return fmt.Errorf("too many block locator hashes [count %d, max %d]", count, MaxBlockLocatorsPerMsg)
	}
	m.BlockLocatorHashes = make(BlockLocator, 0, count)
	for i := uint64(0); i < count; i++ {
		var h chainhash.Hash
		if err := readHash(r, &h); err != nil {
			return err
		}
		m.BlockLocatorHashes = append(m.BlockLocatorHashes, &h)
	}
	return readHash(r, &m.HashStop)
}

func (m *MsgGetHeaders) Encode(w io.Writer) error {
	if len(m.BlockLocatorHashes) > MaxBlockLocatorsPerMsg {
		return fmt.Errorf("too many block locator hashes [count %d, max %d]", len(m.BlockLocatorHashes), MaxBlockLocatorsPerMsg)
	}
	if err := binarySerializer.PutUint32(w, m.ProtocolVersion); err != nil {
		return err
	}
	if err := WriteVarInt(w, uint64(len(m.BlockLocatorHashes))); err != nil {
		return err
	}
	for _, h := range m.BlockLocatorHashes {
		if err := writeHash(w, h); err != nil {
			return err
		}
	}
	return writeHash(w, &m.HashStop)
}

// MsgHeaders carries a run of block headers in response to a getheaders
// request. Each header is followed on the wire by a transaction count, which
// is always zero for a headers-only response and is preserved here only to
// stay byte-compatible with peers; it is not otherwise used.
//
// HeaderLength must be set (to chaincfg.Params.HeaderLength) before Decode is
// called, since the wire format carries no explicit per-header length field.
type MsgHeaders struct {
	HeaderLength int
	Headers      []*BlockHeader
}

func (m *MsgHeaders) Command() string { return CmdHeaders }

func (m *MsgHeaders) Decode(r io.Reader) error {
	count, err := ReadVarInt(r)
	if err != nil {
		return err
	}
	if count > MaxHeadersPerMsg {
		return fmt.Errorf("too many headers for message [count %d, max %d]", count, MaxHeadersPerMsg)
	}
	headerLength := m.HeaderLength
	if headerLength == 0 {
		headerLength = MinBlockHeaderPayload
	}
	m.Headers = make([]*BlockHeader, 0, count)
	for i := uint64(0); i < count; i++ {
		h := &BlockHeader{}
		if err := h.Decode(r, headerLength); err != nil {
			return err
		}
		txCount, err := ReadVarInt(r)
		if err != nil {
			return err
		}
		if txCount != 0 {
			return fmt.Errorf("headers message header %d has non-zero tx count %d", i, txCount)
		}
		m.Headers = append(m.Headers, h)
	}
	return nil
}

func (m *MsgHeaders) Encode(w io.Writer) error {
	if len(m.Headers) > MaxHeadersPerMsg {
		return fmt.Errorf("too many headers for message [count %d, max %d]", len(m.Headers), MaxHeadersPerMsg)
	}
	if err := WriteVarInt(w, uint64(len(m.Headers))); err != nil {
		return err
	}
	for _, h := range m.Headers {
		if err := h.Serialize(w); err != nil {
			return err
		}
		if err := WriteVarInt(w, 0); err != nil {
			return err
		}
	}
	return nil
}
