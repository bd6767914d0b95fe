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

// FilterType identifies the kind of compact filter a cfilter/cfheaders
// message carries. Only the basic filter (type 0, BIP158) is defined.
type FilterType uint8

const FilterTypeBasic FilterType = 0

// MaxCFilterDataSize bounds the size of a single committed filter's payload.
const MaxCFilterDataSize = 256 * 1024

// CFCheckptSpacing is the block-height spacing between filter-header
// checkpoints, fixed by BIP157.
const CFCheckptSpacing = 1000

// MaxCFHeadersPerMsg bounds the number of filter header hashes a single
// cfheaders message may carry.
const MaxCFHeadersPerMsg = 2000

// MsgGetCFCheckpt requests a filter-header checkpoint list up to StopHash.
type MsgGetCFCheckpt struct {
	FilterType FilterType
	StopHash   chainhash.Hash
}

func (m *MsgGetCFCheckpt) Command() string { return CmdGetCFCheckpt }
func (m *MsgGetCFCheckpt) Decode(r io.Reader) error {
	ft, err := binarySerializer.Uint8(r)
	if err != nil {
		return err
	}
	m.FilterType = FilterType(ft)
	return readHash(r, &m.StopHash)
}
func (m *MsgGetCFCheckpt) Encode(w io.Writer) error {
	if err := binarySerializer.PutUint8(w, uint8(m.FilterType)); err != nil {
		return err
	}
	return writeHash(w, &m.StopHash)
}

// MsgCFCheckpt carries filter-header checkpoints spaced CFCheckptSpacing
// blocks apart, up to the height named by StopHash in the request.
type MsgCFCheckpt struct {
	FilterType         FilterType
	StopHash           chainhash.Hash
	FilterHeaders      []chainhash.Hash
}

func (m *MsgCFCheckpt) Command() string { return CmdCFCheckpt }
func (m *MsgCFCheckpt) Decode(r io.Reader) error {
	ft, err := binarySerializer.Uint8(r)
	if err != nil {
		return err
	}
	m.FilterType = FilterType(ft)
	if err := readHash(r, &m.StopHash); err != nil {
		return err
	}
	count, err := ReadVarInt(r)
	if err != nil {
		return err
	}
	m.FilterHeaders = make([]chainhash.Hash, count)
	for i := range m.FilterHeaders {
		if err := readHash(r, &m.FilterHeaders[i]); err != nil {
			return err
		}
	}
	return nil
}
func (m *MsgCFCheckpt) Encode(w io.Writer) error {
	if err := binarySerializer.PutUint8(w, uint8(m.FilterType)); err != nil {
		return err
	}
	if err := writeHash(w, &m.StopHash); err != nil {
		return err
	}
	if err := WriteVarInt(w, uint64(len(m.FilterHeaders))); err != nil {
		return err
	}
	for i := range m.FilterHeaders {
		if err := writeHash(w, &m.FilterHeaders[i]); err != nil {
			return err
		}
	}
	return nil
}

// MsgGetCFHeaders requests filter headers for the inclusive height range
// [StartHeight, height of StopHash].
type MsgGetCFHeaders struct {
	FilterType  FilterType
	StartHeight uint32
	StopHash    chainhash.Hash
}

func (m *MsgGetCFHeaders) Command() string { return CmdGetCFHeaders }
func (m *MsgGetCFHeaders) Decode(r io.Reader) error {
	ft, err := binarySerializer.Uint8(r)
	if err != nil {
		return err
	}
	m.FilterType = FilterType(ft)
	if m.StartHeight, err = binarySerializer.Uint32(r); err != nil {
		return err
	}
	return readHash(r, &m.StopHash)
}
func (m *MsgGetCFHeaders) Encode(w io.Writer) error {
	if err := binarySerializer.PutUint8(w, uint8(m.FilterType)); err != nil {
		return err
	}
	if err := binarySerializer.PutUint32(w, m.StartHeight); err != nil {
		return err
	}
	return writeHash(w, &m.StopHash)
}

// MsgCFHeaders answers a getcfheaders request with the filter header chained
// from PrevFilterHeader plus one filter hash per block in the requested
// range. The chain is rebuilt as:
//
//	filterHeader[i] = SHA256(filterHashes[i] || filterHeader[i-1])
//
// seeded by PrevFilterHeader for the first entry.
type MsgCFHeaders struct {
	FilterType        FilterType
	StopHash          chainhash.Hash
	PrevFilterHeader  chainhash.Hash
	FilterHashes      []chainhash.Hash
}

func (m *MsgCFHeaders) Command() string { return CmdCFHeaders }
func (m *MsgCFHeaders) Decode(r io.Reader) error {
	ft, err := binarySerializer.Uint8(r)
	if err != nil {
		return err
	}
	m.FilterType = FilterType(ft)
	if err := readHash(r, &m.StopHash); err != nil {
		return err
	}
	if err := readHash(r, &m.PrevFilterHeader); err != nil {
		return err
	}
	count, err := ReadVarInt(r)
	if err != nil {
		return err
	}
	if count > MaxCFHeadersPerMsg {
		return fmt.Errorf("too many filter hashes [count %d, max %d]", count, MaxCFHeadersPerMsg)
	}
	m.FilterHashes = make([]chainhash.Hash, count)
	for i := range m.FilterHashes {
		if err := readHash(r, &m.FilterHashes[i]); err != nil {
			return err
		}
	}
	return nil
}
func (m *MsgCFHeaders) Encode(w io.Writer) error {
	if len(m.FilterHashes) > MaxCFHeadersPerMsg {
		return fmt.Errorf("too many filter hashes [count %d, max %d]", len(m.FilterHashes), MaxCFHeadersPerMsg)
	}
	if err := binarySerializer.PutUint8(w, uint8(m.FilterType)); err != nil {
		return err
	}
	if err := writeHash(w, &m.StopHash); err != nil {
		return err
	}
	if err := writeHash(w, &m.PrevFilterHeader); err != nil {
		return err
	}
	if err := WriteVarInt(w, uint64(len(m.FilterHashes))); err != nil {
		return err
	}
	for i := range m.FilterHashes {
		if err := writeHash(w, &m.FilterHashes[i]); err != nil {
			return err
		}
	}
	return nil
}

// MsgGetCFilters requests the raw committed filters for the inclusive height
// range [StartHeight, height of StopHash].
type MsgGetCFilters struct {
	FilterType  FilterType
	StartHeight uint32
	StopHash    chainhash.Hash
}

func (m *MsgGetCFilters) Command() string { return CmdGetCFilters }
func (m *MsgGetCFilters) Decode(r io.Reader) error {
	ft, err := binarySerializer.Uint8(r)
	if err != nil {
		return err
	}
	m.FilterType = FilterType(ft)
	if m.StartHeight, err = binarySerializer.Uint32(r); err != nil {
		return err
	}
	return readHash(r, &m.StopHash)
}
func (m *MsgGetCFilters) Encode(w io.Writer) error {
	if err := binarySerializer.PutUint8(w, uint8(m.FilterType)); err != nil {
		return err
	}
	if err := binarySerializer.PutUint32(w, m.StartHeight); err != nil {
		return err
	}
	return writeHash(w, &m.StopHash)
}

// MsgCFilter carries one committed compact filter's raw encoded bytes for a
// single block. Decoding the GCS payload itself is left to the gcs package.
type MsgCFilter struct {
	FilterType FilterType
	BlockHash  chainhash.Hash
	Data       []byte
}

func (m *MsgCFilter) Command() string { return CmdCFilter }
func (m *MsgCFilter) Decode(r io.Reader) error {
	ft, err := binarySerializer.Uint8(r)
	if err != nil {
		return err
	}
	m.FilterType = FilterType(ft)
	if err := readHash(r, &m.BlockHash); err != nil {
		return err
	}
	m.Data, err = ReadVarBytes(r, MaxCFilterDataSize, "cfilter data")
	return err
}
func (m *MsgCFilter) Encode(w io.Writer) error {
	if len(m.Data) > MaxCFilterDataSize {
		return fmt.Errorf("cfilter data of %d bytes exceeds max of %d", len(m.Data), MaxCFilterDataSize)
	}
	if err := binarySerializer.PutUint8(w, uint8(m.FilterType)); err != nil {
		return err
	}
	if err := writeHash(w, &m.BlockHash); err != nil {
		return err
	}
	return WriteVarBytes(w, m.Data)
}
