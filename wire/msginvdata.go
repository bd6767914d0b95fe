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

// InvType identifies the kind of object an inventory vector refers to.
type InvType uint32

const (
	InvTypeError InvType = 0
	InvTypeTx    InvType = 1
	InvTypeBlock InvType = 2
	// InvTypeWitnessTx and InvTypeWitnessBlock request the witness
	// serialization of the object, per BIP144.
	InvTypeWitnessTx    InvType = InvTypeTx | 1<<30
	InvTypeWitnessBlock InvType = InvTypeBlock | 1<<30
	// InvTypeFilteredBlock is unused by this client (it does not serve
	// bloom-filtered merkleblocks) but is recognized so it can be logged
	// rather than silently misparsed if a peer ever sends it.
	InvTypeFilteredBlock InvType = 3
)

// InvVect is one entry in an inv, getdata, or notfound message.
type InvVect struct {
	Type InvType
	Hash chainhash.Hash
}

// MaxInvPerMsg caps the number of inventory vectors in a single message.
const MaxInvPerMsg = 50000

func decodeInvList(r io.Reader) ([]*InvVect, error) {
	count, err := ReadVarInt(r)
	if err != nil {
		return nil, err
	}
	if count > MaxInvPerMsg {
		return nil, fmt.Errorf("too many inventory vectors [count %d, max %d]", count, MaxInvPerMsg)
	}
	list := make([]*InvVect, 0, count)
	for i := uint64(0); i < count; i++ {
		typ, err := binarySerializer.Uint32(r)
		if err != nil {
			return nil, err
		}
		var h chainhash.Hash
		if err := readHash(r, &h); err != nil {
			return nil, err
		}
		list = append(list, &InvVect{Type: InvType(typ), Hash: h})
	}
	return list, nil
}

func encodeInvList(w io.Writer, list []*InvVect) error {
	if len(list) > MaxInvPerMsg {
		return fmt.Errorf("too many inventory vectors [count %d, max %d]", len(list), MaxInvPerMsg)
	}
	if err := WriteVarInt(w, uint64(len(list))); err != nil {
		return err
	}
	for _, iv := range list {
		if err := binarySerializer.PutUint32(w, uint32(iv.Type)); err != nil {
			return err
		}
		if err := writeHash(w, &iv.Hash); err != nil {
			return err
		}
	}
	return nil
}

// MsgInv announces objects the sender has available.
type MsgInv struct {
	InvList []*InvVect
}

func (m *MsgInv) Command() string           { return CmdInv }
func (m *MsgInv) Decode(r io.Reader) error   { l, err := decodeInvList(r); m.InvList = l; return err }
func (m *MsgInv) Encode(w io.Writer) error   { return encodeInvList(w, m.InvList) }
func (m *MsgInv) AddInvVect(iv *InvVect)     { m.InvList = append(m.InvList, iv) }

// MsgGetData requests the full objects named by its inventory vectors.
type MsgGetData struct {
	InvList []*InvVect
}

func (m *MsgGetData) Command() string         { return CmdGetData }
func (m *MsgGetData) Decode(r io.Reader) error { l, err := decodeInvList(r); m.InvList = l; return err }
func (m *MsgGetData) Encode(w io.Writer) error { return encodeInvList(w, m.InvList) }
func (m *MsgGetData) AddInvVect(iv *InvVect)   { m.InvList = append(m.InvList, iv) }

// MsgNotFound is returned in place of an object a peer could not satisfy
// from a getdata request.
type MsgNotFound struct {
	InvList []*InvVect
}

func (m *MsgNotFound) Command() string         { return CmdNotFound }
func (m *MsgNotFound) Decode(r io.Reader) error { l, err := decodeInvList(r); m.InvList = l; return err }
func (m *MsgNotFound) Encode(w io.Writer) error { return encodeInvList(w, m.InvList) }
