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

// MaxTxInPerMessage and MaxTxOutPerMessage bound the number of inputs and
// outputs a single transaction may carry on the wire, derived from the
// smallest possible input/output encoding dividing MaxPayloadSize.
const (
	MaxTxInPerMessage  = (MaxPayloadSize / 41) + 1
	MaxTxOutPerMessage = (MaxPayloadSize / 9) + 1

	witnessMarker = 0x00
	witnessFlag   = 0x01
)

// OutPoint identifies a specific output of a specific transaction.
type OutPoint struct {
	Hash  chainhash.Hash
	Index uint32
}

func (op OutPoint) String() string {
	return fmt.Sprintf("%s:%d", op.Hash, op.Index)
}

// TxWitness is the witness stack carried by a segwit input, one item per
// element, innermost item last.
type TxWitness [][]byte

// TxIn is one input of a transaction.
type TxIn struct {
	PreviousOutPoint OutPoint
	SignatureScript  []byte
	Witness          TxWitness
	Sequence         uint32
}

// TxOut is one output of a transaction.
type TxOut struct {
	Value    int64
	PkScript []byte
}

// MsgTx represents a Bitcoin-shaped transaction, including BIP144 segwit
// marker/flag/witness encoding.
//
// HeaderLength is unused by MsgTx itself; MsgBlock carries it so its Decode
// can find the block header in front of the transaction list.
type MsgTx struct {
	Version  int32
	TxIn     []*TxIn
	TxOut    []*TxOut
	LockTime uint32
}

func (m *MsgTx) Command() string { return CmdTx }

func (m *MsgTx) Decode(r io.Reader) error {
	version, err := binarySerializer.Uint32(r)
	if err != nil {
		return err
	}
	m.Version = int32(version)

	first, err := binarySerializer.Uint8(r)
	if err != nil {
		return err
	}

	hasWitness := false
	var txInCount uint64
	if first == witnessMarker {
		flag, err := binarySerializer.Uint8(r)
		if err != nil {
			return err
		}
		if flag != witnessFlag {
			return fmt.Errorf("unsupported witness flag byte %#x", flag)
		}
		hasWitness = true
		txInCount, err = ReadVarInt(r)
		if err != nil {
			return err
		}
	} else {
		txInCount, err = readVarIntFrom(r, first)
		if err != nil {
			return err
		}
	}
	if txInCount > MaxTxInPerMessage {
		return fmt.Errorf("too many transaction inputs [count %d, max %d]", txInCount, MaxTxInPerMessage)
	}

	m.TxIn = make([]*TxIn, txInCount)
	for i := range m.TxIn {
		ti := &TxIn{}
		if err := readHash(r, &ti.PreviousOutPoint.Hash); err != nil {
			return err
		}
		if ti.PreviousOutPoint.Index, err = binarySerializer.Uint32(r); err != nil {
			return err
		}
		if ti.SignatureScript, err = ReadVarBytes(r, MaxPayloadSize, "signature script"); err != nil {
			return err
		}
		if ti.Sequence, err = binarySerializer.Uint32(r); err != nil {
			return err
		}
		m.TxIn[i] = ti
	}

	txOutCount, err := ReadVarInt(r)
	if err != nil {
		return err
	}
	if txOutCount > MaxTxOutPerMessage {
		return fmt.Errorf("too many transaction outputs [count %d, max %d]", txOutCount, MaxTxOutPerMessage)
	}
	m.TxOut = make([]*TxOut, txOutCount)
	for i := range m.TxOut {
		to := &TxOut{}
		value, err := binarySerializer.Uint64(r)
		if err != nil {
			return err
		}
		to.Value = int64(value)
		if to.PkScript, err = ReadVarBytes(r, MaxPayloadSize, "pk script"); err != nil {
			return err
		}
		m.TxOut[i] = to
	}

	if hasWitness {
		for _, ti := range m.TxIn {
			stackLen, err := ReadVarInt(r)
			if err != nil {
				return err
			}
			ti.Witness = make(TxWitness, stackLen)
			for j := range ti.Witness {
				item, err := ReadVarBytes(r, MaxPayloadSize, "witness item")
				if err != nil {
					return err
				}
				ti.Witness[j] = item
			}
		}
	}

	m.LockTime, err = binarySerializer.Uint32(r)
	return err
}

func (m *MsgTx) Encode(w io.Writer) error {
	return m.serialize(w, m.HasWitness())
}

// HasWitness reports whether any input carries a witness stack.
func (m *MsgTx) HasWitness() bool {
	for _, ti := range m.TxIn {
		if len(ti.Witness) > 0 {
			return true
		}
	}
	return false
}

func (m *MsgTx) serialize(w io.Writer, includeWitness bool) error {
	if err := binarySerializer.PutUint32(w, uint32(m.Version)); err != nil {
		return err
	}
	if includeWitness {
		if err := binarySerializer.PutUint8(w, witnessMarker); err != nil {
			return err
		}
		if err := binarySerializer.PutUint8(w, witnessFlag); err != nil {
			return err
		}
	}
	if err := WriteVarInt(w, uint64(len(m.TxIn))); err != nil {
		return err
	}
	for _, ti := range m.TxIn {
		if err := writeHash(w, &ti.PreviousOutPoint.Hash); err != nil {
			return err
		}
		if err := binarySerializer.PutUint32(w, ti.PreviousOutPoint.Index); err != nil {
			return err
		}
		if err := WriteVarBytes(w, ti.SignatureScript); err != nil {
			return err
		}
		if err := binarySerializer.PutUint32(w, ti.Sequence); err != nil {
			return err
		}
	}
	if err := WriteVarInt(w, uint64(len(m.TxOut))); err != nil {
		return err
	}
	for _, to := range m.TxOut {
		if err := binarySerializer.PutUint64(w, uint64(to.Value)); err != nil {
			return err
		}
		if err := WriteVarBytes(w, to.PkScript); err != nil {
			return err
		}
	}
	if includeWitness {
		for _, ti := range m.TxIn {
			if err := WriteVarInt(w, uint64(len(ti.Witness))); err != nil {
				return err
			}
			for _, item := range ti.Witness {
				if err := WriteVarBytes(w, item); err != nil {
					return err
				}
			}
		}
	}
	return binarySerializer.PutUint32(w, m.LockTime)
}

// TxHash returns the transaction's legacy id: the double-SHA-256 of the
// non-witness serialization. This is the identifier used in block merkle
// trees and in outpoints.
func (m *MsgTx) TxHash() (chainhash.Hash, error) {
	var buf bufferWriter
	if err := m.serialize(&buf, false); err != nil {
		return chainhash.Hash{}, err
	}
	var h chainhash.Hash
	copy(h[:], doubleHashB(buf.b))
	return h, nil
}

// WitnessHash returns the double-SHA-256 of the full witness serialization,
// used as the leaf hash in the segwit commitment merkle tree.
func (m *MsgTx) WitnessHash() (chainhash.Hash, error) {
	var buf bufferWriter
	if err := m.serialize(&buf, true); err != nil {
		return chainhash.Hash{}, err
	}
	var h chainhash.Hash
	copy(h[:], doubleHashB(buf.b))
	return h, nil
}

// readVarIntFrom decodes a varint whose discriminant byte has already been
// consumed from r (used when the caller had to peek that byte to detect a
// segwit marker).
func readVarIntFrom(r io.Reader, discriminant uint8) (uint64, error) {
	switch discriminant {
	case 0xff:
		return binarySerializer.Uint64(r)
	case 0xfe:
		v, err := binarySerializer.Uint32(r)
		return uint64(v), err
	case 0xfd:
		v, err := binarySerializer.Uint16(r)
		return uint64(v), err
	default:
		return uint64(discriminant), nil
	}
}
