// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"io"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// RejectCode represents the numeric code of a reject message, identifying
// why the rejected message, block, or transaction was refused.
type RejectCode uint8

const (
	RejectMalformed       RejectCode = 0x01
	RejectInvalid         RejectCode = 0x10
	RejectObsolete        RejectCode = 0x11
	RejectDuplicate       RejectCode = 0x12
	RejectNonstandard     RejectCode = 0x40
	RejectDust            RejectCode = 0x41
	RejectInsufficientFee RejectCode = 0x42
	RejectCheckpoint      RejectCode = 0x43
)

// String returns a human-readable name for the reject code, falling back to
// "unknown" for a code this client has never seen documented.
func (c RejectCode) String() string {
	switch c {
	case RejectMalformed:
		return "malformed"
	case RejectInvalid:
		return "invalid"
	case RejectObsolete:
		return "obsolete"
	case RejectDuplicate:
		return "duplicate"
	case RejectNonstandard:
		return "nonstandard"
	case RejectDust:
		return "dust"
	case RejectInsufficientFee:
		return "insufficient fee"
	case RejectCheckpoint:
		return "checkpoint"
	default:
		return "unknown"
	}
}

// MsgReject explains why a previously sent message, transaction, or block
// was refused by the peer. Hash is only present for CmdTx/CmdBlock rejects.
type MsgReject struct {
	Cmd    string
	Code   RejectCode
	Reason string
	Hash   chainhash.Hash
}

func (m *MsgReject) Command() string { return CmdReject }

func (m *MsgReject) Decode(r io.Reader) error {
	cmd, err := ReadVarString(r)
	if err != nil {
		return err
	}
	m.Cmd = cmd

	code, err := binarySerializer.Uint8(r)
	if err != nil {
		return nil //nolint:nilerr // tolerate a truncated reject past the code
	}
	m.Code = RejectCode(code)

	if m.Reason, err = ReadVarString(r); err != nil {
		return nil //nolint:nilerr
	}

	if m.Cmd == CmdBlock || m.Cmd == CmdTx {
		if err := readHash(r, &m.Hash); err != nil {
			return nil //nolint:nilerr
		}
	}
	return nil
}

func (m *MsgReject) Encode(w io.Writer) error {
	if err := WriteVarString(w, m.Cmd); err != nil {
		return err
	}
	if err := binarySerializer.PutUint8(w, uint8(m.Code)); err != nil {
		return err
	}
	if err := WriteVarString(w, m.Reason); err != nil {
		return err
	}
	if m.Cmd == CmdBlock || m.Cmd == CmdTx {
		return writeHash(w, &m.Hash)
	}
	return nil
}
