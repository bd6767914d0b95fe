// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"fmt"
	"io"
)

// MaxTxPerBlock bounds the number of transactions this client will parse out
// of a single block payload.
const MaxTxPerBlock = 1_000_000

// MsgBlock is a full block: header plus transaction list. A light client
// requests these only for transactions that matched a compact filter, so
// blocks are parsed in full but never held for longer than that scan needs.
//
// HeaderLength must be set (to chaincfg.Params.HeaderLength) before Decode is
// called, mirroring MsgHeaders.
type MsgBlock struct {
	HeaderLength int
	Header       BlockHeader
	Transactions []*MsgTx
}

func (m *MsgBlock) Command() string { return CmdBlock }

func (m *MsgBlock) Decode(r io.Reader) error {
	headerLength := m.HeaderLength
	if headerLength == 0 {
		headerLength = MinBlockHeaderPayload
	}
	if err := m.Header.Decode(r, headerLength); err != nil {
		return err
	}
	count, err := ReadVarInt(r)
	if err != nil {
		return err
	}
	if count > MaxTxPerBlock {
		return fmt.Errorf("too many transactions in block [count %d, max %d]", count, MaxTxPerBlock)
	}
	m.Transactions = make([]*MsgTx, count)
	for i := range m.Transactions {
		tx := &MsgTx{}
		if err := tx.Decode(r); err != nil {
			return err
		}
		m.Transactions[i] = tx
	}
	return nil
}

func (m *MsgBlock) Encode(w io.Writer) error {
	if err := m.Header.Serialize(w); err != nil {
		return err
	}
	if err := WriteVarInt(w, uint64(len(m.Transactions))); err != nil {
		return err
	}
	for _, tx := range m.Transactions {
		if err := tx.Encode(w); err != nil {
			return err
		}
	}
	return nil
}
