// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"fmt"
	"io"
	"time"
)

// MaxAddrPerMsg caps the number of addresses carried in a single addr
// message, matching common wire protocol policy.
const MaxAddrPerMsg = 1000

// AddrEntry is one timestamped address record from an addr message.
type AddrEntry struct {
	Timestamp time.Time
	NetAddress
}

// MsgAddr carries a batch of peer addresses.
type MsgAddr struct {
	AddrList []*AddrEntry
}

func (m *MsgAddr) Command() string { return CmdAddr }

func (m *MsgAddr) Decode(r io.Reader) error {
	count, err := ReadVarInt(r)
	if err != nil {
		return err
	}
	if count > MaxAddrPerMsg {
		return fmt.Errorf("too many addresses for message [count %d, max %d]", count, MaxAddrPerMsg)
	}
	m.AddrList = make([]*AddrEntry, 0, count)
	for i := uint64(0); i < count; i++ {
		ts, err := readTimestamp32(r)
		if err != nil {
			return err
		}
		e := &AddrEntry{Timestamp: ts}
		if err := e.NetAddress.decode(r); err != nil {
			return err
		}
		m.AddrList = append(m.AddrList, e)
	}
	return nil
}

func (m *MsgAddr) Encode(w io.Writer) error {
	if len(m.AddrList) > MaxAddrPerMsg {
		return fmt.Errorf("too many addresses for message [count %d, max %d]", len(m.AddrList), MaxAddrPerMsg)
	}
	if err := WriteVarInt(w, uint64(len(m.AddrList))); err != nil {
		return err
	}
	for _, e := range m.AddrList {
		if err := writeTimestamp32(w, e.Timestamp); err != nil {
			return err
		}
		if err := e.NetAddress.encode(w); err != nil {
			return err
		}
	}
	return nil
}
