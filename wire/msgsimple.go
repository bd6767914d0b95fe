// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import "io"

// MsgPing carries a nonce used to measure round-trip time to a peer.
type MsgPing struct {
	Nonce uint64
}

func (m *MsgPing) Command() string { return CmdPing }
func (m *MsgPing) Decode(r io.Reader) error {
	n, err := binarySerializer.Uint64(r)
	m.Nonce = n
	return err
}
func (m *MsgPing) Encode(w io.Writer) error {
	return binarySerializer.PutUint64(w, m.Nonce)
}

// MsgPong echoes the nonce from a MsgPing.
type MsgPong struct {
	Nonce uint64
}

func (m *MsgPong) Command() string { return CmdPong }
func (m *MsgPong) Decode(r io.Reader) error {
	n, err := binarySerializer.Uint64(r)
	m.Nonce = n
	return err
}
func (m *MsgPong) Encode(w io.Writer) error {
	return binarySerializer.PutUint64(w, m.Nonce)
}

// MsgGetAddr requests known peer addresses; it carries no payload.
type MsgGetAddr struct{}

func (m *MsgGetAddr) Command() string         { return CmdGetAddr }
func (m *MsgGetAddr) Decode(r io.Reader) error { return nil }
func (m *MsgGetAddr) Encode(w io.Writer) error { return nil }

// MsgMemPool requests the peer's mempool transaction ids via inv; it carries
// no payload.
type MsgMemPool struct{}

func (m *MsgMemPool) Command() string         { return CmdMemPool }
func (m *MsgMemPool) Decode(r io.Reader) error { return nil }
func (m *MsgMemPool) Encode(w io.Writer) error { return nil }

// MsgSendHeaders requests that new blocks be announced via headers instead
// of inv; it carries no payload.
type MsgSendHeaders struct{}

func (m *MsgSendHeaders) Command() string         { return CmdSendHeaders }
func (m *MsgSendHeaders) Decode(r io.Reader) error { return nil }
func (m *MsgSendHeaders) Encode(w io.Writer) error { return nil }

// MsgSendAddrV2 requests addrv2 instead of addr; it carries no payload.
type MsgSendAddrV2 struct{}

func (m *MsgSendAddrV2) Command() string         { return CmdSendAddrV2 }
func (m *MsgSendAddrV2) Decode(r io.Reader) error { return nil }
func (m *MsgSendAddrV2) Encode(w io.Writer) error { return nil }

// MsgSendCmpct announces compact block relay support/preference.
type MsgSendCmpct struct {
	Announce bool
	Version  uint64
}

func (m *MsgSendCmpct) Command() string { return CmdSendCmpct }
func (m *MsgSendCmpct) Decode(r io.Reader) error {
	b, err := binarySerializer.Uint8(r)
	if err != nil {
		return err
	}
	m.Announce = b != 0
	m.Version, err = binarySerializer.Uint64(r)
	return err
}
func (m *MsgSendCmpct) Encode(w io.Writer) error {
	b := uint8(0)
	if m.Announce {
		b = 1
	}
	if err := binarySerializer.PutUint8(w, b); err != nil {
		return err
	}
	return binarySerializer.PutUint64(w, m.Version)
}

// MsgFeeFilter informs a peer of the minimum relay fee we want to be
// notified about via inv.
type MsgFeeFilter struct {
	MinFee int64
}

func (m *MsgFeeFilter) Command() string { return CmdFeeFilter }
func (m *MsgFeeFilter) Decode(r io.Reader) error {
	v, err := binarySerializer.Uint64(r)
	m.MinFee = int64(v)
	return err
}
func (m *MsgFeeFilter) Encode(w io.Writer) error {
	return binarySerializer.PutUint64(w, uint64(m.MinFee))
}
