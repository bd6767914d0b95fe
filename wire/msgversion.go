// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"io"
	"time"
)

// ProtocolVersion is the version this client announces in its own version
// message.
const ProtocolVersion uint32 = 70015

// MsgVersion implements the version handshake message. Decode tolerates a
// truncated payload (a peer that omits the trailing fields): any field past
// the point where the reader runs out of bytes is left at its zero value
// rather than causing an error, per the "real-world peers may omit fields"
// open question.
type MsgVersion struct {
	ProtocolVersion int32
	Services        uint64
	Timestamp       time.Time
	AddrRecv        NetAddress
	AddrFrom        NetAddress
	Nonce           uint64
	UserAgent       string
	StartHeight     int32
	Relay           bool
}

func (m *MsgVersion) Command() string { return CmdVersion }

func (m *MsgVersion) Decode(r io.Reader) error {
	pver, err := binarySerializer.Uint32(r)
	if err != nil {
		return err
	}
	m.ProtocolVersion = int32(pver)

	if m.Services, err = binarySerializer.Uint64(r); err != nil {
		return nil //nolint:nilerr // tolerate truncation past this point
	}
	if m.Timestamp, err = readTimestamp64(r); err != nil {
		return nil //nolint:nilerr
	}
	if err = m.AddrRecv.decode(r); err != nil {
		return nil //nolint:nilerr
	}
	if err = m.AddrFrom.decode(r); err != nil {
		return nil //nolint:nilerr
	}
	if m.Nonce, err = binarySerializer.Uint64(r); err != nil {
		return nil //nolint:nilerr
	}
	if m.UserAgent, err = ReadVarString(r); err != nil {
		return nil //nolint:nilerr
	}
	sh, err := binarySerializer.Uint32(r)
	if err != nil {
		return nil //nolint:nilerr
	}
	m.StartHeight = int32(sh)
	relay, err := binarySerializer.Uint8(r)
	if err != nil {
		return nil //nolint:nilerr
	}
	m.Relay = relay != 0
	return nil
}

func (m *MsgVersion) Encode(w io.Writer) error {
	if err := binarySerializer.PutUint32(w, uint32(m.ProtocolVersion)); err != nil {
		return err
	}
	if err := binarySerializer.PutUint64(w, m.Services); err != nil {
		return err
	}
	if err := writeTimestamp64(w, m.Timestamp); err != nil {
		return err
	}
	if err := m.AddrRecv.encode(w); err != nil {
		return err
	}
	if err := m.AddrFrom.encode(w); err != nil {
		return err
	}
	if err := binarySerializer.PutUint64(w, m.Nonce); err != nil {
		return err
	}
	if err := WriteVarString(w, m.UserAgent); err != nil {
		return err
	}
	if err := binarySerializer.PutUint32(w, uint32(m.StartHeight)); err != nil {
		return err
	}
	relay := uint8(0)
	if m.Relay {
		relay = 1
	}
	return binarySerializer.PutUint8(w, relay)
}

func readTimestamp64(r io.Reader) (time.Time, error) {
	secs, err := binarySerializer.Uint64(r)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(int64(secs), 0), nil
}

func writeTimestamp64(w io.Writer, t time.Time) error {
	return binarySerializer.PutUint64(w, uint64(t.Unix()))
}

// MsgVerAck implements the empty-payload verack message.
type MsgVerAck struct{}

func (m *MsgVerAck) Command() string          { return CmdVerAck }
func (m *MsgVerAck) Decode(r io.Reader) error  { return nil }
func (m *MsgVerAck) Encode(w io.Writer) error  { return nil }
