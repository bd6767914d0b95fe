// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"io"
	"net"
)

// NetAddress represents the legacy 26-byte peer address record (services,
// IPv6-mapped IP, port) used in version and addr payloads.
type NetAddress struct {
	Services uint64
	IP       net.IP
	Port     uint16
}

func (na *NetAddress) decode(r io.Reader) error {
	services, err := binarySerializer.Uint64(r)
	if err != nil {
		return err
	}
	na.Services = services

	var ip [16]byte
	if _, err := io.ReadFull(r, ip[:]); err != nil {
		return err
	}
	na.IP = net.IP(append([]byte(nil), ip[:]...))

	var portBuf [2]byte
	if _, err := io.ReadFull(r, portBuf[:]); err != nil {
		return err
	}
	na.Port = uint16(portBuf[0])<<8 | uint16(portBuf[1])

	return nil
}

func (na *NetAddress) encode(w io.Writer) error {
	if err := binarySerializer.PutUint64(w, na.Services); err != nil {
		return err
	}
	var ip [16]byte
	if ip4 := na.IP.To4(); ip4 != nil {
		copy(ip[:12], []byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0xff, 0xff})
		copy(ip[12:], ip4)
	} else if ip16 := na.IP.To16(); ip16 != nil {
		copy(ip[:], ip16)
	}
	if _, err := w.Write(ip[:]); err != nil {
		return err
	}
	portBuf := [2]byte{byte(na.Port >> 8), byte(na.Port)}
	_, err := w.Write(portBuf[:])
	return err
}

// Service flag bits relevant to a light client.
const (
	SFNodeNetwork        uint64 = 1 << 0
	SFNodeBloom          uint64 = 1 << 2
	SFNodeWitness        uint64 = 1 << 3
	SFNodeCompactFilters uint64 = 1 << 6
	SFNodeNetworkLimited  uint64 = 1 << 10
)

// HasService reports whether the service bit is set.
func (na *NetAddress) HasService(bit uint64) bool {
	return na.Services&bit == bit
}
