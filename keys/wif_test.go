// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package keys

import (
	"bytes"
	"testing"

	"github.com/chainlight/lwallet/chaincfg"
)

func TestEncodeDecodeWIFRoundTrip(t *testing.T) {
	priv := []byte{
		0x0c, 0x28, 0xfc, 0xa3, 0x86, 0xc7, 0xa2, 0x27,
		0x60, 0x0b, 0x2f, 0xe5, 0x0b, 0x7c, 0xae, 0x11,
		0xec, 0x86, 0xd3, 0xbf, 0x1f, 0xbe, 0x47, 0x1b,
		0xe8, 0x98, 0x27, 0xe1, 0x9d, 0x72, 0xaa, 0x1d,
	}
	params := chaincfg.MainNetParams()

	wif, err := EncodeWIF(priv, params)
	if err != nil {
		t.Fatalf("EncodeWIF: %v", err)
	}

	decoded, err := DecodeWIF(wif, params)
	if err != nil {
		t.Fatalf("DecodeWIF: %v", err)
	}
	if !bytes.Equal(decoded, priv) {
		t.Errorf("expected decoded key %x, got %x", priv, decoded)
	}
}

func TestEncodeWIFRejectsWrongLength(t *testing.T) {
	if _, err := EncodeWIF([]byte{0x01, 0x02}, chaincfg.MainNetParams()); err != ErrMalformedWIF {
		t.Errorf("expected ErrMalformedWIF, got %v", err)
	}
}

func TestDecodeWIFRejectsWrongNetwork(t *testing.T) {
	priv := make([]byte, 32)
	wif, err := EncodeWIF(priv, chaincfg.MainNetParams())
	if err != nil {
		t.Fatalf("EncodeWIF: %v", err)
	}
	if _, err := DecodeWIF(wif, chaincfg.TestNetParams()); err != ErrWrongWIFNetwork {
		t.Errorf("expected ErrWrongWIFNetwork, got %v", err)
	}
}

func TestDecodeWIFRejectsBadChecksum(t *testing.T) {
	priv := make([]byte, 32)
	wif, err := EncodeWIF(priv, chaincfg.MainNetParams())
	if err != nil {
		t.Fatalf("EncodeWIF: %v", err)
	}
	tampered := []byte(wif)
	tampered[0]++
	if _, err := DecodeWIF(string(tampered), chaincfg.MainNetParams()); err == nil {
		t.Errorf("expected an error decoding a tampered WIF string")
	}
}
