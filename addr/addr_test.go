// Copyright (c) 2018 The ExchangeCoin team
// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2016 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package addr

import (
	"bytes"
	"testing"

	"github.com/decred/dcrd/bech32"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/chainlight/lwallet/chaincfg"
)

func testPkHash(seedByte byte) [20]byte {
	var h [20]byte
	for i := range h {
		h[i] = seedByte
	}
	return h
}

func testPrivKey(seedByte byte) *secp256k1.PrivateKey {
	var raw [32]byte
	for i := range raw {
		raw[i] = seedByte
	}
	raw[31] ^= 0x01 // avoid the zero scalar
	return secp256k1.PrivKeyFromBytes(raw[:])
}

func TestP2PKHAddressRoundTrip(t *testing.T) {
	params := chaincfg.MainNetParams()
	pkHash := testPkHash(0x01)

	address := EncodeP2PKH(params, pkHash)

	script, err := AddressToScript(params, address)
	if err != nil {
		t.Fatalf("AddressToScript: %v", err)
	}
	if !bytes.Equal(script, p2pkhScript(pkHash[:])) {
		t.Errorf("decoded script %x does not match p2pkhScript(%x)", script, pkHash)
	}
}

func TestP2SHSegwitAddressRoundTrip(t *testing.T) {
	params := chaincfg.MainNetParams()
	pkHash := testPkHash(0x02)

	address := EncodeP2SHSegwit(params, pkHash)

	script, err := AddressToScript(params, address)
	if err != nil {
		t.Fatalf("AddressToScript: %v", err)
	}

	redeem := append([]byte{0x00, 0x14}, pkHash[:]...)
	scriptHash := Hash160(redeem)
	if !bytes.Equal(script, p2shScript(scriptHash[:])) {
		t.Errorf("decoded script %x does not match p2shScript(%x)", script, scriptHash)
	}
}

func TestP2WPKHAddressRoundTrip(t *testing.T) {
	for _, params := range []*chaincfg.Params{chaincfg.MainNetParams(), chaincfg.TestNetParams(), chaincfg.RegTestParams()} {
		pkHash := testPkHash(0x03)

		address, err := EncodeP2WPKH(params, pkHash)
		if err != nil {
			t.Fatalf("EncodeP2WPKH (%s): %v", params.Name, err)
		}

		script, err := AddressToScript(params, address)
		if err != nil {
			t.Fatalf("AddressToScript (%s): %v", params.Name, err)
		}
		if want := witnessScript(0, pkHash[:]); !bytes.Equal(script, want) {
			t.Errorf("%s: decoded script %x, want %x", params.Name, script, want)
		}
	}
}

func TestP2TRAddressRoundTrip(t *testing.T) {
	params := chaincfg.MainNetParams()
	priv := testPrivKey(0x04)
	outputKey, err := TweakTaprootOutputKey(priv.PubKey())
	if err != nil {
		t.Fatalf("TweakTaprootOutputKey: %v", err)
	}

	address, err := EncodeP2TR(params, outputKey)
	if err != nil {
		t.Fatalf("EncodeP2TR: %v", err)
	}

	script, err := AddressToScript(params, address)
	if err != nil {
		t.Fatalf("AddressToScript: %v", err)
	}
	if want := witnessScript(1, outputKey[:]); !bytes.Equal(script, want) {
		t.Errorf("decoded script %x, want %x", script, want)
	}
}

// TestWitnessVersionRequiresMatchingEncoding confirms AddressToScript
// rejects a version-1 program encoded with plain bech32 instead of
// bech32m, and a version-0 program encoded with bech32m instead of plain
// bech32 -- the two encodings are not interchangeable across witness
// versions (BIP350).
func TestWitnessVersionRequiresMatchingEncoding(t *testing.T) {
	params := chaincfg.MainNetParams()
	program := testPkHash(0x05)

	converted, err := bech32.ConvertBits(program[:], 8, 5, true)
	if err != nil {
		t.Fatalf("ConvertBits: %v", err)
	}

	v1Data := append([]byte{1}, converted...)
	wrongEncoding, err := bech32.Encode(params.Bech32HRPSegwit, v1Data)
	if err != nil {
		t.Fatalf("bech32.Encode: %v", err)
	}
	if _, err := AddressToScript(params, wrongEncoding); err != ErrUnsupportedWitnessVersion {
		t.Errorf("expected ErrUnsupportedWitnessVersion for v1-as-bech32, got %v", err)
	}

	v0Data := append([]byte{0}, converted...)
	wrongEncodingM, err := bech32.EncodeM(params.Bech32HRPSegwit, v0Data)
	if err != nil {
		t.Fatalf("bech32.EncodeM: %v", err)
	}
	if _, err := AddressToScript(params, wrongEncodingM); err != ErrUnsupportedWitnessVersion {
		t.Errorf("expected ErrUnsupportedWitnessVersion for v0-as-bech32m, got %v", err)
	}
}

func TestAddressToScriptRejectsBadChecksum(t *testing.T) {
	params := chaincfg.MainNetParams()
	address := EncodeP2PKH(params, testPkHash(0x06))
	tampered := []byte(address)
	tampered[len(tampered)-1] ^= 0x01

	if _, err := AddressToScript(params, string(tampered)); err == nil {
		t.Error("expected an error decoding a tampered base58check address")
	}
}

func TestAddressToScriptRejectsWrongNetwork(t *testing.T) {
	mainnet := chaincfg.MainNetParams()
	testnet := chaincfg.TestNetParams()
	address := EncodeP2PKH(mainnet, testPkHash(0x07))

	if _, err := AddressToScript(testnet, address); err != ErrInvalidAddress {
		t.Errorf("expected ErrInvalidAddress decoding a mainnet address against testnet params, got %v", err)
	}
}

func TestHash160Deterministic(t *testing.T) {
	a := Hash160([]byte("one"))
	b := Hash160([]byte("one"))
	c := Hash160([]byte("two"))

	if a != b {
		t.Error("expected Hash160 to be deterministic for the same input")
	}
	if a == c {
		t.Error("expected Hash160 to differ for different input")
	}
}

func TestTweakTaprootOutputKeyDeterministic(t *testing.T) {
	priv := testPrivKey(0x08)

	out1, err := TweakTaprootOutputKey(priv.PubKey())
	if err != nil {
		t.Fatalf("TweakTaprootOutputKey: %v", err)
	}
	out2, err := TweakTaprootOutputKey(priv.PubKey())
	if err != nil {
		t.Fatalf("TweakTaprootOutputKey: %v", err)
	}
	if out1 != out2 {
		t.Error("expected TweakTaprootOutputKey to be deterministic")
	}

	other := testPrivKey(0x09)
	outOther, err := TweakTaprootOutputKey(other.PubKey())
	if err != nil {
		t.Fatalf("TweakTaprootOutputKey: %v", err)
	}
	if out1 == outOther {
		t.Error("expected different internal keys to tweak to different output keys")
	}

	xOnly := serializeXOnly(priv.PubKey())
	if out1 == xOnly {
		t.Error("expected the tweaked output key to differ from the untweaked x-only internal key")
	}
}
