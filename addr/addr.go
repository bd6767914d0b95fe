// Copyright (c) 2018 The ExchangeCoin team
// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2016 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package addr implements the address encodings a light wallet needs:
// Base58Check P2PKH and nested-segwit P2SH, and Bech32/Bech32m native
// segwit (P2WPKH) and taproot (P2TR) outputs, plus the corresponding
// address-to-script decode.
package addr

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/EXCCoin/base58"
	"github.com/decred/dcrd/bech32"
	"github.com/decred/dcrd/crypto/ripemd160"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/chainlight/lwallet/chaincfg"
)

// Type enumerates the supported output/address kinds.
type Type int

const (
	P2PKH Type = iota
	P2SHSegwit
	P2WPKH
	P2TR
)

var (
	// ErrUnsupportedWitnessVersion is returned when decoding a bech32
	// program whose witness version this package does not understand.
	ErrUnsupportedWitnessVersion = errors.New("addr: unsupported witness version")
	// ErrInvalidAddress is returned for malformed or checksum-invalid
	// address strings.
	ErrInvalidAddress = errors.New("addr: invalid address")
)

const checksumLen = 4

// Hash160 computes RIPEMD160(SHA256(b)), the standard pubkey/script hash.
func Hash160(b []byte) [20]byte {
	sha := sha256.Sum256(b)
	h := ripemd160.New()
	h.Write(sha[:])
	var out [20]byte
	copy(out[:], h.Sum(nil))
	return out
}

func base58CheckEncode(version byte, payload []byte) string {
	buf := make([]byte, 0, 1+len(payload)+checksumLen)
	buf = append(buf, version)
	buf = append(buf, payload...)
	sum := doubleSHA256(buf)
	buf = append(buf, sum[:checksumLen]...)
	return base58.Encode(buf)
}

func base58CheckDecode(s string) (version byte, payload []byte, err error) {
	decoded := base58.Decode(s)
	if len(decoded) < 1+checksumLen {
		return 0, nil, ErrInvalidAddress
	}
	body := decoded[:len(decoded)-checksumLen]
	sum := decoded[len(decoded)-checksumLen:]
	want := doubleSHA256(body)
	for i := 0; i < checksumLen; i++ {
		if sum[i] != want[i] {
			return 0, nil, ErrInvalidAddress
		}
	}
	return body[0], body[1:], nil
}

func doubleSHA256(b []byte) [32]byte {
	first := sha256.Sum256(b)
	return sha256.Sum256(first[:])
}

// EncodeP2PKH returns the legacy Base58Check address for a public key hash.
func EncodeP2PKH(params *chaincfg.Params, pkHash [20]byte) string {
	return base58CheckEncode(params.PubKeyHashAddrID, pkHash[:])
}

// EncodeP2SHSegwit returns the nested-segwit Base58Check address that wraps
// a P2WPKH redeem script for a public key hash: the address hashes
// `OP_0 OP_DATA_20 <pkHash>`.
func EncodeP2SHSegwit(params *chaincfg.Params, pkHash [20]byte) string {
	redeem := append([]byte{0x00, 0x14}, pkHash[:]...)
	scriptHash := Hash160(redeem)
	return base58CheckEncode(params.ScriptHashAddrID, scriptHash[:])
}

// EncodeP2WPKH returns the native segwit bech32 address for a public key
// hash (witness version 0).
func EncodeP2WPKH(params *chaincfg.Params, pkHash [20]byte) (string, error) {
	return encodeWitness(params.Bech32HRPSegwit, 0, pkHash[:])
}

// EncodeP2TR returns the bech32m taproot address for a 32-byte x-only
// output key (witness version 1).
func EncodeP2TR(params *chaincfg.Params, outputKey [32]byte) (string, error) {
	return encodeWitness(params.Bech32HRPSegwit, 1, outputKey[:])
}

func encodeWitness(hrp string, version byte, program []byte) (string, error) {
	converted, err := bech32.ConvertBits(program, 8, 5, true)
	if err != nil {
		return "", err
	}
	data := make([]byte, 0, len(converted)+1)
	data = append(data, version)
	data = append(data, converted...)
	if version == 0 {
		return bech32.Encode(hrp, data)
	}
	return bech32.EncodeM(hrp, data)
}

// AddressToScript decodes a human-readable address into the scriptPubKey it
// represents, for the given chain parameters.
func AddressToScript(params *chaincfg.Params, address string) ([]byte, error) {
	if hrp, data, encoding, err := bech32.DecodeGeneric(address); err == nil && hrp == params.Bech32HRPSegwit {
		if len(data) < 1 {
			return nil, ErrInvalidAddress
		}
		version := data[0]
		program, err := bech32.ConvertBits(data[1:], 5, 8, false)
		if err != nil {
			return nil, err
		}
		switch {
		case version == 0 && encoding == bech32.Bech32:
			return witnessScript(version, program), nil
		case version >= 1 && version <= 16 && encoding == bech32.Bech32m:
			return witnessScript(version, program), nil
		default:
			return nil, ErrUnsupportedWitnessVersion
		}
	}

	version, payload, err := base58CheckDecode(address)
	if err != nil {
		return nil, err
	}
	switch {
	case version == params.PubKeyHashAddrID:
		if len(payload) != 20 {
			return nil, ErrInvalidAddress
		}
		return p2pkhScript(payload), nil
	case version == params.ScriptHashAddrID:
		if len(payload) != 20 {
			return nil, ErrInvalidAddress
		}
		return p2shScript(payload), nil
	default:
		return nil, ErrInvalidAddress
	}
}

func witnessScript(version byte, program []byte) []byte {
	op := opN(version)
	script := make([]byte, 0, 2+len(program))
	script = append(script, op, byte(len(program)))
	return append(script, program...)
}

// opN returns the script opcode for small integer N (OP_0=0x00, OP_1..OP_16
// = 0x51..0x60), matching witness version encoding in scriptPubKeys.
func opN(n byte) byte {
	if n == 0 {
		return 0x00
	}
	return 0x50 + n
}

func p2pkhScript(pkHash []byte) []byte {
	script := make([]byte, 0, 25)
	script = append(script, 0x76, 0xa9, 0x14)
	script = append(script, pkHash...)
	script = append(script, 0x88, 0xac)
	return script
}

func p2shScript(scriptHash []byte) []byte {
	script := make([]byte, 0, 23)
	script = append(script, 0xa9, 0x14)
	script = append(script, scriptHash...)
	script = append(script, 0x87)
	return script
}

// tapTweakTag is the BIP341 tagged-hash domain for taproot key tweaking.
var tapTweakTag = sha256.Sum256([]byte("TapTweak"))

// TweakTaprootOutputKey computes the taproot output key for an internal
// public key with no script-path commitment: Q = lift_x(P) + t·G, where
// t = SHA256(TapTweak-tag || TapTweak-tag || x_only(P)) mod n, and the
// output is encoded as the x-only coordinate of Q.
func TweakTaprootOutputKey(internal *secp256k1.PublicKey) ([32]byte, error) {
	xOnly := serializeXOnly(internal)

	h := sha256.New()
	h.Write(tapTweakTag[:])
	h.Write(tapTweakTag[:])
	h.Write(xOnly[:])
	tweak := h.Sum(nil)

	var tweakScalar secp256k1.ModNScalar
	overflow := tweakScalar.SetByteSlice(tweak)
	if overflow {
		return [32]byte{}, fmt.Errorf("addr: tap tweak scalar overflows curve order")
	}

	var p secp256k1.JacobianPoint
	internal.AsJacobian(&p)
	if p.Y.IsOdd() {
		p.Y.Negate(1)
		p.Y.Normalize()
	}

	var tG secp256k1.JacobianPoint
	secp256k1.ScalarBaseMultNonConst(&tweakScalar, &tG)

	var q secp256k1.JacobianPoint
	secp256k1.AddNonConst(&p, &tG, &q)
	q.ToAffine()

	var out [32]byte
	xBytes := q.X.Bytes()
	copy(out[:], xBytes[:])
	return out, nil
}

// serializeXOnly returns the x-only coordinate of a public key, per BIP340.
func serializeXOnly(pub *secp256k1.PublicKey) [32]byte {
	var out [32]byte
	compressed := pub.SerializeCompressed()
	copy(out[:], compressed[1:])
	return out
}
