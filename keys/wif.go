// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package keys

import (
	"bytes"
	"crypto/sha256"
	"errors"

	"github.com/EXCCoin/base58"

	"github.com/chainlight/lwallet/chaincfg"
)

// ErrMalformedWIF is returned when a WIF-encoded private key is the wrong
// length to be a compressed secp256k1 key for this wallet.
var ErrMalformedWIF = errors.New("keys: malformed WIF-encoded private key")

// ErrChecksumMismatch is returned when a WIF's trailing checksum doesn't
// match the double-SHA-256 of the rest of the decoded payload.
var ErrChecksumMismatch = errors.New("keys: WIF checksum mismatch")

// ErrWrongWIFNetwork is returned when a decoded WIF's network byte doesn't
// match the network it was decoded against.
var ErrWrongWIFNetwork = errors.New("keys: WIF is not for the expected network")

const (
	privKeyBytesLen = 32
	cksumBytesLen   = 4
	compressedFlag  = 0x01
)

// EncodeWIF returns the Wallet Import Format (WIF) string for the 32-byte
// private key privKey, for backup/export of a single key. This wallet
// always serializes the associated public key compressed, since every
// address it derives is native segwit.
//
// Layout: netID(1) || privkey(32) || compressedFlag(1) || checksum(4),
// base58-encoded.
func EncodeWIF(privKey []byte, params *chaincfg.Params) (string, error) {
	if len(privKey) != privKeyBytesLen {
		return "", ErrMalformedWIF
	}

	payload := make([]byte, 0, 1+privKeyBytesLen+1)
	payload = append(payload, params.PrivateKeyID)
	payload = append(payload, privKey...)
	payload = append(payload, compressedFlag)

	cksum := doubleSHA256(payload)
	payload = append(payload, cksum[:cksumBytesLen]...)
	return base58.Encode(payload), nil
}

// DecodeWIF parses a WIF string produced by EncodeWIF (or any compressed,
// secp256k1 WIF of the standard Bitcoin shape) and returns the raw 32-byte
// private key, after verifying it belongs to params.
func DecodeWIF(wif string, params *chaincfg.Params) ([]byte, error) {
	decoded := base58.Decode(wif)
	if len(decoded) != 1+privKeyBytesLen+1+cksumBytesLen {
		return nil, ErrMalformedWIF
	}
	if decoded[1+privKeyBytesLen] != compressedFlag {
		return nil, ErrMalformedWIF
	}

	payload := decoded[:1+privKeyBytesLen+1]
	cksum := doubleSHA256(payload)
	if !bytes.Equal(cksum[:cksumBytesLen], decoded[len(decoded)-cksumBytesLen:]) {
		return nil, ErrChecksumMismatch
	}

	if decoded[0] != params.PrivateKeyID {
		return nil, ErrWrongWIFNetwork
	}

	return append([]byte(nil), decoded[1:1+privKeyBytesLen]...), nil
}

func doubleSHA256(b []byte) []byte {
	first := sha256.Sum256(b)
	second := sha256.Sum256(first[:])
	return second[:]
}
