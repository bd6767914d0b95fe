// Copyright (c) 2014-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chaincfg

import "github.com/btcsuite/btcd/chaincfg/chainhash"

// Params holds the set of per-chain constants that the wire codec, header
// store, address codec, and key derivation packages are parameterized over.
// Nothing in this module outside of this package may hard-code a
// network-specific value.
type Params struct {
	// Name is the human-readable identifier for the network, e.g. "mainnet".
	Name string

	// Net is the four-byte message magic prepended to every wire message.
	Net uint32

	// DefaultPort is the default P2P port for this network.
	DefaultPort string

	// HeaderLength is the on-wire and on-disk size of a serialized block
	// header, including any chain-specific trailing proof blob. It is
	// always >= 80, the size of the canonical Bitcoin header fields.
	HeaderLength int

	// GenesisHash is the hash of the genesis block, in display (big-endian)
	// form.
	GenesisHash chainhash.Hash

	// PubKeyHashAddrID is the Base58Check version byte for P2PKH addresses.
	PubKeyHashAddrID byte

	// ScriptHashAddrID is the Base58Check version byte for P2SH addresses.
	ScriptHashAddrID byte

	// Bech32HRPSegwit is the human-readable part used for Bech32/Bech32m
	// witness addresses, e.g. "bc" for mainnet Bitcoin, "tb" for testnet.
	Bech32HRPSegwit string

	// CoinType is the BIP44 coin type used in the m/44'/coin_type'/... path.
	CoinType uint32

	// HeaderHashT1 and HeaderHashT2 are the two legacy cutover timestamps
	// (unix seconds, inclusive upper bounds) governing which of the three
	// header hash rules in the wire protocol applies to a given header; see
	// wire.BlockHeader.BlockHash.
	HeaderHashT1 uint32
	HeaderHashT2 uint32

	// CFHeaderCheckpointSpacing is the BIP157 checkpoint spacing in blocks.
	CFHeaderCheckpointSpacing uint32

	// PrivateKeyID is the Base58Check version byte prefixed to a
	// WIF-encoded private key for this network.
	PrivateKeyID byte
}

// neverCutover is used by networks that never exercise the single-hash
// legacy rule; setting T2 to the maximum uint32 timestamp makes the
// double-SHA-256-of-full-header rule (the only rule real chains use today)
// apply to every header with a sane timestamp.
const neverCutover = ^uint32(0)

// MainNetParams returns the network parameters for the main network.
func MainNetParams() *Params {
	return &Params{
		Name:                      "mainnet",
		Net:                       0xd9b4bef9,
		DefaultPort:               "8333",
		HeaderLength:              80,
		GenesisHash:               mustHash("ca5de2a11e44ba1cfa2540407ec2ce9a1c04180a2c28e0dfd8243a9edf6be6bb"),
		PubKeyHashAddrID:          0x00,
		ScriptHashAddrID:          0x05,
		Bech32HRPSegwit:           "bc",
		CoinType:                  0,
		HeaderHashT1:              0,
		HeaderHashT2:              neverCutover,
		CFHeaderCheckpointSpacing: 1000,
		PrivateKeyID:              0x80,
	}
}

// TestNetParams returns the network parameters for the public test network.
func TestNetParams() *Params {
	return &Params{
		Name:                      "testnet",
		Net:                       0x0709110b,
		DefaultPort:               "18333",
		HeaderLength:              80,
		GenesisHash:               mustHash("f9e78bbcd7f9b32f9e397a21d9aa7c0791bdd687575e77e204cdb53743a1f91c"),
		PubKeyHashAddrID:          0x6f,
		ScriptHashAddrID:          0xc4,
		Bech32HRPSegwit:           "tb",
		CoinType:                  1,
		HeaderHashT1:              0,
		HeaderHashT2:              neverCutover,
		CFHeaderCheckpointSpacing: 1000,
		PrivateKeyID:              0xef,
	}
}

// RegTestParams returns the network parameters for a local regression test
// network. HeaderLength is widened to demonstrate the opaque trailing proof
// blob described in the data model: bytes [80:HeaderLength) are carried
// through unparsed and included in the hash-rule input for the "full header"
// rules.
func RegTestParams() *Params {
	return &Params{
		Name:                      "regtest",
		Net:                       0xfabfb5da,
		DefaultPort:               "18444",
		HeaderLength:              84,
		GenesisHash:               mustHash("15b5a0994cb00ab6e55b72c9ac2d57bd6c30a30b2123d7e0ec00b1c82b8f3ebd"),
		PubKeyHashAddrID:          0x6f,
		ScriptHashAddrID:          0xc4,
		Bech32HRPSegwit:           "bcrt",
		CoinType:                  1,
		HeaderHashT1:              1136073600, // 2006-01-01, arbitrary demonstration cutover
		HeaderHashT2:              1893456000, // 2030-01-01
		CFHeaderCheckpointSpacing: 1000,
		PrivateKeyID:              0xef,
	}
}

func mustHash(hexStr string) chainhash.Hash {
	h, err := chainhash.NewHashFromStr(hexStr)
	if err != nil {
		panic(err)
	}
	return *h
}
