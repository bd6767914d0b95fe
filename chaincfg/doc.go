// Copyright (c) 2014-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package chaincfg defines the injectable per-chain parameters consumed by
// every other package in this module: wire magic, address prefixes, the
// genesis hash, the BIP44 coin type, and the legacy header-hash cutover
// timestamps.
//
// Callers select one of the predefined networks (MainNetParams, TestNetParams,
// RegTestParams) or build a custom Params for a chain not listed here. No
// package in this module hard-codes network-specific values; they all take a
// *Params.
//
//	package main
//
//	import (
//	        "github.com/chainlight/lwallet/addr"
//	        "github.com/chainlight/lwallet/chaincfg"
//	)
//
//	var params = chaincfg.MainNetParams()
//
//	func main() {
//	        // later, with pkHash the HASH160 of a compressed public key...
//	        address, err := addr.EncodeP2WPKH(params, pkHash)
//	}
package chaincfg
