// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

// seedSize is the number of random bytes used to derive the wallet's master
// extended key, per BIP32's recommended seed length.
const seedSize = 32

// loadOrCreateSeed reads the hex-encoded wallet seed from path, generating
// and persisting a new random one if the file does not exist. The file is
// created with owner-only permissions since it is equivalent to the
// wallet's private key material.
func loadOrCreateSeed(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err == nil {
		seed, decodeErr := hex.DecodeString(string(raw))
		if decodeErr != nil {
			return nil, fmt.Errorf("decoding seed file %s: %w", path, decodeErr)
		}
		return seed, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading seed file %s: %w", path, err)
	}

	seed := make([]byte, seedSize)
	if _, err := rand.Read(seed); err != nil {
		return nil, fmt.Errorf("generating wallet seed: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating seed directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(hex.EncodeToString(seed)), 0o600); err != nil {
		return nil, fmt.Errorf("writing seed file %s: %w", path, err)
	}
	return seed, nil
}
