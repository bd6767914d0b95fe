// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package walletdb persists per-wallet scan state, UTXO sets, and address
// book high-water marks in a goleveldb key-value store under flat string
// keys.
package walletdb

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/syndtr/goleveldb/leveldb"
)

// Utxo is the on-disk representation of a tracked unspent output.
type Utxo struct {
	Txid        string `json:"txid"`
	Vout        uint32 `json:"vout"`
	Value       int64  `json:"value"`
	ScriptPubKey string `json:"scriptPubKey"`
	Address     string `json:"address"`
	BlockHeight int32  `json:"blockHeight"`
	Confirmed   bool   `json:"confirmed"`
	Frozen      bool   `json:"frozen"`
}

// IsSpendable reports whether u may be selected as a transaction input.
func (u Utxo) IsSpendable() bool {
	return u.Confirmed && !u.Frozen
}

// DB wraps a goleveldb handle with the wallet's key layout.
type DB struct {
	ldb *leveldb.DB
}

// Open opens (creating if necessary) the leveldb database at path.
func Open(path string) (*DB, error) {
	ldb, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("walletdb: opening %s: %w", path, err)
	}
	return &DB{ldb: ldb}, nil
}

// Close releases the underlying database handle.
func (db *DB) Close() error {
	return db.ldb.Close()
}

func lastScannedHeightKey(walletID string) string {
	return fmt.Sprintf("wallet_%s_lastScannedHeight", walletID)
}

func utxosKey(walletID string) string {
	return fmt.Sprintf("wallet_%s_utxos", walletID)
}

func addressBookKey(walletID string) string {
	return fmt.Sprintf("address_book_v1_%s", walletID)
}

// LastScannedHeight returns the last height discover_utxos completed for
// walletID, or 0 if none has been recorded yet.
func (db *DB) LastScannedHeight(walletID string) (int32, error) {
	raw, err := db.ldb.Get([]byte(lastScannedHeightKey(walletID)), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("walletdb: reading last scanned height: %w", err)
	}
	height, err := strconv.ParseInt(string(raw), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("walletdb: parsing last scanned height: %w", err)
	}
	return int32(height), nil
}

// SetLastScannedHeight records the height a scan most recently completed.
func (db *DB) SetLastScannedHeight(walletID string, height int32) error {
	raw := strconv.FormatInt(int64(height), 10)
	if err := db.ldb.Put([]byte(lastScannedHeightKey(walletID)), []byte(raw), nil); err != nil {
		return fmt.Errorf("walletdb: writing last scanned height: %w", err)
	}
	return nil
}

// Utxos returns the wallet's currently tracked UTXO set.
func (db *DB) Utxos(walletID string) ([]Utxo, error) {
	raw, err := db.ldb.Get([]byte(utxosKey(walletID)), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("walletdb: reading utxos: %w", err)
	}
	var utxos []Utxo
	if err := json.Unmarshal(raw, &utxos); err != nil {
		return nil, fmt.Errorf("walletdb: decoding utxos: %w", err)
	}
	return utxos, nil
}

// SetUtxos overwrites the wallet's tracked UTXO set.
func (db *DB) SetUtxos(walletID string, utxos []Utxo) error {
	raw, err := json.Marshal(utxos)
	if err != nil {
		return fmt.Errorf("walletdb: encoding utxos: %w", err)
	}
	if err := db.ldb.Put([]byte(utxosKey(walletID)), raw, nil); err != nil {
		return fmt.Errorf("walletdb: writing utxos: %w", err)
	}
	return nil
}

// AddressBook returns the wallet's address-derivation high-water marks,
// keyed by "<address_type>_<branch>" (e.g. "p2wpkh_receive").
func (db *DB) AddressBook(walletID string) (map[string]uint32, error) {
	raw, err := db.ldb.Get([]byte(addressBookKey(walletID)), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return map[string]uint32{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("walletdb: reading address book: %w", err)
	}
	book := map[string]uint32{}
	if err := json.Unmarshal(raw, &book); err != nil {
		return nil, fmt.Errorf("walletdb: decoding address book: %w", err)
	}
	return book, nil
}

// SetAddressBook overwrites the wallet's address-derivation high-water
// marks.
func (db *DB) SetAddressBook(walletID string, book map[string]uint32) error {
	raw, err := json.Marshal(book)
	if err != nil {
		return fmt.Errorf("walletdb: encoding address book: %w", err)
	}
	if err := db.ldb.Put([]byte(addressBookKey(walletID)), raw, nil); err != nil {
		return fmt.Errorf("walletdb: writing address book: %w", err)
	}
	return nil
}
