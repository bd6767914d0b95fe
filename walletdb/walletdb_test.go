// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package walletdb

import (
	"path/filepath"
	"testing"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "wallet.ldb"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestLastScannedHeightDefaultsToZero(t *testing.T) {
	db := openTestDB(t)
	height, err := db.LastScannedHeight("w1")
	if err != nil {
		t.Fatalf("LastScannedHeight: %v", err)
	}
	if height != 0 {
		t.Errorf("expected 0 for an unset wallet, got %d", height)
	}
}

func TestLastScannedHeightRoundTrip(t *testing.T) {
	db := openTestDB(t)
	if err := db.SetLastScannedHeight("w1", 12345); err != nil {
		t.Fatalf("SetLastScannedHeight: %v", err)
	}
	height, err := db.LastScannedHeight("w1")
	if err != nil {
		t.Fatalf("LastScannedHeight: %v", err)
	}
	if height != 12345 {
		t.Errorf("expected 12345, got %d", height)
	}
}

func TestUtxosRoundTrip(t *testing.T) {
	db := openTestDB(t)
	want := []Utxo{
		{Txid: "aa", Vout: 0, Value: 50000, Address: "addr1", Confirmed: true},
		{Txid: "bb", Vout: 1, Value: 10000, Address: "addr2", Confirmed: false, Frozen: true},
	}
	if err := db.SetUtxos("w1", want); err != nil {
		t.Fatalf("SetUtxos: %v", err)
	}
	got, err := db.Utxos("w1")
	if err != nil {
		t.Fatalf("Utxos: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 utxos, got %d", len(got))
	}
	if got[0].IsSpendable() != true {
		t.Errorf("expected first utxo spendable")
	}
	if got[1].IsSpendable() != false {
		t.Errorf("expected frozen second utxo not spendable")
	}
}

func TestAddressBookRoundTrip(t *testing.T) {
	db := openTestDB(t)
	empty, err := db.AddressBook("w1")
	if err != nil {
		t.Fatalf("AddressBook: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("expected empty address book for unset wallet")
	}

	book := map[string]uint32{"p2wpkh_receive": 41, "p2wpkh_change": 9}
	if err := db.SetAddressBook("w1", book); err != nil {
		t.Fatalf("SetAddressBook: %v", err)
	}
	got, err := db.AddressBook("w1")
	if err != nil {
		t.Fatalf("AddressBook: %v", err)
	}
	if got["p2wpkh_receive"] != 41 || got["p2wpkh_change"] != 9 {
		t.Errorf("unexpected address book contents: %v", got)
	}
}
