// Copyright (c) 2014 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package keys

import (
	"bytes"
	"testing"
)

func testSeed() []byte {
	seed := make([]byte, 32)
	for i := range seed {
		seed[i] = byte(i)
	}
	return seed
}

func TestNewMasterIsPrivate(t *testing.T) {
	master, err := NewMaster(testSeed())
	if err != nil {
		t.Fatalf("NewMaster: %v", err)
	}
	if !master.IsPrivate() {
		t.Fatal("master node should carry private key material")
	}
	if len(master.SerializedPubKey()) != 33 {
		t.Fatalf("expected 33-byte compressed pubkey, got %d", len(master.SerializedPubKey()))
	}
}

func TestChildDerivationDeterministic(t *testing.T) {
	master, err := NewMaster(testSeed())
	if err != nil {
		t.Fatalf("NewMaster: %v", err)
	}

	c1, err := master.Child(HardenedKeyStart + 44)
	if err != nil {
		t.Fatalf("Child: %v", err)
	}
	c2, err := master.Child(HardenedKeyStart + 44)
	if err != nil {
		t.Fatalf("Child: %v", err)
	}
	if !bytes.Equal(c1.SerializedPubKey(), c2.SerializedPubKey()) {
		t.Error("hardened child derivation is not deterministic")
	}
}

func TestNeuterThenNonHardenedChildMatchesPrivateDerivation(t *testing.T) {
	master, err := NewMaster(testSeed())
	if err != nil {
		t.Fatalf("NewMaster: %v", err)
	}

	account, err := master.Child(HardenedKeyStart + 44)
	if err != nil {
		t.Fatalf("Child: %v", err)
	}

	privChild, err := account.Child(0)
	if err != nil {
		t.Fatalf("Child (private): %v", err)
	}

	pubChild, err := account.Neuter().Child(0)
	if err != nil {
		t.Fatalf("Child (public): %v", err)
	}

	if !bytes.Equal(privChild.SerializedPubKey(), pubChild.SerializedPubKey()) {
		t.Error("public and private derivation of the same non-hardened child diverged")
	}
	if pubChild.IsPrivate() {
		t.Error("child of a neutered node must not carry private material")
	}
}

func TestNeuterRejectsHardenedDerivation(t *testing.T) {
	master, err := NewMaster(testSeed())
	if err != nil {
		t.Fatalf("NewMaster: %v", err)
	}
	neutered := master.Neuter()
	if _, err := neutered.Child(HardenedKeyStart); err != ErrDeriveHardFromPublic {
		t.Fatalf("expected ErrDeriveHardFromPublic, got %v", err)
	}
}

func TestDeriveBIP44ReceiveAndChangeDiffer(t *testing.T) {
	master, err := NewMaster(testSeed())
	if err != nil {
		t.Fatalf("NewMaster: %v", err)
	}

	receive, err := DeriveBIP44(master, 0, 0, ReceiveBranch, 0)
	if err != nil {
		t.Fatalf("DeriveBIP44 receive: %v", err)
	}
	change, err := DeriveBIP44(master, 0, 0, ChangeBranch, 0)
	if err != nil {
		t.Fatalf("DeriveBIP44 change: %v", err)
	}

	if bytes.Equal(receive.SerializedPubKey(), change.SerializedPubKey()) {
		t.Error("receive and change chains must derive distinct keys")
	}

	again, err := DeriveBIP44(master, 0, 0, ReceiveBranch, 0)
	if err != nil {
		t.Fatalf("DeriveBIP44 receive (again): %v", err)
	}
	if !bytes.Equal(receive.SerializedPubKey(), again.SerializedPubKey()) {
		t.Error("BIP44 derivation is not deterministic")
	}
}
