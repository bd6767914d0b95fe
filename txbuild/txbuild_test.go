// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txbuild

import (
	"strings"
	"testing"
)

func sampleTxid(b byte) string {
	return strings.Repeat(string([]byte{hexDigit(b >> 4), hexDigit(b & 0xf)}), 32)
}

func hexDigit(v byte) byte {
	if v < 10 {
		return '0' + v
	}
	return 'a' + v - 10
}

func TestEstimateFeeGrowsWithInputsAndOutputs(t *testing.T) {
	base := EstimateFee(1, 1, 10)
	moreIn := EstimateFee(2, 1, 10)
	moreOut := EstimateFee(1, 2, 10)

	if moreIn <= base {
		t.Errorf("fee should grow with input count: base=%d moreIn=%d", base, moreIn)
	}
	if moreOut <= base {
		t.Errorf("fee should grow with output count: base=%d moreOut=%d", base, moreOut)
	}
}

func TestBuildAutoSelectsGreedyLargestFirst(t *testing.T) {
	utxos := []Utxo{
		{TxidHex: sampleTxid(1), Vout: 0, Value: 1000, PkScript: []byte{0x51}},
		{TxidHex: sampleTxid(2), Vout: 0, Value: 100000, PkScript: []byte{0x51}},
		{TxidHex: sampleTxid(3), Vout: 0, Value: 5000, PkScript: []byte{0x51}},
	}

	result, err := Build(Params{
		Available:       utxos,
		RecipientScript: []byte{0x00, 0x14},
		Amount:          50000,
		ChangeScript:    []byte{0x00, 0x14, 0xAA},
		FeeRate:         1,
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if len(result.Inputs) != 1 {
		t.Fatalf("expected the single 100000 UTXO to be selected, got %d inputs", len(result.Inputs))
	}
	if result.Inputs[0].Value != 100000 {
		t.Errorf("expected largest UTXO selected first, got value %d", result.Inputs[0].Value)
	}
	if len(result.Tx.TxOut) != 2 {
		t.Fatalf("expected recipient+change outputs, got %d", len(result.Tx.TxOut))
	}
	if result.Tx.TxOut[0].Value != 50000 {
		t.Errorf("expected recipient output value 50000, got %d", result.Tx.TxOut[0].Value)
	}
}

func TestBuildDropsChangeBelowDust(t *testing.T) {
	utxos := []Utxo{
		{TxidHex: sampleTxid(1), Vout: 0, Value: 50200, PkScript: []byte{0x51}},
	}

	result, err := Build(Params{
		Available:       utxos,
		RecipientScript: []byte{0x00, 0x14},
		Amount:          50000,
		ChangeScript:    []byte{0x00, 0x14, 0xAA},
		FeeRate:         1,
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(result.Tx.TxOut) != 1 {
		t.Fatalf("expected dust change to be dropped, got %d outputs", len(result.Tx.TxOut))
	}
}

func TestBuildInsufficientFunds(t *testing.T) {
	utxos := []Utxo{
		{TxidHex: sampleTxid(1), Vout: 0, Value: 1000, PkScript: []byte{0x51}},
	}

	_, err := Build(Params{
		Available:       utxos,
		RecipientScript: []byte{0x00, 0x14},
		Amount:          50000,
		FeeRate:         1,
	})
	if err == nil {
		t.Fatal("expected ErrInsufficientFunds")
	}
}

func TestBuildSweepSubtractsFeeFromAmount(t *testing.T) {
	utxos := []Utxo{
		{TxidHex: sampleTxid(1), Vout: 0, Value: 10000, PkScript: []byte{0x51}},
		{TxidHex: sampleTxid(2), Vout: 1, Value: 20000, PkScript: []byte{0x51}},
	}

	result, err := Build(Params{
		Available:       utxos,
		RecipientScript: []byte{0x00, 0x14},
		Sweep:           true,
		FeeRate:         1,
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(result.Tx.TxIn) != 2 {
		t.Fatalf("expected all UTXOs swept, got %d inputs", len(result.Tx.TxIn))
	}
	if len(result.Tx.TxOut) != 1 {
		t.Fatalf("expected a single sweep output, got %d", len(result.Tx.TxOut))
	}
	if result.Tx.TxOut[0].Value != 30000-result.Fee {
		t.Errorf("expected sweep value = total - fee, got %d (fee %d)", result.Tx.TxOut[0].Value, result.Fee)
	}
}

func TestBuildRBFSequence(t *testing.T) {
	utxos := []Utxo{
		{TxidHex: sampleTxid(1), Vout: 0, Value: 100000, PkScript: []byte{0x51}},
	}

	result, err := Build(Params{
		Available:       utxos,
		RecipientScript: []byte{0x00, 0x14},
		Amount:          50000,
		FeeRate:         1,
		RBF:             true,
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if result.Tx.TxIn[0].Sequence != SequenceRBF {
		t.Errorf("expected RBF sequence, got %#x", result.Tx.TxIn[0].Sequence)
	}
}
