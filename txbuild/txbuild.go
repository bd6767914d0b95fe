// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package txbuild constructs unsigned P2WPKH-only transactions: coin
// selection (explicit or greedy-auto), vsize-based fee estimation, change
// output placement, and sweep (subtract-fee-from-amount) support.
package txbuild

import (
	"errors"
	"fmt"
	"sort"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/chainlight/lwallet/wire"
)

// Per-input/output vsize weights for a P2WPKH-only transaction, per the fee
// estimation heuristic.
const (
	vsizeBase    = 10
	vsizePerIn   = 68
	vsizePerOut  = 31
	witnessPerIn = 107
)

// DustThreshold is the minimum output value considered economical to
// relay/spend for a P2WPKH output.
const DustThreshold = 546

const (
	SequenceRBF   = 0xfffffffd
	SequenceFinal = 0xffffffff
)

var (
	// ErrInsufficientFunds is returned when available UTXOs can't cover the
	// requested amount plus fee.
	ErrInsufficientFunds = errors.New("txbuild: insufficient funds")
	// ErrDustOutput is returned when a computed output value would fall at
	// or below the dust threshold.
	ErrDustOutput = errors.New("txbuild: output below dust threshold")
)

// Utxo is the minimal view of a spendable output txbuild needs.
type Utxo struct {
	TxidHex  string
	Vout     uint32
	Value    int64
	PkScript []byte
}

// Params configures BuildTransaction.
type Params struct {
	// Available is the full candidate UTXO set; ignored when Explicit is
	// set.
	Available []Utxo

	// Explicit, if non-empty, restricts selection to exactly these
	// UTXOs; insufficient funds among them is a hard failure rather than
	// falling back to auto-selection.
	Explicit []Utxo

	RecipientScript []byte
	Amount          int64 // ignored when Sweep is true

	ChangeScript []byte // empty disables change (sweep uses this path too)

	FeeRate int64 // satoshis per vbyte

	RBF   bool
	Sweep bool
}

// Result is an unsigned transaction plus the inputs it spends, in the order
// used so a signer can match each TxIn to its funding Utxo.
type Result struct {
	Tx     *wire.MsgTx
	Inputs []Utxo
	Fee    int64
}

// EstimateFee returns the vsize-based fee for a transaction with the given
// input and output counts, per the P2WPKH-only fee heuristic:
//
//	nonWitness = base + in*|in| + out*|out|
//	vsize = ceil((nonWitness*4 + witness*|in|) / 4)
//	fee = vsize * feeRate
func EstimateFee(numIn, numOut int, feeRate int64) int64 {
	nonWitness := vsizeBase + vsizePerIn*numIn + vsizePerOut*numOut
	weight := nonWitness*4 + witnessPerIn*numIn
	vsize := (weight + 3) / 4
	return int64(vsize) * feeRate
}

// sequence returns the nSequence value for RBF-enabled or final transactions.
func sequence(rbf bool) uint32 {
	if rbf {
		return SequenceRBF
	}
	return SequenceFinal
}

// Build constructs an unsigned transaction per p. The recipient output is
// always output 0; the change output, when present, is output 1.
func Build(p Params) (*Result, error) {
	if p.Sweep {
		return buildSweep(p)
	}

	var selected []Utxo
	var err error
	if len(p.Explicit) > 0 {
		selected, err = selectExplicit(p.Explicit, p.Amount, p.FeeRate, p.ChangeScript != nil)
		if err != nil {
			return nil, err
		}
	} else {
		selected, err = selectAuto(p.Available, p.Amount, p.FeeRate, p.ChangeScript != nil)
		if err != nil {
			return nil, err
		}
	}

	return assemble(selected, p)
}

// selectExplicit uses exactly the caller-specified UTXOs; failing if their
// total is insufficient.
func selectExplicit(utxos []Utxo, amount, feeRate int64, withChange bool) ([]Utxo, error) {
	numOut := 1
	if withChange {
		numOut = 2
	}
	fee := EstimateFee(len(utxos), numOut, feeRate)
	total := sumValues(utxos)
	if total < amount+fee {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrInsufficientFunds, total, amount+fee)
	}
	return utxos, nil
}

// selectAuto greedily adds the largest-value UTXOs first until the running
// total covers the amount plus the fee for the inputs selected so far.
func selectAuto(available []Utxo, amount, feeRate int64, withChange bool) ([]Utxo, error) {
	sorted := append([]Utxo(nil), available...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Value > sorted[j].Value })

	numOut := 1
	if withChange {
		numOut = 2
	}

	var selected []Utxo
	var total int64
	for _, u := range sorted {
		selected = append(selected, u)
		total += u.Value
		fee := EstimateFee(len(selected), numOut, feeRate)
		if total >= amount+fee {
			return selected, nil
		}
	}
	fee := EstimateFee(len(selected), numOut, feeRate)
	return nil, fmt.Errorf("%w: have %d, need %d", ErrInsufficientFunds, total, amount+fee)
}

// buildSweep selects every available UTXO, computes the fee for a
// single-output transaction, and sets the recipient value to the remainder.
func buildSweep(p Params) (*Result, error) {
	selected := p.Available
	if len(selected) == 0 {
		return nil, fmt.Errorf("%w: no UTXOs available to sweep", ErrInsufficientFunds)
	}
	total := sumValues(selected)
	fee := EstimateFee(len(selected), 1, p.FeeRate)
	amount := total - fee
	if amount <= DustThreshold {
		return nil, fmt.Errorf("%w: sweep output %d", ErrDustOutput, amount)
	}
	p.Amount = amount
	p.ChangeScript = nil
	return assemble(selected, p)
}

func sumValues(utxos []Utxo) int64 {
	var total int64
	for _, u := range utxos {
		total += u.Value
	}
	return total
}

// assemble builds the unsigned wire.MsgTx for the given selected inputs and
// build parameters, adding a change output when the remainder exceeds dust.
func assemble(selected []Utxo, p Params) (*Result, error) {
	tx := &wire.MsgTx{Version: 2, LockTime: 0}

	for _, u := range selected {
		hash, err := chainhash.NewHashFromStr(u.TxidHex)
		if err != nil {
			return nil, fmt.Errorf("txbuild: parsing txid %q: %w", u.TxidHex, err)
		}
		tx.TxIn = append(tx.TxIn, &wire.TxIn{
			PreviousOutPoint: wire.OutPoint{Hash: *hash, Index: u.Vout},
			Sequence:         sequence(p.RBF),
		})
	}

	tx.TxOut = append(tx.TxOut, &wire.TxOut{
		Value:    p.Amount,
		PkScript: append([]byte(nil), p.RecipientScript...),
	})

	total := sumValues(selected)
	fee := EstimateFee(len(selected), len(tx.TxOut), p.FeeRate)
	if p.ChangeScript != nil {
		feeWithChange := EstimateFee(len(selected), 2, p.FeeRate)
		change := total - p.Amount - feeWithChange
		if change > DustThreshold {
			tx.TxOut = append(tx.TxOut, &wire.TxOut{
				Value:    change,
				PkScript: append([]byte(nil), p.ChangeScript...),
			})
			fee = feeWithChange
		}
	}

	if fee < 0 {
		return nil, fmt.Errorf("txbuild: negative fee computed")
	}

	return &Result{Tx: tx, Inputs: selected, Fee: fee}, nil
}
