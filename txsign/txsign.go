// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package txsign computes BIP143 segwit signature hashes, signs P2WPKH
// inputs with RFC6979 deterministic ECDSA, and drives the inv/getdata
// broadcast protocol with mempool-acceptance verification.
package txsign

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/decred/slog"

	"github.com/chainlight/lwallet/wire"
)

// log is the package-level logger; callers hook in their own via UseLogger.
var log = slog.Disabled

// UseLogger sets the package-wide logger.
func UseLogger(logger slog.Logger) {
	log = logger
}

// SighashAll is the only sighash type this wallet produces.
const SighashAll = 0x01

// InputInfo is everything txsign needs to sign one P2WPKH input.
type InputInfo struct {
	Value      int64
	PrivateKey *secp256k1.PrivateKey
	PubKeyHash [20]byte // HASH160(compressed pubkey), for the BIP143 scriptCode
}

// SignP2WPKH signs every input of tx in place, assuming all of them are
// P2WPKH spends described by inputs (same order as tx.TxIn). It populates
// each TxIn's Witness with [signature, pubkey] and leaves SignatureScript
// empty, per native segwit.
func SignP2WPKH(tx *wire.MsgTx, inputs []InputInfo) error {
	if len(inputs) != len(tx.TxIn) {
		return fmt.Errorf("txsign: %d inputs described, tx has %d", len(inputs), len(tx.TxIn))
	}

	hashPrevouts := computeHashPrevouts(tx)
	hashSequence := computeHashSequence(tx)
	hashOutputs := computeHashOutputs(tx)

	for i, in := range inputs {
		sigHash := sighash(tx, i, in, hashPrevouts, hashSequence, hashOutputs)

		sig := ecdsa.Sign(in.PrivateKey, sigHash[:])
		der := sig.Serialize()

		sigWithType := append(append([]byte(nil), der...), SighashAll)
		pubKeyBytes := in.PrivateKey.PubKey().SerializeCompressed()

		tx.TxIn[i].Witness = wire.TxWitness{sigWithType, pubKeyBytes}

		if !sig.Verify(sigHash[:], in.PrivateKey.PubKey()) {
			return fmt.Errorf("txsign: signature failed self-verification for input %d", i)
		}
	}
	return nil
}

// scriptCode returns the BIP143 scriptCode for a P2WPKH spend:
// OP_DUP OP_HASH160 <20-byte-hash> OP_EQUALVERIFY OP_CHECKSIG.
func scriptCode(pubKeyHash [20]byte) []byte {
	s := make([]byte, 0, 25)
	s = append(s, 0x76, 0xa9, 0x14)
	s = append(s, pubKeyHash[:]...)
	s = append(s, 0x88, 0xac)
	return s
}

// sighash computes the BIP143 signature hash for input index idx.
func sighash(tx *wire.MsgTx, idx int, in InputInfo, hashPrevouts, hashSequence, hashOutputs [32]byte) [32]byte {
	var buf bytes.Buffer

	writeUint32LE(&buf, uint32(tx.Version))
	buf.Write(hashPrevouts[:])
	buf.Write(hashSequence[:])

	txIn := tx.TxIn[idx]
	buf.Write(txIn.PreviousOutPoint.Hash[:])
	writeUint32LE(&buf, txIn.PreviousOutPoint.Index)

	code := scriptCode(in.PubKeyHash)
	writeVarInt(&buf, uint64(len(code)))
	buf.Write(code)

	writeUint64LE(&buf, uint64(in.Value))
	writeUint32LE(&buf, txIn.Sequence)

	buf.Write(hashOutputs[:])
	writeUint32LE(&buf, tx.LockTime)
	writeUint32LE(&buf, SighashAll)

	return doubleSHA256(buf.Bytes())
}

func computeHashPrevouts(tx *wire.MsgTx) [32]byte {
	var buf bytes.Buffer
	for _, in := range tx.TxIn {
		buf.Write(in.PreviousOutPoint.Hash[:])
		writeUint32LE(&buf, in.PreviousOutPoint.Index)
	}
	return doubleSHA256(buf.Bytes())
}

func computeHashSequence(tx *wire.MsgTx) [32]byte {
	var buf bytes.Buffer
	for _, in := range tx.TxIn {
		writeUint32LE(&buf, in.Sequence)
	}
	return doubleSHA256(buf.Bytes())
}

func computeHashOutputs(tx *wire.MsgTx) [32]byte {
	var buf bytes.Buffer
	for _, out := range tx.TxOut {
		writeUint64LE(&buf, uint64(out.Value))
		writeVarInt(&buf, uint64(len(out.PkScript)))
		buf.Write(out.PkScript)
	}
	return doubleSHA256(buf.Bytes())
}

func writeUint32LE(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeUint64LE(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func writeVarInt(buf *bytes.Buffer, v uint64) {
	_ = wire.WriteVarInt(buf, v)
}

func doubleSHA256(b []byte) [32]byte {
	first := sha256.Sum256(b)
	return sha256.Sum256(first[:])
}

// Broadcast settings.
const (
	// broadcastCacheTTL bounds how long a broadcast tx stays in a
	// BroadcastCache, available to answer a peer's getdata for it.
	broadcastCacheTTL = 5 * time.Minute

	// mempoolVerifyDelay is how long to wait after announcing before
	// asking a peer to confirm mempool acceptance via getdata.
	mempoolVerifyDelay = 3 * time.Second

	// mempoolVerifyWait bounds how long to wait for that confirmation.
	mempoolVerifyWait = 5 * time.Second
)

// ErrRejected is returned when a peer responds to a broadcast with reject.
var ErrRejected = errors.New("txsign: transaction rejected by peer")

// ErrNotFound is returned when mempool verification can't locate the
// broadcast transaction.
var ErrNotFound = errors.New("txsign: transaction not found in peer mempool")

// rejectCodeNames maps BIP61-style numeric reject codes to their symbolic
// names, for logging.
var rejectCodeNames = map[uint8]string{
	0x01: "MALFORMED",
	0x10: "INVALID",
	0x11: "OBSOLETE",
	0x12: "DUPLICATE",
	0x40: "NONSTANDARD",
	0x41: "DUST",
	0x42: "INSUFFICIENTFEE",
	0x43: "CHECKPOINT",
}

// RejectCodeName returns the symbolic name for a numeric reject code, or a
// generic label if unrecognized.
func RejectCodeName(code uint8) string {
	if name, ok := rejectCodeNames[code]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(0x%02x)", code)
}

// Broadcaster drives a single transaction through INV announcement and
// MEMPOOL-triggered acceptance verification: it never pulls the tx back
// itself, it waits for the peer to re-announce it via inv.
type Broadcaster struct {
	sendInv     func(txid [32]byte) error
	sendMemPool func(txid [32]byte) error
	awaitResult func(ctx context.Context, txid [32]byte) error
}

// NewBroadcaster constructs a Broadcaster from the three primitives a peer
// connection provides: sending an inv, sending a mempool request, and
// waiting for either notfound/reject or silence (treated as acceptance)
// for a txid.
func NewBroadcaster(sendInv, sendMemPool func(txid [32]byte) error, awaitResult func(ctx context.Context, txid [32]byte) error) *Broadcaster {
	return &Broadcaster{sendInv: sendInv, sendMemPool: sendMemPool, awaitResult: awaitResult}
}

// Broadcast announces txid via inv, waits mempoolVerifyDelay, then sends
// mempool to confirm acceptance, waiting up to mempoolVerifyWait for a
// definitive reject/notfound before declaring success.
func (b *Broadcaster) Broadcast(ctx context.Context, txid [32]byte) error {
	if err := b.sendInv(txid); err != nil {
		return fmt.Errorf("txsign: announcing %x: %w", txid, err)
	}

	select {
	case <-time.After(mempoolVerifyDelay):
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := b.sendMemPool(txid); err != nil {
		return fmt.Errorf("txsign: requesting mempool verification for %x: %w", txid, err)
	}

	verifyCtx, cancel := context.WithTimeout(ctx, mempoolVerifyWait)
	defer cancel()

	err := b.awaitResult(verifyCtx, txid)
	if errors.Is(err, context.DeadlineExceeded) {
		log.Debugf("txsign: no reject/notfound for %x within %s, treating as accepted", txid, mempoolVerifyWait)
		return nil
	}
	return err
}
