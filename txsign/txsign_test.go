// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txsign

import (
	"context"
	"crypto/sha256"
	"errors"
	"testing"
	"time"

	"github.com/decred/dcrd/crypto/ripemd160"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/chainlight/lwallet/wire"
)

func testPrivKey(t *testing.T, seedByte byte) *secp256k1.PrivateKey {
	t.Helper()
	var raw [32]byte
	for i := range raw {
		raw[i] = seedByte
	}
	raw[31] ^= 0x01 // avoid the zero scalar
	return secp256k1.PrivKeyFromBytes(raw[:])
}

func pubKeyHash(priv *secp256k1.PrivateKey) [20]byte {
	sha := sha256.Sum256(priv.PubKey().SerializeCompressed())
	r := ripemd160.New()
	r.Write(sha[:])
	var out [20]byte
	copy(out[:], r.Sum(nil))
	return out
}

func TestSignP2WPKHProducesValidWitness(t *testing.T) {
	priv := testPrivKey(t, 0x01)
	pkh := pubKeyHash(priv)

	tx := &wire.MsgTx{
		Version: 2,
		TxIn: []*wire.TxIn{
			{PreviousOutPoint: wire.OutPoint{Index: 0}, Sequence: 0xffffffff},
		},
		TxOut: []*wire.TxOut{
			{Value: 90000, PkScript: []byte{0x00, 0x14}},
		},
		LockTime: 0,
	}

	inputs := []InputInfo{
		{Value: 100000, PrivateKey: priv, PubKeyHash: pkh},
	}

	if err := SignP2WPKH(tx, inputs); err != nil {
		t.Fatalf("SignP2WPKH: %v", err)
	}

	if len(tx.TxIn[0].Witness) != 2 {
		t.Fatalf("expected witness stack of [sig, pubkey], got %d items", len(tx.TxIn[0].Witness))
	}
	if len(tx.TxIn[0].SignatureScript) != 0 {
		t.Errorf("expected empty scriptSig for native segwit spend")
	}

	sigWithType := tx.TxIn[0].Witness[0]
	if sigWithType[len(sigWithType)-1] != SighashAll {
		t.Errorf("expected sighash type byte appended to signature")
	}
}

func TestSignP2WPKHMismatchedInputCount(t *testing.T) {
	tx := &wire.MsgTx{TxIn: []*wire.TxIn{{}, {}}}
	err := SignP2WPKH(tx, []InputInfo{{}})
	if err == nil {
		t.Fatal("expected error for mismatched input count")
	}
}

func TestRejectCodeName(t *testing.T) {
	if RejectCodeName(0x42) != "INSUFFICIENTFEE" {
		t.Errorf("expected INSUFFICIENTFEE, got %s", RejectCodeName(0x42))
	}
	if RejectCodeName(0xEE) == "" {
		t.Errorf("expected a fallback name for an unrecognized code")
	}
}

func TestBroadcasterAcceptsOnTimeout(t *testing.T) {
	var invSent, memPoolSent bool
	b := NewBroadcaster(
		func(txid [32]byte) error { invSent = true; return nil },
		func(txid [32]byte) error { memPoolSent = true; return nil },
		func(ctx context.Context, txid [32]byte) error {
			<-ctx.Done()
			return ctx.Err()
		},
	)

	start := time.Now()
	err := b.Broadcast(context.Background(), [32]byte{1})
	if err != nil {
		t.Fatalf("expected silence to be treated as acceptance, got %v", err)
	}
	if !invSent || !memPoolSent {
		t.Errorf("expected both inv and mempool to be sent")
	}
	if time.Since(start) < mempoolVerifyDelay {
		t.Errorf("expected Broadcast to wait at least the verify delay")
	}
}

func TestBroadcasterPropagatesReject(t *testing.T) {
	b := NewBroadcaster(
		func(txid [32]byte) error { return nil },
		func(txid [32]byte) error { return nil },
		func(ctx context.Context, txid [32]byte) error {
			return ErrRejected
		},
	)

	err := b.Broadcast(context.Background(), [32]byte{1})
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
}
