// Copyright (c) 2014 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package keys implements BIP32 hierarchical deterministic key derivation
// and the BIP44 account layout on top of secp256k1, matching the exact
// derivation formulas used throughout the chain's ecosystem.
package keys

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/binary"
	"errors"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// HardenedKeyStart is the index of the first hardened child (2^31), per
// BIP32.
const HardenedKeyStart = 1 << 31

// ReceiveBranch and ChangeBranch are the BIP44 "change" field values for the
// external (receive) and internal (change) chains.
const (
	ReceiveBranch uint32 = 0
	ChangeBranch  uint32 = 1
)

var (
	// ErrDeriveHardFromPublic is returned attempting hardened derivation
	// from a key that only has public material.
	ErrDeriveHardFromPublic = errors.New("keys: cannot derive a hardened child from a public-only key")
	// ErrInvalidChildIndex is returned when a derived child is invalid:
	// IL is not below the curve order, or the resulting key or point is
	// zero.
	ErrInvalidChildIndex = errors.New("keys: invalid child key index")
)

// ExtendedKey is a BIP32 node: either a private node (carrying the private
// key and able to derive further private or public children) or a
// public-only node (able to derive further public non-hardened children
// only).
type ExtendedKey struct {
	key       []byte // 32-byte private key or 33-byte compressed public key
	pubKey    []byte // always the 33-byte compressed public key
	chainCode [32]byte
	depth     uint8
	childNum  uint32
	isPrivate bool
}

// masterHMACKey is the fixed BIP32 master key HMAC key.
var masterHMACKey = []byte("Bitcoin seed")

// NewMaster derives the master extended private key from a seed, per BIP32.
func NewMaster(seed []byte) (*ExtendedKey, error) {
	h := hmac.New(sha512.New, masterHMACKey)
	h.Write(seed)
	sum := h.Sum(nil)

	privKeyBytes := sum[:32]
	var chainCode [32]byte
	copy(chainCode[:], sum[32:])

	priv := secp256k1.PrivKeyFromBytes(privKeyBytes)
	pub := priv.PubKey().SerializeCompressed()

	return &ExtendedKey{
		key:       append([]byte(nil), privKeyBytes...),
		pubKey:    pub,
		chainCode: chainCode,
		depth:     0,
		childNum:  0,
		isPrivate: true,
	}, nil
}

// IsPrivate reports whether this node carries private key material.
func (k *ExtendedKey) IsPrivate() bool { return k.isPrivate }

// SerializedPubKey returns the 33-byte compressed public key.
func (k *ExtendedKey) SerializedPubKey() []byte {
	return append([]byte(nil), k.pubKey...)
}

// PrivateKey returns the node's private key. Panics if IsPrivate is false;
// callers must check first, matching the "operations on uninitialized state
// fail explicitly" pattern used elsewhere in this module.
func (k *ExtendedKey) PrivateKey() *secp256k1.PrivateKey {
	if !k.isPrivate {
		panic("keys: PrivateKey called on a public-only extended key")
	}
	return secp256k1.PrivKeyFromBytes(k.key)
}

// Neuter returns the public-only version of this node, able to derive
// further non-hardened public children but no private material.
func (k *ExtendedKey) Neuter() *ExtendedKey {
	if !k.isPrivate {
		return k
	}
	return &ExtendedKey{
		key:       append([]byte(nil), k.pubKey...),
		pubKey:    k.pubKey,
		chainCode: k.chainCode,
		depth:     k.depth,
		childNum:  k.childNum,
		isPrivate: false,
	}
}

// Child derives the child at the given index. Indices >= HardenedKeyStart
// request hardened derivation, which requires a private parent.
func (k *ExtendedKey) Child(index uint32) (*ExtendedKey, error) {
	isHardened := index >= HardenedKeyStart
	if isHardened && !k.isPrivate {
		return nil, ErrDeriveHardFromPublic
	}

	var data []byte
	if isHardened {
		data = make([]byte, 0, 37)
		data = append(data, 0x00)
		data = append(data, k.key...)
	} else {
		data = make([]byte, 0, 37)
		data = append(data, k.pubKey...)
	}
	var idxBytes [4]byte
	binary.BigEndian.PutUint32(idxBytes[:], index)
	data = append(data, idxBytes[:]...)

	h := hmac.New(sha512.New, k.chainCode[:])
	h.Write(data)
	sum := h.Sum(nil)

	ilBytes, ir := sum[:32], sum[32:]

	var il secp256k1.ModNScalar
	if overflow := il.SetByteSlice(ilBytes); overflow {
		return nil, ErrInvalidChildIndex
	}

	var childChainCode [32]byte
	copy(childChainCode[:], ir)

	if k.isPrivate {
		var parentScalar secp256k1.ModNScalar
		parentScalar.SetByteSlice(k.key)
		childScalar := new(secp256k1.ModNScalar).Add2(&il, &parentScalar)
		if childScalar.IsZero() {
			return nil, ErrInvalidChildIndex
		}
		childPrivBytes := childScalar.Bytes()
		priv := secp256k1.PrivKeyFromBytes(childPrivBytes[:])
		return &ExtendedKey{
			key:       childPrivBytes[:],
			pubKey:    priv.PubKey().SerializeCompressed(),
			chainCode: childChainCode,
			depth:     k.depth + 1,
			childNum:  index,
			isPrivate: true,
		}, nil
	}

	parentPub, err := secp256k1.ParsePubKey(k.pubKey)
	if err != nil {
		return nil, err
	}
	var ilPoint secp256k1.JacobianPoint
	secp256k1.ScalarBaseMultNonConst(&il, &ilPoint)
	var parentPoint secp256k1.JacobianPoint
	parentPub.AsJacobian(&parentPoint)
	var childPoint secp256k1.JacobianPoint
	secp256k1.AddNonConst(&ilPoint, &parentPoint, &childPoint)
	if childPoint.X.IsZero() && childPoint.Y.IsZero() {
		return nil, ErrInvalidChildIndex
	}
	childPoint.ToAffine()
	childPub := secp256k1.NewPublicKey(&childPoint.X, &childPoint.Y)

	return &ExtendedKey{
		key:       childPub.SerializeCompressed(),
		pubKey:    childPub.SerializeCompressed(),
		chainCode: childChainCode,
		depth:     k.depth + 1,
		childNum:  index,
		isPrivate: false,
	}, nil
}

// DeriveBIP44 walks m/44'/coinType'/account'/branch/index from the master
// node.
func DeriveBIP44(master *ExtendedKey, coinType, account, branch, index uint32) (*ExtendedKey, error) {
	path := []uint32{
		HardenedKeyStart + 44,
		HardenedKeyStart + coinType,
		HardenedKeyStart + account,
		branch,
		index,
	}
	node := master
	for _, step := range path {
		var err error
		node, err = node.Child(step)
		if err != nil {
			return nil, err
		}
	}
	return node, nil
}
