// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

// MaxReceiveIndex and MaxChangeIndex cap the address indices on each
// branch: receive indices run 0..MaxReceiveIndex-1 and change indices
// 0..MaxChangeIndex-1, however high the index actually seen paid.
const (
	MaxReceiveIndex = 42
	MaxChangeIndex  = 10
)

// receiveCursorKey and changeCursorKey name the two tracked high-water marks in the
// persisted address book.
const (
	receiveCursorKey = "p2wpkh_receive"
	changeCursorKey  = "p2wpkh_change"
)

// AddressCursor tracks the highest-used index per branch. -1 means no
// address on that branch has been used yet.
type AddressCursor struct {
	HighestReceive int32
	HighestChange  int32
}

// NewAddressCursor returns a cursor with nothing issued on either branch.
func NewAddressCursor() AddressCursor {
	return AddressCursor{HighestReceive: -1, HighestChange: -1}
}

// AddressCursorFromBook reconstructs a cursor from a persisted address book
// map, treating an absent key as "none issued".
func AddressCursorFromBook(book map[string]uint32) AddressCursor {
	c := NewAddressCursor()
	if v, ok := book[receiveCursorKey]; ok {
		c.HighestReceive = int32(v)
	}
	if v, ok := book[changeCursorKey]; ok {
		c.HighestChange = int32(v)
	}
	return c
}

// ToBook serializes the cursor into the persisted address book shape.
func (c AddressCursor) ToBook() map[string]uint32 {
	book := map[string]uint32{}
	if c.HighestReceive >= 0 {
		book[receiveCursorKey] = uint32(c.HighestReceive)
	}
	if c.HighestChange >= 0 {
		book[changeCursorKey] = uint32(c.HighestChange)
	}
	return book
}

// NextReceiveIndex returns the next receive index to derive, bounded by
// MaxReceiveIndex.
func (c AddressCursor) NextReceiveIndex() int32 {
	next := c.HighestReceive + 1
	if next >= MaxReceiveIndex {
		return MaxReceiveIndex - 1
	}
	return next
}

// NextChangeIndex returns the next change index to derive, bounded by
// MaxChangeIndex.
func (c AddressCursor) NextChangeIndex() int32 {
	next := c.HighestChange + 1
	if next >= MaxChangeIndex {
		return MaxChangeIndex - 1
	}
	return next
}

// MarkReceiveUsed raises the receive high-water mark if index is higher
// than what's currently recorded.
func (c *AddressCursor) MarkReceiveUsed(index int32) {
	if index > c.HighestReceive {
		c.HighestReceive = index
	}
}

// MarkChangeUsed raises the change high-water mark if index is higher than
// what's currently recorded.
func (c *AddressCursor) MarkChangeUsed(index int32) {
	if index > c.HighestChange {
		c.HighestChange = index
	}
}
