// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package client

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/chainlight/lwallet/headerstore"
	"github.com/chainlight/lwallet/peermgr"
	"github.com/chainlight/lwallet/wire"
)

// headerPeerAdapter implements headersync.Peer by translating a block
// locator into a getheaders message sent over a peermgr.Peer's generic
// channel.
type headerPeerAdapter struct {
	peer *peermgr.Peer
}

func (a headerPeerAdapter) SendGetHeaders(locator []headerstore.LocatorEntry) error {
	hashes := make(wire.BlockLocator, len(locator))
	for i, e := range locator {
		h := e.Hash
		hashes[i] = &h
	}
	msg := &wire.MsgGetHeaders{
		BlockLocatorHashes: hashes,
		HashStop:           chainhash.Hash{}, // zero hash: request to the peer's tip
	}
	return a.peer.Send(msg)
}

// filterPeerAdapter implements filtersync.Peer by translating height-based
// requests into the stop-hash-keyed cfcheckpt/cfheaders/cfilters messages
// the wire protocol actually carries, resolving heights to hashes against
// the local header store.
type filterPeerAdapter struct {
	peer  *peermgr.Peer
	store *headerstore.Store
}

func (a filterPeerAdapter) SendGetCFCheckpt(stopHash chainhash.Hash) error {
	return a.peer.Send(&wire.MsgGetCFCheckpt{
		FilterType: wire.FilterTypeBasic,
		StopHash:   stopHash,
	})
}

func (a filterPeerAdapter) SendGetCFHeaders(startHeight uint32, stopHash chainhash.Hash) error {
	return a.peer.Send(&wire.MsgGetCFHeaders{
		FilterType:  wire.FilterTypeBasic,
		StartHeight: startHeight,
		StopHash:    stopHash,
	})
}

func (a filterPeerAdapter) SendGetCFilters(startHeight, stopHeight uint32) error {
	stopHash, ok := a.store.GetBlockHash(int(stopHeight))
	if !ok {
		return fmt.Errorf("client: no known hash for height %d", stopHeight)
	}
	return a.peer.Send(&wire.MsgGetCFilters{
		FilterType:  wire.FilterTypeBasic,
		StartHeight: startHeight,
		StopHash:    stopHash,
	})
}
