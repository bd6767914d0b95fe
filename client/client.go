// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package client is the wallet's facade: it owns the peer manager, header
// chain store, header sync, and filter sync, dispatches incoming messages
// to the right collaborator, tracks a sync-phase state machine, and
// exposes the narrow Chain surface the wallet repository scans through.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/decred/slog"

	"github.com/chainlight/lwallet/chaincfg"
	"github.com/chainlight/lwallet/filtersync"
	"github.com/chainlight/lwallet/headerstore"
	"github.com/chainlight/lwallet/headersync"
	"github.com/chainlight/lwallet/peermgr"
	"github.com/chainlight/lwallet/txsign"
	"github.com/chainlight/lwallet/wire"
)

var log = slog.Disabled

// UseLogger sets the package-wide logger.
func UseLogger(logger slog.Logger) {
	log = logger
}

// Phase is a coarse sync-progress state, surfaced to callers via
// OnStateChanged.
type Phase int

const (
	PhaseConnecting Phase = iota
	PhaseSyncingHeaders
	PhaseSyncingFilterHeaders
	PhaseReady
)

func (p Phase) String() string {
	switch p {
	case PhaseConnecting:
		return "connecting"
	case PhaseSyncingHeaders:
		return "syncing_headers"
	case PhaseSyncingFilterHeaders:
		return "syncing_filter_headers"
	case PhaseReady:
		return "ready"
	default:
		return "unknown"
	}
}

// blockRequestTimeout bounds how long FetchBlock waits for a peer's
// response before resolving to (nil, nil).
const blockRequestTimeout = 10 * time.Second

// reorgRewindDepth is how far back the header store is truncated when
// sync stalls with headers that no longer extend the local tip, a strong
// signal the peer's view of the chain has forked away from ours.
const reorgRewindDepth = 6

// Config configures a Client.
type Config struct {
	Params           *chaincfg.Params
	HeaderStorePath  string
	Seeds            []string
	MaxConnections   int
	DiscoveryEnabled bool

	OnNewBlock     func(height int)
	OnReorg        func(oldHeight, newHeight int, commonAncestor chainhash.Hash)
	OnStateChanged func(phase Phase)
}

// Client is the wallet's single point of contact with the network.
type Client struct {
	cfg   Config
	store *headerstore.Store

	manager *peermgr.Manager
	headers *headersync.Syncer
	filters *filtersync.Syncer

	broadcastCache *txsign.BroadcastCache

	mu                     sync.Mutex
	phase                  Phase
	pendingFilterHdrsStart int
	pendingBlocks          map[chainhash.Hash]chan *wire.MsgBlock
	pendingBroadcast       map[chainhash.Hash]chan error
}

// New constructs a Client from cfg. Call Start to begin connecting and
// syncing.
func New(cfg Config) (*Client, error) {
	store, err := headerstore.New(cfg.Params, cfg.HeaderStorePath)
	if err != nil {
		return nil, fmt.Errorf("client: opening header store: %w", err)
	}

	c := &Client{
		cfg:              cfg,
		store:            store,
		broadcastCache:   txsign.NewBroadcastCache(),
		pendingBlocks:    map[chainhash.Hash]chan *wire.MsgBlock{},
		pendingBroadcast: map[chainhash.Hash]chan error{},
	}

	c.manager = peermgr.New(peermgr.Config{
		Params:           cfg.Params,
		MaxConnections:   cfg.MaxConnections,
		DiscoveryEnabled: cfg.DiscoveryEnabled,
		Seeds:            cfg.Seeds,
		OnMessage:        c.handleMessage,
	})
	c.headers = headersync.New(store, func() (headersync.Peer, bool) {
		p, ok := c.manager.SelectHeaderPeer()
		if !ok {
			return nil, false
		}
		return headerPeerAdapter{p}, true
	})
	c.headers.OnNewBlock = cfg.OnNewBlock
	c.filters = filtersync.New(store)

	return c, nil
}

// Start connects to seed peers and kicks off the header/filter-header sync
// pipeline.
func (c *Client) Start(ctx context.Context) error {
	c.setPhase(PhaseConnecting)
	c.manager.Start()

	c.setPhase(PhaseSyncingHeaders)
	if err := c.headers.SyncToTip(ctx); err != nil {
		if errors.Is(err, headersync.ErrStalled) {
			c.recoverFromStall(ctx)
		} else {
			log.Warnf("client: header sync: %v", err)
		}
	}

	c.setPhase(PhaseSyncingFilterHeaders)
	if peer, ok := c.manager.SelectFilterPeer(); ok {
		if err := c.filters.RequestCheckpoints(filterPeerAdapter{peer: peer, store: c.store}); err != nil {
			log.Warnf("client: requesting filter checkpoints: %v", err)
		}
	}

	c.setPhase(PhaseReady)
	return nil
}

// recoverFromStall rewinds the header store by reorgRewindDepth blocks and
// retries header sync once, on the assumption the stall was caused by the
// peer's chain having forked away from ours near the tip.
func (c *Client) recoverFromStall(ctx context.Context) {
	oldHeight := c.store.TipHeight()
	keep := oldHeight - reorgRewindDepth + 1
	if keep < 1 {
		keep = 1
	}
	if err := c.store.Truncate(keep); err != nil {
		log.Errorf("client: truncating header store after stall: %v", err)
		return
	}

	newHeight := c.store.TipHeight()
	commonAncestor := c.store.TipHash()
	log.Warnf("client: rewound header store from height %d to %d on stall", oldHeight, newHeight)
	if c.cfg.OnReorg != nil {
		c.cfg.OnReorg(oldHeight, newHeight, commonAncestor)
	}

	if err := c.headers.SyncToTip(ctx); err != nil {
		log.Warnf("client: header sync after stall recovery: %v", err)
	}
}

func (c *Client) setPhase(p Phase) {
	c.mu.Lock()
	c.phase = p
	c.mu.Unlock()
	if c.cfg.OnStateChanged != nil {
		c.cfg.OnStateChanged(p)
	}
}

// Phase returns the client's current sync phase.
func (c *Client) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Stop closes every peer connection.
func (c *Client) Stop() {
	c.manager.Stop()
}

// TipHeight implements wallet.Chain.
func (c *Client) TipHeight() int32 {
	return int32(c.store.TipHeight())
}

// RequestFilterHeaders requests cfheaders for [startHeight, stopHeight] from
// a filter-capable peer, remembering startHeight so the response can be
// chained correctly when it arrives.
func (c *Client) RequestFilterHeaders(startHeight, stopHeight int) error {
	peer, ok := c.manager.SelectFilterPeer()
	if !ok {
		return fmt.Errorf("client: no filter peer available")
	}
	c.mu.Lock()
	c.pendingFilterHdrsStart = startHeight
	c.mu.Unlock()
	return c.filters.RequestFilterHeaders(filterPeerAdapter{peer: peer, store: c.store}, startHeight, stopHeight)
}

// PrefetchFilters implements wallet.Chain: it requests the filter batch for
// [start, end] from a filter-capable peer and lets filtersync cache the
// results as they arrive.
func (c *Client) PrefetchFilters(ctx context.Context, start, end int32) error {
	peer, ok := c.manager.SelectFilterPeer()
	if !ok {
		return fmt.Errorf("client: no filter peer available")
	}
	return c.filters.RequestFilterBatch(filterPeerAdapter{peer: peer, store: c.store}, int(start), int(end))
}

// FilterMatchesScripts implements wallet.Chain.
func (c *Client) FilterMatchesScripts(ctx context.Context, height int32, scripts [][]byte) (bool, error) {
	peer, ok := c.manager.SelectFilterPeer()
	if !ok {
		return false, fmt.Errorf("client: no filter peer available")
	}
	return c.filters.FilterMatchesScripts(filterPeerAdapter{peer: peer, store: c.store}, int(height), scripts)
}

// FetchBlock implements wallet.Chain: it requests the full block at height
// from a data-capable peer via getdata and blocks until it arrives, a
// notfound is returned, or blockRequestTimeout elapses. A notfound or a
// timeout resolves to (nil, nil).
func (c *Client) FetchBlock(ctx context.Context, height int32) ([]byte, error) {
	hash, ok := c.store.GetBlockHash(int(height))
	if !ok {
		return nil, fmt.Errorf("client: no known hash for height %d", height)
	}

	peer, ok := c.manager.SelectDataPeer(false)
	if !ok {
		return nil, fmt.Errorf("client: no data peer available")
	}

	ch := make(chan *wire.MsgBlock, 1)
	c.mu.Lock()
	c.pendingBlocks[hash] = ch
	c.mu.Unlock()

	getData := &wire.MsgGetData{}
	getData.AddInvVect(&wire.InvVect{Type: wire.InvTypeWitnessBlock, Hash: hash})
	if err := peer.Send(getData); err != nil {
		c.mu.Lock()
		delete(c.pendingBlocks, hash)
		c.mu.Unlock()
		return nil, fmt.Errorf("client: sending getdata: %w", err)
	}

	select {
	case block := <-ch:
		if block == nil {
			return nil, nil
		}
		var buf bytes.Buffer
		if err := block.Encode(&buf); err != nil {
			return nil, fmt.Errorf("client: re-encoding fetched block: %w", err)
		}
		return buf.Bytes(), nil
	case <-time.After(blockRequestTimeout):
		c.mu.Lock()
		delete(c.pendingBlocks, hash)
		c.mu.Unlock()
		return nil, nil
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pendingBlocks, hash)
		c.mu.Unlock()
		return nil, ctx.Err()
	}
}

// BroadcastTx caches tx, announces its txid to a data peer, and waits for
// either a mempool-verification response or the silent-acceptance timeout,
// per the broadcast protocol. The txid is the non-witness double-SHA-256,
// matching what a peer's getdata and re-announcing inv will carry.
func (c *Client) BroadcastTx(ctx context.Context, tx *wire.MsgTx) error {
	txid, err := tx.TxHash()
	if err != nil {
		return fmt.Errorf("client: hashing transaction: %w", err)
	}

	peer, ok := c.manager.SelectDataPeer(false)
	if !ok {
		return fmt.Errorf("client: no data peer available")
	}

	c.broadcastCache.Put(txid, tx)

	sendInv := func(id [32]byte) error {
		inv := &wire.MsgInv{}
		inv.AddInvVect(&wire.InvVect{Type: wire.InvTypeTx, Hash: chainhash.Hash(id)})
		return peer.Send(inv)
	}
	sendMemPool := func(id [32]byte) error {
		return peer.Send(&wire.MsgMemPool{})
	}
	awaitResult := func(ctx context.Context, id [32]byte) error {
		hash := chainhash.Hash(id)
		ch := make(chan error, 1)
		c.mu.Lock()
		c.pendingBroadcast[hash] = ch
		c.mu.Unlock()
		select {
		case err := <-ch:
			return err
		case <-ctx.Done():
			c.mu.Lock()
			delete(c.pendingBroadcast, hash)
			c.mu.Unlock()
			return ctx.Err()
		}
	}

	broadcaster := txsign.NewBroadcaster(sendInv, sendMemPool, awaitResult)
	return broadcaster.Broadcast(ctx, [32]byte(txid))
}

// handleMessage is the single dispatch point for every post-handshake
// message from any peer.
func (c *Client) handleMessage(p *peermgr.Peer, msg wire.Message) {
	switch m := msg.(type) {
	case *wire.MsgAddr:
		c.manager.HandleAddr(m)
	case *wire.MsgAddrV2:
		c.manager.HandleAddrV2(m)
	case *wire.MsgHeaders:
		c.headers.HandleHeaders(m)
	case *wire.MsgInv:
		c.headers.HandleInv(m)
		c.handleInvForBroadcast(m)
	case *wire.MsgCFCheckpt:
		c.filters.HandleCFCheckpt(m, c.store.TipHeight()-1)
	case *wire.MsgCFHeaders:
		c.mu.Lock()
		start := c.pendingFilterHdrsStart
		c.mu.Unlock()
		c.filters.HandleCFHeaders(m, start)
	case *wire.MsgCFilter:
		if err := c.filters.HandleCFilter(m); err != nil {
			log.Warnf("client: handling cfilter from %s: %v", p.Addr(), err)
		}
	case *wire.MsgBlock:
		c.handleBlock(m)
	case *wire.MsgGetData:
		c.handleGetData(p, m)
	case *wire.MsgNotFound:
		c.handleNotFound(m)
	case *wire.MsgReject:
		c.handleReject(m)
	}
}

func (c *Client) handleBlock(m *wire.MsgBlock) {
	hash, err := m.Header.BlockHash(c.cfg.Params.HeaderHashT1, c.cfg.Params.HeaderHashT2)
	if err != nil {
		log.Warnf("client: hashing received block header: %v", err)
		return
	}
	c.mu.Lock()
	ch, ok := c.pendingBlocks[hash]
	if ok {
		delete(c.pendingBlocks, hash)
	}
	c.mu.Unlock()
	if ok {
		ch <- m
	}
}

// handleGetData answers a peer's getdata for a tx we've broadcast from our
// cache; everything else (blocks) is driven the other way, by FetchBlock's
// own pending-request bookkeeping, so it's ignored here.
func (c *Client) handleGetData(p *peermgr.Peer, m *wire.MsgGetData) {
	for _, inv := range m.InvList {
		if inv.Type != wire.InvTypeTx && inv.Type != wire.InvTypeWitnessTx {
			continue
		}
		tx, ok := c.broadcastCache.Get(inv.Hash)
		if !ok {
			continue
		}
		if err := p.Send(tx); err != nil {
			log.Warnf("client: sending cached tx %s to %s: %v", inv.Hash, p.Addr(), err)
		}
	}
}

func (c *Client) handleNotFound(m *wire.MsgNotFound) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, inv := range m.InvList {
		if ch, ok := c.pendingBlocks[inv.Hash]; ok {
			delete(c.pendingBlocks, inv.Hash)
			ch <- nil
		}
		if ch, ok := c.pendingBroadcast[inv.Hash]; ok {
			delete(c.pendingBroadcast, inv.Hash)
			ch <- txsign.ErrNotFound
		}
	}
}

func (c *Client) handleReject(m *wire.MsgReject) {
	log.Warnf("client: peer rejected %s: %s (%s)", m.Cmd, m.Reason, txsign.RejectCodeName(uint8(m.Code)))
	c.mu.Lock()
	ch, ok := c.pendingBroadcast[m.Hash]
	if ok {
		delete(c.pendingBroadcast, m.Hash)
	}
	c.mu.Unlock()
	if ok {
		ch <- fmt.Errorf("%w: %s", txsign.ErrRejected, m.Reason)
	}
}

// handleInvForBroadcast treats an inv carrying our own broadcast txid as
// silent confirmation of mempool acceptance.
func (c *Client) handleInvForBroadcast(m *wire.MsgInv) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, inv := range m.InvList {
		if inv.Type != wire.InvTypeTx && inv.Type != wire.InvTypeWitnessTx {
			continue
		}
		if ch, ok := c.pendingBroadcast[inv.Hash]; ok {
			delete(c.pendingBroadcast, inv.Hash)
			ch <- nil
		}
	}
}
