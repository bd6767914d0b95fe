// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package headersync drives the header synchronization state machine: it
// requests headers from a selected peer, feeds responses into the header
// chain store, and detects stalls.
package headersync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/decred/slog"

	"github.com/chainlight/lwallet/headerstore"
	"github.com/chainlight/lwallet/wire"
)

var log = slog.Disabled

// UseLogger sets the package-wide logger used by this package.
func UseLogger(logger slog.Logger) { log = logger }

const (
	// requestThrottle suppresses re-requesting headers for the same local
	// height within this window, unless forced.
	requestThrottle = 30 * time.Second

	// syncTimeout is the overall wait for a sync_to_tip call before it is
	// retried once, then failed.
	syncTimeout = 5 * time.Minute

	// invPullDelay is how long to wait after an inv(MSG_BLOCK) before
	// pulling headers, batching bursts of announcements.
	invPullDelay = 200 * time.Millisecond

	// invPullWindow bounds how many new heights after an inv-triggered
	// pull still invoke OnNewBlock individually.
	invPullWindow = 10
)

// ErrStalled is returned when sync_to_tip makes no progress while still
// below the target height.
var ErrStalled = errors.New("headersync: chain sync stalled")

// Peer is the minimal surface headersync needs from a connected peer: it
// can be asked for headers.
type Peer interface {
	// SendGetHeaders sends a getheaders message built from locator,
	// stopping at the zero hash (meaning "to tip").
	SendGetHeaders(locator []headerstore.LocatorEntry) error
}

// Syncer drives header synchronization against a single chain store and
// peer selector.
type Syncer struct {
	store      *headerstore.Store
	selectPeer func() (Peer, bool)

	mu              sync.Mutex
	targetHeight    int
	requestPending  bool
	lastRequestTime time.Time
	lastRequestLocalHeight int

	completion chan error

	// OnNewBlock is invoked, on the syncer's own goroutine, for each new
	// height added within a short window after an inv-triggered pull whose
	// delta is small enough to enumerate individually.
	OnNewBlock func(height int)
}

// New constructs a Syncer bound to store, using selectPeer to obtain the
// peer to request headers from at each step.
func New(store *headerstore.Store, selectPeer func() (Peer, bool)) *Syncer {
	return &Syncer{
		store:                  store,
		selectPeer:             selectPeer,
		lastRequestLocalHeight: -1,
	}
}

// SetTargetHeight raises the sync target to height if it exceeds the
// current target, e.g. on a peer-announced start height.
func (s *Syncer) SetTargetHeight(height int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if height > s.targetHeight {
		s.targetHeight = height
	}
}

// SyncToTip requests headers until the local tip reaches the target height,
// or the overall timeout elapses (with one retry) or a stall is detected.
func (s *Syncer) SyncToTip(ctx context.Context) error {
	s.mu.Lock()
	if s.store.TipHeight() >= s.targetHeight {
		s.mu.Unlock()
		return nil
	}
	ch := make(chan error, 1)
	s.completion = ch
	s.mu.Unlock()

	if err := s.requestHeaders(false); err != nil {
		return err
	}

	select {
	case err := <-ch:
		return err
	case <-time.After(syncTimeout):
	case <-ctx.Done():
		return ctx.Err()
	}

	log.Warnf("headersync: sync_to_tip timed out after %s, retrying once", syncTimeout)
	if err := s.requestHeaders(true); err != nil {
		return err
	}
	select {
	case err := <-ch:
		return err
	case <-time.After(syncTimeout):
		return fmt.Errorf("headersync: sync_to_tip timed out after retry")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// requestHeaders selects a peer and sends getheaders built from the current
// block locator, honoring the request throttle unless force is set.
func (s *Syncer) requestHeaders(force bool) error {
	s.mu.Lock()
	localHeight := s.store.TipHeight()
	if !force && s.lastRequestLocalHeight == localHeight &&
		time.Since(s.lastRequestTime) < requestThrottle {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	peer, ok := s.selectPeer()
	if !ok {
		return fmt.Errorf("headersync: no peer available for header request")
	}

	locator, err := s.store.BuildBlockLocator()
	if err != nil {
		return fmt.Errorf("headersync: build_block_locator: %w", err)
	}

	if err := peer.SendGetHeaders(locator); err != nil {
		return fmt.Errorf("headersync: send getheaders: %w", err)
	}

	s.mu.Lock()
	s.requestPending = true
	s.lastRequestTime = time.Now()
	s.lastRequestLocalHeight = localHeight
	s.mu.Unlock()
	return nil
}

// HandleHeaders processes a headers message: each header (already validated
// for framing by the wire decoder, whose trailing tx-count varint must be
// zero) is handed to the chain store in order.
func (s *Syncer) HandleHeaders(msg *wire.MsgHeaders) {
	s.mu.Lock()
	s.requestPending = false
	s.mu.Unlock()

	raw := make([][]byte, len(msg.Headers))
	for i, h := range msg.Headers {
		b, err := h.Bytes()
		if err != nil {
			log.Errorf("headersync: serializing received header: %v", err)
			continue
		}
		raw[i] = b
	}

	added := 0
	for i, h := range msg.Headers {
		if raw[i] == nil {
			continue
		}
		if s.store.AddHeader(h, raw[i]) {
			added++
		}
	}

	s.mu.Lock()
	localHeight := s.store.TipHeight()
	target := s.targetHeight
	s.mu.Unlock()

	switch {
	case added > 0 && localHeight < target:
		// Chained pagination: immediately re-request the next batch.
		if err := s.requestHeaders(true); err != nil {
			s.complete(err)
		}
	case added == 0 && localHeight >= target:
		if err := s.store.ForceFlush(); err != nil {
			log.Errorf("headersync: flush on completion: %v", err)
		}
		s.complete(nil)
	case added == 0 && localHeight < target:
		if err := s.store.ForceFlush(); err != nil {
			log.Errorf("headersync: flush on stall: %v", err)
		}
		s.complete(ErrStalled)
	default:
		if err := s.store.ForceFlush(); err != nil {
			log.Errorf("headersync: flush: %v", err)
		}
		s.complete(nil)
	}
}

// complete signals the in-flight sync_to_tip completion channel, if any.
func (s *Syncer) complete(err error) {
	s.mu.Lock()
	ch := s.completion
	s.completion = nil
	s.mu.Unlock()
	if ch != nil {
		select {
		case ch <- err:
		default:
		}
	}
}

// HandleInv schedules a delayed header pull after an inv announcement that
// includes a block item, per the inv-triggered header pull behavior.
func (s *Syncer) HandleInv(inv *wire.MsgInv) {
	hasBlock := false
	for _, item := range inv.InvList {
		if item.Type == wire.InvTypeBlock || item.Type == wire.InvTypeWitnessBlock {
			hasBlock = true
			break
		}
	}
	if !hasBlock {
		return
	}

	// announceWindow is how long the peer has to answer the pull before the
	// new heights are counted.
	const announceWindow = 2 * time.Second

	startHeight := s.store.TipHeight()
	time.AfterFunc(invPullDelay, func() {
		if err := s.requestHeaders(true); err != nil {
			log.Warnf("headersync: inv-triggered header pull failed: %v", err)
			return
		}
		time.AfterFunc(announceWindow, func() { s.announceDelta(startHeight) })
	})
}

// announceDelta invokes OnNewBlock for each new height if the delta since
// startHeight is within the small-delta window; larger jumps invoke no
// callback at all.
func (s *Syncer) announceDelta(startHeight int) {
	if s.OnNewBlock == nil {
		return
	}
	newHeight := s.store.TipHeight()
	delta := newHeight - startHeight
	if delta <= 0 || delta > invPullWindow {
		return
	}
	for h := startHeight + 1; h <= newHeight; h++ {
		s.OnNewBlock(h)
	}
}
