// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package peermgr

import (
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/chainlight/lwallet/chaincfg"
	"github.com/chainlight/lwallet/wire"
)

// reconnectBaseDelay and reconnectCapDelay bound the exponential backoff
// applied between reconnect attempts to the same address.
const (
	reconnectBaseDelay = 30 * time.Second
	reconnectCapDelay  = 30 * time.Second
)

// Config configures a Manager.
type Config struct {
	Params *chaincfg.Params

	// MaxConnections is the maximum number of simultaneous peer
	// connections.
	MaxConnections int

	// DiscoveryEnabled turns on addr/addrv2-driven address book growth.
	DiscoveryEnabled bool

	// Seeds are the initial candidate addresses ("host:port").
	Seeds []string

	// OnMessage is invoked for every post-handshake message from any peer.
	OnMessage MessageHandler
}

// Manager owns the active connection set, the address book, and the
// reconnect scheduler.
type Manager struct {
	cfg Config

	mu        sync.Mutex
	peers     map[string]*Peer
	banned    map[string]struct{}
	book      []string // candidate addresses not yet connected
	backoff   map[string]time.Duration
	connecting map[string]struct{}

	headersCursor int
	dataCursor    int
}

// New constructs a Manager from cfg. Call Start to begin connecting.
func New(cfg Config) *Manager {
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = 1
	}
	m := &Manager{
		cfg:        cfg,
		peers:      make(map[string]*Peer),
		banned:     make(map[string]struct{}),
		backoff:    make(map[string]time.Duration),
		connecting: make(map[string]struct{}),
	}
	m.book = append(m.book, cfg.Seeds...)
	return m
}

// Start connects up to MaxConnections peers from the address book.
func (m *Manager) Start() {
	m.mu.Lock()
	toConnect := m.cfg.MaxConnections - len(m.peers)
	candidates := make([]string, 0, toConnect)
	for len(candidates) < toConnect && len(m.book) > 0 {
		addr := m.book[0]
		m.book = m.book[1:]
		if _, banned := m.banned[addr]; banned {
			continue
		}
		candidates = append(candidates, addr)
	}
	m.mu.Unlock()

	for _, addr := range candidates {
		go m.connect(addr)
	}
}

func (m *Manager) connect(addr string) {
	m.mu.Lock()
	if _, already := m.connecting[addr]; already {
		m.mu.Unlock()
		return
	}
	m.connecting[addr] = struct{}{}
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.connecting, addr)
		m.mu.Unlock()
	}()

	p, err := Dial(m.cfg.Params, addr, m.cfg.OnMessage, m.onPeerClosed)
	if err != nil {
		log.Warnf("peermgr: dial %s: %v", addr, err)
		m.scheduleReconnect(addr)
		return
	}

	m.mu.Lock()
	m.peers[addr] = p
	delete(m.backoff, addr) // reset backoff on first success
	m.mu.Unlock()

	log.Infof("peermgr: connected to %s", addr)

	if m.cfg.DiscoveryEnabled {
		if err := p.SendGetAddrAndAnnounceDiscovery(); err != nil {
			log.Warnf("peermgr: %s: requesting addresses: %v", addr, err)
		}
	}
}

func (m *Manager) onPeerClosed(p *Peer, err error) {
	addr := p.Addr()
	m.mu.Lock()
	delete(m.peers, addr)
	m.mu.Unlock()

	log.Warnf("peermgr: %s disconnected: %v", addr, err)
	m.scheduleReconnect(addr)
}

// scheduleReconnect schedules a reconnect attempt to addr with exponential
// backoff (base 30s, cap 30s, reset to base on the next successful
// connection).
func (m *Manager) scheduleReconnect(addr string) {
	m.mu.Lock()
	if _, banned := m.banned[addr]; banned {
		m.mu.Unlock()
		return
	}
	delay := m.backoff[addr]
	if delay == 0 {
		delay = reconnectBaseDelay
	} else {
		delay *= 2
		if delay > reconnectCapDelay {
			delay = reconnectCapDelay
		}
	}
	m.backoff[addr] = delay
	m.mu.Unlock()

	time.AfterFunc(delay, func() {
		m.mu.Lock()
		full := len(m.peers) >= m.cfg.MaxConnections
		m.mu.Unlock()
		if full {
			return
		}
		m.connect(addr)
	})
}

// Ban marks addr as banned: it is rejected on enqueue and never connected
// to, and any existing connection to it is closed.
func (m *Manager) Ban(addr string) {
	m.mu.Lock()
	m.banned[addr] = struct{}{}
	p := m.peers[addr]
	m.mu.Unlock()
	if p != nil {
		p.Close()
	}
}

// HandleAddr enqueues unique, unbanned, valid-port candidate addresses from
// a legacy addr message, then opportunistically opens additional
// connections up to MaxConnections.
func (m *Manager) HandleAddr(msg *wire.MsgAddr) {
	if !m.cfg.DiscoveryEnabled {
		return
	}
	for _, entry := range msg.AddrList {
		addr := net.JoinHostPort(entry.IP.String(), strconv.Itoa(int(entry.Port)))
		m.enqueueCandidate(addr)
	}
	m.Start()
}

// HandleAddrV2 enqueues candidates from a BIP155 addrv2 message, skipping
// any network id this client's dialer (plain TCP) can't use.
func (m *Manager) HandleAddrV2(msg *wire.MsgAddrV2) {
	if !m.cfg.DiscoveryEnabled {
		return
	}
	for _, entry := range msg.AddrList {
		if entry.NetworkID != wire.NetIDIPv4 && entry.NetworkID != wire.NetIDIPv6 {
			continue
		}
		ip := net.IP(entry.Addr)
		addr := net.JoinHostPort(ip.String(), strconv.Itoa(int(entry.Port)))
		m.enqueueCandidate(addr)
	}
	m.Start()
}

func (m *Manager) enqueueCandidate(addr string) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil || host == "" {
		return
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, banned := m.banned[addr]; banned {
		return
	}
	if _, connected := m.peers[addr]; connected {
		return
	}
	for _, existing := range m.book {
		if existing == addr {
			return
		}
	}
	m.book = append(m.book, addr)
}

// SelectHeaderPeer returns any handshake-complete peer, round-robin.
func (m *Manager) SelectHeaderPeer() (*Peer, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.selectRoundRobin(&m.headersCursor, func(p *Peer) bool {
		return p.HandshakeComplete()
	})
}

// SelectFilterPeer returns a handshake-complete peer advertising
// NODE_COMPACT_FILTERS.
func (m *Manager) SelectFilterPeer() (*Peer, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.selectRoundRobin(&m.headersCursor, func(p *Peer) bool {
		return p.HandshakeComplete() && p.HasService(wire.SFNodeCompactFilters)
	})
}

// SelectDataPeer returns any active (handshake-complete) peer. If
// requireFilters is set, the peer must additionally advertise
// NODE_COMPACT_FILTERS.
func (m *Manager) SelectDataPeer(requireFilters bool) (*Peer, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.selectRoundRobin(&m.dataCursor, func(p *Peer) bool {
		if !p.HandshakeComplete() {
			return false
		}
		if requireFilters && !p.HasService(wire.SFNodeCompactFilters) {
			return false
		}
		return true
	})
}

// selectRoundRobin must be called with m.mu held.
func (m *Manager) selectRoundRobin(cursor *int, match func(*Peer) bool) (*Peer, bool) {
	addrs := make([]string, 0, len(m.peers))
	for addr := range m.peers {
		addrs = append(addrs, addr)
	}
	if len(addrs) == 0 {
		return nil, false
	}
	// Sort for a deterministic round-robin order.
	for i := 1; i < len(addrs); i++ {
		for j := i; j > 0 && addrs[j] < addrs[j-1]; j-- {
			addrs[j], addrs[j-1] = addrs[j-1], addrs[j]
		}
	}
	for i := 0; i < len(addrs); i++ {
		idx := (*cursor + i) % len(addrs)
		p := m.peers[addrs[idx]]
		if match(p) {
			*cursor = idx + 1
			return p, true
		}
	}
	return nil, false
}

// Broadcast sends msg to every currently active peer.
func (m *Manager) Broadcast(msg wire.Message) {
	m.mu.Lock()
	peers := make([]*Peer, 0, len(m.peers))
	for _, p := range m.peers {
		peers = append(peers, p)
	}
	m.mu.Unlock()

	for _, p := range peers {
		if err := p.Send(msg); err != nil {
			log.Warnf("peermgr: broadcast to %s: %v", p.Addr(), err)
		}
	}
}

// ActivePeerCount returns the number of currently connected peers.
func (m *Manager) ActivePeerCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.peers)
}

// Stop closes every active connection. Reconnect scheduling for addresses
// already in flight is best-effort canceled by virtue of Start no longer
// being called.
func (m *Manager) Stop() {
	m.mu.Lock()
	peers := make([]*Peer, 0, len(m.peers))
	for _, p := range m.peers {
		peers = append(peers, p)
	}
	m.mu.Unlock()
	for _, p := range peers {
		p.Close()
	}
}
