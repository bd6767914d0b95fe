// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package peermgr owns the set of peer connections: the version/verack
// handshake, keep-alive pings, peer selection policies for header/filter/
// data requests, and exponential-backoff reconnection.
package peermgr

import (
	"bufio"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/decred/slog"

	"github.com/chainlight/lwallet/chaincfg"
	"github.com/chainlight/lwallet/wire"
)

var log = slog.Disabled

// UseLogger sets the package-wide logger used by this package.
func UseLogger(logger slog.Logger) { log = logger }

// ourServices are the service bits this light client announces of itself:
// none, since it neither relays the full chain nor serves compact filters.
const ourServices = 0

// pingInterval is how often an established peer is sent a keep-alive ping.
const pingInterval = 30 * time.Second

// handshakeTimeout bounds how long Dial waits for verack after sending
// our own version message.
const handshakeTimeout = 10 * time.Second

// streamReaderBufferSize sizes the bufio.Reader backing each peer's
// StreamReader; it must be able to buffer one full oversized frame plus the
// header, or peekFull will report a fatal "frame exceeds reader buffer"
// error for otherwise-valid large messages (e.g. a full headers batch).
const streamReaderBufferSize = wire.MaxPayloadSize + 4096

// MessageHandler is invoked, on the peer's own read goroutine, for every
// message received after the handshake completes.
type MessageHandler func(p *Peer, msg wire.Message)

// Peer is a single connection to a remote node.
type Peer struct {
	params *chaincfg.Params
	conn   net.Conn
	addr   string

	reader *wire.StreamReader

	writeMu sync.Mutex

	handshakeComplete int32 // atomic bool
	services          uint64
	userAgent         string
	startHeight       int32

	pingNonce int64 // atomic, 0 when no ping outstanding
	pingSent  time.Time
	lastRTT   time.Duration
	rttMu     sync.Mutex

	onMessage MessageHandler
	onClosed  func(p *Peer, err error)

	closeOnce sync.Once
	done      chan struct{}
}

// Dial connects to addr, performs the version/verack handshake, and starts
// the peer's read loop. onMessage is invoked for post-handshake messages;
// onClosed is invoked exactly once when the connection ends, for any
// reason (including a clean Close()).
func Dial(params *chaincfg.Params, addr string, onMessage MessageHandler, onClosed func(*Peer, error)) (*Peer, error) {
	conn, err := net.DialTimeout("tcp", addr, handshakeTimeout)
	if err != nil {
		return nil, err
	}

	p := &Peer{
		params:    params,
		conn:      conn,
		addr:      addr,
		reader:    wire.NewStreamReader(bufio.NewReaderSize(conn, streamReaderBufferSize), params.Net, params.HeaderLength),
		onMessage: onMessage,
		onClosed:  onClosed,
		done:      make(chan struct{}),
	}
	p.reader.OnResync = func(reason string) {
		log.Debugf("peermgr: %s resyncing wire stream: %s", addr, reason)
	}

	if err := p.handshake(); err != nil {
		conn.Close()
		return nil, err
	}

	go p.readLoop()
	go p.pingLoop()

	return p, nil
}

// Addr returns the remote address this peer is connected to.
func (p *Peer) Addr() string { return p.addr }

// HandshakeComplete reports whether both our version and the peer's verack
// (and vice versa) have been exchanged.
func (p *Peer) HandshakeComplete() bool {
	return atomic.LoadInt32(&p.handshakeComplete) == 1
}

// Services returns the service flags the peer announced in its version
// message.
func (p *Peer) Services() uint64 { return p.services }

// HasService reports whether the peer announced the given service bit.
func (p *Peer) HasService(bit uint64) bool { return p.services&bit == bit }

// StartHeight returns the chain height the peer announced at handshake.
func (p *Peer) StartHeight() int32 { return p.startHeight }

// RTT returns the most recent ping/pong round-trip sample, or 0 if none has
// completed yet.
func (p *Peer) RTT() time.Duration {
	p.rttMu.Lock()
	defer p.rttMu.Unlock()
	return p.lastRTT
}

func (p *Peer) handshake() error {
	nonce := rand.Uint64()
	version := &wire.MsgVersion{
		ProtocolVersion: int32(wire.ProtocolVersion),
		Services:        ourServices,
		Timestamp:       time.Now(),
		Nonce:           nonce,
		UserAgent:       "",
		StartHeight:     0,
		Relay:           false,
	}
	if err := p.send(version); err != nil {
		return fmt.Errorf("peermgr: sending version: %w", err)
	}

	sentVerAck := false
	gotVerAck := false
	deadline := time.Now().Add(handshakeTimeout)

	p.conn.SetReadDeadline(deadline)
	defer p.conn.SetReadDeadline(time.Time{})

	for !(sentVerAck && gotVerAck) {
		msg, _, _, err := p.reader.Next()
		if err != nil {
			return fmt.Errorf("peermgr: handshake read: %w", err)
		}
		switch m := msg.(type) {
		case *wire.MsgVersion:
			p.services = m.Services
			p.userAgent = m.UserAgent
			p.startHeight = m.StartHeight
			if !sentVerAck {
				if err := p.send(&wire.MsgVerAck{}); err != nil {
					return fmt.Errorf("peermgr: sending verack: %w", err)
				}
				sentVerAck = true
			}
		case *wire.MsgVerAck:
			gotVerAck = true
		}
	}

	atomic.StoreInt32(&p.handshakeComplete, 1)

	_ = p.send(&wire.MsgSendHeaders{})
	_ = p.send(&wire.MsgSendCmpct{Announce: false, Version: 1})

	return nil
}

// SendGetAddrAndAnnounceDiscovery sends sendaddrv2 followed by getaddr, for
// callers that enabled address-book discovery.
func (p *Peer) SendGetAddrAndAnnounceDiscovery() error {
	if err := p.send(&wire.MsgSendAddrV2{}); err != nil {
		return err
	}
	return p.send(&wire.MsgGetAddr{})
}

// Send writes a message to the peer, serializing concurrent writers.
func (p *Peer) Send(msg wire.Message) error {
	return p.send(msg)
}

func (p *Peer) send(msg wire.Message) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return wire.WriteMessage(p.conn, msg, p.params.Net)
}

// Ping sends a ping with a freshly generated nonce.
func (p *Peer) Ping() error {
	nonce := int64(rand.Uint64() >> 1) // keep positive for readable logs
	atomic.StoreInt64(&p.pingNonce, nonce)
	p.rttMu.Lock()
	p.pingSent = time.Now()
	p.rttMu.Unlock()
	return p.send(&wire.MsgPing{Nonce: uint64(nonce)})
}

func (p *Peer) pingLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := p.Ping(); err != nil {
				return
			}
		case <-p.done:
			return
		}
	}
}

func (p *Peer) readLoop() {
	var closeErr error
	for {
		msg, _, _, err := p.reader.Next()
		if err != nil {
			closeErr = err
			break
		}
		if pong, ok := msg.(*wire.MsgPong); ok {
			p.handlePong(pong)
			continue
		}
		if p.onMessage != nil {
			p.onMessage(p, msg)
		}
	}
	p.Close()
	if p.onClosed != nil {
		p.onClosed(p, closeErr)
	}
}

func (p *Peer) handlePong(pong *wire.MsgPong) {
	want := atomic.LoadInt64(&p.pingNonce)
	if want == 0 || uint64(want) != pong.Nonce {
		return // mismatched nonce, ignored per the ping/pong contract
	}
	atomic.StoreInt64(&p.pingNonce, 0)
	p.rttMu.Lock()
	p.lastRTT = time.Since(p.pingSent)
	p.rttMu.Unlock()
}

// Close closes the underlying connection. Safe to call more than once.
func (p *Peer) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.done)
		err = p.conn.Close()
	})
	return err
}
