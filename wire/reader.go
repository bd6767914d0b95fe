// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
)

// StreamReader implements the resync-on-garbage contract described for the
// wire codec: it buffers bytes from an underlying connection and, on a magic
// or checksum mismatch, discards exactly one byte and tries again rather
// than tearing down the connection. It never blocks the writer side of a
// connection because it is only ever driven from the per-peer read loop.
type StreamReader struct {
	r            *bufio.Reader
	magic        uint32
	headerLength int

	// OnResync, if set, is called with a human-readable reason each time a
	// byte is discarded while hunting for the next valid frame. It exists
	// so callers can log without this package importing a logger.
	OnResync func(reason string)
}

// NewStreamReader wraps r (typically a net.Conn) with the resync buffering
// behavior for the given network magic. headerLength is the chain's fixed
// block header size (chaincfg.Params.HeaderLength); it is threaded into
// headers/block messages, whose wire format carries no explicit length.
func NewStreamReader(r *bufio.Reader, magic uint32, headerLength int) *StreamReader {
	return &StreamReader{r: r, magic: magic, headerLength: headerLength}
}

// Next blocks until it has assembled one complete, checksum-valid message,
// resyncing past garbage or truncated frames as needed.
func (s *StreamReader) Next() (Message, []byte, string, error) {
	for {
		if err := s.syncToMagic(); err != nil {
			return nil, nil, "", err
		}

		hdrBytes, err := s.r.Peek(messageHeaderSize)
		if err != nil {
			return nil, nil, "", err
		}
		length := binary.LittleEndian.Uint32(hdrBytes[16:20])
		if length > MaxPayloadSize {
			s.discard(1, "oversized payload length")
			continue
		}

		total := messageHeaderSize + int(length)
		frame, err := s.peekFull(total)
		if err != nil {
			return nil, nil, "", err
		}

		var cmd string
		end := 4
		for end < 4+commandSize && frame[end] != 0 {
			end++
		}
		cmd = string(frame[4:end])

		payload := make([]byte, length)
		copy(payload, frame[messageHeaderSize:total])

		var wantChecksum [4]byte
		copy(wantChecksum[:], frame[20:24])
		gotChecksum := checksum(payload)
		if gotChecksum != wantChecksum {
			s.discard(1, fmt.Sprintf("checksum mismatch for command %q", cmd))
			continue
		}

		// Commit the consumed bytes now that we know the frame is valid.
		if _, err := s.r.Discard(total); err != nil {
			return nil, nil, "", err
		}

		msg := makeEmptyMessage(cmd, s.headerLength)
		if msg == nil {
			// Unknown but well-framed command: skip it, no resync needed.
			continue
		}
		if err := msg.Decode(bytes.NewReader(payload)); err != nil {
			return nil, payload, cmd, err
		}
		return msg, payload, cmd, nil
	}
}

// syncToMagic advances the buffer one byte at a time until the next four
// bytes match the network magic, then returns; it does not wait for a full
// messageHeaderSize header to be buffered.
func (s *StreamReader) syncToMagic() error {
	for {
		b, err := s.r.Peek(4)
		if err != nil {
			return err
		}
		got := binary.LittleEndian.Uint32(b)
		if got == s.magic {
			return nil
		}
		s.discard(1, "magic mismatch")
	}
}

// peekFull blocks, growing the read, until n bytes are available to peek
// without consuming them.
func (s *StreamReader) peekFull(n int) ([]byte, error) {
	for {
		b, err := s.r.Peek(n)
		if err == nil {
			return b, nil
		}
		if err == bufio.ErrBufferFull {
			return nil, fmt.Errorf("wire: frame of %d bytes exceeds reader buffer", n)
		}
		// Short peek (not enough buffered yet): the underlying bufio.Reader
		// already blocked on a fill attempt, so a genuine non-EOF error here
		// is fatal to the connection.
		return nil, err
	}
}

func (s *StreamReader) discard(n int, reason string) {
	if s.OnResync != nil {
		s.OnResync(reason)
	}
	_, _ = s.r.Discard(n)
}
