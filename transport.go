// Copyright 2026 The go-sci2c Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sci2c

import (
	"fmt"
	"time"

	"github.com/hostcard/go-sci2c/internal/syncutil"
)

// Channel is the raw byte channel to the card. Implementations cover
// the physical bus: a write phase opened with BeginWrite and closed
// with EndWrite, then an optional read phase opened with RequestRead.
// EndWrite(holdBus=true) keeps the bus claimed so the read phase can
// start with a repeated start condition instead of releasing the bus.
type Channel interface {
	// BeginWrite starts a write phase.
	BeginWrite() error
	// Write queues bytes for the current write phase.
	Write(p []byte) error
	// EndWrite finishes the write phase. With holdBus the bus stays
	// claimed for an immediately following read phase.
	EndWrite(holdBus bool) error
	// RequestRead initiates a read phase of up to n bytes.
	RequestRead(n int) error
	// ReadByte returns the next available byte of the read phase.
	ReadByte() (byte, error)
	// Available reports whether the read phase has bytes left.
	Available() bool
	// Name identifies the bus for error reporting.
	Name() string
	// Close releases the channel.
	Close() error
}

// Transport frames byte buffers for exchange over a Channel and owns
// the rolling 3-bit sequence counter of the link. One Transport serves
// exactly one session; it performs no locking because the protocol is
// strictly half-duplex with a single logical sender.
type Transport struct {
	ch    Channel
	cfg   *Config
	trace *TraceBuffer
	seq   byte
}

// NewTransport creates a transport over the given channel. A nil
// config uses DefaultConfig.
func NewTransport(ch Channel, cfg *Config) *Transport {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Transport{
		ch:    ch,
		cfg:   cfg,
		trace: NewTraceBuffer(ch.Name(), cfg.TraceDepth),
	}
}

// Channel returns the underlying channel.
func (t *Transport) Channel() Channel {
	return t.ch
}

// Exchange performs one blocking half-duplex round trip: it writes out
// fully, then reads expectedIn bytes. A short read is tolerated: the
// unread tail of the returned buffer stays zero. Observed hardware
// occasionally under-delivers without the data being unusable, so the
// policy is a debug log, not an error.
func (t *Transport) Exchange(out []byte, expectedIn int) ([]byte, error) {
	if err := t.ch.BeginWrite(); err != nil {
		return nil, t.trace.WrapError(NewTransportError("Exchange", t.ch.Name(), fmt.Errorf("%w: %w", ErrChannelWrite, err)))
	}
	if err := t.ch.Write(out); err != nil {
		return nil, t.trace.WrapError(NewTransportError("Exchange", t.ch.Name(), fmt.Errorf("%w: %w", ErrChannelWrite, err)))
	}
	if err := t.ch.EndWrite(expectedIn > 0); err != nil {
		return nil, t.trace.WrapError(NewTransportError("Exchange", t.ch.Name(), fmt.Errorf("%w: %w", ErrChannelWrite, err)))
	}
	t.trace.RecordTX(out, "")

	if expectedIn == 0 {
		return nil, nil
	}

	if err := t.ch.RequestRead(expectedIn); err != nil {
		return nil, t.trace.WrapError(NewTransportError("Exchange", t.ch.Name(), fmt.Errorf("%w: %w", ErrChannelRead, err)))
	}

	in := make([]byte, expectedIn)
	n := 0
	for n < expectedIn && t.ch.Available() {
		b, err := t.ch.ReadByte()
		if err != nil {
			return nil, t.trace.WrapError(NewTransportError("Exchange", t.ch.Name(), fmt.Errorf("%w: %w", ErrChannelRead, err)))
		}
		in[n] = b
		n++
	}
	if n < expectedIn {
		Debugf("short read on %s: got %d of %d bytes", t.ch.Name(), n, expectedIn)
	}
	t.trace.RecordRX(in[:n], "")
	return in, nil
}

// ReadStatus reads the card's link status register. The code lives in
// the top nibble of the second reply byte.
func (t *Transport) ReadStatus() (LinkStatus, error) {
	in, err := t.Exchange([]byte{CmdReadStatus}, statusReplyLen)
	if err != nil {
		return 0, err
	}
	return LinkStatus(in[1] >> 4), nil
}

// SendAPDU frames an encoded command APDU with the master-to-slave PCB
// and length byte and sends it. The sequence counter advances after
// every send, regardless of outcome. After the exchange the card's
// status register is polled; a status other than Ready is surfaced as
// a transport fault.
func (t *Transport) SendAPDU(apduBytes []byte) error {
	frame := make([]byte, 0, sendHeaderLen+len(apduBytes))
	frame = append(frame, CmdMasterToSlaveData|t.seq<<seqShift, byte(len(apduBytes)))
	frame = append(frame, apduBytes...)

	_, err := t.Exchange(frame, ackLen)
	t.seq = (t.seq + 1) & seqMask
	if err != nil {
		return err
	}
	return t.waitReady("SendAPDU")
}

// RecvAPDU requests expected bytes of buffered response data from the
// card. The returned buffer is raw: the caller strips the link prefix
// byte and decodes the rest as a response APDU.
func (t *Transport) RecvAPDU(expected int) ([]byte, error) {
	return t.Exchange([]byte{CmdSlaveToMasterData}, expected)
}

// waitReady waits the settle delay, then polls the status register
// until the card leaves the Busy state. The poll is bounded; the delay
// and budget are protocol constants, not a retry of the operation.
func (t *Transport) waitReady(op string) error {
	time.Sleep(t.cfg.SettleDelay)

	interval := t.cfg.PollInterval
	for attempt := 0; attempt < t.cfg.PollAttempts; attempt++ {
		status, err := t.ReadStatus()
		if err != nil {
			return err
		}
		if status == StatusReady {
			return nil
		}
		if status != StatusBusy {
			return t.trace.WrapError(NewLinkStatusError(op, t.ch.Name(), status))
		}
		time.Sleep(interval)
		if interval < maxPollInterval {
			interval *= 2
		}
	}
	return t.trace.WrapError(NewCardBusyError(op, t.ch.Name()))
}

// MockChannel is an in-memory Channel for testing. Replies are
// scripted per link command selector; writes are recorded for
// inspection. Safe for concurrent use so tests can assert from
// multiple goroutines.
type MockChannel struct {
	replies   map[byte][]byte
	errs      map[byte]error
	calls     map[byte]int
	writes    [][]byte
	pending   []byte
	readBuf   []byte
	readPos   int
	shortRead int
	mu        syncutil.RWMutex
	closed    bool
}

// NewMockChannel creates a mock channel with no scripted replies.
// Unscripted selectors answer with zero bytes.
func NewMockChannel() *MockChannel {
	return &MockChannel{
		replies: make(map[byte][]byte),
		errs:    make(map[byte]error),
		calls:   make(map[byte]int),
	}
}

// Name implements Channel.
func (*MockChannel) Name() string {
	return "mock"
}

// BeginWrite implements Channel.
func (m *MockChannel) BeginWrite() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrChannelClosed
	}
	m.pending = m.pending[:0]
	return nil
}

// Write implements Channel.
func (m *MockChannel) Write(p []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrChannelClosed
	}
	m.pending = append(m.pending, p...)
	return nil
}

// EndWrite implements Channel. It records the finished frame and
// stages the scripted reply for the following read phase.
func (m *MockChannel) EndWrite(_ bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrChannelClosed
	}
	frame := append([]byte(nil), m.pending...)
	m.writes = append(m.writes, frame)

	if len(frame) == 0 {
		return nil
	}
	sel := SelectorOf(frame[0])
	m.calls[sel]++
	if err := m.errs[sel]; err != nil {
		return err
	}
	m.readBuf = m.replies[sel]
	m.readPos = 0
	return nil
}

// RequestRead implements Channel. The staged reply is truncated to n
// bytes; a configured short read truncates it further.
func (m *MockChannel) RequestRead(n int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrChannelClosed
	}
	if len(m.readBuf) > n {
		m.readBuf = m.readBuf[:n]
	}
	if m.shortRead > 0 && len(m.readBuf) > m.shortRead {
		m.readBuf = m.readBuf[:m.shortRead]
		m.shortRead = 0
	}
	m.readPos = 0
	return nil
}

// ReadByte implements Channel.
func (m *MockChannel) ReadByte() (byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readPos >= len(m.readBuf) {
		return 0, ErrChannelRead
	}
	b := m.readBuf[m.readPos]
	m.readPos++
	return b, nil
}

// Available implements Channel.
func (m *MockChannel) Available() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.readPos < len(m.readBuf)
}

// Close implements Channel.
func (m *MockChannel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Test helper methods

// SetReply scripts the reply bytes for a link command selector.
func (m *MockChannel) SetReply(selector byte, reply []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replies[selector] = reply
}

// SetError injects an error for a link command selector.
func (m *MockChannel) SetError(selector byte, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[selector] = err
}

// SetShortRead makes the next read phase deliver at most n bytes.
func (m *MockChannel) SetShortRead(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shortRead = n
}

// CallCount returns how many frames were sent for a selector.
func (m *MockChannel) CallCount(selector byte) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls[selector]
}

// Writes returns the recorded outbound frames.
func (m *MockChannel) Writes() [][]byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	writes := make([][]byte, len(m.writes))
	copy(writes, m.writes)
	return writes
}

// Ensure MockChannel implements Channel.
var _ Channel = (*MockChannel)(nil)
