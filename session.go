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

	"github.com/hostcard/go-sci2c/apdu"
)

// Protocol timing. The wakeup double-issue and the guard delays are
// requirements of the card's handshake, kept as named constants rather
// than folded into a generic retry loop.
const (
	// wakeupIssueCount is how many times the wakeup command must be
	// issued; the card consumes the first one while leaving low-power
	// mode.
	wakeupIssueCount = 2

	defaultSettleDelay    = 1 * time.Millisecond
	defaultResetGuardTime = 5 * time.Millisecond
	defaultPollInterval   = 1 * time.Millisecond
	defaultPollAttempts   = 10
	maxPollInterval       = 16 * time.Millisecond

	defaultTraceDepth = 16
)

// Config holds the link timing parameters shared by a session and its
// transport.
type Config struct {
	// SettleDelay is the fixed wait between sending an APDU and the
	// first status register read.
	SettleDelay time.Duration
	// ResetGuardTime is the wait after a soft reset before the card
	// may be addressed again.
	ResetGuardTime time.Duration
	// PollInterval is the initial delay between status polls while the
	// card reports Busy; it doubles up to a fixed bound.
	PollInterval time.Duration
	// PollAttempts bounds the status poll loop.
	PollAttempts int
	// TraceDepth is how many wire exchanges the transport keeps for
	// attaching to errors.
	TraceDepth int
}

// DefaultConfig returns the default link timing.
func DefaultConfig() *Config {
	return &Config{
		SettleDelay:    defaultSettleDelay,
		ResetGuardTime: defaultResetGuardTime,
		PollInterval:   defaultPollInterval,
		PollAttempts:   defaultPollAttempts,
		TraceDepth:     defaultTraceDepth,
	}
}

// State is the session's position in the handshake state machine.
type State int

// Session states. Any transport fault or card-reported error moves the
// session to StateFaulted; the only way out is a fresh Wakeup.
const (
	StateIdle State = iota
	StateAwoken
	StateReset
	StateParametersExchanged
	StateReady
	StateFaulted
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwoken:
		return "awoken"
	case StateReset:
		return "reset"
	case StateParametersExchanged:
		return "parameters exchanged"
	case StateReady:
		return "ready"
	case StateFaulted:
		return "faulted"
	default:
		return "invalid"
	}
}

// Session drives the SCI2C handshake and steady-state APDU exchange
// over one channel. It owns the session state, the cached ATR and,
// through its transport, the rolling sequence counter; none of that is
// global, so independent sessions (for example in tests) do not
// interfere.
//
// Thread safety: a Session is not safe for concurrent use. The link is
// strictly half-duplex with one logical sender, so all methods must be
// called from a single goroutine.
type Session struct {
	tr     *Transport
	cfg    *Config
	atr    []byte
	state  State
	cdbMax byte
}

// Option configures a Session.
type Option func(*Session) error

// WithConfig replaces the whole timing configuration.
func WithConfig(cfg *Config) Option {
	return func(s *Session) error {
		if cfg == nil {
			return fmt.Errorf("config must not be nil")
		}
		s.cfg = cfg
		return nil
	}
}

// WithSettleDelay overrides the post-send settle delay.
func WithSettleDelay(d time.Duration) Option {
	return func(s *Session) error {
		s.cfg.SettleDelay = d
		return nil
	}
}

// WithResetGuardTime overrides the post-reset guard delay.
func WithResetGuardTime(d time.Duration) Option {
	return func(s *Session) error {
		s.cfg.ResetGuardTime = d
		return nil
	}
}

// WithTrace overrides how many wire exchanges are kept for error
// reports.
func WithTrace(depth int) Option {
	return func(s *Session) error {
		if depth < 1 {
			return fmt.Errorf("trace depth must be at least 1, got %d", depth)
		}
		s.cfg.TraceDepth = depth
		return nil
	}
}

// WithStatusPoll overrides the busy-poll interval and budget.
func WithStatusPoll(interval time.Duration, attempts int) Option {
	return func(s *Session) error {
		if attempts < 1 {
			return fmt.Errorf("poll attempts must be at least 1, got %d", attempts)
		}
		s.cfg.PollInterval = interval
		s.cfg.PollAttempts = attempts
		return nil
	}
}

// NewSession creates a session over the given channel. The session
// starts in StateIdle; call Init, or the individual handshake steps,
// before exchanging APDUs.
func NewSession(ch Channel, opts ...Option) (*Session, error) {
	s := &Session{
		cfg:   DefaultConfig(),
		state: StateIdle,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.tr = NewTransport(ch, s.cfg)
	return s, nil
}

// State returns the current session state.
func (s *Session) State() State {
	return s.state
}

// Transport returns the session's transport.
func (s *Session) Transport() *Transport {
	return s.tr
}

// ATR returns a copy of the cached Answer To Reset, or nil before
// ReadATR has run.
func (s *Session) ATR() []byte {
	if s.atr == nil {
		return nil
	}
	return append([]byte(nil), s.atr...)
}

// MaxDataBlockCode returns the 2-bit CDBIsm,max code reported by the
// card during parameter exchange.
func (s *Session) MaxDataBlockCode() byte {
	return s.cdbMax
}

// Close releases the underlying channel.
func (s *Session) Close() error {
	return s.tr.Channel().Close()
}

// fault marks the session faulted and passes the error through.
func (s *Session) fault(err error) error {
	s.state = StateFaulted
	return err
}

// Init runs the full handshake: wakeup, soft reset, ATR read and
// parameter exchange, leaving the session ready for APDU exchange.
func (s *Session) Init() error {
	if err := s.Wakeup(); err != nil {
		return err
	}
	if err := s.SoftReset(); err != nil {
		return err
	}
	if _, err := s.ReadATR(); err != nil {
		return err
	}
	if err := s.ParameterExchange(); err != nil {
		return err
	}
	s.state = StateReady
	return nil
}

// Wakeup issues the wakeup command twice, as the card's handshake
// requires, and moves the session to StateAwoken. Wakeup is legal from
// any state: it is also the only recovery path out of StateFaulted.
func (s *Session) Wakeup() error {
	for i := 0; i < wakeupIssueCount; i++ {
		if _, err := s.tr.Exchange([]byte{CmdWakeup}, ackLen); err != nil {
			return s.fault(err)
		}
	}
	s.state = StateAwoken
	return nil
}

// SoftReset restarts the card, waits the reset guard time and verifies
// the link reports Ready.
func (s *Session) SoftReset() error {
	if s.state != StateAwoken {
		return fmt.Errorf("%w: soft reset requires awoken, session is %s", ErrSessionNotReady, s.state)
	}
	if _, err := s.tr.Exchange([]byte{CmdSoftReset}, ackLen); err != nil {
		return s.fault(err)
	}
	time.Sleep(s.cfg.ResetGuardTime)

	status, err := s.tr.ReadStatus()
	if err != nil {
		return s.fault(err)
	}
	if status != StatusReady {
		return s.fault(NewLinkStatusError("SoftReset", s.tr.Channel().Name(), status))
	}
	s.state = StateReset
	return nil
}

// ReadATR fetches the Answer To Reset and caches it for the lifetime
// of the session. The reply carries a two-byte prefix (PCB and length)
// ahead of the ATR body.
func (s *Session) ReadATR() ([]byte, error) {
	if s.state != StateReset {
		return nil, fmt.Errorf("%w: ATR read requires reset, session is %s", ErrSessionNotReady, s.state)
	}
	in, err := s.tr.Exchange([]byte{CmdReadATR}, atrHeaderLen+atrLen)
	if err != nil {
		return nil, s.fault(err)
	}
	if got := int(in[1]); got != atrLen {
		Debugf("ATR length byte reports %d, expected %d", got, atrLen)
	}
	s.atr = append([]byte(nil), in[atrHeaderLen:]...)
	return s.ATR(), nil
}

// ParameterExchange negotiates link parameters. The card reports its
// maximum slave-to-master data block size in the upper two bits of the
// second reply byte.
func (s *Session) ParameterExchange() error {
	if s.state != StateReset {
		return fmt.Errorf("%w: parameter exchange requires reset, session is %s", ErrSessionNotReady, s.state)
	}
	in, err := s.tr.Exchange([]byte{CmdParameterExchange}, ackLen)
	if err != nil {
		return s.fault(err)
	}
	s.cdbMax = in[1] >> 6
	s.state = StateParametersExchanged
	return nil
}

// SendAndReceive encodes the command, sends it, polls the link status
// and reads back expectedLen response bytes. The card prepends one
// protocol control byte to the response; it is stripped before the
// remainder is decoded as a response APDU. A status word classifying
// as an execution or checking error is returned as a CardError along
// with the decoded response, and faults the session.
func (s *Session) SendAndReceive(cmd apdu.Command, expectedLen int) (apdu.Response, error) {
	if s.state != StateReady && s.state != StateParametersExchanged {
		return apdu.Response{}, fmt.Errorf("%w: exchange requires ready, session is %s", ErrSessionNotReady, s.state)
	}

	if err := s.tr.SendAPDU(cmd.Encode()); err != nil {
		return apdu.Response{}, s.fault(err)
	}

	raw, err := s.tr.RecvAPDU(expectedLen + recvPrefixLen)
	if err != nil {
		return apdu.Response{}, s.fault(err)
	}

	// Malformed replies are fatal to the operation only; the link and
	// sequence counter remain usable.
	resp, err := apdu.Parse(raw[recvPrefixLen:])
	if err != nil {
		return apdu.Response{}, err
	}

	if sw := resp.SW(); sw.IsError() {
		s.state = StateFaulted
		return resp, &CardError{SW: sw}
	}
	s.state = StateReady
	return resp, nil
}
