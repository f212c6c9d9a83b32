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
	"errors"
	"fmt"
	"io"

	"golang.org/x/sys/unix"

	"github.com/hostcard/go-sci2c/apdu"
)

// Error categories. The protocol performs no automatic retry: every
// fault is surfaced to the caller and, at session level, is terminal
// until the caller restarts from Wakeup.
var (
	// Channel errors - the bus itself failed.
	ErrChannelWrite  = errors.New("channel write failed")
	ErrChannelRead   = errors.New("channel read failed")
	ErrChannelClosed = errors.New("channel is closed")

	// Link errors - the card's status register reported a fault.
	ErrTransportFault = errors.New("link status fault")
	ErrCardBusy       = errors.New("card stayed busy")

	// Session errors.
	ErrSessionFaulted  = errors.New("session faulted, restart from wakeup")
	ErrSessionNotReady = errors.New("session not in required state")
)

// TransportError wraps a link-layer fault with the operation, the bus
// identifier and, for status register faults, the raw status code the
// card reported.
type TransportError struct {
	Err    error
	Op     string
	Bus    string
	Status LinkStatus
}

func (e *TransportError) Error() string {
	if errors.Is(e.Err, ErrTransportFault) || errors.Is(e.Err, ErrCardBusy) {
		return fmt.Sprintf("%s %s: %v: status 0x%X (%s)", e.Op, e.Bus, e.Err, byte(e.Status), e.Status)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Bus, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// NewTransportError wraps a channel-level failure.
func NewTransportError(op, bus string, err error) *TransportError {
	return &TransportError{Op: op, Bus: bus, Err: err}
}

// NewLinkStatusError reports a status register value that is neither
// Ready nor Busy.
func NewLinkStatusError(op, bus string, status LinkStatus) *TransportError {
	return &TransportError{Op: op, Bus: bus, Err: ErrTransportFault, Status: status}
}

// NewCardBusyError reports a card that never left the Busy state
// within the configured poll budget.
func NewCardBusyError(op, bus string) *TransportError {
	return &TransportError{Op: op, Bus: bus, Err: ErrCardBusy, Status: StatusBusy}
}

// CardError reports an APDU status word that classifies as an
// execution or checking error. The raw status word is preserved so the
// exact card-reported condition can be diagnosed.
type CardError struct {
	SW apdu.StatusWord
}

func (e *CardError) Error() string {
	return fmt.Sprintf("card returned status %s", e.SW)
}

// IsCardError extracts a CardError from an error chain, returning nil
// when the error is not card-reported.
func IsCardError(err error) *CardError {
	var ce *CardError
	if errors.As(err, &ce) {
		return ce
	}
	return nil
}

// IsFatal reports whether the error indicates the bus or device is
// gone entirely, as opposed to a protocol-level fault that a fresh
// wakeup could clear.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if isDeviceGoneError(err) {
		return true
	}
	switch {
	case errors.Is(err, ErrChannelClosed),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrClosedPipe):
		return true
	default:
		return false
	}
}

// isDeviceGoneError checks for OS-level errors indicating the bus
// device disappeared, such as an unplugged adapter.
func isDeviceGoneError(err error) bool {
	var errno unix.Errno
	if !errors.As(err, &errno) {
		return false
	}
	switch errno {
	case unix.EIO, unix.ENXIO, unix.ENODEV:
		return true
	default:
		return false
	}
}
