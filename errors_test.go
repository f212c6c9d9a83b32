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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/hostcard/go-sci2c/apdu"
)

func TestTransportErrorMessage(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  *TransportError
		want string
	}{
		{
			name: "channel failure",
			err:  NewTransportError("Exchange", "i2c-1", fmt.Errorf("%w: short write", ErrChannelWrite)),
			want: "Exchange i2c-1: channel write failed: short write",
		},
		{
			name: "link status fault carries raw code",
			err:  NewLinkStatusError("SendAPDU", "i2c-1", StatusUnexpectedSequence),
			want: "SendAPDU i2c-1: link status fault: status 0xA (unexpected sequence)",
		},
		{
			name: "busy exhaustion",
			err:  NewCardBusyError("SendAPDU", "uart-0"),
			want: "SendAPDU uart-0: card stayed busy: status 0x1 (busy)",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestTransportErrorUnwrap(t *testing.T) {
	t.Parallel()
	err := NewLinkStatusError("SoftReset", "mock", StatusInvalidEDC)
	assert.ErrorIs(t, err, ErrTransportFault)
	assert.NotErrorIs(t, err, ErrCardBusy)
}

func TestIsCardError(t *testing.T) {
	t.Parallel()
	ce := &CardError{SW: apdu.StatusWord(0x6700)}
	wrapped := fmt.Errorf("exchange failed: %w", ce)

	got := IsCardError(wrapped)
	require.NotNil(t, got)
	assert.Equal(t, apdu.StatusWord(0x6700), got.SW)

	assert.Nil(t, IsCardError(ErrTransportFault))
	assert.Nil(t, IsCardError(nil))
}

func TestCardErrorMessage(t *testing.T) {
	t.Parallel()
	ce := &CardError{SW: apdu.StatusWord(0x6A82)}
	assert.Equal(t, "card returned status 0x6A82 (checking error)", ce.Error())
}

func TestIsFatal(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "closed channel", err: fmt.Errorf("op: %w", ErrChannelClosed), want: true},
		{name: "EOF", err: io.EOF, want: true},
		{name: "closed pipe", err: io.ErrClosedPipe, want: true},
		{name: "device gone", err: fmt.Errorf("i2c tx: %w", unix.ENODEV), want: true},
		{name: "bus io error", err: fmt.Errorf("i2c tx: %w", unix.EIO), want: true},
		{name: "link fault is recoverable", err: ErrTransportFault, want: false},
		{name: "busy is recoverable", err: ErrCardBusy, want: false},
		{name: "plain error", err: errors.New("boom"), want: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsFatal(tt.err))
		})
	}
}
